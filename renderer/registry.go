package renderer

import (
	"log"
	"sync"

	"GPU_scene_data/gpu"
	"GPU_scene_data/model"
)

type RegistryInfo struct {
	// MaxBindingCount is the capacity of the device side binding table.
	MaxBindingCount int
}

func DefaultRegistryInfo() RegistryInfo {
	return RegistryInfo{MaxBindingCount: 128}
}

// Registry is the bindless table. Buffers and bindings live in an arena addressed by small integer indices that
// stay valid until the slot is explicitly overwritten. Meshes keep indices and resolve them at build time.
// Pushes, sets and flushes are serialised.
type Registry struct {
	mu  sync.Mutex
	dev gpu.Device

	buffers  []gpu.Buffer
	bindings []model.Binding
	bound    []bool

	table *StagedBuffer[model.Binding]
	set   descriptorSet
}

func NewRegistry(dev gpu.Device, info RegistryInfo) *Registry {
	if info.MaxBindingCount <= 0 {
		info.MaxBindingCount = DefaultRegistryInfo().MaxBindingCount
	}
	return &Registry{
		dev:   dev,
		table: NewStagedBuffer[model.Binding](dev, info.MaxBindingCount, gpu.UsageStorage),
	}
}

// PushBuffer appends a buffer and returns its index.
func (r *Registry) PushBuffer(b gpu.Buffer) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers = append(r.buffers, b)
	return uint32(len(r.buffers) - 1)
}

// PushBinding appends a binding and returns its index.
func (r *Registry) PushBinding(b model.Binding) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = append(r.bindings, b)
	r.bound = append(r.bound, true)
	return uint32(len(r.bindings) - 1)
}

// PushBufferWithBinding stores the buffer's address into the binding unless it already carries one and puts both
// at the first index free in both lists, padding the shorter list with empty slots. Buffer and binding therefore
// always share the returned index.
func (r *Registry) PushBufferWithBinding(buf gpu.Buffer, b model.Binding) uint32 {
	if b.DeviceAddress == 0 {
		b.DeviceAddress = buf.DeviceAddress()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := uint32(max(len(r.buffers), len(r.bindings)))
	r.setBuffer(i, buf)
	r.setBinding(i, b)
	return i
}

// SetBuffer overwrites slot i, growing the arena with empty slots as needed.
func (r *Registry) SetBuffer(i uint32, b gpu.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setBuffer(i, b)
}

// SetBinding overwrites binding i, growing the table with unbound slots as needed.
func (r *Registry) SetBinding(i uint32, b model.Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setBinding(i, b)
}

func (r *Registry) SetBufferWithBinding(i uint32, buf gpu.Buffer, b model.Binding) {
	if b.DeviceAddress == 0 {
		b.DeviceAddress = buf.DeviceAddress()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setBuffer(i, buf)
	r.setBinding(i, b)
}

func (r *Registry) setBuffer(i uint32, b gpu.Buffer) {
	for uint32(len(r.buffers)) <= i {
		r.buffers = append(r.buffers, nil)
	}
	r.buffers[i] = b
}

func (r *Registry) setBinding(i uint32, b model.Binding) {
	for uint32(len(r.bindings)) <= i {
		r.bindings = append(r.bindings, model.Binding{})
		r.bound = append(r.bound, false)
	}
	r.bindings[i] = b
	r.bound[i] = true
}

// Buffer returns the buffer at i, nil for an empty or unknown slot.
func (r *Registry) Buffer(i uint32) gpu.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(i) >= len(r.buffers) {
		return nil
	}
	return r.buffers[i]
}

// Binding returns the binding at i and whether it was ever set.
func (r *Registry) Binding(i uint32) (model.Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(i) >= len(r.bindings) {
		return model.Binding{}, false
	}
	return r.bindings[i], r.bound[i]
}

// BindingCount is the length of the binding list including unbound gaps.
func (r *Registry) BindingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// ResolveAddress is the explicit lookup behind every registry index. The binding's address wins since it is what
// shaders dereference; a slot holding only a buffer resolves to the buffer's address. Anything else is an
// *UnresolvedError, never a zero address.
func (r *Registry) ResolveAddress(i uint32) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(i) < len(r.bindings) && r.bound[i] && r.bindings[i].DeviceAddress != 0 {
		return r.bindings[i].DeviceAddress, nil
	}
	if int(i) < len(r.buffers) && r.buffers[i] != nil {
		if addr := r.buffers[i].DeviceAddress(); addr != 0 {
			return addr, nil
		}
	}
	return 0, &UnresolvedError{Element: -1, Target: "registry index", Index: i}
}

// CopyCommand stages the binding list into the device table. Bindings past the table capacity are dropped and
// reported, the rest is still uploaded.
func (r *Registry) CopyCommand(cmd gpu.CommandContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.table.WriteAll(r.bindings)
	r.table.EnqueueUpload(cmd)
	return err
}

// Flush records CopyCommand and submits it.
func (r *Registry) Flush(q gpu.Queue) error {
	var cerr error
	err := q.SubmitOnce(func(cmd gpu.CommandContext) {
		cerr = r.CopyCommand(cmd)
	})
	if err != nil {
		return err
	}
	return cerr
}

// BindingBuffer is the device copy of the binding table.
func (r *Registry) BindingBuffer() gpu.Buffer { return r.table.DeviceBuffer() }

// DeviceAddress of the binding table, the single pointer shaders need to reach every registered buffer.
func (r *Registry) DeviceAddress() uint64 { return r.table.DeviceAddress() }

// MakeDescriptorSet allocates the registry set on first use and rewrites it afterwards. Buffers are packed from
// element 0 in index order skipping empty slots, so only a dense registry keeps element == index.
func (r *Registry) MakeDescriptorSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ranges, cerr := contiguous(r.buffers, RegistryBufferSlots)
	if !r.set.created {
		log.Printf("Allocating registry descriptor set with %d buffers", len(ranges))
	}
	set, err := r.set.make(r.dev, layout, []gpu.DescriptorWrite{
		{Binding: 0, Kind: gpu.DescriptorStorageBuffer, Buffers: ranges},
		{Binding: 1, Kind: gpu.DescriptorStorageBuffer, Buffers: []gpu.BufferRange{{Buffer: r.table.DeviceBuffer()}}},
	})
	if err != nil {
		return nil, err
	}
	return set, cerr
}

// Destroy releases the binding table. Registered buffers belong to the caller.
func (r *Registry) Destroy() {
	r.table.Destroy()
}
