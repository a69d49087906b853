// Package memgpu is a software gpu.Device. Buffers live in host memory, device addresses are handed out from a
// private address space, command streams are recorded and only executed on submit, and acceleration structure
// builds keep the inputs they were recorded with so tests can inspect them.
package memgpu

import (
	"errors"
	"fmt"
	"sync"

	"GPU_scene_data/gpu"
)

const (
	addressBase      = uint64(0x1000_0000)
	addressAlignment = uint64(256)
	// NativeInstanceSize is the byte size of one VkAccelerationStructureInstanceKHR record.
	NativeInstanceSize = 64
)

var ErrForeignResource = errors.New("resource was not created by this device")

var (
	_ gpu.Device         = (*Device)(nil)
	_ gpu.Queue          = (*Queue)(nil)
	_ gpu.CommandContext = (*Commands)(nil)
)

// Device implements gpu.Device in host memory.
type Device struct {
	mu          sync.Mutex
	nextAddress uint64
	buffers     []*Buffer
	structures  []*Structure

	bufferAllocations int
	setAllocations    int
	submissions       int
}

func NewDevice() *Device {
	return &Device{nextAddress: addressBase}
}

func alignUp(v uint64, a uint64) uint64 {
	return (v + a - 1) / a * a
}

func (d *Device) reserve(size uint64) uint64 {
	addr := d.nextAddress
	// leave a gap so that off-by-one reads never land inside a neighbour
	d.nextAddress = alignUp(addr+size+addressAlignment, addressAlignment)
	return addr
}

func (d *Device) CreateBuffer(size uint64, usage gpu.BufferUsage, memory gpu.MemoryKind) (gpu.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("memgpu: cannot create zero sized buffer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{
		dev:     d,
		data:    make([]byte, size),
		address: d.reserve(size),
		usage:   usage,
		memory:  memory,
	}
	d.buffers = append(d.buffers, b)
	d.bufferAllocations++
	return b, nil
}

// AccelerationStructureSizes answers with sizes that grow linearly with the primitive count so that tests can
// predict them.
func (d *Device) AccelerationStructureSizes(kind gpu.StructureKind, flags gpu.BuildFlags, geometries []gpu.Geometry, primitiveCounts []uint32) (gpu.BuildSizes, error) {
	if len(geometries) != len(primitiveCounts) {
		return gpu.BuildSizes{}, fmt.Errorf("memgpu: %d geometries but %d primitive counts", len(geometries), len(primitiveCounts))
	}
	total := uint64(0)
	for i, g := range geometries {
		if kind == gpu.TopLevel && g.Kind != gpu.GeometryInstances {
			return gpu.BuildSizes{}, fmt.Errorf("memgpu: top-level geometry %d is not of kind instances", i)
		}
		if kind == gpu.BottomLevel && g.Kind != gpu.GeometryTriangles {
			return gpu.BuildSizes{}, fmt.Errorf("memgpu: bottom-level geometry %d is not of kind triangles", i)
		}
		total += uint64(primitiveCounts[i])
	}
	return ExpectedSizes(total), nil
}

// ExpectedSizes is the size answer for a given total primitive count.
func ExpectedSizes(primitives uint64) gpu.BuildSizes {
	return gpu.BuildSizes{
		StructureSize: alignUp(1024+128*primitives, addressAlignment),
		ScratchSize:   alignUp(512+64*primitives, addressAlignment),
	}
}

func (d *Device) CreateAccelerationStructure(kind gpu.StructureKind, storage gpu.Buffer) (gpu.AccelerationStructure, error) {
	b, ok := storage.(*Buffer)
	if !ok || b.dev != d {
		return nil, ErrForeignResource
	}
	if b.usage&gpu.UsageAccelerationStorage == 0 {
		return nil, fmt.Errorf("memgpu: storage buffer lacks acceleration structure storage usage")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Structure{kind: kind, storage: b}
	d.structures = append(d.structures, s)
	return s, nil
}

// resolve maps a device address back to the buffer containing it and the offset inside that buffer.
func (d *Device) resolve(addr uint64) (*Buffer, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.buffers {
		if b.destroyed {
			continue
		}
		if addr >= b.address && addr < b.address+uint64(len(b.data)) {
			return b, addr - b.address, true
		}
	}
	return nil, 0, false
}

// Queue returns a queue whose SubmitOnce records into a fresh command stream and executes it right away.
func (d *Device) Queue() *Queue {
	return &Queue{dev: d}
}

// NewCommands opens an empty command stream.
func (d *Device) NewCommands() *Commands {
	return &Commands{dev: d}
}

// BufferAllocations counts every successful CreateBuffer call.
func (d *Device) BufferAllocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferAllocations
}

// LiveBuffers counts buffers that were created and not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, b := range d.buffers {
		if !b.destroyed {
			n++
		}
	}
	return n
}

// SetAllocations counts every successful AllocateDescriptorSet call.
func (d *Device) SetAllocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setAllocations
}

// Submissions counts SubmitOnce calls.
func (d *Device) Submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions
}

// Queue implements gpu.Queue.
type Queue struct {
	dev *Device
}

func (q *Queue) SubmitOnce(record func(cmd gpu.CommandContext)) error {
	cmd := q.dev.NewCommands()
	record(cmd)
	q.dev.mu.Lock()
	q.dev.submissions++
	q.dev.mu.Unlock()
	return cmd.Execute()
}

// Buffer implements gpu.Buffer.
type Buffer struct {
	dev       *Device
	data      []byte
	address   uint64
	usage     gpu.BufferUsage
	memory    gpu.MemoryKind
	destroyed bool
}

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

func (b *Buffer) DeviceAddress() uint64 { return b.address }

func (b *Buffer) Usage() gpu.BufferUsage { return b.usage }

func (b *Buffer) Memory() gpu.MemoryKind { return b.memory }

func (b *Buffer) Destroyed() bool { return b.destroyed }

func (b *Buffer) Mapped() []byte {
	if b.memory != gpu.MemoryHostVisible {
		return nil
	}
	return b.data
}

// Contents is the readback path: a copy of the buffer regardless of where it lives.
func (b *Buffer) Contents() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func (b *Buffer) Destroy() {
	if b == nil {
		return
	}
	b.dev.mu.Lock()
	b.destroyed = true
	b.dev.mu.Unlock()
}

// Structure implements gpu.AccelerationStructure and remembers what it was last built from.
type Structure struct {
	kind       gpu.StructureKind
	storage    *Buffer
	destroyed  bool
	builds     int
	geometries []gpu.Geometry
	ranges     []gpu.BuildRange
	instances  []byte
}

func (s *Structure) Kind() gpu.StructureKind { return s.kind }

// DeviceAddress is the address of the backing storage, as on real devices.
func (s *Structure) DeviceAddress() uint64 { return s.storage.address }

func (s *Structure) Destroy() { s.destroyed = true }

func (s *Structure) Destroyed() bool { return s.destroyed }

// Builds counts executed builds.
func (s *Structure) Builds() int { return s.builds }

// Ranges of the last executed build.
func (s *Structure) Ranges() []gpu.BuildRange { return s.ranges }

// Geometries of the last executed build.
func (s *Structure) Geometries() []gpu.Geometry { return s.geometries }

// PrimitiveCount is the sum over the ranges of the last executed build.
func (s *Structure) PrimitiveCount() uint32 {
	n := uint32(0)
	for _, r := range s.ranges {
		n += r.PrimitiveCount
	}
	return n
}

// Instances holds the raw native instance records a top-level build read from device memory.
func (s *Structure) Instances() []byte { return s.instances }
