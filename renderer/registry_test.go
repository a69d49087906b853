package renderer

import (
	"errors"
	"sync"
	"testing"

	"GPU_scene_data/gpu"
	"GPU_scene_data/gpu/memgpu"
	"GPU_scene_data/model"
)

func TestRegistryIndexStability(t *testing.T) {
	dev := memgpu.NewDevice()
	reg := NewRegistry(dev, DefaultRegistryInfo())

	var bufs []gpu.Buffer
	var idx []uint32
	for i := 0; i < 5; i++ {
		b, _ := dev.CreateBuffer(64, gpu.UsageStorage, gpu.MemoryDeviceLocal)
		bufs = append(bufs, b)
		idx = append(idx, reg.PushBufferWithBinding(b, model.Binding{Stride: uint32(4 * (i + 1))}))
	}
	for i, id := range idx {
		if id != uint32(i) {
			t.Errorf("push %d returned index %d", i, id)
		}
	}

	// overwrite one slot, every other index must still resolve to what it was pushed with
	other, _ := dev.CreateBuffer(64, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	reg.SetBufferWithBinding(2, other, model.Binding{Stride: 99})

	for i, id := range idx {
		addr, err := reg.ResolveAddress(id)
		if err != nil {
			t.Fatal(err)
		}
		want := bufs[i].DeviceAddress()
		if i == 2 {
			want = other.DeviceAddress()
		}
		if addr != want {
			t.Errorf("index %d resolves to %#x, expected %#x", id, addr, want)
		}
		b, ok := reg.Binding(id)
		if !ok {
			t.Errorf("binding %d lost", id)
		}
		if i != 2 && b.Stride != uint32(4*(i+1)) {
			t.Errorf("binding %d stride changed to %d", id, b.Stride)
		}
	}
}

func TestRegistryPairedPushKeepsExplicitAddress(t *testing.T) {
	dev := memgpu.NewDevice()
	reg := NewRegistry(dev, DefaultRegistryInfo())
	b, _ := dev.CreateBuffer(64, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	id := reg.PushBufferWithBinding(b, model.Binding{DeviceAddress: b.DeviceAddress() + 16})
	got, _ := reg.Binding(id)
	if got.DeviceAddress != b.DeviceAddress()+16 {
		t.Errorf("explicit address was overwritten")
	}
}

func TestRegistryUnresolved(t *testing.T) {
	dev := memgpu.NewDevice()
	reg := NewRegistry(dev, DefaultRegistryInfo())
	reg.SetBinding(3, model.Binding{Stride: 4})

	for _, id := range []uint32{0, 3, 7} {
		_, err := reg.ResolveAddress(id)
		var ue *UnresolvedError
		if !errors.As(err, &ue) || ue.Index != id {
			t.Errorf("index %d: expected an unresolved error, got %v", id, err)
		}
	}
	if reg.BindingCount() != 4 {
		t.Errorf("SetBinding should grow the table to 4, got %d", reg.BindingCount())
	}
}

func TestRegistryFlushUploadsTable(t *testing.T) {
	dev := memgpu.NewDevice()
	reg := NewRegistry(dev, RegistryInfo{MaxBindingCount: 4})
	b, _ := dev.CreateBuffer(64, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	reg.PushBufferWithBinding(b, model.Binding{Stride: 12, Format: model.FormatFloat3})

	if err := reg.Flush(dev.Queue()); err != nil {
		t.Fatal(err)
	}
	table := readBack[model.Binding](t, reg.BindingBuffer())
	if table[0].DeviceAddress != b.DeviceAddress() || table[0].Stride != 12 || table[0].Format != model.FormatFloat3 {
		t.Errorf("unexpected table entry %+v", table[0])
	}
	if reg.DeviceAddress() != reg.BindingBuffer().DeviceAddress() {
		t.Errorf("registry address is not the table address")
	}

	for i := 0; i < 4; i++ {
		reg.PushBinding(model.Binding{Stride: 1})
	}
	if err := reg.Flush(dev.Queue()); !errors.Is(err, ErrCapacity) {
		t.Errorf("expected a capacity error for 5 bindings in a table of 4, got %v", err)
	}
}

func TestRegistryConcurrentPush(t *testing.T) {
	dev := memgpu.NewDevice()
	reg := NewRegistry(dev, DefaultRegistryInfo())
	const workers, rounds = 32, 50

	start := make(chan struct{})
	mismatches := make(chan uint32, workers*rounds)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for r := 0; r < rounds; r++ {
				b, err := dev.CreateBuffer(16, gpu.UsageStorage, gpu.MemoryDeviceLocal)
				if err != nil {
					mismatches <- 0
					continue
				}
				idx := reg.PushBufferWithBinding(b, model.Binding{Stride: 4})
				if reg.Buffer(idx) != b {
					mismatches <- idx
				}
				if got, _ := reg.Binding(idx); got.DeviceAddress != b.DeviceAddress() {
					mismatches <- idx
				}
			}
		}()
	}
	close(start)
	wg.Wait()
	close(mismatches)

	for idx := range mismatches {
		t.Errorf("slot %d holds another caller's buffer or binding", idx)
	}
	if reg.BindingCount() != workers*rounds {
		t.Errorf("expected %d bindings, got %d", workers*rounds, reg.BindingCount())
	}
}

func TestRegistryPairedPushAfterUnpairedPushes(t *testing.T) {
	dev := memgpu.NewDevice()
	reg := NewRegistry(dev, DefaultRegistryInfo())
	lone, _ := dev.CreateBuffer(16, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	reg.PushBuffer(lone)
	reg.PushBuffer(lone)
	reg.PushBinding(model.Binding{Stride: 8})

	b, _ := dev.CreateBuffer(16, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	idx := reg.PushBufferWithBinding(b, model.Binding{Stride: 4})
	if idx != 2 {
		t.Errorf("expected the first index free in both lists, got %d", idx)
	}
	if reg.Buffer(idx) != b {
		t.Errorf("buffer slot %d does not hold the pushed buffer", idx)
	}
	if got, ok := reg.Binding(idx); !ok || got.Stride != 4 {
		t.Errorf("binding slot %d does not hold the pushed binding", idx)
	}
	if _, ok := reg.Binding(1); ok {
		t.Errorf("padding slot 1 should stay unbound")
	}
}

func TestRegistryDescriptorSetPacksFromZero(t *testing.T) {
	dev := memgpu.NewDevice()
	reg := NewRegistry(dev, DefaultRegistryInfo())
	a, _ := dev.CreateBuffer(16, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	b, _ := dev.CreateBuffer(16, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	reg.SetBuffer(1, a)
	reg.SetBuffer(4, b)

	layout := RegistryLayout().Create(dev)
	set, err := reg.MakeDescriptorSet(layout)
	if err != nil {
		t.Fatal(err)
	}
	ms := set.(*memgpu.Set)
	if r, ok := ms.Buffer(0, 0); !ok || r.Buffer != a {
		t.Errorf("element 0 should hold the first populated slot")
	}
	if r, ok := ms.Buffer(0, 1); !ok || r.Buffer != b {
		t.Errorf("element 1 should hold the second populated slot")
	}
	if ms.Populated(0) != 2 {
		t.Errorf("expected 2 populated elements, got %d", ms.Populated(0))
	}
	if r, ok := ms.Buffer(1, 0); !ok || r.Buffer != reg.BindingBuffer() {
		t.Errorf("binding 1 should hold the binding table")
	}
}
