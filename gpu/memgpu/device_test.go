package memgpu

import (
	"testing"

	"GPU_scene_data/gpu"
)

func TestBufferAddressesDoNotOverlap(t *testing.T) {
	d := NewDevice()
	a, _ := d.CreateBuffer(100, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	b, _ := d.CreateBuffer(100, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	if a.DeviceAddress()+a.Size() > b.DeviceAddress() {
		t.Errorf("buffers overlap: %#x+%d > %#x", a.DeviceAddress(), a.Size(), b.DeviceAddress())
	}
	if b.DeviceAddress()%addressAlignment != 0 {
		t.Errorf("address %#x not aligned", b.DeviceAddress())
	}
}

func TestMappedOnlyForHostVisible(t *testing.T) {
	d := NewDevice()
	host, _ := d.CreateBuffer(16, gpu.UsageTransferSrc, gpu.MemoryHostVisible)
	dev, _ := d.CreateBuffer(16, gpu.UsageTransferDst, gpu.MemoryDeviceLocal)
	if host.Mapped() == nil {
		t.Errorf("host visible buffer is not mapped")
	}
	if dev.Mapped() != nil {
		t.Errorf("device local buffer is mapped")
	}
}

func TestCopyRunsOnlyOnExecute(t *testing.T) {
	d := NewDevice()
	src, _ := d.CreateBuffer(8, gpu.UsageTransferSrc, gpu.MemoryHostVisible)
	dst, _ := d.CreateBuffer(8, gpu.UsageTransferDst, gpu.MemoryDeviceLocal)
	copy(src.Mapped(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	cmd := d.NewCommands()
	cmd.CopyBuffer(src, dst, 4)
	if got := dst.(*Buffer).Contents(); got[0] != 0 {
		t.Errorf("copy ran before execute: %v", got)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	got := dst.(*Buffer).Contents()
	want := []byte{1, 2, 3, 4, 0, 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestBuildReadsInstances(t *testing.T) {
	d := NewDevice()
	inst, _ := d.CreateBuffer(2*NativeInstanceSize, gpu.UsageAccelerationBuildInput, gpu.MemoryDeviceLocal)
	inst.(*Buffer).data[NativeInstanceSize] = 0xAB

	sizes, err := d.AccelerationStructureSizes(gpu.TopLevel, gpu.BuildPreferFastTrace,
		[]gpu.Geometry{{Kind: gpu.GeometryInstances}}, []uint32{2})
	if err != nil {
		t.Fatal(err)
	}
	if sizes != ExpectedSizes(2) {
		t.Errorf("sizes %+v, expected %+v", sizes, ExpectedSizes(2))
	}
	storage, _ := d.CreateBuffer(sizes.StructureSize, gpu.UsageAccelerationStorage, gpu.MemoryDeviceLocal)
	scratch, _ := d.CreateBuffer(sizes.ScratchSize, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	as, err := d.CreateAccelerationStructure(gpu.TopLevel, storage)
	if err != nil {
		t.Fatal(err)
	}

	err = d.Queue().SubmitOnce(func(cmd gpu.CommandContext) {
		cmd.BuildAccelerationStructure(gpu.BuildInfo{
			Kind:           gpu.TopLevel,
			Geometries:     []gpu.Geometry{{Kind: gpu.GeometryInstances, Instances: gpu.Instances{Data: inst.DeviceAddress()}}},
			Destination:    as,
			ScratchAddress: scratch.DeviceAddress(),
		}, []gpu.BuildRange{{PrimitiveCount: 2}})
	})
	if err != nil {
		t.Fatal(err)
	}
	s := as.(*Structure)
	if s.Builds() != 1 || s.PrimitiveCount() != 2 {
		t.Errorf("expected one build of 2 primitives, got %d builds of %d", s.Builds(), s.PrimitiveCount())
	}
	if len(s.Instances()) != 2*NativeInstanceSize || s.Instances()[NativeInstanceSize] != 0xAB {
		t.Errorf("instance bytes were not captured")
	}
}

func TestBuildRejectsDanglingAddress(t *testing.T) {
	d := NewDevice()
	storage, _ := d.CreateBuffer(1024, gpu.UsageAccelerationStorage, gpu.MemoryDeviceLocal)
	scratch, _ := d.CreateBuffer(1024, gpu.UsageStorage, gpu.MemoryDeviceLocal)
	as, _ := d.CreateAccelerationStructure(gpu.BottomLevel, storage)
	cmd := d.NewCommands()
	cmd.BuildAccelerationStructure(gpu.BuildInfo{
		Kind:           gpu.BottomLevel,
		Geometries:     []gpu.Geometry{{Kind: gpu.GeometryTriangles, Triangles: gpu.Triangles{VertexData: 0x42}}},
		Destination:    as,
		ScratchAddress: scratch.DeviceAddress(),
	}, []gpu.BuildRange{{PrimitiveCount: 1}})
	if err := cmd.Execute(); err == nil {
		t.Errorf("expected an error for an unbacked vertex address")
	}
}

func TestDescriptorWriteBounds(t *testing.T) {
	d := NewDevice()
	layout, err := d.CreateDescriptorSetLayout([]gpu.LayoutBinding{
		{Binding: 0, Kind: gpu.DescriptorStorageBuffer, Count: 2, Stages: gpu.StageAll, Flags: gpu.BindlessFlags},
	})
	if err != nil {
		t.Fatal(err)
	}
	set, _ := d.AllocateDescriptorSet(layout)
	buf, _ := d.CreateBuffer(16, gpu.UsageStorage, gpu.MemoryDeviceLocal)

	err = d.UpdateDescriptorSet(set, []gpu.DescriptorWrite{
		{Binding: 0, ArrayElement: 1, Kind: gpu.DescriptorStorageBuffer, Buffers: []gpu.BufferRange{{Buffer: buf}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set.(*Set).Buffer(0, 1); !ok {
		t.Errorf("slot 1 was not written")
	}
	if _, ok := set.(*Set).Buffer(0, 0); ok {
		t.Errorf("slot 0 should be unpopulated")
	}

	err = d.UpdateDescriptorSet(set, []gpu.DescriptorWrite{
		{Binding: 0, ArrayElement: 2, Kind: gpu.DescriptorStorageBuffer, Buffers: []gpu.BufferRange{{Buffer: buf}}},
	})
	if err == nil {
		t.Errorf("expected out of range write to fail")
	}
	if set.(*Set).Populated(0) != 1 {
		t.Errorf("failed write changed the set")
	}
}
