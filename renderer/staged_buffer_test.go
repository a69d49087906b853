package renderer

import (
	"errors"
	"testing"

	"GPU_scene_data/gpu"
	"GPU_scene_data/gpu/memgpu"
	"GPU_scene_data/model"
)

func TestStagingRoundTrip(t *testing.T) {
	dev := memgpu.NewDevice()
	sb := NewStagedBuffer[model.IndirectCommand](dev, 8, gpu.UsageIndirect)
	in := []model.IndirectCommand{{3, 1, 0, 0}, {6, 1, 3, 0}, {9, 2, 0, 1}}
	if n, err := sb.WriteAll(in); err != nil || n != 3 {
		t.Fatalf("WriteAll returned %d, %v", n, err)
	}
	if err := sb.Upload(dev.Queue()); err != nil {
		t.Fatal(err)
	}
	out := readBack[model.IndirectCommand](t, sb.DeviceBuffer())
	if len(out) != 8 {
		t.Fatalf("device buffer holds %d records", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("record %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestStagingIsNotVisibleBeforeUpload(t *testing.T) {
	dev := memgpu.NewDevice()
	sb := NewStagedBuffer[model.Binding](dev, 2, gpu.UsageStorage)
	if err := sb.Write(1, model.Binding{DeviceAddress: 42, Stride: 4}); err != nil {
		t.Fatal(err)
	}
	if out := readBack[model.Binding](t, sb.DeviceBuffer()); out[1].DeviceAddress != 0 {
		t.Errorf("device copy changed before the upload executed")
	}
	cmd := dev.NewCommands()
	sb.EnqueueUpload(cmd)
	if len(cmd.Ops()) != 1 || cmd.Ops()[0].Size != 2*model.SizeOfBinding {
		t.Errorf("expected one full size copy, got %+v", cmd.Ops())
	}
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if out := readBack[model.Binding](t, sb.DeviceBuffer()); out[1].DeviceAddress != 42 {
		t.Errorf("expected address 42 after upload, got %d", out[1].DeviceAddress)
	}
}

func TestStagingCapacityClamp(t *testing.T) {
	dev := memgpu.NewDevice()
	sb := NewStagedBuffer[model.IndirectCommand](dev, 4, gpu.UsageIndirect)
	src := make([]model.IndirectCommand, 10)
	for i := range src {
		src[i] = model.IndirectCommand{VertexCount: uint32(i + 1)}
	}

	n, err := sb.WriteAll(src)
	if n != 4 {
		t.Errorf("expected 4 records written, got %d", n)
	}
	var capErr *CapacityError
	if !errors.As(err, &capErr) || !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected a capacity error, got %v", err)
	}
	if capErr.Requested != 10 || capErr.Written != 4 {
		t.Errorf("unexpected error detail %+v", capErr)
	}
	if err := sb.Upload(dev.Queue()); err != nil {
		t.Fatal(err)
	}
	out := readBack[model.IndirectCommand](t, sb.DeviceBuffer())
	if len(out) != 4 {
		t.Fatalf("device buffer grew to %d records", len(out))
	}
	for i := range out {
		if out[i] != src[i] {
			t.Errorf("record %d: expected %v, got %v", i, src[i], out[i])
		}
	}
	if err := sb.Write(4, model.IndirectCommand{}); !errors.Is(err, ErrCapacity) {
		t.Errorf("Write past capacity returned %v", err)
	}
}

func TestUploadOfUninitialisedBufferPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected a panic")
		}
	}()
	var sb *StagedBuffer[model.Binding]
	sb.EnqueueUpload(memgpu.NewDevice().NewCommands())
}
