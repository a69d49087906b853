package renderer

import (
	"log"

	"GPU_scene_data/gpu"
	"GPU_scene_data/model"
)

// StagedBuffer pairs a host visible buffer with a device local buffer of the same capacity. Records are written
// into the host copy and only reach the device copy once a recorded upload executes. Capacity never changes.
type StagedBuffer[T any] struct {
	host     gpu.Buffer
	device   gpu.Buffer
	stride   uint64
	capacity int
	length   int
}

// NewStagedBuffer creates both halves. usage is added to the device half, which is always a copy destination
// with a device address. Allocation failure is fatal.
func NewStagedBuffer[T any](dev gpu.Device, capacity int, usage gpu.BufferUsage) *StagedBuffer[T] {
	if capacity <= 0 {
		log.Panicf("staged buffer capacity must be positive, got %d", capacity)
	}
	stride := model.Stride[T]()
	size := stride * uint64(capacity)

	host, err := dev.CreateBuffer(size, gpu.UsageTransferSrc, gpu.MemoryHostVisible)
	if err != nil {
		log.Panicf("Failed to create host buffer of %d bytes: %s", size, err)
	}
	device, err := dev.CreateBuffer(size, usage|gpu.UsageTransferDst|gpu.UsageDeviceAddress, gpu.MemoryDeviceLocal)
	if err != nil {
		log.Panicf("Failed to create device buffer of %d bytes: %s", size, err)
	}
	return &StagedBuffer[T]{
		host:     host,
		device:   device,
		stride:   stride,
		capacity: capacity,
	}
}

// Write overwrites record i in the host copy.
func (b *StagedBuffer[T]) Write(i int, v T) error {
	if i < 0 || i >= b.capacity {
		return &CapacityError{Capacity: b.capacity, Requested: i + 1}
	}
	off := uint64(i) * b.stride
	copy(b.host.Mapped()[off:off+b.stride], model.RawBytes(v))
	b.length = max(b.length, i+1)
	return nil
}

// WriteAll overwrites the host copy from the start with min(len(src), Cap()) records and returns how many were
// written. Records past the capacity are dropped and reported with a *CapacityError; the written prefix is kept
// either way.
func (b *StagedBuffer[T]) WriteAll(src []T) (int, error) {
	n := min(len(src), b.capacity)
	if n > 0 {
		copy(b.host.Mapped(), model.RawBytes(src[:n]))
	}
	b.length = n
	if len(src) > b.capacity {
		return n, &CapacityError{Capacity: b.capacity, Requested: len(src), Written: n}
	}
	return n, nil
}

// EnqueueUpload records a copy of the whole host copy into the device copy. No barrier is recorded, readers of
// the device copy must be ordered after the copy by the caller.
func (b *StagedBuffer[T]) EnqueueUpload(cmd gpu.CommandContext) {
	if b == nil || b.host == nil || b.device == nil {
		panic("renderer: upload of an uninitialised staged buffer")
	}
	cmd.CopyBuffer(b.host, b.device, min(b.host.Size(), b.device.Size()))
}

// Upload records the copy and submits it right away.
func (b *StagedBuffer[T]) Upload(q gpu.Queue) error {
	return q.SubmitOnce(func(cmd gpu.CommandContext) {
		b.EnqueueUpload(cmd)
	})
}

// Len is the number of records written by the last WriteAll, or one past the highest Write since.
func (b *StagedBuffer[T]) Len() int { return b.length }

func (b *StagedBuffer[T]) Cap() int { return b.capacity }

func (b *StagedBuffer[T]) Stride() uint64 { return b.stride }

func (b *StagedBuffer[T]) HostBuffer() gpu.Buffer { return b.host }

func (b *StagedBuffer[T]) DeviceBuffer() gpu.Buffer { return b.device }

func (b *StagedBuffer[T]) DeviceAddress() uint64 { return b.device.DeviceAddress() }

func (b *StagedBuffer[T]) Destroy() {
	if b == nil {
		return
	}
	if b.host != nil {
		b.host.Destroy()
		b.host = nil
	}
	if b.device != nil {
		b.device.Destroy()
		b.device = nil
	}
}
