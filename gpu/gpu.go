// Package gpu holds the narrow device, command and queue interfaces the scene-data layer is written against.
// Everything behind these interfaces (buffer allocation, acceleration structure creation, descriptor updates,
// command recording and submission) belongs to a backend: common.Device drives Vulkan, memgpu.Device emulates a
// device in host memory.
package gpu

// BufferUsage states what a buffer will be used for. Backends translate it into their own usage flags.
type BufferUsage uint32

const (
	UsageTransferSrc BufferUsage = 1 << iota
	UsageTransferDst
	UsageStorage
	UsageIndirect
	UsageVertex
	UsageIndex
	UsageDeviceAddress
	UsageAccelerationStorage
	UsageAccelerationBuildInput
)

// MemoryKind selects where a buffer lives.
type MemoryKind int

const (
	// MemoryDeviceLocal is only visible to GPU work.
	MemoryDeviceLocal MemoryKind = iota
	// MemoryHostVisible is mapped for the lifetime of the buffer and writable by the CPU.
	MemoryHostVisible
)

func (m MemoryKind) String() string {
	switch m {
	case MemoryDeviceLocal:
		return "device-local"
	case MemoryHostVisible:
		return "host-visible"
	}
	return "unknown"
}

// Buffer is a linear device allocation.
type Buffer interface {
	// Size in bytes.
	Size() uint64
	// DeviceAddress is the raw address shaders and structure builds dereference.
	DeviceAddress() uint64
	// Mapped returns the host mapping of a MemoryHostVisible buffer and nil otherwise.
	Mapped() []byte
	Destroy()
}

// AccelerationStructure is a built (or buildable) bottom or top level structure.
type AccelerationStructure interface {
	Kind() StructureKind
	DeviceAddress() uint64
	Destroy()
}

// Texture is an opaque sampled image handed in by the caller. This layer never creates or transitions images.
type Texture interface {
	TextureHandle() uintptr
}

// CommandContext is an open command stream. Every call appends work; nothing executes until the stream is
// submitted by whoever owns it.
type CommandContext interface {
	// CopyBuffer records a copy of size bytes from the start of src to the start of dst.
	CopyBuffer(src Buffer, dst Buffer, size uint64)
	// BuildAccelerationStructure records one build using one range per geometry.
	BuildAccelerationStructure(info BuildInfo, ranges []BuildRange)
}

// Queue exposes the "run once synchronously" primitive used by the Flush convenience wrappers.
type Queue interface {
	SubmitOnce(record func(cmd CommandContext)) error
}

// Device allocates resources and answers build size queries.
type Device interface {
	CreateBuffer(size uint64, usage BufferUsage, memory MemoryKind) (Buffer, error)
	AccelerationStructureSizes(kind StructureKind, flags BuildFlags, geometries []Geometry, primitiveCounts []uint32) (BuildSizes, error)
	CreateAccelerationStructure(kind StructureKind, storage Buffer) (AccelerationStructure, error)

	CreateDescriptorSetLayout(bindings []LayoutBinding) (DescriptorSetLayout, error)
	AllocateDescriptorSet(layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite) error
}
