package model

import (
	vm "GPU_scene_data/vector_math"
)

// InstanceFlags mirror VkGeometryInstanceFlagBitsKHR.
type InstanceFlags uint8

const (
	InstanceCullDisable InstanceFlags = 1 << iota
	InstanceFlipFacing
	InstanceForceOpaque
	InstanceForceNoOpaque
)

// NoMesh marks an instance that references no mesh.
const NoMesh = ^uint32(0)

// InstanceRecord is the CPU authored scene instance. SubMeshCount, DescriptorAddress and AccelerationAddress are
// filled in when the scene accepts the record.
type InstanceRecord struct {
	Transform           vm.Affine
	Mask                uint8
	Flags               InstanceFlags
	_                   [2]byte
	ShaderRecordOffset  uint32
	MeshID              uint32
	SubMeshCount        uint32
	DescriptorAddress   uint64
	AccelerationAddress uint64
}

const SizeOfInstance = 80

// DefaultInstance is visible to every ray mask and references nothing.
func DefaultInstance() InstanceRecord {
	return InstanceRecord{
		Transform: vm.IdentityAffine(),
		Mask:      0xFF,
	}
}

// NativeInstance has the exact layout of VkAccelerationStructureInstanceKHR. The two bitfield words pack a 24-bit
// value with an 8-bit value in the high byte.
type NativeInstance struct {
	Transform             vm.Affine
	CustomIndexAndMask    uint32
	SBTOffsetAndFlags     uint32
	AccelerationReference uint64
}

const SizeOfNativeInstance = 64

const lower24 = 0x00FF_FFFF

func NewNativeInstance(transform vm.Affine, customIndex uint32, mask uint8, sbtOffset uint32, flags InstanceFlags, reference uint64) NativeInstance {
	return NativeInstance{
		Transform:             transform,
		CustomIndexAndMask:    customIndex&lower24 | uint32(mask)<<24,
		SBTOffsetAndFlags:     sbtOffset&lower24 | uint32(flags)<<24,
		AccelerationReference: reference,
	}
}

func (n NativeInstance) CustomIndex() uint32 { return n.CustomIndexAndMask & lower24 }

func (n NativeInstance) Mask() uint8 { return uint8(n.CustomIndexAndMask >> 24) }

func (n NativeInstance) SBTOffset() uint32 { return n.SBTOffsetAndFlags & lower24 }

func (n NativeInstance) Flags() InstanceFlags { return InstanceFlags(n.SBTOffsetAndFlags >> 24) }

// Native projects the record into the build layout. The custom index is the instance's position in the scene.
func (r InstanceRecord) Native(index uint32) NativeInstance {
	return NewNativeInstance(r.Transform, index, r.Mask, r.ShaderRecordOffset, r.Flags, r.AccelerationAddress)
}
