package model

import (
	vm "GPU_scene_data/vector_math"
)

// DrawInstance is the raster side of a scene instance. The indirect buffer it points at holds one IndirectCommand
// per sub-mesh and is filled by GPU work.
type DrawInstance struct {
	Transform           vm.Affine
	ProgramID           uint32
	MeshID              uint32
	SubMeshCount        uint32
	CustomIndex         uint32
	DescriptorAddress   uint64
	AccelerationAddress uint64
	IndirectDrawAddress uint64
	InstanceCount       uint32
	_                   uint32
}

const SizeOfDrawInstance = 96

func DefaultDrawInstance() DrawInstance {
	return DrawInstance{
		Transform:     vm.IdentityAffine(),
		MeshID:        NoMesh,
		InstanceCount: 1,
	}
}

// IndirectCommand has the layout of VkDrawIndirectCommand.
type IndirectCommand struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

const SizeOfIndirectCommand = 16
