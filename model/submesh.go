package model

import (
	"GPU_scene_data/gpu"
	vm "GPU_scene_data/vector_math"
)

// NoIndex marks an absent registry reference.
const NoIndex = ^uint32(0)

type SubMeshFlags uint32

const (
	SubMeshOpaque SubMeshFlags = 1 << iota
	SubMeshHalfPositions
	SubMeshTexcoords
	SubMeshNormals
	SubMeshTangents
	SubMeshColors
)

// VertexRef locates positions through a registry index.
type VertexRef struct {
	RegistryIndex  uint32
	Stride         uint32
	FirstVertex    uint32
	MaxVertexIndex uint32
}

// IndexRef locates indices through a registry index. Type uses the gpu.IndexType encoding.
type IndexRef struct {
	RegistryIndex uint32
	Type          uint32
	FirstIndex    uint32
}

// Attributes are registry indices of optional per-vertex streams, NoIndex when absent.
type Attributes struct {
	Texcoord uint32
	Normal   uint32
	Tangent  uint32
	Color    uint32
}

// SubMeshDescriptor is one geometry of a mesh. The record doubles as the per-geometry transform source of the
// bottom-level build, which reads Transform at offset SizeOfSubMesh*i, so the size stays a multiple of 16.
type SubMeshDescriptor struct {
	Transform       vm.Affine
	Flags           SubMeshFlags
	Vertex          VertexRef
	Index           IndexRef
	PrimitiveCount  uint32
	MaterialBinding uint32
	Attributes      Attributes
	_               [8]byte
}

const SizeOfSubMesh = 112

// DefaultSubMesh is what gaps are filled with: an identity transform and no geometry.
func DefaultSubMesh() SubMeshDescriptor {
	return SubMeshDescriptor{
		Transform: vm.IdentityAffine(),
		Vertex:    VertexRef{RegistryIndex: NoIndex},
		Index:     IndexRef{RegistryIndex: NoIndex, Type: uint32(gpu.IndexNone)},
		Attributes: Attributes{
			Texcoord: NoIndex,
			Normal:   NoIndex,
			Tangent:  NoIndex,
			Color:    NoIndex,
		},
	}
}

func (d SubMeshDescriptor) IndexType() gpu.IndexType {
	return gpu.IndexType(d.Index.Type)
}

func (d SubMeshDescriptor) Indexed() bool {
	return d.IndexType() != gpu.IndexNone
}

func (d SubMeshDescriptor) VertexFormat() gpu.VertexFormat {
	if d.Flags&SubMeshHalfPositions != 0 {
		return gpu.VertexHalf3
	}
	return gpu.VertexFloat3
}

// GeometryFlags translates the descriptor flags into builder geometry flags.
func (d SubMeshDescriptor) GeometryFlags() gpu.GeometryFlags {
	if d.Flags&SubMeshOpaque != 0 {
		return gpu.GeometryOpaque
	}
	return 0
}
