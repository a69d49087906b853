package gpu

// StructureKind distinguishes the two acceleration structure levels.
type StructureKind int

const (
	BottomLevel StructureKind = iota
	TopLevel
)

func (k StructureKind) String() string {
	if k == TopLevel {
		return "top-level"
	}
	return "bottom-level"
}

// BuildFlags mirror VkBuildAccelerationStructureFlagBitsKHR.
type BuildFlags uint32

const (
	BuildAllowUpdate     BuildFlags = 0x1
	BuildAllowCompaction BuildFlags = 0x2
	BuildPreferFastTrace BuildFlags = 0x4
	BuildPreferFastBuild BuildFlags = 0x8
)

// GeometryKind is the kind of one builder geometry entry.
type GeometryKind int

const (
	GeometryTriangles GeometryKind = iota
	GeometryInstances
)

// GeometryFlags mirror VkGeometryFlagBitsKHR.
type GeometryFlags uint32

const (
	GeometryOpaque                      GeometryFlags = 0x1
	GeometryNoDuplicateAnyHitInvocation GeometryFlags = 0x2
)

// VertexFormat of triangle positions.
type VertexFormat int

const (
	VertexFloat3 VertexFormat = iota
	VertexHalf3
)

// IndexType of triangle indices.
type IndexType int

const (
	IndexNone IndexType = iota
	IndexUint32
	IndexUint16
	IndexUint8
)

// IndexSize is the byte size of one index, zero for IndexNone.
func (t IndexType) IndexSize() uint32 {
	switch t {
	case IndexUint32:
		return 4
	case IndexUint16:
		return 2
	case IndexUint8:
		return 1
	}
	return 0
}

// Triangles describes triangle geometry by raw device addresses.
type Triangles struct {
	VertexFormat  VertexFormat
	VertexData    uint64
	VertexStride  uint64
	MaxVertex     uint32
	IndexType     IndexType
	IndexData     uint64
	TransformData uint64
}

// Instances describes a tightly packed array of native instance records.
type Instances struct {
	Data            uint64
	ArrayOfPointers bool
}

// Geometry is one builder geometry entry. Only the member matching Kind is read.
type Geometry struct {
	Kind      GeometryKind
	Flags     GeometryFlags
	Triangles Triangles
	Instances Instances
}

// BuildRange mirrors VkAccelerationStructureBuildRangeInfoKHR.
type BuildRange struct {
	PrimitiveCount  uint32
	PrimitiveOffset uint32
	FirstVertex     uint32
	TransformOffset uint32
}

// BuildSizes is the answer to a size query.
type BuildSizes struct {
	StructureSize uint64
	ScratchSize   uint64
}

// BuildInfo is everything a build command needs apart from its ranges.
type BuildInfo struct {
	Kind           StructureKind
	Flags          BuildFlags
	Geometries     []Geometry
	Destination    AccelerationStructure
	ScratchAddress uint64
}
