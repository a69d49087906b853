package renderer

import (
	"log"

	"GPU_scene_data/gpu"
	"GPU_scene_data/model"
)

// MeshState is where a mesh is in its build lifecycle.
type MeshState int

const (
	// MeshEmpty has no sub-meshes.
	MeshEmpty MeshState = iota
	// MeshDescribed has sub-meshes but no structure matching their layout.
	MeshDescribed
	// MeshSized has queried build sizes and is allocating.
	MeshSized
	// MeshBuilt has a valid structure and the last recorded build matches the sub-meshes.
	MeshBuilt
	// MeshBuilding was edited after its last build. Storage is reused, the next BuildCommand re-records over it.
	MeshBuilding
)

func (s MeshState) String() string {
	switch s {
	case MeshEmpty:
		return "empty"
	case MeshDescribed:
		return "described"
	case MeshSized:
		return "sized"
	case MeshBuilt:
		return "built"
	case MeshBuilding:
		return "building"
	}
	return "unknown"
}

type MeshInfo struct {
	MaxSubMeshCount int
	Flags           gpu.BuildFlags
}

func DefaultMeshInfo() MeshInfo {
	return MeshInfo{
		MaxSubMeshCount: 128,
		Flags:           gpu.BuildPreferFastBuild,
	}
}

// geometryLayout is everything about one geometry that build sizes depend on.
type geometryLayout struct {
	primitives uint32
	format     gpu.VertexFormat
	indexType  gpu.IndexType
	maxVertex  uint32
	flags      gpu.GeometryFlags
}

func layoutOf(d model.SubMeshDescriptor) geometryLayout {
	return geometryLayout{
		primitives: d.PrimitiveCount,
		format:     d.VertexFormat(),
		indexType:  d.IndexType(),
		maxVertex:  d.Vertex.MaxVertexIndex,
		flags:      d.GeometryFlags(),
	}
}

// meshResources are the resources of one structure allocation. layout is what the sizes were queried for.
type meshResources struct {
	sizes     gpu.BuildSizes
	storage   gpu.Buffer
	scratch   gpu.Buffer
	structure gpu.AccelerationStructure
	layout    []geometryLayout
}

func (r *meshResources) destroy() {
	r.structure.Destroy()
	r.storage.Destroy()
	r.scratch.Destroy()
}

// MeshStructure is one bottom-level acceleration structure over a list of sub-mesh descriptors. The descriptors
// are mirrored to the device, where they also serve as the per-geometry transform source of the build.
type MeshStructure struct {
	dev      gpu.Device
	registry *Registry
	info     MeshInfo

	subMeshes   []model.SubMeshDescriptor
	descriptors *StagedBuffer[model.SubMeshDescriptor]

	state      MeshState
	built      *meshResources
	generation uint64

	set descriptorSet
}

func NewMeshStructure(dev gpu.Device, registry *Registry, info MeshInfo) *MeshStructure {
	if info.MaxSubMeshCount <= 0 {
		info.MaxSubMeshCount = DefaultMeshInfo().MaxSubMeshCount
	}
	return &MeshStructure{
		dev:         dev,
		registry:    registry,
		info:        info,
		descriptors: NewStagedBuffer[model.SubMeshDescriptor](dev, info.MaxSubMeshCount, gpu.UsageStorage|gpu.UsageAccelerationBuildInput),
	}
}

// PushSubMesh appends a descriptor. Registry indices are not checked until the next make or build.
func (m *MeshStructure) PushSubMesh(d model.SubMeshDescriptor) (int, error) {
	if len(m.subMeshes) >= m.info.MaxSubMeshCount {
		return -1, &CapacityError{Capacity: m.info.MaxSubMeshCount, Requested: len(m.subMeshes) + 1}
	}
	m.subMeshes = append(m.subMeshes, d)
	m.edited()
	return len(m.subMeshes) - 1, nil
}

// SetSubMesh overwrites descriptor i, filling any gap with DefaultSubMesh.
func (m *MeshStructure) SetSubMesh(i int, d model.SubMeshDescriptor) error {
	if i < 0 || i >= m.info.MaxSubMeshCount {
		return &CapacityError{Capacity: m.info.MaxSubMeshCount, Requested: i + 1}
	}
	for len(m.subMeshes) <= i {
		m.subMeshes = append(m.subMeshes, model.DefaultSubMesh())
	}
	m.subMeshes[i] = d
	m.edited()
	return nil
}

// edited moves the state after a descriptor change. Keeping every geometry layout keeps the allocation; any change
// that can alter build sizes (primitive count, vertex format, index type, max vertex, geometry flags) reallocates.
func (m *MeshStructure) edited() {
	switch {
	case m.built == nil:
		m.state = MeshDescribed
	case m.sameLayout():
		m.state = MeshBuilding
	default:
		m.state = MeshDescribed
	}
}

func (m *MeshStructure) sameLayout() bool {
	if len(m.built.layout) != len(m.subMeshes) {
		return false
	}
	for i, d := range m.subMeshes {
		if m.built.layout[i] != layoutOf(d) {
			return false
		}
	}
	return true
}

func (m *MeshStructure) SubMesh(i int) model.SubMeshDescriptor { return m.subMeshes[i] }

func (m *MeshStructure) SubMeshCount() int { return len(m.subMeshes) }

func (m *MeshStructure) State() MeshState { return m.state }

// Generation counts structure allocations and destruction. Any cached structure or descriptor address is only
// valid for the generation it was read at. Zero means never allocated.
func (m *MeshStructure) Generation() uint64 { return m.generation }

// Reallocating reports that the next make will replace the current structure.
func (m *MeshStructure) Reallocating() bool {
	return m.built != nil && m.state == MeshDescribed
}

// derive turns the descriptor list into builder geometries and ranges in one pass. Registry indices are resolved
// here, so every call sees the registry as it is now.
func (m *MeshStructure) derive() ([]gpu.Geometry, []gpu.BuildRange, error) {
	geometries := make([]gpu.Geometry, len(m.subMeshes))
	ranges := make([]gpu.BuildRange, len(m.subMeshes))
	transforms := m.descriptors.DeviceAddress()

	for i, d := range m.subMeshes {
		tri := gpu.Triangles{
			VertexFormat:  d.VertexFormat(),
			VertexStride:  uint64(d.Vertex.Stride),
			MaxVertex:     d.Vertex.MaxVertexIndex,
			IndexType:     d.IndexType(),
			TransformData: transforms,
		}
		// geometries without primitives are inactive and carry no addresses
		if d.PrimitiveCount > 0 {
			addr, err := m.registry.ResolveAddress(d.Vertex.RegistryIndex)
			if err != nil {
				return nil, nil, &UnresolvedError{Referrer: "sub-mesh", Element: i, Target: "vertex registry index", Index: d.Vertex.RegistryIndex}
			}
			tri.VertexData = addr
			if d.Indexed() {
				addr, err := m.registry.ResolveAddress(d.Index.RegistryIndex)
				if err != nil {
					return nil, nil, &UnresolvedError{Referrer: "sub-mesh", Element: i, Target: "index registry index", Index: d.Index.RegistryIndex}
				}
				tri.IndexData = addr
			}
		}
		geometries[i] = gpu.Geometry{
			Kind:      gpu.GeometryTriangles,
			Flags:     d.GeometryFlags(),
			Triangles: tri,
		}
		ranges[i] = gpu.BuildRange{
			PrimitiveCount:  d.PrimitiveCount,
			PrimitiveOffset: d.Index.FirstIndex * d.IndexType().IndexSize(),
			FirstVertex:     d.Vertex.FirstVertex,
			TransformOffset: uint32(model.SizeOfSubMesh * i),
		}
	}
	return geometries, ranges, nil
}

// BuildRanges derives the ranges the next build would use.
func (m *MeshStructure) BuildRanges() ([]gpu.BuildRange, error) {
	_, ranges, err := m.derive()
	return ranges, err
}

// ensure runs the lazy Described -> Sized -> Built transition when no structure matches the descriptors.
func (m *MeshStructure) ensure() error {
	if len(m.subMeshes) == 0 {
		return ErrEmptyMesh
	}
	if m.built != nil && m.state != MeshDescribed {
		return nil
	}
	geometries, _, err := m.derive()
	if err != nil {
		return err
	}
	counts := make([]uint32, len(m.subMeshes))
	layout := make([]geometryLayout, len(m.subMeshes))
	for i, d := range m.subMeshes {
		counts[i] = d.PrimitiveCount
		layout[i] = layoutOf(d)
	}
	sizes, err := m.dev.AccelerationStructureSizes(gpu.BottomLevel, m.info.Flags, geometries, counts)
	if err != nil {
		log.Panicf("Failed to query bottom-level build sizes: %s", err)
	}
	if m.built != nil {
		log.Printf("Reallocating bottom-level structure (generation %d)", m.generation)
		m.built.destroy()
		m.built = nil
	}
	m.state = MeshSized

	res := &meshResources{sizes: sizes, layout: layout}
	res.storage, err = m.dev.CreateBuffer(sizes.StructureSize, gpu.UsageAccelerationStorage|gpu.UsageDeviceAddress, gpu.MemoryDeviceLocal)
	if err != nil {
		log.Panicf("Failed to create structure storage of %d bytes: %s", sizes.StructureSize, err)
	}
	res.scratch, err = m.dev.CreateBuffer(sizes.ScratchSize, gpu.UsageStorage|gpu.UsageAccelerationStorage|gpu.UsageDeviceAddress, gpu.MemoryDeviceLocal)
	if err != nil {
		log.Panicf("Failed to create scratch buffer of %d bytes: %s", sizes.ScratchSize, err)
	}
	res.structure, err = m.dev.CreateAccelerationStructure(gpu.BottomLevel, res.storage)
	if err != nil {
		log.Panicf("Failed to create bottom-level structure: %s", err)
	}
	m.built = res
	m.generation++
	m.state = MeshBuilt
	log.Printf("Created bottom-level structure: %d geometries, storage %d, scratch %d", len(counts), sizes.StructureSize, sizes.ScratchSize)
	return nil
}

// DeviceAddress returns the structure address, creating the structure first if needed. The build itself is not
// recorded.
func (m *MeshStructure) DeviceAddress() (uint64, error) {
	if err := m.ensure(); err != nil {
		return 0, err
	}
	return m.built.structure.DeviceAddress(), nil
}

// Structure returns the current structure or nil.
func (m *MeshStructure) Structure() gpu.AccelerationStructure {
	if m.built == nil {
		return nil
	}
	return m.built.structure
}

// Sizes returns the sizes the current structure was allocated with.
func (m *MeshStructure) Sizes() gpu.BuildSizes {
	if m.built == nil {
		return gpu.BuildSizes{}
	}
	return m.built.sizes
}

// BuildCommand stages the descriptors and records one build with one range per sub-mesh. Calling it again before
// submission records a second build that supersedes the first.
func (m *MeshStructure) BuildCommand(cmd gpu.CommandContext) error {
	if err := m.ensure(); err != nil {
		return err
	}
	geometries, ranges, err := m.derive()
	if err != nil {
		return err
	}
	if _, err := m.descriptors.WriteAll(m.subMeshes); err != nil {
		return err
	}
	m.descriptors.EnqueueUpload(cmd)
	cmd.BuildAccelerationStructure(gpu.BuildInfo{
		Kind:           gpu.BottomLevel,
		Flags:          m.info.Flags,
		Geometries:     geometries,
		Destination:    m.built.structure,
		ScratchAddress: m.built.scratch.DeviceAddress(),
	}, ranges)
	m.state = MeshBuilt
	return nil
}

// Flush records BuildCommand and submits it.
func (m *MeshStructure) Flush(q gpu.Queue) error {
	var berr error
	err := q.SubmitOnce(func(cmd gpu.CommandContext) {
		berr = m.BuildCommand(cmd)
	})
	if berr != nil {
		return berr
	}
	return err
}

func (m *MeshStructure) DescriptorBuffer() gpu.Buffer { return m.descriptors.DeviceBuffer() }

func (m *MeshStructure) DescriptorAddress() uint64 { return m.descriptors.DeviceAddress() }

// MakeDescriptorSet binds the descriptor buffer and the structure, creating the structure if needed.
func (m *MeshStructure) MakeDescriptorSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	if err := m.ensure(); err != nil {
		return nil, err
	}
	return m.set.make(m.dev, layout, []gpu.DescriptorWrite{
		{Binding: 0, Kind: gpu.DescriptorStorageBuffer, Buffers: []gpu.BufferRange{{Buffer: m.descriptors.DeviceBuffer()}}},
		{Binding: 1, Kind: gpu.DescriptorAccelerationStructure, Structures: []gpu.AccelerationStructure{m.built.structure}},
	})
}

// Destroy releases everything the mesh owns and advances the generation, so instances still referencing it read
// as stale.
func (m *MeshStructure) Destroy() {
	if m.built != nil {
		m.built.destroy()
		m.built = nil
		m.generation++
	}
	m.descriptors.Destroy()
	m.state = MeshEmpty
	m.subMeshes = nil
}
