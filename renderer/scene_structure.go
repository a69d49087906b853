package renderer

import (
	"fmt"
	"log"

	"GPU_scene_data/gpu"
	"GPU_scene_data/model"
)

type SceneInfo struct {
	MaxInstanceCount int
	Flags            gpu.BuildFlags
}

func DefaultSceneInfo() SceneInfo {
	return SceneInfo{
		MaxInstanceCount: 128,
		Flags:            gpu.BuildPreferFastTrace,
	}
}

type sceneResources struct {
	sizes     gpu.BuildSizes
	storage   gpu.Buffer
	scratch   gpu.Buffer
	structure gpu.AccelerationStructure
	count     uint32
}

func (r *sceneResources) destroy() {
	r.structure.Destroy()
	r.storage.Destroy()
	r.scratch.Destroy()
}

// SceneStructure is the top-level acceleration structure over a list of instance records. Meshes are referenced
// by position in a caller owned list. An instance copies its mesh's addresses when it is accepted and remembers
// the mesh generation it saw, so a build against a since reallocated mesh fails instead of tracing garbage.
type SceneStructure struct {
	dev  gpu.Device
	info SceneInfo

	meshes      []*MeshStructure
	instances   []model.InstanceRecord
	generations []uint64

	records *StagedBuffer[model.InstanceRecord]
	native  *StagedBuffer[model.NativeInstance]

	built *sceneResources
	set   descriptorSet
}

func NewSceneStructure(dev gpu.Device, meshes []*MeshStructure, info SceneInfo) *SceneStructure {
	if info.MaxInstanceCount <= 0 {
		info.MaxInstanceCount = DefaultSceneInfo().MaxInstanceCount
	}
	return &SceneStructure{
		dev:     dev,
		info:    info,
		meshes:  meshes,
		records: NewStagedBuffer[model.InstanceRecord](dev, info.MaxInstanceCount, gpu.UsageStorage),
		native:  NewStagedBuffer[model.NativeInstance](dev, info.MaxInstanceCount, gpu.UsageStorage|gpu.UsageAccelerationBuildInput),
	}
}

// resolveMesh looks up a mesh id for the instance at position i.
func resolveMesh(meshes []*MeshStructure, referrer string, i int, id uint32) (*MeshStructure, error) {
	if int(id) >= len(meshes) || meshes[id] == nil {
		return nil, &UnresolvedError{Referrer: referrer, Element: i, Target: "mesh", Index: id}
	}
	return meshes[id], nil
}

// accept fills the mesh derived fields of r and returns the mesh generation they belong to.
func (s *SceneStructure) accept(i int, r *model.InstanceRecord) (uint64, error) {
	mesh, err := resolveMesh(s.meshes, "instance", i, r.MeshID)
	if err != nil {
		return 0, err
	}
	addr, err := mesh.DeviceAddress()
	if err != nil {
		return 0, fmt.Errorf("instance %d: %w", i, err)
	}
	r.AccelerationAddress = addr
	r.DescriptorAddress = mesh.DescriptorAddress()
	r.SubMeshCount = uint32(mesh.SubMeshCount())
	return mesh.Generation(), nil
}

// PushInstance accepts and appends r.
func (s *SceneStructure) PushInstance(r model.InstanceRecord) (int, error) {
	i := len(s.instances)
	if i >= s.info.MaxInstanceCount {
		return -1, &CapacityError{Capacity: s.info.MaxInstanceCount, Requested: i + 1}
	}
	gen, err := s.accept(i, &r)
	if err != nil {
		return -1, err
	}
	s.instances = append(s.instances, r)
	s.generations = append(s.generations, gen)
	return i, nil
}

// ChangeInstance accepts r and stores it at i. Gaps are filled with DefaultInstance records, which reference no
// structure and stay inactive in the build.
func (s *SceneStructure) ChangeInstance(i int, r model.InstanceRecord) (int, error) {
	if i < 0 || i >= s.info.MaxInstanceCount {
		return -1, &CapacityError{Capacity: s.info.MaxInstanceCount, Requested: i + 1}
	}
	gen, err := s.accept(i, &r)
	if err != nil {
		return -1, err
	}
	for len(s.instances) <= i {
		s.instances = append(s.instances, model.DefaultInstance())
		s.generations = append(s.generations, 0)
	}
	s.instances[i] = r
	s.generations[i] = gen
	return i, nil
}

func (s *SceneStructure) Instance(i int) model.InstanceRecord { return s.instances[i] }

func (s *SceneStructure) InstanceCount() int { return len(s.instances) }

// SetMeshes replaces the mesh list without touching accepted instances.
func (s *SceneStructure) SetMeshes(meshes []*MeshStructure) {
	s.meshes = meshes
}

// SetGeometryReferences replaces the mesh list and re-accepts every accepted instance against it. This is the
// reconciliation point after meshes were rebuilt. If any instance fails to resolve, nothing changes.
func (s *SceneStructure) SetGeometryReferences(meshes []*MeshStructure) error {
	old := s.meshes
	s.meshes = meshes
	resolved := make([]model.InstanceRecord, len(s.instances))
	generations := make([]uint64, len(s.instances))
	for i := range s.instances {
		resolved[i] = s.instances[i]
		if s.generations[i] == 0 {
			continue
		}
		gen, err := s.accept(i, &resolved[i])
		if err != nil {
			s.meshes = old
			return err
		}
		generations[i] = gen
	}
	s.instances = resolved
	s.generations = generations
	return nil
}

// StaleInstances lists accepted instances whose mesh was reallocated, or is about to be, since acceptance.
func (s *SceneStructure) StaleInstances() []int {
	var stale []int
	for i, gen := range s.generations {
		if gen == 0 {
			continue
		}
		id := s.instances[i].MeshID
		if int(id) >= len(s.meshes) || s.meshes[id] == nil {
			stale = append(stale, i)
			continue
		}
		if m := s.meshes[id]; m.Generation() != gen || m.Reallocating() {
			stale = append(stale, i)
		}
	}
	return stale
}

// ensure (re)creates the structure when none exists or the instance count changed.
func (s *SceneStructure) ensure() {
	count := uint32(len(s.instances))
	if s.built != nil && s.built.count == count {
		return
	}
	geometries := []gpu.Geometry{s.geometry()}
	sizes, err := s.dev.AccelerationStructureSizes(gpu.TopLevel, s.info.Flags, geometries, []uint32{count})
	if err != nil {
		log.Panicf("Failed to query top-level build sizes: %s", err)
	}
	if s.built != nil {
		log.Printf("Reallocating top-level structure for %d instances", count)
		s.built.destroy()
		s.built = nil
	}
	res := &sceneResources{sizes: sizes, count: count}
	res.storage, err = s.dev.CreateBuffer(sizes.StructureSize, gpu.UsageAccelerationStorage|gpu.UsageDeviceAddress, gpu.MemoryDeviceLocal)
	if err != nil {
		log.Panicf("Failed to create structure storage of %d bytes: %s", sizes.StructureSize, err)
	}
	res.scratch, err = s.dev.CreateBuffer(sizes.ScratchSize, gpu.UsageStorage|gpu.UsageAccelerationStorage|gpu.UsageDeviceAddress, gpu.MemoryDeviceLocal)
	if err != nil {
		log.Panicf("Failed to create scratch buffer of %d bytes: %s", sizes.ScratchSize, err)
	}
	res.structure, err = s.dev.CreateAccelerationStructure(gpu.TopLevel, res.storage)
	if err != nil {
		log.Panicf("Failed to create top-level structure: %s", err)
	}
	s.built = res
	log.Printf("Created top-level structure: %d instances, storage %d, scratch %d", count, sizes.StructureSize, sizes.ScratchSize)
}

func (s *SceneStructure) geometry() gpu.Geometry {
	return gpu.Geometry{
		Kind:      gpu.GeometryInstances,
		Instances: gpu.Instances{Data: s.native.DeviceAddress()},
	}
}

// DeviceAddress returns the structure address, creating the structure first if needed.
func (s *SceneStructure) DeviceAddress() uint64 {
	s.ensure()
	return s.built.structure.DeviceAddress()
}

func (s *SceneStructure) Structure() gpu.AccelerationStructure {
	if s.built == nil {
		return nil
	}
	return s.built.structure
}

// PrimitiveCount is the instance count of the current structure.
func (s *SceneStructure) PrimitiveCount() uint32 {
	if s.built == nil {
		return 0
	}
	return s.built.count
}

// BuildCommand projects the instances into native build records, stages both arrays and records the build.
// Instances whose mesh moved since acceptance fail the build with a *StaleError.
func (s *SceneStructure) BuildCommand(cmd gpu.CommandContext) error {
	if stale := s.StaleInstances(); len(stale) > 0 {
		return &StaleError{Instances: stale}
	}
	s.ensure()

	natives := make([]model.NativeInstance, len(s.instances))
	for i, r := range s.instances {
		natives[i] = r.Native(uint32(i))
	}
	if _, err := s.records.WriteAll(s.instances); err != nil {
		return err
	}
	if _, err := s.native.WriteAll(natives); err != nil {
		return err
	}
	s.records.EnqueueUpload(cmd)
	s.native.EnqueueUpload(cmd)

	cmd.BuildAccelerationStructure(gpu.BuildInfo{
		Kind:           gpu.TopLevel,
		Flags:          s.info.Flags,
		Geometries:     []gpu.Geometry{s.geometry()},
		Destination:    s.built.structure,
		ScratchAddress: s.built.scratch.DeviceAddress(),
	}, []gpu.BuildRange{{PrimitiveCount: s.built.count}})
	return nil
}

// Flush records BuildCommand and submits it.
func (s *SceneStructure) Flush(q gpu.Queue) error {
	var berr error
	err := q.SubmitOnce(func(cmd gpu.CommandContext) {
		berr = s.BuildCommand(cmd)
	})
	if berr != nil {
		return berr
	}
	return err
}

// InstanceBuffer is the device copy of the instance records.
func (s *SceneStructure) InstanceBuffer() gpu.Buffer { return s.records.DeviceBuffer() }

// NativeBuffer is the device copy of the native build records.
func (s *SceneStructure) NativeBuffer() gpu.Buffer { return s.native.DeviceBuffer() }

// MakeDescriptorSet binds instances, the structure and the descriptor buffers of the referenced meshes. Nil meshes
// are skipped when packing, so a sparse mesh list shifts later meshes to lower elements.
func (s *SceneStructure) MakeDescriptorSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	s.ensure()
	meshBuffers := make([]gpu.Buffer, len(s.meshes))
	for i, m := range s.meshes {
		if m != nil {
			meshBuffers[i] = m.DescriptorBuffer()
		}
	}
	ranges, cerr := contiguous(meshBuffers, MeshBufferSlots)
	set, err := s.set.make(s.dev, layout, []gpu.DescriptorWrite{
		{Binding: 0, Kind: gpu.DescriptorStorageBuffer, Buffers: []gpu.BufferRange{{Buffer: s.records.DeviceBuffer()}}},
		{Binding: 1, Kind: gpu.DescriptorAccelerationStructure, Structures: []gpu.AccelerationStructure{s.built.structure}},
		{Binding: 2, Kind: gpu.DescriptorStorageBuffer, Buffers: ranges},
	})
	if err != nil {
		return nil, err
	}
	return set, cerr
}

// Destroy releases the structure and staging buffers. Meshes belong to the caller.
func (s *SceneStructure) Destroy() {
	if s.built != nil {
		s.built.destroy()
		s.built = nil
	}
	s.records.Destroy()
	s.native.Destroy()
}
