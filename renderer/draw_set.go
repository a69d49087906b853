package renderer

import (
	"fmt"
	"log"

	"GPU_scene_data/gpu"
	"GPU_scene_data/model"
)

type DrawSetInfo struct {
	MaxInstanceCount int
}

func DefaultDrawSetInfo() DrawSetInfo {
	return DrawSetInfo{MaxInstanceCount: 128}
}

// DrawSet keeps the raster side of the scene: one draw instance per scene instance and, for each, a device
// buffer with one indirect draw command per sub-mesh. The commands are written by GPU work; this type only sizes
// the buffers and publishes their addresses.
type DrawSet struct {
	dev  gpu.Device
	info DrawSetInfo

	meshes      []*MeshStructure
	instances   []model.DrawInstance
	generations []uint64
	indirect    []gpu.Buffer

	records *StagedBuffer[model.DrawInstance]
	set     descriptorSet
}

func NewDrawSet(dev gpu.Device, meshes []*MeshStructure, info DrawSetInfo) *DrawSet {
	if info.MaxInstanceCount <= 0 {
		info.MaxInstanceCount = DefaultDrawSetInfo().MaxInstanceCount
	}
	return &DrawSet{
		dev:     dev,
		info:    info,
		meshes:  meshes,
		records: NewStagedBuffer[model.DrawInstance](dev, info.MaxInstanceCount, gpu.UsageStorage),
	}
}

// accept copies mesh derived fields into d. Instances with MeshID == model.NoMesh keep the sub-mesh count the
// caller gave them.
func (ds *DrawSet) accept(i int, d *model.DrawInstance) (uint64, error) {
	if d.MeshID == model.NoMesh {
		return 0, nil
	}
	mesh, err := resolveMesh(ds.meshes, "draw instance", i, d.MeshID)
	if err != nil {
		return 0, err
	}
	addr, err := mesh.DeviceAddress()
	if err != nil {
		return 0, fmt.Errorf("draw instance %d: %w", i, err)
	}
	d.AccelerationAddress = addr
	d.DescriptorAddress = mesh.DescriptorAddress()
	d.SubMeshCount = uint32(mesh.SubMeshCount())
	return mesh.Generation(), nil
}

// allocIndirect (re)creates the indirect buffer of instance i when its sub-mesh count is nonzero and changed.
// A count of zero releases the buffer.
func (ds *DrawSet) allocIndirect(i int) {
	for len(ds.indirect) <= i {
		ds.indirect = append(ds.indirect, nil)
	}
	d := &ds.instances[i]
	size := uint64(d.SubMeshCount) * model.SizeOfIndirectCommand
	old := ds.indirect[i]
	if old != nil && old.Size() == size {
		d.IndirectDrawAddress = old.DeviceAddress()
		return
	}
	if old != nil {
		old.Destroy()
		ds.indirect[i] = nil
	}
	if size == 0 {
		d.IndirectDrawAddress = 0
		return
	}
	buf, err := ds.dev.CreateBuffer(size,
		gpu.UsageIndirect|gpu.UsageStorage|gpu.UsageTransferSrc|gpu.UsageTransferDst|gpu.UsageDeviceAddress,
		gpu.MemoryDeviceLocal)
	if err != nil {
		log.Panicf("Failed to create indirect buffer of %d bytes: %s", size, err)
	}
	ds.indirect[i] = buf
	d.IndirectDrawAddress = buf.DeviceAddress()
}

func (ds *DrawSet) PushInstance(d model.DrawInstance) (int, error) {
	i := len(ds.instances)
	if i >= ds.info.MaxInstanceCount {
		return -1, &CapacityError{Capacity: ds.info.MaxInstanceCount, Requested: i + 1}
	}
	gen, err := ds.accept(i, &d)
	if err != nil {
		return -1, err
	}
	ds.instances = append(ds.instances, d)
	ds.generations = append(ds.generations, gen)
	ds.allocIndirect(i)
	return i, nil
}

// ChangeInstance stores d at i, filling gaps with DefaultDrawInstance records.
func (ds *DrawSet) ChangeInstance(i int, d model.DrawInstance) (int, error) {
	if i < 0 || i >= ds.info.MaxInstanceCount {
		return -1, &CapacityError{Capacity: ds.info.MaxInstanceCount, Requested: i + 1}
	}
	gen, err := ds.accept(i, &d)
	if err != nil {
		return -1, err
	}
	for len(ds.instances) <= i {
		ds.instances = append(ds.instances, model.DefaultDrawInstance())
		ds.generations = append(ds.generations, 0)
	}
	ds.instances[i] = d
	ds.generations[i] = gen
	ds.allocIndirect(i)
	return i, nil
}

func (ds *DrawSet) Instance(i int) model.DrawInstance { return ds.instances[i] }

func (ds *DrawSet) InstanceCount() int { return len(ds.instances) }

// IndirectBuffer returns the indirect buffer of instance i, nil when it has none.
func (ds *DrawSet) IndirectBuffer(i int) gpu.Buffer {
	if i >= len(ds.indirect) {
		return nil
	}
	return ds.indirect[i]
}

// SetGeometryReferences replaces the mesh list, re-resolves every instance that references a mesh and resizes
// indirect buffers whose sub-mesh count changed. If any instance fails to resolve, the set keeps its previous
// mesh list and instances.
func (ds *DrawSet) SetGeometryReferences(meshes []*MeshStructure) error {
	old := ds.meshes
	ds.meshes = meshes
	resolved := make([]model.DrawInstance, len(ds.instances))
	generations := make([]uint64, len(ds.instances))
	for i := range ds.instances {
		resolved[i] = ds.instances[i]
		gen, err := ds.accept(i, &resolved[i])
		if err != nil {
			ds.meshes = old
			return err
		}
		generations[i] = gen
	}
	ds.instances = resolved
	ds.generations = generations
	for i := range ds.instances {
		ds.allocIndirect(i)
	}
	return nil
}

// StaleInstances lists instances whose mesh was reallocated, or is about to be, since acceptance.
func (ds *DrawSet) StaleInstances() []int {
	var stale []int
	for i, d := range ds.instances {
		if d.MeshID == model.NoMesh || ds.generations[i] == 0 {
			continue
		}
		if int(d.MeshID) >= len(ds.meshes) || ds.meshes[d.MeshID] == nil {
			stale = append(stale, i)
			continue
		}
		if m := ds.meshes[d.MeshID]; m.Generation() != ds.generations[i] || m.Reallocating() {
			stale = append(stale, i)
		}
	}
	return stale
}

// BuildCommand stages the draw instances. Indirect buffer contents are left to GPU work.
func (ds *DrawSet) BuildCommand(cmd gpu.CommandContext) error {
	if stale := ds.StaleInstances(); len(stale) > 0 {
		return &StaleError{Instances: stale}
	}
	if _, err := ds.records.WriteAll(ds.instances); err != nil {
		return err
	}
	ds.records.EnqueueUpload(cmd)
	return nil
}

func (ds *DrawSet) Flush(q gpu.Queue) error {
	var berr error
	err := q.SubmitOnce(func(cmd gpu.CommandContext) {
		berr = ds.BuildCommand(cmd)
	})
	if berr != nil {
		return berr
	}
	return err
}

func (ds *DrawSet) InstanceBuffer() gpu.Buffer { return ds.records.DeviceBuffer() }

// MakeDescriptorSet binds the draw instances and packs the indirect buffers from element 0.
func (ds *DrawSet) MakeDescriptorSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	ranges, cerr := contiguous(ds.indirect, IndirectBufferSlots)
	set, err := ds.set.make(ds.dev, layout, []gpu.DescriptorWrite{
		{Binding: 0, Kind: gpu.DescriptorStorageBuffer, Buffers: []gpu.BufferRange{{Buffer: ds.records.DeviceBuffer()}}},
		{Binding: 1, Kind: gpu.DescriptorStorageBuffer, Buffers: ranges},
	})
	if err != nil {
		return nil, err
	}
	return set, cerr
}

func (ds *DrawSet) Destroy() {
	for _, b := range ds.indirect {
		if b != nil {
			b.Destroy()
		}
	}
	ds.indirect = nil
	ds.records.Destroy()
}
