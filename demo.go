package main

import (
	"fmt"
	"log"

	"GPU_scene_data/gpu"
	"GPU_scene_data/model"
	"GPU_scene_data/renderer"
	vm "GPU_scene_data/vector_math"
)

const INSTANCE_COUNT = 3

// sceneData is everything the demo builds for one mesh.
type sceneData struct {
	positions *renderer.StagedBuffer[vm.Vec3]
	indices   *renderer.StagedBuffer[uint32]

	registry  *renderer.Registry
	mesh      *renderer.MeshStructure
	scene     *renderer.SceneStructure
	drawSet   *renderer.DrawSet
	materials *renderer.MaterialSet

	layouts []gpu.DescriptorSetLayout
	sets    []gpu.DescriptorSet
}

// triangle is used when no STL is given.
func triangle() *vm.Mesh {
	return vm.NewMesh([]vm.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}, []uint32{0, 1, 2})
}

// buildScene uploads m, builds its bottom-level structure and a top-level structure holding INSTANCE_COUNT copies
// of it, stages one draw instance and one material, and creates a bindless set per component.
func buildScene(dev gpu.Device, q gpu.Queue, m *vm.Mesh) (*sceneData, error) {
	if len(m.Positions) == 0 || len(m.Indices) == 0 {
		return nil, fmt.Errorf("mesh has no triangles")
	}
	s := &sceneData{
		registry: renderer.NewRegistry(dev, renderer.DefaultRegistryInfo()),
	}
	inputUsage := gpu.UsageAccelerationBuildInput | gpu.UsageStorage

	s.positions = renderer.NewStagedBuffer[vm.Vec3](dev, len(m.Positions), inputUsage|gpu.UsageVertex)
	s.indices = renderer.NewStagedBuffer[uint32](dev, len(m.Indices), inputUsage|gpu.UsageIndex)
	if _, err := s.positions.WriteAll(m.Positions); err != nil {
		return nil, err
	}
	if _, err := s.indices.WriteAll(m.Indices); err != nil {
		return nil, err
	}
	posIdx := s.registry.PushBufferWithBinding(s.positions.DeviceBuffer(), model.Binding{Stride: 12, Format: model.FormatFloat3})
	idxIdx := s.registry.PushBufferWithBinding(s.indices.DeviceBuffer(), model.Binding{Stride: 4, Format: model.FormatUint32})

	sub := model.DefaultSubMesh()
	sub.Flags = model.SubMeshOpaque
	sub.Vertex = model.VertexRef{RegistryIndex: posIdx, Stride: 12, MaxVertexIndex: uint32(len(m.Positions) - 1)}
	sub.Index = model.IndexRef{RegistryIndex: idxIdx, Type: uint32(gpu.IndexUint32)}
	sub.PrimitiveCount = m.TriangleCount()

	s.mesh = renderer.NewMeshStructure(dev, s.registry, renderer.DefaultMeshInfo())
	if _, err := s.mesh.PushSubMesh(sub); err != nil {
		return nil, err
	}
	meshes := []*renderer.MeshStructure{s.mesh}

	// place the copies side by side, each turned a little further around z
	lo, hi := m.Bounds()
	spacing := (hi.X - lo.X) * 1.5
	s.scene = renderer.NewSceneStructure(dev, meshes, renderer.DefaultSceneInfo())
	for i := 0; i < INSTANCE_COUNT; i++ {
		inst := model.DefaultInstance()
		inst.MeshID = 0
		inst.Transform = vm.NewTranslation(float32(i)*spacing, 0, 0).Mul(vm.NewRotationZ(float32(vm.ToRad(22.5*float64(i)))))
		if _, err := s.scene.PushInstance(inst); err != nil {
			return nil, err
		}
	}

	s.drawSet = renderer.NewDrawSet(dev, meshes, renderer.DefaultDrawSetInfo())
	draw := model.DefaultDrawInstance()
	draw.MeshID = 0
	if _, err := s.drawSet.PushInstance(draw); err != nil {
		return nil, err
	}

	s.materials = renderer.NewMaterialSet(dev, renderer.DefaultMaterialSetInfo())
	if _, err := s.materials.PushMaterial(model.DefaultMaterial()); err != nil {
		return nil, err
	}

	// one submission: staging copies first, then the bottom-level build, then the top-level build reading it
	var recordErr error
	err := q.SubmitOnce(func(cmd gpu.CommandContext) {
		s.positions.EnqueueUpload(cmd)
		s.indices.EnqueueUpload(cmd)
		steps := []func(gpu.CommandContext) error{
			s.registry.CopyCommand,
			s.mesh.BuildCommand,
			s.scene.BuildCommand,
			s.drawSet.BuildCommand,
			s.materials.CopyCommand,
		}
		for _, step := range steps {
			if recordErr = step(cmd); recordErr != nil {
				return
			}
		}
	})
	if recordErr != nil {
		return nil, recordErr
	}
	if err != nil {
		return nil, err
	}

	if err := s.makeDescriptorSets(dev); err != nil {
		return nil, err
	}
	meshAddress, _ := s.mesh.DeviceAddress()
	log.Printf("Built mesh structure at %#x (%d triangles) and scene structure at %#x with %d instances",
		meshAddress, sub.PrimitiveCount, s.scene.DeviceAddress(), s.scene.InstanceCount())
	return s, nil
}

func (s *sceneData) makeDescriptorSets(dev gpu.Device) error {
	registryLayout := renderer.RegistryLayout().Create(dev)
	meshLayout := renderer.MeshLayout().Create(dev)
	sceneLayout := renderer.SceneLayout().Create(dev)
	drawLayout := renderer.DrawSetLayout().Create(dev)
	materialLayout := renderer.MaterialLayout().Create(dev)
	s.layouts = []gpu.DescriptorSetLayout{registryLayout, meshLayout, sceneLayout, drawLayout, materialLayout}

	makers := []func() (gpu.DescriptorSet, error){
		func() (gpu.DescriptorSet, error) { return s.registry.MakeDescriptorSet(registryLayout) },
		func() (gpu.DescriptorSet, error) { return s.mesh.MakeDescriptorSet(meshLayout) },
		func() (gpu.DescriptorSet, error) { return s.scene.MakeDescriptorSet(sceneLayout) },
		func() (gpu.DescriptorSet, error) { return s.drawSet.MakeDescriptorSet(drawLayout) },
		func() (gpu.DescriptorSet, error) { return s.materials.MakeDescriptorSet(materialLayout) },
	}
	for _, mk := range makers {
		set, err := mk()
		if err != nil {
			return err
		}
		s.sets = append(s.sets, set)
	}
	log.Printf("Created %d bindless descriptor sets", len(s.sets))
	return nil
}

func (s *sceneData) destroy() {
	s.materials.Destroy()
	s.drawSet.Destroy()
	s.scene.Destroy()
	s.mesh.Destroy()
	s.registry.Destroy()
	s.indices.Destroy()
	s.positions.Destroy()
	for _, l := range s.layouts {
		l.Destroy()
	}
}
