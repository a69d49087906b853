package main

import (
	"testing"

	"GPU_scene_data/gpu/memgpu"
	"GPU_scene_data/model"
	vm "GPU_scene_data/vector_math"
)

func TestBuildSceneOnSoftwareDevice(t *testing.T) {
	dev := memgpu.NewDevice()
	quad := vm.NewMesh([]vm.Vec3{{X: 0}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}, []uint32{0, 1, 2, 0, 2, 3})

	s, err := buildScene(dev, dev.Queue(), quad)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Submissions() != 1 {
		t.Errorf("expected everything recorded into one submission, got %d", dev.Submissions())
	}
	if s.scene.InstanceCount() != INSTANCE_COUNT || s.scene.PrimitiveCount() != INSTANCE_COUNT {
		t.Errorf("expected %d instances, got %d", INSTANCE_COUNT, s.scene.InstanceCount())
	}
	if len(s.sets) != 5 {
		t.Errorf("expected a descriptor set per component, got %d", len(s.sets))
	}

	bottom := s.mesh.Structure().(*memgpu.Structure)
	if bottom.Builds() != 1 || bottom.PrimitiveCount() != 2 {
		t.Errorf("expected one bottom-level build over 2 triangles, got %d builds over %d", bottom.Builds(), bottom.PrimitiveCount())
	}
	meshAddr, err := s.mesh.DeviceAddress()
	if err != nil {
		t.Fatal(err)
	}
	natives, err := model.Decode[model.NativeInstance](s.scene.Structure().(*memgpu.Structure).Instances())
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range natives {
		if n.AccelerationReference != meshAddr {
			t.Errorf("instance %d references %#x, mesh is at %#x", i, n.AccelerationReference, meshAddr)
		}
		if n.CustomIndex() != uint32(i) {
			t.Errorf("instance %d carries custom index %d", i, n.CustomIndex())
		}
	}
	if len(s.scene.StaleInstances()) != 0 || len(s.drawSet.StaleInstances()) != 0 {
		t.Errorf("nothing should be stale right after the build")
	}

	s.destroy()
	if dev.LiveBuffers() != 0 {
		t.Errorf("%d buffers outlived destroy", dev.LiveBuffers())
	}
}

func TestBuildSceneRejectsEmptyMesh(t *testing.T) {
	dev := memgpu.NewDevice()
	if _, err := buildScene(dev, dev.Queue(), vm.NewMesh(nil, nil)); err == nil {
		t.Errorf("expected an error for a mesh without triangles")
	}
}
