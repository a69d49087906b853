package renderer

import (
	"errors"
	"testing"

	"GPU_scene_data/gpu"
	"GPU_scene_data/gpu/memgpu"
	"GPU_scene_data/model"
	vm "GPU_scene_data/vector_math"
)

func TestSingleTriangleSingleInstance(t *testing.T) {
	f := newTriangleFixture(t)
	mesh := f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{mesh}, DefaultSceneInfo())

	r := model.DefaultInstance()
	r.Transform = vm.NewTranslation(0, 0, -2)
	if _, err := scene.PushInstance(r); err != nil {
		t.Fatal(err)
	}
	q := f.dev.Queue()
	if err := mesh.Flush(q); err != nil {
		t.Fatal(err)
	}
	if err := scene.Flush(q); err != nil {
		t.Fatal(err)
	}

	if scene.PrimitiveCount() != 1 {
		t.Errorf("expected 1 top-level primitive, got %d", scene.PrimitiveCount())
	}
	meshAddr, _ := mesh.DeviceAddress()
	if got := scene.Instance(0).AccelerationAddress; got != meshAddr {
		t.Errorf("instance references %#x, mesh is at %#x", got, meshAddr)
	}

	top := scene.Structure().(*memgpu.Structure)
	if top.Builds() != 1 || top.PrimitiveCount() != 1 {
		t.Errorf("expected one executed build over 1 instance")
	}
	natives, err := model.Decode[model.NativeInstance](top.Instances())
	if err != nil {
		t.Fatal(err)
	}
	if natives[0].AccelerationReference != meshAddr || natives[0].Mask() != 0xFF {
		t.Errorf("build read a wrong native instance: %+v", natives[0])
	}
	if natives[0].Transform != r.Transform {
		t.Errorf("transform not projected into the native record")
	}
	records := readBack[model.InstanceRecord](t, scene.InstanceBuffer())
	if records[0].DescriptorAddress != mesh.DescriptorAddress() || records[0].SubMeshCount != 1 {
		t.Errorf("instance record lacks mesh derived fields: %+v", records[0])
	}
}

func TestInstanceStaleness(t *testing.T) {
	f := newTriangleFixture(t)
	mesh := f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{mesh}, DefaultSceneInfo())

	a, err := mesh.DeviceAddress()
	if err != nil {
		t.Fatal(err)
	}
	scene.PushInstance(model.DefaultInstance())

	// growing the mesh reallocates it at a new address
	mesh.PushSubMesh(f.subMesh(1))
	a2, err := mesh.DeviceAddress()
	if err != nil {
		t.Fatal(err)
	}
	if a2 == a {
		t.Fatalf("rebuild kept the address")
	}
	if got := scene.Instance(0).AccelerationAddress; got != a {
		t.Errorf("cached address should stay %#x until reconciled, got %#x", a, got)
	}
	if stale := scene.StaleInstances(); len(stale) != 1 || stale[0] != 0 {
		t.Errorf("expected instance 0 to be stale, got %v", stale)
	}
	err = scene.BuildCommand(f.dev.NewCommands())
	var se *StaleError
	if !errors.As(err, &se) || !errors.Is(err, ErrStale) {
		t.Fatalf("expected a stale error, got %v", err)
	}

	if err := scene.SetGeometryReferences([]*MeshStructure{mesh}); err != nil {
		t.Fatal(err)
	}
	if got := scene.Instance(0).AccelerationAddress; got != a2 {
		t.Errorf("expected %#x after reconciliation, got %#x", a2, got)
	}
	if scene.Instance(0).SubMeshCount != 2 {
		t.Errorf("sub-mesh count not refreshed")
	}
	if err := scene.BuildCommand(f.dev.NewCommands()); err != nil {
		t.Errorf("reconciled scene should build: %v", err)
	}
}

func TestPendingRebuildIsStale(t *testing.T) {
	f := newTriangleFixture(t)
	mesh := f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{mesh}, DefaultSceneInfo())
	scene.PushInstance(model.DefaultInstance())

	mesh.SetSubMesh(0, f.subMesh(4))
	if len(scene.StaleInstances()) != 1 {
		t.Errorf("an instance of a mesh awaiting reallocation must count as stale")
	}
}

func TestSparseInstanceGrowth(t *testing.T) {
	f := newTriangleFixture(t)
	mesh := f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{mesh}, DefaultSceneInfo())

	r := model.DefaultInstance()
	r.Mask = 0x0F
	r.ShaderRecordOffset = 3
	if i, err := scene.ChangeInstance(5, r); err != nil || i != 5 {
		t.Fatalf("ChangeInstance returned %d, %v", i, err)
	}
	if scene.InstanceCount() != 6 {
		t.Fatalf("expected 6 instances, got %d", scene.InstanceCount())
	}
	for i := 0; i < 5; i++ {
		if scene.Instance(i) != model.DefaultInstance() {
			t.Errorf("instance %d is not a default record: %+v", i, scene.Instance(i))
		}
	}
	got := scene.Instance(5)
	if got.Mask != 0x0F || got.ShaderRecordOffset != 3 || got.AccelerationAddress == 0 {
		t.Errorf("instance 5 was not stored and accepted: %+v", got)
	}

	if err := mesh.Flush(f.dev.Queue()); err != nil {
		t.Fatal(err)
	}
	if err := scene.Flush(f.dev.Queue()); err != nil {
		t.Fatal(err)
	}
	if scene.PrimitiveCount() != 6 {
		t.Errorf("expected 6 top-level primitives, got %d", scene.PrimitiveCount())
	}
}

func TestSceneUnresolvedMesh(t *testing.T) {
	f := newTriangleFixture(t)
	scene := NewSceneStructure(f.dev, nil, DefaultSceneInfo())
	r := model.DefaultInstance()
	r.MeshID = 3
	_, err := scene.PushInstance(r)
	var ue *UnresolvedError
	if !errors.As(err, &ue) || ue.Index != 3 {
		t.Errorf("expected unresolved mesh 3, got %v", err)
	}
	if scene.InstanceCount() != 0 {
		t.Errorf("rejected instance was stored")
	}
}

func TestSceneResizesWithInstanceCount(t *testing.T) {
	f := newTriangleFixture(t)
	mesh := f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{mesh}, DefaultSceneInfo())
	scene.PushInstance(model.DefaultInstance())

	first := scene.DeviceAddress()
	if scene.DeviceAddress() != first {
		t.Errorf("unchanged instance count reallocated")
	}
	scene.PushInstance(model.DefaultInstance())
	cmd := f.dev.NewCommands()
	if err := scene.BuildCommand(cmd); err != nil {
		t.Fatal(err)
	}
	if scene.DeviceAddress() == first {
		t.Errorf("structure was not resized for 2 instances")
	}
	b := cmd.Builds()[0]
	if b.Build.Kind != gpu.TopLevel || b.Build.Flags != gpu.BuildPreferFastTrace || b.Ranges[0].PrimitiveCount != 2 {
		t.Errorf("unexpected top-level build %+v", b)
	}
	if b.Build.Geometries[0].Instances.Data != scene.NativeBuffer().DeviceAddress() {
		t.Errorf("build does not read the native instance buffer")
	}
}

func TestDestroyedMeshMakesInstanceStale(t *testing.T) {
	f := newTriangleFixture(t)
	mesh := f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{mesh}, DefaultSceneInfo())
	if _, err := scene.PushInstance(model.DefaultInstance()); err != nil {
		t.Fatal(err)
	}
	mesh.Destroy()
	if stale := scene.StaleInstances(); len(stale) != 1 || stale[0] != 0 {
		t.Errorf("expected instance 0 stale after its mesh was destroyed, got %v", stale)
	}
	if err := scene.BuildCommand(f.dev.NewCommands()); !errors.Is(err, ErrStale) {
		t.Errorf("expected a stale error, got %v", err)
	}
}

func TestSceneReconciliationIsAllOrNothing(t *testing.T) {
	f := newTriangleFixture(t)
	a, b := f.mesh(t, 1), f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{a, b}, DefaultSceneInfo())
	for id := uint32(0); id < 2; id++ {
		r := model.DefaultInstance()
		r.MeshID = id
		if _, err := scene.PushInstance(r); err != nil {
			t.Fatal(err)
		}
	}
	before := scene.Instance(0)
	a.PushSubMesh(f.subMesh(1))

	if err := scene.SetGeometryReferences([]*MeshStructure{a}); err == nil {
		t.Fatal("expected an error for the dropped mesh")
	}
	if scene.Instance(0) != before {
		t.Errorf("instance 0 changed by a failed reconciliation")
	}
	if err := scene.SetGeometryReferences([]*MeshStructure{a, b}); err != nil {
		t.Fatal(err)
	}
	if len(scene.StaleInstances()) != 0 {
		t.Errorf("reconciliation left stale instances: %v", scene.StaleInstances())
	}
}
