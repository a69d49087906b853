package renderer

import (
	"testing"

	"GPU_scene_data/gpu"
	"GPU_scene_data/gpu/memgpu"
	"GPU_scene_data/model"
)

func TestLayoutsAreBindless(t *testing.T) {
	layouts := map[string]*LayoutBuilder{
		"registry": RegistryLayout(),
		"mesh":     MeshLayout(),
		"scene":    SceneLayout(),
		"draw set": DrawSetLayout(),
		"material": MaterialLayout(),
	}
	for name, lb := range layouts {
		for _, b := range lb.Bindings() {
			if b.Flags&gpu.BindingPartiallyBound == 0 || b.Flags&gpu.BindingUpdateAfterBind == 0 || b.Flags&gpu.BindingUpdateUnusedWhilePending == 0 {
				t.Errorf("%s binding %d is missing bindless flags: %#x", name, b.Binding, b.Flags)
			}
		}
	}
	if RegistryLayout().Bindings()[0].Count != 256 {
		t.Errorf("registry buffer array should be 256 wide")
	}
}

func TestDescriptorSetIsCreatedOnce(t *testing.T) {
	f := newTriangleFixture(t)
	mesh := f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{mesh}, DefaultSceneInfo())
	scene.PushInstance(model.DefaultInstance())
	ds := NewDrawSet(f.dev, []*MeshStructure{mesh}, DefaultDrawSetInfo())
	d := model.DefaultDrawInstance()
	d.MeshID = 0
	ds.PushInstance(d)

	regLayout := RegistryLayout().Create(f.dev)
	meshLayout := MeshLayout().Create(f.dev)
	sceneLayout := SceneLayout().Create(f.dev)
	drawLayout := DrawSetLayout().Create(f.dev)

	makeAll := func() []gpu.DescriptorSet {
		r, err := f.registry.MakeDescriptorSet(regLayout)
		if err != nil {
			t.Fatal(err)
		}
		m, err := mesh.MakeDescriptorSet(meshLayout)
		if err != nil {
			t.Fatal(err)
		}
		s, err := scene.MakeDescriptorSet(sceneLayout)
		if err != nil {
			t.Fatal(err)
		}
		dd, err := ds.MakeDescriptorSet(drawLayout)
		if err != nil {
			t.Fatal(err)
		}
		return []gpu.DescriptorSet{r, m, s, dd}
	}
	first := makeAll()
	second := makeAll()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("set %d was reallocated", i)
		}
	}
	if f.dev.SetAllocations() != 4 {
		t.Errorf("expected 4 allocations, got %d", f.dev.SetAllocations())
	}
	if first[1].(*memgpu.Set).Writes() != 4 {
		t.Errorf("second call should update in place, mesh set saw %d writes", first[1].(*memgpu.Set).Writes())
	}

	// after a reallocation the update points at the new structure
	mesh.PushSubMesh(f.subMesh(1))
	mesh.MakeDescriptorSet(meshLayout)
	got, _ := first[1].(*memgpu.Set).Structure(1, 0)
	if got != mesh.Structure() {
		t.Errorf("mesh set still binds the old structure")
	}
	sceneSet := first[2].(*memgpu.Set)
	if b, ok := sceneSet.Buffer(2, 0); !ok || b.Buffer != mesh.DescriptorBuffer() {
		t.Errorf("scene set does not bind the mesh descriptor buffer")
	}
}

func TestMismatchedLayoutIsAnError(t *testing.T) {
	f := newTriangleFixture(t)
	// binding 1 of the mesh layout holds a structure, the registry writes its binding table there
	set, err := f.registry.MakeDescriptorSet(MeshLayout().Create(f.dev))
	if err == nil {
		t.Errorf("expected an error for a layout that does not fit the registry")
	}
	if set != nil {
		t.Errorf("a failed update should not hand out a set")
	}
}

func TestSceneSetPacksSparseMeshList(t *testing.T) {
	f := newTriangleFixture(t)
	a, b := f.mesh(t, 1), f.mesh(t, 1)
	scene := NewSceneStructure(f.dev, []*MeshStructure{a, nil, b}, DefaultSceneInfo())
	r := model.DefaultInstance()
	r.MeshID = 2
	if _, err := scene.PushInstance(r); err != nil {
		t.Fatal(err)
	}
	ds, err := scene.MakeDescriptorSet(SceneLayout().Create(f.dev))
	if err != nil {
		t.Fatal(err)
	}
	set := ds.(*memgpu.Set)
	if got, ok := set.Buffer(2, 1); !ok || got.Buffer != b.DescriptorBuffer() {
		t.Errorf("mesh 2 should be packed into element 1 behind the nil entry")
	}
	if set.Populated(2) != 2 {
		t.Errorf("expected 2 packed mesh buffers, got %d", set.Populated(2))
	}
}
