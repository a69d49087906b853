package renderer

import (
	"testing"

	"GPU_scene_data/gpu"
	"GPU_scene_data/gpu/memgpu"
	"GPU_scene_data/model"
)

// triangleFixture is a registry holding one float3 triangle at index 0.
type triangleFixture struct {
	dev      *memgpu.Device
	registry *Registry
	vertices gpu.Buffer
	index    uint32
}

func newTriangleFixture(t *testing.T) *triangleFixture {
	t.Helper()
	dev := memgpu.NewDevice()
	reg := NewRegistry(dev, DefaultRegistryInfo())
	verts, err := dev.CreateBuffer(3*12, gpu.UsageStorage|gpu.UsageAccelerationBuildInput|gpu.UsageDeviceAddress, gpu.MemoryDeviceLocal)
	if err != nil {
		t.Fatal(err)
	}
	idx := reg.PushBufferWithBinding(verts, model.Binding{Stride: 12, Format: model.FormatFloat3})
	return &triangleFixture{dev: dev, registry: reg, vertices: verts, index: idx}
}

func (f *triangleFixture) subMesh(primitives uint32) model.SubMeshDescriptor {
	d := model.DefaultSubMesh()
	d.Flags = model.SubMeshOpaque
	d.Vertex = model.VertexRef{RegistryIndex: f.index, Stride: 12, MaxVertexIndex: 3*primitives - 1}
	d.PrimitiveCount = primitives
	return d
}

func (f *triangleFixture) mesh(t *testing.T, primitives ...uint32) *MeshStructure {
	t.Helper()
	m := NewMeshStructure(f.dev, f.registry, DefaultMeshInfo())
	for _, p := range primitives {
		if _, err := m.PushSubMesh(f.subMesh(p)); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func readBack[T any](t *testing.T, b gpu.Buffer) []T {
	t.Helper()
	out, err := model.Decode[T](b.(*memgpu.Buffer).Contents())
	if err != nil {
		t.Fatal(err)
	}
	return out
}
