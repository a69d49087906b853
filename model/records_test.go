package model

import (
	"encoding/binary"
	"testing"

	"GPU_scene_data/gpu"
	vm "GPU_scene_data/vector_math"
)

// TestRecordSizes pins every record to the size shaders and the builder read it with
func TestRecordSizes(t *testing.T) {
	tests := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"Binding", Stride[Binding](), SizeOfBinding},
		{"SubMeshDescriptor", Stride[SubMeshDescriptor](), SizeOfSubMesh},
		{"InstanceRecord", Stride[InstanceRecord](), SizeOfInstance},
		{"NativeInstance", Stride[NativeInstance](), SizeOfNativeInstance},
		{"DrawInstance", Stride[DrawInstance](), SizeOfDrawInstance},
		{"IndirectCommand", Stride[IndirectCommand](), SizeOfIndirectCommand},
		{"MaterialRecord", Stride[MaterialRecord](), SizeOfMaterial},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s should have byte size %d but was %d", tt.name, tt.want, tt.got)
		}
	}
	if SizeOfSubMesh%16 != 0 {
		t.Errorf("sub-mesh stride %d is not a valid transform offset step", SizeOfSubMesh)
	}
}

func TestNativeInstancePacking(t *testing.T) {
	n := NewNativeInstance(vm.IdentityAffine(), 0x0123_4567, 0xAB, 0x0FFF_FFFF, InstanceForceOpaque, 0xDEAD_BEEF_0000)
	if n.CustomIndex() != 0x23_4567 {
		t.Errorf("custom index should be truncated to 24 bits, got %#x", n.CustomIndex())
	}
	if n.Mask() != 0xAB {
		t.Errorf("mask %#x", n.Mask())
	}
	if n.SBTOffset() != 0xFF_FFFF || n.Flags() != InstanceForceOpaque {
		t.Errorf("sbt offset %#x flags %#x", n.SBTOffset(), n.Flags())
	}

	b := RawBytes(n)
	if len(b) != SizeOfNativeInstance {
		t.Fatalf("encoded %d bytes", len(b))
	}
	if b[51] != 0xAB {
		t.Errorf("mask must be the high byte of the word at offset 48, got %#x", b[51])
	}
	if binary.LittleEndian.Uint64(b[56:]) != 0xDEAD_BEEF_0000 {
		t.Errorf("acceleration reference not at offset 56")
	}
}

func TestSubMeshLayout(t *testing.T) {
	d := DefaultSubMesh()
	d.Flags = SubMeshOpaque | SubMeshNormals
	d.PrimitiveCount = 7
	d.Index.Type = uint32(gpu.IndexUint16)
	b := RawBytes(d)

	if binary.LittleEndian.Uint32(b[48:]) != uint32(SubMeshOpaque|SubMeshNormals) {
		t.Errorf("flags not right after the transform")
	}
	if binary.LittleEndian.Uint32(b[80:]) != 7 {
		t.Errorf("primitive count not at offset 80")
	}
	if binary.LittleEndian.Uint32(b[72:]) != 2 {
		t.Errorf("index type not at offset 72")
	}
	for i := 104; i < 112; i++ {
		if b[i] != 0 {
			t.Errorf("padding byte %d is %#x", i, b[i])
		}
	}
	if d.GeometryFlags() != gpu.GeometryOpaque || !d.Indexed() {
		t.Errorf("descriptor helpers disagree with flags")
	}
}

func TestDecodeReadsBack(t *testing.T) {
	in := []IndirectCommand{{3, 1, 0, 0}, {6, 2, 3, 1}}
	out, err := Decode[IndirectCommand](RawBytes(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[1] != in[1] {
		t.Errorf("expected %v, got %v", in, out)
	}
}

func TestInstanceProjection(t *testing.T) {
	r := DefaultInstance()
	r.ShaderRecordOffset = 2
	r.AccelerationAddress = 0x1000
	n := r.Native(5)
	if n.CustomIndex() != 5 || n.Mask() != 0xFF || n.SBTOffset() != 2 || n.AccelerationReference != 0x1000 {
		t.Errorf("bad projection %+v", n)
	}
}
