package vector_math

import (
	"testing"
)

func TestIdentityRoundTrip(t *testing.T) {
	id := IdentityAffine()
	m := id.Mat4x4()
	if back := AffineFromMat4x4(&m); back != id {
		t.Errorf("identity did not survive the linmath round trip: %v", back)
	}
}

func TestTranslationLayout(t *testing.T) {
	tr := NewTranslation(1, 2, 3)
	// row-major 3x4, translation in the last column
	if tr[3] != 1 || tr[7] != 2 || tr[11] != 3 {
		t.Errorf("translation not in the last column: %v", tr)
	}
	if got := tr.Translation(); got != (Vec3{1, 2, 3}) {
		t.Errorf("Translation() returned %v", got)
	}
}

func TestMulAppliesRightFirst(t *testing.T) {
	rot := NewRotationZ(float32(ToRad(90)))
	tr := NewTranslation(1, 0, 0)

	// the translation column of a*T(p) is a applied to the point p
	p := tr.Mul(rot).Mul(NewTranslation(1, 0, 0)).Translation()
	want := Vec3{1, 1, 0}
	if !closeVec(p, want) {
		t.Errorf("expected %v, got %v", want, p)
	}
	t.Logf("rotated then translated: %v", p)
}

func TestTwiceAreaSq(t *testing.T) {
	a, b, c := Vec3{0, 0, 0}, Vec3{2, 0, 0}, Vec3{0, 3, 0}
	// area 3, twice the area 6
	if got := TwiceAreaSq(a, b, c); got != 36 {
		t.Errorf("expected 36, got %v", got)
	}
	if got := TwiceAreaSq(a, b, Vec3{4, 0, 0}); got != 0 {
		t.Errorf("collinear corners should give 0, got %v", got)
	}
	if n := b.Cross(c); n != (Vec3{0, 0, 6}) {
		t.Errorf("cross product points the wrong way: %v", n)
	}
}

func TestMeshBounds(t *testing.T) {
	m := NewMesh([]Vec3{{-1, 2, 0}, {3, -4, 1}, {0, 0, 5}}, nil)
	lo, hi := m.Bounds()
	if lo != (Vec3{-1, -4, 0}) || hi != (Vec3{3, 2, 5}) {
		t.Errorf("bounds %v %v", lo, hi)
	}
	if m.TriangleCount() != 1 {
		t.Errorf("expected one triangle, got %d", m.TriangleCount())
	}
}

func closeVec(a, b Vec3) bool {
	d := a.Sub(b)
	return d.Dot(d) < 1e-10
}
