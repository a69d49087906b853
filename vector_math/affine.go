package vector_math

import (
	"github.com/xlab/linmath"
)

// Affine is a 3x4 row-major transform, the layout acceleration structure builds and instance records expect.
// Element (r, c) lives at index 4*r + c.
type Affine [12]float32

func IdentityAffine() Affine {
	return Affine{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

// AffineFromMat4x4 drops the projective row of a column-major linmath matrix.
func AffineFromMat4x4(m *linmath.Mat4x4) Affine {
	var a Affine
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			a[4*r+c] = m[c][r]
		}
	}
	return a
}

// Mat4x4 expands the transform back into a column-major linmath matrix.
func (a Affine) Mat4x4() linmath.Mat4x4 {
	var m linmath.Mat4x4
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			m[c][r] = a[4*r+c]
		}
	}
	m[3][3] = 1
	return m
}

func NewTranslation(x, y, z float32) Affine {
	var m linmath.Mat4x4
	m.Translate(x, y, z)
	return AffineFromMat4x4(&m)
}

// NewRotationZ rotates by rad radians around the z-axis.
func NewRotationZ(rad float32) Affine {
	var id, m linmath.Mat4x4
	id.Identity()
	m.RotateZ(&id, rad)
	return AffineFromMat4x4(&m)
}

// Mul returns a*b, i.e. b is applied first.
func (a Affine) Mul(b Affine) Affine {
	ma, mb := a.Mat4x4(), b.Mat4x4()
	var r linmath.Mat4x4
	r.Mult(&ma, &mb)
	return AffineFromMat4x4(&r)
}

// Translation returns the translation column.
func (a Affine) Translation() Vec3 {
	return Vec3{X: a[3], Y: a[7], Z: a[11]}
}
