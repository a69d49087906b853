package vector_math

import "math"

// Mesh is an indexed triangle list of float3 positions.
type Mesh struct {
	Positions []Vec3
	Indices   []uint32
}

func NewMesh(p []Vec3, idx []uint32) *Mesh {
	return &Mesh{
		Positions: p,
		Indices:   idx,
	}
}

// TriangleCount assumes a plain triangle list.
func (m *Mesh) TriangleCount() uint32 {
	if len(m.Indices) == 0 {
		return uint32(len(m.Positions) / 3)
	}
	return uint32(len(m.Indices) / 3)
}

// Bounds returns the axis aligned box around all positions. An empty mesh has zero bounds.
func (m *Mesh) Bounds() (Vec3, Vec3) {
	if len(m.Positions) == 0 {
		return Vec3{}, Vec3{}
	}
	lo := Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	hi := Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for _, p := range m.Positions {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	return lo, hi
}
