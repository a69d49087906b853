package vector_math

type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

func (v Vec3) Dot(w Vec3) float32 {
	return v.X*w.X + v.Y*w.Y + v.Z*w.Z
}

// Cross is the right handed cross product v x w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		X: v.Y*w.Z - v.Z*w.Y,
		Y: v.Z*w.X - v.X*w.Z,
		Z: v.X*w.Y - v.Y*w.X,
	}
}

func (v Vec3) Min(w Vec3) Vec3 {
	return Vec3{X: min(v.X, w.X), Y: min(v.Y, w.Y), Z: min(v.Z, w.Z)}
}

func (v Vec3) Max(w Vec3) Vec3 {
	return Vec3{X: max(v.X, w.X), Y: max(v.Y, w.Y), Z: max(v.Z, w.Z)}
}

// TwiceAreaSq is the squared length of (b-a) x (c-a), four times the squared area of triangle abc. It is zero for
// degenerate triangles.
func TwiceAreaSq(a, b, c Vec3) float32 {
	n := b.Sub(a).Cross(c.Sub(a))
	return n.Dot(n)
}
