package preview

import "math"

// Vec3 is a point or direction in model space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Box3 is an axis-aligned bounding box. The zero value is empty.
type Box3 struct {
	Min, Max Vec3
	valid    bool
}

// NewBox3 returns the box spanning lo and hi.
func NewBox3(lo, hi Vec3) Box3 {
	var b Box3
	b = b.ExpandPoint(lo)
	return b.ExpandPoint(hi)
}

// Empty reports whether the box contains no points.
func (b Box3) Empty() bool { return !b.valid }

// ExpandPoint grows the box to contain p.
func (b Box3) ExpandPoint(p Vec3) Box3 {
	if !b.valid {
		return Box3{Min: p, Max: p, valid: true}
	}
	b.Min = Vec3{math.Min(b.Min.X, p.X), math.Min(b.Min.Y, p.Y), math.Min(b.Min.Z, p.Z)}
	b.Max = Vec3{math.Max(b.Max.X, p.X), math.Max(b.Max.Y, p.Y), math.Max(b.Max.Z, p.Z)}
	return b
}

// Union returns the smallest box containing both.
func (b Box3) Union(o Box3) Box3 {
	if o.Empty() {
		return b
	}
	return b.ExpandPoint(o.Min).ExpandPoint(o.Max)
}

// Center is the geometric center. Empty boxes are centered on the origin.
func (b Box3) Center() Vec3 {
	if b.Empty() {
		return Vec3{}
	}
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size is the extent on each axis.
func (b Box3) Size() Vec3 {
	if b.Empty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Translate moves the box by d.
func (b Box3) Translate(d Vec3) Box3 {
	if b.Empty() {
		return b
	}
	return Box3{Min: b.Min.Add(d), Max: b.Max.Add(d), valid: true}
}

// corners returns the eight box corners.
func (b Box3) corners() [8]Vec3 {
	lo, hi := b.Min, b.Max
	return [8]Vec3{
		{lo.X, lo.Y, lo.Z}, {hi.X, lo.Y, lo.Z}, {lo.X, hi.Y, lo.Z}, {hi.X, hi.Y, lo.Z},
		{lo.X, lo.Y, hi.Z}, {hi.X, lo.Y, hi.Z}, {lo.X, hi.Y, hi.Z}, {hi.X, hi.Y, hi.Z},
	}
}

// Transform returns the bounds of the box after applying m.
func (b Box3) Transform(m Mat4) Box3 {
	if b.Empty() {
		return b
	}
	var out Box3
	for _, c := range b.corners() {
		out = out.ExpandPoint(m.Apply(c))
	}
	return out
}

// Mat4 is a column-major 4x4 affine transform, laid out as glTF stores it.
type Mat4 [16]float64

// Identity returns the identity transform.
func Identity() Mat4 {
	return Mat4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

// Mul returns m*o: o is applied first.
func (m Mat4) Mul(o Mat4) Mat4 {
	var r Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * o[col*4+k]
			}
			r[col*4+row] = sum
		}
	}
	return r
}

// Apply transforms point p.
func (m Mat4) Apply(p Vec3) Vec3 {
	return Vec3{
		X: m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12],
		Y: m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13],
		Z: m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14],
	}
}

// ComposeTRS builds translation * rotation * scale. q is a unit quaternion
// (x, y, z, w).
func ComposeTRS(t Vec3, q [4]float64, s Vec3) Mat4 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return Mat4{
		(1 - 2*(yy+zz)) * s.X, 2 * (xy + wz) * s.X, 2 * (xz - wy) * s.X, 0,
		2 * (xy - wz) * s.Y, (1 - 2*(xx+zz)) * s.Y, 2 * (yz + wx) * s.Y, 0,
		2 * (xz + wy) * s.Z, 2 * (yz - wx) * s.Z, (1 - 2*(xx+yy)) * s.Z, 0,
		t.X, t.Y, t.Z, 1,
	}
}
