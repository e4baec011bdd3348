package math

// Mat4 is a 4x4 matrix stored column-major: element (row r, column c)
// lives at index c*4+r and the translation occupies indices 12..14.
//
// Scene transforms are affine, so the bottom row is always (0 0 0 1).
type Mat4 [16]float32

// Identity returns an identity matrix.
func Identity() Mat4 {
	return Mat4{0: 1, 5: 1, 10: 1, 15: 1}
}

// Translate returns a translation matrix.
func Translate(x, y, z float32) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = x, y, z
	return m
}

// Scale returns a scale matrix.
func Scale(x, y, z float32) Mat4 {
	return Mat4{0: x, 5: y, 10: z, 15: 1}
}

// at returns element (r, c).
func (m Mat4) at(r, c int) float32 {
	return m[c*4+r]
}

// Col returns the first three rows of column c.
func (m Mat4) Col(c int) Vec3 {
	return Vec3{m[c*4], m[c*4+1], m[c*4+2]}
}

func (m *Mat4) setCol(c int, v Vec3) {
	m[c*4], m[c*4+1], m[c*4+2] = v.X, v.Y, v.Z
}

// Mul returns m * other; other is applied first.
func (m Mat4) Mul(other Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m.at(r, k) * other.at(k, c)
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// TransformPoint applies the full affine transform to p.
func (m Mat4) TransformPoint(p [3]float32) [3]float32 {
	v := m.Col(0).Scale(p[0]).Add(m.Col(1).Scale(p[1])).Add(m.Col(2).Scale(p[2])).Add(m.Translation())
	return v.Array()
}

// TransformDirection applies the linear part only.
func (m Mat4) TransformDirection(d [3]float32) [3]float32 {
	v := m.Col(0).Scale(d[0]).Add(m.Col(1).Scale(d[1])).Add(m.Col(2).Scale(d[2]))
	return v.Array()
}

// Inverse returns the inverse of an affine matrix, or the identity when the
// linear part is singular.
func (m Mat4) Inverse() Mat4 {
	a, b, c := m.Col(0), m.Col(1), m.Col(2)
	// The rows of the inverse linear part are the cross products of the
	// columns divided by the determinant.
	r0, r1, r2 := b.Cross(c), c.Cross(a), a.Cross(b)
	det := a.Dot(r0)
	if det == 0 {
		return Identity()
	}
	inv := 1 / det
	r0, r1, r2 = r0.Scale(inv), r1.Scale(inv), r2.Scale(inv)

	var out Mat4
	out.setCol(0, Vec3{r0.X, r1.X, r2.X})
	out.setCol(1, Vec3{r0.Y, r1.Y, r2.Y})
	out.setCol(2, Vec3{r0.Z, r1.Z, r2.Z})
	t := m.Translation()
	out.setCol(3, Vec3{-r0.Dot(t), -r1.Dot(t), -r2.Dot(t)})
	out[15] = 1
	return out
}

// Transpose returns m with rows and columns swapped.
func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[r*4+c] = m.at(r, c)
		}
	}
	return out
}

// NormalMatrix returns the inverse transpose of the linear part of m, which
// maps surface normals. Translation is dropped.
func (m Mat4) NormalMatrix() Mat4 {
	n := m.Inverse().Transpose()
	n[3], n[7], n[11] = 0, 0, 0
	n[12], n[13], n[14] = 0, 0, 0
	n[15] = 1
	return n
}

// Compose builds a matrix applying scale, then rotation, then translation.
func Compose(t Vec3, r Quat, s Vec3) Mat4 {
	m := r.ToMat4()
	m.setCol(0, m.Col(0).Scale(s.X))
	m.setCol(1, m.Col(1).Scale(s.Y))
	m.setCol(2, m.Col(2).Scale(s.Z))
	m.setCol(3, t)
	return m
}

// Decompose splits an affine matrix into translation, rotation and scale.
// Shear is discarded; a negative determinant flips the X scale.
func (m Mat4) Decompose() (Vec3, Quat, Vec3) {
	cx, cy, cz := m.Col(0), m.Col(1), m.Col(2)
	s := Vec3{cx.Length(), cy.Length(), cz.Length()}
	if cx.Cross(cy).Dot(cz) < 0 {
		s.X = -s.X
	}

	rot := Identity()
	for i, col := range [3]struct {
		v Vec3
		s float32
	}{{cx, s.X}, {cy, s.Y}, {cz, s.Z}} {
		if col.s != 0 {
			rot.setCol(i, col.v.Scale(1/col.s))
		}
	}
	return m.Translation(), QuatFromMat4(rot), s
}

// Translation returns the translation column.
func (m Mat4) Translation() Vec3 {
	return m.Col(3)
}
