package geometry

import (
	"errors"
	"math"
)

// ErrSingularMatrix is returned when a matrix has no inverse.
var ErrSingularMatrix = errors.New("geometry: singular matrix")

// singularEpsilon bounds the determinant below which a matrix is treated as
// singular.
const singularEpsilon = 1e-12

// Mat3 is a 3×3 matrix, row-major.
type Mat3 [3][3]float64

// Identity3 returns the 3×3 identity.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Diag3 returns a diagonal matrix.
func Diag3(v Vec3) Mat3 {
	return Mat3{{v.X, 0, 0}, {0, v.Y, 0}, {0, 0, v.Z}}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var r Mat3
	for i := range 3 {
		for j := range 3 {
			r[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return r
}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Det returns the determinant.
func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns m⁻¹, or ErrSingularMatrix.
func (m Mat3) Inverse() (Mat3, error) {
	det := m.Det()
	if math.Abs(det) < singularEpsilon || math.IsNaN(det) {
		return Mat3{}, ErrSingularMatrix
	}
	inv := 1 / det
	return Mat3{
		{
			(m[1][1]*m[2][2] - m[1][2]*m[2][1]) * inv,
			(m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv,
			(m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv,
		},
		{
			(m[1][2]*m[2][0] - m[1][0]*m[2][2]) * inv,
			(m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv,
			(m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv,
		},
		{
			(m[1][0]*m[2][1] - m[1][1]*m[2][0]) * inv,
			(m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv,
			(m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv,
		},
	}, nil
}

// Project maps a 2D point through m as a projective transform.
func (m Mat3) Project(p Vec2) Vec2 {
	v := m.MulVec(Vec3{p.X, p.Y, 1})
	return Vec2{v.X / v.Z, v.Y / v.Z}
}

// Approx reports whether every entry of m is within epsilon of n.
func (m Mat3) Approx(n Mat3, epsilon float64) bool {
	for i := range 3 {
		for j := range 3 {
			if math.Abs(m[i][j]-n[i][j]) > epsilon {
				return false
			}
		}
	}
	return true
}

// Float32 returns the entries row-major as float32, the layout uniform
// buffers expect.
func (m Mat3) Float32() [9]float32 {
	var out [9]float32
	for i := range 3 {
		for j := range 3 {
			out[i*3+j] = float32(m[i][j])
		}
	}
	return out
}

// Embed4 lifts a planar projective transform into 4×4, passing z through.
func (m Mat3) Embed4() Mat4 {
	return Mat4{
		{m[0][0], m[0][1], 0, m[0][2]},
		{m[1][0], m[1][1], 0, m[1][2]},
		{0, 0, 1, 0},
		{m[2][0], m[2][1], 0, m[2][2]},
	}
}

// Mat4 is a 4×4 matrix, row-major.
type Mat4 [4][4]float64

// Identity4 returns the 4×4 identity.
func Identity4() Mat4 {
	return Mat4{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Translate4 returns a translation.
func Translate4(t Vec3) Mat4 {
	m := Identity4()
	m[0][3], m[1][3], m[2][3] = t.X, t.Y, t.Z
	return m
}

// Scale4 returns a scale.
func Scale4(s Vec3) Mat4 {
	m := Identity4()
	m[0][0], m[1][1], m[2][2] = s.X, s.Y, s.Z
	return m
}

// RotateX4 returns a rotation about the x axis (radians).
func RotateX4(a float64) Mat4 {
	s, c := math.Sincos(a)
	return Mat4{{1, 0, 0, 0}, {0, c, -s, 0}, {0, s, c, 0}, {0, 0, 0, 1}}
}

// RotateY4 returns a rotation about the y axis (radians).
func RotateY4(a float64) Mat4 {
	s, c := math.Sincos(a)
	return Mat4{{c, 0, s, 0}, {0, 1, 0, 0}, {-s, 0, c, 0}, {0, 0, 0, 1}}
}

// RotateZ4 returns a rotation about the z axis (radians).
func RotateZ4(a float64) Mat4 {
	s, c := math.Sincos(a)
	return Mat4{{c, -s, 0, 0}, {s, c, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Mul returns m·n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var r Mat4
	for i := range 4 {
		for j := range 4 {
			r[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j] + m[i][3]*n[3][j]
		}
	}
	return r
}

// Transform maps a point through m with perspective divide.
func (m Mat4) Transform(p Vec3) Vec3 {
	x := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3]
	y := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3]
	z := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3]
	w := m[3][0]*p.X + m[3][1]*p.Y + m[3][2]*p.Z + m[3][3]
	return Vec3{x / w, y / w, z / w}
}

// Planar extracts the 3×3 map a 4×4 transform applies to the z=0 plane,
// from rows and columns x, y and w.
func (m Mat4) Planar() Mat3 {
	idx := [3]int{0, 1, 3}
	var r Mat3
	for i, a := range idx {
		for j, b := range idx {
			r[i][j] = m[a][b]
		}
	}
	return r
}
