// Package geometry provides the projective math used by the warp, crop and
// plate filters: small vectors and matrices, quads and the homography between
// them, the transform model and crop regions.
//
// Matrices are row-major and act on column vectors (m·v).
package geometry

import "math"

// Vec2 is a 2D point or vector.
type Vec2 struct {
	X, Y float64
}

// V2 is a shorthand for Vec2{x, y}.
func V2(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

// Add returns v + w.
func (v Vec2) Add(w Vec2) Vec2 { return Vec2{v.X + w.X, v.Y + w.Y} }

// Sub returns v - w.
func (v Vec2) Sub(w Vec2) Vec2 { return Vec2{v.X - w.X, v.Y - w.Y} }

// Mul returns v scaled by s.
func (v Vec2) Mul(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Cross returns the z component of the 3D cross product.
func (v Vec2) Cross(w Vec2) float64 { return v.X*w.Y - v.Y*w.X }

// Length returns the Euclidean length.
func (v Vec2) Length() float64 { return math.Hypot(v.X, v.Y) }

// Lerp interpolates linearly from v to w.
func (v Vec2) Lerp(w Vec2, t float64) Vec2 {
	return Vec2{v.X + (w.X-v.X)*t, v.Y + (w.Y-v.Y)*t}
}

// Approx reports whether v and w differ by at most epsilon per component.
func (v Vec2) Approx(w Vec2, epsilon float64) bool {
	return math.Abs(v.X-w.X) <= epsilon && math.Abs(v.Y-w.Y) <= epsilon
}

// Vec3 is a 3D vector. Rotation angles are stored as Vec3 in radians.
type Vec3 struct {
	X, Y, Z float64
}

// V3 is a shorthand for Vec3{x, y, z}.
func V3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }

// Mul returns v scaled by s.
func (v Vec3) Mul(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Lerp interpolates linearly from v to w.
func (v Vec3) Lerp(w Vec3, t float64) Vec3 {
	return v.Add(w.Sub(v).Mul(t))
}
