package geometry

import (
	"errors"
	"math"
)

// ErrDegenerateQuad is returned when three corners of a quad are collinear,
// so no projective basis exists.
var ErrDegenerateQuad = errors.New("geometry: degenerate quad")

// Quad is four points in normalized device space (x right, y up).
type Quad struct {
	LeftBottom  Vec2
	LeftTop     Vec2
	RightBottom Vec2
	RightTop    Vec2
}

// UnitQuad returns the full [-1,1]² square.
func UnitQuad() Quad {
	return Quad{
		LeftBottom:  V2(-1, -1),
		LeftTop:     V2(-1, 1),
		RightBottom: V2(1, -1),
		RightTop:    V2(1, 1),
	}
}

// Points returns the corners in basis order.
func (q Quad) Points() [4]Vec2 {
	return [4]Vec2{q.LeftBottom, q.LeftTop, q.RightBottom, q.RightTop}
}

// Degenerate reports whether any three corners are collinear.
func (q Quad) Degenerate() bool {
	p := q.Points()
	scale := 0.0
	for _, v := range p {
		scale = math.Max(scale, math.Max(math.Abs(v.X), math.Abs(v.Y)))
	}
	if scale == 0 {
		return true
	}
	eps := 1e-9 * scale * scale
	for _, t := range [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}} {
		a, b, c := p[t[0]], p[t[1]], p[t[2]]
		if math.Abs(b.Sub(a).Cross(c.Sub(a))) <= eps {
			return true
		}
	}
	return false
}

// Basis returns the matrix that maps the canonical projective frame onto q:
// A·diag(w), with A the first three corners as homogeneous columns and A·w
// the fourth.
func (q Quad) Basis() (Mat3, error) {
	if q.Degenerate() {
		return Mat3{}, ErrDegenerateQuad
	}
	a := Mat3{
		{q.LeftBottom.X, q.LeftTop.X, q.RightBottom.X},
		{q.LeftBottom.Y, q.LeftTop.Y, q.RightBottom.Y},
		{1, 1, 1},
	}
	inv, err := a.Inverse()
	if err != nil {
		return Mat3{}, ErrDegenerateQuad
	}
	w := inv.MulVec(Vec3{q.RightTop.X, q.RightTop.Y, 1})
	return a.Mul(Diag3(w)), nil
}

// Homography returns the projective transform that maps each corner of src
// onto the matching corner of dst, normalized so the bottom-right entry is 1.
func Homography(src, dst Quad) (Mat3, error) {
	bs, err := src.Basis()
	if err != nil {
		return Mat3{}, err
	}
	bd, err := dst.Basis()
	if err != nil {
		return Mat3{}, err
	}
	inv, err := bs.Inverse()
	if err != nil {
		return Mat3{}, ErrDegenerateQuad
	}
	h := bd.Mul(inv)
	if math.Abs(h[2][2]) < singularEpsilon {
		return Mat3{}, ErrDegenerateQuad
	}
	k := 1 / h[2][2]
	for i := range 3 {
		for j := range 3 {
			h[i][j] *= k
		}
	}
	h[2][2] = 1
	return h, nil
}

// Lerp interpolates each corner from q to r.
func (q Quad) Lerp(r Quad, t float64) Quad {
	return Quad{
		LeftBottom:  q.LeftBottom.Lerp(r.LeftBottom, t),
		LeftTop:     q.LeftTop.Lerp(r.LeftTop, t),
		RightBottom: q.RightBottom.Lerp(r.RightBottom, t),
		RightTop:    q.RightTop.Lerp(r.RightTop, t),
	}
}
