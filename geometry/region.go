package geometry

import (
	"errors"
	"fmt"
)

// ErrInvalidRegion is returned by Region.Validate.
var ErrInvalidRegion = errors.New("geometry: invalid region")

// Region is a crop given as the fractions cut from each edge.
type Region struct {
	Left, Top, Right, Bottom float64
}

// CenterRegion returns a centred region covering the fraction v of each axis.
func CenterRegion(v float64) Region {
	half := v / 2
	return Region{Left: 0.5 - half, Top: 0.5 - half, Right: 0.5 - half, Bottom: 0.5 - half}
}

// Validate checks that every edge lies in [0, 1) and that opposite edges
// leave something: left+right < 1 and top+bottom < 1.
func (r Region) Validate() error {
	for _, v := range [4]float64{r.Left, r.Top, r.Right, r.Bottom} {
		if v < 0 || v >= 1 {
			return fmt.Errorf("%w: %+v", ErrInvalidRegion, r)
		}
	}
	if r.Left+r.Right >= 1 || r.Top+r.Bottom >= 1 {
		return fmt.Errorf("%w: %+v", ErrInvalidRegion, r)
	}
	return nil
}

// Width returns the kept fraction of the width.
func (r Region) Width() float64 { return 1 - r.Left - r.Right }

// Height returns the kept fraction of the height.
func (r Region) Height() float64 { return 1 - r.Top - r.Bottom }

// Lerp interpolates each edge from r to s.
func (r Region) Lerp(s Region, t float64) Region {
	l := func(a, b float64) float64 { return a + (b-a)*t }
	return Region{
		Left:   l(r.Left, s.Left),
		Top:    l(r.Top, s.Top),
		Right:  l(r.Right, s.Right),
		Bottom: l(r.Bottom, s.Bottom),
	}
}

// Rect returns the pixel rectangle the region keeps of a w×h image. The
// size is at least 1×1.
func (r Region) Rect(w, h int) (x, y, cw, ch int) {
	x = int(r.Left * float64(w))
	y = int(r.Top * float64(h))
	cw = max(int(r.Width()*float64(w)), 1)
	ch = max(int(r.Height()*float64(h)), 1)
	cw = min(cw, w-x)
	ch = min(ch, h-y)
	return x, y, cw, ch
}

// Quad returns the region as a quad in normalized device coordinates.
func (r Region) Quad() Quad {
	x0, x1 := 2*r.Left-1, 1-2*r.Right
	y0, y1 := 2*r.Bottom-1, 1-2*r.Top
	return Quad{
		LeftBottom:  V2(x0, y0),
		LeftTop:     V2(x0, y1),
		RightBottom: V2(x1, y0),
		RightTop:    V2(x1, y1),
	}
}
