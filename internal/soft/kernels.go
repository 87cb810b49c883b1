package soft

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/imp/internal/kernel"
)

var (
	errMissingTexture = errors.New("missing texture binding")
	errMissingBuffer  = errors.New("missing buffer binding")
)

func init() {
	Register(kernel.Passthrough, passthroughKernel)
	Register(kernel.HistogramPartial, histogramPartialKernel)
	Register(kernel.CubePartial, cubePartialKernel)
	Register(kernel.Transform, transformKernel)
	Register(kernel.LUT1D, lut1DKernel)
	Register(kernel.LUT3D, lut3DKernel)
}

func inOut(g *Group) (*Texture, *Texture, error) {
	in, out := g.Texture(0), g.Texture(1)
	if in == nil || out == nil {
		return nil, nil, errMissingTexture
	}
	return in, out, nil
}

// passthroughKernel copies the input, resampling with nearest neighbour when
// the output has a different size.
func passthroughKernel(g *Group) error {
	in, out, err := inOut(g)
	if err != nil {
		return err
	}
	iw, ih := in.Width(), in.Height()
	ow, oh := out.Width(), out.Height()
	g.ForThreads(func(x, y, z int) {
		if x >= ow || y >= oh || z >= out.Depth() || z >= in.Depth() {
			return
		}
		out.SetTexel(x, y, z, in.Texel(x*iw/ow, y*ih/oh, z))
	})
	return nil
}

// histogramPartialKernel fills the partial histogram of accumulator
// g.Index. Each accumulator scans one column stripe of the sample grid.
func histogramPartialKernel(g *Group) error {
	in := g.Texture(0)
	partials, params := g.Buffer(0), g.Buffer(1)
	if in == nil {
		return errMissingTexture
	}
	if partials == nil || params == nil {
		return errMissingBuffer
	}
	p, err := kernel.DecodeHistogramParams(params.Bytes())
	if err != nil {
		return err
	}
	channels := int(p.Channels)
	acc := int(p.Accumulators)
	if channels < 1 || channels > kernel.MaxHistogramChannels || acc < 1 {
		return fmt.Errorf("histogram: %d channels, %d accumulators", channels, acc)
	}
	a := g.Index
	if a >= acc {
		return nil
	}
	need := kernel.HistogramPartialSize(acc, channels)
	if partials.Len() < need {
		return fmt.Errorf("histogram: partial buffer %d bytes, need %d", partials.Len(), need)
	}

	var bins [kernel.MaxHistogramChannels][kernel.HistogramBins]uint32
	w, h := in.Width(), in.Height()
	sw, sh := kernel.SampleGrid(w, h, p.Scale)
	x0, x1 := kernel.Stripe(a, acc, sw)
	for y := range sh {
		v := (float32(y) + 0.5) / float32(sh)
		for x := x0; x < x1; x++ {
			u := (float32(x) + 0.5) / float32(sw)
			if !p.Region.Contains(u, v) {
				continue
			}
			tx, ty := kernel.SampleTexel(x, y, w, h, sw, sh)
			c := in.Texel(tx, ty, 0)
			for ch := range channels {
				if ch < 3 {
					bins[ch][c[ch]]++
				} else {
					bins[ch][kernel.Luma(c[0], c[1], c[2], c[3])]++
				}
			}
		}
	}

	out := partials.Bytes()
	for ch := range channels {
		base := ((a*channels + ch) * kernel.HistogramBins) * 4
		for b, n := range bins[ch] {
			binary.LittleEndian.PutUint32(out[base+b*4:], n)
		}
	}
	return nil
}

// cubePartialKernel fills the partial color cube of accumulator g.Index.
func cubePartialKernel(g *Group) error {
	in := g.Texture(0)
	partials, params := g.Buffer(0), g.Buffer(1)
	if in == nil {
		return errMissingTexture
	}
	if partials == nil || params == nil {
		return errMissingBuffer
	}
	p, err := kernel.DecodeCubeParams(params.Bytes())
	if err != nil {
		return err
	}
	acc := int(p.Accumulators)
	if acc < 1 {
		return fmt.Errorf("cube: %d accumulators", acc)
	}
	a := g.Index
	if a >= acc {
		return nil
	}
	if need := kernel.CubePartialSize(acc); partials.Len() < need {
		return fmt.Errorf("cube: partial buffer %d bytes, need %d", partials.Len(), need)
	}

	cells := make([]uint32, kernel.CubeCells*kernel.CubeCellWords)
	w, h := in.Width(), in.Height()
	sw, sh := kernel.SampleGrid(w, h, p.Scale)
	x0, x1 := kernel.Stripe(a, acc, sw)
	for y := range sh {
		v := (float32(y) + 0.5) / float32(sh)
		for x := x0; x < x1; x++ {
			u := (float32(x) + 0.5) / float32(sw)
			if !p.Region.Contains(u, v) {
				continue
			}
			tx, ty := kernel.SampleTexel(x, y, w, h, sw, sh)
			c := in.Texel(tx, ty, 0)
			if p.Clipped(c[0], c[1], c[2]) {
				continue
			}
			i := kernel.CubeIndex(c[0], c[1], c[2]) * kernel.CubeCellWords
			cells[i]++
			cells[i+1] += uint32(c[0])
			cells[i+2] += uint32(c[1])
			cells[i+3] += uint32(c[2])
		}
	}

	out := partials.Bytes()
	base := a * kernel.CubeCells * kernel.CubeCellWords * 4
	for i, n := range cells {
		binary.LittleEndian.PutUint32(out[base+i*4:], n)
	}
	return nil
}

// transformKernel inverse-maps every output texel through a 3×3 projective
// matrix and samples the input there.
func transformKernel(g *Group) error {
	in, out, err := inOut(g)
	if err != nil {
		return err
	}
	params := g.Buffer(0)
	if params == nil {
		return errMissingBuffer
	}
	p, err := kernel.DecodeTransformParams(params.Bytes())
	if err != nil {
		return err
	}
	bg := [4]uint8{}
	for i, v := range p.Clear {
		bg[i] = unorm8(float64(v))
	}
	m := p.Inverse
	iw, ih := float64(in.Width()), float64(in.Height())
	ow, oh := float64(out.Width()), float64(out.Height())
	g.ForThreads(func(x, y, _ int) {
		if x >= out.Width() || y >= out.Height() {
			return
		}
		nx := 2*(float64(x)+0.5)/ow - 1
		ny := 1 - 2*(float64(y)+0.5)/oh
		sx := float64(m[0])*nx + float64(m[1])*ny + float64(m[2])
		sy := float64(m[3])*nx + float64(m[4])*ny + float64(m[5])
		sz := float64(m[6])*nx + float64(m[7])*ny + float64(m[8])
		if math.Abs(sz) < 1e-12 {
			out.SetTexel(x, y, 0, bg)
			return
		}
		u := (sx/sz + 1) / 2 * iw
		v := (1 - sy/sz) / 2 * ih
		if u < 0 || v < 0 || u >= iw || v >= ih {
			out.SetTexel(x, y, 0, bg)
			return
		}
		if p.Linear {
			out.SetTexel(x, y, 0, bilinear(in, u, v))
			return
		}
		out.SetTexel(x, y, 0, in.Texel(int(u), int(v), 0))
	})
	return nil
}

func bilinear(t *Texture, u, v float64) [4]uint8 {
	fx, fy := u-0.5, v-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	ax, ay := fx-float64(x0), fy-float64(y0)
	clampX := func(x int) int { return min(max(x, 0), t.Width()-1) }
	clampY := func(y int) int { return min(max(y, 0), t.Height()-1) }
	c00 := t.Texel(clampX(x0), clampY(y0), 0)
	c10 := t.Texel(clampX(x0+1), clampY(y0), 0)
	c01 := t.Texel(clampX(x0), clampY(y0+1), 0)
	c11 := t.Texel(clampX(x0+1), clampY(y0+1), 0)
	var out [4]uint8
	for i := range out {
		top := float64(c00[i])*(1-ax) + float64(c10[i])*ax
		bot := float64(c01[i])*(1-ax) + float64(c11[i])*ax
		out[i] = uint8(math.Round(top*(1-ay) + bot*ay))
	}
	return out
}

func lutParams(g *Group) (*Texture, *Texture, *Texture, kernel.LUTParams, error) {
	in, out, err := inOut(g)
	if err != nil {
		return nil, nil, nil, kernel.LUTParams{}, err
	}
	table := g.Texture(2)
	if table == nil {
		return nil, nil, nil, kernel.LUTParams{}, errMissingTexture
	}
	params := g.Buffer(0)
	if params == nil {
		return nil, nil, nil, kernel.LUTParams{}, errMissingBuffer
	}
	p, err := kernel.DecodeLUTParams(params.Bytes())
	if err != nil {
		return nil, nil, nil, kernel.LUTParams{}, err
	}
	if p.Size < 2 {
		return nil, nil, nil, kernel.LUTParams{}, fmt.Errorf("lut: size %d", p.Size)
	}
	return in, out, table, p, nil
}

// lut1DKernel maps each channel through its own curve stored in a size×1 texture.
func lut1DKernel(g *Group) error {
	in, out, table, p, err := lutParams(g)
	if err != nil {
		return err
	}
	n := min(int(p.Size), table.Width())
	g.ForThreads(func(x, y, _ int) {
		if x >= out.Width() || y >= out.Height() || x >= in.Width() || y >= in.Height() {
			return
		}
		c := in.Texel(x, y, 0)
		res := c
		for ch := range 3 {
			pos := float64(c[ch]) / 255 * float64(n-1)
			i0 := int(pos)
			i1 := min(i0+1, n-1)
			f := pos - float64(i0)
			a := float64(table.Texel(i0, 0, 0)[ch])
			b := float64(table.Texel(i1, 0, 0)[ch])
			res[ch] = mix(c[ch], a+(b-a)*f, p.Intensity)
		}
		out.SetTexel(x, y, 0, res)
	})
	return nil
}

// lut3DKernel maps colors through a size³ table with trilinear interpolation.
func lut3DKernel(g *Group) error {
	in, out, table, p, err := lutParams(g)
	if err != nil {
		return err
	}
	n := int(p.Size)
	if table.Width() < n || table.Height() < n || table.Depth() < n {
		return fmt.Errorf("lut: table %s smaller than %d", table.Size(), n)
	}
	g.ForThreads(func(x, y, _ int) {
		if x >= out.Width() || y >= out.Height() || x >= in.Width() || y >= in.Height() {
			return
		}
		c := in.Texel(x, y, 0)
		var pos [3]float64
		var i0, i1 [3]int
		var f [3]float64
		for ch := range 3 {
			pos[ch] = float64(c[ch]) / 255 * float64(n-1)
			i0[ch] = int(pos[ch])
			i1[ch] = min(i0[ch]+1, n-1)
			f[ch] = pos[ch] - float64(i0[ch])
		}
		var mapped [3]float64
		for corner := range 8 {
			ri, wr := i0[0], 1-f[0]
			if corner&1 != 0 {
				ri, wr = i1[0], f[0]
			}
			gi, wg := i0[1], 1-f[1]
			if corner&2 != 0 {
				gi, wg = i1[1], f[1]
			}
			bi, wb := i0[2], 1-f[2]
			if corner&4 != 0 {
				bi, wb = i1[2], f[2]
			}
			w := wr * wg * wb
			if w == 0 {
				continue
			}
			t := table.Texel(ri, gi, bi)
			for ch := range 3 {
				mapped[ch] += w * float64(t[ch])
			}
		}
		res := c
		for ch := range 3 {
			res[ch] = mix(c[ch], mapped[ch], p.Intensity)
		}
		out.SetTexel(x, y, 0, res)
	})
	return nil
}

func mix(orig uint8, mapped float64, intensity float32) uint8 {
	k := float64(intensity)
	return uint8(math.Round(min(max(float64(orig)*(1-k)+mapped*k, 0), 255)))
}

func unorm8(v float64) uint8 {
	return uint8(math.Round(min(max(v, 0), 1) * 255))
}
