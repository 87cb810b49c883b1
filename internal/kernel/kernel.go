// Package kernel holds the names, uniform layouts and sampling rules shared by
// every kernel implementation (Go kernels in internal/soft, WGSL kernels in
// internal/halgpu) and by the code that dispatches them.
//
// Uniform layouts are little-endian and padded to 16 bytes so the same bytes
// can back a WGSL uniform struct.
package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Kernel names.
const (
	Passthrough      = "kernel_passthrough"
	HistogramPartial = "kernel_histogram_partial"
	CubePartial      = "kernel_histogram_cube_partial"
	Transform        = "kernel_transform"
	LUT1D            = "kernel_lut1d"
	LUT3D            = "kernel_lut3d"
)

// Reduction layout.
const (
	// HistogramBins is the number of bins per histogram channel.
	HistogramBins = 256

	// MaxHistogramChannels is red, green, blue and luminance.
	MaxHistogramChannels = 4

	// CubeResolution is the number of cells along each color cube axis.
	CubeResolution = 32

	// CubeCells is the number of cells in the color cube.
	CubeCells = CubeResolution * CubeResolution * CubeResolution

	// CubeCellWords is {count, sum red, sum green, sum blue}.
	CubeCellWords = 4
)

// ErrShortParams is returned when a uniform buffer is smaller than its layout.
var ErrShortParams = errors.New("kernel: uniform buffer too short")

// Region is a crop expressed as fractions of width and height.
type Region struct {
	Left, Top, Right, Bottom float32
}

// Contains reports whether the normalized point (u, v), with v growing
// downwards, lies inside the region.
func (r Region) Contains(u, v float32) bool {
	return u >= r.Left && u < 1-r.Right && v >= r.Top && v < 1-r.Bottom
}

// SampleGrid returns the dimensions of the grid a reduction scans for a
// texture of w×h texels at the given down-scale factor.
func SampleGrid(w, h int, scale float32) (int, int) {
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	sw := int(float32(w) * scale)
	sh := int(float32(h) * scale)
	return max(sw, 1), max(sh, 1)
}

// SampleTexel maps a sample grid position back to the nearest texel.
func SampleTexel(x, y, w, h, sw, sh int) (int, int) {
	return min(x*w/sw, w-1), min(y*h/sh, h-1)
}

// Stripe returns the column range [x0, x1) scanned by accumulator a.
func Stripe(a, accumulators, width int) (int, int) {
	return a * width / accumulators, (a + 1) * width / accumulators
}

// Luma returns the luminance bin of an 8-bit texel, weighted by alpha.
func Luma(r, g, b, a uint8) uint32 {
	y := 299*uint32(r) + 587*uint32(g) + 114*uint32(b)
	return y * uint32(a) / (1000 * 255)
}

// CubeIndex returns the cell of an 8-bit color in the color cube.
func CubeIndex(r, g, b uint8) int {
	const shift = 8 - 5 // 256 levels onto CubeResolution cells
	ri, gi, bi := int(r>>shift), int(g>>shift), int(b>>shift)
	return ri + gi*CubeResolution + bi*CubeResolution*CubeResolution
}

// HistogramParams configures kernel_histogram_partial.
type HistogramParams struct {
	Channels     uint32
	Accumulators uint32
	Scale        float32
	Region       Region
}

// HistogramParamsSize is the encoded size of HistogramParams.
const HistogramParamsSize = 32

// Bytes encodes the parameters.
func (p HistogramParams) Bytes() []byte {
	b := make([]byte, HistogramParamsSize)
	putU32(b, 0, p.Channels)
	putU32(b, 4, p.Accumulators)
	putF32(b, 8, p.Scale)
	putRegion(b, 16, p.Region)
	return b
}

// DecodeHistogramParams decodes parameters written by Bytes.
func DecodeHistogramParams(b []byte) (HistogramParams, error) {
	if len(b) < HistogramParamsSize {
		return HistogramParams{}, fmt.Errorf("%w: histogram %d bytes", ErrShortParams, len(b))
	}
	return HistogramParams{
		Channels:     u32(b, 0),
		Accumulators: u32(b, 4),
		Scale:        f32(b, 8),
		Region:       region(b, 16),
	}, nil
}

// HistogramPartialSize is the byte size of the partial histogram buffer.
func HistogramPartialSize(accumulators, channels int) int {
	return accumulators * channels * HistogramBins * 4
}

// CubeParams configures kernel_histogram_cube_partial.
type CubeParams struct {
	Accumulators uint32
	Scale        float32
	Region       Region

	// Shadows and Highlights drop texels whose channels are all below
	// Shadows or all above 1-Highlights.
	Shadows    float32
	Highlights float32
}

// CubeParamsSize is the encoded size of CubeParams.
const CubeParamsSize = 48

// Bytes encodes the parameters.
func (p CubeParams) Bytes() []byte {
	b := make([]byte, CubeParamsSize)
	putU32(b, 0, p.Accumulators)
	putU32(b, 4, CubeResolution)
	putF32(b, 8, p.Scale)
	putRegion(b, 16, p.Region)
	putF32(b, 32, p.Shadows)
	putF32(b, 36, p.Highlights)
	return b
}

// DecodeCubeParams decodes parameters written by Bytes.
func DecodeCubeParams(b []byte) (CubeParams, error) {
	if len(b) < CubeParamsSize {
		return CubeParams{}, fmt.Errorf("%w: cube %d bytes", ErrShortParams, len(b))
	}
	return CubeParams{
		Accumulators: u32(b, 0),
		Scale:        f32(b, 8),
		Region:       region(b, 16),
		Shadows:      f32(b, 32),
		Highlights:   f32(b, 36),
	}, nil
}

// Clipped reports whether an 8-bit color is excluded by the clipping bounds.
func (p CubeParams) Clipped(r, g, b uint8) bool {
	lo := p.Shadows * 255
	hi := (1 - p.Highlights) * 255
	if p.Shadows > 0 && float32(r) < lo && float32(g) < lo && float32(b) < lo {
		return true
	}
	if p.Highlights > 0 && float32(r) > hi && float32(g) > hi && float32(b) > hi {
		return true
	}
	return false
}

// MaxCubeSamples bounds the samples one cube accumulator takes, so the
// 8-bit channel sums of a single cell fit in a uint32.
const MaxCubeSamples = math.MaxUint32 / 255

// CubeAccumulators returns how many partial cubes reduce an sw×sh sample
// grid: at least parallel, and enough that no column stripe holds more than
// MaxCubeSamples samples.
func CubeAccumulators(sw, sh, parallel int) int {
	cols := max(MaxCubeSamples/max(sh, 1), 1)
	need := (sw + cols - 1) / cols
	return max(min(max(need, parallel), sw), 1)
}

// CubePartialSize is the byte size of the partial cube buffer.
func CubePartialSize(accumulators int) int {
	return accumulators * CubeCells * CubeCellWords * 4
}

// TransformParams configures kernel_transform.
//
// Inverse maps output normalized device coordinates (x right, y up, w) back
// into input normalized device coordinates. It is stored row-major.
type TransformParams struct {
	Inverse [9]float32
	Clear   [4]float32
	Linear  bool
}

// TransformParamsSize is the encoded size of TransformParams.
const TransformParamsSize = 80

// Bytes encodes the parameters. Each matrix row is padded to a vec4.
func (p TransformParams) Bytes() []byte {
	b := make([]byte, TransformParamsSize)
	for r := range 3 {
		for c := range 3 {
			putF32(b, r*16+c*4, p.Inverse[r*3+c])
		}
	}
	for i, v := range p.Clear {
		putF32(b, 48+i*4, v)
	}
	if p.Linear {
		putU32(b, 64, 1)
	}
	return b
}

// DecodeTransformParams decodes parameters written by Bytes.
func DecodeTransformParams(b []byte) (TransformParams, error) {
	if len(b) < TransformParamsSize {
		return TransformParams{}, fmt.Errorf("%w: transform %d bytes", ErrShortParams, len(b))
	}
	var p TransformParams
	for r := range 3 {
		for c := range 3 {
			p.Inverse[r*3+c] = f32(b, r*16+c*4)
		}
	}
	for i := range p.Clear {
		p.Clear[i] = f32(b, 48+i*4)
	}
	p.Linear = u32(b, 64) != 0
	return p, nil
}

// LUTParams configures kernel_lut1d and kernel_lut3d.
type LUTParams struct {
	// Size is the number of entries along each LUT axis.
	Size uint32

	// Intensity blends between the input (0) and the mapped color (1).
	Intensity float32
}

// LUTParamsSize is the encoded size of LUTParams.
const LUTParamsSize = 16

// Bytes encodes the parameters.
func (p LUTParams) Bytes() []byte {
	b := make([]byte, LUTParamsSize)
	putU32(b, 0, p.Size)
	putF32(b, 4, p.Intensity)
	return b
}

// DecodeLUTParams decodes parameters written by Bytes.
func DecodeLUTParams(b []byte) (LUTParams, error) {
	if len(b) < LUTParamsSize {
		return LUTParams{}, fmt.Errorf("%w: lut %d bytes", ErrShortParams, len(b))
	}
	return LUTParams{Size: u32(b, 0), Intensity: f32(b, 4)}, nil
}

func putU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
func putF32(b []byte, off int, v float32) { putU32(b, off, math.Float32bits(v)) }
func u32(b []byte, off int) uint32        { return binary.LittleEndian.Uint32(b[off:]) }
func f32(b []byte, off int) float32       { return math.Float32frombits(u32(b, off)) }

func putRegion(b []byte, off int, r Region) {
	putF32(b, off, r.Left)
	putF32(b, off+4, r.Top)
	putF32(b, off+8, r.Right)
	putF32(b, off+12, r.Bottom)
}

func region(b []byte, off int) Region {
	return Region{Left: f32(b, off), Top: f32(b, off+4), Right: f32(b, off+8), Bottom: f32(b, off+12)}
}
