package filters

import (
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
)

// Reference grays of the white balance correction. The second one is
// slightly warm to compensate the blue cast of most neutralized images.
var (
	wbGray = [3]float64{0.5, 0.5, 0.5}
	wbWarm = [3]float64{0.5098, 0.5, 0.470588}
)

// WhiteBalancePass neutralizes the cast of a dominant color. The inverted
// dominant color is brought to mid-gray luminance, warmed and overlaid on
// the input, which only depends on each channel so it runs as a tone curve.
type WhiteBalancePass struct {
	lut *LUTPass

	mu       sync.Mutex
	dominant [3]float64
	set      bool
}

var (
	_ imp.Pass       = (*WhiteBalancePass)(nil)
	_ imp.Observable = (*WhiteBalancePass)(nil)
)

// NewWhiteBalancePass returns a pass that leaves its input unchanged until
// a dominant color is set.
func NewWhiteBalancePass(ctx *imp.Context) (*WhiteBalancePass, error) {
	l, err := NewLUTPass(ctx, curveTable("identity", func(_ int, v float64) float64 { return v }))
	if err != nil {
		return nil, err
	}
	return &WhiteBalancePass{lut: l}, nil
}

// DominantColor returns the color being neutralized and whether one is set.
func (p *WhiteBalancePass) DominantColor() ([3]float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dominant, p.set
}

// SetDominantColor sets the color to neutralize, as RGB in [0, 1].
func (p *WhiteBalancePass) SetDominantColor(c [3]float64) error {
	for ch := range 3 {
		c[ch] = min(max(c[ch], 0), 1)
	}
	p.mu.Lock()
	if p.set && c == p.dominant {
		p.mu.Unlock()
		return nil
	}
	p.dominant, p.set = c, true
	p.mu.Unlock()

	corr := correction(c)
	return p.lut.SetTable(curveTable("white balance", func(ch int, v float64) float64 {
		return overlay(v, corr[ch])
	}))
}

// correction returns the color overlaid on the input to neutralize dominant.
func correction(dominant [3]float64) [3]float64 {
	var inv [3]float64
	for ch := range 3 {
		inv[ch] = 1 - dominant[ch]
	}
	inv = withLuminance(inv, luminance(wbGray))
	for ch := range 3 {
		inv[ch] = overlay(inv[ch], wbWarm[ch])
	}
	return inv
}

func overlay(base, blend float64) float64 {
	if base < 0.5 {
		return 2 * base * blend
	}
	return 1 - 2*(1-base)*(1-blend)
}

func luminance(c [3]float64) float64 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}

// withLuminance shifts c to luminance l and pulls out-of-gamut channels back
// toward l.
func withLuminance(c [3]float64, l float64) [3]float64 {
	d := l - luminance(c)
	for ch := range 3 {
		c[ch] += d
	}
	lo := min(c[0], c[1], c[2])
	hi := max(c[0], c[1], c[2])
	for ch := range 3 {
		if lo < 0 {
			c[ch] = l + (c[ch]-l)*l/(l-lo)
		}
		if hi > 1 {
			c[ch] = l + (c[ch]-l)*(1-l)/(hi-l)
		}
	}
	return c
}

// Intensity returns the blend factor.
func (p *WhiteBalancePass) Intensity() float64 { return p.lut.Intensity() }

// SetIntensity sets the blend factor, clamped to [0, 1].
func (p *WhiteBalancePass) SetIntensity(v float64) { p.lut.SetIntensity(v) }

// Changed fires after the dominant color or intensity changes.
func (p *WhiteBalancePass) Changed() *imp.Event[struct{}] { return p.lut.Changed() }

// Encode records the correction.
func (p *WhiteBalancePass) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	return p.lut.Encode(cb, in, out)
}

// Close releases the curve texture.
func (p *WhiteBalancePass) Close() { p.lut.Close() }
