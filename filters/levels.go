package filters

import (
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/lut"
)

// curveSize is the length of the tables generated for tone curves. With 256
// entries every 8-bit input lands exactly on an entry.
const curveSize = 256

// curveTable samples fn(channel, v) over [0, 1] into a 1D table.
func curveTable(title string, fn func(ch int, v float64) float64) *lut.Table {
	t := &lut.Table{
		Kind:      lut.Kind1D,
		Title:     title,
		DomainMax: lut.RGB{1, 1, 1},
		Size:      curveSize,
		Data:      make([]lut.RGB, curveSize),
	}
	for i := range t.Data {
		v := float64(i) / (curveSize - 1)
		for ch := range 3 {
			t.Data[i][ch] = min(max(fn(ch, v), 0), 1)
		}
	}
	return t
}

// minLevelsSpan is the narrowest channel range LevelsPass stretches. A
// narrower range leaves the channel unchanged.
const minLevelsSpan = 1.0 / 255

// LevelsPass stretches each color channel from [low, high] onto [0, 1],
// clamping values outside the range. The stretched color is blended with the
// input by the intensity.
type LevelsPass struct {
	lut *LUTPass

	mu   sync.Mutex
	low  [3]float64
	high [3]float64
}

var (
	_ imp.Pass       = (*LevelsPass)(nil)
	_ imp.Observable = (*LevelsPass)(nil)
)

// NewLevelsPass returns a pass with the identity range [0, 1].
func NewLevelsPass(ctx *imp.Context) (*LevelsPass, error) {
	p := &LevelsPass{high: [3]float64{1, 1, 1}}
	l, err := NewLUTPass(ctx, p.table(p.low, p.high))
	if err != nil {
		return nil, err
	}
	p.lut = l
	return p, nil
}

func (p *LevelsPass) table(low, high [3]float64) *lut.Table {
	return curveTable("levels", func(ch int, v float64) float64 {
		span := high[ch] - low[ch]
		if span < minLevelsSpan {
			return v
		}
		return (v - low[ch]) / span
	})
}

// Levels returns the input range of every channel.
func (p *LevelsPass) Levels() (low, high [3]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.low, p.high
}

// SetLevels sets the input range of every channel. Bounds are clamped to
// [0, 1]. Setting the current range does nothing.
func (p *LevelsPass) SetLevels(low, high [3]float64) error {
	for ch := range 3 {
		low[ch] = min(max(low[ch], 0), 1)
		high[ch] = min(max(high[ch], 0), 1)
	}
	p.mu.Lock()
	if low == p.low && high == p.high {
		p.mu.Unlock()
		return nil
	}
	p.low, p.high = low, high
	p.mu.Unlock()
	return p.lut.SetTable(p.table(low, high))
}

// Intensity returns the blend factor.
func (p *LevelsPass) Intensity() float64 { return p.lut.Intensity() }

// SetIntensity sets the blend factor, clamped to [0, 1].
func (p *LevelsPass) SetIntensity(v float64) { p.lut.SetIntensity(v) }

// Changed fires after the range or intensity changes.
func (p *LevelsPass) Changed() *imp.Event[struct{}] { return p.lut.Changed() }

// Encode records the adjustment.
func (p *LevelsPass) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	return p.lut.Encode(cb, in, out)
}

// Close releases the curve texture.
func (p *LevelsPass) Close() { p.lut.Close() }
