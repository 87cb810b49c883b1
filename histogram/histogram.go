// Package histogram holds the host side of the parallel reductions: the
// per-channel Histogram, the 3D color Cube, and the algorithms that derive
// statistics and palettes from them.
//
// Device kernels write partial accumulators. Update merges them here with an
// element-wise sum, so the result does not depend on how the work was split.
package histogram

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Size is the number of bins per channel.
const Size = 256

// MaxChannels is the largest channel count: red, green, blue and luminance.
const MaxChannels = 4

// Channel indices.
const (
	Red       = 0
	Green     = 1
	Blue      = 2
	Luminance = 3
)

var (
	// ErrChannels is returned for a channel count outside 1..MaxChannels.
	ErrChannels = errors.New("histogram: channel count out of range")

	// ErrPartials is returned when a partial buffer does not match the
	// expected layout.
	ErrPartials = errors.New("histogram: malformed partial buffer")
)

// Histogram is a fixed channels×Size table of bin values. Counts merged from a
// reduction are whole numbers. CDF and PDF return histograms with real values.
type Histogram struct {
	channels [][]float64
}

// New returns an empty histogram with the given channel count.
func New(channels int) (*Histogram, error) {
	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrChannels, channels)
	}
	h := &Histogram{channels: make([][]float64, channels)}
	for c := range h.channels {
		h.channels[c] = make([]float64, Size)
	}
	return h, nil
}

// NewGaussian returns a histogram whose channels are the sum of Gaussians
// fi·exp(-(x-μ)²/2σ²) over x in [0,1], one per (mu[i], sigma[i]) pair.
func NewGaussian(channels int, fi float64, mu, sigma []float64) (*Histogram, error) {
	if len(mu) != len(sigma) {
		return nil, fmt.Errorf("histogram: %d means for %d deviations", len(mu), len(sigma))
	}
	h, err := New(channels)
	if err != nil {
		return nil, err
	}
	for _, ch := range h.channels {
		for i := range ch {
			x := float64(i) / (Size - 1)
			for p := range mu {
				d := x - mu[p]
				ch[i] += fi * math.Exp(-d*d/(2*sigma[p]*sigma[p]))
			}
		}
	}
	return h, nil
}

// NewRamp returns a histogram whose channels rise linearly, starting at
// lo/(Size-1) and stepping by (hi-lo)/(Size-1) per bin.
func NewRamp(channels, lo, hi int) (*Histogram, error) {
	h, err := New(channels)
	if err != nil {
		return nil, err
	}
	start := float64(lo) / (Size - 1)
	step := float64(hi-lo) / (Size - 1)
	for _, ch := range h.channels {
		for i := range ch {
			ch[i] = start + float64(i)*step
		}
	}
	return h, nil
}

// Channels returns the channel count.
func (h *Histogram) Channels() int { return len(h.channels) }

// Bins returns channel c. The slice aliases the histogram.
func (h *Histogram) Bins(c int) []float64 { return h.channels[c] }

// Total returns the sum of channel c.
func (h *Histogram) Total(c int) float64 {
	var s float64
	for _, v := range h.channels[c] {
		s += v
	}
	return s
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	c := &Histogram{channels: make([][]float64, len(h.channels))}
	for i, ch := range h.channels {
		c.channels[i] = append([]float64(nil), ch...)
	}
	return c
}

// Clear zeroes every bin.
func (h *Histogram) Clear() {
	for _, ch := range h.channels {
		clear(ch)
	}
}

// Add sums o into h channel by channel. Extra channels of o are ignored.
func (h *Histogram) Add(o *Histogram) {
	for c := range min(len(h.channels), len(o.channels)) {
		for i, v := range o.channels[c] {
			h.channels[c][i] += v
		}
	}
}

// Update replaces the contents with the element-wise sum of the partial
// accumulators in data. data holds accumulators×channels×Size little-endian
// uint32 counters, accumulator-major.
func (h *Histogram) Update(data []byte, accumulators int) error {
	n := len(h.channels)
	if accumulators < 1 || len(data) < accumulators*n*Size*4 {
		return fmt.Errorf("%w: %d bytes for %d accumulators of %d channels",
			ErrPartials, len(data), accumulators, n)
	}
	h.Clear()
	for a := range accumulators {
		for c := range n {
			base := (a*n + c) * Size * 4
			ch := h.channels[c]
			for b := range Size {
				ch[b] += float64(binary.LittleEndian.Uint32(data[base+b*4:]))
			}
		}
	}
	return nil
}

// CDF returns the cumulative distribution. Each bin is first raised to power,
// then integrated, then rescaled so the largest value equals scale. A scale
// of zero or less skips the rescale.
func (h *Histogram) CDF(scale, power float64) *Histogram {
	r := h.Clone()
	for _, ch := range r.channels {
		if power != 1 {
			for i, v := range ch {
				ch[i] = math.Pow(v, power)
			}
		}
		integrate(ch, ch, scale)
	}
	return r
}

// PDF returns the histogram rescaled so its largest value equals scale.
func (h *Histogram) PDF(scale float64) *Histogram {
	r := h.Clone()
	for _, ch := range r.channels {
		rescale(ch, scale)
	}
	return r
}

// Mean returns the mean intensity of channel c normalized to [0,1].
func (h *Histogram) Mean(c int) float64 {
	ch := h.channels[c]
	var m, total float64
	for i, v := range ch {
		m += v * float64(i) / float64(len(ch)-1)
		total += v
	}
	if total == 0 {
		return 0
	}
	return m / total
}

// Low returns the lowest intensity of channel c once the darkest fraction
// clipping of samples is ignored, normalized to [0,1].
func (h *Histogram) Low(c int, clipping float64) float64 {
	size := len(h.channels[c])
	pos, ok := h.crossing(c, clipping)
	if !ok {
		pos = 0
	}
	if pos > 0 {
		pos--
	}
	return float64(pos) / float64(size)
}

// High returns the highest intensity of channel c once the brightest
// fraction clipping of samples is ignored, normalized to [0,1].
func (h *Histogram) High(c int, clipping float64) float64 {
	size := len(h.channels[c])
	pos, ok := h.crossing(c, 1-clipping)
	if !ok {
		pos = size
	}
	if pos < size {
		pos++
	}
	return float64(pos) / float64(size)
}

// crossing integrates channel c to [0,1], thresholds it at level into -1/+1
// and returns the first index where the sign changes.
func (h *Histogram) crossing(c int, level float64) (int, bool) {
	ch := h.channels[c]
	cdf := make([]float64, len(ch))
	integrate(ch, cdf, 1)
	sign := func(v float64) float64 {
		if v < level {
			return -1
		}
		return 1
	}
	prev := sign(cdf[0])
	for i := 1; i < len(cdf); i++ {
		s := sign(cdf[i])
		if s != prev {
			return i, true
		}
		prev = s
	}
	return 0, false
}

// Convolve filters channel c with a centred kernel, extending the edge bins,
// then rescales so the largest value equals scale. A scale of zero or less
// skips the rescale.
func (h *Histogram) Convolve(c int, kernel []float64, scale float64) {
	if len(kernel) == 0 {
		return
	}
	ch := h.channels[c]
	src := append([]float64(nil), ch...)
	half := len(kernel) / 2
	last := len(src) - 1
	for i := range ch {
		var s float64
		for k, w := range kernel {
			j := min(max(i+k-half, 0), last)
			s += src[j] * w
		}
		ch[i] = s
	}
	rescale(ch, scale)
}

func integrate(src, dst []float64, scale float64) {
	var s float64
	for i, v := range src {
		s += v
		dst[i] = s
	}
	rescale(dst, scale)
}

func rescale(ch []float64, scale float64) {
	if scale <= 0 {
		return
	}
	var peak float64
	for _, v := range ch {
		peak = max(peak, v)
	}
	if peak == 0 {
		return
	}
	k := peak / scale
	for i := range ch {
		ch[i] /= k
	}
}
