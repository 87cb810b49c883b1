// Package analyzer reduces textures into histograms and color cubes on the
// device of an imp.Context.
//
// A reduction runs in two phases. The device scans the region of interest,
// each threadgroup filling its own partial accumulator; the host then sums
// the partials and runs the attached solvers.
package analyzer

import (
	"github.com/gogpu/imp/geometry"
	"github.com/gogpu/imp/histogram"
	"github.com/gogpu/imp/internal/kernel"
)

// Option configures an analyzer during creation.
type Option func(*config)

type config struct {
	region   geometry.Region
	scale    float64
	channels int
	clipping histogram.Clipping
}

func defaultConfig() config {
	return config{scale: 1, channels: 3}
}

// WithRegion limits the reduction to a region of the texture.
func WithRegion(r geometry.Region) Option {
	return func(c *config) {
		c.region = r
	}
}

// WithScale samples the texture on a grid scaled by s in (0, 1].
func WithScale(s float64) Option {
	return func(c *config) {
		c.scale = s
	}
}

// WithChannels sets the number of histogram channels: red, green, blue and
// luminance, in that order. Ignored by CubeAnalyzer.
func WithChannels(n int) Option {
	return func(c *config) {
		c.channels = n
	}
}

// WithClipping drops texels whose channels are all below Shadows or all
// above 1-Highlights. Ignored by HistogramAnalyzer.
func WithClipping(clip histogram.Clipping) Option {
	return func(c *config) {
		c.clipping = clip
	}
}

func (c config) kernelRegion() kernel.Region {
	return kernel.Region{
		Left:   float32(c.region.Left),
		Top:    float32(c.region.Top),
		Right:  float32(c.region.Right),
		Bottom: float32(c.region.Bottom),
	}
}
