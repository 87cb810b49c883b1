// Package filters provides the geometry and color passes that plug into an
// imp.Filter: crop, quad warp, plate transform, lookup tables and size
// limiting.
//
// Every pass implements imp.Pass and imp.Observable, so a filter holding one
// goes stale when its parameters change.
package filters

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/geometry"
	"github.com/gogpu/imp/gpucore"
)

// ErrCropSize is returned when a crop writes into an output larger than the
// cropped rectangle, which would leave stale texels around the copy.
var ErrCropSize = errors.New("filters: output larger than crop rectangle")

// CropPass copies a region of its input.
type CropPass struct {
	mu      sync.Mutex
	region  geometry.Region
	changed imp.Event[struct{}]
}

var (
	_ imp.Pass       = (*CropPass)(nil)
	_ imp.Sizer      = (*CropPass)(nil)
	_ imp.Observable = (*CropPass)(nil)
)

// NewCropPass returns a pass keeping region of its input.
func NewCropPass(region geometry.Region) (*CropPass, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	return &CropPass{region: region}, nil
}

// Region returns the crop region.
func (p *CropPass) Region() geometry.Region {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.region
}

// SetRegion replaces the crop region.
func (p *CropPass) SetRegion(r geometry.Region) error {
	if err := r.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	same := p.region == r
	p.region = r
	p.mu.Unlock()
	if !same {
		p.changed.Fire(struct{}{})
	}
	return nil
}

// Changed fires after the region changes.
func (p *CropPass) Changed() *imp.Event[struct{}] { return &p.changed }

// OutputSize returns the size of the kept rectangle.
func (p *CropPass) OutputSize(in gpucore.Size) gpucore.Size {
	_, _, w, h := p.Region().Rect(in.Width, in.Height)
	return gpucore.Size{Width: w, Height: h, Depth: 1}
}

// Encode blits the region into out. A smaller out keeps the top-left part of
// the region; a larger one is rejected with ErrCropSize.
func (p *CropPass) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	x, y, w, h := p.Region().Rect(in.Width(), in.Height())
	if out.Width() > w || out.Height() > h {
		return fmt.Errorf("%w: %s output for a %dx%d crop", ErrCropSize, out.Size(), w, h)
	}
	blit := cb.BlitEncoder()
	blit.CopyTexture(in, gpucore.Origin{X: x, Y: y}, out, gpucore.Origin{},
		gpucore.Size{Width: w, Height: h, Depth: 1})
	return blit.End()
}
