package filters

import (
	"fmt"
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/geometry"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/kernel"
)

// WarpPass maps the source quad of its input onto the destination quad of
// its output. Quads are in normalized device coordinates, x right and y up.
// Output texels that fall outside the input take the clear color.
type WarpPass struct {
	kp *imp.KernelPass

	mu      sync.Mutex
	src     geometry.Quad
	dst     geometry.Quad
	inverse geometry.Mat3
	clear   [4]float32
	linear  bool
}

var (
	_ imp.Pass       = (*WarpPass)(nil)
	_ imp.Observable = (*WarpPass)(nil)
)

// NewWarpPass returns an identity warp with bilinear sampling and a
// transparent clear color.
func NewWarpPass(ctx *imp.Context) *WarpPass {
	p := &WarpPass{
		kp:      imp.NewKernelPass(ctx, kernel.Transform),
		src:     geometry.UnitQuad(),
		dst:     geometry.UnitQuad(),
		inverse: geometry.Identity3(),
		linear:  true,
	}
	p.kp.SetUniforms(p.paramsLocked())
	return p
}

// Quads returns the source and destination quads.
func (p *WarpPass) Quads() (src, dst geometry.Quad) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src, p.dst
}

// SetQuads solves the homography taking src onto dst. Either quad being
// degenerate leaves the pass unchanged and returns an error wrapping
// geometry.ErrDegenerateQuad.
func (p *WarpPass) SetQuads(src, dst geometry.Quad) error {
	h, err := geometry.Homography(src, dst)
	if err != nil {
		return fmt.Errorf("filters: warp: %w", err)
	}
	inv, err := h.Inverse()
	if err != nil {
		return fmt.Errorf("filters: warp: %w: %w", geometry.ErrDegenerateQuad, err)
	}
	p.mu.Lock()
	p.src, p.dst, p.inverse = src, dst, inv
	params := p.paramsLocked()
	p.mu.Unlock()
	p.kp.SetUniforms(params)
	return nil
}

// SetClearColor sets the color of texels outside the source, as straight
// RGBA in [0, 1].
func (p *WarpPass) SetClearColor(c [4]float32) {
	p.mu.Lock()
	p.clear = c
	params := p.paramsLocked()
	p.mu.Unlock()
	p.kp.SetUniforms(params)
}

// SetLinear selects bilinear (true) or nearest sampling.
func (p *WarpPass) SetLinear(linear bool) {
	p.mu.Lock()
	p.linear = linear
	params := p.paramsLocked()
	p.mu.Unlock()
	p.kp.SetUniforms(params)
}

func (p *WarpPass) paramsLocked() []byte {
	return kernel.TransformParams{
		Inverse: p.inverse.Float32(),
		Clear:   p.clear,
		Linear:  p.linear,
	}.Bytes()
}

// Changed fires after every parameter change.
func (p *WarpPass) Changed() *imp.Event[struct{}] { return p.kp.Changed() }

// Encode records the warp.
func (p *WarpPass) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	return p.kp.Encode(cb, in, out)
}
