package filters

import (
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/geometry"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/kernel"
)

// MaxSizePass scales its input down so the longer side is at most a limit.
// Inputs already within the limit are copied.
type MaxSizePass struct {
	kp *imp.KernelPass

	mu      sync.Mutex
	limit   int
	changed imp.Event[struct{}]
}

var (
	_ imp.Pass       = (*MaxSizePass)(nil)
	_ imp.Sizer      = (*MaxSizePass)(nil)
	_ imp.Observable = (*MaxSizePass)(nil)
)

// NewMaxSizePass returns a pass limiting the longer side to limit texels.
// A limit of 0 or less uses the context's maximum texture size.
func NewMaxSizePass(ctx *imp.Context, limit int) *MaxSizePass {
	if limit <= 0 {
		limit = ctx.MaxTextureSize()
	}
	return &MaxSizePass{kp: imp.NewKernelPass(ctx, kernel.Transform), limit: limit}
}

// Limit returns the longest allowed side.
func (p *MaxSizePass) Limit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// SetLimit changes the longest allowed side.
func (p *MaxSizePass) SetLimit(limit int) {
	p.mu.Lock()
	same := p.limit == limit
	p.limit = limit
	p.mu.Unlock()
	if !same {
		p.changed.Fire(struct{}{})
	}
}

// Changed fires after the limit changes.
func (p *MaxSizePass) Changed() *imp.Event[struct{}] { return &p.changed }

// OutputSize returns in scaled to the limit.
func (p *MaxSizePass) OutputSize(in gpucore.Size) gpucore.Size {
	return imp.AdjustSize(in, p.Limit())
}

// Encode records the resample.
func (p *MaxSizePass) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	if in.Size() == out.Size() {
		blit := cb.BlitEncoder()
		blit.CopyTexture(in, gpucore.Origin{}, out, gpucore.Origin{}, in.Size())
		return blit.End()
	}
	params := kernel.TransformParams{Inverse: geometry.Identity3().Float32(), Linear: true}
	return p.kp.EncodeWith(cb, in, out, params.Bytes())
}
