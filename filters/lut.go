package filters

import (
	"context"
	"errors"
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/kernel"
	"github.com/gogpu/imp/lut"
)

// ErrNoTable is returned when a LUTPass is given a nil table.
var ErrNoTable = errors.New("filters: no lookup table")

// LUTPass maps colors through a 1D or 3D lookup table and blends the result
// with the input by an intensity in [0, 1].
type LUTPass struct {
	ctx  *imp.Context
	lut1 *imp.KernelPass
	lut3 *imp.KernelPass

	mu        sync.Mutex
	table     *lut.Table
	tex       gpucore.Texture
	intensity float32

	changed imp.Event[struct{}]
}

var (
	_ imp.Pass       = (*LUTPass)(nil)
	_ imp.Observable = (*LUTPass)(nil)
)

// NewLUTPass uploads table and returns a pass at full intensity.
func NewLUTPass(ctx *imp.Context, table *lut.Table) (*LUTPass, error) {
	p := &LUTPass{
		ctx:       ctx,
		lut1:      imp.NewKernelPass(ctx, kernel.LUT1D),
		lut3:      imp.NewKernelPass(ctx, kernel.LUT3D),
		intensity: 1,
	}
	if err := p.setTable(table); err != nil {
		return nil, err
	}
	return p, nil
}

// Table returns the current table.
func (p *LUTPass) Table() *lut.Table {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table
}

// SetTable uploads table and replaces the current one. The old table
// texture is released once the context has finished all submitted work.
func (p *LUTPass) SetTable(table *lut.Table) error {
	if err := p.setTable(table); err != nil {
		return err
	}
	p.changed.Fire(struct{}{})
	return nil
}

func (p *LUTPass) setTable(table *lut.Table) error {
	if table == nil {
		return ErrNoTable
	}
	tex, err := table.Texture(p.ctx.Device())
	if err != nil {
		return err
	}
	p.mu.Lock()
	old := p.tex
	p.table, p.tex = table, tex
	p.mu.Unlock()
	if old != nil {
		p.release(old)
	}
	return nil
}

func (p *LUTPass) release(tex gpucore.Texture) {
	if err := p.ctx.Wait(context.Background()); err != nil {
		imp.Logger().Warn("filters: lut texture released after failed work", "err", err)
	}
	tex.Destroy()
}

// Intensity returns the blend factor.
func (p *LUTPass) Intensity() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.intensity)
}

// SetIntensity sets the blend factor, clamped to [0, 1]. Zero leaves the
// input unchanged.
func (p *LUTPass) SetIntensity(v float64) {
	v = min(max(v, 0), 1)
	p.mu.Lock()
	same := p.intensity == float32(v)
	p.intensity = float32(v)
	p.mu.Unlock()
	if !same {
		p.changed.Fire(struct{}{})
	}
}

// Changed fires after the table or intensity changes.
func (p *LUTPass) Changed() *imp.Event[struct{}] { return &p.changed }

// Encode records the lookup.
func (p *LUTPass) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	p.mu.Lock()
	kind, tex, intensity := p.table.Kind, p.tex, p.intensity
	p.mu.Unlock()
	if tex == nil {
		return ErrNoTable
	}

	kp := p.lut3
	if kind == lut.Kind1D {
		kp = p.lut1
	}
	params := kernel.LUTParams{
		Size:      uint32(tex.Width()), //nolint:gosec // bounded by the texture limit
		Intensity: intensity,
	}
	return kp.EncodeWith(cb, in, out, params.Bytes(), tex)
}

// Close releases the table texture.
func (p *LUTPass) Close() {
	p.mu.Lock()
	tex := p.tex
	p.tex = nil
	p.mu.Unlock()
	if tex != nil {
		p.release(tex)
	}
}
