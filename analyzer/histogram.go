package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/histogram"
	"github.com/gogpu/imp/internal/kernel"
)

// Analyzer errors.
var (
	// ErrNoTexture is returned when there is nothing to analyze.
	ErrNoTexture = errors.New("analyzer: no texture")

	// ErrScale is returned for a sampling scale outside (0, 1].
	ErrScale = errors.New("analyzer: scale out of range")
)

// maxHistogramAccumulators bounds the partial histograms of one reduction.
const maxHistogramAccumulators = 64

// HistogramAnalyzer builds a per-channel histogram of a texture.
type HistogramAnalyzer struct {
	ctx *imp.Context
	fn  *imp.Function
	cfg config

	mu      sync.Mutex
	solvers []histogram.Solver
	hist    *histogram.Histogram

	// Updated fires after every reduction with the merged histogram. The
	// histogram belongs to the analyzer; subscribers must not keep it.
	Updated imp.Event[*histogram.Histogram]
}

// NewHistogramAnalyzer validates the options and returns an analyzer.
func NewHistogramAnalyzer(ctx *imp.Context, opts ...Option) (*HistogramAnalyzer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.region.Validate(); err != nil {
		return nil, err
	}
	if cfg.scale <= 0 || cfg.scale > 1 {
		return nil, fmt.Errorf("%w: %v", ErrScale, cfg.scale)
	}
	h, err := histogram.New(cfg.channels)
	if err != nil {
		return nil, err
	}
	fn := imp.NewFunction(ctx, kernel.HistogramPartial)
	fn.GroupSize = gpucore.Size{Width: 1, Height: 1, Depth: 1}
	return &HistogramAnalyzer{ctx: ctx, fn: fn, cfg: cfg, hist: h}, nil
}

// Accumulators returns the number of partial histograms a reduction fills.
func (a *HistogramAnalyzer) Accumulators() int {
	n := a.ctx.Device().Limits().MaxConcurrentThreads / kernel.HistogramBins
	return min(max(n, 1), maxHistogramAccumulators)
}

// AddSolver appends a solver run after every reduction.
func (a *HistogramAnalyzer) AddSolver(s histogram.Solver) {
	a.mu.Lock()
	a.solvers = append(a.solvers, s)
	a.mu.Unlock()
}

// Histogram returns a copy of the last merged histogram.
func (a *HistogramAnalyzer) Histogram() *histogram.Histogram {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hist.Clone()
}

// Analyze reduces tex and returns a copy of the merged histogram.
func (a *HistogramAnalyzer) Analyze(tex gpucore.Texture) (*histogram.Histogram, error) {
	return a.AnalyzeContext(context.Background(), tex)
}

// AnalyzeContext is Analyze with a context bounding the wait for an
// in-flight slot.
func (a *HistogramAnalyzer) AnalyzeContext(ctx context.Context, tex gpucore.Texture) (*histogram.Histogram, error) {
	if tex == nil {
		return nil, ErrNoTexture
	}
	acc := a.Accumulators()
	channels := a.cfg.channels
	params := kernel.HistogramParams{
		Channels:     uint32(channels), //nolint:gosec // channels validated by histogram.New
		Accumulators: uint32(acc),      //nolint:gosec // bounded by maxHistogramAccumulators
		Scale:        float32(a.cfg.scale),
		Region:       a.cfg.kernelRegion(),
	}
	data, err := reduce(ctx, a.ctx, a.fn, tex, acc,
		kernel.HistogramPartialSize(acc, channels), params.Bytes())
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if err := a.hist.Update(data, acc); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	for _, s := range a.solvers {
		s.Solve(a.hist)
	}
	h := a.hist
	out := h.Clone()
	a.mu.Unlock()

	imp.Logger().Debug("analyzer: histogram updated",
		"texture", tex.Label(), "accumulators", acc, "samples", out.Total(0))
	a.Updated.Fire(h)
	return out, nil
}

// WatchDestination analyzes the destination of f after every evaluation.
// The returned function stops watching.
func (a *HistogramAnalyzer) WatchDestination(f *imp.Filter) (stop func()) {
	return watch(&f.OnDestination, func(tex gpucore.Texture) error {
		_, err := a.Analyze(tex)
		return err
	})
}

// WatchSource analyzes every new source attached to f.
func (a *HistogramAnalyzer) WatchSource(f *imp.Filter) (stop func()) {
	return watch(&f.OnNewSource, func(tex gpucore.Texture) error {
		_, err := a.Analyze(tex)
		return err
	})
}

func watch(ev *imp.Event[gpucore.Texture], analyze func(gpucore.Texture) error) func() {
	id := ev.Subscribe(func(tex gpucore.Texture) {
		if tex == nil {
			return
		}
		if err := analyze(tex); err != nil {
			imp.Logger().Warn("analyzer: reduction failed", "texture", tex.Label(), "err", err)
		}
	})
	return func() { ev.Unsubscribe(id) }
}

// reduce runs one partial reduction of tex into a fresh buffer of size bytes
// and returns its contents.
func reduce(ctx context.Context, ictx *imp.Context, fn *imp.Function, tex gpucore.Texture,
	accumulators, size int, params []byte) ([]byte, error) {
	dev := ictx.Device()
	partials, err := dev.NewBuffer(size, fn.Name()+".partials")
	if err != nil {
		return nil, err
	}
	defer partials.Destroy()
	uniforms, err := dev.NewBuffer(len(params), fn.Name()+".params")
	if err != nil {
		return nil, err
	}
	defer uniforms.Destroy()
	if err := uniforms.Write(0, params); err != nil {
		return nil, err
	}

	err = ictx.ExecuteContext(ctx, true, func(cb gpucore.CommandBuffer) error {
		return fn.Dispatch(cb, gpucore.Size{Width: accumulators, Height: 1, Depth: 1},
			[]gpucore.Texture{tex}, []gpucore.Buffer{partials, uniforms})
	})
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if err := partials.Read(0, data); err != nil {
		return nil, err
	}
	return data, nil
}
