package analyzer

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/histogram"
	"github.com/gogpu/imp/internal/kernel"
)

// CubeAnalyzer builds a color cube of a texture.
type CubeAnalyzer struct {
	ctx *imp.Context
	fn  *imp.Function
	cfg config

	mu      sync.Mutex
	solvers []histogram.CubeSolver
	cube    *histogram.Cube

	// Updated fires after every reduction with the merged cube. The cube
	// belongs to the analyzer; subscribers must not keep it.
	Updated imp.Event[*histogram.Cube]
}

// NewCubeAnalyzer validates the options and returns an analyzer.
func NewCubeAnalyzer(ctx *imp.Context, opts ...Option) (*CubeAnalyzer, error) {
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
	clip := cfg.clipping
	if clip.Shadows < 0 || clip.Highlights < 0 || clip.Shadows+clip.Highlights > 1 {
		return nil, fmt.Errorf("analyzer: clipping %+v out of range", clip)
	}
	fn := imp.NewFunction(ctx, kernel.CubePartial)
	fn.GroupSize = gpucore.Size{Width: 1, Height: 1, Depth: 1}
	return &CubeAnalyzer{ctx: ctx, fn: fn, cfg: cfg, cube: histogram.NewCube()}, nil
}

// maxCubeParallel bounds the partial cubes filled for parallelism alone.
// Each one takes CubePartialSize(1) bytes of device memory.
const maxCubeParallel = 16

// Accumulators returns the number of partial cubes a reduction of a texture
// of the given size fills. There is one per device worker group up to
// maxCubeParallel, and more when a stripe would overflow a cell's sums.
func (a *CubeAnalyzer) Accumulators(size gpucore.Size) int {
	parallel := a.ctx.Device().Limits().MaxConcurrentThreads / kernel.HistogramBins
	parallel = min(max(parallel, 1), maxCubeParallel)
	sw, sh := kernel.SampleGrid(size.Width, size.Height, float32(a.cfg.scale))
	return kernel.CubeAccumulators(sw, sh, parallel)
}

// AddSolver appends a solver run after every reduction.
func (a *CubeAnalyzer) AddSolver(s histogram.CubeSolver) {
	a.mu.Lock()
	a.solvers = append(a.solvers, s)
	a.mu.Unlock()
}

// Palette returns up to count colors from the maxima of the last cube.
func (a *CubeAnalyzer) Palette(count int) [][3]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cube.Palette(count)
}

// MedianCut splits the last cube into at most k boxes.
func (a *CubeAnalyzer) MedianCut(k int) []histogram.Box {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cube.MedianCut(k)
}

// Total returns the number of samples in the last cube.
func (a *CubeAnalyzer) Total() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cube.Total()
}

// Analyze reduces tex into the cube.
func (a *CubeAnalyzer) Analyze(tex gpucore.Texture) error {
	return a.AnalyzeContext(context.Background(), tex)
}

// AnalyzeContext is Analyze with a context bounding the wait for an
// in-flight slot.
func (a *CubeAnalyzer) AnalyzeContext(ctx context.Context, tex gpucore.Texture) error {
	if tex == nil {
		return ErrNoTexture
	}
	acc := a.Accumulators(tex.Size())
	params := kernel.CubeParams{
		Accumulators: uint32(acc), //nolint:gosec // positive and small
		Scale:        float32(a.cfg.scale),
		Region:       a.cfg.kernelRegion(),
		Shadows:      float32(a.cfg.clipping.Shadows),
		Highlights:   float32(a.cfg.clipping.Highlights),
	}
	data, err := reduce(ctx, a.ctx, a.fn, tex, acc, kernel.CubePartialSize(acc), params.Bytes())
	if err != nil {
		return err
	}

	a.mu.Lock()
	if err := a.cube.Update(data, acc); err != nil {
		a.mu.Unlock()
		return err
	}
	for _, s := range a.solvers {
		s.Solve(a.cube)
	}
	total := a.cube.Total()
	a.mu.Unlock()

	imp.Logger().Debug("analyzer: cube updated", "texture", tex.Label(), "accumulators", acc, "samples", total)
	a.Updated.Fire(a.cube)
	return nil
}

// WatchDestination analyzes the destination of f after every evaluation.
// The returned function stops watching.
func (a *CubeAnalyzer) WatchDestination(f *imp.Filter) (stop func()) {
	return watch(&f.OnDestination, a.Analyze)
}

// WatchSource analyzes every new source attached to f.
func (a *CubeAnalyzer) WatchSource(f *imp.Filter) (stop func()) {
	return watch(&f.OnNewSource, a.Analyze)
}
