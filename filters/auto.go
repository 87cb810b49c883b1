package filters

import (
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/analyzer"
	"github.com/gogpu/imp/histogram"
)

// autoAdjust runs a histogram analyzer over every new source of a filter and
// hands each result to update.
type autoAdjust struct {
	analyzer *analyzer.HistogramAnalyzer
	stop     []func()
}

func newAutoAdjust(f *imp.Filter, solver histogram.Solver, update func() error,
	opts ...analyzer.Option) (*autoAdjust, error) {
	a, err := analyzer.NewHistogramAnalyzer(f.Context(), opts...)
	if err != nil {
		return nil, err
	}
	a.AddSolver(solver)
	id := a.Updated.Subscribe(func(*histogram.Histogram) {
		if err := update(); err != nil {
			imp.Logger().Warn("filters: auto adjustment failed", "filter", f.Name(), "err", err)
		}
	})
	return &autoAdjust{
		analyzer: a,
		stop: []func(){
			func() { a.Updated.Unsubscribe(id) },
			a.WatchSource(f),
		},
	}, nil
}

// Analyzer returns the analyzer watching the filter source.
func (a *autoAdjust) Analyzer() *analyzer.HistogramAnalyzer { return a.analyzer }

func (a *autoAdjust) close() {
	for _, stop := range a.stop {
		stop()
	}
}

// AutoLevels stretches the channels of every new source of a filter to the
// full range. The range comes from a RangeSolver over the source histogram.
type AutoLevels struct {
	*LevelsPass
	*autoAdjust

	mu     sync.Mutex
	solver *histogram.RangeSolver
}

// NewAutoLevels appends a LevelsPass to f and feeds it the clipped range of
// every source attached to f afterwards.
func NewAutoLevels(f *imp.Filter, opts ...analyzer.Option) (*AutoLevels, error) {
	pass, err := NewLevelsPass(f.Context())
	if err != nil {
		return nil, err
	}
	al := &AutoLevels{LevelsPass: pass, solver: histogram.NewRangeSolver()}
	al.autoAdjust, err = newAutoAdjust(f, al, al.update, opts...)
	if err != nil {
		pass.Close()
		return nil, err
	}
	f.AddPass(pass)
	return al, nil
}

// SetClipping sets the fraction of samples ignored at each end of the range
// for the next source.
func (al *AutoLevels) SetClipping(c histogram.Clipping) {
	al.mu.Lock()
	al.solver.Clipping = c
	al.mu.Unlock()
}

// Solve implements histogram.Solver.
func (al *AutoLevels) Solve(h *histogram.Histogram) {
	al.mu.Lock()
	al.solver.Solve(h)
	al.mu.Unlock()
}

func (al *AutoLevels) update() error {
	al.mu.Lock()
	var low, high [3]float64
	copy(low[:], al.solver.Min[:3])
	copy(high[:], al.solver.Max[:3])
	al.mu.Unlock()
	return al.SetLevels(low, high)
}

// Close stops watching the filter and releases the pass. The pass stays in
// the filter.
func (al *AutoLevels) Close() {
	al.close()
	al.LevelsPass.Close()
}

// AutoWhiteBalance neutralizes the color cast of every new source of a
// filter. The cast is the dominant color found by a DominantColorSolver over
// the source histogram.
type AutoWhiteBalance struct {
	*WhiteBalancePass
	*autoAdjust

	mu     sync.Mutex
	solver histogram.DominantColorSolver
}

// NewAutoWhiteBalance appends a WhiteBalancePass to f and feeds it the
// dominant color of every source attached to f afterwards.
func NewAutoWhiteBalance(f *imp.Filter, opts ...analyzer.Option) (*AutoWhiteBalance, error) {
	pass, err := NewWhiteBalancePass(f.Context())
	if err != nil {
		return nil, err
	}
	aw := &AutoWhiteBalance{WhiteBalancePass: pass}
	aw.autoAdjust, err = newAutoAdjust(f, aw, aw.update, opts...)
	if err != nil {
		pass.Close()
		return nil, err
	}
	f.AddPass(pass)
	return aw, nil
}

// Solve implements histogram.Solver.
func (aw *AutoWhiteBalance) Solve(h *histogram.Histogram) {
	aw.mu.Lock()
	aw.solver.Solve(h)
	aw.mu.Unlock()
}

func (aw *AutoWhiteBalance) update() error {
	aw.mu.Lock()
	var c [3]float64
	copy(c[:], aw.solver.Color[:3])
	aw.mu.Unlock()
	return aw.SetDominantColor(c)
}

// Close stops watching the filter and releases the pass. The pass stays in
// the filter.
func (aw *AutoWhiteBalance) Close() {
	aw.close()
	aw.WhiteBalancePass.Close()
}
