package imp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/imp/gpucore"
)

// Filter graph errors.
var (
	// ErrCycle is returned when adding a child would make a filter its own
	// ancestor.
	ErrCycle = errors.New("imp: filter cycle")

	// ErrHasParent is returned when adding a child that already has a parent.
	ErrHasParent = errors.New("imp: filter already has a parent")

	// ErrForeignContext is returned when linking filters of different contexts.
	ErrForeignContext = errors.New("imp: filter belongs to another context")

	// ErrFilterClosed is returned by operations on a closed Filter.
	ErrFilterClosed = errors.New("imp: filter closed")
)

// Filter is a node of the filter graph. It runs its passes over its source,
// then feeds the result through its children in order. The output of the
// last pass, or of the last child, is the destination.
//
// A filter is stale until evaluated, and again after any change to its
// passes, parameters, source or subtree. Apply re-evaluates a stale filter
// and does nothing for a clean one.
//
// Event subscribers run on the goroutine that triggers them. A subscriber
// must not Apply the filter that fired it.
type Filter struct {
	ctx      *Context
	name     string
	destSize gpucore.Size

	// Guarded by ctx.graphMu.
	parent   *Filter
	children []*Filter
	own      uint64

	// evalMu serializes evaluation and Close.
	evalMu sync.Mutex

	mu          sync.Mutex
	passes      []Pass
	passSubs    []passSubscription
	provider    Provider
	source      gpucore.Texture
	orientation Orientation
	enabled     bool
	closed      bool

	// Output buffers by pass index, touched only under evalMu. Immediate
	// evaluation also keeps one hand-off texture per pass but the last.
	slots    []gpucore.Texture
	handoffs []gpucore.Texture

	dest        gpucore.Texture
	evaluated   bool
	lastStamp   uint64
	lastSource  gpucore.Texture
	lastVersion uint64

	produced atomic.Uint64

	// OnNewSource fires when a source is attached, before evaluation.
	OnNewSource Event[gpucore.Texture]

	// OnSourceConsumed fires just before the passes read the source.
	OnSourceConsumed Event[gpucore.Texture]

	// OnDestination fires after every evaluation with the destination.
	OnDestination Event[gpucore.Texture]

	// OnStale fires when the filter becomes stale.
	OnStale Event[*Filter]
}

type passSubscription struct {
	event *Event[struct{}]
	id    SubscriptionID
}

var _ Provider = (*Filter)(nil)

// NewFilter creates an enabled filter without passes.
func NewFilter(ctx *Context, opts ...FilterOption) *Filter {
	f := &Filter{ctx: ctx, name: "filter", enabled: true}
	for _, opt := range opts {
		opt(f)
	}
	ctx.graphMu.Lock()
	f.own = ctx.nextGeneration()
	ctx.graphMu.Unlock()
	return f
}

// Name returns the filter name.
func (f *Filter) Name() string { return f.name }

// Context returns the context the filter runs on.
func (f *Filter) Context() *Context { return f.ctx }

// --- passes ---

// AddPass appends a pass.
func (f *Filter) AddPass(p Pass) {
	f.mu.Lock()
	f.passes = append(f.passes, p)
	f.subscribeLocked(p)
	f.mu.Unlock()
	f.MarkStale()
}

// SetPasses replaces all passes.
func (f *Filter) SetPasses(passes ...Pass) {
	f.mu.Lock()
	f.unsubscribeLocked()
	f.passes = append([]Pass(nil), passes...)
	for _, p := range f.passes {
		f.subscribeLocked(p)
	}
	f.mu.Unlock()
	f.MarkStale()
}

// Passes returns a copy of the pass list.
func (f *Filter) Passes() []Pass {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Pass(nil), f.passes...)
}

func (f *Filter) subscribeLocked(p Pass) {
	o, ok := p.(Observable)
	if !ok {
		return
	}
	ev := o.Changed()
	id := ev.Subscribe(func(struct{}) { f.MarkStale() })
	f.passSubs = append(f.passSubs, passSubscription{event: ev, id: id})
}

func (f *Filter) unsubscribeLocked() {
	for _, s := range f.passSubs {
		s.event.Unsubscribe(s.id)
	}
	f.passSubs = nil
}

// --- parameters ---

// SetEnabled turns the filter on or off. A disabled filter passes its
// source through untouched.
func (f *Filter) SetEnabled(enabled bool) {
	f.mu.Lock()
	changed := f.enabled != enabled
	f.enabled = enabled
	f.mu.Unlock()
	if changed {
		f.MarkStale()
	}
}

// Enabled reports whether the filter is enabled.
func (f *Filter) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// SetDestinationSize fixes the output size of every pass. An empty size
// restores per-pass sizing.
func (f *Filter) SetDestinationSize(size gpucore.Size) {
	f.mu.Lock()
	f.destSize = size
	f.mu.Unlock()
	f.MarkStale()
}

// DestinationSize returns the size set by SetDestinationSize.
func (f *Filter) DestinationSize() gpucore.Size {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destSize
}

// --- source ---

// SetSource attaches a fixed texture as the source.
func (f *Filter) SetSource(tex gpucore.Texture) {
	f.SetProvider(NewTextureProvider(tex, Up))
}

// SetProvider attaches a provider as the source. The filter becomes stale
// and OnNewSource fires with the provider's current texture.
func (f *Filter) SetProvider(p Provider) {
	f.mu.Lock()
	f.provider = p
	f.source = nil
	f.mu.Unlock()
	f.MarkStale()
	var tex gpucore.Texture
	if p != nil {
		tex = p.Texture()
	}
	f.OnNewSource.Fire(tex)
}

// Source returns the current source texture, or nil.
func (f *Filter) Source() gpucore.Texture {
	f.mu.Lock()
	defer f.mu.Unlock()
	tex, _, _ := f.currentSourceLocked()
	return tex
}

func (f *Filter) currentSourceLocked() (gpucore.Texture, Orientation, uint64) {
	if f.provider == nil {
		return f.source, f.orientation, 0
	}
	var version uint64
	if v, ok := f.provider.(Versioned); ok {
		version = v.Version()
	}
	return f.provider.Texture(), f.provider.Orientation(), version
}

// handOff installs the output of the previous stage as the source without
// changing generations.
func (f *Filter) handOff(tex gpucore.Texture, o Orientation) {
	f.mu.Lock()
	f.provider = nil
	f.source = tex
	f.orientation = o
	f.mu.Unlock()
	f.OnNewSource.Fire(tex)
}

// --- graph ---

// AddChild appends child to the chain fed by this filter.
func (f *Filter) AddChild(child *Filter) error {
	if child == nil {
		return errors.New("imp: nil child")
	}
	if child.ctx != f.ctx {
		return ErrForeignContext
	}
	f.ctx.graphMu.Lock()
	if child.parent != nil {
		f.ctx.graphMu.Unlock()
		return ErrHasParent
	}
	for a := f; a != nil; a = a.parent {
		if a == child {
			f.ctx.graphMu.Unlock()
			return fmt.Errorf("%w: %s under %s", ErrCycle, child.name, f.name)
		}
	}
	child.parent = f
	f.children = append(f.children, child)
	f.ctx.graphMu.Unlock()
	f.MarkStale()
	return nil
}

// RemoveChild detaches child. It reports whether child was a child of f.
func (f *Filter) RemoveChild(child *Filter) bool {
	f.ctx.graphMu.Lock()
	idx := -1
	for i, c := range f.children {
		if c == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.ctx.graphMu.Unlock()
		return false
	}
	f.children = append(f.children[:idx:idx], f.children[idx+1:]...)
	child.parent = nil
	f.ctx.graphMu.Unlock()
	f.MarkStale()
	child.MarkStale()
	return true
}

// Children returns a copy of the child list.
func (f *Filter) Children() []*Filter {
	f.ctx.graphMu.RLock()
	defer f.ctx.graphMu.RUnlock()
	return append([]*Filter(nil), f.children...)
}

// Parent returns the parent filter, or nil for a root.
func (f *Filter) Parent() *Filter {
	f.ctx.graphMu.RLock()
	defer f.ctx.graphMu.RUnlock()
	return f.parent
}

// --- staleness ---

// MarkStale bumps the filter generation, which makes the filter, its
// descendants and its ancestors stale, and fires OnStale on each of them.
func (f *Filter) MarkStale() {
	f.ctx.graphMu.Lock()
	f.own = f.ctx.nextGeneration()
	var affected []*Filter
	f.collectSubtreeLocked(&affected)
	for a := f.parent; a != nil; a = a.parent {
		affected = append(affected, a)
	}
	f.ctx.graphMu.Unlock()

	for _, n := range affected {
		n.OnStale.Fire(n)
	}
}

func (f *Filter) collectSubtreeLocked(out *[]*Filter) {
	*out = append(*out, f)
	for _, c := range f.children {
		c.collectSubtreeLocked(out)
	}
}

// stampLocked combines the generations of the subtree and of every
// ancestor. Generations come from one increasing counter, so the maximum
// changes whenever any of them is bumped. Caller must hold graphMu.
func (f *Filter) stampLocked() uint64 {
	s := f.subtreeStampLocked()
	for a := f.parent; a != nil; a = a.parent {
		s = max(s, a.own)
	}
	return s
}

func (f *Filter) subtreeStampLocked() uint64 {
	s := f.own
	for _, c := range f.children {
		s = max(s, c.subtreeStampLocked())
	}
	return s
}

// Stale reports whether Apply would re-evaluate the filter.
func (f *Filter) Stale() bool {
	f.ctx.graphMu.RLock()
	stamp := f.stampLocked()
	var path []*Filter
	for a := f; a != nil; a = a.parent {
		path = append(path, a)
	}
	f.ctx.graphMu.RUnlock()

	f.mu.Lock()
	stale := !f.evaluated || stamp != f.lastStamp
	f.mu.Unlock()
	if stale {
		return true
	}
	for _, n := range path {
		if n.sourceChanged() {
			return true
		}
	}
	return false
}

func (f *Filter) sourceChanged() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.evaluated {
		return true
	}
	tex, _, version := f.currentSourceLocked()
	return tex != f.lastSource || version != f.lastVersion
}

// --- evaluation ---

// Apply evaluates the filter if it is stale.
func (f *Filter) Apply() error {
	return f.ApplyContext(context.Background())
}

// ApplyContext is Apply with a context bounding waits for in-flight slots.
func (f *Filter) ApplyContext(ctx context.Context) error {
	f.evalMu.Lock()
	defer f.evalMu.Unlock()
	return f.evaluate(ctx, false)
}

// Destination evaluates the filter if needed and returns its output. Under
// the Deferred policy the work producing it may still be running; call
// Context.Wait before reading it on the host.
func (f *Filter) Destination() (gpucore.Texture, error) {
	if err := f.Apply(); err != nil {
		return nil, err
	}
	return f.Texture(), nil
}

func (f *Filter) evaluate(ctx context.Context, force bool) error {
	f.ctx.graphMu.RLock()
	stamp := f.stampLocked()
	children := append([]*Filter(nil), f.children...)
	f.ctx.graphMu.RUnlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFilterClosed
	}
	src, orientation, version := f.currentSourceLocked()
	clean := f.evaluated && stamp == f.lastStamp && src == f.lastSource && version == f.lastVersion
	passes := append([]Pass(nil), f.passes...)
	enabled := f.enabled
	destSize := f.destSize
	f.mu.Unlock()

	if src == nil || (clean && !force) {
		return nil
	}

	out := src
	if enabled {
		if len(passes) == 0 && len(children) == 0 {
			passes = []Pass{passthrough(f.ctx)}
		}
		if len(passes) > 0 {
			f.OnSourceConsumed.Fire(src)
			var err error
			if f.ctx.Policy() == Deferred {
				out, err = f.runDeferred(ctx, src, passes, destSize)
			} else {
				out, err = f.runImmediate(ctx, src, passes, destSize)
			}
			if err != nil {
				return fmt.Errorf("imp: filter %s: %w", f.name, err)
			}
		}
		for _, c := range children {
			c.evalMu.Lock()
			c.handOff(out, orientation)
			err := c.evaluate(ctx, true)
			if err == nil {
				out = c.Texture()
			}
			c.evalMu.Unlock()
			if err != nil {
				return err
			}
		}
	}

	f.mu.Lock()
	f.dest = out
	f.orientation = orientation
	f.evaluated = true
	f.lastStamp = stamp
	f.lastSource = src
	f.lastVersion = version
	f.mu.Unlock()
	f.produced.Add(1)

	f.OnDestination.Fire(out)
	return nil
}

// outputSizes returns the output size of each pass.
func outputSizes(in gpucore.Size, passes []Pass, destSize gpucore.Size) []gpucore.Size {
	sizes := make([]gpucore.Size, len(passes))
	for i, p := range passes {
		s := in
		switch {
		case !destSize.Empty():
			s = destSize
		case p != nil:
			if sz, ok := p.(Sizer); ok {
				s = sz.OutputSize(in)
			}
		}
		s.Width, s.Height, s.Depth = max(s.Width, 1), max(s.Height, 1), 1
		sizes[i] = s
		in = s
	}
	return sizes
}

// ensure returns *slot when it already has size and format, else allocates a
// replacement. The replaced texture is appended to retired.
func (f *Filter) ensure(slot *gpucore.Texture, label string, size gpucore.Size,
	format gpucore.TextureFormat, retired *[]gpucore.Texture) (gpucore.Texture, error) {
	if t := *slot; t != nil && t.Width() == size.Width && t.Height() == size.Height && t.Format() == format {
		f.ctx.alloc.touch(t)
		return t, nil
	}
	t, err := f.ctx.alloc.texture(gpucore.TextureDescriptor{
		Label:  f.name + "." + label,
		Width:  size.Width,
		Height: size.Height,
		Depth:  1,
		Format: format,
	})
	if err != nil {
		return nil, err
	}
	if *slot != nil {
		*retired = append(*retired, *slot)
	}
	*slot = t
	return t, nil
}

// resize makes *slots hold n entries, retiring the textures cut off.
func resize(slots *[]gpucore.Texture, n int, retired *[]gpucore.Texture) {
	for _, t := range (*slots)[min(n, len(*slots)):] {
		if t != nil {
			*retired = append(*retired, t)
		}
	}
	if n <= len(*slots) {
		*slots = (*slots)[:n:n]
		return
	}
	*slots = append(*slots, make([]gpucore.Texture, n-len(*slots))...)
}

// retire marks replaced textures purgeable so a budgeted allocator may evict
// them before releaseAll destroys them.
func (f *Filter) retire(retired []gpucore.Texture) {
	for _, t := range retired {
		f.ctx.alloc.purge(t)
	}
}

func (f *Filter) releaseAll(retired []gpucore.Texture) {
	for _, t := range retired {
		f.ctx.alloc.release(t)
	}
	if len(retired) > 0 {
		Logger().Debug("imp: filter outputs released", "filter", f.name, "count", len(retired))
	}
}

// runDeferred records every pass into one command buffer. Pass i writes
// slot i and the next pass reads it directly.
func (f *Filter) runDeferred(ctx context.Context, src gpucore.Texture, passes []Pass, destSize gpucore.Size) (gpucore.Texture, error) {
	sizes := outputSizes(src.Size(), passes, destSize)
	targets := make([]gpucore.Texture, len(passes))
	var retired []gpucore.Texture
	resize(&f.slots, len(passes), &retired)
	resize(&f.handoffs, 0, &retired)

	for i := range passes {
		t, err := f.ensure(&f.slots[i], fmt.Sprintf("slot%d", i), sizes[i], src.Format(), &retired)
		if err != nil {
			f.ctx.drain()
			f.releaseAll(retired)
			return nil, err
		}
		targets[i] = t
	}
	f.retire(retired)

	err := f.ctx.ExecuteContext(ctx, false, func(cb gpucore.CommandBuffer) error {
		// Earlier command buffers complete first, so nothing can reach the
		// retired textures once this one has.
		cb.AddCompletedHandler(func(error) { f.releaseAll(retired) })
		in := src
		for i, p := range passes {
			if err := p.Encode(cb, in, targets[i]); err != nil {
				return fmt.Errorf("pass %d: %w", i, err)
			}
			in = targets[i]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return targets[len(targets)-1], nil
}

// runImmediate runs each pass in its own waited submission. Pass i writes
// slot i; all but the last copy it into hand-off i that the next pass reads.
func (f *Filter) runImmediate(ctx context.Context, src gpucore.Texture, passes []Pass, destSize gpucore.Size) (gpucore.Texture, error) {
	sizes := outputSizes(src.Size(), passes, destSize)
	var retired []gpucore.Texture
	resize(&f.slots, len(passes), &retired)
	resize(&f.handoffs, len(passes)-1, &retired)
	defer func() {
		if len(retired) == 0 {
			return
		}
		f.retire(retired)
		f.ctx.drain()
		f.releaseAll(retired)
	}()

	in := src
	var out gpucore.Texture
	for i, p := range passes {
		last := i == len(passes)-1
		var err error
		out, err = f.ensure(&f.slots[i], fmt.Sprintf("slot%d", i), sizes[i], src.Format(), &retired)
		if err != nil {
			return nil, err
		}
		var next gpucore.Texture
		if !last {
			next, err = f.ensure(&f.handoffs[i], fmt.Sprintf("handoff%d", i), sizes[i], src.Format(), &retired)
			if err != nil {
				return nil, err
			}
		}
		input := in
		err = f.ctx.ExecuteContext(ctx, true, func(cb gpucore.CommandBuffer) error {
			if err := p.Encode(cb, input, out); err != nil {
				return fmt.Errorf("pass %d: %w", i, err)
			}
			if last {
				return nil
			}
			be := cb.BlitEncoder()
			be.CopyTexture(out, gpucore.Origin{}, next, gpucore.Origin{}, sizes[i])
			return be.End()
		})
		if err != nil {
			return nil, err
		}
		in = next
	}
	return out, nil
}

// --- provider ---

// Texture returns the destination of the last evaluation without
// evaluating.
func (f *Filter) Texture() gpucore.Texture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dest
}

// Orientation returns the orientation of the source.
func (f *Filter) Orientation() Orientation {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, o, _ := f.currentSourceLocked()
	return o
}

// Version counts completed evaluations, so a filter reading this one as its
// provider becomes stale after every evaluation.
func (f *Filter) Version() uint64 {
	return f.produced.Load()
}

// Close detaches the filter from its parent and releases its output
// textures. Children are detached but not closed.
func (f *Filter) Close() error {
	f.evalMu.Lock()
	defer f.evalMu.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.unsubscribeLocked()
	f.dest = nil
	f.mu.Unlock()

	f.ctx.graphMu.Lock()
	if p := f.parent; p != nil {
		for i, c := range p.children {
			if c == f {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
		p.own = f.ctx.nextGeneration()
		f.parent = nil
	}
	for _, c := range f.children {
		c.parent = nil
		c.own = f.ctx.nextGeneration()
	}
	f.children = nil
	f.ctx.graphMu.Unlock()

	// Work recorded under the Deferred policy may still use the outputs.
	f.ctx.drain()
	for _, t := range append(f.slots, f.handoffs...) {
		f.ctx.alloc.release(t)
	}
	f.slots = nil
	f.handoffs = nil
	return nil
}
