package imp

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/kernel"
)

// halfPass halves its input with the nearest-neighbour pass-through kernel.
type halfPass struct {
	*KernelPass
}

func newHalfPass(ctx *Context) halfPass {
	return halfPass{NewKernelPass(ctx, kernel.Passthrough)}
}

func (halfPass) OutputSize(in gpucore.Size) gpucore.Size {
	return gpucore.Size2D(in.Width/2, in.Height/2)
}

func readTexture(t *testing.T, ctx *Context, tex gpucore.Texture) []byte {
	t.Helper()
	if err := ctx.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	data, err := tex.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return data
}

var policies = []HazardPolicy{Immediate, Deferred}

// =============================================================================
// Evaluation Tests
// =============================================================================

func TestFilter_IdentityPassthrough(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newTestContext(t, WithHazardPolicy(policy))
			src := newTestTexture(t, ctx, 37, 19)

			f := NewFilter(ctx)
			f.SetSource(src)
			dst, err := f.Destination()
			if err != nil {
				t.Fatalf("Destination() error = %v", err)
			}
			if dst == src {
				t.Fatal("Destination() aliases the source, want an owned copy")
			}
			if got, want := readTexture(t, ctx, dst), readTexture(t, ctx, src); !bytes.Equal(got, want) {
				t.Error("destination differs from source")
			}
		})
	}
}

func TestFilter_NoSourceIsNoop(t *testing.T) {
	ctx := newTestContext(t)
	f := NewFilter(ctx)
	fired := false
	f.OnDestination.Subscribe(func(gpucore.Texture) { fired = true })

	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if f.Texture() != nil {
		t.Error("Texture() != nil without a source")
	}
	if fired {
		t.Error("OnDestination fired without a source")
	}
	if !f.Stale() {
		t.Error("Stale() = false for a filter never evaluated")
	}
}

func TestFilter_PoliciesAgree(t *testing.T) {
	results := make(map[HazardPolicy][]byte)
	for _, policy := range policies {
		ctx := newTestContext(t, WithHazardPolicy(policy))
		src := newTestTexture(t, ctx, 40, 20)

		f := NewFilter(ctx)
		f.SetPasses(newHalfPass(ctx), newHalfPass(ctx))
		f.SetSource(src)
		dst, err := f.Destination()
		if err != nil {
			t.Fatalf("%v: Destination() error = %v", policy, err)
		}
		if got, want := dst.Size(), gpucore.Size2D(10, 5); got != want {
			t.Fatalf("%v: destination size = %v, want %v", policy, got, want)
		}
		results[policy] = readTexture(t, ctx, dst)
	}

	data := results[Immediate]
	for y := range 5 {
		for x := range 10 {
			i := (y*10 + x) * 4
			want := []byte{byte(4 * x), byte(4 * y), byte(4*x + 4*y), 255}
			if !bytes.Equal(data[i:i+4], want) {
				t.Fatalf("texel (%d,%d) = %v, want %v", x, y, data[i:i+4], want)
			}
		}
	}
	if !bytes.Equal(results[Immediate], results[Deferred]) {
		t.Error("Immediate and Deferred results differ")
	}
}

func TestFilter_DestinationSizeOverridesPasses(t *testing.T) {
	ctx := newTestContext(t)
	src := newTestTexture(t, ctx, 40, 20)

	f := NewFilter(ctx, WithName("sized"), WithDestinationSize(gpucore.Size2D(8, 8)))
	f.AddPass(newHalfPass(ctx))
	f.SetSource(src)
	dst, err := f.Destination()
	if err != nil {
		t.Fatalf("Destination() error = %v", err)
	}
	if got, want := dst.Size(), gpucore.Size2D(8, 8); got != want {
		t.Errorf("destination size = %v, want %v", got, want)
	}
}

func TestFilter_Disabled(t *testing.T) {
	ctx := newTestContext(t)
	src := newTestTexture(t, ctx, 8, 8)

	f := NewFilter(ctx)
	f.AddPass(newHalfPass(ctx))
	f.SetEnabled(false)
	f.SetSource(src)

	var got gpucore.Texture
	f.OnDestination.Subscribe(func(tex gpucore.Texture) { got = tex })
	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != src {
		t.Error("OnDestination of a disabled filter did not receive the source")
	}
	if f.Texture() != src {
		t.Error("disabled filter destination is not the source")
	}
	if s := ctx.MemoryStats(); s.Allocations != 0 {
		t.Errorf("disabled filter allocated %d textures", s.Allocations)
	}
}

func TestFilter_PassError(t *testing.T) {
	ctx := newTestContext(t)
	src := newTestTexture(t, ctx, 4, 4)
	boom := errors.New("boom")

	f := NewFilter(ctx)
	f.AddPass(PassFunc(func(gpucore.CommandBuffer, gpucore.Texture, gpucore.Texture) error { return boom }))
	f.SetSource(src)
	if err := f.Apply(); !errors.Is(err, boom) {
		t.Fatalf("Apply() error = %v, want boom", err)
	}
	if !f.Stale() {
		t.Error("filter clean after a failed evaluation")
	}
}

// =============================================================================
// Staleness Tests
// =============================================================================

func TestFilter_DirtyPropagation(t *testing.T) {
	ctx := newTestContext(t)
	src := newTestTexture(t, ctx, 16, 16)

	root := NewFilter(ctx, WithName("root"))
	a := NewFilter(ctx, WithName("a"))
	b := NewFilter(ctx, WithName("b"))
	c := NewFilter(ctx, WithName("c"))
	for _, link := range [][2]*Filter{{root, a}, {root, b}, {a, c}} {
		if err := link[0].AddChild(link[1]); err != nil {
			t.Fatalf("AddChild(%s, %s) error = %v", link[0].Name(), link[1].Name(), err)
		}
	}
	all := []*Filter{root, a, b, c}

	root.SetSource(src)
	for _, f := range all {
		if !f.Stale() {
			t.Errorf("%s.Stale() = false after the root source changed", f.Name())
		}
	}

	if err := root.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	for _, f := range all {
		if f.Stale() {
			t.Errorf("%s.Stale() = true after Apply", f.Name())
		}
	}

	c.MarkStale()
	for _, f := range []*Filter{root, a, c} {
		if !f.Stale() {
			t.Errorf("%s.Stale() = false after its descendant c was marked", f.Name())
		}
	}
	if b.Stale() {
		t.Error("b.Stale() = true, want a sibling branch to stay clean")
	}

	if err := root.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	root.MarkStale()
	for _, f := range all {
		if !f.Stale() {
			t.Errorf("%s.Stale() = false after the root was marked", f.Name())
		}
	}
}

func TestFilter_OnStaleReachesDescendantsAndAncestors(t *testing.T) {
	ctx := newTestContext(t)
	root, mid, leaf := NewFilter(ctx), NewFilter(ctx), NewFilter(ctx)
	if err := root.AddChild(mid); err != nil {
		t.Fatal(err)
	}
	if err := mid.AddChild(leaf); err != nil {
		t.Fatal(err)
	}

	fired := map[*Filter]int{}
	for _, f := range []*Filter{root, mid, leaf} {
		f.OnStale.Subscribe(func(n *Filter) { fired[n]++ })
	}
	mid.MarkStale()
	for _, f := range []*Filter{root, mid, leaf} {
		if fired[f] != 1 {
			t.Errorf("OnStale fired %d times on %p, want 1", fired[f], f)
		}
	}
}

func TestFilter_ObservablePassMarksStale(t *testing.T) {
	ctx := newTestContext(t)
	src := newTestTexture(t, ctx, 4, 4)

	p := NewKernelPass(ctx, kernel.Passthrough)
	f := NewFilter(ctx)
	f.AddPass(p)
	f.SetSource(src)
	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	p.SetUniforms([]byte{1, 2, 3, 4})
	if !f.Stale() {
		t.Error("Stale() = false after a pass parameter changed")
	}

	f.SetPasses()
	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	p.SetUniforms(nil)
	if f.Stale() {
		t.Error("a removed pass still marks the filter stale")
	}
}

func TestFilter_ProviderVersion(t *testing.T) {
	ctx := newTestContext(t)
	src := newTestTexture(t, ctx, 4, 4)

	prov := NewTextureProvider(src, Up)
	f := NewFilter(ctx)
	f.SetProvider(prov)
	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if f.Stale() {
		t.Fatal("Stale() = true after Apply")
	}
	prov.Set(src, Left)
	if !f.Stale() {
		t.Error("Stale() = false after the provider published a new version")
	}
	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := f.Orientation(); got != Left {
		t.Errorf("Orientation() = %v, want %v", got, Left)
	}
}

func TestFilter_FilterAsProvider(t *testing.T) {
	ctx := newTestContext(t)
	src := newTestTexture(t, ctx, 4, 4)

	upstream := NewFilter(ctx)
	upstream.SetSource(src)
	downstream := NewFilter(ctx)
	downstream.SetProvider(upstream)

	if err := upstream.Apply(); err != nil {
		t.Fatalf("upstream Apply() error = %v", err)
	}
	if err := downstream.Apply(); err != nil {
		t.Fatalf("downstream Apply() error = %v", err)
	}
	if downstream.Stale() {
		t.Fatal("downstream stale after Apply")
	}
	upstream.MarkStale()
	if err := upstream.Apply(); err != nil {
		t.Fatalf("upstream Apply() error = %v", err)
	}
	if !downstream.Stale() {
		t.Error("downstream clean after upstream re-evaluated")
	}
}

// =============================================================================
// Resource Tests
// =============================================================================

func TestFilter_ReusesOutput(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newTestContext(t, WithHazardPolicy(policy))
			src := newTestTexture(t, ctx, 16, 8)

			f := NewFilter(ctx)
			f.SetSource(src)
			if err := f.Apply(); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			first := f.Texture()

			if err := f.Apply(); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			f.MarkStale()
			if err := f.Apply(); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if f.Texture() != first {
				t.Error("output texture replaced although the size did not change")
			}
			if s := ctx.MemoryStats(); s.Allocations != 1 {
				t.Errorf("Allocations = %d, want 1", s.Allocations)
			}
		})
	}
}

func TestFilter_ResizeRetiresOutput(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newTestContext(t, WithHazardPolicy(policy))
			f := NewFilter(ctx)
			f.SetSource(newTestTexture(t, ctx, 16, 8))
			if err := f.Apply(); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			first := f.Texture()

			f.SetSource(newTestTexture(t, ctx, 8, 8))
			if err := f.Apply(); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if f.Texture() == first {
				t.Fatal("output texture kept although the size changed")
			}
			if !first.Purgeable() {
				t.Error("replaced output not marked purgeable")
			}
			if err := ctx.Wait(context.Background()); err != nil {
				t.Fatal(err)
			}
			s := ctx.MemoryStats()
			if s.Purges != 1 || s.Allocations != 2 {
				t.Errorf("MemoryStats() = %+v, want 2 allocations and 1 purge", s)
			}
			if s.TextureCount != 1 {
				t.Errorf("TextureCount = %d, want 1 once the replaced output is released", s.TextureCount)
			}
		})
	}
}

func TestFilter_ReusesOutputsOfDifferentSizes(t *testing.T) {
	// Immediate keeps one hand-off texture between the two passes.
	want := map[HazardPolicy]uint64{Immediate: 3, Deferred: 2}
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newTestContext(t, WithHazardPolicy(policy))
			f := NewFilter(ctx)
			f.SetPasses(newHalfPass(ctx), newHalfPass(ctx))
			f.SetSource(newTestTexture(t, ctx, 16, 8))

			var outputs []gpucore.Texture
			for range 10 {
				f.MarkStale()
				if err := f.Apply(); err != nil {
					t.Fatalf("Apply() error = %v", err)
				}
				outputs = append(outputs, f.Texture())
			}
			if err := ctx.Wait(context.Background()); err != nil {
				t.Fatal(err)
			}

			if got := outputs[9].Size(); got != gpucore.Size2D(4, 2) {
				t.Errorf("output size = %v, want 4x2", got)
			}
			for i, out := range outputs {
				if out != outputs[0] {
					t.Fatalf("evaluation %d replaced the output texture", i)
				}
			}
			s := ctx.MemoryStats()
			if s.Allocations != want[policy] || s.TextureCount != int(want[policy]) {
				t.Errorf("MemoryStats() = %v, want %d textures allocated once", s, want[policy])
			}
			if s.Purges != 0 {
				t.Errorf("Purges = %d, want 0", s.Purges)
			}
		})
	}
}

func TestFilter_FewerPassesReleasesSlots(t *testing.T) {
	ctx := newTestContext(t, WithHazardPolicy(Deferred))
	f := NewFilter(ctx)
	f.SetPasses(newHalfPass(ctx), newHalfPass(ctx))
	f.SetSource(newTestTexture(t, ctx, 16, 8))
	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	f.SetPasses(newHalfPass(ctx))
	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := ctx.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := ctx.MemoryStats(); s.TextureCount != 1 {
		t.Errorf("TextureCount = %d, want 1 after dropping a pass", s.TextureCount)
	}
}

func TestFilter_Close(t *testing.T) {
	ctx := newTestContext(t)
	root, f := NewFilter(ctx), NewFilter(ctx)
	if err := root.AddChild(f); err != nil {
		t.Fatal(err)
	}
	root.SetSource(newTestTexture(t, ctx, 4, 4))
	if err := root.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(root.Children()) != 0 {
		t.Error("closed filter still attached to its parent")
	}
	if !root.Stale() {
		t.Error("parent clean after its child was closed")
	}
	if err := f.Apply(); !errors.Is(err, ErrFilterClosed) {
		t.Errorf("Apply() after Close error = %v, want ErrFilterClosed", err)
	}
	if s := ctx.MemoryStats(); s.TextureCount != 0 {
		t.Errorf("TextureCount = %d after Close, want 0", s.TextureCount)
	}
}

// =============================================================================
// Graph Tests
// =============================================================================

func TestFilter_ChildrenChain(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newTestContext(t, WithHazardPolicy(policy))
			src := newTestTexture(t, ctx, 40, 20)

			root := NewFilter(ctx, WithName("root"))
			root.AddPass(newHalfPass(ctx))
			first := NewFilter(ctx, WithName("first"))
			first.AddPass(newHalfPass(ctx))
			last := NewFilter(ctx, WithName("last"))
			for _, c := range []*Filter{first, last} {
				if err := root.AddChild(c); err != nil {
					t.Fatal(err)
				}
			}

			var firstSource gpucore.Texture
			first.OnNewSource.Subscribe(func(tex gpucore.Texture) { firstSource = tex })

			root.SetSource(src)
			dst, err := root.Destination()
			if err != nil {
				t.Fatalf("Destination() error = %v", err)
			}
			if dst != last.Texture() {
				t.Error("root destination is not the last child's destination")
			}
			if got, want := dst.Size(), gpucore.Size2D(10, 5); got != want {
				t.Errorf("destination size = %v, want %v", got, want)
			}
			if firstSource == nil || firstSource.Size() != gpucore.Size2D(20, 10) {
				t.Errorf("first child source = %v, want the 20x10 root pass output", firstSource)
			}
			if got, want := readTexture(t, ctx, dst)[4*11:4*11+4], []byte{4, 4, 8, 255}; !bytes.Equal(got, want) {
				t.Errorf("texel (1,1) = %v, want %v", got, want)
			}
		})
	}
}

func TestFilter_ObserverOrder(t *testing.T) {
	ctx := newTestContext(t)
	src := newTestTexture(t, ctx, 4, 4)

	f := NewFilter(ctx)
	var events []string
	f.OnNewSource.Subscribe(func(gpucore.Texture) { events = append(events, "new-source") })
	f.OnSourceConsumed.Subscribe(func(gpucore.Texture) { events = append(events, "consumed") })
	f.OnDestination.Subscribe(func(gpucore.Texture) { events = append(events, "destination") })
	f.OnDestination.Subscribe(func(gpucore.Texture) { events = append(events, "destination-2") })

	f.SetSource(src)
	if err := f.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := []string{"new-source", "consumed", "destination", "destination-2"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestFilter_AddChildErrors(t *testing.T) {
	ctx := newTestContext(t)
	other := newTestContext(t)

	root, child := NewFilter(ctx), NewFilter(ctx)
	if err := root.AddChild(child); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		parent *Filter
		child  *Filter
		want   error
	}{
		{"self", root, root, ErrCycle},
		{"ancestor", child, root, ErrCycle},
		{"has parent", NewFilter(ctx), child, ErrHasParent},
		{"foreign context", root, NewFilter(other), ErrForeignContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.parent.AddChild(tt.child); !errors.Is(err, tt.want) {
				t.Errorf("AddChild() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFilter_RemoveChild(t *testing.T) {
	ctx := newTestContext(t)
	root, child := NewFilter(ctx), NewFilter(ctx)
	if err := root.AddChild(child); err != nil {
		t.Fatal(err)
	}
	if !root.RemoveChild(child) {
		t.Fatal("RemoveChild() = false, want true")
	}
	if root.RemoveChild(child) {
		t.Error("second RemoveChild() = true, want false")
	}
	if child.Parent() != nil {
		t.Error("removed child still has a parent")
	}
}
