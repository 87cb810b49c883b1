package filters

import (
	"math"
	"testing"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
)

// fillTexture allocates a w×h RGBA8 texture with texel (x, y) = fn(x, y).
func fillTexture(t *testing.T, ctx *imp.Context, w, h int, fn func(x, y int) [4]byte) gpucore.Texture {
	t.Helper()
	tex, err := ctx.Device().NewTexture(gpucore.DefaultTextureDescriptor(w, h))
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	t.Cleanup(tex.Destroy)
	data := make([]byte, 0, w*h*4)
	for y := range h {
		for x := range w {
			c := fn(x, y)
			data = append(data, c[:]...)
		}
	}
	if err := tex.Upload(data); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return tex
}

func solid(c [4]byte) func(x, y int) [4]byte {
	return func(int, int) [4]byte { return c }
}

// grayRamp is texel x = 64 + 8x on every color channel.
func grayRamp(x, _ int) [4]byte {
	v := byte(64 + 8*x)
	return [4]byte{v, v, v, 255}
}

// destination evaluates f and reads its output back.
func destination(t *testing.T, ctx *imp.Context, f *imp.Filter) (gpucore.Size, []byte) {
	t.Helper()
	dst, err := f.Destination()
	if err != nil {
		t.Fatalf("Destination() error = %v", err)
	}
	if err := ctx.Wait(t.Context()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	data, err := dst.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return dst.Size(), data
}

// =============================================================================
// LevelsPass Tests
// =============================================================================

func TestLevelsPass(t *testing.T) {
	ctx := newContext(t)
	p, err := NewLevelsPass(ctx)
	if err != nil {
		t.Fatalf("NewLevelsPass() error = %v", err)
	}
	defer p.Close()
	low, high := [3]float64{0.25, 0.25, 0.25}, [3]float64{0.75, 0.75, 0.75}
	if err := p.SetLevels(low, high); err != nil {
		t.Fatalf("SetLevels() error = %v", err)
	}

	stretch := func(v byte) byte {
		s := (float64(v)/255 - 0.25) / 0.5
		return byte(math.Round(min(max(s, 0), 1) * 255))
	}
	size, data := run(t, ctx, newTexture(t, ctx, 26, 2), p)
	for y := range size.Height {
		for x := range size.Width {
			want := [4]byte{stretch(byte(10 * x)), stretch(byte(10 * y)), stretch(100), 255}
			if got := texel(data, size.Width, x, y); !near(got, want, 1) {
				t.Errorf("texel(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestLevelsPass_NarrowRangeIsIdentity(t *testing.T) {
	ctx := newContext(t)
	p, err := NewLevelsPass(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if err := p.SetLevels([3]float64{0.4, 0, 0}, [3]float64{0.4, 1, 1}); err != nil {
		t.Fatal(err)
	}
	size, data := run(t, ctx, newTexture(t, ctx, 4, 3), p)
	for y := range size.Height {
		for x := range size.Width {
			want := [4]byte{byte(10 * x), byte(10 * y), 100, 255}
			if got := texel(data, size.Width, x, y); !near(got, want, 1) {
				t.Errorf("texel(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestLevelsPass_SameLevelsDoNotFire(t *testing.T) {
	ctx := newContext(t)
	p, err := NewLevelsPass(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	fired := 0
	p.Changed().Subscribe(func(struct{}) { fired++ })

	low, high := [3]float64{0.1, 0.2, 0.3}, [3]float64{0.9, 0.8, 0.7}
	for range 3 {
		if err := p.SetLevels(low, high); err != nil {
			t.Fatal(err)
		}
	}
	if fired != 1 {
		t.Errorf("Changed fired %d times, want 1", fired)
	}
	if gl, gh := p.Levels(); gl != low || gh != high {
		t.Errorf("Levels() = %v, %v, want %v, %v", gl, gh, low, high)
	}
}

// =============================================================================
// WhiteBalancePass Tests
// =============================================================================

func TestWhiteBalancePass_NeutralKeepsGreen(t *testing.T) {
	ctx := newContext(t)
	p, err := NewWhiteBalancePass(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, ok := p.DominantColor(); ok {
		t.Error("DominantColor() set before SetDominantColor")
	}
	if err := p.SetDominantColor([3]float64{0.5, 0.5, 0.5}); err != nil {
		t.Fatal(err)
	}
	size, data := run(t, ctx, newTexture(t, ctx, 8, 8), p)
	for y := range size.Height {
		for x := range size.Width {
			if got := int(texel(data, size.Width, x, y)[1]); got < 10*y-1 || got > 10*y+1 {
				t.Errorf("green(%d,%d) = %d, want %d", x, y, got, 10*y)
			}
		}
	}
}

func TestCorrection(t *testing.T) {
	c := correction([3]float64{0.5, 0.5, 0.5})
	want := [3]float64{0.5098, 0.5, 0.470588}
	for ch := range 3 {
		if math.Abs(c[ch]-want[ch]) > 1e-6 {
			t.Errorf("correction(gray)[%d] = %v, want %v", ch, c[ch], want[ch])
		}
	}
	if l := luminance(withLuminance([3]float64{1, 1, 0}, 0.5)); math.Abs(l-0.5) > 0.01 {
		t.Errorf("luminance(withLuminance(yellow, 0.5)) = %v, want 0.5", l)
	}
}

// =============================================================================
// Auto Adjustment Tests
// =============================================================================

func TestAutoLevels_StretchesSourceRange(t *testing.T) {
	for _, policy := range []imp.HazardPolicy{imp.Immediate, imp.Deferred} {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newContext(t, imp.WithHazardPolicy(policy))
			f := imp.NewFilter(ctx)
			defer f.Close()
			al, err := NewAutoLevels(f)
			if err != nil {
				t.Fatalf("NewAutoLevels() error = %v", err)
			}
			defer al.Close()
			if got := len(f.Passes()); got != 1 {
				t.Fatalf("len(Passes()) = %d, want 1", got)
			}

			f.SetSource(fillTexture(t, ctx, 17, 1, grayRamp))
			low, high := al.Levels()
			for ch := range 3 {
				if low[ch] < 0.2 || low[ch] > 0.26 || high[ch] < 0.74 || high[ch] > 0.8 {
					t.Errorf("Levels()[%d] = [%v, %v], want about [0.25, 0.75]", ch, low[ch], high[ch])
				}
			}

			size, data := destination(t, ctx, f)
			if got := texel(data, size.Width, 0, 0); got[0] > 4 || got[1] > 4 || got[2] > 4 {
				t.Errorf("darkest texel = %v, want near black", got)
			}
			if got := texel(data, size.Width, 16, 0); got[0] < 251 || got[1] < 251 || got[2] < 251 {
				t.Errorf("brightest texel = %v, want near white", got)
			}
		})
	}
}

func TestAutoLevels_FollowsNewSource(t *testing.T) {
	ctx := newContext(t)
	f := imp.NewFilter(ctx)
	defer f.Close()
	al, err := NewAutoLevels(f)
	if err != nil {
		t.Fatal(err)
	}
	defer al.Close()

	f.SetSource(fillTexture(t, ctx, 17, 1, grayRamp))
	destination(t, ctx, f)
	f.SetSource(fillTexture(t, ctx, 2, 1, func(x, _ int) [4]byte {
		return [4]byte{byte(255 * x), byte(255 * x), byte(255 * x), 255}
	}))
	if low, high := al.Levels(); low[0] > 0.01 || high[0] < 0.99 {
		t.Errorf("Levels() = %v, %v after full-range source, want about [0, 1]", low, high)
	}
	size, data := destination(t, ctx, f)
	if got := texel(data, size.Width, 1, 0); got != [4]byte{255, 255, 255, 255} {
		t.Errorf("texel(1,0) = %v, want white", got)
	}
}

func TestAutoWhiteBalance_NeutralizesCast(t *testing.T) {
	ctx := newContext(t)
	f := imp.NewFilter(ctx)
	defer f.Close()
	aw, err := NewAutoWhiteBalance(f)
	if err != nil {
		t.Fatalf("NewAutoWhiteBalance() error = %v", err)
	}
	defer aw.Close()

	f.SetSource(fillTexture(t, ctx, 8, 8, solid([4]byte{200, 100, 100, 255})))
	c, ok := aw.DominantColor()
	if !ok {
		t.Fatal("DominantColor() not set after SetSource")
	}
	for ch, want := range [3]float64{200.0 / 255, 100.0 / 255, 100.0 / 255} {
		if math.Abs(c[ch]-want) > 0.01 {
			t.Errorf("DominantColor()[%d] = %v, want %v", ch, c[ch], want)
		}
	}

	size, data := destination(t, ctx, f)
	got := texel(data, size.Width, 3, 3)
	if got[0] >= 190 || got[1] <= 110 || got[2] <= 110 {
		t.Errorf("texel = %v, want red lowered and green, blue raised from {200 100 100}", got)
	}
	if d := int(got[0]) - int(got[1]); d >= 100 {
		t.Errorf("red-green gap = %d, want it narrowed from 100", d)
	}
}

func TestAutoWhiteBalance_CloseStopsWatching(t *testing.T) {
	ctx := newContext(t)
	f := imp.NewFilter(ctx)
	defer f.Close()
	aw, err := NewAutoWhiteBalance(f)
	if err != nil {
		t.Fatal(err)
	}
	f.SetSource(fillTexture(t, ctx, 2, 2, solid([4]byte{200, 100, 100, 255})))
	before, _ := aw.DominantColor()
	aw.Close()

	f.SetSource(fillTexture(t, ctx, 2, 2, solid([4]byte{100, 100, 200, 255})))
	if after, _ := aw.DominantColor(); after != before {
		t.Errorf("DominantColor() = %v after Close, want %v", after, before)
	}
	if n := aw.Analyzer().Updated.Len(); n != 0 {
		t.Errorf("Updated has %d subscribers after Close, want 0", n)
	}
}
