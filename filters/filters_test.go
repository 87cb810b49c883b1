package filters

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/geometry"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/lut"
)

func newContext(t *testing.T, opts ...imp.ContextOption) *imp.Context {
	t.Helper()
	ctx, err := imp.NewContext(imp.NewSoftwareDevice(2), opts...)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

// newTexture allocates an RGBA8 texture whose texel (x, y) is
// {10x, 10y, 100, 255}.
func newTexture(t *testing.T, ctx *imp.Context, w, h int) gpucore.Texture {
	t.Helper()
	tex, err := ctx.Device().NewTexture(gpucore.DefaultTextureDescriptor(w, h))
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	data := make([]byte, 0, w*h*4)
	for y := range h {
		for x := range w {
			data = append(data, byte(10*x), byte(10*y), 100, 255)
		}
	}
	if err := tex.Upload(data); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return tex
}

// run evaluates a filter holding passes over src and returns the
// destination size and texels.
func run(t *testing.T, ctx *imp.Context, src gpucore.Texture, passes ...imp.Pass) (gpucore.Size, []byte) {
	t.Helper()
	f := imp.NewFilter(ctx)
	t.Cleanup(func() { f.Close() })
	f.SetPasses(passes...)
	f.SetSource(src)
	dst, err := f.Destination()
	if err != nil {
		t.Fatalf("Destination() error = %v", err)
	}
	if err := ctx.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	data, err := dst.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return dst.Size(), data
}

func texel(data []byte, w, x, y int) [4]byte {
	i := (y*w + x) * 4
	return [4]byte{data[i], data[i+1], data[i+2], data[i+3]}
}

func near(a, b [4]byte, tol int) bool {
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < -tol || d > tol {
			return false
		}
	}
	return true
}

// =============================================================================
// CropPass Tests
// =============================================================================

func TestCropPass(t *testing.T) {
	for _, policy := range []imp.HazardPolicy{imp.Immediate, imp.Deferred} {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newContext(t, imp.WithHazardPolicy(policy))
			crop, err := NewCropPass(geometry.Region{Left: 0.25, Top: 0.5, Right: 0.25})
			if err != nil {
				t.Fatalf("NewCropPass() error = %v", err)
			}
			size, data := run(t, ctx, newTexture(t, ctx, 8, 4), crop)
			if size.Width != 4 || size.Height != 2 {
				t.Fatalf("size = %s, want 4x2", size)
			}
			if got, want := texel(data, 4, 0, 0), [4]byte{20, 20, 100, 255}; got != want {
				t.Errorf("texel(0,0) = %v, want %v", got, want)
			}
			if got, want := texel(data, 4, 3, 1), [4]byte{50, 30, 100, 255}; got != want {
				t.Errorf("texel(3,1) = %v, want %v", got, want)
			}
		})
	}
}

func TestCropPass_DestinationSizeOverride(t *testing.T) {
	tests := []struct {
		name    string
		size    gpucore.Size
		wantErr error
	}{
		{"smaller keeps top left", gpucore.Size2D(2, 1), nil},
		{"larger rejected", gpucore.Size2D(8, 8), ErrCropSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t)
			crop, err := NewCropPass(geometry.Region{Left: 0.25, Top: 0.5, Right: 0.25})
			if err != nil {
				t.Fatal(err)
			}
			f := imp.NewFilter(ctx, imp.WithDestinationSize(tt.size))
			defer f.Close()
			f.AddPass(crop)
			f.SetSource(newTexture(t, ctx, 8, 4))
			err = f.Apply()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			data, err := f.Texture().Read()
			if err != nil {
				t.Fatal(err)
			}
			if got, want := texel(data, 2, 1, 0), [4]byte{30, 20, 100, 255}; got != want {
				t.Errorf("texel(1,0) = %v, want %v", got, want)
			}
		})
	}
}

func TestCropPass_SetRegionMarksStale(t *testing.T) {
	ctx := newContext(t)
	crop, err := NewCropPass(geometry.Region{})
	if err != nil {
		t.Fatal(err)
	}
	f := imp.NewFilter(ctx)
	defer f.Close()
	f.AddPass(crop)
	f.SetSource(newTexture(t, ctx, 4, 4))
	if err := f.Apply(); err != nil {
		t.Fatal(err)
	}
	if f.Stale() {
		t.Fatal("Stale() = true after Apply")
	}
	if err := crop.SetRegion(geometry.CenterRegion(0.5)); err != nil {
		t.Fatal(err)
	}
	if !f.Stale() {
		t.Error("Stale() = false after SetRegion")
	}
	if err := crop.SetRegion(geometry.Region{Left: 0.7, Right: 0.4}); !errors.Is(err, geometry.ErrInvalidRegion) {
		t.Errorf("SetRegion(invalid) error = %v, want ErrInvalidRegion", err)
	}
}

// =============================================================================
// WarpPass Tests
// =============================================================================

func TestWarpPass_Identity(t *testing.T) {
	ctx := newContext(t)
	src := newTexture(t, ctx, 6, 5)
	_, want := run(t, ctx, src, imp.PassFunc(func(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
		blit := cb.BlitEncoder()
		blit.CopyTexture(in, gpucore.Origin{}, out, gpucore.Origin{}, in.Size())
		return blit.End()
	}))
	_, got := run(t, ctx, src, NewWarpPass(ctx))
	if string(got) != string(want) {
		t.Error("identity warp changed the image")
	}
}

func TestWarpPass_Mirror(t *testing.T) {
	ctx := newContext(t)
	w := NewWarpPass(ctx)
	w.SetLinear(false)
	mirror := geometry.Quad{
		LeftBottom:  geometry.V2(1, -1),
		LeftTop:     geometry.V2(1, 1),
		RightBottom: geometry.V2(-1, -1),
		RightTop:    geometry.V2(-1, 1),
	}
	if err := w.SetQuads(geometry.UnitQuad(), mirror); err != nil {
		t.Fatalf("SetQuads() error = %v", err)
	}
	_, data := run(t, ctx, newTexture(t, ctx, 5, 2), w)
	for x := range 5 {
		want := [4]byte{byte(10 * (4 - x)), 10, 100, 255}
		if got := texel(data, 5, x, 1); got != want {
			t.Errorf("texel(%d,1) = %v, want %v", x, got, want)
		}
	}
}

func TestWarpPass_ClearColorOutside(t *testing.T) {
	ctx := newContext(t)
	w := NewWarpPass(ctx)
	w.SetClearColor([4]float32{1, 0, 0, 1})
	half := geometry.Quad{
		LeftBottom:  geometry.V2(0, -1),
		LeftTop:     geometry.V2(0, 1),
		RightBottom: geometry.V2(1, -1),
		RightTop:    geometry.V2(1, 1),
	}
	if err := w.SetQuads(geometry.UnitQuad(), half); err != nil {
		t.Fatalf("SetQuads() error = %v", err)
	}
	_, data := run(t, ctx, newTexture(t, ctx, 8, 2), w)
	if got, want := texel(data, 8, 0, 0), [4]byte{255, 0, 0, 255}; got != want {
		t.Errorf("texel left of the quad = %v, want clear %v", got, want)
	}
}

func TestWarpPass_DegenerateQuad(t *testing.T) {
	ctx := newContext(t)
	w := NewWarpPass(ctx)
	line := geometry.Quad{
		LeftBottom:  geometry.V2(-1, -1),
		LeftTop:     geometry.V2(0, 0),
		RightBottom: geometry.V2(1, 1),
		RightTop:    geometry.V2(1, -1),
	}
	fired := 0
	w.Changed().Subscribe(func(struct{}) { fired++ })
	if err := w.SetQuads(line, geometry.UnitQuad()); !errors.Is(err, geometry.ErrDegenerateQuad) {
		t.Errorf("SetQuads(degenerate) error = %v, want ErrDegenerateQuad", err)
	}
	if fired != 0 {
		t.Errorf("Changed fired %d times on a rejected quad", fired)
	}
	if src, _ := w.Quads(); src != geometry.UnitQuad() {
		t.Errorf("source quad = %v after rejection, want unit quad", src)
	}
}

// =============================================================================
// TransformPass Tests
// =============================================================================

func TestTransformPass(t *testing.T) {
	tests := []struct {
		name      string
		configure func(p *TransformPass)
		size      gpucore.Size
		at        [2]int
		want      [4]byte
	}{
		{
			name:      "identity",
			configure: func(*TransformPass) {},
			size:      gpucore.Size{Width: 8, Height: 8, Depth: 1},
			at:        [2]int{3, 5},
			want:      [4]byte{30, 50, 100, 255},
		},
		{
			name: "region",
			configure: func(p *TransformPass) {
				if err := p.SetRegion(geometry.Region{Left: 0.5}); err != nil {
					t.Fatal(err)
				}
			},
			size: gpucore.Size{Width: 4, Height: 8, Depth: 1},
			at:   [2]int{0, 0},
			want: [4]byte{40, 0, 100, 255},
		},
		{
			name:      "reflect horizontal",
			configure: func(p *TransformPass) { p.SetReflection(true, false) },
			size:      gpucore.Size{Width: 8, Height: 8, Depth: 1},
			at:        [2]int{0, 2},
			want:      [4]byte{70, 20, 100, 255},
		},
		{
			name: "rotate 180",
			configure: func(p *TransformPass) {
				m := geometry.NewTransformModel()
				m.SetAngle(geometry.Degrees180)
				p.SetModel(m)
			},
			size: gpucore.Size{Width: 8, Height: 8, Depth: 1},
			at:   [2]int{1, 0},
			want: [4]byte{60, 70, 100, 255},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t)
			p := NewTransformPass(ctx)
			tt.configure(p)
			size, data := run(t, ctx, newTexture(t, ctx, 8, 8), p)
			if size != tt.size {
				t.Fatalf("size = %s, want %s", size, tt.size)
			}
			if got := texel(data, size.Width, tt.at[0], tt.at[1]); !near(got, tt.want, 1) {
				t.Errorf("texel%v = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestTransformPass_ModelIsCopied(t *testing.T) {
	ctx := newContext(t)
	p := NewTransformPass(ctx)
	m := geometry.NewTransformModel()
	p.SetModel(m)
	m.SetAngle(geometry.Right)
	if got := p.Model().Angle(); got != geometry.Flat {
		t.Errorf("Model().Angle() = %v after mutating the argument, want flat", got)
	}
}

// =============================================================================
// MaxSizePass Tests
// =============================================================================

func TestMaxSizePass(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		w, h  int
		want  gpucore.Size
	}{
		{"within limit", 16, 8, 4, gpucore.Size{Width: 8, Height: 4, Depth: 1}},
		{"landscape", 10, 40, 20, gpucore.Size{Width: 10, Height: 5, Depth: 1}},
		{"portrait", 10, 20, 40, gpucore.Size{Width: 5, Height: 10, Depth: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t)
			size, data := run(t, ctx, newTexture(t, ctx, tt.w, tt.h), NewMaxSizePass(ctx, tt.limit))
			if size != tt.want {
				t.Fatalf("size = %s, want %s", size, tt.want)
			}
			if got := texel(data, size.Width, 0, 0); got[2] != 100 || got[3] != 255 {
				t.Errorf("texel(0,0) = %v, want blue 100 alpha 255", got)
			}
		})
	}
}

func TestMaxSizePass_DefaultsToContextLimit(t *testing.T) {
	ctx := newContext(t, imp.WithMaxTextureSize(64))
	if got := NewMaxSizePass(ctx, 0).Limit(); got != 64 {
		t.Errorf("Limit() = %d, want 64", got)
	}
}

// =============================================================================
// LUTPass Tests
// =============================================================================

func parseTable(t *testing.T, src string) *lut.Table {
	t.Helper()
	tbl, err := lut.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return tbl
}

const invert = "LUT_1D_SIZE 2\n1 1 1\n0 0 0\n"

const identity3D = `LUT_3D_SIZE 2
0 0 0
1 0 0
0 1 0
1 1 0
0 0 1
1 0 1
0 1 1
1 1 1
`

func TestLUTPass(t *testing.T) {
	tests := []struct {
		name      string
		table     string
		intensity float64
		want      func(x, y int) [4]byte
	}{
		{"1D invert", invert, 1, func(x, y int) [4]byte {
			return [4]byte{byte(255 - 10*x), byte(255 - 10*y), 155, 255}
		}},
		{"1D zero intensity", invert, 0, func(x, y int) [4]byte {
			return [4]byte{byte(10 * x), byte(10 * y), 100, 255}
		}},
		{"3D identity", identity3D, 1, func(x, y int) [4]byte {
			return [4]byte{byte(10 * x), byte(10 * y), 100, 255}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t)
			p, err := NewLUTPass(ctx, parseTable(t, tt.table))
			if err != nil {
				t.Fatalf("NewLUTPass() error = %v", err)
			}
			defer p.Close()
			p.SetIntensity(tt.intensity)
			size, data := run(t, ctx, newTexture(t, ctx, 4, 3), p)
			for y := range size.Height {
				for x := range size.Width {
					if got, want := texel(data, size.Width, x, y), tt.want(x, y); !near(got, want, 1) {
						t.Errorf("texel(%d,%d) = %v, want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestLUTPass_ChangesMarkStale(t *testing.T) {
	ctx := newContext(t)
	p, err := NewLUTPass(ctx, parseTable(t, invert))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	f := imp.NewFilter(ctx)
	defer f.Close()
	f.AddPass(p)
	f.SetSource(newTexture(t, ctx, 2, 2))
	if err := f.Apply(); err != nil {
		t.Fatal(err)
	}

	p.SetIntensity(0.5)
	if !f.Stale() {
		t.Error("Stale() = false after SetIntensity")
	}
	if err := f.Apply(); err != nil {
		t.Fatal(err)
	}
	if err := p.SetTable(parseTable(t, identity3D)); err != nil {
		t.Fatalf("SetTable() error = %v", err)
	}
	if !f.Stale() {
		t.Error("Stale() = false after SetTable")
	}
	if err := p.SetTable(nil); !errors.Is(err, ErrNoTable) {
		t.Errorf("SetTable(nil) error = %v, want ErrNoTable", err)
	}
	if got := p.Intensity(); got != 0.5 {
		t.Errorf("Intensity() = %v, want 0.5", got)
	}
}
