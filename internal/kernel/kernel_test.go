package kernel

import (
	"errors"
	"testing"
)

func TestLuma(t *testing.T) {
	tests := []struct {
		r, g, b, a uint8
		want       uint32
	}{
		{0, 0, 0, 255, 0},
		{255, 255, 255, 255, 255},
		{128, 128, 128, 255, 128},
		{255, 255, 255, 0, 0},
		{255, 0, 0, 255, 76},
	}
	for _, tt := range tests {
		if got := Luma(tt.r, tt.g, tt.b, tt.a); got != tt.want {
			t.Errorf("Luma(%d,%d,%d,%d) = %d, want %d", tt.r, tt.g, tt.b, tt.a, got, tt.want)
		}
	}
}

func TestCubeIndex(t *testing.T) {
	if got := CubeIndex(0, 0, 0); got != 0 {
		t.Errorf("CubeIndex(0,0,0) = %d, want 0", got)
	}
	if got := CubeIndex(255, 255, 255); got != CubeCells-1 {
		t.Errorf("CubeIndex(white) = %d, want %d", got, CubeCells-1)
	}
	if got := CubeIndex(8, 16, 24); got != 1+2*32+3*32*32 {
		t.Errorf("CubeIndex(8,16,24) = %d, want %d", got, 1+2*32+3*32*32)
	}
}

func TestStripeCoversWidth(t *testing.T) {
	for _, acc := range []int{1, 3, 4, 7} {
		for _, w := range []int{1, 2, 10, 257} {
			next := 0
			for a := range acc {
				x0, x1 := Stripe(a, acc, w)
				if x0 != next {
					t.Fatalf("acc=%d w=%d: stripe %d starts at %d, want %d", acc, w, a, x0, next)
				}
				next = x1
			}
			if next != w {
				t.Fatalf("acc=%d w=%d: stripes end at %d", acc, w, next)
			}
		}
	}
}

func TestCubeAccumulators(t *testing.T) {
	tests := []struct {
		name             string
		sw, sh, parallel int
		want             int
	}{
		{"parallel floor", 64, 64, 8, 8},
		{"narrow image", 3, 64, 8, 3},
		{"zero parallel", 16, 16, 0, 1},
		{"large image splits stripes", 4400, 4000, 1, 2},
		{"tall image", 8192, 8192, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CubeAccumulators(tt.sw, tt.sh, tt.parallel)
			if got != tt.want {
				t.Fatalf("CubeAccumulators(%d, %d, %d) = %d, want %d", tt.sw, tt.sh, tt.parallel, got, tt.want)
			}
			for a := range got {
				x0, x1 := Stripe(a, got, tt.sw)
				if n := (x1 - x0) * tt.sh; n > MaxCubeSamples {
					t.Errorf("stripe %d holds %d samples, more than %d", a, n, MaxCubeSamples)
				}
			}
		})
	}
}

func TestRegionContains(t *testing.T) {
	r := Region{Left: 0.25, Top: 0.25, Right: 0.25, Bottom: 0.25}
	if !r.Contains(0.5, 0.5) {
		t.Error("center should be inside")
	}
	if r.Contains(0.1, 0.5) || r.Contains(0.5, 0.8) {
		t.Error("border points should be outside")
	}
	if !(Region{}).Contains(0, 0) {
		t.Error("zero region should contain the origin")
	}
}

func TestParamsRoundTrip(t *testing.T) {
	h := HistogramParams{Channels: 4, Accumulators: 3, Scale: 0.5, Region: Region{0.1, 0.2, 0.3, 0.4}}
	if got, err := DecodeHistogramParams(h.Bytes()); err != nil || got != h {
		t.Errorf("histogram params = %+v, %v; want %+v", got, err, h)
	}

	c := CubeParams{Accumulators: 2, Scale: 1, Shadows: 0.2, Highlights: 0.1}
	if got, err := DecodeCubeParams(c.Bytes()); err != nil || got != c {
		t.Errorf("cube params = %+v, %v; want %+v", got, err, c)
	}

	tr := TransformParams{Inverse: [9]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, Clear: [4]float32{0, 0, 0, 1}, Linear: true}
	if got, err := DecodeTransformParams(tr.Bytes()); err != nil || got != tr {
		t.Errorf("transform params = %+v, %v; want %+v", got, err, tr)
	}

	if _, err := DecodeLUTParams(make([]byte, 4)); !errors.Is(err, ErrShortParams) {
		t.Errorf("DecodeLUTParams(short) = %v, want ErrShortParams", err)
	}
}

func TestCubeClipping(t *testing.T) {
	p := CubeParams{Shadows: 0.2, Highlights: 0.2}
	if !p.Clipped(10, 10, 10) {
		t.Error("near black should be clipped")
	}
	if !p.Clipped(250, 250, 250) {
		t.Error("near white should be clipped")
	}
	if p.Clipped(10, 200, 10) {
		t.Error("saturated green should not be clipped")
	}
	if (CubeParams{}).Clipped(0, 0, 0) {
		t.Error("zero clipping should keep black")
	}
}
