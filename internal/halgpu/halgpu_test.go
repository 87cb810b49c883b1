//go:build !nogpu

package halgpu

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/soft"
)

// =============================================================================
// Texel Packing Tests
// =============================================================================

func TestPackTexels(t *testing.T) {
	tests := []struct {
		name   string
		format gpucore.TextureFormat
		in     []byte
		want   []byte
	}{
		{"rgba8 unchanged", gpucore.FormatRGBA8, []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{"r8 widened to gray", gpucore.FormatR8, []byte{9, 200}, []byte{9, 9, 9, 255, 200, 200, 200, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := packTexels(tt.in, tt.format); !bytes.Equal(got, tt.want) {
				t.Errorf("packTexels() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnpackTexels_RoundTrip(t *testing.T) {
	for _, f := range []gpucore.TextureFormat{gpucore.FormatRGBA8, gpucore.FormatR8} {
		in := []byte{0, 17, 128, 255}
		if got := unpackTexels(packTexels(in, f), f); !bytes.Equal(got, in) {
			t.Errorf("unpackTexels(packTexels(%v)) = %v, want %v", f, got, in)
		}
	}
}

func TestDimsBytes(t *testing.T) {
	textures := []*Texture{
		{size: gpucore.Size{Width: 3, Height: 2, Depth: 1}},
		{size: gpucore.Size{Width: 17, Height: 17, Depth: 17}},
	}
	got := dimsBytes(textures)
	want := []byte{
		3, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0,
		17, 0, 0, 0, 17, 0, 0, 0, 17, 0, 0, 0, 0, 0, 0, 0,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("dimsBytes() = %v, want %v", got, want)
	}
}

func TestAlign4(t *testing.T) {
	for in, want := range map[uint64]uint64{0: 0, 1: 4, 4: 4, 5: 8, 80: 80} {
		if got := align4(in); got != want {
			t.Errorf("align4(%d) = %d, want %d", in, got, want)
		}
	}
}

// =============================================================================
// Copy Region Tests
// =============================================================================

func TestCopyRegions(t *testing.T) {
	tests := []struct {
		name     string
		src, dst gpucore.Size
		so, do   gpucore.Origin
		size     gpucore.Size
		want     []hal.BufferCopy
	}{
		{
			name: "full texture merges into one region",
			src:  gpucore.Size2D(4, 3), dst: gpucore.Size2D(4, 3),
			size: gpucore.Size2D(4, 3),
			want: []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: 48}},
		},
		{
			name: "sub rectangle copies row by row",
			src:  gpucore.Size2D(8, 4), dst: gpucore.Size2D(4, 2),
			so:   gpucore.Origin{X: 2, Y: 1},
			size: gpucore.Size2D(4, 2),
			want: []hal.BufferCopy{
				{SrcOffset: (1*8 + 2) * 4, DstOffset: 0, Size: 16},
				{SrcOffset: (2*8 + 2) * 4, DstOffset: 16, Size: 16},
			},
		},
		{
			name: "empty copy",
			src:  gpucore.Size2D(4, 4), dst: gpucore.Size2D(4, 4),
			size: gpucore.Size2D(0, 4),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := copyRegions(tt.src, tt.so, tt.dst, tt.do, tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("copyRegions() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("region %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// =============================================================================
// Kernel Source Tests
// =============================================================================

func TestKernelsCoverSoftwareKernels(t *testing.T) {
	for _, name := range soft.Kernels() {
		if _, ok := kernels[name]; !ok {
			t.Errorf("no WGSL kernel for %q", name)
		}
	}
}

func TestKernelSourceBindings(t *testing.T) {
	for name, spec := range kernels {
		src := spec.source()
		for i := range spec.bindings() {
			decl := "@binding(" + string(rune('0'+i)) + ")"
			if !strings.Contains(src, decl) {
				t.Errorf("%s: missing %s", name, decl)
			}
		}
		if !strings.Contains(src, "fn main(") {
			t.Errorf("%s: missing entry point", name)
		}
	}
}

func TestLayoutEntries(t *testing.T) {
	spec := kernels["kernel_transform"]
	entries := layoutEntries(spec)
	if len(entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(entries))
	}
	for i, e := range entries {
		if e.Binding != uint32(i) {
			t.Errorf("entries[%d].Binding = %d", i, e.Binding)
		}
		want := gputypes.BufferBindingTypeStorage
		if i == 3 {
			want = gputypes.BufferBindingTypeReadOnlyStorage
		}
		if e.Buffer.Type != want {
			t.Errorf("entries[%d] type = %v, want %v", i, e.Buffer.Type, want)
		}
	}
}

func TestBound(t *testing.T) {
	a, b := &Buffer{label: "a"}, &Buffer{label: "b"}
	if got, err := bound("buffer", []*Buffer{a, b, nil}, 2); err != nil || len(got) != 2 {
		t.Errorf("bound(2 of 3) = %v, %v", got, err)
	}
	if _, err := bound("buffer", []*Buffer{a, nil}, 2); err == nil {
		t.Error("bound() with a nil slot succeeded")
	}
	if _, err := bound("buffer", []*Buffer{a}, 2); err == nil {
		t.Error("bound() with too few slots succeeded")
	}
}

// =============================================================================
// Device Tests
// =============================================================================

func TestOpen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping GPU device test in short mode")
	}
	dev, err := Open()
	if err != nil {
		t.Skipf("no GPU available: %v", err)
	}
	defer dev.Destroy()

	if _, err := dev.NewComputePipeline("kernel_unknown"); !errors.Is(err, gpucore.ErrFunctionNotFound) {
		t.Errorf("NewComputePipeline(unknown) error = %v, want ErrFunctionNotFound", err)
	}
	tex, err := dev.NewTexture(gpucore.DefaultTextureDescriptor(3, 2))
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	defer tex.Destroy()
	data := make([]byte, 3*2*4)
	for i := range data {
		data[i] = byte(i * 7)
	}
	if err := tex.Upload(data); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	got, err := tex.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read() = %v, want %v", got, data)
	}
}

func TestNewFromHAL_Nil(t *testing.T) {
	if _, err := NewFromHAL(nil, nil, "none"); err == nil {
		t.Error("NewFromHAL(nil, nil) succeeded")
	}
}
