package gpucore

import (
	"errors"
	"testing"
)

func TestGroups(t *testing.T) {
	tests := []struct {
		name   string
		extent Size
		gran   Size
		want   Size
	}{
		{"exact", Size2D(32, 32), Size2D(16, 16), Size{2, 2, 1}},
		{"round up", Size2D(33, 17), Size2D(16, 16), Size{3, 2, 1}},
		{"one pixel", Size2D(1, 1), Size2D(16, 16), Size{1, 1, 1}},
		{"empty", Size2D(0, 10), Size2D(16, 16), Size{0, 1, 1}},
		{"zero granularity", Size2D(5, 5), Size{}, Size{5, 5, 1}},
		{"3d", Size{8, 8, 8}, Size{4, 4, 4}, Size{2, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Groups(tt.extent, tt.gran); got != tt.want {
				t.Errorf("Groups(%v, %v) = %v, want %v", tt.extent, tt.gran, got, tt.want)
			}
		})
	}
}

func TestBytesPerPixel(t *testing.T) {
	if got := BytesPerPixel(FormatRGBA8); got != 4 {
		t.Errorf("BytesPerPixel(RGBA8) = %d, want 4", got)
	}
	if got := BytesPerPixel(FormatR8); got != 1 {
		t.Errorf("BytesPerPixel(R8) = %d, want 1", got)
	}
	if got := Channels(FormatR8); got != 1 {
		t.Errorf("Channels(R8) = %d, want 1", got)
	}
}

func TestTextureDescriptor_Validate(t *testing.T) {
	l := Limits{MaxThreadsPerGroup: 256, MaxTextureSize: 64}
	tests := []struct {
		name    string
		desc    TextureDescriptor
		wantErr error
	}{
		{"valid", DefaultTextureDescriptor(10, 10), nil},
		{"zero width", DefaultTextureDescriptor(0, 10), ErrInvalidSize},
		{"too large", DefaultTextureDescriptor(65, 10), ErrInvalidSize},
		{"bad format", TextureDescriptor{Width: 1, Height: 1}, ErrUnsupportedFormat},
		{"3d", TextureDescriptor{Width: 4, Height: 4, Depth: 4, Format: FormatRGBA8}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate(l)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTextureDescriptor_ByteSize(t *testing.T) {
	d := TextureDescriptor{Width: 4, Height: 3, Format: FormatRGBA8}
	if got := d.ByteSize(); got != 48 {
		t.Errorf("ByteSize() = %d, want 48", got)
	}
	d.Format = FormatR8
	d.Depth = 2
	if got := d.ByteSize(); got != 24 {
		t.Errorf("ByteSize() = %d, want 24", got)
	}
}
