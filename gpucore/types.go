package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// TextureFormat specifies the texel layout of a texture.
type TextureFormat = gputypes.TextureFormat

// Supported texture formats.
const (
	FormatRGBA8 = gputypes.TextureFormatRGBA8Unorm
	FormatR8    = gputypes.TextureFormatR8Unorm
)

// BytesPerPixel returns the texel size of a supported format, or 0.
func BytesPerPixel(f TextureFormat) int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatR8:
		return 1
	default:
		return 0
	}
}

// Channels returns the number of color channels stored by a format.
func Channels(f TextureFormat) int {
	if f == FormatR8 {
		return 1
	}
	return 4
}

// Size is a three dimensional extent in texels or threads.
type Size struct {
	Width, Height, Depth int
}

// Size2D returns a Size with depth 1.
func Size2D(w, h int) Size {
	return Size{Width: w, Height: h, Depth: 1}
}

// Count returns Width*Height*Depth, treating a zero depth as 1.
func (s Size) Count() int {
	d := s.Depth
	if d == 0 {
		d = 1
	}
	return s.Width * s.Height * d
}

// Empty reports whether the size covers no texels.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0 || s.Depth < 0
}

func (s Size) String() string {
	if s.Depth > 1 {
		return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Depth)
	}
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Origin is a texel position.
type Origin struct {
	X, Y, Z int
}

// TextureDescriptor describes parameters for creating a texture.
type TextureDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Width, Height and Depth in texels. Depth 0 is treated as 1.
	Width, Height, Depth int

	// Format is FormatRGBA8 or FormatR8.
	Format TextureFormat
}

// DefaultTextureDescriptor returns a 2D RGBA8 descriptor of the given size.
func DefaultTextureDescriptor(width, height int) TextureDescriptor {
	return TextureDescriptor{Width: width, Height: height, Depth: 1, Format: FormatRGBA8}
}

// Size returns the extent of the descriptor.
func (d TextureDescriptor) Size() Size {
	depth := d.Depth
	if depth <= 0 {
		depth = 1
	}
	return Size{Width: d.Width, Height: d.Height, Depth: depth}
}

// ByteSize returns the number of bytes of texel storage the descriptor needs.
func (d TextureDescriptor) ByteSize() int {
	return d.Size().Count() * BytesPerPixel(d.Format)
}

// Validate checks that the descriptor can be allocated within limits.
func (d TextureDescriptor) Validate(l Limits) error {
	if BytesPerPixel(d.Format) == 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, d.Format)
	}
	s := d.Size()
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSize, s)
	}
	if l.MaxTextureSize > 0 && (s.Width > l.MaxTextureSize || s.Height > l.MaxTextureSize || s.Depth > l.MaxTextureSize) {
		return fmt.Errorf("%w: %s exceeds %d", ErrInvalidSize, s, l.MaxTextureSize)
	}
	return nil
}

// Limits describes the capabilities of a device that matter to scheduling.
type Limits struct {
	// MaxThreadsPerGroup is the largest number of threads in one threadgroup.
	MaxThreadsPerGroup int

	// MaxTextureSize is the largest texture dimension (0 = unlimited).
	MaxTextureSize int

	// MaxConcurrentThreads is how many threads the device runs at once.
	// Reductions size their partial accumulators from it.
	MaxConcurrentThreads int
}

// DefaultLimits returns the limits guaranteed by every device.
func DefaultLimits() Limits {
	return Limits{
		MaxThreadsPerGroup:   256,
		MaxTextureSize:       8192,
		MaxConcurrentThreads: 4096,
	}
}

// Groups returns the number of threadgroups needed to cover extent with
// groups of the given granularity, rounding up in every dimension.
func Groups(extent, granularity Size) Size {
	ceil := func(n, g int) int {
		if g <= 0 {
			g = 1
		}
		if n <= 0 {
			return 0
		}
		return (n + g - 1) / g
	}
	d, gd := extent.Depth, granularity.Depth
	if d <= 0 {
		d = 1
	}
	return Size{
		Width:  ceil(extent.Width, granularity.Width),
		Height: ceil(extent.Height, granularity.Height),
		Depth:  ceil(d, gd),
	}
}
