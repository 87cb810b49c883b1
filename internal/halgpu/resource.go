//go:build !nogpu

package halgpu

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/imp/gpucore"
)

// texelStride is the storage size of one texel on the device. Every format
// is widened to one u32 so kernels address texels uniformly.
const texelStride = 4

// Texture stores texels in a storage buffer, one packed u32 per texel.
type Texture struct {
	dev       *Device
	buf       hal.Buffer
	label     string
	size      gpucore.Size
	format    gpucore.TextureFormat
	purgeable atomic.Bool
	destroyed atomic.Bool
}

var _ gpucore.Texture = (*Texture)(nil)

func (t *Texture) Label() string                 { return t.label }
func (t *Texture) Width() int                    { return t.size.Width }
func (t *Texture) Height() int                   { return t.size.Height }
func (t *Texture) Depth() int                    { return t.size.Depth }
func (t *Texture) Size() gpucore.Size            { return t.size }
func (t *Texture) Format() gpucore.TextureFormat { return t.format }
func (t *Texture) SetPurgeable(p bool)           { t.purgeable.Store(p) }
func (t *Texture) Purgeable() bool               { return t.purgeable.Load() }

func (t *Texture) byteSize() uint64 {
	return uint64(t.size.Count()) * texelStride //nolint:gosec // validated against limits
}

// Upload packs data into device texels and writes them.
func (t *Texture) Upload(data []byte) error {
	if t.destroyed.Load() {
		return gpucore.ErrDeviceDestroyed
	}
	want := t.size.Count() * gpucore.BytesPerPixel(t.format)
	if len(data) != want {
		return fmt.Errorf("%w: upload of %d bytes into %s texture of %d bytes",
			gpucore.ErrOutOfBounds, len(data), t.size, want)
	}
	return t.dev.write(t.buf, 0, packTexels(data, t.format))
}

// Read copies the texels back to the host.
func (t *Texture) Read() ([]byte, error) {
	if t.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	raw, err := t.dev.read(t.buf, 0, t.byteSize())
	if err != nil {
		return nil, fmt.Errorf("halgpu: read texture %q: %w", t.label, err)
	}
	return unpackTexels(raw, t.format), nil
}

// Destroy releases the storage buffer.
func (t *Texture) Destroy() {
	if t.destroyed.Swap(true) {
		return
	}
	t.dev.destroyBuffer(t.buf)
}

// Buffer is a storage buffer. Its device allocation is rounded up to whole
// words; Len reports the requested size.
type Buffer struct {
	dev       *Device
	buf       hal.Buffer
	label     string
	size      int
	destroyed atomic.Bool
}

var _ gpucore.Buffer = (*Buffer)(nil)

func (b *Buffer) Label() string { return b.label }
func (b *Buffer) Len() int      { return b.size }

func (b *Buffer) allocated() uint64 { return align4(uint64(b.size)) } //nolint:gosec // positive

// Write copies data into the buffer at offset. Unaligned ranges are widened
// to whole words by reading back the edge words first.
func (b *Buffer) Write(offset int, data []byte) error {
	if b.destroyed.Load() {
		return gpucore.ErrDeviceDestroyed
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("%w: write [%d,%d) into %d bytes", gpucore.ErrOutOfBounds, offset, offset+len(data), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	lo := uint64(offset) &^ 3                      //nolint:gosec // checked above
	hi := align4(uint64(offset) + uint64(len(data))) //nolint:gosec // checked above
	if lo == uint64(offset) && hi == uint64(offset+len(data)) { //nolint:gosec // checked above
		return b.dev.write(b.buf, lo, data)
	}
	span, err := b.dev.read(b.buf, lo, hi-lo)
	if err != nil {
		return err
	}
	copy(span[uint64(offset)-lo:], data) //nolint:gosec // checked above
	return b.dev.write(b.buf, lo, span)
}

// Read copies len(dst) bytes from offset into dst.
func (b *Buffer) Read(offset int, dst []byte) error {
	if b.destroyed.Load() {
		return gpucore.ErrDeviceDestroyed
	}
	if offset < 0 || offset+len(dst) > b.size {
		return fmt.Errorf("%w: read [%d,%d) from %d bytes", gpucore.ErrOutOfBounds, offset, offset+len(dst), b.size)
	}
	if len(dst) == 0 {
		return nil
	}
	lo := uint64(offset) &^ 3                      //nolint:gosec // checked above
	hi := align4(uint64(offset) + uint64(len(dst))) //nolint:gosec // checked above
	span, err := b.dev.read(b.buf, lo, hi-lo)
	if err != nil {
		return fmt.Errorf("halgpu: read buffer %q: %w", b.label, err)
	}
	copy(dst, span[uint64(offset)-lo:]) //nolint:gosec // checked above
	return nil
}

// Destroy releases the storage buffer.
func (b *Buffer) Destroy() {
	if b.destroyed.Swap(true) {
		return
	}
	b.dev.destroyBuffer(b.buf)
}

const storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

func align4(n uint64) uint64 { return (n + 3) &^ 3 }

// packTexels widens tightly packed texels to one little-endian u32 each.
// R8 values are replicated into gray so kernels read them like RGBA.
func packTexels(data []byte, format gpucore.TextureFormat) []byte {
	if format != gpucore.FormatR8 {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	out := make([]byte, len(data)*texelStride)
	for i, v := range data {
		out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = v, v, v, 255
	}
	return out
}

// unpackTexels narrows device texels back to the tightly packed format.
// R8 keeps the red channel.
func unpackTexels(raw []byte, format gpucore.TextureFormat) []byte {
	if format != gpucore.FormatR8 {
		return raw
	}
	out := make([]byte, len(raw)/texelStride)
	for i := range out {
		out[i] = raw[i*4]
	}
	return out
}

// dimsBytes encodes one {width, height, depth, 0} vec4<u32> per texture.
func dimsBytes(textures []*Texture) []byte {
	out := make([]byte, max(len(textures), 1)*16)
	for i, t := range textures {
		s := t.size
		binary.LittleEndian.PutUint32(out[i*16:], uint32(s.Width))        //nolint:gosec // validated
		binary.LittleEndian.PutUint32(out[i*16+4:], uint32(s.Height))     //nolint:gosec // validated
		binary.LittleEndian.PutUint32(out[i*16+8:], uint32(max(s.Depth, 1))) //nolint:gosec // validated
	}
	return out
}
