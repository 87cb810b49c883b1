package soft

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/imp/gpucore"
)

// Texture is a host-memory texture. Texels are tightly packed rows, slice
// after slice.
type Texture struct {
	mu        sync.RWMutex
	label     string
	size      gpucore.Size
	format    gpucore.TextureFormat
	bpp       int
	data      []byte
	purgeable atomic.Bool
	destroyed atomic.Bool
}

var _ gpucore.Texture = (*Texture)(nil)

func newTexture(desc gpucore.TextureDescriptor) *Texture {
	return &Texture{
		label:  desc.Label,
		size:   desc.Size(),
		format: desc.Format,
		bpp:    gpucore.BytesPerPixel(desc.Format),
		data:   make([]byte, desc.ByteSize()),
	}
}

func (t *Texture) Label() string                 { return t.label }
func (t *Texture) Width() int                    { return t.size.Width }
func (t *Texture) Height() int                   { return t.size.Height }
func (t *Texture) Depth() int                    { return t.size.Depth }
func (t *Texture) Size() gpucore.Size            { return t.size }
func (t *Texture) Format() gpucore.TextureFormat { return t.format }
func (t *Texture) SetPurgeable(p bool)           { t.purgeable.Store(p) }
func (t *Texture) Purgeable() bool               { return t.purgeable.Load() }

// Upload replaces the texture contents.
func (t *Texture) Upload(data []byte) error {
	if t.destroyed.Load() {
		return gpucore.ErrDeviceDestroyed
	}
	if len(data) != len(t.data) {
		return fmt.Errorf("%w: upload of %d bytes into %s texture of %d bytes",
			gpucore.ErrOutOfBounds, len(data), t.size, len(t.data))
	}
	t.mu.Lock()
	copy(t.data, data)
	t.mu.Unlock()
	return nil
}

// Read returns a copy of the texture contents.
func (t *Texture) Read() ([]byte, error) {
	if t.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out, nil
}

// Destroy drops the texel storage.
func (t *Texture) Destroy() {
	if t.destroyed.Swap(true) {
		return
	}
	t.mu.Lock()
	t.data = nil
	t.mu.Unlock()
}

// Texel returns the RGBA value at (x, y, z). R8 textures read as gray.
// Coordinates must be in range.
func (t *Texture) Texel(x, y, z int) [4]uint8 {
	i := ((z*t.size.Height+y)*t.size.Width + x) * t.bpp
	if t.bpp == 1 {
		v := t.data[i]
		return [4]uint8{v, v, v, 255}
	}
	return [4]uint8{t.data[i], t.data[i+1], t.data[i+2], t.data[i+3]}
}

// SetTexel stores an RGBA value at (x, y, z). R8 textures keep red only.
func (t *Texture) SetTexel(x, y, z int, c [4]uint8) {
	i := ((z*t.size.Height+y)*t.size.Width + x) * t.bpp
	if t.bpp == 1 {
		t.data[i] = c[0]
		return
	}
	copy(t.data[i:i+4], c[:])
}

// Buffer is a host-memory buffer.
type Buffer struct {
	mu        sync.RWMutex
	label     string
	data      []byte
	destroyed atomic.Bool
}

var _ gpucore.Buffer = (*Buffer)(nil)

func (b *Buffer) Label() string { return b.label }
func (b *Buffer) Len() int      { return len(b.data) }

// Write copies data into the buffer at offset.
func (b *Buffer) Write(offset int, data []byte) error {
	if b.destroyed.Load() {
		return gpucore.ErrDeviceDestroyed
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return fmt.Errorf("%w: write [%d,%d) into %d bytes", gpucore.ErrOutOfBounds, offset, offset+len(data), len(b.data))
	}
	b.mu.Lock()
	copy(b.data[offset:], data)
	b.mu.Unlock()
	return nil
}

// Read copies len(dst) bytes from offset into dst.
func (b *Buffer) Read(offset int, dst []byte) error {
	if b.destroyed.Load() {
		return gpucore.ErrDeviceDestroyed
	}
	if offset < 0 || offset+len(dst) > len(b.data) {
		return fmt.Errorf("%w: read [%d,%d) from %d bytes", gpucore.ErrOutOfBounds, offset, offset+len(dst), len(b.data))
	}
	b.mu.RLock()
	copy(dst, b.data[offset:])
	b.mu.RUnlock()
	return nil
}

// Destroy drops the buffer storage.
func (b *Buffer) Destroy() {
	if b.destroyed.Swap(true) {
		return
	}
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
}

// Bytes exposes the backing storage to kernels. Kernels run on the queue
// executor, which is the only writer while a command buffer executes.
func (b *Buffer) Bytes() []byte { return b.data }
