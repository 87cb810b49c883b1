package imp

import (
	"fmt"
	"sync"

	"github.com/gogpu/imp/gpucore"
)

// Orientation tags how a source image should be turned to appear upright.
// Values follow the EXIF orientation order.
type Orientation int

const (
	Up Orientation = iota
	Down
	Left
	Right
	UpMirrored
	DownMirrored
	LeftMirrored
	RightMirrored
)

var orientationNames = [...]string{
	"up", "down", "left", "right",
	"up-mirrored", "down-mirrored", "left-mirrored", "right-mirrored",
}

func (o Orientation) String() string {
	if o >= 0 && int(o) < len(orientationNames) {
		return orientationNames[o]
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// Provider supplies the source texture of a Filter.
type Provider interface {
	// Texture returns the current texture, or nil when there is none yet.
	Texture() gpucore.Texture

	// Orientation returns the orientation of the current texture.
	Orientation() Orientation
}

// Versioned is implemented by providers whose texture contents can change
// without the texture itself changing. A filter reading such a provider is
// stale whenever Version differs from the value seen at its last evaluation.
type Versioned interface {
	Version() uint64
}

// TextureProvider is a Provider holding a texture set by the caller.
type TextureProvider struct {
	mu          sync.Mutex
	tex         gpucore.Texture
	orientation Orientation
	version     uint64
}

// NewTextureProvider returns a provider holding tex.
func NewTextureProvider(tex gpucore.Texture, o Orientation) *TextureProvider {
	return &TextureProvider{tex: tex, orientation: o}
}

// Set replaces the texture. Calling Set with the same texture after changing
// its contents also counts as a new version.
func (p *TextureProvider) Set(tex gpucore.Texture, o Orientation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tex = tex
	p.orientation = o
	p.version++
}

func (p *TextureProvider) Texture() gpucore.Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tex
}

func (p *TextureProvider) Orientation() Orientation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.orientation
}

func (p *TextureProvider) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}
