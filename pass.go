package imp

import (
	"fmt"
	"sync"

	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/kernel"
)

// Pass is one transformation step of a Filter. Encode records work that
// reads in and writes out. The filter allocates out before calling Encode.
type Pass interface {
	Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error
}

// Sizer is implemented by passes whose output size differs from their input.
type Sizer interface {
	OutputSize(in gpucore.Size) gpucore.Size
}

// Observable is implemented by passes with mutable parameters. A filter
// holding the pass marks itself stale whenever Changed fires.
type Observable interface {
	Changed() *Event[struct{}]
}

// PassFunc adapts a function to the Pass interface.
type PassFunc func(cb gpucore.CommandBuffer, in, out gpucore.Texture) error

// Encode calls fn.
func (fn PassFunc) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	return fn(cb, in, out)
}

// KernelPass dispatches one kernel over the output texture with the input
// bound at texture slot 0, the output at slot 1, extra textures from slot 2
// on and the uniform bytes at buffer slot 0.
type KernelPass struct {
	ctx *Context
	fn  *Function

	mu       sync.Mutex
	uniforms []byte
	extra    []gpucore.Texture

	changed Event[struct{}]
}

// NewKernelPass returns a pass running the kernel called name.
func NewKernelPass(ctx *Context, name string) *KernelPass {
	return &KernelPass{ctx: ctx, fn: NewFunction(ctx, name)}
}

// Function returns the wrapped kernel.
func (p *KernelPass) Function() *Function { return p.fn }

// Changed fires after every parameter change.
func (p *KernelPass) Changed() *Event[struct{}] { return &p.changed }

// SetUniforms replaces the uniform bytes.
func (p *KernelPass) SetUniforms(b []byte) {
	p.mu.Lock()
	p.uniforms = append(p.uniforms[:0:0], b...)
	p.mu.Unlock()
	p.changed.Fire(struct{}{})
}

// SetExtraTextures binds textures from slot 2 on.
func (p *KernelPass) SetExtraTextures(textures ...gpucore.Texture) {
	p.mu.Lock()
	p.extra = append(p.extra[:0:0], textures...)
	p.mu.Unlock()
	p.changed.Fire(struct{}{})
}

// Encode records the dispatch. The uniform bytes are copied into a buffer
// that lives until the command buffer completes.
func (p *KernelPass) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	p.mu.Lock()
	uniforms, extra := p.uniforms, p.extra
	p.mu.Unlock()
	return p.EncodeWith(cb, in, out, uniforms, extra...)
}

// EncodeWith records the dispatch with the given uniforms and extra textures
// instead of the stored ones. Passes that derive their uniforms from the
// input size call it from their own Encode.
func (p *KernelPass) EncodeWith(cb gpucore.CommandBuffer, in, out gpucore.Texture,
	uniforms []byte, extra ...gpucore.Texture) error {
	textures := append([]gpucore.Texture{in, out}, extra...)
	if len(uniforms) > 0 {
		buf, err := p.ctx.dev.NewBuffer(len(uniforms), p.fn.Name()+".uniforms")
		if err != nil {
			return fmt.Errorf("imp: %s uniforms: %w", p.fn.Name(), err)
		}
		if err := buf.Write(0, uniforms); err != nil {
			buf.Destroy()
			return err
		}
		if err := p.fn.Dispatch(cb, out.Size(), textures, []gpucore.Buffer{buf}); err != nil {
			buf.Destroy()
			return err
		}
		cb.AddCompletedHandler(func(error) { buf.Destroy() })
		return nil
	}
	return p.fn.Dispatch(cb, out.Size(), textures, nil)
}

// passthrough copies its input. Filters without passes or children use it
// so their destination is an owned copy of the source.
func passthrough(ctx *Context) Pass {
	return NewKernelPass(ctx, kernel.Passthrough)
}
