package imp

import (
	"fmt"
	"sync"

	"github.com/gogpu/imp/gpucore"
)

// DefaultGroupSize is the preferred threadgroup size of a Function.
var DefaultGroupSize = gpucore.Size{Width: 16, Height: 16, Depth: 1}

// Function resolves a named kernel into a compute pipeline on first use.
//
// Resolution happens once. A failure is kept and returned by every later
// call; a Function is not retried with another name.
type Function struct {
	ctx  *Context
	name string

	// GroupSize is the preferred dispatch granularity. Set it before the
	// first dispatch.
	GroupSize gpucore.Size

	once     sync.Once
	pipeline gpucore.Pipeline
	err      error
}

// NewFunction returns a Function for the kernel called name.
func NewFunction(ctx *Context, name string) *Function {
	return &Function{ctx: ctx, name: name, GroupSize: DefaultGroupSize}
}

// Name returns the kernel name.
func (f *Function) Name() string { return f.name }

// Pipeline resolves and returns the pipeline.
func (f *Function) Pipeline() (gpucore.Pipeline, error) {
	f.once.Do(func() {
		f.pipeline, f.err = f.ctx.dev.NewComputePipeline(f.name)
		if f.err != nil {
			f.err = fmt.Errorf("imp: function %q: %w", f.name, f.err)
			return
		}
		Logger().Debug("imp: pipeline resolved", "function", f.name,
			"maxThreadsPerGroup", f.pipeline.MaxThreadsPerGroup())
	})
	return f.pipeline, f.err
}

// ThreadsPerGroup returns GroupSize, halved along its longer side until it
// fits the pipeline limit.
func (f *Function) ThreadsPerGroup() (gpucore.Size, error) {
	p, err := f.Pipeline()
	if err != nil {
		return gpucore.Size{}, err
	}
	t := f.GroupSize
	t.Width, t.Height, t.Depth = max(t.Width, 1), max(t.Height, 1), max(t.Depth, 1)
	for t.Count() > p.MaxThreadsPerGroup() && t.Count() > 1 {
		if t.Width >= t.Height {
			t.Width = max(t.Width/2, 1)
		} else {
			t.Height = max(t.Height/2, 1)
		}
	}
	return t, nil
}

// Groups returns the number of threadgroups covering extent, rounding up.
func (f *Function) Groups(extent gpucore.Size) (gpucore.Size, error) {
	t, err := f.ThreadsPerGroup()
	if err != nil {
		return gpucore.Size{}, err
	}
	return gpucore.Groups(extent, t), nil
}

// Dispatch encodes one dispatch of the function over extent with textures
// and buffers bound at their slice indices.
func (f *Function) Dispatch(cb gpucore.CommandBuffer, extent gpucore.Size,
	textures []gpucore.Texture, buffers []gpucore.Buffer) error {
	p, err := f.Pipeline()
	if err != nil {
		return err
	}
	threads, err := f.ThreadsPerGroup()
	if err != nil {
		return err
	}
	groups := gpucore.Groups(extent, threads)

	enc := cb.ComputeEncoder()
	enc.SetPipeline(p)
	for i, t := range textures {
		enc.SetTexture(i, t)
	}
	for i, b := range buffers {
		enc.SetBuffer(i, b)
	}
	enc.Dispatch(groups, threads)
	Logger().Debug("imp: dispatch", "function", f.name, "groups", groups.String(), "threads", threads.String())
	return enc.End()
}
