package gpucore

// Pipeline is a resolved compute kernel.
type Pipeline interface {
	// Name is the kernel name the pipeline was resolved from.
	Name() string

	// MaxThreadsPerGroup is the largest threadgroup the kernel accepts.
	MaxThreadsPerGroup() int
}

// ComputeEncoder records one compute dispatch.
//
// Bindings set before Dispatch are captured at Dispatch time, so an encoder
// can be rebound and dispatched again.
type ComputeEncoder interface {
	SetPipeline(p Pipeline)
	SetTexture(index int, t Texture)
	SetBuffer(index int, b Buffer)

	// Dispatch records groups threadgroups of threadsPerGroup threads each.
	Dispatch(groups, threadsPerGroup Size)

	// End finishes recording. Errors detected while recording surface here.
	End() error
}

// BlitEncoder records copies and fills.
type BlitEncoder interface {
	// CopyTexture copies size texels from src at srcOrigin to dst at dstOrigin.
	// Both textures must have the same format.
	CopyTexture(src Texture, srcOrigin Origin, dst Texture, dstOrigin Origin, size Size)

	// FillBuffer sets every byte of b to value.
	FillBuffer(b Buffer, value byte)

	End() error
}

// CommandBuffer is an ordered batch of recorded work.
//
// A command buffer is filled, committed once, and optionally waited on.
// Handlers added with AddCompletedHandler run after the work finishes, in the
// order they were added, with the execution error if any.
type CommandBuffer interface {
	Label() string
	ComputeEncoder() ComputeEncoder
	BlitEncoder() BlitEncoder
	AddCompletedHandler(fn func(err error))
	Commit() error
	WaitUntilCompleted() error
}
