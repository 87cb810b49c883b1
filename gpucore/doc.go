// Package gpucore defines the device abstraction the imp filter graph runs on.
//
// The filter engine never talks to a GPU API directly. It records work through
// the small set of interfaces declared here ([Device], [Queue],
// [CommandBuffer], [ComputeEncoder], [BlitEncoder], [Texture], [Buffer]) and
// two implementations translate those calls to a concrete executor:
//
//	               +------------------+
//	               |   imp.Context    |
//	               | (lane + limiter) |
//	               +--------+---------+
//	                        |
//	               +--------v---------+
//	               |  gpucore.Device  |
//	               +--------+---------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +---------v--------+
//	|  internal/soft  |          | internal/halgpu  |
//	| (Go kernels on  |          | (wgpu/hal, WGSL  |
//	|  worker pool)   |          |  via naga)       |
//	+-----------------+          +------------------+
//
// # Kernels
//
// Kernels are addressed by name (for example "kernel_passthrough"). A device
// resolves a name into a [Pipeline] with [Device.NewComputePipeline] and
// returns [ErrFunctionNotFound] for names it does not know. The binding
// convention is the same for every kernel: texture slot 0 is the input,
// texture slot 1 is the output, further texture slots and all buffer slots
// are kernel specific.
//
// # Ordering
//
// Command buffers committed to one [Queue] complete in commit order and their
// completed handlers run in that order. Nothing is promised across queues.
//
// # Pixel formats
//
// Textures hold 8-bit unsigned normalized texels in one of two layouts:
// RGBA8Unorm (four bytes per texel) or R8Unorm (one byte per texel).
// Formats are expressed with [gputypes.TextureFormat] so that the hal backend
// can pass them through unchanged.
package gpucore
