package gpucore

import "errors"

// Device errors.
var (
	// ErrFunctionNotFound is returned when a kernel name has no implementation.
	ErrFunctionNotFound = errors.New("gpucore: function not found")

	// ErrUnsupportedFormat is returned for texture formats a device cannot store.
	ErrUnsupportedFormat = errors.New("gpucore: unsupported texture format")

	// ErrInvalidSize is returned for empty or oversized textures and buffers.
	ErrInvalidSize = errors.New("gpucore: invalid size")

	// ErrOutOfBounds is returned when a copy or upload exceeds a resource.
	ErrOutOfBounds = errors.New("gpucore: out of bounds")

	// ErrFormatMismatch is returned when copying between textures of different formats.
	ErrFormatMismatch = errors.New("gpucore: texture format mismatch")

	// ErrAlreadyCommitted is returned when a command buffer is reused after Commit.
	ErrAlreadyCommitted = errors.New("gpucore: command buffer already committed")

	// ErrNotCommitted is returned when waiting on a command buffer that was never committed.
	ErrNotCommitted = errors.New("gpucore: command buffer not committed")

	// ErrDeviceDestroyed is returned when using a device after Destroy.
	ErrDeviceDestroyed = errors.New("gpucore: device destroyed")
)

// Device creates resources, pipelines and queues.
type Device interface {
	// Name identifies the device for logs.
	Name() string

	// Limits reports the scheduling limits of the device.
	Limits() Limits

	// NewQueue creates a submission queue.
	NewQueue() (Queue, error)

	// NewTexture allocates a texture. Contents are zeroed.
	NewTexture(desc TextureDescriptor) (Texture, error)

	// NewBuffer allocates a zeroed buffer of size bytes.
	NewBuffer(size int, label string) (Buffer, error)

	// NewComputePipeline resolves a kernel by name.
	// Unknown names return an error wrapping ErrFunctionNotFound.
	NewComputePipeline(name string) (Pipeline, error)

	// Destroy releases the device. Resources created from it become invalid.
	Destroy()
}

// Queue hands out command buffers whose work completes in commit order.
type Queue interface {
	CommandBuffer(label string) (CommandBuffer, error)
}

// Texture is a device-resident pixel store.
type Texture interface {
	Label() string
	Width() int
	Height() int
	Depth() int
	Size() Size
	Format() TextureFormat

	// Upload replaces the full contents with tightly packed texels.
	// It must not race with in-flight work that touches the texture.
	Upload(data []byte) error

	// Read returns a copy of the full contents as tightly packed texels.
	// The caller waits for producing work to complete before reading.
	Read() ([]byte, error)

	// SetPurgeable marks whether the contents may be discarded.
	SetPurgeable(purgeable bool)
	Purgeable() bool

	Destroy()
}

// Buffer is a device-resident byte array used for uniforms and reductions.
type Buffer interface {
	Label() string
	Len() int
	Write(offset int, data []byte) error
	Read(offset int, dst []byte) error
	Destroy()
}
