package imp

import (
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/soft"
)

// NewSoftwareDevice returns a CPU device that runs every built-in kernel on
// a pool of workers goroutines. Zero workers means GOMAXPROCS.
func NewSoftwareDevice(workers int) gpucore.Device {
	return soft.New(soft.Config{Workers: workers})
}

// NewSoftwareContext creates a Context on a new software device.
func NewSoftwareContext(opts ...ContextOption) (*Context, error) {
	return NewContext(NewSoftwareDevice(0), opts...)
}
