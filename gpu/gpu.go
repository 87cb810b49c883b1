//go:build !nogpu

// Package gpu opens hardware devices for imp.
//
// Open creates its own Vulkan device through wgpu/hal. NewDeviceFromProvider
// shares a device owned by a host application, such as a gogpu window, so
// filters run on the same GPU that presents their results.
//
// Usage:
//
//	dev, err := gpu.Open()
//	if err != nil {
//	    dev = imp.NewSoftwareDevice(0)
//	}
//	ctx, err := imp.NewContext(dev)
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/halgpu"
)

// ErrNoHALAccess is returned when a provider does not expose its hal device.
var ErrNoHALAccess = errors.New("gpu: provider does not expose HalDevice and HalQueue")

// Open opens the first suitable GPU.
func Open() (gpucore.Device, error) {
	dev, err := halgpu.Open()
	if err != nil {
		return nil, fmt.Errorf("gpu: %w", err)
	}
	return dev, nil
}

// OpenOrSoftware opens a GPU and falls back to a software device with the
// given number of workers when none is available.
func OpenOrSoftware(workers int) gpucore.Device {
	dev, err := Open()
	if err != nil {
		imp.Logger().Warn("gpu: falling back to software device", "err", err)
		return imp.NewSoftwareDevice(workers)
	}
	return dev
}

// NewDeviceFromProvider wraps the device of an external provider. The
// provider must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. Destroying the returned device leaves the
// provider's device open.
func NewDeviceFromProvider(provider gpucontext.DeviceProvider) (gpucore.Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALAccess)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALAccess)
	}
	return halgpu.NewFromHAL(device, queue, "shared")
}
