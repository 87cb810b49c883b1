//go:build nogpu

package gpu

import (
	"errors"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
)

// ErrNoHALAccess is returned when a provider does not expose its hal device.
var ErrNoHALAccess = errors.New("gpu: provider does not expose HalDevice and HalQueue")

// errDisabled is returned by every constructor in nogpu builds.
var errDisabled = errors.New("gpu: built with nogpu")

func Open() (gpucore.Device, error) { return nil, errDisabled }

func OpenOrSoftware(workers int) gpucore.Device {
	imp.Logger().Warn("gpu: falling back to software device", "err", errDisabled)
	return imp.NewSoftwareDevice(workers)
}

func NewDeviceFromProvider(gpucontext.DeviceProvider) (gpucore.Device, error) {
	return nil, errDisabled
}
