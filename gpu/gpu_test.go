//go:build !nogpu

package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

type mockQueue struct{}

type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider without hal access.
type mockProvider struct{}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

// wrongHALProvider exposes hal accessors returning the wrong types.
type wrongHALProvider struct{ mockProvider }

func (w *wrongHALProvider) HalDevice() any { return "device" }
func (w *wrongHALProvider) HalQueue() any  { return "queue" }

func TestNewDeviceFromProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
	}{
		{"no hal access", &mockProvider{}},
		{"wrong hal types", &wrongHALProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := NewDeviceFromProvider(tt.provider)
			if !errors.Is(err, ErrNoHALAccess) {
				t.Errorf("NewDeviceFromProvider() error = %v, want ErrNoHALAccess", err)
			}
			if dev != nil {
				t.Error("NewDeviceFromProvider() returned a device on error")
			}
		})
	}
}

func TestOpenOrSoftware(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping GPU probe in short mode")
	}
	dev := OpenOrSoftware(1)
	if dev == nil {
		t.Fatal("OpenOrSoftware() = nil")
	}
	defer dev.Destroy()
	if dev.Name() == "" {
		t.Error("device has no name")
	}
}
