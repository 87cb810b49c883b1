//go:build !nogpu

// Package halgpu implements gpucore.Device on wgpu/hal compute shaders.
//
// Kernels are WGSL compiled to SPIR-V with naga. Textures live in storage
// buffers with one packed u32 per texel, so every kernel reads and writes
// texels with plain array indexing. Each queue runs committed command buffers
// on one executor goroutine; consecutive dispatches and copies are encoded
// into one hal command buffer and submitted with a single fence wait.
package halgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan backend

	"github.com/gogpu/imp/gpucore"
)

// fenceTimeout bounds every wait on submitted work.
const fenceTimeout = 5 * time.Second

// ErrNoAdapter is returned by Open when no usable GPU is present.
var ErrNoAdapter = errors.New("halgpu: no GPU adapter")

// Device is a wgpu/hal implementation of gpucore.Device.
type Device struct {
	name     string
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	limits   gpucore.Limits

	destroyed atomic.Bool

	// mu serializes use of the hal queue.
	mu sync.Mutex

	pmu       sync.Mutex
	pipelines map[string]*pipeline

	qmu    sync.Mutex
	queues []*Queue
}

var _ gpucore.Device = (*Device)(nil)

// Open creates a Vulkan instance and opens the first discrete or integrated
// adapter, falling back to the first adapter found.
func Open() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoAdapter)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open device: %w", err)
	}
	d := newDevice(selected.Info.Name, openDev.Device, openDev.Queue)
	d.instance = instance
	slogger().Info("halgpu: device opened", "adapter", selected.Info.Name)
	return d, nil
}

// NewFromHAL wraps a device and queue owned by someone else. Destroy
// releases the kernels and queues but leaves the hal device open.
func NewFromHAL(device hal.Device, queue hal.Queue, name string) (*Device, error) {
	if device == nil || queue == nil {
		return nil, errors.New("halgpu: nil hal device or queue")
	}
	d := newDevice(name, device, queue)
	d.external = true
	slogger().Info("halgpu: using shared device", "name", name)
	return d, nil
}

func newDevice(name string, device hal.Device, queue hal.Queue) *Device {
	return &Device{
		name:   name,
		device: device,
		queue:  queue,
		limits: gpucore.Limits{
			MaxThreadsPerGroup:   imageGroup.Count(),
			MaxTextureSize:       8192,
			MaxConcurrentThreads: 16384,
		},
		pipelines: map[string]*pipeline{},
	}
}

// SetLogger sets the package logger. Called by imp.SetLogger.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// Limits returns the device limits.
func (d *Device) Limits() gpucore.Limits { return d.limits }

// NewQueue creates a queue with its own executor.
func (d *Device) NewQueue() (gpucore.Queue, error) {
	if d.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	q := newQueue(d)
	d.qmu.Lock()
	d.queues = append(d.queues, q)
	d.qmu.Unlock()
	return q, nil
}

// NewTexture allocates a zeroed texture.
func (d *Device) NewTexture(desc gpucore.TextureDescriptor) (gpucore.Texture, error) {
	if d.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	if err := desc.Validate(d.limits); err != nil {
		return nil, err
	}
	t := &Texture{dev: d, label: desc.Label, size: desc.Size(), format: desc.Format}
	buf, err := d.newStorage(desc.Label, t.byteSize())
	if err != nil {
		return nil, err
	}
	t.buf = buf
	slogger().Debug("halgpu: texture allocated", "label", desc.Label, "size", t.size.String())
	return t, nil
}

// NewBuffer allocates a zeroed buffer.
func (d *Device) NewBuffer(size int, label string) (gpucore.Buffer, error) {
	if d.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer %q of %d bytes", gpucore.ErrInvalidSize, label, size)
	}
	b := &Buffer{dev: d, label: label, size: size}
	buf, err := d.newStorage(label, b.allocated())
	if err != nil {
		return nil, err
	}
	b.buf = buf
	return b, nil
}

// NewComputePipeline compiles the named kernel once and caches it.
func (d *Device) NewComputePipeline(name string) (gpucore.Pipeline, error) {
	if d.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	d.pmu.Lock()
	defer d.pmu.Unlock()
	if p, ok := d.pipelines[name]; ok {
		return p, nil
	}
	spec, ok := kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", gpucore.ErrFunctionNotFound, name)
	}
	p, err := newPipeline(d.device, name, spec)
	if err != nil {
		return nil, err
	}
	d.pipelines[name] = p
	slogger().Debug("halgpu: pipeline compiled", "kernel", name)
	return p, nil
}

// Destroy stops the queue executors and releases the kernels. The hal
// device and instance are destroyed unless they were supplied by NewFromHAL.
func (d *Device) Destroy() {
	if d.destroyed.Swap(true) {
		return
	}
	d.qmu.Lock()
	queues := d.queues
	d.queues = nil
	d.qmu.Unlock()
	for _, q := range queues {
		q.close()
	}

	d.pmu.Lock()
	for _, p := range d.pipelines {
		p.destroy(d.device)
	}
	d.pipelines = nil
	d.pmu.Unlock()

	if d.external {
		return
	}
	d.device.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
	slogger().Info("halgpu: device destroyed", "name", d.name)
}

// newStorage creates a storage buffer and clears it.
func (d *Device) newStorage(label string, size uint64) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create buffer %q: %w", label, err)
	}
	if err := d.write(buf, 0, make([]byte, size)); err != nil {
		d.device.DestroyBuffer(buf)
		return nil, err
	}
	return buf, nil
}

func (d *Device) destroyBuffer(buf hal.Buffer) {
	if d.destroyed.Load() && !d.external {
		return
	}
	d.mu.Lock()
	d.device.DestroyBuffer(buf)
	d.mu.Unlock()
}

// write copies data into buf at offset through the queue.
func (d *Device) write(buf hal.Buffer, offset uint64, data []byte) error {
	if d.destroyed.Load() {
		return gpucore.ErrDeviceDestroyed
	}
	d.mu.Lock()
	d.queue.WriteBuffer(buf, offset, data)
	d.mu.Unlock()
	return nil
}

// read copies size bytes at offset of buf into a staging buffer and returns
// them once the copy has completed.
func (d *Device) read(buf hal.Buffer, offset, size uint64) ([]byte, error) {
	if d.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "halgpu_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	b := &batch{dev: d}
	enc, err := b.encoder()
	if err != nil {
		return nil, err
	}
	enc.CopyBufferToBuffer(buf, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	if err := b.flush(); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return out, nil
}
