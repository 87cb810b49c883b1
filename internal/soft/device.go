// Package soft implements gpucore.Device on the CPU.
//
// Kernels are Go functions registered by name. A dispatch runs one kernel
// call per threadgroup, spread over a parallel.WorkerPool. Each queue owns an
// executor goroutine that runs committed command buffers one at a time, so
// completion order equals commit order.
package soft

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/parallel"
)

// Group is one threadgroup of a dispatch as seen by a kernel.
type Group struct {
	// ID is the position of the group in the grid.
	ID gpucore.Origin

	// Index is the linear group index.
	Index int

	// Grid is the number of groups per dimension.
	Grid gpucore.Size

	// Threads is the number of threads per group.
	Threads gpucore.Size

	Textures []*Texture
	Buffers  []*Buffer
}

// Texture returns texture slot i or nil.
func (g *Group) Texture(i int) *Texture {
	if i < len(g.Textures) {
		return g.Textures[i]
	}
	return nil
}

// Buffer returns buffer slot i or nil.
func (g *Group) Buffer(i int) *Buffer {
	if i < len(g.Buffers) {
		return g.Buffers[i]
	}
	return nil
}

// ForThreads calls fn for each thread position of the group, in grid
// coordinates.
func (g *Group) ForThreads(fn func(x, y, z int)) {
	x0 := g.ID.X * g.Threads.Width
	y0 := g.ID.Y * g.Threads.Height
	z0 := g.ID.Z * max(g.Threads.Depth, 1)
	for z := z0; z < z0+max(g.Threads.Depth, 1); z++ {
		for y := y0; y < y0+g.Threads.Height; y++ {
			for x := x0; x < x0+g.Threads.Width; x++ {
				fn(x, y, z)
			}
		}
	}
}

// KernelFunc runs one threadgroup. Groups of one dispatch run concurrently
// and must write disjoint outputs.
type KernelFunc func(g *Group) error

var (
	registryMu sync.RWMutex
	registry   = map[string]KernelFunc{}
)

// Register adds a kernel under name, replacing any previous one.
func Register(name string, fn KernelFunc) {
	registryMu.Lock()
	registry[name] = fn
	registryMu.Unlock()
}

// Kernels returns the sorted names of all registered kernels.
func Kernels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (KernelFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Config configures a software device.
type Config struct {
	// Workers is the number of pool workers. Defaults to GOMAXPROCS.
	Workers int

	// MaxTextureSize caps texture dimensions. Defaults to 16384.
	MaxTextureSize int
}

// Device is a CPU implementation of gpucore.Device.
type Device struct {
	pool      *parallel.WorkerPool
	limits    gpucore.Limits
	destroyed atomic.Bool

	mu     sync.Mutex
	queues []*Queue
}

var _ gpucore.Device = (*Device)(nil)

// New creates a software device.
func New(cfg Config) *Device {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	maxTex := cfg.MaxTextureSize
	if maxTex <= 0 {
		maxTex = 16384
	}
	d := &Device{
		pool: parallel.NewWorkerPool(workers),
		limits: gpucore.Limits{
			MaxThreadsPerGroup:   1024,
			MaxTextureSize:       maxTex,
			MaxConcurrentThreads: workers * 256,
		},
	}
	slogger().Debug("soft: device created", "workers", workers)
	return d
}

// Name returns "software".
func (d *Device) Name() string { return "software" }

// Limits returns the device limits.
func (d *Device) Limits() gpucore.Limits { return d.limits }

// NewQueue creates a queue with its own executor.
func (d *Device) NewQueue() (gpucore.Queue, error) {
	if d.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	q := newQueue(d)
	d.mu.Lock()
	d.queues = append(d.queues, q)
	d.mu.Unlock()
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
	return newTexture(desc), nil
}

// NewBuffer allocates a zeroed buffer.
func (d *Device) NewBuffer(size int, label string) (gpucore.Buffer, error) {
	if d.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer %q of %d bytes", gpucore.ErrInvalidSize, label, size)
	}
	return &Buffer{label: label, data: make([]byte, size)}, nil
}

// NewComputePipeline resolves a registered kernel.
func (d *Device) NewComputePipeline(name string) (gpucore.Pipeline, error) {
	if d.destroyed.Load() {
		return nil, gpucore.ErrDeviceDestroyed
	}
	fn, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", gpucore.ErrFunctionNotFound, name)
	}
	return &pipeline{name: name, fn: fn, maxThreads: d.limits.MaxThreadsPerGroup}, nil
}

// Destroy stops all queue executors and the worker pool.
func (d *Device) Destroy() {
	if d.destroyed.Swap(true) {
		return
	}
	d.mu.Lock()
	queues := d.queues
	d.queues = nil
	d.mu.Unlock()
	for _, q := range queues {
		q.close()
	}
	d.pool.Close()
}

type pipeline struct {
	name       string
	fn         KernelFunc
	maxThreads int
}

func (p *pipeline) Name() string            { return p.name }
func (p *pipeline) MaxThreadsPerGroup() int { return p.maxThreads }
