package imp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/gogpu/imp/gpucore"
)

// Context errors.
var (
	// ErrNoDevice is returned by NewContext without a device.
	ErrNoDevice = errors.New("imp: no device")

	// ErrNoQueue is returned when the device cannot create a command queue.
	ErrNoQueue = errors.New("imp: no command queue")

	// ErrContextClosed is returned by operations on a closed Context.
	ErrContextClosed = errors.New("imp: context closed")
)

// HazardPolicy decides how consecutive filter passes hand buffers over.
type HazardPolicy int

const (
	// Immediate waits for every submission. Consecutive passes hand over
	// through a copy into a separate buffer, so no pass ever reads a buffer
	// that may still be written.
	Immediate HazardPolicy = iota

	// Deferred records all passes of a filter into one command buffer and
	// returns without waiting. Each pass reads the previous output directly;
	// ordering on the single queue keeps that safe.
	Deferred
)

// String returns the policy name.
func (p HazardPolicy) String() string {
	switch p {
	case Immediate:
		return "immediate"
	case Deferred:
		return "deferred"
	default:
		return fmt.Sprintf("HazardPolicy(%d)", int(p))
	}
}

// ParseHazardPolicy parses "immediate" or "deferred".
func ParseHazardPolicy(s string) (HazardPolicy, error) {
	switch strings.ToLower(s) {
	case "immediate", "eager", "":
		return Immediate, nil
	case "deferred", "lazy":
		return Deferred, nil
	default:
		return Immediate, fmt.Errorf("imp: unknown hazard policy %q", s)
	}
}

// Context owns a device, its queue and the single submission lane every
// command buffer of this Context goes through.
//
// Execute calls are totally ordered. At most MaxInFlight command buffers are
// committed and not yet completed; further Execute calls block until a
// completion releases a slot.
type Context struct {
	dev         gpucore.Device
	queue       gpucore.Queue
	policy      HazardPolicy
	maxInFlight int64
	maxTexture  int

	lane     sync.Mutex
	inflight *semaphore.Weighted
	labels   atomic.Uint64

	alloc *allocator

	// graphMu guards filter tree structure and generation counters.
	graphMu    sync.RWMutex
	generation uint64

	closed atomic.Bool
}

// NewContext creates a Context that owns dev. The device is destroyed by
// Close.
func NewContext(dev gpucore.Device, opts ...ContextOption) (*Context, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	q, err := dev.NewQueue()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoQueue, err)
	}

	maxTex := dev.Limits().MaxTextureSize
	if o.maxTextureSize > 0 && o.maxTextureSize < maxTex {
		maxTex = o.maxTextureSize
	}

	c := &Context{
		dev:         dev,
		queue:       q,
		policy:      o.policy,
		maxInFlight: int64(o.maxInFlight),
		maxTexture:  maxTex,
		inflight:    semaphore.NewWeighted(int64(o.maxInFlight)),
	}
	c.alloc = newAllocator(dev, o.memoryBudget, c.drain)
	trackDevice(dev)

	Logger().Info("imp: context created",
		"device", dev.Name(),
		"policy", o.policy.String(),
		"maxInFlight", o.maxInFlight,
		"maxTextureSize", maxTex)
	return c, nil
}

// Device returns the device.
func (c *Context) Device() gpucore.Device { return c.dev }

// Policy returns the hazard policy.
func (c *Context) Policy() HazardPolicy { return c.policy }

// MaxInFlight returns the in-flight command buffer limit.
func (c *Context) MaxInFlight() int { return int(c.maxInFlight) }

// MaxTextureSize returns the largest texture side this Context allocates.
func (c *Context) MaxTextureSize() int { return c.maxTexture }

// AdjustSize clamps size to MaxTextureSize, keeping the aspect ratio.
func (c *Context) AdjustSize(size gpucore.Size) gpucore.Size {
	return AdjustSize(size, c.maxTexture)
}

// AdjustSize returns size unchanged when both sides are at most limit.
// Otherwise it scales size so the longer side equals limit, preserving the
// aspect ratio.
func AdjustSize(size gpucore.Size, limit int) gpucore.Size {
	if limit <= 0 || (size.Width <= limit && size.Height <= limit) {
		return size
	}
	out := size
	if size.Width >= size.Height {
		out.Width = limit
		out.Height = max(int(float64(size.Height)*float64(limit)/float64(size.Width)), 1)
	} else {
		out.Height = limit
		out.Width = max(int(float64(size.Width)*float64(limit)/float64(size.Height)), 1)
	}
	return out
}

// Execute runs fn with a fresh command buffer on the serial lane and commits
// it. It waits for completion when wait is true or the policy is Immediate.
// When fn returns an error nothing is committed, and the completion handlers
// fn added run with that error once earlier work has completed.
func (c *Context) Execute(wait bool, fn func(cb gpucore.CommandBuffer) error) error {
	return c.ExecuteContext(context.Background(), wait, fn)
}

// ExecuteContext is Execute with a context that bounds the wait for an
// in-flight slot. Committed work is never cancelled.
func (c *Context) ExecuteContext(ctx context.Context, wait bool, fn func(cb gpucore.CommandBuffer) error) error {
	if c.closed.Load() {
		return ErrContextClosed
	}

	c.lane.Lock()
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		c.lane.Unlock()
		return err
	}
	release := sync.OnceFunc(func() { c.inflight.Release(1) })

	label := fmt.Sprintf("imp.%d", c.labels.Add(1))
	cb, err := c.queue.CommandBuffer(label)
	if err != nil {
		release()
		c.lane.Unlock()
		return err
	}
	rec := &recorder{CommandBuffer: cb}
	if err := fn(rec); err != nil {
		release()
		c.lane.Unlock()
		c.discard(label, rec.handlers, err)
		return err
	}
	for _, h := range rec.handlers {
		cb.AddCompletedHandler(h)
	}
	cb.AddCompletedHandler(func(err error) {
		release()
		if err != nil {
			Logger().Warn("imp: command buffer failed", "label", label, "err", err)
		}
	})
	if err := cb.Commit(); err != nil {
		release()
		c.lane.Unlock()
		c.discard(label, rec.handlers, err)
		return err
	}
	c.lane.Unlock()

	if wait || c.policy == Immediate {
		return cb.WaitUntilCompleted()
	}
	return nil
}

// recorder holds back the completion handlers added while a command buffer
// is recorded, so they run even when it is never committed.
type recorder struct {
	gpucore.CommandBuffer
	handlers []func(error)
}

func (r *recorder) AddCompletedHandler(fn func(error)) {
	r.handlers = append(r.handlers, fn)
}

// discard runs the handlers of a command buffer that was not committed.
// Committed work may still use what they free, so it is drained first.
func (c *Context) discard(label string, handlers []func(error), err error) {
	if len(handlers) == 0 {
		return
	}
	Logger().Debug("imp: command buffer discarded", "label", label, "err", err)
	c.drain()
	for _, h := range handlers {
		h(err)
	}
}

// Wait blocks until every command buffer committed so far has completed.
func (c *Context) Wait(ctx context.Context) error {
	if err := c.inflight.Acquire(ctx, c.maxInFlight); err != nil {
		return err
	}
	c.inflight.Release(c.maxInFlight)
	return nil
}

// nextGeneration returns a generation larger than any returned before.
// Caller must hold graphMu for writing.
func (c *Context) nextGeneration() uint64 {
	c.generation++
	return c.generation
}

func (c *Context) drain() {
	_ = c.Wait(context.Background())
}

// MemoryStats returns texture allocation statistics.
func (c *Context) MemoryStats() MemoryStats {
	return c.alloc.stats()
}

// NewTexture allocates a texture tracked by the Context allocator.
func (c *Context) NewTexture(desc gpucore.TextureDescriptor) (gpucore.Texture, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}
	return c.alloc.texture(desc)
}

// ReleaseTexture destroys a texture allocated by NewTexture.
func (c *Context) ReleaseTexture(t gpucore.Texture) {
	c.alloc.release(t)
}

// Close waits for outstanding work, destroys every tracked texture and the
// device.
func (c *Context) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.drain()
	c.alloc.close()
	untrackDevice(c.dev)
	c.dev.Destroy()
	Logger().Debug("imp: context closed", "device", c.dev.Name())
	return nil
}
