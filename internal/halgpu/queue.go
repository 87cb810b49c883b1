//go:build !nogpu

package halgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/imp/gpucore"
)

var errForeignResource = errors.New("halgpu: resource not created by a hal device")

// Queue runs committed command buffers in order on one executor goroutine.
type Queue struct {
	dev    *Device
	submit chan *CommandBuffer
	exited chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ gpucore.Queue = (*Queue)(nil)

func newQueue(d *Device) *Queue {
	q := &Queue{
		dev:    d,
		submit: make(chan *CommandBuffer, 64),
		exited: make(chan struct{}),
	}
	go q.executor()
	return q
}

func (q *Queue) executor() {
	defer close(q.exited)
	for cb := range q.submit {
		cb.execute()
	}
}

func (q *Queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.submit)
	q.mu.Unlock()
	<-q.exited
}

// CommandBuffer returns an empty command buffer bound to this queue.
func (q *Queue) CommandBuffer(label string) (gpucore.CommandBuffer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, gpucore.ErrDeviceDestroyed
	}
	return &CommandBuffer{queue: q, label: label, done: make(chan struct{})}, nil
}

// step is one recorded operation. GPU steps encode into the open hal
// encoder; host steps run on the executor after everything encoded before
// them has completed.
type step struct {
	gpu  func(b *batch, enc hal.CommandEncoder) error
	host func() error
}

// CommandBuffer records steps and executes them on its queue.
type CommandBuffer struct {
	queue *Queue
	label string

	mu        sync.Mutex
	steps     []step
	handlers  []func(error)
	recordErr error
	committed bool

	done    chan struct{}
	execErr error
}

var _ gpucore.CommandBuffer = (*CommandBuffer)(nil)

func (cb *CommandBuffer) Label() string { return cb.label }

func (cb *CommandBuffer) record(s step) {
	cb.mu.Lock()
	cb.steps = append(cb.steps, s)
	cb.mu.Unlock()
}

func (cb *CommandBuffer) fail(err error) {
	cb.mu.Lock()
	if cb.recordErr == nil {
		cb.recordErr = err
	}
	cb.mu.Unlock()
}

func (cb *CommandBuffer) ComputeEncoder() gpucore.ComputeEncoder {
	return &computeEncoder{cb: cb}
}

func (cb *CommandBuffer) BlitEncoder() gpucore.BlitEncoder {
	return &blitEncoder{cb: cb}
}

func (cb *CommandBuffer) AddCompletedHandler(fn func(error)) {
	cb.mu.Lock()
	cb.handlers = append(cb.handlers, fn)
	cb.mu.Unlock()
}

// Commit hands the command buffer to the queue executor.
func (cb *CommandBuffer) Commit() error {
	cb.mu.Lock()
	if cb.committed {
		cb.mu.Unlock()
		return gpucore.ErrAlreadyCommitted
	}
	cb.committed = true
	cb.mu.Unlock()

	q := cb.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		cb.execErr = gpucore.ErrDeviceDestroyed
		close(cb.done)
		return gpucore.ErrDeviceDestroyed
	}
	q.submit <- cb
	return nil
}

// WaitUntilCompleted blocks until execution and handlers finished.
func (cb *CommandBuffer) WaitUntilCompleted() error {
	cb.mu.Lock()
	committed := cb.committed
	cb.mu.Unlock()
	if !committed {
		return gpucore.ErrNotCommitted
	}
	<-cb.done
	return cb.execErr
}

func (cb *CommandBuffer) execute() {
	cb.mu.Lock()
	steps, handlers, err := cb.steps, cb.handlers, cb.recordErr
	cb.mu.Unlock()

	if err == nil {
		err = cb.run(steps)
	}
	if err != nil {
		err = fmt.Errorf("halgpu: command buffer %q: %w", cb.label, err)
		slogger().Warn("halgpu: command buffer failed", "label", cb.label, "err", err)
	}
	cb.execErr = err
	for _, h := range handlers {
		h(err)
	}
	close(cb.done)
}

func (cb *CommandBuffer) run(steps []step) error {
	d := cb.queue.dev
	if d.destroyed.Load() {
		return gpucore.ErrDeviceDestroyed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	b := &batch{dev: d}
	defer b.release()
	for _, s := range steps {
		if s.host != nil {
			if err := b.flush(); err != nil {
				return err
			}
			if err := s.host(); err != nil {
				return err
			}
			continue
		}
		enc, err := b.encoder()
		if err != nil {
			return err
		}
		if err := s.gpu(b, enc); err != nil {
			return err
		}
	}
	return b.flush()
}

// batch is the hal encoder currently being filled and the transient
// resources its commands use. The caller holds dev.mu.
type batch struct {
	dev     *Device
	enc     hal.CommandEncoder
	buffers []hal.Buffer
	groups  []hal.BindGroup
}

func (b *batch) encoder() (hal.CommandEncoder, error) {
	if b.enc != nil {
		return b.enc, nil
	}
	enc, err := b.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "halgpu_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("halgpu"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	b.enc = enc
	return enc, nil
}

// flush submits the encoded commands and waits for them, then releases the
// transient resources.
func (b *batch) flush() error {
	if b.enc == nil {
		return nil
	}
	enc := b.enc
	b.enc = nil
	defer b.release()

	d := b.dev
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}
	return nil
}

func (b *batch) release() {
	for _, bg := range b.groups {
		b.dev.device.DestroyBindGroup(bg)
	}
	for _, buf := range b.buffers {
		b.dev.device.DestroyBuffer(buf)
	}
	b.groups, b.buffers = nil, nil
}

// uploadDims creates a read-only buffer holding the extents of textures.
func (b *batch) uploadDims(textures []*Texture) (hal.Buffer, uint64, error) {
	data := dimsBytes(textures)
	size := uint64(len(data))
	buf, err := b.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "halgpu_dims",
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create dims buffer: %w", err)
	}
	b.buffers = append(b.buffers, buf)
	b.dev.queue.WriteBuffer(buf, 0, data)
	return buf, size, nil
}

type computeEncoder struct {
	cb       *CommandBuffer
	pipeline *pipeline
	textures []*Texture
	buffers  []*Buffer
	err      error
}

func (e *computeEncoder) SetPipeline(p gpucore.Pipeline) {
	hp, ok := p.(*pipeline)
	if !ok {
		e.setErr(fmt.Errorf("%w: pipeline %T", errForeignResource, p))
		return
	}
	e.pipeline = hp
}

func (e *computeEncoder) SetTexture(index int, t gpucore.Texture) {
	ht, ok := t.(*Texture)
	if !ok && t != nil {
		e.setErr(fmt.Errorf("%w: texture %T", errForeignResource, t))
		return
	}
	for len(e.textures) <= index {
		e.textures = append(e.textures, nil)
	}
	e.textures[index] = ht
}

func (e *computeEncoder) SetBuffer(index int, b gpucore.Buffer) {
	hb, ok := b.(*Buffer)
	if !ok && b != nil {
		e.setErr(fmt.Errorf("%w: buffer %T", errForeignResource, b))
		return
	}
	for len(e.buffers) <= index {
		e.buffers = append(e.buffers, nil)
	}
	e.buffers[index] = hb
}

func (e *computeEncoder) setErr(err error) {
	if e.err == nil {
		e.err = err
		e.cb.fail(err)
	}
}

// bound returns the first n slots of s, or an error naming the first
// missing one.
func bound[T any](kind string, s []*T, n int) ([]*T, error) {
	if len(s) < n {
		return nil, fmt.Errorf("%s slot %d unbound", kind, len(s))
	}
	for i := range n {
		if s[i] == nil {
			return nil, fmt.Errorf("%s slot %d unbound", kind, i)
		}
	}
	return append([]*T(nil), s[:n]...), nil
}

// Dispatch captures the bindings and records the dispatch. The threadgroup
// must match the workgroup size compiled into the kernel.
func (e *computeEncoder) Dispatch(groups, threads gpucore.Size) {
	p := e.pipeline
	if p == nil {
		e.setErr(errors.New("halgpu: dispatch without pipeline"))
		return
	}
	want := p.spec.workgroup
	if threads.Width != want.Width || threads.Height != want.Height || max(threads.Depth, 1) != want.Depth {
		e.setErr(fmt.Errorf("halgpu: %s: threadgroup %s, kernel is compiled for %s", p.name, threads, want))
		return
	}
	textures, err := bound("texture", e.textures, p.spec.textures)
	if err != nil {
		e.setErr(fmt.Errorf("halgpu: %s: %w", p.name, err))
		return
	}
	buffers, err := bound("buffer", e.buffers, p.spec.buffers)
	if err != nil {
		e.setErr(fmt.Errorf("halgpu: %s: %w", p.name, err))
		return
	}
	gx, gy, gz := uint32(groups.Width), uint32(groups.Height), uint32(max(groups.Depth, 1)) //nolint:gosec // grid sizes are small
	e.cb.record(step{gpu: func(b *batch, enc hal.CommandEncoder) error {
		if gx == 0 || gy == 0 {
			return nil
		}
		for i, t := range textures {
			if t.destroyed.Load() {
				return fmt.Errorf("kernel %s: texture slot %d destroyed", p.name, i)
			}
		}
		dims, dimsSize, err := b.uploadDims(textures)
		if err != nil {
			return err
		}
		bg, err := p.bindGroup(b.dev.device, textures, buffers, dims, dimsSize)
		if err != nil {
			return err
		}
		b.groups = append(b.groups, bg)

		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: p.name})
		pass.SetPipeline(p.compute)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(gx, gy, gz)
		pass.End()
		return nil
	}})
}

func (e *computeEncoder) End() error {
	return e.err
}

type blitEncoder struct {
	cb  *CommandBuffer
	err error
}

// CopyTexture records one buffer copy region per texel row.
func (e *blitEncoder) CopyTexture(src gpucore.Texture, srcOrigin gpucore.Origin,
	dst gpucore.Texture, dstOrigin gpucore.Origin, size gpucore.Size) {
	s, ok1 := src.(*Texture)
	d, ok2 := dst.(*Texture)
	if !ok1 || !ok2 {
		e.setErr(fmt.Errorf("%w: copy %T -> %T", errForeignResource, src, dst))
		return
	}
	if s.format != d.format {
		e.setErr(fmt.Errorf("%w: %v -> %v", gpucore.ErrFormatMismatch, s.format, d.format))
		return
	}
	if !fits(s.size, srcOrigin, size) || !fits(d.size, dstOrigin, size) {
		e.setErr(fmt.Errorf("%w: copy %s from %v (%s) to %v (%s)",
			gpucore.ErrOutOfBounds, size, srcOrigin, s.size, dstOrigin, d.size))
		return
	}
	regions := copyRegions(s.size, srcOrigin, d.size, dstOrigin, size)
	if len(regions) == 0 {
		return
	}
	e.cb.record(step{gpu: func(_ *batch, enc hal.CommandEncoder) error {
		if s.destroyed.Load() || d.destroyed.Load() {
			return errors.New("copy of destroyed texture")
		}
		enc.CopyBufferToBuffer(s.buf, d.buf, regions)
		return nil
	}})
}

// copyRegions returns the byte ranges of a texel box copy between two
// textures, merging rows that are contiguous in both.
func copyRegions(src gpucore.Size, so gpucore.Origin, dst gpucore.Size, do gpucore.Origin, size gpucore.Size) []hal.BufferCopy {
	if size.Width <= 0 || size.Height <= 0 {
		return nil
	}
	offset := func(s gpucore.Size, o gpucore.Origin, y, z int) uint64 {
		return uint64(((o.Z+z)*s.Height+o.Y+y)*s.Width+o.X) * texelStride //nolint:gosec // in bounds
	}
	row := uint64(size.Width) * texelStride //nolint:gosec // in bounds
	var regions []hal.BufferCopy
	for z := range max(size.Depth, 1) {
		for y := range size.Height {
			from, to := offset(src, so, y, z), offset(dst, do, y, z)
			if n := len(regions); n > 0 {
				last := &regions[n-1]
				if last.SrcOffset+last.Size == from && last.DstOffset+last.Size == to {
					last.Size += row
					continue
				}
			}
			regions = append(regions, hal.BufferCopy{SrcOffset: from, DstOffset: to, Size: row})
		}
	}
	return regions
}

func fits(tex gpucore.Size, o gpucore.Origin, s gpucore.Size) bool {
	depth := max(s.Depth, 1)
	return o.X >= 0 && o.Y >= 0 && o.Z >= 0 &&
		s.Width >= 0 && s.Height >= 0 &&
		o.X+s.Width <= tex.Width && o.Y+s.Height <= tex.Height && o.Z+depth <= max(tex.Depth, 1)
}

// FillBuffer runs on the host once earlier work has completed.
func (e *blitEncoder) FillBuffer(b gpucore.Buffer, value byte) {
	hb, ok := b.(*Buffer)
	if !ok {
		e.setErr(fmt.Errorf("%w: buffer %T", errForeignResource, b))
		return
	}
	e.cb.record(step{host: func() error {
		if hb.destroyed.Load() {
			return errors.New("fill of destroyed buffer")
		}
		data := make([]byte, hb.allocated())
		for i := range data {
			data[i] = value
		}
		hb.dev.queue.WriteBuffer(hb.buf, 0, data)
		return nil
	}})
}

func (e *blitEncoder) setErr(err error) {
	if e.err == nil {
		e.err = err
		e.cb.fail(err)
	}
}

func (e *blitEncoder) End() error {
	return e.err
}
