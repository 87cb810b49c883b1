package soft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/imp/gpucore"
)

// errForeignResource is returned when a resource from another device is bound.
var errForeignResource = errors.New("soft: resource not created by a software device")

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

type op func() error

// CommandBuffer records operations and executes them on its queue.
type CommandBuffer struct {
	queue *Queue
	label string

	mu        sync.Mutex
	ops       []op
	handlers  []func(error)
	recordErr error
	committed bool

	done    chan struct{}
	execErr error
}

var _ gpucore.CommandBuffer = (*CommandBuffer)(nil)

func (cb *CommandBuffer) Label() string { return cb.label }

func (cb *CommandBuffer) record(o op) {
	cb.mu.Lock()
	cb.ops = append(cb.ops, o)
	cb.mu.Unlock()
}

func (cb *CommandBuffer) fail(err error) {
	cb.mu.Lock()
	if cb.recordErr == nil {
		cb.recordErr = err
	}
	cb.mu.Unlock()
}

// ComputeEncoder starts recording a compute dispatch.
func (cb *CommandBuffer) ComputeEncoder() gpucore.ComputeEncoder {
	return &computeEncoder{cb: cb}
}

// BlitEncoder starts recording copies.
func (cb *CommandBuffer) BlitEncoder() gpucore.BlitEncoder {
	return &blitEncoder{cb: cb}
}

// AddCompletedHandler registers fn to run after execution.
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
	ops, handlers, err := cb.ops, cb.handlers, cb.recordErr
	cb.mu.Unlock()

	if err == nil {
		for _, o := range ops {
			if err = o(); err != nil {
				break
			}
		}
	}
	if err != nil {
		err = fmt.Errorf("soft: command buffer %q: %w", cb.label, err)
		slogger().Warn("soft: command buffer failed", "label", cb.label, "err", err)
	}
	cb.execErr = err
	for _, h := range handlers {
		h(err)
	}
	close(cb.done)
}

type computeEncoder struct {
	cb       *CommandBuffer
	pipeline *pipeline
	textures []*Texture
	buffers  []*Buffer
	err      error
}

func (e *computeEncoder) SetPipeline(p gpucore.Pipeline) {
	sp, ok := p.(*pipeline)
	if !ok {
		e.setErr(fmt.Errorf("%w: pipeline %T", errForeignResource, p))
		return
	}
	e.pipeline = sp
}

func (e *computeEncoder) SetTexture(index int, t gpucore.Texture) {
	st, ok := t.(*Texture)
	if !ok && t != nil {
		e.setErr(fmt.Errorf("%w: texture %T", errForeignResource, t))
		return
	}
	for len(e.textures) <= index {
		e.textures = append(e.textures, nil)
	}
	e.textures[index] = st
}

func (e *computeEncoder) SetBuffer(index int, b gpucore.Buffer) {
	sb, ok := b.(*Buffer)
	if !ok && b != nil {
		e.setErr(fmt.Errorf("%w: buffer %T", errForeignResource, b))
		return
	}
	for len(e.buffers) <= index {
		e.buffers = append(e.buffers, nil)
	}
	e.buffers[index] = sb
}

func (e *computeEncoder) setErr(err error) {
	if e.err == nil {
		e.err = err
		e.cb.fail(err)
	}
}

func (e *computeEncoder) Dispatch(groups, threads gpucore.Size) {
	if e.pipeline == nil {
		e.setErr(errors.New("soft: dispatch without pipeline"))
		return
	}
	if threads.Count() > e.pipeline.maxThreads {
		e.setErr(fmt.Errorf("soft: %d threads per group exceeds %d", threads.Count(), e.pipeline.maxThreads))
		return
	}
	p := e.pipeline
	textures := append([]*Texture(nil), e.textures...)
	buffers := append([]*Buffer(nil), e.buffers...)
	pool := e.cb.queue.dev.pool
	e.cb.record(func() error {
		return dispatch(pool.For, p, groups, threads, textures, buffers)
	})
}

func (e *computeEncoder) End() error {
	return e.err
}

func dispatch(forEach func(int, func(int)), p *pipeline, grid, threads gpucore.Size,
	textures []*Texture, buffers []*Buffer) error {
	gd := max(grid.Depth, 1)
	n := grid.Width * grid.Height * gd
	if n == 0 {
		return nil
	}
	for i, t := range textures {
		if t != nil && t.destroyed.Load() {
			return fmt.Errorf("kernel %s: texture slot %d destroyed", p.name, i)
		}
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	forEach(n, func(i int) {
		g := &Group{
			ID: gpucore.Origin{
				X: i % grid.Width,
				Y: (i / grid.Width) % grid.Height,
				Z: i / (grid.Width * grid.Height),
			},
			Index:    i,
			Grid:     gpucore.Size{Width: grid.Width, Height: grid.Height, Depth: gd},
			Threads:  threads,
			Textures: textures,
			Buffers:  buffers,
		}
		if err := p.fn(g); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("kernel %s: %w", p.name, err)
			}
			mu.Unlock()
		}
	})
	return firstErr
}

type blitEncoder struct {
	cb  *CommandBuffer
	err error
}

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
	depth := max(size.Depth, 1)
	if !fits(s.size, srcOrigin, size) || !fits(d.size, dstOrigin, size) {
		e.setErr(fmt.Errorf("%w: copy %s from %v (%s) to %v (%s)",
			gpucore.ErrOutOfBounds, size, srcOrigin, s.size, dstOrigin, d.size))
		return
	}
	e.cb.record(func() error {
		if s.destroyed.Load() || d.destroyed.Load() {
			return errors.New("copy of destroyed texture")
		}
		bpp := s.bpp
		row := size.Width * bpp
		for z := range depth {
			for y := range size.Height {
				si := (((srcOrigin.Z+z)*s.size.Height+srcOrigin.Y+y)*s.size.Width + srcOrigin.X) * bpp
				di := (((dstOrigin.Z+z)*d.size.Height+dstOrigin.Y+y)*d.size.Width + dstOrigin.X) * bpp
				copy(d.data[di:di+row], s.data[si:si+row])
			}
		}
		return nil
	})
}

func fits(tex gpucore.Size, o gpucore.Origin, s gpucore.Size) bool {
	depth := max(s.Depth, 1)
	return o.X >= 0 && o.Y >= 0 && o.Z >= 0 &&
		s.Width >= 0 && s.Height >= 0 &&
		o.X+s.Width <= tex.Width && o.Y+s.Height <= tex.Height && o.Z+depth <= max(tex.Depth, 1)
}

func (e *blitEncoder) FillBuffer(b gpucore.Buffer, value byte) {
	sb, ok := b.(*Buffer)
	if !ok {
		e.setErr(fmt.Errorf("%w: buffer %T", errForeignResource, b))
		return
	}
	e.cb.record(func() error {
		data := sb.Bytes()
		for i := range data {
			data[i] = value
		}
		return nil
	})
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
