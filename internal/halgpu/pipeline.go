//go:build !nogpu

package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// pipeline is a compiled kernel with its bind group layout.
type pipeline struct {
	name string
	spec kernelSpec

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	compute    hal.ComputePipeline
}

func (p *pipeline) Name() string            { return p.name }
func (p *pipeline) MaxThreadsPerGroup() int { return p.spec.threads() }

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

// layoutEntries lists the kernel bindings: every texture and buffer as
// read-write storage, and the dims array as read-only storage.
func layoutEntries(spec kernelSpec) []gputypes.BindGroupLayoutEntry {
	n := spec.bindings()
	entries := make([]gputypes.BindGroupLayoutEntry, n)
	for i := range n {
		kind := gputypes.BufferBindingTypeStorage
		if i == n-1 {
			kind = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i), //nolint:gosec // few bindings
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: kind},
		}
	}
	return entries
}

func newPipeline(device hal.Device, name string, spec kernelSpec) (*pipeline, error) {
	p := &pipeline{name: name, spec: spec}
	code, err := compileSPIRV(spec.source())
	if err != nil {
		return nil, fmt.Errorf("halgpu: compile %s: %w", name, err)
	}

	p.shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: %s shader: %w", name, err)
	}

	p.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bind_layout",
		Entries: layoutEntries(spec),
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("halgpu: %s bind layout: %w", name, err)
	}

	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("halgpu: %s pipeline layout: %w", name, err)
	}

	p.compute, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   name,
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: "main"},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("halgpu: %s pipeline: %w", name, err)
	}
	return p, nil
}

// destroy releases whatever part of the pipeline was created.
func (p *pipeline) destroy(device hal.Device) {
	if p.compute != nil {
		device.DestroyComputePipeline(p.compute)
		p.compute = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// bindGroup binds textures, buffers and the dims buffer in layout order.
func (p *pipeline) bindGroup(device hal.Device, textures []*Texture, buffers []*Buffer,
	dims hal.Buffer, dimsSize uint64) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, 0, p.spec.bindings())
	for i, t := range textures {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // few bindings
			Resource: gputypes.BufferBinding{Buffer: t.buf.NativeHandle(), Offset: 0, Size: t.byteSize()},
		})
	}
	for i, b := range buffers {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(len(textures) + i), //nolint:gosec // few bindings
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: b.allocated()},
		})
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  uint32(len(textures) + len(buffers)), //nolint:gosec // few bindings
		Resource: gputypes.BufferBinding{Buffer: dims.NativeHandle(), Offset: 0, Size: dimsSize},
	})
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.name + "_bind_group",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: %s bind group: %w", p.name, err)
	}
	return bg, nil
}
