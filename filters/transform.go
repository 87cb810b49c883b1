package filters

import (
	"fmt"
	"sync"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/geometry"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/kernel"
)

// TransformPass renders its input on the z=0 plate through a TransformModel,
// then keeps a region of the rendered frame. The frame has the size and
// aspect of the input; the output has the size of the kept region.
type TransformPass struct {
	kp *imp.KernelPass

	mu         sync.Mutex
	model      *geometry.TransformModel
	region     geometry.Region
	horizontal bool
	vertical   bool
	clear      [4]float32

	changed imp.Event[struct{}]
}

var (
	_ imp.Pass       = (*TransformPass)(nil)
	_ imp.Sizer      = (*TransformPass)(nil)
	_ imp.Observable = (*TransformPass)(nil)
)

// NewTransformPass returns a pass with an identity model and no crop.
func NewTransformPass(ctx *imp.Context) *TransformPass {
	return &TransformPass{
		kp:    imp.NewKernelPass(ctx, kernel.Transform),
		model: geometry.NewTransformModel(),
	}
}

// Model returns a copy of the model.
func (p *TransformPass) Model() *geometry.TransformModel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.Clone()
}

// SetModel replaces the model with a copy of m.
func (p *TransformPass) SetModel(m *geometry.TransformModel) {
	p.mu.Lock()
	p.model = m.Clone()
	p.mu.Unlock()
	p.changed.Fire(struct{}{})
}

// Region returns the crop applied to the rendered frame.
func (p *TransformPass) Region() geometry.Region {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.region
}

// SetRegion sets the crop applied to the rendered frame.
func (p *TransformPass) SetRegion(r geometry.Region) error {
	if err := r.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.region = r
	p.mu.Unlock()
	p.changed.Fire(struct{}{})
	return nil
}

// SetReflection mirrors the input horizontally, vertically or both before
// it is placed on the plate.
func (p *TransformPass) SetReflection(horizontal, vertical bool) {
	p.mu.Lock()
	p.horizontal, p.vertical = horizontal, vertical
	p.mu.Unlock()
	p.changed.Fire(struct{}{})
}

// SetClearColor sets the color around the plate.
func (p *TransformPass) SetClearColor(c [4]float32) {
	p.mu.Lock()
	p.clear = c
	p.mu.Unlock()
	p.changed.Fire(struct{}{})
}

// Changed fires after every parameter change.
func (p *TransformPass) Changed() *imp.Event[struct{}] { return &p.changed }

// OutputSize returns the size of the kept region of the input-sized frame.
func (p *TransformPass) OutputSize(in gpucore.Size) gpucore.Size {
	_, _, w, h := p.Region().Rect(in.Width, in.Height)
	return gpucore.Size{Width: w, Height: h, Depth: 1}
}

// Inverse returns the map from output to input normalized device
// coordinates for an input of the given size.
func (p *TransformPass) Inverse(in gpucore.Size) (geometry.Mat3, error) {
	p.mu.Lock()
	model, region := p.model, p.region
	horizontal, vertical := p.horizontal, p.vertical
	p.mu.Unlock()

	aspect := 1.0
	if in.Height > 0 {
		aspect = float64(in.Width) / float64(in.Height)
	}
	// Output NDC onto the region of the frame.
	crop, err := geometry.Homography(geometry.UnitQuad(), region.Quad())
	if err != nil {
		return geometry.Mat3{}, err
	}
	plate, err := model.PlateMap(aspect).Inverse()
	if err != nil {
		return geometry.Mat3{}, fmt.Errorf("filters: transform: plate is edge-on: %w", err)
	}
	reflect := geometry.Identity3()
	if horizontal {
		reflect[0][0] = -1
	}
	if vertical {
		reflect[1][1] = -1
	}
	return reflect.Mul(plate).Mul(crop), nil
}

// Encode records the transform.
func (p *TransformPass) Encode(cb gpucore.CommandBuffer, in, out gpucore.Texture) error {
	inv, err := p.Inverse(in.Size())
	if err != nil {
		return err
	}
	p.mu.Lock()
	bg := p.clear
	p.mu.Unlock()
	params := kernel.TransformParams{Inverse: inv.Float32(), Clear: bg, Linear: true}
	return p.kp.EncodeWith(cb, in, out, params.Bytes())
}
