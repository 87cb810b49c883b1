package geometry

import "math"

// Rotation presets, in radians about x, y and z.
var (
	Flat       = V3(0, 0, 0)
	Left       = V3(0, 0, -math.Pi/2)
	Right      = V3(0, 0, math.Pi/2)
	Degrees180 = V3(0, 0, math.Pi)
	Left45     = V3(0, 0, -math.Pi/4)
	Right45    = V3(0, 0, math.Pi/4)
)

// ProjectionModel is a perspective projection.
type ProjectionModel struct {
	// Fovy is the vertical field of view in radians.
	Fovy   float64
	Aspect float64
	Near   float64
	Far    float64
}

// DefaultProjection returns a 90° projection with aspect 1 over [0, 1].
func DefaultProjection() ProjectionModel {
	return ProjectionModel{Fovy: math.Pi / 2, Aspect: 1, Near: 0, Far: 1}
}

// Matrix returns the perspective matrix built with the cotangent formula.
func (p ProjectionModel) Matrix() Mat4 {
	cot := 1 / math.Tan(p.Fovy/2)
	aspect := p.Aspect
	if aspect == 0 {
		aspect = 1
	}
	nf := p.Near - p.Far
	return Mat4{
		{cot / aspect, 0, 0, 0},
		{0, cot, 0, 0},
		{0, 0, (p.Far + p.Near) / nf, 2 * p.Far * p.Near / nf},
		{0, 0, -1, 0},
	}
}

// TransformModel composes rotation, translation and scale with a projection.
// Every setter recomposes, so Matrix is always current.
type TransformModel struct {
	angle       Vec3
	translation Vec3
	scale       Vec3
	projection  ProjectionModel

	rotationM    Mat4
	translationM Mat4
	scaleM       Mat4
	model        Mat4
	matrix       Mat4
}

// NewTransformModel returns an identity model with the default projection.
func NewTransformModel() *TransformModel {
	m := &TransformModel{
		scale:        V3(1, 1, 1),
		projection:   DefaultProjection(),
		rotationM:    Identity4(),
		translationM: Identity4(),
		scaleM:       Identity4(),
	}
	m.recompose()
	return m
}

func (m *TransformModel) recompose() {
	m.model = m.rotationM.Mul(m.translationM).Mul(m.scaleM)
	m.matrix = m.projection.Matrix().Mul(m.model)
}

// Angle returns the rotation angles in radians.
func (m *TransformModel) Angle() Vec3 { return m.angle }

// SetAngle sets the rotation, applied about x, then y, then z.
func (m *TransformModel) SetAngle(a Vec3) {
	m.angle = a
	m.rotationM = RotateX4(a.X).Mul(RotateY4(a.Y)).Mul(RotateZ4(a.Z))
	m.recompose()
}

// Translation returns the translation.
func (m *TransformModel) Translation() Vec3 { return m.translation }

// SetTranslation sets the translation.
func (m *TransformModel) SetTranslation(t Vec3) {
	m.translation = t
	m.translationM = Translate4(t)
	m.recompose()
}

// Scale returns the scale.
func (m *TransformModel) Scale() Vec3 { return m.scale }

// SetScale sets the scale.
func (m *TransformModel) SetScale(s Vec3) {
	m.scale = s
	m.scaleM = Scale4(s)
	m.recompose()
}

// Projection returns the projection.
func (m *TransformModel) Projection() ProjectionModel { return m.projection }

// SetProjection sets the projection.
func (m *TransformModel) SetProjection(p ProjectionModel) {
	m.projection = p
	m.recompose()
}

// Model returns rotation·translation·scale.
func (m *TransformModel) Model() Mat4 { return m.model }

// Matrix returns projection·model.
func (m *TransformModel) Matrix() Mat4 { return m.matrix }

// TransformPoint maps a point of the z=0 plane through Matrix.
func (m *TransformModel) TransformPoint(p Vec2) Vec2 {
	v := m.matrix.Transform(V3(p.X, p.Y, 0))
	return V2(v.X, v.Y)
}

// PlateMap returns the planar map from input to output normalized device
// coordinates when the image lies on the z=0 plate one unit in front of the
// camera. Plate x spans [-aspect, aspect] so rotations keep pixels square.
func (m *TransformModel) PlateMap(aspect float64) Mat3 {
	if aspect <= 0 {
		aspect = 1
	}
	p := m.projection
	p.Aspect = aspect
	full := p.Matrix().
		Mul(Translate4(V3(0, 0, -1))).
		Mul(m.model).
		Mul(Scale4(V3(aspect, 1, 1)))
	return full.Planar()
}

// Lerp returns a model interpolated from m towards to. The projection is
// taken from m.
func (m *TransformModel) Lerp(to *TransformModel, t float64) *TransformModel {
	r := NewTransformModel()
	r.projection = m.projection
	r.SetAngle(m.angle.Lerp(to.angle, t))
	r.SetTranslation(m.translation.Lerp(to.translation, t))
	r.SetScale(m.scale.Lerp(to.scale, t))
	return r
}

// Clone returns an independent copy.
func (m *TransformModel) Clone() *TransformModel {
	c := *m
	return &c
}
