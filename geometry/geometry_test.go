package geometry

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

const tolerance = 1e-5

// =============================================================================
// Matrix Tests
// =============================================================================

func TestMat3_Inverse(t *testing.T) {
	m := Mat3{{2, 0, 1}, {1, 3, 0}, {0, 1, 4}}
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("Inverse() error = %v", err)
	}
	if got := m.Mul(inv); !got.Approx(Identity3(), 1e-12) {
		t.Errorf("m·m⁻¹ = %v, want identity", got)
	}
}

func TestMat3_InverseSingular(t *testing.T) {
	m := Mat3{{1, 2, 3}, {2, 4, 6}, {0, 1, 1}}
	if _, err := m.Inverse(); !errors.Is(err, ErrSingularMatrix) {
		t.Errorf("Inverse() error = %v, want ErrSingularMatrix", err)
	}
}

func TestMat3_Embed4PassesZThrough(t *testing.T) {
	h := Mat3{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	m := h.Embed4()
	if m[2] != [4]float64{0, 0, 1, 0} {
		t.Errorf("z row = %v, want [0 0 1 0]", m[2])
	}
	if m.Planar() != h {
		t.Errorf("Planar(Embed4(h)) = %v, want %v", m.Planar(), h)
	}
}

// =============================================================================
// Homography Tests
// =============================================================================

func TestHomography_Identity(t *testing.T) {
	quads := []Quad{
		UnitQuad(),
		{V2(-0.8, -0.9), V2(-0.7, 0.6), V2(0.9, -0.5), V2(0.6, 0.8)},
		{V2(0, 0), V2(0, 1), V2(1, 0), V2(1, 1)},
	}
	for i, q := range quads {
		h, err := Homography(q, q)
		if err != nil {
			t.Fatalf("quad %d: Homography() error = %v", i, err)
		}
		if !h.Approx(Identity3(), tolerance) {
			t.Errorf("quad %d: Homography(q, q) = %v, want identity", i, h)
		}
	}
}

func randomQuad(r *rand.Rand) Quad {
	j := func() float64 { return (r.Float64()*2 - 1) * 0.3 }
	q := UnitQuad()
	q.LeftBottom = q.LeftBottom.Add(V2(j(), j()))
	q.LeftTop = q.LeftTop.Add(V2(j(), j()))
	q.RightBottom = q.RightBottom.Add(V2(j(), j()))
	q.RightTop = q.RightTop.Add(V2(j(), j()))
	return q
}

func TestHomography_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := range 50 {
		src, dst := randomQuad(r), randomQuad(r)
		h, err := Homography(src, dst)
		if err != nil {
			t.Fatalf("pair %d: Homography() error = %v", i, err)
		}
		sp, dp := src.Points(), dst.Points()
		for k := range 4 {
			if got := h.Project(sp[k]); !got.Approx(dp[k], tolerance) {
				t.Errorf("pair %d corner %d: H·%v = %v, want %v", i, k, sp[k], got, dp[k])
			}
		}
	}
}

func TestHomography_RaisedCorner(t *testing.T) {
	dst := UnitQuad()
	dst.RightTop = V2(1, 1.1)
	h, err := Homography(UnitQuad(), dst)
	if err != nil {
		t.Fatalf("Homography() error = %v", err)
	}
	if h[2][2] != 1 {
		t.Errorf("H[2][2] = %v, want 1", h[2][2])
	}
	if h.Approx(Identity3(), tolerance) {
		t.Error("Homography() = identity, want a projective map")
	}
	if got := h.Project(V2(1, 1)); !got.Approx(V2(1, 1.1), tolerance) {
		t.Errorf("H·(1,1) = %v, want (1, 1.1)", got)
	}
}

func TestHomography_DegenerateQuad(t *testing.T) {
	bad := Quad{V2(-1, -1), V2(0, 0), V2(1, 1), V2(1, -1)}
	tests := []struct {
		name     string
		src, dst Quad
	}{
		{"degenerate source", bad, UnitQuad()},
		{"degenerate destination", UnitQuad(), bad},
		{"collapsed", Quad{}, UnitQuad()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Homography(tt.src, tt.dst); !errors.Is(err, ErrDegenerateQuad) {
				t.Errorf("Homography() error = %v, want ErrDegenerateQuad", err)
			}
		})
	}
}

// =============================================================================
// Transform Model Tests
// =============================================================================

func TestTransformModel_FlatPlateIsIdentity(t *testing.T) {
	m := NewTransformModel()
	for _, aspect := range []float64{1, 1.5, 0.75} {
		p := m.PlateMap(aspect)
		if !p.Approx(Identity3(), 1e-12) {
			t.Errorf("PlateMap(%v) = %v, want identity", aspect, p)
		}
	}
}

func TestTransformModel_RecomposesOnEverySetter(t *testing.T) {
	m := NewTransformModel()
	before := m.Matrix()
	m.SetAngle(Right)
	afterAngle := m.Matrix()
	if afterAngle == before {
		t.Error("SetAngle did not change Matrix")
	}
	m.SetScale(V3(2, 2, 1))
	if m.Matrix() == afterAngle {
		t.Error("SetScale did not change Matrix")
	}
	m.SetTranslation(V3(0.1, 0, 0))
	m.SetAngle(Flat)
	m.SetScale(V3(1, 1, 1))
	m.SetTranslation(V3(0, 0, 0))
	if m.Matrix() != before {
		t.Errorf("Matrix() = %v after reset, want %v", m.Matrix(), before)
	}
}

func TestTransformModel_RotateRight(t *testing.T) {
	m := NewTransformModel()
	m.SetAngle(Right)
	p := m.PlateMap(1)
	if got := p.Project(V2(1, 0)); !got.Approx(V2(0, 1), 1e-9) {
		t.Errorf("rotated (1,0) = %v, want (0,1)", got)
	}
}

func TestTransformModel_ZoomIn(t *testing.T) {
	m := NewTransformModel()
	m.SetTranslation(V3(0, 0, 0.5))
	p := m.PlateMap(1)
	if got := p.Project(V2(0.25, 0.25)); !got.Approx(V2(0.5, 0.5), 1e-9) {
		t.Errorf("zoomed (0.25,0.25) = %v, want (0.5,0.5)", got)
	}
}

func TestTransformModel_Lerp(t *testing.T) {
	a := NewTransformModel()
	b := NewTransformModel()
	b.SetAngle(Degrees180)
	b.SetScale(V3(3, 3, 3))
	mid := a.Lerp(b, 0.5)
	if got := mid.Angle().Z; math.Abs(got-math.Pi/2) > 1e-12 {
		t.Errorf("Lerp angle = %v, want π/2", got)
	}
	if got := mid.Scale(); got != V3(2, 2, 2) {
		t.Errorf("Lerp scale = %v, want (2,2,2)", got)
	}
}

func TestProjectionModel_Cotangent(t *testing.T) {
	p := ProjectionModel{Fovy: math.Pi / 3, Aspect: 2, Near: 0.1, Far: 10}
	m := p.Matrix()
	cot := 1 / math.Tan(math.Pi/6)
	if math.Abs(m[1][1]-cot) > 1e-12 || math.Abs(m[0][0]-cot/2) > 1e-12 {
		t.Errorf("Matrix() diagonal = %v, %v, want %v, %v", m[0][0], m[1][1], cot/2, cot)
	}
	if m[3][2] != -1 {
		t.Errorf("m[3][2] = %v, want -1", m[3][2])
	}
}

// =============================================================================
// Region Tests
// =============================================================================

func TestRegion_Validate(t *testing.T) {
	tests := []struct {
		name string
		r    Region
		ok   bool
	}{
		{"zero", Region{}, true},
		{"center", CenterRegion(0.5), true},
		{"full width cut", Region{Left: 0.5, Right: 0.5}, false},
		{"negative", Region{Top: -0.1}, false},
		{"tall cut", Region{Top: 0.7, Bottom: 0.4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidRegion) {
				t.Errorf("Validate() error = %v, want ErrInvalidRegion", err)
			}
		})
	}
}

func TestRegion_CenterAndRect(t *testing.T) {
	r := CenterRegion(0.5)
	if r.Left != 0.25 || r.Bottom != 0.25 {
		t.Errorf("CenterRegion(0.5) = %+v, want 0.25 on every edge", r)
	}
	x, y, w, h := r.Rect(100, 40)
	if x != 25 || y != 10 || w != 50 || h != 20 {
		t.Errorf("Rect(100, 40) = %d,%d %dx%d, want 25,10 50x20", x, y, w, h)
	}
}

func TestRegion_QuadOfZeroIsUnit(t *testing.T) {
	if q := (Region{}).Quad(); q != UnitQuad() {
		t.Errorf("Region{}.Quad() = %+v, want UnitQuad", q)
	}
}
