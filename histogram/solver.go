package histogram

import "math"

// Solver derives values from a freshly merged histogram.
type Solver interface {
	Solve(h *Histogram)
}

// CubeSolver derives values from a freshly merged color cube.
type CubeSolver interface {
	Solve(c *Cube)
}

// Clipping is the fraction of samples ignored at each end of a range.
type Clipping struct {
	Shadows    float64
	Highlights float64
}

// DefaultClipping clips 0.1% at both ends.
func DefaultClipping() Clipping {
	return Clipping{Shadows: 0.001, Highlights: 0.001}
}

// RangeSolver finds the per-channel intensity range after clipping.
type RangeSolver struct {
	Clipping Clipping
	Min      [MaxChannels]float64
	Max      [MaxChannels]float64
}

// NewRangeSolver returns a RangeSolver with DefaultClipping.
func NewRangeSolver() *RangeSolver {
	return &RangeSolver{Clipping: DefaultClipping()}
}

// Solve implements Solver.
func (s *RangeSolver) Solve(h *Histogram) {
	for c := range h.Channels() {
		s.Min[c] = h.Low(c, s.Clipping.Shadows)
		s.Max[c] = h.High(c, s.Clipping.Highlights)
	}
}

// DominantColorSolver reports the mean of every channel.
type DominantColorSolver struct {
	Color [MaxChannels]float64
}

// Solve implements Solver.
func (s *DominantColorSolver) Solve(h *Histogram) {
	for c := range h.Channels() {
		s.Color[c] = h.Mean(c)
	}
}

// ZoneIndices are the first bins of the twelve exposure zones 0 through XI.
var ZoneIndices = [12]int{0, 1, 33, 57, 72, 94, 118, 143, 169, 197, 225, 255}

// ZonesSolver splits the luminance channel into exposure zones. Steps holds
// the fraction of samples per zone. Balance weighs shadows, midtones and
// highlights with Gaussians. Spots and Range are normalized summaries of the
// zones.
type ZonesSolver struct {
	Steps   [12]float64
	Balance [3]float64
	Spots   [3]float64
	Range   [3]float64
}

var zoneWeights = func() [3][Size]float64 {
	var w [3][Size]float64
	params := [3][2]float64{{0, 0.1}, {0.5, 0.1}, {1, 0.2}}
	for k, p := range params {
		for i := range Size {
			d := float64(i)/(Size-1) - p[0]
			w[k][i] = math.Exp(-d * d / (2 * p[1] * p[1]))
		}
	}
	return w
}()

// Solve implements Solver. It reads the luminance channel when present and
// channel 0 otherwise.
func (s *ZonesSolver) Solve(h *Histogram) {
	c := 0
	if h.Channels() > Luminance {
		c = Luminance
	}
	bins := h.Bins(c)
	total := h.Total(c)
	*s = ZonesSolver{}
	if total == 0 {
		return
	}
	last := len(ZoneIndices) - 1
	for i, start := range ZoneIndices {
		if i == 0 || i == last {
			s.Steps[i] = bins[start] / total
			continue
		}
		var sum float64
		for _, v := range bins[start:ZoneIndices[i+1]] {
			sum += v
		}
		s.Steps[i] = sum / total
	}
	for k := range 3 {
		var sum float64
		for i, v := range bins {
			sum += v * zoneWeights[k][i]
		}
		s.Balance[k] = sum / total
	}
	s.Spots = normalize([3]float64{s.Steps[3], s.Steps[5], s.Steps[7]})
	s.Range = normalize([3]float64{
		s.Steps[1] + s.Steps[2] + s.Steps[3],
		s.Steps[4] + s.Steps[5] + s.Steps[6],
		s.Steps[7] + s.Steps[8] + s.Steps[9],
	})
}

func normalize(v [3]float64) [3]float64 {
	l := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if l == 0 {
		return v
	}
	return [3]float64{v[0] / l, v[1] / l, v[2] / l}
}

// PaletteSolver extracts a palette of Count colors, from cube maxima or, with
// MedianCut set, from the mean colors of median cut boxes.
type PaletteSolver struct {
	Count     int
	MedianCut bool
	Colors    [][3]float64
}

// Solve implements CubeSolver.
func (s *PaletteSolver) Solve(c *Cube) {
	if !s.MedianCut {
		s.Colors = c.Palette(s.Count)
		return
	}
	boxes := c.MedianCut(s.Count)
	s.Colors = s.Colors[:0]
	for _, b := range boxes {
		if b.Count > 0 {
			s.Colors = append(s.Colors, b.Mean())
		}
	}
}
