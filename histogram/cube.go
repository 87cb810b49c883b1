package histogram

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Resolution is the number of cells along each axis of the color cube.
const Resolution = 32

// Cells is the number of cells in the color cube.
const Cells = Resolution * Resolution * Resolution

// cellWords is {count, Σred, Σgreen, Σblue} in the partial buffer layout.
const cellWords = 4

// Cell is one color cube cell: how many samples fell in it and the sums of
// their 8-bit channels.
type Cell struct {
	Count uint64
	Red   uint64
	Green uint64
	Blue  uint64
}

// Mean returns the average color of the cell in [0,1].
func (c Cell) Mean() [3]float64 {
	if c.Count == 0 {
		return [3]float64{}
	}
	n := float64(c.Count) * 255
	return [3]float64{float64(c.Red) / n, float64(c.Green) / n, float64(c.Blue) / n}
}

// Cube is a Resolution³ grid of cells indexed red-fastest.
type Cube struct {
	cells []Cell
}

// NewCube returns an empty cube.
func NewCube() *Cube {
	return &Cube{cells: make([]Cell, Cells)}
}

// Index returns the linear index of cell (r, g, b).
func Index(r, g, b int) int {
	return r + g*Resolution + b*Resolution*Resolution
}

// Coords is the inverse of Index.
func Coords(i int) (r, g, b int) {
	return i % Resolution, (i / Resolution) % Resolution, i / (Resolution * Resolution)
}

// Cell returns cell (r, g, b).
func (c *Cube) Cell(r, g, b int) Cell { return c.cells[Index(r, g, b)] }

// At returns the cell at a linear index.
func (c *Cube) At(i int) Cell { return c.cells[i] }

// AddColor counts one 8-bit sample.
func (c *Cube) AddColor(r, g, b uint8) {
	const shift = 3
	cell := &c.cells[Index(int(r>>shift), int(g>>shift), int(b>>shift))]
	cell.Count++
	cell.Red += uint64(r)
	cell.Green += uint64(g)
	cell.Blue += uint64(b)
}

// Total returns the number of samples in the cube.
func (c *Cube) Total() uint64 {
	var n uint64
	for _, cell := range c.cells {
		n += cell.Count
	}
	return n
}

// Clear zeroes every cell.
func (c *Cube) Clear() { clear(c.cells) }

// Update replaces the contents with the element-wise sum of the partial cubes
// in data: accumulators×Cells×{count, Σr, Σg, Σb} little-endian uint32.
func (c *Cube) Update(data []byte, accumulators int) error {
	stride := Cells * cellWords * 4
	if accumulators < 1 || len(data) < accumulators*stride {
		return fmt.Errorf("%w: %d bytes for %d cube accumulators", ErrPartials, len(data), accumulators)
	}
	c.Clear()
	for a := range accumulators {
		base := a * stride
		for i := range c.cells {
			off := base + i*cellWords*4
			cell := &c.cells[i]
			cell.Count += uint64(binary.LittleEndian.Uint32(data[off:]))
			cell.Red += uint64(binary.LittleEndian.Uint32(data[off+4:]))
			cell.Green += uint64(binary.LittleEndian.Uint32(data[off+8:]))
			cell.Blue += uint64(binary.LittleEndian.Uint32(data[off+12:]))
		}
	}
	return nil
}

// Maximum is a local maximum of the cube.
type Maximum struct {
	Count uint64
	Index int

	// Color is the mean color of the cell in [0,1].
	Color [3]float64

	// Brightness is the largest channel of Color.
	Brightness float64
}

// LocalMaxima returns the non-empty cells whose count is not exceeded by any
// of their 26 in-bounds neighbours, by count descending.
func (c *Cube) LocalMaxima() []Maximum {
	var maxima []Maximum
	for b := range Resolution {
		for g := range Resolution {
			for r := range Resolution {
				i := Index(r, g, b)
				cell := c.cells[i]
				if cell.Count == 0 || !c.isMaximum(r, g, b, cell.Count) {
					continue
				}
				col := cell.Mean()
				maxima = append(maxima, Maximum{
					Count:      cell.Count,
					Index:      i,
					Color:      col,
					Brightness: max(col[0], col[1], col[2]),
				})
			}
		}
	}
	sort.SliceStable(maxima, func(i, j int) bool { return maxima[i].Count > maxima[j].Count })
	return maxima
}

func (c *Cube) isMaximum(r, g, b int, count uint64) bool {
	for dr := -1; dr <= 1; dr++ {
		for dg := -1; dg <= 1; dg++ {
			for db := -1; db <= 1; db++ {
				nr, ng, nb := r+dr, g+dg, b+db
				if nr < 0 || ng < 0 || nb < 0 || nr >= Resolution || ng >= Resolution || nb >= Resolution {
					continue
				}
				if c.cells[Index(nr, ng, nb)].Count > count {
					return false
				}
			}
		}
	}
	return true
}

// DistinctMaxima keeps each maximum unless an earlier one in the list is
// closer than threshold in RGB space.
func DistinctMaxima(maxima []Maximum, threshold float64) []Maximum {
	keep := distinct(maxima, threshold)
	out := make([]Maximum, 0, len(keep))
	for i, k := range keep {
		if k {
			out = append(out, maxima[i])
		}
	}
	return out
}

func distinct(maxima []Maximum, threshold float64) []bool {
	keep := make([]bool, len(maxima))
	for k, m := range maxima {
		keep[k] = true
		for _, prev := range maxima[:k] {
			if distance(m.Color, prev.Color) < threshold {
				keep[k] = false
				break
			}
		}
	}
	return keep
}

func distance(a, b [3]float64) float64 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Distinct-maxima relaxation schedule.
const (
	filterStart      = 0.1
	filterStep       = 0.05
	filterIterations = 10
)

// FilteredMaxima thins maxima with a growing distinctness threshold. When
// one more step would leave count or fewer, it returns the distinct maxima of
// that step topped up with the best-ranked dropped ones, in rank order.
func FilteredMaxima(maxima []Maximum, count int) []Maximum {
	if count >= len(maxima) {
		return maxima
	}
	if count <= 0 {
		return nil
	}
	filtered := maxima
	threshold := filterStart
	for range filterIterations {
		keep := distinct(filtered, threshold)
		n := 0
		for _, k := range keep {
			if k {
				n++
			}
		}
		if n <= count {
			extra := count - n
			out := make([]Maximum, 0, count)
			for i, m := range filtered {
				if keep[i] || extra > 0 {
					if !keep[i] {
						extra--
					}
					out = append(out, m)
				}
			}
			return out
		}
		next := make([]Maximum, 0, n)
		for i, k := range keep {
			if k {
				next = append(next, filtered[i])
			}
		}
		filtered = next
		threshold += filterStep
	}
	return filtered[:count]
}

// Palette returns up to count dominant colors in [0,1].
func (c *Cube) Palette(count int) [][3]float64 {
	maxima := FilteredMaxima(c.LocalMaxima(), count)
	colors := make([][3]float64, len(maxima))
	for i, m := range maxima {
		colors[i] = m.Color
	}
	return colors
}
