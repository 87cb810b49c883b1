package histogram

// Box is an axis-aligned block of cube cells produced by MedianCut. Min and
// Max are inclusive cell coordinates in red, green, blue order.
type Box struct {
	Min, Max [3]int
	Count    uint64

	cube *Cube
}

// Cells returns the linear indices of every cell in the box.
func (b Box) Cells() []int {
	n := (b.Max[0] - b.Min[0] + 1) * (b.Max[1] - b.Min[1] + 1) * (b.Max[2] - b.Min[2] + 1)
	out := make([]int, 0, n)
	for bl := b.Min[2]; bl <= b.Max[2]; bl++ {
		for g := b.Min[1]; g <= b.Max[1]; g++ {
			for r := b.Min[0]; r <= b.Max[0]; r++ {
				out = append(out, Index(r, g, bl))
			}
		}
	}
	return out
}

// Mean returns the average color of the samples in the box, in [0,1].
func (b Box) Mean() [3]float64 {
	var sum Cell
	b.each(func(_ [3]int, c Cell) {
		sum.Count += c.Count
		sum.Red += c.Red
		sum.Green += c.Green
		sum.Blue += c.Blue
	})
	return sum.Mean()
}

func (b Box) each(fn func(p [3]int, c Cell)) {
	for bl := b.Min[2]; bl <= b.Max[2]; bl++ {
		for g := b.Min[1]; g <= b.Max[1]; g++ {
			for r := b.Min[0]; r <= b.Max[0]; r++ {
				fn([3]int{r, g, bl}, b.cube.cells[Index(r, g, bl)])
			}
		}
	}
}

// occupied returns the bounds of the non-empty cells of the box.
func (b Box) occupied() (lo, hi [3]int, ok bool) {
	lo = b.Max
	hi = b.Min
	b.each(func(p [3]int, c Cell) {
		if c.Count == 0 {
			return
		}
		ok = true
		for a := range 3 {
			lo[a] = min(lo[a], p[a])
			hi[a] = max(hi[a], p[a])
		}
	})
	return lo, hi, ok
}

// split cuts the box at the median plane of the longest occupied axis. It
// reports false when the samples sit in a single cell.
func (b Box) split() (Box, Box, bool) {
	lo, hi, ok := b.occupied()
	if !ok {
		return Box{}, Box{}, false
	}
	axis := 0
	for a := 1; a < 3; a++ {
		if hi[a]-lo[a] > hi[axis]-lo[axis] {
			axis = a
		}
	}
	if hi[axis] == lo[axis] {
		return Box{}, Box{}, false
	}

	slices := make([]uint64, hi[axis]-lo[axis]+1)
	b.each(func(p [3]int, c Cell) {
		if p[axis] >= lo[axis] && p[axis] <= hi[axis] {
			slices[p[axis]-lo[axis]] += c.Count
		}
	})
	plane := hi[axis] - 1
	var cum uint64
	for i, n := range slices {
		cum += n
		if cum*2 >= b.Count {
			plane = min(lo[axis]+i, hi[axis]-1)
			break
		}
	}

	left, right := b, b
	left.Max[axis] = plane
	right.Min[axis] = plane + 1
	left.Count, right.Count = 0, 0
	left.each(func(_ [3]int, c Cell) { left.Count += c.Count })
	right.Count = b.Count - left.Count
	return left, right, true
}

// MedianCut splits the cube into at most k boxes. It repeatedly splits the
// splittable box with the largest count at the median plane of its longest
// axis. The boxes partition the cube: every cell belongs to exactly one.
func (c *Cube) MedianCut(k int) []Box {
	k = max(k, 1)
	root := Box{Max: [3]int{Resolution - 1, Resolution - 1, Resolution - 1}, Count: c.Total(), cube: c}
	boxes := []Box{root}
	final := make([]bool, 1)

	for len(boxes) < k {
		best := -1
		for i, b := range boxes {
			if final[i] {
				continue
			}
			if best < 0 || b.Count > boxes[best].Count {
				best = i
			}
		}
		if best < 0 {
			break
		}
		l, r, ok := boxes[best].split()
		if !ok {
			final[best] = true
			continue
		}
		boxes[best] = l
		final[best] = false
		boxes = append(boxes, r)
		final = append(final, false)
	}
	return boxes
}
