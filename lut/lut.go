// Package lut reads Adobe .cube color lookup tables and uploads them as
// textures for the LUT pass.
package lut

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Kind is the dimensionality of a table.
type Kind int

const (
	// Kind1D maps each channel through its own curve.
	Kind1D Kind = iota + 1

	// Kind3D maps colors through a size³ lattice.
	Kind3D
)

func (k Kind) String() string {
	switch k {
	case Kind1D:
		return "1D"
	case Kind3D:
		return "3D"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Size limits of the .cube format.
const (
	Min3DSize = 2
	Max3DSize = 256
	Min1DSize = 2
	Max1DSize = 65536
)

// RGB is one table entry.
type RGB [3]float64

// Table is a parsed lookup table. Data holds Size entries for a 1D table and
// Size³ entries, red fastest, for a 3D table.
type Table struct {
	Kind      Kind
	Title     string
	DomainMin RGB
	DomainMax RGB
	Size      int
	Data      []RGB
}

// Load reads and parses the .cube file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: NotFound, Msg: path, Err: err}
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .cube table from r.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{DomainMax: RGB{1, 1, 1}}
	sc := bufio.NewScanner(r)
	line := 0
	inData := false
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		words := strings.Fields(text)
		keyword := strings.ToUpper(words[0])

		if !inData && !isNumber(words[0]) {
			if err := t.keyword(keyword, words[1:], text); err != nil {
				err.Line = line
				return nil, err
			}
			continue
		}

		if t.Kind == 0 {
			return nil, &Error{Kind: WrongFormat, Line: line, Msg: "data before LUT size"}
		}
		if !t.validDomain() {
			return nil, &Error{Kind: WrongRange, Line: line,
				Msg: fmt.Sprintf("domain %v..%v", t.DomainMin, t.DomainMax)}
		}
		inData = true
		if len(words) != 3 {
			return nil, &Error{Kind: WrongFormat, Line: line, Msg: fmt.Sprintf("%d values in data line", len(words))}
		}
		var rgb RGB
		for i, w := range words {
			v, err := strconv.ParseFloat(w, 64)
			if err != nil {
				return nil, &Error{Kind: WrongFormat, Line: line, Msg: "bad number", Err: err}
			}
			rgb[i] = v
		}
		t.Data = append(t.Data, rgb)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if t.Kind == 0 {
		return nil, &Error{Kind: WrongFormat, Line: line, Msg: "missing LUT_1D_SIZE or LUT_3D_SIZE"}
	}
	if want := t.Entries(); len(t.Data) != want {
		return nil, &Error{Kind: WrongFormat, Line: line,
			Msg: fmt.Sprintf("%d data lines, want %d", len(t.Data), want)}
	}
	return t, nil
}

func (t *Table) keyword(keyword string, args []string, text string) *Error {
	switch keyword {
	case "TITLE":
		t.Title = strings.Trim(strings.TrimSpace(text[len("TITLE"):]), `"`)
	case "DOMAIN_MIN", "DOMAIN_MAX":
		v, err := parseRGB(args)
		if err != nil {
			return err
		}
		if keyword == "DOMAIN_MIN" {
			t.DomainMin = v
		} else {
			t.DomainMax = v
		}
	case "LUT_1D_INPUT_RANGE":
		if len(args) != 2 {
			return &Error{Kind: WrongFormat, Msg: keyword}
		}
		lo, err1 := strconv.ParseFloat(args[0], 64)
		hi, err2 := strconv.ParseFloat(args[1], 64)
		if err := errors.Join(err1, err2); err != nil {
			return &Error{Kind: WrongFormat, Msg: keyword, Err: err}
		}
		t.DomainMin = RGB{lo, lo, lo}
		t.DomainMax = RGB{hi, hi, hi}
	case "LUT_3D_SIZE", "LUT_1D_SIZE":
		if len(args) != 1 {
			return &Error{Kind: WrongFormat, Msg: keyword}
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return &Error{Kind: WrongFormat, Msg: keyword, Err: err}
		}
		lo, hi, kind := Min3DSize, Max3DSize, Kind3D
		if keyword == "LUT_1D_SIZE" {
			lo, hi, kind = Min1DSize, Max1DSize, Kind1D
		}
		if n < lo || n > hi {
			return &Error{Kind: OutOfRange, Msg: fmt.Sprintf("%s %d not in [%d, %d]", keyword, n, lo, hi)}
		}
		t.Kind, t.Size = kind, n
	default:
		return &Error{Kind: WrongFormat, Msg: "unknown keyword " + keyword}
	}
	return nil
}

func parseRGB(args []string) (RGB, *Error) {
	var v RGB
	if len(args) != 3 {
		return v, &Error{Kind: WrongFormat, Msg: fmt.Sprintf("%d values, want 3", len(args))}
	}
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return v, &Error{Kind: WrongFormat, Msg: "bad number", Err: err}
		}
		v[i] = f
	}
	return v, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func (t *Table) validDomain() bool {
	for i := range 3 {
		if t.DomainMax[i]-t.DomainMin[i] <= 0 {
			return false
		}
	}
	return true
}

// Entries returns the number of data entries the table holds.
func (t *Table) Entries() int {
	if t.Kind == Kind3D {
		return t.Size * t.Size * t.Size
	}
	return t.Size
}

// Map looks up a color given in the table domain, interpolating between
// entries: linearly per channel for 1D tables, trilinearly for 3D tables.
func (t *Table) Map(c RGB) RGB {
	var pos [3]float64
	for i := range 3 {
		f := (c[i] - t.DomainMin[i]) / (t.DomainMax[i] - t.DomainMin[i])
		pos[i] = min(max(f, 0), 1) * float64(t.Size-1)
	}
	if t.Kind == Kind1D {
		var out RGB
		for ch := range 3 {
			i0 := int(pos[ch])
			i1 := min(i0+1, t.Size-1)
			f := pos[ch] - float64(i0)
			out[ch] = t.Data[i0][ch]*(1-f) + t.Data[i1][ch]*f
		}
		return out
	}

	var i0, i1 [3]int
	var f [3]float64
	for ch := range 3 {
		i0[ch] = int(pos[ch])
		i1[ch] = min(i0[ch]+1, t.Size-1)
		f[ch] = pos[ch] - float64(i0[ch])
	}
	var out RGB
	for corner := range 8 {
		idx := [3]int{i0[0], i0[1], i0[2]}
		w := 1.0
		for ch := range 3 {
			if corner&(1<<ch) != 0 {
				idx[ch] = i1[ch]
				w *= f[ch]
			} else {
				w *= 1 - f[ch]
			}
		}
		if w == 0 {
			continue
		}
		e := t.Data[idx[0]+idx[1]*t.Size+idx[2]*t.Size*t.Size]
		for ch := range 3 {
			out[ch] += w * e[ch]
		}
	}
	return out
}
