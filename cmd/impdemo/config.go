package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/imp/geometry"
	"github.com/gogpu/imp/histogram"
)

// config is the optional TOML file given with --config. Flags that are set
// explicitly override it.
//
//	device = "gpu"
//	policy = "deferred"
//	workers = 4
//	max_size = 4096
//	region = [0.1, 0.1, 0.1, 0.1]
//
//	[palette]
//	size = 8
//	median_cut = true
//	shadows = 0.05
//	highlights = 0.02
type config struct {
	Device  string        `toml:"device"`
	Policy  string        `toml:"policy"`
	Workers int           `toml:"workers"`
	MaxSize int           `toml:"max_size"`
	Region  []float64     `toml:"region"`
	Palette paletteConfig `toml:"palette"`
}

type paletteConfig struct {
	Size       int     `toml:"size"`
	MedianCut  bool    `toml:"median_cut"`
	Shadows    float64 `toml:"shadows"`
	Highlights float64 `toml:"highlights"`
}

func defaultConfig() config {
	return config{
		Device:  "auto",
		Policy:  "deferred",
		Palette: paletteConfig{Size: 8},
	}
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config %s not found", path)
		}
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return cfg, fmt.Errorf("config %s: unknown key %q", path, undec[0].String())
	}
	if cfg.Region != nil {
		if _, err := regionOf(cfg.Region); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return cfg, nil
}

func (c config) region() geometry.Region {
	r, _ := regionOf(c.Region)
	return r
}

func (p paletteConfig) clipping() histogram.Clipping {
	return histogram.Clipping{Shadows: p.Shadows, Highlights: p.Highlights}
}

// parseFloats parses n comma separated numbers.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%q: want %d comma separated values, got %d", s, n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// regionOf builds a region from left, top, right, bottom. Nil is the full
// image.
func regionOf(v []float64) (geometry.Region, error) {
	if v == nil {
		return geometry.Region{}, nil
	}
	if len(v) != 4 {
		return geometry.Region{}, fmt.Errorf("region needs 4 values, got %d", len(v))
	}
	r := geometry.Region{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
	return r, r.Validate()
}

// parseRegion parses "left,top,right,bottom".
func parseRegion(s string) (geometry.Region, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return geometry.Region{}, err
	}
	return regionOf(v)
}

// parseQuad parses eight numbers: the left-bottom, left-top, right-bottom
// and right-top corners in normalized device coordinates.
func parseQuad(s string) (geometry.Quad, error) {
	v, err := parseFloats(s, 8)
	if err != nil {
		return geometry.Quad{}, err
	}
	q := geometry.Quad{
		LeftBottom:  geometry.V2(v[0], v[1]),
		LeftTop:     geometry.V2(v[2], v[3]),
		RightBottom: geometry.V2(v[4], v[5]),
		RightTop:    geometry.V2(v[6], v[7]),
	}
	if q.Degenerate() {
		return q, fmt.Errorf("%q: %w", s, geometry.ErrDegenerateQuad)
	}
	return q, nil
}
