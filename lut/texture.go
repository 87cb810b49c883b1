package lut

import (
	"fmt"
	"math"

	"github.com/gogpu/imp/gpucore"
)

// Texture uploads the table as an RGBA8 texture: size×1 for a 1D table and
// size×size×size for a 3D table with red along x. Entries are normalized
// into the table domain so the texture maps [0, 1] input onto [0, 1] output.
// A 1D table longer than the device texture limit is resampled down to it;
// the table width is the lattice size the LUT kernels read.
func (t *Table) Texture(dev gpucore.Device) (gpucore.Texture, error) {
	if t.Kind != Kind1D && t.Kind != Kind3D {
		return nil, &Error{Kind: WrongFormat, Msg: fmt.Sprintf("table kind %v", t.Kind)}
	}
	limit := dev.Limits().MaxTextureSize
	n := t.Size
	if limit > 0 && n > limit {
		if t.Kind == Kind3D {
			return nil, &Error{Kind: OutOfRange,
				Msg: fmt.Sprintf("3D size %d exceeds device texture limit %d", n, limit)}
		}
		n = limit
	}

	desc := gpucore.TextureDescriptor{
		Label:  "lut." + t.Kind.String(),
		Width:  n,
		Height: 1,
		Depth:  1,
		Format: gpucore.FormatRGBA8,
	}
	var data []byte
	if t.Kind == Kind3D {
		desc.Height, desc.Depth = n, n
		data = make([]byte, 0, n*n*n*4)
		for _, e := range t.Data {
			data = t.appendTexel(data, e)
		}
	} else {
		data = make([]byte, 0, n*4)
		for i := range n {
			e := t.Data[i]
			if n != t.Size {
				e = t.at(float64(i) / float64(n-1))
			}
			data = t.appendTexel(data, e)
		}
	}

	tex, err := dev.NewTexture(desc)
	if err != nil {
		return nil, err
	}
	if err := tex.Upload(data); err != nil {
		tex.Destroy()
		return nil, err
	}
	return tex, nil
}

// at maps a normalized position along every axis of a 1D table.
func (t *Table) at(pos float64) RGB {
	var c RGB
	for ch := range 3 {
		c[ch] = t.DomainMin[ch] + pos*(t.DomainMax[ch]-t.DomainMin[ch])
	}
	return t.Map(c)
}

func (t *Table) appendTexel(b []byte, e RGB) []byte {
	for ch := range 3 {
		v := (e[ch] - t.DomainMin[ch]) / (t.DomainMax[ch] - t.DomainMin[ch])
		b = append(b, uint8(math.Round(min(max(v, 0), 1)*255)))
	}
	return append(b, 255)
}
