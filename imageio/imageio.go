// Package imageio moves images between files, image.Image values and device
// textures.
//
// Load decodes PNG, JPEG and GIF with the standard library and BMP, TIFF and
// WebP with golang.org/x/image. Textures are RGBA8 with straight alpha.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif" // register decoder

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // register decoder

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpucore"
)

// Errors returned by the package.
var (
	// ErrUnsupportedFormat is returned by Save for an unknown extension and by
	// Image for a texture format it cannot convert.
	ErrUnsupportedFormat = errors.New("imageio: unsupported format")
)

// JPEGQuality is the quality Save uses for .jpg and .jpeg files.
const JPEGQuality = 92

// Load decodes the image file at path and returns it with the name of its
// format.
func Load(path string) (image.Image, string, error) {
	f, err := os.Open(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = f.Close()
	}()
	return Decode(f)
}

// Decode decodes an image from r.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("imageio: decode: %w", err)
	}
	return img, format, nil
}

// Save encodes img to path in the format named by its extension: .png, .jpg,
// .jpeg, .bmp, .tif or .tiff.
func Save(path string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	enc, ok := encoders[ext]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := enc(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("imageio: encode %s: %w", path, err)
	}
	return f.Close()
}

var encoders = map[string]func(io.Writer, image.Image) error{
	".png": png.Encode,
	".jpg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	},
	".jpeg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	},
	".bmp": bmp.Encode,
	".tif": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
	".tiff": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
}

// Texture uploads img to a new RGBA8 texture on dev. An image whose longer
// side exceeds maxSize is scaled down with Catmull-Rom resampling so it fits,
// keeping its aspect ratio; maxSize 0 or less uses the device limit.
func Texture(dev gpucore.Device, img image.Image, maxSize int) (gpucore.Texture, error) {
	if maxSize <= 0 {
		maxSize = dev.Limits().MaxTextureSize
	}
	b := img.Bounds()
	size := imp.AdjustSize(gpucore.Size{Width: b.Dx(), Height: b.Dy(), Depth: 1}, maxSize)
	if size.Empty() {
		return nil, fmt.Errorf("imageio: empty image %v", b)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	if size.Width == b.Dx() && size.Height == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		imp.Logger().Debug("imageio: scaling image", "from", b.Size(), "to", size)
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	}

	tex, err := dev.NewTexture(gpucore.DefaultTextureDescriptor(size.Width, size.Height))
	if err != nil {
		return nil, err
	}
	if err := tex.Upload(dst.Pix); err != nil {
		tex.Destroy()
		return nil, err
	}
	return tex, nil
}

// Image reads tex back into a new image. RGBA8 textures give their texels
// unchanged; R8 textures are expanded to opaque gray. Pending work writing
// tex must have completed.
func Image(tex gpucore.Texture) (*image.NRGBA, error) {
	data, err := tex.Read()
	if err != nil {
		return nil, err
	}
	w, h := tex.Width(), tex.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	switch tex.Format() {
	case gpucore.FormatRGBA8:
		copy(img.Pix, data[:w*h*4])
	case gpucore.FormatR8:
		for i, v := range data[:w*h] {
			img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = v, v, v, 255
		}
	default:
		return nil, fmt.Errorf("%w: texture format %v", ErrUnsupportedFormat, tex.Format())
	}
	return img, nil
}
