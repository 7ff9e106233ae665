// Package imgx is the in-process raster codec: it decodes supported raster
// formats, applies EXIF orientation, resizes without enlargement and encodes
// palette-reduced PNGs.
package imgx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Profile describes one PNG encoding pass.
type Profile struct {
	Name   string
	Colors int
	Dither bool
}

var (
	// Q1 is the first-pass encoding: 256 colour palette with Floyd-Steinberg dithering.
	Q1 = Profile{Name: "q1", Colors: 256, Dither: true}

	// Q2 is the single fallback used when Q1 exceeds the size budget. Without
	// dithering the palette indices compress far better.
	Q2 = Profile{Name: "q2", Colors: 256, Dither: false}
)

// Codec implements the raster codec used by the normalizer.
type Codec struct{}

func New() *Codec { return &Codec{} }

// Decode reads and decodes the image at path, rotating/flipping it according
// to any EXIF orientation tag so that the result is upright.
func (c *Codec) Decode(_ context.Context, path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("image %s has invalid dimensions %dx%d", path, b.Dx(), b.Dy())
	}

	if format != "jpeg" && format != "tiff" {
		return img, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return img, nil
	}

	return ApplyOrientation(img, readOrientation(f)), nil
}

// Resize scales img so its larger dimension is at most maxDimension. Images
// which already fit are returned unchanged.
func (c *Codec) Resize(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	if maxDimension <= 0 || (b.Dx() <= maxDimension && b.Dy() <= maxDimension) {
		return img
	}

	return imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
}

// Encode quantizes img to the profile's palette and returns the PNG bytes
// compressed at the best compression level.
func (c *Codec) Encode(img image.Image, profile Profile) ([]byte, error) {
	if profile.Colors <= 0 || profile.Colors > 256 {
		return nil, errors.New("palette size must be between 1 and 256")
	}

	b := img.Bounds()
	q := quantize.MedianCutQuantizer{}
	palette := q.Quantize(make(color.Palette, 0, profile.Colors), img)
	paletted := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette)
	if profile.Dither {
		draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), img, b.Min)
	} else {
		draw.Draw(paletted, paletted.Bounds(), img, b.Min, draw.Src)
	}

	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&out, paletted); err != nil {
		return nil, fmt.Errorf("failed to encode png (%s): %w", profile.Name, err)
	}

	return out.Bytes(), nil
}

func readOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	v, err := tag.Int(0)
	if err != nil {
		return 1
	}

	return v
}

// ApplyOrientation transforms img according to an EXIF orientation value (1-8).
func ApplyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
