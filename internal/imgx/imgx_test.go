package imgx_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/hbomb79/galleria/internal/imgx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func TestResize(t *testing.T) {
	codec := imgx.New()
	tests := []struct {
		summary  string
		w, h     int
		max      int
		expected image.Point
	}{
		{"SmallerIsUntouched", 120, 80, 2500, image.Pt(120, 80)},
		{"ExactlyAtLimit", 200, 100, 200, image.Pt(200, 100)},
		{"LandscapeClampsWidth", 400, 100, 200, image.Pt(200, 50)},
		{"PortraitClampsHeight", 100, 400, 200, image.Pt(50, 200)},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			out := codec.Resize(gradient(tt.w, tt.h), tt.max)
			assert.Equal(t, tt.expected, out.Bounds().Size())
		})
	}
}

func TestEncode_ProducesPalettedPNGWithSameDimensions(t *testing.T) {
	codec := imgx.New()
	src := gradient(64, 48)

	for _, profile := range []imgx.Profile{imgx.Q1, imgx.Q2} {
		t.Run(profile.Name, func(t *testing.T) {
			data, err := codec.Encode(src, profile)
			require.NoError(t, err)

			decoded, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, src.Bounds().Size(), decoded.Bounds().Size())

			paletted, ok := decoded.(*image.Paletted)
			if assert.True(t, ok, "expected a paletted PNG") {
				assert.LessOrEqual(t, len(paletted.Palette), 256)
			}
		})
	}
}

func TestEncode_UnditheredProfileIsSmallerForGradients(t *testing.T) {
	codec := imgx.New()
	src := gradient(256, 256)

	q1, err := codec.Encode(src, imgx.Q1)
	require.NoError(t, err)
	q2, err := codec.Encode(src, imgx.Q2)
	require.NoError(t, err)

	assert.Less(t, len(q2), len(q1))
}

func TestEncode_InvalidProfile(t *testing.T) {
	_, err := imgx.New().Encode(gradient(4, 4), imgx.Profile{Name: "bad", Colors: 0})
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.jpg")

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(30, 20), nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	img, err := imgx.New().Decode(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(30, 20), img.Bounds().Size())

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = imgx.New().Decode(context.Background(), bad)
	assert.Error(t, err)

	_, err = imgx.New().Decode(context.Background(), filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestApplyOrientation(t *testing.T) {
	src := gradient(4, 2)
	tests := []struct {
		orientation int
		expected    image.Point
	}{
		{0, image.Pt(4, 2)},
		{1, image.Pt(4, 2)},
		{2, image.Pt(4, 2)},
		{3, image.Pt(4, 2)},
		{4, image.Pt(4, 2)},
		{5, image.Pt(2, 4)},
		{6, image.Pt(2, 4)},
		{7, image.Pt(2, 4)},
		{8, image.Pt(2, 4)},
	}

	for _, tt := range tests {
		out := imgx.ApplyOrientation(src, tt.orientation)
		assert.Equal(t, tt.expected, out.Bounds().Size(), "orientation %d", tt.orientation)
	}

	// Orientation 6 is a 90 degree clockwise rotation: the top-left source
	// pixel ends up in the top-right corner.
	rotated := imgx.ApplyOrientation(src, 6)
	assert.Equal(t, color.NRGBAModel.Convert(src.At(0, 0)), color.NRGBAModel.Convert(rotated.At(1, 0)))
}
