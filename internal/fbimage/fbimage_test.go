package fbimage

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPattern(w, h int) *image.RGBA {
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 0x40, A: 0xff})
		}
	}
	return src
}

func TestCopyMatchesDraw(t *testing.T) {
	const w, h = 17, 9
	for _, format := range []drm.Format{drm.FormatXRGB8888, drm.FormatRGB565} {
		t.Run(format.String(), func(t *testing.T) {
			bpp := 4
			if format == drm.FormatRGB565 {
				bpp = 2
			}
			// Pad rows like a real scanout buffer would.
			pitch := w*bpp + 12
			src := testPattern(w, h)

			fast, err := New(format, make([]byte, pitch*h), w, h, pitch)
			require.NoError(t, err)
			fast.CopyRGBA(src)

			slow, err := New(format, make([]byte, pitch*h), w, h, pitch)
			require.NoError(t, err)
			draw.Draw(slow, slow.Bounds(), src, image.Point{}, draw.Src)

			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					require.Equal(t, slow.At(x, y), fast.At(x, y), "pixel %d,%d", x, y)
				}
			}
		})
	}
}

func TestRGB565RoundTrip(t *testing.T) {
	img, err := New(drm.FormatRGB565, make([]byte, 2*4), 2, 2, 4)
	require.NoError(t, err)
	img.Set(1, 1, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, img.At(1, 1))
	assert.Equal(t, color.NRGBA{A: 0xff}, img.At(0, 0))
	assert.Equal(t, color.NRGBA{}, img.At(5, 5))

	img.Set(0, 0, color.NRGBA{R: 0xff, A: 0xff})
	assert.Equal(t, []byte{0x00, 0xf8}, img.(*RGB565).Pix[:2])
	img.Set(0, 0, color.NRGBA{B: 0x84, A: 0xff})
	assert.Equal(t, color.NRGBA{B: 0x84, A: 0xff}, img.At(0, 0))
}

func TestXRGB8888Layout(t *testing.T) {
	pix := make([]byte, 4)
	img, err := New(drm.FormatXRGB8888, pix, 1, 1, 4)
	require.NoError(t, err)
	img.Set(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 0xff})
	assert.Equal(t, []byte{3, 2, 1, 0xff}, pix)
}

func TestNewErrors(t *testing.T) {
	_, err := New(drm.FormatNV12, make([]byte, 64), 4, 4, 4)
	require.Error(t, err)
	_, err = New(drm.FormatXRGB8888, make([]byte, 63), 4, 4, 16)
	require.Error(t, err)
	_, err = New(drm.FormatXRGB8888, make([]byte, 64), 4, 4, 8)
	require.Error(t, err)
}
