package screen

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestImageReaderReadPixel(t *testing.T) {
	img := solid(4, 4, color.RGBA{128, 0, 128, 255})
	img.SetRGBA(2, 1, color.RGBA{255, 0, 0, 255})
	r := FromImage(img)

	c, err := r.ReadPixel(0, 0)
	require.NoError(t, err)
	assert.Equal(t, pixel.RGB(128, 0, 128), c)

	c, err = r.ReadPixel(2, 1)
	require.NoError(t, err)
	assert.Equal(t, pixel.RGB(255, 0, 0), c)

	_, err = r.ReadPixel(4, 0)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestImageReaderRegion(t *testing.T) {
	r := FromImage(solid(10, 10, color.RGBA{1, 2, 3, 255}))

	img, err := r.ReadRegion(image.Rect(8, 8, 12, 12))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(8, 8, 10, 10), img.Bounds())

	_, err = r.ReadRegion(image.Rect(20, 20, 30, 30))
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestImageReaderClose(t *testing.T) {
	r := FromImage(solid(2, 2, color.RGBA{}))
	require.NoError(t, r.Close())

	_, err := r.ReadPixel(0, 0)
	assert.ErrorIs(t, err, ErrResourceLost)
	_, err = r.ReadRegion(r.Bounds())
	assert.ErrorIs(t, err, ErrResourceLost)
}

func TestCenter(t *testing.T) {
	assert.Equal(t, image.Pt(960, 540), Center(image.Rect(0, 0, 1920, 1080)))
	assert.Equal(t, image.Pt(150, 60), Center(image.Rect(100, 50, 200, 70)))
}

var _ RegionReader = (*ImageReader)(nil)
