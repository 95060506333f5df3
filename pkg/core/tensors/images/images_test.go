package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	copy(img.Pix, []uint8{
		1, 2, 3, 255,
		10, 20, 30, 255,
		50, 60, 70, 255,
		100, 110, 120, 255,
		200, 210, 220, 255,
		250, 251, 252, 255})
	return img
}

func TestFromImage(t *testing.T) {
	r := FromImage(testImage(), 3)
	require.Equal(t, 2, r.Height)
	require.Equal(t, 3, r.Width)
	require.Len(t, r.Pix, 2*3*3)
	assert.Equal(t, float32(10), r.At(0, 1, 0))
	assert.Equal(t, float32(220), r.At(1, 1, 2))

	gray := FromImage(testImage(), 1)
	require.Equal(t, 1, gray.Channels)
	// 0.299*250 + 0.587*251 + 0.114*252 = 250.8
	assert.InDelta(t, 251, gray.At(1, 2, 0), 1)
}

func TestRasterToFromImage(t *testing.T) {
	img := testImage()
	converted := FromImage(img, 3).ToImage()
	require.Equal(t, img.Bounds(), converted.Bounds())
	for y := range 2 {
		for x := range 3 {
			require.Equal(t, img.At(x, y), converted.At(x, y))
		}
	}

	mask := NewRaster(1, 2, 1)
	mask.Pix[1] = 300
	grayImg := mask.ToImage().(*image.Gray)
	assert.Equal(t, color.Gray{Y: 255}, grayImg.GrayAt(1, 0))
}

func TestSubRaster(t *testing.T) {
	r := FromImage(testImage(), 3)
	sub := r.SubRaster(image.Rect(1, 1, 4, 3))
	require.Equal(t, 2, sub.Height)
	require.Equal(t, 3, sub.Width)
	assert.Equal(t, float32(200), sub.At(0, 0, 0))
	assert.Equal(t, float32(250), sub.At(0, 1, 0))
	// Outside of the source: zero padded.
	assert.Equal(t, float32(0), sub.At(0, 2, 0))
	assert.Equal(t, float32(0), sub.At(1, 0, 0))
}

func TestToTensor(t *testing.T) {
	r := FromImage(testImage(), 3)
	last := ToTensor(dtypes.Float32).Single(r)
	require.NoError(t, last.Shape().Check(dtypes.Float32, 2, 3, 3))

	first := ToTensor(dtypes.Float32).Single(r.ToChannelsFirst())
	require.NoError(t, first.Shape().Check(dtypes.Float32, 3, 2, 3))
	values := first.Float64Values()
	// Channel 0 (red) comes first, row-major.
	assert.Equal(t, []float64{1, 10, 50, 100, 200, 250}, values[:6])

	scaled := ToTensor(dtypes.Float64).MaxValue(1.0).Single(r)
	assert.InDelta(t, 1.0, scaled.Float64Values()[len(r.Pix)-1]*255.0/252.0, 1e-6)

	batch := ToTensor(dtypes.Uint8).Batch([]*Raster{r, r})
	require.NoError(t, batch.Shape().Check(dtypes.Uint8, 2, 2, 3, 3))
	assert.Equal(t, 3, GetChannelsAxis(batch, ChannelsLast))
	assert.Equal(t, 1, GetChannelsAxis(batch, ChannelsFirst))

	require.Panics(t, func() { ToTensor(dtypes.Float32).Batch([]*Raster{r, r.ToChannelsFirst()}) })
}

func TestToRaster(t *testing.T) {
	r := FromImage(testImage(), 3)
	for _, layout := range []ChannelsAxisConfig{ChannelsLast, ChannelsFirst} {
		src := r
		if layout == ChannelsFirst {
			src = r.ToChannelsFirst()
		}
		tensor := ToTensor(dtypes.Float32).Single(src)
		back := ToRaster(tensor, layout)
		assert.Equal(t, src.Pix, back.Pix)
		img := TensorToImage(tensor, layout)
		assert.Equal(t, testImage().At(2, 1), img.At(2, 1))
	}
}
