package augment

import (
	"math/rand"
	"testing"

	"github.com/gomlx/segmentation/pkg/core/tensors/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexedRaster returns a raster where each value is its position in Pix.
func indexedRaster(height, width, channels int) *images.Raster {
	r := images.NewRaster(height, width, channels)
	for ii := range r.Pix {
		r.Pix[ii] = float32(ii)
	}
	return r
}

// randomPair returns an RGB image with values in [0, 255] and a mask with values in {0, 255}.
func randomPair(rng *rand.Rand, height, width int) (img, mask *images.Raster) {
	img = images.NewRaster(height, width, 3)
	for ii := range img.Pix {
		img.Pix[ii] = float32(rng.Intn(256))
	}
	mask = images.NewRaster(height, width, 1)
	for ii := range mask.Pix {
		if rng.Intn(2) == 1 {
			mask.Pix[ii] = 255
		}
	}
	return
}

// maskFromImage returns a one channel raster with the first channel of img, so one can check that
// spatial transformations moved both the same way.
func maskFromImage(img *images.Raster) *images.Raster {
	mask := images.NewRaster(img.Height, img.Width, 1)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			mask.Set(y, x, 0, img.At(y, x, 0))
		}
	}
	return mask
}

func requireAligned(t *testing.T, img, mask *images.Raster) {
	require.Equal(t, img.Height, mask.Height)
	require.Equal(t, img.Width, mask.Width)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			require.Equal(t, img.At(y, x, 0), mask.At(y, x, 0), "pixel (%d, %d)", y, x)
		}
	}
}

func TestSequentialIsDeterministic(t *testing.T) {
	pipeline := Sequential(
		RandomCrop(16),
		ImageOnly(RandomGrayscale(0.5)),
		ImageOnly(RandomInvert()),
		ImageOnly(NormalizeImage()),
		ImageOnly(RandomBrightness()),
		ImageOnly(RandomContrast()),
		VerticalFlip(),
		HorizontalFlip(),
		ShiftScaleRotate(),
		MaskOnly(MakeBinary()),
		ToTensors())
	img, mask := randomPair(rand.New(rand.NewSource(7)), 24, 20)

	rngA, rngB := rand.New(rand.NewSource(42)), rand.New(rand.NewSource(42))
	for range 5 {
		imgA, maskA := pipeline.Apply(rngA, img.Clone(), mask.Clone())
		imgB, maskB := pipeline.Apply(rngB, img.Clone(), mask.Clone())
		require.Equal(t, images.ChannelsFirst, imgA.Layout)
		require.Equal(t, 16, imgA.Height)
		require.Equal(t, 16, maskA.Width)
		require.Equal(t, imgA.Pix, imgB.Pix)
		require.Equal(t, maskA.Pix, maskB.Pix)
		for _, v := range maskA.Pix {
			require.Contains(t, []float32{0, 1}, v)
		}
	}
	assert.Equal(t, "Sequential(RandomCrop(16x16), ImageOnly(RandomGrayscale(p=0.5)), ImageOnly(RandomInvert(p=0.5)), "+
		"ImageOnly(NormalizeImage(mean=[0.485 0.456 0.406], std=[0.229 0.224 0.225])), "+
		"ImageOnly(RandomBrightness(limit=0.2, p=0.5)), ImageOnly(RandomContrast(limit=0.2, p=0.5)), "+
		"VerticalFlip(p=0.5), HorizontalFlip(p=0.5), ShiftScaleRotate(shift=0.0625, scale=0.1, rotate=45, p=0.5), "+
		"MaskOnly(MakeBinary), ToTensors)", pipeline.String())
}

func TestRandomCrop(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 10 {
		img := indexedRaster(10, 8, 3)
		mask := maskFromImage(img)
		gotImg, gotMask := RandomCrop(4).Apply(rng, img, mask)
		require.Equal(t, 4, gotImg.Height)
		require.Equal(t, 4, gotImg.Width)
		require.Equal(t, 3, gotImg.Channels)
		requireAligned(t, gotImg, gotMask)
	}

	// Smaller than the crop: padded with zeros.
	img := images.NewRaster(3, 5, 1)
	for ii := range img.Pix {
		img.Pix[ii] = 1
	}
	gotImg, gotMask := RandomCrop(4).Apply(rng, img, nil)
	require.Nil(t, gotMask)
	require.Equal(t, 4, gotImg.Height)
	for x := 0; x < 4; x++ {
		assert.Equal(t, float32(1), gotImg.At(2, x, 0))
		assert.Equal(t, float32(0), gotImg.At(3, x, 0))
	}
}

func TestCenterCrop(t *testing.T) {
	img := indexedRaster(6, 6, 3)
	mask := maskFromImage(img)
	gotImg, gotMask := CenterCrop(2, 4).Apply(nil, img, mask)
	require.Equal(t, 2, gotImg.Height)
	require.Equal(t, 4, gotImg.Width)
	requireAligned(t, gotImg, gotMask)
	assert.Equal(t, img.At(2, 1, 2), gotImg.At(0, 0, 2))
	assert.Equal(t, img.At(3, 4, 1), gotImg.At(1, 3, 1))

	// Only the mask.
	_, gotMask = CenterCrop(2, 4).Apply(nil, nil, mask)
	assert.Equal(t, mask.At(2, 1, 0), gotMask.At(0, 0, 0))
}

func TestFlips(t *testing.T) {
	img := indexedRaster(3, 4, 3)
	mask := maskFromImage(img)
	always := WithProbability(1)

	flipped, flippedMask := VerticalFlip(always).Apply(nil, img.Clone(), mask.Clone())
	requireAligned(t, flipped, flippedMask)
	assert.Equal(t, img.At(2, 1, 1), flipped.At(0, 1, 1))
	assert.Equal(t, img.At(0, 3, 2), flipped.At(2, 3, 2))

	flipped, flippedMask = HorizontalFlip(always).Apply(nil, img.Clone(), mask.Clone())
	requireAligned(t, flipped, flippedMask)
	assert.Equal(t, img.At(1, 3, 1), flipped.At(1, 0, 1))
	assert.Equal(t, img.At(2, 0, 2), flipped.At(2, 3, 2))

	// Never applied.
	never := WithProbability(0)
	flipped, _ = HorizontalFlip(never).Apply(rand.New(rand.NewSource(0)), img.Clone(), nil)
	assert.Equal(t, img.Pix, flipped.Pix)
}

func TestRotate90(t *testing.T) {
	// 2x3 image:
	//   0 1 2
	//   3 4 5
	img := indexedRaster(2, 3, 1)

	ccw := rotate90(img, 1)
	require.Equal(t, 3, ccw.Height)
	require.Equal(t, 2, ccw.Width)
	assert.Equal(t, []float32{2, 5, 1, 4, 0, 3}, ccw.Pix)

	assert.Equal(t, []float32{5, 4, 3, 2, 1, 0}, rotate90(img, 2).Pix)
	assert.Equal(t, []float32{3, 0, 4, 1, 5, 2}, rotate90(img, 3).Pix)
	assert.Equal(t, img.Pix, rotate90(img, 4).Pix)

	rng := rand.New(rand.NewSource(3))
	for range 10 {
		img := indexedRaster(5, 7, 3)
		gotImg, gotMask := RandomRotate90(WithProbability(1)).Apply(rng, img, maskFromImage(img))
		requireAligned(t, gotImg, gotMask)
	}
}

func TestShiftScaleRotate(t *testing.T) {
	img, mask := randomPair(rand.New(rand.NewSource(5)), 12, 10)

	// Identity transformation.
	identity := ShiftScaleRotate(WithProbability(1), WithShiftLimit(0), WithScaleLimit(0), WithRotateLimit(0))
	gotImg, gotMask := identity.Apply(rand.New(rand.NewSource(0)), img.Clone(), mask.Clone())
	assert.Equal(t, img.Pix, gotImg.Pix)
	assert.Equal(t, mask.Pix, gotMask.Pix)

	// Masks stay binary.
	rng := rand.New(rand.NewSource(11))
	stage := ShiftScaleRotate(WithProbability(1))
	for range 10 {
		gotImg, gotMask = stage.Apply(rng, img.Clone(), mask.Clone())
		require.Equal(t, img.Height, gotImg.Height)
		require.Equal(t, img.Width, gotMask.Width)
		for _, v := range gotMask.Pix {
			require.Contains(t, []float32{0, 255}, v)
		}
		for _, v := range gotImg.Pix {
			require.True(t, v >= -1e-3 && v <= 255+1e-3, "bilinear interpolation out of range: %g", v)
		}
	}

	// A pure shift by whole pixels moves values, with reflection at the borders.
	shifted := newAffine(0, 1, 2, 0, 0, 0).warp(indexedRaster(1, 5, 1), true)
	assert.Equal(t, []float32{2, 1, 0, 1, 2}, shifted.Pix)
}

func TestReflect101(t *testing.T) {
	for _, tc := range []struct{ i, n, want int }{
		{0, 4, 0}, {3, 4, 3}, {-1, 4, 1}, {-2, 4, 2}, {-3, 4, 3}, {4, 4, 2}, {5, 4, 1}, {6, 4, 0}, {-7, 4, 1},
		{-3, 1, 0}, {2, 1, 0},
	} {
		assert.Equal(t, tc.want, reflect101(tc.i, tc.n), "reflect101(%d, %d)", tc.i, tc.n)
	}
}

func TestPhotometric(t *testing.T) {
	newPixel := func(r, g, b float32) *images.Raster {
		img := images.NewRaster(1, 1, 3)
		copy(img.Pix, []float32{r, g, b})
		return img
	}
	always := WithProbability(1)

	img, _ := RandomGrayscale(1).Apply(nil, newPixel(255, 0, 0), nil)
	for c := range 3 {
		assert.InDelta(t, 0.299*255, img.At(0, 0, c), 1e-3)
	}
	gray := images.NewRaster(1, 2, 1)
	img, _ = RandomGrayscale(1).Apply(nil, gray, nil)
	assert.Equal(t, 1, img.Channels)

	img, _ = RandomInvert(always).Apply(nil, newPixel(0, 100, 255), nil)
	assert.Equal(t, []float32{255, 155, 0}, img.Pix)

	img, _ = NormalizeImage().Apply(nil, newPixel(255, 0, 127.5), nil)
	assert.InDelta(t, (1-0.485)/0.229, img.At(0, 0, 0), 1e-5)
	assert.InDelta(t, -0.456/0.224, img.At(0, 0, 1), 1e-5)
	assert.InDelta(t, (0.5-0.406)/0.225, img.At(0, 0, 2), 1e-5)

	img, _ = NormalizeImage([]float32{0.5}, []float32{0.5}).Apply(nil, newPixel(255, 0, 127.5), nil)
	assert.InDeltaSlice(t, []float32{1, -1, 0}, img.Pix, 1e-6)
	require.Panics(t, func() { NormalizeImage([]float32{0.5, 0.5}) })
	require.Panics(t, func() { NormalizeImage([]float32{0.5}, []float32{0}) })

	rng := rand.New(rand.NewSource(0))
	img, _ = RandomBrightness(always, WithLimit(0)).Apply(rng, newPixel(10, 20, 30), nil)
	assert.Equal(t, []float32{10, 20, 30}, img.Pix)
	for range 10 {
		img, _ = RandomBrightness(always).Apply(rng, newPixel(100, 100, 100), nil)
		v := img.At(0, 0, 0)
		require.True(t, v >= 80 && v <= 120, "brightness out of limits: %g", v)
	}

	// Contrast doesn't change a constant image.
	for range 10 {
		img, _ = RandomContrast(always, WithLimit(0.5)).Apply(rng, newPixel(50, 50, 50), nil)
		assert.InDeltaSlice(t, []float32{50, 50, 50}, img.Pix, 1e-3)
	}
}

func TestMaskStages(t *testing.T) {
	img := indexedRaster(2, 2, 3)
	mask := images.NewRaster(2, 2, 1)
	copy(mask.Pix, []float32{0, 255, 1, -3})

	gotImg, gotMask := MakeBinary().Apply(nil, img.Clone(), mask.Clone())
	assert.Equal(t, img.Pix, gotImg.Pix)
	assert.Equal(t, []float32{0, 1, 1, 0}, gotMask.Pix)

	// MaskOnly hides the image, ImageOnly hides the mask.
	gotImg, gotMask = MaskOnly(RandomInvert(WithProbability(1))).Apply(nil, img.Clone(), mask.Clone())
	assert.Equal(t, img.Pix, gotImg.Pix)
	assert.Equal(t, []float32{255, 0, 254, 258}, gotMask.Pix)
	gotImg, gotMask = ImageOnly(MakeBinary()).Apply(nil, img.Clone(), mask.Clone())
	assert.Equal(t, img.Pix, gotImg.Pix)
	assert.Equal(t, mask.Pix, gotMask.Pix)
	gotImg, gotMask = ImageOnly(HorizontalFlip(WithProbability(1))).Apply(nil, img.Clone(), mask.Clone())
	assert.NotEqual(t, img.Pix, gotImg.Pix)
	assert.Equal(t, mask.Pix, gotMask.Pix)

	gotImg, gotMask = ToTensors().Apply(nil, img, mask)
	assert.Equal(t, images.ChannelsFirst, gotImg.Layout)
	assert.Equal(t, images.ChannelsFirst, gotMask.Layout)
	// Channel 1 of pixel (0, 1) was at position (0*2+1)*3+1 = 4.
	assert.Equal(t, float32(4), gotImg.Pix[1*4+0*2+1])
	require.Panics(t, func() { HorizontalFlip(WithProbability(1)).Apply(nil, gotImg, nil) })
}
