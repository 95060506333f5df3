// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tiles

import (
	"image"
	"image/color"
	"testing"

	"github.com/gomlx/segmentation/pkg/core/tensors/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientRaster returns a raster where each pixel value encodes its position.
func gradientRaster(height, width, channels int) *images.Raster {
	r := images.NewRaster(height, width, channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				r.Set(y, x, c, float32(y*1000+x*10+c))
			}
		}
	}
	return r
}

func coversBounds(t *testing.T, s *Slicer) {
	covered := make([]bool, s.Height*s.Width)
	for _, crop := range s.Crops {
		inside := crop.Intersect(s.Bounds())
		for y := inside.Min.Y; y < inside.Max.Y; y++ {
			for x := inside.Min.X; x < inside.Max.X; x++ {
				covered[y*s.Width+x] = true
			}
		}
	}
	for pixel, ok := range covered {
		require.Truef(t, ok, "pixel (%d, %d) not covered", pixel/s.Width, pixel%s.Width)
	}
}

func TestSlicer100x100(t *testing.T) {
	s, err := NewSlicer(100, 100, 64, 32)
	require.NoError(t, err)
	require.Equal(t, 9, s.NumTiles())
	var ys, xs []int
	for ii, crop := range s.Crops[:3] {
		xs = append(xs, crop.Min.X)
		ys = append(ys, s.Crops[ii*3].Min.Y)
	}
	assert.Equal(t, []int{0, 32, 36}, xs)
	assert.Equal(t, []int{0, 32, 36}, ys)

	// Last tile of each row and column is clamped to end at the border.
	assert.Equal(t, image.Rect(36, 0, 100, 64), s.Crops[2])
	assert.Equal(t, image.Rect(0, 36, 64, 100), s.Crops[6])
	assert.Equal(t, image.Rect(36, 36, 100, 100), s.Crops[8])
	for ii, crop := range s.Crops {
		assert.Equal(t, 64, crop.Dx())
		assert.Equal(t, 64, crop.Dy())
		assert.False(t, s.IsPadded(ii))
	}
	coversBounds(t, s)

	// Deterministic.
	s2, err := NewSlicer(100, 100, 64, 32)
	require.NoError(t, err)
	assert.Equal(t, s.Crops, s2.Crops)
}

func TestSlicerExactMultiple(t *testing.T) {
	s, err := NewSlicer(128, 96, 64, 32)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 32, 64}, origins(128, 64, 32))
	assert.Equal(t, []int{0, 32}, origins(96, 64, 32))
	assert.Equal(t, 6, s.NumTiles())
	coversBounds(t, s)
}

func TestSlicerSmallerThanTile(t *testing.T) {
	s, err := NewSlicer(40, 100, 64, 32)
	require.NoError(t, err)
	require.Equal(t, 3, s.NumTiles())
	for ii, crop := range s.Crops {
		assert.Equal(t, 0, crop.Min.Y)
		assert.Equal(t, 64, crop.Dy())
		assert.True(t, s.IsPadded(ii))
	}
	coversBounds(t, s)

	r := gradientRaster(40, 100, 1)
	tiles, err := s.SplitRaster(r)
	require.NoError(t, err)
	for _, tile := range tiles {
		assert.Equal(t, 64, tile.Height)
		assert.Equal(t, 64, tile.Width)
	}
	// Bottom rows are padded with zeros.
	assert.Equal(t, float32(0), tiles[0].At(50, 5, 0))
	assert.Equal(t, float32(39*1000+5*10), tiles[0].At(39, 5, 0))
}

func TestNewSlicerErrors(t *testing.T) {
	_, err := NewSlicer(0, 10, 4, 2)
	require.Error(t, err)
	_, err = NewSlicer(10, 10, 0, 2)
	require.Error(t, err)
	_, err = NewSlicer(10, 10, 4, 5)
	require.Error(t, err)
	_, err = NewSlicer(10, 10, 4, 0)
	require.Error(t, err)
}

func TestSplitRasterAndMerge(t *testing.T) {
	for _, dims := range [][2]int{{100, 100}, {130, 70}, {50, 30}, {64, 64}} {
		s, err := NewSlicer(dims[0], dims[1], 64, 32)
		require.NoError(t, err)
		r := gradientRaster(dims[0], dims[1], 3)
		tiles, err := s.SplitRaster(r)
		require.NoError(t, err)
		require.Len(t, tiles, s.NumTiles())
		for ii, tile := range tiles {
			crop := s.Crops[ii]
			if !s.IsPadded(ii) {
				assert.Equal(t, r.At(crop.Min.Y, crop.Min.X, 1), tile.At(0, 0, 1))
			}
		}

		merger, err := NewMerger(s, 3)
		require.NoError(t, err)
		for ii, tile := range tiles {
			require.NoError(t, merger.Add(ii, tile))
		}
		merged, err := merger.Merge()
		require.NoError(t, err)
		assert.Equal(t, r.Pix, merged.Pix, "round trip for %v", dims)
	}
}

func TestMergeErrors(t *testing.T) {
	s, err := NewSlicer(100, 100, 64, 32)
	require.NoError(t, err)
	_, err = NewMerger(s, 0)
	require.Error(t, err)
	merger, err := NewMerger(s, 1)
	require.NoError(t, err)
	require.Error(t, merger.Add(9, images.NewRaster(64, 64, 1)))
	require.Error(t, merger.Add(0, images.NewRaster(32, 64, 1)))
	require.Error(t, merger.Add(0, images.NewRaster(64, 64, 3)))
	require.Error(t, merger.Add(0, images.NewRaster(64, 64, 1).ToChannelsFirst()))

	require.NoError(t, merger.Add(0, images.NewRaster(64, 64, 1)))
	_, err = merger.Merge()
	require.Error(t, err, "only one tile added, image not fully covered")
}

func TestSplitImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 100; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x + y)})
		}
	}
	s, err := NewSlicer(40, 100, 64, 32)
	require.NoError(t, err)
	tiles, err := s.Split(img)
	require.NoError(t, err)
	require.Len(t, tiles, 3)
	for ii, tile := range tiles {
		assert.Equal(t, image.Rect(0, 0, 64, 64), tile.Bounds())
		crop := s.Crops[ii]
		r, _, _, _ := tile.At(3, 7).RGBA()
		assert.Equal(t, uint32(crop.Min.X+3+7), r>>8)
		r, _, _, _ = tile.At(3, 50).RGBA()
		assert.Equal(t, uint32(0), r>>8, "padding is black")
	}

	_, err = s.Split(image.NewGray(image.Rect(0, 0, 10, 10)))
	require.Error(t, err)
}
