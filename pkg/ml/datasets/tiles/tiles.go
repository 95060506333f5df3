// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tiles decomposes large images into fixed-size, overlapping square tiles, and reassembles
// tiles back into full images.
//
// Tiles are laid on a grid with the given stride. The last tile of each row and column is shifted
// inward so that it ends exactly at the image border (it overlaps its neighbour more than the nominal
// stride). Only when the image is smaller than a tile along an axis, the single tile along that axis
// starts at 0 and is zero padded beyond the image border. So every tile has exactly TileSize x TileSize
// pixels, and together they cover the whole image.
package tiles

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/gomlx/segmentation/pkg/core/tensors/images"
	"github.com/pkg/errors"
)

// Slicer holds the geometry of the tiles for images of a given size.
type Slicer struct {
	Height, Width    int
	TileSize, Stride int

	// Crops are the tiles' rectangles in image coordinates, in row-major order: top to bottom,
	// and left to right within a row. Padded tiles extend beyond the image bounds.
	Crops []image.Rectangle
}

// NewSlicer returns the Slicer for images of the given dimensions.
func NewSlicer(height, width, tileSize, stride int) (*Slicer, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Errorf("tiles.NewSlicer: invalid image dimensions %dx%d", height, width)
	}
	if tileSize <= 0 {
		return nil, errors.Errorf("tiles.NewSlicer: invalid tile size %d", tileSize)
	}
	if stride <= 0 || stride > tileSize {
		return nil, errors.Errorf("tiles.NewSlicer: stride must be in the range [1, %d], got %d", tileSize, stride)
	}
	s := &Slicer{
		Height:   height,
		Width:    width,
		TileSize: tileSize,
		Stride:   stride,
	}
	ys := origins(height, tileSize, stride)
	xs := origins(width, tileSize, stride)
	s.Crops = make([]image.Rectangle, 0, len(ys)*len(xs))
	for _, y := range ys {
		for _, x := range xs {
			s.Crops = append(s.Crops, image.Rect(x, y, x+tileSize, y+tileSize))
		}
	}
	return s, nil
}

// origins returns the start position of the tiles along one axis.
func origins(length, tileSize, stride int) []int {
	if length <= tileSize {
		return []int{0}
	}
	var starts []int
	pos := 0
	for ; pos+tileSize < length; pos += stride {
		starts = append(starts, pos)
	}
	if last := length - tileSize; starts[len(starts)-1] != last {
		starts = append(starts, last)
	}
	return starts
}

// NumTiles returns the number of tiles per image.
func (s *Slicer) NumTiles() int { return len(s.Crops) }

// Bounds of the images this Slicer handles.
func (s *Slicer) Bounds() image.Rectangle { return image.Rect(0, 0, s.Width, s.Height) }

// IsPadded returns whether the given tile extends beyond the image bounds.
func (s *Slicer) IsPadded(crop int) bool {
	return !s.Crops[crop].In(s.Bounds())
}

func (s *Slicer) checkSize(size image.Point) error {
	if size.X != s.Width || size.Y != s.Height {
		return errors.Errorf("image of size %dx%d given to Slicer configured for %dx%d",
			size.Y, size.X, s.Height, s.Width)
	}
	return nil
}

// Split the image into tiles, in the order of Crops.
func (s *Slicer) Split(img image.Image) ([]image.Image, error) {
	if err := s.checkSize(img.Bounds().Size()); err != nil {
		return nil, err
	}
	origin := img.Bounds().Min
	tiles := make([]image.Image, len(s.Crops))
	for ii, crop := range s.Crops {
		tile := imaging.Crop(img, crop.Add(origin))
		if s.IsPadded(ii) {
			background := imaging.New(s.TileSize, s.TileSize, color.NRGBA{A: 255})
			tile = imaging.Paste(background, tile, image.Point{})
		}
		tiles[ii] = tile
	}
	return tiles, nil
}

// SplitRaster splits the raster into tiles, in the order of Crops.
func (s *Slicer) SplitRaster(r *images.Raster) ([]*images.Raster, error) {
	if err := s.checkSize(image.Pt(r.Width, r.Height)); err != nil {
		return nil, err
	}
	tiles := make([]*images.Raster, len(s.Crops))
	for ii, crop := range s.Crops {
		tiles[ii] = r.SubRaster(crop)
	}
	return tiles, nil
}

// Merger reassembles tiles into a full image. Where tiles overlap, the values are averaged.
//
// Create it with NewMerger, Add the tiles, and call Merge.
type Merger struct {
	slicer   *Slicer
	channels int
	sum      []float32
	weight   []float32
}

// NewMerger creates a Merger for the tiles of slicer, with the given number of channels.
func NewMerger(slicer *Slicer, channels int) (*Merger, error) {
	if channels <= 0 {
		return nil, errors.Errorf("tiles.NewMerger: invalid number of channels %d", channels)
	}
	return &Merger{
		slicer:   slicer,
		channels: channels,
		sum:      make([]float32, slicer.Height*slicer.Width*channels),
		weight:   make([]float32, slicer.Height*slicer.Width),
	}, nil
}

// Add the tile for the given crop index. The tile must be TileSize x TileSize, with the Merger's number of
// channels, in the ChannelsLast layout. Padded regions are ignored.
func (m *Merger) Add(crop int, tile *images.Raster) error {
	if crop < 0 || crop >= len(m.slicer.Crops) {
		return errors.Errorf("Merger.Add: crop index %d out of range [0, %d)", crop, len(m.slicer.Crops))
	}
	size := m.slicer.TileSize
	if tile.Height != size || tile.Width != size || tile.Channels != m.channels {
		return errors.Errorf("Merger.Add: tile is %dx%dx%d, expected %dx%dx%d",
			tile.Height, tile.Width, tile.Channels, size, size, m.channels)
	}
	if tile.Layout != images.ChannelsLast {
		return errors.Errorf("Merger.Add: tile must be %s, got %s", images.ChannelsLast, tile.Layout)
	}
	rect := m.slicer.Crops[crop]
	inside := rect.Intersect(m.slicer.Bounds())
	for y := inside.Min.Y; y < inside.Max.Y; y++ {
		for x := inside.Min.X; x < inside.Max.X; x++ {
			pixel := y*m.slicer.Width + x
			m.weight[pixel]++
			for c := 0; c < m.channels; c++ {
				m.sum[pixel*m.channels+c] += tile.At(y-rect.Min.Y, x-rect.Min.X, c)
			}
		}
	}
	return nil
}

// Merge returns the reassembled image. It returns an error if some pixel was not covered by any added tile.
func (m *Merger) Merge() (*images.Raster, error) {
	out := images.NewRaster(m.slicer.Height, m.slicer.Width, m.channels)
	for pixel, w := range m.weight {
		if w == 0 {
			return nil, errors.Errorf("Merger.Merge: pixel (y=%d, x=%d) not covered by any tile",
				pixel/m.slicer.Width, pixel%m.slicer.Width)
		}
		for c := 0; c < m.channels; c++ {
			idx := pixel*m.channels + c
			out.Pix[idx] = m.sum[idx] / w
		}
	}
	return out, nil
}
