// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package augment

import (
	"fmt"
	"image"
	"math/rand"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/segmentation/pkg/core/tensors/images"
)

type cropStage struct {
	height, width int
	random        bool
}

// RandomCrop takes a size x size crop at a random position, the same for the image and the mask.
//
// If the input is smaller than the crop along an axis, it is padded with zeros at the end of that axis.
func RandomCrop(size int) Stage {
	if size <= 0 {
		exceptions.Panicf("augment.RandomCrop(%d): size must be > 0", size)
	}
	return cropStage{height: size, width: size, random: true}
}

// CenterCrop takes a height x width crop at the center of the image and mask.
//
// If the input is smaller than the crop along an axis, it is padded with zeros at the end of that axis.
func CenterCrop(height, width int) Stage {
	if height <= 0 || width <= 0 {
		exceptions.Panicf("augment.CenterCrop(%d, %d): dimensions must be > 0", height, width)
	}
	return cropStage{height: height, width: width}
}

// Apply implements Stage.
func (s cropStage) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	height, width, ok := referenceSize(img, mask)
	if !ok {
		return img, mask
	}
	var y0, x0 int
	if s.random {
		y0 = randomOffset(rng, height, s.height)
		x0 = randomOffset(rng, width, s.width)
	} else {
		y0 = max(height-s.height, 0) / 2
		x0 = max(width-s.width, 0) / 2
	}
	rect := image.Rect(x0, y0, x0+s.width, y0+s.height)
	if img != nil {
		img.MustBeChannelsLast(s.String())
		img = img.SubRaster(rect)
	}
	if mask != nil {
		mask.MustBeChannelsLast(s.String())
		mask = mask.SubRaster(rect)
	}
	return img, mask
}

func randomOffset(rng *rand.Rand, length, crop int) int {
	if length <= crop {
		return 0
	}
	return rng.Intn(length - crop + 1)
}

func (s cropStage) String() string {
	if s.random {
		return fmt.Sprintf("RandomCrop(%dx%d)", s.height, s.width)
	}
	return fmt.Sprintf("CenterCrop(%dx%d)", s.height, s.width)
}
