// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package augment

import (
	"math/rand"

	"github.com/gomlx/segmentation/pkg/core/tensors/images"
)

type makeBinaryStage struct{}

// MakeBinary sets every positive value of the mask to 1 and every other value to 0.
// The image is not changed.
func MakeBinary() Stage { return makeBinaryStage{} }

// Apply implements Stage.
func (makeBinaryStage) Apply(_ *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if mask == nil {
		return img, mask
	}
	for ii, v := range mask.Pix {
		if v > 0 {
			mask.Pix[ii] = 1
		} else {
			mask.Pix[ii] = 0
		}
	}
	return img, mask
}

func (makeBinaryStage) String() string { return "MakeBinary" }

type toTensorsStage struct{}

// ToTensors moves the channels axis of the image and the mask to the front (`[channels, height, width]`),
// the layout expected by the models. It is the last stage of every pipeline: spatial stages can't
// follow it.
func ToTensors() Stage { return toTensorsStage{} }

// Apply implements Stage.
func (toTensorsStage) Apply(_ *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if img != nil {
		img = img.ToChannelsFirst()
	}
	if mask != nil {
		mask = mask.ToChannelsFirst()
	}
	return img, mask
}

func (toTensorsStage) String() string { return "ToTensors" }
