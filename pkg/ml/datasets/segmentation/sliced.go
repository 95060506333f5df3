// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segmentation

import (
	"fmt"
	"image"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/segmentation/pkg/core/tensors/images"
	"github.com/gomlx/segmentation/pkg/ml/datasets/split"
	"github.com/gomlx/segmentation/pkg/ml/datasets/tiles"
	"github.com/gomlx/segmentation/pkg/support/xslices"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Patch is a fixed size crop of a source image and its mask.
type Patch struct {
	// ImageID is the index of the source image.
	ImageID int

	// Offset of the top-left corner of the patch in the source image.
	Offset image.Point

	Image, Mask *images.Raster
}

// Sliced slices each image and its mask in patches of patchSize x patchSize, with origins every stride pixels.
// See tiles.Slicer for the placement of the patches at the borders.
//
// The patches of image ii have ImageID ii, and they are returned in the order of the images, and for each image
// in row-major order.
func Sliced(imgs, masks []*images.Raster, patchSize, stride int) ([]Patch, error) {
	if len(imgs) != len(masks) {
		return nil, errors.Wrapf(ErrMismatchedPairCount, "%d images and %d masks", len(imgs), len(masks))
	}
	var patches []Patch
	for imageID, img := range imgs {
		mask := masks[imageID]
		if err := checkSameSize(img, mask, fmt.Sprintf("image #%d", imageID)); err != nil {
			return nil, err
		}
		slicer, err := tiles.NewSlicer(img.Height, img.Width, patchSize, stride)
		if err != nil {
			return nil, errors.WithMessagef(err, "image #%d", imageID)
		}
		imageTiles, err := slicer.SplitRaster(img)
		if err != nil {
			return nil, err
		}
		maskTiles, err := slicer.SplitRaster(mask)
		if err != nil {
			return nil, err
		}
		for ii, crop := range slicer.Crops {
			patches = append(patches, Patch{
				ImageID: imageID,
				Offset:  crop.Min,
				Image:   imageTiles[ii],
				Mask:    maskTiles[ii],
			})
		}
	}
	return patches, nil
}

// LoadPatches reads all image/mask pairs of cfg.DataDir into memory and slices them in patches of
// cfg.PatchSize, with a stride of half a patch.
func LoadPatches(cfg *Config, imagesDir, masksDir string) ([]Patch, error) {
	dataDir, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	pairs, err := FindPairs(dataDir, imagesDir, masksDir)
	if err != nil {
		return nil, err
	}
	imgs := make([]*images.Raster, len(pairs))
	masks := make([]*images.Raster, len(pairs))
	var pbar *progressbar.ProgressBar
	if cfg.ShowProgress {
		pbar = progressbar.Default(int64(len(pairs)), "Reading images")
	}
	for ii, pair := range pairs {
		if imgs[ii], err = ReadRGB(pair.Image); err != nil {
			return nil, err
		}
		if masks[ii], err = ReadGray(pair.Mask); err != nil {
			return nil, err
		}
		if pbar != nil {
			_ = pbar.Add(1)
		}
	}
	if pbar != nil {
		_ = pbar.Finish()
	}
	patches, err := Sliced(imgs, masks, cfg.PatchSize, max(cfg.PatchSize/2, 1))
	if err != nil {
		return nil, err
	}
	var memory uint64
	for _, patch := range patches {
		memory += rasterMemory(patch.Image) + rasterMemory(patch.Mask)
	}
	klog.V(1).Infof("Sliced %s images in %s patches of %dx%d: %s in RAM",
		humanize.Comma(int64(len(pairs))), humanize.Comma(int64(len(patches))), cfg.PatchSize, cfg.PatchSize,
		humanize.Bytes(memory))
	return patches, nil
}

// SplitPatches splits the patches in train and test, stratified by source image.
//
// It returns split.ErrDegenerateStratum if any image has a single patch.
func SplitPatches(patches []Patch, testFraction float64, seed int64) (train, test []Patch, err error) {
	groups := xslices.Map(patches, func(p Patch) int { return p.ImageID })
	trainIdx, testIdx, err := split.Stratified(groups, testFraction, seed)
	if err != nil {
		err = errors.WithMessagef(err, "splitting %d patches", len(patches))
		return
	}
	return split.Select(patches, trainIdx), split.Select(patches, testIdx), nil
}

func patchImages(patches []Patch) []*images.Raster {
	return xslices.Map(patches, func(p Patch) *images.Raster { return p.Image })
}

func patchMasks(patches []Patch) []*images.Raster {
	return xslices.Map(patches, func(p Patch) *images.Raster { return p.Mask })
}
