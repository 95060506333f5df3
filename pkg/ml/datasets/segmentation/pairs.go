// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segmentation

import (
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gomlx/segmentation/pkg/core/tensors/images"
	"github.com/gomlx/segmentation/pkg/support/fsutil"
	"github.com/pkg/errors"
)

var (
	// ErrMismatchedPairCount is returned when the images and masks directories have a different number of files.
	ErrMismatchedPairCount = errors.New("mismatched pair count")

	// ErrMismatchedPairNames is returned when an image and the mask at the same position in the sorted listings
	// have different base names.
	ErrMismatchedPairNames = errors.New("mismatched pair names")
)

// Pair of files of one sample: an image and its segmentation mask.
type Pair struct {
	Image, Mask string
}

// FindPairs lists the files in root/imagesDir and root/masksDir and pairs them by sorted order.
//
// Both directories must have the same number of files (or it returns ErrMismatchedPairCount), and the
// paired files must have the same name, not counting the extension (or it returns ErrMismatchedPairNames).
func FindPairs(root, imagesDir, masksDir string) ([]Pair, error) {
	imagePaths, err := fsutil.ListFiles(filepath.Join(root, imagesDir))
	if err != nil {
		return nil, err
	}
	maskPaths, err := fsutil.ListFiles(filepath.Join(root, masksDir))
	if err != nil {
		return nil, err
	}
	if len(imagePaths) != len(maskPaths) {
		return nil, errors.Wrapf(ErrMismatchedPairCount, "%d files in %q and %d files in %q",
			len(imagePaths), filepath.Join(root, imagesDir), len(maskPaths), filepath.Join(root, masksDir))
	}
	pairs := make([]Pair, len(imagePaths))
	for ii, imagePath := range imagePaths {
		if fsutil.Stem(imagePath) != fsutil.Stem(maskPaths[ii]) {
			return nil, errors.Wrapf(ErrMismatchedPairNames, "file #%d: image %q and mask %q",
				ii, imagePath, maskPaths[ii])
		}
		pairs[ii] = Pair{Image: imagePath, Mask: maskPaths[ii]}
	}
	return pairs, nil
}

// ReadFunc reads an image file into a raster.
type ReadFunc func(path string) (*images.Raster, error)

// ReadRGB reads an image file and returns its RGB channels, with values in [0, 255]. Alpha is dropped.
func ReadRGB(path string) (*images.Raster, error) {
	return readRaster(path, 3)
}

// ReadGray reads an image file and returns its luminance as a single channel raster, with values in [0, 255].
func ReadGray(path string) (*images.Raster, error) {
	return readRaster(path, 1)
}

func readRaster(path string, channels int) (*images.Raster, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image from %q", path)
	}
	return images.FromImage(img, channels), nil
}

// SaveRaster saves a raster with values in [0, 255] to path, the format is taken from the extension.
// Masks with values in {0, 1} should be scaled first.
func SaveRaster(r *images.Raster, path string) error {
	if err := imaging.Save(r.ToImage(), path); err != nil {
		return errors.Wrapf(err, "failed to save image to %q", path)
	}
	return nil
}
