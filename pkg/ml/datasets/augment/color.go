// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package augment

import (
	"fmt"
	"math/rand"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/segmentation/pkg/core/tensors/images"
)

// Luminance weights used to convert RGB to gray, the same used by images.FromImage.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// ImageNet statistics, the defaults of NormalizeImage.
var (
	ImageNetMean = []float32{0.485, 0.456, 0.406}
	ImageNetStd  = []float32{0.229, 0.224, 0.225}
)

// MaxPixelValue is the value of a saturated channel in images read from disk.
const MaxPixelValue = 255.0

type grayscaleStage struct{ probability float64 }

// RandomGrayscale replaces, with probability p, the RGB channels of the image by their luminance.
// The image keeps its 3 channels. Images with one channel are not changed.
func RandomGrayscale(p float64) Stage { return grayscaleStage{probability: p} }

// Apply implements Stage.
func (s grayscaleStage) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if img == nil || !fires(rng, s.probability) || img.Channels != 3 {
		return img, mask
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			gray := lumaR*img.At(y, x, 0) + lumaG*img.At(y, x, 1) + lumaB*img.At(y, x, 2)
			for c := range 3 {
				img.Set(y, x, c, gray)
			}
		}
	}
	return img, mask
}

func (s grayscaleStage) String() string { return fmt.Sprintf("RandomGrayscale(p=%g)", s.probability) }

type invertStage struct{ probability float64 }

// RandomInvert replaces, with probability 0.5 (see WithProbability), every value v of the image by 255-v.
// It must come before NormalizeImage.
func RandomInvert(opts ...Option) Stage {
	p := newParams(params{probability: 0.5}, opts)
	return invertStage{probability: p.probability}
}

// Apply implements Stage.
func (s invertStage) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if img == nil || !fires(rng, s.probability) {
		return img, mask
	}
	for ii, v := range img.Pix {
		img.Pix[ii] = MaxPixelValue - v
	}
	return img, mask
}

func (s invertStage) String() string { return fmt.Sprintf("RandomInvert(p=%g)", s.probability) }

type normalizeStage struct {
	mean, std []float32
}

// NormalizeImage maps every value v of channel c of the image to (v/255 - mean[c]) / std[c].
//
// Without arguments it uses ImageNetMean and ImageNetStd. Otherwise mean and std must be given together,
// with one value per channel, or a single value used for all channels.
func NormalizeImage(meanAndStd ...[]float32) Stage {
	switch len(meanAndStd) {
	case 0:
		return normalizeStage{mean: ImageNetMean, std: ImageNetStd}
	case 2:
		mean, std := meanAndStd[0], meanAndStd[1]
		if len(mean) == 0 || len(mean) != len(std) {
			exceptions.Panicf("augment.NormalizeImage: mean (%d values) and std (%d values) must have the same "+
				"non-zero length", len(mean), len(std))
		}
		for _, s := range std {
			if s == 0 {
				exceptions.Panicf("augment.NormalizeImage: std values must be non-zero, got %v", std)
			}
		}
		return normalizeStage{mean: mean, std: std}
	}
	exceptions.Panicf("augment.NormalizeImage: takes either no arguments or mean and std, got %d arguments",
		len(meanAndStd))
	return nil
}

// Apply implements Stage.
func (s normalizeStage) Apply(_ *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if img == nil {
		return img, mask
	}
	if len(s.mean) != 1 && len(s.mean) < img.Channels {
		exceptions.Panicf("%s: image has %d channels, but only %d mean/std values were given",
			s, img.Channels, len(s.mean))
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for c := 0; c < img.Channels; c++ {
				mean, std := s.channelStats(c)
				idx := img.Index(y, x, c)
				img.Pix[idx] = (img.Pix[idx]/MaxPixelValue - mean) / std
			}
		}
	}
	return img, mask
}

func (s normalizeStage) channelStats(channel int) (mean, std float32) {
	if len(s.mean) == 1 {
		return s.mean[0], s.std[0]
	}
	return s.mean[channel], s.std[channel]
}

func (s normalizeStage) String() string { return fmt.Sprintf("NormalizeImage(mean=%v, std=%v)", s.mean, s.std) }

type brightnessStage struct{ probability, limit float64 }

// RandomBrightness multiplies, with probability 0.5, the image by a factor drawn uniformly from
// [1-limit, 1+limit], with limit=0.2 by default (see WithProbability and WithLimit).
func RandomBrightness(opts ...Option) Stage {
	p := newParams(params{probability: 0.5, limit: 0.2}, opts)
	return brightnessStage{probability: p.probability, limit: p.limit}
}

// Apply implements Stage.
func (s brightnessStage) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if img == nil || !fires(rng, s.probability) {
		return img, mask
	}
	alpha := float32(1 + uniform(rng, -s.limit, s.limit))
	for ii, v := range img.Pix {
		img.Pix[ii] = alpha * v
	}
	return img, mask
}

func (s brightnessStage) String() string {
	return fmt.Sprintf("RandomBrightness(limit=%g, p=%g)", s.limit, s.probability)
}

type contrastStage struct{ probability, limit float64 }

// RandomContrast blends, with probability 0.5, the image with its mean gray level:
// v = alpha*v + (1-alpha)*meanGray, with alpha drawn uniformly from [1-limit, 1+limit] and limit=0.2
// by default (see WithProbability and WithLimit).
func RandomContrast(opts ...Option) Stage {
	p := newParams(params{probability: 0.5, limit: 0.2}, opts)
	return contrastStage{probability: p.probability, limit: p.limit}
}

// Apply implements Stage.
func (s contrastStage) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if img == nil || !fires(rng, s.probability) {
		return img, mask
	}
	alpha := float32(1 + uniform(rng, -s.limit, s.limit))
	offset := (1 - alpha) * meanGray(img)
	for ii, v := range img.Pix {
		img.Pix[ii] = alpha*v + offset
	}
	return img, mask
}

func (s contrastStage) String() string {
	return fmt.Sprintf("RandomContrast(limit=%g, p=%g)", s.limit, s.probability)
}

// meanGray returns the mean luminance of an RGB image, or the mean value for other number of channels.
func meanGray(img *images.Raster) float32 {
	numPixels := img.Height * img.Width
	if numPixels == 0 {
		return 0
	}
	var sum float64
	if img.Channels == 3 {
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				sum += float64(lumaR*img.At(y, x, 0) + lumaG*img.At(y, x, 1) + lumaB*img.At(y, x, 2))
			}
		}
		return float32(sum / float64(numPixels))
	}
	for _, v := range img.Pix {
		sum += float64(v)
	}
	return float32(sum / float64(len(img.Pix)))
}
