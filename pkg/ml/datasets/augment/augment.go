// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package augment implements data augmentation for image segmentation: transformations applied jointly
// to an image and its mask, composed into ordered pipelines.
//
// Each Stage takes the image and the mask rasters and returns the transformed pair. Stages are stateless:
// any randomness (crop offset, flip decision, rotation angle, brightness delta, ...) is drawn from the
// *rand.Rand given to each call. Stages may modify the given rasters in place, so callers should pass
// rasters they own.
//
// Spatial stages (crops, flips, rotations) apply the same transformation to the image and the mask.
// Photometric stages (grayscale, normalization, brightness, ...) only transform the image, and
// MakeBinary only transforms the mask. Wrap a stage with ImageOnly or MaskOnly to restrict it to one
// of the two rasters.
//
// Example:
//
//	pipeline := augment.Sequential(
//		augment.RandomCrop(256),
//		augment.ImageOnly(augment.NormalizeImage()),
//		augment.HorizontalFlip(),
//		augment.MaskOnly(augment.MakeBinary()),
//		augment.ToTensors())
//	img, mask = pipeline.Apply(rng, img, mask)
package augment

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/gomlx/segmentation/pkg/core/tensors/images"
)

// Stage of an augmentation pipeline.
//
// Either img or mask can be nil, in which case the stage only transforms the other one.
type Stage interface {
	Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster)
}

// StageFunc adapts a function to a Stage.
type StageFunc func(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster)

// Apply implements Stage.
func (fn StageFunc) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	return fn(rng, img, mask)
}

// String implements fmt.Stringer.
func (fn StageFunc) String() string { return "StageFunc" }

// Pipeline applies its stages in order, threading the image and mask through each of them.
type Pipeline struct {
	stages []Stage
}

// Sequential creates a Pipeline with the given stages. A Pipeline is itself a Stage, so they can be nested.
func Sequential(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the stages of the pipeline. It shouldn't be modified.
func (p *Pipeline) Stages() []Stage { return p.stages }

// Apply implements Stage.
func (p *Pipeline) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	for _, stage := range p.stages {
		img, mask = stage.Apply(rng, img, mask)
	}
	return img, mask
}

// String lists the stages, e.g.: "Sequential(RandomCrop(256x256), ToTensors)".
func (p *Pipeline) String() string {
	parts := make([]string, len(p.stages))
	for ii, stage := range p.stages {
		parts[ii] = Describe(stage)
	}
	return fmt.Sprintf("Sequential(%s)", strings.Join(parts, ", "))
}

// Describe returns the description of the stage, its String method if it has one.
func Describe(stage Stage) string {
	if s, ok := stage.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", stage)
}

type imageOnly struct{ stage Stage }

// ImageOnly restricts stage to the image: the mask is passed through unchanged.
func ImageOnly(stage Stage) Stage { return imageOnly{stage} }

// Apply implements Stage.
func (s imageOnly) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if img != nil {
		img, _ = s.stage.Apply(rng, img, nil)
	}
	return img, mask
}

func (s imageOnly) String() string { return fmt.Sprintf("ImageOnly(%s)", Describe(s.stage)) }

type maskOnly struct{ stage Stage }

// MaskOnly restricts stage to the mask: the image is passed through unchanged.
func MaskOnly(stage Stage) Stage { return maskOnly{stage} }

// Apply implements Stage.
func (s maskOnly) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if mask != nil {
		_, mask = s.stage.Apply(rng, nil, mask)
	}
	return img, mask
}

func (s maskOnly) String() string { return fmt.Sprintf("MaskOnly(%s)", Describe(s.stage)) }

// fires draws whether a stage with probability p is applied. It doesn't consume randomness for p <= 0 or p >= 1.
func fires(rng *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}

// uniform returns a value uniformly drawn in [low, high).
func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}

// referenceSize returns the height and width of the first non-nil raster.
func referenceSize(img, mask *images.Raster) (height, width int, ok bool) {
	switch {
	case img != nil:
		return img.Height, img.Width, true
	case mask != nil:
		return mask.Height, mask.Width, true
	}
	return 0, 0, false
}

// params holds the configurable parameters of the random stages. Each stage only uses the ones it needs.
type params struct {
	probability float64
	limit       float64
	shiftLimit  float64
	scaleLimit  float64
	rotateLimit float64
}

// Option configures non-default parameters of a stage.
type Option func(p *params)

// WithProbability sets the probability of the stage being applied to each sample.
func WithProbability(p float64) Option {
	return func(prm *params) { prm.probability = p }
}

// WithLimit sets the maximum relative change of RandomBrightness and RandomContrast:
// the factor is drawn uniformly from [1-limit, 1+limit].
func WithLimit(limit float64) Option {
	return func(prm *params) { prm.limit = limit }
}

// WithShiftLimit sets the maximum shift of ShiftScaleRotate, as a fraction of the image size.
func WithShiftLimit(limit float64) Option {
	return func(prm *params) { prm.shiftLimit = limit }
}

// WithScaleLimit sets the maximum scale change of ShiftScaleRotate: the scale is drawn from [1-limit, 1+limit].
func WithScaleLimit(limit float64) Option {
	return func(prm *params) { prm.scaleLimit = limit }
}

// WithRotateLimit sets the maximum rotation of ShiftScaleRotate, in degrees.
func WithRotateLimit(degrees float64) Option {
	return func(prm *params) { prm.rotateLimit = degrees }
}

func newParams(defaults params, opts []Option) params {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}
