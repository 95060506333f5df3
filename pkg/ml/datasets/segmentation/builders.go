// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package segmentation builds train and test datasets for binary image segmentation.
//
// Each builder (INRIA, DSB2018, DSB2018Sliced) enumerates the image/mask pairs of a dataset layout,
// splits them in train and test with a fixed seed, and attaches an augmentation pipeline to each split.
// The datasets return (image, mask) tensors shaped `[channels, height, width]`; Loader batches them.
//
// Example:
//
//	cfg := segmentation.DefaultConfig()
//	cfg.DataDir = "~/work/datasets/inria"
//	train, test, numClasses, err := segmentation.Build("inria", cfg)
package segmentation

import (
	"github.com/gomlx/segmentation/pkg/ml/datasets/augment"
	"github.com/gomlx/segmentation/pkg/ml/datasets/split"
	"github.com/gomlx/segmentation/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NumClasses of all the builders: a single foreground class.
const NumClasses = 1

// Builder creates the train and test datasets and returns the number of classes of the masks.
type Builder func(cfg *Config) (train, test Dataset, numClasses int, err error)

// Builders registered by name, used by Build.
var Builders = map[string]Builder{
	"inria":          INRIA,
	"dsb2018":        DSB2018,
	"dsb2018_sliced": DSB2018Sliced,
}

// Build the datasets with the builder registered under name.
func Build(name string, cfg *Config) (train, test Dataset, numClasses int, err error) {
	builder, found := Builders[name]
	if !found {
		err = errors.Errorf("unknown dataset %q, valid values are %q", name, BuilderNames())
		return
	}
	return builder(cfg)
}

// INRIA builds the datasets of the INRIA aerial image labeling dataset: images in DataDir/images and
// building masks in DataDir/gt.
func INRIA(cfg *Config) (train, test Dataset, numClasses int, err error) {
	return buildFromFiles("inria", cfg, "images", "gt", inriaTrainPipeline, inriaTestPipeline)
}

// DSB2018 builds the datasets of the 2018 Data Science Bowl nuclei segmentation: images in DataDir/images
// and masks in DataDir/masks.
func DSB2018(cfg *Config) (train, test Dataset, numClasses int, err error) {
	return buildFromFiles("dsb2018", cfg, "images", "masks", dsb2018TrainPipeline, dsb2018TestPipeline)
}

func inriaGrayscaleProbability(cfg *Config) float64 {
	if cfg.Grayscale {
		return 1.0
	}
	return 0.5
}

// normalize returns the NormalizeImage stage with the statistics of the configuration, ImageNet's by default.
func normalize(cfg *Config) augment.Stage {
	if len(cfg.NormalizeMean) == 0 {
		return augment.NormalizeImage()
	}
	return augment.NormalizeImage(cfg.NormalizeMean, cfg.NormalizeStd)
}

func inriaTrainPipeline(cfg *Config) *augment.Pipeline {
	return augment.Sequential(
		augment.RandomCrop(cfg.PatchSize),
		augment.ImageOnly(augment.RandomGrayscale(inriaGrayscaleProbability(cfg))),
		augment.ImageOnly(augment.RandomInvert()),
		augment.ImageOnly(normalize(cfg)),
		augment.ImageOnly(augment.RandomBrightness()),
		augment.ImageOnly(augment.RandomContrast()),
		augment.VerticalFlip(),
		augment.HorizontalFlip(),
		augment.ShiftScaleRotate(),
		augment.MaskOnly(augment.MakeBinary()),
		augment.ToTensors())
}

func inriaTestPipeline(cfg *Config) *augment.Pipeline {
	return augment.Sequential(
		augment.CenterCrop(cfg.PatchSize, cfg.PatchSize),
		augment.ImageOnly(augment.RandomGrayscale(inriaGrayscaleProbability(cfg))),
		augment.ImageOnly(normalize(cfg)),
		augment.MaskOnly(augment.MakeBinary()),
		augment.ToTensors())
}

func dsb2018TrainPipeline(cfg *Config) *augment.Pipeline {
	return augment.Sequential(
		augment.RandomCrop(cfg.PatchSize),
		augment.ImageOnly(normalize(cfg)),
		augment.MaskOnly(augment.MakeBinary()),
		augment.ToTensors())
}

func dsb2018TestPipeline(cfg *Config) *augment.Pipeline {
	return augment.Sequential(
		augment.CenterCrop(cfg.PatchSize, cfg.PatchSize),
		augment.ImageOnly(normalize(cfg)),
		augment.MaskOnly(augment.MakeBinary()),
		augment.ToTensors())
}

func dsb2018SlicedTrainPipeline(cfg *Config) *augment.Pipeline {
	return augment.Sequential(
		augment.ImageOnly(normalize(cfg)),
		augment.RandomRotate90(),
		augment.VerticalFlip(),
		augment.HorizontalFlip(),
		augment.ShiftScaleRotate(augment.WithRotateLimit(15)),
		augment.MaskOnly(augment.MakeBinary()),
		augment.ToTensors())
}

func dsb2018SlicedTestPipeline(cfg *Config) *augment.Pipeline {
	return augment.Sequential(
		augment.ImageOnly(normalize(cfg)),
		augment.MaskOnly(augment.MakeBinary()),
		augment.ToTensors())
}

// SplitPairs returns the files of the train and test datasets that the file based builders (INRIA and DSB2018)
// would use, given the configuration.
func SplitPairs(cfg *Config, imagesDir, masksDir string) (trainPairs, testPairs []Pair, err error) {
	dataDir, err := cfg.validate()
	if err != nil {
		return
	}
	pairs, err := FindPairs(dataDir, imagesDir, masksDir)
	if err != nil {
		return
	}
	trainIdx, testIdx, err := split.TrainTest(len(pairs), cfg.TestFraction, cfg.Seed)
	if err != nil {
		err = errors.WithMessagef(err, "splitting %d pairs in %q", len(pairs), dataDir)
		return
	}
	return split.Select(pairs, trainIdx), split.Select(pairs, testIdx), nil
}

func buildFromFiles(name string, cfg *Config, imagesDir, masksDir string,
	trainPipeline, testPipeline func(cfg *Config) *augment.Pipeline) (train, test Dataset, numClasses int, err error) {
	trainPairs, testPairs, err := SplitPairs(cfg, imagesDir, masksDir)
	if err != nil {
		err = errors.WithMessagef(err, "building dataset %q", name)
		return
	}
	trainDS := NewImageMaskDataset(name+"-train", trainPairs, ReadRGB, ReadGray, trainPipeline(cfg), cfg.DType)
	testDS := NewImageMaskDataset(name+"-test", testPairs, ReadRGB, ReadGray, testPipeline(cfg), cfg.DType)
	for ii, ds := range []*ImageMaskDataset{trainDS, testDS} {
		if cfg.AugmentationSeed != 0 {
			ds.Seed(cfg.AugmentationSeed + int64(ii))
		}
		if cfg.CacheInRAM {
			if err = ds.CacheInRAM(cfg.ShowProgress); err != nil {
				err = errors.WithMessagef(err, "building dataset %q", name)
				return
			}
		}
	}
	klog.V(1).Infof("Dataset %q: %d train and %d test samples", name, trainDS.Len(), testDS.Len())
	return trainDS, testDS, NumClasses, nil
}

// DSB2018Sliced builds the datasets of the 2018 Data Science Bowl from patches: all images (DataDir/images)
// and masks (DataDir/masks) are read into memory and sliced in patches of PatchSize, overlapping by half a patch.
//
// The patches are split in train and test stratified by source image, so every image contributes to both.
// Hence, every image must yield at least 2 patches, or it fails with split.ErrDegenerateStratum.
func DSB2018Sliced(cfg *Config) (train, test Dataset, numClasses int, err error) {
	patches, err := LoadPatches(cfg, "images", "masks")
	if err != nil {
		err = errors.WithMessage(err, "building dataset \"dsb2018_sliced\"")
		return
	}
	trainPatches, testPatches, err := SplitPatches(patches, cfg.TestFraction, cfg.Seed)
	if err != nil {
		err = errors.WithMessage(err, "building dataset \"dsb2018_sliced\"")
		return
	}
	trainDS, err := NewRawDataset("dsb2018_sliced-train", patchImages(trainPatches), patchMasks(trainPatches),
		dsb2018SlicedTrainPipeline(cfg), cfg.DType)
	if err != nil {
		return
	}
	testDS, err := NewRawDataset("dsb2018_sliced-test", patchImages(testPatches), patchMasks(testPatches),
		dsb2018SlicedTestPipeline(cfg), cfg.DType)
	if err != nil {
		return
	}
	if cfg.AugmentationSeed != 0 {
		trainDS.Seed(cfg.AugmentationSeed)
		testDS.Seed(cfg.AugmentationSeed + 1)
	}
	klog.V(1).Infof("Dataset \"dsb2018_sliced\": %d train and %d test patches", trainDS.Len(), testDS.Len())
	return trainDS, testDS, NumClasses, nil
}

// DescribePipeline returns the description of each stage of the augmentation pipeline of ds, if it has one.
func DescribePipeline(ds Dataset) []string {
	withPipeline, ok := ds.(interface{ Pipeline() augment.Stage })
	if !ok {
		return nil
	}
	if pipeline, ok := withPipeline.Pipeline().(*augment.Pipeline); ok {
		return xslices.Map(pipeline.Stages(), augment.Describe)
	}
	return []string{augment.Describe(withPipeline.Pipeline())}
}

// BuilderNames returns the names of the registered builders, sorted.
func BuilderNames() []string {
	return xslices.SortedKeys(Builders)
}
