// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segmentation

import (
	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/gomlx/segmentation/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// Config of the dataset builders.
type Config struct {
	// DataDir is the root directory of the dataset. A leading "~" is replaced by the user home directory.
	DataDir string

	// Grayscale makes the INRIA pipelines always convert the images to gray.
	Grayscale bool

	// PatchSize is the height and width of the samples.
	PatchSize int

	// Seed used to split the samples in train and test.
	Seed int64

	// TestFraction is the fraction of the samples (rounded up) assigned to the test split.
	TestFraction float64

	// DType of the tensors returned by the datasets. It must be a float dtype, since images are normalized.
	DType dtypes.DType

	// NormalizeMean and NormalizeStd, if set, replace the ImageNet statistics used to normalize the images.
	// They must be set together.
	NormalizeMean, NormalizeStd []float32

	// AugmentationSeed, if not zero, seeds the augmentation pipelines, so the samples are reproducible.
	// Otherwise, they are seeded with the current time.
	AugmentationSeed int64

	// CacheInRAM makes the file based datasets read all the samples into memory when built.
	CacheInRAM bool

	// ShowProgress displays progress bars while reading images into memory.
	ShowProgress bool
}

// DefaultConfig returns the default configuration: patches of 256x256 split 90/10 with seed 1234,
// with float32 tensors.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      "~/work/datasets",
		PatchSize:    256,
		Seed:         1234,
		TestFraction: 0.1,
		DType:        dtypes.Float32,
	}
}

// validate checks the configuration and returns the DataDir with "~" expanded.
func (cfg *Config) validate() (dataDir string, err error) {
	if cfg.PatchSize <= 0 {
		return "", errors.Errorf("invalid PatchSize %d, it must be > 0", cfg.PatchSize)
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		return "", errors.Errorf("invalid TestFraction %g, it must be in (0, 1)", cfg.TestFraction)
	}
	if !cfg.DType.IsSupported() {
		return "", errors.Errorf("unsupported DType %s", cfg.DType)
	}
	if !cfg.DType.IsFloat() {
		return "", errors.Errorf("DType %s can't hold normalized images, use a float dtype", cfg.DType)
	}
	if (len(cfg.NormalizeMean) == 0) != (len(cfg.NormalizeStd) == 0) ||
		(len(cfg.NormalizeMean) > 0 && len(cfg.NormalizeMean) != len(cfg.NormalizeStd)) {
		return "", errors.Errorf("NormalizeMean (%v) and NormalizeStd (%v) must be set together, with the same length",
			cfg.NormalizeMean, cfg.NormalizeStd)
	}
	for _, std := range cfg.NormalizeStd {
		if std == 0 {
			return "", errors.Errorf("NormalizeStd (%v) can't have zeros", cfg.NormalizeStd)
		}
	}
	dataDir, err = fsutil.ReplaceTildeInDir(cfg.DataDir)
	if err != nil {
		return "", err
	}
	if dataDir == "" {
		return "", errors.New("DataDir not set")
	}
	return dataDir, nil
}
