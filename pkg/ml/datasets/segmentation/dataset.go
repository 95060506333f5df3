// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segmentation

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/gomlx/segmentation/pkg/core/tensors"
	"github.com/gomlx/segmentation/pkg/core/tensors/images"
	"github.com/gomlx/segmentation/pkg/ml/datasets/augment"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Dataset of image/mask samples with random access.
//
// Get returns the image and the mask of the sample transformed by the dataset augmentation pipeline,
// converted to tensors. Implementations are safe for concurrent use.
type Dataset interface {
	// Name of the dataset, e.g.: "inria-train".
	Name() string

	// Len returns the number of samples.
	Len() int

	// Get returns the sample at index, with 0 <= index < Len().
	Get(index int) (image, mask *tensors.Tensor, err error)
}

// augmenter holds what is common to all datasets: the pipeline applied to every sample, the dtype of the
// returned tensors, and the source of randomness of the pipeline.
type augmenter struct {
	name     string
	pipeline augment.Stage
	dtype    dtypes.DType

	mu  sync.Mutex
	rng *rand.Rand
}

func newAugmenter(name string, pipeline augment.Stage, dtype dtypes.DType) *augmenter {
	if dtype == dtypes.InvalidDType {
		dtype = dtypes.Float32
	}
	return &augmenter{
		name:     name,
		pipeline: pipeline,
		dtype:    dtype,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements Dataset.
func (a *augmenter) Name() string { return a.name }

// Pipeline returns the augmentation pipeline applied to each sample.
func (a *augmenter) Pipeline() augment.Stage { return a.pipeline }

// Seed resets the source of randomness of the augmentation pipeline.
// By default, it is seeded with the current time.
func (a *augmenter) Seed(seed int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rng = rand.New(rand.NewSource(seed))
}

// transform applies the pipeline to img and mask, which must be owned by the caller, and converts the
// results to tensors.
func (a *augmenter) transform(img, mask *images.Raster) (imageT, maskT *tensors.Tensor, err error) {
	// Each call gets its own rng, so the pipeline can run concurrently.
	a.mu.Lock()
	rng := rand.New(rand.NewSource(a.rng.Int63()))
	a.mu.Unlock()
	err = exceptions.TryCatch[error](func() {
		img, mask = a.pipeline.Apply(rng, img, mask)
		toTensor := images.ToTensor(a.dtype)
		imageT = toTensor.Single(img)
		maskT = toTensor.Single(mask)
	})
	if err != nil {
		err = errors.WithMessagef(err, "dataset %q failed to transform sample", a.name)
	}
	return
}

func checkIndex(ds Dataset, index int) error {
	if index < 0 || index >= ds.Len() {
		return errors.Errorf("dataset %q: index %d out of range [0, %d)", ds.Name(), index, ds.Len())
	}
	return nil
}

func checkSameSize(img, mask *images.Raster, what string) error {
	if img.Height != mask.Height || img.Width != mask.Width {
		return errors.Errorf("%s: image is %dx%d but mask is %dx%d", what,
			img.Width, img.Height, mask.Width, mask.Height)
	}
	return nil
}

// ImageMaskDataset reads image/mask pairs from disk each time a sample is requested, unless CacheInRAM
// is called.
type ImageMaskDataset struct {
	*augmenter
	pairs                   []Pair
	imageReader, maskReader ReadFunc

	// cache of raw rasters, if CacheInRAM was called.
	cacheImages, cacheMasks []*images.Raster
}

var _ Dataset = (*ImageMaskDataset)(nil)

// NewImageMaskDataset creates a dataset over pairs, reading images with imageReader and masks with maskReader,
// and transforming them with pipeline. Tensors are created with the given dtype.
func NewImageMaskDataset(name string, pairs []Pair, imageReader, maskReader ReadFunc,
	pipeline augment.Stage, dtype dtypes.DType) *ImageMaskDataset {
	return &ImageMaskDataset{
		augmenter:   newAugmenter(name, pipeline, dtype),
		pairs:       pairs,
		imageReader: imageReader,
		maskReader:  maskReader,
	}
}

// Len implements Dataset.
func (ds *ImageMaskDataset) Len() int { return len(ds.pairs) }

// Pairs returns the files of the dataset. It shouldn't be modified.
func (ds *ImageMaskDataset) Pairs() []Pair { return ds.pairs }

// Get implements Dataset.
func (ds *ImageMaskDataset) Get(index int) (image, mask *tensors.Tensor, err error) {
	if err = checkIndex(ds, index); err != nil {
		return
	}
	img, maskRaster, err := ds.raw(index)
	if err != nil {
		return
	}
	return ds.transform(img, maskRaster)
}

// raw returns the sample before augmentation.
func (ds *ImageMaskDataset) raw(index int) (img, mask *images.Raster, err error) {
	if ds.cacheImages != nil {
		return ds.cacheImages[index].Clone(), ds.cacheMasks[index].Clone(), nil
	}
	pair := ds.pairs[index]
	img, err = ds.imageReader(pair.Image)
	if err != nil {
		return
	}
	mask, err = ds.maskReader(pair.Mask)
	if err != nil {
		return
	}
	err = checkSameSize(img, mask, fmt.Sprintf("pair (%q, %q)", pair.Image, pair.Mask))
	return
}

// CacheInRAM reads all the samples into memory, so Get no longer reads from disk.
// If showProgress is true, it displays a progress bar while reading.
func (ds *ImageMaskDataset) CacheInRAM(showProgress bool) error {
	cacheImages := make([]*images.Raster, len(ds.pairs))
	cacheMasks := make([]*images.Raster, len(ds.pairs))
	var pbar *progressbar.ProgressBar
	if showProgress {
		pbar = progressbar.Default(int64(len(ds.pairs)), fmt.Sprintf("Reading %s", ds.name))
	}
	var memory uint64
	for ii := range ds.pairs {
		var err error
		cacheImages[ii], cacheMasks[ii], err = ds.raw(ii)
		if err != nil {
			return err
		}
		memory += rasterMemory(cacheImages[ii]) + rasterMemory(cacheMasks[ii])
		if pbar != nil {
			_ = pbar.Add(1)
		}
	}
	if pbar != nil {
		_ = pbar.Finish()
	}
	ds.cacheImages, ds.cacheMasks = cacheImages, cacheMasks
	klog.V(1).Infof("Dataset %q: cached %s samples, %s in RAM", ds.name,
		humanize.Comma(int64(len(ds.pairs))), humanize.Bytes(memory))
	return nil
}

func rasterMemory(r *images.Raster) uint64 {
	return uint64(len(r.Pix)) * 4
}

// RawDataset holds the images and masks in memory.
type RawDataset struct {
	*augmenter
	images, masks []*images.Raster
}

var _ Dataset = (*RawDataset)(nil)

// NewRawDataset creates a dataset over in-memory images and masks, transforming them with pipeline.
// Tensors are created with the given dtype.
//
// The rasters are not modified: Get transforms copies of them.
func NewRawDataset(name string, imgs, masks []*images.Raster, pipeline augment.Stage, dtype dtypes.DType) (*RawDataset, error) {
	if len(imgs) != len(masks) {
		return nil, errors.Wrapf(ErrMismatchedPairCount, "dataset %q has %d images and %d masks",
			name, len(imgs), len(masks))
	}
	for ii := range imgs {
		if err := checkSameSize(imgs[ii], masks[ii], fmt.Sprintf("dataset %q, sample #%d", name, ii)); err != nil {
			return nil, err
		}
	}
	return &RawDataset{
		augmenter: newAugmenter(name, pipeline, dtype),
		images:    imgs,
		masks:     masks,
	}, nil
}

// Len implements Dataset.
func (ds *RawDataset) Len() int { return len(ds.images) }

// Get implements Dataset.
func (ds *RawDataset) Get(index int) (image, mask *tensors.Tensor, err error) {
	if err = checkIndex(ds, index); err != nil {
		return
	}
	return ds.transform(ds.images[index].Clone(), ds.masks[index].Clone())
}

// Memory returns the memory used by the rasters of the dataset, in bytes.
func (ds *RawDataset) Memory() uint64 {
	var memory uint64
	for ii := range ds.images {
		memory += rasterMemory(ds.images[ii]) + rasterMemory(ds.masks[ii])
	}
	return memory
}

// Unaugmented returns a dataset with the same samples as ds, without augmentation: the images keep
// their original size and values in [0, 255], only moved to the `[channels, height, width]` layout.
// It is used to measure statistics of the data, e.g. with datasets.Normalization.
func Unaugmented(ds Dataset) (Dataset, error) {
	pipeline := augment.Sequential(augment.ToTensors())
	switch typed := ds.(type) {
	case *ImageMaskDataset:
		raw := NewImageMaskDataset(typed.name+"-unaugmented", typed.pairs, typed.imageReader, typed.maskReader,
			pipeline, dtypes.Float32)
		raw.cacheImages, raw.cacheMasks = typed.cacheImages, typed.cacheMasks
		return raw, nil
	case *RawDataset:
		return NewRawDataset(typed.name+"-unaugmented", typed.images, typed.masks, pipeline, dtypes.Float32)
	}
	return nil, errors.Errorf("Unaugmented: dataset %q of type %T not supported", ds.Name(), ds)
}
