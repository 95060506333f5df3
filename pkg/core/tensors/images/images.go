// Package images provides several functions to transform images back and
// forth from tensors, using Raster as the intermediary float representation
// where augmentations happen.
package images

import (
	"image"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/gomlx/segmentation/pkg/core/shapes"
	"github.com/gomlx/segmentation/pkg/core/tensors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// ChannelsAxisConfig indicates if a tensor with an image has the channel axis
// coming last (last axis) or first (first axis after batch axis).
type ChannelsAxisConfig uint8

const (
	ChannelsLast ChannelsAxisConfig = iota
	ChannelsFirst
)

// String implements fmt.Stringer.
func (c ChannelsAxisConfig) String() string {
	switch c {
	case ChannelsFirst:
		return "ChannelsFirst"
	case ChannelsLast:
		return "ChannelsLast"
	}
	return "ChannelsAxisConfig(invalid)"
}

// GetChannelsAxis from a given image tensor and configuration. It assumes the
// leading axis is for the batch dimension. So it either returns 1 or
// `image.Rank()-1`.
func GetChannelsAxis(image shapes.HasShape, config ChannelsAxisConfig) int {
	switch config {
	case ChannelsFirst:
		return 1
	case ChannelsLast:
		return image.Shape().Rank() - 1
	default:
		klog.Errorf("GetChannelsAxis(image, %s): invalid ChannelsAxisConfig!?", config)
		return -1
	}
}

// ToTensorConfig holds the configuration returned by the ToTensor function. Once
// configured, use Single or Batch to actually convert.
type ToTensorConfig struct {
	maxValue float64
	dtype    dtypes.DType
}

// ToTensor converts a Raster (or batch of them) to a tensor.
//
// Values are copied as they are by default: rasters are expected to be normalized already.
// Use MaxValue to rescale from the [0, 255] range.
//
// The tensor axes follow the raster layout: `[height, width, channels]` for ChannelsLast and
// `[channels, height, width]` for ChannelsFirst.
func ToTensor(dtype dtypes.DType) *ToTensorConfig {
	if !dtype.IsSupported() {
		exceptions.Panicf("images.ToTensor(%s): unsupported dtype", dtype)
	}
	return &ToTensorConfig{dtype: dtype}
}

// MaxValue rescales the raster values from [0, 255] to [0, v].
// Zero (the default) disables rescaling.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) MaxValue(v float64) *ToTensorConfig {
	tt.maxValue = v
	return tt
}

// Single converts the given raster to a rank-3 tensor.
func (tt *ToTensorConfig) Single(r *Raster) *tensors.Tensor {
	return tt.convert([]*Raster{r}, false)
}

// Batch converts the given rasters to a rank-4 tensor, with the batch as the leading axis.
// All rasters must have the same dimensions and layout, it panics otherwise.
func (tt *ToTensorConfig) Batch(rasters []*Raster) *tensors.Tensor {
	if len(rasters) == 0 {
		exceptions.Panicf("images.ToTensor().Batch() requires at least one raster")
	}
	return tt.convert(rasters, true)
}

func (tt *ToTensorConfig) convert(rasters []*Raster, batch bool) *tensors.Tensor {
	first := rasters[0]
	dims := rasterDims(first)
	if batch {
		dims = append([]int{len(rasters)}, dims...)
	}
	for ii, r := range rasters {
		if r.Height != first.Height || r.Width != first.Width || r.Channels != first.Channels || r.Layout != first.Layout {
			exceptions.Panicf("raster[%d] has dimensions %v (%s), but raster[0] has %v (%s) -- they must all be the same",
				ii, rasterDims(r), r.Layout, rasterDims(first), first.Layout)
		}
	}
	t := tensors.FromShape(shapes.Make(tt.dtype, dims...))
	scale := float32(1)
	if tt.maxValue != 0 {
		scale = float32(tt.maxValue / 255.0)
	}
	switch tt.dtype {
	case dtypes.Uint8:
		tensors.MustMutableFlatData(t, func(flat []uint8) {
			fillFlat(flat, rasters, func(v float32) uint8 {
				v *= scale
				if v <= 0 {
					return 0
				}
				if v >= 255 {
					return 255
				}
				return uint8(v + 0.5)
			})
		})
	case dtypes.Float16:
		tensors.MustMutableFlatData(t, func(flat []float16.Float16) {
			fillFlat(flat, rasters, func(v float32) float16.Float16 { return float16.Fromfloat32(v * scale) })
		})
	case dtypes.Float32:
		tensors.MustMutableFlatData(t, func(flat []float32) {
			fillFlat(flat, rasters, func(v float32) float32 { return v * scale })
		})
	case dtypes.Float64:
		tensors.MustMutableFlatData(t, func(flat []float64) {
			fillFlat(flat, rasters, func(v float32) float64 { return float64(v * scale) })
		})
	}
	return t
}

func fillFlat[T dtypes.Supported](flat []T, rasters []*Raster, convertFn func(v float32) T) {
	pos := 0
	for _, r := range rasters {
		for _, v := range r.Pix {
			flat[pos] = convertFn(v)
			pos++
		}
	}
	if pos != len(flat) {
		exceptions.Panicf("images.ToTensor failed to set the values for all pixels (%d written out of %d)",
			pos, len(flat))
	}
}

func rasterDims(r *Raster) []int {
	if r.Layout == ChannelsFirst {
		return []int{r.Channels, r.Height, r.Width}
	}
	return []int{r.Height, r.Width, r.Channels}
}

// ToRaster converts a rank-3 tensor back to a raster, interpreting its axes according to layout.
func ToRaster(t *tensors.Tensor, layout ChannelsAxisConfig) *Raster {
	if t.Rank() != 3 {
		exceptions.Panicf("images.ToRaster requires a rank-3 tensor, got shape %s", t.Shape())
	}
	dims := t.Shape().Dimensions
	r := &Raster{Layout: layout}
	if layout == ChannelsFirst {
		r.Channels, r.Height, r.Width = dims[0], dims[1], dims[2]
	} else {
		r.Height, r.Width, r.Channels = dims[0], dims[1], dims[2]
	}
	values := t.Float64Values()
	r.Pix = make([]float32, len(values))
	for ii, v := range values {
		r.Pix[ii] = float32(v)
	}
	return r
}

// TensorToImage converts a rank-3 tensor with values in [0, 255] to an image.
func TensorToImage(t *tensors.Tensor, layout ChannelsAxisConfig) image.Image {
	r := ToRaster(t, layout)
	if r.Layout == ChannelsFirst {
		r = r.toChannelsLast()
	}
	return r.ToImage()
}

func (r *Raster) toChannelsLast() *Raster {
	out := NewRaster(r.Height, r.Width, r.Channels)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			for c := 0; c < r.Channels; c++ {
				out.Set(y, x, c, r.At(y, x, c))
			}
		}
	}
	return out
}
