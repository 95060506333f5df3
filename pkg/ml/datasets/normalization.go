/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package datasets

import (
	"io"
	"math"
	"slices"

	"github.com/gomlx/segmentation/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Normalization calculates the normalization parameters `mean` and `stddev` for the `inputsIndex`-th input
// from the given dataset.
//
// These values can later be used for normalization by simply applying `(x - mean) / stddev`.
//
// The parameter `independentAxes` list axes that should not be normalized together.
// For images in a `[batch, channels, height, width]` layout, a typical value is 1, so each channel gets its
// own normalization. The returned tensors have the rank of the input, with dimension 1 on the reduced axes.
// The other axes may vary in size from one batch to another (e.g.: images of different sizes), but not the
// independent axes.
//
// Notice for any feature that happens to be constant, the `stddev` will be 0. Use ReplaceZerosByOnes
// before dividing by it.
func Normalization(ds Dataset, inputsIndex int, independentAxes ...int) (mean, stddev *tensors.Tensor, err error) {
	var statsDims []int
	var sum, sumSquare, count []float64
	for batchNum := 0; ; batchNum++ {
		var inputs []*tensors.Tensor
		_, inputs, _, err = ds.Yield()
		if err == io.EOF {
			err = nil
			break
		}
		if err != nil {
			err = errors.WithMessagef(err, "while reading batch #%d of the dataset", batchNum)
			return
		}
		if inputsIndex >= len(inputs) {
			err = errors.Errorf("asked for inputsIndex=%d, but inputs has only %d elements",
				inputsIndex, len(inputs))
			return
		}
		batch := inputs[inputsIndex]
		if !batch.DType().IsFloat() {
			err = errors.Errorf("dataset input %d has invalid dtype (shape=%s): Normalization() only accepts float values.",
				inputsIndex, batch.Shape())
			return
		}
		dims := batch.Shape().Dimensions
		var isIndependent []bool
		isIndependent, err = independentAxesMask(len(dims), independentAxes)
		if err != nil {
			return
		}
		batchStatsDims := make([]int, len(dims))
		for axis, dim := range dims {
			batchStatsDims[axis] = 1
			if isIndependent[axis] {
				batchStatsDims[axis] = dim
			}
		}
		if statsDims == nil {
			statsDims = batchStatsDims
			size := 1
			for _, dim := range statsDims {
				size *= dim
			}
			sum, sumSquare, count = make([]float64, size), make([]float64, size), make([]float64, size)
		} else if !slices.Equal(statsDims, batchStatsDims) {
			err = errors.Errorf("batch #%d has shape %s, incompatible with the previous batches on the independent axes %v",
				batchNum, batch.Shape(), independentAxes)
			return
		}
		accumulate(batch.Float64Values(), dims, isIndependent, statsDims, sum, sumSquare, count)
	}
	if statsDims == nil {
		err = errors.Errorf("dataset %q yielded no batches", ds.Name())
		return
	}

	meanValues := make([]float64, len(sum))
	stddevValues := make([]float64, len(sum))
	for ii := range sum {
		meanValues[ii] = sum[ii] / count[ii]
		variance := sumSquare[ii]/count[ii] - meanValues[ii]*meanValues[ii]
		stddevValues[ii] = math.Sqrt(max(variance, 0))
	}
	mean = tensors.FromFlatDataAndDimensions(meanValues, statsDims...)
	stddev = tensors.FromFlatDataAndDimensions(stddevValues, statsDims...)
	return
}

func independentAxesMask(rank int, independentAxes []int) ([]bool, error) {
	mask := make([]bool, rank)
	for _, axis := range independentAxes {
		adjusted := axis
		if adjusted < 0 {
			adjusted += rank
		}
		if adjusted < 0 || adjusted >= rank {
			return nil, errors.Errorf("independent axis %d out of range for input of rank %d", axis, rank)
		}
		mask[adjusted] = true
	}
	return mask, nil
}

// accumulate adds the values of a batch (with the given dims) to the statistics of the independent axes.
func accumulate(values []float64, dims []int, isIndependent []bool, statsDims []int, sum, sumSquare, count []float64) {
	rank := len(dims)
	statsStrides := make([]int, rank)
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		statsStrides[axis] = stride
		stride *= statsDims[axis]
	}
	position := make([]int, rank)
	for _, v := range values {
		statsIdx := 0
		for axis, idx := range position {
			if isIndependent[axis] {
				statsIdx += idx * statsStrides[axis]
			}
		}
		sum[statsIdx] += v
		sumSquare[statsIdx] += v * v
		count[statsIdx]++

		// Move to the next position, in row-major order.
		for axis := rank - 1; axis >= 0; axis-- {
			position[axis]++
			if position[axis] < dims[axis] {
				break
			}
			position[axis] = 0
		}
	}
}

// ReplaceZerosByOnes replaces, in place, any zero values in x by one.
// This is useful if normalizing a value with a standard deviation (`stddev`) that has zeros.
// x must be a Float64 tensor, as the ones returned by Normalization.
func ReplaceZerosByOnes(x *tensors.Tensor) {
	tensors.MustMutableFlatData(x, func(flat []float64) {
		for ii, v := range flat {
			if v == 0 {
				flat[ii] = 1
			}
		}
	})
}
