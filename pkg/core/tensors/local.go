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

package tensors

import (
	"fmt"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/gomlx/segmentation/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	t := &Tensor{shape: shape.Clone()}
	switch shape.DType {
	case dtypes.Uint8:
		t.flat = make([]uint8, shape.Size())
	case dtypes.Float16:
		t.flat = make([]float16.Float16, shape.Size())
	case dtypes.Float32:
		t.flat = make([]float32, shape.Size())
	case dtypes.Float64:
		t.flat = make([]float64, shape.Size())
	default:
		exceptions.Panicf("tensors.FromShape(%s): unsupported dtype", shape)
	}
	return t
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the
// flattened values given in `data`. The data is not copied, the tensor takes ownership of it.
//
// It panics if len(data) doesn't match the size given by the dimensions.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%d elements, %v): dimensions have size %d",
			len(data), dimensions, shape.Size())
	}
	return &Tensor{shape: shape, flat: data}
}

// ConstFlatData calls accessFn with the flat data of the tensor, as a slice of T.
// accessFn must not modify or keep a reference to the slice.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) error {
	if err := t.CheckValid(); err != nil {
		return err
	}
	flat, ok := t.flat.([]T)
	if !ok {
		return errors.Errorf("ConstFlatData[%s] called on tensor of dtype %s",
			dtypes.FromGenericsType[T](), t.DType())
	}
	accessFn(flat)
	return nil
}

// MustConstFlatData is like ConstFlatData, but panics on error.
func MustConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if err := ConstFlatData(t, accessFn); err != nil {
		panic(err)
	}
}

// MutableFlatData calls accessFn with the flat data of the tensor, as a slice of T, which can be modified in place.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) error {
	return ConstFlatData(t, accessFn)
}

// MustMutableFlatData is like MutableFlatData, but panics on error.
func MustMutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if err := MutableFlatData(t, accessFn); err != nil {
		panic(err)
	}
}

// CopyFlatData returns a copy of the flat data of the tensor.
func CopyFlatData[T dtypes.Supported](t *Tensor) (flat []T, err error) {
	err = ConstFlatData(t, func(data []T) { flat = slices.Clone(data) })
	return
}

// Float64Values returns the values of the tensor converted to float64, whatever its dtype.
func (t *Tensor) Float64Values() []float64 {
	values := make([]float64, t.Size())
	switch flat := t.flat.(type) {
	case []uint8:
		for ii, v := range flat {
			values[ii] = float64(v)
		}
	case []float16.Float16:
		for ii, v := range flat {
			values[ii] = float64(v.Float32())
		}
	case []float32:
		for ii, v := range flat {
			values[ii] = float64(v)
		}
	case []float64:
		copy(values, flat)
	}
	return values
}

// Stack concatenates tensors with the exact same shape in a new leading axis: if each tensor has
// shape `[d0, d1, ...]`, the result has shape `[len(ts), d0, d1, ...]`.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.New("tensors.Stack requires at least one tensor")
	}
	shape := ts[0].Shape()
	for ii, t := range ts {
		if err := t.CheckValid(); err != nil {
			return nil, errors.WithMessagef(err, "tensors.Stack: tensor #%d", ii)
		}
		if !t.Shape().Equal(shape) {
			return nil, errors.Errorf("tensors.Stack: tensor #%d has shape %s, but tensor #0 has shape %s",
				ii, t.Shape(), shape)
		}
	}
	stackedShape := shapes.Make(shape.DType, append([]int{len(ts)}, shape.Dimensions...)...)
	stacked := FromShape(stackedShape)
	switch dst := stacked.flat.(type) {
	case []uint8:
		stackFlat(dst, ts)
	case []float16.Float16:
		stackFlat(dst, ts)
	case []float32:
		stackFlat(dst, ts)
	case []float64:
		stackFlat(dst, ts)
	}
	return stacked, nil
}

func stackFlat[T dtypes.Supported](dst []T, ts []*Tensor) {
	pos := 0
	for _, t := range ts {
		pos += copy(dst[pos:], t.flat.([]T))
	}
}

// Equal returns whether both tensors have the same shape and exactly the same values.
func (t *Tensor) Equal(other *Tensor) bool {
	if !t.Shape().Equal(other.Shape()) {
		return false
	}
	return slices.Equal(t.Float64Values(), other.Float64Values())
}

// InDelta returns whether both tensors have the same shape and all values are within delta of each other.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if !t.Shape().Equal(other.Shape()) {
		return false
	}
	values, otherValues := t.Float64Values(), other.Float64Values()
	for ii, v := range values {
		if math.Abs(v-otherValues[ii]) > delta {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. It only prints the shape, the data of image tensors is too large.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	return fmt.Sprintf("Tensor%s", t.shape)
}
