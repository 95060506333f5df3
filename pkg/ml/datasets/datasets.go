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

// Package datasets defines the Dataset contract used to feed batches of tensors to training and evaluation
// loops, and a collection of utility datasets that can be combined for efficient preprocessing:
// `Take`, `Batch`, `Parallel` and `ReadAhead`.
package datasets

import (
	"fmt"
	"io"

	"github.com/gomlx/segmentation/pkg/core/tensors"
)

// Dataset provides the data, one batch at a time. Each batch consists of a slice of *tensors.Tensor
// for `inputs` and for `labels`.
//
// Dataset has to also provide a Dataset.Name() and a dataset `spec`, which usually is the same for
// the whole dataset, but can vary per batch, if the Dataset is yielding different types of data.
// For a static Dataset that always provides the exact same data type, the `spec` can simply be nil.
type Dataset interface {
	// Name identifies the dataset. Used for debugging and pretty-printing.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one "batch" (or whatever is the unit for a training step) or an error.
	// It should return a `spec` for the dataset, a slice of `inputs` and a slice of `labels` tensors
	// (even when there is only one tensor for each of them).
	//
	// The `inputs` and `labels` ownership is transferred to the caller.
	//
	// If the error is `io.EOF`, it indicates the end of data for finite datasets -- maybe the end of the epoch.
	Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error)
}

// HasShortName is an optional interface a Dataset can implement, used in progress and summary tables.
type HasShortName interface {
	ShortName() string
}

// takeDataset implements a `Dataset` that only yields `take` batches.
type takeDataset struct {
	ds          Dataset
	count, take int
}

// Take returns a wrapper to `ds`, a `Dataset` that only yields `n` batches.
func Take(ds Dataset, n int) Dataset {
	return &takeDataset{
		ds:   ds,
		take: n,
	}
}

// Name implements Dataset. It returns the dataset name.
func (ds *takeDataset) Name() string {
	return fmt.Sprintf("%s [Take %d]", ds.ds.Name(), ds.take)
}

// Reset implements Dataset.
func (ds *takeDataset) Reset() {
	ds.ds.Reset()
	ds.count = 0
}

// Yield implements Dataset.
func (ds *takeDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if ds.count >= ds.take {
		err = io.EOF
		return
	}
	ds.count++
	spec, inputs, labels, err = ds.ds.Yield()
	return
}
