package datasets

import (
	"fmt"
	"io"
	"sync"

	"github.com/gomlx/segmentation/pkg/core/tensors"
	"github.com/pkg/errors"
)

type batchElement struct {
	inputs, labels []*tensors.Tensor
	spec           any
}

// batchedDataset implements Dataset and batches results from the underlying dataset.
//
// See details in Batch, the function used to create it.
type batchedDataset struct {
	ds Dataset // Source Dataset.

	batchSize           int
	dropIncompleteBatch bool

	buffer []batchElement
	mu     sync.Mutex // Protects buffer.
}

// Batch creates dataset that batches `ds` into batches of size `batchSize`: each of the inputs and labels
// tensors yielded by `ds` is stacked on a new leading batch axis.
//
// Args:
//   - `ds`: the dataset to be batched. All its yields must have the same number of inputs and labels, with
//     the same shapes.
//   - `batchSize`: size of each batch, except when there are no more examples, in which
//     case batches can be smaller (except if `dropIncompleteBatch` was selected).
//   - `dropIncompleteBatch`: at the end of an epoch, if there are not enough examples to fill a
//     batch, and this is set to true, the last batch is dropped. Otherwise, it returns only
//     a partial batch. Usually desirable for evaluation, but not desirable for training.
//
// Returns a `Dataset` that yields batched examples.
func Batch(ds Dataset, batchSize int, dropIncompleteBatch bool) Dataset {
	return &batchedDataset{
		ds:                  ds,
		batchSize:           batchSize,
		dropIncompleteBatch: dropIncompleteBatch,
	}
}

// Name implements Dataset. It returns the dataset name.
func (ds *batchedDataset) Name() string {
	return fmt.Sprintf("%s [Batch %d]", ds.ds.Name(), ds.batchSize)
}

// Reset implements Dataset.
func (ds *batchedDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.buffer = ds.buffer[:0]
	ds.ds.Reset()
}

// Yield implements Dataset.
func (ds *batchedDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for len(ds.buffer) < ds.batchSize {
		var e batchElement
		e.spec, e.inputs, e.labels, err = ds.ds.Yield()
		if err == io.EOF {
			if ds.dropIncompleteBatch || len(ds.buffer) == 0 {
				ds.buffer = ds.buffer[:0]
				return
			}
			// Else returns incomplete batch.
			err = nil
			break
		}
		if err != nil {
			return
		}
		ds.buffer = append(ds.buffer, e)
	}

	// In case this is the last one, and dropIncompleteBatch == false, it may be a partial batch.
	batched, err := ds.lockedBatchBuffer()
	ds.buffer = ds.buffer[:0]
	if err != nil {
		return
	}
	spec, inputs, labels = batched.spec, batched.inputs, batched.labels
	return
}

// lockedBatchBuffer batches each element of inputs and labels, and take the first `spec` value.
// It assumes `ds.mu` is locked.
func (ds *batchedDataset) lockedBatchBuffer() (batched batchElement, err error) {
	if len(ds.buffer) == 0 {
		err = errors.Errorf("trying to batch a zero elements in the buffer!?")
		return
	}
	first := ds.buffer[0]
	batched.spec = first.spec
	for ii, e := range ds.buffer[1:] {
		if len(e.inputs) != len(first.inputs) || len(e.labels) != len(first.labels) {
			err = errors.Errorf("elements to be batched don't have all the same number of tensors: element #0 has "+
				"%d inputs and %d labels, element #%d has %d inputs and %d labels",
				len(first.inputs), len(first.labels), ii+1, len(e.inputs), len(e.labels))
			return
		}
	}
	batched.inputs, err = stackEach(ds.buffer, func(e batchElement) []*tensors.Tensor { return e.inputs })
	if err != nil {
		err = errors.WithMessage(err, "batching inputs")
		return
	}
	batched.labels, err = stackEach(ds.buffer, func(e batchElement) []*tensors.Tensor { return e.labels })
	if err != nil {
		err = errors.WithMessage(err, "batching labels")
	}
	return
}

// stackEach stacks the i-th tensor of every element, for each i.
func stackEach(elements []batchElement, getFn func(e batchElement) []*tensors.Tensor) ([]*tensors.Tensor, error) {
	numTensors := len(getFn(elements[0]))
	if numTensors == 0 {
		return nil, nil
	}
	stacked := make([]*tensors.Tensor, numTensors)
	parts := make([]*tensors.Tensor, len(elements))
	for tensorIdx := range numTensors {
		for ii, e := range elements {
			parts[ii] = getFn(e)[tensorIdx]
		}
		var err error
		stacked[tensorIdx], err = tensors.Stack(parts)
		if err != nil {
			return nil, errors.WithMessagef(err, "tensor #%d", tensorIdx)
		}
	}
	return stacked, nil
}

// ReadAhead returns a Dataset that reads bufferSize elements of the given `ds`
// so that when Yield is called, the results are immediate.
//
// It uses ParallelDataset to implement it.
func ReadAhead(ds Dataset, bufferSize int) Dataset {
	if bufferSize <= 0 {
		return ds
	}
	return CustomParallel(ds).Parallelism(1).Buffer(bufferSize - 1).Start()
}
