// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"runtime"
	"sync"

	"github.com/gomlx/segmentation/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ParallelDataset is a wrapper around a `Dataset` that parallelize calls to Yield.
// See details in CustomParallel.
type ParallelDataset struct {
	Dataset Dataset

	// name is set by default to the underlying dataset name.
	name, shortName string

	// parallelism is the number of goroutines started generating examples.
	parallelism int

	// extraBufferSize is the size of the buffer of pre-generated batches.
	extraBufferSize int

	// impl is the actual implementation.
	impl *parallelDatasetImpl

	// keepAlive is used only to keep ParallelDataset alive in the middle of long calls.
	keepAlive int64
}

type yieldUnit struct {
	spec   any
	inputs []*tensors.Tensor
	labels []*tensors.Tensor
}

// parallelDatasetImpl separates the implementation of ParallelDataset. It doesn't point back to the
// ParallelDataset, so garbage collecting it also stops the goroutines.
type parallelDatasetImpl struct {
	config ParallelDataset // A copy of the configuration.

	err   error
	muErr sync.Mutex

	buffer                                chan yieldUnit
	epochFinished, stopEpoch, stopDataset chan struct{}
	stopEpochOnce, stopDatasetOnce        *sync.Once

	// done is closed once the goroutines exit after the dataset is stopped.
	done chan struct{}
}

// Parallel parallelizes yield calls of any tread-safe Dataset.
//
// It uses CustomParallel and automatically starts it with the default parameters.
//
// To avoid leaking goroutines, call ParallelDataset.Done when exiting.
//
// The order of the yields is not preserved -- the parallelization may yield results in different order, and in some
// exceptional circumstance may create an order bias (faster results to generate being yield first).
//
// Example:
//
//	var ds datasets.Dataset
//	ds = segmentation.NewLoader(train, 16)
//	ds = datasets.Parallel(ds)
func Parallel(ds Dataset) *ParallelDataset {
	pds := CustomParallel(ds)
	return pds.Buffer(pds.parallelism).Start()
}

// CustomParallel builds a ParallelDataset that can be used to parallelize any
// Dataset, as long as the underlying dataset ds is thread-safe.
//
// ParallelDataset can be further configured (see Parallelism and Buffer),
// and then one has to call Start before actually using the Dataset.
//
// To avoid leaking goroutines, call ParallelDataset.Done when exiting.
//
// Example:
//
//	ds = datasets.CustomParallel(ds).Parallelism(4).Buffer(10).Start()
//	defer ds.Done()
func CustomParallel(ds Dataset) *ParallelDataset {
	pd := &ParallelDataset{
		name:    ds.Name(),
		Dataset: ds,
	}
	if sn, ok := ds.(HasShortName); ok {
		pd.shortName = sn.ShortName()
	} else {
		pd.shortName = pd.name[:min(3, len(pd.name))]
	}
	pd.Parallelism(0) // 0 here means it will take the number of cores available.
	return pd
}

// Parallelism is the number of goroutines to start, each calling `ds.Yield()` in parallel
// to accelerate the generation of batches. If set to 0 (the default), it will use the
// number of cores in the system plus 1.
//
// This must be called before a call to Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Parallelism(n int) *ParallelDataset {
	if pd.impl != nil {
		klog.Errorf("ParallelDataset invalid configuration change after Start has been called.")
		return nil
	}
	if n <= 0 {
		n = runtime.NumCPU() + 1
	}
	pd.parallelism = n
	return pd
}

// WithName sets the name of the parallel dataset, and optionally its short name.
// It defaults to the original dataset name.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) WithName(name string, shortName ...string) *ParallelDataset {
	pd.name = name
	if len(shortName) > 0 {
		pd.shortName = shortName[0]
	}
	return pd
}

// Buffer reserved in the channel that collects the parallel yields.
// Notice there is already an intrinsic buffering that happens in the goroutines sampling
// in parallel.
//
// This must be called before a call to Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Buffer(n int) *ParallelDataset {
	if pd.impl != nil {
		klog.Errorf("ParallelDataset invalid configuration change after Start has been called.")
		return nil
	}
	pd.extraBufferSize = n
	return pd
}

// Start indicates that the dataset is finished to be configured, and starts
// being a valid Dataset.
//
// After Start its configuration can no longer be changed.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Start() *ParallelDataset {
	if pd.impl != nil {
		klog.Errorf("ParallelDataset.Start called more than once!?")
		return nil
	}
	impl := &parallelDatasetImpl{
		buffer:          make(chan yieldUnit, pd.extraBufferSize),
		stopDataset:     make(chan struct{}),
		stopDatasetOnce: &sync.Once{},
		config:          *pd, // Copy.
		done:            make(chan struct{}),
	}
	pd.impl = impl
	// If the ParallelDataset is garbage collected, stop all parallel goroutines.
	runtime.SetFinalizer(pd, func(pd *ParallelDataset) {
		if pd.impl != nil {
			pd.impl.stop()
			pd.impl = nil
		}
	})
	impl.startGoRoutines()
	return pd
}

// stop closes stopDataset, at most once.
func (impl *parallelDatasetImpl) stop() {
	impl.stopDatasetOnce.Do(func() { close(impl.stopDataset) })
}

// stopCurrentEpoch closes stopEpoch, at most once per epoch.
func (impl *parallelDatasetImpl) stopCurrentEpoch() {
	impl.stopEpochOnce.Do(func() { close(impl.stopEpoch) })
}

func (impl *parallelDatasetImpl) startGoRoutines() {
	impl.epochFinished = make(chan struct{})
	impl.stopEpoch = make(chan struct{})
	impl.stopEpochOnce = &sync.Once{}
	epochFinished, stopEpoch := impl.epochFinished, impl.stopEpoch
	var wg sync.WaitGroup
	for range impl.config.parallelism {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopEpoch:
					return
				case <-impl.stopDataset:
					return
				default:
					// Move forward and generate the next batch.
				}
				var unit yieldUnit
				var err error
				unit.spec, unit.inputs, unit.labels, err = impl.config.Dataset.Yield()
				if err == io.EOF {
					return
				}
				if err != nil {
					klog.Errorf("ParallelDataset %q: %+v", impl.config.name, err)
					// Fatal error, stop everything.
					impl.muErr.Lock()
					if impl.err == nil {
						impl.err = err
					}
					impl.muErr.Unlock()
					impl.stop()
					return
				}
				select {
				case <-stopEpoch:
					return
				case <-impl.stopDataset:
					return
				case impl.buffer <- unit:
					// Batch generated and cached, move to next.
				}
			}
		}()
	}

	// Controller: waits for the goroutines of this epoch.
	go func() {
		wg.Wait()
		select {
		case <-impl.stopDataset:
			select {
			case <-impl.done:
			default:
				close(impl.done)
			}
			return
		default:
		}
		close(epochFinished)
	}()
}

// Name implements Dataset.
func (pd *ParallelDataset) Name() string {
	return pd.name
}

// ShortName returns a short version of the dataset name, it implements HasShortName.
func (pd *ParallelDataset) ShortName() string {
	return pd.shortName
}

// Done stops all the parallel goroutines and waits for them to finish.
func (pd *ParallelDataset) Done() {
	if pd.impl == nil {
		return
	}
	impl := pd.impl
	pd.impl = nil
	impl.stop()
	select {
	case <-impl.done:
	case <-impl.epochFinished:
		// Goroutines had already exited at the end of the epoch.
	}
}

// Reset implements Dataset.
func (pd *ParallelDataset) Reset() {
	impl := pd.impl
	if impl == nil {
		klog.Warningf("ParallelDataset.Reset was called before it was started with ParallelDataset.Start or after ParallelDataset.Done")
		return
	}

	// Indicate to the goroutines to stop generating data, and drain whatever is still in the buffer.
	impl.stopCurrentEpoch()
drainDataset:
	for {
		select {
		case <-impl.stopDataset:
			// Return immediately, do nothing.
			return
		case <-impl.epochFinished:
			break drainDataset
		case <-impl.buffer:
			// Discard remaining entries that were in the buffer.
		}
	}
	// Entries pushed right before the goroutines exited.
	for len(impl.buffer) > 0 {
		<-impl.buffer
	}

	// Reset underlying dataset and start again.
	impl.config.Dataset.Reset()
	impl.startGoRoutines()

	// This no-op prevents `pd` from being garbage collected and the goroutines killed in the middle
	// of the Reset operation. Leave this at the end.
	pd.keepAlive++
}

// Yield implements Dataset.
func (pd *ParallelDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	impl := pd.impl
	if impl == nil {
		err = errors.Errorf("ParallelDataset.Yield was called before it was started with ParallelDataset.Start or after it was stopped with ParallelDataset.Done")
		return
	}
	var unit yieldUnit
	select {
	case <-impl.stopDataset:
		// An error occurred, dataset is closed.
		impl.muErr.Lock()
		err = impl.err
		impl.muErr.Unlock()
		if err == nil {
			err = errors.Errorf("ParallelDataset %q was stopped", pd.name)
		}
		return
	case unit = <-impl.buffer:
		// We got a new batch
	case <-impl.epochFinished:
		// No more records being produced (until Reset() is called), but we still need to exhaust the buffer.
		select {
		case unit = <-impl.buffer:
		default:
			err = io.EOF
			return
		}
	}
	spec, inputs, labels = unit.spec, unit.inputs, unit.labels

	// This no-op prevents `pd` from being garbage collected and the goroutines killed in the middle
	// of the Yield operation. Leave this at the end.
	pd.keepAlive++
	return
}
