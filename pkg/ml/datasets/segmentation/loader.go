// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segmentation

import (
	"fmt"
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/segmentation/pkg/core/tensors"
	"github.com/gomlx/segmentation/pkg/ml/datasets"
	"k8s.io/klog/v2"
)

// sampleStream implements datasets.Dataset yielding one sample of a Dataset at a time, in order or shuffled
// each epoch. It is safe for concurrent use.
type sampleStream struct {
	ds  Dataset
	rng *rand.Rand

	mu    sync.Mutex
	order []int
	next  int
}

func newSampleStream(ds Dataset, rng *rand.Rand) *sampleStream {
	s := &sampleStream{ds: ds, rng: rng}
	s.Reset()
	return s
}

// Name implements datasets.Dataset.
func (s *sampleStream) Name() string { return s.ds.Name() }

// Reset implements datasets.Dataset.
func (s *sampleStream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
	if s.rng != nil {
		s.order = s.rng.Perm(s.ds.Len())
	}
}

// Yield implements datasets.Dataset.
func (s *sampleStream) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	s.mu.Lock()
	if s.next >= s.ds.Len() {
		s.mu.Unlock()
		err = io.EOF
		return
	}
	index := s.next
	if s.order != nil {
		index = s.order[index]
	}
	s.next++
	s.mu.Unlock()

	img, mask, err := s.ds.Get(index)
	if err != nil {
		return
	}
	inputs = []*tensors.Tensor{img}
	labels = []*tensors.Tensor{mask}
	return
}

// Loader yields batches of a Dataset, implementing datasets.Dataset: each Yield returns the batched images
// as the only input and the batched masks as the only label, both shaped `[batchSize, channels, height, width]`.
// It returns io.EOF at the end of each epoch, and Reset starts a new one.
//
// Loader can be configured (Shuffle, DropIncompleteBatch, Parallelism) before the first call to Yield.
type Loader struct {
	ds                  Dataset
	batchSize           int
	rng                 *rand.Rand
	dropIncompleteBatch bool
	parallelism         int

	buildOnce sync.Once
	parallel  *datasets.ParallelDataset
	batched   datasets.Dataset
}

var _ datasets.Dataset = (*Loader)(nil)

// NewLoader creates a Loader of ds in batches of batchSize, reading the samples in order.
func NewLoader(ds Dataset, batchSize int) *Loader {
	if batchSize <= 0 {
		klog.Warningf("NewLoader(%q, batchSize=%d): invalid batch size, using 1", ds.Name(), batchSize)
		batchSize = 1
	}
	return &Loader{ds: ds, batchSize: batchSize, parallelism: 1}
}

// Shuffle the order of the samples at every epoch, using rng.
//
// It returns the Loader, so configuration calls can be cascaded.
func (l *Loader) Shuffle(rng *rand.Rand) *Loader {
	l.rng = rng
	return l
}

// DropIncompleteBatch sets whether the last batch of an epoch is dropped when there are not enough samples to
// fill it. The default is false: the last batch may be smaller.
//
// It returns the Loader, so configuration calls can be cascaded.
func (l *Loader) DropIncompleteBatch(drop bool) *Loader {
	l.dropIncompleteBatch = drop
	return l
}

// Parallelism reads the samples with n goroutines, using datasets.ParallelDataset. The order of the samples
// is then no longer deterministic. Use 0 for the number of cores, and 1 (the default) to disable it.
//
// Call Done when finished with the Loader, to stop the goroutines.
//
// It returns the Loader, so configuration calls can be cascaded.
func (l *Loader) Parallelism(n int) *Loader {
	l.parallelism = n
	return l
}

func (l *Loader) build() {
	l.buildOnce.Do(func() {
		var samples datasets.Dataset = newSampleStream(l.ds, l.rng)
		if l.parallelism != 1 {
			l.parallel = datasets.CustomParallel(samples).Parallelism(l.parallelism).Buffer(l.batchSize).Start()
			samples = l.parallel
		}
		l.batched = datasets.Batch(samples, l.batchSize, l.dropIncompleteBatch)
	})
}

// Name implements datasets.Dataset.
func (l *Loader) Name() string {
	return fmt.Sprintf("%s [Batch %d]", l.ds.Name(), l.batchSize)
}

// ShortName implements datasets.HasShortName.
func (l *Loader) ShortName() string {
	return l.ds.Name()
}

// NumBatches returns the number of batches per epoch.
func (l *Loader) NumBatches() int {
	n := l.ds.Len() / l.batchSize
	if !l.dropIncompleteBatch && l.ds.Len()%l.batchSize != 0 {
		n++
	}
	return n
}

// Reset implements datasets.Dataset.
func (l *Loader) Reset() {
	l.build()
	l.batched.Reset()
}

// Yield implements datasets.Dataset.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	l.build()
	return l.batched.Yield()
}

// Done stops the goroutines reading samples, if Parallelism was configured.
func (l *Loader) Done() {
	if l.parallel != nil {
		l.parallel.Done()
	}
}
