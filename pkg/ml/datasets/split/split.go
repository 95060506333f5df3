// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package split partitions sample indices into train and test sets, using an explicitly given seed.
//
// The same seed and the same number (and grouping) of samples always produce the same partition.
package split

import (
	"math"
	"math/rand"
	"slices"

	"github.com/gomlx/segmentation/pkg/support/xslices"
	"github.com/pkg/errors"
)

var (
	// ErrEmpty is returned when there are no samples to split.
	ErrEmpty = errors.New("no samples to split")

	// ErrInvalidFraction is returned when the test fraction is not in the open range (0, 1).
	ErrInvalidFraction = errors.New("test fraction must be in the range (0, 1)")

	// ErrTooFewSamples is returned when the train or the test set would end up empty, or, for
	// stratified splits, with fewer samples than there are groups.
	ErrTooFewSamples = errors.New("too few samples for the requested split")

	// ErrDegenerateStratum is returned by Stratified when a group has fewer than 2 samples, so it
	// can't be represented in both train and test sets.
	ErrDegenerateStratum = errors.New("degenerate stratum")
)

// NumTest returns the number of test samples for n samples: ceil(testFraction * n).
func NumTest(n int, testFraction float64) int {
	return int(math.Ceil(testFraction * float64(n)))
}

func checkArgs(n int, testFraction float64) (numTest int, err error) {
	if n == 0 {
		return 0, ErrEmpty
	}
	if !(testFraction > 0 && testFraction < 1) {
		return 0, errors.Wrapf(ErrInvalidFraction, "got %g", testFraction)
	}
	numTest = NumTest(n, testFraction)
	if numTest == 0 || numTest >= n {
		return 0, errors.Wrapf(ErrTooFewSamples, "%d samples, test fraction %g", n, testFraction)
	}
	return numTest, nil
}

// TrainTest shuffles the indices 0..n-1 with a random generator seeded with seed, and assigns
// the first ceil(testFraction*n) of the permutation to the test set, the remaining to the train set.
func TrainTest(n int, testFraction float64, seed int64) (train, test []int, err error) {
	numTest, err := checkArgs(n, testFraction)
	if err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	test = slices.Clone(perm[:numTest])
	train = slices.Clone(perm[numTest:])
	return train, test, nil
}

// Stratified splits the samples so that each group (stratum) is represented in both the train and the test
// sets in (approximately) the same proportion. groups[i] is the group of sample i.
//
// The total number of test samples is ceil(testFraction*n), distributed over the groups proportionally to their
// size (largest remainders first), with at least one test and one train sample per group.
//
// It returns ErrDegenerateStratum if any group has fewer than 2 samples.
func Stratified(groups []int, testFraction float64, seed int64) (train, test []int, err error) {
	n := len(groups)
	numTest, err := checkArgs(n, testFraction)
	if err != nil {
		return nil, nil, err
	}

	// Members of each group, in order of first appearance of the group.
	var groupOrder []int
	members := make(map[int][]int)
	for idx, g := range groups {
		if _, found := members[g]; !found {
			groupOrder = append(groupOrder, g)
		}
		members[g] = append(members[g], idx)
	}
	for _, g := range groupOrder {
		if len(members[g]) < 2 {
			return nil, nil, errors.Wrapf(ErrDegenerateStratum, "group %d has %d sample(s), at least 2 are required",
				g, len(members[g]))
		}
	}
	numGroups := len(groupOrder)
	if numTest < numGroups || n-numTest < numGroups {
		return nil, nil, errors.Wrapf(ErrTooFewSamples,
			"%d test and %d train samples can't represent %d groups", numTest, n-numTest, numGroups)
	}

	perGroupTest := allocate(groupOrder, members, numTest, n)
	rng := rand.New(rand.NewSource(seed))
	for ii, g := range groupOrder {
		idx := slices.Clone(members[g])
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:perGroupTest[ii]]...)
		train = append(train, idx[perGroupTest[ii]:]...)
	}
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	return train, test, nil
}

// allocate distributes numTest over the groups proportionally to their sizes, with the
// largest remainder method, keeping at least 1 test and 1 train sample per group.
func allocate(groupOrder []int, members map[int][]int, numTest, n int) []int {
	numGroups := len(groupOrder)
	counts := make([]int, numGroups)
	remainders := make([]float64, numGroups)
	total := 0
	for ii, g := range groupOrder {
		exact := float64(numTest) * float64(len(members[g])) / float64(n)
		counts[ii] = int(math.Floor(exact))
		remainders[ii] = exact - float64(counts[ii])
		counts[ii] = min(max(counts[ii], 1), len(members[g])-1)
		total += counts[ii]
	}
	order := xslices.Iota(0, numGroups)
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case remainders[a] > remainders[b]:
			return -1
		case remainders[a] < remainders[b]:
			return 1
		}
		return 0
	})
	// Add missing test samples to the groups with the largest remainders, or remove
	// excess ones from the groups with the smallest remainders.
	for total < numTest {
		changed := false
		for _, ii := range order {
			if total == numTest {
				break
			}
			if counts[ii] < len(members[groupOrder[ii]])-1 {
				counts[ii]++
				total++
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	for total > numTest {
		changed := false
		for jj := numGroups - 1; jj >= 0; jj-- {
			ii := order[jj]
			if total == numTest {
				break
			}
			if counts[ii] > 1 {
				counts[ii]--
				total--
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return counts
}

// Select returns the items at the given indices, in the order of indices.
func Select[T any](items []T, indices []int) []T {
	selected := make([]T, len(indices))
	for ii, idx := range indices {
		selected[ii] = items[idx]
	}
	return selected
}
