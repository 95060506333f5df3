// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segmentation

import (
	"io"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// Manifest column names and split values.
const (
	ManifestSplitCol = "split"
	ManifestImageCol = "image"
	ManifestMaskCol  = "mask"

	SplitTrain = "train"
	SplitTest  = "test"
)

var manifestTypes = map[string]series.Type{
	ManifestSplitCol: series.String,
	ManifestImageCol: series.String,
	ManifestMaskCol:  series.String,
}

// WriteManifest writes the train and test pairs as CSV, with the columns "split", "image" and "mask".
// Train pairs come first.
func WriteManifest(w io.Writer, train, test []Pair) error {
	n := len(train) + len(test)
	if n == 0 {
		return errors.New("WriteManifest: no pairs to write")
	}
	splits := make([]string, 0, n)
	imagePaths := make([]string, 0, n)
	maskPaths := make([]string, 0, n)
	for _, part := range []struct {
		name  string
		pairs []Pair
	}{{SplitTrain, train}, {SplitTest, test}} {
		for _, pair := range part.pairs {
			splits = append(splits, part.name)
			imagePaths = append(imagePaths, pair.Image)
			maskPaths = append(maskPaths, pair.Mask)
		}
	}
	df := dataframe.New(
		series.New(splits, series.String, ManifestSplitCol),
		series.New(imagePaths, series.String, ManifestImageCol),
		series.New(maskPaths, series.String, ManifestMaskCol))
	if df.Err != nil {
		return errors.Wrap(df.Err, "WriteManifest: failed to build data frame")
	}
	if err := df.WriteCSV(w); err != nil {
		return errors.Wrap(err, "WriteManifest: failed to write CSV")
	}
	return nil
}

// ReadManifest reads a CSV written by WriteManifest, returning the train and test pairs in the order they
// were written.
func ReadManifest(r io.Reader) (train, test []Pair, err error) {
	df := dataframe.ReadCSV(r, dataframe.WithTypes(manifestTypes))
	if df.Err != nil {
		err = errors.Wrap(df.Err, "ReadManifest: failed to parse CSV")
		return
	}
	names := df.Names()
	for _, col := range []string{ManifestSplitCol, ManifestImageCol, ManifestMaskCol} {
		if !slices.Contains(names, col) {
			err = errors.Errorf("ReadManifest: missing column %q, got columns %q", col, names)
			return
		}
	}
	splits := df.Col(ManifestSplitCol).Records()
	imagePaths := df.Col(ManifestImageCol).Records()
	maskPaths := df.Col(ManifestMaskCol).Records()
	for row, splitName := range splits {
		pair := Pair{Image: imagePaths[row], Mask: maskPaths[row]}
		switch splitName {
		case SplitTrain:
			train = append(train, pair)
		case SplitTest:
			test = append(test, pair)
		default:
			err = errors.Errorf("ReadManifest: row %d has invalid split %q, expected %q or %q",
				row+1, splitName, SplitTrain, SplitTest)
			return nil, nil, err
		}
	}
	return
}
