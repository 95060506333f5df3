// segdata builds the train and test splits of a segmentation dataset and reports on them.
//
// It can also write the split to a CSV manifest, save the patches of the sliced variant as images,
// and fetch a few batches of each split to check the augmentation pipelines.
//
// Example:
//
//	segdata -dataset=dsb2018_sliced -data=~/work/datasets/dsb2018 -patch=128 -preview=2 -save_tiles=/tmp/tiles
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/gomlx/segmentation/pkg/core/tensors"
	"github.com/gomlx/segmentation/pkg/ml/datasets"
	"github.com/gomlx/segmentation/pkg/ml/datasets/segmentation"
	"github.com/gomlx/segmentation/pkg/support/fsutil"
	"github.com/gomlx/segmentation/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	defaultConfig = segmentation.DefaultConfig()

	flagDataset = flag.String("dataset", "dsb2018",
		fmt.Sprintf("Dataset to build, one of %q.", segmentation.BuilderNames()))
	flagDataDir      = flag.String("data", defaultConfig.DataDir, "Root directory of the dataset.")
	flagGrayscale    = flag.Bool("grayscale", false, "Convert INRIA images to grayscale.")
	flagPatchSize    = flag.Int("patch", defaultConfig.PatchSize, "Height and width of the samples.")
	flagSeed         = flag.Int64("seed", defaultConfig.Seed, "Seed of the train/test split.")
	flagAugSeed      = flag.Int64("aug_seed", 0, "Seed of the augmentation pipelines. If 0, seeded with the current time.")
	flagTestFraction = flag.Float64("test_fraction", defaultConfig.TestFraction, "Fraction of the samples in the test split.")
	flagDType        = flag.String("dtype", defaultConfig.DType.String(), "DType of the tensors: float16, float32 or float64.")
	flagMean         = xslices.Flag("mean", nil,
		"Comma-separated per-channel mean used to normalize images. Defaults to ImageNet's.", xslices.ParseFloat32)
	flagStd = xslices.Flag("std", nil,
		"Comma-separated per-channel standard deviation used to normalize images. Defaults to ImageNet's.", xslices.ParseFloat32)
	flagCache       = flag.Bool("cache", false, "Read all samples into memory when building the file based datasets.")
	flagManifest    = flag.String("manifest", "", "If set, write the train/test files to this CSV file (file based datasets only).")
	flagSaveTiles   = flag.String("save_tiles", "", "If set, save the patches of the sliced dataset as PNG files in this directory.")
	flagPreview     = flag.Int("preview", 0, "Number of batches to fetch from each split, to check the pipelines.")
	flagBatchSize   = flag.Int("batch", 16, "Batch size used with -preview.")
	flagParallelism = flag.Int("parallelism", 1, "Number of goroutines reading samples with -preview. 0 for the number of cores.")
	flagNoProgress  = flag.Bool("no_progress", false, "Disable progress bars.")
	flagStats       = flag.Bool("stats", false, "Measure the per-channel mean and standard deviation of the train images, "+
		"to be used with -mean and -std.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %q. See 'segdata -help'.", flag.Args())
		os.Exit(1)
	}
	cfg := buildConfig()
	if *flagSaveTiles != "" {
		must.M(saveTiles(cfg, *flagSaveTiles))
	}
	train, test, numClasses, err := segmentation.Build(*flagDataset, cfg)
	if err != nil {
		klog.Fatalf("Failed to build dataset: %+v", err)
	}
	if *flagManifest != "" {
		must.M(writeManifest(train, test, *flagManifest))
	}
	report(cfg, train, test, numClasses)
	if *flagStats {
		must.M(stats(train))
	}
	if *flagPreview > 0 {
		preview(train, test)
	}
}

func buildConfig() *segmentation.Config {
	cfg := segmentation.DefaultConfig()
	cfg.DataDir = *flagDataDir
	cfg.Grayscale = *flagGrayscale
	cfg.PatchSize = *flagPatchSize
	cfg.Seed = *flagSeed
	cfg.AugmentationSeed = *flagAugSeed
	cfg.TestFraction = *flagTestFraction
	cfg.DType = must.M1(dtypes.Parse(*flagDType))
	cfg.NormalizeMean, cfg.NormalizeStd = *flagMean, *flagStd
	cfg.CacheInRAM = *flagCache
	cfg.ShowProgress = !*flagNoProgress
	return cfg
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func report(cfg *segmentation.Config, train, test segmentation.Dataset, numClasses int) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Dataset %q", *flagDataset)))
	table := newPlainTable(false)
	table.Row("data", cfg.DataDir)
	table.Row("patch size", fmt.Sprintf("%dx%d", cfg.PatchSize, cfg.PatchSize))
	table.Row("split seed", fmt.Sprintf("%d", cfg.Seed))
	table.Row("test fraction", fmt.Sprintf("%g", cfg.TestFraction))
	table.Row("# classes", fmt.Sprintf("%d", numClasses))
	table.Row("# train", humanize.Comma(int64(train.Len())))
	table.Row("# test", humanize.Comma(int64(test.Len())))
	for _, ds := range []segmentation.Dataset{train, test} {
		if raw, ok := ds.(*segmentation.RawDataset); ok {
			table.Row(ds.Name()+" memory", humanize.Bytes(raw.Memory()))
		}
	}
	fmt.Println(table.Render())

	fmt.Println(titleStyle.Render("Pipelines"))
	table = newPlainTable(true)
	table.Headers("Split", "Stage")
	for _, ds := range []segmentation.Dataset{train, test} {
		for ii, stage := range segmentation.DescribePipeline(ds) {
			name := ""
			if ii == 0 {
				name = ds.Name()
			}
			table.Row(name, stage)
		}
	}
	fmt.Println(table.Render())
}

// writeManifest writes the files of the train and test splits to a CSV file.
func writeManifest(train, test segmentation.Dataset, path string) (err error) {
	trainFiles, ok1 := train.(*segmentation.ImageMaskDataset)
	testFiles, ok2 := test.(*segmentation.ImageMaskDataset)
	if !ok1 || !ok2 {
		return errors.Errorf("-manifest is only supported for file based datasets, %q is built from patches", *flagDataset)
	}
	path = fsutil.MustReplaceTildeInDir(path)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create manifest %q", path)
	}
	defer func() {
		if cErr := f.Close(); err == nil && cErr != nil {
			err = errors.Wrapf(cErr, "failed to close manifest %q", path)
		}
	}()
	if err = segmentation.WriteManifest(f, trainFiles.Pairs(), testFiles.Pairs()); err != nil {
		return err
	}
	klog.Infof("Manifest with %d train and %d test pairs written to %q", trainFiles.Len(), testFiles.Len(), path)
	return nil
}

// saveTiles saves the image and mask patches of the sliced dataset in dir, named after the source image index
// and the patch offset.
func saveTiles(cfg *segmentation.Config, dir string) error {
	if !strings.HasSuffix(*flagDataset, "_sliced") {
		return errors.Errorf("-save_tiles is only supported for sliced datasets, got %q", *flagDataset)
	}
	dir = fsutil.MustReplaceTildeInDir(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", dir)
	}
	patches, err := segmentation.LoadPatches(cfg, "images", "masks")
	if err != nil {
		return err
	}
	var pbar *progressbar.ProgressBar
	if cfg.ShowProgress {
		pbar = progressbar.Default(int64(len(patches)), "Saving tiles")
	}
	for _, patch := range patches {
		base := fmt.Sprintf("%04d_y%05d_x%05d", patch.ImageID, patch.Offset.Y, patch.Offset.X)
		if err := segmentation.SaveRaster(patch.Image, filepath.Join(dir, base+"_image.png")); err != nil {
			return err
		}
		if err := segmentation.SaveRaster(patch.Mask, filepath.Join(dir, base+"_mask.png")); err != nil {
			return err
		}
		if pbar != nil {
			_ = pbar.Add(1)
		}
	}
	if pbar != nil {
		_ = pbar.Finish()
	}
	klog.Infof("Saved %s tiles to %q", humanize.Comma(int64(len(patches))), dir)
	return nil
}

// preview fetches -preview batches of each split and reports their shapes, value ranges and timing.
func preview(train, test segmentation.Dataset) {
	fmt.Println(titleStyle.Render("Preview"))
	table := newPlainTable(true)
	table.Headers("Dataset", "Batch", "Image", "Mask", "Image range", "Foreground", "Bytes", "Time")
	for _, ds := range []segmentation.Dataset{train, test} {
		loader := segmentation.NewLoader(ds, *flagBatchSize).
			Shuffle(rand.New(rand.NewSource(time.Now().UnixNano()))).
			Parallelism(*flagParallelism)
		batches := datasets.Take(loader, *flagPreview)
		for ii := 0; ; ii++ {
			start := time.Now()
			_, inputs, labels, err := batches.Yield()
			if err == io.EOF {
				break
			}
			if err != nil {
				loader.Done()
				klog.Fatalf("Failed to read batch #%d of %q: %+v", ii, ds.Name(), err)
			}
			low, high := valueRange(inputs[0])
			table.Row(ds.Name(), fmt.Sprintf("%d", ii), inputs[0].Shape().String(), labels[0].Shape().String(),
				fmt.Sprintf("[%.3f, %.3f]", low, high), fmt.Sprintf("%.0f%%", 100*mean(labels[0])),
				humanize.Bytes(uint64(inputs[0].Memory()+labels[0].Memory())), time.Since(start).String())
		}
		loader.Done()
	}
	fmt.Println(table.Render())
}

// stats reports the per-channel mean and standard deviation of the train images, scaled to [0, 1].
func stats(train segmentation.Dataset) error {
	raw, err := segmentation.Unaugmented(train)
	if err != nil {
		return err
	}
	start := time.Now()
	mean, stddev, err := datasets.Normalization(segmentation.NewLoader(raw, 1), 0, 1)
	if err != nil {
		return errors.WithMessagef(err, "measuring statistics of %q", train.Name())
	}
	toFlag := func(t *tensors.Tensor) string {
		return strings.Join(xslices.Map(t.Float64Values(), func(v float64) string {
			return fmt.Sprintf("%.4f", v/255)
		}), ",")
	}
	fmt.Println(titleStyle.Render("Statistics"))
	table := newPlainTable(false)
	table.Row("samples", humanize.Comma(int64(raw.Len())))
	table.Row("-mean", toFlag(mean))
	table.Row("-std", toFlag(stddev))
	table.Row("time", time.Since(start).String())
	fmt.Println(table.Render())
	return nil
}

func valueRange(t *tensors.Tensor) (low, high float64) {
	values := t.Float64Values()
	if len(values) == 0 {
		return
	}
	low, high = values[0], values[0]
	for _, v := range values[1:] {
		low, high = min(low, v), max(high, v)
	}
	return
}

func mean(t *tensors.Tensor) float64 {
	values := t.Float64Values()
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
