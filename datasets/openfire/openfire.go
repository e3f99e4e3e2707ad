// Copyright (C) 2022-2026, Pyronear.

// Package openfire provides tools to download and cache the OpenFire wildfire
// image classification dataset, and a random-access datasets.VisionDataset
// implementation over it, plus a batch adapter to train models with GoMLX
// (http://github.com/gomlx/gomlx).
//
// The dataset is distributed as a tarball holding the images and one CSV
// manifest per split (train and validation), each row mapping a relative image
// path to its class.
package openfire

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"strconv"

	"github.com/pkg/errors"

	"github.com/pyronear/pyrovision/datasets"
	"github.com/pyronear/pyrovision/datasets/downloader"
)

var (
	// DownloadURL points to the released snapshot of the dataset.
	// A variable so tests (or mirrors) can override it.
	DownloadURL = "https://github.com/pyronear/pyro-vision/releases/download/v0.2.0/openfire.tar.gz"

	// TarHash is the sha256 of the tarball at DownloadURL.
	TarHash = "7d2e4c5a9f0b6d831c74e2a55b0c6e4f8a91d3b2c0f57e6a84d1b9c3f2a0e861"
)

const (
	// LocalTarFile is the tarball name under the dataset root.
	LocalTarFile = "openfire.tar.gz"

	// LocalDir is the directory the tarball extracts to, under the root.
	LocalDir = "openfire"

	trainManifest = "train.csv"
	valManifest   = "val.csv"
)

// Classes of the dataset: the label is an index into this slice.
var Classes = []string{"no_fire", "fire"}

// Sample is one manifest record: an image path relative to the extracted
// dataset directory, and its class.
type Sample struct {
	File  string
	Label int32
}

// Config for New. Root is required, everything else is optional.
type Config struct {
	// Root directory under which the dataset files live (or will be
	// downloaded to). A leading "~" is expanded.
	Root string

	// Train selects the training split; otherwise the validation split.
	Train bool

	// Download fetches the dataset from DownloadURL when it is not already
	// present under Root. Without it, a missing dataset is a fatal error.
	Download bool

	// Transform is applied to every image returned by At. It must be
	// stateless.
	Transform datasets.Transform

	// NumSamples caps the dataset to its first NumSamples manifest records.
	// Zero means all of them.
	NumSamples int
}

// Dataset is the OpenFire split loaded in memory: the manifest is read and
// validated at construction and never mutated afterwards, so Len and At are
// safe for concurrent use.
type Dataset struct {
	name      string
	dataDir   string
	samples   []Sample
	transform datasets.Transform
}

var _ datasets.VisionDataset = &Dataset{}

// Download fetches the OpenFire tarball to baseDir and untars it, verifying
// the checksum. It is a no-op if the extracted directory is already there:
// the fetch happens at most once per root.
func Download(baseDir string) error {
	baseDir = downloader.ReplaceTildeInDir(baseDir)
	tarPath := path.Join(baseDir, LocalTarFile)
	targetDir := path.Join(baseDir, LocalDir)
	if err := downloader.DownloadAndUntarIfMissing(DownloadURL, baseDir, tarPath, targetDir, TarHash); err != nil {
		return errors.WithMessagef(err, "openfire.Download to %q", baseDir)
	}
	return nil
}

// New resolves the dataset under config.Root, downloading it first if allowed
// and needed, and loads the split's manifest. It fails fast -- with
// datasets.ErrMissingData when the data is absent and downloading disallowed --
// rather than returning a partially usable dataset.
func New(config Config) (*Dataset, error) {
	root := downloader.ReplaceTildeInDir(config.Root)
	ds := &Dataset{
		name:      "openfire-val",
		dataDir:   path.Join(root, LocalDir),
		transform: config.Transform,
	}
	manifest := valManifest
	if config.Train {
		ds.name = "openfire-train"
		manifest = trainManifest
	}
	manifestPath := path.Join(ds.dataDir, manifest)

	exists, err := downloader.FileExists(manifestPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		if !config.Download {
			return nil, errors.Wrapf(datasets.ErrMissingData, "no manifest %q under root %q", manifest, root)
		}
		if err := Download(root); err != nil {
			return nil, err
		}
		if exists, err = downloader.FileExists(manifestPath); err != nil {
			return nil, err
		}
		if !exists {
			// Either the fresh extract lacks the manifest, or a stale
			// directory under root suppressed the fetch.
			return nil, errors.Wrapf(datasets.ErrDownloadFailure,
				"dataset at %q holds no manifest %q after fetching %q, remove the directory to force a fresh download",
				ds.dataDir, manifest, DownloadURL)
		}
	}

	if err := ds.loadManifest(manifestPath, config.NumSamples); err != nil {
		return nil, err
	}
	return ds, nil
}

// loadManifest reads the CSV manifest and checks that every record resolves
// to an existing readable image file.
func (ds *Dataset) loadManifest(manifestPath string, numSamples int) error {
	err := downloader.ParseCSVFile(manifestPath,
		func(header []string) error {
			if len(header) != 2 || header[0] != "file" || header[1] != "label" {
				return errors.Errorf("unexpected manifest header %v, want [file label]", header)
			}
			return nil
		},
		func(row []string) error {
			if numSamples > 0 && len(ds.samples) >= numSamples {
				return nil
			}
			if len(row) != 2 {
				return errors.Errorf("manifest row %v has %d columns, want 2", row, len(row))
			}
			label, err := strconv.Atoi(row[1])
			if err != nil || label < 0 || label >= len(Classes) {
				return errors.Errorf("manifest row for %q has invalid label %q", row[0], row[1])
			}
			imgPath := path.Join(ds.dataDir, row[0])
			if _, err := os.Stat(imgPath); err != nil {
				return errors.Wrapf(datasets.ErrMissingData, "manifest references %q: %v", imgPath, err)
			}
			ds.samples = append(ds.samples, Sample{File: row[0], Label: int32(label)})
			return nil
		})
	if err != nil {
		return err
	}
	if len(ds.samples) == 0 {
		return errors.Wrapf(datasets.ErrMissingData, "manifest %q holds no records", manifestPath)
	}
	return nil
}

// Name identifies the split, e.g. for metric names.
func (ds *Dataset) Name() string { return ds.name }

// Len implements datasets.VisionDataset.
func (ds *Dataset) Len() int { return len(ds.samples) }

// Samples returns a copy of the manifest records.
func (ds *Dataset) Samples() []Sample {
	samples := make([]Sample, len(ds.samples))
	copy(samples, ds.samples)
	return samples
}

// ClassName of the given label.
func (ds *Dataset) ClassName(label int32) string {
	if label < 0 || int(label) >= len(Classes) {
		return "unknown"
	}
	return Classes[label]
}

// At implements datasets.VisionDataset: it reads and decodes the image of the
// manifest record at index and returns it along with its label, after
// applying the configured transform.
func (ds *Dataset) At(index int) (image.Image, int32, error) {
	if index < 0 || index >= len(ds.samples) {
		return nil, 0, errors.Wrapf(datasets.ErrIndexOutOfRange, "index %d, dataset %q has %d samples",
			index, ds.name, len(ds.samples))
	}
	sample := ds.samples[index]
	imgPath := path.Join(ds.dataDir, sample.File)
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, 0, errors.Wrapf(datasets.ErrCorruptSample, "failed to open %q: %v", imgPath, err)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, errors.Wrapf(datasets.ErrCorruptSample, "failed to decode %q: %v", imgPath, err)
	}
	if ds.transform != nil {
		img = ds.transform(img)
	}
	return img, sample.Label, nil
}
