// Copyright (C) 2022-2026, Pyronear.

// Package wildfire provides a dataset over frames extracted from wildfire
// videos, described by a CSV metadata table: each row maps a frame image file
// to its labels (fire presence, fire id, ...). It includes per-sequence
// subsampling and a splitter that keeps frames of the same fire in the same
// split.
package wildfire

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"

	"github.com/pyronear/pyrovision/datasets"
	"github.com/pyronear/pyrovision/datasets/downloader"
)

// Well-known metadata columns.
const (
	ColImgFile = "imgFile"
	ColFire    = "fire"
	ColFireID  = "fire_id"
	ColBase    = "fBase"
)

// Metadata is an immutable view over the frames metadata table, a gota
// dataframe with by-name column access. Subsampling and splitting produce row
// views through Select.
type Metadata struct {
	df dataframe.DataFrame
}

// LoadMetadata reads a metadata CSV file, the first row being the header.
func LoadMetadata(csvPath string) (*Metadata, error) {
	exists, err := downloader.FileExists(csvPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(datasets.ErrMissingData, "metadata file %q not found", csvPath)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open metadata %q", csvPath)
	}
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f)
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse metadata %q", csvPath)
	}
	return &Metadata{df: df}, nil
}

// NewMetadata builds a table from a header and rows, mostly for tests and
// programmatic construction.
func NewMetadata(header []string, rows [][]string) *Metadata {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	records = append(records, rows...)
	return &Metadata{df: dataframe.LoadRecords(records)}
}

// Len returns the number of rows.
func (m *Metadata) Len() int { return m.df.Nrow() }

// Value of the given column at the given row. Empty if the column doesn't
// exist.
func (m *Metadata) Value(row int, column string) string {
	if row < 0 || row >= m.df.Nrow() || !m.HasColumn(column) {
		return ""
	}
	return m.df.Col(column).Elem(row).String()
}

// Records returns all values of the given column as strings, or nil if the
// column doesn't exist.
func (m *Metadata) Records(column string) []string {
	if !m.HasColumn(column) {
		return nil
	}
	return m.df.Col(column).Records()
}

// Float parses the given cell as a float64.
func (m *Metadata) Float(row int, column string) (float64, error) {
	if !m.HasColumn(column) {
		return 0, errors.Errorf("metadata has no column %q", column)
	}
	v, err := strconv.ParseFloat(m.Value(row, column), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "metadata row %d column %q", row, column)
	}
	return v, nil
}

// HasColumn reports whether the table has the given column.
func (m *Metadata) HasColumn(column string) bool {
	for _, name := range m.df.Names() {
		if name == column {
			return true
		}
	}
	return false
}

// Select returns a view with only the given rows, in the given order.
func (m *Metadata) Select(rowIndices []int) *Metadata {
	return &Metadata{df: m.df.Subset(rowIndices)}
}

// Config for New.
type Config struct {
	// Metadata table. Exactly one of Metadata or MetadataPath must be set.
	Metadata *Metadata

	// MetadataPath is the CSV file to load the table from.
	MetadataPath string

	// FramesDir is the directory holding the frame images referenced by the
	// imgFile column.
	FramesDir string

	// Transform applied to every frame returned by At.
	Transform datasets.Transform

	// TargetColumns selects which metadata columns make the target vector
	// returned by At. Defaults to {"fire"}.
	TargetColumns []string
}

// Dataset indexes wildfire frames: At(i) returns the frame image and the
// values of the target columns for row i. Immutable after construction.
type Dataset struct {
	metadata  *Metadata
	framesDir string
	transform datasets.Transform
	targets   []string
}

// New builds a wildfire frames dataset from config. It validates that the
// metadata is present and has the imgFile and target columns.
func New(config Config) (*Dataset, error) {
	metadata := config.Metadata
	if metadata == nil {
		if config.MetadataPath == "" {
			return nil, errors.Errorf("wildfire.New requires Metadata or MetadataPath")
		}
		var err error
		metadata, err = LoadMetadata(config.MetadataPath)
		if err != nil {
			return nil, err
		}
	}
	targets := config.TargetColumns
	if len(targets) == 0 {
		targets = []string{ColFire}
	}
	if !metadata.HasColumn(ColImgFile) {
		return nil, errors.Errorf("metadata has no %q column", ColImgFile)
	}
	for _, target := range targets {
		if !metadata.HasColumn(target) {
			return nil, errors.Errorf("metadata has no target column %q", target)
		}
	}
	return &Dataset{
		metadata:  metadata,
		framesDir: downloader.ReplaceTildeInDir(config.FramesDir),
		transform: config.Transform,
		targets:   targets,
	}, nil
}

// Len returns the number of frames.
func (ds *Dataset) Len() int { return ds.metadata.Len() }

// Metadata returns the underlying table.
func (ds *Dataset) Metadata() *Metadata { return ds.metadata }

// At returns the frame image at index and its target vector, one value per
// configured target column.
func (ds *Dataset) At(index int) (image.Image, []float32, error) {
	if index < 0 || index >= ds.metadata.Len() {
		return nil, nil, errors.Wrapf(datasets.ErrIndexOutOfRange, "index %d, dataset has %d frames",
			index, ds.metadata.Len())
	}
	imgPath := path.Join(ds.framesDir, ds.metadata.Value(index, ColImgFile))
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, nil, errors.Wrapf(datasets.ErrCorruptSample, "failed to open %q: %v", imgPath, err)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, nil, errors.Wrapf(datasets.ErrCorruptSample, "failed to decode %q: %v", imgPath, err)
	}
	if ds.transform != nil {
		img = ds.transform(img)
	}
	targets := make([]float32, len(ds.targets))
	for ii, column := range ds.targets {
		v, err := ds.metadata.Float(index, column)
		if err != nil {
			return nil, nil, err
		}
		targets[ii] = float32(v)
	}
	return img, targets, nil
}

// withMetadata derives a dataset over a different view of the metadata,
// keeping frames dir and targets, with an optional transform override.
func (ds *Dataset) withMetadata(metadata *Metadata, transform datasets.Transform) *Dataset {
	if transform == nil {
		transform = ds.transform
	}
	return &Dataset{
		metadata:  metadata,
		framesDir: ds.framesDir,
		transform: transform,
		targets:   ds.targets,
	}
}
