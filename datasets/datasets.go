// Copyright (C) 2022-2026, Pyronear.

// Package datasets provides the vision dataset abstractions used across
// pyrovision: a minimal random-access interface over labeled image
// collections, image transforms, and helpers to subset and wrap datasets.
//
// Concrete datasets live in sub-packages (e.g. openfire, wildfire). Anything
// implementing VisionDataset can be consumed by the training-side adapters.
package datasets

import (
	"image"

	"github.com/pkg/errors"
)

// VisionDataset is a random-access collection of labeled images.
//
// Implementations must be safe for concurrent calls to Len and At after
// construction: no internal mutable shared state.
type VisionDataset interface {
	// Len returns the number of samples. It is fixed after construction.
	Len() int

	// At returns the (image, label) pair at the given index, with the
	// dataset's transform (if any) already applied.
	//
	// It fails with ErrIndexOutOfRange if index is outside [0, Len()) and
	// with ErrCorruptSample if the underlying image cannot be decoded.
	At(index int) (image.Image, int32, error)
}

// Slice is an in-memory VisionDataset backed by parallel slices of images
// and labels. Mostly useful in tests and as a substitution target.
type Slice struct {
	Images []image.Image
	Labels []int32
}

var _ VisionDataset = &Slice{}

// NewSlice creates an in-memory dataset from the given images and labels.
func NewSlice(images []image.Image, labels []int32) (*Slice, error) {
	if len(images) != len(labels) {
		return nil, errors.Errorf("got %d images but %d labels, they must match", len(images), len(labels))
	}
	return &Slice{Images: images, Labels: labels}, nil
}

// Len implements VisionDataset.
func (s *Slice) Len() int { return len(s.Images) }

// At implements VisionDataset.
func (s *Slice) At(index int) (image.Image, int32, error) {
	if index < 0 || index >= len(s.Images) {
		return nil, 0, errors.Wrapf(ErrIndexOutOfRange, "index %d, dataset has %d samples", index, len(s.Images))
	}
	return s.Images[index], s.Labels[index], nil
}

// Subset exposes a selection of indices of an underlying VisionDataset as a
// dataset of its own. The selection is fixed at construction.
type Subset struct {
	ds      VisionDataset
	indices []int
}

var _ VisionDataset = &Subset{}

// NewSubset creates a Subset of ds with the given indices. All indices must
// be valid in ds.
func NewSubset(ds VisionDataset, indices []int) (*Subset, error) {
	for _, idx := range indices {
		if idx < 0 || idx >= ds.Len() {
			return nil, errors.Wrapf(ErrIndexOutOfRange, "subset index %d, dataset has %d samples", idx, ds.Len())
		}
	}
	return &Subset{ds: ds, indices: indices}, nil
}

// Take returns a Subset with the first n samples of ds, clamped to [0, Len()].
func Take(ds VisionDataset, n int) *Subset {
	if n < 0 {
		n = 0
	}
	if n > ds.Len() {
		n = ds.Len()
	}
	indices := make([]int, n)
	for ii := range indices {
		indices[ii] = ii
	}
	return &Subset{ds: ds, indices: indices}
}

// Len implements VisionDataset.
func (s *Subset) Len() int { return len(s.indices) }

// At implements VisionDataset.
func (s *Subset) At(index int) (image.Image, int32, error) {
	if index < 0 || index >= len(s.indices) {
		return nil, 0, errors.Wrapf(ErrIndexOutOfRange, "index %d, subset has %d samples", index, len(s.indices))
	}
	return s.ds.At(s.indices[index])
}
