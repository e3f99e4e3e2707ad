// Copyright (C) 2022-2026, Pyronear.

package openfire

import (
	"image"
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/compute/dtypes"
	"github.com/pkg/errors"

	"github.com/pyronear/pyrovision/datasets"
)

// BatchDataset adapts any datasets.VisionDataset to GoMLX's train.Dataset, so
// it can be used by a train.Loop object to train or evaluate: it batches
// samples, optionally shuffling them every epoch, and converts images and
// labels to tensors.
//
// Images are resized (with padding) to a fixed width x height, since a batch
// tensor requires all images to share the same shape.
type BatchDataset struct {
	name string
	src  datasets.VisionDataset

	batchSize     int
	width, height int
	resize        datasets.Transform
	toTensor      *timage.ToTensorConfig
	dtype         dtypes.DType

	// mu protects position and indices across concurrent Yield calls.
	mu       sync.Mutex
	shuffle  *rand.Rand
	indices  []int
	position int
}

var _ train.Dataset = &BatchDataset{}

// NewBatchDataset creates a train.Dataset that yields batches of images from
// src.
//
// It takes the following arguments:
//
//   - name: identifies the dataset in metrics and plots.
//   - src: the indexed dataset to read from.
//   - batchSize: how many images are returned by each Yield call, at least 1.
//   - width, height: images are resized (scale preserving, padded) to this
//     size before batching.
//   - shuffle: if set (not nil), the order of samples is reshuffled at every
//     epoch. Leave nil for evaluation datasets.
//   - dtype: dtype of the yielded image tensors.
func NewBatchDataset(name string, src datasets.VisionDataset, batchSize, width, height int,
	shuffle *rand.Rand, dtype dtypes.DType) (*BatchDataset, error) {
	if batchSize < 1 {
		return nil, errors.Errorf("batchSize must be at least 1, got %d", batchSize)
	}
	ds := &BatchDataset{
		name:      name,
		src:       src,
		batchSize: batchSize,
		width:     width,
		height:    height,
		resize:    datasets.ResizeWithPadding(width, height),
		toTensor:  timage.ToTensor(dtype).WithAlpha(),
		dtype:     dtype,
		shuffle:   shuffle,
	}
	ds.reshuffleLocked()
	return ds, nil
}

// reshuffleLocked regenerates the epoch order. mu must be held (or the
// dataset not yet shared).
func (ds *BatchDataset) reshuffleLocked() {
	if ds.indices == nil {
		ds.indices = make([]int, ds.src.Len())
		for ii := range ds.indices {
			ds.indices[ii] = ii
		}
	}
	if ds.shuffle != nil {
		ds.shuffle.Shuffle(len(ds.indices), func(i, j int) {
			ds.indices[i], ds.indices[j] = ds.indices[j], ds.indices[i]
		})
	}
	ds.position = 0
}

// Name implements train.Dataset.
func (ds *BatchDataset) Name() string { return ds.name }

// Reset implements train.Dataset: it restarts the epoch, reshuffling if
// configured to.
func (ds *BatchDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.reshuffleLocked()
}

// nextBatchIndices reserves the sample indices of the next batch. Returns
// io.EOF when the epoch is exhausted.
func (ds *BatchDataset) nextBatchIndices() ([]int, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.position >= len(ds.indices) {
		return nil, io.EOF
	}
	end := ds.position + ds.batchSize
	if end > len(ds.indices) {
		end = len(ds.indices)
	}
	batch := ds.indices[ds.position:end]
	ds.position = end
	return batch, nil
}

// YieldImages yields the next batch as raw images and labels, usable for
// display or pre-processing. See Yield for the tensor version.
func (ds *BatchDataset) YieldImages() (images []image.Image, labels []int32, err error) {
	batch, err := ds.nextBatchIndices()
	if err != nil {
		return nil, nil, err
	}
	images = make([]image.Image, 0, len(batch))
	labels = make([]int32, 0, len(batch))
	for _, idx := range batch {
		img, label, err := ds.src.At(idx)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "while reading sample %d of %q", idx, ds.name)
		}
		images = append(images, ds.resize(img))
		labels = append(labels, label)
	}
	return images, labels, nil
}

// Yield implements train.Dataset. It returns:
//
//   - spec: the BatchDataset pointer itself.
//   - inputs: one tensor, the images batch shaped
//     `[batch_size, height, width, depth=4]`.
//   - labels: one tensor with the class of each image, shaped `[batch_size]`.
func (ds *BatchDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec = ds
	images, labelValues, err := ds.YieldImages()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{ds.toTensor.Batch(images)}
	labels = []*tensors.Tensor{tensors.FromAnyValue(shapes.CastAsDType(labelValues, ds.dtype))}
	return
}
