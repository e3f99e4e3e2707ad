package openfire

import (
	"image"
	"image/color"
	"io"
	"math/rand"
	"testing"

	"github.com/gomlx/compute/dtypes"
	"github.com/stretchr/testify/require"

	"github.com/pyronear/pyrovision/datasets"
)

func testSource(t *testing.T, numSamples int) datasets.VisionDataset {
	t.Helper()
	images := make([]image.Image, numSamples)
	labels := make([]int32, numSamples)
	for ii := range images {
		img := image.NewRGBA(image.Rect(0, 0, 20+ii, 10+ii))
		for y := 0; y < img.Bounds().Dy(); y++ {
			for x := 0; x < img.Bounds().Dx(); x++ {
				img.Set(x, y, color.RGBA{R: uint8(ii * 10), A: 255})
			}
		}
		images[ii] = img
		labels[ii] = int32(ii % 2)
	}
	src, err := datasets.NewSlice(images, labels)
	require.NoError(t, err)
	return src
}

func TestBatchDatasetYield(t *testing.T) {
	src := testSource(t, 5)
	ds, err := NewBatchDataset("openfire-test", src, 2, 16, 16, nil, dtypes.Float32)
	require.NoError(t, err)
	require.Equal(t, "openfire-test", ds.Name())

	// 5 samples at batchSize 2: two full batches, one of size 1, then EOF.
	for _, wantBatch := range []int{2, 2, 1} {
		spec, inputs, labels, err := ds.Yield()
		require.NoError(t, err)
		require.Equal(t, ds, spec)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		require.Equal(t, []int{wantBatch, 16, 16, 4}, inputs[0].Shape().Dimensions)
		require.Equal(t, []int{wantBatch}, labels[0].Shape().Dimensions)
		require.Equal(t, dtypes.Float32, inputs[0].DType())
	}
	_, _, _, err = ds.Yield()
	require.ErrorIs(t, err, io.EOF)

	// Reset starts a fresh epoch.
	ds.Reset()
	_, inputs, _, err := ds.Yield()
	require.NoError(t, err)
	require.Equal(t, []int{2, 16, 16, 4}, inputs[0].Shape().Dimensions)
}

func TestBatchDatasetInvalidBatchSize(t *testing.T) {
	src := testSource(t, 3)
	// A non-positive batch size would yield empty batches forever, never
	// reaching io.EOF.
	for _, batchSize := range []int{0, -1} {
		_, err := NewBatchDataset("openfire-test", src, batchSize, 16, 16, nil, dtypes.Float32)
		require.ErrorContains(t, err, "batchSize")
	}
}

func TestBatchDatasetShuffle(t *testing.T) {
	src := testSource(t, 8)
	ds, err := NewBatchDataset("openfire-test", src, 8, 8, 8, rand.New(rand.NewSource(42)), dtypes.Float32)
	require.NoError(t, err)

	_, first, err := ds.YieldImages()
	require.NoError(t, err)
	ds.Reset()
	_, second, err := ds.YieldImages()
	require.NoError(t, err)

	// Each epoch sees every label exactly once, in some order.
	count := func(labels []int32) (zeros, ones int) {
		for _, l := range labels {
			if l == 0 {
				zeros++
			} else {
				ones++
			}
		}
		return
	}
	z1, o1 := count(first)
	z2, o2 := count(second)
	require.Equal(t, 4, z1)
	require.Equal(t, 4, o1)
	require.Equal(t, 4, z2)
	require.Equal(t, 4, o2)
}
