package wildfire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func subSetFiles(t *testing.T, m *Metadata) []string {
	t.Helper()
	files := make([]string, 0, m.Len())
	for row := 0; row < m.Len(); row++ {
		files = append(files, m.Value(row, ColImgFile))
	}
	return files
}

func TestComputeSubSet(t *testing.T) {
	_, metadata := buildFixture(t, 10, 10)

	subSet, err := ComputeSubSet(metadata, 2, 0, 17)
	require.NoError(t, err)
	require.Equal(t, 20, subSet.Len(), "2 frames out of each of the 10 sequences")

	// Picks are distinct within each sequence.
	seen := make(map[string]bool)
	for _, file := range subSetFiles(t, subSet) {
		require.False(t, seen[file], "frame %q picked twice", file)
		seen[file] = true
	}

	// Same seed, same frames. Different seed, (almost surely) different ones.
	again, err := ComputeSubSet(metadata, 2, 0, 17)
	require.NoError(t, err)
	require.Equal(t, subSetFiles(t, subSet), subSetFiles(t, again))
	other, err := ComputeSubSet(metadata, 2, 0, 18)
	require.NoError(t, err)
	require.NotEqual(t, subSetFiles(t, subSet), subSetFiles(t, other))
}

func TestComputeSubSetNotFireProb(t *testing.T) {
	_, metadata := buildFixture(t, 10, 10)

	// With probability 1, every one of the 5 no-fire sequences contributes a
	// second batch of 2 frames.
	subSet, err := ComputeSubSet(metadata, 2, 1, 17)
	require.NoError(t, err)
	require.Equal(t, 30, subSet.Len())
}

func TestComputeSubSetShortSequences(t *testing.T) {
	_, metadata := buildFixture(t, 3, 2)

	// Sequences shorter than framesPerSeq contribute all their frames.
	subSet, err := ComputeSubSet(metadata, 5, 0, 17)
	require.NoError(t, err)
	require.Equal(t, 6, subSet.Len())
}

func TestComputeSubSetValidation(t *testing.T) {
	_, metadata := buildFixture(t, 2, 2)
	_, err := ComputeSubSet(metadata, 0, 0, 17)
	require.Error(t, err)

	noBase := NewMetadata([]string{ColImgFile, ColFire}, [][]string{{"a.png", "1"}})
	_, err = ComputeSubSet(noBase, 2, 0, 17)
	require.ErrorContains(t, err, ColBase)
}
