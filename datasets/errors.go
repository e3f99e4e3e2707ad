package datasets

import "github.com/pkg/errors"

// Error taxonomy shared by all datasets. Callers match with errors.Is;
// wrapping adds the dataset and path context.
var (
	// ErrMissingData: the dataset root (or its manifest) is absent and
	// downloading was not allowed.
	ErrMissingData = errors.New("dataset files not found, construct with download enabled to fetch them")

	// ErrDownloadFailure: network or storage error while fetching the
	// dataset. Fatal, the root may be left in an indeterminate state and
	// requires manual cleanup.
	ErrDownloadFailure = errors.New("dataset download failed")

	// ErrCorruptSample: a sample file exists but cannot be decoded.
	ErrCorruptSample = errors.New("corrupt sample")

	// ErrIndexOutOfRange: sample index outside [0, Len()).
	ErrIndexOutOfRange = errors.New("sample index out of range")
)
