package openfire

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pyronear/pyrovision/datasets"
)

func writePNG(t *testing.T, imgPath string, seed uint8) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path.Dir(imgPath), 0777))
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: seed, G: 128, B: 255 - seed, A: 255})
		}
	}
	f, err := os.Create(imgPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// buildRoot materializes a valid dataset root with the given number of
// samples per split, labels alternating between the classes. Returns the
// expected labels per split.
func buildRoot(t *testing.T, root string, numTrain, numVal int) map[string][]int32 {
	t.Helper()
	dataDir := path.Join(root, LocalDir)
	labels := make(map[string][]int32)
	for manifest, num := range map[string]int{trainManifest: numTrain, valManifest: numVal} {
		var rows strings.Builder
		rows.WriteString("file,label\n")
		for ii := 0; ii < num; ii++ {
			file := fmt.Sprintf("images/%s_%03d.png", strings.TrimSuffix(manifest, ".csv"), ii)
			label := int32(ii % len(Classes))
			writePNG(t, path.Join(dataDir, file), uint8(ii))
			rows.WriteString(fmt.Sprintf("%s,%d\n", file, label))
			labels[manifest] = append(labels[manifest], label)
		}
		require.NoError(t, os.WriteFile(path.Join(dataDir, manifest), []byte(rows.String()), 0666))
	}
	return labels
}

func TestMissingData(t *testing.T) {
	_, err := New(Config{Root: t.TempDir(), Download: false})
	require.ErrorIs(t, err, datasets.ErrMissingData)
}

func TestDataset(t *testing.T) {
	root := t.TempDir()
	wantLabels := buildRoot(t, root, 8, 4)

	trainDS, err := New(Config{Root: root, Train: true})
	require.NoError(t, err)
	require.Equal(t, 8, trainDS.Len())
	require.Equal(t, "openfire-train", trainDS.Name())

	valDS, err := New(Config{Root: root})
	require.NoError(t, err)
	require.Equal(t, 4, valDS.Len())

	// Labels follow the manifest order.
	for ii := 0; ii < trainDS.Len(); ii++ {
		img, label, err := trainDS.At(ii)
		require.NoError(t, err)
		require.NotNil(t, img)
		require.Equal(t, wantLabels[trainManifest][ii], label)
	}

	require.Equal(t, "no_fire", trainDS.ClassName(0))
	require.Equal(t, "fire", trainDS.ClassName(1))
	require.Equal(t, "unknown", trainDS.ClassName(7))
}

func TestIndexOutOfRange(t *testing.T) {
	root := t.TempDir()
	buildRoot(t, root, 3, 1)
	ds, err := New(Config{Root: root, Train: true})
	require.NoError(t, err)

	_, _, err = ds.At(-1)
	require.ErrorIs(t, err, datasets.ErrIndexOutOfRange)
	_, _, err = ds.At(ds.Len())
	require.ErrorIs(t, err, datasets.ErrIndexOutOfRange)
}

func TestCorruptSample(t *testing.T) {
	root := t.TempDir()
	buildRoot(t, root, 2, 1)

	// Overwrite one image with bytes that don't decode.
	dataDir := path.Join(root, LocalDir)
	require.NoError(t, os.WriteFile(path.Join(dataDir, "images/train_001.png"), []byte("not an image"), 0666))

	ds, err := New(Config{Root: root, Train: true})
	require.NoError(t, err)

	_, _, err = ds.At(0)
	require.NoError(t, err)
	_, _, err = ds.At(1)
	require.ErrorIs(t, err, datasets.ErrCorruptSample)
}

func TestTransformAndNumSamples(t *testing.T) {
	root := t.TempDir()
	buildRoot(t, root, 6, 2)

	ds, err := New(Config{
		Root:       root,
		Train:      true,
		Transform:  datasets.ResizeCenterCrop(8),
		NumSamples: 4,
	})
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())

	img, _, err := ds.At(0)
	require.NoError(t, err)
	require.Equal(t, 8, img.Bounds().Dx())
	require.Equal(t, 8, img.Bounds().Dy())
}

func TestManifestWithMissingImage(t *testing.T) {
	root := t.TempDir()
	buildRoot(t, root, 2, 1)
	dataDir := path.Join(root, LocalDir)
	manifest := path.Join(dataDir, trainManifest)
	content, err := os.ReadFile(manifest)
	require.NoError(t, err)
	content = append(content, []byte("images/ghost.png,1\n")...)
	require.NoError(t, os.WriteFile(manifest, content, 0666))

	// Construction fails fast rather than producing a partially usable dataset.
	_, err = New(Config{Root: root, Train: true})
	require.ErrorIs(t, err, datasets.ErrMissingData)
}

func TestStaleRootMissingManifest(t *testing.T) {
	// The extracted directory exists but lacks the train manifest: the no-op
	// fetch must surface a download failure pointing at the stale directory.
	root := t.TempDir()
	dataDir := path.Join(root, LocalDir)
	writePNG(t, path.Join(dataDir, "images/val_000.png"), 1)
	require.NoError(t, os.WriteFile(path.Join(dataDir, valManifest),
		[]byte("file,label\nimages/val_000.png,0\n"), 0666))

	_, err := New(Config{Root: root, Train: true, Download: true})
	require.ErrorIs(t, err, datasets.ErrDownloadFailure)
	require.ErrorContains(t, err, "holds no manifest")
	require.ErrorContains(t, err, dataDir)
}

// tarGzDir packs the openfire directory under srcRoot the way the released
// tarball is laid out.
func tarGzDir(t *testing.T, srcRoot string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	err := filepath.Walk(path.Join(srcRoot, LocalDir), func(filePath string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(srcRoot, filePath)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		content, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}
		_, err = tw.Write(content)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDownloadIsIdempotent(t *testing.T) {
	// Build a tarball fixture and serve it, counting the fetches.
	srcRoot := t.TempDir()
	buildRoot(t, srcRoot, 4, 2)
	tarball := tarGzDir(t, srcRoot)
	hash := sha256.Sum256(tarball)

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(tarball)))
		_, _ = w.Write(tarball)
	}))
	defer server.Close()

	oldURL, oldHash := DownloadURL, TarHash
	DownloadURL, TarHash = server.URL+"/openfire.tar.gz", hex.EncodeToString(hash[:])
	defer func() { DownloadURL, TarHash = oldURL, oldHash }()

	root := t.TempDir()
	ds, err := New(Config{Root: root, Train: true, Download: true})
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())
	require.Equal(t, int64(1), requests.Load())

	// Constructing again, with download still enabled, must reuse the data.
	ds, err = New(Config{Root: root, Train: true, Download: true})
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())
	ds, err = New(Config{Root: root, Download: true})
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	require.Equal(t, int64(1), requests.Load(), "already-present data must not be fetched again")
}
