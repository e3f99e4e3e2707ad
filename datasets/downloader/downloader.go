// Copyright (C) 2022-2026, Pyronear.

// Package downloader fetches dataset archives over HTTP, verifies their
// checksum and extracts them. Setup is one-shot and idempotent: files and
// extracted directories already present are reused, never fetched again.
package downloader

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/user"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/pyronear/pyrovision/datasets"
)

// FileExists returns whether the file or directory exists, or an error if the
// filesystem could not be queried.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to stat %q", path)
}

// MustFileExists is like FileExists but panics on filesystem errors.
func MustFileExists(path string) bool {
	exists, err := FileExists(path)
	if err != nil {
		panic(err)
	}
	return exists
}

// ReplaceTildeInDir replaces a leading "~" by the user's home directory.
// Returns dir unchanged if it doesn't start with "~".
func ReplaceTildeInDir(dir string) string {
	if len(dir) == 0 || dir[0] != '~' {
		return dir
	}
	usr, err := user.Current()
	if err != nil {
		klog.Warningf("Cannot resolve current user to expand %q: %v", dir, err)
		return dir
	}
	return path.Join(usr.HomeDir, dir[1:])
}

// ValidateChecksum verifies that the sha256 of the file in the given path
// matches checkHash. On mismatch it removes the file (!) and returns an error:
// a partially downloaded archive is not recoverable.
func ValidateChecksum(path, checkHash string) error {
	hasher := sha256.New()
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q for checksum", path)
	}
	defer func() {
		_ = f.Close() // Discard reading error on Close.
	}()

	if _, err = io.Copy(hasher, f); err != nil {
		return errors.Wrapf(err, "failed to read %q for checksum", path)
	}
	fileHash := hex.EncodeToString(hasher.Sum(nil))
	if fileHash != strings.ToLower(checkHash) {
		err = errors.Wrapf(datasets.ErrDownloadFailure,
			"file %q sha256 hash is %q, but expected %q, deleting file", path, fileHash, checkHash)
		if e2 := os.Remove(path); e2 != nil {
			klog.Warningf("Failed to remove %q, which failed the checksum test, please remove it manually: %v", path, e2)
		}
		return err
	}
	return nil
}

// ByteCountIEC converts a byte count to a string using binary prefixes
// (B, KiB, MiB, ...).
func ByteCountIEC(count int64) string {
	const unit = 1024
	if count < unit {
		return fmt.Sprintf("%d B", count)
	}
	div, exp := int64(unit), 0
	for n := count / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(count)/float64(div), "KMGTPE"[exp])
}

// copyBytesBar copies bytes from an io.Reader to an io.Writer while displaying
// a progressbar. It requires knowing the contentLength.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	contentLength, amountWritten  int64
	barUnit, numUnits, addedUnits int64
}

func newCopyBytesBar(w io.Writer, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w, contentLength: contentLength}
	bar.barUnit = 1
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions(int(bar.numUnits),
		progressbar.OptionSetDescription(ByteCountIEC(contentLength)),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	return bar
}

// Write implements io.Writer, while updating the progress bar.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	toUnits := bar.amountWritten / bar.barUnit
	if toUnits > bar.addedUnits {
		_ = bar.bar.Add(int(toUnits - bar.addedUnits))
		bar.addedUnits = toUnits
	}
	return
}

// CopyWithProgressBar is similar to io.Copy, but updates a progress bar with
// the amount of data copied. It requires knowing the amount up-front.
func CopyWithProgressBar(dst io.Writer, src io.Reader, contentLength int64) (n int64, err error) {
	bar := newCopyBytesBar(dst, contentLength)
	n, err = io.Copy(bar, src)
	if bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add(int(bar.numUnits - bar.addedUnits))
	}
	_ = bar.bar.Close()
	fmt.Println()
	return
}

// Download file from url and save it at the given path. Attempts to create
// the directory if it doesn't yet exist.
//
// Failures wrap datasets.ErrDownloadFailure: they are fatal and no retry is
// attempted here.
func Download(url, filePath string, showProgressBar bool) (size int64, err error) {
	filePath = ReplaceTildeInDir(filePath)
	err = os.MkdirAll(path.Dir(filePath), 0777)
	if err != nil && !os.IsExist(err) {
		return 0, errors.Wrapf(err, "failed to create the directory for the path %q", path.Dir(filePath))
	}
	var file *os.File
	file, err = os.Create(filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file %q", filePath)
	}
	client := http.Client{
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			r.URL.Opaque = r.URL.Path
			return nil
		},
	}
	var resp *http.Response
	resp, err = client.Get(url)
	if err != nil {
		return 0, errors.Wrapf(datasets.ErrDownloadFailure, "failed downloading %q: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return 0, errors.Wrapf(datasets.ErrDownloadFailure, "downloading %q: got status %q", url, resp.Status)
	}

	if showProgressBar {
		size, err = CopyWithProgressBar(file, resp.Body, resp.ContentLength)
	} else {
		size, err = io.Copy(file, resp.Body)
	}
	if err != nil {
		return 0, errors.Wrapf(datasets.ErrDownloadFailure, "downloading %q to %q: %v", url, filePath, err)
	}
	if err = file.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", filePath)
	}
	if err = resp.Body.Close(); err != nil {
		return 0, errors.Wrapf(datasets.ErrDownloadFailure, "failed closing connection to %q: %v", url, err)
	}
	return size, nil
}

// DownloadIfMissing will check if the path exists already, and if not it will
// download the file from the given URL.
//
// If checkHash is provided, it checks that the file has the hash or fails.
func DownloadIfMissing(url, filePath, checkHash string) error {
	filePath = ReplaceTildeInDir(filePath)
	exists, err := FileExists(filePath)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Printf("Downloading %s ...\n", url)
		if _, err := Download(url, filePath, true); err != nil {
			return err
		}
	}
	if checkHash == "" {
		return nil
	}
	return ValidateChecksum(filePath, checkHash)
}

// Untar file, using decompression flags according to suffix: .gz for gzip,
// .bz2 for bzip2.
func Untar(baseDir, tarFile string) error {
	baseDir = ReplaceTildeInDir(baseDir)
	compressionFlag := ""
	if strings.HasSuffix(tarFile, ".gz") || strings.HasSuffix(tarFile, ".tgz") {
		compressionFlag = "z"
	} else if strings.HasSuffix(tarFile, ".bz2") {
		compressionFlag = "j"
	}
	cmd := exec.Command("tar", fmt.Sprintf("x%sf", compressionFlag), tarFile)
	cmd.Dir = baseDir
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "failed to run %q", cmd)
	}
	return nil
}

// DownloadAndUntarIfMissing downloads tarFile from the given url, if the file
// is not there yet, and then untars it if the target directory is missing.
//
// If checkHash is provided, it checks that the file has the hash or fails.
func DownloadAndUntarIfMissing(url, baseDir, tarFile, targetUntarDir, checkHash string) error {
	baseDir = ReplaceTildeInDir(baseDir)
	if !path.IsAbs(tarFile) {
		tarFile = path.Join(baseDir, tarFile)
	}
	if !path.IsAbs(targetUntarDir) {
		targetUntarDir = path.Join(baseDir, targetUntarDir)
	}
	exists, err := FileExists(targetUntarDir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := DownloadIfMissing(url, tarFile, checkHash); err != nil {
		return err
	}
	if err := Untar(baseDir, tarFile); err != nil {
		return err
	}
	exists, err = FileExists(targetUntarDir)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(datasets.ErrDownloadFailure,
			"downloaded from %q and untar'ed %q, but didn't get directory %q", url, tarFile, targetUntarDir)
	}
	return nil
}

// ParseCSVFile opens a CSV file and iterates over each of its rows, calling
// perRowFn with a slice of strings for each cell value in the row. The first
// row is the header and is given to headerFn, if not nil.
func ParseCSVFile(filePath string, headerFn func(header []string) error, perRowFn func(row []string) error) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "while reading CSV %q", filePath)
		}
		if first {
			first = false
			if headerFn != nil {
				if err = headerFn(record); err != nil {
					return errors.WithMessagef(err, "while parsing header of %q", filePath)
				}
				continue
			}
			continue
		}
		if err = perRowFn(record); err != nil {
			return errors.WithMessagef(err, "while processing file %q", filePath)
		}
	}
	return nil
}
