// Copyright (C) 2022-2026, Pyronear.

package datasets

import (
	"net/url"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// defaultExtension is assumed when a sample URL carries none.
const defaultExtension = ".jpg"

// FilenameFromURL finds the local file name to store a sample downloaded from
// rawURL: the query string is dropped, the base name is truncated to
// maxBaseLength runes (0 means no limit) and, when the URL has no extension,
// ".jpg" is assumed.
func FilenameFromURL(rawURL string, maxBaseLength int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid sample URL %q", rawURL)
	}
	name := path.Base(u.Path)
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = defaultExtension
	}
	if maxBaseLength > 0 {
		if runes := []rune(base); len(runes) > maxBaseLength {
			base = string(runes[:maxBaseLength])
		}
	}
	return base + ext, nil
}

// Parallel applies fn to every element of items using numWorkers goroutines,
// preserving the input order in the results. If numWorkers is 0 it defaults
// to the number of cores plus 1. With showProgress set, a progress bar is
// displayed while the work lasts.
//
// fn must be safe for concurrent calls.
func Parallel[T, R any](fn func(T) R, items []T, numWorkers int, showProgress bool) []R {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU() + 1
	}
	if numWorkers > len(items) {
		numWorkers = len(items)
	}
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	var pBar *progressbar.ProgressBar
	if showProgress {
		pBar = progressbar.NewOptions(len(items),
			progressbar.OptionSetDescription("Processing"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for ii := 0; ii < numWorkers; ii++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				results[idx] = fn(items[idx])
				if pBar != nil {
					_ = pBar.Add(1)
				}
			}
		}()
	}
	for idx := range items {
		indices <- idx
	}
	close(indices)
	wg.Wait()
	if pBar != nil {
		_ = pBar.Close()
	}
	return results
}
