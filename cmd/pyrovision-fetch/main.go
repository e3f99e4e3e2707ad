// Copyright (C) 2022-2026, Pyronear.

// pyrovision-fetch downloads the OpenFire dataset and reports its contents:
//
//	pyrovision-fetch --data ~/tmp/openfire
//
// With --check it additionally decodes every sample, reporting the corrupt
// ones, using as many workers as there are cores.
package main

import (
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/pyronear/pyrovision/datasets"
	"github.com/pyronear/pyrovision/datasets/downloader"
	"github.com/pyronear/pyrovision/datasets/openfire"
)

var (
	flagDataDir    = flag.String("data", "~/tmp/openfire", "Directory to cache the downloaded dataset files.")
	flagCheck      = flag.Bool("check", false, "Decode every sample and report the corrupt ones.")
	flagNumSamples = flag.Int("samples", 0, "If > 0, limit each split to this many samples.")
	flagWorkers    = flag.Int("workers", 0, "Workers used by --check. 0 means number of cores + 1.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	dataDir := downloader.ReplaceTildeInDir(*flagDataDir)
	for _, train := range []bool{true, false} {
		ds, err := openfire.New(openfire.Config{
			Root:       dataDir,
			Train:      train,
			Download:   true,
			NumSamples: *flagNumSamples,
		})
		if err != nil {
			klog.Exitf("Failed to load OpenFire: %+v", err)
		}
		report(dataDir, ds)
		if *flagCheck {
			check(ds)
		}
	}
}

// report prints the number of samples per class and their size on disk.
func report(dataDir string, ds *openfire.Dataset) {
	counts := make([]int, len(openfire.Classes))
	var totalBytes uint64
	for _, sample := range ds.Samples() {
		counts[sample.Label]++
		info, err := os.Stat(path.Join(dataDir, openfire.LocalDir, sample.File))
		if err != nil {
			klog.Warningf("Cannot stat %q: %v", sample.File, err)
			continue
		}
		totalBytes += uint64(info.Size())
	}
	fmt.Printf("%s: %d samples (%s on disk)\n", ds.Name(), ds.Len(), humanize.IBytes(totalBytes))
	for label, class := range openfire.Classes {
		fmt.Printf("\t%-8s %d\n", class, counts[label])
	}
}

// check decodes every sample in parallel and reports failures.
func check(ds *openfire.Dataset) {
	indices := make([]int, ds.Len())
	for ii := range indices {
		indices[ii] = ii
	}
	errs := datasets.Parallel(func(idx int) error {
		_, _, err := ds.At(idx)
		return err
	}, indices, *flagWorkers, true)
	numCorrupt := 0
	for idx, err := range errs {
		if err != nil {
			numCorrupt++
			klog.Warningf("Sample %d of %q is corrupt: %v", idx, ds.Name(), err)
		}
	}
	if numCorrupt == 0 {
		fmt.Printf("\tall %d samples decoded correctly\n", ds.Len())
	} else {
		fmt.Printf("\t%d of %d samples failed to decode\n", numCorrupt, ds.Len())
	}
}
