// Copyright (C) 2022-2026, Pyronear.

// Package frames extracts still frames from wildfire videos, following a
// states table: a state describes the scene between two frames that keep the
// same labels (e.g. between frames 27 and 56, fire seeable at position x,y).
//
// Frame selection (which frames of each state to keep) is pure Go; the actual
// video decoding relies on OpenCV through gocv and is only compiled with the
// "gocv" build tag.
package frames

import (
	"fmt"
	"math/rand"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/pyronear/pyrovision/datasets"
	"github.com/pyronear/pyrovision/datasets/downloader"
)

// Strategy selects how frames are picked inside a state's range.
type Strategy string

const (
	// StrategyRandom picks frames at random within the state range.
	StrategyRandom Strategy = "random"

	// StrategyEvenly picks evenly spaced frames: first if one frame,
	// first+last if two, first+middle+last if three, and so on.
	StrategyEvenly Strategy = "evenly"
)

// Strategies lists the accepted values.
var Strategies = []Strategy{StrategyRandom, StrategyEvenly}

// State is one row of the states table: a frame range of a source video
// during which the labels hold.
type State struct {
	// Base is the file name of the source video, e.g. "3.mp4".
	Base string

	// Start and End delimit the frame range, both inclusive.
	Start, End int
}

// FrameLabel is a frame selected for extraction and the image file it will be
// written to.
type FrameLabel struct {
	State

	// Frame index in the source video.
	Frame int

	// ImgFile is "<video stem>_frame<index>.png".
	ImgFile string
}

// LoadStates reads a states CSV file, expecting at least the fBase,
// stateStart and stateEnd columns.
func LoadStates(csvPath string) ([]State, error) {
	var states []State
	colBase, colStart, colEnd := -1, -1, -1
	err := downloader.ParseCSVFile(csvPath,
		func(header []string) error {
			for idx, name := range header {
				switch name {
				case "fBase":
					colBase = idx
				case "stateStart":
					colStart = idx
				case "stateEnd":
					colEnd = idx
				}
			}
			if colBase < 0 || colStart < 0 || colEnd < 0 {
				return errors.Errorf("states file misses one of the fBase, stateStart, stateEnd columns (header=%v)", header)
			}
			return nil
		},
		func(row []string) error {
			var state State
			state.Base = row[colBase]
			if _, err := fmt.Sscanf(row[colStart], "%d", &state.Start); err != nil {
				return errors.Wrapf(err, "invalid stateStart %q", row[colStart])
			}
			if _, err := fmt.Sscanf(row[colEnd], "%d", &state.End); err != nil {
				return errors.Wrapf(err, "invalid stateEnd %q", row[colEnd])
			}
			states = append(states, state)
			return nil
		})
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, errors.Wrapf(datasets.ErrMissingData, "states file %q holds no states", csvPath)
	}
	return states, nil
}

// PickFrames returns the frame indices selected for one state.
//
// With StrategyRandom the frames are drawn from the state range without
// replacement, unless allowDuplicates is set. With StrategyEvenly they are
// evenly spaced over the range. A range shorter than nFrames is an error
// unless allowDuplicates is set.
func PickFrames(state State, nFrames int, strategy Strategy, allowDuplicates bool, rng *rand.Rand) ([]int, error) {
	if nFrames <= 0 {
		return nil, errors.Errorf("nFrames must be positive, got %d", nFrames)
	}
	rangeLen := state.End - state.Start + 1
	if rangeLen <= 0 {
		return nil, errors.Errorf("state of %q has empty frame range [%d, %d]", state.Base, state.Start, state.End)
	}
	if rangeLen < nFrames {
		if !allowDuplicates {
			return nil, errors.Errorf("not enough frames available (%d) in the state to extract %d frames from %q",
				rangeLen, nFrames, state.Base)
		}
		klog.Warningf("Only %d frames available in a state of %q to extract %d: duplicate labels will be "+
			"registered, though one image file is written per unique frame.", rangeLen, state.Base, nFrames)
	}

	switch strategy {
	case StrategyRandom:
		frames := make([]int, 0, nFrames)
		if allowDuplicates {
			for ii := 0; ii < nFrames; ii++ {
				frames = append(frames, state.Start+rng.Intn(rangeLen))
			}
		} else {
			for _, p := range rng.Perm(rangeLen)[:nFrames] {
				frames = append(frames, state.Start+p)
			}
		}
		return frames, nil
	case StrategyEvenly:
		frames := make([]int, nFrames)
		if nFrames == 1 {
			frames[0] = state.Start
			return frames, nil
		}
		step := float64(state.End-state.Start) / float64(nFrames-1)
		for ii := range frames {
			frames[ii] = state.Start + int(float64(ii)*step)
		}
		return frames, nil
	}
	return nil, errors.Errorf("strategy %q is unknown, choose from %v", strategy, Strategies)
}

// BuildFrameLabels picks nFrames per state and returns the labels sorted by
// (video, frame). Deterministic under seed.
func BuildFrameLabels(states []State, nFrames int, strategy Strategy, allowDuplicates bool, seed int64) ([]FrameLabel, error) {
	rng := rand.New(rand.NewSource(seed))
	labels := make([]FrameLabel, 0, len(states)*nFrames)
	for _, state := range states {
		frames, err := PickFrames(state, nFrames, strategy, allowDuplicates, rng)
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(state.Base, path.Ext(state.Base))
		for _, frame := range frames {
			labels = append(labels, FrameLabel{
				State:   state,
				Frame:   frame,
				ImgFile: fmt.Sprintf("%s_frame%d.png", stem, frame),
			})
		}
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Base != labels[j].Base {
			return labels[i].Base < labels[j].Base
		}
		return labels[i].Frame < labels[j].Frame
	})
	return labels, nil
}
