package frames

import (
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Extractor extracts frames from wildfire videos according to a strategy and
// a states table.
type Extractor struct {
	// VideosDir holds the full source videos named by the fBase column.
	VideosDir string

	// States to extract from, usually loaded with LoadStates.
	States []State

	// StatesName is the base name used for the labels file, typically the
	// stem of the states CSV.
	StatesName string

	// Strategy of frame picking. Defaults to StrategyRandom.
	Strategy Strategy

	// NFrames picked per state.
	NFrames int
}

// NewExtractor loads the states file and validates the strategy.
func NewExtractor(videosDir, statesPath string, strategy Strategy, nFrames int) (*Extractor, error) {
	if strategy == "" {
		strategy = StrategyRandom
	}
	valid := false
	for _, s := range Strategies {
		if strategy == s {
			valid = true
			break
		}
	}
	if !valid {
		return nil, errors.Errorf("strategy %q is unknown, choose from %v", strategy, Strategies)
	}
	states, err := LoadStates(statesPath)
	if err != nil {
		return nil, err
	}
	name := path.Base(statesPath)
	name = strings.TrimSuffix(name, path.Ext(name))
	return &Extractor{
		VideosDir:  videosDir,
		States:     states,
		StatesName: name,
		Strategy:   strategy,
		NFrames:    nFrames,
	}, nil
}

// Run picks the frames, writes the frame labels CSV under framesDir and
// extracts the frame images from the videos. It returns the labels written.
//
// Frame extraction decodes videos with OpenCV and requires building with the
// "gocv" tag; without it Run fails before touching any video.
func (e *Extractor) Run(framesDir string, allowDuplicates bool, seed int64) ([]FrameLabel, error) {
	labels, err := BuildFrameLabels(e.States, e.NFrames, e.Strategy, allowDuplicates, seed)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(framesDir, 0777); err != nil && !os.IsExist(err) {
		return nil, errors.Wrapf(err, "failed to create frames directory %q", framesDir)
	}

	labelsPath := path.Join(framesDir, e.StatesName+".labels.csv")
	fmt.Printf("Writing frame labels to %s\n", labelsPath)
	if err := writeLabels(labelsPath, labels); err != nil {
		return nil, err
	}

	fmt.Printf("Extracting %d frames per state (%d in total) to %s\n", e.NFrames, len(labels), framesDir)
	if err := e.writeFrames(labels, framesDir); err != nil {
		return nil, err
	}
	return labels, nil
}

func writeLabels(labelsPath string, labels []FrameLabel) error {
	f, err := os.Create(labelsPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create labels file %q", labelsPath)
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"fBase", "stateStart", "stateEnd", "frame", "imgFile"})
	for _, label := range labels {
		_ = w.Write([]string{
			label.Base,
			strconv.Itoa(label.Start),
			strconv.Itoa(label.End),
			strconv.Itoa(label.Frame),
			label.ImgFile,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed writing labels file %q", labelsPath)
	}
	return errors.Wrapf(f.Close(), "failed closing labels file %q", labelsPath)
}
