//go:build !gocv
// +build !gocv

package frames

import "github.com/pkg/errors"

// writeFrames requires OpenCV: build with the "gocv" tag to enable video
// decoding.
func (e *Extractor) writeFrames(labels []FrameLabel, framesDir string) error {
	return errors.Errorf("frame extraction from videos requires building with the \"gocv\" tag (OpenCV)")
}
