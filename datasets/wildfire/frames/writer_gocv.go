//go:build gocv
// +build gocv

package frames

import (
	"path"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"k8s.io/klog/v2"
)

// writeFrames decodes the source videos and writes one PNG per selected
// frame. Labels must be sorted by (video, frame), which lets each video be
// opened once and read forward.
func (e *Extractor) writeFrames(labels []FrameLabel, framesDir string) error {
	var capture *gocv.VideoCapture
	currentBase := ""
	defer func() {
		if capture != nil {
			_ = capture.Close()
		}
	}()

	img := gocv.NewMat()
	defer img.Close()

	for _, label := range labels {
		if label.Base != currentBase {
			if capture != nil {
				_ = capture.Close()
			}
			videoPath := path.Join(e.VideosDir, label.Base)
			var err error
			capture, err = gocv.VideoCaptureFile(videoPath)
			if err != nil {
				return errors.Wrapf(err, "failed to open video %q", videoPath)
			}
			currentBase = label.Base
		}
		capture.Set(gocv.VideoCapturePosFrames, float64(label.Frame))
		if ok := capture.Read(&img); !ok || img.Empty() {
			return errors.Errorf("failed to read frame %d of video %q", label.Frame, label.Base)
		}
		imgPath := path.Join(framesDir, label.ImgFile)
		if ok := gocv.IMWrite(imgPath, img); !ok {
			return errors.Errorf("failed to write frame image %q", imgPath)
		}
		klog.V(2).Infof("Wrote %s (video %s, frame %d)", imgPath, label.Base, label.Frame)
	}
	return nil
}
