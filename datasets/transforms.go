package datasets

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Transform maps a decoded image to its processed representation, applied by
// datasets on every At call. Transforms must be stateless: they are invoked
// concurrently from data-loading workers.
type Transform func(image.Image) image.Image

// Compose chains transforms, applied in order.
func Compose(transforms ...Transform) Transform {
	return func(img image.Image) image.Image {
		for _, t := range transforms {
			img = t(img)
		}
		return img
	}
}

// ResizeCenterCrop resizes the smallest dimension to size preserving the
// aspect ratio, and then crops the largest dimension to size, from the middle.
func ResizeCenterCrop(size int) Transform {
	return func(img image.Image) image.Image {
		width := img.Bounds().Dx()
		height := img.Bounds().Dy()
		if width < height {
			ratio := float64(width) / float64(size)
			width = size
			height = int(math.Round(float64(height) / ratio))
		} else if height < width {
			ratio := float64(height) / float64(size)
			height = size
			width = int(math.Round(float64(width) / ratio))
		} else {
			width = size
			height = size
		}
		img = imaging.Resize(img, width, height, imaging.Linear)

		if width > height {
			start := (width - size) / 2
			img = imaging.Crop(img, image.Rect(start, 0, start+size, size))
		} else if height > width {
			start := (height - size) / 2
			img = imaging.Crop(img, image.Rect(0, start, size, start+size))
		}
		return img
	}
}

// ResizeWithPadding resizes the image to width x height without distorting the
// scale: the image is fit inside the target rectangle and centered, the rest
// is transparent padding.
func ResizeWithPadding(width, height int) Transform {
	return func(img image.Image) image.Image {
		imgSize := img.Bounds().Size()
		wRatio := float64(width) / float64(imgSize.X)
		hRatio := float64(height) / float64(imgSize.Y)

		adjustedWidth, adjustedHeight := width, height
		if wRatio < hRatio {
			adjustedHeight = int(wRatio * float64(imgSize.Y))
		} else if hRatio < wRatio {
			adjustedWidth = int(hRatio * float64(imgSize.X))
		}
		img = imaging.Resize(img, adjustedWidth, adjustedHeight, imaging.Lanczos)
		if adjustedWidth != width || adjustedHeight != height {
			bgImg := image.NewRGBA(image.Rect(0, 0, width, height))
			img = imaging.PasteCenter(bgImg, img)
		}
		return img
	}
}
