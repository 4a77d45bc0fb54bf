// Package resize wraps github.com/nfnt/resize for the nearest-neighbor
// upscale of a gain map to its base image's resolution (spec's gain
// map decode step). The supplementary whole-container resize helpers
// in resize.go do not use this package; they resample with the kernels
// in resize_interpolation.go.
package resize

import (
	"image"

	"github.com/nfnt/resize"
)

// NearestNeighbor upscales or downscales img to (w, h) using
// nearest-neighbor sampling, the only interpolation spec.md's gain map
// decode step (§4.8, §4.10) permits when gain-map and base dimensions
// differ.
func NearestNeighbor(img image.Image, w, h uint) image.Image {
	return resize.Resize(w, h, img, resize.NearestNeighbor)
}

// Bilinear, Bicubic and Lanczos3 wrap the matching nfnt/resize
// filters. Nothing else in this module calls them.
func Bilinear(img image.Image, w, h uint) image.Image {
	return resize.Resize(w, h, img, resize.Bilinear)
}

func Bicubic(img image.Image, w, h uint) image.Image {
	return resize.Resize(w, h, img, resize.Bicubic)
}

func Lanczos3(img image.Image, w, h uint) image.Image {
	return resize.Resize(w, h, img, resize.Lanczos3)
}
