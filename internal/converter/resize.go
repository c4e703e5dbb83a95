package converter

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

var resampleFilters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"box":        imaging.Box,
	"linear":     imaging.Linear,
	"catmullrom": imaging.CatmullRom,
	"lanczos":    imaging.Lanczos,
}

// ParseFilter maps a resample name to an imaging filter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	f, ok := resampleFilters[strings.ToLower(name)]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
	return f, nil
}

// TargetSize computes the output dimensions for a w x h image. rw and rh
// are the requested width and height, zero when absent. When only one is
// given the other is scaled to keep the aspect ratio, rounded to the
// nearest pixel and never below 1. ok is false when no resize is needed.
func TargetSize(w, h, rw, rh int) (tw, th int, ok bool) {
	switch {
	case rw <= 0 && rh <= 0:
		return w, h, false
	case rw > 0 && rh > 0:
		return rw, rh, true
	case rw > 0:
		return rw, scaled(h, rw, w), true
	default:
		return scaled(w, rh, h), rh, true
	}
}

// maxDimension bounds a computed side length so it always fits in an int.
const maxDimension = math.MaxInt32

// scaled returns round(n * num / den), within 1..maxDimension.
func scaled(n, num, den int) int {
	if den <= 0 {
		return 1
	}
	v := math.Round(float64(n) * float64(num) / float64(den))
	switch {
	case v < 1:
		return 1
	case v > maxDimension:
		return maxDimension
	}
	return int(v)
}

// Resize applies the Request dimensions to img. The image is returned
// unchanged when neither dimension is set. A target larger than maxPixels
// fails with ErrTooLarge before anything is allocated.
func Resize(img image.Image, req Request, filter imaging.ResampleFilter, maxPixels int64) (image.Image, error) {
	b := img.Bounds()
	tw, th, ok := TargetSize(b.Dx(), b.Dy(), req.Width, req.Height)
	if !ok {
		return img, nil
	}
	if err := checkPixels(tw, th, maxPixels); err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	return imaging.Resize(img, tw, th, filter), nil
}
