//go:build cgo
// +build cgo

package sysmonit

import (
	"image"

	"gocv.io/x/gocv"
)

// frameValidationMinLuminance/MaxLuminance bound the mean luminance of a
// decoded frame's central region (spec.md §4.9): a value outside this
// range almost always means the native decoder handed back a garbage
// frame (solid black on connection loss, solid white on certain codec
// failures) rather than real video content.
const (
	frameValidationMinLuminance = 1.0
	frameValidationMaxLuminance = 254.0
)

// IsFrameValid samples the central 50%x50% region of frame, converts it
// to grayscale, and rejects frames whose mean luminance indicates a
// decode failure. When enabled is false the check is skipped and every
// frame is accepted, per spec.md §4.9.
func IsFrameValid(frame *gocv.Mat, enabled bool) bool {
	if !enabled {
		return true
	}
	if frame == nil || frame.Empty() {
		return false
	}

	w, h := frame.Cols(), frame.Rows()
	x1, y1 := w/4, h/4
	x2, y2 := x1+w/2, y1+h/2
	if x2 <= x1 || y2 <= y1 {
		return true
	}

	region := frame.Region(image.Rect(x1, y1, x2, y2))
	defer region.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	mean := gray.Mean()
	luminance := mean.Val1

	return luminance >= frameValidationMinLuminance && luminance <= frameValidationMaxLuminance
}
