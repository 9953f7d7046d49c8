// Package detector defines the object-detector contract the sysmonit
// pipeline consumes and a concrete implementation backed by OpenCV's DNN
// module. Accuracy tuning of the underlying model is out of scope; this
// package only wraps whatever model is configured behind a small,
// swappable Go interface, the same shape the teacher wraps its native
// MediaPipe bridge in (pkg/mediapipe/processor.go's Processor).
package detector

import (
	"context"
	"fmt"
)

// Detection is a single detected object in one frame, in the coordinate
// space of the frame passed to Detect.
type Detection struct {
	TrackID    int
	ClassName  string
	Confidence float64
	X1, Y1, X2, Y2 float64
}

// Detector is the external collaborator contract: given a frame, return
// tracked detections above minConfidence. Implementations own both
// detection and any cross-frame association needed to assign stable
// TrackIDs — the pipeline treats this as an opaque black box (no
// detector accuracy tuning is in scope here).
type Detector interface {
	// Detect runs inference plus tracking association on one BGR frame
	// of the given dimensions and returns its tracks.
	Detect(ctx context.Context, frameBGR []byte, width, height int, minConfidence float64) ([]Detection, error)
	// Close releases any native resources (model weights, GPU context).
	Close() error
}

// ErrDetectorClosed is returned by Detect once Close has been called.
var ErrDetectorClosed = fmt.Errorf("detector: closed")
