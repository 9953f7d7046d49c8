//go:build cgo
// +build cgo

package detector

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// ONNXConfig configures the bundled gocv DNN backend.
type ONNXConfig struct {
	ModelPath   string
	ClassNames  []string
	InputWidth  int
	InputHeight int
	// UseCUDA requests the CUDA backend/target when the OpenCV build
	// supports it; falls back silently to CPU otherwise.
	UseCUDA bool
}

// ONNXDetector implements Detector using gocv.ReadNetFromONNX, grounded
// on the teacher's pkg/mediapipe/processor.go shape (a cgo-adjacent
// native model wrapped behind a small Go interface, guarded by a mutex
// and a closed flag) — generalized from a cgo bridge to a bundled
// MediaPipe library into gocv's own DNN module, since this detector is a
// generic object detector rather than a proprietary native library.
//
// Cross-frame track association is intentionally minimal (nearest-
// centroid matching against the previous frame's detections): the spec
// treats the detector/tracker as an external black box and explicitly
// excludes detector accuracy tuning from scope.
type ONNXDetector struct {
	cfg ONNXConfig
	net gocv.Net

	mu     sync.Mutex
	closed bool

	nextTrackID int
	prevTracks  []Detection
}

// NewONNXDetector loads the ONNX model at cfg.ModelPath.
func NewONNXDetector(cfg ONNXConfig) (*ONNXDetector, error) {
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("detector: failed to load onnx model %q", cfg.ModelPath)
	}

	if cfg.UseCUDA {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	}

	if cfg.InputWidth == 0 {
		cfg.InputWidth = 640
	}
	if cfg.InputHeight == 0 {
		cfg.InputHeight = 640
	}

	return &ONNXDetector{cfg: cfg, net: net, nextTrackID: 1}, nil
}

// Detect runs the model on one BGR frame and returns tracked detections
// above minConfidence.
func (d *ONNXDetector) Detect(ctx context.Context, frameBGR []byte, width, height int, minConfidence float64) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDetectorClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, frameBGR)
	if err != nil {
		return nil, fmt.Errorf("detector: decoding frame bytes: %w", err)
	}
	defer mat.Close()

	size := image.Pt(d.cfg.InputWidth, d.cfg.InputHeight)
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	raw := parseDetections(out, d.cfg.ClassNames, minConfidence, width, height)
	tracks := d.assignTrackIDs(raw)
	d.prevTracks = tracks

	return tracks, nil
}

// assignTrackIDs does nearest-centroid association against the previous
// frame's detections, assigning a fresh id to anything unmatched. This
// is deliberately simple: the pipeline's counting/queue logic only needs
// stable ids across consecutive frames, not re-identification accuracy.
func (d *ONNXDetector) assignTrackIDs(raw []Detection) []Detection {
	const maxMatchDistance = 80.0

	used := make([]bool, len(d.prevTracks))
	out := make([]Detection, len(raw))

	for i, det := range raw {
		cx, cy := (det.X1+det.X2)/2, (det.Y1+det.Y2)/2

		bestIdx := -1
		bestDist := maxMatchDistance
		for j, prev := range d.prevTracks {
			if used[j] {
				continue
			}
			pcx, pcy := (prev.X1+prev.X2)/2, (prev.Y1+prev.Y2)/2
			dist := distance(cx, cy, pcx, pcy)
			if dist < bestDist {
				bestDist = dist
				bestIdx = j
			}
		}

		det := det
		if bestIdx >= 0 {
			used[bestIdx] = true
			det.TrackID = d.prevTracks[bestIdx].TrackID
		} else {
			det.TrackID = d.nextTrackID
			d.nextTrackID++
		}
		out[i] = det
	}

	return out
}

func distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}

// parseDetections reads a YOLO-style [1, N, 5+numClasses] output tensor
// (box cx,cy,w,h + objectness + per-class scores) and converts it to
// frame-pixel Detections above minConfidence.
func parseDetections(out gocv.Mat, classNames []string, minConfidence float64, frameWidth, frameHeight int) []Detection {
	if out.Empty() {
		return nil
	}

	sizes := out.Size()
	if len(sizes) < 3 {
		return nil
	}
	numBoxes := sizes[1]
	numValues := sizes[2]
	numClasses := numValues - 5
	if numClasses <= 0 {
		return nil
	}

	var detections []Detection
	for i := 0; i < numBoxes; i++ {
		cx := float64(out.GetFloatAt3(0, i, 0))
		cy := float64(out.GetFloatAt3(0, i, 1))
		w := float64(out.GetFloatAt3(0, i, 2))
		h := float64(out.GetFloatAt3(0, i, 3))
		objectness := float64(out.GetFloatAt3(0, i, 4))

		bestClass := -1
		bestScore := 0.0
		for c := 0; c < numClasses; c++ {
			score := float64(out.GetFloatAt3(0, i, 5+c))
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}

		confidence := objectness * bestScore
		if confidence < minConfidence || bestClass < 0 {
			continue
		}

		className := "unknown"
		if bestClass < len(classNames) {
			className = classNames[bestClass]
		}

		detections = append(detections, Detection{
			ClassName:  className,
			Confidence: confidence,
			X1:         clampCoord(cx-w/2, float64(frameWidth)),
			Y1:         clampCoord(cy-h/2, float64(frameHeight)),
			X2:         clampCoord(cx+w/2, float64(frameWidth)),
			Y2:         clampCoord(cy+h/2, float64(frameHeight)),
		})
	}

	return detections
}

func clampCoord(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Close releases the underlying network.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.net.Close()
	return nil
}
