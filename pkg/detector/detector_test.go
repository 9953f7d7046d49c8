package detector

import (
	"context"
	"testing"
)

// fakeDetector is a minimal Detector used to confirm the interface shape
// is actually implementable by a non-gocv collaborator (e.g. a test
// double or an alternate backend).
type fakeDetector struct {
	detections []Detection
	closed     bool
}

func (f *fakeDetector) Detect(ctx context.Context, frameBGR []byte, width, height int, minConfidence float64) ([]Detection, error) {
	if f.closed {
		return nil, ErrDetectorClosed
	}
	var out []Detection
	for _, d := range f.detections {
		if d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

var _ Detector = (*fakeDetector)(nil)

func TestFakeDetector_FiltersByConfidence(t *testing.T) {
	d := &fakeDetector{detections: []Detection{
		{TrackID: 1, ClassName: "car", Confidence: 0.9},
		{TrackID: 2, ClassName: "car", Confidence: 0.2},
	}}

	out, err := d.Detect(context.Background(), nil, 640, 480, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].TrackID != 1 {
		t.Errorf("expected only the high-confidence detection, got %+v", out)
	}
}

func TestFakeDetector_ClosedReturnsError(t *testing.T) {
	d := &fakeDetector{}
	d.Close()

	if _, err := d.Detect(context.Background(), nil, 640, 480, 0); err != ErrDetectorClosed {
		t.Errorf("expected ErrDetectorClosed, got %v", err)
	}
}
