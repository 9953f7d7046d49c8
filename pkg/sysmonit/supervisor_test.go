//go:build cgo
// +build cgo

package sysmonit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juanpfsti/sysMonit/pkg/detector"
	"gocv.io/x/gocv"
)

type fakeDetector struct {
	mu     sync.Mutex
	dets   []detector.Detection
	err    error
	closed bool
	calls  int
}

func (f *fakeDetector) Detect(ctx context.Context, frameBGR []byte, width, height int, minConfidence float64) ([]detector.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.dets, f.err
}

func (f *fakeDetector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeCounterSink struct {
	mu        sync.Mutex
	snapshots []*CountersSnapshot
	events    []CountEvent
	closed    bool
}

func (f *fakeCounterSink) SaveSnapshot(rtspURL string, snapshot *CountersSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snapshot.Clone())
	return nil
}

func (f *fakeCounterSink) AppendEvent(event CountEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeCounterSink) FlushAndClose() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeQueueSink struct {
	mu     sync.Mutex
	events []QueueEvent
	closed bool
}

func (f *fakeQueueSink) SaveEvent(event QueueEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeQueueSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		RTSPURL:       "rtsp://127.0.0.1:1/does-not-exist",
		ConfidenceMin: 0.5,
		CountingMode:  "line",
		Line: LineConfig{
			X1Ratio: 0, X2Ratio: 1, YRatio: 0.5,
		},
		Queue: QueueConfig{
			ThresholdSeconds: 60,
			MinWaitSeconds:   5,
		},
		TrackTTL:        ttlForTest(),
	}
}

func TestPipelineState_String(t *testing.T) {
	cases := []struct {
		state PipelineState
		want  string
	}{
		{PipelineIdle, "idle"},
		{PipelineRunning, "running"},
		{PipelineStopped, "stopped"},
		{PipelineClosed, "closed"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("PipelineState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestResolvePixelGeometry(t *testing.T) {
	mid := 0.5
	line := LineConfig{X1Ratio: 0.1, X2Ratio: 0.9, YRatio: 0.5, XMidRatio: &mid}
	zones := ZonesConfig{
		Down: ZoneRect{X1: 0, Y1: 0.5, X2: 1, Y2: 1},
		Up:   ZoneRect{X1: 0, Y1: 0, X2: 1, Y2: 0.5},
	}
	queue := QueueConfig{Polygon: []Point{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.75}}}

	rl, rz, rq := resolvePixelGeometry(1000, 500, line, zones, queue)

	if rl.X1Ratio != 100 || rl.X2Ratio != 900 || rl.YRatio != 250 {
		t.Errorf("unexpected resolved line: %+v", rl)
	}
	if rl.XMidRatio == nil || *rl.XMidRatio != 500 {
		t.Errorf("expected resolved mid 500, got %v", rl.XMidRatio)
	}
	if rz.Down.Y1 != 250 || rz.Down.Y2 != 500 {
		t.Errorf("unexpected resolved down zone: %+v", rz.Down)
	}
	if rq.Polygon[0].X != 250 || rq.Polygon[0].Y != 125 {
		t.Errorf("unexpected resolved polygon point: %+v", rq.Polygon[0])
	}
}

func TestToTracks_VehicleClassFilter(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Categories = []string{"car", "bus"}
	p := NewPipelineSupervisor(cfg, nil, nil, nil)

	raw := []detector.Detection{
		{TrackID: 1, ClassName: "car", X2: 10, Y2: 10},
		{TrackID: 2, ClassName: "dog", X2: 10, Y2: 10},
		{TrackID: 3, ClassName: "bus", X2: 10, Y2: 10},
	}

	tracks := p.toTracks(raw, time.Now())
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks after filtering, got %d", len(tracks))
	}
	for _, tr := range tracks {
		if tr.ClassName == "dog" {
			t.Errorf("expected \"dog\" to be filtered out, got track %+v", tr)
		}
	}
}

func TestToTracks_NoFilterPassesEverything(t *testing.T) {
	p := NewPipelineSupervisor(testPipelineConfig(), nil, nil, nil)

	raw := []detector.Detection{
		{TrackID: 1, ClassName: "car"},
		{TrackID: 2, ClassName: "anything"},
	}

	tracks := p.toTracks(raw, time.Now())
	if len(tracks) != 2 {
		t.Fatalf("expected no filtering with empty Categories, got %d tracks", len(tracks))
	}
}

func TestMaybeSaveSnapshot_FixedCadenceIgnoresReportInterval(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ReportInterval = time.Millisecond // far below snapshotSaveInterval
	sink := &fakeCounterSink{}
	p := NewPipelineSupervisor(cfg, nil, sink, nil)

	now := time.Now()
	p.maybeSaveSnapshot(now)
	p.maybeSaveSnapshot(now.Add(time.Second))

	sink.mu.Lock()
	got := len(sink.snapshots)
	sink.mu.Unlock()
	if got != 1 {
		t.Errorf("expected 1 snapshot within the fixed 5s cadence despite a 1ms ReportInterval, got %d", got)
	}

	p.maybeSaveSnapshot(now.Add(snapshotSaveInterval + time.Second))
	sink.mu.Lock()
	got = len(sink.snapshots)
	sink.mu.Unlock()
	if got != 2 {
		t.Errorf("expected a second snapshot after snapshotSaveInterval elapsed, got %d", got)
	}
}

func TestMaybeLogStatus_GatedByReportInterval(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ReportInterval = 10 * time.Second
	p := NewPipelineSupervisor(cfg, nil, nil, nil)
	p.queueManager = NewQueueManager(cfg.Queue, cfg.Queue.ThresholdSeconds)

	now := time.Now()
	p.maybeLogStatus(now, nil)
	if !p.lastStatusLog.Equal(now) {
		t.Fatalf("expected first call to log immediately, lastStatusLog=%v", p.lastStatusLog)
	}

	p.maybeLogStatus(now.Add(time.Second), nil)
	if !p.lastStatusLog.Equal(now) {
		t.Errorf("expected second call within ReportInterval to be suppressed, lastStatusLog=%v", p.lastStatusLog)
	}

	p.maybeLogStatus(now.Add(11*time.Second), nil)
	if p.lastStatusLog.Equal(now) {
		t.Errorf("expected call past ReportInterval to log again")
	}
}

func TestNewPipelineSupervisor_DefaultsIdle(t *testing.T) {
	p := NewPipelineSupervisor(testPipelineConfig(), nil, nil, nil)
	if p.State() != PipelineIdle {
		t.Errorf("expected idle state, got %s", p.State())
	}
}

func TestPipelineSupervisor_StartStop(t *testing.T) {
	p := NewPipelineSupervisor(testPipelineConfig(), nil, nil, nil)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.State() != PipelineRunning {
		t.Errorf("expected running state, got %s", p.State())
	}
	if err := p.Start(); err != ErrPipelineRunning {
		t.Errorf("expected ErrPipelineRunning, got %v", err)
	}

	start := time.Now()
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took too long to return: %s", elapsed)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.State() != PipelineClosed {
		t.Errorf("expected closed state, got %s", p.State())
	}
}

func TestPipelineSupervisor_ToggleActive(t *testing.T) {
	p := NewPipelineSupervisor(testPipelineConfig(), nil, nil, nil)

	if p.monitoringActive.Load() {
		t.Error("expected monitoring inactive by default")
	}
	p.SetMonitoringActive(true)
	if !p.monitoringActive.Load() {
		t.Error("expected monitoring active after SetMonitoringActive(true)")
	}

	p.SetQueueActive(true)
	if !p.queueActive.Load() {
		t.Error("expected queue active after SetQueueActive(true)")
	}
}

func TestPipelineSupervisor_ProcessFrameCountsAndPersists(t *testing.T) {
	cfg := testPipelineConfig()
	det := &fakeDetector{dets: []detector.Detection{
		{TrackID: 1, ClassName: "car", Confidence: 0.9, X1: 40, Y1: 20, X2: 60, Y2: 40},
	}}
	counters := &fakeCounterSink{}
	queueSink := &fakeQueueSink{}

	p := NewPipelineSupervisor(cfg, det, counters, queueSink)
	p.ctx = context.Background()
	p.SetMonitoringActive(true)

	below := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	below.SetTo(gocv.NewScalar(120, 120, 120, 0))
	p.processFrame(Frame{Mat: below.Clone(), CapturedAt: time.Now()})
	below.Close()

	det.mu.Lock()
	det.dets[0].Y1, det.dets[0].Y2 = 60, 80
	det.mu.Unlock() // centroid y moves from 30 to 70, crossing the y=50 line

	above := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	above.SetTo(gocv.NewScalar(120, 120, 120, 0))
	p.processFrame(Frame{Mat: above.Clone(), CapturedAt: time.Now()})
	above.Close()

	counters.mu.Lock()
	numEvents := len(counters.events)
	counters.mu.Unlock()

	if numEvents != 1 {
		t.Fatalf("expected 1 counted crossing event, got %d", numEvents)
	}

	snap := p.snapshotCounters()
	if snap.Total(DirectionForward)+snap.Total(DirectionReturn) != 1 {
		t.Errorf("expected exactly 1 total count, got forward=%d return=%d", snap.Total(DirectionForward), snap.Total(DirectionReturn))
	}
}

func TestPipelineSupervisor_NilDetectorSkipsDetection(t *testing.T) {
	cfg := testPipelineConfig()
	p := NewPipelineSupervisor(cfg, nil, nil, nil)
	p.ctx = context.Background()
	p.SetMonitoringActive(true)

	mat := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(120, 120, 120, 0))

	p.processFrame(Frame{Mat: mat, CapturedAt: time.Now()})

	snap := p.snapshotCounters()
	if snap.Total(DirectionForward)+snap.Total(DirectionReturn) != 0 {
		t.Error("expected no counts with a nil detector")
	}
}
