//go:build cgo
// +build cgo

package sysmonit

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juanpfsti/sysMonit/pkg/detector"
	"gocv.io/x/gocv"
)

// Common errors returned by PipelineSupervisor.
var (
	ErrPipelineClosed  = errors.New("sysmonit: pipeline is closed")
	ErrPipelineRunning = errors.New("sysmonit: pipeline is already running")
	ErrPipelineStopped = errors.New("sysmonit: pipeline is not running")
)

// Reconnect policy (spec.md §4.2): a handful of fast attempts, then slow
// retries indefinitely. TrackTTL/noDataBreakThreshold bound the
// per-track GC sweep and the "freeze-equivalent" repeated-NoData case.
const (
	maxFastRetries       = 5
	fastRetryInterval    = 5 * time.Second
	slowRetryInterval    = 60 * time.Second
	reconnectSliceWindow = 100 * time.Millisecond
	defaultTrackTTL      = 2 * time.Second
	noDataBreakThreshold = 5

	// snapshotSaveInterval is the counters-snapshot save cadence (spec.md
	// §4.7 batching contract): fixed, not user-configurable, matching the
	// original's hardcoded counter.py `_save_interval = 5.0`.
	snapshotSaveInterval = 5 * time.Second

	// defaultReportInterval is the fallback periodic status-log cadence
	// when PipelineConfig.ReportInterval is unset.
	defaultReportInterval = 15 * time.Second
)

// Status strings PipelineSupervisor reports on its status channel
// (spec.md §7's error taxonomy maps directly onto these).
const (
	StatusIdle          = "Idle"
	StatusRunning       = "Running"
	StatusReconnecting  = "Reconnecting"
	StatusOffline       = "Offline"
	StatusErrorModel    = "Error: Model"
)

// CounterSink is the persistence contract PipelineSupervisor drives for
// counters + history. Satisfied structurally by *store.CounterStore;
// defined here (rather than importing pkg/store) because store imports
// sysmonit for its domain types — an import the other way would cycle.
type CounterSink interface {
	SaveSnapshot(rtspURL string, snapshot *CountersSnapshot) error
	AppendEvent(event CountEvent) error
	FlushAndClose() error
}

// QueueSink is the persistence contract for completed queue waits,
// satisfied structurally by *store.QueueStore.
type QueueSink interface {
	SaveEvent(event QueueEvent) error
	Close() error
}

// PipelineConfig is the fully-resolved, JSON-contract-independent
// configuration for one camera pipeline (spec.md §3/§6). internal/config
// owns parsing the on-disk JSON document into this shape.
type PipelineConfig struct {
	RTSPURL        string
	ConfidenceMin  float64
	CountingMode   string // "line" or "zone"
	Line           LineConfig
	Zones          ZonesConfig
	UseROICrop     bool
	ROI            ROICrop
	Queue          QueueConfig
	// Categories is the allow-list of detector class names considered
	// before the class->category mapping (spec.md §3 VehicleClassFilter
	// supplement); empty means no filtering.
	Categories     []string
	TrackTTL       time.Duration
	ValidateFrames bool
	// ReportInterval gates the periodic status-log line (maybeLogStatus),
	// not the counters-snapshot cadence (see snapshotSaveInterval).
	ReportInterval time.Duration
	Visuals        VisualSettings
}

// PipelineState mirrors the teacher's TrackerState lifecycle.
type PipelineState int

const (
	PipelineIdle PipelineState = iota
	PipelineRunning
	PipelineStopped
	PipelineClosed
)

func (s PipelineState) String() string {
	switch s {
	case PipelineRunning:
		return "running"
	case PipelineStopped:
		return "stopped"
	case PipelineClosed:
		return "closed"
	default:
		return "idle"
	}
}

// PipelineUpdate is one frame's worth of non-visual telemetry, delivered
// on the Updates subscription channel.
type PipelineUpdate struct {
	Counters   *CountersSnapshot
	QueueStats QueueStats
	FPS        float64
	Status     string
}

// PipelineSupervisor orchestrates capture, detection, counting, queue
// tracking, scene composition, and persistence for one camera (spec.md
// §4.2). Grounded on the teacher's pkg/miface/tracker.go Tracker: same
// Idle/Running/Stopped/Closed lifecycle, Subscribe() fan-out channels,
// WaitGroup-backed shutdown — rebuilt to drive
// capture -> detect -> count -> queue -> compose instead of
// capture -> mediapipe -> VMC.
type PipelineSupervisor struct {
	cfg          PipelineConfig
	detector     detector.Detector
	counterStore CounterSink
	queueStore   QueueSink

	mu       sync.RWMutex
	state    PipelineState
	capture  *BufferedCapture
	visuals  VisualSettings

	monitoringActive atomic.Bool
	queueActive      atomic.Bool

	lineCounter  *LineCounter
	zoneCounter  *ZoneCounter
	queueManager *QueueManager
	categories   map[string]bool
	composer     *SceneComposer

	geometryReady bool
	resolvedLine  LineConfig
	resolvedZones ZonesConfig

	counters     *CountersSnapshot
	countersMu   sync.Mutex
	trackSeen    map[int]time.Time

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	stopOnce     sync.Once
	finalizeDone chan struct{}

	subMu         sync.Mutex
	updateSubs    []chan PipelineUpdate
	frameSubs     []chan gocv.Mat

	lastSnapshotSave time.Time
	lastStatusLog    time.Time
}

// NewPipelineSupervisor builds a supervisor for one camera. det may be
// nil (DetectorLoadError path, spec.md §7): the pipeline still captures
// and composes frames, but monitoring/queue detection is skipped and a
// warning is logged once. counterStore/queueStore may be nil
// (StoreUnavailable, spec.md §7): writes become no-ops.
func NewPipelineSupervisor(cfg PipelineConfig, det detector.Detector, counterStore CounterSink, queueStore QueueSink) *PipelineSupervisor {
	if cfg.TrackTTL <= 0 {
		cfg.TrackTTL = defaultTrackTTL
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = defaultReportInterval
	}

	p := &PipelineSupervisor{
		cfg:          cfg,
		detector:     det,
		counterStore: counterStore,
		queueStore:   queueStore,
		state:        PipelineIdle,
		visuals:      cfg.Visuals,
		categories:   classSet(cfg.Categories),
		composer:     NewSceneComposer(),
		counters:     NewCountersSnapshot(),
		trackSeen:    make(map[int]time.Time),
	}

	if counterStore != nil {
		if loader, ok := counterStore.(interface {
			LoadSnapshot(string) (*CountersSnapshot, error)
		}); ok {
			if snap, err := loader.LoadSnapshot(cfg.RTSPURL); err == nil {
				p.counters = snap
			}
		}
	}

	return p
}

// State returns the current lifecycle state.
func (p *PipelineSupervisor) State() PipelineState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetMonitoringActive toggles line/zone counting independently of the
// queue tracker (spec.md §4.2).
func (p *PipelineSupervisor) SetMonitoringActive(active bool) {
	p.monitoringActive.Store(active)
}

// SetQueueActive toggles queue dwell-time tracking independently of
// counting.
func (p *PipelineSupervisor) SetQueueActive(active bool) {
	p.queueActive.Store(active)
}

// SetVisuals updates the scene composer's display toggles.
func (p *PipelineSupervisor) SetVisuals(v VisualSettings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visuals = v
}

// Subscribe returns a telemetry channel (counters/queue stats/fps/status)
// and a rendered-frame channel. Callers must drain both or risk blocking
// the pipeline; frames delivered on the frame channel must be Close()d by
// the receiver. Both channels close when the supervisor closes.
func (p *PipelineSupervisor) Subscribe() (<-chan PipelineUpdate, <-chan gocv.Mat) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	updates := make(chan PipelineUpdate, 4)
	frames := make(chan gocv.Mat, 2)
	p.updateSubs = append(p.updateSubs, updates)
	p.frameSubs = append(p.frameSubs, frames)
	return updates, frames
}

func (p *PipelineSupervisor) broadcast(update PipelineUpdate, frame gocv.Mat) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	for _, ch := range p.updateSubs {
		select {
		case ch <- update:
		default:
		}
	}
	for _, ch := range p.frameSubs {
		clone := frame.Clone()
		select {
		case ch <- clone:
		default:
			clone.Close()
		}
	}
}

func (p *PipelineSupervisor) closeSubscribers() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.updateSubs {
		close(ch)
	}
	for _, ch := range p.frameSubs {
		close(ch)
	}
	p.updateSubs = nil
	p.frameSubs = nil
}

// Start spawns the pipeline goroutine and begins the capture/detect/
// count/queue/compose loop. Returns immediately.
func (p *PipelineSupervisor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case PipelineRunning:
		return ErrPipelineRunning
	case PipelineClosed:
		return ErrPipelineClosed
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.state = PipelineRunning
	p.stopOnce = sync.Once{}
	p.finalizeDone = make(chan struct{})

	p.wg.Add(1)
	go p.run()

	return nil
}

// Stop signals the pipeline to stop and returns promptly (spec.md §8
// property 6: within 5s of being called, for any input trace). Final
// release of the capture handle, detector, and stores happens in a
// background finalizer, since the native capture read cannot be
// forcibly interrupted.
func (p *PipelineSupervisor) Stop() error {
	p.mu.Lock()
	if p.state != PipelineRunning {
		p.mu.Unlock()
		return ErrPipelineStopped
	}
	p.state = PipelineStopped
	cancel := p.cancel
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		cancel()
		go p.finalize()
	})
	return nil
}

// Close is Stop plus a final wait for the background finalizer, for
// callers that need a fully released pipeline before returning (e.g.
// process shutdown). It is not on PipelineSupervisor's hot path.
func (p *PipelineSupervisor) Close() error {
	p.mu.Lock()
	if p.state == PipelineClosed {
		p.mu.Unlock()
		return nil
	}
	running := p.state == PipelineRunning
	cancel := p.cancel
	done := p.finalizeDone
	p.mu.Unlock()

	if running {
		p.stopOnce.Do(func() {
			cancel()
			go p.finalize()
		})
	}

	if done != nil {
		<-done
	}
	return nil
}

// finalize performs the ordered shutdown spec.md §5 requires:
// reader.join -> watchdog.join -> release_native_handle -> store flush,
// none of which block the original Stop() caller.
func (p *PipelineSupervisor) finalize() {
	p.wg.Wait()

	p.mu.Lock()
	capture := p.capture
	p.capture = nil
	p.mu.Unlock()

	if capture != nil {
		if err := capture.Close(); err != nil {
			log.Printf("sysmonit: %s: error closing capture: %v", p.cfg.RTSPURL, err)
		}
	}
	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			log.Printf("sysmonit: %s: error closing detector: %v", p.cfg.RTSPURL, err)
		}
	}
	if p.counterStore != nil {
		if err := p.counterStore.FlushAndClose(); err != nil {
			log.Printf("sysmonit: %s: error closing counter store: %v", p.cfg.RTSPURL, err)
		}
	}
	if p.queueStore != nil {
		if err := p.queueStore.Close(); err != nil {
			log.Printf("sysmonit: %s: error closing queue store: %v", p.cfg.RTSPURL, err)
		}
	}

	p.closeSubscribers()

	p.mu.Lock()
	p.state = PipelineClosed
	done := p.finalizeDone
	p.mu.Unlock()

	if done != nil {
		close(done)
	}
}

// run is the main pipeline loop (spec.md §4.2).
func (p *PipelineSupervisor) run() {
	defer p.wg.Done()

	noDataStreak := 0
	fastRetries := 0
	warnedNoDetector := false

	for {
		if p.ctx.Err() != nil {
			return
		}

		p.mu.RLock()
		capture := p.capture
		p.mu.RUnlock()

		if capture == nil {
			if !p.reconnect(&fastRetries) {
				return
			}
			continue
		}

		frame, err := capture.Read()
		if err != nil {
			if err == ErrFrozen {
				log.Printf("sysmonit: %s: capture frozen, reconnecting", p.cfg.RTSPURL)
				capture.Close()
				p.mu.Lock()
				p.capture = nil
				p.mu.Unlock()
				noDataStreak = 0
				continue
			}
			noDataStreak++
			if noDataStreak >= noDataBreakThreshold {
				log.Printf("sysmonit: %s: repeated empty reads, reconnecting", p.cfg.RTSPURL)
				capture.Close()
				p.mu.Lock()
				p.capture = nil
				p.mu.Unlock()
				noDataStreak = 0
			}
			continue
		}
		noDataStreak = 0
		fastRetries = 0

		if !IsFrameValid(&frame.Mat, p.cfg.ValidateFrames) {
			frame.Mat.Close()
			continue
		}

		if p.detector == nil && !warnedNoDetector {
			log.Printf("sysmonit: %s: no detector configured, skipping detection", p.cfg.RTSPURL)
			warnedNoDetector = true
		}

		p.processFrame(frame)
	}
}

// reconnect opens a fresh BufferedCapture, applying spec.md §4.2's
// reconnect policy: up to maxFastRetries spaced fastRetryInterval apart,
// then slowRetryInterval forever. Returns false if stop was signaled
// during the attempt.
func (p *PipelineSupervisor) reconnect(fastRetries *int) bool {
	capture, err := OpenBufferedCapture(p.cfg.RTSPURL)
	if err == nil {
		p.mu.Lock()
		p.capture = capture
		p.mu.Unlock()
		return true
	}

	var interval time.Duration
	var status string
	if *fastRetries < maxFastRetries {
		*fastRetries++
		interval = fastRetryInterval
		status = StatusReconnecting
	} else {
		interval = slowRetryInterval
		status = StatusOffline
	}

	log.Printf("sysmonit: %s: %s (retry in %s): %v", p.cfg.RTSPURL, status, interval, err)
	p.broadcastStatus(status)

	return p.interruptibleSleep(interval)
}

// interruptibleSleep waits for interval in small slices so a stop signal
// is honored promptly (spec.md §5).
func (p *PipelineSupervisor) interruptibleSleep(interval time.Duration) bool {
	deadline := time.Now().Add(interval)
	for time.Now().Before(deadline) {
		select {
		case <-p.ctx.Done():
			return false
		case <-time.After(reconnectSliceWindow):
		}
	}
	return true
}

func (p *PipelineSupervisor) broadcastStatus(status string) {
	var stats QueueStats
	if p.queueManager != nil {
		stats = p.queueManager.Stats(time.Now())
	}
	p.broadcastUpdate(PipelineUpdate{
		Counters:   p.snapshotCounters(),
		QueueStats: stats,
		Status:     status,
	})
}

func (p *PipelineSupervisor) broadcastUpdate(update PipelineUpdate) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.updateSubs {
		select {
		case ch <- update:
		default:
		}
	}
}

func (p *PipelineSupervisor) snapshotCounters() *CountersSnapshot {
	p.countersMu.Lock()
	defer p.countersMu.Unlock()
	return p.counters.Clone()
}

// resolvePixelGeometry converts the configured counting-line/zone/queue
// geometry — expressed as fractions of the processed frame (spec.md §3,
// geometry.go's LineConfig/ZonesConfig/QueueConfig doc comments) — into
// the pixel space Track.Box and SceneComposer both operate in, for a
// processed frame of the given size. Resolved once the first frame's
// dimensions are known, since an RTSP camera's resolution is fixed for
// the life of a capture.
func resolvePixelGeometry(width, height int, line LineConfig, zones ZonesConfig, queue QueueConfig) (LineConfig, ZonesConfig, QueueConfig) {
	w, h := float64(width), float64(height)

	resolvedLine := line
	resolvedLine.X1Ratio = line.X1Ratio * w
	resolvedLine.X2Ratio = line.X2Ratio * w
	resolvedLine.YRatio = line.YRatio * h
	if line.XMidRatio != nil {
		v := *line.XMidRatio * w
		resolvedLine.XMidRatio = &v
	}

	resolvedZones := zones
	resolvedZones.Down = scaleZoneRect(zones.Down, w, h)
	resolvedZones.Up = scaleZoneRect(zones.Up, w, h)

	resolvedQueue := queue
	resolvedQueue.Polygon = scalePoints(queue.Polygon, w, h)
	resolvedQueue.EntryLine = scalePoints(queue.EntryLine, w, h)
	resolvedQueue.ExitLine = scalePoints(queue.ExitLine, w, h)

	return resolvedLine, resolvedZones, resolvedQueue
}

func scaleZoneRect(r ZoneRect, w, h float64) ZoneRect {
	return ZoneRect{X1: r.X1 * w, Y1: r.Y1 * h, X2: r.X2 * w, Y2: r.Y2 * h}
}

func scalePoints(pts []Point, w, h float64) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: p.X * w, Y: p.Y * h}
	}
	return out
}

// processFrame runs one frame through ROI crop, detection, counting,
// queue tracking, and scene composition, then emits telemetry (spec.md
// §4.2 steps 2-8).
func (p *PipelineSupervisor) processFrame(frame Frame) {
	mat := frame.Mat
	defer mat.Close()

	width, height := mat.Cols(), mat.Rows()
	working := mat
	var cropped gocv.Mat
	if p.cfg.UseROICrop {
		crop := ApplyROICrop(width, height, p.cfg.ROI)
		region := image.Rect(crop.X1, crop.Y1, crop.X2, crop.Y2)
		cropped = mat.Region(region)
		working = cropped
		width, height = working.Cols(), working.Rows()
		defer cropped.Close()
	}

	if !p.geometryReady {
		line, zones, queue := resolvePixelGeometry(width, height, p.cfg.Line, p.cfg.Zones, p.cfg.Queue)
		p.lineCounter = NewLineCounter(line)
		p.zoneCounter = NewZoneCounter(zones)
		p.queueManager = NewQueueManager(queue, queue.ThresholdSeconds)
		p.resolvedLine = line
		p.resolvedZones = zones
		p.geometryReady = true
	}

	now := time.Now()
	monitoring := p.monitoringActive.Load()
	queueing := p.queueActive.Load()

	var tracks []Track
	if (monitoring || queueing) && p.detector != nil {
		raw, err := p.detector.Detect(p.ctx, working.ToBytes(), width, height, p.cfg.ConfidenceMin)
		if err != nil {
			log.Printf("sysmonit: %s: detector error, skipping frame: %v", p.cfg.RTSPURL, err)
		} else {
			tracks = p.toTracks(raw, now)
		}
	}

	renderTracks := make([]TrackRenderInfo, 0, len(tracks))

	if monitoring {
		for _, tr := range tracks {
			var event CountEvent
			var counted bool
			var direction DirectionId

			if p.cfg.CountingMode == "zone" {
				if ev, ok := p.zoneCounter.Observe(tr, now); ok {
					event = CountEvent{CameraID: p.cfg.RTSPURL, Epoch: now.Unix(), Category: ev.Category, Direction: ev.Direction}
					direction = ev.Direction
					counted = true
				}
			} else {
				if ev, ok := p.lineCounter.Observe(tr, now); ok {
					event = CountEvent{CameraID: p.cfg.RTSPURL, Epoch: now.Unix(), Category: ev.Category, Direction: ev.Direction}
					direction = ev.Direction
					counted = true
				}
			}

			if counted {
				if event.Category == CategoryUndefined {
					log.Printf("sysmonit: %s: counted track %d with unmapped class %q", p.cfg.RTSPURL, tr.ID, tr.ClassName)
				}
				p.recordCount(event)
			}

			renderTracks = append(renderTracks, TrackRenderInfo{ID: tr.ID, Box: tr.Box, ClassName: tr.ClassName, LastDirection: direction})
		}
	} else {
		for _, tr := range tracks {
			renderTracks = append(renderTracks, TrackRenderInfo{ID: tr.ID, Box: tr.Box, ClassName: tr.ClassName})
		}
	}

	if queueing {
		events := p.queueManager.Update(tracks, now)
		for _, ev := range events {
			ev.CameraID = p.cfg.RTSPURL
			if p.queueStore == nil {
				continue
			}
			if err := p.queueStore.SaveEvent(ev); err != nil {
				log.Printf("sysmonit: %s: queue store write error: %v", p.cfg.RTSPURL, err)
			}
		}
	}

	p.sweepTrackState(tracks, now)
	p.maybeSaveSnapshot(now)
	p.maybeLogStatus(now, tracks)

	polygon, entry, exit, status, vehicles := p.queueManager.RenderData()
	in := SceneInput{
		Tracks:           renderTracks,
		MonitoringActive: monitoring,
		QueueActive:      queueing,
		QueuePolygon:     polygon,
		QueueEntry:       entry,
		QueueExit:        exit,
		QueueStatus:      status,
		QueueVehicles:    vehicles,
		QueueThresholdSeconds: p.cfg.Queue.ThresholdSeconds,
	}
	if monitoring {
		in.LineCfg = &p.resolvedLine
		in.ZonesCfg = &p.resolvedZones
	}
	p.mu.RLock()
	in.Visuals = p.visuals
	p.mu.RUnlock()

	p.composer.Compose(&working, in)

	fps := 0.0
	if !now.IsZero() && !frame.CapturedAt.IsZero() {
		if d := now.Sub(frame.CapturedAt).Seconds(); d > 0 {
			fps = 1.0 / d
		}
	}

	p.broadcast(PipelineUpdate{
		Counters:   p.snapshotCounters(),
		QueueStats: p.queueManager.Stats(now),
		FPS:        fps,
		Status:     StatusRunning,
	}, working)
}

// toTracks converts detector output into domain Tracks (spec.md
// §4.3/§4.4: LineCounter/ZoneCounter observe the detector's raw bbox,
// unfiltered), dropping any class name not in the configured allow-list
// (spec.md §3 VehicleClassFilter) before it ever reaches the counters.
func (p *PipelineSupervisor) toTracks(raw []detector.Detection, now time.Time) []Track {
	out := make([]Track, 0, len(raw))
	for _, d := range raw {
		if len(p.categories) > 0 && !p.categories[d.ClassName] {
			continue
		}
		box := BBox{X1: d.X1, Y1: d.Y1, X2: d.X2, Y2: d.Y2}
		out = append(out, Track{ID: d.TrackID, Box: box, ClassName: d.ClassName, Confidence: d.Confidence})
		p.trackSeen[d.TrackID] = now
	}
	return out
}

// classSet builds a lookup set from an allow-list of class names; a nil
// or empty list disables filtering (toTracks checks len(p.categories)).
func classSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func (p *PipelineSupervisor) recordCount(event CountEvent) {
	p.countersMu.Lock()
	p.counters.Increment(event.Category, event.Direction)
	p.countersMu.Unlock()

	if p.counterStore == nil {
		return
	}
	if err := p.counterStore.AppendEvent(event); err != nil {
		log.Printf("sysmonit: %s: history write error: %v", p.cfg.RTSPURL, err)
	}
}

// sweepTrackState drops transient per-track state once a track has not
// been seen for TrackTTL (spec.md §4.2 step 8).
func (p *PipelineSupervisor) sweepTrackState(tracks []Track, now time.Time) {
	for _, t := range tracks {
		p.trackSeen[t.ID] = now
	}

	p.lineCounter.ExpireStale(now, p.cfg.TrackTTL)
	p.zoneCounter.ExpireStale(now, p.cfg.TrackTTL)

	for id, last := range p.trackSeen {
		if now.Sub(last) > p.cfg.TrackTTL {
			delete(p.trackSeen, id)
		}
	}
}

// maybeSaveSnapshot persists the counters snapshot at most once every
// snapshotSaveInterval (spec.md §4.7 batching contract: a fixed 5s
// cadence, not driven by the user-configurable ReportInterval).
func (p *PipelineSupervisor) maybeSaveSnapshot(now time.Time) {
	if p.counterStore == nil {
		return
	}
	if now.Sub(p.lastSnapshotSave) < snapshotSaveInterval {
		return
	}
	p.lastSnapshotSave = now

	if err := p.counterStore.SaveSnapshot(p.cfg.RTSPURL, p.snapshotCounters()); err != nil {
		log.Printf("sysmonit: %s: snapshot write error: %v", p.cfg.RTSPURL, err)
	}
}

// maybeLogStatus emits a rolled-up status line at most once every
// ReportInterval, mirroring the original's intervalo_relatorio-gated
// report log (distinct from the fixed snapshot-save cadence above).
func (p *PipelineSupervisor) maybeLogStatus(now time.Time, tracks []Track) {
	if now.Sub(p.lastStatusLog) < p.cfg.ReportInterval {
		return
	}
	p.lastStatusLog = now

	snap := p.snapshotCounters()
	log.Printf("sysmonit: %s: tracks=%d forward=%d return=%d queue=%d",
		p.cfg.RTSPURL, len(tracks),
		snap.Total(DirectionForward), snap.Total(DirectionReturn),
		p.queueManager.Stats(now).WaitingCount)
}

