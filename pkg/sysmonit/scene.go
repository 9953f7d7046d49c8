//go:build cgo
// +build cgo

package sysmonit

import (
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// VisualSettings mirrors PipelineSupervisor.set_visuals (spec.md §4.2):
// independent toggles the scene composer reads every frame.
type VisualSettings struct {
	ShowLabels           bool
	ShowZones            bool
	HideCountingGeometry bool
	HideBoxes            bool
}

// TrackRenderInfo is one track's drawable state for a single frame.
type TrackRenderInfo struct {
	ID            int
	Box           BBox
	ClassName     string
	LastDirection DirectionId
}

// SceneInput bundles everything SceneComposer.Compose needs to annotate
// one frame (spec.md §4.6).
type SceneInput struct {
	Tracks           []TrackRenderInfo
	MonitoringActive bool
	QueueActive      bool

	LineCfg  *LineConfig
	ZonesCfg *ZonesConfig

	QueuePolygon  []Point
	QueueEntry    []Point
	QueueExit     []Point
	QueueStatus   QueueStatus
	QueueVehicles []QueueRenderVehicle
	QueueThresholdSeconds float64

	Visuals VisualSettings
}

var (
	colorForward = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	colorReturn  = color.RGBA{R: 200, G: 0, B: 0, A: 0}
	colorNeutral = color.RGBA{R: 0, G: 160, B: 0, A: 0}
	colorLine    = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	colorZone    = color.RGBA{R: 255, G: 140, B: 0, A: 0}
)

// SceneComposer renders the annotated frame for display. It is a pure
// function of its inputs plus fixed configuration — no state beyond
// that. Grounded on the teacher's pkg/miface/preview.go (gocv.Window
// debug loop), generalized from a single landmark-mesh preview into a
// frame-annotation function (boxes/labels/lines/polygon/trails/timers)
// that the optional debug window below also displays.
type SceneComposer struct{}

// NewSceneComposer returns a ready-to-use composer; it holds no state.
func NewSceneComposer() *SceneComposer {
	return &SceneComposer{}
}

// Compose draws tracks, counting geometry, and queue overlays directly
// onto frame (spec.md §4.6). The visual contract is advisory for
// interoperability, not bit-exact.
func (s *SceneComposer) Compose(frame *gocv.Mat, in SceneInput) {
	if !in.Visuals.HideBoxes {
		for _, tr := range in.Tracks {
			s.drawBox(frame, tr, in.Visuals.ShowLabels)
		}
	}

	if in.MonitoringActive && !in.Visuals.HideCountingGeometry {
		if in.LineCfg != nil {
			s.drawLine(frame, *in.LineCfg)
		}
		if in.ZonesCfg != nil && in.Visuals.ShowZones {
			s.drawZones(frame, *in.ZonesCfg)
		}
	}

	if in.QueueActive {
		s.drawQueue(frame, in)
	}
}

func (s *SceneComposer) drawBox(frame *gocv.Mat, tr TrackRenderInfo, showLabels bool) {
	c := colorNeutral
	switch tr.LastDirection {
	case DirectionForward:
		c = colorForward
	case DirectionReturn:
		c = colorReturn
	}

	rect := image.Rect(int(tr.Box.X1), int(tr.Box.Y1), int(tr.Box.X2), int(tr.Box.Y2))
	gocv.Rectangle(frame, rect, c, 2)

	if showLabels {
		label := fmt.Sprintf("%d:%s", tr.ID, tr.ClassName)
		origin := image.Pt(rect.Min.X, rect.Min.Y-6)
		gocv.PutText(frame, label, origin, gocv.FontHersheySimplex, 0.5, c, 1)
	}
}

func (s *SceneComposer) drawLine(frame *gocv.Mat, cfg LineConfig) {
	y := int(cfg.YRatio)
	p1 := image.Pt(int(cfg.X1Ratio), y)
	p2 := image.Pt(int(cfg.X2Ratio), y)
	gocv.Line(frame, p1, p2, colorLine, 2)
}

func (s *SceneComposer) drawZones(frame *gocv.Mat, cfg ZonesConfig) {
	down := image.Rect(int(cfg.Down.X1), int(cfg.Down.Y1), int(cfg.Down.X2), int(cfg.Down.Y2))
	up := image.Rect(int(cfg.Up.X1), int(cfg.Up.Y1), int(cfg.Up.X2), int(cfg.Up.Y2))
	gocv.Rectangle(frame, down, colorForwardZone(), 2)
	gocv.Rectangle(frame, up, colorReturnZone(), 2)
}

func colorForwardZone() color.RGBA { return colorForward }
func colorReturnZone() color.RGBA  { return colorReturn }

func (s *SceneComposer) drawQueue(frame *gocv.Mat, in SceneInput) {
	if len(in.QueuePolygon) >= 3 {
		pts := pointsToGocv(in.QueuePolygon)
		gocv.Polylines(frame, gocv.NewPointsVectorFromPoints([][]image.Point{pts}), true, statusFillColor(in.QueueStatus), 2)
	}
	if len(in.QueueEntry) == 2 {
		pts := pointsToGocv(in.QueueEntry)
		gocv.Line(frame, pts[0], pts[1], colorZone, 2)
	}
	if len(in.QueueExit) == 2 {
		pts := pointsToGocv(in.QueueExit)
		gocv.Line(frame, pts[0], pts[1], colorZone, 2)
	}

	for _, v := range in.QueueVehicles {
		if len(v.History) >= 2 {
			pts := pointsToGocv(v.History)
			gocv.Polylines(frame, gocv.NewPointsVectorFromPoints([][]image.Point{pts}), false, colorZone, 1)
		}

		badgeColor := statusColor(in.QueueStatus, in.QueueThresholdSeconds, v.CurrentWait)
		label := fmt.Sprintf("ID:%d  %02d:%02d", v.TrackID, int(v.CurrentWait)/60, int(v.CurrentWait)%60)
		origin := image.Pt(int(v.LastPos.X), int(v.LastPos.Y)-10)
		gocv.PutText(frame, label, origin, gocv.FontHersheySimplex, 0.5, badgeColor, 2)
	}
}

func pointsToGocv(pts []Point) []image.Point {
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		out[i] = image.Pt(int(p.X), int(p.Y))
	}
	return out
}

// statusFillColor is the queue polygon outline/fill color driven by the
// aggregate queue status (spec.md §4.6 "fill colored by status").
func statusFillColor(status QueueStatus) color.RGBA {
	switch status {
	case QueueStatusCritical:
		return color.RGBA{R: 255, G: 0, B: 0, A: 0}
	case QueueStatusWarning:
		return color.RGBA{R: 255, G: 165, B: 0, A: 0}
	default:
		return color.RGBA{R: 0, G: 200, B: 0, A: 0}
	}
}

// statusColor implements the white -> orange -> red ramp as wait
// approaches and exceeds threshold (spec.md §4.6).
func statusColor(status QueueStatus, threshold, currentWait float64) color.RGBA {
	if threshold <= 0 {
		threshold = 60
	}
	ratio := currentWait / threshold
	switch {
	case ratio >= 1:
		return color.RGBA{R: 255, G: 0, B: 0, A: 0}
	case ratio >= 0.5:
		return color.RGBA{R: 255, G: 165, B: 0, A: 0}
	default:
		return color.RGBA{R: 255, G: 255, B: 255, A: 0}
	}
}

// PreviewWindow is an optional debug window showing the composed scene.
// OpenCV UI functions must be called from the main thread on Linux/X11,
// so it runs its own OS-thread-locked loop, exactly as the teacher's
// pkg/miface/preview.go does for landmark preview.
type PreviewWindow struct {
	window   *gocv.Window
	frameCh  chan gocv.Mat
	closeCh  chan struct{}
	doneCh   chan struct{}
	once     sync.Once
	initDone chan struct{}
}

// NewPreviewWindow creates a new preview window with the given title.
func NewPreviewWindow(title string) *PreviewWindow {
	p := &PreviewWindow{
		frameCh:  make(chan gocv.Mat, 1),
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
		initDone: make(chan struct{}),
	}

	go p.previewLoop(title)
	<-p.initDone

	return p
}

func (p *PreviewWindow) previewLoop(title string) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.window = gocv.NewWindow(title)
	close(p.initDone)

	for {
		select {
		case frame := <-p.frameCh:
			p.window.IMShow(frame)
			p.window.WaitKey(1)
			frame.Close()

		case <-p.closeCh:
			if p.window != nil {
				p.window.Close()
			}
			close(p.doneCh)
			return
		}
	}
}

// Show displays a composed frame in the preview window. The frame is
// cloned internally, so the caller can close or reuse the original.
func (p *PreviewWindow) Show(frame gocv.Mat) {
	if frame.Empty() {
		return
	}

	cloned := frame.Clone()

	select {
	case p.frameCh <- cloned:
	default:
		cloned.Close()
	}
}

// Close closes the preview window and releases resources.
func (p *PreviewWindow) Close() error {
	p.once.Do(func() {
		close(p.closeCh)
		<-p.doneCh
	})
	return nil
}
