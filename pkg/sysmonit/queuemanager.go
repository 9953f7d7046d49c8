package sysmonit

import "time"

// queueVehicleState is the per-track queue-membership state machine of
// spec.md §4.5: Idle, InQueue, Finished.
type queueVehicleState int

const (
	queueIdle queueVehicleState = iota
	queueInQueue
	queueFinished
)

const (
	// enterFrames is the consecutive-inside-polygon frame count required
	// to transition Idle -> InQueue (spec.md §4.5).
	enterFrames = 3
	// exitFrames is the consecutive-outside-polygon frame count required
	// to finalize an InQueue vehicle (spec.md §4.5).
	exitFrames = 12
	// queueHistoryLen bounds the foot-point trail kept per vehicle for
	// scene rendering.
	queueHistoryLen = 60
	// recentWaitWindow bounds how far back completed waits contribute to
	// avg_wait_5min (spec.md §4.5).
	recentWaitWindow = 300 * time.Second
)

// QueueStatus is the aggregate severity derived from the current maximum
// wait (spec.md §4.5).
type QueueStatus int

const (
	QueueStatusNormal QueueStatus = iota
	QueueStatusWarning
	QueueStatusCritical
)

func (s QueueStatus) String() string {
	switch s {
	case QueueStatusWarning:
		return "Warning"
	case QueueStatusCritical:
		return "Critical"
	default:
		return "Normal"
	}
}

type queueVehicle struct {
	state        queueVehicleState
	entryTime    time.Time
	currentWait  float64
	lastPos      Point
	history      []Point
	class        string
	framesInside int
	framesOutside int
}

func (v *queueVehicle) pushHistory(p Point) {
	v.history = append(v.history, p)
	if len(v.history) > queueHistoryLen {
		v.history = v.history[len(v.history)-queueHistoryLen:]
	}
}

// completedWait records a finished vehicle's wait for the rolling 5 min
// average.
type completedWait struct {
	seconds   float64
	finishedAt time.Time
}

// QueueManager implements the per-track queue dwell-time state machine
// of spec.md §4.5. New, grounded on
// original_source/.../queue_manager.py's `update`/`_finalize_vehicle`
// state machine, with the per-id map idiom shared with LineCounter/
// ZoneCounter.
type QueueManager struct {
	cfg     QueueConfig
	vehicles map[int]*queueVehicle

	completed []completedWait
	status    QueueStatus
	maxWaitCurrent float64

	thresholdSeconds float64
}

// NewQueueManager builds a QueueManager for the given polygon/threshold
// configuration. thresholdSeconds defaults to 60 when zero (spec.md §4.5).
func NewQueueManager(cfg QueueConfig, thresholdSeconds float64) *QueueManager {
	if thresholdSeconds <= 0 {
		thresholdSeconds = 60
	}
	return &QueueManager{
		cfg:              cfg,
		vehicles:         make(map[int]*queueVehicle),
		thresholdSeconds: thresholdSeconds,
	}
}

// Update feeds the current frame's tracks through the state machine and
// returns any QueueEvents finalized this frame (spec.md §4.5).
func (m *QueueManager) Update(tracks []Track, now time.Time) []QueueEvent {
	active := make(map[int]bool, len(tracks))
	var events []QueueEvent

	hasPolygon := len(m.cfg.Polygon) >= 3

	for _, track := range tracks {
		active[track.ID] = true

		v, ok := m.vehicles[track.ID]
		if !ok {
			v = &queueVehicle{class: track.ClassName}
			m.vehicles[track.ID] = v
		}

		fx, fy := track.Box.Foot()
		foot := Point{X: fx, Y: fy}
		v.lastPos = foot
		v.pushHistory(foot)

		inside := hasPolygon && pointInPolygon(m.cfg.Polygon, fx, fy)

		switch v.state {
		case queueIdle:
			if inside {
				v.framesInside++
				v.framesOutside = 0
				if v.framesInside >= enterFrames {
					v.state = queueInQueue
					v.entryTime = now
					v.framesInside = 0
				}
			} else {
				v.framesInside = 0
			}

		case queueInQueue:
			v.currentWait = now.Sub(v.entryTime).Seconds()
			if !inside {
				v.framesOutside++
				v.framesInside = 0
				if v.framesOutside >= exitFrames {
					if ev, ok := m.finalize(v, track.ID, now); ok {
						events = append(events, ev)
					}
				}
			} else {
				v.framesOutside = 0
				v.framesInside++
			}
		}
	}

	// Disappearance: a track no longer reported this frame, while
	// InQueue, is finalized immediately (spec.md §4.5).
	for id, v := range m.vehicles {
		if active[id] {
			continue
		}
		if v.state == queueInQueue {
			if ev, ok := m.finalize(v, id, now); ok {
				events = append(events, ev)
			}
		}
		delete(m.vehicles, id)
	}

	for id, v := range m.vehicles {
		if v.state == queueFinished {
			delete(m.vehicles, id)
		}
	}

	m.recomputeStats(now)

	return events
}

// finalize closes out an InQueue vehicle. Waits below the configured
// minimum are discarded without producing an event (spec.md §4.5).
func (m *QueueManager) finalize(v *queueVehicle, trackID int, now time.Time) (QueueEvent, bool) {
	waitSeconds := now.Sub(v.entryTime).Seconds()
	minWait := m.cfg.MinWaitSeconds
	if minWait <= 0 {
		minWait = 5
	}

	if waitSeconds < minWait {
		v.state = queueFinished
		return QueueEvent{}, false
	}

	m.completed = append(m.completed, completedWait{seconds: waitSeconds, finishedAt: now})

	ev := QueueEvent{
		TrackID:     trackID,
		EntryTime:   v.entryTime,
		ExitTime:    now,
		WaitSeconds: waitSeconds,
		VehicleClass: v.class,
	}

	v.state = queueFinished
	return ev, true
}

// recomputeStats refreshes waiting_count/max_wait_current/avg_wait_5min/
// status after processing a frame's tracks (spec.md §4.5).
func (m *QueueManager) recomputeStats(now time.Time) {
	var maxWait float64
	for _, v := range m.vehicles {
		if v.state == queueInQueue && v.currentWait > maxWait {
			maxWait = v.currentWait
		}
	}
	m.maxWaitCurrent = maxWait

	switch {
	case maxWait > m.thresholdSeconds:
		m.status = QueueStatusCritical
	case maxWait > m.thresholdSeconds/2:
		m.status = QueueStatusWarning
	default:
		m.status = QueueStatusNormal
	}

	// Drop completed waits that have aged out of the 5 minute window so
	// the slice does not grow without bound over a long-running session.
	cutoff := now.Add(-recentWaitWindow)
	kept := m.completed[:0]
	for _, c := range m.completed {
		if c.finishedAt.After(cutoff) {
			kept = append(kept, c)
		}
	}
	m.completed = kept
}

// QueueStats is the aggregate snapshot spec.md §4.5 calls for.
type QueueStats struct {
	WaitingCount   int
	MaxWaitCurrent float64
	AvgWait5Min    float64
	Status         QueueStatus
}

// Stats returns the current aggregate queue statistics.
func (m *QueueManager) Stats(now time.Time) QueueStats {
	cutoff := now.Add(-recentWaitWindow)
	var sum float64
	var n int
	for _, c := range m.completed {
		if c.finishedAt.After(cutoff) {
			sum += c.seconds
			n++
		}
	}

	var avg float64
	if n > 0 {
		avg = sum / float64(n)
	}

	waiting := 0
	for _, v := range m.vehicles {
		if v.state == queueInQueue {
			waiting++
		}
	}

	return QueueStats{
		WaitingCount:   waiting,
		MaxWaitCurrent: m.maxWaitCurrent,
		AvgWait5Min:    avg,
		Status:         m.status,
	}
}

// QueueRenderVehicle is one InQueue vehicle's rendering data (spec.md
// §4.5 "Rendering data").
type QueueRenderVehicle struct {
	TrackID     int
	LastPos     Point
	CurrentWait float64
	History     []Point
}

// RenderData returns the polygon/lines/status plus per-InQueue-vehicle
// rendering data for SceneComposer.
func (m *QueueManager) RenderData() (polygon, entryLine, exitLine []Point, status QueueStatus, vehicles []QueueRenderVehicle) {
	for id, v := range m.vehicles {
		if v.state != queueInQueue {
			continue
		}
		vehicles = append(vehicles, QueueRenderVehicle{
			TrackID:     id,
			LastPos:     v.lastPos,
			CurrentWait: v.currentWait,
			History:     append([]Point(nil), v.history...),
		})
	}
	return m.cfg.Polygon, m.cfg.EntryLine, m.cfg.ExitLine, m.status, vehicles
}
