package sysmonit

import (
	"math"
	"time"
)

// lineCrossingEpsilon bounds the minimum |curr_y - prev_y| accepted as a
// valid denominator when solving for the crossing parameter t (spec.md
// §4.3).
const lineCrossingEpsilon = 1e-6

// trackCountState is the per-track state LineCounter and ZoneCounter both
// key off of track id, following the single-owning-map-per-id idiom the
// teacher uses for LandmarkSmoother.filters (pkg/miface/kalman.go).
type trackCountState struct {
	lastCX, lastCY float64
	hasLast        bool
	counted        map[DirectionId]bool

	// zone-counter fields, unused by LineCounter.
	lastZone      zoneLabel
	lastEventTime time.Time

	lastSeen time.Time
}

func newTrackCountState() *trackCountState {
	return &trackCountState{counted: make(map[DirectionId]bool)}
}

// LineCounter implements the line-crossing counting semantics of
// spec.md §4.3. New, since the teacher has no counting domain; the
// per-track map and TTL idiom are grounded on
// pkg/miface/kalman.go's LandmarkSmoother.filters.
type LineCounter struct {
	cfg   LineConfig
	state map[int]*trackCountState
}

// NewLineCounter builds a LineCounter for the given line geometry.
func NewLineCounter(cfg LineConfig) *LineCounter {
	return &LineCounter{
		cfg:   cfg,
		state: make(map[int]*trackCountState),
	}
}

// LineCountEvent is produced when a track validly crosses the line.
type LineCountEvent struct {
	TrackID   int
	Category  CategoryId
	Direction DirectionId
}

// Observe feeds one frame's track through the counter and returns a
// LineCountEvent if this observation produced a newly counted crossing.
func (c *LineCounter) Observe(track Track, now time.Time) (LineCountEvent, bool) {
	cx, cy := track.Box.Center()

	st, ok := c.state[track.ID]
	if !ok {
		st = newTrackCountState()
		c.state[track.ID] = st
	}
	st.lastSeen = now

	if !st.hasLast {
		st.lastCX, st.lastCY, st.hasLast = cx, cy, true
		return LineCountEvent{}, false
	}

	prevX, prevY := st.lastCX, st.lastCY
	st.lastCX, st.lastCY = cx, cy

	direction, crossed := c.classify(prevX, prevY, cx, cy)
	if !crossed {
		return LineCountEvent{}, false
	}

	direction = c.applyDirectionMode(direction)
	if direction == DirectionUndefined {
		return LineCountEvent{}, false
	}

	if st.counted[direction] {
		return LineCountEvent{}, false
	}
	st.counted[direction] = true

	return LineCountEvent{
		TrackID:   track.ID,
		Category:  CategoryForClassName(track.ClassName),
		Direction: direction,
	}, true
}

// classify tests the prev->curr centroid segment against the
// configured line and returns the raw (pre-mode-filter) direction, per
// spec.md §4.3.
func (c *LineCounter) classify(prevX, prevY, currX, currY float64) (DirectionId, bool) {
	yLine := c.cfg.YRatio

	aboveBand := prevY < yLine-c.cfg.BandPx && currY < yLine-c.cfg.BandPx
	belowBand := prevY > yLine+c.cfg.BandPx && currY > yLine+c.cfg.BandPx
	if aboveBand || belowBand {
		return DirectionUndefined, false
	}

	denom := currY - prevY
	if math.Abs(denom) < lineCrossingEpsilon {
		return DirectionUndefined, false
	}

	t := (yLine - prevY) / denom
	if t < 0 || t > 1 {
		return DirectionUndefined, false
	}

	xCross := prevX + t*(currX-prevX)
	if xCross < c.cfg.X1Ratio || xCross > c.cfg.X2Ratio {
		return DirectionUndefined, false
	}

	var direction DirectionId
	switch {
	case prevY >= yLine && currY < yLine:
		direction = DirectionForward
	case prevY < yLine && currY >= yLine:
		direction = DirectionReturn
	default:
		return DirectionUndefined, false
	}

	if c.cfg.XMidRatio != nil {
		if xCross < *c.cfg.XMidRatio {
			direction = DirectionForward
		} else {
			direction = DirectionReturn
		}
	}

	if c.cfg.InvertDirection {
		direction = invertDirection(direction)
	}

	return direction, true
}

func invertDirection(d DirectionId) DirectionId {
	switch d {
	case DirectionForward:
		return DirectionReturn
	case DirectionReturn:
		return DirectionForward
	default:
		return d
	}
}

func (c *LineCounter) applyDirectionMode(d DirectionId) DirectionId {
	switch c.cfg.DirectionMode {
	case DirectionModeForwardOnly:
		if d != DirectionForward {
			return DirectionUndefined
		}
	case DirectionModeReturnOnly:
		if d != DirectionReturn {
			return DirectionUndefined
		}
	}
	return d
}

// Forget drops per-track state for a track id that has expired
// (spec.md §4.2 step 8, TRACK_TTL-based GC).
func (c *LineCounter) Forget(trackID int) {
	delete(c.state, trackID)
}

// ExpireStale removes state for any track not seen within ttl of now,
// the TTL sweep the supervisor drives once per frame.
func (c *LineCounter) ExpireStale(now time.Time, ttl time.Duration) {
	for id, st := range c.state {
		if now.Sub(st.lastSeen) > ttl {
			delete(c.state, id)
		}
	}
}
