package sysmonit

import "time"

// zoneLabel is the classification of a centroid against the configured
// down/up rectangles (spec.md §4.4).
type zoneLabel int

const (
	zoneNone zoneLabel = iota
	zoneDown
	zoneUp
)

// ZoneCounter implements the zone-transition counting semantics of
// spec.md §4.4. New, grounded on the same per-track map idiom as
// LineCounter; shares trackCountState so a single TTL sweep in the
// supervisor can cover both.
type ZoneCounter struct {
	cfg   ZonesConfig
	state map[int]*trackCountState
}

// NewZoneCounter builds a ZoneCounter for the given zone geometry.
func NewZoneCounter(cfg ZonesConfig) *ZoneCounter {
	return &ZoneCounter{
		cfg:   cfg,
		state: make(map[int]*trackCountState),
	}
}

// ZoneCountEvent is produced when a track validly transitions between
// zones.
type ZoneCountEvent struct {
	TrackID   int
	Category  CategoryId
	Direction DirectionId
}

// classifyZone tests a centroid against the configured rectangles. Down
// and up are expected not to overlap; when they do, down wins the tie
// (spec.md §9 Open Question #1, kept as documented).
func (c *ZoneCounter) classifyZone(x, y float64) zoneLabel {
	if c.cfg.Down.Contains(x, y) {
		return zoneDown
	}
	if c.cfg.Up.Contains(x, y) {
		return zoneUp
	}
	return zoneNone
}

func (c *ZoneCounter) directionFor(z zoneLabel) DirectionId {
	switch z {
	case zoneDown:
		return c.cfg.DownDirection
	case zoneUp:
		return c.cfg.UpDirection
	default:
		return DirectionUndefined
	}
}

// Observe feeds one frame's track through the counter and returns a
// ZoneCountEvent if this observation produced a newly counted zone
// transition.
func (c *ZoneCounter) Observe(track Track, now time.Time) (ZoneCountEvent, bool) {
	cx, cy := track.Box.Center()

	st, ok := c.state[track.ID]
	if !ok {
		st = newTrackCountState()
		st.lastZone = c.classifyZone(cx, cy)
		c.state[track.ID] = st
		st.lastSeen = now
		return ZoneCountEvent{}, false
	}
	st.lastSeen = now

	current := c.classifyZone(cx, cy)
	previous := st.lastZone
	st.lastZone = current

	if previous == current || current == zoneNone {
		return ZoneCountEvent{}, false
	}

	cooldown := time.Duration(c.cfg.EventCooldownSeconds * float64(time.Second))
	if !st.lastEventTime.IsZero() && now.Sub(st.lastEventTime) < cooldown {
		return ZoneCountEvent{}, false
	}

	direction := c.directionFor(current)
	if direction == DirectionUndefined {
		return ZoneCountEvent{}, false
	}

	st.lastEventTime = now

	if st.counted[direction] {
		return ZoneCountEvent{}, false
	}
	st.counted[direction] = true

	return ZoneCountEvent{
		TrackID:   track.ID,
		Category:  CategoryForClassName(track.ClassName),
		Direction: direction,
	}, true
}

// Forget drops per-track state for a track id that has expired.
func (c *ZoneCounter) Forget(trackID int) {
	delete(c.state, trackID)
}

// ExpireStale removes state for any track not seen within ttl of now.
func (c *ZoneCounter) ExpireStale(now time.Time, ttl time.Duration) {
	for id, st := range c.state {
		if now.Sub(st.lastSeen) > ttl {
			delete(c.state, id)
		}
	}
}
