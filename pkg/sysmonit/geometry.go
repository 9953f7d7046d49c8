package sysmonit

// DirectionMode filters which crossing directions a LineCounter reports
// (spec.md §3 Geometry / §6 configuration contract).
type DirectionMode int

const (
	DirectionModeBoth DirectionMode = iota
	DirectionModeForwardOnly
	DirectionModeReturnOnly
)

// LineConfig describes a horizontal counting line, normalized to the
// processed (post-ROI-crop) frame (spec.md §3).
type LineConfig struct {
	X1Ratio, X2Ratio float64
	YRatio           float64
	// XMidRatio, when non-nil, splits the line into two direction zones:
	// crossings left of the midpoint are Forward, right are Return,
	// overriding the raw above/below direction.
	XMidRatio       *float64
	BandPx          float64
	InvertDirection bool
	DirectionMode   DirectionMode
}

// ZoneRect is an axis-aligned rectangle expressed as frame-ratio bounds.
type ZoneRect struct {
	X1, Y1, X2, Y2 float64
}

// Contains reports whether the point (in the same coordinate space as
// the rectangle) falls inside it.
func (z ZoneRect) Contains(x, y float64) bool {
	return x >= z.X1 && x <= z.X2 && y >= z.Y1 && y <= z.Y2
}

// ZonesConfig describes the two counting zones and their direction
// mapping (spec.md §3/§6). Down and Up are expected not to overlap; when
// they do, Down wins ties (spec.md §9 Open Question #1, resolved: keep
// the original implicit behavior).
type ZonesConfig struct {
	Down, Up               ZoneRect
	DownDirection          DirectionId
	UpDirection            DirectionId
	EventCooldownSeconds   float64
}

// Point is a 2D ratio-space coordinate (queue polygon vertex).
type Point struct {
	X, Y float64
}

// QueueConfig describes the queue polygon and its display/threshold
// settings (spec.md §3/§6).
type QueueConfig struct {
	Polygon           []Point
	EntryLine         []Point
	ExitLine          []Point
	ThresholdSeconds  float64
	MinWaitSeconds    float64
}

// pointInPolygon implements the standard even-odd ray-casting test,
// equivalent in spirit to cv2.pointPolygonTest (grounded on
// original_source/.../queue_manager.py), operating directly in whatever
// coordinate space the polygon and the point share; in the pipeline the
// supervisor scales the polygon to the same pixel space as the foot
// point before QueueManager sees it.
func pointInPolygon(poly []Point, x, y float64) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Y > y) != (pj.Y > y) {
			xCross := (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if x < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// ROICrop expresses the configured edge crop percentages (spec.md §4.9).
type ROICrop struct {
	TopPercent, BottomPercent, LeftPercent, RightPercent float64
}

// clampPercent bounds a crop percent into [0, 50] (spec.md §8 property 10).
func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 50 {
		return 50
	}
	return p
}

// CropRect is the resulting inner rectangle in pixels after applying an
// ROICrop to a frame of the given dimensions.
type CropRect struct {
	X1, Y1, X2, Y2 int
}

// minCropDimension is the smallest inner rectangle side SPEC_FULL
// accepts before disabling the crop for that axis (spec.md §4.9/§8
// property 10).
const minCropDimension = 32

// ApplyROICrop computes the inner rectangle for a frame of size
// width x height, clamping percents to [0, 50] and falling back to the
// full frame on either axis if the result would be narrower than
// minCropDimension pixels.
func ApplyROICrop(width, height int, cfg ROICrop) CropRect {
	top := clampPercent(cfg.TopPercent)
	bottom := clampPercent(cfg.BottomPercent)
	left := clampPercent(cfg.LeftPercent)
	right := clampPercent(cfg.RightPercent)

	x1 := int(float64(width) * left / 100)
	x2 := width - int(float64(width)*right/100)
	y1 := int(float64(height) * top / 100)
	y2 := height - int(float64(height)*bottom/100)

	if x2-x1 < minCropDimension {
		x1, x2 = 0, width
	}
	if y2-y1 < minCropDimension {
		y1, y2 = 0, height
	}

	return CropRect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}
