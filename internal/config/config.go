//go:build cgo
// +build cgo

// Package config loads and persists the JSON configuration document
// described in spec.md §6: RTSP stream endpoints, counting-mode
// geometry, ROI crop percents, queue thresholds and visual toggles.
//
// The on-disk format is a flat JSON object. Unknown keys are ignored;
// missing keys take the documented defaults. Load recovers from a
// corrupt config file by falling back to a rotating "<path>.backup"
// copy, and finally to hardcoded defaults, mirroring the original
// config.py load()/_save_backup()/_load_from_backup() flow.
//
// Example usage:
//
//	cfg, err := config.Load("config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pc := cfg.ToPipelineConfig()
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/juanpfsti/sysMonit/pkg/sysmonit"
)

// LineConfig is the JSON shape of spec.md §6 "line_config".
type LineConfig struct {
	X1Ratio         float64  `json:"x1_ratio"`
	X2Ratio         float64  `json:"x2_ratio"`
	YRatio          float64  `json:"y_ratio"`
	BandPx          float64  `json:"band_px"`
	XMidRatio       *float64 `json:"x_mid_ratio,omitempty"`
	InvertDirection bool     `json:"invert_direction"`
	DirectionMode   string   `json:"direction_mode"` // "both" | "ida_only" | "volta_only"
}

// ZonesConfig is the JSON shape of spec.md §6 "zones_config": each
// rectangle is [x1, y1, x2, y2] frame-ratio bounds.
type ZonesConfig struct {
	Down [4]float64 `json:"down"`
	Up   [4]float64 `json:"up"`
}

// ZonesDirection is the JSON shape of spec.md §6 "zones_direction".
type ZonesDirection struct {
	Down string `json:"down"` // "ida" | "volta"
	Up   string `json:"up"`
}

// ROICrop is the JSON shape of spec.md §6 "roi_crop".
type ROICrop struct {
	TopPercent    float64 `json:"top_percent"`
	BottomPercent float64 `json:"bottom_percent"`
	LeftPercent   float64 `json:"left_percent"`
	RightPercent  float64 `json:"right_percent"`
}

// QueueConfig is the JSON shape of spec.md §6 "queue_config".
type QueueConfig struct {
	Enabled          bool         `json:"enabled"`
	ThresholdSeconds float64      `json:"threshold_seconds"`
	ShowTimers       bool         `json:"show_timers"`
	ShowTrail        bool         `json:"show_trail"`
	MinWaitSeconds   float64      `json:"min_wait_time"`
	Polygon          [][2]float64 `json:"polygon"`
	EntryLine        [][2]float64 `json:"entry_line"`
	ExitLine         [][2]float64 `json:"exit_line"`
}

// Config is the complete JSON configuration document (spec.md §6).
type Config struct {
	RTSPURL       string  `json:"rtsp_url"`
	RTSPURLQueue  string  `json:"rtsp_url_queue"`
	ConfidenceMin float64 `json:"confidence_min"`
	Model         string  `json:"model"`
	QueueModel    string  `json:"queue_model"`
	Tracker       string  `json:"tracker"`

	// ReportIntervalSeconds supplements the distilled contract with the
	// original config.py "intervalo_relatorio" field: how often the
	// pipeline logs a rolled-up status line. It does not affect the
	// counters-snapshot save cadence, which is fixed at 5s.
	ReportIntervalSeconds float64 `json:"report_interval_seconds"`

	// Categories supplements the distilled contract with the original
	// config.py "categorias" allow-list: detector class names considered
	// before the class->category mapping. Empty disables filtering.
	Categories []string `json:"categorias"`

	CountingMode      string         `json:"counting_mode"`
	LineConfig        LineConfig     `json:"line_config"`
	ZonesConfig       ZonesConfig    `json:"zones_config"`
	ZonesDirection    ZonesDirection `json:"zones_direction"`
	ZoneEventCooldown float64        `json:"zone_event_cooldown"`

	UseROICrop bool    `json:"use_roi_crop"`
	ROICrop    ROICrop `json:"roi_crop"`

	RTSPEnableFrameValidation bool `json:"rtsp_enable_frame_validation"`

	ShowLabels         bool `json:"show_labels"`
	ShowZoneTags       bool `json:"show_zone_tags"`
	HideDetectionLines bool `json:"hide_detection_lines"`
	HideDetectionBoxes bool `json:"hide_detection_boxes"`

	QueueConfig QueueConfig `json:"queue_config"`
}

// Default returns the default configuration, mirroring original_source's
// config.py default_config dict.
func Default() *Config {
	return &Config{
		RTSPURL:               "rtsp://user:pass@ip:port/path",
		RTSPURLQueue:          "",
		ConfidenceMin:         0.5,
		Model:                 "yolo11n.pt",
		QueueModel:            "yolo11n.pt",
		Tracker:               "bytetrack.yaml",
		ReportIntervalSeconds: 15,
		Categories:            []string{"car", "motorcycle", "moto", "motor", "truck", "bus"},
		CountingMode:          "line",
		LineConfig: LineConfig{
			X1Ratio: 0.10, X2Ratio: 0.90, YRatio: 0.55, BandPx: 2,
			InvertDirection: false, DirectionMode: "both",
		},
		ZonesConfig: ZonesConfig{
			Down: [4]float64{0.10, 0.60, 0.90, 0.95},
			Up:   [4]float64{0.10, 0.05, 0.90, 0.40},
		},
		ZonesDirection:    ZonesDirection{Down: "ida", Up: "volta"},
		ZoneEventCooldown: 0.8,
		UseROICrop:        false,
		ROICrop:           ROICrop{},
		ShowLabels:        false,
		ShowZoneTags:      true,
		QueueConfig: QueueConfig{
			Enabled:          true,
			ThresholdSeconds: 60,
			ShowTimers:       true,
			ShowTrail:        true,
			MinWaitSeconds:   5.0,
			Polygon:          nil,
		},
	}
}

// backupSuffix is appended to the config path to form the rotating
// recovery copy (spec.md §6).
const backupSuffix = ".backup"

// Load reads and parses a JSON configuration file. If the file does
// not exist, the defaults are returned and persisted to path, mirroring
// the original's create-with-defaults behavior. If the file exists but
// fails to parse, Load tries "<path>.backup" before falling back to
// hardcoded defaults (spec.md §6, §7 ConfigError).
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			_ = cfg.Save(path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		if backup, backupErr := loadBackup(path); backupErr == nil {
			_ = backup.Save(path)
			return backup, nil
		}
		return Default(), nil
	}

	_ = cfg.saveBackup(path)
	return cfg, nil
}

// loadBackup attempts to parse "<path>.backup" into a fresh Config
// layered over the defaults.
func loadBackup(path string) (*Config, error) {
	data, err := os.ReadFile(path + backupSuffix)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes c to path using a write-to-temp-file-then-rename sequence
// so a crash mid-write never leaves a truncated config behind, then
// refreshes the backup copy.
func (c *Config) Save(path string) error {
	if err := atomicWriteJSON(path, c); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return c.saveBackup(path)
}

// saveBackup refreshes "<path>.backup" with the current configuration.
func (c *Config) saveBackup(path string) error {
	if err := atomicWriteJSON(path+backupSuffix, c); err != nil {
		return fmt.Errorf("saving config backup: %w", err)
	}
	return nil
}

// atomicWriteJSON marshals v with indentation and writes it to path via
// a same-directory temp file followed by an atomic rename.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ConfidenceMin < 0 || c.ConfidenceMin > 1 {
		return fmt.Errorf("confidence_min must be between 0 and 1, got %f", c.ConfidenceMin)
	}
	if c.CountingMode != "line" && c.CountingMode != "zone" {
		return fmt.Errorf("counting_mode must be \"line\" or \"zone\", got %q", c.CountingMode)
	}
	if c.QueueConfig.MinWaitSeconds < 0 {
		return fmt.Errorf("queue_config.min_wait_time must not be negative, got %f", c.QueueConfig.MinWaitSeconds)
	}
	return nil
}

// directionMode converts the JSON direction_mode string to the typed
// enum, defaulting to DirectionModeBoth on an unrecognized value.
func directionMode(s string) sysmonit.DirectionMode {
	switch s {
	case "ida_only":
		return sysmonit.DirectionModeForwardOnly
	case "volta_only":
		return sysmonit.DirectionModeReturnOnly
	default:
		return sysmonit.DirectionModeBoth
	}
}

// directionID converts a "ida"/"volta" zone direction label to the
// typed enum, defaulting to DirectionUndefined on an unrecognized value.
func directionID(s string) sysmonit.DirectionId {
	switch s {
	case "ida":
		return sysmonit.DirectionForward
	case "volta":
		return sysmonit.DirectionReturn
	default:
		return sysmonit.DirectionUndefined
	}
}

func toPoints(pairs [][2]float64) []sysmonit.Point {
	if len(pairs) == 0 {
		return nil
	}
	pts := make([]sysmonit.Point, len(pairs))
	for i, p := range pairs {
		pts[i] = sysmonit.Point{X: p[0], Y: p[1]}
	}
	return pts
}

// secondsToDuration converts a fractional-seconds JSON value into a
// time.Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// ToPipelineConfig converts the JSON document into the typed
// sysmonit.PipelineConfig the supervisor consumes (spec.md §6).
func (c *Config) ToPipelineConfig() sysmonit.PipelineConfig {
	pc := sysmonit.PipelineConfig{
		RTSPURL:       c.RTSPURL,
		ConfidenceMin: c.ConfidenceMin,
		CountingMode:  c.CountingMode,
		Line: sysmonit.LineConfig{
			X1Ratio:         c.LineConfig.X1Ratio,
			X2Ratio:         c.LineConfig.X2Ratio,
			YRatio:          c.LineConfig.YRatio,
			XMidRatio:       c.LineConfig.XMidRatio,
			BandPx:          c.LineConfig.BandPx,
			InvertDirection: c.LineConfig.InvertDirection,
			DirectionMode:   directionMode(c.LineConfig.DirectionMode),
		},
		Zones: sysmonit.ZonesConfig{
			Down: sysmonit.ZoneRect{
				X1: c.ZonesConfig.Down[0], Y1: c.ZonesConfig.Down[1],
				X2: c.ZonesConfig.Down[2], Y2: c.ZonesConfig.Down[3],
			},
			Up: sysmonit.ZoneRect{
				X1: c.ZonesConfig.Up[0], Y1: c.ZonesConfig.Up[1],
				X2: c.ZonesConfig.Up[2], Y2: c.ZonesConfig.Up[3],
			},
			DownDirection:        directionID(c.ZonesDirection.Down),
			UpDirection:          directionID(c.ZonesDirection.Up),
			EventCooldownSeconds: c.ZoneEventCooldown,
		},
		UseROICrop: c.UseROICrop,
		ROI: sysmonit.ROICrop{
			TopPercent:    c.ROICrop.TopPercent,
			BottomPercent: c.ROICrop.BottomPercent,
			LeftPercent:   c.ROICrop.LeftPercent,
			RightPercent:  c.ROICrop.RightPercent,
		},
		Categories: c.Categories,
		Queue: sysmonit.QueueConfig{
			Polygon:          toPoints(c.QueueConfig.Polygon),
			EntryLine:        toPoints(c.QueueConfig.EntryLine),
			ExitLine:         toPoints(c.QueueConfig.ExitLine),
			ThresholdSeconds: c.QueueConfig.ThresholdSeconds,
			MinWaitSeconds:   c.QueueConfig.MinWaitSeconds,
		},
		ValidateFrames: c.RTSPEnableFrameValidation,
		Visuals: sysmonit.VisualSettings{
			ShowLabels:           c.ShowLabels,
			ShowZones:            c.ShowZoneTags,
			HideCountingGeometry: c.HideDetectionLines,
			HideBoxes:            c.HideDetectionBoxes,
		},
	}
	if c.ReportIntervalSeconds > 0 {
		pc.ReportInterval = secondsToDuration(c.ReportIntervalSeconds)
	}
	return pc
}
