//go:build cgo
// +build cgo

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.RTSPURL == "" {
		t.Error("expected a non-empty default RTSPURL")
	}
	if cfg.ConfidenceMin != 0.5 {
		t.Errorf("expected ConfidenceMin 0.5, got %f", cfg.ConfidenceMin)
	}
	if cfg.CountingMode != "line" {
		t.Errorf("expected CountingMode line, got %s", cfg.CountingMode)
	}
	if cfg.LineConfig.X1Ratio != 0.10 || cfg.LineConfig.X2Ratio != 0.90 {
		t.Errorf("unexpected default line config: %+v", cfg.LineConfig)
	}
	if cfg.QueueConfig.MinWaitSeconds != 5.0 {
		t.Errorf("expected default min_wait_time 5.0, got %f", cfg.QueueConfig.MinWaitSeconds)
	}
	if !cfg.ShowZoneTags {
		t.Error("expected ShowZoneTags true by default")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
}

func TestLoad_NonExistentFile_CreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error for non-existent file: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config for non-existent file")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected Load to persist defaults to disk, stat failed: %v", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	content := `{
		"rtsp_url": "rtsp://cam1/stream",
		"confidence_min": 0.7,
		"counting_mode": "zone",
		"zones_config": {"down": [0.1, 0.6, 0.9, 0.95], "up": [0.1, 0.05, 0.9, 0.4]},
		"queue_config": {"min_wait_time": 10, "threshold_seconds": 90}
	}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RTSPURL != "rtsp://cam1/stream" {
		t.Errorf("expected RTSPURL rtsp://cam1/stream, got %s", cfg.RTSPURL)
	}
	if cfg.ConfidenceMin != 0.7 {
		t.Errorf("expected ConfidenceMin 0.7, got %f", cfg.ConfidenceMin)
	}
	if cfg.CountingMode != "zone" {
		t.Errorf("expected CountingMode zone, got %s", cfg.CountingMode)
	}
	if cfg.QueueConfig.MinWaitSeconds != 10 {
		t.Errorf("expected MinWaitSeconds 10, got %f", cfg.QueueConfig.MinWaitSeconds)
	}

	// Unspecified keys fall back to defaults (e.g. Model).
	if cfg.Model != "yolo11n.pt" {
		t.Errorf("expected default Model to survive partial JSON, got %s", cfg.Model)
	}
}

func TestLoad_InvalidJSONFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	good := Default()
	good.RTSPURL = "rtsp://backup-camera/stream"
	if err := good.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := os.WriteFile(path, []byte("{ not valid json"), 0644); err != nil {
		t.Fatalf("failed to corrupt config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error recovering from backup: %v", err)
	}
	if cfg.RTSPURL != "rtsp://backup-camera/stream" {
		t.Errorf("expected recovery from backup, got RTSPURL %s", cfg.RTSPURL)
	}
}

func TestLoad_InvalidJSONNoBackupFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{ not valid json"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RTSPURL != Default().RTSPURL {
		t.Errorf("expected default RTSPURL when no backup exists, got %s", cfg.RTSPURL)
	}
}

func TestSave_CreatesBackupAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.RTSPURL = "rtsp://roundtrip/stream"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.RTSPURL != "rtsp://roundtrip/stream" {
		t.Errorf("expected round-tripped RTSPURL, got %s", reloaded.RTSPURL)
	}

	if _, err := os.Stat(path + backupSuffix); err != nil {
		t.Errorf("expected backup file to exist after Save, stat failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		name := e.Name()
		if name != "config.json" && name != "config.json.backup" {
			t.Errorf("unexpected leftover file after Save: %s", name)
		}
	}
}

func TestValidate_InvalidConfidence(t *testing.T) {
	cfg := Default()
	cfg.ConfidenceMin = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for confidence_min > 1")
	}
}

func TestValidate_InvalidCountingMode(t *testing.T) {
	cfg := Default()
	cfg.CountingMode = "diagonal"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid counting_mode")
	}
}

func TestValidate_NegativeMinWait(t *testing.T) {
	cfg := Default()
	cfg.QueueConfig.MinWaitSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative min_wait_time")
	}
}

func TestToPipelineConfig_MapsGeometryAndVisuals(t *testing.T) {
	cfg := Default()
	cfg.ZonesDirection = ZonesDirection{Down: "ida", Up: "volta"}
	cfg.LineConfig.DirectionMode = "ida_only"
	cfg.HideDetectionBoxes = true

	pc := cfg.ToPipelineConfig()

	if pc.Line.X1Ratio != cfg.LineConfig.X1Ratio || pc.Line.YRatio != cfg.LineConfig.YRatio {
		t.Errorf("unexpected line mapping: %+v", pc.Line)
	}
	if pc.Zones.Down.X1 != cfg.ZonesConfig.Down[0] || pc.Zones.Down.Y2 != cfg.ZonesConfig.Down[3] {
		t.Errorf("unexpected down-zone mapping: %+v", pc.Zones.Down)
	}
	if !pc.Visuals.HideBoxes {
		t.Error("expected HideBoxes true")
	}
	if pc.ReportInterval <= 0 {
		t.Error("expected a positive report interval derived from ReportIntervalSeconds")
	}
	if len(pc.Categories) != len(cfg.Categories) {
		t.Errorf("expected Categories to pass through unchanged, got %v", pc.Categories)
	}
}
