package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/juanpfsti/sysMonit/pkg/sysmonit"
)

func openTestQueueStore(t *testing.T) *QueueStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	qs, err := OpenQueueStore(path)
	if err != nil {
		t.Fatalf("OpenQueueStore: %v", err)
	}
	t.Cleanup(func() { qs.Close() })
	return qs
}

func TestQueueStore_SaveAndQueryHistory(t *testing.T) {
	qs := openTestQueueStore(t)

	entry := time.Date(2026, 1, 2, 10, 0, 0, 0, time.Local)
	exit := entry.Add(90 * time.Second)
	event := sysmonit.QueueEvent{
		CameraID:     "rtsp://cam1",
		TrackID:      42,
		EntryTime:    entry,
		ExitTime:     exit,
		WaitSeconds:  90,
		VehicleClass: "car",
	}
	if err := qs.SaveEvent(event); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	rows, err := qs.GetQueueHistory(QueueHistoryFilter{RTSPURL: "rtsp://cam1", StartHour: -1, EndHour: -1})
	if err != nil {
		t.Fatalf("GetQueueHistory: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].TrackID != 42 || rows[0].WaitSeconds != 90 {
		t.Errorf("unexpected row: %+v", rows[0])
	}
}

func TestQueueStore_MetricsAggregate(t *testing.T) {
	qs := openTestQueueStore(t)

	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.Local)
	waits := []float64{10, 20, 30}
	for i, w := range waits {
		entry := base.Add(time.Duration(i) * time.Minute)
		if err := qs.SaveEvent(sysmonit.QueueEvent{
			CameraID: "rtsp://cam1", TrackID: i, EntryTime: entry,
			ExitTime: entry.Add(time.Duration(w) * time.Second), WaitSeconds: w,
		}); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}

	m, err := qs.GetQueueMetrics(QueueHistoryFilter{RTSPURL: "rtsp://cam1", StartHour: -1, EndHour: -1})
	if err != nil {
		t.Fatalf("GetQueueMetrics: %v", err)
	}
	if m.Total != 3 {
		t.Errorf("expected total 3, got %d", m.Total)
	}
	if m.AvgWait != 20 {
		t.Errorf("expected avg 20, got %v", m.AvgWait)
	}
	if m.MaxWait != 30 || m.MinWait != 10 {
		t.Errorf("expected max=30 min=10, got max=%v min=%v", m.MaxWait, m.MinWait)
	}
}

func TestQueueStore_FilterByVehicleClass(t *testing.T) {
	qs := openTestQueueStore(t)

	entry := time.Date(2026, 1, 2, 9, 0, 0, 0, time.Local)
	qs.SaveEvent(sysmonit.QueueEvent{CameraID: "rtsp://cam1", TrackID: 1, EntryTime: entry, ExitTime: entry.Add(time.Minute), WaitSeconds: 60, VehicleClass: "car"})
	qs.SaveEvent(sysmonit.QueueEvent{CameraID: "rtsp://cam1", TrackID: 2, EntryTime: entry, ExitTime: entry.Add(time.Minute), WaitSeconds: 60, VehicleClass: "truck"})

	rows, err := qs.GetQueueHistory(QueueHistoryFilter{VehicleClass: "truck", StartHour: -1, EndHour: -1})
	if err != nil {
		t.Fatalf("GetQueueHistory: %v", err)
	}
	if len(rows) != 1 || rows[0].VehicleClass != "truck" {
		t.Errorf("expected only the truck row, got %+v", rows)
	}
}

func TestQueueStore_NilStoreIsNoOp(t *testing.T) {
	var qs *QueueStore

	if err := qs.SaveEvent(sysmonit.QueueEvent{}); err != nil {
		t.Errorf("nil store SaveEvent should be a no-op, got %v", err)
	}
	rows, err := qs.GetQueueHistory(QueueHistoryFilter{})
	if err != nil || rows != nil {
		t.Errorf("nil store GetQueueHistory should return nil, nil, got %v, %v", rows, err)
	}
}
