package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/juanpfsti/sysMonit/pkg/sysmonit"
)

const queueTimeLayout = "2006-01-02 15:04:05"

// QueueStore is the dedicated durable log of completed queue events
// (spec.md §4.8), grounded on original_source/core/queue_database.py. It
// is a physically separate SQLite file from CounterStore precisely to
// avoid lock contention with the high-rate history writer — opened in
// autocommit mode so every SaveEvent is its own sub-millisecond
// transaction and readers always see the latest event immediately. A nil
// *QueueStore makes every method a safe no-op.
type QueueStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func OpenQueueStore(path string) (*QueueStore, error) {
	db, err := openPragmas(path)
	if err != nil {
		return nil, err
	}

	qs := &QueueStore{db: db, path: path}
	if err := qs.init(); err != nil {
		db.Close()
		return nil, err
	}
	return qs, nil
}

func (qs *QueueStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS queue_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id INTEGER,
			entry_time TEXT NOT NULL,
			exit_time TEXT NOT NULL,
			wait_seconds REAL NOT NULL,
			vehicle_class TEXT DEFAULT '?',
			rtsp_url TEXT DEFAULT '',
			created_at INTEGER DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_entry ON queue_history(entry_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_url ON queue_history(rtsp_url)`,
	}
	for _, s := range stmts {
		if _, err := qs.db.Exec(s); err != nil {
			return fmt.Errorf("store: queue schema init: %w", err)
		}
	}
	return nil
}

// SaveEvent persists one finalized queue wait. Called once per vehicle
// that leaves the queue with a wait at or above the configured minimum
// (QueueManager already enforces that threshold before calling this).
func (qs *QueueStore) SaveEvent(event sysmonit.QueueEvent) error {
	if qs == nil {
		return nil
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()

	_, err := qs.db.Exec(
		`INSERT INTO queue_history (track_id, entry_time, exit_time, wait_seconds, vehicle_class, rtsp_url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.TrackID,
		event.EntryTime.Format(queueTimeLayout),
		event.ExitTime.Format(queueTimeLayout),
		event.WaitSeconds,
		event.VehicleClass,
		event.CameraID,
	)
	if err != nil {
		return fmt.Errorf("store: saving queue event: %w", err)
	}
	return nil
}

// Close releases the connection.
func (qs *QueueStore) Close() error {
	if qs == nil {
		return nil
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.db.Close()
}

// QueueHistoryFilter narrows GetQueueHistory/GetQueueMetrics.
type QueueHistoryFilter struct {
	RTSPURL      string
	StartDate    string // "YYYY-MM-DD HH:MM:SS", compared against entry_time
	EndDate      string
	StartHour    int // -1 = unbounded
	EndHour      int // -1 = unbounded
	VehicleClass string
	Limit        int
}

// QueueHistoryRow is one persisted queue wait.
type QueueHistoryRow struct {
	ID           int64
	TrackID      int
	EntryTime    string
	ExitTime     string
	WaitSeconds  float64
	VehicleClass string
	RTSPURL      string
}

func (f QueueHistoryFilter) apply(query string, args []any) (string, []any) {
	if f.RTSPURL != "" {
		query += " AND rtsp_url = ?"
		args = append(args, f.RTSPURL)
	}
	if f.StartDate != "" {
		query += " AND entry_time >= ?"
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		query += " AND entry_time <= ?"
		args = append(args, f.EndDate)
	}
	if f.StartHour >= 0 {
		query += " AND CAST(strftime('%H', entry_time) AS INTEGER) >= ?"
		args = append(args, f.StartHour)
	}
	if f.EndHour >= 0 {
		query += " AND CAST(strftime('%H', entry_time) AS INTEGER) <= ?"
		args = append(args, f.EndHour)
	}
	if f.VehicleClass != "" && f.VehicleClass != "Todas" {
		query += " AND vehicle_class = ?"
		args = append(args, f.VehicleClass)
	}
	return query, args
}

// GetQueueHistory returns matching events, most recent entry first.
func (qs *QueueStore) GetQueueHistory(f QueueHistoryFilter) ([]QueueHistoryRow, error) {
	if qs == nil {
		return nil, nil
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	query := "SELECT id, track_id, entry_time, exit_time, wait_seconds, vehicle_class, rtsp_url FROM queue_history WHERE 1=1"
	var args []any
	query, args = f.apply(query, args)
	query += " ORDER BY entry_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := qs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying queue history: %w", err)
	}
	defer rows.Close()

	var out []QueueHistoryRow
	for rows.Next() {
		var r QueueHistoryRow
		if err := rows.Scan(&r.ID, &r.TrackID, &r.EntryTime, &r.ExitTime, &r.WaitSeconds, &r.VehicleClass, &r.RTSPURL); err != nil {
			return nil, fmt.Errorf("store: scanning queue history row: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// QueueMetrics is the {total, avg, max, min} aggregate of spec.md §4.8.
type QueueMetrics struct {
	Total   int
	AvgWait float64
	MaxWait float64
	MinWait float64
}

// GetQueueMetrics aggregates wait durations for the matching filter.
func (qs *QueueStore) GetQueueMetrics(f QueueHistoryFilter) (QueueMetrics, error) {
	if qs == nil {
		return QueueMetrics{}, nil
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()

	query := `SELECT COUNT(*), AVG(wait_seconds), MAX(wait_seconds), MIN(wait_seconds) FROM queue_history WHERE 1=1`
	var args []any
	query, args = f.apply(query, args)

	row := qs.db.QueryRow(query, args...)
	var total int
	var avg, max, min *float64
	if err := row.Scan(&total, &avg, &max, &min); err != nil {
		return QueueMetrics{}, fmt.Errorf("store: scanning queue metrics: %w", err)
	}
	m := QueueMetrics{Total: total}
	if avg != nil {
		m.AvgWait = *avg
	}
	if max != nil {
		m.MaxWait = *max
	}
	if min != nil {
		m.MinWait = *min
	}
	return m, nil
}

// ParseQueueTime parses a queue_history entry_time/exit_time string back
// into a time.Time in the local timezone.
func ParseQueueTime(s string) (time.Time, error) {
	return time.ParseInLocation(queueTimeLayout, s, time.Local)
}
