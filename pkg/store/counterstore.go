package store

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/juanpfsti/sysMonit/pkg/sysmonit"
)

const legacyBatchSize = 10000

// CounterStore is the durable counters + history log described in
// spec.md §4.7, grounded on original_source/core/database.py. Writes are
// serialized by mu; readers proceed concurrently through SQLite's
// write-ahead log. A nil *CounterStore is valid and makes every method a
// no-op, matching the StoreUnavailable contract: if the store could not
// be opened, the pipeline keeps counting in memory and simply never
// persists.
type CounterStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// OpenCounterStore opens or creates the counters database at path,
// running the schema/migration steps on first use. On failure the
// caller should log and continue with a nil *CounterStore (every method
// on a nil receiver is a safe no-op).
func OpenCounterStore(path string) (*CounterStore, error) {
	db, err := openPragmas(path, "PRAGMA cache_size=10000", "PRAGMA temp_store=MEMORY")
	if err != nil {
		return nil, err
	}

	cs := &CounterStore{db: db, path: path}
	if err := cs.init(); err != nil {
		db.Close()
		return nil, err
	}
	return cs, nil
}

func (cs *CounterStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cameras (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rtsp_url TEXT UNIQUE NOT NULL,
			description TEXT,
			created_at INTEGER DEFAULT (strftime('%s','now'))
		)`,
		`CREATE TABLE IF NOT EXISTS counters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rtsp_url TEXT NOT NULL,
			category_name TEXT NOT NULL,
			direction_name TEXT NOT NULL,
			value INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER DEFAULT (strftime('%s','now'))
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			camera_id INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			direction_id INTEGER NOT NULL,
			FOREIGN KEY(camera_id) REFERENCES cameras(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_time ON history(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_history_cam ON history(camera_id)`,
	}
	for _, s := range stmts {
		if _, err := cs.db.Exec(s); err != nil {
			return fmt.Errorf("store: schema init: %w", err)
		}
	}
	return cs.migrateLegacy()
}

// migrateLegacy implements spec.md §4.7's migration contract: a
// pre-existing "history_legacy" table (string rtsp_url/timestamp/
// category/direction columns, the shape the original Python writer used
// before the normalized schema) is copied into the new `history` table
// in batches of 10,000, then compacted, but only the first time — once
// `history` has rows, migration never runs again.
func (cs *CounterStore) migrateLegacy() error {
	var legacyExists int
	err := cs.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='history_legacy'",
	).Scan(&legacyExists)
	if err != nil || legacyExists == 0 {
		return nil
	}

	var newCount int
	if err := cs.db.QueryRow("SELECT COUNT(*) FROM history").Scan(&newCount); err != nil {
		return fmt.Errorf("store: checking history for migration: %w", err)
	}
	if newCount > 0 {
		return nil
	}

	log.Printf("store: migrating legacy history table at %s", cs.path)

	if _, err := cs.db.Exec(`
		INSERT OR IGNORE INTO cameras (rtsp_url)
		SELECT DISTINCT rtsp_url FROM history_legacy WHERE rtsp_url IS NOT NULL AND rtsp_url != ''
	`); err != nil {
		return fmt.Errorf("store: migrating legacy cameras: %w", err)
	}

	offset := 0
	for {
		rows, err := cs.db.Query(
			"SELECT rtsp_url, timestamp, category, direction FROM history_legacy ORDER BY id LIMIT ? OFFSET ?",
			legacyBatchSize, offset,
		)
		if err != nil {
			return fmt.Errorf("store: reading legacy batch: %w", err)
		}

		type legacyRow struct {
			url, ts, cat, dir string
		}
		var batch []legacyRow
		for rows.Next() {
			var r legacyRow
			if err := rows.Scan(&r.url, &r.ts, &r.cat, &r.dir); err != nil {
				rows.Close()
				return fmt.Errorf("store: scanning legacy row: %w", err)
			}
			batch = append(batch, r)
		}
		rows.Close()
		if len(batch) == 0 {
			break
		}

		tx, err := cs.db.Begin()
		if err != nil {
			return fmt.Errorf("store: beginning migration batch: %w", err)
		}
		for _, r := range batch {
			camID, err := cameraIDTx(tx, r.url)
			if err != nil {
				tx.Rollback()
				return err
			}
			epoch := parseLegacyTimestamp(r.ts)
			catID := legacyCategoryID(r.cat)
			dirID := legacyDirectionID(r.dir)
			if _, err := tx.Exec(
				"INSERT INTO history (camera_id, timestamp, category_id, direction_id) VALUES (?, ?, ?, ?)",
				camID, epoch, catID, dirID,
			); err != nil {
				tx.Rollback()
				return fmt.Errorf("store: inserting migrated row: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: committing migration batch: %w", err)
		}

		offset += legacyBatchSize
		log.Printf("store: migrated %d legacy rows", offset)
	}

	if _, err := cs.db.Exec("VACUUM"); err != nil {
		log.Printf("store: VACUUM after migration failed: %v", err)
	}
	return nil
}

// legacyTimestampLayouts mirrors the formats database.py's migration
// accepted before falling back to "now".
var legacyTimestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseLegacyTimestamp(s string) int64 {
	for _, layout := range legacyTimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Unix()
		}
	}
	return time.Now().Unix()
}

func legacyCategoryID(name string) sysmonit.CategoryId {
	switch name {
	case "Carros", "Cars":
		return sysmonit.CategoryCars
	case "Motos":
		return sysmonit.CategoryMotos
	case "Caminhões", "Trucks":
		return sysmonit.CategoryTrucks
	case "Ônibus", "Buses":
		return sysmonit.CategoryBuses
	default:
		return sysmonit.CategoryUndefined
	}
}

func legacyDirectionID(name string) sysmonit.DirectionId {
	switch name {
	case "ida", "Forward":
		return sysmonit.DirectionForward
	case "volta", "Return":
		return sysmonit.DirectionReturn
	default:
		return sysmonit.DirectionUndefined
	}
}

func cameraIDTx(tx *sql.Tx, rtspURL string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM cameras WHERE rtsp_url = ?", rtspURL).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("store: looking up camera: %w", err)
	}
	res, err := tx.Exec("INSERT INTO cameras (rtsp_url) VALUES (?)", rtspURL)
	if err != nil {
		return 0, fmt.Errorf("store: creating camera: %w", err)
	}
	return res.LastInsertId()
}

func (cs *CounterStore) cameraID(rtspURL string) (int64, error) {
	var id int64
	err := cs.db.QueryRow("SELECT id FROM cameras WHERE rtsp_url = ?", rtspURL).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("store: looking up camera: %w", err)
	}
	res, err := cs.db.Exec("INSERT INTO cameras (rtsp_url) VALUES (?)", rtspURL)
	if err != nil {
		return 0, fmt.Errorf("store: creating camera: %w", err)
	}
	return res.LastInsertId()
}

// SaveSnapshot rewrites the denormalized counters rows for one camera in
// a single transaction: delete then re-insert, per spec.md §4.7. The
// core calls this at most once every 5s per camera (PipelineSupervisor
// enforces that cadence; this method has no rate limiting of its own).
func (cs *CounterStore) SaveSnapshot(rtspURL string, snapshot *sysmonit.CountersSnapshot) error {
	if cs == nil {
		return nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	tx, err := cs.db.Begin()
	if err != nil {
		return fmt.Errorf("store: saving snapshot: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM counters WHERE rtsp_url = ?", rtspURL); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: clearing old snapshot: %w", err)
	}

	for key, value := range snapshot.Counts {
		if _, err := tx.Exec(
			"INSERT INTO counters (rtsp_url, category_name, direction_name, value) VALUES (?, ?, ?, ?)",
			rtspURL, key.Category.String(), key.Direction.String(), value,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: writing snapshot row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores a camera's counters on startup so restarts don't
// lose the running totals.
func (cs *CounterStore) LoadSnapshot(rtspURL string) (*sysmonit.CountersSnapshot, error) {
	if cs == nil {
		return sysmonit.NewCountersSnapshot(), nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	rows, err := cs.db.Query(
		"SELECT category_name, direction_name, value FROM counters WHERE rtsp_url = ?", rtspURL,
	)
	if err != nil {
		return nil, fmt.Errorf("store: loading snapshot: %w", err)
	}
	defer rows.Close()

	out := sysmonit.NewCountersSnapshot()
	for rows.Next() {
		var catName, dirName string
		var value uint64
		if err := rows.Scan(&catName, &dirName, &value); err != nil {
			return nil, fmt.Errorf("store: scanning snapshot row: %w", err)
		}
		out.Counts[sysmonit.CountsKey{
			Category:  categoryByName(catName),
			Direction: directionByName(dirName),
		}] = value
	}
	return out, nil
}

func categoryByName(name string) sysmonit.CategoryId {
	for _, c := range []sysmonit.CategoryId{sysmonit.CategoryCars, sysmonit.CategoryMotos, sysmonit.CategoryTrucks, sysmonit.CategoryBuses} {
		if c.String() == name {
			return c
		}
	}
	return sysmonit.CategoryUndefined
}

func directionByName(name string) sysmonit.DirectionId {
	for _, d := range []sysmonit.DirectionId{sysmonit.DirectionForward, sysmonit.DirectionReturn} {
		if d.String() == name {
			return d
		}
	}
	return sysmonit.DirectionUndefined
}

// AppendEvent inserts one immutable history row, called once per counted
// vehicle (spec.md §4.7's append_event).
func (cs *CounterStore) AppendEvent(event sysmonit.CountEvent) error {
	if cs == nil {
		return nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	camID, err := cs.cameraID(event.CameraID)
	if err != nil {
		return err
	}

	epoch := event.Epoch
	if epoch == 0 {
		epoch = time.Now().Unix()
	}

	if _, err := cs.db.Exec(
		"INSERT INTO history (camera_id, timestamp, category_id, direction_id) VALUES (?, ?, ?, ?)",
		camID, epoch, int(event.Category), int(event.Direction),
	); err != nil {
		return fmt.Errorf("store: appending history event: %w", err)
	}
	return nil
}

// FlushAndClose checkpoints the WAL and closes the connection. Called
// from the PipelineSupervisor's finalizer, after the capture and
// detector have fully released their resources.
func (cs *CounterStore) FlushAndClose() error {
	if cs == nil {
		return nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, err := cs.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		log.Printf("store: wal checkpoint on close failed: %v", err)
	}
	return cs.db.Close()
}

// HistoryFilter narrows GetHistoryEvents.
type HistoryFilter struct {
	RTSPURL   string
	StartUnix int64 // 0 = unbounded
	EndUnix   int64 // 0 = unbounded
	Limit     int
}

// HistoryEvent is one row of the history table joined back to its camera
// URL and human-readable category/direction names.
type HistoryEvent struct {
	ID        int64
	RTSPURL   string
	Timestamp time.Time
	Category  string
	Direction string
}

// GetHistoryEvents returns matching rows, most recent first.
func (cs *CounterStore) GetHistoryEvents(f HistoryFilter) ([]HistoryEvent, error) {
	if cs == nil {
		return nil, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := `SELECT h.id, c.rtsp_url, h.timestamp, h.category_id, h.direction_id
		FROM history h JOIN cameras c ON h.camera_id = c.id WHERE 1=1`
	var args []any
	if f.RTSPURL != "" {
		query += " AND c.rtsp_url = ?"
		args = append(args, f.RTSPURL)
	}
	if f.StartUnix > 0 {
		query += " AND h.timestamp >= ?"
		args = append(args, f.StartUnix)
	}
	if f.EndUnix > 0 {
		query += " AND h.timestamp <= ?"
		args = append(args, f.EndUnix)
	}
	query += " ORDER BY h.timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEvent
	for rows.Next() {
		var e HistoryEvent
		var ts int64
		var catID, dirID int
		if err := rows.Scan(&e.ID, &e.RTSPURL, &ts, &catID, &dirID); err != nil {
			return nil, fmt.Errorf("store: scanning history row: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Category = sysmonit.CategoryId(catID).String()
		e.Direction = sysmonit.DirectionId(dirID).String()
		out = append(out, e)
	}
	return out, nil
}

// HourlyCount is one (hour-of-day, count) bucket.
type HourlyCount struct {
	Hour  int
	Total int
}

// GetHourlyTraffic buckets one calendar day's events by local hour.
func (cs *CounterStore) GetHourlyTraffic(rtspURL string, day time.Time) ([]HourlyCount, error) {
	if cs == nil {
		return nil, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	query := `SELECT CAST(strftime('%H', datetime(h.timestamp, 'unixepoch', 'localtime')) AS INTEGER) AS hour, COUNT(*)
		FROM history h JOIN cameras c ON h.camera_id = c.id
		WHERE h.timestamp >= ? AND h.timestamp < ?`
	args := []any{start.Unix(), end.Unix()}
	if rtspURL != "" {
		query += " AND c.rtsp_url = ?"
		args = append(args, rtspURL)
	}
	query += " GROUP BY hour ORDER BY hour"

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying hourly traffic: %w", err)
	}
	defer rows.Close()

	var out []HourlyCount
	for rows.Next() {
		var hc HourlyCount
		if err := rows.Scan(&hc.Hour, &hc.Total); err != nil {
			return nil, fmt.Errorf("store: scanning hourly row: %w", err)
		}
		out = append(out, hc)
	}
	return out, nil
}

// DailyCategoryCount is one (weekday, category, count) row.
type DailyCategoryCount struct {
	Weekday  time.Weekday
	Category string
	Total    int
}

// GetDailyComparison aggregates the trailing `days` of events by weekday
// and category.
func (cs *CounterStore) GetDailyComparison(rtspURL string, days int) ([]DailyCategoryCount, error) {
	if cs == nil {
		return nil, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	limit := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	query := `SELECT CAST(strftime('%w', datetime(h.timestamp, 'unixepoch', 'localtime')) AS INTEGER), h.category_id, COUNT(*)
		FROM history h JOIN cameras c ON h.camera_id = c.id
		WHERE h.timestamp >= ?`
	args := []any{limit}
	if rtspURL != "" {
		query += " AND c.rtsp_url = ?"
		args = append(args, rtspURL)
	}
	query += " GROUP BY 1, h.category_id ORDER BY 1"

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying daily comparison: %w", err)
	}
	defer rows.Close()

	var out []DailyCategoryCount
	for rows.Next() {
		var weekday, catID, total int
		if err := rows.Scan(&weekday, &catID, &total); err != nil {
			return nil, fmt.Errorf("store: scanning daily row: %w", err)
		}
		out = append(out, DailyCategoryCount{
			Weekday:  time.Weekday(weekday),
			Category: sysmonit.CategoryId(catID).String(),
			Total:    total,
		})
	}
	return out, nil
}

// WeeklyCategoryCount is one (ISO-ish year-week label, category, count) row.
type WeeklyCategoryCount struct {
	Week     string
	Category string
	Total    int
}

// GetWeeklyComparison aggregates the trailing `weeks` of events by
// calendar week and category.
func (cs *CounterStore) GetWeeklyComparison(rtspURL string, weeks int) ([]WeeklyCategoryCount, error) {
	if cs == nil {
		return nil, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	limit := time.Now().Add(-time.Duration(weeks) * 7 * 24 * time.Hour).Unix()
	query := `SELECT strftime('%Y-W%W', datetime(h.timestamp, 'unixepoch', 'localtime')) AS wk, h.category_id, COUNT(*)
		FROM history h JOIN cameras c ON h.camera_id = c.id
		WHERE h.timestamp >= ?`
	args := []any{limit}
	if rtspURL != "" {
		query += " AND c.rtsp_url = ?"
		args = append(args, rtspURL)
	}
	query += " GROUP BY wk, h.category_id ORDER BY wk DESC"

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying weekly comparison: %w", err)
	}
	defer rows.Close()

	var out []WeeklyCategoryCount
	for rows.Next() {
		var wc WeeklyCategoryCount
		var catID int
		if err := rows.Scan(&wc.Week, &catID, &wc.Total); err != nil {
			return nil, fmt.Errorf("store: scanning weekly row: %w", err)
		}
		wc.Category = sysmonit.CategoryId(catID).String()
		out = append(out, wc)
	}
	return out, nil
}

// PeakHour is one (hour-of-day, average events/day) row.
type PeakHour struct {
	Hour    int
	Average float64
}

// GetPeakHours ranks hours of day by average traffic over the trailing
// `days`, busiest first.
func (cs *CounterStore) GetPeakHours(rtspURL string, days int) ([]PeakHour, error) {
	if cs == nil {
		return nil, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if days <= 0 {
		days = 1
	}
	limit := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	query := `SELECT CAST(strftime('%H', datetime(h.timestamp, 'unixepoch', 'localtime')) AS INTEGER), CAST(COUNT(*) AS REAL) / ?
		FROM history h JOIN cameras c ON h.camera_id = c.id
		WHERE h.timestamp >= ?`
	args := []any{days, limit}
	if rtspURL != "" {
		query += " AND c.rtsp_url = ?"
		args = append(args, rtspURL)
	}
	query += " GROUP BY 1 ORDER BY 2 DESC"

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying peak hours: %w", err)
	}
	defer rows.Close()

	var out []PeakHour
	for rows.Next() {
		var ph PeakHour
		if err := rows.Scan(&ph.Hour, &ph.Average); err != nil {
			return nil, fmt.Errorf("store: scanning peak hour row: %w", err)
		}
		out = append(out, ph)
	}
	return out, nil
}

// CategoryCount is one (category, count) row.
type CategoryCount struct {
	Category string
	Total    int
}

// GetVehicleDistribution buckets events in [startUnix, endUnix] by
// category, busiest first. A zero bound is unbounded on that side.
func (cs *CounterStore) GetVehicleDistribution(rtspURL string, startUnix, endUnix int64) ([]CategoryCount, error) {
	if cs == nil {
		return nil, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	query := `SELECT h.category_id, COUNT(*) FROM history h JOIN cameras c ON h.camera_id = c.id WHERE 1=1`
	var args []any
	if rtspURL != "" {
		query += " AND c.rtsp_url = ?"
		args = append(args, rtspURL)
	}
	if startUnix > 0 {
		query += " AND h.timestamp >= ?"
		args = append(args, startUnix)
	}
	if endUnix > 0 {
		query += " AND h.timestamp <= ?"
		args = append(args, endUnix)
	}
	query += " GROUP BY h.category_id ORDER BY 2 DESC"

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying vehicle distribution: %w", err)
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var catID, total int
		if err := rows.Scan(&catID, &total); err != nil {
			return nil, fmt.Errorf("store: scanning distribution row: %w", err)
		}
		out = append(out, CategoryCount{Category: sysmonit.CategoryId(catID).String(), Total: total})
	}
	return out, nil
}

// Metrics24h summarizes the trailing 24h window.
type Metrics24h struct {
	Total24h   int
	AvgPerHour float64
	PeakHour   int
}

// Get24hMetrics reports total/average/peak traffic over the trailing 24h.
func (cs *CounterStore) Get24hMetrics(rtspURL string) (Metrics24h, error) {
	if cs == nil {
		return Metrics24h{}, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	limit := time.Now().Add(-24 * time.Hour).Unix()
	query := `SELECT COUNT(*), strftime('%Y-%m-%d %H', datetime(h.timestamp, 'unixepoch', 'localtime'))
		FROM history h JOIN cameras c ON h.camera_id = c.id WHERE h.timestamp >= ?`
	args := []any{limit}
	if rtspURL != "" {
		query += " AND c.rtsp_url = ?"
		args = append(args, rtspURL)
	}
	query += " GROUP BY 2"

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		return Metrics24h{}, fmt.Errorf("store: querying 24h metrics: %w", err)
	}
	defer rows.Close()

	var total, peak int
	var buckets int
	for rows.Next() {
		var count int
		var bucket string
		if err := rows.Scan(&count, &bucket); err != nil {
			return Metrics24h{}, fmt.Errorf("store: scanning 24h metrics row: %w", err)
		}
		total += count
		if count > peak {
			peak = count
		}
		buckets++
	}
	if buckets == 0 {
		return Metrics24h{}, nil
	}
	return Metrics24h{Total24h: total, AvgPerHour: float64(total) / 24.0, PeakHour: peak}, nil
}
