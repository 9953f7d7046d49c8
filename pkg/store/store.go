// Package store implements durable persistence for vehicle counters and
// queue dwell-time events, backed by SQLite through the pure-Go
// modernc.org/sqlite driver (no additional cgo dependency beyond what
// gocv already requires). CounterStore and QueueStore are deliberately
// separate files/connections — the high write rate of the counting
// history must never contend with queue-event writes or vice versa.
package store

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// openPragmas opens path with the journaling/timeout pragmas both stores
// share, then applies any store-specific pragmas via extra.
func openPragmas(path string, extra ...string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
	}
	pragmas = append(pragmas, extra...)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: applying %q: %w", p, err)
		}
	}
	return db, nil
}

// logUnavailable matches spec's StoreUnavailable handling: the pipeline
// keeps running on in-memory state only; this is logged, not fatal.
func logUnavailable(kind, path string, err error) {
	log.Printf("store: %s unavailable at %s: %v (continuing with in-memory state)", kind, path, err)
}
