// Package sessionlog records camera sessions and their closing statistics in
// a SQLite journal, so capture health can be compared across runs.
package sessionlog

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/passthrough"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// defaultRecentLimit caps RecentSessions when no limit is given.
const defaultRecentLimit = 50

// Journal is a SQLite-backed passthrough.SessionObserver.
type Journal struct {
	db   *sql.DB
	path string
}

// Record is one journaled session. Closed sessions carry their final stats.
type Record struct {
	Info                  passthrough.SessionInfo    `json:"info"`
	ClosedAt              *time.Time                 `json:"closed_at,omitempty"`
	Stats                 *passthrough.StatsSnapshot `json:"stats,omitempty"`
	CalibrationGeneration uint64                     `json:"calibration_generation"`
}

// Open opens or creates the journal at path and applies pending migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	j := &Journal{db: db, path: path}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// SchemaVersion returns the applied migration version.
func (j *Journal) SchemaVersion() (uint, bool, error) {
	m, err := j.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (j *Journal) migrateUp() error {
	m, err := j.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close j.db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func (j *Journal) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// SessionOpened inserts a row for the new session.
func (j *Journal) SessionOpened(info passthrough.SessionInfo) {
	_, err := j.db.Exec(`
		INSERT INTO camera_sessions (session_id, opened_at, device_index, width, height, layout, frame_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.OpenedAt.UnixNano(), info.DeviceIndex, info.Width, info.Height,
		info.Layout.String(), info.FrameType.String())
	if err != nil {
		monitoring.Logf("[sessionlog] failed to record session %s: %v", info.ID, err)
	}
}

// SessionClosed stores the closing statistics of a session.
func (j *Journal) SessionClosed(info passthrough.SessionInfo, summary passthrough.SessionSummary) {
	s := summary.Stats
	res, err := j.db.Exec(`
		UPDATE camera_sessions SET
			closed_at = ?,
			frames_captured = ?,
			frames_published = ?,
			frames_dropped = ?,
			frames_consumed = ?,
			frames_rejected = ?,
			transient_failures = ?,
			not_ready_polls = ?,
			degenerate_poses = ?,
			calibration_fallbacks = ?,
			mean_interval_ns = ?,
			last_latency_ns = ?,
			calibration_generation = ?
		WHERE session_id = ?`,
		summary.ClosedAt.UnixNano(), s.FramesCaptured, s.FramesPublished, s.FramesDropped,
		s.FramesConsumed, s.FramesRejected, s.TransientFailures, s.NotReadyPolls,
		s.DegeneratePoses, s.CalibrationFallbacks, int64(s.MeanInterval), int64(s.LastLatency),
		summary.CalibrationGeneration, info.ID)
	if err != nil {
		monitoring.Logf("[sessionlog] failed to close session %s: %v", info.ID, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		monitoring.Logf("[sessionlog] closed session %s was never recorded as opened", info.ID)
	}
}

// RecentSessions returns up to limit sessions, newest first.
func (j *Journal) RecentSessions(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := j.db.Query(`
		SELECT session_id, opened_at, closed_at, device_index, width, height, layout, frame_type,
			frames_captured, frames_published, frames_dropped, frames_consumed, frames_rejected,
			transient_failures, not_ready_polls, degenerate_poses, calibration_fallbacks,
			mean_interval_ns, last_latency_ns, calibration_generation
		FROM camera_sessions
		ORDER BY opened_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                 Record
			openedAt          int64
			closedAt          sql.NullInt64
			layout, frameType string
			s                 passthrough.StatsSnapshot
			meanNS, latencyNS int64
		)
		if err := rows.Scan(&r.Info.ID, &openedAt, &closedAt, &r.Info.DeviceIndex, &r.Info.Width, &r.Info.Height,
			&layout, &frameType, &s.FramesCaptured, &s.FramesPublished, &s.FramesDropped, &s.FramesConsumed,
			&s.FramesRejected, &s.TransientFailures, &s.NotReadyPolls, &s.DegeneratePoses,
			&s.CalibrationFallbacks, &meanNS, &latencyNS, &r.CalibrationGeneration); err != nil {
			return nil, err
		}
		r.Info.OpenedAt = time.Unix(0, openedAt)
		if err := r.Info.Layout.UnmarshalText([]byte(layout)); err != nil {
			return nil, fmt.Errorf("session %s: %w", r.Info.ID, err)
		}
		if err := r.Info.FrameType.UnmarshalText([]byte(frameType)); err != nil {
			return nil, fmt.Errorf("session %s: %w", r.Info.ID, err)
		}
		if closedAt.Valid {
			t := time.Unix(0, closedAt.Int64)
			r.ClosedAt = &t
			s.MeanInterval = time.Duration(meanNS)
			s.LastLatency = time.Duration(latencyNS)
			r.Stats = &s
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts the session list and a tailsql console for the
// journal on mux.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+j.path, j.db, &tailsql.DBOptions{
		Label: "Camera session journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("passthrough-sessions", "recent camera sessions", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "Invalid 'limit' parameter", http.StatusBadRequest)
				return
			}
			limit = n
		}
		records, err := j.RecentSessions(limit)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to query sessions: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, "Failed to encode sessions", http.StatusInternalServerError)
		}
	})
	return nil
}
