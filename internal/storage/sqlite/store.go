// Package sqlite provides a SQLite-backed coordination storage
// implementation: the session ledger, the override counter, and the
// telemetry log for a single device.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/focusgate/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/focusgate/internal/storage"
	"github.com/louisbranch/focusgate/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists coordination state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite coordination store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ReadRecord returns the ledger record for one profile.
func (s *Store) ReadRecord(ctx context.Context, profileID string) (storage.LedgerRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.LedgerRecord{}, false, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.LedgerRecord{}, false, fmt.Errorf("storage is not configured")
	}
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return storage.LedgerRecord{}, false, fmt.Errorf("profile id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT profile_id, seq, start_time, end_time, origin_device
		   FROM ledger_records
		  WHERE profile_id = ?`,
		profileID,
	)

	var rec storage.LedgerRecord
	var startTime int64
	var endTime int64
	err := row.Scan(&rec.ProfileID, &rec.Seq, &startTime, &endTime, &rec.OriginDevice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LedgerRecord{}, false, nil
		}
		return storage.LedgerRecord{}, false, fmt.Errorf("read ledger record: %w", err)
	}
	rec.StartTime = fromMillis(startTime)
	rec.EndTime = fromMillis(endTime)
	return rec, true, nil
}

// WriteRecordIfUnchanged stores rec only if the current record's sequence
// number equals expectedSeq. Each branch is a single atomic statement, so
// a losing writer observes ErrLedgerChanged and no partial mutation.
func (s *Store) WriteRecordIfUnchanged(ctx context.Context, profileID string, expectedSeq uint64, rec storage.LedgerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return fmt.Errorf("profile id is required")
	}

	if expectedSeq == 0 {
		_, err := s.sqlDB.ExecContext(
			ctx,
			`INSERT INTO ledger_records (profile_id, seq, start_time, end_time, origin_device)
			 VALUES (?, ?, ?, ?, ?)`,
			profileID,
			rec.Seq,
			toMillis(rec.StartTime),
			toMillis(rec.EndTime),
			rec.OriginDevice,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrLedgerChanged
			}
			return fmt.Errorf("create ledger record: %w", err)
		}
		return nil
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE ledger_records
		    SET seq = ?, start_time = ?, end_time = ?, origin_device = ?
		  WHERE profile_id = ? AND seq = ?`,
		rec.Seq,
		toMillis(rec.StartTime),
		toMillis(rec.EndTime),
		rec.OriginDevice,
		profileID,
		expectedSeq,
	)
	if err != nil {
		return fmt.Errorf("update ledger record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ledger record: %w", err)
	}
	if affected == 0 {
		return storage.ErrLedgerChanged
	}
	return nil
}

// LoadOverrideCounter returns the single override counter row.
func (s *Store) LoadOverrideCounter(ctx context.Context) (storage.OverrideCounter, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.OverrideCounter{}, false, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OverrideCounter{}, false, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT remaining, reset_period_weeks, last_reset FROM override_counter WHERE id = 1`,
	)
	var counter storage.OverrideCounter
	var lastReset int64
	err := row.Scan(&counter.Remaining, &counter.ResetPeriodWeeks, &lastReset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OverrideCounter{}, false, nil
		}
		return storage.OverrideCounter{}, false, fmt.Errorf("load override counter: %w", err)
	}
	counter.LastReset = fromMillis(lastReset)
	return counter, true, nil
}

// SaveOverrideCounter upserts the single override counter row.
func (s *Store) SaveOverrideCounter(ctx context.Context, counter storage.OverrideCounter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO override_counter (id, remaining, reset_period_weeks, last_reset)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   remaining = excluded.remaining,
		   reset_period_weeks = excluded.reset_period_weeks,
		   last_reset = excluded.last_reset`,
		counter.Remaining,
		counter.ResetPeriodWeeks,
		toMillis(counter.LastReset),
	)
	if err != nil {
		return fmt.Errorf("save override counter: %w", err)
	}
	return nil
}

// AppendTelemetryEvent appends one event to the telemetry log.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO telemetry_events (ts, severity, event_type, profile_id, session_id, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		toMillis(ts),
		evt.Severity,
		evt.Type,
		evt.ProfileID,
		evt.SessionID,
		evt.Detail,
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

// ListTelemetryEvents returns up to limit most recent events, oldest first.
func (s *Store) ListTelemetryEvents(ctx context.Context, limit int) ([]storage.TelemetryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT ts, severity, event_type, profile_id, session_id, detail
		   FROM (SELECT id, ts, severity, event_type, profile_id, session_id, detail
		           FROM telemetry_events
		          ORDER BY id DESC
		          LIMIT ?)
		  ORDER BY id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list telemetry events: %w", err)
	}
	defer rows.Close()

	var events []storage.TelemetryEvent
	for rows.Next() {
		var evt storage.TelemetryEvent
		var ts int64
		if err := rows.Scan(&ts, &evt.Severity, &evt.Type, &evt.ProfileID, &evt.SessionID, &evt.Detail); err != nil {
			return nil, fmt.Errorf("list telemetry events: %w", err)
		}
		evt.Timestamp = fromMillis(ts)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list telemetry events: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Ledger = (*Store)(nil)
var _ storage.OverrideStore = (*Store)(nil)
var _ storage.TelemetryStore = (*Store)(nil)
