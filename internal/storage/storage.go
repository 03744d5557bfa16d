// Package storage defines the persistence contracts consumed by the
// coordination core: the shared session ledger, the per-device emergency
// override counter, and operational telemetry.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/focusgate/internal/platform/errors"
)

// ErrLedgerChanged is returned by conditional ledger writes whose
// precondition no longer holds. The write must fail cleanly: no partial
// mutation is ever visible.
var ErrLedgerChanged = errors.New(errors.CodeLedgerChanged, "ledger record changed since last read")

// LedgerRecord is the per-profile entry in the shared session ledger.
//
// Seq, not wall-clock time, orders mutations; StartTime and EndTime are
// payload for display and reconciliation, never ordering keys.
type LedgerRecord struct {
	ProfileID string
	// Seq is the monotonically increasing per-profile sequence number.
	Seq uint64
	// StartTime is the agreed session start.
	StartTime time.Time
	// EndTime is zero while the recorded session is active.
	EndTime time.Time
	// OriginDevice identifies the device that wrote the current state.
	OriginDevice string
}

// Active reports whether the recorded session has not ended.
func (r LedgerRecord) Active() bool {
	return r.Seq > 0 && r.EndTime.IsZero()
}

// Ledger is the optimistic-concurrency primitive the sync protocol is
// built on.
type Ledger interface {
	// ReadRecord loads the record for profileID. The boolean reports
	// whether a record exists.
	ReadRecord(ctx context.Context, profileID string) (LedgerRecord, bool, error)
	// WriteRecordIfUnchanged stores rec only if the current record's
	// sequence number equals expectedSeq. expectedSeq 0 means "create;
	// fail if any record exists". Returns ErrLedgerChanged when the
	// precondition does not hold.
	WriteRecordIfUnchanged(ctx context.Context, profileID string, expectedSeq uint64, rec LedgerRecord) error
}

// OverrideCounter is the per-device rolling emergency-override budget.
type OverrideCounter struct {
	Remaining        int
	ResetPeriodWeeks int
	LastReset        time.Time
}

// OverrideStore persists the override counter across restarts.
type OverrideStore interface {
	LoadOverrideCounter(ctx context.Context) (OverrideCounter, bool, error)
	SaveOverrideCounter(ctx context.Context, counter OverrideCounter) error
}

// TelemetryEvent records one operational occurrence.
type TelemetryEvent struct {
	Timestamp time.Time
	Severity  string
	Type      string
	ProfileID string
	SessionID string
	Detail    string
}

// TelemetryStore persists operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}
