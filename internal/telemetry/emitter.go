// Package telemetry records operational events through a storage backend.
package telemetry

import (
	"context"
	"time"

	"github.com/louisbranch/focusgate/internal/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event types emitted by the coordination core.
const (
	EventSessionStarted = "session.started"
	EventSessionJoined  = "session.joined"
	EventSessionStopped = "session.stopped"
	EventSyncConflict   = "sync.conflict"
	EventSyncDeferred   = "sync.deferred"
	EventSyncError      = "sync.error"
	EventOverrideUsed   = "override.used"
	EventGraceStarted   = "grace.started"
	EventGraceExpired   = "grace.expired"
	EventStopIgnored    = "stop.ignored"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil, and
// it never fails the caller's transition: persistence errors are swallowed
// after being returned for optional inspection.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	if evt.Severity == "" {
		evt.Severity = string(SeverityInfo)
	}
	return e.store.AppendTelemetryEvent(ctx, evt)
}
