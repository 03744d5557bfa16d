// Package sync implements the compare-and-swap protocol that collapses
// concurrently created sessions for one profile into a single agreed
// session across devices.
//
// The ledger's sequence number, never wall-clock time, is the ordering
// key: device clocks skew, so StartTime and EndTime ride along as payload.
// The protocol favors global agreement over local initiative on start
// (join an existing session rather than create a duplicate) and local
// availability over remote agreement on stop (a duplicate stop is
// harmless; a stuck user is not).
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/focusgate/internal/storage"
)

// StartStatus categorizes the outcome of a start publish.
type StartStatus string

const (
	// StartStarted means this device created the agreed session record.
	StartStarted StartStatus = "started"
	// StartJoined means another record is already active; the caller must
	// reconcile its local start time to the remote one.
	StartJoined StartStatus = "already_active"
)

// StopStatus categorizes the outcome of a stop publish.
type StopStatus string

const (
	// StopStopped means this device recorded the end.
	StopStopped StopStatus = "stopped"
	// StopAlreadyStopped means the record was already ended (idempotent).
	StopAlreadyStopped StopStatus = "already_stopped"
	// StopConflict means the record moved past the caller's last known
	// sequence number; nothing was written.
	StopConflict StopStatus = "conflict"
)

// StartOutcome reports a start publish result.
type StartOutcome struct {
	Status StartStatus
	// Seq is the sequence number assigned to the created record.
	Seq uint64
	// Remote is the existing record when Status is StartJoined.
	Remote storage.LedgerRecord
}

// StopOutcome reports a stop publish result.
type StopOutcome struct {
	Status StopStatus
	Seq    uint64
	// Remote is the current record when Status is StopConflict.
	Remote storage.LedgerRecord
}

// Service runs the CAS protocol against a shared ledger.
type Service struct {
	ledger   storage.Ledger
	deviceID string
	clock    func() time.Time
	tracer   trace.Tracer
}

// NewService creates a sync service for this device.
func NewService(ledger storage.Ledger, deviceID string) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	return &Service{
		ledger:   ledger,
		deviceID: deviceID,
		clock:    time.Now,
		tracer:   otel.Tracer("focusgate/sync"),
	}, nil
}

// DeviceID returns the identifier written as OriginDevice.
func (s *Service) DeviceID() string {
	if s == nil {
		return ""
	}
	return s.deviceID
}

// StartSession publishes a local session start for profileID.
//
// When the remote record is already active, the caller joins it instead of
// creating a duplicate: the outcome carries the remote record so the local
// session can adopt its start time. A lost CAS race is retried once with a
// fresh read; a second loss is an error.
func (s *Service) StartSession(ctx context.Context, profileID string, startTime time.Time) (StartOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "sync.StartSession",
		trace.WithAttributes(attribute.String("profile.id", profileID)))
	defer span.End()

	outcome, err := s.startOnce(ctx, profileID, startTime)
	if errors.Is(err, storage.ErrLedgerChanged) {
		outcome, err = s.startOnce(ctx, profileID, startTime)
		if errors.Is(err, storage.ErrLedgerChanged) {
			err = fmt.Errorf("start session %s: ledger changed twice: %w", profileID, err)
		}
	}
	if err != nil {
		span.RecordError(err)
		return StartOutcome{}, err
	}
	span.SetAttributes(attribute.String("sync.outcome", string(outcome.Status)))
	return outcome, nil
}

func (s *Service) startOnce(ctx context.Context, profileID string, startTime time.Time) (StartOutcome, error) {
	rec, ok, err := s.ledger.ReadRecord(ctx, profileID)
	if err != nil {
		return StartOutcome{}, fmt.Errorf("read ledger record: %w", err)
	}

	if ok && rec.Active() {
		// Someone (possibly our own crashed process) already holds the
		// session slot: join it rather than create a disagreeing timer.
		return StartOutcome{Status: StartJoined, Seq: rec.Seq, Remote: rec}, nil
	}

	expectedSeq := uint64(0)
	if ok {
		expectedSeq = rec.Seq
	}
	next := storage.LedgerRecord{
		ProfileID:    profileID,
		Seq:          expectedSeq + 1,
		StartTime:    startTime.UTC().Truncate(time.Millisecond),
		OriginDevice: s.deviceID,
	}
	if err := s.ledger.WriteRecordIfUnchanged(ctx, profileID, expectedSeq, next); err != nil {
		if errors.Is(err, storage.ErrLedgerChanged) {
			return StartOutcome{}, err
		}
		return StartOutcome{}, fmt.Errorf("write ledger record: %w", err)
	}
	return StartOutcome{Status: StartStarted, Seq: next.Seq}, nil
}

// StopSession publishes a local session end for profileID, guarded on the
// sequence number last observed by the caller.
//
// A moved record returns StopConflict without writing; the retry policy
// (exactly once, then degrade to local-wins) is the coordinator's, not
// this service's; see the publish path there.
func (s *Service) StopSession(ctx context.Context, profileID string, lastKnownSeq uint64, endTime time.Time) (StopOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "sync.StopSession",
		trace.WithAttributes(
			attribute.String("profile.id", profileID),
			attribute.Int64("sync.last_known_seq", int64(lastKnownSeq)),
		))
	defer span.End()

	rec, ok, err := s.ledger.ReadRecord(ctx, profileID)
	if err != nil {
		span.RecordError(err)
		return StopOutcome{}, fmt.Errorf("read ledger record: %w", err)
	}
	if !ok || !rec.EndTime.IsZero() {
		span.SetAttributes(attribute.String("sync.outcome", string(StopAlreadyStopped)))
		return StopOutcome{Status: StopAlreadyStopped, Seq: rec.Seq}, nil
	}
	if rec.Seq != lastKnownSeq {
		span.SetAttributes(attribute.String("sync.outcome", string(StopConflict)))
		return StopOutcome{Status: StopConflict, Seq: rec.Seq, Remote: rec}, nil
	}

	next := rec
	next.Seq = lastKnownSeq + 1
	next.EndTime = endTime.UTC().Truncate(time.Millisecond)
	if next.EndTime.Before(next.StartTime) {
		next.EndTime = next.StartTime
	}
	next.OriginDevice = s.deviceID
	if err := s.ledger.WriteRecordIfUnchanged(ctx, profileID, lastKnownSeq, next); err != nil {
		if errors.Is(err, storage.ErrLedgerChanged) {
			current, ok, readErr := s.ledger.ReadRecord(ctx, profileID)
			if readErr == nil && ok {
				if !current.EndTime.IsZero() {
					span.SetAttributes(attribute.String("sync.outcome", string(StopAlreadyStopped)))
					return StopOutcome{Status: StopAlreadyStopped, Seq: current.Seq}, nil
				}
				span.SetAttributes(attribute.String("sync.outcome", string(StopConflict)))
				return StopOutcome{Status: StopConflict, Seq: current.Seq, Remote: current}, nil
			}
			span.SetAttributes(attribute.String("sync.outcome", string(StopConflict)))
			return StopOutcome{Status: StopConflict, Seq: rec.Seq, Remote: rec}, nil
		}
		span.RecordError(err)
		return StopOutcome{}, fmt.Errorf("write ledger record: %w", err)
	}
	span.SetAttributes(attribute.String("sync.outcome", string(StopStopped)))
	return StopOutcome{Status: StopStopped, Seq: next.Seq}, nil
}
