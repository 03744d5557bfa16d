// Package session models one contiguous blocking interval for a profile,
// with an optional break sub-interval and a one-more-minute grace window.
package session

import (
	"strings"
	"time"

	"github.com/louisbranch/focusgate/internal/platform/errors"
	"github.com/louisbranch/focusgate/internal/platform/id"
)

// GraceWindow is the fixed length of the one-more-minute window.
const GraceWindow = 60 * time.Second

// Phase describes where a session sits in its lifecycle.
type Phase string

const (
	// PhaseIdle means the session has ended (or never existed).
	PhaseIdle Phase = "idle"
	// PhaseActive means the session is running and enforced.
	PhaseActive Phase = "active"
	// PhaseOnBreak means the session is running with an open break.
	PhaseOnBreak Phase = "on_break"
)

// Session is the authoritative record of one blocking interval.
//
// A session belongs to exactly one profile and holds the strong reference;
// the profile only back-references its active session. Locally, at most one
// session per profile may have a zero EndTime at any moment.
type Session struct {
	// ID is assigned at creation and immutable.
	ID string
	// ProfileID references the owning profile.
	ProfileID string
	// StartTime is the authoritative wall-clock start. It may be revised
	// exactly once by remote reconciliation, never after.
	StartTime time.Time
	// EndTime is zero while the session is active and set exactly once.
	EndTime time.Time
	// BreakStart and BreakEnd bound the at-most-one break sub-interval.
	BreakStart time.Time
	BreakEnd   time.Time
	// ForceStarted marks starts that bypassed trigger requirements
	// (crash recovery, collaborator tooling).
	ForceStarted bool
	// OriginTag identifies which trigger produced the start, e.g.
	// "manual", "nfc:<tag>", "schedule:<id>", "remote-sync".
	OriginTag string
	// Seq is the per-profile CAS sequence number assigned by the sync
	// protocol. Zero until the first successful publish.
	Seq uint64
	// GraceUsed and GraceStart track the single one-more-minute window.
	GraceUsed  bool
	GraceStart time.Time
	// StartReconciled is set once remote reconciliation has adopted or
	// confirmed the start time.
	StartReconciled bool
}

// New creates a session for profileID started by originTag at startTime.
func New(profileID, originTag string, startTime time.Time) (Session, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return Session{}, errors.New(errors.CodeSessionEmptyProfileID, "profile id is required")
	}
	sessionID, err := id.NewID()
	if err != nil {
		return Session{}, err
	}
	if startTime.IsZero() {
		startTime = time.Now()
	}
	return Session{
		ID:        sessionID,
		ProfileID: profileID,
		StartTime: startTime.UTC().Truncate(time.Millisecond),
		OriginTag: strings.TrimSpace(originTag),
	}, nil
}

// NewForced creates a session that bypassed trigger requirements.
func NewForced(profileID, originTag string, startTime time.Time) (Session, error) {
	s, err := New(profileID, originTag, startTime)
	if err != nil {
		return Session{}, err
	}
	s.ForceStarted = true
	return s, nil
}

// Active reports whether the session has not ended.
func (s Session) Active() bool {
	return s.ID != "" && s.EndTime.IsZero()
}

// OnBreak reports whether the session is active with an open break.
func (s Session) OnBreak() bool {
	return s.Active() && !s.BreakStart.IsZero() && s.BreakEnd.IsZero()
}

// Phase returns the lifecycle phase for the session.
func (s Session) Phase() Phase {
	switch {
	case !s.Active():
		return PhaseIdle
	case s.OnBreak():
		return PhaseOnBreak
	default:
		return PhaseActive
	}
}

// BreakUsed reports whether the single break slot has been opened.
func (s Session) BreakUsed() bool {
	return !s.BreakStart.IsZero()
}

// StartBreak opens the single break sub-interval.
func (s *Session) StartBreak(now time.Time) error {
	if !s.Active() {
		return errors.New(errors.CodeSessionNotActive, "cannot start break on an ended session")
	}
	if s.BreakUsed() {
		return errors.New(errors.CodeSessionBreakExhausted, "break already used for this session")
	}
	s.BreakStart = now.UTC().Truncate(time.Millisecond)
	return nil
}

// EndBreak closes the open break sub-interval. BreakEnd is only legal after
// BreakStart is set.
func (s *Session) EndBreak(now time.Time) error {
	if !s.OnBreak() {
		return errors.New(errors.CodeSessionNotActive, "no open break to end")
	}
	end := now.UTC().Truncate(time.Millisecond)
	if end.Before(s.BreakStart) {
		end = s.BreakStart
	}
	s.BreakEnd = end
	return nil
}

// End closes the session. EndTime is set exactly once and never precedes
// StartTime.
func (s *Session) End(now time.Time) error {
	if !s.Active() {
		return errors.New(errors.CodeSessionAlreadyEnded, "session already ended")
	}
	if s.OnBreak() {
		if err := s.EndBreak(now); err != nil {
			return err
		}
	}
	end := now.UTC().Truncate(time.Millisecond)
	if end.Before(s.StartTime) {
		end = s.StartTime
	}
	s.EndTime = end
	return nil
}

// ReconcileStart adopts the remote start time so every device enforces the
// same elapsed duration for the same logical session. Legal at most once,
// and only while the session is active.
func (s *Session) ReconcileStart(remoteStart time.Time) error {
	if !s.Active() {
		return errors.New(errors.CodeSessionAlreadyEnded, "cannot reconcile an ended session")
	}
	if s.StartReconciled {
		return errors.New(errors.CodeSessionStartReconciled, "start time already reconciled")
	}
	if !remoteStart.IsZero() {
		s.StartTime = remoteStart.UTC().Truncate(time.Millisecond)
	}
	s.StartReconciled = true
	return nil
}

// UseGrace opens the one-more-minute window. Legal once per session, only
// while active and not on break.
func (s *Session) UseGrace(now time.Time) error {
	if !s.Active() {
		return errors.New(errors.CodeSessionNotActive, "cannot use grace on an ended session")
	}
	if s.OnBreak() {
		return errors.New(errors.CodeSessionNotActive, "cannot use grace during a break")
	}
	if s.GraceUsed {
		return errors.New(errors.CodeSessionGraceExhausted, "grace window already used")
	}
	s.GraceUsed = true
	s.GraceStart = now.UTC().Truncate(time.Millisecond)
	return nil
}

// GraceRemaining recomputes the remaining grace time from the stored
// timestamp, so process suspension never loses or extends the window.
func (s Session) GraceRemaining(now time.Time) time.Duration {
	if !s.GraceUsed || s.GraceStart.IsZero() {
		return 0
	}
	remaining := GraceWindow - now.Sub(s.GraceStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Elapsed returns wall-clock time since the session start, excluding any
// completed break.
func (s Session) Elapsed(now time.Time) time.Duration {
	reference := now
	if !s.EndTime.IsZero() {
		reference = s.EndTime
	}
	elapsed := reference.Sub(s.StartTime)
	if !s.BreakStart.IsZero() {
		breakEnd := s.BreakEnd
		if breakEnd.IsZero() {
			breakEnd = reference
		}
		elapsed -= breakEnd.Sub(s.BreakStart)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
