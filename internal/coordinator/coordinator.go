// Package coordinator drives the session lifecycle state machine: trigger
// acceptance, gating checks, the grace window, enforcement calls, and the
// asynchronous publish of boundary transitions to the shared ledger.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/focusgate/internal/geofence"
	"github.com/louisbranch/focusgate/internal/override"
	"github.com/louisbranch/focusgate/internal/platform/errors"
	"github.com/louisbranch/focusgate/internal/platform/timeouts"
	"github.com/louisbranch/focusgate/internal/profile"
	"github.com/louisbranch/focusgate/internal/session"
	"github.com/louisbranch/focusgate/internal/storage"
	syncsvc "github.com/louisbranch/focusgate/internal/sync"
	"github.com/louisbranch/focusgate/internal/telemetry"
	"github.com/louisbranch/focusgate/internal/trigger"
)

// Enforcer applies and clears the OS-level restriction shield. Calls are
// idempotent and side-effect-only; the core never consumes a result.
type Enforcer interface {
	ApplyRestrictions(snapshot profile.Profile)
	ClearRestrictions()
}

// LockCode gates stops on managed profiles.
type LockCode interface {
	IsUnlocked(ctx context.Context, profileID string) (bool, error)
	Verify(ctx context.Context, code, profileID string) (bool, error)
}

// Reminders schedules the post-session reminder after a successful stop.
type Reminders interface {
	SchedulePostSessionReminder(profileID string, endedAt time.Time)
}

// StartRequest describes one start attempt.
type StartRequest struct {
	// Trigger is the family that fired (manual tap, scan, schedule,
	// deep link).
	Trigger trigger.Family
	// TagID is the scanned identifier for NFC/QR triggers, or the
	// schedule identifier for schedule triggers.
	TagID string
	// At overrides the session start time (scheduled activations); the
	// current clock is used when zero.
	At time.Time
	// Forced bypasses trigger requirements (crash resume, tooling).
	Forced bool
	// AcknowledgeAwayWarning suppresses the pre-start location warning
	// after the user has seen it once.
	AcknowledgeAwayWarning bool
}

// StopRequest describes one stop attempt.
type StopRequest struct {
	Trigger trigger.Family
	TagID   string
	// At overrides the session end time (scheduled deactivations).
	At time.Time
	// LockCode is verified when the profile is managed and this device
	// is not the managing one.
	LockCode string
}

// ScanAction reports how HandleScan routed a scan.
type ScanAction string

const (
	ScanStarted ScanAction = "started"
	ScanStopped ScanAction = "stopped"
)

// Config wires the coordinator's collaborators. Enforcer and Sync are
// required; the rest disable their guard or feature when nil.
type Config struct {
	Enforcer Enforcer
	Sync     *syncsvc.Service
	Geofence geofence.Checker
	LockCode LockCode
	Limiter  *override.Limiter
	Reminder Reminders
	Emitter  *telemetry.Emitter
	// ManagingDevice marks this device as the managing mode for managed
	// profiles, exempting it from the lock-code guard.
	ManagingDevice bool
}

// Coordinator owns the single local active-session slot.
//
// All transitions are serialized by an internal mutex. Long-latency ledger
// publishes run in goroutines guarded by a generation token so a result
// that arrives after a newer transition is discarded instead of mutating
// state it no longer describes.
type Coordinator struct {
	mu sync.Mutex

	enforcer Enforcer
	pub      *syncsvc.Service
	geo      geofence.Checker
	lock     LockCode
	limiter  *override.Limiter
	reminder Reminders
	emitter  *telemetry.Emitter
	managing bool

	clock func() time.Time

	active        *session.Session
	activeProfile profile.Profile
	// gen invalidates in-flight async results on every transition.
	gen uint64
	// graceArmed is true while the grace window has enforcement lifted.
	graceArmed bool
	graceTimer *time.Timer

	wg sync.WaitGroup
}

// New creates a coordinator with explicitly injected collaborators.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Enforcer == nil {
		return nil, fmt.Errorf("enforcer is required")
	}
	if cfg.Sync == nil {
		return nil, fmt.Errorf("sync service is required")
	}
	return &Coordinator{
		enforcer: cfg.Enforcer,
		pub:      cfg.Sync,
		geo:      cfg.Geofence,
		lock:     cfg.LockCode,
		limiter:  cfg.Limiter,
		reminder: cfg.Reminder,
		emitter:  cfg.Emitter,
		managing: cfg.ManagingDevice,
		clock:    time.Now,
	}, nil
}

// Active returns a copy of the active session, if any.
func (c *Coordinator) Active() (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.active.Active() {
		return session.Session{}, false
	}
	return *c.active, true
}

// Wait blocks until in-flight ledger publishes finish. Used by shutdown
// paths and tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Start begins a session for the given profile snapshot.
//
// The local transition is synchronous: the session exists and enforcement
// is applied before Start returns. The ledger publish happens afterwards
// in the background; a join outcome reconciles the local start time.
func (c *Coordinator) Start(ctx context.Context, p profile.Profile, req StartRequest) (session.Session, error) {
	p = profile.Normalize(p)
	if p.ID == "" {
		return session.Session{}, errors.New(errors.CodeProfileNotFound, "profile id is required")
	}

	if !req.Forced {
		if err := startAccepted(p, req.Trigger, req.TagID); err != nil {
			return session.Session{}, err
		}
		if err := c.checkAwayWarning(ctx, p, req); err != nil {
			return session.Session{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && c.active.Active() {
		return session.Session{}, errors.WithMetadata(errors.CodeSessionAlreadyActive,
			"a session is already active",
			map[string]string{"Profile": c.activeProfile.Name})
	}

	startAt := req.At
	if startAt.IsZero() {
		startAt = c.now()
	}
	originTag := trigger.OriginTag(req.Trigger, req.TagID)

	var (
		sess session.Session
		err  error
	)
	if req.Forced {
		sess, err = session.NewForced(p.ID, originTag, startAt)
	} else {
		sess, err = session.New(p.ID, originTag, startAt)
	}
	if err != nil {
		return session.Session{}, err
	}

	c.active = &sess
	c.activeProfile = p
	c.gen++
	c.graceArmed = false

	c.enforcer.ApplyRestrictions(p)
	c.emit(ctx, telemetry.SeverityInfo, telemetry.EventSessionStarted, p.ID, sess.ID, originTag)

	gen := c.gen
	c.wg.Add(1)
	go c.publishStart(gen, sess.ID, p.ID, sess.StartTime)

	return sess, nil
}

// checkAwayWarning performs the optional pre-start location check for
// profiles whose stop is geofence-gated. The warning is advisory: an
// unavailable check never blocks the start.
func (c *Coordinator) checkAwayWarning(ctx context.Context, p profile.Profile, req StartRequest) error {
	if !p.WarnWhenStartingAway || !p.GeofenceConfigured() || c.geo == nil || req.AcknowledgeAwayWarning {
		return nil
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeouts.GeofenceCheck)
	defer cancel()
	result := c.geo.CheckRule(checkCtx, p.Geofence)
	if result.Status == geofence.StatusNotSatisfied {
		return errors.WithMetadata(errors.CodeGeofenceNotSatisfied,
			"starting away from the required stop location",
			map[string]string{"Location": result.Region, "Warning": "starting_away"})
	}
	return nil
}

// publishStart runs the ledger publish for a local start and folds the
// outcome back into the active session if it is still the same one.
func (c *Coordinator) publishStart(gen uint64, sessionID, profileID string, startTime time.Time) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.SyncPublish)
	defer cancel()

	outcome, err := c.pub.StartSession(ctx, profileID, startTime)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.emit(ctx, telemetry.SeverityWarn, telemetry.EventSyncError, profileID, sessionID, err.Error())
		return
	}
	if c.gen != gen || c.active == nil || c.active.ID != sessionID {
		// A newer transition superseded this publish.
		return
	}
	c.active.Seq = outcome.Seq
	if outcome.Status == syncsvc.StartJoined {
		if err := c.active.ReconcileStart(outcome.Remote.StartTime); err == nil {
			c.emit(ctx, telemetry.SeverityInfo, telemetry.EventSessionJoined, profileID, sessionID,
				"adopted remote start from "+outcome.Remote.OriginDevice)
		}
	}
}

// Stop ends the active session after the gating checks pass.
//
// Guard order is fixed: trigger acceptance, then the lock code for managed
// profiles, then the geofence. A stop with no active session is a no-op
// recorded as a warning, never an error.
func (c *Coordinator) Stop(ctx context.Context, req StopRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || !c.active.Active() {
		c.emit(ctx, telemetry.SeverityWarn, telemetry.EventStopIgnored, "", "",
			"stop requested with no active session")
		return nil
	}
	p := c.activeProfile

	if err := stopAccepted(p, c.active.OriginTag, req); err != nil {
		return err
	}
	if err := c.checkLockCode(ctx, p, req.LockCode); err != nil {
		return err
	}
	if err := c.checkGeofence(ctx, p); err != nil {
		return err
	}

	c.finishStop(ctx, req.At)
	return nil
}

// checkLockCode enforces the managed-profile lock on non-managing devices.
func (c *Coordinator) checkLockCode(ctx context.Context, p profile.Profile, code string) error {
	if !p.Managed || c.managing {
		return nil
	}
	if c.lock == nil {
		return errors.New(errors.CodeProfileLocked, "profile is locked and no lock-code collaborator is configured")
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeouts.LockCodeCheck)
	defer cancel()

	if code != "" {
		ok, err := c.lock.Verify(checkCtx, code, p.ID)
		if err != nil {
			return fmt.Errorf("verify lock code: %w", err)
		}
		if !ok {
			return errors.New(errors.CodeProfileLocked, "incorrect lock code")
		}
		return nil
	}
	ok, err := c.lock.IsUnlocked(checkCtx, p.ID)
	if err != nil {
		return fmt.Errorf("check lock state: %w", err)
	}
	if !ok {
		return errors.New(errors.CodeProfileLocked, "profile requires the lock code to stop")
	}
	return nil
}

// checkGeofence enforces the location gate on stops. An unavailable check
// refuses the stop with a distinct code so callers can present "try again"
// instead of "go to the location".
func (c *Coordinator) checkGeofence(ctx context.Context, p profile.Profile) error {
	if !p.GeofenceConfigured() {
		return nil
	}
	if c.geo == nil {
		return errors.New(errors.CodeGeofenceUnavailable, "no location checker configured")
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeouts.GeofenceCheck)
	defer cancel()
	result := c.geo.CheckRule(checkCtx, p.Geofence)
	switch result.Status {
	case geofence.StatusSatisfied:
		return nil
	case geofence.StatusUnavailable:
		return errors.WithMetadata(errors.CodeGeofenceUnavailable,
			"location check unavailable",
			map[string]string{"Reason": result.Reason})
	default:
		return errors.WithMetadata(errors.CodeGeofenceNotSatisfied,
			"not at the required stop location",
			map[string]string{"Location": result.Region})
	}
}

// finishStop performs the local stop transition and launches the ledger
// publish. The caller holds the mutex and has verified the session is
// active; all gating decisions are already made.
func (c *Coordinator) finishStop(ctx context.Context, at time.Time) {
	endAt := at
	if endAt.IsZero() {
		endAt = c.now()
	}
	lastSeq := c.active.Seq
	_ = c.active.End(endAt)
	ended := *c.active

	c.cancelGraceTimerLocked()
	c.enforcer.ClearRestrictions()
	if c.reminder != nil {
		c.reminder.SchedulePostSessionReminder(ended.ProfileID, ended.EndTime)
	}
	c.emit(ctx, telemetry.SeverityInfo, telemetry.EventSessionStopped, ended.ProfileID, ended.ID, ended.OriginTag)

	c.active = nil
	c.activeProfile = profile.Profile{}
	c.gen++

	c.wg.Add(1)
	go c.publishStop(ended.ProfileID, ended.ID, lastSeq, ended.EndTime)
}

// publishStop pushes a local end to the ledger. On conflict it retries
// exactly once with the refreshed sequence number, then degrades to
// local-wins: the device stays unblocked and the divergence is recorded.
func (c *Coordinator) publishStop(profileID, sessionID string, lastSeq uint64, endTime time.Time) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.SyncPublish)
	defer cancel()

	outcome, err := c.pub.StopSession(ctx, profileID, lastSeq, endTime)
	if err != nil {
		c.emit(ctx, telemetry.SeverityWarn, telemetry.EventSyncError, profileID, sessionID, err.Error())
		return
	}
	if outcome.Status != syncsvc.StopConflict {
		return
	}
	c.emit(ctx, telemetry.SeverityWarn, telemetry.EventSyncConflict, profileID, sessionID,
		fmt.Sprintf("stop publish conflicted at seq %d, remote seq %d", lastSeq, outcome.Remote.Seq))

	retried, err := c.pub.StopSession(ctx, profileID, outcome.Remote.Seq, endTime)
	if err != nil {
		c.emit(ctx, telemetry.SeverityWarn, telemetry.EventSyncError, profileID, sessionID, err.Error())
		return
	}
	if retried.Status == syncsvc.StopConflict {
		c.emit(ctx, telemetry.SeverityWarn, telemetry.EventSyncDeferred, profileID, sessionID,
			"stop publish deferred after repeated conflict, local state wins")
	}
}

// ToggleBreak opens or closes the single optional break. Enforcement is
// lifted for the duration of the break. Breaks are local only and never
// published to the ledger.
func (c *Coordinator) ToggleBreak(ctx context.Context) (session.Phase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || !c.active.Active() {
		return session.PhaseIdle, errors.New(errors.CodeSessionNotActive, "no active session")
	}
	if !c.activeProfile.BreaksEnabled {
		return c.active.Phase(), errors.New(errors.CodeSessionBreaksDisabled, "breaks are disabled for this profile")
	}

	now := c.now()
	if c.active.OnBreak() {
		if err := c.active.EndBreak(now); err != nil {
			return c.active.Phase(), err
		}
		// A still-armed grace window keeps enforcement lifted until its
		// timer fires; re-applying here would cut the window short.
		if !c.graceArmed {
			c.enforcer.ApplyRestrictions(c.activeProfile)
		}
		return c.active.Phase(), nil
	}
	if err := c.active.StartBreak(now); err != nil {
		return c.active.Phase(), err
	}
	c.enforcer.ClearRestrictions()
	return c.active.Phase(), nil
}

// StartOneMoreMinute opens the grace window: enforcement is lifted and a
// timer re-applies it when the window elapses. Usable once per session.
func (c *Coordinator) StartOneMoreMinute(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || !c.active.Active() {
		return errors.New(errors.CodeSessionNotActive, "no active session")
	}
	if err := c.active.UseGrace(c.now()); err != nil {
		return err
	}
	c.graceArmed = true
	c.enforcer.ClearRestrictions()
	c.emit(ctx, telemetry.SeverityInfo, telemetry.EventGraceStarted, c.active.ProfileID, c.active.ID, "")
	c.armGraceTimerLocked(c.active.ID, session.GraceWindow)
	return nil
}

func (c *Coordinator) armGraceTimerLocked(sessionID string, d time.Duration) {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
	c.graceTimer = time.AfterFunc(d, func() {
		c.onGraceExpired(sessionID)
	})
}

func (c *Coordinator) cancelGraceTimerLocked() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	c.graceArmed = false
}

func (c *Coordinator) onGraceExpired(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.graceArmed || c.active == nil || c.active.ID != sessionID || !c.active.Active() {
		return
	}
	c.graceArmed = false
	// An open break keeps enforcement lifted regardless of the grace
	// window; EndBreak restores it once the break closes.
	if !c.active.OnBreak() {
		c.enforcer.ApplyRestrictions(c.activeProfile)
	}
	c.emit(context.Background(), telemetry.SeverityInfo, telemetry.EventGraceExpired,
		c.active.ProfileID, c.active.ID, "")
}

// Resume is the app-foreground hook. It applies the override reset check,
// re-asserts enforcement for an active session, and re-arms the grace
// timer from the stored timestamp so suspension neither loses nor extends
// the window.
func (c *Coordinator) Resume(ctx context.Context) error {
	if c.limiter != nil {
		if _, err := c.limiter.Remaining(ctx); err != nil {
			return fmt.Errorf("override reset check: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.active.Active() {
		return nil
	}

	if c.graceArmed {
		remaining := c.active.GraceRemaining(c.now())
		if remaining <= 0 {
			c.cancelGraceTimerLocked()
			if !c.active.OnBreak() {
				c.enforcer.ApplyRestrictions(c.activeProfile)
			}
			c.emit(ctx, telemetry.SeverityInfo, telemetry.EventGraceExpired,
				c.active.ProfileID, c.active.ID, "expired while suspended")
			return nil
		}
		c.armGraceTimerLocked(c.active.ID, remaining)
		return nil
	}
	if !c.active.OnBreak() {
		c.enforcer.ApplyRestrictions(c.activeProfile)
	}
	return nil
}

// EmergencyOverride stops the active session bypassing the lock-code and
// geofence guards. The limiter is consulted before any other guard; the
// profile may still categorically forbid the override. The budget is spent
// only when the override succeeds.
func (c *Coordinator) EmergencyOverride(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || !c.active.Active() {
		c.emit(ctx, telemetry.SeverityWarn, telemetry.EventStopIgnored, "", "",
			"override requested with no active session")
		return nil
	}

	if c.limiter != nil {
		remaining, err := c.limiter.Remaining(ctx)
		if err != nil {
			return fmt.Errorf("override budget check: %w", err)
		}
		if remaining <= 0 {
			// Consume at zero refuses without decrementing and carries
			// the reset time the refusal message needs.
			_, err := c.limiter.Consume(ctx)
			return err
		}
	}
	if c.activeProfile.OverrideForbidden {
		return errors.New(errors.CodeOverrideForbidden, "emergency override is not allowed for this profile")
	}
	if c.limiter != nil {
		if _, err := c.limiter.Consume(ctx); err != nil {
			return err
		}
	}

	c.emit(ctx, telemetry.SeverityWarn, telemetry.EventOverrideUsed,
		c.active.ProfileID, c.active.ID, "")
	c.finishStop(ctx, time.Time{})
	return nil
}

// HandleScan routes an NFC or QR scan: it stops the active session when one
// exists, otherwise it starts one for the given profile.
func (c *Coordinator) HandleScan(ctx context.Context, p profile.Profile, family trigger.Family, tagID string) (ScanAction, error) {
	if family != trigger.FamilyNFC && family != trigger.FamilyQR {
		return "", errors.WithMetadata(errors.CodeTriggerNotAccepted,
			"scans must be NFC or QR",
			map[string]string{"Trigger": string(family)})
	}
	if _, ok := c.Active(); ok {
		if err := c.Stop(ctx, StopRequest{Trigger: family, TagID: tagID}); err != nil {
			return "", err
		}
		return ScanStopped, nil
	}
	if _, err := c.Start(ctx, p, StartRequest{Trigger: family, TagID: tagID}); err != nil {
		return "", err
	}
	return ScanStarted, nil
}

// startAccepted checks the scan or tap against the profile's start set.
func startAccepted(p profile.Profile, family trigger.Family, tagID string) error {
	accepted := false
	switch family {
	case trigger.FamilyManual:
		accepted = p.StartTriggers.Manual
	case trigger.FamilyNFC:
		accepted = p.StartTriggers.AnyNFC || (p.StartTriggers.SpecificNFC && p.MatchesNFCTag(tagID))
	case trigger.FamilyQR:
		accepted = p.StartTriggers.AnyQR || (p.StartTriggers.SpecificQR && p.MatchesQRCode(tagID))
	case trigger.FamilySchedule:
		accepted = p.StartTriggers.Schedule
	case trigger.FamilyDeepLink:
		accepted = p.StartTriggers.DeepLink
	}
	if !accepted {
		return errors.WithMetadata(errors.CodeTriggerNotAccepted,
			"trigger is not enabled for this profile",
			map[string]string{"Trigger": string(family)})
	}
	return nil
}

// stopAccepted checks the stop attempt against the profile's stop set. The
// "same" conditions match the trigger family that started the session, not
// the physical tag identity.
func stopAccepted(p profile.Profile, originTag string, req StopRequest) error {
	stop := p.StopConditions
	accepted := false
	switch req.Trigger {
	case trigger.FamilyManual:
		accepted = stop.Manual
	case trigger.FamilyNFC:
		accepted = stop.AnyNFC ||
			(stop.SpecificNFC && p.MatchesNFCTag(req.TagID)) ||
			(stop.SameNFC && trigger.OriginFamily(originTag) == trigger.FamilyNFC)
	case trigger.FamilyQR:
		accepted = stop.AnyQR ||
			(stop.SpecificQR && p.MatchesQRCode(req.TagID)) ||
			(stop.SameQR && trigger.OriginFamily(originTag) == trigger.FamilyQR)
	case trigger.FamilySchedule:
		accepted = stop.Schedule
	case trigger.FamilyDeepLink:
		accepted = stop.DeepLink
	case trigger.FamilyTimer:
		accepted = stop.Timer
	}
	if !accepted {
		return errors.WithMetadata(errors.CodeTriggerNotAccepted,
			"stop condition is not enabled for this profile",
			map[string]string{"Trigger": string(req.Trigger)})
	}
	return nil
}

func (c *Coordinator) emit(ctx context.Context, severity telemetry.Severity, eventType, profileID, sessionID, detail string) {
	_ = c.emitter.Emit(ctx, storage.TelemetryEvent{
		Severity:  string(severity),
		Type:      eventType,
		ProfileID: profileID,
		SessionID: sessionID,
		Detail:    detail,
	})
}

func (c *Coordinator) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock().UTC()
}
