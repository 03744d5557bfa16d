// Package schedule bridges the external activity scheduler to the
// coordinator. The scheduler owns recurrence and firing times; this bridge
// only translates fired boundaries into session transitions.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/focusgate/internal/coordinator"
	"github.com/louisbranch/focusgate/internal/platform/errors"
	"github.com/louisbranch/focusgate/internal/profile"
	"github.com/louisbranch/focusgate/internal/trigger"
)

// ProfileSource resolves profile snapshots for fired schedule boundaries.
type ProfileSource interface {
	Profile(ctx context.Context, id string) (profile.Profile, bool, error)
}

// Bridge receives schedule boundary callbacks and drives the coordinator.
type Bridge struct {
	coord    *coordinator.Coordinator
	profiles ProfileSource
}

// NewBridge creates a bridge over the coordinator and profile source.
func NewBridge(coord *coordinator.Coordinator, profiles ProfileSource) (*Bridge, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile source is required")
	}
	return &Bridge{coord: coord, profiles: profiles}, nil
}

// ScheduledStart handles a fired schedule start boundary. The session goes
// through the same acceptance, enforcement, and publish path as any other
// start; the origin tag records which schedule fired it.
func (b *Bridge) ScheduledStart(ctx context.Context, profileID, scheduleID string, at time.Time) error {
	p, ok, err := b.profiles.Profile(ctx, profileID)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", profileID, err)
	}
	if !ok {
		return errors.WithMetadata(errors.CodeProfileNotFound,
			"profile for fired schedule not found",
			map[string]string{"Profile": profileID})
	}
	_, err = b.coord.Start(ctx, p, coordinator.StartRequest{
		Trigger: trigger.FamilySchedule,
		TagID:   scheduleID,
		At:      at,
	})
	if errors.CodeOf(err) == errors.CodeSessionAlreadyActive {
		// Another trigger beat the schedule to it; the boundary is served.
		return nil
	}
	return err
}

// ScheduledStop handles a fired schedule stop boundary. The stop only
// applies when the active session belongs to the scheduled profile; a
// mismatch or idle state is a harmless no-op like any other missing-target
// stop.
func (b *Bridge) ScheduledStop(ctx context.Context, profileID string, at time.Time) error {
	active, ok := b.coord.Active()
	if ok && active.ProfileID != profileID {
		return nil
	}
	return b.coord.Stop(ctx, coordinator.StopRequest{
		Trigger: trigger.FamilySchedule,
		At:      at,
	})
}
