// Package profile models the blocking profile referenced by sessions.
//
// The profile is external to the coordination core but crosses its
// boundary constantly, so the parse-or-default normalization lives here:
// the core's internal logic never sees missing trigger data or implicit
// nil defaults.
package profile

import (
	"strings"

	"github.com/louisbranch/focusgate/internal/geofence"
	"github.com/louisbranch/focusgate/internal/trigger"
)

// Profile is a snapshot of one blocking profile's configuration.
type Profile struct {
	ID   string
	Name string
	// StartTriggers and StopConditions gate the session lifecycle.
	StartTriggers  trigger.StartSet
	StopConditions trigger.StopSet
	// SpecificNFCTags and SpecificQRCodes are matched when the
	// corresponding "specific" flag is set.
	SpecificNFCTags []string
	SpecificQRCodes []string
	// BreaksEnabled allows the one optional break per session.
	BreaksEnabled bool
	// Managed marks a parent-controlled profile whose stop requires a
	// lock code on non-managing devices.
	Managed bool
	// OverrideForbidden categorically blocks emergency override for this
	// profile, regardless of the limiter.
	OverrideForbidden bool
	// Geofence optionally gates stops on location.
	Geofence geofence.Rule
	// WarnWhenStartingAway enables the optional pre-start location
	// warning when the stop is geofence-gated.
	WarnWhenStartingAway bool
	// ActiveSessionID back-references the active session, if any.
	// Sessions hold the strong reference to the profile, not vice versa.
	ActiveSessionID string
}

// Normalize trims identifiers and replaces missing trigger data with the
// documented defaults, auto-fixing stop conditions whose prerequisite start
// trigger is absent.
func Normalize(p Profile) Profile {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if !p.StartTriggers.IsValid() {
		p.StartTriggers = trigger.DefaultStartSet()
	}
	if !p.StopConditions.IsValid() {
		p.StopConditions = trigger.DefaultStopSet()
	}
	p.StopConditions = trigger.AutoFix(p.StartTriggers, p.StopConditions)
	p.SpecificNFCTags = trimAll(p.SpecificNFCTags)
	p.SpecificQRCodes = trimAll(p.SpecificQRCodes)
	return p
}

// MatchesNFCTag reports whether tag is one of the profile's configured
// specific NFC tags.
func (p Profile) MatchesNFCTag(tag string) bool {
	return contains(p.SpecificNFCTags, tag)
}

// MatchesQRCode reports whether code is one of the profile's configured
// specific QR codes.
func (p Profile) MatchesQRCode(code string) bool {
	return contains(p.SpecificQRCodes, code)
}

// GeofenceConfigured reports whether stops are location-gated.
func (p Profile) GeofenceConfigured() bool {
	return p.Geofence.Configured()
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
