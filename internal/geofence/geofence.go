// Package geofence models the location rules that gate whether a session
// stop is currently permitted.
package geofence

import (
	"context"
	"math"
	"strings"
)

// Status is the outcome category of a geofence check.
type Status string

const (
	// StatusSatisfied means the device is inside a permitted region.
	StatusSatisfied Status = "satisfied"
	// StatusNotSatisfied means the rule evaluated cleanly and failed.
	StatusNotSatisfied Status = "not_satisfied"
	// StatusUnavailable means the check itself failed (permission loss,
	// no fix), distinct from a rule that is simply not satisfied.
	StatusUnavailable Status = "unavailable"
)

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Region is one permitted stop area.
type Region struct {
	// Name is shown to the user in refusal reasons.
	Name         string
	Center       Location
	RadiusMeters float64
}

// Rule is a location precondition with one or more permitted regions.
// A rule with no regions is vacuously satisfied.
type Rule struct {
	Name    string
	Regions []Region
}

// Result carries the check outcome and a human-readable reason on failure.
type Result struct {
	Status Status
	// Region names the satisfied or nearest region, for messaging.
	Region string
	// Reason explains unavailability, empty otherwise.
	Reason string
}

// Checker evaluates a rule against the device's current location. The check
// may take seconds (GPS fix, permission prompts) and must respect ctx.
type Checker interface {
	CheckRule(ctx context.Context, rule Rule) Result
}

// Configured reports whether the rule has any region to enforce.
func (r Rule) Configured() bool {
	return len(r.Regions) > 0
}

// Evaluate checks a known location against the rule.
func (r Rule) Evaluate(loc Location) Result {
	if !r.Configured() {
		return Result{Status: StatusSatisfied}
	}
	nearest := ""
	nearestDistance := math.MaxFloat64
	for _, region := range r.Regions {
		d := distanceMeters(region.Center, loc)
		if d <= region.RadiusMeters {
			return Result{Status: StatusSatisfied, Region: region.Name}
		}
		if d < nearestDistance {
			nearestDistance = d
			nearest = region.Name
		}
	}
	return Result{Status: StatusNotSatisfied, Region: nearest}
}

// LocationSource supplies the device's current location.
type LocationSource interface {
	Current(ctx context.Context) (Location, error)
}

// SourceChecker is a Checker backed by a LocationSource.
type SourceChecker struct {
	source LocationSource
}

// NewSourceChecker creates a checker over the given location source.
func NewSourceChecker(source LocationSource) *SourceChecker {
	return &SourceChecker{source: source}
}

// CheckRule resolves the current location and evaluates the rule. Source
// failures map to StatusUnavailable, never StatusNotSatisfied.
func (c *SourceChecker) CheckRule(ctx context.Context, rule Rule) Result {
	if c == nil || c.source == nil {
		return Result{Status: StatusUnavailable, Reason: "no location source configured"}
	}
	if !rule.Configured() {
		return Result{Status: StatusSatisfied}
	}
	loc, err := c.source.Current(ctx)
	if err != nil {
		return Result{Status: StatusUnavailable, Reason: strings.TrimSpace(err.Error())}
	}
	return rule.Evaluate(loc)
}

const earthRadiusMeters = 6371000.0

// distanceMeters is the haversine great-circle distance.
func distanceMeters(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
