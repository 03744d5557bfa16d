// Package trigger models the start triggers and stop conditions that gate a
// blocking session, and the rule engine that keeps the two sets coherent.
package trigger

import "strings"

// Family groups trigger options by the mechanism that fires them.
type Family string

const (
	FamilyManual   Family = "manual"
	FamilyNFC      Family = "nfc"
	FamilyQR       Family = "qr"
	FamilySchedule Family = "schedule"
	FamilyDeepLink Family = "deeplink"
	FamilyTimer    Family = "timer"
)

// StartSet holds the start triggers enabled for a profile.
//
// Flags are independent; validity only requires at least one to be set.
type StartSet struct {
	// Manual allows starting from a direct user tap.
	Manual bool
	// AnyNFC allows starting from any successfully scanned NFC tag.
	AnyNFC bool
	// SpecificNFC restricts NFC starts to the profile's configured tags.
	SpecificNFC bool
	// AnyQR allows starting from any successfully scanned QR code.
	AnyQR bool
	// SpecificQR restricts QR starts to the profile's configured codes.
	SpecificQR bool
	// Schedule allows starts fired by the external activity scheduler.
	Schedule bool
	// DeepLink allows starts fired through an app deep link.
	DeepLink bool
}

// StopSet holds the stop conditions enabled for a profile.
type StopSet struct {
	Manual      bool
	AnyNFC      bool
	SpecificNFC bool
	// SameNFC requires the stop scan to come from the same trigger family
	// that started the session (any NFC tag, not tag-identity).
	SameNFC    bool
	AnyQR      bool
	SpecificQR bool
	// SameQR mirrors SameNFC for QR codes.
	SameQR   bool
	Schedule bool
	DeepLink bool
	// Timer ends the session when its configured duration elapses.
	Timer bool
}

// IsValid reports whether at least one start trigger is enabled.
func (s StartSet) IsValid() bool {
	return s.Manual || s.AnyNFC || s.SpecificNFC || s.AnyQR || s.SpecificQR || s.Schedule || s.DeepLink
}

// HasNFC reports whether any NFC start trigger is enabled.
func (s StartSet) HasNFC() bool {
	return s.AnyNFC || s.SpecificNFC
}

// HasQR reports whether any QR start trigger is enabled.
func (s StartSet) HasQR() bool {
	return s.AnyQR || s.SpecificQR
}

// IsValid reports whether at least one stop condition is enabled.
func (s StopSet) IsValid() bool {
	return s.Manual || s.AnyNFC || s.SpecificNFC || s.SameNFC ||
		s.AnyQR || s.SpecificQR || s.SameQR || s.Schedule || s.DeepLink || s.Timer
}

// DefaultStartSet returns the start set used when a profile carries no
// trigger data: manual starts only.
func DefaultStartSet() StartSet {
	return StartSet{Manual: true}
}

// DefaultStopSet returns the stop set used when a profile carries no
// stop-condition data: manual stops only.
func DefaultStopSet() StopSet {
	return StopSet{Manual: true}
}

// StartSetFromFlags builds a StartSet from stored flag names, ignoring
// unknown names. An empty or all-unknown input yields DefaultStartSet so
// the core never operates on an implicit empty set.
func StartSetFromFlags(flags []string) StartSet {
	var set StartSet
	for _, flag := range flags {
		switch strings.ToLower(strings.TrimSpace(flag)) {
		case "manual":
			set.Manual = true
		case "any_nfc", "anynfc":
			set.AnyNFC = true
		case "specific_nfc", "specificnfc":
			set.SpecificNFC = true
		case "any_qr", "anyqr":
			set.AnyQR = true
		case "specific_qr", "specificqr":
			set.SpecificQR = true
		case "schedule":
			set.Schedule = true
		case "deep_link", "deeplink":
			set.DeepLink = true
		}
	}
	if !set.IsValid() {
		return DefaultStartSet()
	}
	return set
}

// StopSetFromFlags builds a StopSet from stored flag names, ignoring
// unknown names and defaulting to DefaultStopSet when nothing matches.
func StopSetFromFlags(flags []string) StopSet {
	var set StopSet
	for _, flag := range flags {
		switch strings.ToLower(strings.TrimSpace(flag)) {
		case "manual":
			set.Manual = true
		case "any_nfc", "anynfc":
			set.AnyNFC = true
		case "specific_nfc", "specificnfc":
			set.SpecificNFC = true
		case "same_nfc", "samenfc":
			set.SameNFC = true
		case "any_qr", "anyqr":
			set.AnyQR = true
		case "specific_qr", "specificqr":
			set.SpecificQR = true
		case "same_qr", "sameqr":
			set.SameQR = true
		case "schedule":
			set.Schedule = true
		case "deep_link", "deeplink":
			set.DeepLink = true
		case "timer":
			set.Timer = true
		}
	}
	if !set.IsValid() {
		return DefaultStopSet()
	}
	return set
}

// OriginFamily parses the trigger family out of a session origin tag.
// Origin tags are recorded as "<family>" or "<family>:<identifier>".
func OriginFamily(originTag string) Family {
	tag := strings.ToLower(strings.TrimSpace(originTag))
	if idx := strings.IndexByte(tag, ':'); idx >= 0 {
		tag = tag[:idx]
	}
	switch tag {
	case "nfc":
		return FamilyNFC
	case "qr":
		return FamilyQR
	case "schedule":
		return FamilySchedule
	case "deeplink":
		return FamilyDeepLink
	case "timer":
		return FamilyTimer
	default:
		return FamilyManual
	}
}

// OriginTag builds the origin tag recorded on a session for a trigger
// family and optional identifier (tag id, schedule id).
func OriginTag(family Family, identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return string(family)
	}
	return string(family) + ":" + identifier
}
