package trigger

import (
	"github.com/louisbranch/focusgate/internal/platform/errors"
	"github.com/louisbranch/focusgate/internal/platform/errors/i18n"
)

// Violation describes one broken configuration rule. Message is the
// rendered base-locale reason; Code carries the machine-readable rule.
type Violation struct {
	Code    errors.Code
	Message string
}

// StopOption identifies one stop-condition flag for availability queries.
type StopOption string

const (
	StopManual      StopOption = "manual"
	StopAnyNFC      StopOption = "any_nfc"
	StopSpecificNFC StopOption = "specific_nfc"
	StopSameNFC     StopOption = "same_nfc"
	StopAnyQR       StopOption = "any_qr"
	StopSpecificQR  StopOption = "specific_qr"
	StopSameQR      StopOption = "same_qr"
	StopSchedule    StopOption = "schedule"
	StopDeepLink    StopOption = "deep_link"
	StopTimer       StopOption = "timer"
)

// Validate checks a (start, stop) pair against the configuration rules.
// The rules are order-independent; an empty result means the pair is valid.
// Validate never fails: it only reports, and callers are responsible for
// refusing to persist an invalid configuration.
func Validate(start StartSet, stop StopSet) []Violation {
	var violations []Violation
	if stop.SameNFC && !start.HasNFC() {
		violations = append(violations, violation(errors.CodeTriggerSameNFCRequiresNFCStart))
	}
	if stop.SameQR && !start.HasQR() {
		violations = append(violations, violation(errors.CodeTriggerSameQRRequiresQRStart))
	}
	if !start.IsValid() {
		violations = append(violations, violation(errors.CodeTriggerStartSetEmpty))
	}
	if !stop.IsValid() {
		violations = append(violations, violation(errors.CodeTriggerStopSetEmpty))
	}
	return violations
}

// AutoFix clears stop flags whose prerequisite start trigger is absent and
// returns the repaired stop set. Empty-set rules are not fixable (there is
// no safe default) and still surface through Validate. AutoFix is
// idempotent.
func AutoFix(start StartSet, stop StopSet) StopSet {
	if stop.SameNFC && !start.HasNFC() {
		stop.SameNFC = false
	}
	if stop.SameQR && !start.HasQR() {
		stop.SameQR = false
	}
	return stop
}

// StopAvailable reports whether a stop option is selectable for the given
// start set. Only the "same" variants depend on the start configuration.
func StopAvailable(option StopOption, start StartSet) bool {
	switch option {
	case StopSameNFC:
		return start.HasNFC()
	case StopSameQR:
		return start.HasQR()
	default:
		return true
	}
}

// UnavailabilityReason returns a user-facing explanation for a grayed-out
// stop option, or the empty string when the option is available.
func UnavailabilityReason(option StopOption, start StartSet) string {
	if StopAvailable(option, start) {
		return ""
	}
	switch option {
	case StopSameNFC:
		return message(errors.CodeTriggerSameNFCRequiresNFCStart)
	case StopSameQR:
		return message(errors.CodeTriggerSameQRRequiresQRStart)
	default:
		return ""
	}
}

func violation(code errors.Code) Violation {
	return Violation{Code: code, Message: message(code)}
}

func message(code errors.Code) string {
	return i18n.GetCatalog(i18n.BaseLocale).Format(string(code), nil)
}
