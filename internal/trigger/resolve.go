package trigger

import (
	"strings"

	"github.com/louisbranch/focusgate/internal/platform/errors"
)

// StartMethod is the mechanism the coordinator must wait for before a
// session can start.
type StartMethod string

const (
	// MethodManual starts immediately from a user tap.
	MethodManual StartMethod = "manual"
	// MethodNFC waits for an NFC scan.
	MethodNFC StartMethod = "nfc"
	// MethodQR waits for a QR scan.
	MethodQR StartMethod = "qr"
	// MethodDeepLink waits for a deep-link invocation.
	MethodDeepLink StartMethod = "deeplink"
	// MethodScheduleWait means the profile only starts on its schedule.
	MethodScheduleWait StartMethod = "schedule_wait"
	// MethodChoice means multiple equally-weighted triggers are enabled
	// and the user must pick one.
	MethodChoice StartMethod = "choice"
	// MethodNone means no start trigger is configured.
	MethodNone StartMethod = "none"
)

// Resolution is the outcome of resolving which trigger must fire.
type Resolution struct {
	Method StartMethod
	// Choices lists the candidate families when Method is MethodChoice.
	Choices []Family
}

// ResolveStart decides which trigger must fire for the given start set.
// Schedule is passive: it only becomes the resolution when no
// user-initiated trigger is enabled alongside it.
func ResolveStart(start StartSet) Resolution {
	var choices []Family
	if start.Manual {
		choices = append(choices, FamilyManual)
	}
	if start.HasNFC() {
		choices = append(choices, FamilyNFC)
	}
	if start.HasQR() {
		choices = append(choices, FamilyQR)
	}
	if start.DeepLink {
		choices = append(choices, FamilyDeepLink)
	}

	switch len(choices) {
	case 0:
		if start.Schedule {
			return Resolution{Method: MethodScheduleWait}
		}
		return Resolution{Method: MethodNone}
	case 1:
		switch choices[0] {
		case FamilyManual:
			return Resolution{Method: MethodManual}
		case FamilyNFC:
			return Resolution{Method: MethodNFC}
		case FamilyQR:
			return Resolution{Method: MethodQR}
		default:
			return Resolution{Method: MethodDeepLink}
		}
	default:
		return Resolution{Method: MethodChoice, Choices: choices}
	}
}

// Refusal converts a resolution that cannot honor an immediate start into
// the coded error hosts surface: a choice resolution needs the user to pick
// a trigger first, and a schedule-only resolution never starts on demand.
// Actionable methods return nil.
func (r Resolution) Refusal() error {
	switch r.Method {
	case MethodChoice:
		names := make([]string, len(r.Choices))
		for i, f := range r.Choices {
			names[i] = string(f)
		}
		return errors.WithMetadata(errors.CodeTriggerChoiceRequired,
			"multiple start triggers are enabled",
			map[string]string{"Choices": strings.Join(names, ", ")})
	case MethodScheduleWait:
		return errors.New(errors.CodeTriggerScheduleOnly,
			"this profile only starts on its schedule")
	default:
		return nil
	}
}
