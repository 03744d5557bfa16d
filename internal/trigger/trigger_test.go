package trigger

import (
	"strings"
	"testing"

	"github.com/louisbranch/focusgate/internal/platform/errors"
)

func TestStartSetFromFlags_ParsesKnownFlags(t *testing.T) {
	set := StartSetFromFlags([]string{"manual", "any_nfc", " Schedule ", "bogus"})
	if !set.Manual || !set.AnyNFC || !set.Schedule {
		t.Fatalf("unexpected set %+v", set)
	}
	if set.AnyQR || set.SpecificNFC || set.DeepLink {
		t.Fatalf("unexpected extra flags in %+v", set)
	}
}

func TestStartSetFromFlags_DefaultsWhenEmpty(t *testing.T) {
	set := StartSetFromFlags(nil)
	if set != DefaultStartSet() {
		t.Fatalf("set = %+v, want manual default", set)
	}
	set = StartSetFromFlags([]string{"unknown"})
	if set != DefaultStartSet() {
		t.Fatalf("set = %+v, want manual default for unknown flags", set)
	}
}

func TestStopSetFromFlags_DefaultsWhenEmpty(t *testing.T) {
	set := StopSetFromFlags(nil)
	if set != DefaultStopSet() {
		t.Fatalf("set = %+v, want manual default", set)
	}
}

func TestOriginFamily(t *testing.T) {
	cases := []struct {
		tag  string
		want Family
	}{
		{"manual", FamilyManual},
		{"nfc:tag-a", FamilyNFC},
		{"NFC:TAG-A", FamilyNFC},
		{"qr", FamilyQR},
		{"schedule:sched-1", FamilySchedule},
		{"deeplink", FamilyDeepLink},
		{"remote-sync", FamilyManual},
		{"", FamilyManual},
	}
	for _, tc := range cases {
		if got := OriginFamily(tc.tag); got != tc.want {
			t.Fatalf("OriginFamily(%q) = %s, want %s", tc.tag, got, tc.want)
		}
	}
}

func TestOriginTag(t *testing.T) {
	if got := OriginTag(FamilyNFC, "tag-a"); got != "nfc:tag-a" {
		t.Fatalf("tag = %q, want %q", got, "nfc:tag-a")
	}
	if got := OriginTag(FamilyManual, ""); got != "manual" {
		t.Fatalf("tag = %q, want %q", got, "manual")
	}
}

func TestResolveStart_SingleFamilies(t *testing.T) {
	cases := []struct {
		start StartSet
		want  StartMethod
	}{
		{StartSet{Manual: true}, MethodManual},
		{StartSet{AnyNFC: true}, MethodNFC},
		{StartSet{SpecificNFC: true}, MethodNFC},
		{StartSet{AnyQR: true}, MethodQR},
		{StartSet{DeepLink: true}, MethodDeepLink},
		{StartSet{Schedule: true}, MethodScheduleWait},
		{StartSet{}, MethodNone},
	}
	for _, tc := range cases {
		if got := ResolveStart(tc.start); got.Method != tc.want {
			t.Fatalf("ResolveStart(%+v) = %s, want %s", tc.start, got.Method, tc.want)
		}
	}
}

func TestResolveStart_MultipleFamiliesRequireChoice(t *testing.T) {
	res := ResolveStart(StartSet{Manual: true, AnyNFC: true, AnyQR: true})
	if res.Method != MethodChoice {
		t.Fatalf("method = %s, want %s", res.Method, MethodChoice)
	}
	if len(res.Choices) != 3 {
		t.Fatalf("choices = %v, want 3 families", res.Choices)
	}
}

func TestResolveStart_ScheduleIsPassive(t *testing.T) {
	res := ResolveStart(StartSet{Manual: true, Schedule: true})
	if res.Method != MethodManual {
		t.Fatalf("method = %s, want %s (schedule must not force a choice)", res.Method, MethodManual)
	}
}

func TestResolutionRefusal_ChoiceCarriesCandidateFamilies(t *testing.T) {
	res := ResolveStart(StartSet{Manual: true, AnyNFC: true})
	err := res.Refusal()
	if errors.CodeOf(err) != errors.CodeTriggerChoiceRequired {
		t.Fatalf("error code = %s, want %s", errors.CodeOf(err), errors.CodeTriggerChoiceRequired)
	}
	domainErr, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("expected domain error, got %T", err)
	}
	choices := domainErr.Metadata["Choices"]
	if !strings.Contains(choices, string(FamilyManual)) || !strings.Contains(choices, string(FamilyNFC)) {
		t.Fatalf("choices metadata = %q, want both families listed", choices)
	}
}

func TestResolutionRefusal_ScheduleOnly(t *testing.T) {
	res := ResolveStart(StartSet{Schedule: true})
	if errors.CodeOf(res.Refusal()) != errors.CodeTriggerScheduleOnly {
		t.Fatalf("error code = %s, want %s", errors.CodeOf(res.Refusal()), errors.CodeTriggerScheduleOnly)
	}
}

func TestResolutionRefusal_ActionableMethodsReturnNil(t *testing.T) {
	for _, set := range []StartSet{
		{Manual: true},
		{AnyNFC: true},
		{AnyQR: true},
		{DeepLink: true},
		{},
	} {
		if err := ResolveStart(set).Refusal(); err != nil {
			t.Fatalf("Refusal(%+v) = %v, want nil", set, err)
		}
	}
}
