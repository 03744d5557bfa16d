// Package scenario parses scenario flags and replays scripted trigger
// sequences against a live coordinator, for exploring lifecycle behavior
// without real devices.
package scenario

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/focusgate/internal/coordinator"
	"github.com/louisbranch/focusgate/internal/override"
	entrypoint "github.com/louisbranch/focusgate/internal/platform/cmd"
	"github.com/louisbranch/focusgate/internal/profile"
	"github.com/louisbranch/focusgate/internal/storage"
	"github.com/louisbranch/focusgate/internal/storage/memory"
	"github.com/louisbranch/focusgate/internal/storage/sqlite"
	syncsvc "github.com/louisbranch/focusgate/internal/sync"
	"github.com/louisbranch/focusgate/internal/telemetry"
	"github.com/louisbranch/focusgate/internal/trigger"
)

// Config holds scenario command configuration.
type Config struct {
	ScriptPath string `env:"FOCUSGATE_SCENARIO"`
	DBPath     string `env:"FOCUSGATE_DB_PATH"`
	DeviceID   string `env:"FOCUSGATE_DEVICE_ID" envDefault:"scenario-device"`
}

// Script is a parsed scenario file.
type Script struct {
	Device   string        `yaml:"device"`
	Profiles []ProfileSpec `yaml:"profiles"`
	Steps    []Step        `yaml:"steps"`
}

// ProfileSpec declares one profile available to the script.
type ProfileSpec struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	StartTriggers     []string `yaml:"start_triggers"`
	StopConditions    []string `yaml:"stop_conditions"`
	NFCTags           []string `yaml:"nfc_tags"`
	QRCodes           []string `yaml:"qr_codes"`
	BreaksEnabled     bool     `yaml:"breaks_enabled"`
	Managed           bool     `yaml:"managed"`
	OverrideForbidden bool     `yaml:"override_forbidden"`
}

// Step is one scripted event. Sleep uses Go duration syntax ("500ms").
type Step struct {
	Action  string `yaml:"action"`
	Profile string `yaml:"profile"`
	Trigger string `yaml:"trigger"`
	Tag     string `yaml:"tag"`
	Sleep   string `yaml:"sleep"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.ScriptPath, "script", cfg.ScriptPath, "path to the YAML scenario script")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (default: in-memory ledger)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadScript parses a YAML scenario document.
func LoadScript(raw []byte) (Script, error) {
	var script Script
	if err := yaml.Unmarshal(raw, &script); err != nil {
		return Script{}, fmt.Errorf("parse scenario: %w", err)
	}
	if len(script.Steps) == 0 {
		return Script{}, fmt.Errorf("scenario has no steps")
	}
	return script, nil
}

// Run loads and replays the configured script.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceScenario, func(ctx context.Context) error {
		if strings.TrimSpace(cfg.ScriptPath) == "" {
			return fmt.Errorf("-script is required")
		}
		raw, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return fmt.Errorf("read scenario: %w", err)
		}
		script, err := LoadScript(raw)
		if err != nil {
			return err
		}
		return Replay(ctx, cfg, script, out)
	})
}

// printEnforcer narrates enforcement transitions into the scenario output.
type printEnforcer struct {
	out io.Writer
}

func (p *printEnforcer) ApplyRestrictions(snapshot profile.Profile) {
	fmt.Fprintf(p.out, "  [enforcer] restrictions applied for %s\n", snapshot.Name)
}

func (p *printEnforcer) ClearRestrictions() {
	fmt.Fprintln(p.out, "  [enforcer] restrictions cleared")
}

// Replay runs every step of the script in order. Step refusals are part of
// the scenario's output, not failures: the run only errors on setup
// problems or unknown actions.
func Replay(ctx context.Context, cfg Config, script Script, out io.Writer) error {
	var (
		store   storage.Ledger
		counter storage.OverrideStore
		events  storage.TelemetryStore
		cleanup func()
	)
	if strings.TrimSpace(cfg.DBPath) != "" {
		sqlStore, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		store, counter, events = sqlStore, sqlStore, sqlStore
		cleanup = func() { _ = sqlStore.Close() }
	} else {
		memStore := memory.NewStore()
		store, counter, events = memStore, memStore, memStore
		cleanup = func() {}
	}
	defer cleanup()

	deviceID := strings.TrimSpace(script.Device)
	if deviceID == "" {
		deviceID = cfg.DeviceID
	}
	svc, err := syncsvc.NewService(store, deviceID)
	if err != nil {
		return err
	}
	limiter, err := override.NewLimiter(counter)
	if err != nil {
		return err
	}
	coord, err := coordinator.New(coordinator.Config{
		Enforcer: &printEnforcer{out: out},
		Sync:     svc,
		Limiter:  limiter,
		Emitter:  telemetry.NewEmitter(events),
	})
	if err != nil {
		return err
	}

	profiles := make(map[string]profile.Profile, len(script.Profiles))
	for _, spec := range script.Profiles {
		profiles[spec.ID] = profileFromSpec(spec)
	}

	for i, step := range script.Steps {
		fmt.Fprintf(out, "step %d: %s\n", i+1, describeStep(step))
		if err := runStep(ctx, coord, profiles, step, out); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	coord.Wait()
	for id := range profiles {
		rec, ok, err := store.ReadRecord(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "ledger %s: no record\n", id)
			continue
		}
		state := "stopped"
		if rec.Active() {
			state = "active"
		}
		fmt.Fprintf(out, "ledger %s: %s seq=%d device=%s\n", id, state, rec.Seq, rec.OriginDevice)
	}
	return nil
}

func runStep(ctx context.Context, coord *coordinator.Coordinator, profiles map[string]profile.Profile, step Step, out io.Writer) error {
	report := func(err error) {
		if err != nil {
			fmt.Fprintf(out, "  refused: %v\n", err)
			return
		}
		fmt.Fprintln(out, "  ok")
	}

	switch strings.ToLower(strings.TrimSpace(step.Action)) {
	case "start":
		p, ok := profiles[step.Profile]
		if !ok {
			return fmt.Errorf("unknown profile %q", step.Profile)
		}
		_, err := coord.Start(ctx, p, coordinator.StartRequest{
			Trigger: trigger.Family(step.Trigger),
			TagID:   step.Tag,
		})
		report(err)
	case "stop":
		report(coord.Stop(ctx, coordinator.StopRequest{
			Trigger: trigger.Family(step.Trigger),
			TagID:   step.Tag,
		}))
	case "scan":
		p, ok := profiles[step.Profile]
		if !ok {
			return fmt.Errorf("unknown profile %q", step.Profile)
		}
		action, err := coord.HandleScan(ctx, p, trigger.Family(step.Trigger), step.Tag)
		if err == nil {
			fmt.Fprintf(out, "  scan -> %s\n", action)
		}
		report(err)
	case "break":
		phase, err := coord.ToggleBreak(ctx)
		if err == nil {
			fmt.Fprintf(out, "  phase -> %s\n", phase)
		}
		report(err)
	case "grace":
		report(coord.StartOneMoreMinute(ctx))
	case "override":
		report(coord.EmergencyOverride(ctx))
	case "resume":
		report(coord.Resume(ctx))
	case "sleep":
		d, err := time.ParseDuration(step.Sleep)
		if err != nil {
			return fmt.Errorf("parse sleep %q: %w", step.Sleep, err)
		}
		time.Sleep(d)
		fmt.Fprintln(out, "  ok")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func profileFromSpec(spec ProfileSpec) profile.Profile {
	return profile.Normalize(profile.Profile{
		ID:                spec.ID,
		Name:              spec.Name,
		StartTriggers:     trigger.StartSetFromFlags(spec.StartTriggers),
		StopConditions:    trigger.StopSetFromFlags(spec.StopConditions),
		SpecificNFCTags:   spec.NFCTags,
		SpecificQRCodes:   spec.QRCodes,
		BreaksEnabled:     spec.BreaksEnabled,
		Managed:           spec.Managed,
		OverrideForbidden: spec.OverrideForbidden,
	})
}

func describeStep(step Step) string {
	parts := []string{step.Action}
	if step.Profile != "" {
		parts = append(parts, "profile="+step.Profile)
	}
	if step.Trigger != "" {
		parts = append(parts, "trigger="+step.Trigger)
	}
	if step.Tag != "" {
		parts = append(parts, "tag="+step.Tag)
	}
	if step.Sleep != "" {
		parts = append(parts, "sleep="+step.Sleep)
	}
	return strings.Join(parts, " ")
}
