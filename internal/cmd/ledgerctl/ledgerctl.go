// Package ledgerctl parses ledgerctl flags and runs ledger inspection and
// repair commands against a local or hosted session ledger.
package ledgerctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	entrypoint "github.com/louisbranch/focusgate/internal/platform/cmd"
	"github.com/louisbranch/focusgate/internal/storage"
	redisledger "github.com/louisbranch/focusgate/internal/storage/redis"
	"github.com/louisbranch/focusgate/internal/storage/sqlite"
	syncsvc "github.com/louisbranch/focusgate/internal/sync"
)

// Config holds ledgerctl command configuration.
type Config struct {
	DBPath    string `env:"FOCUSGATE_DB_PATH" envDefault:"focusgate.db"`
	RedisAddr string `env:"FOCUSGATE_REDIS_ADDR"`
	DeviceID  string `env:"FOCUSGATE_DEVICE_ID" envDefault:"ledgerctl"`

	Command   string
	ProfileID string
	Limit     int
}

// ParseConfig parses environment and flags into Config. The first argument
// selects the subcommand: read, force-close, or events.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if len(args) == 0 {
		return Config{}, fmt.Errorf("usage: ledgerctl <read|force-close|events> [flags]")
	}
	cfg.Command = strings.TrimSpace(args[0])

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite coordination database")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for a hosted ledger (overrides -db)")
	fs.StringVar(&cfg.ProfileID, "profile", "", "profile id to operate on")
	fs.IntVar(&cfg.Limit, "limit", 20, "number of telemetry events to list")
	if err := entrypoint.ParseArgs(fs, args[1:]); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the selected ledgerctl command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedgerctl, func(ctx context.Context) error {
		switch cfg.Command {
		case "read":
			return runRead(ctx, cfg, out)
		case "force-close":
			return runForceClose(ctx, cfg, out)
		case "events":
			return runEvents(ctx, cfg, out)
		default:
			return fmt.Errorf("unknown command %q (want read, force-close, or events)", cfg.Command)
		}
	})
}

func runRead(ctx context.Context, cfg Config, out io.Writer) error {
	if cfg.ProfileID == "" {
		return fmt.Errorf("-profile is required")
	}
	ledger, closeLedger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	rec, ok, err := ledger.ReadRecord(ctx, cfg.ProfileID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "no ledger record for profile %s\n", cfg.ProfileID)
		return nil
	}
	printRecord(out, rec)
	return nil
}

// runForceClose ends an active record that survived its session, e.g. after
// a device was lost mid-session. It goes through the same guarded stop path
// as a device, so a concurrent writer still wins cleanly.
func runForceClose(ctx context.Context, cfg Config, out io.Writer) error {
	if cfg.ProfileID == "" {
		return fmt.Errorf("-profile is required")
	}
	ledger, closeLedger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	rec, ok, err := ledger.ReadRecord(ctx, cfg.ProfileID)
	if err != nil {
		return err
	}
	if !ok || !rec.Active() {
		fmt.Fprintf(out, "profile %s has no active record\n", cfg.ProfileID)
		return nil
	}

	svc, err := syncsvc.NewService(ledger, cfg.DeviceID)
	if err != nil {
		return err
	}
	outcome, err := svc.StopSession(ctx, cfg.ProfileID, rec.Seq, time.Now())
	if err != nil {
		return err
	}
	switch outcome.Status {
	case syncsvc.StopStopped:
		fmt.Fprintf(out, "closed record for profile %s at seq %d\n", cfg.ProfileID, outcome.Seq)
	case syncsvc.StopAlreadyStopped:
		fmt.Fprintf(out, "record for profile %s already stopped\n", cfg.ProfileID)
	case syncsvc.StopConflict:
		fmt.Fprintf(out, "record moved to seq %d while closing, rerun to retry\n", outcome.Remote.Seq)
	}
	return nil
}

func runEvents(ctx context.Context, cfg Config, out io.Writer) error {
	if cfg.RedisAddr != "" {
		return fmt.Errorf("events are stored locally, not in the hosted ledger")
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListTelemetryEvents(ctx, cfg.Limit)
	if err != nil {
		return err
	}
	for _, evt := range events {
		fmt.Fprintf(out, "%s %-5s %-18s profile=%s session=%s %s\n",
			evt.Timestamp.Format(time.RFC3339), evt.Severity, evt.Type,
			orDash(evt.ProfileID), orDash(evt.SessionID), evt.Detail)
	}
	return nil
}

func openLedger(cfg Config) (storage.Ledger, func(), error) {
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		ledger, err := redisledger.NewLedger(client, "")
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return ledger, func() { _ = client.Close() }, nil
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func printRecord(out io.Writer, rec storage.LedgerRecord) {
	state := "active"
	end := "-"
	if !rec.EndTime.IsZero() {
		state = "stopped"
		end = rec.EndTime.Format(time.RFC3339)
	}
	fmt.Fprintf(out, "profile:       %s\n", rec.ProfileID)
	fmt.Fprintf(out, "state:         %s\n", state)
	fmt.Fprintf(out, "seq:           %d\n", rec.Seq)
	fmt.Fprintf(out, "start:         %s\n", rec.StartTime.Format(time.RFC3339))
	fmt.Fprintf(out, "end:           %s\n", end)
	fmt.Fprintf(out, "origin device: %s\n", rec.OriginDevice)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
