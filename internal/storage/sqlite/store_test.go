package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/focusgate/internal/storage"
)

var sqliteT0 = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "focusgate.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLedger_CreateRequiresNoExistingRecord(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := storage.LedgerRecord{
		ProfileID:    "profile-1",
		Seq:          1,
		StartTime:    sqliteT0,
		OriginDevice: "device-a",
	}
	if err := store.WriteRecordIfUnchanged(ctx, "profile-1", 0, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := store.WriteRecordIfUnchanged(ctx, "profile-1", 0, rec)
	if !errors.Is(err, storage.ErrLedgerChanged) {
		t.Fatalf("duplicate create error = %v, want ErrLedgerChanged", err)
	}
}

func TestLedger_ReadRoundTripsTimes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := storage.LedgerRecord{
		ProfileID:    "profile-1",
		Seq:          1,
		StartTime:    sqliteT0,
		OriginDevice: "device-a",
	}
	if err := store.WriteRecordIfUnchanged(ctx, "profile-1", 0, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := store.ReadRecord(ctx, "profile-1")
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if !got.StartTime.Equal(sqliteT0) {
		t.Fatalf("start time = %v, want %v", got.StartTime, sqliteT0)
	}
	if !got.EndTime.IsZero() {
		t.Fatalf("end time = %v, want zero while active", got.EndTime)
	}
	if !got.Active() {
		t.Fatal("expected active record")
	}
}

func TestLedger_ReadMissingRecord(t *testing.T) {
	store := openStore(t)
	_, ok, err := store.ReadRecord(context.Background(), "profile-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ok {
		t.Fatal("expected no record")
	}
}

func TestLedger_ConditionalUpdateGuardsOnSeq(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := storage.LedgerRecord{
		ProfileID:    "profile-1",
		Seq:          1,
		StartTime:    sqliteT0,
		OriginDevice: "device-a",
	}
	if err := store.WriteRecordIfUnchanged(ctx, "profile-1", 0, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	ended := rec
	ended.Seq = 2
	ended.EndTime = sqliteT0.Add(time.Hour)
	ended.OriginDevice = "device-b"
	if err := store.WriteRecordIfUnchanged(ctx, "profile-1", 1, ended); err != nil {
		t.Fatalf("guarded update: %v", err)
	}

	// A writer still holding seq 1 must lose without mutating anything.
	stale := rec
	stale.Seq = 2
	stale.EndTime = sqliteT0.Add(2 * time.Hour)
	err := store.WriteRecordIfUnchanged(ctx, "profile-1", 1, stale)
	if !errors.Is(err, storage.ErrLedgerChanged) {
		t.Fatalf("stale update error = %v, want ErrLedgerChanged", err)
	}

	got, _, err := store.ReadRecord(ctx, "profile-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !got.EndTime.Equal(ended.EndTime) {
		t.Fatalf("end time = %v, want winner's %v", got.EndTime, ended.EndTime)
	}
	if got.OriginDevice != "device-b" {
		t.Fatalf("origin device = %q, want %q", got.OriginDevice, "device-b")
	}
}

func TestOverrideCounter_RoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, ok, err := store.LoadOverrideCounter(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("expected no counter before first save")
	}

	counter := storage.OverrideCounter{Remaining: 3, ResetPeriodWeeks: 4, LastReset: sqliteT0}
	if err := store.SaveOverrideCounter(ctx, counter); err != nil {
		t.Fatalf("save: %v", err)
	}
	counter.Remaining = 2
	if err := store.SaveOverrideCounter(ctx, counter); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok, err := store.LoadOverrideCounter(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Remaining != 2 {
		t.Fatalf("remaining = %d, want 2", got.Remaining)
	}
	if !got.LastReset.Equal(sqliteT0) {
		t.Fatalf("last reset = %v, want %v", got.LastReset, sqliteT0)
	}
}

func TestTelemetry_AppendAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{
			Timestamp: sqliteT0.Add(time.Duration(i) * time.Minute),
			Severity:  "INFO",
			Type:      "session.started",
			ProfileID: "profile-1",
			Detail:    "manual",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := store.ListTelemetryEvents(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if !events[0].Timestamp.Before(events[1].Timestamp) {
		t.Fatal("expected oldest-first ordering")
	}
	if !events[1].Timestamp.Equal(sqliteT0.Add(2 * time.Minute)) {
		t.Fatalf("latest timestamp = %v, want %v", events[1].Timestamp, sqliteT0.Add(2*time.Minute))
	}
}
