// Package memory provides in-memory store implementations used by tests
// and the scenario runner.
package memory

import (
	"context"
	"sync"

	"github.com/louisbranch/focusgate/internal/storage"
)

// Store is an in-memory implementation of the storage contracts.
type Store struct {
	mu      sync.Mutex
	records map[string]storage.LedgerRecord
	counter *storage.OverrideCounter
	events  []storage.TelemetryEvent
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{records: map[string]storage.LedgerRecord{}}
}

// ReadRecord loads the ledger record for profileID.
func (s *Store) ReadRecord(ctx context.Context, profileID string) (storage.LedgerRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.LedgerRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[profileID]
	return rec, ok, nil
}

// WriteRecordIfUnchanged stores rec guarded on the current sequence number.
func (s *Store) WriteRecordIfUnchanged(ctx context.Context, profileID string, expectedSeq uint64, rec storage.LedgerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[profileID]
	if !ok {
		if expectedSeq != 0 {
			return storage.ErrLedgerChanged
		}
	} else if current.Seq != expectedSeq {
		return storage.ErrLedgerChanged
	}
	rec.ProfileID = profileID
	s.records[profileID] = rec
	return nil
}

// LoadOverrideCounter returns the stored override counter, if any.
func (s *Store) LoadOverrideCounter(ctx context.Context) (storage.OverrideCounter, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.OverrideCounter{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counter == nil {
		return storage.OverrideCounter{}, false, nil
	}
	return *s.counter, true, nil
}

// SaveOverrideCounter stores the override counter.
func (s *Store) SaveOverrideCounter(ctx context.Context, counter storage.OverrideCounter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter = &counter
	return nil
}

// AppendTelemetryEvent records an operational event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// TelemetryEvents returns a copy of the recorded events.
func (s *Store) TelemetryEvents() []storage.TelemetryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.TelemetryEvent, len(s.events))
	copy(out, s.events)
	return out
}
