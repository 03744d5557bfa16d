// Package timeouts defines shared timeout constants used across the engine.
// Centralizing these values prevents drift between collaborator boundaries
// and makes the durations discoverable.
package timeouts

import "time"

// LedgerRoundTrip caps a single read or conditional write against the
// shared session ledger.
const LedgerRoundTrip = 5 * time.Second

// SyncPublish caps the full publish of a local start or stop to the ledger,
// including the single CAS retry.
const SyncPublish = 15 * time.Second

// GeofenceCheck caps the location lookup performed before a gated stop.
const GeofenceCheck = 10 * time.Second

// LockCodeCheck caps the unlock-state lookup for managed profiles.
const LockCodeCheck = 5 * time.Second
