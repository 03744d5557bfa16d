// Package redis provides a Redis-backed session ledger for deployments
// where devices share a hosted coordination point instead of a local file.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/louisbranch/focusgate/internal/storage"
)

const defaultKeyPrefix = "focusgate"

// Ledger implements the session ledger on a Redis instance. The CAS
// contract rides on WATCH/MULTI/EXEC: a record that changes between the
// guarded read and the write aborts the transaction.
type Ledger struct {
	client    *redis.Client
	keyPrefix string
}

// ledgerPayload is the wire form of a ledger record. Times are unix
// milliseconds; zero means unset.
type ledgerPayload struct {
	Seq          uint64 `json:"seq"`
	StartMillis  int64  `json:"start_ms"`
	EndMillis    int64  `json:"end_ms"`
	OriginDevice string `json:"origin_device"`
}

// NewLedger creates a ledger over the given Redis client.
func NewLedger(client *redis.Client, keyPrefix string) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Ledger{client: client, keyPrefix: keyPrefix}, nil
}

func (l *Ledger) key(profileID string) string {
	return l.keyPrefix + ":ledger:" + profileID
}

// ReadRecord returns the ledger record for one profile.
func (l *Ledger) ReadRecord(ctx context.Context, profileID string) (storage.LedgerRecord, bool, error) {
	if l == nil || l.client == nil {
		return storage.LedgerRecord{}, false, fmt.Errorf("ledger is not configured")
	}
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return storage.LedgerRecord{}, false, fmt.Errorf("profile id is required")
	}

	raw, err := l.client.Get(ctx, l.key(profileID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.LedgerRecord{}, false, nil
		}
		return storage.LedgerRecord{}, false, fmt.Errorf("read ledger record: %w", err)
	}
	rec, err := decodeRecord(profileID, raw)
	if err != nil {
		return storage.LedgerRecord{}, false, err
	}
	return rec, true, nil
}

// WriteRecordIfUnchanged stores rec only if the current record's sequence
// number equals expectedSeq. Both a failed precondition and a lost WATCH
// race surface as ErrLedgerChanged.
func (l *Ledger) WriteRecordIfUnchanged(ctx context.Context, profileID string, expectedSeq uint64, rec storage.LedgerRecord) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("ledger is not configured")
	}
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return fmt.Errorf("profile id is required")
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	key := l.key(profileID)

	err = l.client.Watch(ctx, func(tx *redis.Tx) error {
		currentSeq := uint64(0)
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// No record yet.
		case err != nil:
			return fmt.Errorf("read ledger record: %w", err)
		default:
			current, err := decodeRecord(profileID, raw)
			if err != nil {
				return err
			}
			currentSeq = current.Seq
		}
		if currentSeq != expectedSeq {
			return storage.ErrLedgerChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return storage.ErrLedgerChanged
	}
	return err
}

func encodeRecord(rec storage.LedgerRecord) ([]byte, error) {
	payload := ledgerPayload{
		Seq:          rec.Seq,
		OriginDevice: rec.OriginDevice,
	}
	if !rec.StartTime.IsZero() {
		payload.StartMillis = rec.StartTime.UTC().UnixMilli()
	}
	if !rec.EndTime.IsZero() {
		payload.EndMillis = rec.EndTime.UTC().UnixMilli()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode ledger record: %w", err)
	}
	return raw, nil
}

func decodeRecord(profileID, raw string) (storage.LedgerRecord, error) {
	var payload ledgerPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return storage.LedgerRecord{}, fmt.Errorf("decode ledger record: %w", err)
	}
	rec := storage.LedgerRecord{
		ProfileID:    profileID,
		Seq:          payload.Seq,
		OriginDevice: payload.OriginDevice,
	}
	if payload.StartMillis != 0 {
		rec.StartTime = timeFromMillis(payload.StartMillis)
	}
	if payload.EndMillis != 0 {
		rec.EndTime = timeFromMillis(payload.EndMillis)
	}
	return rec, nil
}

func timeFromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

var _ storage.Ledger = (*Ledger)(nil)
