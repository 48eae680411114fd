package cooldown

import (
	"context"
	"time"
)

// Meta keys written by the scheduler.
const (
	MetaLastCycle  = "last_cycle"
	MetaLastHourly = "last_hourly"
)

// Store persists cooldown records and run metadata. Implementations are safe
// for concurrent use.
type Store interface {
	// LastNotified returns the last notification instant for key, if any.
	LastNotified(ctx context.Context, key string) (time.Time, bool, error)
	// Upsert creates or updates the record for key.
	Upsert(ctx context.Context, key string, at time.Time) error
	Meta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
	// Reset deletes every cooldown record. Metadata is kept.
	Reset(ctx context.Context) error
	Close() error
}
