// Package storage provides the shared counter store used by admission
// control and security monitoring. All cross-process state lives here: the
// store is the only synchronization point between request workers, so every
// mutating operation must be atomic from the caller's point of view.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Store is the interface over the shared counter store. The production
// implementation is Redis; an in-memory implementation exists for
// single-process development deployments and tests.
type Store interface {
	// WindowTake executes the sliding-window transaction for key as a single
	// atomic unit: prune members scored older than now-window, count the
	// survivors, add member at score now, refresh expiry to window+grace.
	// It returns the count observed before the insert.
	WindowTake(ctx context.Context, key string, now float64, window time.Duration, member string, grace time.Duration) (int64, error)

	// SetWithTTL writes an expiring string key.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of key, or a negative duration when
	// the key does not exist or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	SetAdd(ctx context.Context, key, member string) error
	// SetRemove removes member and reports whether it was present.
	SetRemove(ctx context.Context, key, member string) (bool, error)
	SetIsMember(ctx context.Context, key, member string) (bool, error)
	SetMembers(ctx context.Context, key string) ([]string, error)

	// ListPushTrim pushes value to the front of the list, trims it to cap
	// entries and, when ttl > 0, refreshes the list expiry. The push and trim
	// are one atomic unit so concurrent writers cannot grow the list past cap.
	ListPushTrim(ctx context.Context, key, value string, cap int64, ttl time.Duration) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListLen(ctx context.Context, key string) (int64, error)
	// ListRemove removes the first occurrence of value and returns how many
	// entries were removed.
	ListRemove(ctx context.Context, key, value string) (int64, error)
	// ListReplace atomically replaces the list contents, preserving the order
	// of values (index 0 becomes the list head).
	ListReplace(ctx context.Context, key string, values []string, ttl time.Duration) error

	// Increment increments an integer counter, setting ttl on first write.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// GetInt reads an integer counter; missing keys read as zero.
	GetInt(ctx context.Context, key string) (int64, error)

	// ScanKeys lists keys matching pattern. It walks the keyspace and is only
	// acceptable on administrative paths, never per request.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	Ping(ctx context.Context) error
}

// Key namespaces. Kept in one place so the layout documented for operators
// stays in sync with the code.
const (
	whitelistKey    = "whitelist"
	recentEventsKey = "security:recent"
)

// WindowKey returns the sliding-window key for one counter series.
func WindowKey(category, ip, window string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", category, ip, window)
}

// BlockKey returns the TTL-backed existence key marking a blocked IP.
func BlockKey(ip string) string {
	return "block:" + ip
}

// BlockKeyPattern matches all block keys, for administrative listing.
func BlockKeyPattern() string {
	return "block:*"
}

// IPFromBlockKey extracts the IP from a block key.
func IPFromBlockKey(key string) string {
	return key[len("block:"):]
}

// WhitelistKey returns the whitelist set key.
func WhitelistKey() string {
	return whitelistKey
}

// RecentEventsKey returns the global bounded security event list key.
func RecentEventsKey() string {
	return recentEventsKey
}

// IPEventsKey returns the per-IP bounded security event list key.
func IPEventsKey(ip string) string {
	return "security:ip:" + ip
}

// UserEventsKey returns the per-user bounded security event list key.
func UserEventsKey(userID string) string {
	return "security:user:" + userID
}

// EventCounterKey returns the hourly counter key for one event type. The
// bucket is the event's hour formatted as 2006-01-02-15.
func EventCounterKey(eventType string, bucket time.Time) string {
	return fmt.Sprintf("security:counter:%s:%s", eventType, bucket.Format("2006-01-02-15"))
}

// EventCounterPattern matches all hourly counter keys.
func EventCounterPattern() string {
	return "security:counter:*"
}
