package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/storage"
)

// Info reports the advisory state of one window after a check.
type Info struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
	Current   int   `json:"current"`
}

// SlidingWindowLimiter answers "is this key over its budget for this window"
// against the shared counter store. Each check is one atomic store
// transaction, so concurrent workers racing on the same key still observe a
// consistent prune-count-insert sequence.
type SlidingWindowLimiter struct {
	store  storage.Store
	grace  time.Duration
	logger *zap.Logger
}

// NewSlidingWindowLimiter creates a limiter. grace extends the stored key's
// expiry past the window so a still-relevant key is not evicted early.
func NewSlidingWindowLimiter(store storage.Store, grace time.Duration, logger *zap.Logger) *SlidingWindowLimiter {
	if grace <= 0 {
		grace = time.Minute
	}
	return &SlidingWindowLimiter{store: store, grace: grace, logger: logger}
}

// Check records the current request against key and reports whether the key
// was already at its limit. The just-recorded request counts toward Current
// but not toward the over/under decision: the Nth request inside the window
// is still allowed, the N+1th is denied.
//
// If the store fails, Check fails open: a store outage degrades rate
// limiting, never platform availability.
func (l *SlidingWindowLimiter) Check(ctx context.Context, key RateKey, limit int, window time.Duration) (bool, Info) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	// Compound member: repeated calls in the same instant must count
	// individually, so the timestamp alone is not a usable member.
	member := fmt.Sprintf("%f:%s", now, uuid.NewString())

	count, err := l.store.WindowTake(ctx, key.String(), now, window, member, l.grace)
	if err != nil {
		storeFailures.Inc()
		l.logger.Warn("rate limit check failed, allowing request",
			zap.String("key", key.String()),
			zap.Error(err))
		return false, Info{
			Limit:     limit,
			Remaining: limit - 1,
			Reset:     int64(now) + int64(window.Seconds()),
			Current:   1,
		}
	}

	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return int(count) >= limit, Info{
		Limit:     limit,
		Remaining: remaining,
		Reset:     int64(now) + int64(window.Seconds()),
		Current:   int(count) + 1,
	}
}
