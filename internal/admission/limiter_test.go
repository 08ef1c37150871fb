package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/admission"
	"github.com/dropforge/dropforge/internal/storage"
)

// failingStore simulates a store outage. Only the methods the limiter and
// registry reach are overridden; everything else panics via the nil embed.
type failingStore struct {
	storage.Store
}

var errStoreDown = errors.New("store unavailable")

func (failingStore) WindowTake(context.Context, string, float64, time.Duration, string, time.Duration) (int64, error) {
	return 0, errStoreDown
}

func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, errStoreDown
}

func (failingStore) SetIsMember(context.Context, string, string) (bool, error) {
	return false, errStoreDown
}

func newLimiter(store storage.Store) *admission.SlidingWindowLimiter {
	return admission.NewSlidingWindowLimiter(store, time.Minute, zap.NewNop())
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	limiter := newLimiter(storage.NewMemoryStore())
	ctx := context.Background()
	key := admission.RateKey{Category: admission.CategoryAPI, Subject: "1.2.3.4", Window: admission.WindowShort}

	for i := 1; i <= 3; i++ {
		over, info := limiter.Check(ctx, key, 3, time.Minute)
		assert.False(t, over, "request %d should be allowed", i)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, i, info.Current)
		assert.Equal(t, 3-i, info.Remaining)
	}

	over, info := limiter.Check(ctx, key, 3, time.Minute)
	assert.True(t, over)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, 4, info.Current)
}

func TestCheckIsolatesKeys(t *testing.T) {
	limiter := newLimiter(storage.NewMemoryStore())
	ctx := context.Background()

	keyA := admission.RateKey{Category: admission.CategoryAPI, Subject: "1.1.1.1", Window: admission.WindowShort}
	keyB := admission.RateKey{Category: admission.CategoryAPI, Subject: "2.2.2.2", Window: admission.WindowShort}
	keyC := admission.RateKey{Category: admission.CategoryAuth, Subject: "1.1.1.1", Window: admission.WindowShort}

	over, _ := limiter.Check(ctx, keyA, 1, time.Minute)
	assert.False(t, over)
	over, _ = limiter.Check(ctx, keyA, 1, time.Minute)
	assert.True(t, over)

	// Other subjects and categories are unaffected.
	over, _ = limiter.Check(ctx, keyB, 1, time.Minute)
	assert.False(t, over)
	over, _ = limiter.Check(ctx, keyC, 1, time.Minute)
	assert.False(t, over)
}

func TestCheckWindowSlides(t *testing.T) {
	limiter := newLimiter(storage.NewMemoryStore())
	ctx := context.Background()
	key := admission.RateKey{Category: admission.CategoryAPI, Subject: "1.2.3.4", Window: admission.WindowShort}
	window := 200 * time.Millisecond

	over, _ := limiter.Check(ctx, key, 1, window)
	assert.False(t, over)
	over, _ = limiter.Check(ctx, key, 1, window)
	assert.True(t, over)

	time.Sleep(250 * time.Millisecond)

	over, info := limiter.Check(ctx, key, 1, window)
	assert.False(t, over)
	assert.Equal(t, 1, info.Current)
}

func TestCheckFailsOpenOnStoreError(t *testing.T) {
	limiter := newLimiter(failingStore{})
	ctx := context.Background()
	key := admission.RateKey{Category: admission.CategoryAuth, Subject: "1.2.3.4", Window: admission.WindowShort}

	over, info := limiter.Check(ctx, key, 5, time.Minute)
	assert.False(t, over)
	assert.Equal(t, 5, info.Limit)
	assert.Equal(t, 4, info.Remaining)
	assert.Equal(t, 1, info.Current)
}
