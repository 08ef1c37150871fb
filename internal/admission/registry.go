package admission

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/storage"
)

// BlockedIP describes one active block entry.
type BlockedIP struct {
	IP           string  `json:"ip"`
	TTLRemaining float64 `json:"ttl_remaining"`
}

// Registry maintains temporary block entries and permanent whitelist entries
// in the shared counter store. Blocks expire naturally via TTL; the registry
// only deletes on explicit operator action or as a whitelisting side effect.
type Registry struct {
	store  storage.Store
	logger *zap.Logger
}

// NewRegistry creates a block/whitelist registry.
func NewRegistry(store storage.Store, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// IsBlocked reports whether ip has an active block entry. Store failures
// fail open.
func (r *Registry) IsBlocked(ctx context.Context, ip string) bool {
	blocked, err := r.store.Exists(ctx, storage.BlockKey(ip))
	if err != nil {
		storeFailures.Inc()
		r.logger.Warn("block check failed, treating IP as unblocked",
			zap.String("ip", ip), zap.Error(err))
		return false
	}
	return blocked
}

// IsWhitelisted reports whether ip is whitelisted. Store failures fail open:
// an unreachable store must not revoke trust, but it cannot confirm it
// either, so the caller falls through to the (also failing open) limit
// checks.
func (r *Registry) IsWhitelisted(ctx context.Context, ip string) bool {
	ok, err := r.store.SetIsMember(ctx, storage.WhitelistKey(), ip)
	if err != nil {
		storeFailures.Inc()
		r.logger.Warn("whitelist check failed",
			zap.String("ip", ip), zap.Error(err))
		return false
	}
	return ok
}

// Block denies ip for duration via a TTL-backed existence key.
func (r *Registry) Block(ctx context.Context, ip string, duration time.Duration) error {
	if err := r.store.SetWithTTL(ctx, storage.BlockKey(ip), "blocked", duration); err != nil {
		r.logger.Warn("failed to block IP", zap.String("ip", ip), zap.Error(err))
		return err
	}
	return nil
}

// BlockTTL returns the remaining block duration for ip, or zero when ip is
// not blocked.
func (r *Registry) BlockTTL(ctx context.Context, ip string) time.Duration {
	ttl, err := r.store.TTL(ctx, storage.BlockKey(ip))
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

// Unblock removes ip's block entry and its rate counters. Unblocking a
// never-blocked IP is a successful no-op reporting wasBlocked=false.
func (r *Registry) Unblock(ctx context.Context, ip string) (bool, error) {
	n, err := r.store.Delete(ctx, storage.BlockKey(ip))
	if err != nil {
		return false, err
	}
	if _, err := r.store.Delete(ctx, SubjectKeys(ip)...); err != nil {
		r.logger.Warn("failed to clear rate keys on unblock",
			zap.String("ip", ip), zap.Error(err))
	}
	return n > 0, nil
}

// Whitelist adds ip to the whitelist. Any existing block and rate counters
// are cleared so a newly trusted IP starts clean.
func (r *Registry) Whitelist(ctx context.Context, ip string) error {
	if err := r.store.SetAdd(ctx, storage.WhitelistKey(), ip); err != nil {
		return err
	}
	if _, err := r.Unblock(ctx, ip); err != nil {
		r.logger.Warn("failed to clear block on whitelist",
			zap.String("ip", ip), zap.Error(err))
	}
	return nil
}

// Unwhitelist removes ip from the whitelist, reporting whether it was
// present.
func (r *Registry) Unwhitelist(ctx context.Context, ip string) (bool, error) {
	return r.store.SetRemove(ctx, storage.WhitelistKey(), ip)
}

// ListBlocked returns all active block entries with their remaining TTLs.
// This scans the keyspace and is only for operator use.
func (r *Registry) ListBlocked(ctx context.Context) ([]BlockedIP, error) {
	keys, err := r.store.ScanKeys(ctx, storage.BlockKeyPattern())
	if err != nil {
		return nil, err
	}
	blocked := make([]BlockedIP, 0, len(keys))
	for _, key := range keys {
		ttl, err := r.store.TTL(ctx, key)
		if err != nil || ttl < 0 {
			continue
		}
		blocked = append(blocked, BlockedIP{
			IP:           storage.IPFromBlockKey(key),
			TTLRemaining: ttl.Seconds(),
		})
	}
	return blocked, nil
}

// ListWhitelisted returns all whitelisted IPs.
func (r *Registry) ListWhitelisted(ctx context.Context) ([]string, error) {
	return r.store.SetMembers(ctx, storage.WhitelistKey())
}
