package security

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/admission"
	"github.com/dropforge/dropforge/internal/storage"
)

// Config holds monitor caps, retention and detector thresholds.
type Config struct {
	RecentCap  int
	PerIPCap   int
	PerUserCap int
	Retention  time.Duration

	BruteForceThreshold int
	BruteForceWindow    time.Duration
	AbuseThreshold      int
	AbuseWindow         time.Duration
}

func (c *Config) applyDefaults() {
	if c.RecentCap <= 0 {
		c.RecentCap = 1000
	}
	if c.PerIPCap <= 0 {
		c.PerIPCap = 500
	}
	if c.PerUserCap <= 0 {
		c.PerUserCap = 200
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.BruteForceThreshold <= 0 {
		c.BruteForceThreshold = 5
	}
	if c.BruteForceWindow <= 0 {
		c.BruteForceWindow = 10 * time.Minute
	}
	if c.AbuseThreshold <= 0 {
		c.AbuseThreshold = 10
	}
	if c.AbuseWindow <= 0 {
		c.AbuseWindow = time.Hour
	}
}

// Monitor ingests security events, persists them in three bounded views
// (global recent, per IP, per user) plus hourly counters, and runs pattern
// detection synchronously on every recorded event. It is a pure observer:
// it never blocks or unblocks anything itself.
type Monitor struct {
	store  storage.Store
	cfg    Config
	logger *zap.Logger
}

// NewMonitor creates a security event monitor.
func NewMonitor(store storage.Store, cfg Config, logger *zap.Logger) *Monitor {
	cfg.applyDefaults()
	return &Monitor{store: store, cfg: cfg, logger: logger}
}

// Record persists an event and runs pattern detection before returning, so a
// caller observing the Nth raw event can rely on any escalation already
// being visible. Store failures degrade to log-only: recording must never
// fail a request.
func (m *Monitor) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Severity == "" {
		e.Severity = baseSeverity[e.Type]
	}

	m.log(e)

	raw, err := e.encode()
	if err != nil {
		m.logger.Warn("dropping unserializable security event",
			zap.String("event_type", string(e.Type)), zap.Error(err))
		return
	}

	if err := m.store.ListPushTrim(ctx, storage.RecentEventsKey(), string(raw), int64(m.cfg.RecentCap), 0); err != nil {
		m.logger.Warn("failed to store security event", zap.Error(err))
	}
	if err := m.store.ListPushTrim(ctx, storage.IPEventsKey(e.IP), string(raw), int64(m.cfg.PerIPCap), m.cfg.Retention); err != nil {
		m.logger.Warn("failed to store per-IP security event", zap.Error(err))
	}
	if e.UserID != "" {
		if err := m.store.ListPushTrim(ctx, storage.UserEventsKey(e.UserID), string(raw), int64(m.cfg.PerUserCap), m.cfg.Retention); err != nil {
			m.logger.Warn("failed to store per-user security event", zap.Error(err))
		}
	}
	if _, err := m.store.Increment(ctx, storage.EventCounterKey(string(e.Type), e.Timestamp), m.cfg.Retention); err != nil {
		m.logger.Warn("failed to increment security counter", zap.Error(err))
	}

	m.analyze(ctx, e)
}

func (m *Monitor) log(e Event) {
	fields := []zap.Field{
		zap.String("event_type", string(e.Type)),
		zap.String("ip", e.IP),
		zap.String("severity", string(e.Severity)),
	}
	if e.Username != "" {
		fields = append(fields, zap.String("username", e.Username))
	}
	if e.Endpoint != "" {
		fields = append(fields, zap.String("endpoint", e.Endpoint))
	}
	switch e.Severity {
	case SeverityCritical, SeverityHigh:
		m.logger.Error("security event", fields...)
	case SeverityMedium:
		m.logger.Warn("security event", fields...)
	default:
		m.logger.Info("security event", fields...)
	}
}

// Recent returns up to limit events from the global recent list, newest
// first.
func (m *Monitor) Recent(ctx context.Context, limit int) ([]Event, error) {
	return m.readList(ctx, storage.RecentEventsKey(), limit)
}

// ForIP returns up to limit events recorded against one IP, newest first.
func (m *Monitor) ForIP(ctx context.Context, ip string, limit int) ([]Event, error) {
	return m.readList(ctx, storage.IPEventsKey(ip), limit)
}

// ForUser returns up to limit events recorded against one user, newest
// first.
func (m *Monitor) ForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	return m.readList(ctx, storage.UserEventsKey(userID), limit)
}

func (m *Monitor) readList(ctx context.Context, key string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := m.store.ListRange(ctx, key, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeEvent(raw)
		if err != nil {
			m.logger.Warn("dropping malformed security event", zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Stats returns the current hour's counter per event type plus the recent
// list length. Counters are maintained incrementally on record, so this is
// O(event types), not a keyspace scan.
func (m *Monitor) Stats(ctx context.Context) (map[string]int64, error) {
	now := time.Now()
	stats := make(map[string]int64, len(EventTypes)+1)
	for _, t := range EventTypes {
		n, err := m.store.GetInt(ctx, storage.EventCounterKey(string(t), now))
		if err != nil {
			return nil, err
		}
		stats[string(t)] = n
	}
	total, err := m.store.ListLen(ctx, storage.RecentEventsKey())
	if err != nil {
		return nil, err
	}
	stats["total_recent_events"] = total
	return stats, nil
}

// Clear removes events matching the given filters from the global and
// per-IP views and returns how many entries left the global list. With no
// filters everything goes, hourly counters and per-user views included. This
// is the only bulk-deletion path in the system.
func (m *Monitor) Clear(ctx context.Context, eventType EventType, olderThanHours int) (int, error) {
	if eventType == "" && olderThanHours <= 0 {
		return m.clearAll(ctx)
	}

	var cutoff time.Time
	if olderThanHours > 0 {
		cutoff = time.Now().Add(-time.Duration(olderThanHours) * time.Hour)
	}
	matches := func(e Event) bool {
		if eventType != "" && e.Type != eventType {
			return false
		}
		if olderThanHours > 0 && !e.Timestamp.Before(cutoff) {
			return false
		}
		return true
	}

	cleared, err := m.filterList(ctx, storage.RecentEventsKey(), 0, matches)
	if err != nil {
		return 0, err
	}

	ipKeys, err := m.store.ScanKeys(ctx, storage.IPEventsKey("*"))
	if err != nil {
		return cleared, err
	}
	for _, key := range ipKeys {
		if _, err := m.filterList(ctx, key, m.cfg.Retention, matches); err != nil {
			return cleared, err
		}
	}
	return cleared, nil
}

func (m *Monitor) clearAll(ctx context.Context) (int, error) {
	total, err := m.store.ListLen(ctx, storage.RecentEventsKey())
	if err != nil {
		return 0, err
	}
	keys := []string{storage.RecentEventsKey()}
	for _, pattern := range []string{storage.IPEventsKey("*"), storage.UserEventsKey("*"), storage.EventCounterPattern()} {
		found, err := m.store.ScanKeys(ctx, pattern)
		if err != nil {
			return 0, err
		}
		keys = append(keys, found...)
	}
	if _, err := m.store.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return int(total), nil
}

// filterList rewrites one event list without the entries matching the
// predicate, returning how many were dropped.
func (m *Monitor) filterList(ctx context.Context, key string, ttl time.Duration, matches func(Event) bool) (int, error) {
	raws, err := m.store.ListRange(ctx, key, 0, -1)
	if err != nil {
		return 0, err
	}
	kept := make([]string, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		e, err := decodeEvent(raw)
		if err != nil {
			dropped++
			continue
		}
		if matches(e) {
			dropped++
			continue
		}
		kept = append(kept, raw)
	}
	if dropped == 0 {
		return 0, nil
	}
	return dropped, m.store.ListReplace(ctx, key, kept, ttl)
}

// Delete removes one event by ID from the global and per-IP views,
// reporting whether it was found.
func (m *Monitor) Delete(ctx context.Context, eventID string) (bool, error) {
	raws, err := m.store.ListRange(ctx, storage.RecentEventsKey(), 0, -1)
	if err != nil {
		return false, err
	}
	for _, raw := range raws {
		e, err := decodeEvent(raw)
		if err != nil || e.ID != eventID {
			continue
		}
		if _, err := m.store.ListRemove(ctx, storage.RecentEventsKey(), raw); err != nil {
			return false, err
		}
		if _, err := m.store.ListRemove(ctx, storage.IPEventsKey(e.IP), raw); err != nil {
			m.logger.Warn("failed to remove event from per-IP view",
				zap.String("event_id", eventID), zap.Error(err))
		}
		return true, nil
	}
	return false, nil
}

// RecordFailedLogin records a failed login attempt reported by the
// authentication collaborator. A later successful login resets nothing.
func (m *Monitor) RecordFailedLogin(ctx context.Context, ip, username, userAgent string) {
	m.Record(ctx, Event{
		Type:      EventFailedLogin,
		IP:        ip,
		Username:  username,
		Details:   map[string]interface{}{"attempted_username": username},
		UserAgent: userAgent,
		Endpoint:  "/api/v1/auth/login",
		Method:    "POST",
	})
}

// RecordRateLimitExceeded records a limit violation. Violations on
// auth-category endpoints are high severity, elsewhere medium.
func (m *Monitor) RecordRateLimitExceeded(ctx context.Context, ip, endpoint, limitType string) {
	severity := SeverityMedium
	if admission.CategoryFromPath(endpoint) == admission.CategoryAuth {
		severity = SeverityHigh
	}
	m.Record(ctx, Event{
		Type:     EventRateLimitExceeded,
		IP:       ip,
		Severity: severity,
		Details:  map[string]interface{}{"endpoint": endpoint, "limit_type": limitType},
		Endpoint: endpoint,
	})
}

// RecordIPBlocked records a block, automatic or operator-issued.
func (m *Monitor) RecordIPBlocked(ctx context.Context, ip, reason string) {
	m.Record(ctx, Event{
		Type:    EventIPBlocked,
		IP:      ip,
		Details: map[string]interface{}{"reason": reason},
	})
}

// RecordIPUnblocked records an operator unblock.
func (m *Monitor) RecordIPUnblocked(ctx context.Context, ip, actor string) {
	m.Record(ctx, Event{
		Type:    EventIPUnblocked,
		IP:      ip,
		Details: map[string]interface{}{"unblocked_by": actor},
	})
}

// RecordUnauthorizedAccess records a rejected privileged request.
func (m *Monitor) RecordUnauthorizedAccess(ctx context.Context, ip, endpoint, method string) {
	m.Record(ctx, Event{
		Type:     EventUnauthorizedAccess,
		IP:       ip,
		Endpoint: endpoint,
		Method:   method,
	})
}

// RecordAdminAction records a management-interface mutation for audit.
func (m *Monitor) RecordAdminAction(ctx context.Context, adminID, adminUsername, action, target, ip string) {
	m.Record(ctx, Event{
		Type:     EventAdminAction,
		IP:       ip,
		UserID:   adminID,
		Username: adminUsername,
		Details:  map[string]interface{}{"action": action, "target": target},
	})
}
