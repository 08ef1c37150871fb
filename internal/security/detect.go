package security

import (
	"context"
	"time"
)

// analyze runs pattern detection for the event just recorded. Each detector
// reads only the subject IP's own bounded event list filtered to a trailing
// window, so detection cost stays constant regardless of total traffic.
// Synthesized event types are not themselves analyzed, so escalation cannot
// loop.
func (m *Monitor) analyze(ctx context.Context, e Event) {
	switch e.Type {
	case EventFailedLogin:
		m.detectBruteForce(ctx, e.IP)
	case EventRateLimitExceeded:
		m.detectRateLimitAbuse(ctx, e.IP)
	}
}

// detectBruteForce escalates to brute_force_attempt once an IP accumulates
// enough failed logins inside the detection window. It only alerts; blocking
// remains the admission gate's decision.
func (m *Monitor) detectBruteForce(ctx context.Context, ip string) {
	events, err := m.ForIP(ctx, ip, m.cfg.PerIPCap)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-m.cfg.BruteForceWindow)
	count := 0
	lastTarget := ""
	for _, e := range events {
		if e.Type != EventFailedLogin || e.Timestamp.Before(cutoff) {
			continue
		}
		count++
		// Events are newest first, so the first match is the most recently
		// targeted username.
		if lastTarget == "" {
			lastTarget = e.Username
		}
	}
	if count < m.cfg.BruteForceThreshold {
		return
	}
	m.Record(ctx, Event{
		Type:     EventBruteForceAttempt,
		IP:       ip,
		Severity: SeverityCritical,
		Details: map[string]interface{}{
			"failed_attempts": count,
			"time_window":     m.cfg.BruteForceWindow.String(),
			"target_username": lastTarget,
		},
	})
}

// detectRateLimitAbuse escalates sustained limit violations to a
// suspicious_request event.
func (m *Monitor) detectRateLimitAbuse(ctx context.Context, ip string) {
	events, err := m.ForIP(ctx, ip, m.cfg.PerIPCap)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-m.cfg.AbuseWindow)
	count := 0
	for _, e := range events {
		if e.Type == EventRateLimitExceeded && !e.Timestamp.Before(cutoff) {
			count++
		}
	}
	if count < m.cfg.AbuseThreshold {
		return
	}
	m.Record(ctx, Event{
		Type:     EventSuspiciousRequest,
		IP:       ip,
		Severity: SeverityHigh,
		Details: map[string]interface{}{
			"rate_limit_violations": count,
			"time_window":           m.cfg.AbuseWindow.String(),
			"reason":                "excessive_rate_limit_violations",
		},
	})
}
