package admission

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventSink receives security-relevant admission outcomes. The gate reports
// to the sink but never asks it for decisions: the monitor observes and
// alerts, the gate remains the sole source of allow/deny truth.
type EventSink interface {
	RecordRateLimitExceeded(ctx context.Context, ip, endpoint, limitType string)
	RecordIPBlocked(ctx context.Context, ip, reason string)
}

// Limits is the request budget for one category over both windows.
type Limits struct {
	PerMinute int
	PerHour   int
}

// GateConfig configures the admission gate.
type GateConfig struct {
	Enabled       bool
	Limits        map[Category]Limits
	BlockDuration time.Duration
}

// Gate is the per-request decision point. Every inbound request passes
// through its middleware; whitelist and block checks happen before limit
// checks, and all denials are reported to the event sink after the response
// is committed.
type Gate struct {
	cfg      GateConfig
	limiter  *SlidingWindowLimiter
	registry *Registry
	events   EventSink
	logger   *zap.Logger
}

// Health-check and documentation paths bypass admission entirely: liveness
// probes must not be affected by abuse on other paths, and probe traffic
// must not pollute the counters.
var exemptPaths = map[string]struct{}{
	"/health":       {},
	"/metrics":      {},
	"/docs":         {},
	"/redoc":        {},
	"/openapi.json": {},
}

// NewGate creates the admission gate.
func NewGate(cfg GateConfig, limiter *SlidingWindowLimiter, registry *Registry, events EventSink, logger *zap.Logger) *Gate {
	return &Gate{
		cfg:      cfg,
		limiter:  limiter,
		registry: registry,
		events:   events,
		logger:   logger,
	}
}

// Registry exposes the gate's registry for the management interface.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// Middleware returns the gin middleware implementing the admission state
// machine: classify, check whitelist, check block, check both windows, then
// allow or deny.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.cfg.Enabled {
			c.Next()
			return
		}
		if _, exempt := exemptPaths[c.Request.URL.Path]; exempt {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		category := CategoryFromPath(c.Request.URL.Path)
		ip := ClientIP(c.Request)

		start := time.Now()
		defer func() {
			admissionDuration.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())
		}()

		// Whitelisted subjects skip every further check and get no advisory
		// headers.
		if g.registry.IsWhitelisted(ctx, ip) {
			admissionDecisions.WithLabelValues(string(category), "allowed", "whitelisted").Inc()
			c.Next()
			return
		}

		if g.registry.IsBlocked(ctx, ip) {
			retryAfter := int(g.registry.BlockTTL(ctx, ip).Seconds())
			if retryAfter <= 0 {
				retryAfter = int(g.cfg.BlockDuration.Seconds())
			}
			admissionDecisions.WithLabelValues(string(category), "denied", "blocked").Inc()
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "IP address is temporarily blocked due to suspicious activity",
				"retry_after": retryAfter,
			})
			g.events.RecordRateLimitExceeded(ctx, ip, c.Request.URL.Path, "block")
			return
		}

		limits := g.cfg.Limits[category]
		overShort, shortInfo := g.limiter.Check(ctx,
			RateKey{Category: category, Subject: ip, Window: WindowShort},
			limits.PerMinute, WindowShort.Duration())
		overLong, longInfo := g.limiter.Check(ctx,
			RateKey{Category: category, Subject: ip, Window: WindowLong},
			limits.PerHour, WindowLong.Duration())

		if overShort || overLong {
			g.deny(c, category, ip, overShort, shortInfo, longInfo)
			return
		}

		admissionDecisions.WithLabelValues(string(category), "allowed", "under_limit").Inc()
		writeRateHeaders(c, shortInfo, longInfo)
		c.Next()
	}
}

// deny short-circuits the request with a structured 429. The more
// restrictive of the two window results drives the advisory headers; a short-window
// violation on an auth endpoint additionally escalates to a temporary block.
func (g *Gate) deny(c *gin.Context, category Category, ip string, overShort bool, shortInfo, longInfo Info) {
	ctx := c.Request.Context()

	violated := longInfo
	limitType := "hour"
	if overShort {
		violated = shortInfo
		limitType = "minute"
	}

	// Repeated short-window offenders on auth endpoints get denied outright
	// for the block duration, not just rate-limited.
	if overShort && category == CategoryAuth {
		if err := g.registry.Block(ctx, ip, g.cfg.BlockDuration); err == nil {
			g.logger.Warn("IP blocked due to excessive authentication attempts",
				zap.String("ip", ip))
			g.events.RecordIPBlocked(ctx, ip, "excessive_auth_attempts")
		}
	}

	admissionDecisions.WithLabelValues(string(category), "denied", "rate_limited").Inc()

	retryAfter := violated.Reset - time.Now().Unix()
	if retryAfter < 0 {
		retryAfter = 0
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(violated.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(violated.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(violated.Reset, 10))
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": fmt.Sprintf("Rate limit exceeded: %d/%d requests per %s",
			violated.Current, violated.Limit, limitType),
		"limit":       violated.Limit,
		"remaining":   violated.Remaining,
		"reset":       violated.Reset,
		"retry_after": retryAfter,
	})
	g.events.RecordRateLimitExceeded(ctx, ip, c.Request.URL.Path, limitType)
}

// writeRateHeaders attaches both windows' advisory state: the standard
// X-RateLimit triple reflects the short window, the -Hour variants the long
// one.
func writeRateHeaders(c *gin.Context, shortInfo, longInfo Info) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(shortInfo.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(shortInfo.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(shortInfo.Reset, 10))
	c.Header("X-RateLimit-Limit-Hour", strconv.Itoa(longInfo.Limit))
	c.Header("X-RateLimit-Remaining-Hour", strconv.Itoa(longInfo.Remaining))
	c.Header("X-RateLimit-Reset-Hour", strconv.FormatInt(longInfo.Reset, 10))
}
