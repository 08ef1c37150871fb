package admission_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/admission"
	"github.com/dropforge/dropforge/internal/storage"
)

type sinkCall struct {
	kind      string
	ip        string
	endpoint  string
	limitType string
	reason    string
}

// recordingSink captures what the gate reports without acting on it.
type recordingSink struct {
	calls []sinkCall
}

func (s *recordingSink) RecordRateLimitExceeded(_ context.Context, ip, endpoint, limitType string) {
	s.calls = append(s.calls, sinkCall{kind: "rate_limit_exceeded", ip: ip, endpoint: endpoint, limitType: limitType})
}

func (s *recordingSink) RecordIPBlocked(_ context.Context, ip, reason string) {
	s.calls = append(s.calls, sinkCall{kind: "ip_blocked", ip: ip, reason: reason})
}

func setupGate(t *testing.T, cfg admission.GateConfig) (*gin.Engine, *admission.Gate, *recordingSink) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := storage.NewMemoryStore()
	limiter := admission.NewSlidingWindowLimiter(store, time.Minute, logger)
	registry := admission.NewRegistry(store, logger)
	sink := &recordingSink{}
	gate := admission.NewGate(cfg, limiter, registry, sink, logger)

	router := gin.New()
	router.Use(gate.Middleware())
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router, gate, sink
}

func defaultGateConfig() admission.GateConfig {
	return admission.GateConfig{
		Enabled: true,
		Limits: map[admission.Category]admission.Limits{
			admission.CategoryAuth:   {PerMinute: 3, PerHour: 20},
			admission.CategoryAPI:    {PerMinute: 5, PerHour: 100},
			admission.CategoryUpload: {PerMinute: 2, PerHour: 10},
			admission.CategoryAdmin:  {PerMinute: 4, PerHour: 50},
		},
		BlockDuration: 5 * time.Minute,
	}
}

func doRequest(router *gin.Engine, path, ip string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGateDisabledPassesEverything(t *testing.T) {
	cfg := defaultGateConfig()
	cfg.Enabled = false
	router, _, sink := setupGate(t, cfg)

	for i := 0; i < 20; i++ {
		w := doRequest(router, "/api/v1/files", "1.2.3.4")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Empty(t, sink.calls)
}

func TestGateExemptPathsBypassLimits(t *testing.T) {
	router, _, sink := setupGate(t, defaultGateConfig())

	for i := 0; i < 50; i++ {
		w := doRequest(router, "/health", "1.2.3.4")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, sink.calls)
}

func TestGateAllowedRequestGetsBothWindowHeaders(t *testing.T) {
	router, _, _ := setupGate(t, defaultGateConfig())

	w := doRequest(router, "/api/v1/files", "1.2.3.4")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit-Hour"))
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining-Hour"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset-Hour"))
}

func TestGateDeniesOverShortWindowLimit(t *testing.T) {
	router, _, sink := setupGate(t, defaultGateConfig())

	for i := 0; i < 5; i++ {
		w := doRequest(router, "/api/v1/files", "1.2.3.4")
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := doRequest(router, "/api/v1/files", "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "Rate limit exceeded")
	assert.Contains(t, resp["error"], "minute")
	assert.Equal(t, float64(5), resp["limit"])
	assert.Equal(t, float64(0), resp["remaining"])

	assert.Len(t, sink.calls, 1)
	assert.Equal(t, "rate_limit_exceeded", sink.calls[0].kind)
	assert.Equal(t, "1.2.3.4", sink.calls[0].ip)
	assert.Equal(t, "minute", sink.calls[0].limitType)
}

func TestGateIsolatesClients(t *testing.T) {
	router, _, _ := setupGate(t, defaultGateConfig())

	for i := 0; i < 6; i++ {
		doRequest(router, "/api/v1/files", "1.2.3.4")
	}

	w := doRequest(router, "/api/v1/files", "5.6.7.8")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateAuthViolationEscalatesToBlock(t *testing.T) {
	router, gate, sink := setupGate(t, defaultGateConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		w := doRequest(router, "/api/v1/auth/login", "1.2.3.4")
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// The violating request is denied on the limit and triggers the block.
	w := doRequest(router, "/api/v1/auth/login", "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.True(t, gate.Registry().IsBlocked(ctx, "1.2.3.4"))

	assert.Len(t, sink.calls, 2)
	assert.Equal(t, "ip_blocked", sink.calls[0].kind)
	assert.Equal(t, "excessive_auth_attempts", sink.calls[0].reason)
	assert.Equal(t, "rate_limit_exceeded", sink.calls[1].kind)

	// Every request after the escalation is refused on the block itself,
	// category regardless.
	w = doRequest(router, "/api/v1/files", "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "temporarily blocked")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	last := sink.calls[len(sink.calls)-1]
	assert.Equal(t, "rate_limit_exceeded", last.kind)
	assert.Equal(t, "block", last.limitType)
}

func TestGateNonAuthViolationDoesNotBlock(t *testing.T) {
	router, gate, _ := setupGate(t, defaultGateConfig())

	for i := 0; i < 3; i++ {
		doRequest(router, "/api/v1/upload", "1.2.3.4")
	}
	assert.False(t, gate.Registry().IsBlocked(context.Background(), "1.2.3.4"))
}

func TestGateWhitelistedBypassesEverything(t *testing.T) {
	router, gate, sink := setupGate(t, defaultGateConfig())
	ctx := context.Background()

	assert.NoError(t, gate.Registry().Whitelist(ctx, "1.2.3.4"))

	for i := 0; i < 20; i++ {
		w := doRequest(router, "/api/v1/auth/login", "1.2.3.4")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Empty(t, sink.calls)
}

func TestGateWhitelistOverridesBlock(t *testing.T) {
	router, gate, _ := setupGate(t, defaultGateConfig())
	ctx := context.Background()

	assert.NoError(t, gate.Registry().Block(ctx, "1.2.3.4", time.Minute))
	w := doRequest(router, "/api/v1/files", "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	assert.NoError(t, gate.Registry().Whitelist(ctx, "1.2.3.4"))
	w = doRequest(router, "/api/v1/files", "1.2.3.4")
	assert.Equal(t, http.StatusOK, w.Code)
}
