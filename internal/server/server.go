// Package server wires the HTTP surface: public health/metrics endpoints,
// the auth collaborator routes, and the operator management interface over
// the registry and security monitor.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/admission"
	"github.com/dropforge/dropforge/internal/identity"
	"github.com/dropforge/dropforge/internal/security"
)

// Server is the API server.
type Server struct {
	router        *gin.Engine
	logger        *zap.Logger
	identity      *identity.Service
	registry      *admission.Registry
	monitor       *security.Monitor
	blockDuration time.Duration
}

// NewServer builds the router with the admission gate ahead of every route.
func NewServer(
	logger *zap.Logger,
	gate *admission.Gate,
	identitySvc *identity.Service,
	monitor *security.Monitor,
	blockDuration time.Duration,
) *Server {
	s := &Server{
		logger:        logger,
		identity:      identitySvc,
		registry:      gate.Registry(),
		monitor:       monitor,
		blockDuration: blockDuration,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	// Admission runs after logging/recovery so denials are still logged, and
	// before any route handler.
	router.Use(gate.Middleware())

	s.router = router
	s.registerRoutes()
	return s
}

// Router returns the gin engine, for tests and for the HTTP server in main.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
		auth.GET("/me", s.requireAuth(), s.me)
	}

	admin := v1.Group("/admin", s.requireAuth(), s.requireAdmin())
	{
		rl := admin.Group("/rate-limits")
		{
			rl.GET("/blocked", s.listBlocked)
			rl.POST("/block", s.blockIP)
			rl.DELETE("/block/:ip", s.unblockIP)
			rl.GET("/whitelist", s.listWhitelist)
			rl.POST("/whitelist", s.addWhitelist)
			rl.DELETE("/whitelist/:ip", s.removeWhitelist)
		}
		sec := admin.Group("/security")
		{
			sec.GET("/events", s.recentEvents)
			sec.GET("/event-types", s.eventTypes)
			sec.GET("/stats", s.securityStats)
			sec.GET("/ip/:ip", s.eventsForIP)
			sec.GET("/user/:id", s.eventsForUser)
			sec.DELETE("/events", s.clearEvents)
			sec.DELETE("/events/:id", s.deleteEvent)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
