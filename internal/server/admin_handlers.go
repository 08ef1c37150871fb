package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/admission"
	"github.com/dropforge/dropforge/internal/security"
)

func (s *Server) listBlocked(c *gin.Context) {
	blocked, err := s.registry.ListBlocked(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list blocked IPs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked_ips": blocked, "count": len(blocked)})
}

type blockRequest struct {
	IP              string `json:"ip" binding:"required"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (s *Server) blockIP(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	duration := s.blockDuration
	if req.DurationSeconds > 0 {
		duration = time.Duration(req.DurationSeconds) * time.Second
	}

	ctx := c.Request.Context()
	if err := s.registry.Block(ctx, req.IP, duration); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to block IP"})
		return
	}

	adminID, adminName := s.adminActor(c)
	s.monitor.RecordIPBlocked(ctx, req.IP, "manual_block")
	s.monitor.RecordAdminAction(ctx, adminID, adminName, "block_ip", req.IP, admission.ClientIP(c.Request))
	s.logger.Info("admin blocked IP",
		zap.String("ip", req.IP), zap.String("admin", adminName))
	c.JSON(http.StatusOK, gin.H{
		"message":          "IP blocked",
		"ip":               req.IP,
		"duration_seconds": int(duration.Seconds()),
	})
}

func (s *Server) unblockIP(c *gin.Context) {
	ip := c.Param("ip")
	ctx := c.Request.Context()

	wasBlocked, err := s.registry.Unblock(ctx, ip)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unblock IP"})
		return
	}

	adminID, adminName := s.adminActor(c)
	if wasBlocked {
		s.monitor.RecordIPUnblocked(ctx, ip, adminName)
	}
	s.monitor.RecordAdminAction(ctx, adminID, adminName, "unblock_ip", ip, admission.ClientIP(c.Request))
	c.JSON(http.StatusOK, gin.H{"ip": ip, "was_blocked": wasBlocked})
}

func (s *Server) listWhitelist(c *gin.Context) {
	ips, err := s.registry.ListWhitelisted(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list whitelist"})
		return
	}
	if ips == nil {
		ips = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"whitelisted_ips": ips})
}

type whitelistRequest struct {
	IP     string `json:"ip" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) addWhitelist(c *gin.Context) {
	var req whitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := s.registry.Whitelist(ctx, req.IP); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to whitelist IP"})
		return
	}
	adminID, adminName := s.adminActor(c)
	s.monitor.RecordAdminAction(ctx, adminID, adminName, "whitelist_ip", req.IP, admission.ClientIP(c.Request))
	s.logger.Info("admin whitelisted IP",
		zap.String("ip", req.IP),
		zap.String("admin", adminName),
		zap.String("reason", req.Reason))
	c.JSON(http.StatusOK, gin.H{"message": "IP whitelisted", "ip": req.IP})
}

func (s *Server) removeWhitelist(c *gin.Context) {
	ip := c.Param("ip")
	ctx := c.Request.Context()

	wasPresent, err := s.registry.Unwhitelist(ctx, ip)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove from whitelist"})
		return
	}
	adminID, adminName := s.adminActor(c)
	s.monitor.RecordAdminAction(ctx, adminID, adminName, "unwhitelist_ip", ip, admission.ClientIP(c.Request))
	c.JSON(http.StatusOK, gin.H{"ip": ip, "was_whitelisted": wasPresent})
}

func (s *Server) recentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := s.monitor.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve events"})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) eventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, security.EventTypes)
}

func (s *Server) securityStats(c *gin.Context) {
	stats, err := s.monitor.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) eventsForIP(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := s.monitor.ForIP(c.Request.Context(), c.Param("ip"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve events"})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) eventsForUser(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := s.monitor.ForUser(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve events"})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) clearEvents(c *gin.Context) {
	eventType := security.EventType(c.Query("event_type"))
	olderThan, _ := strconv.Atoi(c.Query("older_than_hours"))

	ctx := c.Request.Context()
	cleared, err := s.monitor.Clear(ctx, eventType, olderThan)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear events"})
		return
	}
	adminID, adminName := s.adminActor(c)
	s.monitor.RecordAdminAction(ctx, adminID, adminName, "clear_security_events",
		string(eventType), admission.ClientIP(c.Request))
	c.JSON(http.StatusOK, gin.H{"cleared_count": cleared})
}

func (s *Server) deleteEvent(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	deleted, err := s.monitor.Delete(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete event"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	adminID, adminName := s.adminActor(c)
	s.monitor.RecordAdminAction(ctx, adminID, adminName, "delete_security_event", id, admission.ClientIP(c.Request))
	c.JSON(http.StatusOK, gin.H{"deleted": true, "event_id": id})
}
