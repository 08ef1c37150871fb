package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/admission"
	"github.com/dropforge/dropforge/internal/identity"
)

const ctxUserID = "user_id"

func (s *Server) register(c *gin.Context) {
	var req identity.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.identity.Register(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) login(c *gin.Context) {
	var req identity.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.identity.Login(c.Request.Context(), &req,
		admission.ClientIP(c.Request), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) me(c *gin.Context) {
	user, err := s.identity.GetUser(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// requireAuth validates the bearer token and stores the caller's user ID on
// the context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := s.identity.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// requireAdmin gates the management interface. Rejected attempts are
// security events in their own right.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, err := s.identity.IsAdmin(c.Request.Context(), c.GetString(ctxUserID))
		if err != nil || !isAdmin {
			s.monitor.RecordUnauthorizedAccess(c.Request.Context(),
				admission.ClientIP(c.Request), c.Request.URL.Path, c.Request.Method)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
			return
		}
		c.Next()
	}
}

// adminActor resolves the acting admin's identity for audit events.
func (s *Server) adminActor(c *gin.Context) (id, username string) {
	id = c.GetString(ctxUserID)
	if user, err := s.identity.GetUser(c.Request.Context(), id); err == nil {
		username = user.Username
	}
	return id, username
}
