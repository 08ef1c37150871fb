// Package identity is the authentication collaborator of the admission
// core: user accounts, login, and failed-login reporting to the security
// monitor.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned for any authentication failure. The
// cause (unknown user vs bad password) is deliberately not distinguished to
// the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is the account record.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex" json:"email"`
	Username     string    `gorm:"uniqueIndex" json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// FailedLoginSink receives failed login attempts. Implemented by the
// security monitor; a successful login never resets what was reported.
type FailedLoginSink interface {
	RecordFailedLogin(ctx context.Context, ip, username, userAgent string)
}

// Service implements user identity operations.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	events    FailedLoginSink
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService creates the identity service and migrates its schema.
func NewService(logger *zap.Logger, db *gorm.DB, events FailedLoginSink, jwtSecret string, tokenTTL time.Duration) (*Service, error) {
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate user schema: %w", err)
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		logger:    logger,
		db:        db,
		events:    events,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}, nil
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("email = ? OR username = ?", req.Email, req.Username).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing users: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("email or username already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           uuid.New(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hashed),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login authenticates a user. Failures are reported to the security monitor
// before returning; ip and userAgent come from the originating request.
func (s *Service) Login(ctx context.Context, req *LoginRequest, ip, userAgent string) (*LoginResponse, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("email = ? OR username = ?", req.Login, req.Login).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.reportFailure(ctx, ip, req.Login, userAgent)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.reportFailure(ctx, ip, req.Login, userAgent)
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &LoginResponse{User: &user, Token: token}, nil
}

func (s *Service) reportFailure(ctx context.Context, ip, username, userAgent string) {
	if s.events != nil {
		s.events.RecordFailedLogin(ctx, ip, username, userAgent)
	}
}

// ValidateToken parses a bearer token and returns the user ID it carries.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return sub, nil
}

// GetUser loads a user by ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	return &user, nil
}

// IsAdmin reports whether the user holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

func (s *Service) generateToken(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	})
	return token.SignedString(s.jwtSecret)
}
