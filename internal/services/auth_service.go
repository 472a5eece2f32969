package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/ratelimit"
	"github.com/meridianinvest/platform/pkg/security"
)

// UserStore defines the account persistence operations auth needs
type UserStore interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthService handles portal account registration and login. Login
// attempts run through the per-session rate limiter keyed by the submitted
// email, and every attempt is fed to the security event pipeline.
type AuthService struct {
	users    UserStore
	tokens   *auth.TokenManager
	limiters *ratelimit.Registry
	security SecurityLogger
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserStore,
	tokens *auth.TokenManager,
	limiters *ratelimit.Registry,
	sec SecurityLogger,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		limiters: limiters,
		security: sec,
		logger:   log,
	}
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// RateLimitedError carries how long the caller must wait before retrying.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error {
	return models.ErrRateLimitExceeded
}

// Register creates a new portal account. Password policy and email format
// are enforced here so every registration path gets the same rules.
func (s *AuthService) Register(ctx context.Context, email, password, name, ipAddress, userAgent string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !security.ValidateEmail(email) {
		return nil, fmt.Errorf("%w: invalid email address", models.ErrBadRequest)
	}

	if result := security.ValidatePassword(password); !result.Valid {
		return nil, fmt.Errorf("%w: %s", models.ErrBadRequest, strings.Join(result.Errors, "; "))
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         security.SanitizeInput(name),
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: an account with this email already exists", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account registered", slog.String("user_id", user.ID.String()))
	return user, nil
}

// Login authenticates a user and issues a session token. The limiter is
// checked before credentials and the attempt is recorded whether or not it
// succeeds, so failed guessing burns through the window.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	limiter := s.limiters.For(email)
	if !limiter.CanProceed(ratelimit.CategoryLogin) {
		retryAfter := limiter.RemainingTime(ratelimit.CategoryLogin)
		s.security.LogEvent(ctx, EventInput{
			EventType: models.EventSuspiciousActivity,
			Severity:  models.SeverityMedium,
			Details: models.EventDetails{
				"reason": "login_rate_limited",
				"email":  email,
			},
			IPAddress: ipAddress,
			UserAgent: userAgent,
		})
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}
	limiter.RecordAttempt(ratelimit.CategoryLogin)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordFailedLogin(ctx, nil, email, ipAddress, userAgent)
			return nil, models.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !security.CheckPassword(password, user.PasswordHash) {
		s.recordFailedLogin(ctx, &user.ID, email, ipAddress, userAgent)
		return nil, models.ErrUnauthorized
	}

	token, err := s.tokens.GenerateSessionToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	userID := user.ID
	s.security.LogEvent(ctx, EventInput{
		UserID:    &userID,
		EventType: models.EventLoginAttempt,
		Severity:  models.SeverityLow,
		Details:   models.EventDetails{"outcome": "success"},
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})

	// A clean login ends the guessing window for this account.
	limiter.Reset(ratelimit.CategoryLogin)

	return &LoginResult{Token: token, User: user}, nil
}

func (s *AuthService) recordFailedLogin(ctx context.Context, userID *uuid.UUID, email, ipAddress, userAgent string) {
	s.security.LogEvent(ctx, EventInput{
		UserID:    userID,
		EventType: models.EventFailedLogin,
		Severity:  models.SeverityMedium,
		Details:   models.EventDetails{"email": email},
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
}
