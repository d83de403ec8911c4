// Package auth implements account registration, login, and cookie-based
// session management for the FruitBox storefront and back office.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fruitbox/internal/config"
	"fruitbox/internal/types"
)

// SecurityRepo defines the data access methods needed by the login throttle.
type SecurityRepo interface {
	LogAttempt(ctx context.Context, event *types.SecurityEvent) error
	CountRecentFailuresByIdentifier(ctx context.Context, identifier string, since time.Time) (int, error)
	CountRecentFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error)
}

// LoginThrottle blocks repeated failed logins per email and per IP. Counts
// come from the security_events table, so the window survives restarts and
// is shared across instances.
type LoginThrottle struct {
	repo   SecurityRepo
	cfg    config.AuthConfig
	clock  types.Clock
	logger *slog.Logger
}

// NewLoginThrottle creates a LoginThrottle using the lockout thresholds from
// the auth configuration.
func NewLoginThrottle(repo SecurityRepo, cfg config.AuthConfig, clock types.Clock, logger *slog.Logger) *LoginThrottle {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginThrottle{repo: repo, cfg: cfg, clock: clock, logger: logger}
}

// RecordAttempt logs a login attempt, successful or not.
func (t *LoginThrottle) RecordAttempt(ctx context.Context, email, ip string, success bool, reason string) error {
	event := &types.SecurityEvent{
		EventType:     "login",
		Identifier:    CanonicalizeEmail(email),
		IPAddress:     ip,
		AttemptedAt:   t.clock.Now(),
		Success:       success,
		FailureReason: reason,
	}
	if err := t.repo.LogAttempt(ctx, event); err != nil {
		t.logger.Error("failed to record login attempt",
			"identifier", event.Identifier,
			"ip", ip,
			"error", err,
		)
		return err
	}
	return nil
}

// IsLocked reports whether the email has exceeded the configured number of
// failed attempts within the lockout window. Database errors fail open:
// a broken security check must not take the whole login flow down with it.
func (t *LoginThrottle) IsLocked(ctx context.Context, email string) bool {
	since := t.clock.Now().Add(-t.cfg.LoginLockWindow)
	count, err := t.repo.CountRecentFailuresByIdentifier(ctx, CanonicalizeEmail(email), since)
	if err != nil {
		t.logger.Error("failed to check login lockout", "error", err)
		return false
	}
	return count >= t.cfg.LoginMaxFails
}

// IsIPBlocked reports whether an IP has accumulated an abusive number of
// failures across all identifiers. The threshold is 20x the per-account
// limit so shared NATs are not punished for one bad account.
func (t *LoginThrottle) IsIPBlocked(ctx context.Context, ip string) bool {
	since := t.clock.Now().Add(-t.cfg.LoginLockWindow)
	count, err := t.repo.CountRecentFailuresByIP(ctx, ip, since)
	if err != nil {
		t.logger.Error("failed to check IP block", "error", err)
		return false
	}
	return count >= t.cfg.LoginMaxFails*20
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	Compare(hashedPassword, password string) error
	Hash(password string) (string, error)
}

// bcryptHasher is the production PasswordHasher.
type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a PasswordHasher with the given bcrypt cost.
func NewBcryptHasher(cost int) PasswordHasher {
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	GenerateSessionID() (string, error)
	GenerateCSRF() (string, error)
}

// CryptoTokenGenerator is the production TokenGenerator using crypto/rand.
type CryptoTokenGenerator struct{}

// GenerateSessionID generates an opaque session ID for the cookie value.
// Format: "sess_" + 32 random bytes hex encoded.
func (g *CryptoTokenGenerator) GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return "sess_" + hex.EncodeToString(b), nil
}

// GenerateCSRF generates the per-session CSRF token.
func (g *CryptoTokenGenerator) GenerateCSRF() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate CSRF token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CanonicalizeEmail normalizes email addresses for consistent lookups and
// throttle counting.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
