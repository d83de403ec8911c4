package auth

import (
	"context"
	"log/slog"
	"time"

	"fruitbox/internal/config"
	"fruitbox/internal/types"
)

// touchInterval limits how often a resolved session is written back with a
// refreshed expiry. Resolving twice within the interval costs one UPDATE,
// not two.
const touchInterval = 5 * time.Minute

// SessionRepo defines the data access methods needed by the SessionService.
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	GetByID(ctx context.Context, sessionID string) (*types.Session, error)
	Touch(ctx context.Context, sessionID string, newExpiry time.Time) error
	DeleteByID(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionUserRepo is the slice of the user repository the session resolver
// needs: a live lookup so deactivated accounts lose access on their next
// request, not when their cookie expires.
type SessionUserRepo interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// SessionService creates, resolves, and invalidates browser sessions. It
// satisfies the server's session resolver interface, so the auth middleware
// consumes it directly.
type SessionService struct {
	sessions SessionRepo
	users    SessionUserRepo
	tokenGen TokenGenerator
	cfg      config.AuthConfig
	clock    types.Clock
	logger   *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions SessionRepo, users SessionUserRepo, tokenGen TokenGenerator, cfg config.AuthConfig, clock types.Clock, logger *slog.Logger) *SessionService {
	if tokenGen == nil {
		tokenGen = &CryptoTokenGenerator{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		sessions: sessions,
		users:    users,
		tokenGen: tokenGen,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}
}

// Create generates a new session for the user and persists it. The returned
// session's ID is the raw cookie value.
func (s *SessionService) Create(ctx context.Context, user *types.User, ip, userAgent string) (*types.Session, error) {
	sessionID, err := s.tokenGen.GenerateSessionID()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session ID", err)
	}
	csrfToken, err := s.tokenGen.GenerateCSRF()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate CSRF token", err)
	}

	now := s.clock.Now()
	session := &types.Session{
		ID:             sessionID,
		UserID:         user.ID,
		CSRFToken:      csrfToken,
		IPAddress:      ip,
		UserAgent:      userAgent,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastActivityAt: now,
		CreatedAt:      now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session created", "session_id", sessionID, "user_id", user.ID)
	return session, nil
}

// ResolveSession validates a session cookie value and returns the acting
// user plus the session's CSRF token. Expired sessions and deactivated
// accounts are rejected; valid sessions get their expiry slid forward.
func (s *SessionService) ResolveSession(ctx context.Context, sessionID string) (*types.Actor, string, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	now := s.clock.Now()
	if now.After(session.ExpiresAt) {
		return nil, "", types.NewAppError(types.ErrCodeAuthSessionExpired, "session has expired", nil)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		// User deleted out from under the session.
		return nil, "", types.NewAppError(types.ErrCodeAuthSessionInvalid, "session user no longer exists", err)
	}
	if user.Status != types.UserActive {
		return nil, "", types.NewAppError(types.ErrCodeAuthAccountNotActive, "account is deactivated", nil)
	}

	if now.Sub(session.LastActivityAt) > touchInterval {
		if err := s.sessions.Touch(ctx, session.ID, now.Add(s.cfg.SessionTTL)); err != nil {
			// Best effort; the session is still valid until ExpiresAt.
			s.logger.Warn("failed to extend session", "session_id", session.ID, "error", err)
		}
	}

	actor := &types.Actor{
		ID:    user.ID,
		Type:  types.ActorTypeUser,
		Email: user.Email,
		Role:  user.Role,
	}
	return actor, session.CSRFToken, nil
}

// Invalidate deletes a single session (logout).
func (s *SessionService) Invalidate(ctx context.Context, sessionID string) error {
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session invalidated", "session_id", sessionID)
	return nil
}

// InvalidateAllForUser deletes every session for a user. Used on password
// change and account deactivation.
func (s *SessionService) InvalidateAllForUser(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("all sessions invalidated", "user_id", userID)
	return nil
}

// PurgeExpired removes expired session rows. Run from the maintenance
// scheduler.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx)
}
