package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"fruitbox/internal/types"
)

// UserRepo defines the data access methods needed by the auth Service.
type UserRepo interface {
	Create(ctx context.Context, user *types.User) error
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	UpdatePassword(ctx context.Context, userID string, newHash string) error
	UpdateLastLogin(ctx context.Context, userID string) error
}

// Service implements registration, login, logout, and password change.
type Service struct {
	users    UserRepo
	sessions *SessionService
	throttle *LoginThrottle
	hasher   PasswordHasher
	logger   *slog.Logger
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Users    UserRepo
	Sessions *SessionService
	Throttle *LoginThrottle
	Hasher   PasswordHasher
	Logger   *slog.Logger
}

// NewService creates a new auth Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    cfg.Users,
		sessions: cfg.Sessions,
		throttle: cfg.Throttle,
		hasher:   cfg.Hasher,
		logger:   logger,
	}
}

// Register creates a customer account and logs it in immediately.
func (s *Service) Register(ctx context.Context, email, name, password, ip, userAgent string) (*types.User, *types.Session, error) {
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{
		ID:           "user_" + uuid.NewString(),
		Email:        CanonicalizeEmail(email),
		Name:         name,
		PasswordHash: passwordHash,
		Role:         types.RoleCustomer,
		Status:       types.UserActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.Create(ctx, user, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, session, nil
}

// Login verifies credentials and creates a session.
//
// Failed-attempt bookkeeping happens regardless of the failure mode, and
// user-not-found is masked as invalid credentials so the endpoint cannot be
// used to enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, error) {
	if s.throttle.IsLocked(ctx, email) || s.throttle.IsIPBlocked(ctx, ip) {
		return nil, nil, types.NewAppError(types.ErrCodeAuthLocked, "too many failed attempts, try again later", nil)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			_ = s.throttle.RecordAttempt(ctx, email, ip, false, "user_not_found")
			return nil, nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		_ = s.throttle.RecordAttempt(ctx, email, ip, false, "invalid_credentials")
		return nil, nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	if user.Status != types.UserActive {
		_ = s.throttle.RecordAttempt(ctx, email, ip, false, "account_not_active")
		return nil, nil, types.NewAppError(types.ErrCodeAuthAccountNotActive, "account is deactivated", nil)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		// Not worth failing the login over.
		s.logger.Warn("failed to stamp last login", "user_id", user.ID, "error", err)
	}

	session, err := s.sessions.Create(ctx, user, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}

	_ = s.throttle.RecordAttempt(ctx, email, ip, true, "")
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, session, nil
}

// Logout invalidates the session behind the cookie.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Invalidate(ctx, sessionID)
}

// ChangePassword verifies the current password, stores a new hash, and
// revokes every other session for the user.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return types.NewAppError(types.ErrCodeAuthInvalidCreds, "current password is incorrect", nil)
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}

	if err := s.sessions.InvalidateAllForUser(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke sessions after password change", "user_id", userID, "error", err)
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}
