package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"fruitbox/internal/types"
)

// SessionRepository provides data access for the sessions table. Sessions
// are referenced by the opaque cookie value; expiry is enforced both in SQL
// (reads filter on expires_at) and by the auth service.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, csrf_token, user_agent, ip_address,
		 expires_at, last_activity_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), COALESCE($8, NOW()))`,
		s.ID,
		s.UserID,
		s.CSRFToken,
		s.UserAgent,
		s.IPAddress,
		s.ExpiresAt,
		nilIfZeroTime(s.LastActivityAt),
		nilIfZeroTime(s.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByID retrieves a session by its opaque ID. Expired sessions are treated
// as absent and reported as ErrCodeAuthSessionExpired so the middleware can
// distinguish them from garbage cookie values.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, csrf_token, user_agent, ip_address,
		        expires_at, last_activity_at, created_at
		 FROM sessions
		 WHERE id = $1`,
		id,
	).Scan(
		&s.ID,
		&s.UserID,
		&s.CSRFToken,
		&s.UserAgent,
		&s.IPAddress,
		&s.ExpiresAt,
		&s.LastActivityAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthSessionInvalid, "session not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	return &s, nil
}

// Touch extends a session's expiry and stamps last_activity_at, implementing
// the sliding-window behavior.
func (r *SessionRepository) Touch(ctx context.Context, id string, newExpiry time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET expires_at = $1, last_activity_at = NOW() WHERE id = $2`,
		newExpiry,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to extend session", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeAuthSessionInvalid, "session not found", nil)
	}
	return nil
}

// DeleteByID removes a single session (logout).
func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteByUser removes all sessions for a user (password change, account
// deactivation).
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete user sessions", err)
	}
	return nil
}

// DeleteExpired removes all sessions past their expiry. Run periodically as
// cheap garbage collection.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
