package db

// mockDBTX, mockRow, and valueRows are defined in db_test.go and reused here.

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/types"
)

func userTuple(id, email string, role types.UserRole, status types.UserStatus) []any {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []any{id, email, "Ada Byron", "$2a$12$hash", role, status, now, nil, nil}
}

func TestUserRepository_Create(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	repo := NewUserRepository(dbMock)
	err := repo.Create(context.Background(), &types.User{
		ID:           "user_1",
		Email:        "ada@example.com",
		Name:         "Ada Byron",
		PasswordHash: "$2a$12$hash",
		Role:         types.RoleCustomer,
		Status:       types.UserActive,
	})

	require.NoError(t, err)
	dbMock.AssertExpectations(t)
}

func TestUserRepository_Create_EmailTaken(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	repo := NewUserRepository(dbMock)
	err := repo.Create(context.Background(), &types.User{ID: "user_1", Email: "ada@example.com"})

	requireAppCode(t, err, types.ErrCodeConflictEmail)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"Ada@Example.com"}).
		Return(valueRow(userTuple("user_1", "ada@example.com", types.RoleCustomer, types.UserActive)...))

	repo := NewUserRepository(dbMock)
	u, err := repo.GetByEmail(context.Background(), "Ada@Example.com")

	require.NoError(t, err)
	assert.Equal(t, "user_1", u.ID)
	assert.Equal(t, "Ada Byron", u.Name)
	assert.Equal(t, types.RoleCustomer, u.Role)
	assert.Equal(t, types.UserActive, u.Status)
	assert.Nil(t, u.LastLoginAt)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	repo := NewUserRepository(dbMock)
	_, err := repo.GetByID(context.Background(), "user_gone")

	requireAppCode(t, err, types.ErrCodeNotFoundUser)
}

func TestUserRepository_List_FiltersByRole(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{types.RoleAdmin}).
		Return(valueRow(1))
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{types.RoleAdmin, 20, 0}).
		Return(newValueRows(userTuple("user_9", "ops@fruitbox.io", types.RoleAdmin, types.UserActive)), nil)

	repo := NewUserRepository(dbMock)
	users, total, err := repo.List(context.Background(), UserFilter{Role: types.RoleAdmin, Limit: 20})

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, types.RoleAdmin, users[0].Role)
	dbMock.AssertExpectations(t)
}

func TestUserRepository_UpdateStatus(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{types.UserDeactivated, "user_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	repo := NewUserRepository(dbMock)
	require.NoError(t, repo.UpdateStatus(context.Background(), "user_1", types.UserDeactivated))
	dbMock.AssertExpectations(t)
}

func TestUserRepository_UpdatePassword_NotFound(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	repo := NewUserRepository(dbMock)
	err := repo.UpdatePassword(context.Background(), "user_gone", "$2a$12$newhash")

	requireAppCode(t, err, types.ErrCodeNotFoundUser)
}

func TestUserRepository_Delete(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	repo := NewUserRepository(dbMock)
	require.NoError(t, repo.Delete(context.Background(), "user_1"))

	sql := dbMock.Calls[0].Arguments.String(1)
	assert.Contains(t, sql, "deleted_at = NOW()")
}
