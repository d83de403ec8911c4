package db

// mockDBTX, mockRow, and valueRows are defined in db_test.go and reused here.

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/types"
)

func testSubscription() *types.Subscription {
	return &types.Subscription{
		ID:     "sub_1",
		PlanID: "plan_1",
		UserID: "user_1",
		Customer: types.CustomerDetails{
			Name:    "Ada Byron",
			Email:   "ada@example.com",
			Phone:   "+44 20 7946 0000",
			Address: "1 Analytical Way, London",
		},
		Items: []types.OrderItem{
			{ProductID: "prod_1", Name: "Banana", Quantity: 3, UnitPrice: decimal.RequireFromString("1.20")},
		},
		MonthlyTotal: decimal.RequireFromString("53.50"),
		Status:       types.SubActive,
	}
}

func subscriptionTuple(id string, status types.SubscriptionStatus) []any {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []any{
		id, "plan_1", "user_1", "Ada Byron", "ada@example.com",
		"+44 20 7946 0000", "1 Analytical Way, London", nil,
		"53.50", status, "stripe_sub_1", now, now, nil,
	}
}

func TestSubscriptionRepository_Create(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	repo := NewSubscriptionRepository(dbMock)
	err := repo.Create(context.Background(), testSubscription())

	require.NoError(t, err)
	// Subscription row + 1 item row.
	dbMock.AssertNumberOfCalls(t, "Exec", 2)
}

func TestSubscriptionRepository_GetByID(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"sub_1"}).
		Return(valueRow(subscriptionTuple("sub_1", types.SubActive)...))
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newValueRows([]any{"prod_1", "Banana", 3, "1.20"}), nil)

	repo := NewSubscriptionRepository(dbMock)
	s, err := repo.GetByID(context.Background(), "sub_1")

	require.NoError(t, err)
	assert.Equal(t, types.SubActive, s.Status)
	assert.Equal(t, "user_1", s.UserID)
	assert.Equal(t, "53.50", s.MonthlyTotal.StringFixed(2))
	assert.Equal(t, "stripe_sub_1", s.StripeSubscriptionID)
	require.Len(t, s.Items, 1)
	assert.Equal(t, 3, s.Items[0].Quantity)
}

func TestSubscriptionRepository_GetByID_NotFound(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	repo := NewSubscriptionRepository(dbMock)
	_, err := repo.GetByID(context.Background(), "sub_gone")

	requireAppCode(t, err, types.ErrCodeNotFoundSubscription)
}

func TestSubscriptionRepository_UpdateStatus_CancelStampsTimestamp(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{types.SubCancelled, "sub_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	repo := NewSubscriptionRepository(dbMock)
	require.NoError(t, repo.UpdateStatus(context.Background(), "sub_1", types.SubCancelled))

	sql := dbMock.Calls[0].Arguments.String(1)
	assert.Contains(t, sql, "cancelled_at = NOW()")
}

func TestSubscriptionRepository_UpdateStatus_Pause(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{types.SubPaused, "sub_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	repo := NewSubscriptionRepository(dbMock)
	require.NoError(t, repo.UpdateStatus(context.Background(), "sub_1", types.SubPaused))

	sql := dbMock.Calls[0].Arguments.String(1)
	assert.NotContains(t, sql, "cancelled_at")
}

func TestSubscriptionRepository_UpdateStatus_NotFound(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	repo := NewSubscriptionRepository(dbMock)
	err := repo.UpdateStatus(context.Background(), "sub_gone", types.SubPaused)

	requireAppCode(t, err, types.ErrCodeNotFoundSubscription)
}

func TestSubscriptionRepository_CountActiveByPlan(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"plan_1"}).
		Return(valueRow(4))

	repo := NewSubscriptionRepository(dbMock)
	count, err := repo.CountActiveByPlan(context.Background(), "plan_1")

	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
