package db

// mockDBTX, mockRow, and valueRows are defined in db_test.go and reused here.

import (
	"context"
	"errors"
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

func testProduct() *types.Product {
	return &types.Product{
		ID:        "prod_1",
		Name:      "Banana",
		Price:     decimal.RequireFromString("1.20"),
		Category:  types.CategoryNormal,
		Available: true,
		Stock:     50,
	}
}

func productTuple(id, name, price string, category types.ProductCategory, stock int) []any {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []any{id, name, nil, price, category, true, stock, nil, now, now, nil}
}

func TestProductRepository_Create(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	repo := NewProductRepository(dbMock)
	err := repo.Create(context.Background(), testProduct())

	require.NoError(t, err)
	dbMock.AssertExpectations(t)

	// Price must be bound as its canonical string form.
	args := dbMock.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, "1.2", args[3])
}

func TestProductRepository_Create_DuplicateName(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	repo := NewProductRepository(dbMock)
	err := repo.Create(context.Background(), testProduct())

	requireAppCode(t, err, types.ErrCodeConflictSlug)
}

func TestProductRepository_Create_DBError(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	repo := NewProductRepository(dbMock)
	err := repo.Create(context.Background(), testProduct())

	requireAppCode(t, err, types.ErrCodeInternalDB)
}

func TestProductRepository_GetByID(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"prod_1"}).
		Return(valueRow(productTuple("prod_1", "Banana", "1.20", types.CategoryNormal, 50)...))

	repo := NewProductRepository(dbMock)
	p, err := repo.GetByID(context.Background(), "prod_1")

	require.NoError(t, err)
	assert.Equal(t, "prod_1", p.ID)
	assert.Equal(t, "Banana", p.Name)
	assert.Equal(t, types.CategoryNormal, p.Category)
	assert.Equal(t, "1.20", p.Price.StringFixed(2))
	assert.Equal(t, 50, p.Stock)
	assert.True(t, p.Available)
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	repo := NewProductRepository(dbMock)
	_, err := repo.GetByID(context.Background(), "prod_missing")

	requireAppCode(t, err, types.ErrCodeNotFoundProduct)
}

func TestProductRepository_GetManyByIDs(t *testing.T) {
	dbMock := &mockDBTX{}
	rows := newValueRows(
		productTuple("prod_1", "Banana", "1.20", types.CategoryNormal, 50),
		productTuple("prod_2", "Dragon Fruit", "4.50", types.CategoryExotic, 8),
	)
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	repo := NewProductRepository(dbMock)
	result, err := repo.GetManyByIDs(context.Background(), []string{"prod_1", "prod_2", "prod_gone"})

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "Banana", result["prod_1"].Name)
	assert.Equal(t, "4.50", result["prod_2"].Price.StringFixed(2))
	assert.NotContains(t, result, "prod_gone")
	assert.True(t, rows.closed)
}

func TestProductRepository_GetManyByIDs_Empty(t *testing.T) {
	dbMock := &mockDBTX{}

	repo := NewProductRepository(dbMock)
	result, err := repo.GetManyByIDs(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, result)
	dbMock.AssertNotCalled(t, "Query")
}

func TestProductRepository_List(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(valueRow(7))
	dbMock.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newValueRows(
			productTuple("prod_1", "Apple", "0.80", types.CategoryNormal, 100),
			productTuple("prod_2", "Banana", "1.20", types.CategoryNormal, 50),
		), nil)

	repo := NewProductRepository(dbMock)
	products, total, err := repo.List(context.Background(), ProductFilter{
		Category:      types.CategoryNormal,
		AvailableOnly: true,
		Limit:         2,
		Offset:        0,
	})

	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, products, 2)
	assert.Equal(t, "Apple", products[0].Name)
	assert.Equal(t, "Banana", products[1].Name)
}

func TestProductRepository_AdjustStock(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{-3, "prod_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	repo := NewProductRepository(dbMock)
	err := repo.AdjustStock(context.Background(), "prod_1", -3)

	require.NoError(t, err)
	dbMock.AssertExpectations(t)
}

func TestProductRepository_AdjustStock_InsufficientStock(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	// The guarded update touched no rows; the repo re-reads to tell
	// out-of-stock apart from a missing product.
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(valueRow(productTuple("prod_1", "Banana", "1.20", types.CategoryNormal, 1)...))

	repo := NewProductRepository(dbMock)
	err := repo.AdjustStock(context.Background(), "prod_1", -5)

	requireAppCode(t, err, types.ErrCodeCheckoutOutOfStock)
}

func TestProductRepository_AdjustStock_ProductGone(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	dbMock.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	repo := NewProductRepository(dbMock)
	err := repo.AdjustStock(context.Background(), "prod_gone", -1)

	requireAppCode(t, err, types.ErrCodeNotFoundProduct)
}

func TestProductRepository_Update_NotFound(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	repo := NewProductRepository(dbMock)
	err := repo.Update(context.Background(), testProduct())

	requireAppCode(t, err, types.ErrCodeNotFoundProduct)
}

func TestProductRepository_Delete(t *testing.T) {
	dbMock := &mockDBTX{}
	dbMock.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"prod_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	repo := NewProductRepository(dbMock)
	require.NoError(t, repo.Delete(context.Background(), "prod_1"))
	dbMock.AssertExpectations(t)
}
