package core

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/types"
)

func testValidator() *Validator {
	return NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type createProductRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Slug     string `json:"slug" validate:"required,slug"`
	Price    string `json:"price" validate:"required,money"`
	Category string `json:"category" validate:"required,category"`
	Stock    int    `json:"stock" validate:"gte=0"`
}

func validCreateProduct() createProductRequest {
	return createProductRequest{
		Name:     "Alphonso Mango",
		Slug:     "alphonso-mango",
		Price:    "3.20",
		Category: "exotic",
		Stock:    40,
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	v := testValidator()
	assert.NoError(t, v.ValidateStruct(validCreateProduct()))
}

func TestValidateStruct_CollectsFieldViolations(t *testing.T) {
	v := testValidator()
	req := createProductRequest{
		Name:     "A",
		Slug:     "Not A Slug!",
		Price:    "-1.00",
		Category: "citrus",
		Stock:    -5,
	}

	err := v.ValidateStruct(req)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidField, appErr.Code)

	require.Len(t, appErr.Details, 5)
	assert.Equal(t, "must be at least 2", appErr.Details["name"])
	assert.Equal(t, "must contain only lowercase letters, digits, and hyphens", appErr.Details["slug"])
	assert.Equal(t, "must be a non-negative decimal amount", appErr.Details["price"])
	assert.Equal(t, "must be a valid product category", appErr.Details["category"])
	assert.Equal(t, "must be greater than or equal to 0", appErr.Details["stock"])
}

func TestValidateStruct_RequiredFields(t *testing.T) {
	v := testValidator()

	err := v.ValidateStruct(createProductRequest{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "this field is required", appErr.Details["name"])
}

func TestValidateStruct_NonStructInput(t *testing.T) {
	v := testValidator()

	err := v.ValidateStruct("not a struct")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
}

func TestMoneyTag(t *testing.T) {
	v := testValidator()

	for _, ok := range []string{"0", "0.10", "49.90", "1000"} {
		assert.NoError(t, v.Var(ok, "money"), ok)
	}
	for _, bad := range []string{"", "abc", "-0.01", "1,50", "$5"} {
		assert.Error(t, v.Var(bad, "money"), bad)
	}
}

func TestSlugTag(t *testing.T) {
	v := testValidator()

	for _, ok := range []string{"family-box", "box2", "a"} {
		assert.NoError(t, v.Var(ok, "slug"), ok)
	}
	for _, bad := range []string{"", "Family-Box", "family--box", "-box", "box-", "family box"} {
		assert.Error(t, v.Var(bad, "slug"), bad)
	}
}

func TestCategoryTag(t *testing.T) {
	v := testValidator()

	assert.NoError(t, v.Var("normal", "category"))
	assert.NoError(t, v.Var("exotic", "category"))
	assert.Error(t, v.Var("citrus", "category"))
	assert.Error(t, v.Var("", "category"))
}
