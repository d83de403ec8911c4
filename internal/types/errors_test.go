package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want int
	}{
		{"validation maps to 400", ErrCodeValidationMissingField, http.StatusBadRequest},
		{"duplicate basket item maps to 409", ErrCodeBasketDuplicateItem, http.StatusConflict},
		{"invalid quantity maps to 400", ErrCodeBasketInvalidQuantity, http.StatusBadRequest},
		{"incomplete customization maps to 422", ErrCodeBasketIncompleteSelection, http.StatusUnprocessableEntity},
		{"unavailable product maps to 422", ErrCodeBasketProductUnavailable, http.StatusUnprocessableEntity},
		{"out of stock maps to 409", ErrCodeCheckoutOutOfStock, http.StatusConflict},
		{"submission failure maps to 502", ErrCodeCheckoutSubmissionFailed, http.StatusBadGateway},
		{"session missing maps to 401", ErrCodeAuthSessionMissing, http.StatusUnauthorized},
		{"account locked maps to 429", ErrCodeAuthLocked, http.StatusTooManyRequests},
		{"deactivated account maps to 403", ErrCodeAuthAccountNotActive, http.StatusForbidden},
		{"role check maps to 403", ErrCodePermissionRole, http.StatusForbidden},
		{"missing plan maps to 404", ErrCodeNotFoundPlan, http.StatusNotFound},
		{"plan in use maps to 409", ErrCodeConflictPlanInUse, http.StatusConflict},
		{"payment declined maps to 402", ErrCodePaymentDeclined, http.StatusPaymentRequired},
		{"upstream payment maps to 502", ErrCodeUpstreamPayment, http.StatusBadGateway},
		{"database error maps to 500", ErrCodeInternalDB, http.StatusInternalServerError},
		{"unknown code maps to 500", ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeNotFoundProduct, "product not found", nil)
	assert.Equal(t, "not_found_product: product not found", err.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("row scan failed")
	err := NewAppError(ErrCodeInternalDB, "query failed", inner)

	require.ErrorIs(t, err, inner)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrCodeInternalDB, appErr.Code)
}

func TestAppError_WithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationInvalidRule, "bad rule", nil, map[string]any{
		"category": "normal",
	})

	derived := base.WithDetails(map[string]any{"min_quantity": 5})

	assert.Len(t, base.Details, 1)
	assert.Len(t, derived.Details, 2)
	assert.Equal(t, "normal", derived.Details["category"])
	assert.Equal(t, 5, derived.Details["min_quantity"])
}

func TestAppError_HTTPStatus_DelegatesToCode(t *testing.T) {
	err := NewAppError(ErrCodeAuthInvalidCreds, "bad credentials", nil)
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatus())
}
