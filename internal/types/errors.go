package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and services MUST use these constants
// instead of hardcoded strings so the HTTP status mapping stays consistent.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidField ErrorCode = "validation_invalid_field"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidPrice ErrorCode = "validation_invalid_price"
	ErrCodeValidationInvalidRule  ErrorCode = "validation_invalid_rule"
	ErrCodeValidationInvalidImage ErrorCode = "validation_invalid_image"

	// Basket engine
	ErrCodeBasketDuplicateItem       ErrorCode = "basket_duplicate_item"
	ErrCodeBasketInvalidQuantity     ErrorCode = "basket_invalid_quantity"
	ErrCodeBasketProductUnavailable  ErrorCode = "basket_product_unavailable"
	ErrCodeBasketIncompleteSelection ErrorCode = "basket_incomplete_customization"

	// Checkout
	ErrCodeCheckoutSubmissionFailed ErrorCode = "checkout_submission_failed"
	ErrCodeCheckoutOutOfStock       ErrorCode = "checkout_out_of_stock"

	// Auth (401)
	ErrCodeAuthSessionMissing   ErrorCode = "auth_session_missing"
	ErrCodeAuthSessionInvalid   ErrorCode = "auth_session_invalid"
	ErrCodeAuthSessionExpired   ErrorCode = "auth_session_expired"
	ErrCodeAuthInvalidCreds     ErrorCode = "auth_invalid_credentials"
	ErrCodeAuthLocked           ErrorCode = "auth_account_locked"
	ErrCodeAuthAccountNotActive ErrorCode = "auth_account_not_active"
	ErrCodeAuthCSRFMismatch     ErrorCode = "auth_csrf_mismatch"

	// Permission (403)
	ErrCodePermissionRole  ErrorCode = "permission_role_insufficient"
	ErrCodePermissionOwner ErrorCode = "permission_not_resource_owner"

	// Not Found (404)
	ErrCodeNotFoundProduct      ErrorCode = "not_found_product"
	ErrCodeNotFoundPlan         ErrorCode = "not_found_plan"
	ErrCodeNotFoundOrder        ErrorCode = "not_found_order"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"

	// Conflict (409)
	ErrCodeConflictEmail       ErrorCode = "conflict_email_exists"
	ErrCodeConflictSlug        ErrorCode = "conflict_slug_exists"
	ErrCodeConflictPlanInUse   ErrorCode = "conflict_plan_has_subscriptions"
	ErrCodeConflictState       ErrorCode = "conflict_invalid_state_transition"
	ErrCodeConflictConcurrent  ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamPayment    ErrorCode = "upstream_payment_unavailable"
	ErrCodeUpstreamStorage    ErrorCode = "upstream_storage_unavailable"
	ErrCodeUpstreamEmail      ErrorCode = "upstream_email_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Payment-specific
	ErrCodePaymentDeclined ErrorCode = "payment_declined"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case c == ErrCodeBasketDuplicateItem:
		return http.StatusConflict // 409
	case c == ErrCodeBasketInvalidQuantity:
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "basket_"):
		return http.StatusUnprocessableEntity // 422
	case c == ErrCodeCheckoutOutOfStock:
		return http.StatusConflict // 409
	case c == ErrCodeCheckoutSubmissionFailed:
		return http.StatusBadGateway // 502
	case c == ErrCodeAuthLocked:
		return http.StatusTooManyRequests // 429
	case c == ErrCodeAuthAccountNotActive:
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case c == ErrCodePaymentDeclined:
		return http.StatusPaymentRequired // 402
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the platform.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
