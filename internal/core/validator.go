package core

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"fruitbox/internal/types"
)

// slugPattern matches URL-safe plan and product slugs: lowercase alphanumerics
// separated by single hyphens.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validator wraps go-playground/validator and registers domain-specific rules.
//
// Custom tags:
//   - category: the field must be a valid product category ("normal", "exotic").
//   - money: the field must parse as a non-negative decimal amount.
//   - slug: the field must be a URL-safe slug.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
// Tag registration cannot fail for valid tag names; errors indicate a
// programming mistake and are logged at startup.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	registrations := map[string]validator.Func{
		"category": validateCategory,
		"money":    validateMoney,
		"slug":     validateSlug,
	}
	for tag, fn := range registrations {
		if err := v.RegisterValidation(tag, fn); err != nil {
			logger.Error("failed to register validation tag", "tag", tag, "error", err)
		}
	}

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the given struct against its `validate` tags.
// On failure it returns a *types.AppError with code "validation_invalid_field"
// and a details map of field name to human-readable constraint description.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		// InvalidValidationError: the caller passed something that is not a
		// struct. That is a programming error, not bad input.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation target is not a struct", err)
	}

	details := make(map[string]any, len(valErrs))
	for _, fe := range valErrs {
		details[fieldName(fe)] = constraintMessage(fe)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidField,
		"one or more fields failed validation",
		err,
		details,
	)
}

// Var validates a single value against a tag expression, e.g.
// v.Var(email, "required,email").
func (v *Validator) Var(value interface{}, tag string) error {
	return v.validate.Var(value, tag)
}

// fieldName derives the client-facing field name from a validation error.
// The namespace includes the struct type; strip it so clients see "email"
// rather than "RegisterRequest.Email".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.IndexByte(ns, '.'); idx >= 0 {
		ns = ns[idx+1:]
	}
	return strings.ToLower(ns)
}

// constraintMessage renders a short human-readable description of the failed
// constraint. Messages never echo the submitted value for secret-bearing
// fields; only structural information is returned.
func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "category":
		return "must be a valid product category"
	case "money":
		return "must be a non-negative decimal amount"
	case "slug":
		return "must contain only lowercase letters, digits, and hyphens"
	default:
		return fmt.Sprintf("failed constraint %q", fe.Tag())
	}
}

// validateCategory checks string fields against the known product categories.
func validateCategory(fl validator.FieldLevel) bool {
	return types.ProductCategory(fl.Field().String()).Valid()
}

// validateMoney checks that a string field parses as a non-negative exact
// decimal. Prices travel as strings on the wire to avoid binary float drift.
func validateMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return !d.IsNegative()
}

// validateSlug checks string fields against the URL-safe slug pattern.
func validateSlug(fl validator.FieldLevel) bool {
	return slugPattern.MatchString(fl.Field().String())
}
