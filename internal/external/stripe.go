package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"

	"fruitbox/internal/types"
)

// stripeAPIBase is the default Stripe API base URL. Overridable in tests.
const stripeAPIBase = "https://api.stripe.com"

// currency is the single storefront currency. Prices in the catalog are
// euros; Stripe wants integer cents.
const currency = "eur"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient implements PaymentProvider by calling the Stripe REST API
// directly through BaseClient, which keeps circuit breaking and retries
// consistent with every other outbound call and makes httptest-based
// testing straightforward.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient. The httpClient timeout should
// be around 20 seconds; payment confirmation is the slowest call we make.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(httpClient, "stripe", DefaultRetryPolicy())
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Used by tests to disable retry sleeps.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// ChargeOrder creates and immediately confirms a PaymentIntent for the
// order total. The order ID goes into metadata so webhook events can be
// correlated back to the order row.
func (s *StripeClient) ChargeOrder(ctx context.Context, order *types.Order, paymentMethodID string) (string, error) {
	params := url.Values{}
	params.Set("amount", strconv.FormatInt(toCents(order.Total), 10))
	params.Set("currency", currency)
	params.Set("payment_method", paymentMethodID)
	params.Set("confirm", "true")
	params.Set("automatic_payment_methods[enabled]", "true")
	params.Set("automatic_payment_methods[allow_redirects]", "never")
	params.Set("receipt_email", order.Customer.Email)
	params.Set("metadata[order_id]", order.ID)

	resp, err := s.doPost(ctx, "/v1/payment_intents", params)
	if err != nil {
		return "", s.wrapStripeError("ChargeOrder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "ChargeOrder")
	}

	var intent stripePaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe payment intent response", err)
	}

	// A 200 with a non-succeeded intent means the payment needs action we
	// cannot take server-side. Treat it as declined.
	if intent.Status != "succeeded" {
		return "", types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("ChargeOrder: payment not completed (status %s)", intent.Status),
			nil,
			map[string]any{"intent_status": intent.Status},
		)
	}

	return intent.ID, nil
}

// RefundOrder issues a full refund against the payment intent.
func (s *StripeClient) RefundOrder(ctx context.Context, paymentIntentID string) error {
	params := url.Values{}
	params.Set("payment_intent", paymentIntentID)

	resp, err := s.doPost(ctx, "/v1/refunds", params)
	if err != nil {
		return s.wrapStripeError("RefundOrder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "RefundOrder")
	}
	return nil
}

// CreateCustomer registers the customer with Stripe.
func (s *StripeClient) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := url.Values{}
	params.Set("email", email)
	params.Set("name", name)

	resp, err := s.doPost(ctx, "/v1/customers", params)
	if err != nil {
		return "", s.wrapStripeError("CreateCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateCustomer")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe customer response", err)
	}
	return customer.ID, nil
}

// CreateSubscription starts monthly billing for the subscription's total
// using an inline price, so custom box configurations never require
// pre-registered Stripe price objects.
func (s *StripeClient) CreateSubscription(ctx context.Context, sub *types.Subscription, customerID, paymentMethodID string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("default_payment_method", paymentMethodID)
	params.Set("items[0][price_data][currency]", currency)
	params.Set("items[0][price_data][unit_amount]", strconv.FormatInt(toCents(sub.MonthlyTotal), 10))
	params.Set("items[0][price_data][recurring][interval]", "month")
	params.Set("items[0][price_data][product_data][name]", "FruitBox subscription")
	params.Set("metadata[subscription_id]", sub.ID)
	params.Set("metadata[plan_id]", sub.PlanID)

	resp, err := s.doPost(ctx, "/v1/subscriptions", params)
	if err != nil {
		return "", s.wrapStripeError("CreateSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateSubscription")
	}

	var stripeSub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&stripeSub); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe subscription response", err)
	}
	return stripeSub.ID, nil
}

// PauseSubscription voids invoices while paused so the customer is not
// billed for boxes they are not receiving.
func (s *StripeClient) PauseSubscription(ctx context.Context, providerSubID string) error {
	params := url.Values{}
	params.Set("pause_collection[behavior]", "void")
	return s.updateSubscription(ctx, "PauseSubscription", providerSubID, params)
}

// ResumeSubscription clears the pause and restarts collection.
func (s *StripeClient) ResumeSubscription(ctx context.Context, providerSubID string) error {
	params := url.Values{}
	params.Set("pause_collection", "")
	return s.updateSubscription(ctx, "ResumeSubscription", providerSubID, params)
}

func (s *StripeClient) updateSubscription(ctx context.Context, operation, providerSubID string, params url.Values) error {
	resp, err := s.doPost(ctx, "/v1/subscriptions/"+providerSubID, params)
	if err != nil {
		return s.wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, operation)
	}
	return nil
}

// CancelSubscription ends billing immediately.
func (s *StripeClient) CancelSubscription(ctx context.Context, providerSubID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/v1/subscriptions/"+providerSubID, nil)
	if err != nil {
		return err
	}
	s.setAuthHeaders(req)

	resp, err := s.base.Do(req)
	if err != nil {
		return s.wrapStripeError("CancelSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "CancelSubscription")
	}
	return nil
}

// toCents converts an exact decimal euro amount to Stripe integer cents.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)
	return s.base.Do(req)
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// stripeErrorResponse is the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to an
// AppError. Declines map to ErrCodePaymentDeclined so checkout can show the
// customer an actionable message instead of a generic failure.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamPayment,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamPayment,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	if stripeErr.Error.Code == "card_declined" || stripeErr.Error.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Error.Message),
			nil,
			map[string]any{
				"decline_code": stripeErr.Error.DeclineCode,
				"stripe_code":  stripeErr.Error.Code,
			},
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation), nil)
	case resp.StatusCode >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Error.Message), nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamPayment,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message), nil)
	}
}

// wrapStripeError passes through BaseClient AppErrors (already carrying the
// right upstream code) and wraps anything else.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamPayment,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// Stripe response types for JSON deserialization.

type stripeCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type stripePaymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type stripeSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StripeVerifier implements WebhookVerifier using stripe-go's signature
// verification (HMAC-SHA256 with timestamp tolerance).
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

var _ PaymentProvider = (*StripeClient)(nil)
