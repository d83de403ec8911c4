package basket

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"fruitbox/internal/types"
)

// ItemInput is one customizable line in the submission contract.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CustomerInput is the customer and delivery information collected at
// checkout. Password is only set when the customer asked for an account;
// PaymentMethodID is the provider token for the card entered at checkout.
type CustomerInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Phone                string `json:"phone"`
	Address              string `json:"address"`
	DeliveryInstructions string `json:"delivery_instructions,omitempty"`
	Password             string `json:"password,omitempty"`
	PaymentMethodID      string `json:"payment_method_id,omitempty"`
}

// SubmitRequest is the contract handed to the order-creation collaborator.
type SubmitRequest struct {
	PlanID        string        `json:"plan_id"`
	Items         []ItemInput   `json:"items"`
	Customer      CustomerInput `json:"customer"`
	CreateAccount bool          `json:"create_account"`
	Recurring     bool          `json:"recurring"`

	// Total is computed by the engine, never taken from the caller.
	Total decimal.Decimal `json:"total"`
}

// Confirmation is the collaborator's successful response.
type Confirmation struct {
	OrderID   string          `json:"order_id"`
	Total     decimal.Decimal `json:"total"`
	Recurring bool            `json:"recurring"`
	NextSteps string          `json:"next_steps,omitempty"`
}

// OrderPlacer is the order-creation collaborator: it persists the order or
// subscription and charges the customer. Exactly one call is made per
// explicit submit.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req SubmitRequest) (*Confirmation, error)
}

// Submitter translates a valid Selection plus customer input into the
// collaborator's contract and interprets the response. It never retries:
// a failure is terminal until the customer submits again, and the selection
// is left intact so nothing has to be re-entered.
type Submitter struct {
	placer OrderPlacer
}

// NewSubmitter wires the submission adapter to its collaborator.
func NewSubmitter(placer OrderPlacer) *Submitter {
	return &Submitter{placer: placer}
}

// Submit validates the selection, builds the request, and makes the single
// collaborator call.
//
// Preconditions: a plan must be attached and Validate must pass. When the
// selection is invalid the call fails locally with
// basket_incomplete_customization and the collaborator is never contacted.
// On success the selection is cleared; on failure it is preserved and the
// collaborator's message is surfaced verbatim.
func (s *Submitter) Submit(ctx context.Context, sel *Selection, customer CustomerInput, createAccount, recurring bool) (*Confirmation, error) {
	if sel == nil || sel.Plan() == nil {
		return nil, types.NewAppError(types.ErrCodeBasketIncompleteSelection,
			"choose a plan before checking out", nil)
	}

	if report := Validate(sel); !report.IsValid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeBasketIncompleteSelection,
			"complete your selection before checking out", nil,
			map[string]any{"violations": report.Errors()})
	}

	req := SubmitRequest{
		PlanID:        sel.Plan().ID,
		Customer:      customer,
		CreateAccount: createAccount,
		Recurring:     recurring,
		Total:         GrandTotal(sel.Plan(), sel),
	}
	for _, item := range sel.Items() {
		req.Items = append(req.Items, ItemInput{
			ProductID: item.Product.ID,
			Quantity:  item.Quantity,
		})
	}

	conf, err := s.placer.PlaceOrder(ctx, req)
	if err != nil {
		return nil, wrapSubmissionError(err)
	}

	sel.Clear()
	return conf, nil
}

// wrapSubmissionError surfaces the collaborator's message to the customer
// without retry. AppErrors pass through unchanged so their status mapping
// (payment declined, out of stock) is preserved.
func wrapSubmissionError(err error) error {
	if appErr, ok := err.(*types.AppError); ok {
		return appErr
	}
	return types.NewAppError(types.ErrCodeCheckoutSubmissionFailed, err.Error(), err)
}

// SnapshotItems converts selected lines into persistable order items with the
// unit price frozen at purchase time.
func SnapshotItems(sel *Selection) []types.OrderItem {
	var out []types.OrderItem
	for _, item := range sel.Items() {
		out = append(out, types.OrderItem{
			ProductID: item.Product.ID,
			Name:      item.Product.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Product.Price,
		})
	}
	return out
}

// MarshalItemsSnapshot serializes the order-item snapshot for JSONB storage.
func MarshalItemsSnapshot(items []types.OrderItem) (json.RawMessage, error) {
	if items == nil {
		items = []types.OrderItem{}
	}
	return json.Marshal(items)
}
