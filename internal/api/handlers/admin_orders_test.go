package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

type stubAdminOrders struct {
	byID       map[string]*types.Order
	all        []*types.Order
	updated    map[string]types.OrderStatus
	lastFilter db.OrderFilter
}

func (s *stubAdminOrders) List(ctx context.Context, f db.OrderFilter) ([]*types.Order, int, error) {
	s.lastFilter = f
	return s.all, len(s.all), nil
}

func (s *stubAdminOrders) GetByID(ctx context.Context, id string) (*types.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
	}
	return o, nil
}

func (s *stubAdminOrders) UpdateStatus(ctx context.Context, id string, status types.OrderStatus) error {
	if s.updated == nil {
		s.updated = make(map[string]types.OrderStatus)
	}
	s.updated[id] = status
	return nil
}

type stubRestocker struct {
	deltas map[string]int
	err    error
}

func (s *stubRestocker) AdjustStock(ctx context.Context, productID string, delta int) error {
	if s.err != nil {
		return s.err
	}
	if s.deltas == nil {
		s.deltas = make(map[string]int)
	}
	s.deltas[productID] += delta
	return nil
}

func paidOrder() *types.Order {
	return &types.Order{
		ID:     "ord_1",
		PlanID: "plan_1",
		Status: types.OrderPaid,
		Items: []types.OrderItem{
			{ProductID: "prod_1", Name: "Banana", Quantity: 3},
			{ProductID: "prod_2", Name: "Mango", Quantity: 1},
		},
	}
}

func newAdminOrderFixture(order *types.Order) (*AdminOrderHandler, *stubAdminOrders, *stubRestocker) {
	orders := &stubAdminOrders{byID: map[string]*types.Order{}}
	if order != nil {
		orders.byID[order.ID] = order
		orders.all = []*types.Order{order}
	}
	stock := &stubRestocker{}
	return NewAdminOrderHandler(orders, stock, testValidator(), testLogger()), orders, stock
}

func TestAdminOrderHandler_RequiresAdmin(t *testing.T) {
	h, _, _ := newAdminOrderFixture(paidOrder())
	actor := customerActor("usr_1")

	rec := serve(t, h, http.MethodGet, "/admin/orders", nil, &actor)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminOrderHandler_List_Filters(t *testing.T) {
	h, orders, _ := newAdminOrderFixture(paidOrder())
	actor := adminActor()

	rec := serve(t, h, http.MethodGet, "/admin/orders?status=paid&user_id=usr_9", nil, &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.OrderPaid, orders.lastFilter.Status)
	assert.Equal(t, "usr_9", orders.lastFilter.UserID)
}

func TestAdminOrderHandler_Fulfil(t *testing.T) {
	h, orders, stock := newAdminOrderFixture(paidOrder())
	actor := adminActor()

	rec := serve(t, h, http.MethodPost, "/admin/orders/ord_1/status", OrderStatusRequest{Status: "fulfilled"}, &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.OrderFulfilled, orders.updated["ord_1"])
	assert.Empty(t, stock.deltas)
}

func TestAdminOrderHandler_Cancel_RestocksLines(t *testing.T) {
	h, orders, stock := newAdminOrderFixture(paidOrder())
	actor := adminActor()

	rec := serve(t, h, http.MethodPost, "/admin/orders/ord_1/status", OrderStatusRequest{Status: "cancelled"}, &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.OrderCancelled, orders.updated["ord_1"])
	assert.Equal(t, 3, stock.deltas["prod_1"])
	assert.Equal(t, 1, stock.deltas["prod_2"])
}

func TestAdminOrderHandler_Cancel_RestockFailureStillCancels(t *testing.T) {
	h, orders, stock := newAdminOrderFixture(paidOrder())
	stock.err = types.NewAppError(types.ErrCodeInternalDB, "connection lost", nil)
	actor := adminActor()

	rec := serve(t, h, http.MethodPost, "/admin/orders/ord_1/status", OrderStatusRequest{Status: "cancelled"}, &actor)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.OrderCancelled, orders.updated["ord_1"])
}

func TestAdminOrderHandler_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   types.OrderStatus
		target string
	}{
		{"fulfilled is terminal", types.OrderFulfilled, "cancelled"},
		{"cancelled is terminal", types.OrderCancelled, "paid"},
		{"pending cannot skip to fulfilled", types.OrderPending, "fulfilled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := paidOrder()
			order.Status = tt.from
			h, orders, _ := newAdminOrderFixture(order)
			actor := adminActor()

			rec := serve(t, h, http.MethodPost, "/admin/orders/ord_1/status", OrderStatusRequest{Status: tt.target}, &actor)

			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, string(types.ErrCodeConflictState), errorCode(t, rec))
			assert.Empty(t, orders.updated)
		})
	}
}

func TestAdminOrderHandler_UnknownStatusRejected(t *testing.T) {
	h, _, _ := newAdminOrderFixture(paidOrder())
	actor := adminActor()

	rec := serve(t, h, http.MethodPost, "/admin/orders/ord_1/status", OrderStatusRequest{Status: "shipped"}, &actor)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
