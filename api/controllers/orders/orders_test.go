package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubOrdersService struct {
	checkout      func(ctx context.Context, input internalorders.CheckoutInput) (*internalorders.OrderDTO, error)
	get           func(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error)
	list          func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	paymentStatus func(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.PaymentStatusDTO, error)
}

func (s *stubOrdersService) Checkout(ctx context.Context, input internalorders.CheckoutInput) (*internalorders.OrderDTO, error) {
	return s.checkout(ctx, input)
}

func (s *stubOrdersService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.get(ctx, userID, orderID)
}

func (s *stubOrdersService) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return s.list(ctx, userID, params)
}

func (s *stubOrdersService) GetPaymentStatus(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.PaymentStatusDTO, error) {
	return s.paymentStatus(ctx, userID, orderID)
}

func (s *stubOrdersService) AdminGetOrder(context.Context, uuid.UUID) (*internalorders.OrderDTO, error) {
	panic("not implemented")
}

func (s *stubOrdersService) CancelOrder(context.Context, internalorders.CancelInput) (*internalorders.OrderDTO, error) {
	panic("not implemented")
}

func (s *stubOrdersService) UpdateOrderFields(context.Context, internalorders.UpdateInput) (*internalorders.OrderDTO, error) {
	panic("not implemented")
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateReturnsCreatedOrder(t *testing.T) {
	userID := uuid.New()
	var got internalorders.CheckoutInput
	svc := &stubOrdersService{
		checkout: func(_ context.Context, input internalorders.CheckoutInput) (*internalorders.OrderDTO, error) {
			got = input
			return &internalorders.OrderDTO{ID: uuid.New(), UserID: input.UserID, Status: enums.OrderStatusPending, TotalAmount: "200.00"}, nil
		},
	}

	body := `{"shipping_address":"  12 Nile St  ","billing_address":"PO Box 1"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), userID)
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.UserID != userID || got.ShippingAddress != "12 Nile St" || got.BillingAddress != "PO Box 1" {
		t.Fatalf("unexpected checkout input: %+v", got)
	}
	var order internalorders.OrderDTO
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.TotalAmount != "200.00" || order.Status != enums.OrderStatusPending {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestCreateAcceptsEmptyBody(t *testing.T) {
	called := false
	svc := &stubOrdersService{
		checkout: func(_ context.Context, input internalorders.CheckoutInput) (*internalorders.OrderDTO, error) {
			called = true
			return &internalorders.OrderDTO{ID: uuid.New()}, nil
		},
	}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil), uuid.New())
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated || !called {
		t.Fatalf("expected checkout with empty body, got %d", resp.Code)
	}
}

func TestCreateEmptyCart(t *testing.T) {
	svc := &stubOrdersService{
		checkout: func(context.Context, internalorders.CheckoutInput) (*internalorders.OrderDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "Cart is empty.")
		},
	}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil), uuid.New())
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["detail"] != "Cart is empty." || body["code"] != string(pkgerrors.CodeEmptyCart) {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestListPassesPagination(t *testing.T) {
	userID := uuid.New()
	var gotParams pagination.Params
	svc := &stubOrdersService{
		list: func(_ context.Context, id uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
			if id != userID {
				t.Fatalf("unexpected user id")
			}
			gotParams = params
			return &internalorders.OrderList{Orders: []internalorders.OrderDTO{}, NextCursor: "next"}, nil
		},
	}
	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()})
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5&cursor="+cursor, nil), userID)
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotParams.Limit != 5 || gotParams.Cursor != cursor {
		t.Fatalf("unexpected params: %+v", gotParams)
	}
	if !strings.Contains(resp.Body.String(), `"next_cursor":"next"`) {
		t.Fatalf("expected next cursor in body: %s", resp.Body.String())
	}
}

func TestListRejectsOutOfRangeLimit(t *testing.T) {
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=500", nil), uuid.New())
	resp := httptest.NewRecorder()
	List(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListRejectsMalformedCursor(t *testing.T) {
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders?cursor=abc", nil), uuid.New())
	resp := httptest.NewRecorder()
	List(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailHidesForeignOrders(t *testing.T) {
	svc := &stubOrdersService{
		get: func(context.Context, uuid.UUID, uuid.UUID) (*internalorders.OrderDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}
	req := withOrderParam(withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil), uuid.New()), uuid.NewString())
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestDetailRejectsInvalidID(t *testing.T) {
	req := withOrderParam(withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil), uuid.New()), "not-a-uuid")
	resp := httptest.NewRecorder()
	Detail(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPaymentStatus(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrdersService{
		paymentStatus: func(_ context.Context, uid, oid uuid.UUID) (*internalorders.PaymentStatusDTO, error) {
			if uid != userID || oid != orderID {
				t.Fatalf("unexpected ids")
			}
			return &internalorders.PaymentStatusDTO{Status: "paid"}, nil
		},
	}
	req := withOrderParam(withUser(httptest.NewRequest(http.MethodGet, "/api/v1/order-status/x", nil), userID), orderID.String())
	resp := httptest.NewRecorder()
	PaymentStatus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if strings.TrimSpace(resp.Body.String()) != `{"status":"paid"}` {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}
