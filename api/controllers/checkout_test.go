package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubPaymentsService struct {
	result *payments.CheckoutResult
	stats  *payments.Stats
	err    error
}

func (s stubPaymentsService) InitiateCheckout(context.Context, uuid.UUID, uuid.UUID) (*payments.CheckoutResult, error) {
	return s.result, s.err
}

func (s stubPaymentsService) Stats(context.Context) (*payments.Stats, error) {
	return s.stats, s.err
}

func requestFor(method, path string, userID uuid.UUID, orderID string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	ctx := middleware.WithUserID(req.Context(), userID.String())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestPaymentCheckoutReturnsIframe(t *testing.T) {
	paymentID := uuid.New()
	svc := stubPaymentsService{result: &payments.CheckoutResult{IframeURL: "https://accept.paymob.com/api/acceptance/iframes/1?payment_token=k", PaymentID: paymentID}}

	resp := httptest.NewRecorder()
	PaymentCheckout(svc, nil)(resp, requestFor(http.MethodPost, "/api/v1/checkout/x", uuid.New(), uuid.NewString()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body payments.CheckoutResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.PaymentID != paymentID || body.IframeURL == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestPaymentCheckoutSurfacesGatewayError(t *testing.T) {
	svc := stubPaymentsService{err: pkgerrors.New(pkgerrors.CodeGateway, "paymob returned status 400: bad integration")}

	resp := httptest.NewRecorder()
	PaymentCheckout(svc, nil)(resp, requestFor(http.MethodPost, "/api/v1/checkout/x", uuid.New(), uuid.NewString()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["detail"] != "paymob returned status 400: bad integration" {
		t.Fatalf("expected gateway text in detail, got %v", body["detail"])
	}
}

func TestPaymentCheckoutRequiresUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/x", nil)
	resp := httptest.NewRecorder()
	PaymentCheckout(stubPaymentsService{}, nil)(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
