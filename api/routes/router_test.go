package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	paymobwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/paymob"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubCartService struct{}

func (stubCartService) GetOrCreate(_ context.Context, userID uuid.UUID) (*cart.CartDTO, error) {
	return &cart.CartDTO{ID: uuid.New(), UserID: userID, Items: []cart.CartItemDTO{}, TotalAmount: "0.00"}, nil
}

func (stubCartService) ReplaceItems(_ context.Context, userID uuid.UUID, _ []cart.ItemInput) (*cart.CartDTO, error) {
	return &cart.CartDTO{ID: uuid.New(), UserID: userID}, nil
}

func (stubCartService) Clear(_ context.Context, userID uuid.UUID) (*cart.CartDTO, error) {
	return &cart.CartDTO{ID: uuid.New(), UserID: userID}, nil
}

type stubOrdersService struct{}

func (stubOrdersService) Checkout(_ context.Context, input orders.CheckoutInput) (*orders.OrderDTO, error) {
	return &orders.OrderDTO{ID: uuid.New(), UserID: input.UserID, Status: enums.OrderStatusPending}, nil
}

func (stubOrdersService) GetOrder(_ context.Context, userID, orderID uuid.UUID) (*orders.OrderDTO, error) {
	return &orders.OrderDTO{ID: orderID, UserID: userID}, nil
}

func (stubOrdersService) ListOrders(context.Context, uuid.UUID, pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{Orders: []orders.OrderDTO{}}, nil
}

func (stubOrdersService) GetPaymentStatus(context.Context, uuid.UUID, uuid.UUID) (*orders.PaymentStatusDTO, error) {
	return &orders.PaymentStatusDTO{Status: "pending"}, nil
}

func (stubOrdersService) AdminGetOrder(_ context.Context, orderID uuid.UUID) (*orders.OrderDTO, error) {
	return &orders.OrderDTO{ID: orderID}, nil
}

func (stubOrdersService) CancelOrder(_ context.Context, input orders.CancelInput) (*orders.OrderDTO, error) {
	return &orders.OrderDTO{ID: input.OrderID, Status: enums.OrderStatusCancelled}, nil
}

func (stubOrdersService) UpdateOrderFields(_ context.Context, input orders.UpdateInput) (*orders.OrderDTO, error) {
	return &orders.OrderDTO{ID: input.OrderID}, nil
}

type stubPaymentsService struct{}

func (stubPaymentsService) InitiateCheckout(context.Context, uuid.UUID, uuid.UUID) (*payments.CheckoutResult, error) {
	return &payments.CheckoutResult{IframeURL: "https://example.test/iframe", PaymentID: uuid.New()}, nil
}

func (stubPaymentsService) Stats(context.Context) (*payments.Stats, error) {
	return &payments.Stats{}, nil
}

type stubWebhookService struct{}

func (stubWebhookService) HandleNotification(context.Context, paymobwebhook.Notification) (*paymobwebhook.Result, error) {
	return &paymobwebhook.Result{Outcome: metrics.OutcomeUnknownPayment}, nil
}

func (stubWebhookService) RecordOutcome(string) {}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 60},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	reg := prometheus.NewRegistry()
	metrics.NewStorefrontMetrics(reg)
	return NewRouter(cfg, logg, Dependencies{
		DB:       stubPinger{},
		Gatherer: reg,
		Cart:     stubCartService{},
		Orders:   stubOrdersService{},
		Payments: stubPaymentsService{},
		Webhook:  stubWebhookService{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgauth.Issue(cfg.JWT, time.Now(), pkgauth.Identity{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(testConfig())
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCustomerRoutesRequireJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestCustomerRoutesAcceptTrailingSlash(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	token := buildToken(t, cfg, enums.RoleCustomer)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/cart/", http.StatusOK},
		{http.MethodGet, "/api/v1/cart", http.StatusOK},
		{http.MethodDelete, "/api/v1/cart/", http.StatusOK},
		{http.MethodPost, "/api/v1/orders/", http.StatusCreated},
		{http.MethodGet, "/api/v1/orders/", http.StatusOK},
		{http.MethodGet, "/api/v1/orders/" + uuid.NewString() + "/", http.StatusOK},
		{http.MethodGet, "/api/v1/order-status/" + uuid.NewString() + "/", http.StatusOK},
		{http.MethodPost, "/api/v1/checkout/" + uuid.NewString() + "/", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d got %d (%s)", tc.method, tc.path, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	path := "/api/v1/admin/payments/stats"

	customer := httptest.NewRequest(http.MethodGet, path, nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, path, nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}

	cancel := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/orders/"+uuid.NewString()+"/", nil)
	cancel.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, cancel)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin cancel got %d", resp.Code)
	}
}

type memoryIdempotencyStore struct {
	values map[string]string
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memoryIdempotencyStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	m.values[key] = str
	return nil
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = "1"
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestWebhookRoutesArePublic(t *testing.T) {
	cfg := testConfig()
	guard, err := paymobwebhook.NewIdempotencyGuard(&memoryIdempotencyStore{values: map[string]string{}}, time.Hour, "paymob")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	router := NewRouter(cfg, logg, Dependencies{Webhook: stubWebhookService{}, WebhookGuard: guard})

	for _, path := range []string{"/api/v1/webhook/", "/api/v1/webhooks/paymob"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"order_id":"`+path+`"}`)))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d (%s)", path, resp.Code, resp.Body.String())
		}
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhook", strings.NewReader(`{}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty payload got %d", resp.Code)
	}
}
