package paymob

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := []Option{WithBaseURL(srv.URL + "/api"), WithRetry(2, time.Millisecond)}
	client, err := NewClient("test-key", append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}

func TestFullCheckoutChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-key", body["api_key"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"tok-1"}`))
	})
	mux.HandleFunc("/api/ecommerce/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "EGP", body["currency"])
		assert.EqualValues(t, 20000, body["amount_cents"])
		assert.Equal(t, "false", body["delivery_needed"])
		assert.Equal(t, "local-1", body["merchant_order_id"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":12345}`))
	})
	mux.HandleFunc("/api/acceptance/payment_keys", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "12345", body["order_id"])
		assert.EqualValues(t, 3600, body["expiration"])
		assert.EqualValues(t, 4242, body["integration_id"])
		billing := body["billing_data"].(map[string]any)
		assert.Equal(t, "user@example.com", billing["email"])
		assert.Equal(t, "NA", billing["city"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"pay-key"}`))
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	token, err := client.GetAuthToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	remoteID, err := client.CreateRemoteOrder(ctx, token, OrderRequest{
		Currency:        "EGP",
		AmountCents:     20000,
		Items:           []LineItem{{Name: "Shirt", AmountCents: 10000, Quantity: 2}},
		MerchantOrderID: "local-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", remoteID)

	key, err := client.GeneratePaymentKey(ctx, token, PaymentKeyRequest{
		Currency:          "EGP",
		ExpirationSeconds: 3600,
		AmountCents:       20000,
		RemoteOrderID:     remoteID,
		Billing:           DefaultBillingData(),
		IntegrationID:     4242,
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-key", key)
}

func TestBuildPaymentRedirectURL(t *testing.T) {
	client, err := NewClient("k", WithBaseURL("https://accept.paymob.com/api/"))
	require.NoError(t, err)
	got := client.BuildPaymentRedirectURL("abc+def", "777")
	assert.Equal(t, "https://accept.paymob.com/api/acceptance/iframes/777?payment_token=abc%2Bdef", got)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"tok"}`))
	})

	var observed []string
	client := newTestClient(t, handler, WithObserver(func(op string, _ time.Duration, err error) {
		state := "ok"
		if err != nil {
			state = "err"
		}
		observed = append(observed, op+":"+state)
	}))

	token, err := client.GetAuthToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"auth_token:err", "auth_token:err", "auth_token:ok"}, observed)
}

func TestRetryBudgetIsBounded(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	})
	client := newTestClient(t, handler)

	_, err := client.GetAuthToken(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.Contains(t, err.Error(), "maintenance")
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"integration id invalid"}`))
	})
	client := newTestClient(t, handler)

	_, err := client.GeneratePaymentKey(context.Background(), "tok", PaymentKeyRequest{RemoteOrderID: "1", AmountCents: 100})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGateway, typed.Code())
	assert.Contains(t, typed.Message(), "integration id invalid")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestOrderRegistrationIsAttemptedOnce(t *testing.T) {
	var orders, keys int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ecommerce/orders", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&orders, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/api/acceptance/payment_keys", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&keys, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"token":"pay"}`))
	})
	client := newTestClient(t, mux)

	_, err := client.CreateRemoteOrder(context.Background(), "tok", OrderRequest{
		AmountCents:     500,
		Currency:        "EGP",
		MerchantOrderID: "merchant-1",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.EqualValues(t, 1, atomic.LoadInt32(&orders))

	key, err := client.GeneratePaymentKey(context.Background(), "tok", PaymentKeyRequest{RemoteOrderID: "1", AmountCents: 500})
	require.NoError(t, err)
	assert.Equal(t, "pay", key)
	assert.EqualValues(t, 2, atomic.LoadInt32(&keys))
}

func TestMissingTokenInResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	client := newTestClient(t, handler)

	_, err := client.GetAuthToken(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "No token returned"))
}

func TestTimeoutSurfacesAsGatewayError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	})
	client := newTestClient(t, handler,
		WithHTTPClient(&http.Client{Timeout: 10 * time.Millisecond}),
		WithRetry(0, time.Millisecond))

	_, err := client.GetAuthToken(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
}

func TestNewFromConfig(t *testing.T) {
	client, err := NewFromConfig(config.PaymobConfig{
		APIKey:         "key",
		BaseURL:        "https://example.test/api",
		Timeout:        3 * time.Second,
		MaxRetries:     4,
		RetryBaseDelay: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, client.httpClient.Timeout)
	assert.EqualValues(t, 4, client.maxRetries)
	assert.Equal(t, "https://example.test/api", client.baseURL)
}

func TestCreateRemoteOrderRejectsZeroAmount(t *testing.T) {
	client, err := NewClient("k")
	require.NoError(t, err)
	_, err = client.CreateRemoteOrder(context.Background(), "tok", OrderRequest{Currency: "EGP"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBillingDataCompleteKeepsProvidedFields(t *testing.T) {
	billing := BillingData{Email: "buyer@shop.test", Street: "12 Nile St", City: " "}.Complete()

	assert.Equal(t, "buyer@shop.test", billing.Email)
	assert.Equal(t, "12 Nile St", billing.Street)
	assert.Equal(t, DefaultBillingData().FirstName, billing.FirstName)
	assert.Equal(t, "NA", billing.City)
	assert.Equal(t, "NA", billing.State)
}
