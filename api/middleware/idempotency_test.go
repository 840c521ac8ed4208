package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func idempotentRequest(method, path, body, key, userID string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	if userID != "" {
		req = req.WithContext(WithUserID(req.Context(), userID))
	}
	return req
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"cart replace", http.MethodPut, "/api/v1/cart", cartIdempotencyTTL, true},
		{"checkout", http.MethodPost, "/api/v1/orders", purchaseIdempotencyTTL, true},
		{"payment initiation", http.MethodPost, "/api/v1/checkout/9b2f", purchaseIdempotencyTTL, true},
		{"cart read", http.MethodGet, "/api/v1/cart", 0, false},
		{"cart clear", http.MethodDelete, "/api/v1/cart", 0, false},
		{"webhook", http.MethodPost, "/api/v1/webhook", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewarePassesThroughWithoutKey(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, idempotentRequest(http.MethodPost, "/api/v1/orders", `{}`, "", "u1"))
		if resp.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d", resp.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order_number":"abc"}`))
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, idempotentRequest(http.MethodPost, "/api/v1/orders/", `{}`, "abc", "u1"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, idempotentRequest(http.MethodPost, "/api/v1/orders", `{}`, "abc", "u1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"order_number":"abc"}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if rec.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var inner *httptest.ResponseRecorder
	calls := 0
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// A second delivery of the same key arrives while this one runs.
			inner = httptest.NewRecorder()
			mw(handler).ServeHTTP(inner, idempotentRequest(http.MethodPost, "/api/v1/checkout/o1", `{}`, "dup", "u1"))
		}
		w.WriteHeader(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, idempotentRequest(http.MethodPost, "/api/v1/checkout/o1", `{}`, "dup", "u1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected first request 200 got %d", resp.Code)
	}
	if inner == nil || inner.Code != http.StatusConflict {
		t.Fatalf("expected concurrent duplicate to get 409")
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareScopesKeysPerUser(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPut, "/api/v1/cart", `{"items":[]}`, "same", "u1"))
	mw(handler).ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPut, "/api/v1/cart", `{"items":[]}`, "same", "u2"))
	if calls != 2 {
		t.Fatalf("expected each user to execute once, got %d calls", calls)
	}
}

func TestIdempotencyMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "/api/v1/checkout/1", `{}`, "k", "u1"))
	if len(store.data) != 0 {
		t.Fatalf("expected nothing stored, got %v", store.data)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPut, "/api/v1/cart", `{"items":[1]}`, "xyz", "u1"))

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, idempotentRequest(http.MethodPut, "/api/v1/cart", `{"items":[2]}`, "xyz", "u1"))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Code)
	}
}
