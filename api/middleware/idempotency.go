package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	cartIdempotencyTTL     = 24 * time.Hour
	purchaseIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = 2 * time.Minute
	maxIdempotencyKeyLen   = 255
)

// idempotentRoutes lists the mutating customer endpoints that honour an
// Idempotency-Key. Order creation and payment initiation keep their replay
// for a week because a duplicate there costs stock or money.
var idempotentRoutes = []struct {
	method string
	path   string
	prefix bool
	ttl    time.Duration
}{
	{method: http.MethodPut, path: "/api/v1/cart", ttl: cartIdempotencyTTL},
	{method: http.MethodPost, path: "/api/v1/orders", ttl: purchaseIdempotencyTTL},
	{method: http.MethodPost, path: "/api/v1/checkout/", prefix: true, ttl: purchaseIdempotencyTTL},
}

// storedResponse is what lives under an idempotency key. A record without a
// status marks a request that is still running.
type storedResponse struct {
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

func (s storedResponse) inFlight() bool { return s.Status == 0 }

// Idempotency replays the first response for a repeated Idempotency-Key on
// the routes above. The key is reserved before the handler runs so a
// concurrent duplicate gets 409 instead of a second order or payment.
// Requests without a key, or without a store, pass straight through.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := normalizePath(r.URL.Path)
			ttl, ok := routeTTL(r.Method, path)
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), r.Method, path}, "|"), clientKey)

			reserved, err := reserve(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !reserved {
				replay(ctx, store, key, hash, logg, w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// Server failures release the key so the client can retry with it.
			if capture.statusCode() >= http.StatusInternalServerError {
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			saved := storedResponse{
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				RequestHash: hash,
			}
			if err := persist(context.WithoutCancel(ctx), store, key, saved, ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	marker, err := json.Marshal(storedResponse{RequestHash: hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency marker")
	}
	ok, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return ok, nil
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string, logg *logger.Logger, w http.ResponseWriter) {
	raw, err := store.Get(ctx, key)
	if err != nil && !pkgredis.IsNil(err) {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	if raw == "" {
		// Expired between SETNX and GET; ask the client to retry.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	}

	var saved storedResponse
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case saved.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case saved.inFlight():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		if saved.ContentType != "" {
			w.Header().Set("Content-Type", saved.ContentType)
		}
		w.Header().Set("Idempotent-Replay", "true")
		w.WriteHeader(saved.Status)
		if decoded, err := base64.StdEncoding.DecodeString(saved.Body); err == nil {
			_, _ = w.Write(decoded)
		}
	}
}

func persist(ctx context.Context, store pkgredis.IdempotencyStore, key string, saved storedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload), ttl)
}

func normalizePath(path string) string {
	if len(path) > 1 {
		return strings.TrimRight(path, "/")
	}
	return path
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func routeTTL(method, path string) (time.Duration, bool) {
	for _, route := range idempotentRoutes {
		if route.method != method {
			continue
		}
		if path == route.path || (route.prefix && strings.HasPrefix(path, route.path)) {
			return route.ttl, true
		}
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
