package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	paymobwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/paymob"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	maxWebhookBodyBytes = 1 << 20
	SignatureHeader     = "X-Paymob-Signature"
	signatureQueryParam = "hmac"
)

type PaymobWebhookService interface {
	HandleNotification(ctx context.Context, n paymobwebhook.Notification) (*paymobwebhook.Result, error)
	RecordOutcome(outcome string)
}

type PaymobWebhookGuard interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type signatureVerifier interface {
	Enabled() bool
	Verify(body []byte, signature string) error
}

// PaymobWebhook ingests transaction callbacks. Benign mismatches such as a
// replay or an unknown payment are acknowledged with 200 so the gateway stops
// retrying.
func PaymobWebhook(svc PaymobWebhookService, verifier signatureVerifier, guard PaymobWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		// Authenticity is checked before shape: with a secret configured an
		// unsigned body is 401 even when it would also fail parsing.
		if verifier != nil && verifier.Enabled() {
			if err := verifier.Verify(payload, signatureFrom(r)); err != nil {
				svc.RecordOutcome(metrics.OutcomeBadSignature)
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature"))
				return
			}
		} else if logg != nil {
			logg.Warn(ctx, "paymob webhook signature verification disabled")
		}

		notification, err := paymobwebhook.ParseNotification(payload)
		if err != nil {
			svc.RecordOutcome(metrics.OutcomeInvalid)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "paymob_order_id", notification.RemoteOrderID)
		}

		key := paymobwebhook.BodyKey(payload)
		seen, err := guard.CheckAndMark(ctx, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			svc.RecordOutcome(metrics.OutcomeDuplicate)
			responses.WriteSuccess(w, types.StatusBody{Status: "ok"})
			return
		}

		if _, err := svc.HandleNotification(ctx, notification); err != nil {
			_ = guard.Delete(context.WithoutCancel(ctx), key)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.StatusBody{Status: "ok"})
	}
}

func signatureFrom(r *http.Request) string {
	if sig := strings.TrimSpace(r.URL.Query().Get(signatureQueryParam)); sig != "" {
		return sig
	}
	return strings.TrimSpace(r.Header.Get(SignatureHeader))
}
