package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// PaymentCheckout handles POST /checkout/{orderId}: it opens a Paymob
// payment for one of the caller's pending orders and answers with the
// hosted iframe URL and the local payment id.
func PaymentCheckout(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}

		result, err := svc.InitiateCheckout(ctx, userID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil && result != nil {
			logg.Info(logg.WithField(ctx, "payment_id", result.PaymentID.String()), "checkout started")
		}
		responses.WriteSuccess(w, result)
	}
}

// callerID is the authenticated user; Auth has already rejected anonymous
// requests on every route that calls it.
func callerID(r *http.Request) (uuid.UUID, error) {
	if id, ok := middleware.UserUUIDFromContext(r.Context()); ok {
		return id, nil
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
}
