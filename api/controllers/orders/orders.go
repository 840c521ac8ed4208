// Package orders holds the customer-facing order handlers. Every handler
// scopes reads and writes to the authenticated caller.
package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxAddressLen = 2000

// Create turns the caller's cart into an order.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asCaller(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		var payload createOrderRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			return err
		}
		order, err := svc.Checkout(r.Context(), internalorders.CheckoutInput{
			UserID:          userID,
			ShippingAddress: validators.SanitizeString(payload.ShippingAddress, maxAddressLen),
			BillingAddress:  validators.SanitizeString(payload.BillingAddress, maxAddressLen),
			PaymentStatus:   payload.PaymentStatus,
		})
		if err != nil {
			return err
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
		return nil
	})
}

// List pages through the caller's orders newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asCaller(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		page, err := validators.ParsePage(r)
		if err != nil {
			return err
		}
		list, err := svc.ListOrders(r.Context(), userID, page)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, list)
		return nil
	})
}

// Detail returns one of the caller's orders. Orders owned by someone else
// are reported as missing.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return ownedOrder(svc, logg, func(ctx context.Context, userID, orderID uuid.UUID) (any, error) {
		return svc.GetOrder(ctx, userID, orderID)
	})
}

// PaymentStatus answers the storefront polling a single order after the
// iframe closes.
func PaymentStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return ownedOrder(svc, logg, func(ctx context.Context, userID, orderID uuid.UUID) (any, error) {
		return svc.GetPaymentStatus(ctx, userID, orderID)
	})
}

// asCaller resolves the authenticated user before fn runs and renders any
// error fn returns.
func asCaller(svc internalorders.Service, logg *logger.Logger, fn func(http.ResponseWriter, *http.Request, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		if err := fn(w, r, userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

func ownedOrder(svc internalorders.Service, logg *logger.Logger, load func(context.Context, uuid.UUID, uuid.UUID) (any, error)) http.HandlerFunc {
	return asCaller(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			return err
		}
		view, err := load(r.Context(), userID, orderID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, view)
		return nil
	})
}
