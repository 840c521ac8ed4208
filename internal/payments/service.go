// Package payments starts hosted Paymob payments for orders and reports
// payment statistics.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/audit"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/paymob"
)

// maxBillingStreetLen keeps long addresses inside the gateway's field limit.
const maxBillingStreetLen = 255

type paymentMetrics interface {
	PaymentInitiation(outcome string)
	SetPaymentStats(total, successful, failed, pending int64, successRate float64)
}

// Service exposes payment initiation and statistics.
type Service interface {
	InitiateCheckout(ctx context.Context, userID, orderID uuid.UUID) (*CheckoutResult, error)
	Stats(ctx context.Context) (*Stats, error)
}

// CheckoutResult is returned to the customer to open the hosted iframe.
type CheckoutResult struct {
	IframeURL string    `json:"iframe_url"`
	PaymentID uuid.UUID `json:"payment_id"`
}

type ServiceParams struct {
	Repo    Repository
	Orders  orders.Repository
	Gateway Gateway
	Config  config.PaymobConfig
	Audit   audit.Recorder
	Metrics paymentMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	orders  orders.Repository
	gateway Gateway
	cfg     config.PaymobConfig
	audit   audit.Recorder
	metrics paymentMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if strings.TrimSpace(params.Config.Currency) == "" {
		params.Config.Currency = "EGP"
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		gateway: params.Gateway,
		cfg:     params.Config,
		audit:   params.Audit,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// InitiateCheckout registers the order with Paymob, obtains a payment key and
// records a PENDING payment attempt. Gateway and persistence failures are both
// reported as PAYMENT_INITIATION_FAILED; money has not moved at that point.
func (s *service) InitiateCheckout(ctx context.Context, userID, orderID uuid.UUID) (*CheckoutResult, error) {
	order, err := s.orders.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": string(order.Status)})
	}

	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, order.ID.String())
	}

	paymentOrderID := uuid.NewString()
	amountCents := money.ToMinorUnits(order.TotalAmount)

	iframeURL, remoteID, err := s.startRemotePayment(ctx, order, paymentOrderID, amountCents)
	if err != nil {
		return nil, s.initiationFailed(ctx, err)
	}

	payment, err := s.repo.Create(ctx, &models.Payment{
		OrderID:         order.ID,
		PaymentOrderID:  paymentOrderID,
		PaymobPaymentID: &remoteID,
		Status:          enums.PaymentStatusPending,
		Amount:          order.TotalAmount,
		Currency:        s.cfg.Currency,
	})
	if err != nil {
		return nil, s.initiationFailed(ctx, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "Could not record the payment attempt."))
	}

	if s.metrics != nil {
		s.metrics.PaymentInitiation(metrics.OutcomeSuccess)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "payment_id", payment.ID.String()), "payment initiated")
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			UserID:    &userID,
			Action:    enums.AuditActionPaymentInitiate,
			ModelName: audit.ModelPayment,
			ObjectID:  payment.ID,
			Details: map[string]any{
				"order_id":          order.ID.String(),
				"payment_order_id":  paymentOrderID,
				"paymob_payment_id": remoteID,
				"amount_cents":      amountCents,
			},
		})
	}

	return &CheckoutResult{IframeURL: iframeURL, PaymentID: payment.ID}, nil
}

func (s *service) startRemotePayment(ctx context.Context, order *models.Order, paymentOrderID string, amountCents int64) (string, string, error) {
	token, err := s.gateway.GetAuthToken(ctx)
	if err != nil {
		return "", "", err
	}

	remoteID, err := s.gateway.CreateRemoteOrder(ctx, token, paymob.OrderRequest{
		Currency:        s.cfg.Currency,
		AmountCents:     amountCents,
		Items:           lineItems(order.Items),
		MerchantOrderID: paymentOrderID,
	})
	if err != nil {
		return "", "", err
	}

	key, err := s.gateway.GeneratePaymentKey(ctx, token, paymob.PaymentKeyRequest{
		Currency:          s.cfg.Currency,
		ExpirationSeconds: s.cfg.PaymentKeyExpiration,
		AmountCents:       amountCents,
		RemoteOrderID:     remoteID,
		Billing:           s.billingFor(order),
		IntegrationID:     s.cfg.IntegrationID,
	})
	if err != nil {
		return "", "", err
	}

	return s.gateway.BuildPaymentRedirectURL(key, s.cfg.IframeID), remoteID, nil
}

// billingFor fills the payment key's customer block from config and puts the
// order's billing address, or its shipping address, in the street field.
func (s *service) billingFor(order *models.Order) paymob.BillingData {
	street := strings.TrimSpace(order.BillingAddress)
	if street == "" {
		street = strings.TrimSpace(order.ShippingAddress)
	}
	if runes := []rune(street); len(runes) > maxBillingStreetLen {
		street = string(runes[:maxBillingStreetLen])
	}
	return paymob.BillingData{
		Email:       s.cfg.BillingEmail,
		FirstName:   s.cfg.BillingFirstName,
		LastName:    s.cfg.BillingLastName,
		PhoneNumber: s.cfg.BillingPhone,
		Street:      street,
		City:        s.cfg.BillingCity,
		Country:     s.cfg.BillingCountry,
	}.Complete()
}

func (s *service) initiationFailed(ctx context.Context, err error) error {
	if s.metrics != nil {
		s.metrics.PaymentInitiation(metrics.OutcomeFailure)
	}
	if s.logg != nil {
		s.logg.Error(ctx, "payment initiation failed", err)
	}
	typed := pkgerrors.As(err)
	if typed != nil && typed.Code() == pkgerrors.CodeGateway {
		return typed
	}
	message := err.Error()
	if typed != nil {
		message = typed.Message()
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, message)
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	reader := &StatsReader{repo: s.repo}
	if s.metrics != nil {
		reader.metrics = s.metrics
	}
	return reader.Stats(ctx)
}

func lineItems(items []models.OrderItem) []paymob.LineItem {
	out := make([]paymob.LineItem, 0, len(items))
	for _, item := range items {
		name := item.ProductID.String()
		if item.Product != nil && item.Product.Name != "" {
			name = item.Product.Name
		}
		out = append(out, paymob.LineItem{
			Name:        name,
			AmountCents: money.ToMinorUnits(item.PriceAtPurchase),
			Description: strings.TrimSpace(item.Size + " " + item.Color),
			Quantity:    item.Quantity,
		})
	}
	return out
}
