// Package paymobwebhook applies Paymob transaction callbacks to payments and
// their orders.
package paymobwebhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/audit"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type webhookMetrics interface {
	Webhook(outcome string)
}

type ServiceParams struct {
	Payments          payments.Repository
	Orders            orders.Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Audit             audit.Recorder
	Metrics           webhookMetrics
	Logger            *logger.Logger
}

type Service struct {
	payments payments.Repository
	orders   orders.Repository
	tx       txRunner
	outbox   outbox.Emitter
	audit    audit.Recorder
	metrics  webhookMetrics
	logg     *logger.Logger
}

// Result describes what a callback changed.
type Result struct {
	Outcome string
	Payment *models.Payment
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Service{
		payments: params.Payments,
		orders:   params.Orders,
		tx:       params.TransactionRunner,
		outbox:   params.Outbox,
		audit:    params.Audit,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// RecordOutcome counts a callback by outcome, including ones refused before
// they reached HandleNotification.
func (s *Service) RecordOutcome(outcome string) {
	if s != nil && s.metrics != nil {
		s.metrics.Webhook(outcome)
	}
}

// HandleNotification settles the payment named by the callback. Only a
// PENDING payment moves; a replay or a callback for an unknown payment is
// acknowledged without changes.
func (s *Service) HandleNotification(ctx context.Context, n Notification) (*Result, error) {
	if n.RemoteOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing order_id")
	}
	if s.logg != nil {
		ctx = s.logg.WithField(ctx, "paymob_order_id", n.RemoteOrderID)
	}

	target := enums.PaymentStatusFailed
	if n.Success {
		target = enums.PaymentStatusSuccess
	}
	var errMsg *string
	if !n.Success {
		msg := n.Message
		if msg == "" {
			msg = "payment declined"
			if n.ResponseCode != "" {
				msg = "payment declined: " + n.ResponseCode
			}
		}
		errMsg = &msg
	}

	result := &Result{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		payment, err := repo.FindByPaymobID(ctx, n.RemoteOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result.Outcome = metrics.OutcomeUnknownPayment
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		result.Payment = payment

		settled, err := repo.Settle(ctx, payment.ID, target, errMsg)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payment")
		}
		if !settled {
			result.Outcome = metrics.OutcomeDuplicate
			return nil
		}
		payment.Status = target
		payment.ErrorMessage = errMsg

		if err := s.syncOrder(ctx, tx, payment.OrderID, n.Success); err != nil {
			return err
		}

		eventType := enums.EventPaymentFailed
		result.Outcome = metrics.OutcomeSettledFailed
		if n.Success {
			eventType = enums.EventPaymentSucceeded
			result.Outcome = metrics.OutcomeSettledSuccess
		}
		event := payloads.PaymentStatusEvent{
			PaymentID:       payment.ID,
			OrderID:         payment.OrderID,
			PaymentOrderID:  payment.PaymentOrderID,
			PaymobPaymentID: n.RemoteOrderID,
			Status:          target,
			Amount:          payment.Amount,
			Currency:        payment.Currency,
		}
		if errMsg != nil {
			event.ErrorMessage = *errMsg
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data:          event,
		})
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "paymob webhook failed", err)
		}
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply webhook")
		}
		return nil, err
	}

	s.RecordOutcome(result.Outcome)
	s.finish(ctx, n, result)
	return result, nil
}

// syncOrder mirrors the settled payment on its order. A success marks a
// pending order paid; a failure leaves the order pending so the customer can
// retry. Orders that already moved past pending keep their status, and a paid
// order is never marked failed by a later attempt.
func (s *Service) syncOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, success bool) error {
	repo := s.orders.WithTx(tx)
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}

	updates := map[string]any{}
	if success {
		if order.Status == enums.OrderStatusPending {
			updates["status"] = enums.OrderStatusPaid
		}
		if order.PaymentStatus != enums.OrderPaymentPaid {
			updates["payment_status"] = enums.OrderPaymentPaid
		}
	} else if order.Status == enums.OrderStatusPending && order.PaymentStatus != enums.OrderPaymentFailed {
		updates["payment_status"] = enums.OrderPaymentFailed
	}
	if len(updates) == 0 {
		return nil
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	return nil
}

func (s *Service) finish(ctx context.Context, n Notification, result *Result) {
	if s.logg != nil {
		fields := map[string]any{"outcome": result.Outcome, "success": n.Success}
		if n.TransactionID != "" {
			fields["transaction_id"] = n.TransactionID
		}
		if result.Payment != nil {
			fields["payment_id"] = result.Payment.ID.String()
		}
		logCtx := s.logg.WithFields(ctx, fields)
		if result.Outcome == metrics.OutcomeUnknownPayment {
			s.logg.Warn(logCtx, "webhook for unknown payment ignored")
		} else {
			s.logg.Info(logCtx, "paymob webhook processed")
		}
	}

	if s.audit == nil || result.Payment == nil {
		return
	}
	if result.Outcome != metrics.OutcomeSettledSuccess && result.Outcome != metrics.OutcomeSettledFailed {
		return
	}
	details := map[string]any{
		"order_id":          result.Payment.OrderID.String(),
		"paymob_payment_id": n.RemoteOrderID,
		"status":            string(result.Payment.Status),
		"success":           n.Success,
	}
	if n.TransactionID != "" {
		details["transaction_id"] = n.TransactionID
	}
	if n.ResponseCode != "" {
		details["response_code"] = n.ResponseCode
	}
	s.audit.Record(ctx, audit.Entry{
		Action:    enums.AuditActionPaymentVerify,
		ModelName: audit.ModelPayment,
		ObjectID:  result.Payment.ID,
		Details:   details,
	})
}
