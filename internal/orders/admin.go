package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/audit"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const defaultCancelReason = "Admin cancellation"

// CancelInput identifies the order and the admin cancelling it.
type CancelInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Reason  string
}

// UpdateInput is an admin patch. Nil fields are left untouched.
type UpdateInput struct {
	OrderID         uuid.UUID
	ActorID         uuid.UUID
	Status          *string
	ShippingAddress *string
	PaymentStatus   *string
}

func (s *service) AdminGetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return toDTO(order), nil
}

// CancelOrder restocks every line and marks the order cancelled. A second
// cancel finds the order already cancelled and changes nothing.
func (s *service) CancelOrder(ctx context.Context, input CancelInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	var (
		cancelled bool
		number    string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}
		number = order.OrderNumber
		if order.Status == enums.OrderStatusCancelled {
			return nil
		}
		if err := s.cancelLocked(ctx, tx, order, input.ActorID, reason); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return nil, asOrderError(err, "cancel order")
	}

	if cancelled {
		if s.logg != nil {
			s.logg.Info(s.logg.WithOrderID(ctx, input.OrderID.String()), "order cancelled")
		}
		s.record(ctx, audit.Entry{
			UserID:    actorPtr(input.ActorID),
			Action:    enums.AuditActionDelete,
			ModelName: audit.ModelOrder,
			ObjectID:  input.OrderID,
			Details: map[string]any{
				"order_number": number,
				"reason":       reason,
			},
		})
	}
	return s.AdminGetOrder(ctx, input.OrderID)
}

// UpdateOrderFields applies an admin patch to status, shipping_address and
// payment_status. Setting status to cancelled runs the cancel path so stock
// is restored; a cancelled order cannot move to another status.
func (s *service) UpdateOrderFields(ctx context.Context, input UpdateInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Status == nil && input.ShippingAddress == nil && input.PaymentStatus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	var target enums.OrderStatus
	if input.Status != nil {
		parsed, err := enums.ParseOrderStatus(strings.TrimSpace(*input.Status))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]any{"status": *input.Status})
		}
		target = parsed
	}
	if input.PaymentStatus != nil {
		trimmed := strings.TrimSpace(*input.PaymentStatus)
		if trimmed == "" || len(trimmed) > maxPaymentStatusLen {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_status must be 1 to 50 characters")
		}
		input.PaymentStatus = &trimmed
	}

	var (
		oldStatus enums.OrderStatus
		newStatus enums.OrderStatus
		changed   []string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}
		oldStatus = order.Status
		newStatus = order.Status

		if target != "" && target != order.Status && order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled orders cannot change status").
				WithDetails(map[string]any{"status": string(order.Status), "requested": string(target)})
		}

		updates := map[string]any{}
		if input.ShippingAddress != nil && *input.ShippingAddress != order.ShippingAddress {
			updates["shipping_address"] = *input.ShippingAddress
			order.ShippingAddress = *input.ShippingAddress
			changed = append(changed, "shipping_address")
		}
		if input.PaymentStatus != nil && *input.PaymentStatus != order.PaymentStatus {
			updates["payment_status"] = *input.PaymentStatus
			order.PaymentStatus = *input.PaymentStatus
			changed = append(changed, "payment_status")
		}
		if len(updates) > 0 {
			if err := repo.Update(ctx, order.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
			}
		}

		if target != "" && target != order.Status {
			if target == enums.OrderStatusCancelled {
				if err := s.cancelLocked(ctx, tx, order, input.ActorID, defaultCancelReason); err != nil {
					return err
				}
			} else {
				if err := repo.Update(ctx, order.ID, map[string]any{"status": target}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
				}
				order.Status = target
			}
			newStatus = target
			changed = append(changed, "status")
		}

		if len(changed) == 0 {
			return nil
		}
		return s.emit(ctx, tx, enums.EventOrderUpdated, order, input.ActorID, payloads.OrderUpdatedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			Status:        order.Status,
			PaymentStatus: order.PaymentStatus,
			Changed:       changed,
		})
	})
	if err != nil {
		return nil, asOrderError(err, "update order")
	}

	if len(changed) > 0 {
		s.record(ctx, audit.Entry{
			UserID:    actorPtr(input.ActorID),
			Action:    enums.AuditActionStatusChange,
			ModelName: audit.ModelOrder,
			ObjectID:  input.OrderID,
			Details: map[string]any{
				"old_status": string(oldStatus),
				"new_status": string(newStatus),
				"changed":    changed,
			},
		})
	}
	return s.AdminGetOrder(ctx, input.OrderID)
}

// cancelLocked restocks the order lines and writes the cancelled status. The
// caller holds the order row lock.
func (s *service) cancelLocked(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID, reason string) error {
	repo := s.repo.WithTx(tx)
	items, err := repo.ListItems(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}

	products := s.catalog.WithTx(tx)
	restocked := make([]payloads.OrderLine, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if err := products.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return asOrderError(err, "restock product")
		}
		restocked = append(restocked, payloads.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.PriceAtPurchase,
		})
	}

	if err := repo.Update(ctx, order.ID, map[string]any{"status": enums.OrderStatusCancelled}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	order.Status = enums.OrderStatusCancelled

	return s.emit(ctx, tx, enums.EventOrderCanceled, order, actorID, payloads.OrderCanceledEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Reason:      reason,
		Restocked:   restocked,
	})
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, actorID uuid.UUID, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          data,
	}
	if actorID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actorID, Role: string(enums.RoleAdmin)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func actorPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
