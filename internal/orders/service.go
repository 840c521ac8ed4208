package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/audit"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const maxPaymentStatusLen = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type checkoutMetrics interface {
	Checkout(outcome string)
}

// Service exposes customer order operations and the admin order surface.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*OrderDTO, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	GetPaymentStatus(ctx context.Context, userID, orderID uuid.UUID) (*PaymentStatusDTO, error)

	AdminGetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	CancelOrder(ctx context.Context, input CancelInput) (*OrderDTO, error)
	UpdateOrderFields(ctx context.Context, input UpdateInput) (*OrderDTO, error)
}

// CheckoutInput carries the optional order fields accepted at checkout.
type CheckoutInput struct {
	UserID          uuid.UUID
	ShippingAddress string
	BillingAddress  string
	PaymentStatus   string
}

type ServiceParams struct {
	Repo              Repository
	Carts             cart.CartRepository
	Catalog           catalog.Catalog
	TransactionRunner txRunner
	Outbox            outboxPublisher
	Audit             audit.Recorder
	Metrics           checkoutMetrics
	Logger            *logger.Logger
}

type service struct {
	repo    Repository
	carts   cart.CartRepository
	catalog catalog.Catalog
	tx      txRunner
	outbox  outboxPublisher
	audit   audit.Recorder
	metrics checkoutMetrics
	logg    *logger.Logger
	numbers func() (string, error)
}

// NewService builds the order service. Audit, metrics and logger are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    params.Repo,
		carts:   params.Carts,
		catalog: params.Catalog,
		tx:      params.TransactionRunner,
		outbox:  params.Outbox,
		audit:   params.Audit,
		metrics: params.Metrics,
		logg:    params.Logger,
		numbers: generateOrderNumber,
	}, nil
}

// Checkout turns the customer's cart into a pending order. Everything from the
// cart lock to clearing the items happens in one transaction.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*OrderDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	paymentStatus := strings.TrimSpace(input.PaymentStatus)
	if paymentStatus == "" {
		paymentStatus = enums.OrderPaymentPending
	}
	if len(paymentStatus) > maxPaymentStatusLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_status is too long")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		userCart, err := carts.LockByUser(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return emptyCartError()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}
		items, err := carts.ListItems(ctx, userCart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
		}
		if len(items) == 0 {
			return emptyCartError()
		}

		products := s.catalog.WithTx(tx)
		locked, err := products.LockProducts(ctx, productIDs(items))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock products")
		}
		if err := checkAvailability(items, locked); err != nil {
			return err
		}
		for _, item := range items {
			ok, err := products.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
			}
			if !ok {
				product := locked[item.ProductID]
				return pkgerrors.New(pkgerrors.CodeInsufficientStock,
					fmt.Sprintf("Insufficient stock for product %s.", product.Name)).
					WithDetails(map[string]any{
						"product_id": item.ProductID.String(),
						"requested":  item.Quantity,
					})
			}
		}

		repo := s.repo.WithTx(tx)
		number, err := s.uniqueOrderNumber(ctx, repo)
		if err != nil {
			return err
		}

		order := &models.Order{
			UserID:          input.UserID,
			OrderNumber:     number,
			Status:          enums.OrderStatusPending,
			PaymentStatus:   paymentStatus,
			TotalAmount:     cart.Total(items),
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  input.BillingAddress,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, "order_number") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number collision")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		orderItems := make([]models.OrderItem, 0, len(items))
		lines := make([]payloads.OrderLine, 0, len(items))
		for _, item := range items {
			orderItems = append(orderItems, models.OrderItem{
				OrderID:         order.ID,
				ProductID:       item.ProductID,
				Size:            item.Size,
				Color:           item.Color,
				Quantity:        item.Quantity,
				PriceAtPurchase: item.Price,
			})
			lines = append(lines, payloads.OrderLine{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
			})
		}
		if err := repo.CreateItems(ctx, orderItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		if _, err := carts.ClearItems(ctx, userCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		if err := carts.Touch(ctx, userCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.RoleCustomer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				TotalAmount: order.TotalAmount,
				Items:       lines,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}

		created = order
		return nil
	})
	if err != nil {
		s.recordCheckout(checkoutOutcome(err))
		return nil, asOrderError(err, "checkout")
	}
	s.recordCheckout(metrics.OutcomeSuccess)

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, created.ID.String()), "order created")
	}
	userID := input.UserID
	s.record(ctx, audit.Entry{
		UserID:    &userID,
		Action:    enums.AuditActionCreate,
		ModelName: audit.ModelOrder,
		ObjectID:  created.ID,
		Details: map[string]any{
			"order_number": created.OrderNumber,
			"total_amount": created.TotalAmount.StringFixed(2),
		},
	})

	order, err := s.repo.FindByID(ctx, created.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return toDTO(order), nil
}

func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return toDTO(order), nil
}

// ListOrders pages through the customer's orders, newest first.
func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	rows, next, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		if errors.Is(err, ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		list.Orders = append(list.Orders, *toDTO(&rows[i]))
	}
	return list, nil
}

// GetPaymentStatus reports the order's payment_status to its owner.
func (s *service) GetPaymentStatus(ctx context.Context, userID, orderID uuid.UUID) (*PaymentStatusDTO, error) {
	order, err := s.repo.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return &PaymentStatusDTO{Status: order.PaymentStatus}, nil
}

// uniqueOrderNumber draws tokens until one is unused. The check runs inside
// the checkout transaction; the unique index still guards the insert.
func (s *service) uniqueOrderNumber(ctx context.Context, repo Repository) (string, error) {
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number, err := s.numbers()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		exists, err := repo.OrderNumberExists(ctx, number)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order number")
		}
		if !exists {
			return number, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order number")
}

func (s *service) recordCheckout(outcome string) {
	if s.metrics != nil {
		s.metrics.Checkout(outcome)
	}
}

func (s *service) record(ctx context.Context, entry audit.Entry) {
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
}

// checkAvailability fails on the first unavailable product in cart order.
func checkAvailability(items []models.CartItem, products map[uuid.UUID]models.Product) error {
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if !product.IsAvailable {
			return pkgerrors.New(pkgerrors.CodeProductUnavailable,
				fmt.Sprintf("Product %s is not available.", product.Name)).
				WithDetails(map[string]any{"product_id": product.ID.String()})
		}
	}
	return nil
}

func productIDs(items []models.CartItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func checkoutOutcome(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart):
		return metrics.OutcomeEmptyCart
	case pkgerrors.IsCode(err, pkgerrors.CodeProductUnavailable):
		return metrics.OutcomeUnavailable
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		return metrics.OutcomeInsufficientStock
	default:
		return metrics.OutcomeFailure
	}
}

func emptyCartError() error {
	return pkgerrors.New(pkgerrors.CodeEmptyCart, "Cart is empty.")
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func asOrderError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
