package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderLine is the per-item snapshot carried by order events.
type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderCreatedEvent is emitted when checkout commits a new order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uuid.UUID       `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderLine     `json:"items"`
}

// OrderCanceledEvent is emitted once per cancellation, after restock.
type OrderCanceledEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      uuid.UUID   `json:"user_id"`
	Reason      string      `json:"reason,omitempty"`
	Restocked   []OrderLine `json:"restocked"`
}

// OrderUpdatedEvent lists the admin-changed fields.
type OrderUpdatedEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	Status        enums.OrderStatus `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	Changed       []string          `json:"changed"`
}

// PaymentStatusEvent reports a settled payment attempt.
type PaymentStatusEvent struct {
	PaymentID       uuid.UUID           `json:"payment_id"`
	OrderID         uuid.UUID           `json:"order_id"`
	PaymentOrderID  string              `json:"payment_order_id"`
	PaymobPaymentID string              `json:"paymob_payment_id"`
	Status          enums.PaymentStatus `json:"status"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	ErrorMessage    string              `json:"error_message,omitempty"`
}
