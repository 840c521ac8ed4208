package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// OrderDTO is the order read model. Amounts are fixed-point strings.
type OrderDTO struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user"`
	OrderNumber     string            `json:"order_number"`
	Status          enums.OrderStatus `json:"status"`
	TotalAmount     string            `json:"total_amount"`
	ShippingAddress string            `json:"shipping_address"`
	BillingAddress  string            `json:"billing_address"`
	PaymentStatus   string            `json:"payment_status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Items           []OrderItemDTO    `json:"items"`
}

type OrderItemDTO struct {
	ID              uuid.UUID `json:"id"`
	ProductID       uuid.UUID `json:"product"`
	ProductName     string    `json:"product_name,omitempty"`
	Size            string    `json:"size"`
	Color           string    `json:"color"`
	Quantity        int       `json:"quantity"`
	PriceAtPurchase string    `json:"price_at_purchase"`
}

// OrderList is one page of a customer's orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// PaymentStatusDTO answers the order-status poll.
type PaymentStatusDTO struct {
	Status string `json:"status"`
}

func toDTO(order *models.Order) *OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		dto := OrderItemDTO{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Size:            item.Size,
			Color:           item.Color,
			Quantity:        item.Quantity,
			PriceAtPurchase: money.Format(item.PriceAtPurchase),
		}
		if item.Product != nil {
			dto.ProductName = item.Product.Name
		}
		items = append(items, dto)
	}
	return &OrderDTO{
		ID:              order.ID,
		UserID:          order.UserID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		TotalAmount:     money.Format(order.TotalAmount),
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		PaymentStatus:   order.PaymentStatus,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		Items:           items,
	}
}
