package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// CartDTO is the read model returned to customers. total_amount is derived
// from the items on every read and never stored.
type CartDTO struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	Items       []CartItemDTO `json:"items"`
	TotalAmount string        `json:"total_amount"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type CartItemDTO struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product"`
	ProductName string    `json:"product_name,omitempty"`
	Size        string    `json:"size"`
	Color       string    `json:"color"`
	Quantity    int       `json:"quantity"`
	Price       string    `json:"price"`
	LineTotal   string    `json:"line_total"`
}

// Total sums price times quantity over the items.
func Total(items []models.CartItem) decimal.Decimal {
	lines := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.LineTotal())
	}
	return money.Sum(lines...)
}

func toDTO(cart *models.Cart) *CartDTO {
	items := make([]CartItemDTO, 0, len(cart.Items))
	for _, item := range cart.Items {
		dto := CartItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
			Price:     money.Format(item.Price),
			LineTotal: money.Format(item.LineTotal()),
		}
		if item.Product != nil {
			dto.ProductName = item.Product.Name
		}
		items = append(items, dto)
	}
	return &CartDTO{
		ID:          cart.ID,
		UserID:      cart.UserID,
		Items:       items,
		TotalAmount: money.Format(Total(cart.Items)),
		CreatedAt:   cart.CreatedAt,
		UpdatedAt:   cart.UpdatedAt,
	}
}
