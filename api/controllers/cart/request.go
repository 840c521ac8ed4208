package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
)

// replaceCartRequest is the PUT /cart body. Clients may echo a price back but
// the stored price always comes from the catalog.
type replaceCartRequest struct {
	Items []cartItemRequest `json:"items" validate:"dive"`
}

type cartItemRequest struct {
	Product  uuid.UUID           `json:"product" validate:"required"`
	Size     string              `json:"size" validate:"max=10"`
	Color    string              `json:"color" validate:"max=50"`
	Quantity int                 `json:"quantity" validate:"gt=0"`
	Price    decimal.NullDecimal `json:"price"`
}

func (r replaceCartRequest) toInputs() []cartsvc.ItemInput {
	out := make([]cartsvc.ItemInput, 0, len(r.Items))
	for _, item := range r.Items {
		out = append(out, cartsvc.ItemInput{
			ProductID: item.Product,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
		})
	}
	return out
}
