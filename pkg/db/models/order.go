package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the immutable result of a checkout. Only status, payment_status and
// the address fields change after creation.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	OrderNumber     string            `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	Status          enums.OrderStatus `gorm:"column:status;type:varchar(20);not null"`
	PaymentStatus   string            `gorm:"column:payment_status;type:varchar(50);not null"`
	TotalAmount     decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	ShippingAddress string            `gorm:"column:shipping_address;not null"`
	BillingAddress  string            `gorm:"column:billing_address;not null"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
