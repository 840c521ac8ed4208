package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Payment is one gateway payment attempt against an order.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Order           *Order              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaymentOrderID  string              `gorm:"column:payment_order_id;not null;uniqueIndex:payments_payment_order_id_key"`
	PaymobPaymentID *string             `gorm:"column:paymob_payment_id;index"`
	Status          enums.PaymentStatus `gorm:"column:status;type:varchar(20);not null"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency        string              `gorm:"column:currency;type:varchar(3);not null"`
	ErrorMessage    *string             `gorm:"column:error_message"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
