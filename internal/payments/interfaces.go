package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/paymob"
)

// Repository persists payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByPaymobID(ctx context.Context, remoteID string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	Settle(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, errorMessage *string) (bool, error)
	CountByStatus(ctx context.Context) (map[enums.PaymentStatus]int64, error)
}

// Gateway is the Paymob call chain used to start a hosted payment.
type Gateway interface {
	GetAuthToken(ctx context.Context) (string, error)
	CreateRemoteOrder(ctx context.Context, token string, req paymob.OrderRequest) (string, error)
	GeneratePaymentKey(ctx context.Context, token string, req paymob.PaymentKeyRequest) (string, error)
	BuildPaymentRedirectURL(paymentKey, iframeID string) string
}
