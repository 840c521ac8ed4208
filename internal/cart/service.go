package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the customer cart operations.
type Service interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	ReplaceItems(ctx context.Context, userID uuid.UUID, items []ItemInput) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
}

// ItemInput is one requested cart line. The stored price always comes from the
// catalog, so clients cannot choose their own.
type ItemInput struct {
	ProductID uuid.UUID
	Size      string
	Color     string
	Quantity  int
}

type service struct {
	repo    CartRepository
	catalog catalog.Catalog
	tx      txRunner
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, products catalog.Catalog, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, catalog: products, tx: tx}, nil
}

// GetOrCreate returns the customer's cart, creating an empty one on first use.
func (s *service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toDTO(cart), nil
}

// ReplaceItems swaps the whole item set for the given one. Items not listed are
// dropped. The cart row is locked first so concurrent replaces and checkout
// run one after another.
func (s *service) ReplaceItems(ctx context.Context, userID uuid.UUID, items []ItemInput) (*CartDTO, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	if _, err := s.ensureCart(ctx, userID); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}

		ids := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ProductID)
		}
		products, err := s.catalog.WithTx(tx).GetProducts(ctx, ids)
		if err != nil {
			return err
		}

		rows := make([]models.CartItem, 0, len(items))
		for _, item := range items {
			product, ok := products[item.ProductID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
			rows = append(rows, models.CartItem{
				ProductID: product.ID,
				Size:      item.Size,
				Color:     item.Color,
				Quantity:  item.Quantity,
				Price:     product.Price,
			})
		}

		if err := repo.ReplaceItems(ctx, cart.ID, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace cart items")
		}
		return repo.Touch(ctx, cart.ID)
	})
	if err != nil {
		return nil, asCartError(err, "update cart")
	}

	updated, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return toDTO(updated), nil
}

// Clear empties the cart and returns it. The cart row itself stays.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}
		if _, err := repo.ClearItems(ctx, locked.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return repo.Touch(ctx, locked.ID)
	})
	if err != nil {
		return nil, asCartError(err, "clear cart")
	}
	cart.Items = []models.CartItem{}
	return toDTO(cart), nil
}

// ensureCart finds or lazily creates the cart. A concurrent first access can
// lose the insert race on carts_user_id_key; the winner's row is returned then.
func (s *service) ensureCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cart, err := s.repo.FindByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	created, err := s.repo.Create(ctx, &models.Cart{UserID: userID})
	if err == nil {
		created.Items = []models.CartItem{}
		return created, nil
	}
	if !dbpkg.IsUniqueViolation(err, "user_id") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	cart, err = s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func validateItems(items []ItemInput) error {
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is required").
				WithDetails(map[string]any{"index": i})
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer").
				WithDetails(map[string]any{"index": i, "quantity": item.Quantity})
		}
	}
	return nil
}

func asCartError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
