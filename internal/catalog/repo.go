// Package catalog is the product read/stock surface the cart and order flows
// consume. Product management itself lives outside this service.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Catalog is the persistence surface used by cart and order services.
type Catalog interface {
	WithTx(tx *gorm.DB) Catalog
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	IncrementStock(ctx context.Context, id uuid.UUID, delta int) error
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

// Repository implements Catalog on gorm.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) Catalog {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a product. Used by seeding and tests.
func (r *Repository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// GetProduct returns NOT_FOUND when the id is unknown.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": id.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

// GetProducts loads the given ids keyed by id. Missing ids are simply absent
// from the result.
func (r *Repository) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	return r.loadProducts(r.db.WithContext(ctx), ids)
}

// LockProducts is GetProducts with FOR UPDATE row locks on Postgres, ordered
// by id so concurrent checkouts acquire locks in the same order.
func (r *Repository) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	query := r.db.WithContext(ctx).Order("id ASC")
	if dbpkg.IsPostgres(r.db.Dialector) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.loadProducts(query, ids)
}

func (r *Repository) loadProducts(query *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := query.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// IncrementStock adds delta to stock_quantity in a single statement.
func (r *Repository) IncrementStock(ctx context.Context, id uuid.UUID, delta int) error {
	if delta <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock delta must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": id.String()})
	}
	return nil
}

// DecrementStock subtracts qty only when enough stock remains. It reports
// false, without error, when the guard rejected the update.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", id, qty).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	return res.RowsAffected == 1, nil
}
