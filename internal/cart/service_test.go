package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fixture struct {
	svc      Service
	repo     *Repository
	products *catalog.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t, "cart")
	repo := NewRepository(conn)
	products := catalog.NewRepository(conn)
	svc, err := NewService(repo, products, client)
	require.NoError(t, err)
	return fixture{svc: svc, repo: repo, products: products}
}

func (f fixture) product(t *testing.T, name, price string) *models.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), &models.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		IsAvailable:   true,
		StockQuantity: 10,
	})
	require.NoError(t, err)
	return p
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	first, err := f.svc.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, first.Items)
	assert.Equal(t, "0.00", first.TotalAmount)

	second, err := f.svc.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetOrCreate(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReplaceItemsComputesTotalFromCatalogPrice(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	shirt := f.product(t, "Shirt", "100.00")
	socks := f.product(t, "Socks", "9.99")

	cart, err := f.svc.ReplaceItems(context.Background(), userID, []ItemInput{
		{ProductID: shirt.ID, Size: "M", Color: "blue", Quantity: 2},
		{ProductID: socks.ID, Size: "L", Color: "black", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "229.97", cart.TotalAmount)

	byProduct := map[uuid.UUID]CartItemDTO{}
	for _, item := range cart.Items {
		byProduct[item.ProductID] = item
	}
	assert.Equal(t, "100.00", byProduct[shirt.ID].Price)
	assert.Equal(t, "200.00", byProduct[shirt.ID].LineTotal)
	assert.Equal(t, "Shirt", byProduct[shirt.ID].ProductName)
}

func TestReplaceItemsDropsUnlistedItems(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	a := f.product(t, "A", "1.00")
	b := f.product(t, "B", "2.00")

	_, err := f.svc.ReplaceItems(context.Background(), userID, []ItemInput{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 1},
	})
	require.NoError(t, err)

	cart, err := f.svc.ReplaceItems(context.Background(), userID, []ItemInput{{ProductID: b.ID, Quantity: 4}})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, b.ID, cart.Items[0].ProductID)
	assert.Equal(t, 4, cart.Items[0].Quantity)
	assert.Equal(t, "8.00", cart.TotalAmount)
}

func TestReplaceItemsValidation(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	a := f.product(t, "A", "1.00")

	_, err := f.svc.ReplaceItems(context.Background(), userID, []ItemInput{{ProductID: a.ID, Quantity: 0}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.ReplaceItems(context.Background(), userID, []ItemInput{{ProductID: a.ID, Quantity: -1}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReplaceItemsUnknownProductLeavesCartUntouched(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	a := f.product(t, "A", "5.00")

	_, err := f.svc.ReplaceItems(context.Background(), userID, []ItemInput{{ProductID: a.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.svc.ReplaceItems(context.Background(), userID, []ItemInput{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: uuid.New(), Quantity: 1},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	cart, err := f.svc.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestClearKeepsCart(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	a := f.product(t, "A", "5.00")

	before, err := f.svc.ReplaceItems(context.Background(), userID, []ItemInput{{ProductID: a.ID, Quantity: 1}})
	require.NoError(t, err)

	cleared, err := f.svc.Clear(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Items)

	after, err := f.svc.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Empty(t, after.Items)
	assert.Equal(t, "0.00", after.TotalAmount)
}

func TestCartsAreScopedPerCustomer(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", "1.00")
	b := f.product(t, "B", "1.00")
	alice, bob := uuid.New(), uuid.New()

	_, err := f.svc.GetOrCreate(context.Background(), alice)
	require.NoError(t, err)
	_, err = f.svc.GetOrCreate(context.Background(), bob)
	require.NoError(t, err)

	_, err = f.svc.ReplaceItems(context.Background(), alice, []ItemInput{{ProductID: a.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.ReplaceItems(context.Background(), bob, []ItemInput{{ProductID: b.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.Clear(context.Background(), bob)
	require.NoError(t, err)
	_, err = f.svc.ReplaceItems(context.Background(), bob, []ItemInput{{ProductID: b.ID, Quantity: 1}})
	require.NoError(t, err)

	aliceCart, err := f.svc.GetOrCreate(context.Background(), alice)
	require.NoError(t, err)
	bobCart, err := f.svc.GetOrCreate(context.Background(), bob)
	require.NoError(t, err)
	require.Len(t, aliceCart.Items, 1)
	require.Len(t, bobCart.Items, 1)
	assert.Equal(t, a.ID, aliceCart.Items[0].ProductID)
	assert.Equal(t, b.ID, bobCart.Items[0].ProductID)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil)
	assert.Error(t, err)
}

// lockCountingRepo records every row lock taken through a transaction.
type lockCountingRepo struct {
	*Repository
	locks *int
}

func (r lockCountingRepo) WithTx(tx *gorm.DB) CartRepository {
	return lockCountingRepo{Repository: NewRepository(tx), locks: r.locks}
}

func (r lockCountingRepo) LockByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	*r.locks++
	return r.Repository.LockByUser(ctx, userID)
}

func TestMutationsLockTheCartRow(t *testing.T) {
	client, conn := dbtest.Client(t, "cart_lock")
	locks := 0
	products := catalog.NewRepository(conn)
	svc, err := NewService(lockCountingRepo{Repository: NewRepository(conn), locks: &locks}, products, client)
	require.NoError(t, err)

	p, err := products.Create(context.Background(), &models.Product{
		Name:          "A",
		Price:         decimal.RequireFromString("3.00"),
		IsAvailable:   true,
		StockQuantity: 5,
	})
	require.NoError(t, err)

	userID := uuid.New()
	_, err = svc.ReplaceItems(context.Background(), userID, []ItemInput{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, locks, "replace must lock the cart row")

	_, err = svc.Clear(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, locks, "clear must lock the cart row")
}
