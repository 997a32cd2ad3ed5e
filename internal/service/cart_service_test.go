package service

import (
	"context"
	"math"
	"testing"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItemMergesQuantities(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, alice, "p2", 2)
	require.NoError(t, err)
	cart, err := f.carts.AddItem(ctx, alice, "p2", 3)
	require.NoError(t, err)

	require.Len(t, cart.Lines, 1)
	assert.Equal(t, models.CartLine{ProductID: "p2", Quantity: 5}, cart.Lines[0])
	assert.Equal(t, f.clock.Now(), cart.UpdatedAt)
}

func TestAddItemStockBoundary(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, alice, "p1", 3)
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, alice, "p1", 1)
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
	assert.Contains(t, apperr.PublicMessage(err), "in stock: 3, in cart: 3")

	views, err := f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 3, views[0].Quantity)
}

func TestAddItemNeverLeavesCartAboveStock(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	for _, q := range []int{1, 2, 1, 5, 1, 1} {
		_, err := f.carts.AddItem(ctx, alice, "p1", q)
		if err != nil {
			assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
		}
		cart, err := f.store.GetCart(ctx, alice.UserID)
		require.NoError(t, err)
		assert.LessOrEqual(t, cart.QuantityOf("p1"), f.stockOf(t, "p1"))
	}
}

func TestAddItemHugeQuantityAfterExistingLine(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, alice, "p1", 1)
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, alice, "p1", math.MaxInt)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))

	cart, err := f.store.GetCart(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 1, cart.Lines[0].Quantity)
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t, "")
	f.store.PutProduct(models.Product{ID: "p0", Name: "Sold out", Price: decimal.NewFromInt(1), Stock: 0})
	ctx := context.Background()

	cases := []struct {
		name      string
		productID string
		quantity  int
		kind      apperr.Kind
	}{
		{"empty product", "", 1, apperr.InvalidInput},
		{"blank product", "   ", 1, apperr.InvalidInput},
		{"zero quantity", "p1", 0, apperr.InvalidInput},
		{"negative quantity", "p1", -2, apperr.InvalidInput},
		{"unknown product", "nope", 1, apperr.NotFound},
		{"out of stock", "p0", 1, apperr.OutOfStock},
		{"more than stock", "p1", 4, apperr.InsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.carts.AddItem(ctx, alice, tc.productID, tc.quantity)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	_, err := f.store.GetCart(ctx, alice.UserID)
	assert.Error(t, err, "failed adds must not create a cart")
}

func TestRemoveOneUnit(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.carts.RemoveOneUnit(ctx, alice, "p1")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = f.carts.AddItem(ctx, alice, "p1", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, alice, "p2", 1)
	require.NoError(t, err)

	cart, err := f.carts.RemoveOneUnit(ctx, alice, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, cart.QuantityOf("p1"))

	cart, err = f.carts.RemoveOneUnit(ctx, alice, "p1")
	require.NoError(t, err)
	assert.Equal(t, -1, cart.Find("p1"))
	assert.Len(t, cart.Lines, 1)
	for _, l := range cart.Lines {
		assert.Greater(t, l.Quantity, 0)
	}

	_, err = f.carts.RemoveOneUnit(ctx, alice, "p1")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = f.carts.RemoveOneUnit(ctx, alice, "")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestGetCartWithoutCartIsEmpty(t *testing.T) {
	f := newFixture(t, "")

	views, err := f.carts.GetCart(context.Background(), bob)
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestGetCartJoinsLiveProducts(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, alice, "p1", 3)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, alice, "p2", 1)
	require.NoError(t, err)

	f.store.PutProduct(models.Product{ID: "p1", Name: "Collar v2", Price: decimal.RequireFromString("12.00"), Stock: 1})
	f.store.DeleteProduct("p2")

	views, err := f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "p1", views[0].ProductID)
	assert.Equal(t, 3, views[0].Quantity, "stored quantity survives a lower stock")
	require.NotNil(t, views[0].Product)
	assert.Equal(t, "Collar v2", views[0].Product.Name)

	assert.Equal(t, "p2", views[1].ProductID)
	assert.Equal(t, 1, views[1].Quantity)
	assert.Nil(t, views[1].Product)
}

type blockingCartStore struct {
	*memstore.Store
}

func (b blockingCartStore) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCartStoreTimeout(t *testing.T) {
	f := newFixture(t, "")
	opts := Options{StoreTimeout: 20 * time.Millisecond, Now: f.clock.Now}
	slow := blockingCartStore{f.store}
	carts := NewCartService(slow, f.store, f.inventory, opts)

	_, err := carts.GetCart(context.Background(), alice)
	assert.Equal(t, apperr.StoreTimeout, apperr.KindOf(err))

	_, err = carts.AddItem(context.Background(), alice, "p1", 1)
	assert.Equal(t, apperr.StoreTimeout, apperr.KindOf(err))
}
