package service

import (
	"context"
	"encoding/json"
	"testing"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFreight(t *testing.T) {
	for raw, want := range map[string]string{
		`12.5`:          "12.5",
		`"7.90"`:        "7.9",
		`3`:             "3",
		`0`:             "0",
		`null`:          "0",
		`-5`:            "-5",
		`"-5.00"`:       "-5",
		`9999999999.99`: "9999999999.99",
		`1e3`:           "1000",
		`"4.500"`:       "4.5",
	} {
		got, err := ParseFreight(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.True(t, decimal.RequireFromString(want).Equal(got), raw)
	}

	for _, raw := range []string{
		``, `"abc"`, `true`, `{}`, `[1]`,
		`0.001`, `"12.345"`,
		`1e100000000`, `1e-100000000`, `1e10`, `"10000000000"`, `-1e10`,
	} {
		_, err := ParseFreight(json.RawMessage(raw))
		assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err), raw)
	}
}

func TestCreateOrderRejectsInvalidFreight(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, alice, "p1", 1)
	require.NoError(t, err)

	for _, freight := range []string{"0", "-5", "0.001", "1e100000000", "10000000000"} {
		_, err := f.orders.CreateOrder(ctx, alice, decimal.RequireFromString(freight))
		assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err), freight)
	}

	cart, err := f.store.GetCart(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1, "rejected orders leave the cart alone")
}

func TestCreateOrderEmptyCart(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.orders.CreateOrder(ctx, alice, decimal.NewFromInt(10))
	assert.Equal(t, apperr.EmptyCart, apperr.KindOf(err))

	_, err = f.carts.AddItem(ctx, alice, "p1", 1)
	require.NoError(t, err)
	_, err = f.carts.RemoveOneUnit(ctx, alice, "p1")
	require.NoError(t, err)

	_, err = f.orders.CreateOrder(ctx, alice, decimal.NewFromInt(10))
	assert.Equal(t, apperr.EmptyCart, apperr.KindOf(err))
}

func TestCreateOrderTotalsExactlyAndEmptiesCart(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, alice, "p1", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, alice, "p2", 1)
	require.NoError(t, err)

	freight := decimal.RequireFromString("15.90")
	resp, err := f.orders.CreateOrder(ctx, alice, freight)
	require.NoError(t, err)

	// 2 x 10.00 + 1 x 25.50 + 15.90
	assert.True(t, decimal.RequireFromString("61.40").Equal(resp.Total), resp.Total.String())
	assert.True(t, freight.Equal(resp.Freight))

	order := f.order(t, resp.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, alice.UserID, order.UserID)
	assert.False(t, order.Shipped)
	assert.Nil(t, order.ShippedAt)
	assert.Nil(t, order.PaymentID)
	assert.Equal(t, f.clock.Now(), order.CreatedAt)
	require.Len(t, order.Items, 2)

	sum := decimal.Zero
	for _, it := range order.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	assert.True(t, sum.Add(order.Freight).Equal(order.Total))

	cart, err := f.store.GetCart(ctx, alice.UserID)
	require.NoError(t, err, "the cart row is kept")
	assert.Empty(t, cart.Lines)

	assert.Equal(t, 3, f.stockOf(t, "p1"), "ordering does not touch stock")
	assert.Equal(t, 10, f.stockOf(t, "p2"))

	created, _, _, _ := f.pub.counts()
	assert.Equal(t, 1, created)
}

func TestCreateOrderCapturesPriceAtCreation(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	orderID := f.placeOrder(t, alice, map[string]int{"p2": 1})

	f.store.PutProduct(models.Product{ID: "p2", Name: "Leash", Price: decimal.RequireFromString("99.00"), Stock: 10})

	order, err := f.store.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25.50").Equal(order.Items[0].UnitPrice))
}

func TestCreateOrderPricesMissingProductAtZero(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, alice, "p1", 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, alice, "p2", 2)
	require.NoError(t, err)
	f.store.DeleteProduct("p2")

	resp, err := f.orders.CreateOrder(ctx, alice, decimal.RequireFromString("5"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("15.00").Equal(resp.Total), resp.Total.String())

	order := f.order(t, resp.OrderID)
	for _, it := range order.Items {
		if it.ProductID == "p2" {
			assert.True(t, it.UnitPrice.IsZero())
		}
	}
}
