package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecrementStockNeverNegative(t *testing.T) {
	s := New()
	s.PutProduct(models.Product{ID: "p1", Stock: 5})
	ctx := context.Background()

	for _, amount := range []int{2, 2, 2, 7} {
		stock, err := s.DecrementStock(ctx, "p1", amount)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stock, 0)
	}

	stock, err := s.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, stock)

	_, err = s.DecrementStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApproveOrderOnlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.CreateOrder(ctx, &models.Order{ID: "o1", Status: models.OrderStatusPending, CreatedAt: now}))

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApproveOrder(ctx, "o1", "pay-1", now.Add(-24*time.Hour))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, store.ErrNotPending)
		}
	}
	assert.Equal(t, 1, wins)

	o, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusApproved, o.Status)
	assert.Equal(t, "pay-1", *o.PaymentID)
}

func TestApproveOrderCancelsExpired(t *testing.T) {
	s := New()
	ctx := context.Background()
	created := time.Now().Add(-25 * time.Hour)
	require.NoError(t, s.CreateOrder(ctx, &models.Order{ID: "o1", Status: models.OrderStatusPending, CreatedAt: created}))

	status, err := s.ApproveOrder(ctx, "o1", "pay-1", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, status)

	o, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, o.PaymentID)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveCart(ctx, &models.Cart{UserID: "u1", Lines: []models.CartLine{{ProductID: "p1", Quantity: 1}}}))

	cart, err := s.GetCart(ctx, "u1")
	require.NoError(t, err)
	cart.Lines[0].Quantity = 99

	again, err := s.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Lines[0].Quantity)
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()
	require.NoError(t, s.CreateOrder(ctx, &models.Order{ID: "old", UserID: "u1", CreatedAt: base.Add(-time.Hour)}))
	require.NoError(t, s.CreateOrder(ctx, &models.Order{ID: "new", UserID: "u1", CreatedAt: base}))
	require.NoError(t, s.CreateOrder(ctx, &models.Order{ID: "other", UserID: "u2", CreatedAt: base}))

	mine, err := s.ListOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "new", mine[0].ID)
	assert.Equal(t, "old", mine[1].ID)

	all, err := s.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCanceledContextShortCircuits(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetCart(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
}
