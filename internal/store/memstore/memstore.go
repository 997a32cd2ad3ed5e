// Package memstore is an in-process store with the same semantics as the Postgres store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
)

type Store struct {
	mu       sync.Mutex
	products map[string]models.Product
	users    map[string]models.User
	carts    map[string]models.Cart
	orders   map[string]models.Order
}

// New creates an empty store
func New() *Store {
	return &Store{
		products: make(map[string]models.Product),
		users:    make(map[string]models.User),
		carts:    make(map[string]models.Cart),
		orders:   make(map[string]models.Order),
	}
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// PutProduct inserts or replaces a product
func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

// PutUser inserts or replaces a user
func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]models.Product, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && !seen[id] {
			seen[id] = true
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *Store) GetStock(ctx context.Context, id string) (int, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

func (s *Store) DecrementStock(ctx context.Context, id string, amount int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	p.Stock -= amount
	if p.Stock < 0 {
		p.Stock = 0
	}
	s.products[id] = p
	return p.Stock, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *Store) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return nil, fmt.Errorf("cart of %s: %w", userID, store.ErrNotFound)
	}
	c.Lines = append([]models.CartLine(nil), c.Lines...)
	return &c, nil
}

func (s *Store) SaveCart(ctx context.Context, cart *models.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cart
	c.Lines = append([]models.CartLine{}, cart.Lines...)
	s.carts[cart.UserID] = c
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	s.orders[order.ID] = copyOrder(*order)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	o = copyOrder(o)
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]models.Order, 0)
	for _, o := range s.orders {
		if userID == "" || o.UserID == userID {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *Store) ApproveOrder(ctx context.Context, id, paymentID string, cutoff time.Time) (models.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return "", store.ErrNotPending
	}
	if o.CreatedAt.Before(cutoff) {
		o.Status = models.OrderStatusCancelled
	} else {
		o.Status = models.OrderStatusApproved
		pid := paymentID
		o.PaymentID = &pid
	}
	s.orders[id] = o
	return o.Status, nil
}

func (s *Store) CancelIfPending(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusCancelled
	s.orders[id] = o
	return true, nil
}

func (s *Store) CancelExpired(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []models.Order
	for id, o := range s.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(cutoff) {
			o.Status = models.OrderStatusCancelled
			s.orders[id] = o
			cancelled = append(cancelled, copyOrder(o))
		}
	}
	return cancelled, nil
}

func (s *Store) SetShipped(ctx context.Context, id string, shipped bool, shippedAt *time.Time, cutoff time.Time) (models.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return "", fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	o.Shipped = shipped
	o.ShippedAt = nil
	if shippedAt != nil {
		at := *shippedAt
		o.ShippedAt = &at
	}
	if o.Status == models.OrderStatusPending && o.CreatedAt.Before(cutoff) {
		o.Status = models.OrderStatusCancelled
	}
	s.orders[id] = o
	return o.Status, nil
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PaymentID != nil {
		pid := *o.PaymentID
		o.PaymentID = &pid
	}
	if o.ShippedAt != nil {
		at := *o.ShippedAt
		o.ShippedAt = &at
	}
	return o
}
