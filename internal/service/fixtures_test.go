package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	alice = auth.Identity{UserID: "u-alice", Email: "alice@example.com", Role: models.RoleCustomer}
	bob   = auth.Identity{UserID: "u-bob", Email: "bob@example.com", Role: models.RoleCustomer}
	admin = auth.Identity{UserID: "u-admin", Email: "admin@example.com", Role: models.RoleAdmin}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu          sync.Mutex
	created     []*models.OrderCreatedEvent
	approved    []*models.OrderApprovedEvent
	cancelled   []*models.OrderCancelledEvent
	decremented []*models.StockDecrementedEvent
}

func (p *recordingPublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishOrderApproved(ctx context.Context, e *models.OrderApprovedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approved = append(p.approved, e)
	return nil
}

func (p *recordingPublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return nil
}

func (p *recordingPublisher) PublishStockDecremented(ctx context.Context, e *models.StockDecrementedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decremented = append(p.decremented, e)
	return nil
}

func (p *recordingPublisher) counts() (created, approved, cancelled, decremented int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created), len(p.approved), len(p.cancelled), len(p.decremented)
}

type fakeProvider struct {
	mu        sync.Mutex
	payments  map[string]*payment.Payment
	getErr    error
	prefErr   error
	prefCalls int
	prefReqs  []payment.PreferenceRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{payments: map[string]*payment.Payment{}}
}

func (p *fakeProvider) setPayment(id, status, orderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments[id] = &payment.Payment{ID: id, Status: status, ExternalReference: orderID}
}

func (p *fakeProvider) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	pay, ok := p.payments[id]
	if !ok {
		return nil, &payment.APIError{StatusCode: 404, Body: "not found"}
	}
	cp := *pay
	return &cp, nil
}

func (p *fakeProvider) CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prefErr != nil {
		return nil, p.prefErr
	}
	p.prefCalls++
	p.prefReqs = append(p.prefReqs, req)
	return &payment.Preference{
		ID:        fmt.Sprintf("pref-%d", p.prefCalls),
		InitPoint: fmt.Sprintf("https://pay.example/%s/%d", req.OrderID, p.prefCalls),
	}, nil
}

type memLinkCache struct {
	mu    sync.Mutex
	links map[string]string
}

func newMemLinkCache() *memLinkCache {
	return &memLinkCache{links: map[string]string{}}
}

func (c *memLinkCache) GetPaymentLink(ctx context.Context, orderID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	link, ok := c.links[orderID]
	return link, ok, nil
}

func (c *memLinkCache) SetPaymentLink(ctx context.Context, orderID, link string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.links[orderID]; ok {
		return false, nil
	}
	c.links[orderID] = link
	return true, nil
}

type fixture struct {
	store      *memstore.Store
	clock      *fakeClock
	pub        *recordingPublisher
	provider   *fakeProvider
	cache      *memLinkCache
	inventory  *InventoryService
	carts      *CartService
	orders     *OrderService
	reconciler *PaymentReconciler
	checkout   *CheckoutService
}

func newFixture(t *testing.T, webhookSecret string) *fixture {
	t.Helper()

	f := &fixture{
		store:    memstore.New(),
		clock:    newFakeClock(),
		pub:      &recordingPublisher{},
		provider: newFakeProvider(),
		cache:    newMemLinkCache(),
	}
	opts := Options{StoreTimeout: time.Second, OrderExpiry: 24 * time.Hour, Now: f.clock.Now}

	f.store.PutProduct(models.Product{ID: "p1", Name: "Collar", Price: decimal.RequireFromString("10.00"), Stock: 3, Color: "red"})
	f.store.PutProduct(models.Product{ID: "p2", Name: "Leash", Price: decimal.RequireFromString("25.50"), Stock: 10, Model: "L"})
	f.store.PutUser(models.User{ID: alice.UserID, Name: "Alice", Email: alice.Email, Phone: "555-0101", Address: "1 Main St", Role: alice.Role})
	f.store.PutUser(models.User{ID: bob.UserID, Name: "Bob", Email: bob.Email, Role: bob.Role})

	f.inventory = NewInventoryService(f.store, f.pub, opts)
	f.carts = NewCartService(f.store, f.store, f.inventory, opts)
	f.orders = NewOrderService(f.store, f.pub, opts)
	f.reconciler = NewPaymentReconciler(f.store, f.inventory, f.provider, f.pub, webhookSecret, opts)
	f.checkout = NewCheckoutService(f.store, f.store, f.provider, f.cache, f.pub,
		CheckoutConfig{PublicURL: "https://shop.example.com/", LinkTTL: time.Minute}, opts)
	return f
}

// placeOrder fills the cart of id and turns it into an order
func (f *fixture) placeOrder(t *testing.T, id auth.Identity, lines map[string]int) string {
	t.Helper()
	ctx := context.Background()
	for productID, qty := range lines {
		_, err := f.carts.AddItem(ctx, id, productID, qty)
		require.NoError(t, err)
	}
	resp, err := f.orders.CreateOrder(ctx, id, decimal.RequireFromString("5.00"))
	require.NoError(t, err)
	return resp.OrderID
}

func (f *fixture) stockOf(t *testing.T, productID string) int {
	t.Helper()
	stock, err := f.store.GetStock(context.Background(), productID)
	require.NoError(t, err)
	return stock
}

func (f *fixture) order(t *testing.T, orderID string) *models.Order {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return o
}
