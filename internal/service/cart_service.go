package service

import (
	"context"
	"errors"
	"strings"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CartService mutates a user's pending selection
type CartService struct {
	carts     CartStore
	products  ProductStore
	inventory *InventoryService
	opts      Options
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, products ProductStore, inventory *InventoryService, opts Options) *CartService {
	return &CartService{
		carts:     carts,
		products:  products,
		inventory: inventory,
		opts:      opts.withDefaults(),
		logger:    util.GetLogger(),
	}
}

// CartLineView is a cart line joined with live product data. Product is nil
// when the product no longer exists.
type CartLineView struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Product   *models.Product `json:"product,omitempty"`
}

// AddItem adds quantity units of a product to the caller's cart. Stock is checked
// against the merged quantity, without locking.
func (s *CartService) AddItem(ctx context.Context, id auth.Identity, productID string, quantity int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	productID = strings.TrimSpace(productID)
	if productID == "" || quantity < 1 {
		util.CartMutationsTotal.WithLabelValues("add", "invalid").Inc()
		return nil, apperr.New(apperr.InvalidInput, "productId and a quantity of at least 1 are required")
	}

	stock, err := s.inventory.GetStock(ctx, productID)
	if err != nil {
		util.CartMutationsTotal.WithLabelValues("add", apperr.KindOf(err).String()).Inc()
		return nil, err
	}
	if stock <= 0 {
		util.CartMutationsTotal.WithLabelValues("add", "out_of_stock").Inc()
		return nil, apperr.New(apperr.OutOfStock, "product out of stock")
	}

	cart, err := s.loadCart(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	inCart := cart.QuantityOf(productID)
	if quantity > stock-inCart {
		util.CartMutationsTotal.WithLabelValues("add", "insufficient_stock").Inc()
		return nil, apperr.New(apperr.InsufficientStock, "insufficient stock (in stock: %d, in cart: %d)", stock, inCart)
	}

	if i := cart.Find(productID); i >= 0 {
		cart.Lines[i].Quantity += quantity
	} else {
		cart.Lines = append(cart.Lines, models.CartLine{ProductID: productID, Quantity: quantity})
	}

	if err := s.saveCart(ctx, cart); err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("add", "ok").Inc()
	s.logger.Info("Item added to cart",
		zap.String("user_id", id.UserID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity))
	return cart, nil
}

// RemoveOneUnit decrements a line by one, dropping it when it reaches zero
func (s *CartService) RemoveOneUnit(ctx context.Context, id auth.Identity, productID string) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveOneUnit")
	defer span.End()

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperr.New(apperr.InvalidInput, "productId is required")
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	cart, err := s.carts.GetCart(sctx, id.UserID)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		util.CartMutationsTotal.WithLabelValues("remove", "not_found").Inc()
		return nil, apperr.New(apperr.NotFound, "cart not found")
	}
	if err != nil {
		return nil, storeError(sctx, err, "failed to load cart")
	}

	i := cart.Find(productID)
	if i < 0 {
		util.CartMutationsTotal.WithLabelValues("remove", "not_found").Inc()
		return nil, apperr.New(apperr.NotFound, "item not in cart")
	}

	cart.Lines[i].Quantity--
	if cart.Lines[i].Quantity <= 0 {
		cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
	}

	if err := s.saveCart(ctx, cart); err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("remove", "ok").Inc()
	return cart, nil
}

// GetCart returns the caller's cart joined with current product data
func (s *CartService) GetCart(ctx context.Context, id auth.Identity) ([]CartLineView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	sctx, cancel := s.opts.storeCtx(ctx)
	cart, err := s.carts.GetCart(sctx, id.UserID)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return []CartLineView{}, nil
	}
	if err != nil {
		return nil, storeError(sctx, err, "failed to load cart")
	}

	ids := make([]string, len(cart.Lines))
	for i, l := range cart.Lines {
		ids[i] = l.ProductID
	}

	sctx, cancel = s.opts.storeCtx(ctx)
	products, err := s.products.GetProductsByIDs(sctx, ids)
	cancel()
	if err != nil {
		return nil, storeError(sctx, err, "failed to load products")
	}

	byID := make(map[string]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	views := make([]CartLineView, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		views = append(views, CartLineView{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Product:   byID[l.ProductID],
		})
	}
	return views, nil
}

// loadCart returns the user's cart, or a new empty one
func (s *CartService) loadCart(ctx context.Context, userID string) (*models.Cart, error) {
	sctx, cancel := s.opts.storeCtx(ctx)
	defer cancel()

	cart, err := s.carts.GetCart(sctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Cart{UserID: userID}, nil
	}
	if err != nil {
		return nil, storeError(sctx, err, "failed to load cart")
	}
	return cart, nil
}

func (s *CartService) saveCart(ctx context.Context, cart *models.Cart) error {
	sctx, cancel := s.opts.storeCtx(ctx)
	defer cancel()

	cart.UpdatedAt = s.opts.Now()
	if err := s.carts.SaveCart(sctx, cart); err != nil {
		return storeError(sctx, err, "failed to save cart")
	}
	return nil
}
