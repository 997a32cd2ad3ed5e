package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product represents a catalog entry and its stock count
type Product struct {
	ID       string          `db:"id" json:"id"`
	Name     string          `db:"name" json:"name"`
	Price    decimal.Decimal `db:"price" json:"price"`
	Stock    int             `db:"stock" json:"stock"`
	Model    string          `db:"model" json:"model,omitempty"`
	Color    string          `db:"color" json:"color,omitempty"`
	ImageURL string          `db:"image_url" json:"imageUrl,omitempty"`
	Weight   float64         `db:"weight" json:"weight,omitempty"`
	Width    float64         `db:"width" json:"width,omitempty"`
	Height   float64         `db:"height" json:"height,omitempty"`
	Length   float64         `db:"length" json:"length,omitempty"`
}

// User is the read-only view of an account the core needs
type User struct {
	ID      string `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Email   string `db:"email" json:"email"`
	Phone   string `db:"phone" json:"phone"`
	Address string `db:"address" json:"address"`
	Role    string `db:"role" json:"role"`
}

// CartLine is one product selection inside a cart
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Cart is the per-user pending selection
type Cart struct {
	UserID    string     `json:"userId"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Find returns the index of productID in the cart, or -1.
func (c *Cart) Find(productID string) int {
	for i, l := range c.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// QuantityOf returns how many units of productID the cart already holds.
func (c *Cart) QuantityOf(productID string) int {
	if i := c.Find(productID); i >= 0 {
		return c.Lines[i].Quantity
	}
	return 0
}

// Order is an immutable priced snapshot of a cart plus freight
type Order struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"userId"`
	Items     []OrderItem     `db:"-" json:"items"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Freight   decimal.Decimal `db:"freight" json:"freight"`
	Status    OrderStatus     `db:"status" json:"status"`
	PaymentID *string         `db:"payment_id" json:"paymentId,omitempty"`
	Shipped   bool            `db:"shipped" json:"shipped"`
	ShippedAt *time.Time      `db:"shipped_at" json:"shippedAt"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// OrderItem captures the unit price at purchase time
type OrderItem struct {
	OrderID   string          `db:"order_id" json:"-"`
	ProductID string          `db:"product_id" json:"productId"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unitPrice"`
}

// OrderStatus is the payment lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// User roles
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)
