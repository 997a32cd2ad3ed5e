package payment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Provider statuses
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
	StatusRejected = "rejected"
)

// Payment is the provider's view of a payment
type Payment struct {
	ID                string
	Status            string
	ExternalReference string
}

// PreferenceRequest describes a hosted checkout for one order
type PreferenceRequest struct {
	OrderID         string
	Title           string
	Amount          decimal.Decimal
	Currency        string
	PayerEmail      string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	NotificationURL string
}

// Preference is a created hosted checkout
type Preference struct {
	ID        string
	InitPoint string
}

// APIError is a non-2xx answer from the provider
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment provider returned %d: %s", e.StatusCode, e.Body)
}
