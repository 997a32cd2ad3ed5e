package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"checkout-service/internal/util"
)

const defaultCurrency = "BRL"

// Client talks to the Mercado Pago REST API
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a new provider client
func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type paymentResponse struct {
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}

// GetPayment fetches a payment by its provider id
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentClient.GetPayment")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentProviderLatency.WithLabelValues("get_payment").Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var body paymentResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}

	return &Payment{ID: id, Status: body.Status, ExternalReference: body.ExternalReference}, nil
}

type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceBody struct {
	Items             []preferenceItem  `json:"items"`
	Payer             map[string]string `json:"payer"`
	ExternalReference string            `json:"external_reference"`
	AutoReturn        string            `json:"auto_return"`
	BackURLs          map[string]string `json:"back_urls"`
	NotificationURL   string            `json:"notification_url"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference creates a hosted checkout and returns its initiation URL
func (c *Client) CreatePreference(ctx context.Context, pr PreferenceRequest) (*Preference, error) {
	ctx, span := util.StartSpan(ctx, "PaymentClient.CreatePreference")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentProviderLatency.WithLabelValues("create_preference").Observe(time.Since(start).Seconds())
	}()

	currency := pr.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	payload, err := json.Marshal(preferenceBody{
		Items: []preferenceItem{{
			ID:         pr.OrderID,
			Title:      pr.Title,
			Quantity:   1,
			UnitPrice:  pr.Amount.InexactFloat64(),
			CurrencyID: currency,
		}},
		Payer:             map[string]string{"email": pr.PayerEmail},
		ExternalReference: pr.OrderID,
		AutoReturn:        "approved",
		BackURLs: map[string]string{
			"success": pr.SuccessURL,
			"failure": pr.FailureURL,
			"pending": pr.PendingURL,
		},
		NotificationURL: pr.NotificationURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body preferenceResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}
	if body.InitPoint == "" {
		return nil, fmt.Errorf("payment provider returned no init_point for order %s", pr.OrderID)
	}

	return &Preference{ID: body.ID, InitPoint: body.InitPoint}, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}
