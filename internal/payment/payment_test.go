package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/123", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":123,"status":"approved","external_reference":"o1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	p, err := c.GetPayment(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, "o1", p.ExternalReference)
	assert.Equal(t, "123", p.ID)
}

func TestGetPaymentProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok", time.Second).GetPayment(context.Background(), "9")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGetPaymentTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok", 20*time.Millisecond).GetPayment(context.Background(), "1")
	assert.Error(t, err)
}

func TestCreatePreference(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://pay.example/pref-1"}`))
	}))
	defer srv.Close()

	pref, err := NewClient(srv.URL, "tok", time.Second).CreatePreference(context.Background(), PreferenceRequest{
		OrderID:         "o1",
		Title:           "Order #o1",
		Amount:          decimal.RequireFromString("35.90"),
		PayerEmail:      "buyer@example.com",
		SuccessURL:      "https://shop/success",
		NotificationURL: "https://shop/webhooks/payment",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/pref-1", pref.InitPoint)

	assert.Equal(t, "o1", got["external_reference"])
	assert.Equal(t, "https://shop/webhooks/payment", got["notification_url"])
	item := got["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, 35.9, item["unit_price"])
	assert.Equal(t, "BRL", item["currency_id"])
	assert.Equal(t, float64(1), item["quantity"])
}

func TestCreatePreferenceWithoutInitPoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pref-1"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok", time.Second).CreatePreference(context.Background(), PreferenceRequest{OrderID: "o1"})
	assert.Error(t, err)
}

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		query url.Values
		want  Notification
	}{
		{"webhook body", `{"type":"payment","data":{"id":"123"}}`, nil, Notification{Type: "payment", PaymentID: "123"}},
		{"numeric id", `{"type":"payment","data":{"id":12345678901}}`, nil, Notification{Type: "payment", PaymentID: "12345678901"}},
		{"topic and id", `{"topic":"payment","id":77}`, nil, Notification{Type: "payment", PaymentID: "77"}},
		{"query only", ``, url.Values{"topic": {"payment"}, "id": {"55"}}, Notification{Type: "payment", PaymentID: "55"}},
		{"query data.id", ``, url.Values{"type": {"payment"}, "data.id": {"66"}}, Notification{Type: "payment", PaymentID: "66"}},
		{"body wins over query", `{"type":"merchant_order","id":"1"}`, url.Values{"topic": {"payment"}}, Notification{Type: "merchant_order", PaymentID: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNotification([]byte(tt.body), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNotificationInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"no id":   `{"type":"payment"}`,
		"no type": `{"data":{"id":"1"}}`,
		"empty":   ``,
		"garbage": `not json`,
	} {
		_, err := ParseNotification([]byte(body), url.Values{})
		assert.ErrorIs(t, err, ErrInvalidNotification, name)
	}
}

func TestNotificationIsPayment(t *testing.T) {
	assert.True(t, Notification{Type: "PAYMENT"}.IsPayment())
	assert.False(t, Notification{Type: "merchant_order"}.IsPayment())
}

func TestVerifySignature(t *testing.T) {
	v1 := Sign("s3cret", "123", "req-1", "1700000000")
	header := "ts=1700000000,v1=" + v1

	assert.NoError(t, VerifySignature("s3cret", header, "req-1", "123"))
	assert.NoError(t, VerifySignature("s3cret", " ts=1700000000 , v1="+v1, "req-1", "123"))

	assert.ErrorIs(t, VerifySignature("s3cret", header, "req-2", "123"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", header, "req-1", "124"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("other", header, "req-1", "123"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", "", "req-1", "123"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", header, "", "123"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", "v1="+v1, "req-1", "123"), ErrInvalidSignature)
}
