package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidNotification = errors.New("invalid notification")

// Notification is the part of a provider callback the reconciler acts on
type Notification struct {
	Type      string
	PaymentID string
}

// IsPayment reports whether the notification is about a payment
func (n Notification) IsPayment() bool {
	return strings.EqualFold(n.Type, "payment")
}

// ParseNotification reads the type and payment id from the body first, then the query string.
// Ids may arrive as JSON strings or numbers.
func ParseNotification(body []byte, query url.Values) (Notification, error) {
	fields := map[string]interface{}{}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return Notification{}, ErrInvalidNotification
		}
	}

	var n Notification
	n.Type = firstNonEmpty(
		scalar(fields["type"]),
		scalar(fields["topic"]),
		query.Get("type"),
		query.Get("topic"),
	)

	var dataID string
	if data, ok := fields["data"].(map[string]interface{}); ok {
		dataID = scalar(data["id"])
	}
	n.PaymentID = firstNonEmpty(
		dataID,
		scalar(fields["id"]),
		query.Get("data.id"),
		query.Get("id"),
	)

	if n.Type == "" || n.PaymentID == "" {
		return n, ErrInvalidNotification
	}
	return n, nil
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
