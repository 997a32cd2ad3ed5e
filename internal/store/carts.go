package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
)

type cartRow struct {
	UserID    string    `db:"user_id"`
	Items     []byte    `db:"items"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GetCart retrieves the cart of a user
func (s *Store) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	var row cartRow
	err := s.db.GetContext(ctx, &row,
		"SELECT user_id, items, updated_at FROM carts WHERE user_id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart of %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart := &models.Cart{UserID: row.UserID, UpdatedAt: row.UpdatedAt}
	if err := json.Unmarshal(row.Items, &cart.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return cart, nil
}

// SaveCart upserts the whole cart. Concurrent writers: the last one wins.
func (s *Store) SaveCart(ctx context.Context, cart *models.Cart) error {
	lines := cart.Lines
	if lines == nil {
		lines = []models.CartLine{}
	}
	items, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, items, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`,
		cart.UserID, items, cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}
