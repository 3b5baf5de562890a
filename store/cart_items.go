package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/models"
)

// CartItems stores cart lines for both identity kinds. Authenticated lines
// live in cart_items keyed by user_id, anonymous lines in
// anonymous_cart_items keyed by cart_id.
type CartItems struct {
	q Querier
}

func NewCartItems(q Querier) *CartItems {
	return &CartItems{q: q}
}

type cartTable struct {
	name   string
	keyCol string
	key    any
}

func tableFor(id models.CartIdentity) cartTable {
	if userID, ok := id.UserID(); ok {
		return cartTable{name: "cart_items", keyCol: "user_id", key: userID}
	}
	cartID, _ := id.CartID()
	return cartTable{name: "anonymous_cart_items", keyCol: "cart_id", key: cartID}
}

// Quantity returns the current quantity and whether a row exists.
func (r *CartItems) Quantity(ctx context.Context, id models.CartIdentity, productID int) (int, bool, error) {
	t := tableFor(id)
	var qty int
	err := r.q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT quantity FROM %s WHERE %s = ? AND product_id = ?", t.name, t.keyCol),
		t.key, productID,
	).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get %s quantity: %w", id, err)
	}
	return qty, true, nil
}

func (r *CartItems) Insert(ctx context.Context, id models.CartIdentity, productID, quantity int) error {
	t := tableFor(id)
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s, product_id, quantity, created_at, updated_at) VALUES (?, ?, ?, ?, ?)", t.name, t.keyCol),
		t.key, productID, quantity, now, now)
	if err != nil {
		return fmt.Errorf("insert %s item: %w", id, err)
	}
	return nil
}

// SetQuantity reports whether a row was updated.
func (r *CartItems) SetQuantity(ctx context.Context, id models.CartIdentity, productID, quantity int) (bool, error) {
	t := tableFor(id)
	res, err := r.q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET quantity = ?, updated_at = ? WHERE %s = ? AND product_id = ?", t.name, t.keyCol),
		quantity, time.Now().UTC(), t.key, productID)
	if err != nil {
		return false, fmt.Errorf("update %s item: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s item: %w", id, err)
	}
	return n > 0, nil
}

func (r *CartItems) Delete(ctx context.Context, id models.CartIdentity, productID int) error {
	t := tableFor(id)
	_, err := r.q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND product_id = ?", t.name, t.keyCol),
		t.key, productID)
	if err != nil {
		return fmt.Errorf("delete %s item: %w", id, err)
	}
	return nil
}

// DeleteProducts removes the given products from the identity's cart and
// leaves any other line alone.
func (r *CartItems) DeleteProducts(ctx context.Context, id models.CartIdentity, productIDs []int) error {
	if len(productIDs) == 0 {
		return nil
	}
	t := tableFor(id)
	args := make([]any, 0, len(productIDs)+1)
	args = append(args, t.key)
	for _, pid := range productIDs {
		args = append(args, pid)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(productIDs)), ",")
	_, err := r.q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND product_id IN (%s)", t.name, t.keyCol, placeholders),
		args...)
	if err != nil {
		return fmt.Errorf("delete %s items: %w", id, err)
	}
	return nil
}

// Clear bulk-deletes every line of the identity's cart.
func (r *CartItems) Clear(ctx context.Context, id models.CartIdentity) (int64, error) {
	t := tableFor(id)
	res, err := r.q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, t.keyCol), t.key)
	if err != nil {
		return 0, fmt.Errorf("clear %s cart: %w", id, err)
	}
	return res.RowsAffected()
}

// Lines returns the cart joined with its products in insertion order.
func (r *CartItems) Lines(ctx context.Context, id models.CartIdentity) ([]models.CartLine, error) {
	t := tableFor(id)
	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.product_id, c.quantity,
		       p.id, p.name, p.brand, p.image, p.price, p.stock, p.created_at, p.updated_at
		FROM %s c
		JOIN products p ON p.id = c.product_id
		WHERE c.%s = ?
		ORDER BY c.id ASC`, t.name, t.keyCol), t.key)
	if err != nil {
		return nil, fmt.Errorf("list %s cart: %w", id, err)
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var l models.CartLine
		p := &l.Product
		if err := rows.Scan(&l.ProductID, &l.Quantity,
			&p.ID, &p.Name, &p.Brand, &p.Image, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
