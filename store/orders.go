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

type Orders struct {
	q Querier
}

func NewOrders(q Querier) *Orders {
	return &Orders{q: q}
}

// Create inserts the order row and sets its ID and timestamps.
func (r *Orders) Create(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (user_id, status, total, shipping_address, billing_address,
		                    payment_method, payment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, o.Status, o.Total, o.ShippingAddress, o.BillingAddress,
		o.PaymentMethod, o.PaymentID, now, now)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get order id: %w", err)
	}
	o.ID = int(id)
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

// AddItems bulk-inserts the order's line snapshots in one statement.
func (r *Orders) AddItems(ctx context.Context, orderID int, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*7)
	for _, it := range items {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, orderID, it.ProductID, it.Quantity, it.Price, it.ProductName, it.ProductBrand, it.ProductImage)
	}
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO order_items (order_id, product_id, quantity, price, product_name, product_brand, product_image) VALUES "+
			strings.Join(values, ", "), args...)
	if err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, status, total, shipping_address, billing_address,
	payment_method, payment_id, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }, o *models.Order) error {
	return row.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.ShippingAddress, &o.BillingAddress,
		&o.PaymentMethod, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt)
}

// GetForUser returns the order with its items when it belongs to userID.
func (r *Orders) GetForUser(ctx context.Context, orderID, userID int) (*models.Order, error) {
	var o models.Order
	err := scanOrder(r.q.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = ? AND user_id = ?", orderID, userID), &o)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}

	items, err := r.items(ctx, []int{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []models.OrderItem{}
	}
	return &o, nil
}

// ListForUser returns the user's orders newest first.
func (r *Orders) ListForUser(ctx context.Context, userID int) ([]models.Order, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	var ids []int
	for rows.Next() {
		var o models.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}
	return orders, nil
}

func (r *Orders) items(ctx context.Context, orderIDs []int) (map[int][]models.OrderItem, error) {
	out := make(map[int][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price, product_name, product_brand, product_image
		FROM order_items
		WHERE order_id IN (`+placeholders+`)
		ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		var productID sql.NullInt64
		if err := rows.Scan(&it.ID, &it.OrderID, &productID, &it.Quantity, &it.Price,
			&it.ProductName, &it.ProductBrand, &it.ProductImage); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.ProductID = int(productID.Int64)
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

// UpdateStatus reports whether the order existed.
func (r *Orders) UpdateStatus(ctx context.Context, orderID int, status models.OrderStatus) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ?", status, time.Now().UTC(), orderID)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return n > 0, nil
}

// ProductIDs returns the products referenced by an order's items.
func (r *Orders) ProductIDs(ctx context.Context, orderID int) ([]int, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT product_id FROM order_items WHERE order_id = ? AND product_id IS NOT NULL ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("get order products: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
