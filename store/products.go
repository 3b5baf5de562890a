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

type Products struct {
	q Querier
}

func NewProducts(q Querier) *Products {
	return &Products{q: q}
}

const productColumns = "id, name, brand, image, price, stock, created_at, updated_at"

func (r *Products) Get(ctx context.Context, id int) (*models.Product, error) {
	var p models.Product
	err := r.q.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Brand, &p.Image, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

// GetMany returns the products keyed by id; ids without a row are absent.
func (r *Products) GetMany(ctx context.Context, ids []int) (map[int]*models.Product, error) {
	products := make(map[int]*models.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.q.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Image, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = &p
	}
	return products, rows.Err()
}

// DecrementStock subtracts quantity relative to the committed value and
// reports false, leaving the row untouched, when stock is insufficient.
func (r *Products) DecrementStock(ctx context.Context, id, quantity int) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?",
		quantity, time.Now().UTC(), id, quantity)
	if err != nil {
		return false, fmt.Errorf("decrement stock for product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock for product %d: %w", id, err)
	}
	return n == 1, nil
}

// SoldOut returns, among ids, the products whose stock reached zero.
func (r *Products) SoldOut(ctx context.Context, ids []int) ([]models.Product, error) {
	products, err := r.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	var out []models.Product
	for _, id := range ids {
		if p, ok := products[id]; ok && p.Stock == 0 {
			out = append(out, *p)
		}
	}
	return out, nil
}
