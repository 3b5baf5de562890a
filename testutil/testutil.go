// Package testutil provides SQLite-backed fixtures for integration tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"storefront-service/database"
	"storefront-service/events"
	"storefront-service/models"
)

// NewDB opens a migrated SQLite database in the test's temp dir.
func NewDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

// SeedProduct inserts a product and returns its id. Price is a decimal string.
func SeedProduct(t *testing.T, db *database.DB, name, price string, stock int) int {
	t.Helper()
	res, err := db.Exec(`
		INSERT INTO products (name, brand, image, price, stock) VALUES (?, ?, ?, ?, ?)`,
		name, name+" Co", "/img/"+name+".png", price, stock)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return int(id)
}

func SeedCartItem(t *testing.T, db *database.DB, userID, productID, quantity int) {
	t.Helper()
	_, err := db.Exec("INSERT INTO cart_items (user_id, product_id, quantity) VALUES (?, ?, ?)",
		userID, productID, quantity)
	require.NoError(t, err)
}

func SeedAnonymousCartItem(t *testing.T, db *database.DB, cartID string, productID, quantity int) {
	t.Helper()
	_, err := db.Exec("INSERT INTO anonymous_cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?)",
		cartID, productID, quantity)
	require.NoError(t, err)
}

// FailCartInserts makes every insert of productID into a user cart fail.
func FailCartInserts(t *testing.T, db *database.DB, productID int) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TRIGGER fail_cart_insert_%d BEFORE INSERT ON cart_items
		WHEN NEW.product_id = %d
		BEGIN
			SELECT RAISE(ABORT, 'cart insert rejected');
		END`, productID, productID))
	require.NoError(t, err)
}

func Stock(t *testing.T, db *database.DB, productID int) int {
	t.Helper()
	var stock int
	require.NoError(t, db.QueryRow("SELECT stock FROM products WHERE id = ?", productID).Scan(&stock))
	return stock
}

// CartQuantities returns product id to quantity for a user's cart.
func CartQuantities(t *testing.T, db *database.DB, userID int) map[int]int {
	t.Helper()
	return quantities(t, db, "SELECT product_id, quantity FROM cart_items WHERE user_id = ?", userID)
}

func AnonymousCartQuantities(t *testing.T, db *database.DB, cartID string) map[int]int {
	t.Helper()
	return quantities(t, db, "SELECT product_id, quantity FROM anonymous_cart_items WHERE cart_id = ?", cartID)
}

func quantities(t *testing.T, db *database.DB, query string, key any) map[int]int {
	rows, err := db.Query(query, key)
	require.NoError(t, err)
	defer rows.Close()

	out := map[int]int{}
	for rows.Next() {
		var pid, qty int
		require.NoError(t, rows.Scan(&pid, &qty))
		out[pid] = qty
	}
	require.NoError(t, rows.Err())
	return out
}

// Count returns the number of rows in table.
func Count(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// Recorder is an events.Publisher that keeps every event it was given.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func MoneyOf(t *testing.T, s string) models.Money {
	t.Helper()
	m, err := models.ParseMoney(s)
	require.NoError(t, err)
	return m
}
