package checkout

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-service/apperrors"
	"storefront-service/database"
	"storefront-service/events"
	"storefront-service/models"
	"storefront-service/store"
	"storefront-service/testutil"
)

func newService(t *testing.T) (*Service, *database.DB, *testutil.Recorder) {
	t.Helper()
	db := testutil.NewDB(t)
	rec := &testutil.Recorder{}
	return NewService(db, DefaultPolicy(), rec, zap.NewNop()), db, rec
}

func input(total string) PlaceOrderInput {
	m, err := models.ParseMoney(total)
	if err != nil {
		panic(err)
	}
	return PlaceOrderInput{
		ShippingAddress: "1 Main St",
		PaymentMethod:   "card",
		Total:           m,
	}
}

func requireKind(t *testing.T, err error, kind apperrors.Kind) *apperrors.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, kind, appErr.Kind, appErr.Message)
	return appErr
}

func TestPlaceOrder_Success(t *testing.T) {
	svc, db, rec := newService(t)
	ctx := context.Background()
	a := testutil.SeedProduct(t, db, "boots", "60.00", 5)
	b := testutil.SeedProduct(t, db, "socks", "0.00", 10)
	testutil.SeedCartItem(t, db, 1, a, 2)
	testutil.SeedCartItem(t, db, 1, b, 3)
	testutil.SeedCartItem(t, db, 2, a, 1)

	placement, err := svc.PlaceOrder(ctx, 1, input("120.00"))
	require.NoError(t, err)
	assert.NotZero(t, placement.OrderID)
	assert.Equal(t, "/checkout/confirmation?orderId=1", placement.RedirectURL)
	assert.Equal(t, models.Money(12000), placement.Total)

	assert.Equal(t, 3, testutil.Stock(t, db, a))
	assert.Equal(t, 7, testutil.Stock(t, db, b))
	assert.Empty(t, testutil.CartQuantities(t, db, 1))
	assert.Equal(t, map[int]int{a: 1}, testutil.CartQuantities(t, db, 2))

	order, err := svc.Order(ctx, 1, placement.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "1 Main St", order.BillingAddress)
	assert.Contains(t, order.PaymentID, "pay_")
	require.Len(t, order.Items, 2)
	assert.Equal(t, "boots", order.Items[0].ProductName)
	assert.Equal(t, "boots Co", order.Items[0].ProductBrand)
	assert.Equal(t, models.Money(6000), order.Items[0].Price)

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeOrderPlaced, got[0].Type)
	assert.Equal(t, placement.OrderID, got[0].OrderID)
}

func TestPlaceOrder_ShippingAndTotalMismatch(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	pid := testutil.SeedProduct(t, db, "coat", "120.00", 5)
	testutil.SeedCartItem(t, db, 1, pid, 1)

	_, err := svc.PlaceOrder(ctx, 1, input("130.00"))
	requireKind(t, err, apperrors.TotalMismatch)
	assert.Equal(t, map[int]int{pid: 1}, testutil.CartQuantities(t, db, 1))
	assert.Equal(t, 5, testutil.Stock(t, db, pid))
	assert.Equal(t, 0, testutil.Count(t, db, "orders"))

	_, err = svc.PlaceOrder(ctx, 1, input("120.00"))
	require.NoError(t, err)
}

func TestPlaceOrder_FlatFeeAtOrBelowThreshold(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	pid := testutil.SeedProduct(t, db, "hat", "50.00", 5)
	testutil.SeedCartItem(t, db, 1, pid, 2)

	_, err := svc.PlaceOrder(ctx, 1, input("100.00"))
	requireKind(t, err, apperrors.TotalMismatch)

	placement, err := svc.PlaceOrder(ctx, 1, input("110.00"))
	require.NoError(t, err)
	assert.Equal(t, models.Money(11000), placement.Total)
}

func TestPlaceOrder_ToleratesOneCent(t *testing.T) {
	svc, db, _ := newService(t)
	pid := testutil.SeedProduct(t, db, "scarf", "33.33", 5)
	testutil.SeedCartItem(t, db, 1, pid, 3)

	_, err := svc.PlaceOrder(context.Background(), 1, input("110.00"))
	require.NoError(t, err)
}

func TestPlaceOrder_InvalidInput(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	pid := testutil.SeedProduct(t, db, "belt", "20.00", 5)
	testutil.SeedCartItem(t, db, 1, pid, 1)

	in := input("30.00")
	in.ShippingAddress = "  "
	_, err := svc.PlaceOrder(ctx, 1, in)
	appErr := requireKind(t, err, apperrors.InvalidInput)
	assert.Contains(t, appErr.Message, "shippingAddress")

	in = input("30.00")
	in.PaymentMethod = ""
	_, err = svc.PlaceOrder(ctx, 1, in)
	requireKind(t, err, apperrors.InvalidInput)

	in = input("30.00")
	in.Total = -1
	_, err = svc.PlaceOrder(ctx, 1, in)
	requireKind(t, err, apperrors.InvalidInput)

	_, err = svc.PlaceOrder(ctx, 0, input("30.00"))
	requireKind(t, err, apperrors.Unauthenticated)

	assert.Equal(t, map[int]int{pid: 1}, testutil.CartQuantities(t, db, 1))
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.PlaceOrder(context.Background(), 1, input("10.00"))
	requireKind(t, err, apperrors.EmptyCart)
}

func TestPlaceOrder_PrecheckReportsEveryIssue(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	a := testutil.SeedProduct(t, db, "tent", "200.00", 5)
	b := testutil.SeedProduct(t, db, "stove", "80.00", 5)
	c := testutil.SeedProduct(t, db, "mat", "20.00", 5)
	testutil.SeedCartItem(t, db, 1, a, 3)
	testutil.SeedCartItem(t, db, 1, b, 2)
	testutil.SeedCartItem(t, db, 1, c, 1)
	_, err := db.Exec("UPDATE products SET stock = CASE id WHEN ? THEN 1 WHEN ? THEN 0 ELSE stock END", a, b)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, 1, input("780.00"))
	appErr := requireKind(t, err, apperrors.StockUnavailable)
	assert.Equal(t, apperrors.StagePrecheck, appErr.Stage)
	assert.Equal(t, []apperrors.StockIssue{
		{ProductID: a, Name: "tent", Requested: 3, Available: 1},
		{ProductID: b, Name: "stove", Requested: 2, Available: 0},
	}, appErr.Issues)

	assert.Equal(t, 5, testutil.Stock(t, db, c))
	assert.Len(t, testutil.CartQuantities(t, db, 1), 3)
	assert.Equal(t, 0, testutil.Count(t, db, "orders"))
}

func TestPlaceOrder_SnapshotSurvivesProductEdits(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	pid := testutil.SeedProduct(t, db, "kettle", "45.00", 5)
	testutil.SeedCartItem(t, db, 1, pid, 1)

	placement, err := svc.PlaceOrder(ctx, 1, input("55.00"))
	require.NoError(t, err)

	_, err = db.Exec("UPDATE products SET name = 'renamed', price = '99.00', image = '/new.png' WHERE id = ?", pid)
	require.NoError(t, err)

	order, err := svc.Order(ctx, 1, placement.OrderID)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "kettle", order.Items[0].ProductName)
	assert.Equal(t, "/img/kettle.png", order.Items[0].ProductImage)
	assert.Equal(t, models.Money(4500), order.Items[0].Price)
	assert.Equal(t, models.Money(5500), order.Total)

	_, err = db.Exec("DELETE FROM products WHERE id = ?", pid)
	require.NoError(t, err)
	order, err = svc.Order(ctx, 1, placement.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "kettle", order.Items[0].ProductName)
}

func TestPlaceOrder_ConcurrentCheckoutsDoNotOversell(t *testing.T) {
	svc, db, _ := newService(t)
	pid := testutil.SeedProduct(t, db, "last-one", "150.00", 1)
	testutil.SeedCartItem(t, db, 1, pid, 1)
	testutil.SeedCartItem(t, db, 2, pid, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(context.Background(), i+1, input("150.00"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperrors.StockUnavailable, apperrors.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, testutil.Stock(t, db, pid))
	assert.Equal(t, 1, testutil.Count(t, db, "orders"))
}

func TestPlaceInTx_RecheckSeesCommittedStock(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	pid := testutil.SeedProduct(t, db, "lamp", "150.00", 2)
	testutil.SeedCartItem(t, db, 1, pid, 2)

	user := models.AuthenticatedCart(1)
	lines, err := store.NewCartItems(db).Lines(ctx, user)
	require.NoError(t, err)
	quote := svc.policy.Quote(lines)

	// A sibling checkout commits between the precheck and the transaction.
	_, err = db.Exec("UPDATE products SET stock = 1 WHERE id = ?", pid)
	require.NoError(t, err)

	order := &models.Order{UserID: 1, Status: models.OrderStatusPending}
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		return svc.placeInTx(ctx, tx, lines, quote, order)
	})
	appErr := requireKind(t, err, apperrors.StockUnavailable)
	assert.Equal(t, apperrors.StageRecheck, appErr.Stage)
	assert.Equal(t, 1, appErr.Issues[0].Available)

	assert.Equal(t, 1, testutil.Stock(t, db, pid))
	assert.Equal(t, 0, testutil.Count(t, db, "orders"))
	assert.Equal(t, 0, testutil.Count(t, db, "order_items"))
	assert.Equal(t, map[int]int{pid: 2}, testutil.CartQuantities(t, db, 1))
}

func TestPlaceInTx_PriceChangeAborts(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	pid := testutil.SeedProduct(t, db, "radio", "150.00", 2)
	testutil.SeedCartItem(t, db, 1, pid, 1)

	lines, err := store.NewCartItems(db).Lines(ctx, models.AuthenticatedCart(1))
	require.NoError(t, err)
	quote := svc.policy.Quote(lines)

	_, err = db.Exec("UPDATE products SET price = '175.00' WHERE id = ?", pid)
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		return svc.placeInTx(ctx, tx, lines, quote, &models.Order{UserID: 1, Status: models.OrderStatusPending})
	})
	requireKind(t, err, apperrors.TotalMismatch)
	assert.Equal(t, 2, testutil.Stock(t, db, pid))
}

func TestPlaceInTx_KeepsLinesAddedAfterLoad(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	ordered := testutil.SeedProduct(t, db, "kettle", "30.00", 5)
	later := testutil.SeedProduct(t, db, "toaster", "45.00", 5)
	testutil.SeedCartItem(t, db, 1, ordered, 1)

	lines, err := store.NewCartItems(db).Lines(ctx, models.AuthenticatedCart(1))
	require.NoError(t, err)
	quote := svc.policy.Quote(lines)

	// Another tab adds a line while this checkout is in flight.
	testutil.SeedCartItem(t, db, 1, later, 2)

	order := &models.Order{UserID: 1, Status: models.OrderStatusPending}
	require.NoError(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		return svc.placeInTx(ctx, tx, lines, quote, order)
	}))

	assert.Equal(t, map[int]int{later: 2}, testutil.CartQuantities(t, db, 1))
	assert.Equal(t, 4, testutil.Stock(t, db, ordered))
	assert.Equal(t, 5, testutil.Stock(t, db, later))
}

func TestOrders_HistoryAndStatus(t *testing.T) {
	svc, db, rec := newService(t)
	ctx := context.Background()
	pid := testutil.SeedProduct(t, db, "pen", "2.00", 10)

	testutil.SeedCartItem(t, db, 1, pid, 1)
	first, err := svc.PlaceOrder(ctx, 1, input("12.00"))
	require.NoError(t, err)
	testutil.SeedCartItem(t, db, 1, pid, 2)
	second, err := svc.PlaceOrder(ctx, 1, input("14.00"))
	require.NoError(t, err)

	orders, err := svc.Orders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.OrderID, orders[0].ID)
	assert.Equal(t, first.OrderID, orders[1].ID)
	assert.Equal(t, 2, orders[0].Items[0].Quantity)

	_, err = svc.Order(ctx, 2, first.OrderID)
	requireKind(t, err, apperrors.NotFound)

	require.NoError(t, svc.UpdateStatus(ctx, first.OrderID, models.OrderStatusShipped))
	order, err := svc.Order(ctx, 1, first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Equal(t, models.Money(1200), order.Total)

	requireKind(t, svc.UpdateStatus(ctx, 999, models.OrderStatusShipped), apperrors.NotFound)
	requireKind(t, svc.UpdateStatus(ctx, first.OrderID, "lost"), apperrors.InvalidInput)

	got := rec.Events()
	assert.Equal(t, events.TypeOrderStatusUpdated, got[len(got)-1].Type)
}
