// Package checkout turns a user's cart into an order.
//
// Stock is checked three times: by the cart when lines are added, once
// before the transaction so the client gets an itemized report cheaply, and
// again inside the transaction, where the relative decrement is the only
// check that is authoritative against concurrent checkouts.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-service/apperrors"
	"storefront-service/database"
	"storefront-service/events"
	"storefront-service/models"
	"storefront-service/store"
)

type Service struct {
	db        *database.DB
	policy    Policy
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(db *database.DB, policy Policy, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{db: db, policy: policy, publisher: publisher, logger: logger}
}

type PlaceOrderInput struct {
	ShippingAddress string
	BillingAddress  *string
	PaymentMethod   string
	Total           models.Money
	RequestID       string
}

type Placement struct {
	OrderID     int
	RedirectURL string
	Total       models.Money
}

func validate(userID int, in PlaceOrderInput) error {
	if userID <= 0 {
		return apperrors.New(apperrors.Unauthenticated, "Authentication required")
	}
	var problems []string
	if strings.TrimSpace(in.ShippingAddress) == "" {
		problems = append(problems, "shippingAddress is required")
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		problems = append(problems, "paymentMethod is required")
	}
	if in.Total < 0 {
		problems = append(problems, "total must be non-negative")
	}
	if len(problems) > 0 {
		return apperrors.New(apperrors.InvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// stockIssues lists every line whose quantity exceeds the stock in products.
// A product missing from the map counts as zero stock.
func stockIssues(lines []models.CartLine, products map[int]*models.Product) []apperrors.StockIssue {
	var issues []apperrors.StockIssue
	for _, l := range lines {
		available := 0
		if p, ok := products[l.ProductID]; ok {
			available = p.Stock
		}
		if l.Quantity > available {
			issues = append(issues, apperrors.StockIssue{
				ProductID: l.ProductID,
				Name:      l.Product.Name,
				Requested: l.Quantity,
				Available: available,
			})
		}
	}
	return issues
}

func productIDs(lines []models.CartLine) []int {
	ids := make([]int, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}

// PlaceOrder creates an order from userID's cart. It either commits the
// order, its items, the stock decrements and the emptied cart together, or
// leaves everything as it was.
func (s *Service) PlaceOrder(ctx context.Context, userID int, in PlaceOrderInput) (*Placement, error) {
	if err := validate(userID, in); err != nil {
		return nil, err
	}
	user := models.AuthenticatedCart(userID)

	lines, err := store.NewCartItems(s.db).Lines(ctx, user)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "load cart", err)
	}
	if len(lines) == 0 {
		return nil, apperrors.New(apperrors.EmptyCart, "Your cart is empty")
	}

	precheck := make(map[int]*models.Product, len(lines))
	for i := range lines {
		precheck[lines[i].ProductID] = &lines[i].Product
	}
	if issues := stockIssues(lines, precheck); len(issues) > 0 {
		return nil, apperrors.Unavailable(apperrors.StagePrecheck, issues)
	}

	quote := s.policy.Quote(lines)
	if !quote.Matches(in.Total) {
		s.logger.Warn("Order total mismatch",
			zap.Int("user_id", userID),
			zap.Stringer("submitted", in.Total),
			zap.Stringer("computed", quote.Total))
		return nil, apperrors.Newf(apperrors.TotalMismatch,
			"Order total has changed, expected %s", quote.Total)
	}

	billing := in.ShippingAddress
	if in.BillingAddress != nil && strings.TrimSpace(*in.BillingAddress) != "" {
		billing = *in.BillingAddress
	}
	order := &models.Order{
		UserID:          userID,
		Status:          models.OrderStatusPending,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   in.PaymentMethod,
		PaymentID:       "pay_" + uuid.NewString(),
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.placeInTx(ctx, tx, lines, quote, order)
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		s.logger.Error("Order placement failed",
			zap.Int("user_id", userID),
			zap.String("request_id", in.RequestID),
			zap.Error(err))
		return nil, apperrors.Wrap(apperrors.Internal, "place order", err)
	}

	s.logger.Info("Order placed",
		zap.Int("order_id", order.ID),
		zap.Int("user_id", userID),
		zap.Stringer("total", order.Total),
		zap.Int("items", len(order.Items)))
	events.PublishLogged(ctx, s.publisher, s.logger, events.OrderPlaced(order, in.RequestID))

	return &Placement{
		OrderID:     order.ID,
		RedirectURL: fmt.Sprintf("/checkout/confirmation?orderId=%d", order.ID),
		Total:       order.Total,
	}, nil
}

func (s *Service) placeInTx(ctx context.Context, tx *sql.Tx, lines []models.CartLine, verified Quote, order *models.Order) error {
	products := store.NewProducts(tx)

	current, err := products.GetMany(ctx, productIDs(lines))
	if err != nil {
		return err
	}
	if issues := stockIssues(lines, current); len(issues) > 0 {
		return apperrors.Unavailable(apperrors.StageRecheck, issues)
	}

	// Snapshot the committed product rows, not the ones read before the
	// transaction started.
	snapshot := make([]models.CartLine, len(lines))
	for i, l := range lines {
		l.Product = *current[l.ProductID]
		snapshot[i] = l
	}
	quote := s.policy.Quote(snapshot)
	if !quote.Matches(verified.Total) {
		return apperrors.Newf(apperrors.TotalMismatch,
			"Prices changed during checkout, expected %s", quote.Total)
	}
	order.Total = quote.Total

	if err := store.NewOrders(tx).Create(ctx, order); err != nil {
		return err
	}

	order.Items = make([]models.OrderItem, len(snapshot))
	for i, l := range snapshot {
		order.Items[i] = models.OrderItem{
			OrderID:      order.ID,
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			Price:        l.Product.Price,
			ProductName:  l.Product.Name,
			ProductBrand: l.Product.Brand,
			ProductImage: l.Product.Image,
		}
	}
	if err := store.NewOrders(tx).AddItems(ctx, order.ID, order.Items); err != nil {
		return err
	}

	for _, l := range snapshot {
		ok, err := products.DecrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			available := 0
			if p, err := products.Get(ctx, l.ProductID); err == nil {
				available = p.Stock
			}
			return apperrors.Unavailable(apperrors.StageRecheck, []apperrors.StockIssue{{
				ProductID: l.ProductID,
				Name:      l.Product.Name,
				Requested: l.Quantity,
				Available: available,
			}})
		}
	}

	// Only the ordered lines go; a line added after the cart was loaded stays.
	return store.NewCartItems(tx).DeleteProducts(ctx, models.AuthenticatedCart(order.UserID), productIDs(lines))
}

func (s *Service) Orders(ctx context.Context, userID int) ([]models.Order, error) {
	orders, err := store.NewOrders(s.db).ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "list orders", err)
	}
	return orders, nil
}

func (s *Service) Order(ctx context.Context, userID, orderID int) (*models.Order, error) {
	order, err := store.NewOrders(s.db).GetForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, apperrors.New(apperrors.NotFound, "Order not found")
		}
		return nil, apperrors.Wrap(apperrors.Internal, "get order", err)
	}
	return order, nil
}

// UpdateStatus is the administrative status transition; totals and line
// items are never touched after placement.
func (s *Service) UpdateStatus(ctx context.Context, orderID int, status models.OrderStatus) error {
	if !status.Valid() {
		return apperrors.Newf(apperrors.InvalidInput, "invalid status %q", status)
	}
	ok, err := store.NewOrders(s.db).UpdateStatus(ctx, orderID, status)
	if err != nil {
		return apperrors.Wrap(apperrors.Internal, "update order status", err)
	}
	if !ok {
		return apperrors.New(apperrors.NotFound, "Order not found")
	}

	e := events.New(events.TypeOrderStatusUpdated, 0)
	e.OrderID = orderID
	e.Status = status
	events.PublishLogged(ctx, s.publisher, s.logger, e)
	return nil
}
