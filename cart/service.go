// Package cart implements the cart store: per-identity line items for
// authenticated users and anonymous sessions, and the one-time merge of an
// anonymous cart into a user's cart after login.
//
// Quantity checks here are advisory. Stock is only authoritative inside the
// checkout transaction.
package cart

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"storefront-service/apperrors"
	"storefront-service/database"
	"storefront-service/events"
	"storefront-service/models"
	"storefront-service/store"
)

type Service struct {
	db        *database.DB
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(db *database.DB, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{db: db, publisher: publisher, logger: logger}
}

type AddResult struct {
	// Anonymous is set when the line went to a cookie-keyed cart that only
	// survives across sessions once the user signs in.
	Anonymous bool
	Quantity  int
}

type MergeResult struct {
	NoOp    bool
	Merged  int
	Skipped int
}

// hasCart reports whether id can address any rows at all; an anonymous
// identity without a cart id has none.
func hasCart(id models.CartIdentity) bool {
	if _, ok := id.UserID(); ok {
		return true
	}
	_, ok := id.CartID()
	return ok
}

func (s *Service) Items(ctx context.Context, id models.CartIdentity) ([]models.CartLine, error) {
	if !hasCart(id) {
		return []models.CartLine{}, nil
	}
	lines, err := store.NewCartItems(s.db).Lines(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "load cart", err)
	}
	return lines, nil
}

func (s *Service) loadProduct(ctx context.Context, q store.Querier, productID int) (*models.Product, error) {
	p, err := store.NewProducts(q).Get(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return nil, apperrors.New(apperrors.NotFound, "Product not found")
		}
		return nil, apperrors.Wrap(apperrors.Internal, "load product", err)
	}
	return p, nil
}

func (s *Service) Add(ctx context.Context, id models.CartIdentity, productID, quantity int) (*AddResult, error) {
	if quantity < 1 {
		return nil, apperrors.New(apperrors.InvalidInput, "Quantity must be at least 1")
	}
	if !hasCart(id) {
		return nil, apperrors.New(apperrors.InvalidInput, "Missing cart identity")
	}

	product, err := s.loadProduct(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock <= 0 {
		return nil, apperrors.New(apperrors.OutOfStock, "Product is out of stock")
	}

	items := store.NewCartItems(s.db)
	existing, found, err := items.Quantity(ctx, id, productID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "load cart item", err)
	}
	if existing+quantity > product.Stock {
		return nil, apperrors.ExceedsStock(max(product.Stock-existing, 0))
	}

	newQty := existing + quantity
	if found {
		_, err = items.SetQuantity(ctx, id, productID, newQty)
	} else {
		err = items.Insert(ctx, id, productID, quantity)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "save cart item", err)
	}

	s.logger.Debug("Cart item added",
		zap.Stringer("cart", id),
		zap.Int("product_id", productID),
		zap.Int("quantity", newQty))

	return &AddResult{Anonymous: id.IsAnonymous(), Quantity: newQty}, nil
}

// Update sets the quantity of an existing line. Zero is not accepted; removal
// goes through Remove. A missing line is left missing.
func (s *Service) Update(ctx context.Context, id models.CartIdentity, productID, quantity int) error {
	if quantity < 1 {
		return apperrors.New(apperrors.InvalidInput, "Quantity must be at least 1")
	}

	product, err := s.loadProduct(ctx, s.db, productID)
	if err != nil {
		return err
	}
	if quantity > product.Stock {
		e := apperrors.Newf(apperrors.QuantityExceedsStock, "Only %d available", product.Stock)
		e.Available = product.Stock
		return e
	}
	if !hasCart(id) {
		return nil
	}

	if _, err := store.NewCartItems(s.db).SetQuantity(ctx, id, productID, quantity); err != nil {
		return apperrors.Wrap(apperrors.Internal, "update cart item", err)
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, id models.CartIdentity, productID int) error {
	if !hasCart(id) {
		return nil
	}
	if err := store.NewCartItems(s.db).Delete(ctx, id, productID); err != nil {
		return apperrors.Wrap(apperrors.Internal, "remove cart item", err)
	}
	return nil
}

// Merge folds the anonymous cart cartID into userID's cart, capping every
// line at the product's current stock. Items are merged one by one, each in
// its own transaction; a product that vanished or sold out is skipped. The
// anonymous rows are bulk-deleted only after every item was processed, so an
// error part way leaves them in place.
func (s *Service) Merge(ctx context.Context, userID int, cartID string) (*MergeResult, error) {
	if userID <= 0 {
		return nil, apperrors.New(apperrors.Unauthenticated, "Authentication required")
	}
	if cartID == "" {
		return &MergeResult{NoOp: true}, nil
	}

	anon := models.AnonymousCart(cartID)
	user := models.AuthenticatedCart(userID)

	lines, err := store.NewCartItems(s.db).Lines(ctx, anon)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "load anonymous cart", err)
	}
	if len(lines) == 0 {
		return &MergeResult{NoOp: true}, nil
	}

	result := &MergeResult{}
	for _, line := range lines {
		merged, err := s.mergeLine(ctx, user, line)
		if err != nil {
			s.logger.Error("Cart merge aborted",
				zap.Int("user_id", userID),
				zap.Int("product_id", line.ProductID),
				zap.Int("merged", result.Merged),
				zap.Error(err))
			return nil, apperrors.Wrap(apperrors.Internal, "merge cart", err)
		}
		if merged {
			result.Merged++
		} else {
			result.Skipped++
		}
	}

	if _, err := store.NewCartItems(s.db).Clear(ctx, anon); err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "clear anonymous cart", err)
	}

	s.logger.Info("Anonymous cart merged",
		zap.Int("user_id", userID),
		zap.Int("merged", result.Merged),
		zap.Int("skipped", result.Skipped))
	events.PublishLogged(ctx, s.publisher, s.logger, events.New(events.TypeCartMerged, userID))

	return result, nil
}

// mergeLine re-reads stock and the destination line inside one transaction
// so the cap is computed against committed values.
func (s *Service) mergeLine(ctx context.Context, user models.CartIdentity, line models.CartLine) (bool, error) {
	merged := false
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		product, err := store.NewProducts(tx).Get(ctx, line.ProductID)
		if errors.Is(err, store.ErrProductNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if product.Stock <= 0 {
			return nil
		}

		items := store.NewCartItems(tx)
		existing, found, err := items.Quantity(ctx, user, line.ProductID)
		if err != nil {
			return err
		}

		qty := min(line.Quantity+existing, product.Stock)
		if found {
			_, err = items.SetQuantity(ctx, user, line.ProductID, qty)
		} else {
			err = items.Insert(ctx, user, line.ProductID, qty)
		}
		if err != nil {
			return err
		}
		merged = true
		return nil
	})
	return merged, err
}
