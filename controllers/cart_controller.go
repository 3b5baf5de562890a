package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-service/apperrors"
	"storefront-service/cart"
	"storefront-service/checkout"
	"storefront-service/middlewares"
	"storefront-service/models"
	"storefront-service/utils"
)

const (
	CartCookie       = "cart_id"
	cartCookieMaxAge = int(30 * 24 * time.Hour / time.Second)
)

type CartController struct {
	cart         *cart.Service
	policy       checkout.Policy
	secureCookie bool
	logger       *zap.Logger
}

func NewCartController(cartService *cart.Service, policy checkout.Policy, secureCookie bool, logger *zap.Logger) *CartController {
	return &CartController{
		cart:         cartService,
		policy:       policy,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// identity resolves whose cart the request addresses, once per request.
func (h *CartController) identity(c *gin.Context) models.CartIdentity {
	if userID, ok := middlewares.UserID(c); ok {
		return models.AuthenticatedCart(userID)
	}
	cartID, _ := c.Cookie(CartCookie)
	return models.AnonymousCart(cartID)
}

func (h *CartController) setCartCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CartCookie, value, maxAge, "/", "", h.secureCookie, true)
}

func (h *CartController) GetCart(c *gin.Context) {
	id := h.identity(c)
	defer func() { middlewares.RecordCartOperation("get", id.IsAnonymous(), isSuccess(c)) }()

	lines, err := h.cart.Items(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	quote := h.policy.Quote(lines)
	c.JSON(http.StatusOK, models.CartResponse{
		Items:     lines,
		Subtotal:  quote.Subtotal,
		Shipping:  quote.Shipping,
		Total:     quote.Total,
		Anonymous: id.IsAnonymous(),
	})
}

func (h *CartController) AddItem(c *gin.Context) {
	id := h.identity(c)
	defer func() { middlewares.RecordCartOperation("add", id.IsAnonymous(), isSuccess(c)) }()

	var req models.CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	issued := false
	if _, ok := id.CartID(); id.IsAnonymous() && !ok {
		id = models.AnonymousCart(utils.NewCartID())
		issued = true
	}

	res, err := h.cart.Add(c.Request.Context(), id, req.ProductID, quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if issued {
		cartID, _ := id.CartID()
		h.setCartCookie(c, cartID, cartCookieMaxAge)
	}

	message := "Item added to cart"
	if res.Anonymous {
		message = "Item added to cart. Sign in to keep your cart across devices"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      message,
		"requiresAuth": res.Anonymous,
		"quantity":     res.Quantity,
	})
}

func (h *CartController) UpdateItem(c *gin.Context) {
	id := h.identity(c)
	defer func() { middlewares.RecordCartOperation("update", id.IsAnonymous(), isSuccess(c)) }()

	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.cart.Update(c.Request.Context(), id, req.ProductID, req.Quantity); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Cart updated"})
}

func (h *CartController) RemoveItem(c *gin.Context) {
	id := h.identity(c)
	defer func() { middlewares.RecordCartOperation("remove", id.IsAnonymous(), isSuccess(c)) }()

	var req models.RemoveCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.cart.Remove(c.Request.Context(), id, req.ProductID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Item removed from cart"})
}

// MergeCart folds the cookie's anonymous cart into the signed-in user's cart.
func (h *CartController) MergeCart(c *gin.Context) {
	defer func() { middlewares.RecordCartOperation("merge", false, isSuccess(c)) }()

	userID, ok := middlewares.UserID(c)
	if !ok {
		respondError(c, h.logger, apperrors.New(apperrors.Unauthenticated, "Authentication required"))
		return
	}
	cartID, _ := c.Cookie(CartCookie)

	res, err := h.cart.Merge(c.Request.Context(), userID, cartID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if cartID != "" {
		h.setCartCookie(c, "", -1)
	}

	if res.NoOp {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "No anonymous cart to merge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cart merged successfully",
		"merged":  res.Merged,
		"skipped": res.Skipped,
	})
}
