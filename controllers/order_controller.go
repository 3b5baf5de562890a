package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-service/apperrors"
	"storefront-service/checkout"
	"storefront-service/middlewares"
	"storefront-service/models"
)

type OrderController struct {
	checkout *checkout.Service
	logger   *zap.Logger
}

func NewOrderController(checkoutService *checkout.Service, logger *zap.Logger) *OrderController {
	return &OrderController{checkout: checkoutService, logger: logger}
}

func (h *OrderController) CreateOrder(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("create", isSuccess(c)) }()

	userID, ok := middlewares.UserID(c)
	if !ok {
		respondError(c, h.logger, apperrors.New(apperrors.Unauthenticated, "Authentication required"))
		return
	}

	var req models.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	placement, err := h.checkout.PlaceOrder(c.Request.Context(), userID, checkout.PlaceOrderInput{
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		Total:           *req.Total,
		RequestID:       c.GetString(middlewares.ContextRequestID),
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Kind == apperrors.StockUnavailable {
			middlewares.RecordStockConflict(appErr.Stage)
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.PlaceOrderResponse{
		Success:     true,
		OrderID:     placement.OrderID,
		RedirectURL: placement.RedirectURL,
		Message:     "Order placed successfully",
	})
}

func (h *OrderController) GetUserOrders(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("list", isSuccess(c)) }()

	userID, ok := middlewares.UserID(c)
	if !ok {
		respondError(c, h.logger, apperrors.New(apperrors.Unauthenticated, "Authentication required"))
		return
	}

	orders, err := h.checkout.Orders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderController) GetOrderDetails(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("details", isSuccess(c)) }()

	userID, ok := middlewares.UserID(c)
	if !ok {
		respondError(c, h.logger, apperrors.New(apperrors.Unauthenticated, "Authentication required"))
		return
	}

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperrors.New(apperrors.InvalidInput, "Invalid order ID"))
		return
	}

	order, err := h.checkout.Order(c.Request.Context(), userID, orderID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderController) UpdateOrderStatus(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("update_status", isSuccess(c)) }()

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperrors.New(apperrors.InvalidInput, "Invalid order ID"))
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.checkout.UpdateStatus(c.Request.Context(), orderID, req.Status); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order status updated", "orderId": orderID})
}
