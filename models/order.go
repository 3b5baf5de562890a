package models

import (
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID              int         `json:"id"`
	UserID          int         `json:"userId"`
	Status          OrderStatus `json:"status"`
	Total           Money       `json:"total"`
	ShippingAddress string      `json:"shippingAddress"`
	BillingAddress  string      `json:"billingAddress"`
	PaymentMethod   string      `json:"paymentMethod"`
	PaymentID       string      `json:"paymentId"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	Items           []OrderItem `json:"items"`
}

// OrderItem holds the product attributes as they were when the order was
// placed; it is never rewritten when the product changes.
type OrderItem struct {
	ID           int    `json:"id"`
	OrderID      int    `json:"orderId"`
	ProductID    int    `json:"productId"`
	Quantity     int    `json:"quantity"`
	Price        Money  `json:"price"`
	ProductName  string `json:"productName"`
	ProductBrand string `json:"productBrand"`
	ProductImage string `json:"productImage"`
}

func (i OrderItem) Subtotal() Money {
	return i.Price.Times(i.Quantity)
}

type PlaceOrderRequest struct {
	ShippingAddress string  `json:"shippingAddress" binding:"required"`
	BillingAddress  *string `json:"billingAddress"`
	PaymentMethod   string  `json:"paymentMethod" binding:"required"`
	Total           *Money  `json:"total" binding:"required"`
}

type PlaceOrderResponse struct {
	Success     bool   `json:"success"`
	OrderID     int    `json:"orderId"`
	RedirectURL string `json:"redirectUrl"`
	Message     string `json:"message,omitempty"`
}

type UpdateStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required,oneof=pending processing shipped delivered cancelled"`
}
