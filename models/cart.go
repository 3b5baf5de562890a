package models

// CartLine is a cart row joined with the product it refers to.
type CartLine struct {
	ProductID int     `json:"productId"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

func (l CartLine) Subtotal() Money {
	return l.Product.Price.Times(l.Quantity)
}

type CartItemRequest struct {
	ProductID int  `json:"productId" binding:"required,min=1"`
	Quantity  *int `json:"quantity" binding:"omitempty,min=1"`
}

type UpdateCartItemRequest struct {
	ProductID int `json:"productId" binding:"required,min=1"`
	Quantity  int `json:"quantity" binding:"required,min=1"`
}

type RemoveCartItemRequest struct {
	ProductID int `json:"productId" binding:"required,min=1"`
}

type CartResponse struct {
	Items     []CartLine `json:"items"`
	Subtotal  Money      `json:"subtotal"`
	Shipping  Money      `json:"shipping"`
	Total     Money      `json:"total"`
	Anonymous bool       `json:"anonymous"`
}
