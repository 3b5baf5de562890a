package models

import "fmt"

// CartIdentity names whose cart an operation targets: either an authenticated
// user or an anonymous session keyed by the cart_id cookie. The zero value is
// an anonymous identity without a cart.
type CartIdentity struct {
	userID int
	cartID string
}

func AuthenticatedCart(userID int) CartIdentity {
	return CartIdentity{userID: userID}
}

func AnonymousCart(cartID string) CartIdentity {
	return CartIdentity{cartID: cartID}
}

func (c CartIdentity) UserID() (int, bool) {
	return c.userID, c.userID > 0
}

func (c CartIdentity) CartID() (string, bool) {
	return c.cartID, c.userID == 0 && c.cartID != ""
}

func (c CartIdentity) IsAnonymous() bool {
	return c.userID == 0
}

func (c CartIdentity) String() string {
	if c.IsAnonymous() {
		return fmt.Sprintf("anonymous:%s", c.cartID)
	}
	return fmt.Sprintf("user:%d", c.userID)
}
