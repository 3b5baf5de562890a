package checkout

import (
	"fmt"

	"storefront-service/models"
)

// Tolerance is the largest difference between a submitted and a computed
// total that is still accepted. Amounts are exact in cents; the single cent
// absorbs clients that sum prices as floats.
const Tolerance models.Money = 1

// Policy is the flat shipping rule: free strictly above FreeShippingOver,
// FlatFee otherwise.
type Policy struct {
	FreeShippingOver models.Money
	FlatFee          models.Money
}

func DefaultPolicy() Policy {
	return Policy{FreeShippingOver: 10000, FlatFee: 1000}
}

// ParsePolicy builds a policy from decimal strings such as "100.00".
func ParsePolicy(freeOver, flatFee string) (Policy, error) {
	over, err := models.ParseMoney(freeOver)
	if err != nil {
		return Policy{}, fmt.Errorf("free shipping threshold: %w", err)
	}
	fee, err := models.ParseMoney(flatFee)
	if err != nil {
		return Policy{}, fmt.Errorf("flat shipping fee: %w", err)
	}
	if over < 0 || fee < 0 {
		return Policy{}, fmt.Errorf("shipping policy amounts must be non-negative")
	}
	return Policy{FreeShippingOver: over, FlatFee: fee}, nil
}

type Quote struct {
	Subtotal models.Money `json:"subtotal"`
	Shipping models.Money `json:"shipping"`
	Total    models.Money `json:"total"`
}

func (p Policy) Shipping(subtotal models.Money) models.Money {
	if subtotal > p.FreeShippingOver {
		return 0
	}
	return p.FlatFee
}

func (p Policy) Quote(lines []models.CartLine) Quote {
	var subtotal models.Money
	for _, l := range lines {
		subtotal += l.Subtotal()
	}
	shipping := p.Shipping(subtotal)
	return Quote{Subtotal: subtotal, Shipping: shipping, Total: subtotal + shipping}
}

// Matches reports whether submitted agrees with the quote within Tolerance.
func (q Quote) Matches(submitted models.Money) bool {
	diff := q.Total - submitted
	if diff < 0 {
		diff = -diff
	}
	return diff <= Tolerance
}
