package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/models"
)

func line(price models.Money, qty int) models.CartLine {
	return models.CartLine{Quantity: qty, Product: models.Product{Price: price}}
}

func TestPolicy_Quote(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		lines    []models.CartLine
		shipping models.Money
		total    models.Money
	}{
		{"above threshold ships free", []models.CartLine{line(6000, 2)}, 0, 12000},
		{"exactly threshold pays fee", []models.CartLine{line(5000, 2)}, 1000, 11000},
		{"small order pays fee", []models.CartLine{line(1999, 1), line(250, 2)}, 1000, 3499},
		{"empty", nil, 1000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := p.Quote(tt.lines)
			assert.Equal(t, tt.shipping, q.Shipping)
			assert.Equal(t, tt.total, q.Total)
		})
	}
}

func TestQuote_Matches(t *testing.T) {
	q := Quote{Total: 12000}

	assert.True(t, q.Matches(12000))
	assert.True(t, q.Matches(12001))
	assert.True(t, q.Matches(11999))
	assert.False(t, q.Matches(13000))
	assert.False(t, q.Matches(11998))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("100.00", "10.00")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	_, err = ParsePolicy("lots", "10")
	assert.Error(t, err)
	_, err = ParsePolicy("100", "-1")
	assert.Error(t, err)
}
