package alphasec

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	dec10000 = decimal.NewFromInt(10000)
	dec1000  = decimal.NewFromInt(1000)
	dec100   = decimal.NewFromInt(100)
	dec10    = decimal.NewFromInt(10)
	dec1     = decimal.NewFromInt(1)
	dec01    = decimal.RequireFromString("0.1")
	dec001   = decimal.RequireFromString("0.01")
	dec0001  = decimal.RequireFromString("0.001")
)

func priceDecimals(price decimal.Decimal) int32 {
	switch {
	case price.GreaterThanOrEqual(dec10000):
		return 0
	case price.GreaterThanOrEqual(dec1000):
		return 1
	case price.GreaterThanOrEqual(dec100):
		return 2
	case price.GreaterThanOrEqual(dec10):
		return 3
	case price.GreaterThanOrEqual(dec1):
		return 4
	case price.GreaterThanOrEqual(dec01):
		return 5
	case price.GreaterThanOrEqual(dec001):
		return 6
	case price.GreaterThanOrEqual(dec0001):
		return 7
	default:
		return 8
	}
}

func quantityDecimals(quantity decimal.Decimal) int32 {
	switch {
	case quantity.GreaterThanOrEqual(dec10000):
		return 5
	case quantity.GreaterThanOrEqual(dec1000):
		return 4
	case quantity.GreaterThanOrEqual(dec100):
		return 3
	case quantity.GreaterThanOrEqual(dec10):
		return 2
	case quantity.GreaterThanOrEqual(dec1):
		return 1
	default:
		return 5
	}
}

// normalizePriceQuantity truncates price and quantity to the
// magnitude-dependent precision the exchange accepts. Truncation never
// rounds up. Both inputs must be non-negative.
func normalizePriceQuantity(price, quantity decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if price.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: price cannot be negative", ErrInvalidParameter)
	}
	if quantity.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidParameter)
	}
	return price.Truncate(priceDecimals(price)), quantity.Truncate(quantityDecimals(quantity)), nil
}
