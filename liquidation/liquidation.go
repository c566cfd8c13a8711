// Package liquidation computes derivative position liquidation prices and
// the liquidatable predicate, ported 1:1 from the original consumer's
// compute module: scale chain-decimal strings down with shopspring/decimal,
// then fall through to the same float64 arithmetic the original performs.
package liquidation

import "github.com/shopspring/decimal"

// Scale factors the chain uses to represent fixed-point decimals as integer
// strings. A price-like string (price, margin, cumulative funding) is scaled
// by PriceDecimal, a quantity/ratio string by ChainDecimal.
const (
	PriceDecimal = 1e24
	ChainDecimal = 1e18
)

// ScalePrice parses a chain integer-string price, margin, or cumulative
// funding value and returns it as a human decimal float64, dividing by
// PriceDecimal.
func ScalePrice(raw string) (float64, bool) {
	return scale(raw, PriceDecimal)
}

// ScaleChain parses a chain integer-string quantity or ratio and
// returns it as a human decimal float64, dividing by ChainDecimal.
func ScaleChain(raw string) (float64, bool) {
	return scale(raw, ChainDecimal)
}

func scale(raw string, factor float64) (float64, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f / factor, true
}

// Calculate returns the liquidation price for a position. It returns 0 when
// quantity, entryPrice, or maintenanceMarginRatio is non-positive, matching
// the original compute module's bootstrap guard.
func Calculate(
	isLong bool,
	entryPrice float64,
	margin float64,
	quantity float64,
	maintenanceMarginRatio float64,
	marketCumulativeFunding float64,
	positionCumulativeFundingEntry float64,
) float64 {
	if quantity <= 0.0 || entryPrice <= 0.0 || maintenanceMarginRatio <= 0.0 {
		return 0.0
	}

	unrealizedFundingPayment := quantity * (marketCumulativeFunding - positionCumulativeFundingEntry)

	var adjustedMargin float64
	if isLong {
		adjustedMargin = margin - unrealizedFundingPayment
	} else {
		adjustedMargin = margin + unrealizedFundingPayment
	}

	unitMargin := adjustedMargin / quantity

	if isLong {
		return (entryPrice - unitMargin) / (1.0 - maintenanceMarginRatio)
	}
	return (entryPrice + unitMargin) / (1.0 + maintenanceMarginRatio)
}

// IsLiquidatable reports whether markPrice has crossed liquidationPrice in
// the direction that liquidates isLong's side.
func IsLiquidatable(isLong bool, liquidationPrice, markPrice float64) bool {
	if isLong {
		return markPrice <= liquidationPrice
	}
	return markPrice >= liquidationPrice
}
