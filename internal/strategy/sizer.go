package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"DCASentinel/internal/model"
)

var (
	// ErrUnfillable is returned when the rounded quantity does not exceed the
	// exchange minimum.
	ErrUnfillable   = errors.New("below minimum tradable quantity")
	ErrInvalidPrice = errors.New("price must be positive")
	ErrInvalidSpend = errors.New("target spend must be a finite positive amount")
)

// QuantityPrecision returns the 1-based position of the first non-zero
// fractional digit of minQty ("0.0010" -> 3). Integers yield 0.
func QuantityPrecision(minQty string) int32 {
	_, frac, found := strings.Cut(strings.TrimSpace(minQty), ".")
	if !found {
		return 0
	}
	for i, r := range frac {
		if r != '0' {
			return int32(i + 1)
		}
	}
	return 0
}

// NewTradingRule builds a rule from the exchange's textual lot-size filter.
func NewTradingRule(symbol, minQty, stepSize string) (model.TradingRule, error) {
	minQuantity, err := decimal.NewFromString(minQty)
	if err != nil {
		return model.TradingRule{}, fmt.Errorf("parse minQty %q: %w", minQty, err)
	}
	if minQuantity.IsNegative() {
		return model.TradingRule{}, fmt.Errorf("negative minQty %q", minQty)
	}
	rule := model.TradingRule{
		Symbol:            symbol,
		MinQuantity:       minQuantity,
		QuantityPrecision: QuantityPrecision(minQty),
	}
	if stepSize != "" {
		step, err := decimal.NewFromString(stepSize)
		if err != nil {
			return model.TradingRule{}, fmt.Errorf("parse stepSize %q: %w", stepSize, err)
		}
		rule.StepSize = step
	}
	return rule, nil
}

// Size converts a quote-currency spend into a base quantity rounded half away
// from zero at the rule's precision. It is a pure function of its inputs.
func Size(symbol string, targetSpend, currentPrice float64, rule model.TradingRule) (model.OrderRequest, error) {
	if currentPrice <= 0 || math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) {
		return model.OrderRequest{}, fmt.Errorf("%s: %w", symbol, ErrInvalidPrice)
	}
	if targetSpend <= 0 || math.IsNaN(targetSpend) || math.IsInf(targetSpend, 0) {
		return model.OrderRequest{}, fmt.Errorf("%s: %w", symbol, ErrInvalidSpend)
	}
	raw := targetSpend / currentPrice
	if math.IsInf(raw, 0) {
		return model.OrderRequest{}, fmt.Errorf("%s: %w", symbol, ErrInvalidSpend)
	}

	qty := decimal.NewFromFloat(raw).Round(rule.QuantityPrecision)
	if qty.LessThanOrEqual(rule.MinQuantity) {
		return model.OrderRequest{}, fmt.Errorf("%s: quantity %s (raw %g) <= min %s: %w",
			symbol, qty.String(), raw, rule.MinQuantity.String(), ErrUnfillable)
	}
	return model.OrderRequest{
		Symbol:       symbol,
		Quantity:     qty,
		ImpliedPrice: currentPrice,
		TargetSpend:  targetSpend,
	}, nil
}
