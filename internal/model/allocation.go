package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// SymbolMomentum holds one momentum reading for a trading pair.
// OK is false when the indicator could not produce a score.
type SymbolMomentum struct {
	Symbol string
	Score  float64
	OK     bool
}

// Valid reports whether the score can be used for weighting.
func (m SymbolMomentum) Valid() bool {
	return m.OK && !math.IsNaN(m.Score) && m.Score > 0
}

// Allocation is one entry of an allocation plan.
type Allocation struct {
	Symbol      string  `json:"symbol"`
	Score       float64 `json:"score"`
	BaseShare   float64 `json:"base_share"`
	TargetSpend float64 `json:"target_spend"`
}

// TradingRule is the lot-size constraint of a symbol.
type TradingRule struct {
	Symbol            string
	MinQuantity       decimal.Decimal
	StepSize          decimal.Decimal
	QuantityPrecision int32
}

// OrderRequest is an exchange-compliant market buy.
type OrderRequest struct {
	Symbol       string
	Quantity     decimal.Decimal
	ImpliedPrice float64
	TargetSpend  float64
}

// OrderAck is the exchange acknowledgement of a submitted order.
type OrderAck struct {
	OrderID             int64     `json:"order_id"`
	Status              string    `json:"status"`
	ExecutedQty         string    `json:"executed_qty"`
	CummulativeQuoteQty string    `json:"cummulative_quote_qty"`
	TransactTime        time.Time `json:"transact_time"`
}
