package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"DCASentinel/internal/model"
)

// MockOrder is an order captured by MockGateway.
type MockOrder struct {
	Symbol   string
	Quantity decimal.Decimal
}

// MockGateway is an in-memory exchange for development and testing. Every
// call is recorded in Calls as "Op" or "Op:SYMBOL".
type MockGateway struct {
	PingErr     error
	Closes      map[string][]float64
	Prices      map[string]float64
	Rules       map[string]model.TradingRule
	BalanceData []model.Balance

	CandleErr  map[string]error
	PriceErr   map[string]error
	RuleErr    map[string]error
	BuyErr     map[string]error
	BalanceErr error

	// Delay is applied to per-symbol reads. Keys are "SYMBOL" for every read
	// or "Op:SYMBOL" (e.g. "Price:BTCUSDT") for a single operation.
	Delay map[string]time.Duration

	mu      sync.Mutex
	calls   []string
	orders  []MockOrder
	orderID int64
}

func (m *MockGateway) record(op, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if symbol == "" {
		m.calls = append(m.calls, op)
		return
	}
	m.calls = append(m.calls, op+":"+symbol)
}

func (m *MockGateway) wait(ctx context.Context, op, symbol string) error {
	d, ok := m.Delay[op+":"+symbol]
	if !ok {
		d = m.Delay[symbol]
	}
	if d == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Calls returns a copy of the recorded calls.
func (m *MockGateway) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Orders returns a copy of the submitted orders, in submission order.
func (m *MockGateway) Orders() []MockOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockOrder(nil), m.orders...)
}

func (m *MockGateway) Ping(_ context.Context) error {
	m.record("Ping", "")
	return m.PingErr
}

func (m *MockGateway) Candles(ctx context.Context, symbol, _ string, limit int) ([]model.Candle, error) {
	m.record("Candles", symbol)
	if err := m.wait(ctx, "Candles", symbol); err != nil {
		return nil, err
	}
	if err := m.CandleErr[symbol]; err != nil {
		return nil, err
	}
	closes := m.Closes[symbol]
	if len(closes) > limit {
		closes = closes[len(closes)-limit:]
	}
	return CandlesFromCloses(closes), nil
}

func (m *MockGateway) Price(ctx context.Context, symbol string) (float64, error) {
	m.record("Price", symbol)
	if err := m.wait(ctx, "Price", symbol); err != nil {
		return 0, err
	}
	if err := m.PriceErr[symbol]; err != nil {
		return 0, err
	}
	p, ok := m.Prices[symbol]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("%s: %w", symbol, ErrBadPrice)
	}
	return p, nil
}

func (m *MockGateway) TradingRule(ctx context.Context, symbol string) (model.TradingRule, error) {
	m.record("TradingRule", symbol)
	if err := m.wait(ctx, "TradingRule", symbol); err != nil {
		return model.TradingRule{}, err
	}
	if err := m.RuleErr[symbol]; err != nil {
		return model.TradingRule{}, err
	}
	r, ok := m.Rules[symbol]
	if !ok {
		return model.TradingRule{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	return r, nil
}

func (m *MockGateway) Balances(_ context.Context) ([]model.Balance, error) {
	m.record("Balances", "")
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	return m.BalanceData, nil
}

func (m *MockGateway) MarketBuy(_ context.Context, symbol string, quantity decimal.Decimal) (model.OrderAck, error) {
	m.record("MarketBuy", symbol)
	if err := m.BuyErr[symbol]; err != nil {
		return model.OrderAck{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderID++
	m.orders = append(m.orders, MockOrder{Symbol: symbol, Quantity: quantity})
	return model.OrderAck{
		OrderID:     m.orderID,
		Status:      "FILLED",
		ExecutedQty: quantity.String(),
	}, nil
}

// CandlesFromCloses builds daily candles around the given closes, oldest first.
func CandlesFromCloses(closes []float64) []model.Candle {
	candles := make([]model.Candle, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		open := start.AddDate(0, 0, i)
		candles[i] = model.Candle{
			OpenTime:  open,
			Open:      c * 0.999,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    1000,
			CloseTime: open.Add(24*time.Hour - time.Millisecond),
		}
	}
	return candles
}
