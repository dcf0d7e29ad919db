package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/buger/jsonparser"

	"DCASentinel/internal/model"
	"DCASentinel/internal/strategy"
)

// Ping checks that the REST API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.get(ctx, "/time", nil); err != nil {
		return fmt.Errorf("connectivity: %w", err)
	}
	return nil
}

// Candles returns up to limit klines for symbol, oldest first.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/klines", params)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}
	var rows []klineRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines %s: %w", symbol, err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		openMs, _ := row[0].Int64()
		closeMs, _ := row[6].Int64()
		o, _ := row[1].Float64()
		h, _ := row[2].Float64()
		l, _ := row[3].Float64()
		cl, err := row[4].Float64()
		if err != nil {
			return nil, fmt.Errorf("decode kline close %s: %w", symbol, err)
		}
		v, _ := row[5].Float64()
		candles = append(candles, model.Candle{
			OpenTime:  time.UnixMilli(openMs).UTC(),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     cl,
			Volume:    v,
			CloseTime: time.UnixMilli(closeMs).UTC(),
		})
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

// Price returns the latest traded price of symbol.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/ticker/price", params)
	if err != nil {
		return 0, fmt.Errorf("fetch price %s: %w", symbol, err)
	}
	raw, err := jsonparser.GetString(body, "price")
	if err != nil {
		return 0, fmt.Errorf("decode price %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %s: %w", symbol, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%s: %w", symbol, ErrBadPrice)
	}
	return price, nil
}

// TradingRule fetches the LOT_SIZE filter of symbol.
func (c *Client) TradingRule(ctx context.Context, symbol string) (model.TradingRule, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/exchangeInfo", params)
	if err != nil {
		return model.TradingRule{}, fmt.Errorf("fetch exchange info %s: %w", symbol, err)
	}
	var info exchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return model.TradingRule{}, fmt.Errorf("decode exchange info %s: %w", symbol, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == lotSizeFilter {
				return strategy.NewTradingRule(symbol, f.MinQty, f.StepSize)
			}
		}
		return model.TradingRule{}, fmt.Errorf("%s: %w", symbol, ErrLotSizeNotFound)
	}
	return model.TradingRule{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
}
