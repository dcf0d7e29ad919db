package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"DCASentinel/internal/model"
)

// Balances returns the account's assets with a non-zero free or locked amount.
func (c *Client) Balances(ctx context.Context) ([]model.Balance, error) {
	body, err := c.signed(ctx, http.MethodGet, "/account", "timestamp="+c.timestamp())
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	var info accountInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	balances := make([]model.Balance, 0, len(info.Balances))
	for _, b := range info.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free <= 0 && locked <= 0 {
			continue
		}
		balances = append(balances, model.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return balances, nil
}

// MarketBuy submits a MARKET BUY of quantity units of the base asset.
func (c *Client) MarketBuy(ctx context.Context, symbol string, quantity decimal.Decimal) (model.OrderAck, error) {
	query := "symbol=" + url.QueryEscape(symbol) +
		"&side=BUY&type=MARKET" +
		"&quantity=" + quantity.String() +
		"&timestamp=" + c.timestamp()

	body, err := c.signed(ctx, http.MethodPost, "/order", query)
	if err != nil {
		return model.OrderAck{}, fmt.Errorf("submit order %s: %w", symbol, err)
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.OrderAck{}, fmt.Errorf("decode order %s: %w", symbol, err)
	}
	return model.OrderAck{
		OrderID:             resp.OrderID,
		Status:              resp.Status,
		ExecutedQty:         resp.ExecutedQty,
		CummulativeQuoteQty: resp.CummulativeQuoteQty,
		TransactTime:        time.UnixMilli(resp.TransactTime).UTC(),
	}, nil
}
