package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testKey    = "test-key"
	testSecret = "test-secret"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(Options{
		BaseURL:   srv.URL + "/api/v3",
		APIKey:    testKey,
		APISecret: testSecret,
		Timeout:   2 * time.Second,
	}, zaptest.NewLogger(t))
	c.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return c
}

func hmacHex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSign_KnownVector(t *testing.T) {
	c := New(Options{APISecret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"}, nil)
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", c.sign(query))
}

func TestMarketBuy_SignsQueryInFixedOrder(t *testing.T) {
	payload := "symbol=BTCUSDT&side=BUY&type=MARKET&quantity=0.012&timestamp=1700000000123"
	wantQuery := payload + "&signature=" + hmacHex(testSecret, payload)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testKey, r.Header.Get("X-MBX-APIKEY"))
		assert.Equal(t, wantQuery, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":28,"transactTime":1700000000200,"executedQty":"0.01200000","cummulativeQuoteQty":"803.10","status":"FILLED"}`))
	})
	c := newTestClient(t, mux)

	ack, err := c.MarketBuy(context.Background(), "BTCUSDT", decimal.RequireFromString("0.0120"))
	require.NoError(t, err)
	assert.Equal(t, int64(28), ack.OrderID)
	assert.Equal(t, "FILLED", ack.Status)
	assert.Equal(t, "0.01200000", ack.ExecutedQty)
	assert.Equal(t, int64(1700000000200), ack.TransactTime.UnixMilli())
}

func TestMarketBuy_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`))
	})
	c := newTestClient(t, mux)

	_, err := c.MarketBuy(context.Background(), "BTCUSDT", decimal.RequireFromString("0.001"))
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, int64(-1013), apiErr.Code)
	assert.Equal(t, "Filter failure: LOT_SIZE", apiErr.Msg)
}

func TestBalances_SignedAndFiltered(t *testing.T) {
	payload := "timestamp=1700000000123"
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, payload+"&signature="+hmacHex(testSecret, payload), r.URL.RawQuery)
		assert.Equal(t, testKey, r.Header.Get("X-MBX-APIKEY"))
		_, _ = w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.50000000","locked":"0.00000000"},
			{"asset":"LTC","free":"0.00000000","locked":"0.00000000"},
			{"asset":"USDT","free":"120.5","locked":"3"}]}`))
	})
	c := newTestClient(t, mux)

	balances, err := c.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.Equal(t, 0.5, balances[0].Free)
	assert.Equal(t, "USDT", balances[1].Asset)
	assert.Equal(t, 3.0, balances[1].Locked)
}

func TestCandles_ParsesAndSorts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "15", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			[1700086400000,"2010.1","2050","1990","2040.5","1000.1",1700172799999,"0",10,"0","0","0"],
			[1700000000000,"2000.0","2020","1980","2010.1","900.0",1700086399999,"0",9,"0","0","0"]]`))
	})
	c := newTestClient(t, mux)

	candles, err := c.Candles(context.Background(), "ETHUSDT", "1d", 15)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 2010.1, candles[0].Close)
	assert.Equal(t, 2040.5, candles[1].Close)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
	assert.Equal(t, 1000.1, candles[1].Volume)
}

func TestPrice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"66925.01000000"}`))
		case "ZEROUSDT":
			_, _ = w.Write([]byte(`{"symbol":"ZEROUSDT","price":"0.00000000"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}
	})
	c := newTestClient(t, mux)

	p, err := c.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 66925.01, p)

	_, err = c.Price(context.Background(), "ZEROUSDT")
	assert.ErrorIs(t, err, ErrBadPrice)

	_, err = c.Price(context.Background(), "NOPEUSDT")
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestTradingRule(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","filters":[
				{"filterType":"PRICE_FILTER","minPrice":"0.01000000","maxPrice":"1000000.00000000","tickSize":"0.01000000"},
				{"filterType":"LOT_SIZE","minQty":"0.00001000","maxQty":"9000.00000000","stepSize":"0.00001000"}]}]}`))
		case "NOLOTUSDT":
			_, _ = w.Write([]byte(`{"symbols":[{"symbol":"NOLOTUSDT","filters":[]}]}`))
		default:
			_, _ = w.Write([]byte(`{"symbols":[]}`))
		}
	})
	c := newTestClient(t, mux)

	rule, err := c.TradingRule(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", rule.Symbol)
	assert.Equal(t, int32(5), rule.QuantityPrecision)
	assert.True(t, rule.MinQuantity.Equal(decimal.RequireFromString("0.00001")))

	_, err = c.TradingRule(context.Background(), "NOLOTUSDT")
	assert.ErrorIs(t, err, ErrLotSizeNotFound)

	_, err = c.TradingRule(context.Background(), "GONEUSDT")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestPing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serverTime":1700000000000}`))
	})
	c := newTestClient(t, mux)
	require.NoError(t, c.Ping(context.Background()))

	down := New(Options{BaseURL: "http://127.0.0.1:1/api/v3", Timeout: 500 * time.Millisecond}, nil)
	assert.Error(t, down.Ping(context.Background()))
}

func TestParseAPIError_NonJSONBody(t *testing.T) {
	err := parseAPIError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "<html>bad gateway</html>", apiErr.Msg)
	assert.Contains(t, err.Error(), "502")
}
