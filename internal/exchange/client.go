package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Binance spot REST root, including the API version.
const DefaultBaseURL = "https://api.binance.com/api/v3"

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Proxy             string
}

// Client talks to the Binance spot REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	apiKey    string
	apiSecret string
	limiter   *rate.Limiter
	now       func() time.Time
	log       *zap.Logger
}

// New creates a Client with optional proxy support and client-side pacing.
func New(opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 15 * time.Second}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		BaseURL: opts.BaseURL,
		HTTP: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		limiter:   rate.NewLimiter(limit, 1),
		now:       time.Now,
		log:       logger.Named("exchange"),
	}
}

// sign returns the hex HMAC-SHA256 of payload keyed by the API secret.
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) timestamp() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10)
}

// get performs an unauthenticated GET.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, params.Encode(), false)
}

// signed performs an authenticated request. query must already be in its
// final order; the signature covers it byte for byte.
func (c *Client) signed(ctx context.Context, method, path, query string) ([]byte, error) {
	return c.do(ctx, method, path, query+"&signature="+c.sign(query), true)
}

func (c *Client) do(ctx context.Context, method, path, query string, auth bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: rate limit: %w", method, path, err)
	}

	endpoint := c.BaseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: %w", method, path, parseAPIError(resp.StatusCode, body))
	}
	return body, nil
}
