package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"DCASentinel/internal/model"
)

func sampleReport() *model.CycleReport {
	start := time.Date(2024, 1, 5, 21, 30, 0, 0, time.FixedZone("CST", 8*3600))
	return &model.CycleReport{
		ID:         "c-1",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Budget:     100,
		Allocations: []model.Allocation{
			{Symbol: "BTCUSDT", Score: 25, BaseShare: 50, TargetSpend: 100},
			{Symbol: "ETHUSDT", Score: 100, BaseShare: 50, TargetSpend: 25},
		},
		Outcomes: []model.Outcome{
			{Symbol: "BTCUSDT", Status: model.StatusSubmitted, Score: 25, TargetSpend: 100, Price: 50000, Quantity: "0.002", OrderID: 28},
			{Symbol: "ETHUSDT", Status: model.StatusFailed, Score: 100, TargetSpend: 25, Reason: "no price: <timeout>"},
			{Symbol: "LTCUSDT", Status: model.StatusSkipped, Reason: "insufficient data"},
		},
		Balances: []model.Balance{{Asset: "USDT", Free: 480.5}},
	}
}

func TestFormatCycleReport(t *testing.T) {
	msg := FormatCycleReport(sampleReport())

	assert.Contains(t, msg, "2024-01-05 21:30 CST")
	assert.Contains(t, msg, "Budget: 100.00 USDT | Planned: 125.00 USDT")
	assert.Contains(t, msg, "USDT free: 480.50")
	assert.Contains(t, msg, "✅ <b>BTCUSDT</b> RSI 25.0 → 100.00 USDT, qty 0.002 @ 50000 (#28)")
	assert.Contains(t, msg, "no price: &lt;timeout&gt;")
	assert.Contains(t, msg, "⏭ <b>LTCUSDT</b>")
	assert.Contains(t, msg, "Submitted 1 | Planned 0 | Skipped 1 | Failed 1")
	assert.NotContains(t, msg, "dry run")

	// Outcomes keep report order.
	assert.Less(t, strings.Index(msg, "BTCUSDT"), strings.Index(msg, "ETHUSDT"))
	assert.Less(t, strings.Index(msg, "ETHUSDT"), strings.Index(msg, "LTCUSDT"))
}

func TestFormatCycleReport_DryRun(t *testing.T) {
	r := sampleReport()
	r.DryRun = true
	assert.Contains(t, FormatCycleReport(r), "dry run")
}

func TestFormatNextRun(t *testing.T) {
	next := time.Date(2024, 1, 12, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, "⏰ Next DCA run: 2024-01-12 21:30 UTC", FormatNextRun(next, false))
	assert.Contains(t, FormatNextRun(time.Time{}, true), "running now")
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "50000", formatPrice(50000))
	assert.Equal(t, "0.00012", formatPrice(0.00012))
	assert.Equal(t, "2010.5", formatPrice(2010.5))
}

type sentMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func newTestNotifier(t *testing.T, srv *httptest.Server) *TelegramNotifier {
	t.Helper()
	n := NewTelegramNotifier("123:abc", "42", "", zaptest.NewLogger(t))
	n.APIURL = srv.URL
	n.Backoff = time.Millisecond
	return n
}

func TestSendWithRetry(t *testing.T) {
	var attempts atomic.Int32
	var got sentMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()
	n := newTestNotifier(t, srv)

	require.NoError(t, n.SendWithRetry(context.Background(), "hello", 3))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, sentMessage{ChatID: "42", Text: "hello", ParseMode: "HTML"}, got)
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	n := newTestNotifier(t, srv)

	err := n.SendWithRetry(context.Background(), "hello", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 retries exhausted")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestReport(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m sentMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		mu.Lock()
		texts = append(texts, m.Text)
		mu.Unlock()
	}))
	defer srv.Close()
	n := newTestNotifier(t, srv)

	require.NoError(t, n.Report(context.Background(), sampleReport(), nil))
	require.NoError(t, n.Report(context.Background(), nil, errors.New("exchange unreachable: dial tcp")))
	require.NoError(t, n.Report(context.Background(), nil, nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "DCASentinel weekly DCA")
	assert.Contains(t, texts[1], "DCA cycle aborted")
}

func TestStartPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var polls atomic.Int32
	var reply sentMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot123:abc/getUpdates":
			if polls.Add(1) == 1 {
				assert.Equal(t, "0", r.URL.Query().Get("offset"))
				_, _ = w.Write([]byte(`{"ok":true,"result":[
					{"update_id":7,"message":{"text":"/run","chat":{"id":99}}},
					{"update_id":8,"message":{"text":" /next ","chat":{"id":42}}}]}`))
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		case "/bot123:abc/sendMessage":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&reply))
			cancel()
		}
	}))
	defer srv.Close()
	n := newTestNotifier(t, srv)

	var commands []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.StartPolling(ctx, func(cmd string) string {
			commands = append(commands, cmd)
			return "pong"
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
	assert.Equal(t, []string{"/next"}, commands)
	assert.Equal(t, "pong", reply.Text)
}
