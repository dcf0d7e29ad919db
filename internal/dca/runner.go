package dca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"DCASentinel/internal/calculator"
	"DCASentinel/internal/model"
	"DCASentinel/internal/strategy"
)

var (
	// ErrConnectivity aborts a cycle before any market data is read.
	ErrConnectivity     = errors.New("exchange unreachable")
	ErrInsufficientData = errors.New("insufficient data")
	ErrZeroScore        = errors.New("zero momentum score")
	ErrSubmission       = errors.New("submission")
)

// QuoteAsset is the currency the budget is denominated in.
const QuoteAsset = "USDT"

// Gateway is the subset of the exchange a cycle needs.
type Gateway interface {
	Ping(ctx context.Context) error
	Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
	Price(ctx context.Context, symbol string) (float64, error)
	TradingRule(ctx context.Context, symbol string) (model.TradingRule, error)
	Balances(ctx context.Context) ([]model.Balance, error)
	MarketBuy(ctx context.Context, symbol string, quantity decimal.Decimal) (model.OrderAck, error)
}

// Settings are the per-cycle parameters.
type Settings struct {
	Symbols       []string
	Budget        float64
	MinOrderValue float64
	Period        int
	Interval      string
	Workers       int
	DryRun        bool
	CallTimeout   time.Duration
}

// Runner executes DCA cycles against a Gateway.
type Runner struct {
	gw        Gateway
	indicator calculator.Indicator
	cfg       Settings
	log       *zap.Logger
	now       func() time.Time
}

// New creates a Runner. A nil indicator falls back to Wilder's RSI.
func New(gw Gateway, indicator calculator.Indicator, cfg Settings, logger *zap.Logger) *Runner {
	if indicator == nil {
		indicator = calculator.WilderRSI
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Interval == "" {
		cfg.Interval = "1d"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		gw:        gw,
		indicator: indicator,
		cfg:       cfg,
		log:       logger.Named("dca"),
		now:       time.Now,
	}
}

// Settings returns the parameters the runner was built with.
func (r *Runner) Settings() Settings {
	return r.cfg
}

type quote struct {
	price    float64
	priceErr error
	rule     model.TradingRule
	ruleErr  error
}

// Run executes one full cycle. Only a failed connectivity check is returned
// as an error; every per-symbol problem ends up in the report.
func (r *Runner) Run(ctx context.Context) (*model.CycleReport, error) {
	report := &model.CycleReport{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		Budget:    r.cfg.Budget,
		DryRun:    r.cfg.DryRun,
	}
	log := r.log.With(zap.String("cycle", report.ID))
	log.Info("cycle started",
		zap.Strings("symbols", r.cfg.Symbols),
		zap.Float64("budget", r.cfg.Budget),
		zap.Bool("dry_run", r.cfg.DryRun))

	pingCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	err := r.gw.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Error("connectivity check failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	outcomes := make([]model.Outcome, len(r.cfg.Symbols))
	for i, s := range r.cfg.Symbols {
		outcomes[i] = model.Outcome{Symbol: s}
	}

	momentum := r.collectMomentum(ctx, log, outcomes)
	report.Balances = r.snapshotBalances(ctx, log)

	plan := strategy.Plan(momentum, r.cfg.Budget, r.cfg.MinOrderValue)
	report.Allocations = plan
	if len(plan) == 0 {
		log.Warn("no symbol has a usable momentum score, nothing to buy")
	} else {
		r.execute(ctx, log, plan, outcomes)
	}

	report.Outcomes = outcomes
	report.FinishedAt = r.now()
	log.Info("cycle finished",
		zap.Int("submitted", report.Count(model.StatusSubmitted)),
		zap.Int("planned", report.Count(model.StatusPlanned)),
		zap.Int("skipped", report.Count(model.StatusSkipped)),
		zap.Int("failed", report.Count(model.StatusFailed)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// collectMomentum scores every symbol on the worker pool. Symbols that cannot
// be scored are marked SKIPPED in outcomes.
func (r *Runner) collectMomentum(ctx context.Context, log *zap.Logger, outcomes []model.Outcome) []model.SymbolMomentum {
	momentum := make([]model.SymbolMomentum, len(r.cfg.Symbols))
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, symbol := range r.cfg.Symbols {
		g.Go(func() error {
			m, err := r.momentum(ctx, symbol)
			momentum[i] = m
			if err != nil {
				outcomes[i].Status = model.StatusSkipped
				outcomes[i].Reason = err.Error()
				log.Warn("symbol skipped", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			outcomes[i].Score = m.Score
			return nil
		})
	}
	_ = g.Wait()
	return momentum
}

func (r *Runner) momentum(ctx context.Context, symbol string) (model.SymbolMomentum, error) {
	m := model.SymbolMomentum{Symbol: symbol}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	candles, err := r.gw.Candles(callCtx, symbol, r.cfg.Interval, r.cfg.Period+1)
	if err != nil {
		return m, fmt.Errorf("candles: %w", err)
	}

	score, ok := r.indicator(model.Closes(candles), r.cfg.Period)
	if !ok {
		return m, ErrInsufficientData
	}
	m.Score, m.OK = score, true
	if !m.Valid() {
		return m, ErrZeroScore
	}
	return m, nil
}

func (r *Runner) snapshotBalances(ctx context.Context, log *zap.Logger) []model.Balance {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	balances, err := r.gw.Balances(callCtx)
	if err != nil {
		log.Warn("account balances unavailable", zap.Error(err))
		return nil
	}
	for _, b := range balances {
		if b.Asset == QuoteAsset {
			log.Info("quote balance",
				zap.String("asset", b.Asset),
				zap.Float64("free", b.Free),
				zap.Float64("locked", b.Locked))
		}
	}
	return balances
}

// execute prices every planned symbol concurrently, then sizes and submits in
// plan order.
func (r *Runner) execute(ctx context.Context, log *zap.Logger, plan []model.Allocation, outcomes []model.Outcome) {
	index := make(map[string]int, len(outcomes))
	for i, o := range outcomes {
		index[o.Symbol] = i
	}

	quotes := make([]quote, len(plan))
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, a := range plan {
		g.Go(func() error {
			quotes[i] = r.quote(ctx, a.Symbol)
			return nil
		})
	}
	_ = g.Wait()

	for i, a := range plan {
		o := &outcomes[index[a.Symbol]]
		o.Score = a.Score
		o.TargetSpend = a.TargetSpend
		r.settle(ctx, log, a, quotes[i], o)
	}
}

func (r *Runner) quote(ctx context.Context, symbol string) quote {
	var q quote
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	q.price, q.priceErr = r.gw.Price(callCtx, symbol)
	cancel()
	if q.priceErr != nil {
		return q
	}
	callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
	q.rule, q.ruleErr = r.gw.TradingRule(callCtx, symbol)
	cancel()
	return q
}

// settle turns one allocation into its terminal outcome.
func (r *Runner) settle(ctx context.Context, log *zap.Logger, a model.Allocation, q quote, o *model.Outcome) {
	fields := []zap.Field{
		zap.String("symbol", a.Symbol),
		zap.Float64("rsi", a.Score),
		zap.Float64("allocated", a.TargetSpend),
	}
	fail := func(reason string) {
		o.Status = model.StatusFailed
		o.Reason = reason
		log.Error("order failed", append(fields, zap.String("reason", reason))...)
	}

	if q.priceErr != nil {
		fail("no price: " + q.priceErr.Error())
		return
	}
	o.Price = q.price
	if q.ruleErr != nil {
		fail("no trading rule: " + q.ruleErr.Error())
		return
	}

	order, err := strategy.Size(a.Symbol, a.TargetSpend, q.price, q.rule)
	switch {
	case errors.Is(err, strategy.ErrUnfillable):
		o.Status = model.StatusSkipped
		o.Reason = strategy.ErrUnfillable.Error()
		log.Warn("order skipped", append(fields, zap.Error(err))...)
		return
	case err != nil:
		fail("sizing: " + err.Error())
		return
	}
	o.Quantity = order.Quantity.String()
	actual, _ := order.Quantity.Mul(decimal.NewFromFloat(q.price)).Float64()
	fields = append(fields,
		zap.String("quantity", o.Quantity),
		zap.String("step", q.rule.StepSize.String()),
		zap.Float64("price", q.price),
		zap.Float64("actual", actual))

	if r.cfg.DryRun {
		o.Status = model.StatusPlanned
		log.Info("order planned", fields...)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	ack, err := r.gw.MarketBuy(callCtx, order.Symbol, order.Quantity)
	if err != nil {
		fail(fmt.Errorf("%w: %v", ErrSubmission, err).Error())
		return
	}
	o.Status = model.StatusSubmitted
	o.OrderID = ack.OrderID
	log.Info("order submitted", append(fields, zap.Int64("order_id", ack.OrderID), zap.String("status", ack.Status))...)
}
