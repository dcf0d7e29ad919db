package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"DCASentinel/internal/calculator"
	"DCASentinel/internal/config"
	"DCASentinel/internal/dca"
	"DCASentinel/internal/exchange"
	"DCASentinel/internal/httpapi"
	"DCASentinel/internal/logging"
	"DCASentinel/internal/notifier"
	"DCASentinel/internal/scheduler"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "dcasentinel"
	app.Version = version
	app.Usage = "weekly RSI-weighted dollar-cost averaging on Binance spot"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the YAML config file",
			EnvVars: []string{"CONFIG_PATH"},
			Value:   config.DefaultPath,
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "run",
			Usage: "run the weekly scheduler until interrupted",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "run-now",
					Usage:   "fire one cycle immediately after start",
					EnvVars: []string{"RUN_ON_START"},
				},
			},
			Action: runScheduler,
		},
		{
			Name:   "once",
			Usage:  "run a single DCA cycle, print the report and exit",
			Action: runOnce,
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type deps struct {
	cfg    *config.Config
	log    *zap.Logger
	client *exchange.Client
	runner *dca.Runner
}

func setup(c *cli.Context) (*deps, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	indicator, err := calculator.Lookup(cfg.DCA.Indicator)
	if err != nil {
		return nil, err
	}

	client := exchange.New(exchange.Options{
		BaseURL:           cfg.Exchange.BaseURL,
		APIKey:            cfg.Exchange.APIKey,
		APISecret:         cfg.Exchange.APISecret,
		Timeout:           cfg.Exchange.CallTimeout,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
		Proxy:             cfg.Exchange.Proxy,
	}, logger)

	runner := dca.New(client, indicator, dca.Settings{
		Symbols:       cfg.DCA.Symbols,
		Budget:        cfg.DCA.BaseUSDT,
		MinOrderValue: cfg.DCA.MinOrderValue,
		Period:        cfg.DCA.RSIPeriod,
		Interval:      cfg.DCA.Interval,
		Workers:       cfg.DCA.Workers,
		DryRun:        cfg.DCA.DryRun,
		CallTimeout:   cfg.Exchange.CallTimeout,
	}, logger)

	return &deps{cfg: cfg, log: logger, client: client, runner: runner}, nil
}

func runScheduler(c *cli.Context) error {
	d, err := setup(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = d.log.Sync() }()
	ctx := c.Context
	cfg := d.cfg

	d.log.Info("DCASentinel starting",
		zap.String("version", version),
		zap.Strings("symbols", cfg.DCA.Symbols),
		zap.Float64("base_usdt", cfg.DCA.BaseUSDT),
		zap.String("indicator", cfg.DCA.Indicator),
		zap.Bool("dry_run", cfg.DCA.DryRun))

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Exchange.CallTimeout)
	err = d.client.Ping(pingCtx)
	cancel()
	if err != nil {
		d.log.Error("startup connectivity check failed", zap.Error(err))
		return cli.Exit(fmt.Errorf("%w: %v", dca.ErrConnectivity, err), 1)
	}
	logQuoteBalance(ctx, d)

	var reporters []scheduler.Reporter
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Exchange.Proxy, d.log)
		reporters = append(reporters, tn)
	}

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return cli.Exit(fmt.Errorf("load timezone: %w", err), 1)
	}
	sched := scheduler.NewScheduler(ctx, d.runner, loc, d.log, reporters...)
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		return cli.Exit(err, 1)
	}
	sched.Start()
	defer sched.Stop()
	d.log.Info("next DCA run", zap.Time("at", sched.NextRun()))

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		d.log.Info("telegram polling started")
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		api := httpapi.NewServer(sched, d.log)
		srv = &http.Server{Addr: cfg.HTTP.Addr, Handler: api.R, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			d.log.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error("http", zap.Error(err))
			}
		}()
	}

	if c.Bool("run-now") {
		d.log.Info("run-now enabled, executing DCA cycle")
		if err := sched.Trigger(); err != nil {
			d.log.Warn("run-now", zap.Error(err))
		}
	}

	d.log.Info("DCASentinel is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	d.log.Info("shutdown signal received, stopping")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.log.Error("http shutdown", zap.Error(err))
		}
	}
	return nil
}

func runOnce(c *cli.Context) error {
	d, err := setup(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = d.log.Sync() }()

	report, err := d.runner.Run(c.Context)
	if err != nil {
		return cli.Exit(err, 1)
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

func logQuoteBalance(ctx context.Context, d *deps) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Exchange.CallTimeout)
	defer cancel()
	balances, err := d.client.Balances(callCtx)
	if err != nil {
		d.log.Warn("account balances unavailable", zap.Error(err))
		return
	}
	for _, b := range balances {
		if b.Asset == dca.QuoteAsset {
			d.log.Info("quote balance", zap.Float64("free", b.Free), zap.Float64("locked", b.Locked))
			return
		}
	}
	d.log.Info("quote balance", zap.Float64("free", 0))
}
