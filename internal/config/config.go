package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"DCASentinel/internal/calculator"
	"DCASentinel/internal/exchange"
)

// DefaultPath is used when neither --config nor CONFIG_PATH is given.
const DefaultPath = "configs/config.yaml"

// CronParser accepts six-field expressions with a leading seconds field.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type ExchangeConfig struct {
	BaseURL           string        `yaml:"base_url" env:"BINANCE_API_URL"`
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	APISecret         string        `yaml:"api_secret" env:"API_SECRET"`
	CallTimeout       time.Duration `yaml:"call_timeout" env:"EXCHANGE_CALL_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"EXCHANGE_RPS"`
	Proxy             string        `yaml:"proxy" env:"HTTPS_PROXY"`
}

type DCAConfig struct {
	Symbols       []string `yaml:"symbols" env:"SYMBOLS" envSeparator:","`
	BaseUSDT      float64  `yaml:"base_usdt" env:"BASE_USDT"`
	MinOrderValue float64  `yaml:"min_order_value" env:"MIN_ORDER_VALUE"`
	RSIPeriod     int      `yaml:"rsi_period" env:"RSI_PERIOD"`
	Interval      string   `yaml:"interval" env:"KLINE_INTERVAL"`
	Indicator     string   `yaml:"indicator" env:"MOMENTUM_INDICATOR"`
	Workers       int      `yaml:"workers" env:"DCA_WORKERS"`
	DryRun        bool     `yaml:"dry_run" env:"DRY_RUN"`
}

type ScheduleConfig struct {
	Cron     string `yaml:"cron" env:"CRON_WEEKLY"`
	Timezone string `yaml:"timezone" env:"CRON_TIMEZONE"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// Config holds all application configuration.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	DCA      DCAConfig      `yaml:"dca"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Telegram TelegramConfig `yaml:"telegram"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.DCA.Symbols = NormalizeSymbols(cfg.DCA.Symbols)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = exchange.DefaultBaseURL
	}
	c.Exchange.BaseURL = strings.TrimRight(c.Exchange.BaseURL, "/")
	if c.Exchange.CallTimeout == 0 {
		c.Exchange.CallTimeout = 10 * time.Second
	}
	if c.Exchange.RequestsPerSecond == 0 {
		c.Exchange.RequestsPerSecond = 10
	}
	if c.DCA.MinOrderValue == 0 {
		c.DCA.MinOrderValue = 5.1
	}
	if c.DCA.RSIPeriod == 0 {
		c.DCA.RSIPeriod = 14
	}
	if c.DCA.Interval == "" {
		c.DCA.Interval = "1d"
	}
	if c.DCA.Indicator == "" {
		c.DCA.Indicator = calculator.EngineWilder
	}
	if c.DCA.Workers == 0 {
		c.DCA.Workers = 4
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 30 21 * * 5"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Shanghai"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// NormalizeSymbols trims and upper-cases symbols, dropping empty entries.
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	var errs []error
	if !c.DCA.DryRun && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		errs = append(errs, errors.New("exchange.api_key and exchange.api_secret are required"))
	}
	if c.Exchange.CallTimeout < 0 {
		errs = append(errs, errors.New("exchange.call_timeout must not be negative"))
	}
	if c.Exchange.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("exchange.requests_per_second must not be negative"))
	}
	if c.Exchange.Proxy != "" {
		if u, err := url.Parse(c.Exchange.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("exchange.proxy: invalid proxy URL %q", c.Exchange.Proxy))
		}
	}
	if len(c.DCA.Symbols) == 0 {
		errs = append(errs, errors.New("dca.symbols is required"))
	}
	seen := make(map[string]bool, len(c.DCA.Symbols))
	for _, s := range c.DCA.Symbols {
		if seen[s] {
			errs = append(errs, fmt.Errorf("dca.symbols: duplicate symbol %s", s))
		}
		seen[s] = true
	}
	if c.DCA.BaseUSDT <= 0 {
		errs = append(errs, errors.New("dca.base_usdt must be positive"))
	}
	if c.DCA.MinOrderValue <= 0 {
		errs = append(errs, errors.New("dca.min_order_value must be positive"))
	}
	if c.DCA.RSIPeriod < 2 {
		errs = append(errs, errors.New("dca.rsi_period must be at least 2"))
	}
	if c.DCA.Workers < 1 {
		errs = append(errs, errors.New("dca.workers must be at least 1"))
	}
	if _, err := calculator.Lookup(c.DCA.Indicator); err != nil {
		errs = append(errs, fmt.Errorf("dca.indicator: %w", err))
	}
	if _, err := CronParser.Parse(c.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram.bot_token and telegram.chat_id must be set together"))
	}
	return errors.Join(errs...)
}

// TelegramEnabled reports whether cycle reports should go to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
