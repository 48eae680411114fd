package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"SignalSentinel/internal/model"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

var validate = validator.New()

// Job is one scheduled resolution. Either poll_interval ("90s") or
// poll_interval_seconds may be given; the former wins.
type Job struct {
	Resolution          string        `yaml:"resolution" json:"resolution" validate:"required"`
	PollInterval        time.Duration `yaml:"poll_interval" json:"-"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds" json:"poll_interval_seconds" validate:"min=0"`
}

// Interval returns the effective poll interval.
func (j Job) Interval() time.Duration {
	if j.PollInterval > 0 {
		return j.PollInterval
	}
	return time.Duration(j.PollIntervalSeconds) * time.Second
}

// Res returns the parsed resolution. Validate guarantees it parses.
func (j Job) Res() model.Resolution {
	r, _ := model.ParseResolution(j.Resolution)
	return r
}

type Provider struct {
	Name               string        `yaml:"name" default:"yahoo" validate:"oneof=yahoo binance rest"`
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	Bars               int           `yaml:"bars" default:"400" validate:"min=60,max=5000"`
	CacheTTL           time.Duration `yaml:"cache_ttl" default:"60s" validate:"min=0"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second" default:"5" validate:"gt=0"`
	Timeout            time.Duration `yaml:"timeout" default:"30s"`
}

type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	Commands bool   `yaml:"commands"`
}

// Enabled reports whether messages go to Telegram rather than the log.
func (t Telegram) Enabled() bool { return t.BotToken != "" && t.ChatID != "" }

type Retry struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"min=1,max=10"`
	BaseDelay   time.Duration `yaml:"base_delay" default:"1s"`
	MaxDelay    time.Duration `yaml:"max_delay" default:"30s"`
}

type Redis struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr" default:"localhost:6379"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db" validate:"min=0"`
	ChannelPrefix string `yaml:"channel_prefix" default:"forex"`
}

type HTTP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":8080"`
}

type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stdout"`
}

type Backtest struct {
	LookbackBars int    `yaml:"lookback_bars" default:"1500" validate:"min=100"`
	Out          string `yaml:"out"`
}

// Config holds all application configuration.
type Config struct {
	Instruments             []string `yaml:"instruments" json:"instruments" validate:"required,min=1,dive,required"`
	Jobs                    []Job    `yaml:"jobs" json:"jobs" validate:"required,min=1,dive"`
	ADXThreshold            float64  `yaml:"adx_threshold" json:"adx_threshold" default:"20" validate:"gt=0,lte=100"`
	RSIOverbought           float64  `yaml:"rsi_overbought" json:"rsi_overbought" default:"70" validate:"gt=0,lt=100"`
	RSIOversold             float64  `yaml:"rsi_oversold" json:"rsi_oversold" default:"30" validate:"gt=0,lt=100"`
	CooldownMinutes         int      `yaml:"cooldown_minutes" json:"cooldown_minutes" default:"60" validate:"min=0"`
	CriticalImportanceFloor int      `yaml:"critical_importance_floor" json:"critical_importance_floor" default:"2" validate:"min=1"`

	TrendContinuationBars int     `yaml:"trend_continuation_bars" default:"3" validate:"min=2,max=20"`
	StrongTrendFactor     float64 `yaml:"strong_trend_factor" default:"1.5" validate:"gt=1"`
	PivotProximityPct     float64 `yaml:"pivot_proximity_pct" default:"0.05" validate:"gt=0,lt=5"`

	Provider Provider `yaml:"provider"`
	Telegram Telegram `yaml:"telegram"`
	Retry    Retry    `yaml:"retry"`
	Redis    Redis    `yaml:"redis"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Backtest Backtest `yaml:"backtest"`

	SQLitePath    string        `yaml:"sqlite_path" default:"data/cooldown.db" validate:"required"`
	Proxy         string        `yaml:"proxy"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" default:"15s"`
	MarketHours   string        `yaml:"market_hours" default:"forex" validate:"oneof=forex always"`
	HourlySummary bool          `yaml:"hourly_summary"`
	RunOnStart    bool          `yaml:"run_on_start"`
}

// Cooldown returns the cooldown window.
func (c Config) Cooldown() time.Duration { return time.Duration(c.CooldownMinutes) * time.Minute }

// Load reads config from a YAML file, applies environment overrides and
// defaults, then validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a validated Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if len(cfg.Jobs) == 0 {
		cfg.Jobs = []Job{{Resolution: "1h", PollIntervalSeconds: 300}}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if os.Getenv("RUN_ON_START") == "true" {
		cfg.RunOnStart = true
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.RSIOversold >= c.RSIOverbought {
		return fmt.Errorf("%w: rsi_oversold (%.0f) must be below rsi_overbought (%.0f)", ErrInvalid, c.RSIOversold, c.RSIOverbought)
	}
	seenInst := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if seenInst[inst] {
			return fmt.Errorf("%w: duplicate instrument %q", ErrInvalid, inst)
		}
		seenInst[inst] = true
	}
	seenRes := make(map[model.Resolution]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		r, err := model.ParseResolution(j.Resolution)
		if err != nil {
			return fmt.Errorf("%w: jobs[%d]: %v", ErrInvalid, i, err)
		}
		if seenRes[r] {
			return fmt.Errorf("%w: jobs[%d]: duplicate resolution %s", ErrInvalid, i, r)
		}
		seenRes[r] = true
		if j.Interval() < time.Second {
			return fmt.Errorf("%w: jobs[%d]: poll interval must be at least 1s", ErrInvalid, i)
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("%w: telegram.bot_token and telegram.chat_id must be set together", ErrInvalid)
	}
	if c.Telegram.Commands && !c.Telegram.Enabled() {
		return fmt.Errorf("%w: telegram.commands requires bot_token and chat_id", ErrInvalid)
	}
	if c.Provider.Name == "rest" && c.Provider.BaseURL == "" {
		return fmt.Errorf("%w: provider.base_url is required for the rest provider", ErrInvalid)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required when redis is enabled", ErrInvalid)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("%w: retry.max_delay must not be below retry.base_delay", ErrInvalid)
	}
	return nil
}
