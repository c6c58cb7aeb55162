package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"delta-hedge-bot/internal/hedge"
	"delta-hedge-bot/internal/schedule"

	"gopkg.in/yaml.v3"
)

const (
	EnvAPIKey          = "BYBIT_API_KEY"
	EnvAPISecret       = "BYBIT_API_SECRET"
	EnvLegacyAPIKey    = "API_KEY"
	EnvLegacyAPISecret = "API_SECRET"
	EnvSymbol          = "BYBIT_SYMBOL"
	EnvLogLevel        = "LOG_LEVEL"
	EnvTelegramToken   = "HEDGE_TELEGRAM_TOKEN"
	EnvTelegramChatID  = "HEDGE_TELEGRAM_CHAT_ID"
	EnvTimescaleDSN    = "HEDGE_TIMESCALE_DSN"
	defaultBaseURL     = "https://api.bybit.com"
	defaultSymbol      = "BTCPERP"
	defaultRecvWindow  = "5000"
	defaultRateLimit   = 5.0
)

// ErrMissingCredentials is returned when the exchange key pair is absent.
var ErrMissingCredentials = errors.New("exchange credentials are required")

type Config struct {
	Log         LoggingConfig   `yaml:"log"`
	REST        RESTConfig      `yaml:"rest"`
	Strategy    StrategyConfig  `yaml:"strategy"`
	Order       OrderConfig     `yaml:"order"`
	Schedule    ScheduleConfig  `yaml:"schedule"`
	State       StateConfig     `yaml:"state"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Telegram    TelegramConfig  `yaml:"telegram"`
	Timescale   TimescaleConfig `yaml:"timescale"`
	Credentials Credentials     `yaml:"-"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RecvWindow string        `yaml:"recv_window"`
	RateLimit  *float64      `yaml:"rate_limit"`
	RateBurst  int           `yaml:"rate_burst"`
}

// RateLimitValue is requests per second. An explicit 0 disables limiting.
func (r RESTConfig) RateLimitValue() float64 {
	if r.RateLimit == nil {
		return defaultRateLimit
	}
	return *r.RateLimit
}

type StrategyConfig struct {
	Symbol string `yaml:"symbol"`
	// Coin picks the asset entry whose delta is hedged. Empty uses the first entry.
	Coin           string `yaml:"coin"`
	RoundingPlaces *int32 `yaml:"rounding_places"`
}

func (s StrategyConfig) Places() int32 {
	if s.RoundingPlaces == nil {
		return hedge.DefaultPlaces
	}
	return *s.RoundingPlaces
}

type OrderConfig struct {
	SettleDelay  time.Duration `yaml:"settle_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

type ScheduleConfig struct {
	CheckMinute *int  `yaml:"check_minute"`
	RunOnStart  *bool `yaml:"run_on_start"`
}

func (s ScheduleConfig) Minute() int {
	if s.CheckMinute == nil {
		return schedule.DefaultMinute
	}
	return *s.CheckMinute
}

func (s ScheduleConfig) RunOnStartValue() bool {
	return s.RunOnStart == nil || *s.RunOnStart
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	// Operator commands (/status, /pause, /resume) are only accepted from
	// OperatorAllowedUserIDs in ChatID.
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Credentials never leave the process; the secret is only used as an HMAC key.
type Credentials struct {
	APIKey    string
	APISecret string
}

// String hides the secret from logs and panics.
func (c Credentials) String() string {
	if c.APIKey == "" {
		return "credentials(empty)"
	}
	return fmt.Sprintf("credentials(key=%s…)", c.APIKey[:min(4, len(c.APIKey))])
}

// Load reads the YAML file at path. A missing file yields the defaults so the
// bot can run from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = defaultBaseURL
	}
	cfg.REST.BaseURL = strings.TrimRight(cfg.REST.BaseURL, "/")
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.REST.RecvWindow == "" {
		cfg.REST.RecvWindow = defaultRecvWindow
	}
	if cfg.REST.RateBurst == 0 {
		cfg.REST.RateBurst = 1
	}
	if cfg.Strategy.Symbol == "" {
		cfg.Strategy.Symbol = defaultSymbol
	}
	if cfg.Order.SettleDelay == 0 {
		cfg.Order.SettleDelay = time.Second
	}
	if cfg.Order.PollInterval == 0 {
		cfg.Order.PollInterval = 5 * time.Second
	}
	if cfg.Order.MaxPolls == 0 {
		cfg.Order.MaxPolls = 60
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/delta-hedge-bot.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9102"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := envValue(EnvLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := envValue(EnvSymbol); v != "" {
		cfg.Strategy.Symbol = v
	}
	if v := envValue(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := envValue(EnvTelegramChatID); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := envValue(EnvTimescaleDSN); v != "" {
		cfg.Timescale.DSN = v
	}
	cfg.Credentials = Credentials{
		APIKey:    envValue(EnvAPIKey, EnvLegacyAPIKey),
		APISecret: envValue(EnvAPISecret, EnvLegacyAPISecret),
	}
}

func validate(cfg *Config) error {
	if cfg.Credentials.APIKey == "" || cfg.Credentials.APISecret == "" {
		return fmt.Errorf("%w: set %s and %s (or %s and %s)", ErrMissingCredentials, EnvAPIKey, EnvAPISecret, EnvLegacyAPIKey, EnvLegacyAPISecret)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug|info|warn|error", cfg.Log.Level)
	}
	if cfg.REST.Timeout < 0 {
		return errors.New("rest.timeout must be >= 0")
	}
	if cfg.REST.RateLimitValue() < 0 || cfg.REST.RateBurst < 0 {
		return errors.New("rest.rate_limit and rest.rate_burst must be >= 0")
	}
	if strings.TrimSpace(cfg.Strategy.Symbol) == "" {
		return errors.New("strategy.symbol is required")
	}
	if places := cfg.Strategy.Places(); places < 0 || places > 8 {
		return errors.New("strategy.rounding_places must be between 0 and 8")
	}
	if cfg.Order.SettleDelay < 0 || cfg.Order.PollInterval < 0 {
		return errors.New("order delays must be >= 0")
	}
	if cfg.Order.MaxPolls < 0 {
		return errors.New("order.max_polls must be >= 0")
	}
	if minute := cfg.Schedule.Minute(); minute < 0 || minute > 59 {
		return errors.New("schedule.check_minute must be between 0 and 59")
	}
	if cfg.Metrics.EnabledValue() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Telegram.OperatorEnabled {
		if !cfg.Telegram.Enabled {
			return errors.New("telegram.operator_enabled requires telegram.enabled")
		}
		if len(cfg.Telegram.OperatorAllowedUserIDs) == 0 {
			return errors.New("telegram.operator_allowed_user_ids is required when the operator is enabled")
		}
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// envValue returns the first non-empty variable among keys.
func envValue(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
