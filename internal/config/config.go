package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"stock-price-alerts/pkg/models"
)

const (
	ProviderFinnhub = "finnhub"
	ProviderMock    = "mock"

	ModePoll   = "poll"
	ModeStream = "stream"
)

var ErrMissingAPIKey = errors.New("missing API key")

// Config is the whole service configuration, read from the environment.
type Config struct {
	Server  ServerConfig
	Feed    FeedConfig
	APIKeys map[string]string `envconfig:"API_KEYS"`
	Storage StorageConfig
	Redis   RedisConfig
	Notify  NotifyConfig
	Log     LogConfig
	Engine  EngineConfig
}

type ServerConfig struct {
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
}

type FeedConfig struct {
	Provider       string        `envconfig:"FEED_PROVIDER" default:"finnhub"`
	Mode           string        `envconfig:"FEED_MODE" default:"poll"`
	Symbols        []string      `envconfig:"FEED_SYMBOLS"`
	PollInterval   time.Duration `envconfig:"FEED_POLL_INTERVAL" default:"15s"`
	RequestTimeout time.Duration `envconfig:"FEED_REQUEST_TIMEOUT" default:"10s"`
	BackoffInitial time.Duration `envconfig:"FEED_BACKOFF_INITIAL" default:"1s"`
	BackoffMax     time.Duration `envconfig:"FEED_BACKOFF_MAX" default:"30s"`
	FinnhubRESTURL string        `envconfig:"FINNHUB_REST_URL" default:"https://finnhub.io/api/v1"`
	FinnhubWSURL   string        `envconfig:"FINNHUB_WS_URL" default:"wss://ws.finnhub.io"`
	MockSeed       int64         `envconfig:"MOCK_SEED"`
}

type StorageConfig struct {
	DBPath           string        `envconfig:"DB_PATH" default:"data/alerts.db"`
	HistoryRetention time.Duration `envconfig:"HISTORY_RETENTION" default:"720h"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	QuoteTTL time.Duration `envconfig:"REDIS_QUOTE_TTL" default:"1h"`
}

// Enabled reports whether the latest-quote cache should be used.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type NotifyConfig struct {
	Timeout time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`

	EmailEnabled bool     `envconfig:"EMAIL_ENABLED"`
	SMTPHost     string   `envconfig:"SMTP_HOST"`
	SMTPPort     int      `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string   `envconfig:"SMTP_USERNAME"`
	SMTPPassword string   `envconfig:"SMTP_PASSWORD"`
	EmailFrom    string   `envconfig:"EMAIL_FROM"`
	EmailTo      []string `envconfig:"EMAIL_TO"`

	TelegramEnabled bool   `envconfig:"TELEGRAM_ENABLED"`
	TelegramURL     string `envconfig:"TELEGRAM_API_URL" default:"https://api.telegram.org"`
	TelegramToken   string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID  string `envconfig:"TELEGRAM_CHAT_ID"`
}

type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Format     string `envconfig:"LOG_FORMAT" default:"console"`
	File       string `envconfig:"LOG_FILE"`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`
	Compress   bool   `envconfig:"LOG_COMPRESS"`
}

type EngineConfig struct {
	Workers   int `envconfig:"ENGINE_WORKERS" default:"4"`
	QueueSize int `envconfig:"ENGINE_QUEUE_SIZE" default:"1000"`
}

// Load reads an optional .env file, maps the environment onto Config and
// validates it. A missing provider key is reported as ErrMissingAPIKey.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Feed.Provider = strings.ToLower(strings.TrimSpace(c.Feed.Provider))
	c.Feed.Mode = strings.ToLower(strings.TrimSpace(c.Feed.Mode))

	symbols := make([]string, 0, len(c.Feed.Symbols))
	seen := make(map[string]bool, len(c.Feed.Symbols))
	for _, s := range c.Feed.Symbols {
		s = models.NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	c.Feed.Symbols = symbols

	keys := make(map[string]string, len(c.APIKeys))
	for provider, key := range c.APIKeys {
		keys[strings.ToLower(strings.TrimSpace(provider))] = strings.TrimSpace(key)
	}
	c.APIKeys = keys
}

// APIKey returns the configured key for provider, or "".
func (c *Config) APIKey(provider string) string {
	return c.APIKeys[strings.ToLower(provider)]
}

func (c *Config) Validate() error {
	switch c.Feed.Provider {
	case ProviderFinnhub:
		if c.APIKey(ProviderFinnhub) == "" {
			return fmt.Errorf("%w for provider %q (set API_KEYS=%s:<key>)", ErrMissingAPIKey, ProviderFinnhub, ProviderFinnhub)
		}
	case ProviderMock:
		if c.Feed.Mode == ModeStream {
			return errors.New("the mock provider only supports FEED_MODE=poll")
		}
	default:
		return fmt.Errorf("unknown feed provider %q", c.Feed.Provider)
	}

	if c.Feed.Mode != ModePoll && c.Feed.Mode != ModeStream {
		return fmt.Errorf("unknown feed mode %q", c.Feed.Mode)
	}
	if c.Feed.PollInterval <= 0 {
		return errors.New("FEED_POLL_INTERVAL must be positive")
	}
	if c.Engine.Workers <= 0 {
		return errors.New("ENGINE_WORKERS must be positive")
	}

	// EMAIL_TO and TELEGRAM_CHAT_ID are defaults; rules may carry their own.
	if c.Notify.EmailEnabled {
		if c.Notify.SMTPHost == "" || c.Notify.EmailFrom == "" {
			return errors.New("email notifications need SMTP_HOST and EMAIL_FROM")
		}
	}
	if c.Notify.TelegramEnabled && c.Notify.TelegramToken == "" {
		return errors.New("telegram notifications need TELEGRAM_BOT_TOKEN")
	}
	return nil
}
