package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"sentinel/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Kafka         KafkaConfig
	Redis         RedisConfig
	Postgres      PostgresConfig
	Quotes        QuotesConfig
	News          NewsConfig
	Scanner       ScannerConfig
	Analyzer      AnalyzerConfig
	Notifier      NotifierConfig
	SMTP          SMTPConfig
	Webhook       WebhookConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"sentinel"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type HTTPConfig struct {
	Port int `envconfig:"HTTP_PORT" default:"8080"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"sentinel"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"sentinel"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"sentinel"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type QuotesConfig struct {
	BaseURL           string        `envconfig:"QUOTES_BASE_URL" default:"https://www.alphavantage.co"`
	APIKey            string        `envconfig:"QUOTES_API_KEY" default:"demo"`
	RequestsPerMinute int           `envconfig:"QUOTES_REQUESTS_PER_MINUTE" default:"60"`
	Timeout           time.Duration `envconfig:"QUOTES_TIMEOUT" default:"10s"`
}

type NewsConfig struct {
	BaseURL           string        `envconfig:"NEWS_BASE_URL" default:"https://finnhub.io/api/v1"`
	APIKey            string        `envconfig:"NEWS_API_KEY"`
	RequestsPerMinute int           `envconfig:"NEWS_REQUESTS_PER_MINUTE" default:"60"`
	Timeout           time.Duration `envconfig:"NEWS_TIMEOUT" default:"10s"`
	CacheTTL          time.Duration `envconfig:"NEWS_CACHE_TTL" default:"5m"`
}

// ScannerConfig controls the market scan loop
type ScannerConfig struct {
	Watchlist []string      `envconfig:"SCANNER_WATCHLIST" default:"AAPL,MSFT,GOOG,AMZN,TSLA"`
	Interval  time.Duration `envconfig:"SCANNER_INTERVAL" default:"5m"`
	// Minimum absolute percent change needed to emit a market event
	Threshold float64 `envconfig:"SCANNER_THRESHOLD_PERCENT" default:"5.0"`
	// Cooldown between events for the same symbol; zero falls back to Interval
	Cooldown time.Duration `envconfig:"SCANNER_COOLDOWN"`
	// Additional percent movement beyond the last emitted change that
	// overrides the cooldown
	FurtherMoveMargin float64 `envconfig:"SCANNER_FURTHER_MOVE_MARGIN" default:"1.0"`
	MaxFetchAttempts  int     `envconfig:"SCANNER_MAX_FETCH_ATTEMPTS" default:"3"`
}

// EffectiveCooldown returns the configured cooldown, defaulting to the scan interval
func (c ScannerConfig) EffectiveCooldown() time.Duration {
	if c.Cooldown > 0 {
		return c.Cooldown
	}
	return c.Interval
}

// AnalyzerConfig controls market event enrichment
type AnalyzerConfig struct {
	Lookback           time.Duration `envconfig:"ANALYZER_LOOKBACK" default:"24h"`
	SentimentThreshold float64       `envconfig:"ANALYZER_SENTIMENT_THRESHOLD" default:"0.3"`
	// AlwaysForward publishes an alert regardless of sentiment magnitude
	AlwaysForward   bool          `envconfig:"ANALYZER_ALWAYS_FORWARD" default:"false"`
	MinVolume       int64         `envconfig:"ANALYZER_MIN_VOLUME" default:"50000"`
	TopN            int           `envconfig:"ANALYZER_TOP_N" default:"10"`
	MaxHeadlines    int           `envconfig:"ANALYZER_MAX_HEADLINES" default:"3"`
	IdempotencyTTL  time.Duration `envconfig:"ANALYZER_IDEMPOTENCY_TTL" default:"24h"`
	MaxNewsAttempts int           `envconfig:"ANALYZER_MAX_NEWS_ATTEMPTS" default:"3"`
}

// NotifierConfig controls alert dispatch
type NotifierConfig struct {
	// Channels to dispatch through: email, webhook, telegram
	Channels    []string      `envconfig:"NOTIFIER_CHANNELS" default:"email,webhook"`
	MaxAttempts int           `envconfig:"NOTIFIER_MAX_ATTEMPTS" default:"3"`
	RetryDelay  time.Duration `envconfig:"NOTIFIER_RETRY_DELAY" default:"1s"`
	// ConsumeMarketEvents additionally subscribes to raw market events
	ConsumeMarketEvents bool          `envconfig:"NOTIFIER_CONSUME_MARKET_EVENTS" default:"false"`
	RecordTTL           time.Duration `envconfig:"NOTIFIER_RECORD_TTL" default:"24h"`
	EvictionInterval    time.Duration `envconfig:"NOTIFIER_EVICTION_INTERVAL" default:"1h"`
}

type SMTPConfig struct {
	Host     string   `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	Port     int      `envconfig:"SMTP_PORT" default:"587"`
	Username string   `envconfig:"SMTP_USERNAME"`
	Password string   `envconfig:"SMTP_PASSWORD"`
	From     string   `envconfig:"SMTP_FROM"`
	To       []string `envconfig:"SMTP_TO"`
}

func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type WebhookConfig struct {
	URL     string        `envconfig:"WEBHOOK_URL"`
	Timeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
}

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables.
// It first tries to load a .env file (useful for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
