// Package config loads runtime configuration from environment
// variables with sensible defaults for the Japanese storefront.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

type Config struct {
	Server   ServerConfig
	Monitor  MonitorConfig
	Purchase PurchaseConfig
	Browser  BrowserConfig
	Amazon   AmazonConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type MonitorConfig struct {
	ASINs           []models.ASIN
	BackendPriority []models.Backend
	Interval        time.Duration
	Jitter          time.Duration
	ConcurrentLimit int
	RateLimitMin    time.Duration
	RateLimitMax    time.Duration
}

type PurchaseConfig struct {
	AutoBuyEnabled  bool
	MaxPrice        string
	PerASINMaxPrice string // "ASIN=amount" pairs, comma separated
	Currency        string
	Quantity        int
	DryRun          bool
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type AmazonConfig struct {
	BaseURL  string
	Email    string
	Password string
}

type StoreConfig struct {
	Backend string // memory, file or postgres
	File    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Addr   string
	Stream string
}

type NotifyConfig struct {
	WebhookURL      string
	SlackWebhookURL string
	RedisEnabled    bool
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	EmailFrom       string
	EmailTo         []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Monitor: MonitorConfig{
			ASINs:           asinList(getStringSliceOrDefault("TARGET_ASINS", []string{})),
			BackendPriority: backendList(getStringSliceOrDefault("BACKEND_PRIORITY", []string{"playwright", "chromedp", "colly"})),
			Interval:        getDurationOrDefault("MONITOR_INTERVAL", 5*time.Minute),
			Jitter:          getDurationOrDefault("MONITOR_JITTER", 30*time.Second),
			ConcurrentLimit: getIntOrDefault("MONITOR_CONCURRENT_LIMIT", 3),
			RateLimitMin:    getDurationOrDefault("MONITOR_RATE_LIMIT_MIN", 5*time.Second),
			RateLimitMax:    getDurationOrDefault("MONITOR_RATE_LIMIT_MAX", 15*time.Second),
		},
		Purchase: PurchaseConfig{
			AutoBuyEnabled:  getBoolOrDefault("AUTO_BUY_ENABLED", false),
			MaxPrice:        getEnvOrDefault("MAX_PRICE", ""),
			PerASINMaxPrice: getEnvOrDefault("PER_ASIN_MAX_PRICE", ""),
			Currency:        getEnvOrDefault("MAX_PRICE_CURRENCY", "JPY"),
			Quantity:        getIntOrDefault("BUY_QUANTITY", 1),
			DryRun:          getBoolOrDefault("DRY_RUN", true),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ja-JP,ja;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Tokyo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ja-JP"),
		},
		Amazon: AmazonConfig{
			BaseURL:  getEnvOrDefault("AMAZON_BASE_URL", "https://www.amazon.co.jp"),
			Email:    getEnvOrDefault("AMAZON_EMAIL", ""),
			Password: getEnvOrDefault("AMAZON_PASSWORD", ""),
		},
		Store: StoreConfig{
			Backend: getEnvOrDefault("STORE_BACKEND", "file"),
			File:    getEnvOrDefault("STORE_FILE", "watcher_data.json"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "price_watcher"),
		},
		Redis: RedisConfig{
			Addr:   getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Stream: getEnvOrDefault("REDIS_STREAM", "stream:watch_events"),
		},
		Notify: NotifyConfig{
			WebhookURL:      getEnvOrDefault("NOTIFY_WEBHOOK_URL", ""),
			SlackWebhookURL: getEnvOrDefault("SLACK_WEBHOOK_URL", ""),
			RedisEnabled:    getBoolOrDefault("NOTIFY_REDIS_ENABLED", false),
			SMTPHost:        getEnvOrDefault("SMTP_HOST", ""),
			SMTPPort:        getIntOrDefault("SMTP_PORT", 587),
			SMTPUsername:    getEnvOrDefault("SMTP_USERNAME", ""),
			SMTPPassword:    getEnvOrDefault("SMTP_PASSWORD", ""),
			EmailFrom:       getEnvOrDefault("EMAIL_FROM", ""),
			EmailTo:         getStringSliceOrDefault("EMAIL_TO", []string{}),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Monitor.ASINs) == 0 {
		return fmt.Errorf("TARGET_ASINS must list at least one product")
	}
	if len(c.Monitor.BackendPriority) == 0 {
		return fmt.Errorf("BACKEND_PRIORITY must list at least one backend")
	}
	for _, b := range c.Monitor.BackendPriority {
		switch b {
		case models.BackendPlaywright, models.BackendChromedp, models.BackendColly:
		default:
			return fmt.Errorf("unknown backend in BACKEND_PRIORITY: %q", b)
		}
	}

	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive")
	}
	if c.Monitor.ConcurrentLimit < 1 {
		return fmt.Errorf("MONITOR_CONCURRENT_LIMIT must be at least 1")
	}
	if c.Monitor.RateLimitMin > c.Monitor.RateLimitMax {
		return fmt.Errorf("MONITOR_RATE_LIMIT_MIN cannot be greater than MONITOR_RATE_LIMIT_MAX")
	}

	if c.Purchase.Quantity < 1 {
		return fmt.Errorf("BUY_QUANTITY must be at least 1")
	}
	if _, err := c.PurchasePolicy(); err != nil {
		return err
	}
	if _, err := c.PurchasePolicies(); err != nil {
		return err
	}

	if c.Purchase.AutoBuyEnabled && !c.Purchase.DryRun {
		if c.Amazon.Email == "" || c.Amazon.Password == "" {
			return fmt.Errorf("AMAZON_EMAIL and AMAZON_PASSWORD are required for live purchasing")
		}
	}

	switch c.Store.Backend {
	case "memory", "file", "postgres":
	default:
		return fmt.Errorf("unknown STORE_BACKEND: %q", c.Store.Backend)
	}

	if c.Notify.SMTPHost != "" && len(c.Notify.EmailTo) == 0 {
		return fmt.Errorf("EMAIL_TO must list at least one recipient when SMTP_HOST is set")
	}

	return nil
}

// PurchasePolicy builds the runtime policy from the raw settings.
func (c *Config) PurchasePolicy() (models.PurchasePolicy, error) {
	policy := models.PurchasePolicy{
		AutoBuy:  c.Purchase.AutoBuyEnabled,
		Quantity: c.Purchase.Quantity,
	}

	if c.Purchase.MaxPrice != "" {
		amount, err := decimal.NewFromString(c.Purchase.MaxPrice)
		if err != nil {
			return models.PurchasePolicy{}, fmt.Errorf("MAX_PRICE is not a valid number: %q", c.Purchase.MaxPrice)
		}
		max, err := models.NewMoney(amount, c.Purchase.Currency)
		if err != nil {
			return models.PurchasePolicy{}, fmt.Errorf("invalid MAX_PRICE: %w", err)
		}
		policy.MaxPrice = &max
	}

	return policy, nil
}

// PurchasePolicies builds the per-product overrides from
// PER_ASIN_MAX_PRICE. Entries inherit everything except the ceiling
// from the global policy. A nil map means no overrides.
func (c *Config) PurchasePolicies() (map[models.ASIN]models.PurchasePolicy, error) {
	if c.Purchase.PerASINMaxPrice == "" {
		return nil, nil
	}

	base, err := c.PurchasePolicy()
	if err != nil {
		return nil, err
	}

	out := make(map[models.ASIN]models.PurchasePolicy)
	for _, entry := range strings.Split(c.Purchase.PerASINMaxPrice, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		asin, raw, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("PER_ASIN_MAX_PRICE entry %q is not ASIN=price", entry)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("PER_ASIN_MAX_PRICE entry %q has an invalid price", entry)
		}
		max, err := models.NewMoney(amount, c.Purchase.Currency)
		if err != nil {
			return nil, fmt.Errorf("PER_ASIN_MAX_PRICE entry %q: %w", entry, err)
		}
		policy := base
		policy.MaxPrice = &max
		out[models.ASIN(strings.TrimSpace(asin))] = policy
	}
	return out, nil
}

func asinList(values []string) []models.ASIN {
	out := make([]models.ASIN, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, models.ASIN(v))
		}
	}
	return out
}

func backendList(values []string) []models.Backend {
	out := make([]models.Backend, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, models.Backend(v))
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
