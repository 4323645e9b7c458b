package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Zabbix struct {
		URL      string
		APIToken string
		Timeout  time.Duration
	}
	PagerDuty struct {
		RoutingKey string
		APIToken   string // optional, enables incident status probes
		EventsURL  string
		APIBase    string
		Timeout    time.Duration
		RatePerSec int
	}
	Store struct {
		Backend       string // postgres | redis | file
		DSN           string
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		FilePath      string
	}
	Reconcile struct {
		ReopenClosed bool
		MaxRetries   int
		RetryDelay   time.Duration
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	API struct {
		Listen   string
		BasePath string
	}
	Telegram struct {
		BotToken string
		ChatID   int64
	}
	Metrics struct {
		PushgatewayURL string
		JobName        string
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
// envFile, when non-empty, is loaded first via godotenv.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// Load .env if present
		_ = godotenv.Load()
	}

	var cfg Config

	// Zabbix settings
	cfg.Zabbix.URL = os.Getenv("ZABBIX_URL")
	cfg.Zabbix.APIToken = os.Getenv("ZABBIX_API_TOKEN")
	cfg.Zabbix.Timeout = durationEnv("ZABBIX_TIMEOUT", 15*time.Second)

	// PagerDuty settings
	cfg.PagerDuty.RoutingKey = os.Getenv("PAGERDUTY_ROUTING_KEY")
	cfg.PagerDuty.APIToken = os.Getenv("PAGERDUTY_API_TOKEN")
	cfg.PagerDuty.EventsURL = os.Getenv("PAGERDUTY_EVENTS_URL")
	cfg.PagerDuty.APIBase = os.Getenv("PAGERDUTY_API_BASE")
	cfg.PagerDuty.Timeout = durationEnv("PAGERDUTY_TIMEOUT", 10*time.Second)
	if n, err := strconv.Atoi(os.Getenv("PAGERDUTY_RATE_LIMIT")); err == nil {
		cfg.PagerDuty.RatePerSec = n
	}

	// Mapping store settings
	cfg.Store.Backend = os.Getenv("STORE_BACKEND")
	cfg.Store.DSN = os.Getenv("DB_DSN")
	cfg.Store.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.Store.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Store.RedisDB = n
	}
	cfg.Store.FilePath = os.Getenv("STORE_FILE_PATH")

	// Reconcile policy
	cfg.Reconcile.ReopenClosed = true
	if v := os.Getenv("RECONCILE_REOPEN_CLOSED"); v != "" {
		cfg.Reconcile.ReopenClosed = v == "true" || v == "1"
	}
	if n, err := strconv.Atoi(os.Getenv("RECONCILE_MAX_RETRIES")); err == nil {
		cfg.Reconcile.MaxRetries = n
	}
	cfg.Reconcile.RetryDelay = durationEnv("RECONCILE_RETRY_DELAY", time.Second)

	// Kafka alert feed (serve mode, optional)
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// API settings (serve mode)
	cfg.API.Listen = os.Getenv("API_LISTEN")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Operator notification (optional)
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if n, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = n
	}

	// Metrics push (optional)
	cfg.Metrics.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	cfg.Metrics.JobName = os.Getenv("METRICS_JOB")

	// Logging
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.Zabbix.URL == "" {
		missing = append(missing, "ZABBIX_URL")
	}
	if cfg.Zabbix.APIToken == "" {
		missing = append(missing, "ZABBIX_API_TOKEN")
	}
	if cfg.PagerDuty.RoutingKey == "" {
		missing = append(missing, "PAGERDUTY_ROUTING_KEY")
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.PagerDuty.EventsURL == "" {
		cfg.PagerDuty.EventsURL = "https://events.pagerduty.com/v2/enqueue"
	}
	if cfg.PagerDuty.APIBase == "" {
		cfg.PagerDuty.APIBase = "https://api.pagerduty.com"
	}
	if cfg.PagerDuty.RatePerSec == 0 {
		cfg.PagerDuty.RatePerSec = 10
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if cfg.Store.FilePath == "" {
		cfg.Store.FilePath = "alertsync-state.json"
	}
	if cfg.Reconcile.MaxRetries == 0 {
		cfg.Reconcile.MaxRetries = 3
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "alertsync"
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Metrics.JobName == "" {
		cfg.Metrics.JobName = "alertsync"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

// fileOverrides is the YAML shape accepted by --config. Pointer fields so
// absent keys leave the environment-derived values untouched.
type fileOverrides struct {
	Reconcile struct {
		ReopenClosed *bool   `yaml:"reopen_closed"`
		MaxRetries   *int    `yaml:"max_retries"`
		RetryDelay   *string `yaml:"retry_delay"`
	} `yaml:"reconcile"`
	PagerDuty struct {
		RatePerSecond *int `yaml:"rate_per_second"`
	} `yaml:"pagerduty"`
}

// ApplyFile overlays reconcile policy settings from a YAML file onto cfg.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var ov fileOverrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if ov.Reconcile.ReopenClosed != nil {
		cfg.Reconcile.ReopenClosed = *ov.Reconcile.ReopenClosed
	}
	if ov.Reconcile.MaxRetries != nil {
		cfg.Reconcile.MaxRetries = *ov.Reconcile.MaxRetries
	}
	if ov.Reconcile.RetryDelay != nil {
		d, err := time.ParseDuration(*ov.Reconcile.RetryDelay)
		if err != nil {
			return fmt.Errorf("invalid retry_delay in %s: %w", path, err)
		}
		cfg.Reconcile.RetryDelay = d
	}
	if ov.PagerDuty.RatePerSecond != nil {
		cfg.PagerDuty.RatePerSec = *ov.PagerDuty.RatePerSecond
	}
	return nil
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain integers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
