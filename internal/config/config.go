package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	AuditStoreMemory   = "memory"
	AuditStoreSQLite   = "sqlite"
	AuditStoreRedis    = "redis"
	AuditStorePostgres = "postgres"

	ChannelDeepLink = "deeplink"
	ChannelWebhook  = "webhook"
)

type Config struct {
	Server     ServerConfig
	Recipients RecipientsConfig
	Database   DatabaseConfig
	Audit      AuditConfig
	Redis      RedisConfig
	Broadcast  BroadcastConfig
	Channel    ChannelConfig
	Log        LogConfig
}

type ServerConfig struct {
	Address string
	// AllowedOrigins are browser origins besides the server's own that may
	// drive the API.
	AllowedOrigins []string
}

type RecipientsConfig struct {
	// File is read when no PostgreSQL URL is configured.
	File string
}

type DatabaseConfig struct {
	PostgresURL string
}

type AuditConfig struct {
	Store      string
	MaxEntries int
	SQLitePath string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	Key      string
}

type BroadcastConfig struct {
	CountryCode string
	Interval    time.Duration
	Jitter      bool
	SendTimeout time.Duration
}

type ChannelConfig struct {
	Kind              string
	WebhookURL        string
	DryRun            bool
	DryRunSuccessRate float64
	DryRunDelay       time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadAll reads the environment and reports every problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	collectInt := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectBool := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectFloat := func(key string, def float64) float64 {
		v, err := getEnvFloat(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:        getEnv("SERVER_ADDRESS", "127.0.0.1:8080"),
			AllowedOrigins: getEnvList("SERVER_ALLOWED_ORIGINS"),
		},
		Recipients: RecipientsConfig{
			File: getEnv("RECIPIENTS_FILE", "recipients.json"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Audit: AuditConfig{
			Store:      strings.ToLower(getEnv("AUDIT_STORE", AuditStoreSQLite)),
			MaxEntries: collectInt("AUDIT_MAX_ENTRIES", 1000),
			SQLitePath: getEnv("SQLITE_PATH", "broadcast.db"),
		},
		Broadcast: BroadcastConfig{
			CountryCode: getEnv("DEFAULT_COUNTRY_CODE", "91"),
			Interval:    time.Duration(collectInt("SEND_INTERVAL_SECONDS", 5)) * time.Second,
			Jitter:      collectBool("SEND_JITTER", true),
			SendTimeout: time.Duration(collectInt("SEND_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Channel: ChannelConfig{
			Kind:              strings.ToLower(getEnv("CHANNEL", ChannelDeepLink)),
			WebhookURL:        os.Getenv("WEBHOOK_URL"),
			DryRun:            collectBool("DRY_RUN", false),
			DryRunSuccessRate: collectFloat("DRY_RUN_SUCCESS_RATE", 0.9),
			DryRunDelay:       time.Duration(collectInt("DRY_RUN_DELAY_MS", 500)) * time.Millisecond,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Redis = redisCfg

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		Key:      getEnv("REDIS_KEY", "broadcast:audit"),
	}, err
}

func validate(cfg *Config) []error {
	var errs []error

	switch cfg.Audit.Store {
	case AuditStoreMemory, AuditStoreSQLite:
	case AuditStoreRedis:
		if !cfg.Redis.Enabled {
			errs = append(errs, errors.New("AUDIT_STORE=redis requires REDIS_ADDR"))
		}
	case AuditStorePostgres:
		if cfg.Database.PostgresURL == "" {
			errs = append(errs, errors.New("AUDIT_STORE=postgres requires POSTGRES_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUDIT_STORE must be one of memory, sqlite, redis, postgres (got %q)", cfg.Audit.Store))
	}
	if cfg.Audit.MaxEntries <= 0 {
		errs = append(errs, errors.New("AUDIT_MAX_ENTRIES must be > 0"))
	}

	if cc := cfg.Broadcast.CountryCode; cc == "" || len(cc) > 3 || strings.Trim(cc, "0123456789") != "" {
		errs = append(errs, fmt.Errorf("DEFAULT_COUNTRY_CODE must be 1-3 digits (got %q)", cc))
	}
	if cfg.Broadcast.Interval < 0 {
		errs = append(errs, errors.New("SEND_INTERVAL_SECONDS must be >= 0"))
	}
	if cfg.Broadcast.SendTimeout < 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be >= 0"))
	}

	switch cfg.Channel.Kind {
	case ChannelDeepLink:
	case ChannelWebhook:
		if _, err := requireEnv("WEBHOOK_URL"); err != nil {
			errs = append(errs, fmt.Errorf("CHANNEL=webhook: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("CHANNEL must be deeplink or webhook (got %q)", cfg.Channel.Kind))
	}
	if r := cfg.Channel.DryRunSuccessRate; r < 0 || r > 1 {
		errs = append(errs, errors.New("DRY_RUN_SUCCESS_RATE must be within [0, 1]"))
	}
	if cfg.Channel.DryRunDelay < 0 {
		errs = append(errs, errors.New("DRY_RUN_DELAY_MS must be >= 0"))
	}

	if f := cfg.Log.Format; f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text (got %q)", f))
	}

	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %s", key, v)
	}
	return b, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid float for env %s: %s", key, v)
	}
	return f, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
