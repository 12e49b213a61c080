// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MaxEndpoints is the number of RPC_URL variables read: RPC_URL, RPC_URL2 ... RPC_URL10.
const MaxEndpoints = 10

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var (
	ErrMissingBotToken    = errors.New("TELEGRAM_BOT_TOKEN is required")
	ErrUnknownStoreDriver = errors.New("unknown STORE_DRIVER")
	ErrMissingPostgresDSN = errors.New("POSTGRES_DSN is required for the postgres store")
)

// Config is the resolved runtime configuration.
type Config struct {
	RPCURLs  []string
	BotToken string
	Port     int

	Destination         string
	FeeLamports         uint64
	AccountsPerEndpoint int
	ErrorThreshold      int
	ReportInterval      time.Duration
	ConfirmTimeout      time.Duration

	StoreDriver   string
	SQLitePath    string
	PostgresDSN   string
	ClickhouseDSN string

	AMQPURL      string
	AMQPExchange string

	AdminToken string
	APIURL     string
}

// LoadEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// New returns a viper instance reading the environment, with defaults.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every key with its default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("RPC_URL", "")
	for i := 2; i <= MaxEndpoints; i++ {
		v.SetDefault(rpcKey(i), "")
	}
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("PORT", 5000)

	v.SetDefault("DESTINATION_ADDRESS", "282RaYXcDsxJhNMDiG3ZPHRUM4MFX1aVPQ3dYKxDPg7b")
	v.SetDefault("SWEEP_FEE_LAMPORTS", 5000)
	v.SetDefault("ACCOUNTS_PER_ENDPOINT", 4)
	v.SetDefault("ENDPOINT_ERROR_THRESHOLD", 5)
	v.SetDefault("REPORT_INTERVAL", "5m")
	v.SetDefault("CONFIRM_TIMEOUT", "60s")

	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "wallets.db")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("CLICKHOUSE_DSN", "")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "sweeper")

	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("API_URL", "http://localhost:5000")
}

func rpcKey(i int) string {
	if i == 1 {
		return "RPC_URL"
	}
	return fmt.Sprintf("RPC_URL%d", i)
}

// Load resolves the configuration from v.
func Load(v *viper.Viper) *Config {
	cfg := &Config{
		BotToken: strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
		Port:     v.GetInt("PORT"),

		Destination:         strings.TrimSpace(v.GetString("DESTINATION_ADDRESS")),
		FeeLamports:         v.GetUint64("SWEEP_FEE_LAMPORTS"),
		AccountsPerEndpoint: v.GetInt("ACCOUNTS_PER_ENDPOINT"),
		ErrorThreshold:      v.GetInt("ENDPOINT_ERROR_THRESHOLD"),
		ReportInterval:      v.GetDuration("REPORT_INTERVAL"),
		ConfirmTimeout:      v.GetDuration("CONFIRM_TIMEOUT"),

		StoreDriver:   strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		SQLitePath:    v.GetString("SQLITE_PATH"),
		PostgresDSN:   v.GetString("POSTGRES_DSN"),
		ClickhouseDSN: v.GetString("CLICKHOUSE_DSN"),

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),

		AdminToken: v.GetString("ADMIN_TOKEN"),
		APIURL:     v.GetString("API_URL"),
	}

	for i := 1; i <= MaxEndpoints; i++ {
		if u := strings.TrimSpace(v.GetString(rpcKey(i))); u != "" {
			cfg.RPCURLs = append(cfg.RPCURLs, u)
		}
	}
	return cfg
}

// Validate checks the settings the server needs.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return ErrMissingBotToken
	}
	switch c.StoreDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return ErrMissingPostgresDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreDriver, c.StoreDriver)
	}
	return nil
}
