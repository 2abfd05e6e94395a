// Package config loads the monitor's runtime configuration with
// viper: node URL (monitor.url preferred, ethereum.url fallback),
// the numeric constants of spec.md §6, and Postgres/Redis DSNs.
//
// Reading this config and constructing the monitor (cmd/monitor/main.go)
// is the only piece of "process bootstrap" this service owns; schema
// migration and everything else listed as out of scope in SPEC_FULL.md
// §1 stays external.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is every tunable the monitor needs at startup.
type Config struct {
	NodeURL string

	PostgresDSN string
	RedisAddr   string
	RedisDB     int

	MetricsAddr string

	DefaultPollDelay    time.Duration
	FilterTimeout       time.Duration
	SanityCallback      time.Duration
	NewBlockTimeout     time.Duration
	PendingTxExpiry     time.Duration
	ReorgBatch          int
	ReorgMaxDepth       int
	QueryConnectTimeout time.Duration
	QueryRequestTimeout time.Duration
	FilterConnectTimeout time.Duration
	FilterRequestTimeout time.Duration

	LogLevel string
	LogFile  string

	// Log/topic constants (spec.md §6). Empty means "use the
	// documented default" (monitor.DefaultXxx); present here only so
	// an operator can override them for a non-mainnet deployment.
	TransferTopic   string
	DepositTopic    string
	WithdrawalTopic string
	WETHContract    string
}

// Load reads configuration from environment variables (MONITOR_*,
// ETHEREUM_*) and an optional config file, applying defaults for any
// unset address, DSN or log setting. The poll, timeout and reorg
// constants are fixed literals and are not read from either source.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("postgres.dsn", "postgres://localhost:5432/toshieth?sslmode=disable")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	nodeURL := v.GetString("monitor.url")
	if nodeURL == "" {
		nodeURL = v.GetString("ethereum.url")
	}
	if nodeURL == "" {
		return nil, fmt.Errorf("config: neither monitor.url nor ethereum.url is set")
	}

	return &Config{
		NodeURL:     nodeURL,
		PostgresDSN: v.GetString("postgres.dsn"),
		RedisAddr:   v.GetString("redis.addr"),
		RedisDB:     v.GetInt("redis.db"),
		MetricsAddr: v.GetString("metrics.addr"),

		DefaultPollDelay:     time.Second,
		FilterTimeout:        120 * time.Second,
		SanityCallback:       10 * time.Second,
		NewBlockTimeout:      300 * time.Second,
		PendingTxExpiry:      60 * time.Second,
		ReorgBatch:           10,
		ReorgMaxDepth:        1000,
		QueryConnectTimeout:  5 * time.Second,
		QueryRequestTimeout:  10 * time.Second,
		FilterConnectTimeout: 10 * time.Second,
		FilterRequestTimeout: 60 * time.Second,

		LogLevel: v.GetString("log.level"),
		LogFile:  v.GetString("log.file"),

		TransferTopic:   v.GetString("constants.transfer_topic"),
		DepositTopic:    v.GetString("constants.deposit_topic"),
		WithdrawalTopic: v.GetString("constants.withdrawal_topic"),
		WETHContract:    v.GetString("constants.weth_contract"),
	}, nil
}
