// Package config loads engine configuration from flags, environment
// variables, and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	UseMemory     bool
	PostgresDSN   string
	ClickhouseDSN string // optional analytics sink

	DexURL     string
	DexTimeout time.Duration
	DexStub    bool

	PlatformFeeBps int64
	CreatorFeeBps  int64

	LiquidityQuoteShare float64
	LiquidityTokenShare float64

	TradeTimeout time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
// Environment variables use the CURVELAUNCH_ prefix with dashes mapped to
// underscores.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CURVELAUNCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen-addr", ":8080")
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("use-memory", false)
	v.SetDefault("dex-timeout", 30*time.Second)
	v.SetDefault("dex-stub", false)
	v.SetDefault("platform-fee-bps", int64(100))
	v.SetDefault("creator-fee-bps", int64(100))
	v.SetDefault("liquidity-quote-share", 0.80)
	v.SetDefault("liquidity-token-share", 0.30)
	v.SetDefault("trade-timeout", 10*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		ListenAddr:          v.GetString("listen-addr"),
		MetricsAddr:         v.GetString("metrics-addr"),
		UseMemory:           v.GetBool("use-memory"),
		PostgresDSN:         v.GetString("postgres-dsn"),
		ClickhouseDSN:       v.GetString("clickhouse-dsn"),
		DexURL:              v.GetString("dex-url"),
		DexTimeout:          v.GetDuration("dex-timeout"),
		DexStub:             v.GetBool("dex-stub"),
		PlatformFeeBps:      v.GetInt64("platform-fee-bps"),
		CreatorFeeBps:       v.GetInt64("creator-fee-bps"),
		LiquidityQuoteShare: v.GetFloat64("liquidity-quote-share"),
		LiquidityTokenShare: v.GetFloat64("liquidity-token-share"),
		TradeTimeout:        v.GetDuration("trade-timeout"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if !c.UseMemory && c.PostgresDSN == "" {
		return errors.New("postgres-dsn is required unless use-memory is set")
	}
	if !c.DexStub && c.DexURL == "" {
		return errors.New("dex-url is required unless dex-stub is set")
	}
	if c.LiquidityQuoteShare < 0 || c.LiquidityQuoteShare > 1 {
		return fmt.Errorf("liquidity-quote-share %f out of range [0, 1]", c.LiquidityQuoteShare)
	}
	if c.LiquidityTokenShare < 0 || c.LiquidityTokenShare > 1 {
		return fmt.Errorf("liquidity-token-share %f out of range [0, 1]", c.LiquidityTokenShare)
	}
	return nil
}
