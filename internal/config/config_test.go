package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func baseFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen-addr", ":8080", "")
	flags.Bool("use-memory", false, "")
	flags.String("postgres-dsn", "", "")
	flags.Bool("dex-stub", false, "")
	flags.String("dex-url", "", "")
	flags.Int64("platform-fee-bps", 100, "")
	flags.Float64("liquidity-quote-share", 0.80, "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	flags := baseFlags()
	if err := flags.Parse([]string{"--use-memory", "--dex-stub"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Errorf("unexpected addresses: %+v", cfg)
	}
	if cfg.PlatformFeeBps != 100 || cfg.CreatorFeeBps != 100 {
		t.Errorf("unexpected fee defaults: %+v", cfg)
	}
	if cfg.LiquidityQuoteShare != 0.80 || cfg.LiquidityTokenShare != 0.30 {
		t.Errorf("unexpected liquidity defaults: %+v", cfg)
	}
	if cfg.TradeTimeout != 10*time.Second {
		t.Errorf("trade timeout = %v, want 10s", cfg.TradeTimeout)
	}
}

func TestLoadFlagOverrides(t *testing.T) {
	flags := baseFlags()
	args := []string{
		"--use-memory", "--dex-stub",
		"--listen-addr", ":9999",
		"--platform-fee-bps", "250",
		"--liquidity-quote-share", "0.5",
	}
	if err := flags.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen addr = %s, want :9999", cfg.ListenAddr)
	}
	if cfg.PlatformFeeBps != 250 {
		t.Errorf("platform fee = %d, want 250", cfg.PlatformFeeBps)
	}
	if cfg.LiquidityQuoteShare != 0.5 {
		t.Errorf("quote share = %f, want 0.5", cfg.LiquidityQuoteShare)
	}
}

func TestLoadRejectsMissingBackends(t *testing.T) {
	flags := baseFlags()
	if err := flags.Parse([]string{"--dex-stub"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Load("", flags); err == nil {
		t.Error("expected error without postgres-dsn or use-memory")
	}

	flags = baseFlags()
	if err := flags.Parse([]string{"--use-memory"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Load("", flags); err == nil {
		t.Error("expected error without dex-url or dex-stub")
	}
}

func TestLoadRejectsBadShares(t *testing.T) {
	flags := baseFlags()
	if err := flags.Parse([]string{"--use-memory", "--dex-stub", "--liquidity-quote-share", "1.5"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Load("", flags); err == nil {
		t.Error("expected error for share > 1")
	}
}
