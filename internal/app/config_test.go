package app

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HTTPAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("unexpected default addrs: %+v", cfg)
	}
	if cfg.PaymentEventTTL != 72*time.Hour {
		t.Fatalf("unexpected default TTL: %v", cfg.PaymentEventTTL)
	}
}

func TestReadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SHOP_HTTP_ADDR", ":18080")
	t.Setenv("SHOP_POSTGRES_DSN", "postgres://localhost/shop")
	t.Setenv("SHOP_TAX_RATE_BPS", "750")
	t.Setenv("SHOP_PAYMENT_EVENT_TTL", "24h")

	cfg := ReadConfig()
	if cfg.HTTPAddr != ":18080" {
		t.Fatalf("expected :18080, got %s", cfg.HTTPAddr)
	}
	if cfg.PostgresDSN != "postgres://localhost/shop" {
		t.Fatalf("unexpected dsn: %s", cfg.PostgresDSN)
	}
	if cfg.TaxRateBps != 750 {
		t.Fatalf("expected 750 bps, got %d", cfg.TaxRateBps)
	}
	if cfg.PaymentEventTTL != 24*time.Hour {
		t.Fatalf("expected 24h TTL, got %v", cfg.PaymentEventTTL)
	}
}

func TestReadConfig_IgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("SHOP_TAX_RATE_BPS", "not-a-number")
	t.Setenv("SHOP_SHIPPING_FLAT_MINOR", "-5")

	cfg := ReadConfig()
	if cfg.TaxRateBps != DefaultConfig().TaxRateBps {
		t.Fatalf("invalid value must keep default, got %d", cfg.TaxRateBps)
	}
	if cfg.ShippingFlatMinor != DefaultConfig().ShippingFlatMinor {
		t.Fatalf("negative value must keep default, got %d", cfg.ShippingFlatMinor)
	}
}
