package app

import (
	"os"
	"strconv"
	"time"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пустой — работаем на in-memory хранилищах.
	PostgresDSN string
	// KafkaBrokers пустой — события публикуются только в outbox без доставки.
	KafkaBrokers string

	// Секреты платёжных шлюзов. Пустой секрет — шлюз не регистрируется.
	PaystackSecret    string
	MockGatewaySecret string

	TaxRateBps                 int64
	ShippingFlatMinor          int64
	FreeShippingThresholdMinor int64

	// PaymentEventTTL — срок хранения записей дедупликации платёжных событий.
	PaymentEventTTL time.Duration
}

// DefaultConfig возвращает базовые значения для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                   ":8080",
		MetricsAddr:                ":9090",
		TaxRateBps:                 1000,
		ShippingFlatMinor:          50000,
		FreeShippingThresholdMinor: 1000000,
		PaymentEventTTL:            72 * time.Hour,
	}
}

// ReadConfig формирует конфигурацию, позволяя переопределить значения
// через переменные окружения.
func ReadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("SHOP_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SHOP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = os.Getenv("SHOP_POSTGRES_DSN")
	cfg.KafkaBrokers = os.Getenv("KAFKA_BROKERS")
	cfg.PaystackSecret = os.Getenv("SHOP_PAYSTACK_SECRET")
	cfg.MockGatewaySecret = os.Getenv("SHOP_MOCK_GATEWAY_SECRET")

	if v, ok := envInt64("SHOP_TAX_RATE_BPS"); ok {
		cfg.TaxRateBps = v
	}
	if v, ok := envInt64("SHOP_SHIPPING_FLAT_MINOR"); ok {
		cfg.ShippingFlatMinor = v
	}
	if v, ok := envInt64("SHOP_FREE_SHIPPING_THRESHOLD_MINOR"); ok {
		cfg.FreeShippingThresholdMinor = v
	}
	if v := os.Getenv("SHOP_PAYMENT_EVENT_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil && ttl > 0 {
			cfg.PaymentEventTTL = ttl
		}
	}
	return cfg
}

func envInt64(name string) (int64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}
