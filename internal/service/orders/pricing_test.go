package orders_test

import (
	"testing"

	"github.com/vladislavdragonenkov/shopcore/internal/service/orders"
)

func TestPricingPolicy(t *testing.T) {
	policy := orders.PricingPolicy{
		TaxRateBps:                 1000,
		ShippingFlatMinor:          50000,
		FreeShippingThresholdMinor: 1000000,
	}

	if got := policy.Tax(100000); got != 10000 {
		t.Fatalf("expected tax 10000, got %d", got)
	}
	if got := policy.Tax(0); got != 0 {
		t.Fatalf("expected zero tax, got %d", got)
	}

	if got := policy.Shipping(999999); got != 50000 {
		t.Fatalf("expected flat shipping, got %d", got)
	}
	if got := policy.Shipping(1000000); got != 0 {
		t.Fatalf("expected free shipping at threshold, got %d", got)
	}
}

func TestPricingPolicy_NoThreshold(t *testing.T) {
	policy := orders.PricingPolicy{TaxRateBps: 0, ShippingFlatMinor: 700}

	if got := policy.Shipping(10_000_000); got != 700 {
		t.Fatalf("zero threshold must disable free shipping, got %d", got)
	}
	if got := policy.Tax(500); got != 0 {
		t.Fatalf("expected zero tax, got %d", got)
	}
}
