package orders

// PricingPolicy задаёт серверный расчёт налога и доставки.
// Итог заказа всегда считается на сервере; суммы из запроса клиента не используются.
type PricingPolicy struct {
	// TaxRateBps — ставка налога в базисных пунктах (1000 = 10%).
	TaxRateBps int64
	// ShippingFlatMinor — фиксированная стоимость доставки в минорных единицах.
	ShippingFlatMinor int64
	// FreeShippingThresholdMinor — порог бесплатной доставки; 0 отключает порог.
	FreeShippingThresholdMinor int64
}

// DefaultPricingPolicy — значения по умолчанию для локальной разработки.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		TaxRateBps:                 1000,
		ShippingFlatMinor:          50000,
		FreeShippingThresholdMinor: 1000000,
	}
}

// Tax возвращает налог от суммы позиций.
func (p PricingPolicy) Tax(itemsSumMinor int64) int64 {
	return itemsSumMinor * p.TaxRateBps / 10000
}

// Shipping возвращает стоимость доставки для суммы позиций.
func (p PricingPolicy) Shipping(itemsSumMinor int64) int64 {
	if p.FreeShippingThresholdMinor > 0 && itemsSumMinor >= p.FreeShippingThresholdMinor {
		return 0
	}
	return p.ShippingFlatMinor
}
