package domain

// Product — запись каталога, участвующая в оформлении заказа.
// Цена в минорных единицах валюты; Stock — доступный остаток.
type Product struct {
	ID         string
	Name       string
	StoreID    string
	OwnerID    string
	PriceMinor int64
	Currency   string
	Stock      int32
}
