package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики заказов и платёжной сверки.
type OrderMetrics struct {
	// Счётчики операций над заказами
	ordersPlaced    prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersDelivered prometheus.Counter
	ordersRejected  *prometheus.CounterVec

	// Платёжные события
	paymentsApplied   *prometheus.CounterVec
	paymentsIgnored   *prometheus.CounterVec
	webhooksRejected  *prometheus.CounterVec
	paymentApplyRetry prometheus.Counter

	// Гистограммы времени выполнения
	placeOrderDuration prometheus.Histogram
	reconcileDuration  prometheus.Histogram

	// Складские резервы
	reservationFailed prometheus.Counter
	stockReleased     prometheus.Counter

	// Служебные события
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics создаёт новый экземпляр метрик.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_placed_total",
			Help: "Total number of orders placed",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersDelivered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_delivered_total",
			Help: "Total number of orders delivered",
		}),
		ordersRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_orders_rejected_total",
			Help: "Total number of order placements rejected",
		}, []string{"reason"}),
		paymentsApplied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_payments_applied_total",
			Help: "Total number of payment events applied to orders",
		}, []string{"gateway", "outcome"}),
		paymentsIgnored: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_payments_ignored_total",
			Help: "Total number of payment events ignored as duplicates or stale",
		}, []string{"gateway", "reason"}),
		webhooksRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_webhooks_rejected_total",
			Help: "Total number of webhooks rejected before processing",
		}, []string{"gateway", "reason"}),
		paymentApplyRetry: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_payment_apply_retries_total",
			Help: "Total number of optimistic lock retries while applying payments",
		}),
		placeOrderDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_place_order_duration_seconds",
			Help:    "Duration of order placement in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		reconcileDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_payment_reconcile_duration_seconds",
			Help:    "Duration of payment event reconciliation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		reservationFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_reservation_failed_total",
			Help: "Total number of batch reservations aborted on insufficient stock",
		}),
		stockReleased: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_released_total",
			Help: "Total number of stock releases on cancellation",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderPlaced увеличивает счётчик оформленных заказов.
func (m *OrderMetrics) RecordOrderPlaced() {
	m.ordersPlaced.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *OrderMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordOrderDelivered увеличивает счётчик доставленных заказов.
func (m *OrderMetrics) RecordOrderDelivered() {
	m.ordersDelivered.Inc()
}

// RecordOrderRejected увеличивает счётчик отклонённых оформлений.
func (m *OrderMetrics) RecordOrderRejected(reason string) {
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// RecordPaymentApplied фиксирует применённое платёжное событие.
func (m *OrderMetrics) RecordPaymentApplied(gateway, outcome string) {
	m.paymentsApplied.WithLabelValues(gateway, outcome).Inc()
}

// RecordPaymentIgnored фиксирует проигнорированное событие (дубликат/устаревшее).
func (m *OrderMetrics) RecordPaymentIgnored(gateway, reason string) {
	m.paymentsIgnored.WithLabelValues(gateway, reason).Inc()
}

// RecordWebhookRejected фиксирует отклонённый webhook (подпись, формат, шлюз).
func (m *OrderMetrics) RecordWebhookRejected(gateway, reason string) {
	m.webhooksRejected.WithLabelValues(gateway, reason).Inc()
}

// RecordPaymentApplyRetry увеличивает счётчик retry при конфликте версий.
func (m *OrderMetrics) RecordPaymentApplyRetry() {
	m.paymentApplyRetry.Inc()
}

// RecordPlaceOrderDuration записывает время оформления заказа.
func (m *OrderMetrics) RecordPlaceOrderDuration(duration time.Duration) {
	m.placeOrderDuration.Observe(duration.Seconds())
}

// RecordReconcileDuration записывает время обработки платёжного события.
func (m *OrderMetrics) RecordReconcileDuration(duration time.Duration) {
	m.reconcileDuration.Observe(duration.Seconds())
}

// RecordReservationFailed увеличивает счётчик неудачных пакетных резервов.
func (m *OrderMetrics) RecordReservationFailed() {
	m.reservationFailed.Inc()
}

// RecordStockReleased увеличивает счётчик возвратов резерва.
func (m *OrderMetrics) RecordStockReleased() {
	m.stockReleased.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
