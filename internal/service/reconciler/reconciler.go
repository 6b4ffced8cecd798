package reconciler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/metrics"
)

// Adapter нормализует webhook-и конкретного платёжного шлюза.
type Adapter interface {
	Name() string
	// VerifySignature проверяет подпись сырого тела до любого разбора.
	VerifySignature(payload []byte, signature string) error
	// ParseEvent переводит тело в доменное событие.
	ParseEvent(payload []byte) (domain.GatewayEvent, error)
}

// Reconciler применяет платёжные события к заказам: проверка подписи,
// дедупликация по идентификатору транзакции, терпимость к нарушению порядка.
type Reconciler struct {
	orders      domain.OrderRepository
	idempotency domain.IdempotencyRepository
	outbox      domain.OutboxRepository
	timeline    domain.TimelineRepository
	adapters    map[string]Adapter
	eventTTL    time.Duration
	logger      *log.Entry
	metrics     *metrics.OrderMetrics

	// per-order сериализация применения событий
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option настраивает Reconciler при создании.
type Option func(*Reconciler)

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger задаёт logger вместо стандартного.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithEventTTL задаёт срок хранения записей дедупликации.
func WithEventTTL(ttl time.Duration) Option {
	return func(r *Reconciler) { r.eventTTL = ttl }
}

// New создаёт Reconciler без зарегистрированных шлюзов.
func New(
	orders domain.OrderRepository,
	idempotency domain.IdempotencyRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		orders:      orders,
		idempotency: idempotency,
		outbox:      outbox,
		timeline:    timeline,
		adapters:    make(map[string]Adapter),
		eventTTL:    72 * time.Hour,
		logger:      log.WithField("component", "payment-reconciler"),
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register добавляет адаптер шлюза.
func (r *Reconciler) Register(adapter Adapter) {
	r.adapters[adapter.Name()] = adapter
}

// HandleWebhook проверяет подпись и применяет событие.
// До успешной проверки подписи состояние не меняется.
func (r *Reconciler) HandleWebhook(gateway string, payload []byte, signature string) error {
	adapter, ok := r.adapters[gateway]
	if !ok {
		r.rejectWebhook(gateway, "unknown_gateway")
		return fmt.Errorf("%w: %s", domain.ErrGatewayUnknown, gateway)
	}

	if err := adapter.VerifySignature(payload, signature); err != nil {
		r.rejectWebhook(gateway, "bad_signature")
		r.logger.WithField("gateway", gateway).Warn("webhook signature verification failed")
		return err
	}

	event, err := adapter.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayEventIgnored) {
			// Неплатёжные события подтверждаем без обработки.
			r.logger.WithError(err).WithField("gateway", gateway).Debug("gateway event skipped")
			return nil
		}
		r.rejectWebhook(gateway, "bad_payload")
		return err
	}

	return r.Apply(event)
}

// Apply применяет нормализованное событие к заказу.
// Идемпотентно по TransactionID; события к неизвестным заказам отклоняются.
func (r *Reconciler) Apply(event domain.GatewayEvent) error {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordReconcileDuration(time.Since(start))
		}
	}()

	if err := event.Validate(); err != nil {
		r.rejectWebhook(event.Gateway, "invalid_event")
		return err
	}

	orderID, err := domain.OrderIDFromReference(event.Reference)
	if err != nil {
		r.rejectWebhook(event.Gateway, "bad_reference")
		return err
	}

	// Дедупликация до каких-либо изменений заказа. Запись в статусе failed
	// дубликатом не считается: прошлая доставка упала на внутренней ошибке,
	// и redelivery шлюза должна довести применение до конца.
	dedupKey := event.Gateway + ":" + event.TransactionID
	if record, err := r.idempotency.CreateProcessing(dedupKey, eventHash(event), time.Now().UTC().Add(r.eventTTL)); err != nil {
		switch {
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) && record.Status == domain.IdempotencyStatusFailed:
			r.logger.WithFields(log.Fields{
				"gateway":        event.Gateway,
				"transaction_id": event.TransactionID,
			}).Info("reapplying payment event after failed attempt")
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists), errors.Is(err, domain.ErrIdempotencyHashMismatch):
			r.ignorePayment(event.Gateway, "duplicate_transaction")
			r.logger.WithFields(log.Fields{
				"gateway":        event.Gateway,
				"transaction_id": event.TransactionID,
			}).Debug("duplicate payment event, skipping")
			return nil
		default:
			return fmt.Errorf("dedup payment event: %w", err)
		}
	}

	unlock := r.lockOrder(orderID)
	defer unlock()

	changed, err := r.applyToOrder(orderID, event)
	if err != nil {
		if markErr := r.idempotency.MarkFailed(dedupKey, []byte(err.Error()), 0); markErr != nil {
			r.logger.WithError(markErr).Warn("mark payment event failed")
		}
		return err
	}

	if markErr := r.idempotency.MarkDone(dedupKey, nil, 0); markErr != nil {
		r.logger.WithError(markErr).Warn("mark payment event done")
	}

	if changed {
		if r.metrics != nil {
			r.metrics.RecordPaymentApplied(event.Gateway, string(event.Outcome))
		}
	} else {
		r.ignorePayment(event.Gateway, "stale_or_noop")
	}
	return nil
}

func (r *Reconciler) applyToOrder(orderID string, event domain.GatewayEvent) (bool, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := r.orders.Get(orderID)
		if err != nil {
			return false, err
		}

		now := time.Now().UTC()
		changed, err := order.ApplyPayment(event.Result(), event.Outcome, now)
		if err != nil {
			return false, err
		}
		if !changed {
			return false, nil
		}

		saved, err := r.orders.Save(order)
		if err == nil {
			r.emitPaymentEvent(&saved, event)
			return true, nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxRetries-1 {
			return false, err
		}

		if r.metrics != nil {
			r.metrics.RecordPaymentApplyRetry()
		}
		r.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
		}).Warn("version conflict applying payment, retrying")
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}

	return false, domain.ErrOrderVersionConflict
}

func (r *Reconciler) emitPaymentEvent(order *domain.Order, event domain.GatewayEvent) {
	eventType := "PaymentApplied"
	if event.Outcome == domain.PaymentOutcomeFailed {
		eventType = "PaymentFailed"
	}

	payload := map[string]interface{}{
		"order_id":       order.ID,
		"gateway":        event.Gateway,
		"transaction_id": event.TransactionID,
		"outcome":        string(event.Outcome),
		"is_paid":        order.IsPaid,
		"status":         string(order.Status),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.WithError(err).WithField("order_id", order.ID).Error("marshal payment event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := r.outbox.Enqueue(msg); err != nil {
		r.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue payment event failed")
	} else if r.metrics != nil {
		r.metrics.RecordOutboxEvent()
	}

	if r.timeline == nil {
		return
	}
	timelineEvent := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Reason:   event.Status,
		Occurred: time.Now().UTC(),
	}
	if err := r.timeline.Append(timelineEvent); err != nil {
		r.logger.WithError(err).WithField("order_id", order.ID).Warn("append payment timeline event failed")
	} else if r.metrics != nil {
		r.metrics.RecordTimelineEvent()
	}
}

func (r *Reconciler) lockOrder(orderID string) func() {
	r.locksMu.Lock()
	mu, ok := r.locks[orderID]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[orderID] = mu
	}
	r.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (r *Reconciler) rejectWebhook(gateway, reason string) {
	if r.metrics != nil {
		r.metrics.RecordWebhookRejected(gateway, reason)
	}
}

func (r *Reconciler) ignorePayment(gateway, reason string) {
	if r.metrics != nil {
		r.metrics.RecordPaymentIgnored(gateway, reason)
	}
}

func eventHash(event domain.GatewayEvent) string {
	sum := sha256.Sum256([]byte(event.Gateway + "|" + event.TransactionID + "|" + event.Reference + "|" + string(event.Outcome)))
	return hex.EncodeToString(sum[:])
}
