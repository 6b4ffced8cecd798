package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/metrics"
)

// PlaceOrderItem — позиция запроса на оформление. Цены клиент не передаёт.
type PlaceOrderItem struct {
	ProductID string
	Qty       int32
}

// PlaceOrderInput — данные запроса на оформление заказа.
type PlaceOrderInput struct {
	Items           []PlaceOrderItem
	ShippingAddress string
	PaymentMethod   string
}

// Service реализует операции над заказами: оформление, отмену, смену статуса
// и выборки с учётом прав действующего лица.
type Service struct {
	orders   domain.OrderRepository
	catalog  domain.CatalogService
	ledger   domain.InventoryLedger
	cart     domain.CartService
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	pricing  PricingPolicy
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
}

// Option настраивает Service при создании.
type Option func(*Service)

// WithCart подключает очистку корзины после оформления (best-effort).
func WithCart(cart domain.CartService) Option {
	return func(s *Service) { s.cart = cart }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт logger вместо стандартного.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService создаёт рабочий экземпляр сервиса заказов.
func NewService(
	orders domain.OrderRepository,
	catalog domain.CatalogService,
	ledger domain.InventoryLedger,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	pricing PricingPolicy,
	opts ...Option,
) *Service {
	s := &Service{
		orders:   orders,
		catalog:  catalog,
		ledger:   ledger,
		outbox:   outbox,
		timeline: timeline,
		pricing:  pricing,
		logger:   log.WithField("component", "order-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder оформляет заказ: снимает цены из каталога, считает итог на сервере,
// резервирует сток по принципу всё-или-ничего и сохраняет заказ в статусе pending.
// Любая ошибка после резерва компенсируется возвратом стока.
func (s *Service) PlaceOrder(actor domain.Actor, input PlaceOrderInput) (domain.Order, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordPlaceOrderDuration(time.Since(start))
		}
	}()

	if actor.UserID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}
	if len(input.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}

	now := time.Now().UTC()
	items := make([]domain.LineItem, 0, len(input.Items))
	lines := make([]domain.BatchLine, 0, len(input.Items))
	var itemsSum int64
	var currency string

	// Снимок каталожных цен: после создания заказа позиции не меняются.
	for _, in := range input.Items {
		if in.Qty <= 0 {
			return domain.Order{}, fmt.Errorf("product %s: %w", in.ProductID, domain.ErrItemQtyInvalid)
		}
		product, err := s.catalog.GetProduct(in.ProductID)
		if err != nil {
			s.rejectOrder("product_not_found")
			return domain.Order{}, fmt.Errorf("product %s: %w", in.ProductID, err)
		}
		if currency == "" {
			currency = product.Currency
		}
		items = append(items, domain.LineItem{
			ID:         uuid.NewString(),
			ProductID:  product.ID,
			Qty:        in.Qty,
			PriceMinor: product.PriceMinor,
			CreatedAt:  now,
		})
		lines = append(lines, domain.BatchLine{ProductID: product.ID, Qty: in.Qty})
		itemsSum += int64(in.Qty) * product.PriceMinor
	}

	tax := s.pricing.Tax(itemsSum)
	shipping := s.pricing.Shipping(itemsSum)

	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          actor.UserID,
		Status:          domain.OrderStatusPending,
		Currency:        currency,
		Items:           items,
		TotalMinor:      itemsSum + tax + shipping,
		TaxMinor:        tax,
		ShippingMinor:   shipping,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.rejectOrder("validation")
		return domain.Order{}, errs[0]
	}

	// Резерв всё-или-ничего: при нехватке стока заказ не создаётся вовсе.
	if err := s.ledger.ReserveBatch(lines); err != nil {
		if s.metrics != nil {
			s.metrics.RecordReservationFailed()
		}
		s.rejectOrder("insufficient_stock")
		s.logger.WithError(err).WithField("user_id", actor.UserID).Warn("batch reservation failed")
		return domain.Order{}, err
	}

	created, err := s.orders.Create(order)
	if err != nil {
		// Компенсация: возвращаем резерв, заказ не появился.
		if relErr := s.ledger.ReleaseBatch(lines); relErr != nil {
			s.logger.WithError(relErr).WithField("order_id", order.ID).Error("compensating release failed")
		}
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	// Очистка корзины best-effort: её провал не откатывает заказ.
	if s.cart != nil {
		if err := s.cart.ClearCart(actor.UserID); err != nil {
			s.logger.WithError(err).WithField("user_id", actor.UserID).Warn("clear cart failed")
		}
	}

	s.emitEvent(&created, "OrderPlaced", map[string]interface{}{
		"user_id":     created.UserID,
		"total_minor": created.TotalMinor,
		"currency":    created.Currency,
	})
	if s.metrics != nil {
		s.metrics.RecordOrderPlaced()
	}
	s.logger.WithFields(log.Fields{
		"order_id": created.ID,
		"user_id":  created.UserID,
		"total":    created.TotalMinor,
	}).Info("order placed")

	return created, nil
}

// CancelOrder отменяет заказ и ровно один раз возвращает резерв на склад.
// Права: владелец — только pending; продавец своих товаров и админ — любой
// нетерминальный. Повторная отмена уже отменённого заказа — no-op.
func (s *Service) CancelOrder(actor domain.Actor, orderID, reason string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == domain.OrderStatusCancelled {
		// Прошлая отмена могла сохранить статус, но упасть на возврате резерва.
		if !order.StockReleased {
			if _, err := s.releaseStockOnce(order.ID); err != nil {
				return domain.Order{}, err
			}
			return s.orders.Get(order.ID)
		}
		return order, nil
	}
	if err := s.authorizeCancel(actor, order); err != nil {
		return domain.Order{}, err
	}

	updated, err := s.mutateOrder(orderID, func(o *domain.Order) error {
		if o.Status == domain.OrderStatusCancelled {
			return nil
		}
		return o.MarkCancelled(time.Now().UTC())
	})
	if err != nil {
		return domain.Order{}, err
	}
	if updated.Status != domain.OrderStatusCancelled {
		return updated, nil
	}

	released, err := s.releaseStockOnce(updated.ID)
	if err != nil {
		return domain.Order{}, err
	}
	if released {
		updated, err = s.orders.Get(updated.ID)
		if err != nil {
			return domain.Order{}, err
		}
	}

	s.emitEvent(&updated, "OrderCancelled", map[string]interface{}{
		"reason":       reason,
		"cancelled_by": actor.UserID,
	})
	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
	}
	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"actor":    actor.UserID,
		"role":     actor.Role,
	}).Info("order cancelled")

	return updated, nil
}

// MarkDelivered переводит processing-заказ в delivered.
// Права: продавец товара из заказа или админ.
func (s *Service) MarkDelivered(actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.IsAdmin() && !s.actorSells(actor, order) {
		return domain.Order{}, domain.ErrForbidden
	}

	updated, err := s.mutateOrder(orderID, func(o *domain.Order) error {
		return o.MarkDelivered(time.Now().UTC())
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.emitEvent(&updated, "OrderDelivered", map[string]interface{}{
		"delivered_at": updated.DeliveredAt.Format(time.RFC3339Nano),
	})
	if s.metrics != nil {
		s.metrics.RecordOrderDelivered()
	}
	return updated, nil
}

// SetStatus выполняет запрошенный переход статуса от имени actor.
func (s *Service) SetStatus(actor domain.Actor, orderID string, status domain.OrderStatus) (domain.Order, error) {
	switch status {
	case domain.OrderStatusDelivered:
		return s.MarkDelivered(actor, orderID)
	case domain.OrderStatusCancelled:
		return s.CancelOrder(actor, orderID, "status change")
	case domain.OrderStatusProcessing:
		// processing достигается только оплатой; ручной перевод — только админом.
		if !actor.IsAdmin() {
			return domain.Order{}, domain.ErrForbidden
		}
		return s.mutateOrder(orderID, func(o *domain.Order) error {
			if !o.CanTransitionTo(domain.OrderStatusProcessing) {
				return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, domain.OrderStatusProcessing)
			}
			o.Status = domain.OrderStatusProcessing
			o.UpdatedAt = time.Now().UTC()
			return nil
		})
	default:
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrInvalidTransition, status)
	}
}

// GetOrder возвращает заказ, если actor — владелец, продавец товара из заказа или админ.
func (s *Service) GetOrder(actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !s.canView(actor, order) {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

// ListOrders возвращает заказы, видимые actor: покупателю — свои, продавцу —
// содержащие его товары, админу — все. Новые первыми.
func (s *Service) ListOrders(actor domain.Actor) ([]domain.Order, error) {
	switch actor.Role {
	case domain.RoleAdmin:
		return s.orders.ListAll()
	case domain.RoleSeller:
		all, err := s.orders.ListAll()
		if err != nil {
			return nil, err
		}
		result := make([]domain.Order, 0, len(all))
		for _, order := range all {
			if s.actorSells(actor, order) {
				result = append(result, order)
			}
		}
		return result, nil
	default:
		return s.orders.ListByUser(actor.UserID)
	}
}

// Timeline возвращает хронологию заказа с той же видимостью, что и GetOrder.
func (s *Service) Timeline(actor domain.Actor, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.GetOrder(actor, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(orderID)
}

// authorizeCancel применяет правила отмены.
// delivered — терминальный статус: его не отменяет никто, включая админа.
func (s *Service) authorizeCancel(actor domain.Actor, order domain.Order) error {
	if order.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, domain.OrderStatusCancelled)
	}
	if actor.IsAdmin() {
		return nil
	}
	if s.actorSells(actor, order) {
		return nil
	}
	if actor.Owns(order) {
		if order.Status != domain.OrderStatusPending {
			return domain.ErrForbidden
		}
		return nil
	}
	return domain.ErrForbidden
}

func (s *Service) canView(actor domain.Actor, order domain.Order) bool {
	if actor.IsAdmin() || actor.Owns(order) {
		return true
	}
	return s.actorSells(actor, order)
}

func (s *Service) actorSells(actor domain.Actor, order domain.Order) bool {
	if actor.Role != domain.RoleSeller {
		return false
	}
	products := make(map[string]domain.Product, len(order.Items))
	for _, item := range order.Items {
		product, err := s.catalog.GetProduct(item.ProductID)
		if err != nil {
			continue
		}
		products[item.ProductID] = product
	}
	return actor.Sells(order, products)
}

// releaseStockOnce возвращает резерв ровно один раз. Сначала optimistic save
// фиксирует флаг StockReleased, и только затем выполняется возврат на склад:
// retry после конфликта версий перечитывает заказ, видит флаг и не возвращает
// резерв повторно. Если склад отказал, флаг компенсирующе снимается, чтобы
// повторная отмена довела возврат до конца.
func (s *Service) releaseStockOnce(orderID string) (bool, error) {
	var lines []domain.BatchLine
	_, err := s.mutateOrder(orderID, func(o *domain.Order) error {
		lines = nil
		if o.StockReleased {
			return nil
		}
		lines = make([]domain.BatchLine, 0, len(o.Items))
		for _, item := range o.Items {
			lines = append(lines, domain.BatchLine{ProductID: item.ProductID, Qty: item.Qty})
		}
		o.StockReleased = true
		o.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, nil
	}

	if err := s.ledger.ReleaseBatch(lines); err != nil {
		if _, revertErr := s.mutateOrder(orderID, func(o *domain.Order) error {
			o.StockReleased = false
			o.UpdatedAt = time.Now().UTC()
			return nil
		}); revertErr != nil {
			s.logger.WithError(revertErr).WithField("order_id", orderID).Error("revert stock release flag failed")
		}
		return false, fmt.Errorf("release stock: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordStockReleased()
	}
	return true, nil
}

// mutateOrder выполняет load-mutate-save с retry при конфликте версий.
func (s *Service) mutateOrder(orderID string, mutate func(*domain.Order) error) (domain.Order, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if err := mutate(&order); err != nil {
			return domain.Order{}, err
		}

		saved, err := s.orders.Save(order)
		if err == nil {
			return saved, nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxRetries-1 {
			return domain.Order{}, err
		}

		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
		}).Warn("version conflict detected, retrying")
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

func (s *Service) rejectOrder(reason string) {
	if s.metrics != nil {
		s.metrics.RecordOrderRejected(reason)
	}
}

func (s *Service) emitEvent(order *domain.Order, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	} else if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}

	if s.timeline == nil {
		return
	}
	var reason string
	if r, ok := payload["reason"].(string); ok {
		reason = r
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	} else if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

// IsNotFound помогает API-слою отличать 404 от прочих ошибок.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrProductNotFound)
}
