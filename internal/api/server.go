package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/service/orders"
	"github.com/vladislavdragonenkov/shopcore/internal/service/reconciler"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	defaultIdemTTL       = 24 * time.Hour

	// Заголовки подписи webhook по шлюзам; generic-заголовок — fallback.
	headerPaystackSignature = "X-Paystack-Signature"
	headerGenericSignature  = "X-Signature"
)

// ProductCatalog — каталог, доступный для записи через админ-ручки API.
type ProductCatalog interface {
	Put(product domain.Product) error
	GetProduct(productID string) (domain.Product, error)
}

// Server — HTTP-слой сервиса заказов.
type Server struct {
	orders      *orders.Service
	reconciler  *reconciler.Reconciler
	idempotency domain.IdempotencyRepository
	catalog     ProductCatalog
	logger      *log.Entry
}

// NewServer создаёт API-сервер.
func NewServer(ordersSvc *orders.Service, rec *reconciler.Reconciler, idempotency domain.IdempotencyRepository, catalog ProductCatalog) *Server {
	return &Server{
		orders:      ordersSvc,
		reconciler:  rec,
		idempotency: idempotency,
		catalog:     catalog,
		logger:      log.WithField("component", "api"),
	}
}

// Handler собирает маршруты API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders", requireActor(s.handlePlaceOrder))
	mux.HandleFunc("GET /api/orders", requireActor(s.handleListOrders))
	mux.HandleFunc("GET /api/orders/{id}", requireActor(s.handleGetOrder))
	mux.HandleFunc("DELETE /api/orders/{id}", requireActor(s.handleCancelOrder))
	mux.HandleFunc("PUT /api/orders/{id}/status", requireActor(s.handleSetStatus))
	mux.HandleFunc("PUT /api/orders/{id}/pay", requireActor(s.handlePayOrder))
	mux.HandleFunc("GET /api/orders/{id}/timeline", requireActor(s.handleTimeline))

	mux.HandleFunc("POST /api/products", requireActor(s.handlePutProduct))
	mux.HandleFunc("GET /api/products/{id}", requireActor(s.handleGetProduct))

	// Webhook аутентифицируется подписью, а не заголовками идентичности.
	mux.HandleFunc("POST /api/payments/{gateway}/webhook", s.handleWebhook)

	return logRequests(s.logger, mux)
}

type placeOrderRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Qty       int32  `json:"qty"`
	} `json:"items"`
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, domain.ErrItemsRequired)
		return
	}

	// Повтор запроса с тем же Idempotency-Key возвращает сохранённый ответ.
	idemKey := r.Header.Get(idempotencyKeyHeader)
	if idemKey != "" {
		if replayed := s.tryReplay(w, actor.UserID+":"+idemKey, body); replayed {
			return
		}
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, domain.ErrItemsRequired)
		return
	}

	input := orders.PlaceOrderInput{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, orders.PlaceOrderItem{ProductID: item.ProductID, Qty: item.Qty})
	}

	order, err := s.orders.PlaceOrder(actor, input)
	if err != nil {
		s.recordIdempotentFailure(actor.UserID+":"+idemKey, idemKey, err)
		writeError(w, err)
		return
	}

	dto := toOrderDTO(order)
	if idemKey != "" {
		if encoded, marshalErr := json.Marshal(dto); marshalErr == nil {
			if err := s.idempotency.MarkDone(actor.UserID+":"+idemKey, encoded, http.StatusCreated); err != nil {
				s.logger.WithError(err).Warn("mark idempotency done failed")
			}
		}
	}
	writeJSON(w, http.StatusCreated, dto)
}

// tryReplay регистрирует ключ идемпотентности и воспроизводит сохранённый
// ответ, если запрос уже обрабатывался. Возвращает true, если ответ отправлен.
func (s *Server) tryReplay(w http.ResponseWriter, key string, body []byte) bool {
	hash := sha256.Sum256(body)
	requestHash := hex.EncodeToString(hash[:])

	_, err := s.idempotency.CreateProcessing(key, requestHash, time.Now().UTC().Add(defaultIdemTTL))
	if err == nil {
		return false
	}

	if errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		writeError(w, domain.ErrIdempotencyHashMismatch)
		return true
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		s.logger.WithError(err).Warn("idempotency check failed, proceeding without replay")
		return false
	}

	record, getErr := s.idempotency.Get(key)
	if getErr != nil {
		s.logger.WithError(getErr).Warn("load idempotency record failed")
		return false
	}

	switch record.Status {
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
		return true
	default:
		// Первый запрос ещё в обработке.
		writeJSON(w, http.StatusConflict, map[string]string{"error": "request with this idempotency key is still processing"})
		return true
	}
}

func (s *Server) recordIdempotentFailure(key, idemKey string, err error) {
	if idemKey == "" {
		return
	}
	status, code := statusForError(err)
	var body errorBody
	body.Error.Code = code
	body.Error.Message = err.Error()
	encoded, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return
	}
	if markErr := s.idempotency.MarkFailed(key, encoded, status); markErr != nil {
		s.logger.WithError(markErr).Warn("mark idempotency failed")
	}
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	list, err := s.orders.ListOrders(actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTOs(list))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	order, err := s.orders.GetOrder(actor, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	order, err := s.orders.CancelOrder(actor, r.PathValue("id"), r.URL.Query().Get("reason"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidTransition)
		return
	}

	status := domain.OrderStatus(req.Status)
	if !status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown order status"})
		return
	}

	order, err := s.orders.SetStatus(actor, r.PathValue("id"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

type payOrderRequest struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Outcome       string `json:"outcome"`
	UpdateTime    string `json:"update_time"`
	PayerEmail    string `json:"payer_email"`
}

// handlePayOrder — синхронное подтверждение оплаты (ответ клиентского SDK шлюза).
// Проходит через тот же reconciler, что и webhook-и, с теми же гарантиями.
func (s *Server) handlePayOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	orderID := r.PathValue("id")

	// Видимость заказа проверяем до применения события.
	if _, err := s.orders.GetOrder(actor, orderID); err != nil {
		writeError(w, err)
		return
	}

	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrTransactionIDRequired)
		return
	}

	outcome := domain.PaymentOutcome(req.Outcome)
	if outcome == "" {
		outcome = domain.PaymentOutcomeSucceeded
	}
	occurred := time.Now().UTC()
	if req.UpdateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, req.UpdateTime); err == nil {
			occurred = parsed
		}
	}

	event := domain.GatewayEvent{
		Gateway:       "client",
		Reference:     domain.NewPaymentReference(orderID, uuid.NewString()[:8]),
		TransactionID: req.TransactionID,
		Outcome:       outcome,
		Status:        req.Status,
		PayerEmail:    req.PayerEmail,
		OccurredAt:    occurred,
	}
	if err := s.reconciler.Apply(event); err != nil {
		writeError(w, err)
		return
	}

	order, err := s.orders.GetOrder(actor, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	events, err := s.orders.Timeline(actor, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimelineDTOs(events))
}

type productDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	StoreID    string `json:"store_id,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
	Stock      int32  `json:"stock"`
}

// handlePutProduct создаёт или обновляет товар.
// Продавец пишет только свои товары, админ — любые.
func (s *Server) handlePutProduct(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	var req productDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product payload"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Name == "" || req.PriceMinor <= 0 || req.Currency == "" || req.Stock < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name, positive price_minor, currency and non-negative stock are required"})
		return
	}

	switch {
	case actor.IsAdmin():
		if req.OwnerID == "" {
			req.OwnerID = actor.UserID
		}
	case actor.Role == domain.RoleSeller:
		req.OwnerID = actor.UserID
	default:
		writeError(w, domain.ErrForbidden)
		return
	}

	product := domain.Product{
		ID:         req.ID,
		Name:       req.Name,
		StoreID:    req.StoreID,
		OwnerID:    req.OwnerID,
		PriceMinor: req.PriceMinor,
		Currency:   req.Currency,
		Stock:      req.Stock,
	}
	if err := s.catalog.Put(product); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetProduct(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productDTO{
		ID:         product.ID,
		Name:       product.Name,
		StoreID:    product.StoreID,
		OwnerID:    product.OwnerID,
		PriceMinor: product.PriceMinor,
		Currency:   product.Currency,
		Stock:      product.Stock,
	})
}

// handleWebhook принимает webhook платёжного шлюза.
// Тело передаётся в reconciler сырым: подпись считается от исходных байт.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	gateway := r.PathValue("gateway")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read webhook body"})
		return
	}

	signature := r.Header.Get(headerPaystackSignature)
	if signature == "" {
		signature = r.Header.Get(headerGenericSignature)
	}

	if err := s.reconciler.HandleWebhook(gateway, payload, signature); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
