package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// Adapter разбирает webhook-и Paystack и проверяет их подпись.
// Paystack подписывает сырое тело запроса HMAC-SHA512 секретным ключом
// и передаёт hex-подпись в заголовке `x-paystack-signature`.
type Adapter struct {
	secret []byte
}

// New создаёт адаптер с секретом интеграции.
func New(secret string) *Adapter {
	return &Adapter{secret: []byte(secret)}
}

// Name возвращает идентификатор шлюза.
func (a *Adapter) Name() string {
	return "paystack"
}

// VerifySignature сверяет подпись с HMAC-SHA512 от сырого тела.
// Сравнение константное по времени.
func (a *Adapter) VerifySignature(payload []byte, signature string) error {
	mac := hmac.New(sha512.New, a.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// webhookBody — формат тела webhook Paystack.
type webhookBody struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		PaidAt    string `json:"paid_at"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// ParseEvent нормализует webhook в доменное событие.
// События, не относящиеся к платежам, возвращают ErrGatewayEventIgnored.
func (a *Adapter) ParseEvent(payload []byte) (domain.GatewayEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.GatewayEvent{}, fmt.Errorf("decode paystack webhook: %w", err)
	}

	var outcome domain.PaymentOutcome
	switch body.Event {
	case "charge.success":
		outcome = domain.PaymentOutcomeSucceeded
	case "charge.failed":
		outcome = domain.PaymentOutcomeFailed
	default:
		return domain.GatewayEvent{}, fmt.Errorf("%w: %s", domain.ErrGatewayEventIgnored, body.Event)
	}

	occurred := time.Now().UTC()
	if body.Data.PaidAt != "" {
		if parsed, err := time.Parse(time.RFC3339, body.Data.PaidAt); err == nil {
			occurred = parsed
		}
	}

	return domain.GatewayEvent{
		Gateway:       a.Name(),
		Reference:     body.Data.Reference,
		TransactionID: fmt.Sprintf("%d", body.Data.ID),
		Outcome:       outcome,
		Status:        body.Data.Status,
		AmountMinor:   body.Data.Amount,
		PayerEmail:    body.Data.Customer.Email,
		OccurredAt:    occurred,
	}, nil
}
