package mock

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// Adapter — упрощённый шлюз для разработки и тестов.
// Подпись — HMAC-SHA256 от тела, событие — плоский JSON доменного формата.
type Adapter struct {
	secret []byte
}

// New создаёт mock-адаптер с заданным секретом.
func New(secret string) *Adapter {
	return &Adapter{secret: []byte(secret)}
}

// Name возвращает идентификатор шлюза.
func (a *Adapter) Name() string {
	return "mock"
}

// Sign считает подпись для payload (используется в тестах и dev-скриптах).
func (a *Adapter) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сверяет подпись константным по времени сравнением.
func (a *Adapter) VerifySignature(payload []byte, signature string) error {
	if !hmac.Equal([]byte(a.Sign(payload)), []byte(signature)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type eventBody struct {
	Reference     string `json:"reference"`
	TransactionID string `json:"transaction_id"`
	Outcome       string `json:"outcome"`
	Status        string `json:"status"`
	AmountMinor   int64  `json:"amount_minor"`
	PayerEmail    string `json:"payer_email"`
	OccurredAt    string `json:"occurred_at"`
}

// ParseEvent разбирает тело в доменное событие.
func (a *Adapter) ParseEvent(payload []byte) (domain.GatewayEvent, error) {
	var body eventBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.GatewayEvent{}, fmt.Errorf("decode mock webhook: %w", err)
	}

	occurred := time.Now().UTC()
	if body.OccurredAt != "" {
		if parsed, err := time.Parse(time.RFC3339, body.OccurredAt); err == nil {
			occurred = parsed
		}
	}

	return domain.GatewayEvent{
		Gateway:       a.Name(),
		Reference:     body.Reference,
		TransactionID: body.TransactionID,
		Outcome:       domain.PaymentOutcome(body.Outcome),
		Status:        body.Status,
		AmountMinor:   body.AmountMinor,
		PayerEmail:    body.PayerEmail,
		OccurredAt:    occurred,
	}, nil
}
