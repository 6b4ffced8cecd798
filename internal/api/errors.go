package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// errorBody — единый формат ошибки API.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusForError переводит доменную ошибку в HTTP статус.
//
// Таксономия: нарушение инвариантов — 400; нет прав или неверная подпись — 403;
// объект не найден — 404; конфликт состояния (переход, сток, версия, ключ) — 409.
func statusForError(err error) (int, string) {
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrPaymentOutcomeInvalid), errors.Is(err, domain.ErrGatewayUnknown):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrOrderVersionConflict),
		errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)

	var body errorBody
	body.Error.Code = code
	body.Error.Message = err.Error()
	if status == http.StatusInternalServerError {
		// Внутренние детали наружу не отдаём.
		body.Error.Message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
