package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// Заголовки идентичности, проставляемые auth-прокси выше по стеку.
// Сама аутентификация вне зоны ответственности сервиса.
const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

type actorContextKey struct{}

// actorFromRequest извлекает actor из заголовков запроса.
func actorFromRequest(r *http.Request) (domain.Actor, bool) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		return domain.Actor{}, false
	}

	role := domain.Role(r.Header.Get(headerRole))
	if !role.Valid() {
		role = domain.RoleCustomer
	}
	return domain.Actor{UserID: userID, Role: role}, true
}

// requireActor отклоняет запросы без идентичности и кладёт actor в контекст.
func requireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"unauthenticated","message":"identity headers are required"}}`))
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next(w, r.WithContext(ctx))
	}
}

func actorFromContext(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor
}

// statusRecorder перехватывает статус ответа для access-лога.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests пишет access-лог каждого запроса.
func logRequests(logger *log.Entry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http request")
	})
}
