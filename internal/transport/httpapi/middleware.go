package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/auth"
	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/service/idempotency"
)

const bearerPrefix = "Bearer "

// accessLog пишет одну строку на запрос.
func accessLog(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Info("http request")
		})
	}
}

// authenticate кладёт актора в контекст. Запрос без Authorization обрабатывается как гостевой,
// невалидный токен отклоняется с 401.
func authenticate(tokens *auth.TokenService, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(header, bearerPrefix) {
				writeErrorBody(w, http.StatusUnauthorized, errorBody{Kind: domain.KindUnauthenticated, Message: "bearer token is required"})
				return
			}

			actor, err := tokens.Verify(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				logger.WithError(err).WithField("path", r.URL.Path).Debug("token rejected")
				writeErrorBody(w, http.StatusUnauthorized, errorBody{Kind: domain.KindUnauthenticated, Message: auth.ErrInvalidToken.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// idempotent воспроизводит сохранённый ответ для повторного запроса с тем же Idempotency-Key.
// Ключ привязан к методу, пути и пользователю.
func (h *handler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if key == "" || h.guard == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeErrorBody(w, http.StatusBadRequest, errorBody{Kind: domain.KindValidation, Message: "request body is too large"})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		actor := auth.ActorFrom(r.Context())
		scope := r.Method + " " + r.URL.Path + " " + actor.UserID
		decision, err := h.guard.Begin(key, scope, body)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		switch decision.Outcome {
		case idempotency.OutcomeReplay:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(ReplayedHeader, "true")
			w.WriteHeader(decision.HTTPStatus)
			_, _ = w.Write(decision.Body)
			return
		case idempotency.OutcomeInProgress:
			writeErrorBody(w, http.StatusConflict, errorBody{Kind: domain.KindConflict, Message: "request with the same idempotency key is already processing"})
			return
		case idempotency.OutcomeMismatch:
			writeErrorBody(w, http.StatusUnprocessableEntity, errorBody{Kind: domain.KindConflict, Message: domain.ErrIdempotencyHashMismatch.Error()})
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				h.logger.WithField("idempotency_key", key).Error("handler panicked, idempotency key stored as failed")
				h.guard.Complete(key, http.StatusInternalServerError, panicResponseBody())
				panic(rec)
			}
		}()

		var recorded bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&recorded)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.guard.Complete(key, status, recorded.Bytes())
	})
}

// panicResponseBody — тело ответа, которое воспроизводится после паники обработчика.
func panicResponseBody() []byte {
	body, err := json.Marshal(errorEnvelope{Error: errorBody{Kind: domain.KindInternal, Message: internalErrorMessage}})
	if err != nil {
		return nil
	}
	return body
}
