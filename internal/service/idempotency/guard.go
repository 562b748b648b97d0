package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// DefaultTTL — срок жизни ключа идемпотентности.
const DefaultTTL = 24 * time.Hour

// Outcome — решение по входящему запросу с ключом идемпотентности.
type Outcome int

const (
	// OutcomeProceed — ключ новый, запрос нужно выполнить и вызвать Complete.
	OutcomeProceed Outcome = iota
	// OutcomeReplay — запрос уже выполнен, нужно вернуть сохранённый ответ.
	OutcomeReplay
	// OutcomeInProgress — запрос с тем же ключом ещё выполняется.
	OutcomeInProgress
	// OutcomeMismatch — ключ уже использован с другим телом запроса.
	OutcomeMismatch
)

// Decision описывает, что делать с запросом.
type Decision struct {
	Outcome    Outcome
	HTTPStatus int
	Body       []byte
}

// Guard связывает HTTP-запросы с записями IdempotencyRepository.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт Guard. ttl <= 0 заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{repo: repo, ttl: ttl, now: time.Now, logger: logger}
}

// RequestHash строит отпечаток запроса: область (метод, путь, пользователь) и тело.
func RequestHash(scope string, body []byte) string {
	payload := make([]byte, 0, len(scope)+1+len(body))
	payload = append(payload, scope...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Begin регистрирует ключ или возвращает решение по уже известному ключу.
func (g *Guard) Begin(key, scope string, body []byte) (Decision, error) {
	record, err := g.repo.CreateProcessing(key, RequestHash(scope, body), g.now().UTC().Add(g.ttl))
	if err == nil {
		return Decision{Outcome: OutcomeProceed}, nil
	}

	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return Decision{Outcome: OutcomeMismatch}, nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Replayable():
			return Decision{Outcome: OutcomeReplay, HTTPStatus: record.ReplayStatus(), Body: record.ResponseBody}, nil
		case record.Status == domain.IdempotencyStatusProcessing:
			return Decision{Outcome: OutcomeInProgress}, nil
		default:
			return Decision{}, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}
	default:
		return Decision{}, fmt.Errorf("create idempotency record: %w", err)
	}
}

// Complete сохраняет ответ. Ответы со статусом >= 400 сохраняются как failed
// и тоже воспроизводятся при повторе.
func (g *Guard) Complete(key string, httpStatus int, body []byte) {
	var err error
	if httpStatus >= http.StatusBadRequest {
		err = g.repo.MarkFailed(key, body, httpStatus)
	} else {
		err = g.repo.MarkDone(key, body, httpStatus)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}
