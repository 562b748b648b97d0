package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

const (
	// DefaultTTL — срок жизни токена.
	DefaultTTL = 24 * time.Hour

	issuer   = "exopet"
	roleKey  = "role"
	keyBytes = 32
)

// ErrInvalidToken — токен не расшифровывается, просрочен или не содержит пользователя.
var ErrInvalidToken = errors.New("invalid token")

// TokenService выпускает и проверяет PASETO v4.local токены.
type TokenService struct {
	key    paseto.V4SymmetricKey
	parser paseto.Parser
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService создаёт сервис токенов. Пустой key означает случайный ключ процесса.
func NewTokenService(key []byte, ttl time.Duration) (*TokenService, error) {
	var symmetric paseto.V4SymmetricKey
	if len(key) == 0 {
		symmetric = paseto.NewV4SymmetricKey()
	} else {
		if len(key) != keyBytes {
			return nil, fmt.Errorf("token key must be %d bytes, got %d", keyBytes, len(key))
		}
		var err error
		symmetric, err = paseto.V4SymmetricKeyFromBytes(key)
		if err != nil {
			return nil, fmt.Errorf("token key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	parser := paseto.NewParser()
	parser.AddRule(paseto.IssuedBy(issuer))

	return &TokenService{
		key:    symmetric,
		parser: parser,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue выпускает токен для пользователя.
func (s *TokenService) Issue(actor domain.Actor) (string, error) {
	if actor.IsGuest() {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidToken)
	}
	role := actor.Role
	if role == "" {
		role = domain.RoleCustomer
	}

	now := s.now()
	token := paseto.NewToken()
	token.SetIssuer(issuer)
	token.SetSubject(actor.UserID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.ttl))
	token.SetString(roleKey, string(role))

	return token.V4Encrypt(s.key, nil), nil
}

// Verify расшифровывает токен и возвращает актора.
func (s *TokenService) Verify(raw string) (domain.Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Actor{}, ErrInvalidToken
	}

	token, err := s.parser.ParseV4Local(s.key, raw, nil)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	subject, err := token.GetSubject()
	if err != nil || subject == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role, err := token.GetString(roleKey)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}

	switch domain.Role(role) {
	case domain.RoleCustomer, domain.RoleAdmin:
	default:
		return domain.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}
	return domain.Actor{UserID: subject, Role: domain.Role(role)}, nil
}

type actorKey struct{}

// WithActor сохраняет актора в контексте запроса.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom возвращает актора из контекста; гость, если его нет.
func ActorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}
