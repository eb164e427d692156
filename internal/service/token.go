package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sanLimbu/todo-sync/internal"
)

// TokenManager issues and verifies the signed session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewTokenManager ...
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "todo-sync",
		now:    time.Now,
	}
}

// Issue returns a new Session for user.
func (m *TokenManager) Issue(user internal.User) (internal.Session, error) {
	now := m.now()

	session := internal.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: now.Add(m.ttl).Truncate(time.Second),
	}

	claims := sessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Issuer:    m.issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return internal.Session{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "token.SignedString")
	}

	session.Token = token

	return session, nil
}

// Parse verifies token and returns the Session it carries.
func (m *TokenManager) Parse(token string) (internal.Session, error) {
	var claims sessionClaims

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}

		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return internal.Session{}, internal.WrapErrorf(err, internal.ErrorCodeUnauthorized, "session expired")
		}

		return internal.Session{}, internal.WrapErrorf(err, internal.ErrorCodeUnauthorized, "invalid session")
	}

	if !parsed.Valid || claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return internal.Session{}, internal.NewErrorf(internal.ErrorCodeUnauthorized, "invalid session")
	}

	return internal.Session{
		ID:        claims.ID,
		UserID:    claims.Subject,
		Email:     claims.Email,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
