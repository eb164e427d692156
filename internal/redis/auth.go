package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sanLimbu/todo-sync/internal"
)

// AuthCode stores one-time sign-in codes and revoked session ids.
type AuthCode struct {
	client *redis.Client
}

// NewAuthCode instantiates the AuthCode repository.
func NewAuthCode(client *redis.Client) *AuthCode {
	return &AuthCode{
		client: client,
	}
}

// SaveCode stores code for userID, it expires after ttl.
func (a *AuthCode) SaveCode(ctx context.Context, code, userID string, ttl time.Duration) error {
	defer newOTELSpan(ctx, "AuthCode.SaveCode").End()

	ok, err := a.client.SetNX(ctx, codeKey(code), userID, ttl).Result()
	if err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "client.SetNX")
	}

	if !ok {
		return internal.NewErrorf(internal.ErrorCodeInvalidArgument, "code already in use")
	}

	return nil
}

// ConsumeCode returns the user the code was issued for, a code can be consumed only once.
func (a *AuthCode) ConsumeCode(ctx context.Context, code string) (string, error) {
	defer newOTELSpan(ctx, "AuthCode.ConsumeCode").End()

	userID, err := a.client.GetDel(ctx, codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", internal.WrapErrorf(err, internal.ErrorCodeUnauthorized, "code not found")
		}

		return "", internal.WrapErrorf(err, internal.ErrorCodeUnknown, "client.GetDel")
	}

	return userID, nil
}

// Revoke marks the session id as revoked until expiresAt.
func (a *AuthCode) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	defer newOTELSpan(ctx, "AuthCode.Revoke").End()

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := a.client.Set(ctx, revokedKey(sessionID), 1, ttl).Err(); err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "client.Set")
	}

	return nil
}

// IsRevoked ...
func (a *AuthCode) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	defer newOTELSpan(ctx, "AuthCode.IsRevoked").End()

	n, err := a.client.Exists(ctx, revokedKey(sessionID)).Result()
	if err != nil {
		return false, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "client.Exists")
	}

	return n > 0, nil
}

func codeKey(code string) string {
	return "auth:code:" + code
}

func revokedKey(sessionID string) string {
	return "auth:revoked:" + sessionID
}
