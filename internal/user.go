package internal

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// User is an account that owns Todo records.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Credentials are used for password based sign-up and sign-in.
type Credentials struct {
	Email    string
	Password string
}

// Normalize lowercases and trims the email.
func (c Credentials) Normalize() Credentials {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	return c
}

// Validate indicates whether the fields are valid or not.
func (c Credentials) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, validation.Required, validation.Length(6, 72)),
	); err != nil {
		return WrapErrorf(err, ErrorCodeInvalidArgument, "validation.ValidateStruct")
	}

	return nil
}

// ValidateEmail validates only the email, used by passwordless sign-in.
func (c Credentials) ValidateEmail() error {
	if err := validation.Validate(c.Email, validation.Required, is.EmailFormat); err != nil {
		return WrapErrorf(err, ErrorCodeInvalidArgument, "email")
	}

	return nil
}

// Session is the authenticated identity of a caller.
type Session struct {
	ID        string
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session carried by ctx, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || session.UserID == "" {
		return Session{}, false
	}

	return session, true
}
