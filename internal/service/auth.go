package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sanLimbu/todo-sync/internal"
)

// MagicLinkTTL is how long a magic link remains valid.
const MagicLinkTTL = 15 * time.Minute

// UserRepository defines the datastore handling persisting User records.
type UserRepository interface {
	Create(ctx context.Context, email string, passwordHash *string) (internal.User, error)
	Find(ctx context.Context, id string) (internal.User, error)
	FindByEmail(ctx context.Context, email string) (internal.User, string, error)
}

// AuthCodeRepository defines the datastore handling one-time codes and revoked sessions.
type AuthCodeRepository interface {
	SaveCode(ctx context.Context, code, userID string, ttl time.Duration) error
	ConsumeCode(ctx context.Context, code string) (string, error)
	Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Mailer delivers passwordless sign-in links.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// Auth defines the application service in charge of sessions.
type Auth struct {
	logger      *zap.Logger
	users       UserRepository
	codes       AuthCodeRepository
	tokens      *TokenManager
	mailer      Mailer
	callbackURL string
	newCode     func() string
}

// NewAuth instantiates the Auth service, callbackURL is the absolute URL of the code exchange endpoint.
func NewAuth(logger *zap.Logger, users UserRepository, codes AuthCodeRepository, tokens *TokenManager, mailer Mailer, callbackURL string) (*Auth, error) {
	gen, err := nanoid.Standard(32)
	if err != nil {
		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "nanoid.Standard")
	}

	return &Auth{
		logger:      logger,
		users:       users,
		codes:       codes,
		tokens:      tokens,
		mailer:      mailer,
		callbackURL: callbackURL,
		newCode:     gen,
	}, nil
}

// SignUp registers a new account and starts a session for it.
func (a *Auth) SignUp(ctx context.Context, creds internal.Credentials) (internal.Session, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Auth.SignUp")
	defer span.End()

	creds = creds.Normalize()

	if err := creds.Validate(); err != nil {
		return internal.Session{}, fmt.Errorf("creds validate: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return internal.Session{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "bcrypt.GenerateFromPassword")
	}

	hashed := string(hash)

	user, err := a.users.Create(ctx, creds.Email, &hashed)
	if err != nil {
		return internal.Session{}, fmt.Errorf("users create: %w", err)
	}

	return a.tokens.Issue(user)
}

// SignIn starts a session using email and password.
func (a *Auth) SignIn(ctx context.Context, creds internal.Credentials) (internal.Session, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Auth.SignIn")
	defer span.End()

	creds = creds.Normalize()

	user, hash, err := a.users.FindByEmail(ctx, creds.Email)
	if err != nil {
		if internal.ErrorCodeOf(err) == internal.ErrorCodeNotFound {
			return internal.Session{}, internal.WrapErrorf(err, internal.ErrorCodeUnauthorized, "invalid credentials")
		}

		return internal.Session{}, fmt.Errorf("users find by email: %w", err)
	}

	if hash == "" {
		return internal.Session{}, internal.NewErrorf(internal.ErrorCodeUnauthorized, "invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return internal.Session{}, internal.WrapErrorf(err, internal.ErrorCodeUnauthorized, "invalid credentials")
	}

	return a.tokens.Issue(user)
}

// SendMagicLink emails a one-time sign-in link, accounts are created on first use. next is the path the
// caller lands on after signing in.
func (a *Auth) SendMagicLink(ctx context.Context, email, next string) error {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Auth.SendMagicLink")
	defer span.End()

	creds := internal.Credentials{Email: email}.Normalize()

	if err := creds.ValidateEmail(); err != nil {
		return fmt.Errorf("creds validate: %w", err)
	}

	user, _, err := a.users.FindByEmail(ctx, creds.Email)
	if err != nil {
		if internal.ErrorCodeOf(err) != internal.ErrorCodeNotFound {
			return fmt.Errorf("users find by email: %w", err)
		}

		if user, err = a.users.Create(ctx, creds.Email, nil); err != nil {
			return fmt.Errorf("users create: %w", err)
		}
	}

	code := a.newCode()

	if err := a.codes.SaveCode(ctx, code, user.ID, MagicLinkTTL); err != nil {
		return fmt.Errorf("codes save: %w", err)
	}

	link, err := url.Parse(a.callbackURL)
	if err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "url.Parse")
	}

	q := link.Query()
	q.Set("code", code)

	if next != "" {
		q.Set("next", next)
	}

	link.RawQuery = q.Encode()

	if err := a.mailer.SendMagicLink(ctx, creds.Email, link.String()); err != nil {
		return fmt.Errorf("mailer send: %w", err)
	}

	return nil
}

// ExchangeCode trades a one-time code for a session.
func (a *Auth) ExchangeCode(ctx context.Context, code string) (internal.Session, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Auth.ExchangeCode")
	defer span.End()

	if code == "" {
		return internal.Session{}, internal.NewErrorf(internal.ErrorCodeUnauthorized, "missing code")
	}

	userID, err := a.codes.ConsumeCode(ctx, code)
	if err != nil {
		return internal.Session{}, fmt.Errorf("codes consume: %w", err)
	}

	user, err := a.users.Find(ctx, userID)
	if err != nil {
		return internal.Session{}, internal.WrapErrorf(err, internal.ErrorCodeUnauthorized, "users find")
	}

	return a.tokens.Issue(user)
}

// SignOut revokes the session.
func (a *Auth) SignOut(ctx context.Context, session internal.Session) error {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Auth.SignOut")
	defer span.End()

	if err := a.codes.Revoke(ctx, session.ID, session.ExpiresAt); err != nil {
		return fmt.Errorf("codes revoke: %w", err)
	}

	return nil
}

// Authenticate verifies token and returns the Session, revoked sessions are rejected.
func (a *Auth) Authenticate(ctx context.Context, token string) (internal.Session, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Auth.Authenticate")
	defer span.End()

	session, err := a.tokens.Parse(token)
	if err != nil {
		return internal.Session{}, err
	}

	revoked, err := a.codes.IsRevoked(ctx, session.ID)
	if err != nil {
		return internal.Session{}, fmt.Errorf("codes is revoked: %w", err)
	}

	if revoked {
		return internal.Session{}, internal.NewErrorf(internal.ErrorCodeUnauthorized, "session revoked")
	}

	return session, nil
}

// LogMailer writes magic links to the log instead of sending emails.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer ...
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendMagicLink ...
func (m *LogMailer) SendMagicLink(_ context.Context, email, link string) error {
	m.logger.Info("Magic link", zap.String("email", email), zap.String("link", link))
	return nil
}
