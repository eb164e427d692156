package service_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/service"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[string]internal.User
	hashes map[string]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]internal.User{}, hashes: map[string]string{}}
}

func (f *fakeUsers) Create(_ context.Context, email string, passwordHash *string) (internal.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.byID {
		if u.Email == email {
			return internal.User{}, internal.NewErrorf(internal.ErrorCodeInvalidArgument, "email already registered")
		}
	}

	user := internal.User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now()}
	f.byID[user.ID] = user

	if passwordHash != nil {
		f.hashes[user.ID] = *passwordHash
	}

	return user, nil
}

func (f *fakeUsers) Find(_ context.Context, id string) (internal.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.byID[id]
	if !ok {
		return internal.User{}, internal.NewErrorf(internal.ErrorCodeNotFound, "user not found")
	}

	return user, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (internal.User, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.byID {
		if u.Email == email {
			return u, f.hashes[u.ID], nil
		}
	}

	return internal.User{}, "", internal.NewErrorf(internal.ErrorCodeNotFound, "user not found")
}

type fakeCodes struct {
	mu      sync.Mutex
	codes   map[string]string
	revoked map[string]bool
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{codes: map[string]string{}, revoked: map[string]bool{}}
}

func (f *fakeCodes) SaveCode(_ context.Context, code, userID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.codes[code] = userID

	return nil
}

func (f *fakeCodes) ConsumeCode(_ context.Context, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	userID, ok := f.codes[code]
	if !ok {
		return "", internal.NewErrorf(internal.ErrorCodeUnauthorized, "code not found")
	}

	delete(f.codes, code)

	return userID, nil
}

func (f *fakeCodes) Revoke(_ context.Context, sessionID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.revoked[sessionID] = true

	return nil
}

func (f *fakeCodes) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.revoked[sessionID], nil
}

type fakeMailer struct {
	email, link string
}

func (f *fakeMailer) SendMagicLink(_ context.Context, email, link string) error {
	f.email, f.link = email, link
	return nil
}

func newAuth(t *testing.T) (*service.Auth, *fakeMailer) {
	t.Helper()

	mailer := &fakeMailer{}

	auth, err := service.NewAuth(zap.NewNop(),
		newFakeUsers(),
		newFakeCodes(),
		service.NewTokenManager("secret", time.Hour),
		mailer,
		"http://localhost:9234/auth/callback")
	require.NoError(t, err)

	return auth, mailer
}

func TestAuth_SignUpSignIn(t *testing.T) {
	t.Parallel()

	auth, _ := newAuth(t)
	ctx := context.Background()

	session, err := auth.SignUp(ctx, internal.Credentials{Email: " Mario@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "mario@example.com", session.Email)
	assert.NotEmpty(t, session.Token)

	_, err = auth.SignUp(ctx, internal.Credentials{Email: "mario@example.com", Password: "secret1"})
	assert.Equal(t, internal.ErrorCodeInvalidArgument, internal.ErrorCodeOf(err))

	signedIn, err := auth.SignIn(ctx, internal.Credentials{Email: "mario@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, session.UserID, signedIn.UserID)

	_, err = auth.SignIn(ctx, internal.Credentials{Email: "mario@example.com", Password: "wrong-password"})
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))

	_, err = auth.SignIn(ctx, internal.Credentials{Email: "nobody@example.com", Password: "secret1"})
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))
}

func TestAuth_SignUp_Validation(t *testing.T) {
	t.Parallel()

	auth, _ := newAuth(t)

	_, err := auth.SignUp(context.Background(), internal.Credentials{Email: "not-an-email", Password: "secret1"})
	assert.Equal(t, internal.ErrorCodeInvalidArgument, internal.ErrorCodeOf(err))

	_, err = auth.SignUp(context.Background(), internal.Credentials{Email: "a@example.com", Password: "123"})
	assert.Equal(t, internal.ErrorCodeInvalidArgument, internal.ErrorCodeOf(err))
}

func TestAuth_MagicLink(t *testing.T) {
	t.Parallel()

	auth, mailer := newAuth(t)
	ctx := context.Background()

	require.NoError(t, auth.SendMagicLink(ctx, "luigi@example.com", "/todos"))
	assert.Equal(t, "luigi@example.com", mailer.email)

	link, err := url.Parse(mailer.link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/callback", link.Path)
	assert.Equal(t, "/todos", link.Query().Get("next"))

	code := link.Query().Get("code")
	require.NotEmpty(t, code)

	session, err := auth.ExchangeCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "luigi@example.com", session.Email)

	_, err = auth.ExchangeCode(ctx, code)
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))

	_, err = auth.SignIn(ctx, internal.Credentials{Email: "luigi@example.com", Password: "anything"})
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))
}

func TestAuth_SignOut(t *testing.T) {
	t.Parallel()

	auth, _ := newAuth(t)
	ctx := context.Background()

	session, err := auth.SignUp(ctx, internal.Credentials{Email: "peach@example.com", Password: "secret1"})
	require.NoError(t, err)

	got, err := auth.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	require.NoError(t, auth.SignOut(ctx, got))

	_, err = auth.Authenticate(ctx, session.Token)
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))
}
