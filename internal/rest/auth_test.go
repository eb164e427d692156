package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/rest"
)

type fakeAuthService struct {
	session  internal.Session
	err      error
	next     string
	signOuts int
}

func (f *fakeAuthService) Authenticate(_ context.Context, token string) (internal.Session, error) {
	if token != f.session.Token {
		return internal.Session{}, internal.NewErrorf(internal.ErrorCodeUnauthorized, "invalid session")
	}

	return f.session, nil
}

func (f *fakeAuthService) ExchangeCode(_ context.Context, code string) (internal.Session, error) {
	if code != "good" {
		return internal.Session{}, internal.NewErrorf(internal.ErrorCodeUnauthorized, "code not found")
	}

	return f.session, nil
}

func (f *fakeAuthService) SendMagicLink(_ context.Context, _, next string) error {
	f.next = next
	return f.err
}

func (f *fakeAuthService) SignIn(_ context.Context, _ internal.Credentials) (internal.Session, error) {
	return f.session, f.err
}

func (f *fakeAuthService) SignOut(_ context.Context, _ internal.Session) error {
	f.signOuts++
	return f.err
}

func (f *fakeAuthService) SignUp(_ context.Context, _ internal.Credentials) (internal.Session, error) {
	return f.session, f.err
}

func newAuthRouter(svc *fakeAuthService) *chi.Mux {
	handler := rest.NewAuthHandler(svc, false)

	router := chi.NewRouter()
	router.Use(handler.Authenticate)
	handler.Register(router)

	return router
}

func newSession() internal.Session {
	return internal.Session{
		ID:        "s1",
		UserID:    "u1",
		Email:     "mario@example.com",
		Token:     "token-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestAuthHandler_SignIn(t *testing.T) {
	t.Parallel()

	svc := &fakeAuthService{session: newSession()}

	rr := doRequest(t, newAuthRouter(svc), http.MethodPost, "/auth/signin", `{"email":"mario@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var res rest.SessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "token-1", res.Token)
	assert.Equal(t, "u1", res.UserID)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, rest.SessionCookie, cookies[0].Name)
	assert.Equal(t, "token-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	svc.err = internal.NewErrorf(internal.ErrorCodeUnauthorized, "invalid credentials")

	rr = doRequest(t, newAuthRouter(svc), http.MethodPost, "/auth/signin", `{"email":"mario@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthHandler_Callback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		location string
		cookie   bool
	}{
		{"OK: default next", "/auth/callback?code=good", "/todos", true},
		{"OK: next", "/auth/callback?code=good&next=/todos/search", "/todos/search", true},
		{"OK: open redirect rejected", "/auth/callback?code=good&next=//evil.example.com", "/todos", true},
		{"ERR: bad code", "/auth/callback?code=bad", "/?error=" + url.QueryEscape(rest.CallbackFailureMessage), false},
		{"ERR: missing code", "/auth/callback", "/?error=" + url.QueryEscape(rest.CallbackFailureMessage), false},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := doRequest(t, newAuthRouter(&fakeAuthService{session: newSession()}), http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, tt.location, rr.Header().Get("Location"))
			assert.Equal(t, tt.cookie, len(rr.Result().Cookies()) == 1)
		})
	}
}

func TestAuthHandler_MagicLink(t *testing.T) {
	t.Parallel()

	svc := &fakeAuthService{}

	rr := doRequest(t, newAuthRouter(svc), http.MethodPost, "/auth/magic-link", `{"email":"luigi@example.com","redirect_to":"https://evil.example.com"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "/todos", svc.next)
}

func TestAuthHandler_Session(t *testing.T) {
	t.Parallel()

	svc := &fakeAuthService{session: newSession()}
	router := newAuthRouter(svc)

	rr := doRequest(t, router, http.MethodGet, "/auth/session", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer token-1")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var res rest.SessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "u1", res.UserID)
	assert.Empty(t, res.Token)

	req = httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.AddCookie(&http.Cookie{Name: rest.SessionCookie, Value: "token-1"})

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, svc.signOuts)
}

func TestAuthHandler_Authenticate_InvalidToken(t *testing.T) {
	t.Parallel()

	router := newAuthRouter(&fakeAuthService{session: newSession()})

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer forged")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
