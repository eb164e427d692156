package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sanLimbu/todo-sync/internal"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "session"

const defaultNext = "/todos"

// CallbackFailureMessage is reported through the error query argument when a code exchange fails.
const CallbackFailureMessage = "Could not authenticate user"

// AuthService ...
type AuthService interface {
	Authenticate(ctx context.Context, token string) (internal.Session, error)
	ExchangeCode(ctx context.Context, code string) (internal.Session, error)
	SendMagicLink(ctx context.Context, email, next string) error
	SignIn(ctx context.Context, creds internal.Credentials) (internal.Session, error)
	SignOut(ctx context.Context, session internal.Session) error
	SignUp(ctx context.Context, creds internal.Credentials) (internal.Session, error)
}

// AuthHandler ...
type AuthHandler struct {
	svc          AuthService
	secureCookie bool
}

// NewAuthHandler ...
func NewAuthHandler(svc AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		svc:          svc,
		secureCookie: secureCookie,
	}
}

// Register connects the handlers to the router.
func (a *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/signup", a.signUp)
	r.Post("/auth/signin", a.signIn)
	r.Post("/auth/magic-link", a.magicLink)
	r.Get("/auth/callback", a.callback)
	r.Post("/auth/signout", a.signOut)
	r.Get("/auth/session", a.session)
}

// Authenticate attaches the caller's session to the request context, requests without a valid token
// continue anonymously.
func (a *AuthHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		session, err := a.svc.Authenticate(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(internal.WithSession(r.Context(), session)))
	})
}

// CredentialsRequest defines the request used for password sign-up and sign-in.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MagicLinkRequest defines the request used for passwordless sign-in.
type MagicLinkRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

// SessionResponse defines the response returned back after a session is established.
type SessionResponse struct {
	Token     string    `json:"token,omitempty"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SuccessResponse ...
type SuccessResponse struct {
	Success bool `json:"success"`
}

func (a *AuthHandler) signUp(w http.ResponseWriter, r *http.Request) {
	a.credentials(w, r, http.StatusCreated, "sign up failed", a.svc.SignUp)
}

func (a *AuthHandler) signIn(w http.ResponseWriter, r *http.Request) {
	a.credentials(w, r, http.StatusOK, "sign in failed", a.svc.SignIn)
}

func (a *AuthHandler) credentials(w http.ResponseWriter, r *http.Request, status int, msg string,
	fn func(context.Context, internal.Credentials) (internal.Session, error),
) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(r.Context(), w, "invalid request",
			internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "json decoder"))
		return
	}
	defer r.Body.Close()

	session, err := fn(r.Context(), internal.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		renderErrorResponse(r.Context(), w, msg, err)
		return
	}

	a.setCookie(w, session)

	renderResponse(w, newSessionResponse(session, true), status)
}

func (a *AuthHandler) magicLink(w http.ResponseWriter, r *http.Request) {
	var req MagicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(r.Context(), w, "invalid request",
			internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "json decoder"))
		return
	}
	defer r.Body.Close()

	if err := a.svc.SendMagicLink(r.Context(), req.Email, safeNext(req.RedirectTo)); err != nil {
		renderErrorResponse(r.Context(), w, "magic link failed", err)
		return
	}

	renderResponse(w, &SuccessResponse{Success: true}, http.StatusAccepted)
}

func (a *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	session, err := a.svc.ExchangeCode(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Redirect(w, r, "/?error="+url.QueryEscape(CallbackFailureMessage), http.StatusFound)
		return
	}

	a.setCookie(w, session)

	http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusFound)
}

func (a *AuthHandler) signOut(w http.ResponseWriter, r *http.Request) {
	session, ok := internal.SessionFromContext(r.Context())
	if !ok {
		renderErrorResponse(r.Context(), w, "Unauthorized", internal.NewErrorf(internal.ErrorCodeUnauthorized, "no session"))
		return
	}

	if err := a.svc.SignOut(r.Context(), session); err != nil {
		renderErrorResponse(r.Context(), w, "sign out failed", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	renderResponse(w, &SuccessResponse{Success: true}, http.StatusOK)
}

func (a *AuthHandler) session(w http.ResponseWriter, r *http.Request) {
	session, ok := internal.SessionFromContext(r.Context())
	if !ok {
		renderErrorResponse(r.Context(), w, "Unauthorized", internal.NewErrorf(internal.ErrorCodeUnauthorized, "no session"))
		return
	}

	renderResponse(w, newSessionResponse(session, false), http.StatusOK)
}

func (a *AuthHandler) setCookie(w http.ResponseWriter, session internal.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func newSessionResponse(session internal.Session, withToken bool) *SessionResponse {
	res := SessionResponse{
		UserID:    session.UserID,
		Email:     session.Email,
		ExpiresAt: session.ExpiresAt,
	}

	if withToken {
		res.Token = session.Token
	}

	return &res
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}

	return ""
}

// safeNext only allows redirecting to local paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return defaultNext
	}

	if u, err := url.Parse(next); err != nil || u.IsAbs() || u.Host != "" {
		return defaultNext
	}

	return next
}
