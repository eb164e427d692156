// Package gateway implements the HTTP client of the todos service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/mercari/go-circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
)

// Client calls the todos service, the session is read from the request context.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithLogger ...
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// NewClient instantiates the Client. Requests fail fast once five consecutive calls failed, client errors
// do not count as failures.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.cb = circuitbreaker.New(
		circuitbreaker.WithTripFunc(circuitbreaker.NewTripFuncConsecutiveFailures(5)),
		circuitbreaker.WithOpenTimeout(5*time.Second),
		circuitbreaker.WithOnStateChangeHookFn(func(from, to circuitbreaker.State) {
			c.logger.Info("Circuit breaker state changed",
				zap.String("from", string(from)),
				zap.String("to", string(to)))
		}),
	)

	return c
}

// Todos returns the signed in user's todos, newest first.
func (c *Client) Todos(ctx context.Context) ([]internal.Todo, error) {
	var res todosResponse

	if err := c.do(ctx, http.MethodGet, "/todos", nil, http.StatusOK, &res); err != nil {
		return nil, fmt.Errorf("todos: %w", err)
	}

	return convertTodos(res.Todos)
}

// Todo returns a single todo.
func (c *Client) Todo(ctx context.Context, id string) (internal.Todo, error) {
	var res struct {
		Todo todo `json:"todo"`
	}

	if err := c.do(ctx, http.MethodGet, "/todos/"+url.PathEscape(id), nil, http.StatusOK, &res); err != nil {
		return internal.Todo{}, fmt.Errorf("todo: %w", err)
	}

	return res.Todo.convert()
}

// AddTodo inserts a todo and returns the inserted rows.
func (c *Client) AddTodo(ctx context.Context, params internal.CreateParams) ([]internal.Todo, error) {
	req := createTodoRequest{
		Task:        params.Task,
		Description: params.Description,
		Priority:    params.Priority.String(),
		ImageURL:    params.ImageURL,
	}

	var res todosResponse

	if err := c.do(ctx, http.MethodPost, "/todos", jsonBody(req), http.StatusCreated, &res); err != nil {
		return nil, fmt.Errorf("add todo: %w", err)
	}

	return convertTodos(res.Todos)
}

// UpdateTodo sends only the supplied fields and returns the affected rows, empty when nothing the user
// owns matched id.
func (c *Client) UpdateTodo(ctx context.Context, id string, params internal.UpdateParams) ([]internal.Todo, error) {
	var res todosResponse

	err := c.do(ctx, http.MethodPatch, "/todos/"+url.PathEscape(id), jsonBody(newUpdateRequest(params)), http.StatusOK, &res)
	if err != nil {
		return nil, fmt.Errorf("update todo: %w", err)
	}

	return convertTodos(res.Todos)
}

// DeleteTodo ...
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, http.StatusOK, nil); err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}

	return nil
}

// Search runs a full text search over the signed in user's todos.
func (c *Client) Search(ctx context.Context, args internal.SearchParams) (internal.SearchResults, error) {
	q := url.Values{}

	if args.Query != nil {
		q.Set("q", *args.Query)
	}

	if args.Priority != nil {
		q.Set("priority", args.Priority.String())
	}

	if args.IsCompleted != nil {
		q.Set("is_completed", strconv.FormatBool(*args.IsCompleted))
	}

	if args.From > 0 {
		q.Set("from", strconv.FormatInt(args.From, 10))
	}

	if args.Size > 0 {
		q.Set("size", strconv.FormatInt(args.Size, 10))
	}

	var res searchResponse

	if err := c.do(ctx, http.MethodGet, "/todos/search?"+q.Encode(), nil, http.StatusOK, &res); err != nil {
		return internal.SearchResults{}, fmt.Errorf("search: %w", err)
	}

	todos, err := convertTodos(res.Todos)
	if err != nil {
		return internal.SearchResults{}, err
	}

	return internal.SearchResults{Todos: todos, Total: res.Total}, nil
}

// SignUp creates an account and returns its first session.
func (c *Client) SignUp(ctx context.Context, email, password string) (internal.Session, error) {
	return c.credentials(ctx, "/auth/signup", http.StatusCreated, email, password)
}

// SignIn exchanges a password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (internal.Session, error) {
	return c.credentials(ctx, "/auth/signin", http.StatusOK, email, password)
}

func (c *Client) credentials(ctx context.Context, p string, status int, email, password string) (internal.Session, error) {
	var res sessionResponse

	body := jsonBody(credentialsRequest{Email: email, Password: password})

	if err := c.do(ctx, http.MethodPost, p, body, status, &res); err != nil {
		return internal.Session{}, fmt.Errorf("%s: %w", path.Base(p), err)
	}

	return res.convert(), nil
}

// Session resolves the token carried by ctx into a session.
func (c *Client) Session(ctx context.Context) (internal.Session, error) {
	var res sessionResponse

	if err := c.do(ctx, http.MethodGet, "/auth/session", nil, http.StatusOK, &res); err != nil {
		return internal.Session{}, fmt.Errorf("session: %w", err)
	}

	session := res.convert()
	session.Token = tokenFrom(ctx)

	return session, nil
}

// SendMagicLink asks the service to email a one-time sign in link.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	body := jsonBody(magicLinkRequest{Email: email, RedirectTo: redirectTo})

	if err := c.do(ctx, http.MethodPost, "/auth/magic-link", body, http.StatusAccepted, nil); err != nil {
		return fmt.Errorf("magic link: %w", err)
	}

	return nil
}

// SignOut revokes the session carried by ctx.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/signout", nil, http.StatusOK, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	return nil
}

// Upload stores an image and returns its public URL. The URL is not attached to any todo.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	var res uploadResponse

	body := &requestBody{contentType: mw.FormDataContentType(), data: buf.Bytes()}

	if err := c.do(ctx, http.MethodPost, "/attachments", body, http.StatusCreated, &res); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	return res.URL, nil
}

type tokenKey struct{}

// WithToken returns a copy of ctx carrying a bare token, used before the session it belongs to is known.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	if session, ok := internal.SessionFromContext(ctx); ok && session.Token != "" {
		return session.Token
	}

	token, _ := ctx.Value(tokenKey{}).(string)

	return token
}

type requestBody struct {
	contentType string
	data        []byte
	err         error
}

func jsonBody(v interface{}) *requestBody {
	data, err := json.Marshal(v)

	return &requestBody{contentType: "application/json", data: data, err: err}
}

func (c *Client) do(ctx context.Context, method, p string, body *requestBody, want int, out interface{}) error {
	if body != nil && body.err != nil {
		return internal.WrapErrorf(body.err, internal.ErrorCodeInvalidArgument, "json.Marshal")
	}

	_, err := c.cb.Do(ctx, func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body.data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, reader)
		if err != nil {
			return nil, circuitbreaker.MarkAsSuccess(internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "http.NewRequest"))
		}

		if body != nil {
			req.Header.Set("Content-Type", body.contentType)
		}

		req.Header.Set("Accept", "application/json")

		if token := tokenFrom(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "http.Do")
		}
		defer resp.Body.Close()

		if resp.StatusCode != want {
			err := statusError(resp)
			if resp.StatusCode < http.StatusInternalServerError {
				return nil, circuitbreaker.MarkAsSuccess(err)
			}

			return nil, err
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, nil
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "json.Decode")
		}

		return nil, nil
	})

	if errors.Is(err, circuitbreaker.ErrOpen) {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "service unavailable")
	}

	return err
}

func statusError(resp *http.Response) error {
	var res errorResponse

	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&res)

	msg := res.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	code := internal.ErrorCodeUnknown

	switch resp.StatusCode {
	case http.StatusBadRequest:
		code = internal.ErrorCodeInvalidArgument
	case http.StatusUnauthorized, http.StatusForbidden:
		code = internal.ErrorCodeUnauthorized
	case http.StatusNotFound:
		code = internal.ErrorCodeNotFound
	}

	return internal.NewErrorf(code, "%d %s", resp.StatusCode, msg)
}
