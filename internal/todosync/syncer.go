// Package todosync keeps a local snapshot of the signed in user's todos consistent with the server.
//
// Every successful mutation, and every change notification, invalidates the snapshot and triggers a
// full refetch, responses are never merged into the cache.
package todosync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
)

var (
	// ErrValidation is returned when input is rejected before reaching the network.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when there is no session or the server rejected it. The session is
	// ended and the caller should authenticate again.
	ErrUnauthorized = errors.New("unauthorized")
)

// Gateway is the server side of the mutation procedures, the session is carried by ctx.
type Gateway interface {
	Todos(ctx context.Context) ([]internal.Todo, error)
	AddTodo(ctx context.Context, params internal.CreateParams) ([]internal.Todo, error)
	UpdateTodo(ctx context.Context, id string, params internal.UpdateParams) ([]internal.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
}

// Feed opens subscriptions to the change notifications, the session is carried by ctx.
type Feed interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription delivers change notifications until closed. The channel is closed when the subscription
// ends for any reason.
type Subscription interface {
	Changes() <-chan internal.Change
	Close() error
}

// FetchError is returned when the collection could not be fetched, the previous snapshot is kept unless
// the session was rejected.
type FetchError struct {
	Err error
}

// Error ...
func (e *FetchError) Error() string {
	return "fetch todos: " + e.Err.Error()
}

// Unwrap ...
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Syncer owns the cached collection of the current session.
type Syncer struct {
	gateway   Gateway
	feed      Feed
	logger    *zap.Logger
	reconnect func() backoff.BackOff

	mu         sync.Mutex
	session    internal.Session
	active     bool
	generation uint64
	cancel     context.CancelFunc
	sub        Subscription
	todos      []internal.Todo
	loaded     bool
	fetchSeq   uint64
	appliedSeq uint64
	version    uint64
	listeners  []func([]internal.Todo)

	notifyMu sync.Mutex
	notified uint64
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithFeed enables refreshing on change notifications.
func WithFeed(feed Feed) Option {
	return func(s *Syncer) {
		s.feed = feed
	}
}

// WithLogger ...
func WithLogger(logger *zap.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithReconnectBackOff sets the delays between attempts to subscribe again after the feed closed.
func WithReconnectBackOff(fn func() backoff.BackOff) Option {
	return func(s *Syncer) {
		s.reconnect = fn
	}
}

// NewSyncer instantiates the Syncer.
func NewSyncer(gateway Gateway, opts ...Option) *Syncer {
	s := &Syncer{
		gateway:   gateway,
		logger:    zap.NewNop(),
		reconnect: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0

			return b
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins a session, replacing the current one if any. The snapshot is loaded in the background and,
// when a Feed is configured, every notification schedules a refresh. A closed feed is subscribed to again
// until the session ends, followed by a refresh covering what was missed. Everything started is released by
// Stop, when the session is rejected or when ctx is done.
func (s *Syncer) Start(ctx context.Context, session internal.Session) error {
	if session.UserID == "" {
		return ErrUnauthorized
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	prev := s.endLocked()
	s.session = session
	s.active = true
	s.cancel = cancel
	gen := s.generation
	s.mu.Unlock()

	release(prev)
	s.notify()

	dirty := make(chan struct{}, 1)
	dirty <- struct{}{}

	if s.feed != nil {
		sub, err := s.feed.Subscribe(internal.WithSession(runCtx, session))
		if err != nil {
			s.mu.Lock()
			if s.generation == gen {
				release(s.endLocked())
			}
			s.mu.Unlock()

			cancel()

			if internal.ErrorCodeOf(err) == internal.ErrorCodeUnauthorized {
				return fmt.Errorf("%w: %w", ErrUnauthorized, err)
			}

			return fmt.Errorf("feed subscribe: %w", err)
		}

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			_ = sub.Close()
			return nil
		}
		s.sub = sub
		s.mu.Unlock()

		go s.listen(runCtx, gen, session, sub, dirty)
	}

	go s.refresh(runCtx, dirty)

	return nil
}

// Stop ends the session, releasing the subscription and dropping the snapshot. Results of requests still
// in flight are ignored.
func (s *Syncer) Stop() {
	s.mu.Lock()
	prev := s.endLocked()
	s.mu.Unlock()

	release(prev)
	s.notify()
}

// Session returns the current session.
func (s *Syncer) Session() (internal.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session, s.active
}

// Todos returns a copy of the snapshot, the boolean is false until the first successful fetch.
func (s *Syncer) Todos() ([]internal.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clone(s.todos), s.loaded
}

// OnChange registers fn to be called with every new snapshot, and with nil when the session ends. When a
// snapshot is already loaded fn is called with it before OnChange returns. Listeners are called one at a
// time and must not call back into OnChange or the Syncer's mutating methods.
func (s *Syncer) OnChange(fn func([]internal.Todo)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.listeners = append(s.listeners, fn)

	// A pending notify delivers the snapshot itself.
	replay := s.loaded && s.version == s.notified
	snapshot := clone(s.todos)
	s.mu.Unlock()

	if replay {
		fn(snapshot)
	}
}

// FetchAll replaces the snapshot with the server's collection. On failure the previous snapshot is kept
// and a *FetchError is returned.
func (s *Syncer) FetchAll(ctx context.Context) ([]internal.Todo, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil, &FetchError{Err: ErrUnauthorized}
	}

	session, gen := s.session, s.generation
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	todos, err := s.gateway.Todos(internal.WithSession(ctx, session))
	if err != nil {
		return nil, &FetchError{Err: s.failed(gen, err)}
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil, &FetchError{Err: ErrUnauthorized}
	}

	if seq > s.appliedSeq {
		s.appliedSeq = seq
		s.todos = clone(todos)
		s.loaded = true
		s.version++
	} else {
		s.logger.Debug("Ignoring out of order fetch", zap.Uint64("seq", seq), zap.Uint64("applied", s.appliedSeq))
	}
	s.mu.Unlock()

	s.notify()

	return clone(todos), nil
}

// Create inserts a todo and refreshes the snapshot once the server confirms it. Invalid input never
// reaches the server.
func (s *Syncer) Create(ctx context.Context, params internal.CreateParams) error {
	params = params.Normalize()

	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	session, gen, err := s.current()
	if err != nil {
		return err
	}

	if _, err := s.gateway.AddTodo(internal.WithSession(ctx, session), params); err != nil {
		return s.failed(gen, err)
	}

	s.refetch(ctx)

	return nil
}

// Update sends only the supplied fields and refreshes the snapshot once the server confirms it.
func (s *Syncer) Update(ctx context.Context, id string, params internal.UpdateParams) error {
	if params.IsZero() {
		return fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	params = params.Normalize()

	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	session, gen, err := s.current()
	if err != nil {
		return err
	}

	if _, err := s.gateway.UpdateTodo(internal.WithSession(ctx, session), id, params); err != nil {
		return s.failed(gen, err)
	}

	s.refetch(ctx)

	return nil
}

// Delete removes a todo. The snapshot is refreshed whatever the outcome, and the delete error, if any, is
// returned.
func (s *Syncer) Delete(ctx context.Context, id string) error {
	session, gen, err := s.current()
	if err != nil {
		return err
	}

	if err := s.gateway.DeleteTodo(internal.WithSession(ctx, session), id); err != nil {
		err = s.failed(gen, err)

		s.refetch(ctx)

		return err
	}

	s.refetch(ctx)

	return nil
}

func (s *Syncer) current() (internal.Session, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return internal.Session{}, 0, ErrUnauthorized
	}

	return s.session, s.generation, nil
}

// failed ends the session when the server rejected it.
func (s *Syncer) failed(gen uint64, err error) error {
	if errors.Is(err, ErrUnauthorized) || internal.ErrorCodeOf(err) != internal.ErrorCodeUnauthorized {
		return err
	}

	s.mu.Lock()
	var prev ended
	if s.generation == gen && s.active {
		prev = s.endLocked()
	}
	s.mu.Unlock()

	release(prev)
	s.notify()

	return fmt.Errorf("%w: %w", ErrUnauthorized, err)
}

func (s *Syncer) refetch(ctx context.Context) {
	if _, err := s.FetchAll(ctx); err != nil {
		s.logger.Warn("Couldn't refresh todos", zap.Error(err))
	}
}

// listen marks the snapshot dirty for every notification, pending marks coalesce into one.
func (s *Syncer) listen(ctx context.Context, gen uint64, session internal.Session, sub Subscription, dirty chan<- struct{}) {
	for {
		if !s.drain(ctx, sub, dirty) {
			return
		}

		s.logger.Warn("Change feed closed, subscribing again")

		_ = sub.Close()

		next, err := s.resubscribe(ctx, gen, session)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Couldn't subscribe to change feed", zap.Error(err))
			}

			return
		}

		sub = next

		markDirty(dirty)
	}
}

// drain reports whether the subscription ended while ctx is still alive.
func (s *Syncer) drain(ctx context.Context, sub Subscription, dirty chan<- struct{}) bool {
	changes := sub.Changes()

	for {
		select {
		case <-ctx.Done():
			return false
		case change, ok := <-changes:
			if !ok {
				return ctx.Err() == nil
			}

			s.logger.Debug("Change received", zap.String("type", string(change.Type)))

			markDirty(dirty)
		}
	}
}

// resubscribe retries Feed.Subscribe until it succeeds, the session ends or the server rejects the
// session, which ends it.
func (s *Syncer) resubscribe(ctx context.Context, gen uint64, session internal.Session) (Subscription, error) {
	var sub Subscription

	op := func() error {
		next, err := s.feed.Subscribe(internal.WithSession(ctx, session))
		if err != nil {
			if internal.ErrorCodeOf(err) == internal.ErrorCodeUnauthorized {
				return backoff.Permanent(err)
			}

			return err
		}

		sub = next

		return nil
	}

	notify := func(err error, d time.Duration) {
		s.logger.Info("Retrying change feed subscription", zap.Error(err), zap.Duration("in", d))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(s.reconnect(), ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, s.failed(gen, err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		_ = sub.Close()

		return nil, ErrUnauthorized
	}
	s.sub = sub
	s.mu.Unlock()

	return sub, nil
}

func markDirty(dirty chan<- struct{}) {
	select {
	case dirty <- struct{}{}:
	default:
	}
}

func (s *Syncer) refresh(ctx context.Context, dirty <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-dirty:
			s.refetch(ctx)
		}
	}
}

func (s *Syncer) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.version == s.notified {
		s.mu.Unlock()
		return
	}

	s.notified = s.version

	var snapshot []internal.Todo
	if s.loaded {
		snapshot = clone(s.todos)
	}

	listeners := append([]func([]internal.Todo){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

type ended struct {
	cancel context.CancelFunc
	sub    Subscription
}

// endLocked invalidates the current session, the returned resources must be released once s.mu is
// unlocked.
func (s *Syncer) endLocked() ended {
	prev := ended{cancel: s.cancel, sub: s.sub}

	wasLoaded := s.loaded

	s.generation++
	s.active = false
	s.session = internal.Session{}
	s.cancel = nil
	s.sub = nil
	s.todos = nil
	s.loaded = false
	s.appliedSeq = s.fetchSeq

	if wasLoaded {
		s.version++
	}

	return prev
}

func release(e ended) {
	if e.cancel != nil {
		e.cancel()
	}

	if e.sub != nil {
		_ = e.sub.Close()
	}
}

func clone(todos []internal.Todo) []internal.Todo {
	if todos == nil {
		return nil
	}

	res := make([]internal.Todo, len(todos))
	copy(res, todos)

	return res
}
