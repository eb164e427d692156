package todosync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/todosync"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var testSession = internal.Session{ID: "s1", UserID: "u1", Email: "ada@example.com", Token: "token-1"}

type fakeGateway struct {
	mu        sync.Mutex
	todos     []internal.Todo
	todosErr  error
	todosFn   func(ctx context.Context) ([]internal.Todo, error)
	fetches   int
	tokens    []string
	adds      []internal.CreateParams
	updates   []internal.UpdateParams
	deletes   []string
	mutateErr error
}

func (f *fakeGateway) Todos(ctx context.Context) ([]internal.Todo, error) {
	f.mu.Lock()
	f.fetches++

	session, _ := internal.SessionFromContext(ctx)
	f.tokens = append(f.tokens, session.Token)

	if fn := f.todosFn; fn != nil {
		f.mu.Unlock()
		return fn(ctx)
	}
	defer f.mu.Unlock()

	if f.todosErr != nil {
		return nil, f.todosErr
	}

	return append([]internal.Todo(nil), f.todos...), nil
}

func (f *fakeGateway) AddTodo(_ context.Context, params internal.CreateParams) ([]internal.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.adds = append(f.adds, params)
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}

	todo := internal.Todo{ID: "server-" + params.Task, Task: params.Task, Priority: params.Priority, UserID: "u1"}
	f.todos = append([]internal.Todo{todo}, f.todos...)

	return []internal.Todo{todo}, nil
}

func (f *fakeGateway) UpdateTodo(_ context.Context, id string, params internal.UpdateParams) ([]internal.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates = append(f.updates, params)
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}

	for i, todo := range f.todos {
		if todo.ID == id && params.IsCompleted != nil {
			f.todos[i].IsCompleted = *params.IsCompleted
		}
	}

	return nil, nil
}

func (f *fakeGateway) DeleteTodo(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes = append(f.deletes, id)

	return f.mutateErr
}

func (f *fakeGateway) set(fn func(f *fakeGateway)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(f)
}

func (f *fakeGateway) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fetches
}

func (f *fakeGateway) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.adds) + len(f.updates) + len(f.deletes)
}

type fakeSubscription struct {
	ch     chan internal.Change
	mu     sync.Mutex
	closed bool
}

func (s *fakeSubscription) Changes() <-chan internal.Change {
	return s.ch
}

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

type fakeFeed struct {
	mu         sync.Mutex
	sub        *fakeSubscription
	err        error
	failures   []error
	session    internal.Session
	subscribes int
}

func (f *fakeFeed) Subscribe(ctx context.Context) (todosync.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.session, _ = internal.SessionFromContext(ctx)
	f.subscribes++

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]

		return nil, err
	}

	if f.err != nil {
		return nil, f.err
	}

	return f.sub, nil
}

func (f *fakeFeed) set(fn func(f *fakeFeed)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(f)
}

func (f *fakeFeed) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.subscribes
}

func (f *fakeFeed) current() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sub
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{sub: &fakeSubscription{ch: make(chan internal.Change)}}
}

func seed() []internal.Todo {
	return []internal.Todo{
		{ID: "2", Task: "second", Priority: internal.PriorityHigh, UserID: "u1", CreatedAt: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "1", Task: "first", Priority: internal.PriorityLow, UserID: "u1", CreatedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func startSyncer(t *testing.T, gw *fakeGateway, opts ...todosync.Option) *todosync.Syncer {
	t.Helper()

	s := todosync.NewSyncer(gw, opts...)
	require.NoError(t, s.Start(context.Background(), testSession))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool {
		_, loaded := s.Todos()
		return loaded
	}, waitFor, tick)

	return s
}

func requireTodos(t *testing.T, s *todosync.Syncer, want []internal.Todo) {
	t.Helper()

	got, loaded := s.Todos()
	require.True(t, loaded)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("todos mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncer_Start_LoadsSnapshot(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}

	s := todosync.NewSyncer(gw)

	_, loaded := s.Todos()
	assert.False(t, loaded)

	require.NoError(t, s.Start(context.Background(), testSession))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool {
		_, loaded := s.Todos()
		return loaded
	}, waitFor, tick)

	requireTodos(t, s, seed())

	gw.set(func(f *fakeGateway) {
		assert.Equal(t, "token-1", f.tokens[0])
	})

	session, ok := s.Session()
	assert.True(t, ok)
	assert.Equal(t, testSession, session)
}

func TestSyncer_Start_RequiresSession(t *testing.T) {
	t.Parallel()

	s := todosync.NewSyncer(&fakeGateway{})

	err := s.Start(context.Background(), internal.Session{})
	assert.ErrorIs(t, err, todosync.ErrUnauthorized)

	_, err = s.FetchAll(context.Background())
	assert.ErrorIs(t, err, todosync.ErrUnauthorized)

	assert.ErrorIs(t, s.Delete(context.Background(), "1"), todosync.ErrUnauthorized)
}

func TestSyncer_Create_RefetchesAfterSuccess(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	before := gw.fetchCount()

	require.NoError(t, s.Create(context.Background(), internal.CreateParams{Task: "  third  "}))

	assert.Equal(t, before+1, gw.fetchCount())

	gw.set(func(f *fakeGateway) {
		require.Len(t, f.adds, 1)
		assert.Equal(t, "third", f.adds[0].Task)
		assert.Equal(t, internal.PriorityMedium, f.adds[0].Priority)
	})

	got, _ := s.Todos()
	require.Len(t, got, 3)
	assert.Equal(t, "server-third", got[0].ID)
}

func TestSyncer_Update_RefetchesAfterSuccess(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	done := true

	require.NoError(t, s.Update(context.Background(), "1", internal.UpdateParams{IsCompleted: &done}))

	got, _ := s.Todos()
	require.Len(t, got, 2)
	assert.True(t, got[1].IsCompleted)
	assert.False(t, got[0].IsCompleted)
}

func TestSyncer_MutationFailure_KeepsSnapshot(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	before := gw.fetchCount()
	gw.set(func(f *fakeGateway) { f.mutateErr = errors.New("connection refused") })

	err := s.Create(context.Background(), internal.CreateParams{Task: "third"})
	require.Error(t, err)

	done := true
	require.Error(t, s.Update(context.Background(), "1", internal.UpdateParams{IsCompleted: &done}))

	assert.Equal(t, before, gw.fetchCount())
	requireTodos(t, s, seed())
}

func TestSyncer_Delete_RefetchesRegardlessOfOutcome(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	before := gw.fetchCount()

	require.NoError(t, s.Delete(context.Background(), "1"))
	assert.Equal(t, before+1, gw.fetchCount())

	gw.set(func(f *fakeGateway) { f.mutateErr = errors.New("connection refused") })

	err := s.Delete(context.Background(), "2")
	require.EqualError(t, err, "connection refused")
	assert.Equal(t, before+2, gw.fetchCount())
}

func TestSyncer_Validation_NeverReachesNetwork(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	blank := "   "
	none := internal.PriorityNone
	badURL := internal.NewNullableString("not a url")

	tests := []struct {
		name string
		fn   func() error
	}{
		{"create blank task", func() error {
			return s.Create(context.Background(), internal.CreateParams{Task: " \t "})
		}},
		{"update without fields", func() error {
			return s.Update(context.Background(), "1", internal.UpdateParams{})
		}},
		{"update blank task", func() error {
			return s.Update(context.Background(), "1", internal.UpdateParams{Task: &blank})
		}},
		{"update priority none", func() error {
			return s.Update(context.Background(), "1", internal.UpdateParams{Priority: &none})
		}},
		{"update invalid image url", func() error {
			return s.Update(context.Background(), "1", internal.UpdateParams{ImageURL: badURL})
		}},
	}

	before := gw.fetchCount()

	for _, tt := range tests {
		err := tt.fn()
		assert.ErrorIs(t, err, todosync.ErrValidation, tt.name)
	}

	assert.Zero(t, gw.mutations())
	assert.Equal(t, before, gw.fetchCount())
	requireTodos(t, s, seed())
}

func TestSyncer_FetchAll_FailureKeepsSnapshot(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	gw.set(func(f *fakeGateway) { f.todosErr = errors.New("timeout") })

	_, err := s.FetchAll(context.Background())

	var fetchErr *todosync.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.NotErrorIs(t, err, todosync.ErrUnauthorized)

	requireTodos(t, s, seed())

	_, ok := s.Session()
	assert.True(t, ok)
}

func TestSyncer_FetchAll_UnauthorizedEndsSession(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	feed := newFakeFeed()
	s := startSyncer(t, gw, todosync.WithFeed(feed))

	assert.Equal(t, testSession, feed.session)

	var snapshots [][]internal.Todo
	var mu sync.Mutex

	s.OnChange(func(todos []internal.Todo) {
		mu.Lock()
		defer mu.Unlock()

		snapshots = append(snapshots, todos)
	})

	gw.set(func(f *fakeGateway) {
		f.todosErr = internal.NewErrorf(internal.ErrorCodeUnauthorized, "token expired")
	})

	_, err := s.FetchAll(context.Background())

	var fetchErr *todosync.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, todosync.ErrUnauthorized)

	_, ok := s.Session()
	assert.False(t, ok)

	_, loaded := s.Todos()
	assert.False(t, loaded)
	assert.True(t, feed.sub.isClosed())

	mu.Lock()
	require.Len(t, snapshots, 1)
	assert.Nil(t, snapshots[0])
	mu.Unlock()

	assert.ErrorIs(t, s.Create(context.Background(), internal.CreateParams{Task: "x"}), todosync.ErrUnauthorized)
}

func TestSyncer_Start_SubscribeFailure(t *testing.T) {
	t.Parallel()

	feed := &fakeFeed{err: internal.NewErrorf(internal.ErrorCodeUnauthorized, "invalid token")}
	s := todosync.NewSyncer(&fakeGateway{}, todosync.WithFeed(feed))

	err := s.Start(context.Background(), testSession)
	assert.ErrorIs(t, err, todosync.ErrUnauthorized)

	_, ok := s.Session()
	assert.False(t, ok)
}

func TestSyncer_ChangeFeed_TriggersRefresh(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	feed := newFakeFeed()
	s := startSyncer(t, gw, todosync.WithFeed(feed))

	updated := append([]internal.Todo{{ID: "3", Task: "from elsewhere", Priority: internal.PriorityMedium, UserID: "u1"}}, seed()...)
	gw.set(func(f *fakeGateway) { f.todos = updated })

	feed.sub.ch <- internal.Change{Type: internal.ChangeTypeInsert, Schema: "public", Table: "todos"}

	require.Eventually(t, func() bool {
		got, _ := s.Todos()
		return len(got) == 3
	}, waitFor, tick)

	requireTodos(t, s, updated)
}

func TestSyncer_ChangeFeed_CoalescesRefreshes(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	feed := newFakeFeed()
	s := startSyncer(t, gw, todosync.WithFeed(feed))

	gate := make(chan struct{})

	var mu sync.Mutex
	calls := 0

	count := func() int {
		mu.Lock()
		defer mu.Unlock()

		return calls
	}

	gw.set(func(f *fakeGateway) {
		f.todosFn = func(context.Context) ([]internal.Todo, error) {
			mu.Lock()
			calls++
			mu.Unlock()

			<-gate

			return seed(), nil
		}
	})

	feed.sub.ch <- internal.Change{Type: internal.ChangeTypeUpdate}

	require.Eventually(t, func() bool { return count() == 1 }, waitFor, tick)

	for i := 0; i < 10; i++ {
		feed.sub.ch <- internal.Change{Type: internal.ChangeTypeUpdate}
	}

	close(gate)

	require.Eventually(t, func() bool { return count() == 2 }, waitFor, tick)
	assert.Never(t, func() bool { return count() > 2 }, 100*time.Millisecond, tick)

	requireTodos(t, s, seed())
}

func TestSyncer_FetchAll_IgnoresOutOfOrderResults(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	stale := seed()[1:]
	fresh := append([]internal.Todo{{ID: "3", Task: "newest", UserID: "u1"}}, seed()...)

	slow := make(chan struct{})
	started := make(chan struct{})

	gw.set(func(f *fakeGateway) {
		first := true

		f.todosFn = func(context.Context) ([]internal.Todo, error) {
			f.mu.Lock()
			isFirst := first
			first = false
			f.mu.Unlock()

			if isFirst {
				close(started)
				<-slow
				return stale, nil
			}

			return fresh, nil
		}
	})

	done := make(chan error)

	go func() {
		_, err := s.FetchAll(context.Background())
		done <- err
	}()

	<-started

	got, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3)

	close(slow)
	require.NoError(t, <-done)

	requireTodos(t, s, fresh)
}

func TestSyncer_Stop_IgnoresLateResults(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	feed := newFakeFeed()
	s := startSyncer(t, gw, todosync.WithFeed(feed))

	slow := make(chan struct{})
	started := make(chan struct{})

	gw.set(func(f *fakeGateway) {
		f.todosFn = func(context.Context) ([]internal.Todo, error) {
			close(started)
			<-slow
			return []internal.Todo{{ID: "late"}}, nil
		}
	})

	type result struct {
		todos []internal.Todo
		err   error
	}

	done := make(chan result, 1)

	go func() {
		todos, err := s.FetchAll(context.Background())
		done <- result{todos, err}
	}()

	<-started

	s.Stop()
	assert.True(t, feed.sub.isClosed())

	close(slow)

	res := <-done
	assert.Nil(t, res.todos, "rows of an ended session handed to the caller")

	var fetchErr *todosync.FetchError
	require.ErrorAs(t, res.err, &fetchErr)
	assert.ErrorIs(t, res.err, todosync.ErrUnauthorized)

	got, loaded := s.Todos()
	assert.False(t, loaded)
	assert.Empty(t, got)
}

func TestSyncer_Start_ReplacesSession(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	feed := newFakeFeed()
	s := startSyncer(t, gw, todosync.WithFeed(feed))

	first := feed.sub
	feed.sub = &fakeSubscription{ch: make(chan internal.Change)}

	other := internal.Session{ID: "s2", UserID: "u2", Token: "token-2"}
	require.NoError(t, s.Start(context.Background(), other))

	assert.True(t, first.isClosed())
	assert.False(t, feed.sub.isClosed())

	session, ok := s.Session()
	require.True(t, ok)
	assert.Equal(t, "u2", session.UserID)

	require.Eventually(t, func() bool {
		_, loaded := s.Todos()
		return loaded
	}, waitFor, tick)

	gw.set(func(f *fakeGateway) {
		assert.Equal(t, "token-2", f.tokens[len(f.tokens)-1])
	})
}

func TestSyncer_OnChange_ReceivesSnapshots(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	got := make(chan []internal.Todo, 4)
	s.OnChange(func(todos []internal.Todo) { got <- todos })

	require.Len(t, <-got, 2)

	require.NoError(t, s.Create(context.Background(), internal.CreateParams{Task: "third", Priority: internal.PriorityHigh}))

	select {
	case todos := <-got:
		require.Len(t, todos, 3)
		assert.Equal(t, internal.PriorityHigh, todos[0].Priority)
	case <-time.After(waitFor):
		t.Fatal("listener not notified")
	}
}

func TestSyncer_OnChange_RegisteredAfterLoad(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := startSyncer(t, gw)

	got := make(chan []internal.Todo, 4)
	s.OnChange(func(todos []internal.Todo) { got <- todos })

	select {
	case todos := <-got:
		if diff := cmp.Diff(seed(), todos); diff != "" {
			t.Fatalf("todos mismatch (-want +got):\n%s", diff)
		}
	default:
		t.Fatal("loaded snapshot not delivered to a late listener")
	}

	assert.Empty(t, got, "snapshot delivered twice")
}

func TestSyncer_OnChange_RegisteredBeforeStart(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	s := todosync.NewSyncer(gw)

	got := make(chan []internal.Todo, 4)
	s.OnChange(func(todos []internal.Todo) { got <- todos })

	assert.Empty(t, got)

	require.NoError(t, s.Start(context.Background(), testSession))
	t.Cleanup(s.Stop)

	select {
	case todos := <-got:
		require.Len(t, todos, 2)
	case <-time.After(waitFor):
		t.Fatal("listener not notified")
	}
}

func TestSyncer_ChangeFeed_ResubscribesAfterClose(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	feed := newFakeFeed()

	s := startSyncer(t, gw, todosync.WithFeed(feed), todosync.WithReconnectBackOff(func() backoff.BackOff {
		return &backoff.ZeroBackOff{}
	}))

	first := feed.current()
	second := &fakeSubscription{ch: make(chan internal.Change)}

	feed.set(func(f *fakeFeed) {
		f.sub = second
		f.failures = []error{internal.NewErrorf(internal.ErrorCodeUnknown, "connection refused")}
	})

	fetches := gw.fetchCount()

	missed := append([]internal.Todo{{ID: "3", Task: "while offline", Priority: internal.PriorityLow, UserID: "u1"}}, seed()...)
	gw.set(func(f *fakeGateway) { f.todos = missed })

	close(first.ch)

	require.Eventually(t, func() bool {
		return feed.subscribeCount() == 3 && gw.fetchCount() > fetches
	}, waitFor, tick)

	assert.True(t, first.isClosed())

	require.Eventually(t, func() bool {
		got, _ := s.Todos()
		return len(got) == 3
	}, waitFor, tick)

	_, ok := s.Session()
	assert.True(t, ok)

	latest := append([]internal.Todo{{ID: "4", Task: "after reconnect", Priority: internal.PriorityHigh, UserID: "u1"}}, missed...)
	gw.set(func(f *fakeGateway) { f.todos = latest })

	second.ch <- internal.Change{Type: internal.ChangeTypeInsert, Schema: "public", Table: "todos"}

	require.Eventually(t, func() bool {
		got, _ := s.Todos()
		return len(got) == 4
	}, waitFor, tick)

	s.Stop()
	assert.True(t, second.isClosed())
}

func TestSyncer_ChangeFeed_ResubscribeRejectedEndsSession(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{todos: seed()}
	feed := newFakeFeed()
	s := startSyncer(t, gw, todosync.WithFeed(feed))

	got := make(chan []internal.Todo, 4)
	s.OnChange(func(todos []internal.Todo) { got <- todos })
	require.Len(t, <-got, 2)

	first := feed.current()
	feed.set(func(f *fakeFeed) { f.err = internal.NewErrorf(internal.ErrorCodeUnauthorized, "token expired") })

	close(first.ch)

	require.Eventually(t, func() bool {
		_, ok := s.Session()
		return !ok
	}, waitFor, tick)

	assert.Nil(t, <-got)
	assert.Equal(t, 2, feed.subscribeCount())
}
