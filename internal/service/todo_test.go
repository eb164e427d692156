package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/service"
)

type fakeTodoRepo struct {
	calls   int
	userIDs []string
	todos   []internal.Todo
	deleted int64
	err     error
	created internal.CreateParams
	updated internal.UpdateParams
}

func (f *fakeTodoRepo) record(userID string) {
	f.calls++
	f.userIDs = append(f.userIDs, userID)
}

func (f *fakeTodoRepo) All(_ context.Context, userID string) ([]internal.Todo, error) {
	f.record(userID)
	return f.todos, f.err
}

func (f *fakeTodoRepo) Create(_ context.Context, userID string, params internal.CreateParams) (internal.Todo, error) {
	f.record(userID)
	f.created = params

	if f.err != nil {
		return internal.Todo{}, f.err
	}

	return internal.Todo{ID: "new", UserID: userID, Task: params.Task, Priority: params.Priority}, nil
}

func (f *fakeTodoRepo) Delete(_ context.Context, userID, _ string) (int64, error) {
	f.record(userID)
	return f.deleted, f.err
}

func (f *fakeTodoRepo) Find(_ context.Context, userID, _ string) (internal.Todo, error) {
	f.record(userID)

	if len(f.todos) == 0 {
		return internal.Todo{}, internal.NewErrorf(internal.ErrorCodeNotFound, "todo not found")
	}

	return f.todos[0], f.err
}

func (f *fakeTodoRepo) Update(_ context.Context, userID, _ string, params internal.UpdateParams) ([]internal.Todo, error) {
	f.record(userID)
	f.updated = params

	return f.todos, f.err
}

type fakeSearch struct {
	args internal.SearchParams
}

func (f *fakeSearch) Search(_ context.Context, args internal.SearchParams) (internal.SearchResults, error) {
	f.args = args
	return internal.SearchResults{Total: 0}, nil
}

type fakeBroker struct {
	events []string
	err    error
}

func (f *fakeBroker) Created(_ context.Context, _ internal.Todo) error {
	f.events = append(f.events, internal.EventTypeCreated)
	return f.err
}

func (f *fakeBroker) Deleted(_ context.Context, _, _ string) error {
	f.events = append(f.events, internal.EventTypeDeleted)
	return f.err
}

func (f *fakeBroker) Updated(_ context.Context, _ internal.Todo) error {
	f.events = append(f.events, internal.EventTypeUpdated)
	return f.err
}

func withUser(userID string) context.Context {
	return internal.WithSession(context.Background(), internal.Session{ID: "s-" + userID, UserID: userID})
}

func TestTodo_RequiresSession(t *testing.T) {
	t.Parallel()

	repo := &fakeTodoRepo{}
	svc := service.NewTodo(zap.NewNop(), repo, &fakeSearch{}, &fakeBroker{})

	ctx := context.Background()

	_, err := svc.All(ctx)
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))

	_, err = svc.Create(ctx, internal.CreateParams{Task: "A"})
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))

	_, err = svc.Update(ctx, "1", internal.UpdateParams{Task: newString("B")})
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))

	err = svc.Delete(ctx, "1")
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))

	assert.Zero(t, repo.calls)
}

func TestTodo_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   internal.CreateParams
		code    internal.ErrorCode
		calls   int
		trimmed string
	}{
		{"OK: defaults and trimming", internal.CreateParams{Task: "  Buy milk  "}, internal.ErrorCodeUnknown, 1, "Buy milk"},
		{"ERR: blank task", internal.CreateParams{Task: "   "}, internal.ErrorCodeInvalidArgument, 0, ""},
		{"ERR: bad image url", internal.CreateParams{Task: "A", ImageURL: newString("not a url")}, internal.ErrorCodeInvalidArgument, 0, ""},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeTodoRepo{}
			broker := &fakeBroker{}
			svc := service.NewTodo(zap.NewNop(), repo, &fakeSearch{}, broker)

			todo, err := svc.Create(withUser("u1"), tt.input)
			assert.Equal(t, tt.calls, repo.calls)

			if tt.code != internal.ErrorCodeUnknown {
				assert.Equal(t, tt.code, internal.ErrorCodeOf(err))
				assert.Empty(t, broker.events)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.trimmed, todo.Task)
			assert.Equal(t, internal.PriorityMedium, repo.created.Priority)
			assert.Equal(t, []string{"u1"}, repo.userIDs)
			assert.Equal(t, []string{internal.EventTypeCreated}, broker.events)
		})
	}
}

func TestTodo_Create_BrokerErrorIgnored(t *testing.T) {
	t.Parallel()

	svc := service.NewTodo(zap.NewNop(), &fakeTodoRepo{}, &fakeSearch{}, &fakeBroker{err: errors.New("down")})

	_, err := svc.Create(withUser("u1"), internal.CreateParams{Task: "A"})
	assert.NoError(t, err)
}

func TestTodo_Update(t *testing.T) {
	t.Parallel()

	repo := &fakeTodoRepo{todos: []internal.Todo{{ID: "1", UserID: "u1", Task: "A"}}}
	broker := &fakeBroker{}
	svc := service.NewTodo(zap.NewNop(), repo, &fakeSearch{}, broker)

	_, err := svc.Update(withUser("u1"), "1", internal.UpdateParams{})
	assert.Equal(t, internal.ErrorCodeInvalidArgument, internal.ErrorCodeOf(err))

	_, err = svc.Update(withUser("u1"), "1", internal.UpdateParams{Task: newString("  ")})
	assert.Equal(t, internal.ErrorCodeInvalidArgument, internal.ErrorCodeOf(err))

	assert.Zero(t, repo.calls)

	done := true

	todos, err := svc.Update(withUser("u1"), "1", internal.UpdateParams{IsCompleted: &done})
	require.NoError(t, err)
	assert.Len(t, todos, 1)
	assert.Nil(t, repo.updated.Task)
	assert.Equal(t, []string{internal.EventTypeUpdated}, broker.events)
}

func TestTodo_Delete_NotOwned(t *testing.T) {
	t.Parallel()

	repo := &fakeTodoRepo{deleted: 0}
	broker := &fakeBroker{}
	svc := service.NewTodo(zap.NewNop(), repo, &fakeSearch{}, broker)

	require.NoError(t, svc.Delete(withUser("u2"), "1"))
	assert.Equal(t, []string{"u2"}, repo.userIDs)
	assert.Empty(t, broker.events)

	repo.deleted = 1

	require.NoError(t, svc.Delete(withUser("u1"), "1"))
	assert.Equal(t, []string{internal.EventTypeDeleted}, broker.events)
}

func TestTodo_By_ScopedToCaller(t *testing.T) {
	t.Parallel()

	search := &fakeSearch{}
	svc := service.NewTodo(zap.NewNop(), &fakeTodoRepo{}, search, &fakeBroker{})

	_, err := svc.By(withUser("u1"), internal.SearchParams{UserID: "u2", Query: newString("milk")})
	require.NoError(t, err)
	assert.Equal(t, "u1", search.args.UserID)
}

func TestTodo_Todo_NotFound(t *testing.T) {
	t.Parallel()

	svc := service.NewTodo(zap.NewNop(), &fakeTodoRepo{}, &fakeSearch{}, &fakeBroker{})

	_, err := svc.Todo(withUser("u1"), "missing")
	assert.Equal(t, internal.ErrorCodeNotFound, internal.ErrorCodeOf(err))
}

func newString(s string) *string { return &s }
