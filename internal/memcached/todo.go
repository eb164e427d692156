package memcached

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
)

// Todo is a cache-aside decorator of TodoStore, single records are cached per owner.
type Todo struct {
	client     Client
	orig       TodoStore
	expiration time.Duration
	logger     *zap.Logger
}

// TodoStore defines the datastore being decorated.
type TodoStore interface {
	All(ctx context.Context, userID string) ([]internal.Todo, error)
	Create(ctx context.Context, userID string, params internal.CreateParams) (internal.Todo, error)
	Delete(ctx context.Context, userID, id string) (int64, error)
	Find(ctx context.Context, userID, id string) (internal.Todo, error)
	Update(ctx context.Context, userID, id string, params internal.UpdateParams) ([]internal.Todo, error)
}

// NewTodo instantiates the Todo cache.
func NewTodo(client Client, orig TodoStore, logger *zap.Logger) *Todo {
	return &Todo{
		client:     client,
		orig:       orig,
		expiration: 15 * time.Minute,
		logger:     logger,
	}
}

// All is not cached, the collection changes too often to be worth it.
func (t *Todo) All(ctx context.Context, userID string) ([]internal.Todo, error) {
	return t.orig.All(ctx, userID)
}

// Create ...
func (t *Todo) Create(ctx context.Context, userID string, params internal.CreateParams) (internal.Todo, error) {
	defer newOTELSpan(ctx, "Todo.Create").End()

	todo, err := t.orig.Create(ctx, userID, params)
	if err != nil {
		return internal.Todo{}, fmt.Errorf("orig.Create: %w", err)
	}

	setTodo(ctx, t.client, key(userID, todo.ID), &todo, t.expiration)

	return todo, nil
}

// Delete ...
func (t *Todo) Delete(ctx context.Context, userID, id string) (int64, error) {
	defer newOTELSpan(ctx, "Todo.Delete").End()

	count, err := t.orig.Delete(ctx, userID, id)
	if err != nil {
		return 0, fmt.Errorf("orig.Delete: %w", err)
	}

	deleteTodo(ctx, t.client, key(userID, id))

	return count, nil
}

// Find ...
func (t *Todo) Find(ctx context.Context, userID, id string) (internal.Todo, error) {
	defer newOTELSpan(ctx, "Todo.Find").End()

	var res internal.Todo

	if err := getTodo(ctx, t.client, key(userID, id), &res); err == nil {
		return res, nil
	}

	t.logger.Debug("Find: not found, caching it", zap.String("id", id))

	res, err := t.orig.Find(ctx, userID, id)
	if err != nil {
		return res, fmt.Errorf("orig.Find: %w", err)
	}

	setTodo(ctx, t.client, key(userID, res.ID), &res, t.expiration)

	return res, nil
}

// Update ...
func (t *Todo) Update(ctx context.Context, userID, id string, params internal.UpdateParams) ([]internal.Todo, error) {
	defer newOTELSpan(ctx, "Todo.Update").End()

	todos, err := t.orig.Update(ctx, userID, id, params)
	if err != nil {
		return nil, fmt.Errorf("orig.Update: %w", err)
	}

	deleteTodo(ctx, t.client, key(userID, id))

	for i := range todos {
		setTodo(ctx, t.client, key(userID, todos[i].ID), &todos[i], t.expiration)
	}

	return todos, nil
}

// Evict removes the cached record a change refers to, changes may come from writers other than this
// process.
func (t *Todo) Evict(ctx context.Context, change internal.Change) {
	if change.ID == "" || change.UserID == "" {
		return
	}

	deleteTodo(ctx, t.client, key(change.UserID, change.ID))
}

func key(userID, id string) string {
	return "todo:" + userID + ":" + id
}
