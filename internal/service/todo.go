package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
)

// TodoRepository defines the datastore handling persisting Todo records, every call is scoped to the
// owner.
type TodoRepository interface {
	All(ctx context.Context, userID string) ([]internal.Todo, error)
	Create(ctx context.Context, userID string, params internal.CreateParams) (internal.Todo, error)
	Delete(ctx context.Context, userID, id string) (int64, error)
	Find(ctx context.Context, userID, id string) (internal.Todo, error)
	Update(ctx context.Context, userID, id string, params internal.UpdateParams) ([]internal.Todo, error)
}

// TodoSearchRepository defines the datastore handling searching Todo records.
type TodoSearchRepository interface {
	Search(ctx context.Context, args internal.SearchParams) (internal.SearchResults, error)
}

// TodoMessageBrokerRepository defines the message broker handling Todo events.
type TodoMessageBrokerRepository interface {
	Created(ctx context.Context, todo internal.Todo) error
	Deleted(ctx context.Context, userID, id string) error
	Updated(ctx context.Context, todo internal.Todo) error
}

// Todo defines the application service in charge of interacting with Todos.
type Todo struct {
	logger    *zap.Logger
	repo      TodoRepository
	search    TodoSearchRepository
	msgBroker TodoMessageBrokerRepository
}

// NewTodo ...
func NewTodo(logger *zap.Logger, repo TodoRepository, search TodoSearchRepository, msgBroker TodoMessageBrokerRepository) *Todo {
	return &Todo{
		logger:    logger,
		repo:      repo,
		search:    search,
		msgBroker: msgBroker,
	}
}

// All returns every Todo owned by the caller, newest first.
func (t *Todo) All(ctx context.Context) ([]internal.Todo, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Todo.All")
	defer span.End()

	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	todos, err := t.repo.All(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("repo all: %w", err)
	}

	return todos, nil
}

// By searches Todos owned by the caller matching the received values.
func (t *Todo) By(ctx context.Context, args internal.SearchParams) (internal.SearchResults, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Todo.By")
	defer span.End()

	session, err := sessionFrom(ctx)
	if err != nil {
		return internal.SearchResults{}, err
	}

	args.UserID = session.UserID

	res, err := t.search.Search(ctx, args)
	if err != nil {
		return internal.SearchResults{}, fmt.Errorf("search: %w", err)
	}

	return res, nil
}

// Create stores a new record owned by the caller.
func (t *Todo) Create(ctx context.Context, params internal.CreateParams) (internal.Todo, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Todo.Create")
	defer span.End()

	session, err := sessionFrom(ctx)
	if err != nil {
		return internal.Todo{}, err
	}

	params = params.Normalize()

	if err := params.Validate(); err != nil {
		return internal.Todo{}, fmt.Errorf("params validate: %w", err)
	}

	todo, err := t.repo.Create(ctx, session.UserID, params)
	if err != nil {
		return internal.Todo{}, fmt.Errorf("repo create: %w", err)
	}

	if err := t.msgBroker.Created(ctx, todo); err != nil {
		t.logger.Warn("Couldn't publish event", zap.String("type", internal.EventTypeCreated), zap.Error(err))
	}

	return todo, nil
}

// Delete removes the caller's Todo, deleting a record owned by somebody else affects nothing.
func (t *Todo) Delete(ctx context.Context, id string) error {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Todo.Delete")
	defer span.End()

	session, err := sessionFrom(ctx)
	if err != nil {
		return err
	}

	n, err := t.repo.Delete(ctx, session.UserID, id)
	if err != nil {
		return fmt.Errorf("repo delete: %w", err)
	}

	if n == 0 {
		t.logger.Info("Delete affected no rows", zap.String("id", id))
		return nil
	}

	if err := t.msgBroker.Deleted(ctx, session.UserID, id); err != nil {
		t.logger.Warn("Couldn't publish event", zap.String("type", internal.EventTypeDeleted), zap.Error(err))
	}

	return nil
}

// Todo gets an existing Todo owned by the caller.
func (t *Todo) Todo(ctx context.Context, id string) (internal.Todo, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Todo.Todo")
	defer span.End()

	session, err := sessionFrom(ctx)
	if err != nil {
		return internal.Todo{}, err
	}

	todo, err := t.repo.Find(ctx, session.UserID, id)
	if err != nil {
		return internal.Todo{}, fmt.Errorf("repo find: %w", err)
	}

	return todo, nil
}

// Update applies the supplied fields to the caller's Todo and returns the updated rows, none when the
// record is not owned by the caller.
func (t *Todo) Update(ctx context.Context, id string, params internal.UpdateParams) ([]internal.Todo, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Todo.Update")
	defer span.End()

	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	if params.IsZero() {
		return nil, internal.NewErrorf(internal.ErrorCodeInvalidArgument, "no fields to update")
	}

	params = params.Normalize()

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("params validate: %w", err)
	}

	todos, err := t.repo.Update(ctx, session.UserID, id, params)
	if err != nil {
		return nil, fmt.Errorf("repo update: %w", err)
	}

	for _, todo := range todos {
		if err := t.msgBroker.Updated(ctx, todo); err != nil {
			t.logger.Warn("Couldn't publish event", zap.String("type", internal.EventTypeUpdated), zap.Error(err))
		}
	}

	return todos, nil
}

func sessionFrom(ctx context.Context) (internal.Session, error) {
	session, ok := internal.SessionFromContext(ctx)
	if !ok {
		return internal.Session{}, internal.NewErrorf(internal.ErrorCodeUnauthorized, "Unauthorized")
	}

	return session, nil
}
