package postgresql

import (
	"context"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/postgresql/db"
)

// Todo represents the repository used for interacting with Todo records. Every query is scoped to the
// owner, a record owned by another user is never returned nor modified.
type Todo struct {
	q *db.Queries
}

// NewTodo instantiates the Todo repository.
func NewTodo(d db.DBTX) *Todo {
	return &Todo{
		q: db.New(d),
	}
}

// All returns the records owned by userID, newest first.
func (t *Todo) All(ctx context.Context, userID string) ([]internal.Todo, error) {
	defer newOTELSpan(ctx, "Todo.All").End()

	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	rows, err := t.q.SelectTodos(ctx, uid)
	if err != nil {
		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "select todos")
	}

	return convertTodos(rows)
}

// Create inserts a new todo record owned by userID.
func (t *Todo) Create(ctx context.Context, userID string, params internal.CreateParams) (internal.Todo, error) {
	defer newOTELSpan(ctx, "Todo.Create").End()

	uid, err := parseID(userID)
	if err != nil {
		return internal.Todo{}, err
	}

	priority := params.Priority
	if priority == internal.PriorityNone {
		priority = internal.PriorityMedium
	}

	row, err := t.q.InsertTodo(ctx, db.InsertTodoParams{
		Task:        params.Task,
		Description: newText(params.Description),
		Priority:    newPriority(priority),
		ImageUrl:    newText(params.ImageURL),
		UserID:      uid,
	})
	if err != nil {
		return internal.Todo{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "insert todo")
	}

	return convertTodo(row)
}

// Delete deletes the record matching id and userID, it returns the number of rows affected. Deleting a
// record owned by another user affects zero rows and is not an error.
func (t *Todo) Delete(ctx context.Context, userID, id string) (int64, error) {
	defer newOTELSpan(ctx, "Todo.Delete").End()

	uid, err := parseID(userID)
	if err != nil {
		return 0, err
	}

	val, err := parseID(id)
	if err != nil {
		return 0, err
	}

	count, err := t.q.DeleteTodo(ctx, db.DeleteTodoParams{
		ID:     val,
		UserID: uid,
	})
	if err != nil {
		return 0, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "delete todo")
	}

	return count, nil
}

// Find returns the requested todo when it is owned by userID.
func (t *Todo) Find(ctx context.Context, userID, id string) (internal.Todo, error) {
	defer newOTELSpan(ctx, "Todo.Find").End()

	uid, err := parseID(userID)
	if err != nil {
		return internal.Todo{}, err
	}

	val, err := parseID(id)
	if err != nil {
		return internal.Todo{}, internal.WrapErrorf(err, internal.ErrorCodeNotFound, "todo not found")
	}

	row, err := t.q.SelectTodo(ctx, db.SelectTodoParams{
		ID:     val,
		UserID: uid,
	})
	if err != nil {
		if isNoRows(err) {
			return internal.Todo{}, internal.WrapErrorf(err, internal.ErrorCodeNotFound, "todo not found")
		}

		return internal.Todo{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "select todo")
	}

	return convertTodo(row)
}

// Update writes the supplied fields of the todo matching id and userID, the rest are left untouched. It
// returns the updated records, none when the todo is owned by another user.
func (t *Todo) Update(ctx context.Context, userID, id string, params internal.UpdateParams) ([]internal.Todo, error) {
	defer newOTELSpan(ctx, "Todo.Update").End()

	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	val, err := parseID(id)
	if err != nil {
		return nil, err
	}

	rows, err := t.q.UpdateTodo(ctx, db.UpdateTodoParams{
		Task:           newText(params.Task),
		SetDescription: params.Description.Set,
		Description:    newText(params.Description.Value),
		Priority:       newNullPriority(params.Priority),
		IsCompleted:    newBool(params.IsCompleted),
		SetImageUrl:    params.ImageURL.Set,
		ImageUrl:       newText(params.ImageURL.Value),
		ID:             val,
		UserID:         uid,
	})
	if err != nil {
		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "update todo")
	}

	return convertTodos(rows)
}
