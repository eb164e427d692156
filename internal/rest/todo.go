package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sanLimbu/todo-sync/internal"
)

// TodoService ...
type TodoService interface {
	All(ctx context.Context) ([]internal.Todo, error)
	By(ctx context.Context, args internal.SearchParams) (internal.SearchResults, error)
	Create(ctx context.Context, params internal.CreateParams) (internal.Todo, error)
	Delete(ctx context.Context, id string) error
	Todo(ctx context.Context, id string) (internal.Todo, error)
	Update(ctx context.Context, id string, params internal.UpdateParams) ([]internal.Todo, error)
}

// TodoHandler ...
type TodoHandler struct {
	svc TodoService
}

// NewTodoHandler ...
func NewTodoHandler(svc TodoService) *TodoHandler {
	return &TodoHandler{
		svc: svc,
	}
}

// Register connects the handlers to the router.
func (t *TodoHandler) Register(r chi.Router) {
	r.Get("/todos", t.all)
	r.Post("/todos", t.create)
	r.Get("/todos/search", t.search)
	r.Get("/todos/{id}", t.todo)
	r.Patch("/todos/{id}", t.update)
	r.Delete("/todos/{id}", t.delete)
}

// Todo is a personal task.
type Todo struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	Description *string   `json:"description"`
	Priority    Priority  `json:"priority"`
	IsCompleted bool      `json:"is_completed"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"`
}

// TodosResponse defines the response carrying a collection of todos, also used for mutations.
type TodosResponse struct {
	Todos []Todo `json:"todos"`
}

// ReadTodoResponse defines the response returned back after reading one todo.
type ReadTodoResponse struct {
	Todo Todo `json:"todo"`
}

// CreateTodoRequest defines the request used for creating todos.
type CreateTodoRequest struct {
	Task        string   `json:"task"`
	Description *string  `json:"description"`
	Priority    Priority `json:"priority"`
	ImageURL    *string  `json:"image_url"`
}

// UpdateTodoRequest defines the request used for partially updating todos, omitted fields are left
// untouched.
type UpdateTodoRequest struct {
	Task        *string                 `json:"task"`
	Description internal.NullableString `json:"description"`
	Priority    *Priority               `json:"priority"`
	IsCompleted *bool                   `json:"is_completed"`
	ImageURL    internal.NullableString `json:"image_url"`
}

// DeleteTodoResponse defines the response returned back after deleting todos.
type DeleteTodoResponse struct {
	Success bool `json:"success"`
}

// SearchTodosResponse defines the response returned back after searching todos.
type SearchTodosResponse struct {
	Todos []Todo `json:"todos"`
	Total int64  `json:"total"`
}

func (t *TodoHandler) all(w http.ResponseWriter, r *http.Request) {
	todos, err := t.svc.All(r.Context())
	if err != nil {
		renderErrorResponse(r.Context(), w, "find failed", err)
		return
	}

	renderResponse(w, &TodosResponse{Todos: newTodos(todos)}, http.StatusOK)
}

func (t *TodoHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(r.Context(), w, "invalid request",
			internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "json decoder"))
		return
	}
	defer r.Body.Close()

	priority, _ := req.Priority.Convert()

	todo, err := t.svc.Create(r.Context(), internal.CreateParams{
		Task:        req.Task,
		Description: req.Description,
		Priority:    priority,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		renderErrorResponse(r.Context(), w, "create failed", err)
		return
	}

	renderResponse(w, &TodosResponse{Todos: []Todo{newTodo(todo)}}, http.StatusCreated)
}

func (t *TodoHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := t.svc.Delete(r.Context(), id); err != nil {
		renderErrorResponse(r.Context(), w, "delete failed", err)
		return
	}

	renderResponse(w, &DeleteTodoResponse{Success: true}, http.StatusOK)
}

func (t *TodoHandler) search(w http.ResponseWriter, r *http.Request) {
	args, err := newSearchParams(r)
	if err != nil {
		renderErrorResponse(r.Context(), w, "invalid request", err)
		return
	}

	res, err := t.svc.By(r.Context(), args)
	if err != nil {
		renderErrorResponse(r.Context(), w, "search failed", err)
		return
	}

	renderResponse(w, &SearchTodosResponse{Todos: newTodos(res.Todos), Total: res.Total}, http.StatusOK)
}

func (t *TodoHandler) todo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	todo, err := t.svc.Todo(r.Context(), id)
	if err != nil {
		renderErrorResponse(r.Context(), w, "find failed", err)
		return
	}

	renderResponse(w, &ReadTodoResponse{Todo: newTodo(todo)}, http.StatusOK)
}

func (t *TodoHandler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(r.Context(), w, "invalid request",
			internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "json decoder"))
		return
	}
	defer r.Body.Close()

	id := chi.URLParam(r, "id")

	params := internal.UpdateParams{
		Task:        req.Task,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
		ImageURL:    req.ImageURL,
	}

	if req.Priority != nil {
		priority, _ := req.Priority.Convert()
		params.Priority = &priority
	}

	todos, err := t.svc.Update(r.Context(), id, params)
	if err != nil {
		renderErrorResponse(r.Context(), w, "update failed", err)
		return
	}

	renderResponse(w, &TodosResponse{Todos: newTodos(todos)}, http.StatusOK)
}

func newSearchParams(r *http.Request) (internal.SearchParams, error) {
	var args internal.SearchParams

	q := r.URL.Query()

	if v := q.Get("q"); v != "" {
		args.Query = &v
	}

	if v := q.Get("priority"); v != "" {
		priority, err := internal.ParsePriority(v)
		if err != nil {
			return internal.SearchParams{}, err
		}

		args.Priority = &priority
	}

	if v := q.Get("is_completed"); v != "" {
		done, err := strconv.ParseBool(v)
		if err != nil {
			return internal.SearchParams{}, internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "is_completed")
		}

		args.IsCompleted = &done
	}

	for key, dst := range map[string]*int64{"from": &args.From, "size": &args.Size} {
		if v := q.Get(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return internal.SearchParams{}, internal.NewErrorf(internal.ErrorCodeInvalidArgument, "invalid %s", key)
			}

			*dst = n
		}
	}

	return args, nil
}

func newTodo(todo internal.Todo) Todo {
	return Todo{
		ID:          todo.ID,
		Task:        todo.Task,
		Description: todo.Description,
		Priority:    NewPriority(todo.Priority),
		IsCompleted: todo.IsCompleted,
		ImageURL:    todo.ImageURL,
		CreatedAt:   todo.CreatedAt,
		UserID:      todo.UserID,
	}
}

func newTodos(todos []internal.Todo) []Todo {
	res := make([]Todo, len(todos))

	for i, todo := range todos {
		res[i] = newTodo(todo)
	}

	return res
}
