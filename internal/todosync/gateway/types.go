package gateway

import (
	"time"

	"github.com/sanLimbu/todo-sync/internal"
)

type todo struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	Description *string   `json:"description"`
	Priority    string    `json:"priority"`
	IsCompleted bool      `json:"is_completed"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"`
}

type todosResponse struct {
	Todos []todo `json:"todos"`
}

type searchResponse struct {
	Todos []todo `json:"todos"`
	Total int64  `json:"total"`
}

type createTodoRequest struct {
	Task        string  `json:"task"`
	Description *string `json:"description,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type magicLinkRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newUpdateRequest includes only the supplied fields, cleared nullable fields are sent as null.
func newUpdateRequest(params internal.UpdateParams) map[string]interface{} {
	req := make(map[string]interface{})

	if params.Task != nil {
		req["task"] = *params.Task
	}

	if params.Description.Set {
		req["description"] = params.Description.Value
	}

	if params.Priority != nil {
		req["priority"] = params.Priority.String()
	}

	if params.IsCompleted != nil {
		req["is_completed"] = *params.IsCompleted
	}

	if params.ImageURL.Set {
		req["image_url"] = params.ImageURL.Value
	}

	return req
}

func (t todo) convert() (internal.Todo, error) {
	priority, err := internal.ParsePriority(t.Priority)
	if err != nil {
		return internal.Todo{}, err
	}

	return internal.Todo{
		ID:          t.ID,
		Task:        t.Task,
		Description: t.Description,
		Priority:    priority,
		IsCompleted: t.IsCompleted,
		ImageURL:    t.ImageURL,
		CreatedAt:   t.CreatedAt,
		UserID:      t.UserID,
	}, nil
}

func convertTodos(todos []todo) ([]internal.Todo, error) {
	res := make([]internal.Todo, len(todos))

	for i, t := range todos {
		todo, err := t.convert()
		if err != nil {
			return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "todo %s", t.ID)
		}

		res[i] = todo
	}

	return res, nil
}

func (s sessionResponse) convert() internal.Session {
	return internal.Session{
		UserID:    s.UserID,
		Email:     s.Email,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}
