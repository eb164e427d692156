package todosync

import (
	"math"

	"github.com/sanLimbu/todo-sync/internal"
)

// StatusFilter partitions todos by completion.
type StatusFilter int

const (
	StatusAll StatusFilter = iota
	StatusActive
	StatusCompleted
)

// ParseStatusFilter converts "all", "active" or "completed", the empty string means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch s {
	case "", "all":
		return StatusAll, nil
	case "active":
		return StatusActive, nil
	case "completed":
		return StatusCompleted, nil
	}

	return StatusAll, internal.NewErrorf(internal.ErrorCodeInvalidArgument, "unknown status: %s", s)
}

// ParsePriorityFilter converts "all" or a priority, internal.PriorityNone matches every priority.
func ParsePriorityFilter(s string) (internal.Priority, error) {
	if s == "all" {
		return internal.PriorityNone, nil
	}

	return internal.ParsePriority(s)
}

func (f StatusFilter) match(todo internal.Todo) bool {
	switch f {
	case StatusActive:
		return !todo.IsCompleted
	case StatusCompleted:
		return todo.IsCompleted
	}

	return true
}

// Filter returns the todos matching both filters, keeping their order. The input is never modified.
func Filter(todos []internal.Todo, status StatusFilter, priority internal.Priority) []internal.Todo {
	res := make([]internal.Todo, 0, len(todos))

	for _, todo := range todos {
		if !status.match(todo) {
			continue
		}

		if priority != internal.PriorityNone && todo.Priority != priority {
			continue
		}

		res = append(res, todo)
	}

	return res
}

// Counts aggregates a collection of todos.
type Counts struct {
	Total              int
	Active             int
	Completed          int
	HighPriorityActive int
}

// Count ...
func Count(todos []internal.Todo) Counts {
	c := Counts{Total: len(todos)}

	for _, todo := range todos {
		if todo.IsCompleted {
			c.Completed++
			continue
		}

		c.Active++

		if todo.Priority == internal.PriorityHigh {
			c.HighPriorityActive++
		}
	}

	return c
}

// CompletionPercentage returns the rounded share of completed todos, 0 when there are none.
func (c Counts) CompletionPercentage() int {
	if c.Total == 0 {
		return 0
	}

	return int(math.Round(float64(c.Completed) * 100 / float64(c.Total)))
}
