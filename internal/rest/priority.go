package rest

import (
	"encoding/json"

	"github.com/sanLimbu/todo-sync/internal"
)

// Priority indicates how important a Todo is.
type Priority string

const (
	priorityLow    Priority = "low"
	priorityMedium Priority = "medium"
	priorityHigh   Priority = "high"
)

// NewPriority converts an internal Priority into its wire representation.
func NewPriority(p internal.Priority) Priority {
	switch p {
	case internal.PriorityLow:
		return priorityLow
	case internal.PriorityMedium:
		return priorityMedium
	case internal.PriorityHigh:
		return priorityHigh
	}

	return ""
}

// Convert returns the domain value.
func (p Priority) Convert() (internal.Priority, error) {
	return internal.ParsePriority(string(p))
}

// UnmarshalJSON rejects unknown priorities while decoding.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	if _, err := internal.ParsePriority(s); err != nil {
		return err
	}

	*p = Priority(s)

	return nil
}
