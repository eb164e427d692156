package internal

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Priority indicates how important a Todo is.
type Priority int8

const (
	// PriorityNone means the priority was not supplied; new records default to PriorityMedium.
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// ParsePriority converts the textual representation of a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "":
		return PriorityNone, nil
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}

	return PriorityNone, NewErrorf(ErrorCodeInvalidArgument, "unknown priority: %s", s)
}

// String returns the textual representation used by the store and the wire formats.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}

	return ""
}

// Validate ...
func (p Priority) Validate() error {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return nil
	}

	return NewErrorf(ErrorCodeInvalidArgument, "unknown value")
}

// Todo is a personal task owned by exactly one user.
type Todo struct {
	ID          string
	Task        string
	Description *string
	Priority    Priority
	IsCompleted bool
	ImageURL    *string
	CreatedAt   time.Time
	UserID      string
}

// CreateParams defines the arguments used for creating Todo records.
type CreateParams struct {
	Task        string
	Description *string
	Priority    Priority
	ImageURL    *string
}

// Normalize trims the task and applies the default priority.
func (c CreateParams) Normalize() CreateParams {
	c.Task = strings.TrimSpace(c.Task)
	if c.Priority == PriorityNone {
		c.Priority = PriorityMedium
	}

	return c
}

// Validate indicates whether the fields are valid or not.
func (c CreateParams) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Task, validation.Required, validation.By(notBlank)),
		validation.Field(&c.Priority),
		validation.Field(&c.ImageURL, is.URL),
	); err != nil {
		return WrapErrorf(err, ErrorCodeInvalidArgument, "validation.ValidateStruct")
	}

	return nil
}

// NullableString is a field of a partial update that may be omitted, cleared (null) or set.
type NullableString struct {
	Set   bool
	Value *string
}

// NewNullableString returns a NullableString set to v.
func NewNullableString(v string) NullableString {
	return NullableString{Set: true, Value: &v}
}

// UnmarshalJSON marks the field as set, an explicit null clears the value.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	n.Value = nil

	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	n.Value = &v

	return nil
}

// UpdateParams defines the arguments used for partially updating Todo records, nil or unset fields are
// left untouched.
type UpdateParams struct {
	Task        *string
	Description NullableString
	Priority    *Priority
	IsCompleted *bool
	ImageURL    NullableString
}

// IsZero determines whether no field was supplied.
func (u UpdateParams) IsZero() bool {
	return u.Task == nil &&
		!u.Description.Set &&
		u.Priority == nil &&
		u.IsCompleted == nil &&
		!u.ImageURL.Set
}

// Normalize trims the task, when supplied.
func (u UpdateParams) Normalize() UpdateParams {
	if u.Task != nil {
		task := strings.TrimSpace(*u.Task)
		u.Task = &task
	}

	return u
}

// Validate indicates whether the fields are valid or not.
func (u UpdateParams) Validate() error {
	if err := validation.ValidateStruct(&u,
		validation.Field(&u.Task, validation.NilOrNotEmpty, validation.By(notBlank)),
		validation.Field(&u.Priority, validation.By(func(value interface{}) error {
			if p, ok := value.(*Priority); ok && p != nil && *p == PriorityNone {
				return validation.NewError("validation_priority_none", "must be low, medium or high")
			}
			return nil
		})),
	); err != nil {
		return WrapErrorf(err, ErrorCodeInvalidArgument, "validation.ValidateStruct")
	}

	if u.ImageURL.Set && u.ImageURL.Value != nil {
		if err := is.URL.Validate(*u.ImageURL.Value); err != nil {
			return WrapErrorf(err, ErrorCodeInvalidArgument, "image_url")
		}
	}

	return nil
}

// SearchParams defines the arguments used for searching Todo records owned by UserID.
type SearchParams struct {
	UserID      string
	Query       *string
	Priority    *Priority
	IsCompleted *bool
	From        int64
	Size        int64
}

// IsZero determines whether the search arguments have values or not.
func (a SearchParams) IsZero() bool {
	return a.Query == nil &&
		a.Priority == nil &&
		a.IsCompleted == nil
}

// SearchResults defines the collection of todos that were found.
type SearchResults struct {
	Todos []Todo
	Total int64
}

func notBlank(value interface{}) error {
	var s string

	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	default:
		return nil
	}

	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "cannot be blank")
	}

	return nil
}
