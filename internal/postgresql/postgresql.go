package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/postgresql/db"
)

//go:generate sqlc generate -f ../../sqlc.yaml

const otelName = "github.com/sanLimbu/todo-sync/internal/postgresql"

func convertPriority(p db.Priority) (internal.Priority, error) {
	switch p {
	case db.PriorityLow:
		return internal.PriorityLow, nil
	case db.PriorityMedium:
		return internal.PriorityMedium, nil
	case db.PriorityHigh:
		return internal.PriorityHigh, nil
	}

	return internal.Priority(-1), fmt.Errorf("unknown value: %s", p)
}

func newPriority(p internal.Priority) db.Priority {
	switch p {
	case internal.PriorityLow:
		return db.PriorityLow
	case internal.PriorityMedium:
		return db.PriorityMedium
	case internal.PriorityHigh:
		return db.PriorityHigh
	}

	return "invalid"
}

func newNullPriority(p *internal.Priority) db.NullPriority {
	if p == nil {
		return db.NullPriority{}
	}

	return db.NullPriority{
		Priority: newPriority(*p),
		Valid:    true,
	}
}

func newText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}

	return pgtype.Text{
		String: *s,
		Valid:  true,
	}
}

func newBool(b *bool) pgtype.Bool {
	if b == nil {
		return pgtype.Bool{}
	}

	return pgtype.Bool{
		Bool:  *b,
		Valid: true,
	}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}

	s := t.String

	return &s
}

func parseID(id string) (uuid.UUID, error) {
	val, err := uuid.Parse(id)
	if err != nil {
		return uuid.UUID{}, internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "invalid id")
	}

	return val, nil
}

func convertTodo(t db.Todo) (internal.Todo, error) {
	priority, err := convertPriority(t.Priority)
	if err != nil {
		return internal.Todo{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "convert priority")
	}

	return internal.Todo{
		ID:          t.ID.String(),
		Task:        t.Task,
		Description: textPtr(t.Description),
		Priority:    priority,
		IsCompleted: t.IsCompleted,
		ImageURL:    textPtr(t.ImageUrl),
		CreatedAt:   t.CreatedAt.Time,
		UserID:      t.UserID.String(),
	}, nil
}

func convertTodos(rows []db.Todo) ([]internal.Todo, error) {
	res := make([]internal.Todo, len(rows))

	for i, row := range rows {
		todo, err := convertTodo(row)
		if err != nil {
			return nil, err
		}

		res[i] = todo
	}

	return res, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func newOTELSpan(ctx context.Context, name string) trace.Span {
	_, span := otel.Tracer(otelName).Start(ctx, name)

	span.SetAttributes(semconv.DBSystemPostgreSQL)

	return span
}
