package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/sanLimbu/todo-sync/internal"
)

const otelName = "github.com/sanLimbu/todo-sync/internal/rest"

// ErrorResponse represents a response containing an error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

func renderErrorResponse(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	status := http.StatusInternalServerError

	switch internal.ErrorCodeOf(err) {
	case internal.ErrorCodeNotFound:
		status = http.StatusNotFound
	case internal.ErrorCodeInvalidArgument:
		status = http.StatusBadRequest
	case internal.ErrorCodeUnauthorized:
		status = http.StatusUnauthorized
		resp.Error = "Unauthorized"
	default:
		resp.Error = "internal error"
	}

	if err != nil {
		_, span := otel.Tracer(otelName).Start(ctx, "rest.renderErrorResponse")
		defer span.End()

		span.RecordError(err)
	}

	renderResponse(w, resp, status)
}

func renderResponse(w http.ResponseWriter, res interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")

	content, err := json.Marshal(res)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)

	_, _ = w.Write(content)
}
