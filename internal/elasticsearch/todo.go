package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	esv7 "github.com/elastic/go-elasticsearch/v7"
	esv7api "github.com/elastic/go-elasticsearch/v7/esapi"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sanLimbu/todo-sync/internal"
)

const otelName = "github.com/sanLimbu/todo-sync/internal/elasticsearch"

// Todo represents the repository used for interacting with Todo records.
type Todo struct {
	client *esv7.Client
	index  string
}

type indexedTodo struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Task        string  `json:"task"`
	Description *string `json:"description,omitempty"`
	Priority    string  `json:"priority"`
	IsCompleted bool    `json:"is_completed"`
	ImageURL    *string `json:"image_url,omitempty"`
	CreatedAt   int64   `json:"created_at"`
}

// NewTodo instantiates the Todo repository.
func NewTodo(client *esv7.Client) *Todo {
	return &Todo{
		client: client,
		index:  "todos",
	}
}

// Index creates or updates a todo in an index.
func (t *Todo) Index(ctx context.Context, todo internal.Todo) error {
	defer newOTELSpan(ctx, "Todo.Index").End()

	body := indexedTodo{
		ID:          todo.ID,
		UserID:      todo.UserID,
		Task:        todo.Task,
		Description: todo.Description,
		Priority:    todo.Priority.String(),
		IsCompleted: todo.IsCompleted,
		ImageURL:    todo.ImageURL,
		CreatedAt:   todo.CreatedAt.UnixNano(),
	}

	var buf bytes.Buffer

	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "json.NewEncoder.Encode")
	}

	req := esv7api.IndexRequest{
		Index:      t.index,
		Body:       &buf,
		DocumentID: todo.ID,
		Refresh:    "true",
	}

	resp, err := req.Do(ctx, t.client)
	if err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "IndexRequest.Do")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return internal.NewErrorf(internal.ErrorCodeUnknown, "IndexRequest.Do %d", resp.StatusCode)
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// Delete removes a todo from the index.
func (t *Todo) Delete(ctx context.Context, id string) error {
	defer newOTELSpan(ctx, "Todo.Delete").End()

	req := esv7api.DeleteRequest{
		Index:      t.index,
		DocumentID: id,
	}

	resp, err := req.Do(ctx, t.client)
	if err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "DeleteRequest.Do")
	}
	defer resp.Body.Close()

	if resp.IsError() && resp.StatusCode != 404 {
		return internal.NewErrorf(internal.ErrorCodeUnknown, "DeleteRequest.Do %d", resp.StatusCode)
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// Search returns the todos owned by args.UserID matching the query.
func (t *Todo) Search(ctx context.Context, args internal.SearchParams) (internal.SearchResults, error) {
	defer newOTELSpan(ctx, "Todo.Search").End()

	if args.IsZero() || args.UserID == "" {
		return internal.SearchResults{}, nil
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildQuery(args)); err != nil {
		return internal.SearchResults{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "json.NewEncoder.Encode")
	}

	req := esv7api.SearchRequest{
		Index: []string{t.index},
		Body:  &buf,
	}

	resp, err := req.Do(ctx, t.client)
	if err != nil {
		return internal.SearchResults{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "SearchRequest.Do")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return internal.SearchResults{}, internal.NewErrorf(internal.ErrorCodeUnknown, "SearchRequest.Do %d", resp.StatusCode)
	}

	var hits struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source indexedTodo `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return internal.SearchResults{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "json.NewDecoder.Decode")
	}

	res := make([]internal.Todo, len(hits.Hits.Hits))

	for i, hit := range hits.Hits.Hits {
		priority, _ := internal.ParsePriority(hit.Source.Priority)

		res[i] = internal.Todo{
			ID:          hit.Source.ID,
			UserID:      hit.Source.UserID,
			Task:        hit.Source.Task,
			Description: hit.Source.Description,
			Priority:    priority,
			IsCompleted: hit.Source.IsCompleted,
			ImageURL:    hit.Source.ImageURL,
			CreatedAt:   time.Unix(0, hit.Source.CreatedAt).UTC(),
		}
	}

	return internal.SearchResults{
		Todos: res,
		Total: hits.Hits.Total.Value,
	}, nil
}

// buildQuery always filters by owner, the optional arguments score the matches.
func buildQuery(args internal.SearchParams) map[string]interface{} {
	filter := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{
				"user_id": args.UserID,
			},
		},
	}

	if args.Priority != nil {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{
				"priority": args.Priority.String(),
			},
		})
	}

	if args.IsCompleted != nil {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{
				"is_completed": *args.IsCompleted,
			},
		})
	}

	boolQuery := map[string]interface{}{
		"filter": filter,
	}

	if args.Query != nil {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  *args.Query,
					"fields": []string{"task^2", "description"},
				},
			},
		}
	}

	size := args.Size
	if size <= 0 {
		size = 10
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"created_at": "desc"},
		},
		"from": args.From,
		"size": size,
	}
}

func newOTELSpan(ctx context.Context, name string) trace.Span {
	_, span := otel.Tracer(otelName).Start(ctx, name)

	span.SetAttributes(semconv.DBSystemElasticsearch)

	return span
}
