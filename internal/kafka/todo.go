package kafka

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"

	"github.com/sanLimbu/todo-sync/internal"
)

const otelName = "github.com/sanLimbu/todo-sync/internal/kafka"

// Producer is the subset of *kafka.Producer used for publishing.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// Todo represents the repository used for publishing Todo records.
type Todo struct {
	producer  Producer
	topicName string
}

// Event is the message published for every change.
type Event struct {
	Type  string
	Value internal.Todo
}

// NewTodo instantiates the Todo repository.
func NewTodo(producer Producer, topicName string) *Todo {
	return &Todo{
		topicName: topicName,
		producer:  producer,
	}
}

// Created publishes a message indicating a todo was created.
func (t *Todo) Created(ctx context.Context, todo internal.Todo) error {
	return t.publish(ctx, "Todo.Created", internal.EventTypeCreated, todo)
}

// Deleted publishes a message indicating a todo was deleted.
func (t *Todo) Deleted(ctx context.Context, userID, id string) error {
	return t.publish(ctx, "Todo.Deleted", internal.EventTypeDeleted, internal.Todo{ID: id, UserID: userID})
}

// Updated publishes a message indicating a todo was updated.
func (t *Todo) Updated(ctx context.Context, todo internal.Todo) error {
	return t.publish(ctx, "Todo.Updated", internal.EventTypeUpdated, todo)
}

func (t *Todo) publish(ctx context.Context, spanName, msgType string, todo internal.Todo) error {
	_, span := otel.Tracer(otelName).Start(ctx, spanName)
	defer span.End()

	span.SetAttributes(
		attribute.KeyValue{
			Key:   semconv.MessagingSystemKey,
			Value: attribute.StringValue("kafka"),
		},
	)

	var b bytes.Buffer

	evt := Event{
		Type:  msgType,
		Value: todo,
	}

	if err := json.NewEncoder(&b).Encode(evt); err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "json.Encode")
	}

	if err := t.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &t.topicName,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(todo.UserID),
		Value: b.Bytes(),
	}, nil); err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "producer.Produce")
	}

	return nil
}
