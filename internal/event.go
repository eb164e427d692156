package internal

// Event types published to the message brokers after a successful mutation, they double as RabbitMQ
// routing keys.
const (
	EventTypeCreated = "todos.event.created"
	EventTypeUpdated = "todos.event.updated"
	EventTypeDeleted = "todos.event.deleted"
)
