package internal

import "time"

// ChangeType is the kind of row level change reported by the change feed.
type ChangeType string

const (
	ChangeTypeInsert ChangeType = "INSERT"
	ChangeTypeUpdate ChangeType = "UPDATE"
	ChangeTypeDelete ChangeType = "DELETE"
)

// Change notifies that a row of the todos table changed. Consumers must treat it as a signal to refetch,
// the fields are informative only.
type Change struct {
	Type      ChangeType
	Schema    string
	Table     string
	ID        string
	UserID    string
	Timestamp time.Time
}
