package postgresql

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
)

// ChangesChannel is the channel the todos trigger notifies on.
const ChangesChannel = "todos_changes"

// ChangeListener receives the row level notifications emitted by the todos trigger.
type ChangeListener struct {
	pool    *pgxpool.Pool
	channel string
	logger  *zap.Logger
}

type notification struct {
	Type            string    `json:"type"`
	Schema          string    `json:"schema"`
	Table           string    `json:"table"`
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}

// NewChangeListener instantiates the ChangeListener.
func NewChangeListener(pool *pgxpool.Pool, logger *zap.Logger) *ChangeListener {
	return &ChangeListener{
		pool:    pool,
		channel: ChangesChannel,
		logger:  logger,
	}
}

// Listen blocks calling fn for every notification until ctx is done. A dedicated connection is held for
// the duration of the call.
func (l *ChangeListener) Listen(ctx context.Context, fn func(internal.Change)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "pool.Acquire")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "conn.Exec LISTEN")
	}

	defer func() {
		ctxTimeout, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_, _ = conn.Exec(ctxTimeout, "UNLISTEN *")
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "conn.WaitForNotification")
		}

		change, err := decodeNotification(n.Payload)
		if err != nil {
			l.logger.Info("Ignoring notification, invalid", zap.Error(err))
			continue
		}

		fn(change)
	}
}

func decodeNotification(payload string) (internal.Change, error) {
	var n notification

	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return internal.Change{}, internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "json.Unmarshal")
	}

	return internal.Change{
		Type:      internal.ChangeType(n.Type),
		Schema:    n.Schema,
		Table:     n.Table,
		ID:        n.ID,
		UserID:    n.UserID,
		Timestamp: n.CommitTimestamp,
	}, nil
}
