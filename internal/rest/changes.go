package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
)

// ChangeSubscriber is the source of change notifications streamed to clients.
type ChangeSubscriber interface {
	Subscribe() (<-chan internal.Change, func())
}

// ChangesHandler streams change notifications over websockets.
type ChangesHandler struct {
	hub          ChangeSubscriber
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewChangesHandler ...
func NewChangesHandler(hub ChangeSubscriber, logger *zap.Logger) *ChangesHandler {
	return &ChangesHandler{
		hub:          hub,
		logger:       logger,
		writeTimeout: 5 * time.Second,
	}
}

// Register connects the handlers to the router.
func (c *ChangesHandler) Register(r chi.Router) {
	r.Get("/todos/changes", c.stream)
}

// ChangeEvent is the message written for every change. It carries no row data, receivers
// refetch their own records.
type ChangeEvent struct {
	Type            string    `json:"type"`
	Schema          string    `json:"schema"`
	Table           string    `json:"table"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}

func (c *ChangesHandler) stream(w http.ResponseWriter, r *http.Request) {
	if _, ok := internal.SessionFromContext(r.Context()); !ok {
		renderErrorResponse(r.Context(), w, "Unauthorized", internal.NewErrorf(internal.ErrorCodeUnauthorized, "no session"))
		return
	}

	// The server timeouts apply to regular requests only.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		c.logger.Info("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	changes, unsubscribe := c.hub.Subscribe()
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}

			if err := c.write(ctx, conn, change); err != nil {
				c.logger.Info("Websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *ChangesHandler) write(ctx context.Context, conn *websocket.Conn, change internal.Change) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, ChangeEvent{
		Type:            string(change.Type),
		Schema:          change.Schema,
		Table:           change.Table,
		CommitTimestamp: change.Timestamp,
	})
}
