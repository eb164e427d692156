// Package feed implements the websocket client of the todos change feed.
package feed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/todosync"
)

// Feed dials the change feed endpoint, the session is read from the context passed to Subscribe.
type Feed struct {
	url         string
	httpClient  *http.Client
	logger      *zap.Logger
	dialTimeout time.Duration
	buffer      int
}

// NewFeed instantiates the Feed. baseURL is the service address, http and https schemes are converted.
func NewFeed(baseURL string, httpClient *http.Client, logger *zap.Logger) *Feed {
	u := strings.TrimSuffix(baseURL, "/")

	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	return &Feed{
		url:         u + "/todos/changes",
		httpClient:  httpClient,
		logger:      logger,
		dialTimeout: 10 * time.Second,
		buffer:      16,
	}
}

// Subscribe opens a connection, the returned Subscription must be closed.
func (f *Feed) Subscribe(ctx context.Context) (todosync.Subscription, error) {
	session, ok := internal.SessionFromContext(ctx)
	if !ok {
		return nil, internal.NewErrorf(internal.ErrorCodeUnauthorized, "no session")
	}

	dialCtx, cancel := context.WithTimeout(ctx, f.dialTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, f.url, &websocket.DialOptions{
		HTTPClient: f.httpClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + session.Token}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, internal.WrapErrorf(err, internal.ErrorCodeUnauthorized, "websocket.Dial")
		}

		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "websocket.Dial")
	}

	readCtx, stop := context.WithCancel(ctx)

	sub := &Subscription{
		conn:    conn,
		changes: make(chan internal.Change, f.buffer),
		stop:    stop,
		done:    make(chan struct{}),
	}

	go sub.read(readCtx, f.logger)

	return sub, nil
}

// Subscription is a live connection to the change feed.
type Subscription struct {
	conn    *websocket.Conn
	changes chan internal.Change
	stop    context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

type changeEvent struct {
	Type            string    `json:"type"`
	Schema          string    `json:"schema"`
	Table           string    `json:"table"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}

// Changes is closed when the connection ends.
func (s *Subscription) Changes() <-chan internal.Change {
	return s.changes
}

// Close ends the connection and waits for the reader to exit.
func (s *Subscription) Close() error {
	var err error

	s.once.Do(func() {
		err = s.conn.Close(websocket.StatusNormalClosure, "")
		s.stop()
		<-s.done
	})

	if err != nil && !errors.Is(err, net.ErrClosed) && websocket.CloseStatus(err) == -1 {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "conn.Close")
	}

	return nil
}

func (s *Subscription) read(ctx context.Context, logger *zap.Logger) {
	defer close(s.done)
	defer close(s.changes)
	defer s.conn.CloseNow()

	for {
		var evt changeEvent

		if err := wsjson.Read(ctx, s.conn, &evt); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Info("Change feed disconnected", zap.Error(err))
			}

			return
		}

		change := internal.Change{
			Type:      internal.ChangeType(evt.Type),
			Schema:    evt.Schema,
			Table:     evt.Table,
			Timestamp: evt.CommitTimestamp,
		}

		select {
		case s.changes <- change:
		case <-ctx.Done():
			return
		}
	}
}
