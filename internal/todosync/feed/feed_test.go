package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/todosync/feed"
)

func withToken(token string) context.Context {
	return internal.WithSession(context.Background(), internal.Session{UserID: "u1", Token: token})
}

func newFeedServer(t *testing.T, fn func(ctx context.Context, conn *websocket.Conn)) *feed.Feed {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/todos/changes" {
			http.NotFound(w, r)
			return
		}

		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		fn(conn.CloseRead(r.Context()), conn)
	}))
	t.Cleanup(srv.Close)

	return feed.NewFeed(srv.URL, srv.Client(), zap.NewNop())
}

func receive(t *testing.T, ch <-chan internal.Change) (internal.Change, bool) {
	t.Helper()

	select {
	case change, ok := <-ch:
		return change, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}

	return internal.Change{}, false
}

func TestFeed_Subscribe(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	f := newFeedServer(t, func(ctx context.Context, conn *websocket.Conn) {
		for _, typ := range []string{"INSERT", "DELETE"} {
			_ = wsjson.Write(ctx, conn, map[string]interface{}{
				"type":             typ,
				"schema":           "public",
				"table":            "todos",
				"commit_timestamp": ts,
			})
		}

		<-ctx.Done()
	})

	sub, err := f.Subscribe(withToken("token-1"))
	require.NoError(t, err)

	change, ok := receive(t, sub.Changes())
	require.True(t, ok)
	assert.Equal(t, internal.Change{Type: internal.ChangeTypeInsert, Schema: "public", Table: "todos", Timestamp: ts}, change)

	change, ok = receive(t, sub.Changes())
	require.True(t, ok)
	assert.Equal(t, internal.ChangeTypeDelete, change.Type)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok = receive(t, sub.Changes())
	assert.False(t, ok)
}

func TestFeed_ServerGoingAway(t *testing.T) {
	t.Parallel()

	f := newFeedServer(t, func(_ context.Context, conn *websocket.Conn) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	})

	sub, err := f.Subscribe(withToken("token-1"))
	require.NoError(t, err)
	defer sub.Close()

	_, ok := receive(t, sub.Changes())
	assert.False(t, ok)
}

func TestFeed_Unauthorized(t *testing.T) {
	t.Parallel()

	f := newFeedServer(t, func(context.Context, *websocket.Conn) {})

	_, err := f.Subscribe(withToken("expired"))
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))

	_, err = f.Subscribe(context.Background())
	assert.Equal(t, internal.ErrorCodeUnauthorized, internal.ErrorCodeOf(err))
}
