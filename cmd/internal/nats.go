package internal

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/envvar"
)

// NATS ...
type NATS struct {
	Conn      *nats.Conn
	JetStream jetstream.JetStream
}

// NewNATS connects to NATS and sets up JetStream using configuration defined in environment variables.
func NewNATS(conf *envvar.Configuration) (*NATS, error) {
	url, err := conf.GetOr("NATS_URL", nats.DefaultURL)
	if err != nil {
		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "conf.Get NATS_URL")
	}

	nc, err := nats.Connect(url,
		nats.Name("todos-rest-server"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "nats.Connect")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "jetstream.New")
	}

	return &NATS{
		Conn:      nc,
		JetStream: js,
	}, nil
}

// Close drains the connection.
func (n *NATS) Close() {
	_ = n.Conn.Drain()
}
