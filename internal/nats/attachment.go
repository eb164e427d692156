// Package nats stores todo attachments in a NATS JetStream object store bucket.
package nats

import (
	"context"
	"errors"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sanLimbu/todo-sync/internal"
)

const otelName = "github.com/sanLimbu/todo-sync/internal/nats"

// BucketName is the default object store bucket.
const BucketName = "todo-attachments"

// Attachment represents the repository used for storing uploaded images.
type Attachment struct {
	store jetstream.ObjectStore
}

// NewAttachment returns the Attachment repository backed by bucket, the bucket is created when missing.
func NewAttachment(ctx context.Context, js jetstream.JetStream, bucket string) (*Attachment, error) {
	store, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketNotFound) {
			return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "js.ObjectStore")
		}

		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "Todo image attachments",
		})
		if err != nil {
			return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "js.CreateObjectStore")
		}
	}

	return &Attachment{
		store: store,
	}, nil
}

// Put stores the content of r under name.
func (a *Attachment) Put(ctx context.Context, name, contentType string, r io.Reader) error {
	ctx, span := newOTELSpan(ctx, "Attachment.Put", name)
	defer span.End()

	meta := jetstream.ObjectMeta{
		Name: name,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}

	if _, err := a.store.Put(ctx, meta, r); err != nil {
		return internal.WrapErrorf(err, internal.ErrorCodeUnknown, "store.Put")
	}

	return nil
}

// Get returns the object stored under name and its content type, the caller must close the reader.
func (a *Attachment) Get(ctx context.Context, name string) (io.ReadCloser, string, error) {
	ctx, span := newOTELSpan(ctx, "Attachment.Get", name)
	defer span.End()

	res, err := a.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, "", internal.WrapErrorf(err, internal.ErrorCodeNotFound, "attachment not found")
		}

		return nil, "", internal.WrapErrorf(err, internal.ErrorCodeUnknown, "store.Get")
	}

	info, err := res.Info()
	if err != nil {
		_ = res.Close()
		return nil, "", internal.WrapErrorf(err, internal.ErrorCodeUnknown, "res.Info")
	}

	contentType := "application/octet-stream"
	if info.Headers != nil {
		if ct := info.Headers.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	}

	return res, contentType, nil
}

func newOTELSpan(ctx context.Context, name, object string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(otelName).Start(ctx, name)

	span.SetAttributes(
		attribute.KeyValue{
			Key:   semconv.MessagingSystemKey,
			Value: attribute.StringValue("nats"),
		},
		attribute.String("nats.object", object),
	)

	return ctx, span
}
