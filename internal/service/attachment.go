package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
	"go.opentelemetry.io/otel/trace"

	"github.com/sanLimbu/todo-sync/internal"
)

// AttachmentPrefix is the directory every uploaded image is stored under.
const AttachmentPrefix = "todo-images/"

// AttachmentStore defines the object storage holding uploaded images.
type AttachmentStore interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) error
	Get(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// Attachment defines the application service in charge of image uploads.
type Attachment struct {
	store     AttachmentStore
	publicURL string
	newToken  func() string
}

// NewAttachment instantiates the Attachment service, publicURL is the base URL attachments are served
// from.
func NewAttachment(store AttachmentStore, publicURL string) (*Attachment, error) {
	gen, err := nanoid.Standard(21)
	if err != nil {
		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "nanoid.Standard")
	}

	return &Attachment{
		store:     store,
		publicURL: strings.TrimRight(publicURL, "/"),
		newToken:  gen,
	}, nil
}

// Upload stores an image under a random name keeping the original extension, and returns its public
// URL. Nothing is returned when storing fails.
func (a *Attachment) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Attachment.Upload")
	defer span.End()

	if _, err := sessionFrom(ctx); err != nil {
		return "", err
	}

	if !strings.HasPrefix(contentType, "image/") {
		return "", internal.NewErrorf(internal.ErrorCodeInvalidArgument, "only images can be attached")
	}

	name := AttachmentPrefix + a.newToken() + strings.ToLower(path.Ext(filename))

	if err := a.store.Put(ctx, name, contentType, r); err != nil {
		return "", fmt.Errorf("store put: %w", err)
	}

	return a.URL(name), nil
}

// Open returns the stored image, the caller must close the reader.
func (a *Attachment) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	ctx, span := trace.SpanFromContext(ctx).Tracer().Start(ctx, "Attachment.Open")
	defer span.End()

	if !strings.HasPrefix(name, AttachmentPrefix) || strings.Contains(name, "..") {
		return nil, "", internal.NewErrorf(internal.ErrorCodeNotFound, "attachment not found")
	}

	rc, contentType, err := a.store.Get(ctx, name)
	if err != nil {
		return nil, "", fmt.Errorf("store get: %w", err)
	}

	return rc, contentType, nil
}

// URL returns the public URL of name.
func (a *Attachment) URL(name string) string {
	return a.publicURL + "/attachments/" + name
}
