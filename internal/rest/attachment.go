package rest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sanLimbu/todo-sync/internal"
)

// MaxUploadSize is the largest accepted attachment.
const MaxUploadSize = 5 << 20

// AttachmentService ...
type AttachmentService interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// AttachmentHandler ...
type AttachmentHandler struct {
	svc AttachmentService
}

// NewAttachmentHandler ...
func NewAttachmentHandler(svc AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{
		svc: svc,
	}
}

// Register connects the handlers to the router.
func (a *AttachmentHandler) Register(r chi.Router) {
	r.Post("/attachments", a.upload)
	r.Get("/attachments/*", a.download)
}

// UploadAttachmentResponse defines the response returned back after uploading an image.
type UploadAttachmentResponse struct {
	URL string `json:"url"`
}

func (a *AttachmentHandler) upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := internal.SessionFromContext(r.Context()); !ok {
		renderErrorResponse(r.Context(), w, "Unauthorized", internal.NewErrorf(internal.ErrorCodeUnauthorized, "no session"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+(1<<20))

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			renderErrorResponse(r.Context(), w, "file too large",
				internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "r.FormFile"))
			return
		}

		renderErrorResponse(r.Context(), w, "invalid request",
			internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "r.FormFile"))
		return
	}
	defer file.Close()

	if header.Size > MaxUploadSize {
		renderErrorResponse(r.Context(), w, "file too large",
			internal.NewErrorf(internal.ErrorCodeInvalidArgument, "file exceeds %d bytes", MaxUploadSize))
		return
	}

	br := bufio.NewReaderSize(file, 512)

	sniff, _ := br.Peek(512)

	url, err := a.svc.Upload(r.Context(), header.Filename, http.DetectContentType(sniff), br)
	if err != nil {
		renderErrorResponse(r.Context(), w, "upload failed", err)
		return
	}

	renderResponse(w, &UploadAttachmentResponse{URL: url}, http.StatusCreated)
}

func (a *AttachmentHandler) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	rc, contentType, err := a.svc.Open(r.Context(), name)
	if err != nil {
		renderErrorResponse(r.Context(), w, "find failed", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)

	_, _ = io.Copy(w, rc)
}
