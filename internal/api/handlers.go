package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"dosepics/internal/imaging"
	"dosepics/internal/storage"
	"dosepics/internal/upload"
)

// ImageFiles is the file storage surface the handlers need: original bytes
// and thumbnails, addressed by the picture's server-generated filename.
type ImageFiles interface {
	SaveImage(name string, data []byte) error
	SaveThumb(name string, data []byte) error
	ReadImage(name string) ([]byte, error)
	ReadThumb(name string) ([]byte, error)
	Remove(name string) error
}

type Handler struct {
	Store   storage.Repository
	Files   ImageFiles
	Uploads *upload.Manager
	Resizer imaging.Resizer
	Logger  *slog.Logger
}

func NewHandler(store storage.Repository, files ImageFiles, uploads *upload.Manager) *Handler {
	if uploads == nil {
		uploads = upload.NewManager()
	}
	return &Handler{
		Store:   store,
		Files:   files,
		Uploads: uploads,
		Resizer: imaging.JPEGResizer{},
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// ServeHTTP dispatches a request to the matching resource handler. Methods
// outside the supported verb set are rejected outright; a supported verb on a
// path shape that matches no route is a bad request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	segments := resourcePath(r.URL.Path)
	if len(segments) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("no resource addressed"))
		return
	}
	switch segments[0] {
	case "users":
		h.handleUsers(w, r, segments[1:])
	case "pics":
		h.handlePics(w, r, segments[1:])
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown resource type %q", segments[0]))
	}
}
