package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dosepics/internal/imaging"
	"dosepics/internal/storage"
	"dosepics/internal/upload"
)

const uploadCookieName = "dosepics_upload"

type uploadRequest struct {
	Chunks *int    `json:"chunks"`
	Owner  *string `json:"owner"`
	Info   *string `json:"info"`
	Image  *string `json:"image"`
}

type uploadProgressResponse struct {
	ChunksReceived int `json:"chunksReceived"`
	ChunksTotal    int `json:"chunksTotal"`
}

// createPic drives the chunked upload protocol. A request declaring a chunk
// count opens a session and carries the first chunk; every following request
// carries exactly one more chunk, correlated by the session cookie. The
// request that delivers the final chunk produces the picture.
func (h *Handler) createPic(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Chunks != nil {
		h.startUpload(w, r, req)
		return
	}
	h.continueUpload(w, r, req)
}

func (h *Handler) startUpload(w http.ResponseWriter, r *http.Request, req uploadRequest) {
	if req.Owner == nil {
		writeError(w, http.StatusUnprocessableEntity, errors.New("owner is required"))
		return
	}
	owner, err := storage.NormalizeUsername(*req.Owner)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	// Ownership of the picture-to-be is asserted by the caller: the session
	// only opens for the declared owner themselves or an administrator.
	if !h.isOwnerOrAdmin(r, owner) {
		writeError(w, http.StatusForbidden, errors.New("not authorized to upload for this owner"))
		return
	}

	chunk, err := decodeChunk(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// A redeclaration while a session is live abandons the old session.
	if cookie, cookieErr := r.Cookie(uploadCookieName); cookieErr == nil {
		if err := h.Uploads.Abort(r.Context(), cookie.Value); err != nil {
			h.logger().Warn("abort stale upload session failed", "error", err)
		}
	}

	session, err := h.Uploads.Begin(r.Context(), upload.BeginParams{
		Owner:       owner,
		Info:        req.Info,
		TotalChunks: *req.Chunks,
		FirstChunk:  chunk,
	})
	if errors.Is(err, upload.ErrEmptyChunk) {
		writeError(w, http.StatusBadRequest, errors.New("image data is required"))
		return
	} else if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if session.Complete() {
		h.finishUpload(w, r, session)
		return
	}

	setUploadCookie(w, session.Token)
	writeJSON(w, http.StatusOK, uploadProgressResponse{
		ChunksReceived: len(session.Chunks),
		ChunksTotal:    session.TotalChunks,
	})
}

func (h *Handler) continueUpload(w http.ResponseWriter, r *http.Request, req uploadRequest) {
	cookie, err := r.Cookie(uploadCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errors.New("no active upload session"))
		return
	}

	if req.Image == nil || *req.Image == "" {
		// The session stays untouched so the chunk can be resent.
		writeError(w, http.StatusBadRequest, errors.New("image data is required"))
		return
	}
	chunk, err := decodeChunk(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.Uploads.Append(r.Context(), cookie.Value, chunk)
	if errors.Is(err, upload.ErrNoSession) {
		writeError(w, http.StatusUnauthorized, errors.New("no active upload session"))
		return
	} else if errors.Is(err, upload.ErrEmptyChunk) {
		writeError(w, http.StatusBadRequest, errors.New("image data is required"))
		return
	} else if err != nil {
		h.logger().Error("append chunk failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to record chunk"))
		return
	}

	if session.Complete() {
		clearUploadCookie(w)
		h.finishUpload(w, r, session)
		return
	}

	writeJSON(w, http.StatusOK, uploadProgressResponse{
		ChunksReceived: len(session.Chunks),
		ChunksTotal:    session.TotalChunks,
	})
}

// finishUpload runs once per session: by the time it is called the session
// has already been destroyed, so a failure below loses the uploaded bytes
// rather than leaving a half-alive session behind.
func (h *Handler) finishUpload(w http.ResponseWriter, r *http.Request, session upload.Session) {
	data := session.Bytes()

	thumb, err := h.Resizer.ResizeToWidth(data, imaging.ThumbWidth)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid image data: %w", err))
		return
	}

	filename := "img-" + uuid.NewString() + ".jpg"

	g, _ := errgroup.WithContext(r.Context())
	g.Go(func() error { return h.Files.SaveImage(filename, data) })
	g.Go(func() error { return h.Files.SaveThumb(filename, thumb) })
	if err := g.Wait(); err != nil {
		_ = h.Files.Remove(filename)
		h.logger().Error("persist image failed", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to store image"))
		return
	}

	pic, err := h.Store.CreatePicture(r.Context(), storage.CreatePictureParams{
		Owner:    session.Owner,
		Info:     session.Info,
		Filename: filename,
	})
	if err != nil {
		_ = h.Files.Remove(filename)
		h.logger().Error("create picture failed", "owner", session.Owner, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to create picture"))
		return
	}

	h.logger().Info("picture created", "id", pic.ID, "owner", session.Owner, "chunks", session.TotalChunks)
	w.Header().Set("Location", fmt.Sprintf("%s/pics/%d", mountPrefix(r.URL.Path), pic.ID))
	writeJSON(w, http.StatusCreated, newPicResponse(pic))
}

func decodeChunk(req uploadRequest) ([]byte, error) {
	if req.Image == nil || *req.Image == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(*req.Image)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return data, nil
}

func setUploadCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     uploadCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int((30 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearUploadCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     uploadCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
