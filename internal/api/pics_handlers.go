package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"dosepics/internal/imaging"
	"dosepics/internal/models"
	"dosepics/internal/storage"
)

type picResponse struct {
	ID    int64   `json:"id"`
	Owner *string `json:"owner"`
	Info  *string `json:"info"`
}

type updatePicRequest struct {
	Image *string `json:"image"`
	Info  *string `json:"info"`
	Owner *string `json:"owner"`
}

func newPicResponse(pic models.Picture) picResponse {
	return picResponse{ID: pic.ID, Owner: pic.Owner, Info: pic.Info}
}

func (h *Handler) handlePics(w http.ResponseWriter, r *http.Request, segments []string) {
	switch len(segments) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.listPics(w, r)
		case http.MethodPost:
			h.createPic(w, r)
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported operation on pics"))
		}
	case 1, 2:
		id, err := strconv.ParseInt(segments[0], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid picture id %q", segments[0]))
			return
		}
		if len(segments) == 1 {
			switch r.Method {
			case http.MethodGet:
				h.getPic(w, r, id)
			case http.MethodDelete:
				h.deletePic(w, r, id)
			default:
				writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported operation on picture"))
			}
			return
		}
		field := segments[1]
		switch {
		case r.Method == http.MethodGet && (field == "pic" || field == "thumb" || field == "swipe"):
			h.servePicImage(w, r, id, field)
		case r.Method == http.MethodPut && (field == "pic" || field == "info" || field == "owner"):
			h.updatePicField(w, r, id, field)
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported operation on picture field %q", field))
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("path too deep"))
	}
}

func (h *Handler) listPics(w http.ResponseWriter, r *http.Request) {
	pics, err := h.Store.ListPictures(r.Context())
	if err != nil {
		h.logger().Error("list pics failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to list pictures"))
		return
	}
	if len(pics) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no pictures"))
		return
	}
	ids := make([]int64, 0, len(pics))
	for _, pic := range pics {
		ids = append(ids, pic.ID)
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) getPic(w http.ResponseWriter, r *http.Request, id int64) {
	pic, err := h.Store.GetPicture(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("picture %d not found", id))
		return
	} else if err != nil {
		h.logger().Error("get pic failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load picture"))
		return
	}
	writeJSON(w, http.StatusOK, newPicResponse(pic))
}

// servePicImage streams the stored original, the persisted thumbnail, or a
// swipe-size rendition computed on demand from the original bytes.
func (h *Handler) servePicImage(w http.ResponseWriter, r *http.Request, id int64, rendition string) {
	pic, err := h.Store.GetPicture(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("picture %d not found", id))
		return
	} else if err != nil {
		h.logger().Error("get pic failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load picture"))
		return
	}

	var data []byte
	switch rendition {
	case "thumb":
		data, err = h.Files.ReadThumb(pic.Filename)
	default:
		data, err = h.Files.ReadImage(pic.Filename)
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("image for picture %d not found", id))
		return
	} else if err != nil {
		h.logger().Error("read image failed", "id", id, "rendition", rendition, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to read image"))
		return
	}

	if rendition == "swipe" {
		data, err = h.Resizer.ResizeToWidth(data, imaging.SwipeWidth)
		if err != nil {
			h.logger().Error("swipe resize failed", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("unable to render image"))
			return
		}
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) updatePicField(w http.ResponseWriter, r *http.Request, id int64, field string) {
	pic, err := h.Store.GetPicture(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("picture %d not found", id))
		return
	} else if err != nil {
		h.logger().Error("get pic failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load picture"))
		return
	}

	// Reassigning ownership is an administrative action; the image bytes and
	// the caption can be changed by the current owner too. A picture whose
	// owner is gone is only mutable by an administrator.
	if field == "owner" {
		if !h.isAdmin(r) {
			writeError(w, http.StatusForbidden, errors.New("administrator credentials required"))
			return
		}
	} else if !h.canModifyPicture(r, pic) {
		writeError(w, http.StatusForbidden, errors.New("not authorized for this picture"))
		return
	}

	var req updatePicRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch field {
	case "pic":
		h.replacePicImage(w, r, pic, req)
	case "info":
		if req.Info == nil {
			writeError(w, http.StatusUnprocessableEntity, errors.New("info is required"))
			return
		}
		h.applyPicUpdate(w, r, id, storage.PictureUpdate{Info: req.Info})
	case "owner":
		if req.Owner == nil {
			writeError(w, http.StatusUnprocessableEntity, errors.New("owner is required"))
			return
		}
		normalized, err := storage.NormalizeUsername(*req.Owner)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		h.applyPicUpdate(w, r, id, storage.PictureUpdate{Owner: &normalized})
	}
}

// replacePicImage swaps the stored bytes under the picture's existing
// filename and regenerates the thumbnail. The filename never changes after
// creation.
func (h *Handler) replacePicImage(w http.ResponseWriter, r *http.Request, pic models.Picture, req updatePicRequest) {
	if req.Image == nil || *req.Image == "" {
		writeError(w, http.StatusUnprocessableEntity, errors.New("image is required"))
		return
	}
	data, err := base64.StdEncoding.DecodeString(*req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode image: %w", err))
		return
	}
	thumb, err := h.Resizer.ResizeToWidth(data, imaging.ThumbWidth)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid image data: %w", err))
		return
	}
	if err := h.Files.SaveImage(pic.Filename, data); err != nil {
		h.logger().Error("save image failed", "id", pic.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to store image"))
		return
	}
	if err := h.Files.SaveThumb(pic.Filename, thumb); err != nil {
		h.logger().Error("save thumb failed", "id", pic.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to store image"))
		return
	}
	writeJSON(w, http.StatusOK, newPicResponse(pic))
}

func (h *Handler) applyPicUpdate(w http.ResponseWriter, r *http.Request, id int64, update storage.PictureUpdate) {
	pic, err := h.Store.UpdatePicture(r.Context(), id, update)
	if errors.Is(err, storage.ErrNotFound) {
		if update.Owner != nil {
			writeError(w, http.StatusUnprocessableEntity, errors.New("owner does not exist"))
			return
		}
		writeError(w, http.StatusNotFound, fmt.Errorf("picture %d not found", id))
		return
	} else if err != nil {
		h.logger().Error("update pic failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to update picture"))
		return
	}
	writeJSON(w, http.StatusOK, newPicResponse(pic))
}

func (h *Handler) deletePic(w http.ResponseWriter, r *http.Request, id int64) {
	pic, err := h.Store.GetPicture(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("picture %d not found", id))
		return
	} else if err != nil {
		h.logger().Error("get pic failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load picture"))
		return
	}

	if !h.canModifyPicture(r, pic) {
		writeError(w, http.StatusForbidden, errors.New("not authorized for this picture"))
		return
	}

	removed, err := h.Store.DeletePicture(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("picture %d not found", id))
		return
	} else if err != nil {
		h.logger().Error("delete pic failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to delete picture"))
		return
	}
	if err := h.Files.Remove(removed.Filename); err != nil {
		h.logger().Warn("remove image files failed", "id", id, "filename", removed.Filename, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
