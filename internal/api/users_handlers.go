package api

import (
	"errors"
	"fmt"
	"net/http"

	"dosepics/internal/storage"
)

type userResponse struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Admin    bool   `json:"admin"`
}

type createUserRequest struct {
	Username *string `json:"username"`
	Pwd      *string `json:"pwd"`
	Name     *string `json:"name"`
	Admin    *bool   `json:"admin"`
}

type updateUserRequest struct {
	Name  *string `json:"name"`
	Pwd   *string `json:"pwd"`
	Admin *bool   `json:"admin"`
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request, segments []string) {
	switch len(segments) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.listUsers(w, r)
		case http.MethodPost:
			h.createUser(w, r)
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported operation on users"))
		}
	case 1:
		username := segments[0]
		switch r.Method {
		case http.MethodGet:
			h.getUser(w, r, username)
		case http.MethodPut:
			h.replaceUser(w, r, username)
		case http.MethodDelete:
			h.deleteUser(w, r, username)
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported operation on user"))
		}
	case 2:
		username, field := segments[0], segments[1]
		switch {
		case r.Method == http.MethodGet && field == "pics":
			h.listUserPics(w, r, username)
		case r.Method == http.MethodPut && (field == "name" || field == "pwd" || field == "admin"):
			h.updateUserField(w, r, username, field)
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported operation on user field %q", field))
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("path too deep"))
	}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.logger().Error("list users failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to list users"))
		return
	}
	if len(users) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no users"))
		return
	}
	usernames := make([]string, 0, len(users))
	for _, user := range users {
		usernames = append(usernames, user.Username)
	}
	writeJSON(w, http.StatusOK, usernames)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request, username string) {
	user, err := h.Store.GetUser(r.Context(), username)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", username))
		return
	} else if err != nil {
		h.logger().Error("get user failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load user"))
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Username: user.Username, Name: user.Name, Admin: user.Admin})
}

func (h *Handler) listUserPics(w http.ResponseWriter, r *http.Request, username string) {
	pics, err := h.Store.ListPicturesByOwner(r.Context(), username)
	if err != nil {
		h.logger().Error("list user pics failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to list pictures"))
		return
	}
	if len(pics) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("no pictures owned by %s", username))
		return
	}
	ids := make([]int64, 0, len(pics))
	for _, pic := range pics {
		ids = append(ids, pic.ID)
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, errors.New("administrator credentials required"))
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Username == nil || req.Pwd == nil {
		writeError(w, http.StatusUnprocessableEntity, errors.New("username and pwd are required"))
		return
	}

	params := storage.CreateUserParams{Username: *req.Username, Password: *req.Pwd}
	if req.Name != nil {
		params.Name = *req.Name
	}
	if req.Admin != nil {
		params.Admin = *req.Admin
	}

	user, err := h.Store.CreateUser(r.Context(), params)
	if errors.Is(err, storage.ErrConflict) {
		writeError(w, http.StatusConflict, fmt.Errorf("user %s already exists", *req.Username))
		return
	} else if errors.Is(err, storage.ErrInvalidInput) {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	} else if err != nil {
		h.logger().Error("create user failed", "username", *req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to create user"))
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/users/%s", mountPrefix(r.URL.Path), user.Username))
	writeJSON(w, http.StatusCreated, userResponse{Username: user.Username, Name: user.Name, Admin: user.Admin})
}

// replaceUser is the admin-only full update: every mutable field must be
// supplied.
func (h *Handler) replaceUser(w http.ResponseWriter, r *http.Request, username string) {
	if _, err := h.Store.GetUser(r.Context(), username); errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", username))
		return
	} else if err != nil {
		h.logger().Error("get user failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load user"))
		return
	}
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, errors.New("administrator credentials required"))
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == nil || req.Pwd == nil || req.Admin == nil {
		writeError(w, http.StatusUnprocessableEntity, errors.New("name, pwd and admin are required"))
		return
	}

	h.applyUserUpdate(w, r, username, storage.UserUpdate{Name: req.Name, Password: req.Pwd, Admin: req.Admin})
}

func (h *Handler) updateUserField(w http.ResponseWriter, r *http.Request, username, field string) {
	if _, err := h.Store.GetUser(r.Context(), username); errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", username))
		return
	} else if err != nil {
		h.logger().Error("get user failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load user"))
		return
	}

	// The admin flag can only be granted or revoked by an administrator;
	// name and password may also be changed by the account itself.
	if field == "admin" {
		if !h.isAdmin(r) {
			writeError(w, http.StatusForbidden, errors.New("administrator credentials required"))
			return
		}
	} else if !h.isOwnerOrAdmin(r, username) {
		writeError(w, http.StatusForbidden, errors.New("not authorized for this account"))
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var update storage.UserUpdate
	switch field {
	case "name":
		if req.Name == nil {
			writeError(w, http.StatusUnprocessableEntity, errors.New("name is required"))
			return
		}
		update.Name = req.Name
	case "pwd":
		if req.Pwd == nil || *req.Pwd == "" {
			writeError(w, http.StatusUnprocessableEntity, errors.New("pwd is required"))
			return
		}
		update.Password = req.Pwd
	case "admin":
		if req.Admin == nil {
			writeError(w, http.StatusUnprocessableEntity, errors.New("admin is required"))
			return
		}
		update.Admin = req.Admin
	}

	h.applyUserUpdate(w, r, username, update)
}

func (h *Handler) applyUserUpdate(w http.ResponseWriter, r *http.Request, username string, update storage.UserUpdate) {
	user, err := h.Store.UpdateUser(r.Context(), username, update)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", username))
		return
	} else if errors.Is(err, storage.ErrInvalidInput) {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	} else if err != nil {
		h.logger().Error("update user failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to update user"))
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Username: user.Username, Name: user.Name, Admin: user.Admin})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request, username string) {
	if _, err := h.Store.GetUser(r.Context(), username); errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", username))
		return
	} else if err != nil {
		h.logger().Error("get user failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load user"))
		return
	}
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, errors.New("administrator credentials required"))
		return
	}

	if err := h.Store.DeleteUser(r.Context(), username); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", username))
			return
		}
		h.logger().Error("delete user failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to delete user"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
