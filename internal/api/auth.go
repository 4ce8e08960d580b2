package api

import (
	"net/http"

	"dosepics/internal/models"
	"dosepics/internal/storage"
)

// caller resolves the basic-auth credentials on the request, if any. Absent
// or unverifiable credentials yield an anonymous caller; reads do not care,
// and every mutation guard fails closed on anonymity.
func (h *Handler) caller(r *http.Request) (models.User, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return models.User{}, false
	}
	normalized, err := storage.NormalizeUsername(username)
	if err != nil {
		return models.User{}, false
	}
	user, err := h.Store.VerifyCredentials(r.Context(), normalized, password)
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

// isAdmin reports whether the request carries valid administrator
// credentials.
func (h *Handler) isAdmin(r *http.Request) bool {
	user, ok := h.caller(r)
	return ok && user.Admin
}

// isOwnerOrAdmin reports whether the request is authorized to act on a
// resource owned by owner. An empty owner means the resource is orphaned and
// only an administrator qualifies.
func (h *Handler) isOwnerOrAdmin(r *http.Request, owner string) bool {
	user, ok := h.caller(r)
	if !ok {
		return false
	}
	if user.Admin {
		return true
	}
	return owner != "" && user.Username == owner
}

// canModifyPicture reports whether the request may mutate pic: its current
// owner or an administrator. An ownerless picture belongs to nobody, so only
// an administrator qualifies.
func (h *Handler) canModifyPicture(r *http.Request, pic models.Picture) bool {
	user, ok := h.caller(r)
	if !ok {
		return false
	}
	return user.Admin || pic.OwnedBy(user.Username)
}
