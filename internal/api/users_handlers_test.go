package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"dosepics/internal/models"
	"dosepics/internal/storage"
)

func TestListUsersEmptyIs404(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/dosepics/users", nil, "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty collection, got %d", rec.Code)
	}
}

func TestListUsersReturnsUsernames(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "pw", true)
	seedUser(t, h, "bob", "pw", false)

	rec := doJSON(t, h, http.MethodGet, "/dosepics/users", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var usernames []string
	decodeBody(t, rec, &usernames)
	if len(usernames) != 2 || usernames[0] != "alice" || usernames[1] != "bob" {
		t.Fatalf("unexpected listing: %v", usernames)
	}
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "bob", "pw", false)
	body := map[string]any{"username": "carol", "pwd": "x"}

	// Anonymous.
	if rec := doJSON(t, h, http.MethodPost, "/dosepics/users", body, "", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous create: expected 403, got %d", rec.Code)
	}
	// Authenticated non-admin.
	if rec := doJSON(t, h, http.MethodPost, "/dosepics/users", body, "bob", "pw"); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin create: expected 403, got %d", rec.Code)
	}
	// Wrong password.
	if rec := doJSON(t, h, http.MethodPost, "/dosepics/users", body, "bob", "bad"); rec.Code != http.StatusForbidden {
		t.Fatalf("bad credentials create: expected 403, got %d", rec.Code)
	}
}

func TestCreateUserDuplicateIs409(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)
	body := map[string]any{"username": "bob", "pwd": "x", "name": "Bob"}

	if rec := doJSON(t, h, http.MethodPost, "/dosepics/users", body, "alice", "adminpw"); rec.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", rec.Code)
	}
	rec := doJSON(t, h, http.MethodPost, "/dosepics/users", body, "alice", "adminpw")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", rec.Code)
	}
	// The original account is untouched.
	var user userResponse
	get := doJSON(t, h, http.MethodGet, "/dosepics/users/bob", nil, "", "")
	decodeBody(t, get, &user)
	if user.Name != "Bob" {
		t.Fatalf("duplicate create overwrote user: %+v", user)
	}
}

func TestCreateUserMissingFieldsIs422(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)

	for _, body := range []map[string]any{
		{"username": "carol"},
		{"pwd": "x"},
		{},
	} {
		rec := doJSON(t, h, http.MethodPost, "/dosepics/users", body, "alice", "adminpw")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %v: expected 422, got %d", body, rec.Code)
		}
	}
}

func TestCreateUserInvalidUsernameIs422(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)

	for _, username := range []string{" ", "has space"} {
		rec := doJSON(t, h, http.MethodPost, "/dosepics/users", map[string]any{"username": username, "pwd": "x"}, "alice", "adminpw")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("username %q: expected 422, got %d", username, rec.Code)
		}
	}
}

// createFailStore simulates a datastore whose writes fail after the admin
// authenticated successfully.
type createFailStore struct {
	storage.Repository
}

func (s createFailStore) CreateUser(ctx context.Context, params storage.CreateUserParams) (models.User, error) {
	return models.User{}, errors.New("disk unavailable")
}

func TestCreateUserPersistFailureIs500(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)
	h.Store = createFailStore{Repository: h.Store}

	rec := doJSON(t, h, http.MethodPost, "/dosepics/users", map[string]any{"username": "carol", "pwd": "x"}, "alice", "adminpw")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for persistence failure, got %d", rec.Code)
	}
}

func TestGetUserNeverExposesPassword(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "secretpw", false)

	rec := doJSON(t, h, http.MethodGet, "/dosepics/users/alice", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]any
	decodeBody(t, rec, &payload)
	for _, key := range []string{"pwd", "password", "passwordHash", "password_hash"} {
		if _, present := payload[key]; present {
			t.Fatalf("response leaks credential field %q: %v", key, payload)
		}
	}
}

func TestPartialPasswordUpdateLeavesOtherFields(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)
	rec := doJSON(t, h, http.MethodPost, "/dosepics/users", map[string]any{
		"username": "bob", "pwd": "old", "name": "Bob",
	}, "alice", "adminpw")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}

	// Owner rotates their own password.
	rec = doJSON(t, h, http.MethodPut, "/dosepics/users/bob/pwd", map[string]any{"pwd": "new"}, "bob", "old")
	if rec.Code != http.StatusOK {
		t.Fatalf("pwd update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var user userResponse
	get := doJSON(t, h, http.MethodGet, "/dosepics/users/bob", nil, "", "")
	decodeBody(t, get, &user)
	if user.Name != "Bob" || user.Admin {
		t.Fatalf("pwd update altered other fields: %+v", user)
	}

	// The old password no longer authorizes, the new one does.
	if rec := doJSON(t, h, http.MethodPut, "/dosepics/users/bob/name", map[string]any{"name": "X"}, "bob", "old"); rec.Code != http.StatusForbidden {
		t.Fatalf("old password: expected 403, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPut, "/dosepics/users/bob/name", map[string]any{"name": "Robert"}, "bob", "new"); rec.Code != http.StatusOK {
		t.Fatalf("new password: expected 200, got %d", rec.Code)
	}
}

func TestUpdateOtherUsersFieldRequiresAdmin(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)
	seedUser(t, h, "bob", "pw", false)
	seedUser(t, h, "carol", "pw", false)

	// A user cannot rename someone else.
	if rec := doJSON(t, h, http.MethodPut, "/dosepics/users/bob/name", map[string]any{"name": "X"}, "carol", "pw"); rec.Code != http.StatusForbidden {
		t.Fatalf("cross-user rename: expected 403, got %d", rec.Code)
	}
	// An admin can.
	if rec := doJSON(t, h, http.MethodPut, "/dosepics/users/bob/name", map[string]any{"name": "X"}, "alice", "adminpw"); rec.Code != http.StatusOK {
		t.Fatalf("admin rename: expected 200, got %d", rec.Code)
	}
}

func TestAdminFlagUpdateIsAdminOnly(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)
	seedUser(t, h, "bob", "pw", false)

	// The owner cannot promote themselves.
	if rec := doJSON(t, h, http.MethodPut, "/dosepics/users/bob/admin", map[string]any{"admin": true}, "bob", "pw"); rec.Code != http.StatusForbidden {
		t.Fatalf("self-promotion: expected 403, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPut, "/dosepics/users/bob/admin", map[string]any{"admin": true}, "alice", "adminpw"); rec.Code != http.StatusOK {
		t.Fatalf("admin promotion: expected 200, got %d", rec.Code)
	}

	var user userResponse
	get := doJSON(t, h, http.MethodGet, "/dosepics/users/bob", nil, "", "")
	decodeBody(t, get, &user)
	if !user.Admin {
		t.Fatalf("admin flag not set: %+v", user)
	}
}

func TestFullUserUpdateRequiresAllFields(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)
	seedUser(t, h, "bob", "pw", false)

	rec := doJSON(t, h, http.MethodPut, "/dosepics/users/bob", map[string]any{"name": "Bob"}, "alice", "adminpw")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("partial body on full update: expected 422, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPut, "/dosepics/users/bob", map[string]any{
		"name": "Robert", "pwd": "newpw", "admin": true,
	}, "alice", "adminpw")
	if rec.Code != http.StatusOK {
		t.Fatalf("full update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var user userResponse
	decodeBody(t, rec, &user)
	if user.Name != "Robert" || !user.Admin {
		t.Fatalf("full update not applied: %+v", user)
	}
}

func TestFullUserUpdateUnknownUserIs404(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)
	rec := doJSON(t, h, http.MethodPut, "/dosepics/users/ghost", map[string]any{
		"name": "G", "pwd": "x", "admin": false,
	}, "alice", "adminpw")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteUser(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "alice", "adminpw", true)
	seedUser(t, h, "bob", "pw", false)

	// Deletion is admin-only.
	if rec := doJSON(t, h, http.MethodDelete, "/dosepics/users/bob", nil, "bob", "pw"); rec.Code != http.StatusForbidden {
		t.Fatalf("self-delete: expected 403, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodDelete, "/dosepics/users/bob", nil, "alice", "adminpw"); rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete: expected 204, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/dosepics/users/bob", nil, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodDelete, "/dosepics/users/bob", nil, "alice", "adminpw"); rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing: expected 404, got %d", rec.Code)
	}
}

func TestListUserPics(t *testing.T) {
	h := newTestHandler(t)
	seedUser(t, h, "bob", "pw", false)

	rec := doJSON(t, h, http.MethodGet, "/dosepics/users/bob/pics", nil, "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no pics: expected 404, got %d", rec.Code)
	}

	id := uploadPicture(t, h, "bob", "pw", testJPEG(t, 64, 48), 1)
	rec = doJSON(t, h, http.MethodGet, "/dosepics/users/bob/pics", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ids []int64
	decodeBody(t, rec, &ids)
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected pic ids: %v", ids)
	}
}
