package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/secure/precis"

	"dosepics/internal/models"
)

var (
	// ErrNotFound reports that the addressed user or picture does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict reports a uniqueness violation, e.g. a duplicate username.
	ErrConflict = errors.New("resource already exists")
	// ErrInvalidCredentials reports a failed password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput marks validation failures the caller can correct, as
	// opposed to persistence failures inside the store.
	ErrInvalidInput = errors.New("invalid input")
)

// CreateUserParams captures the attributes that can be set when creating a
// user account.
type CreateUserParams struct {
	Username string
	Name     string
	Password string
	Admin    bool
}

// UserUpdate represents the fields that can be modified for an existing user.
// Nil pointers leave the corresponding field untouched.
type UserUpdate struct {
	Name     *string
	Password *string
	Admin    *bool
}

// CreatePictureParams captures the attributes of a newly uploaded picture.
// The numeric identifier is assigned by the store.
type CreatePictureParams struct {
	Owner    string
	Info     *string
	Filename string
}

// PictureUpdate represents the mutable metadata of a picture. Nil pointers
// leave the corresponding field untouched.
type PictureUpdate struct {
	Owner *string
	Info  *string
}

// Repository exposes the datastore operations required by the API handlers
// and the bootstrap tooling.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, username string) (models.User, error)
	UpdateUser(ctx context.Context, username string, update UserUpdate) (models.User, error)
	DeleteUser(ctx context.Context, username string) error
	VerifyCredentials(ctx context.Context, username, password string) (models.User, error)

	CreatePicture(ctx context.Context, params CreatePictureParams) (models.Picture, error)
	ListPictures(ctx context.Context) ([]models.Picture, error)
	ListPicturesByOwner(ctx context.Context, owner string) ([]models.Picture, error)
	GetPicture(ctx context.Context, id int64) (models.Picture, error)
	UpdatePicture(ctx context.Context, id int64, update PictureUpdate) (models.Picture, error)
	DeletePicture(ctx context.Context, id int64) (models.Picture, error)
}

var usernameProfile = precis.UsernameCaseMapped

// NormalizeUsername canonicalises a username with the PRECIS UsernameCaseMapped
// profile so lookups are stable regardless of case or Unicode form.
func NormalizeUsername(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("username is required: %w", ErrInvalidInput)
	}
	normalized, err := usernameProfile.String(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid username %q: %w", raw, ErrInvalidInput)
	}
	return normalized, nil
}
