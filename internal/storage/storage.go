package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dosepics/internal/models"
)

type dataset struct {
	Users     map[string]models.User   `json:"users"`
	Pics      map[int64]models.Picture `json:"pics"`
	NextPicID int64                    `json:"nextPicId"`
}

func newDataset() dataset {
	return dataset{
		Users:     make(map[string]models.User),
		Pics:      make(map[int64]models.Picture),
		NextPicID: 1,
	}
}

// Storage is the JSON-file-backed Repository. All mutations are serialised
// under a single mutex and persisted atomically via a temp-file rename, so a
// multi-field update is applied in full or not at all.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{filePath: path}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Pics == nil {
		s.data.Pics = make(map[int64]models.Picture)
	}
	if s.data.NextPicID < 1 {
		next := int64(1)
		for id := range s.data.Pics {
			if id >= next {
				next = id + 1
			}
		}
		s.data.NextPicID = next
	}

	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()
	clone.NextPicID = src.NextPicID
	for username, user := range src.Users {
		clone.Users[username] = user
	}
	for id, pic := range src.Pics {
		cloned := pic
		if pic.Owner != nil {
			owner := *pic.Owner
			cloned.Owner = &owner
		}
		if pic.Info != nil {
			info := *pic.Info
			cloned.Info = &info
		}
		clone.Pics[id] = cloned
	}
	return clone
}

func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Storage) Close(ctx context.Context) error {
	return nil
}

// User operations

func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	username, err := NormalizeUsername(params.Username)
	if err != nil {
		return models.User{}, err
	}
	if params.Password == "" {
		return models.User{}, fmt.Errorf("password is required: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.Users[username]; exists {
		return models.User{}, fmt.Errorf("user %s: %w", username, ErrConflict)
	}

	passwordHash, err := HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		Name:         strings.TrimSpace(params.Name),
		PasswordHash: passwordHash,
		Admin:        params.Admin,
	}

	s.data.Users[username] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, username)
		return models.User{}, err
	}

	return user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Storage) GetUser(ctx context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[username]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return user, nil
}

func (s *Storage) UpdateUser(ctx context.Context, username string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[username]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}

	if update.Name != nil {
		user.Name = strings.TrimSpace(*update.Name)
	}
	if update.Password != nil {
		if *update.Password == "" {
			return models.User{}, fmt.Errorf("password cannot be empty: %w", ErrInvalidInput)
		}
		hashed, err := HashPassword(*update.Password)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hashed
	}
	if update.Admin != nil {
		user.Admin = *update.Admin
	}

	updatedData.Users[username] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}
	s.data = updatedData
	return user, nil
}

// DeleteUser removes the account. Pictures the user owned survive with a nil
// owner.
func (s *Storage) DeleteUser(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Users[username]; !ok {
		return fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	delete(updatedData.Users, username)
	for id, pic := range updatedData.Pics {
		if pic.Owner != nil && *pic.Owner == username {
			pic.Owner = nil
			updatedData.Pics[id] = pic
		}
	}

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

// VerifyCredentials checks a username/password pair and returns the account on
// success. Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (s *Storage) VerifyCredentials(ctx context.Context, username, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	s.mu.RLock()
	user, ok := s.data.Users[username]
	s.mu.RUnlock()
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

// Picture operations

func (s *Storage) CreatePicture(ctx context.Context, params CreatePictureParams) (models.Picture, error) {
	if strings.TrimSpace(params.Filename) == "" {
		return models.Picture{}, errors.New("filename is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.Owner]; !ok {
		return models.Picture{}, fmt.Errorf("owner %s: %w", params.Owner, ErrNotFound)
	}

	owner := params.Owner
	pic := models.Picture{
		ID:       s.data.NextPicID,
		Owner:    &owner,
		Info:     params.Info,
		Filename: params.Filename,
	}

	s.data.Pics[pic.ID] = pic
	s.data.NextPicID++
	if err := s.persist(); err != nil {
		delete(s.data.Pics, pic.ID)
		s.data.NextPicID--
		return models.Picture{}, err
	}

	return pic, nil
}

func (s *Storage) ListPictures(ctx context.Context) ([]models.Picture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pics := make([]models.Picture, 0, len(s.data.Pics))
	for _, pic := range s.data.Pics {
		pics = append(pics, pic)
	}
	sortPictures(pics)
	return pics, nil
}

func (s *Storage) ListPicturesByOwner(ctx context.Context, owner string) ([]models.Picture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pics := make([]models.Picture, 0)
	for _, pic := range s.data.Pics {
		if pic.Owner != nil && *pic.Owner == owner {
			pics = append(pics, pic)
		}
	}
	sortPictures(pics)
	return pics, nil
}

func sortPictures(pics []models.Picture) {
	sort.Slice(pics, func(i, j int) bool {
		return pics[i].ID < pics[j].ID
	})
}

func (s *Storage) GetPicture(ctx context.Context, id int64) (models.Picture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pic, ok := s.data.Pics[id]
	if !ok {
		return models.Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
	}
	return pic, nil
}

func (s *Storage) UpdatePicture(ctx context.Context, id int64, update PictureUpdate) (models.Picture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	pic, ok := updatedData.Pics[id]
	if !ok {
		return models.Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
	}

	if update.Owner != nil {
		if _, ok := updatedData.Users[*update.Owner]; !ok {
			return models.Picture{}, fmt.Errorf("owner %s: %w", *update.Owner, ErrNotFound)
		}
		owner := *update.Owner
		pic.Owner = &owner
	}
	if update.Info != nil {
		info := *update.Info
		pic.Info = &info
	}

	updatedData.Pics[id] = pic
	if err := s.persistDataset(updatedData); err != nil {
		return models.Picture{}, err
	}
	s.data = updatedData
	return pic, nil
}

// DeletePicture removes the metadata record and returns it so callers can
// clean up the stored image files.
func (s *Storage) DeletePicture(ctx context.Context, id int64) (models.Picture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pic, ok := s.data.Pics[id]
	if !ok {
		return models.Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
	}
	delete(s.data.Pics, id)
	if err := s.persist(); err != nil {
		s.data.Pics[id] = pic
		return models.Picture{}, err
	}
	return pic, nil
}

var _ Repository = (*Storage)(nil)
