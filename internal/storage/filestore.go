package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps original images and their thumbnails on local disk, in two
// sibling directories. Filenames are server generated, but every lookup is
// still reduced to its base name so a stored name can never escape the root.
type FileStore struct {
	imageDir string
	thumbDir string
}

func NewFileStore(root string) (*FileStore, error) {
	store := &FileStore{
		imageDir: filepath.Join(root, "images"),
		thumbDir: filepath.Join(root, "thumbs"),
	}
	for _, dir := range []string{store.imageDir, store.thumbDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create image dir: %w", err)
		}
	}
	return store, nil
}

func (f *FileStore) SaveImage(name string, data []byte) error {
	return writeFileAtomic(f.imageDir, name, data)
}

func (f *FileStore) SaveThumb(name string, data []byte) error {
	return writeFileAtomic(f.thumbDir, name, data)
}

func (f *FileStore) ReadImage(name string) ([]byte, error) {
	return readFile(f.imageDir, name)
}

func (f *FileStore) ReadThumb(name string) ([]byte, error) {
	return readFile(f.thumbDir, name)
}

// Remove deletes the original and the thumbnail. Missing files are not an
// error; the caller may be cleaning up after a partial write.
func (f *FileStore) Remove(name string) error {
	var firstErr error
	for _, dir := range []string{f.imageDir, f.thumbDir} {
		err := os.Remove(filepath.Join(dir, filepath.Base(name)))
		if err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = fmt.Errorf("remove image file: %w", err)
		}
	}
	return firstErr
}

func readFile(dir, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("image %s: %w", name, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("read image file: %w", err)
	}
	return data, nil
}

func writeFileAtomic(dir, name string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, "img-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp image file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write image file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush image file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp image file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, filepath.Base(name))); err != nil {
		return fmt.Errorf("replace image file: %w", err)
	}
	success = true
	return nil
}
