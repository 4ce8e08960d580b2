package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}

	image := []byte("original-bytes")
	thumb := []byte("thumb-bytes")
	if err := store.SaveImage("img-1.jpg", image); err != nil {
		t.Fatalf("SaveImage error: %v", err)
	}
	if err := store.SaveThumb("img-1.jpg", thumb); err != nil {
		t.Fatalf("SaveThumb error: %v", err)
	}

	got, err := store.ReadImage("img-1.jpg")
	if err != nil {
		t.Fatalf("ReadImage error: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Fatalf("image bytes mismatch: %q", got)
	}
	got, err = store.ReadThumb("img-1.jpg")
	if err != nil {
		t.Fatalf("ReadThumb error: %v", err)
	}
	if !bytes.Equal(got, thumb) {
		t.Fatalf("thumb bytes mismatch: %q", got)
	}
}

func TestFileStoreRemove(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if err := store.SaveImage("img-1.jpg", []byte("data")); err != nil {
		t.Fatalf("SaveImage error: %v", err)
	}

	if err := store.Remove("img-1.jpg"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := store.ReadImage("img-1.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}

	// Removing again is fine.
	if err := store.Remove("img-1.jpg"); err != nil {
		t.Fatalf("second Remove error: %v", err)
	}
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if err := store.SaveImage("../escape.jpg", []byte("data")); err != nil {
		t.Fatalf("SaveImage error: %v", err)
	}
	// The write must land inside the image directory under the base name.
	if _, err := store.ReadImage("escape.jpg"); err != nil {
		t.Fatalf("base-named read failed: %v", err)
	}
}
