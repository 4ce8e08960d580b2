package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestLoadSnapshotPreservesHashesAndIDs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	if _, err := store.CreateUser(ctx, CreateUserParams{Username: "alice", Password: "pw", Admin: true}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if _, err := store.CreateUser(ctx, CreateUserParams{Username: "bob", Password: "pw"}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	pic, err := store.CreatePicture(ctx, CreatePictureParams{Owner: "bob", Filename: "img-1.jpg"})
	if err != nil {
		t.Fatalf("CreatePicture error: %v", err)
	}

	snap, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot error: %v", err)
	}
	counts := snap.Counts()
	if counts.Users != 2 || counts.Pics != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if snap.Users[0].Username != "alice" || snap.Users[1].Username != "bob" {
		t.Fatalf("users not sorted: %+v", snap.Users)
	}
	if snap.Users[0].PasswordHash == "" {
		t.Fatal("snapshot must carry stored password hashes")
	}
	if snap.Pics[0].ID != pic.ID || snap.Pics[0].Filename != "img-1.jpg" {
		t.Fatalf("unexpected pic: %+v", snap.Pics[0])
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
