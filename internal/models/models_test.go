package models

import "testing"

func TestPictureOwnedBy(t *testing.T) {
	owner := "alice"
	pic := Picture{ID: 1, Owner: &owner}

	if !pic.OwnedBy("alice") {
		t.Fatal("picture should be owned by alice")
	}
	if pic.OwnedBy("bob") {
		t.Fatal("picture should not be owned by bob")
	}

	orphan := Picture{ID: 2}
	if orphan.OwnedBy("alice") {
		t.Fatal("ownerless picture should belong to nobody")
	}
	if orphan.OwnedBy("") {
		t.Fatal("ownerless picture should not match the empty username")
	}
}
