package prstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshot_SaveLoadRoundTrip(t *testing.T) {
	s := &Snapshot{
		SHA:           "deadbeefcafe",
		CommitMessage: "fix: tighten input validation",
		CommentList: []Comment{
			{ID: "c1", Author: "alice", Body: "/cerberus override sha=deadbee\nReason: ok", CreatedAt: time.Unix(1000, 0).UTC()},
		},
		Permissions: map[string]Permission{"alice": PermissionWrite},
		Fork:        false,
		GitCheckout: true,
		Author:      "alice",
	}

	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if loaded.HeadSHA() != s.SHA {
		t.Fatalf("HeadSHA = %q, want %q", loaded.HeadSHA(), s.SHA)
	}
	if loaded.HeadCommitMessage() != s.CommitMessage {
		t.Fatalf("HeadCommitMessage = %q, want %q", loaded.HeadCommitMessage(), s.CommitMessage)
	}
	if loaded.PRAuthor() != "alice" {
		t.Fatalf("PRAuthor = %q, want alice", loaded.PRAuthor())
	}
	if loaded.IsFork() || !loaded.IsGitCheckout() {
		t.Fatal("expected fork=false, git_checkout=true to round-trip")
	}

	comments, err := loaded.Comments(context.Background())
	if err != nil || len(comments) != 1 || comments[0].Author != "alice" {
		t.Fatalf("Comments() round trip failed: %v, %+v", err, comments)
	}

	perm, err := loaded.Permission(context.Background(), "alice")
	if err != nil || perm != PermissionWrite {
		t.Fatalf("Permission(alice) = %v, %v; want write, nil", perm, err)
	}

	perm, err = loaded.Permission(context.Background(), "stranger")
	if err != nil || perm != PermissionNone {
		t.Fatalf("Permission(stranger) = %v, %v; want none, nil", perm, err)
	}
}

func TestLoadSnapshot_NilPermissionsMapIsUsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s := &Snapshot{SHA: "abc"}
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if _, err := loaded.Permission(context.Background(), "anyone"); err != nil {
		t.Fatalf("Permission on an empty map should not error: %v", err)
	}
}

func TestLoadSnapshot_MissingFileErrors(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error loading a nonexistent snapshot")
	}
}
