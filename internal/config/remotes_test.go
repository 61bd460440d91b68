package config

import (
	"path/filepath"
	"testing"
)

func TestLoadRemotesMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	rf := LoadRemotes(dir)
	if len(rf.Remotes) != 0 {
		t.Fatalf("expected empty remotes, got %+v", rf.Remotes)
	}
}

func TestPutThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	opts := RemoteOptions{
		RemoteURL:     "https://example.com/user/repo.git",
		SyncDirection: SyncPush,
		Retry:         5,
		Connection:    Connection{Type: "github", PersonalAccessToken: "tok"},
	}
	if err := Put(dir, "origin", opts); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rf := LoadRemotes(dir)
	got, ok := rf.Remotes["origin"]
	if !ok {
		t.Fatalf("expected origin remote to be present, got %+v", rf.Remotes)
	}
	if got.RemoteURL != opts.RemoteURL || got.SyncDirection != SyncPush || got.Retry != 5 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.Connection.PersonalAccessToken != "tok" {
		t.Fatalf("connection round-trip mismatch: %+v", got.Connection)
	}

	if _, err := filepath.Abs(dir); err != nil {
		t.Fatalf("sanity: %v", err)
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	dir := t.TempDir()
	if err := Put(dir, "origin", RemoteOptions{RemoteURL: "https://example.com/a/b.git"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := Remove(dir, "origin"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	rf := LoadRemotes(dir)
	if _, ok := rf.Remotes["origin"]; ok {
		t.Fatalf("expected origin to be removed, got %+v", rf.Remotes)
	}
}

func TestWithDefaults(t *testing.T) {
	opts := RemoteOptions{RemoteURL: "https://example.com/a/b.git"}.WithDefaults()
	if opts.SyncDirection != SyncBoth || opts.Retry != 3 || opts.RetryInterval != 1000 {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}
