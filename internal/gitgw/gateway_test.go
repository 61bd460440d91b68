package gitgw

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gitddb/gitddb/internal/types"
)

func testSignature() types.Signature {
	return types.Signature{Name: "gitddb", Email: "gitddb@localhost", Timestamp: time.Now()}
}

func TestInitCreatesMainBranch(t *testing.T) {
	dir := t.TempDir()
	gw, err := Init(dir, "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	oid, err := gw.HeadOID()
	if err != nil {
		t.Fatalf("HeadOID: %v", err)
	}
	if oid != "" {
		t.Fatalf("expected empty HEAD before first commit, got %q", oid)
	}
}

func TestWriteFileCommitAndReadBack(t *testing.T) {
	dir := t.TempDir()
	gw, err := Init(dir, "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := gw.WriteFile("docs/a.json", []byte(`{"_id":"a"}`+"\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	oid, err := gw.Commit(CommitOptions{Message: "first commit", Author: testSignature(), Committer: testSignature()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	data, ok, err := gw.ReadFileAtCommit(oid, "docs/a.json")
	if err != nil {
		t.Fatalf("ReadFileAtCommit: %v", err)
	}
	if !ok {
		t.Fatal("expected docs/a.json to exist at commit")
	}
	if string(data) != `{"_id":"a"}`+"\n" {
		t.Fatalf("unexpected content: %q", data)
	}

	head, err := gw.HeadOID()
	if err != nil {
		t.Fatalf("HeadOID: %v", err)
	}
	if head != oid {
		t.Fatalf("HEAD = %q, want %q", head, oid)
	}
}

func TestSecondCommitIsChildOfFirst(t *testing.T) {
	dir := t.TempDir()
	gw, err := Init(dir, "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := gw.WriteFile("a.json", []byte("{}\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	first, err := gw.Commit(CommitOptions{Message: "first", Author: testSignature(), Committer: testSignature()})
	if err != nil {
		t.Fatalf("Commit 1: %v", err)
	}

	if err := gw.WriteFile("b.json", []byte("{}\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	second, err := gw.Commit(CommitOptions{Message: "second", Author: testSignature(), Committer: testSignature()})
	if err != nil {
		t.Fatalf("Commit 2: %v", err)
	}

	nc, err := gw.NormalizedCommitAt(second)
	if err != nil {
		t.Fatalf("NormalizedCommitAt: %v", err)
	}
	if len(nc.Parent) != 1 || nc.Parent[0] != first {
		t.Fatalf("expected parent %q, got %+v", first, nc.Parent)
	}
}

func TestRemoveFileDeletesFromTree(t *testing.T) {
	dir := t.TempDir()
	gw, err := Init(dir, "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := gw.WriteFile("a.json", []byte("{}\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := gw.Commit(CommitOptions{Message: "add", Author: testSignature(), Committer: testSignature()}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := gw.RemoveFile("a.json"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	oid, err := gw.Commit(CommitOptions{Message: "remove", Author: testSignature(), Committer: testSignature()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	_, ok, err := gw.ReadFileAtCommit(oid, "a.json")
	if err != nil {
		t.Fatalf("ReadFileAtCommit: %v", err)
	}
	if ok {
		t.Fatal("expected a.json to be absent after removal")
	}
}

func TestWalkTreeListsPrefixedPaths(t *testing.T) {
	dir := t.TempDir()
	gw, err := Init(dir, "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, p := range []string{"docs/a.json", "docs/b.json", "other/c.json"} {
		if err := gw.WriteFile(p, []byte("{}\n")); err != nil {
			t.Fatalf("WriteFile(%s): %v", p, err)
		}
	}
	oid, err := gw.Commit(CommitOptions{Message: "initial", Author: testSignature(), Committer: testSignature()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entries, err := gw.WalkTree(oid, "docs/")
	if err != nil {
		t.Fatalf("WalkTree: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries under docs/, got %d: %+v", len(entries), entries)
	}
	if entries[0].Path != "docs/a.json" || entries[1].Path != "docs/b.json" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestIsMergeCommit(t *testing.T) {
	dir := t.TempDir()
	gw, err := Init(dir, "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := gw.WriteFile("a.json", []byte("{}\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	oid, err := gw.Commit(CommitOptions{Message: "solo", Author: testSignature(), Committer: testSignature()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	merge, err := gw.IsMergeCommit(oid)
	if err != nil {
		t.Fatalf("IsMergeCommit: %v", err)
	}
	if merge {
		t.Fatal("expected single-parent commit to not be a merge commit")
	}
}

func TestRootReturnsOpenedPath(t *testing.T) {
	dir := t.TempDir()
	gw, err := Init(dir, "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got, want := filepath.Clean(gw.Root()), filepath.Clean(dir); got != want {
		t.Fatalf("Root() = %q, want %q", got, want)
	}
}
