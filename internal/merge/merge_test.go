package merge

import (
	"strings"
	"testing"
	"time"

	"github.com/gitddb/gitddb/internal/gitgw"
	"github.com/gitddb/gitddb/internal/serialize"
	"github.com/gitddb/gitddb/internal/types"
)

func testSig() types.Signature {
	return types.Signature{Name: "gitddb", Email: "gitddb@localhost", Timestamp: time.Now()}
}

func commitJSON(t *testing.T, gw *gitgw.Gateway, path string, doc types.JsonDoc, msg string) string {
	t.Helper()
	b, err := serialize.JSON.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := gw.WriteFile(path, b); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	oid, err := gw.Commit(gitgw.CommitOptions{Message: msg, Author: testSig(), Committer: testSig()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return oid
}

func readJSON(t *testing.T, gw *gitgw.Gateway, oid, path string) types.JsonDoc {
	t.Helper()
	data, ok, err := gw.ReadFileAtCommit(oid, path)
	if err != nil {
		t.Fatalf("ReadFileAtCommit: %v", err)
	}
	if !ok {
		t.Fatalf("expected %s to exist at %s", path, oid)
	}
	doc, err := serialize.JSON.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return doc
}

func newResolver(t *testing.T, schema Schema) (*gitgw.Gateway, *Resolver) {
	t.Helper()
	dir := t.TempDir()
	gw, err := gitgw.Init(dir, "main")
	if err != nil {
		t.Fatalf("gitgw.Init: %v", err)
	}
	return gw, NewResolver(gw, serialize.NewRegistry(), schema)
}

// Scenario 2 (spec §8): insert-merge with ours-diff. Local (ours) has
// {_id:1,name:"fromB",b:"fromB"}; remote (theirs) has
// {_id:1,name:"fromA",a:"fromA"}; no common base. Merged doc keeps
// ours' name on conflict and unions the side-exclusive fields.
func TestInsertMergeConflict(t *testing.T) {
	gw, r := newResolver(t, Schema{})

	local := commitJSON(t, gw, "1.json", types.JsonDoc{"_id": "1", "name": "fromB", "b": "fromB"}, "local insert")
	// Merge() reads blobs purely by commit OID, so a sibling commit
	// works fine to stand in for a genuinely disjoint remote insert.
	remote := remoteOIDIn(t, gw, "1.json", types.JsonDoc{"_id": "1", "name": "fromA", "a": "fromA"})
	if err := gw.FastForward(local); err != nil {
		t.Fatalf("FastForward: %v", err)
	}

	result, err := r.Merge(Input{
		Base:     "",
		Local:    local,
		Remote:   remote,
		Strategy: types.StrategyOursDiff,
		Author:   testSig(), Committer: testSig(),
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Operation != types.OpInsertMerge {
		t.Fatalf("expected one insert-merge conflict, got %+v", result.Conflicts)
	}

	merged := readJSON(t, gw, result.MergeCommit, "1.json")
	if merged["name"] != "fromB" || merged["a"] != "fromA" || merged["b"] != "fromB" {
		t.Fatalf("unexpected merged doc: %+v", merged)
	}
}

// remoteOIDIn commits doc at path directly into gw (simulating a
// fetched remote commit reachable from gw's object store) and returns
// its OID, restoring HEAD to its prior position afterward isn't
// needed here because the caller only reads blobs by OID, not HEAD.
func remoteOIDIn(t *testing.T, gw *gitgw.Gateway, path string, doc types.JsonDoc) string {
	t.Helper()
	b, err := serialize.JSON.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := gw.WriteFile(path, b); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	oid, err := gw.Commit(gitgw.CommitOptions{Message: "remote insert", Author: testSig(), Committer: testSig(), AllowEmpty: true})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return oid
}

// Scenario 6 (spec §8): plaintext-OT add-text. Base "Nara and Kyoto";
// local prepends, remote appends; merged text combines both edits.
func TestPlaintextOTMerge(t *testing.T) {
	schema := Schema{types.DocTypeJSON: []string{"name"}}
	gw, r := newResolver(t, schema)

	base := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "name": "Nara and Kyoto"}, "base")
	local := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "name": "Hello, Nara and Kyoto"}, "local edit")

	// Simulate the remote side's independent edit from base by
	// committing it on top of base's tree within the same repository.
	if err := gw.FastForward(base); err != nil {
		t.Fatalf("FastForward: %v", err)
	}
	remote := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "name": "Nara and Kyoto and Osaka"}, "remote edit")

	// Restore the worktree to local's state, as the Sync Engine would
	// have it positioned before invoking the resolver.
	if err := gw.FastForward(local); err != nil {
		t.Fatalf("FastForward: %v", err)
	}

	result, err := r.Merge(Input{
		Base: base, Local: local, Remote: remote,
		Strategy: types.StrategyOursDiff,
		Author:   testSig(), Committer: testSig(),
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Operation != types.OpUpdateMerge {
		t.Fatalf("expected one update-merge conflict, got %+v", result.Conflicts)
	}

	merged := readJSON(t, gw, result.MergeCommit, "x.json")
	if merged["name"] != "Hello, Nara and Kyoto and Osaka" {
		t.Fatalf("name = %q, want %q", merged["name"], "Hello, Nara and Kyoto and Osaka")
	}
}

// Case 6 of the decision table: local unchanged from base, remote
// changed -- accept theirs, no conflict.
func TestAcceptTheirsWhenLocalUnchanged(t *testing.T) {
	gw, r := newResolver(t, Schema{})

	base := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "v": "1"}, "base")
	if err := gw.FastForward(base); err != nil {
		t.Fatalf("FastForward: %v", err)
	}
	remote := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "v": "2"}, "remote edit")
	if err := gw.FastForward(base); err != nil {
		t.Fatalf("FastForward: %v", err)
	}

	result, err := r.Merge(Input{Base: base, Local: base, Remote: remote, Strategy: types.StrategyOurs, Author: testSig(), Committer: testSig()})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", result.Conflicts)
	}
	if len(result.Changes) != 1 || result.Changes[0].Operation != types.OpUpdate {
		t.Fatalf("expected one accept-theirs update, got %+v", result.Changes)
	}
	merged := readJSON(t, gw, result.MergeCommit, "x.json")
	if merged["v"] != "2" {
		t.Fatalf("v = %v, want 2", merged["v"])
	}
}

// Case 5: remote unchanged from base, local changed -- local wins, no
// write needed and no conflict.
func TestLocalWinsWhenRemoteUnchanged(t *testing.T) {
	gw, r := newResolver(t, Schema{})

	base := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "v": "1"}, "base")
	local := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "v": "local"}, "local edit")

	result, err := r.Merge(Input{Base: base, Local: local, Remote: base, Strategy: types.StrategyOurs, Author: testSig(), Committer: testSig()})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(result.Changes) != 0 || len(result.Conflicts) != 0 {
		t.Fatalf("expected no changes and no conflicts, got changes=%+v conflicts=%+v", result.Changes, result.Conflicts)
	}
	merged := readJSON(t, gw, result.MergeCommit, "x.json")
	if merged["v"] != "local" {
		t.Fatalf("v = %v, want local", merged["v"])
	}
}

// Delete-vs-update (spec §8 scenario 3): base unchanged->local update,
// remote delete. With strategy "theirs-diff", the remote's deletion wins.
func TestDeleteVsUpdateTheirsKeepsDelete(t *testing.T) {
	gw, r := newResolver(t, Schema{})

	base := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "name": "fromA"}, "base")
	local := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "name": "updated"}, "local update")

	if err := gw.FastForward(base); err != nil {
		t.Fatalf("FastForward: %v", err)
	}
	if err := gw.RemoveFile("x.json"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	remote, err := gw.Commit(gitgw.CommitOptions{Message: "remote delete", Author: testSig(), Committer: testSig()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := gw.FastForward(local); err != nil {
		t.Fatalf("FastForward: %v", err)
	}

	result, err := r.Merge(Input{Base: base, Local: local, Remote: remote, Strategy: types.StrategyTheirsDiff, Author: testSig(), Committer: testSig()})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Operation != types.OpDelete {
		t.Fatalf("expected one delete conflict, got %+v", result.Conflicts)
	}
	if _, ok, err := gw.ReadFileAtCommit(result.MergeCommit, "x.json"); err != nil || ok {
		t.Fatalf("expected x.json to be absent after merge, ok=%v err=%v", ok, err)
	}
}

func TestCommitMessageUsesResolveTemplate(t *testing.T) {
	gw, r := newResolver(t, Schema{})
	base := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "v": "1"}, "base")
	local := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "v": "local"}, "local")
	if err := gw.FastForward(base); err != nil {
		t.Fatalf("FastForward: %v", err)
	}
	remote := commitJSON(t, gw, "x.json", types.JsonDoc{"_id": "x", "v": "remote"}, "remote")
	if err := gw.FastForward(local); err != nil {
		t.Fatalf("FastForward: %v", err)
	}

	result, err := r.Merge(Input{Base: base, Local: local, Remote: remote, Strategy: types.StrategyOurs, Author: testSig(), Committer: testSig()})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	nc, err := gw.NormalizedCommitAt(result.MergeCommit)
	if err != nil {
		t.Fatalf("NormalizedCommitAt: %v", err)
	}
	if !strings.HasPrefix(nc.Message, "resolve: x(update-merge,") {
		t.Fatalf("unexpected commit message: %q", nc.Message)
	}
}
