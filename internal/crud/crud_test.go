package crud

import (
	"testing"

	"github.com/gitddb/gitddb/internal/gitgw"
	"github.com/gitddb/gitddb/internal/serialize"
	"github.com/gitddb/gitddb/internal/types"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	dir := t.TempDir()
	gw, err := gitgw.Init(dir, "main")
	if err != nil {
		t.Fatalf("gitgw.Init: %v", err)
	}
	sig := types.Signature{Name: "gitddb", Email: "gitddb@localhost"}
	return NewWorker(gw, serialize.NewRegistry(), sig, sig)
}

func TestPutThenGetRoundTrips(t *testing.T) {
	w := newTestWorker(t)
	res, err := w.Put("doc1", types.JsonDoc{"title": "hello"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.ID != "doc1" {
		t.Fatalf("ID = %q, want doc1", res.ID)
	}

	doc, found, err := w.Get("doc1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected doc1 to be found")
	}
	if doc["title"] != "hello" || doc.ID() != "doc1" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestPutAutoGeneratesID(t *testing.T) {
	w := newTestWorker(t)
	res, err := w.Put("", types.JsonDoc{"title": "no id"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.ID == "" {
		t.Fatal("expected auto-generated _id")
	}
}

func TestInsertFailsWhenExists(t *testing.T) {
	w := newTestWorker(t)
	if _, err := w.Insert("doc1", types.JsonDoc{"a": 1}); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if _, err := w.Insert("doc1", types.JsonDoc{"a": 2}); err == nil {
		t.Fatal("expected second Insert to fail")
	}
}

func TestUpdateFailsWhenAbsent(t *testing.T) {
	w := newTestWorker(t)
	if _, err := w.Update("missing", types.JsonDoc{"a": 1}); err == nil {
		t.Fatal("expected Update on missing doc to fail")
	}
}

func TestDeleteThenGetReturnsNotFound(t *testing.T) {
	w := newTestWorker(t)
	if _, err := w.Put("doc1", types.JsonDoc{"a": 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := w.Delete("doc1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, found, err := w.Get("doc1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected doc1 to be absent after delete")
	}
	if _, err := w.Delete("doc1"); err == nil {
		t.Fatal("expected second Delete to fail with DocumentNotFound")
	}
}

func TestGetHistoryCollapsesDuplicatesAndRetainsDeletions(t *testing.T) {
	w := newTestWorker(t)

	put := func(v string) {
		if _, err := w.Put("x", types.JsonDoc{"v": v}); err != nil {
			t.Fatalf("Put(%s): %v", v, err)
		}
	}
	del := func() {
		if _, err := w.Delete("x"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}

	// Sequence across commits C1..C7: v1, v1, v2, (deleted), v2, (deleted), (deleted)
	put("v1")
	put("v1")
	put("v2")
	del()
	put("v2")
	del()
	// C7 would be a second delete, but delete requires existence; instead
	// verify the collapsed chain up through C6 matches the spec's prefix.

	hist, err := w.GetHistory("x", nil)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	// Newest first: [nil(C6 delete), v2(C5), nil(C4 delete), v2(C3 collapses with... )]
	// Walking backwards: C6=del, C5=v2 (diff, take), C4=del (diff, take), C3=v2 (diff, take), C2=v1 (diff, take), C1=v1 (same, skip)
	want := []string{"", "v2", "", "v2", "v1"}
	if len(hist) != len(want) {
		t.Fatalf("history length = %d, want %d (%+v)", len(hist), len(want), hist)
	}
	for i, w := range want {
		if w == "" {
			if hist[i] != nil {
				t.Fatalf("entry %d: expected deletion (nil), got %+v", i, hist[i])
			}
			continue
		}
		if hist[i] == nil || hist[i].Doc["v"] != w {
			t.Fatalf("entry %d: expected v=%q, got %+v", i, w, hist[i])
		}
	}
}

func TestFindReturnsAllMatchingPrefix(t *testing.T) {
	w := newTestWorker(t)
	if _, err := w.Put("docs/a", types.JsonDoc{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := w.Put("docs/b", types.JsonDoc{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := w.Put("other/c", types.JsonDoc{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	found, err := w.Find(FindOptions{Prefix: "docs/"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 docs under docs/, got %d: %+v", len(found), found)
	}
}
