package serialize

import (
	"strings"
	"testing"

	"github.com/gitddb/gitddb/internal/types"
)

func TestFrontMatterRoundTrip(t *testing.T) {
	doc := types.JsonDoc{"title": "Nara", "tags": []interface{}{"a", "b"}, "_body": "Hello, Nara and Kyoto"}
	b, err := MarshalFrontMatter(doc, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "---\n") {
		t.Fatalf("expected leading fence, got:\n%s", b)
	}
	back, err := UnmarshalFrontMatter(b, "")
	if err != nil {
		t.Fatal(err)
	}
	if back["title"] != "Nara" {
		t.Fatalf("title mismatch: %+v", back)
	}
	if back["_body"] != "Hello, Nara and Kyoto" {
		t.Fatalf("body mismatch: %q", back["_body"])
	}
}

func TestFrontMatterDropsID(t *testing.T) {
	b := []byte("---\n_id: leaked\ntitle: x\n---\nbody text\n")
	doc, err := UnmarshalFrontMatter(b, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["_id"]; ok {
		t.Fatalf("expected _id dropped, got %+v", doc)
	}
}

func TestFrontMatterMissingClosingFence(t *testing.T) {
	_, err := UnmarshalFrontMatter([]byte("---\ntitle: x\n"), "")
	if err == nil {
		t.Fatal("expected error for missing closing fence")
	}
}
