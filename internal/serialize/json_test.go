package serialize

import (
	"bytes"
	"testing"

	"github.com/gitddb/gitddb/internal/types"
)

func TestMarshalCanonicalJSONIsDeterministic(t *testing.T) {
	doc := types.JsonDoc{"b": 1, "a": "x", "c": map[string]interface{}{"z": 1, "y": 2}}
	b1, err := MarshalCanonicalJSON(doc)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := MarshalCanonicalJSON(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("non-deterministic output:\n%s\nvs\n%s", b1, b2)
	}
	if b1[len(b1)-1] != '\n' {
		t.Fatal("expected trailing newline")
	}
}

func TestMarshalCanonicalJSONSortsKeysRecursively(t *testing.T) {
	doc := types.JsonDoc{"z": 1, "a": map[string]interface{}{"y": 1, "b": 2}}
	b, err := MarshalCanonicalJSON(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"a\": {\n    \"b\": 2,\n    \"y\": 1\n  },\n  \"z\": 1\n}\n"
	if string(b) != want {
		t.Fatalf("got:\n%s\nwant:\n%s", b, want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := types.JsonDoc{"_id": "1", "name": "x", "n": 3}
	b, err := MarshalCanonicalJSON(orig)
	if err != nil {
		t.Fatal(err)
	}
	back, err := UnmarshalCanonicalJSON(b)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID() != "1" || back["name"] != "x" {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestFormatDropsIDFromBody(t *testing.T) {
	doc := types.JsonDoc{"_id": "should-not-appear", "name": "x"}
	b, err := JSON.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(b, []byte("should-not-appear")) {
		t.Fatalf("serialized bytes must not carry _id: %s", b)
	}
	parsed, err := JSON.Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.ID() != "" {
		t.Fatalf("unmarshal must not recover _id from body, got %q", parsed.ID())
	}
}
