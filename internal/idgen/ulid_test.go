package idgen

import "testing"

func TestNewULIDIsSortableAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 100; i++ {
		id := NewULID()
		if len(id) != 26 {
			t.Fatalf("ULID %q has length %d, want 26", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate ULID %q", id)
		}
		seen[id] = true
		if prev != "" && id < prev {
			t.Fatalf("ULID %q sorted before previous %q", id, prev)
		}
		prev = id
	}
}

func TestNewDbIDAndDocIDDiffer(t *testing.T) {
	if NewDbID() == NewDocID() {
		t.Fatalf("NewDbID and NewDocID should not collide in practice")
	}
}
