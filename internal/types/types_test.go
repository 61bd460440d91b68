package types

import "testing"

func TestJsonDocID(t *testing.T) {
	tests := []struct {
		name string
		doc  JsonDoc
		want string
	}{
		{"present", JsonDoc{"_id": "a/b/c"}, "a/b/c"},
		{"absent", JsonDoc{"name": "x"}, ""},
		{"nil", nil, ""},
		{"wrong type", JsonDoc{"_id": 42}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.doc.ID(); got != tt.want {
				t.Errorf("ID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJsonDocCloneIsIndependent(t *testing.T) {
	orig := JsonDoc{"_id": "1", "name": "a"}
	clone := orig.Clone()
	clone["name"] = "b"
	if orig["name"] != "a" {
		t.Fatalf("mutating clone leaked into original: %v", orig)
	}
}

func TestTaskStatisticsAdd(t *testing.T) {
	var s TaskStatistics
	s.Add(TaskPut)
	s.Add(TaskPut)
	s.Add(TaskSync)
	if s.Put != 2 || s.Sync != 1 || s.Delete != 0 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}
