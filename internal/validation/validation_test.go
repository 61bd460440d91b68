package validation

import (
	"testing"

	"github.com/gitddb/gitddb/internal/dberr"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr dberr.Kind
	}{
		{"empty", "", dberr.UndefinedDatabaseName},
		{"dot", ".", dberr.UndefinedDatabaseName},
		{"dotdot", "..", dberr.UndefinedDatabaseName},
		{"dotgit", ".git", dberr.UndefinedDatabaseName},
		{"valid", "my-db", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			checkKind(t, err, tt.wantErr)
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr dberr.Kind
	}{
		{"empty", "", dberr.InvalidIDCharacter},
		{"leading slash", "/a/b", dberr.InvalidIDCharacter},
		{"trailing slash", "a/b/", dberr.InvalidIDCharacter},
		{"dotdot segment", "a/../b", dberr.InvalidIDCharacter},
		{"nul byte", "a\x00b", dberr.InvalidIDCharacter},
		{"valid nested", "a/b/c", ""},
		{"valid flat", "doc1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.input)
			checkKind(t, err, tt.wantErr)
		})
	}
}

func TestValidateWorkingDirPath(t *testing.T) {
	long := make([]byte, platformMaxPathBytes+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateWorkingDirPath(string(long)); err == nil {
		t.Fatal("expected InvalidWorkingDirectoryPathLength for oversized path")
	}
	if err := ValidateWorkingDirPath("/short/path"); err != nil {
		t.Fatalf("unexpected error for short path: %v", err)
	}
}

func checkKind(t *testing.T, err error, want dberr.Kind) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}
	got, ok := dberr.Of(err)
	if !ok || got != want {
		t.Fatalf("error kind = %v, want %v (err=%v)", got, want, err)
	}
}
