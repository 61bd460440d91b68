package configfile

import (
	"testing"

	"github.com/gitddb/gitddb/internal/types"
)

func TestSaveLoadInfoRoundTrip(t *testing.T) {
	dir := t.TempDir()
	info := &types.DatabaseInfo{DbID: "01H000000000000000000000", Creator: "gitddb", Version: "1.0.0"}

	if err := SaveInfo(dir, info); err != nil {
		t.Fatalf("SaveInfo: %v", err)
	}

	loaded, err := LoadInfo(dir)
	if err != nil {
		t.Fatalf("LoadInfo: %v", err)
	}
	if *loaded != *info {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", loaded, info)
	}
}

func TestLoadInfoMissingIsError(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadInfo(dir); err == nil {
		t.Fatal("expected error for missing info.json")
	}
}

func TestLoadAppMissingLeavesDestUnmodified(t *testing.T) {
	dir := t.TempDir()
	dest := map[string]string{"preexisting": "value"}
	if err := LoadApp(dir, &dest); err != nil {
		t.Fatalf("LoadApp: %v", err)
	}
	if dest["preexisting"] != "value" {
		t.Fatalf("expected dest untouched, got %+v", dest)
	}
}

func TestSaveLoadAppRoundTrip(t *testing.T) {
	dir := t.TempDir()
	type appMeta struct {
		Theme string `json:"theme"`
	}
	want := appMeta{Theme: "dark"}
	if err := SaveApp(dir, &want); err != nil {
		t.Fatalf("SaveApp: %v", err)
	}

	var got appMeta
	if err := LoadApp(dir, &got); err != nil {
		t.Fatalf("LoadApp: %v", err)
	}
	if got != want {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}
