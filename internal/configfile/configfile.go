// Package configfile persists the Database Facade's ambient on-disk
// state under .gitddb/: the immutable DatabaseInfo written on first
// commit, and an opaque app.json metadata slot for caller-defined
// settings (spec §3, §6). Both round-trip through encoding/json with
// MarshalIndent/0600 permissions, the same pattern the teacher used
// for its own metadata.json.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitddb/gitddb/internal/types"
)

// Dir is the conventional subdirectory name holding gitddb's ambient
// files inside a database's working directory.
const Dir = ".gitddb"

// InfoFileName is the immutable database-identity file (spec §3).
const InfoFileName = "info.json"

// AppFileName is the opaque user-metadata file (spec §6).
const AppFileName = "app.json"

// InfoPath returns the path to .gitddb/info.json under workingDir.
func InfoPath(workingDir string) string {
	return filepath.Join(workingDir, Dir, InfoFileName)
}

// AppPath returns the path to .gitddb/app.json under workingDir.
func AppPath(workingDir string) string {
	return filepath.Join(workingDir, Dir, AppFileName)
}

// LoadInfo reads and parses .gitddb/info.json. It returns an error if
// the file is missing; callers use this to distinguish "never
// initialized" from "initialized".
func LoadInfo(workingDir string) (*types.DatabaseInfo, error) {
	data, err := os.ReadFile(InfoPath(workingDir)) // #nosec G304 -- workingDir is the caller-opened database directory
	if err != nil {
		return nil, fmt.Errorf("configfile: read info.json: %w", err)
	}
	var info types.DatabaseInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("configfile: parse info.json: %w", err)
	}
	return &info, nil
}

// SaveInfo writes info as indented JSON to .gitddb/info.json in the
// working tree, creating the .gitddb directory if necessary; it neither
// stages nor commits the file. LoadInfo reads it back without walking
// Git history. The first commit tracks the same path, written through
// the Blob/Tree Gateway using serialize.MarshalCanonicalJSON so its
// blob OID is deterministic (spec §8).
func SaveInfo(workingDir string, info *types.DatabaseInfo) error {
	dir := filepath.Join(workingDir, Dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("configfile: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("configfile: marshal info.json: %w", err)
	}
	if err := os.WriteFile(InfoPath(workingDir), data, 0o600); err != nil {
		return fmt.Errorf("configfile: write info.json: %w", err)
	}
	return nil
}

// LoadApp reads .gitddb/app.json into dest, a caller-supplied pointer.
// A missing file is not an error; dest is left unmodified.
func LoadApp(workingDir string, dest interface{}) error {
	data, err := os.ReadFile(AppPath(workingDir)) // #nosec G304 -- workingDir is the caller-opened database directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("configfile: read app.json: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("configfile: parse app.json: %w", err)
	}
	return nil
}

// SaveApp writes src to .gitddb/app.json, creating the .gitddb
// directory if necessary.
func SaveApp(workingDir string, src interface{}) error {
	dir := filepath.Join(workingDir, Dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("configfile: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return fmt.Errorf("configfile: marshal app.json: %w", err)
	}
	if err := os.WriteFile(AppPath(workingDir), data, 0o600); err != nil {
		return fmt.Errorf("configfile: write app.json: %w", err)
	}
	return nil
}
