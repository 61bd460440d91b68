// Package validation implements C2: path, id, and working-directory
// name/length rules (spec §4.2). Deterministic and side-effect-free.
package validation

import (
	"strings"

	"github.com/gitddb/gitddb/internal/dberr"
)

// platformMaxPathBytes is the common floor across major platforms for a
// working-directory path length.
const platformMaxPathBytes = 4096

// reservedNames cannot be used as a database or collection name.
var reservedNames = map[string]bool{
	".":    true,
	"..":   true,
	".git": true,
}

// ValidateName rejects empty and reserved database/collection names.
func ValidateName(name string) error {
	if name == "" {
		return dberr.Wrap(dberr.UndefinedDatabaseName, "ValidateName", "", nil)
	}
	if reservedNames[name] {
		return dberr.Wrap(dberr.UndefinedDatabaseName, "ValidateName", name, nil)
	}
	return nil
}

// ValidateWorkingDirPath rejects a working directory path whose byte
// length exceeds the platform floor.
func ValidateWorkingDirPath(path string) error {
	if len(path) > platformMaxPathBytes {
		return dberr.Wrap(dberr.InvalidWorkingDirectoryPathLength, "open", path, nil)
	}
	return nil
}

// ValidateID rejects ids that are empty, contain a NUL byte, start with
// "/", end with "/", or contain a ".." path segment.
func ValidateID(id string) error {
	if id == "" {
		return dberr.Wrap(dberr.InvalidIDCharacter, "ValidateID", id, nil)
	}
	if strings.ContainsRune(id, 0) {
		return dberr.Wrap(dberr.InvalidIDCharacter, "ValidateID", id, nil)
	}
	if strings.HasPrefix(id, "/") || strings.HasSuffix(id, "/") {
		return dberr.Wrap(dberr.InvalidIDCharacter, "ValidateID", id, nil)
	}
	for _, seg := range strings.Split(id, "/") {
		if seg == ".." {
			return dberr.Wrap(dberr.InvalidIDCharacter, "ValidateID", id, nil)
		}
	}
	return nil
}

// ValidateJSONObject rejects a document that is not an object at its
// top level (the caller has already decoded it; this checks shape).
func ValidateJSONObject(isObject bool) error {
	if !isObject {
		return dberr.Wrap(dberr.InvalidJSONObject, "ValidateJSONObject", "", nil)
	}
	return nil
}

// ValidateFileExtension rejects extensions other than the registered
// serialization formats.
func ValidateFileExtension(ext string, allowed ...string) error {
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return dberr.Wrap(dberr.InvalidJSONFileExtension, "ValidateFileExtension", ext, nil)
}
