// Package config persists per-remote sync configuration across process
// restarts. It mirrors the teacher's direct-yaml-read-without-viper
// style: a small struct round-tripped through gopkg.in/yaml.v3, with
// no global singleton and no environment-variable indirection layer.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SyncDirection restricts which half of a sync round a RemoteOptions
// entry is allowed to perform (spec §6).
type SyncDirection string

const (
	SyncBoth SyncDirection = "both"
	SyncPush SyncDirection = "push"
	SyncPull SyncDirection = "pull"
)

// CombineDbStrategy selects how init() reacts to a disjoint remote
// history on first sync (spec §4.9, §9.4).
type CombineDbStrategy string

const (
	CombineThrowError       CombineDbStrategy = "throw-error"
	CombineHeadWithTheirs   CombineDbStrategy = "combine-head-with-theirs"
)

// RemoteOptions configures one named remote's sync behavior (spec §6).
type RemoteOptions struct {
	RemoteURL                   string            `yaml:"remoteUrl"`
	SyncDirection                SyncDirection     `yaml:"syncDirection,omitempty"`
	Interval                     int64             `yaml:"interval,omitempty"` // ms; 0 = manual
	Retry                        int               `yaml:"retry,omitempty"`
	RetryInterval                int64             `yaml:"retryInterval,omitempty"` // ms
	ConflictResolutionStrategy   string            `yaml:"conflictResolutionStrategy,omitempty"`
	CombineDbStrategy            CombineDbStrategy `yaml:"combineDbStrategy,omitempty"`
	IncludeCommits               bool              `yaml:"includeCommits,omitempty"`
	Connection                   Connection        `yaml:"connection,omitempty"`
	Engine                       string            `yaml:"engine,omitempty"`
}

// Connection describes how to authenticate to RemoteURL.
type Connection struct {
	Type               string `yaml:"type"` // "github", "none", "ssh"
	PersonalAccessToken string `yaml:"personalAccessToken,omitempty"`
	PublicKeyPath      string `yaml:"publicKeyPath,omitempty"`
	PrivateKeyPath     string `yaml:"privateKeyPath,omitempty"`
	PassPhrase         string `yaml:"passPhrase,omitempty"`
}

// WithDefaults returns a copy of o with the spec's documented defaults
// (retry=3, retryInterval=1000ms, syncDirection=both) applied to any
// zero-valued field.
func (o RemoteOptions) WithDefaults() RemoteOptions {
	if o.SyncDirection == "" {
		o.SyncDirection = SyncBoth
	}
	if o.Retry == 0 {
		o.Retry = 3
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = 1000
	}
	if o.CombineDbStrategy == "" {
		o.CombineDbStrategy = CombineThrowError
	}
	return o
}

// RemotesFile is the on-disk shape of .gitddb/remotes.yaml: every
// registered remote's RemoteOptions, keyed by remote name, so a
// process restart can re-arm periodic sync without the caller
// re-specifying connection details.
type RemotesFile struct {
	Remotes map[string]RemoteOptions `yaml:"remotes"`
}

const remotesFileName = "remotes.yaml"

// LoadRemotes reads .gitddb/remotes.yaml from gitddbDir. A missing
// file is not an error; it yields an empty RemotesFile, matching the
// teacher's LoadLocalConfig behavior of never failing on absence.
func LoadRemotes(gitddbDir string) *RemotesFile {
	path := filepath.Join(gitddbDir, remotesFileName)
	data, err := os.ReadFile(path) // #nosec G304 -- path is derived from the opened database directory
	if err != nil {
		return &RemotesFile{Remotes: map[string]RemoteOptions{}}
	}
	var rf RemotesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return &RemotesFile{Remotes: map[string]RemoteOptions{}}
	}
	if rf.Remotes == nil {
		rf.Remotes = map[string]RemoteOptions{}
	}
	return &rf
}

// SaveRemotes writes rf to .gitddb/remotes.yaml, replacing any
// existing content.
func SaveRemotes(gitddbDir string, rf *RemotesFile) error {
	path := filepath.Join(gitddbDir, remotesFileName)
	data, err := yaml.Marshal(rf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Put adds or replaces the RemoteOptions for name and persists the file.
func Put(gitddbDir, name string, opts RemoteOptions) error {
	rf := LoadRemotes(gitddbDir)
	rf.Remotes[name] = opts
	return SaveRemotes(gitddbDir, rf)
}

// Remove deletes name's entry, if present, and persists the file.
func Remove(gitddbDir, name string) error {
	rf := LoadRemotes(gitddbDir)
	delete(rf.Remotes, name)
	return SaveRemotes(gitddbDir, rf)
}
