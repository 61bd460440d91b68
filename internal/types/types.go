// Package types holds the shared data model for the document database:
// documents, their storage metadata, task bookkeeping, and sync results.
package types

import "time"

// JsonDoc is a document: a mapping from string keys to arbitrary JSON
// values. By convention it carries "_id", but callers may omit it and
// rely on auto-generation (see idgen.NewDocID).
type JsonDoc map[string]interface{}

// ID returns the document's "_id" field, or "" if absent or not a string.
func (d JsonDoc) ID() string {
	if d == nil {
		return ""
	}
	if v, ok := d["_id"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Clone returns a shallow copy of the document (enough to let callers
// mutate "_id" without aliasing the caller's map).
func (d JsonDoc) Clone() JsonDoc {
	if d == nil {
		return nil
	}
	out := make(JsonDoc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// DocType classifies how a document's bytes were serialized.
type DocType string

const (
	DocTypeJSON   DocType = "json"
	DocTypeText   DocType = "text"
	DocTypeBinary DocType = "binary"
)

// FatDoc is a document together with its storage metadata.
type FatDoc struct {
	ID      string  `json:"_id"`
	Name    string  `json:"name"`
	FileOid string  `json:"fileOid"` // 40-hex SHA-1 of the serialized blob
	Type    DocType `json:"type"`
	Doc     JsonDoc `json:"doc,omitempty"`
}

// Signature is a Git commit author/committer identity.
type Signature struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizedCommit is the library's stable view of a Git commit, insulated
// from whichever Git library produced it.
type NormalizedCommit struct {
	OID       string    `json:"oid"`
	Message   string    `json:"message"`
	Parent    []string  `json:"parent"`
	Author    Signature `json:"author"`
	Committer Signature `json:"committer"`
	GpgSig    string    `json:"gpgsig,omitempty"`
}

// PutResult is returned by put/insert/update.
type PutResult struct {
	ID      string           `json:"_id"`
	Name    string           `json:"name"`
	FileOid string           `json:"fileOid"`
	Type    DocType          `json:"type"`
	Commit  NormalizedCommit `json:"commit"`
}

// DeleteResult is returned by delete.
type DeleteResult struct {
	ID      string           `json:"_id"`
	Name    string           `json:"name"`
	FileOid string           `json:"fileOid"`
	Type    DocType          `json:"type"`
	Commit  NormalizedCommit `json:"commit"`
}

// DatabaseInfo is stored at .gitddb/info.json on first commit. Once
// written, DbID is immutable for the lifetime of that Git history,
// except that combine-head-with-theirs (spec open question #4) adopts
// the remote's DbID rather than keeping the local one.
type DatabaseInfo struct {
	DbID    string `json:"dbId"`
	Creator string `json:"creator"`
	Version string `json:"version"`
}

// TaskKind enumerates the operations the Task Queue dispatches.
type TaskKind string

const (
	TaskPut    TaskKind = "put"
	TaskInsert TaskKind = "insert"
	TaskUpdate TaskKind = "update"
	TaskDelete TaskKind = "delete"
	TaskPush   TaskKind = "push"
	TaskSync   TaskKind = "sync"
)

// TaskStatistics counts completed tasks by kind. Counters are
// monotonically non-decreasing over a database's lifetime.
type TaskStatistics struct {
	Put    int64 `json:"put"`
	Insert int64 `json:"insert"`
	Update int64 `json:"update"`
	Delete int64 `json:"delete"`
	Push   int64 `json:"push"`
	Sync   int64 `json:"sync"`
	Cancel int64 `json:"cancel"`
}

// Add increments the counter for kind by one. The queue calls it when
// a task succeeds; kinds without a counter here are ignored.
func (s *TaskStatistics) Add(kind TaskKind) {
	switch kind {
	case TaskPut:
		s.Put++
	case TaskInsert:
		s.Insert++
	case TaskUpdate:
		s.Update++
	case TaskDelete:
		s.Delete++
	case TaskPush:
		s.Push++
	case TaskSync:
		s.Sync++
	}
}

// ChangedOp enumerates how a path changed during a sync round.
type ChangedOp string

const (
	OpInsert      ChangedOp = "insert"
	OpUpdate      ChangedOp = "update"
	OpDelete      ChangedOp = "delete"
	OpInsertMerge ChangedOp = "insert-merge"
	OpUpdateMerge ChangedOp = "update-merge"
)

// ChangedFile describes one path's change during a sync round.
type ChangedFile struct {
	Operation ChangedOp `json:"operation"`
	New       *FatDoc   `json:"new,omitempty"`
	Old       *FatDoc   `json:"old,omitempty"`
	FatDoc    FatDoc    `json:"fatDoc"`
}

// ConflictStrategy selects how the merge resolver picks a winner.
type ConflictStrategy string

const (
	StrategyOurs       ConflictStrategy = "ours"
	StrategyTheirs     ConflictStrategy = "theirs"
	StrategyOursDiff   ConflictStrategy = "ours-diff"
	StrategyTheirsDiff ConflictStrategy = "theirs-diff"
)

// Conflict records one path resolved by the three-way merge resolver.
type Conflict struct {
	FatDoc    FatDoc           `json:"fatDoc"`
	Strategy  ConflictStrategy `json:"strategy"`
	Operation ChangedOp        `json:"operation"`
}

// DuplicatedFile records a path renamed during a combine-database sync.
type DuplicatedFile struct {
	OriginalName string `json:"originalName"`
	NewName      string `json:"newName"`
	FromDbID     string `json:"fromDbId"`
}

// SyncAction enumerates the outcomes a trySync round can report.
type SyncAction string

const (
	ActionNop                    SyncAction = "nop"
	ActionPush                   SyncAction = "push"
	ActionFastForwardMerge       SyncAction = "fast-forward merge"
	ActionMergeAndPush           SyncAction = "merge and push"
	ActionResolveConflictsAndPush SyncAction = "resolve conflicts and push"
	ActionCombineDatabase        SyncAction = "combine database"
)

// SyncResult is the structured record describing one completed sync round.
type SyncResult struct {
	Action  SyncAction `json:"action"`
	Changes struct {
		Local  []ChangedFile `json:"local,omitempty"`
		Remote []ChangedFile `json:"remote,omitempty"`
	} `json:"changes,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Commits   struct {
		Local  []NormalizedCommit `json:"local,omitempty"`
		Remote []NormalizedCommit `json:"remote,omitempty"`
	} `json:"commits,omitempty"`
	Duplicates []DuplicatedFile `json:"duplicates,omitempty"`
}
