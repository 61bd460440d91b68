// Package syncengine implements C9: the state machine that drives one
// configured remote through fetch -> detect divergence -> (fast-forward
// | merge | resolve conflicts) -> push, with UnfetchedCommitExists
// retry and structured SyncResult emission (spec §4.9). Its periodic-
// trigger loop is grounded on cmd/bd/daemon_event_loop.go's
// ticker-plus-watcher shape (here a ticker at the configured interval
// and an undebounced fsnotify watcher on the working tree, both feeding
// the same dispatch point) and the
// IntervalTooSmall floor it enforces at construction.
package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	gitcfg "github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/configfile"
	"github.com/gitddb/gitddb/internal/dberr"
	"github.com/gitddb/gitddb/internal/gitgw"
	"github.com/gitddb/gitddb/internal/merge"
	"github.com/gitddb/gitddb/internal/queue"
	"github.com/gitddb/gitddb/internal/remote"
	"github.com/gitddb/gitddb/internal/serialize"
	"github.com/gitddb/gitddb/internal/types"
)

// MinSyncIntervalMillis is the floor New enforces on a nonzero
// RemoteOptions.Interval (spec §4.9 "periodic mode": "minimum interval
// floor is enforced at construction"). Below it, New rejects with
// IntervalTooSmall rather than arming a runaway timer.
const MinSyncIntervalMillis = 1000

// MaxPushRetries bounds trySync's step-4 retry loop for a push rejected
// as non-fast-forward (spec §4.9 step 4's "bounded retries (default
// 3)").
const MaxPushRetries = 3

// EventKind is one of the Sync Engine's lifecycle events (spec §4.9
// "Events").
type EventKind string

const (
	EventStart    EventKind = "start"
	EventChange   EventKind = "change"
	EventCombine  EventKind = "combine"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
	EventPause    EventKind = "pause"
	EventResume   EventKind = "resume"
)

// Event is delivered to every registered Listener. Per spec §4.9,
// listeners "execute synchronously on the queue thread between step 4
// and returning" -- here, between trySyncOnce settling and TrySync's
// return.
type Event struct {
	Kind       EventKind
	Result     *types.SyncResult
	Duplicates []types.DuplicatedFile
	Err        error
}

// Listener observes Sync Engine events.
type Listener func(Event)

// Identity lets the Sync Engine read the local dbId and adopt the
// remote's after a combine-database round (spec §9 open question 4:
// decided in favor of the remote).
type Identity interface {
	DbID() string
	AdoptDbID(id string) error
}

// Engine is C9, scoped to exactly one remote. The Database Facade keys
// it by the remote URL exactly as configured; the URL is not
// normalized.
type Engine struct {
	logger    *slog.Logger
	gw        *gitgw.Gateway
	remoteEng remote.Engine
	merger    *merge.Resolver
	identity  Identity
	formats   *serialize.Registry

	remoteName   string
	localBranch  string
	remoteBranch string
	opts         gitcfg.RemoteOptions
	author       types.Signature
	committer    types.Signature

	mu        sync.Mutex
	listeners []Listener
	paused    bool
	closed    bool
	ticker    *time.Ticker
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// Options configures New beyond the RemoteOptions dial-out settings.
type Options struct {
	RemoteName        string // default "origin"
	LocalBranch       string // default gitgw.DefaultBranch
	RemoteBranch      string // default same as LocalBranch
	Author, Committer types.Signature
	Formats           *serialize.Registry // default serialize.NewRegistry()
	Logger            *slog.Logger
}

// New validates opts and returns an idle Engine for one remote. It
// enforces the spec's synchronous sync()-time errors
// (UndefinedRemoteURL, InvalidURLFormat, InvalidRepositoryURL,
// InvalidAuthenticationType, IntervalTooSmall) before any task is ever
// scheduled. Callers arm periodic mode with Start.
func New(gw *gitgw.Gateway, remoteEng remote.Engine, merger *merge.Resolver, identity Identity, opts gitcfg.RemoteOptions, o Options) (*Engine, error) {
	opts = opts.WithDefaults()
	if opts.RemoteURL == "" {
		return nil, dberr.New(dberr.UndefinedRemoteURL)
	}
	if err := remote.ValidateOptions(opts); err != nil {
		return nil, err
	}
	if opts.Interval > 0 && opts.Interval < MinSyncIntervalMillis {
		return nil, dberr.Wrap(dberr.IntervalTooSmall, "sync", opts.RemoteURL, nil)
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	remoteName := o.RemoteName
	if remoteName == "" {
		remoteName = "origin"
	}
	localBranch := o.LocalBranch
	if localBranch == "" {
		localBranch = gitgw.DefaultBranch
	}
	remoteBranch := o.RemoteBranch
	if remoteBranch == "" {
		remoteBranch = localBranch
	}
	formats := o.Formats
	if formats == nil {
		formats = serialize.NewRegistry()
	}

	return &Engine{
		logger: logger, gw: gw, remoteEng: remoteEng, merger: merger, identity: identity, formats: formats,
		remoteName: remoteName, localBranch: localBranch, remoteBranch: remoteBranch,
		opts: opts, author: o.Author, committer: o.Committer,
	}, nil
}

// RemoteURL returns the configured remote URL, used by the Database
// Facade to key its synchronizers map (spec §3 "Lifecycle & ownership").
func (e *Engine) RemoteURL() string { return e.opts.RemoteURL }

// On registers a Listener for every event this Engine emits.
func (e *Engine) On(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	ls := make([]Listener, len(e.listeners))
	copy(ls, e.listeners)
	e.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

func (e *Engine) remoteTrackingRef() string {
	return fmt.Sprintf("refs/remotes/%s/%s", e.remoteName, e.remoteBranch)
}

// Init performs the one-time pairing described in spec §4.9: a clone
// (combine database) if there is no local history yet, otherwise a
// checkFetch to confirm the remote is reachable.
func (e *Engine) Init(ctx context.Context) error {
	head, err := e.gw.HeadOID()
	if err != nil {
		return err
	}
	if head == "" {
		return e.remoteEng.Clone(ctx, e.gw.Root(), e.opts, e.remoteName)
	}
	_, err = e.remoteEng.CheckFetch(ctx, e.gw, e.opts, e.remoteName)
	return err
}

// TrySync runs one fetch -> detect -> (ff | merge | resolve) -> push
// round and emits the spec's event sequence: "start, (combine|change),
// complete" on success or "start, error" on failure (spec §5
// "Ordering guarantees").
func (e *Engine) TrySync(ctx context.Context) (types.SyncResult, error) {
	e.emit(Event{Kind: EventStart})
	result, err := e.trySyncOnce(ctx, 0)
	if err != nil {
		e.emit(Event{Kind: EventError, Err: err})
		return types.SyncResult{}, err
	}
	if result.Action == types.ActionCombineDatabase {
		e.emit(Event{Kind: EventCombine, Result: &result, Duplicates: result.Duplicates})
	} else {
		e.emit(Event{Kind: EventChange, Result: &result})
	}
	e.emit(Event{Kind: EventComplete})
	return result, nil
}

// trySyncOnce implements spec §4.9's numbered steps 1-3, with step 4's
// bounded UnfetchedCommitExists retry threaded through attempt.
func (e *Engine) trySyncOnce(ctx context.Context, attempt int) (types.SyncResult, error) {
	if e.opts.SyncDirection != gitcfg.SyncPush {
		if err := e.remoteEng.Fetch(ctx, e.gw, e.opts, e.remoteName); err != nil {
			return types.SyncResult{}, err
		}
	}

	localHead, err := e.gw.HeadOID()
	if err != nil {
		return types.SyncResult{}, err
	}
	remoteHead, rerr := e.gw.ReadRefOID(e.remoteTrackingRef())
	if rerr != nil {
		remoteHead = ""
	}

	switch {
	case remoteHead == localHead:
		return types.SyncResult{Action: types.ActionNop}, nil
	case remoteHead == "":
		return e.pushOnly(ctx, "", localHead, attempt)
	case localHead == "":
		return e.fastForward(remoteHead)
	}

	base, err := e.gw.MergeBase(localHead, remoteHead)
	if err != nil {
		if kind, ok := dberr.Of(err); ok && kind == dberr.NoMergeBaseFound {
			return e.combine(ctx, localHead, remoteHead, attempt)
		}
		return types.SyncResult{}, err
	}

	switch {
	case base == "":
		// go-git found no panic-worthy error but also no common commit:
		// the histories are disjoint (spec §9.4 "combine database").
		return e.combine(ctx, localHead, remoteHead, attempt)
	case base == localHead:
		return e.fastForward(remoteHead)
	case base == remoteHead:
		return e.pushOnly(ctx, remoteHead, localHead, attempt)
	default:
		return e.mergeAndPush(ctx, base, localHead, remoteHead, attempt)
	}
}

// fastForward implements spec §4.9 step 3's "B == L" case: remote is
// strictly ahead, so the local branch is moved to it without creating
// a new commit.
func (e *Engine) fastForward(remoteHead string) (types.SyncResult, error) {
	localHead, err := e.gw.HeadOID()
	if err != nil {
		return types.SyncResult{}, err
	}
	changes, err := diffTrees(e.gw, e.formats, localHead, remoteHead)
	if err != nil {
		return types.SyncResult{}, err
	}
	if err := e.gw.FastForward(remoteHead); err != nil {
		return types.SyncResult{}, err
	}
	result := types.SyncResult{Action: types.ActionFastForwardMerge}
	result.Changes.Local = changes
	if e.opts.IncludeCommits {
		commits, err := e.commitsBetween(localHead, remoteHead)
		if err != nil {
			return types.SyncResult{}, err
		}
		result.Commits.Local = commits
	}
	return result, nil
}

// pushOnly implements spec §4.9 step 3's "B == R" case: local is
// strictly ahead (or the remote has no history yet), so the local
// branch is pushed as-is. remoteHeadBefore is "" when the remote ref
// does not exist yet.
func (e *Engine) pushOnly(ctx context.Context, remoteHeadBefore, localHead string, attempt int) (types.SyncResult, error) {
	if e.opts.SyncDirection == gitcfg.SyncPull {
		return types.SyncResult{Action: types.ActionNop}, nil
	}
	if err := e.remoteEng.Push(ctx, e.gw, e.opts, e.remoteName, e.localBranch, e.remoteBranch); err != nil {
		if retried, res, rerr := e.retryAfterUnfetched(ctx, err, attempt); retried {
			return res, rerr
		}
		return types.SyncResult{}, err
	}
	if err := e.gw.SetRefOID(e.remoteTrackingRef(), localHead); err != nil {
		return types.SyncResult{}, err
	}
	changes, err := diffTrees(e.gw, e.formats, remoteHeadBefore, localHead)
	if err != nil {
		return types.SyncResult{}, err
	}
	result := types.SyncResult{Action: types.ActionPush}
	result.Changes.Remote = changes
	if e.opts.IncludeCommits {
		commits, err := e.commitsBetween(remoteHeadBefore, localHead)
		if err != nil {
			return types.SyncResult{}, err
		}
		result.Commits.Remote = commits
	}
	return result, nil
}

// mergeAndPush implements spec §4.9 step 3's "else" case: both sides
// moved since base, so the three-way merge resolver (C8) runs before
// pushing.
func (e *Engine) mergeAndPush(ctx context.Context, base, localHead, remoteHead string, attempt int) (types.SyncResult, error) {
	res, err := e.merger.Merge(merge.Input{
		Base: base, Local: localHead, Remote: remoteHead,
		Strategy: e.resolveStrategy(), Author: e.author, Committer: e.committer,
	})
	if err != nil {
		return types.SyncResult{}, err
	}
	action := types.ActionMergeAndPush
	if len(res.Conflicts) > 0 {
		action = types.ActionResolveConflictsAndPush
	}

	if err := e.remoteEng.Push(ctx, e.gw, e.opts, e.remoteName, e.localBranch, e.remoteBranch); err != nil {
		if retried, result, rerr := e.retryAfterUnfetched(ctx, err, attempt); retried {
			return result, rerr
		}
		return types.SyncResult{}, err
	}
	if err := e.gw.SetRefOID(e.remoteTrackingRef(), res.MergeCommit); err != nil {
		return types.SyncResult{}, err
	}

	result := types.SyncResult{Action: action, Conflicts: res.Conflicts}
	result.Changes.Local = res.Changes
	if e.opts.IncludeCommits {
		commits, err := e.commitsBetween(localHead, res.MergeCommit)
		if err != nil {
			return types.SyncResult{}, err
		}
		result.Commits.Local = commits
	}
	return result, nil
}

// combine implements spec §4.9/§9.4 "combine database": disjoint
// histories, no common ancestor. Per combineDbStrategy, either surfaces
// NoMergeBaseFound (throw-error) or folds the two histories together,
// renaming locally-conflicting paths with "-from-<localDbId>" (spec §8
// scenario 5) and adopting the remote's dbId.
func (e *Engine) combine(ctx context.Context, localHead, remoteHead string, attempt int) (types.SyncResult, error) {
	if e.opts.CombineDbStrategy == gitcfg.CombineThrowError {
		return types.SyncResult{}, dberr.New(dberr.NoMergeBaseFound)
	}

	localEntries, err := e.gw.WalkTree(localHead, "")
	if err != nil {
		return types.SyncResult{}, err
	}
	remoteEntries, err := e.gw.WalkTree(remoteHead, "")
	if err != nil {
		return types.SyncResult{}, err
	}
	remoteByPath := make(map[string]string, len(remoteEntries))
	for _, re := range remoteEntries {
		remoteByPath[re.Path] = re.OID
	}
	localByPath := make(map[string]string, len(localEntries))
	for _, le := range localEntries {
		localByPath[le.Path] = le.OID
	}

	localDbID := e.identity.DbID()
	var duplicates []types.DuplicatedFile

	for _, le := range localEntries {
		remoteOID, inRemote := remoteByPath[le.Path]
		if !inRemote || remoteOID == le.OID {
			continue
		}
		data, ok, err := e.gw.ReadFileAtCommit(localHead, le.Path)
		if err != nil {
			return types.SyncResult{}, err
		}
		if !ok {
			continue
		}
		newPath := renamedPath(le.Path, localDbID)
		if err := e.gw.RemoveFile(le.Path); err != nil {
			return types.SyncResult{}, err
		}
		if err := e.gw.WriteFile(newPath, data); err != nil {
			return types.SyncResult{}, err
		}
		duplicates = append(duplicates, types.DuplicatedFile{OriginalName: le.Path, NewName: newPath, FromDbID: localDbID})
	}

	for _, re := range remoteEntries {
		if localOID, inLocal := localByPath[re.Path]; inLocal && localOID == re.OID {
			continue
		}
		data, ok, err := e.gw.ReadFileAtCommit(remoteHead, re.Path)
		if err != nil {
			return types.SyncResult{}, err
		}
		if !ok {
			continue
		}
		if err := e.gw.WriteFile(re.Path, data); err != nil {
			return types.SyncResult{}, err
		}
	}

	commitOID, err := e.gw.Commit(gitgw.CommitOptions{
		Message:      "combine database head with theirs",
		Author:       e.author,
		Committer:    e.committer,
		ExtraParents: []string{remoteHead},
	})
	if err != nil {
		return types.SyncResult{}, err
	}

	if remoteDbID := e.readDbIDAt(remoteHead); remoteDbID != "" {
		if err := e.identity.AdoptDbID(remoteDbID); err != nil {
			return types.SyncResult{}, err
		}
	}

	if err := e.remoteEng.Push(ctx, e.gw, e.opts, e.remoteName, e.localBranch, e.remoteBranch); err != nil {
		if retried, result, rerr := e.retryAfterUnfetched(ctx, err, attempt); retried {
			return result, rerr
		}
		return types.SyncResult{}, err
	}
	if err := e.gw.SetRefOID(e.remoteTrackingRef(), commitOID); err != nil {
		return types.SyncResult{}, err
	}

	return types.SyncResult{Action: types.ActionCombineDatabase, Duplicates: duplicates}, nil
}

// retryAfterUnfetched implements spec §4.9 step 4: a push rejected as
// non-fast-forward re-fetches and retries the whole round, up to
// MaxPushRetries times, before surfacing the error.
func (e *Engine) retryAfterUnfetched(ctx context.Context, pushErr error, attempt int) (retried bool, result types.SyncResult, err error) {
	kind, ok := dberr.Of(pushErr)
	if !ok || kind != dberr.UnfetchedCommitExists || attempt >= MaxPushRetries {
		return false, types.SyncResult{}, nil
	}
	if ferr := e.remoteEng.Fetch(ctx, e.gw, e.opts, e.remoteName); ferr != nil {
		return true, types.SyncResult{}, ferr
	}
	result, err = e.trySyncOnce(ctx, attempt+1)
	return true, result, err
}

func (e *Engine) resolveStrategy() types.ConflictStrategy {
	switch types.ConflictStrategy(e.opts.ConflictResolutionStrategy) {
	case types.StrategyTheirs, types.StrategyOursDiff, types.StrategyTheirsDiff:
		return types.ConflictStrategy(e.opts.ConflictResolutionStrategy)
	default:
		return types.StrategyOurs
	}
}

func (e *Engine) commitsBetween(fromOID, toOID string) ([]types.NormalizedCommit, error) {
	if toOID == "" {
		return nil, nil
	}
	chain, err := e.gw.FirstParentChain(toOID)
	if err != nil {
		return nil, err
	}
	var out []types.NormalizedCommit
	for _, c := range chain {
		if c.Hash.String() == fromOID {
			break
		}
		nc, err := e.gw.NormalizedCommitAt(c.Hash.String())
		if err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, nil
}

func (e *Engine) readDbIDAt(commitOID string) string {
	path := configfile.Dir + "/" + configfile.InfoFileName
	data, ok, err := e.gw.ReadFileAtCommit(commitOID, path)
	if err != nil || !ok {
		return ""
	}
	var info types.DatabaseInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return ""
	}
	return info.DbID
}

func renamedPath(path, dbID string) string {
	ext := extOf(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s-from-%s%s", base, dbID, ext)
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

// diffTrees computes the spec §8 invariant's "set of working-tree
// paths whose content changed" between two commits, by blob-OID
// compare (not textual diff), excluding the ambient .gitddb/ directory
// and any extension no registered serialization Format owns.
func diffTrees(gw *gitgw.Gateway, formats *serialize.Registry, fromOID, toOID string) ([]types.ChangedFile, error) {
	fromMap, err := treeOIDs(gw, fromOID)
	if err != nil {
		return nil, err
	}
	toMap, err := treeOIDs(gw, toOID)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]struct{}, len(fromMap)+len(toMap))
	for p := range fromMap {
		paths[p] = struct{}{}
	}
	for p := range toMap {
		paths[p] = struct{}{}
	}

	var out []types.ChangedFile
	for p := range paths {
		if strings.HasPrefix(p, configfile.Dir+"/") {
			continue
		}
		if _, ok := formats.Lookup(extOf(p)); !ok {
			continue
		}
		oldOID, oldOK := fromMap[p]
		newOID, newOK := toMap[p]
		if oldOK && newOK && oldOID == newOID {
			continue
		}
		switch {
		case !oldOK && newOK:
			fd, err := fatDocAt(gw, formats, toOID, p)
			if err != nil {
				return nil, err
			}
			out = append(out, types.ChangedFile{Operation: types.OpInsert, New: &fd})
		case oldOK && !newOK:
			fd, err := fatDocAt(gw, formats, fromOID, p)
			if err != nil {
				return nil, err
			}
			out = append(out, types.ChangedFile{Operation: types.OpDelete, Old: &fd})
		default:
			oldFD, err := fatDocAt(gw, formats, fromOID, p)
			if err != nil {
				return nil, err
			}
			newFD, err := fatDocAt(gw, formats, toOID, p)
			if err != nil {
				return nil, err
			}
			out = append(out, types.ChangedFile{Operation: types.OpUpdate, Old: &oldFD, New: &newFD})
		}
	}
	sort.Slice(out, func(i, j int) bool { return changedFilePath(out[i]) < changedFilePath(out[j]) })
	return out, nil
}

func treeOIDs(gw *gitgw.Gateway, oid string) (map[string]string, error) {
	if oid == "" {
		return map[string]string{}, nil
	}
	entries, err := gw.WalkTree(oid, "")
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Path] = e.OID
	}
	return m, nil
}

func changedFilePath(c types.ChangedFile) string {
	if c.New != nil {
		return c.New.Name
	}
	if c.Old != nil {
		return c.Old.Name
	}
	return ""
}

func fatDocAt(gw *gitgw.Gateway, formats *serialize.Registry, commitOID, path string) (types.FatDoc, error) {
	data, ok, err := gw.ReadFileAtCommit(commitOID, path)
	if err != nil {
		return types.FatDoc{}, err
	}
	if !ok {
		return types.FatDoc{}, fmt.Errorf("syncengine: %s missing at %s", path, commitOID)
	}
	ext := extOf(path)
	format, ok := formats.Lookup(ext)
	if !ok {
		format = serialize.JSON
	}
	doc, err := format.Unmarshal(data)
	if err != nil {
		return types.FatDoc{}, err
	}
	name := strings.TrimSuffix(path, ext)
	doc["_id"] = name
	oid, _, err := gw.BlobOIDAtCommit(commitOID, path)
	if err != nil {
		return types.FatDoc{}, err
	}
	docType := types.DocTypeJSON
	if format.Ext() != serialize.JSONExt {
		docType = types.DocTypeText
	}
	return types.FatDoc{ID: name, Name: path, FileOid: oid, Type: docType, Doc: doc}, nil
}

// Start arms periodic mode (spec §4.9 "Periodic mode"): a ticker at
// opts.Interval, backed up by an fsnotify watcher on the working tree
// so local writes trigger a sync without waiting a full interval --
// the same ticker-plus-watcher combination cmd/bd/daemon_event_loop.go
// uses for its import/export debouncing. A zero Interval leaves the
// Engine in manual mode; Start is then a no-op. Every triggered round
// is dispatched through q so it serializes with CRUD tasks (spec §4.9
// "trySync is re-entrant-safe via the queue").
func (e *Engine) Start(ctx context.Context, q *queue.Queue) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return dberr.New(dberr.DatabaseClosing)
	}
	if e.stopCh != nil {
		e.mu.Unlock()
		return nil
	}
	if e.opts.Interval <= 0 {
		e.mu.Unlock()
		return nil
	}
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	e.ticker = time.NewTicker(time.Duration(e.opts.Interval) * time.Millisecond)
	e.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.logger.Warn("sync file watcher unavailable, falling back to ticker only", "remote", e.opts.RemoteURL, "error", err)
		watcher = nil
	} else if err := watcher.Add(e.gw.Root()); err != nil {
		e.logger.Warn("sync file watcher add failed, falling back to ticker only", "remote", e.opts.RemoteURL, "error", err)
		_ = watcher.Close()
		watcher = nil
	}
	e.mu.Lock()
	e.watcher = watcher
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop(ctx, q, stopCh)
	return nil
}

func (e *Engine) loop(ctx context.Context, q *queue.Queue, stopCh chan struct{}) {
	defer e.wg.Done()
	var watchEvents <-chan fsnotify.Event
	if e.watcher != nil {
		watchEvents = e.watcher.Events
		defer func() { _ = e.watcher.Close() }()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-e.ticker.C:
			e.trigger(ctx, q)
		case ev, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			if strings.Contains(ev.Name, ".git") {
				continue
			}
			e.trigger(ctx, q)
		}
	}
}

func (e *Engine) trigger(ctx context.Context, q *queue.Queue) {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()
	if paused {
		return
	}
	future := queue.Enqueue(q, types.TaskSync, "sync", e.opts.RemoteURL, func(ctx context.Context) (types.SyncResult, error) {
		return e.TrySync(ctx)
	})
	_, _ = future.Wait(ctx)
}

// Pause suspends periodic triggers without tearing down the watcher or
// ticker; a trySync already in flight runs to completion (spec §5
// "Cancellation": "a sync task in progress ignores cancellation but
// honors close after it returns").
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.emit(Event{Kind: EventPause})
}

// Resume re-arms periodic triggers after Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.emit(Event{Kind: EventResume})
}

// Close stops periodic mode and waits for its goroutine to exit. It is
// idempotent and safe to call on an Engine that was never Started.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	stopCh := e.stopCh
	ticker := e.ticker
	e.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if ticker != nil {
		ticker.Stop()
	}
	e.wg.Wait()
}
