// Package gitddb implements C10: the Database Facade. It owns the
// repository handle and the Task Queue exclusively (spec §3 "Lifecycle
// & ownership"), and wires the Serialization Format (C1), Validator
// (C2), Blob/Tree Gateway (C3), CRUD Worker (C4), Task Queue (C5),
// Collection (C6), Remote Engine (C7), Merge Resolver (C8), and Sync
// Engine (C9) into a single open/close/destroy lifecycle.
//
// It is grounded on the teacher's deleted root beads.go, a thin
// re-export facade over the teacher's own internal packages, and on
// internal/lockfile (adapted here to guard open/destroy against two OS
// processes racing on the same working directory rather than a SQLite
// file).
package gitddb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	gitcfg "github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/configfile"
	"github.com/gitddb/gitddb/internal/collection"
	"github.com/gitddb/gitddb/internal/crud"
	"github.com/gitddb/gitddb/internal/dberr"
	"github.com/gitddb/gitddb/internal/gitgw"
	"github.com/gitddb/gitddb/internal/idgen"
	"github.com/gitddb/gitddb/internal/lockfile"
	"github.com/gitddb/gitddb/internal/merge"
	"github.com/gitddb/gitddb/internal/queue"
	"github.com/gitddb/gitddb/internal/remote"
	"github.com/gitddb/gitddb/internal/serialize"
	"github.com/gitddb/gitddb/internal/syncengine"
	"github.com/gitddb/gitddb/internal/types"
	"github.com/gitddb/gitddb/internal/validation"
)

// Creator and Version identify this library in .gitddb/info.json's
// immutable creator/version fields (spec §3, §4.10).
const (
	Creator = "gitddb"
	Version = "0.1.0"
)

// DefaultCloseTimeout and DefaultFileRemoveTimeout are the spec's
// documented defaults for close(timeoutMs=10000) and destroy's
// FILE_REMOVE_TIMEOUT (spec §4.10, §5).
const (
	DefaultCloseTimeout      = 10 * time.Second
	DefaultFileRemoveTimeout = 10 * time.Second
)

// DefaultAuthor is the commit identity used when OpenOptions.Author is
// left zero (spec §6: "Defaults {name:'GitDocumentDB', email:'gitddb@localhost'}").
var DefaultAuthor = types.Signature{Name: "GitDocumentDB", Email: "gitddb@localhost"}

var (
	creatorPattern = regexp.MustCompile(`^gitddb$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// OpenOptions configures Open. Every field is optional; zero values
// fall back to the spec's documented defaults.
type OpenOptions struct {
	// NoCreate disables the spec's createIfNotExists=true default: if
	// set, Open fails with RepositoryNotFound instead of initializing a
	// new repository when workingDir has no .git.
	NoCreate bool

	Author, Committer types.Signature
	Formats           *serialize.Registry
	RemoteEngine      remote.Engine
	Schema            merge.Schema
	Logger            *slog.Logger
}

func (o OpenOptions) withDefaults() OpenOptions {
	var zero types.Signature
	if o.Author == zero {
		o.Author = DefaultAuthor
	}
	if o.Committer == zero {
		o.Committer = o.Author
	}
	if o.Formats == nil {
		o.Formats = serialize.NewRegistry()
	}
	if o.RemoteEngine == nil {
		o.RemoteEngine = remote.New()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type syncEntry struct {
	name   string
	engine *syncengine.Engine
}

// Database is the open handle on one Git-backed document database. It
// is the sole owner of the repository's Gateway and Task Queue (spec
// §3); Collections are lookup views over it, never owners.
type Database struct {
	workingDir string
	gw         *gitgw.Gateway
	q          *queue.Queue
	worker     *crud.Worker
	merger     *merge.Resolver
	formats    *serialize.Registry
	author     types.Signature
	committer  types.Signature
	remoteEng  remote.Engine
	logger     *slog.Logger
	lock       *lockfile.OpenLock

	mu            sync.Mutex
	dbID          string
	creator       string
	version       string
	synchronizers map[string]*syncEntry
	closed        bool
}

// Open opens the Git-backed document database at workingDir, creating
// it (initial branch main, first commit "first commit", a fresh dbId)
// if it does not already exist and opts.NoCreate is false (spec
// §4.10's open(createIfNotExists=true)).
func Open(workingDir string, opts OpenOptions) (*Database, error) {
	opts = opts.withDefaults()

	name := filepath.Base(filepath.Clean(workingDir))
	if name == string(filepath.Separator) {
		name = "" // the filesystem root has no database name
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateWorkingDirPath(workingDir); err != nil {
		return nil, err
	}

	gw, created, err := openOrInitRepo(workingDir, opts.NoCreate)
	if err != nil {
		return nil, err
	}

	gitddbDir := filepath.Join(workingDir, configfile.Dir)
	lock, err := lockfile.Acquire(gitddbDir, workingDir, Version)
	if err != nil {
		return nil, fmt.Errorf("gitddb: open %s: %w", workingDir, err)
	}

	db := &Database{
		workingDir:    workingDir,
		gw:            gw,
		formats:       opts.Formats,
		author:        opts.Author,
		committer:     opts.Committer,
		remoteEng:     opts.RemoteEngine,
		logger:        opts.Logger,
		lock:          lock,
		synchronizers: map[string]*syncEntry{},
	}
	db.q = queue.New(opts.Logger)
	db.worker = crud.NewWorker(gw, opts.Formats, opts.Author, opts.Committer)
	db.merger = merge.NewResolver(gw, opts.Formats, opts.Schema)

	if created {
		info := types.DatabaseInfo{DbID: idgen.NewDbID(), Creator: Creator, Version: Version}
		if err := db.writeInfoCommit(info); err != nil {
			_ = lock.Release()
			return nil, err
		}
		if err := configfile.SaveInfo(workingDir, &info); err != nil {
			_ = lock.Release()
			return nil, err
		}
		db.dbID, db.creator, db.version = info.DbID, info.Creator, info.Version
		return db, nil
	}

	info, err := configfile.LoadInfo(workingDir)
	if err != nil {
		atHead, herr := db.readInfoAtHead()
		if herr != nil {
			_ = lock.Release()
			return nil, dberr.Wrap(dberr.CannotOpenRepository, "open", workingDir, herr)
		}
		info = atHead
		_ = configfile.SaveInfo(workingDir, info)
	}
	db.dbID, db.creator, db.version = info.DbID, info.Creator, info.Version
	return db, nil
}

// openOrInitRepo opens workingDir's repository if .git exists, else
// initializes a fresh one unless noCreate is set. created reports
// whether a new repository (and therefore a new first commit) is needed.
func openOrInitRepo(workingDir string, noCreate bool) (gw *gitgw.Gateway, created bool, err error) {
	if _, statErr := os.Stat(filepath.Join(workingDir, ".git")); statErr == nil {
		gw, err = gitgw.Open(workingDir)
		return gw, false, err
	} else if !os.IsNotExist(statErr) {
		return nil, false, dberr.Wrap(dberr.CannotOpenRepository, "open", workingDir, statErr)
	}
	if noCreate {
		return nil, false, dberr.Wrap(dberr.RepositoryNotFound, "open", workingDir, nil)
	}
	if err := os.MkdirAll(workingDir, 0o750); err != nil {
		return nil, false, dberr.Wrap(dberr.CannotCreateDirectory, "open", workingDir, err)
	}
	gw, err = gitgw.Init(workingDir, gitgw.DefaultBranch)
	return gw, true, err
}

func (d *Database) writeInfoCommit(info types.DatabaseInfo) error {
	doc := types.JsonDoc{"dbId": info.DbID, "creator": info.Creator, "version": info.Version}
	data, err := serialize.MarshalCanonicalJSON(doc)
	if err != nil {
		return err
	}
	if err := d.gw.WriteFile(infoPath(), data); err != nil {
		return err
	}
	a, c := d.signatures()
	_, err = d.gw.Commit(gitgw.CommitOptions{Message: "first commit", Author: a, Committer: c})
	return err
}

func (d *Database) readInfoAtHead() (*types.DatabaseInfo, error) {
	head, err := d.gw.HeadOID()
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, fmt.Errorf("gitddb: repository has no commits and no info.json")
	}
	data, ok, err := d.gw.ReadFileAtCommit(head, infoPath())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("gitddb: %s missing at HEAD", infoPath())
	}
	var info types.DatabaseInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("gitddb: parse %s: %w", infoPath(), err)
	}
	return &info, nil
}

func infoPath() string {
	return configfile.Dir + "/" + configfile.InfoFileName
}

func (d *Database) signatures() (author, committer types.Signature) {
	now := time.Now()
	author, committer = d.author, d.committer
	author.Timestamp, committer.Timestamp = now, now
	return author, committer
}

func (d *Database) gitddbDir() string { return filepath.Join(d.workingDir, configfile.Dir) }

// WorkingDir returns the directory this database was opened on.
func (d *Database) WorkingDir() string { return d.workingDir }

// DbID returns the database's immutable identity (spec §4.10 "Identity"),
// or the remote's dbId after a combine-database sync has adopted it
// (spec §9 open question #4).
func (d *Database) DbID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dbID
}

// AdoptDbID overwrites the facade's cached dbId and rewrites
// .gitddb/info.json in the working tree via configfile.SaveInfo, without
// staging or committing it. It implements syncengine.Identity, called
// by the Sync Engine exactly once per combine-database round (spec §9
// open question #4: decided in favor of the remote).
func (d *Database) AdoptDbID(id string) error {
	d.mu.Lock()
	d.dbID = id
	info := types.DatabaseInfo{DbID: id, Creator: d.creator, Version: d.version}
	d.mu.Unlock()
	return configfile.SaveInfo(d.workingDir, &info)
}

// IsCreatedByGitDDB reports whether this repository's stored creator
// matches this library (spec §4.10).
func (d *Database) IsCreatedByGitDDB() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return creatorPattern.MatchString(d.creator)
}

// IsValidVersion reports whether this repository's stored version
// string matches the expected major.minor.patch shape (spec §4.10).
func (d *Database) IsValidVersion() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return versionPattern.MatchString(d.version)
}

// SaveAuthor mirrors the database's commit author to .git/config's
// user.name/user.email (spec §6 saveAuthor).
func (d *Database) SaveAuthor() error {
	return d.gw.SaveAuthor(d.author.Name, d.author.Email)
}

// LoadAuthor reads user.name/user.email from .git/config (spec §6
// loadAuthor).
func (d *Database) LoadAuthor() (name, email string, err error) {
	return d.gw.LoadAuthor()
}

// Collection returns a namespaced view over collectionPath, forwarding
// every CRUD call through this database's Task Queue (spec §4.6).
// Creating a Collection does not touch the repository.
func (d *Database) Collection(collectionPath string) *collection.Collection {
	return collection.New(collectionPath, d.worker, d.q)
}

// Stats returns a snapshot of the Task Queue's per-kind completion
// counters (spec §4.5 "Statistics").
func (d *Database) Stats() types.TaskStatistics { return d.q.Stats() }

// Sync registers and starts a Sync Engine for opts.RemoteURL, keyed by
// that URL exactly as given. The URL is not normalized, so two
// spellings of the same remote register as two engines. remoteName selects the Git remote name to configure
// ("origin" if empty). It runs init() (clone or checkFetch) before
// returning, and arms periodic mode if opts.Interval > 0.
func (d *Database) Sync(ctx context.Context, remoteName string, opts gitcfg.RemoteOptions) (*syncengine.Engine, error) {
	opts = opts.WithDefaults()
	if remoteName == "" {
		remoteName = "origin"
	}

	d.mu.Lock()
	if _, exists := d.synchronizers[opts.RemoteURL]; exists {
		d.mu.Unlock()
		return nil, dberr.Wrap(dberr.RemoteAlreadyRegistered, "sync", opts.RemoteURL, nil)
	}
	d.mu.Unlock()

	eng, err := syncengine.New(d.gw, d.remoteEng, d.merger, d, opts, syncengine.Options{
		RemoteName:  remoteName,
		LocalBranch: gitgw.DefaultBranch,
		Author:      d.author,
		Committer:   d.committer,
		Formats:     d.formats,
		Logger:      d.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := eng.Init(ctx); err != nil {
		return nil, err
	}
	if err := eng.Start(ctx, d.q); err != nil {
		return nil, err
	}

	if err := gitcfg.Put(d.gitddbDir(), remoteName, opts); err != nil {
		d.logger.Warn("failed to persist remote config", "remote", remoteName, "error", err)
	}

	d.mu.Lock()
	d.synchronizers[opts.RemoteURL] = &syncEntry{name: remoteName, engine: eng}
	d.mu.Unlock()
	return eng, nil
}

// RemoveSync stops and unregisters the Sync Engine for remoteURL, if
// one is registered, and drops its persisted remotes.yaml entry.
// Removing an unregistered URL is a no-op.
func (d *Database) RemoveSync(remoteURL string) error {
	d.mu.Lock()
	entry, ok := d.synchronizers[remoteURL]
	if ok {
		delete(d.synchronizers, remoteURL)
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}
	entry.engine.Close()
	return gitcfg.Remove(d.gitddbDir(), entry.name)
}

// Close pauses every registered Sync Engine, stops accepting new
// tasks, and waits up to timeout for the Task Queue to drain (spec
// §4.10 close). If the deadline expires, it rejects with
// DatabaseCloseTimeout unless force is set, in which case it cancels
// any in-flight task's context and proceeds. Close is idempotent.
func (d *Database) Close(force bool, timeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	engines := make([]*syncengine.Engine, 0, len(d.synchronizers))
	for _, e := range d.synchronizers {
		engines = append(engines, e.engine)
	}
	d.mu.Unlock()

	// Multiple remotes' Sync Engines each block in Close() until their
	// periodic-trigger goroutine exits; pausing and closing them
	// concurrently bounds total shutdown latency to the slowest one
	// rather than their sum, the same errgroup fan-out
	// msolo-git-mg/cmd/git-sync/sync.go uses for its flock-guarded
	// fullSync critical section.
	var g errgroup.Group
	for _, e := range engines {
		e := e
		g.Go(func() error {
			e.Pause()
			e.Close()
			return nil
		})
	}
	_ = g.Wait()

	d.q.StopAccepting()
	if d.q.WaitCompletion(timeout) {
		if !force {
			d.mu.Lock()
			d.closed = false
			d.mu.Unlock()
			return dberr.Wrap(dberr.DatabaseCloseTimeout, "close", d.workingDir, nil)
		}
	}
	d.q.Shutdown(force)
	return d.lock.Release()
}

// Destroy closes the database and removes its working directory,
// bounded by DefaultFileRemoveTimeout (spec §4.10 destroy).
func (d *Database) Destroy(force bool) error {
	if err := d.Close(force, DefaultCloseTimeout); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- os.RemoveAll(d.workingDir) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("gitddb: destroy %s: %w", d.workingDir, err)
		}
		return nil
	case <-time.After(DefaultFileRemoveTimeout):
		return dberr.Wrap(dberr.FileRemoveTimeout, "destroy", d.workingDir, nil)
	}
}
