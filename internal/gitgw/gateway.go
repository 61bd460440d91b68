// Package gitgw implements C3: the Blob/Tree Gateway. It is the only
// component that mutates the Git object database (spec §4.3), wrapping
// go-git/v5 the way other_examples/.../rgehrsitz-archon's git.Repository
// groups its methods by concern (lifecycle, commit/tag, diff) rather
// than exposing go-git's types directly to the rest of the module.
package gitgw

import (
	"bytes"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitddb/gitddb/internal/dberr"
	"github.com/gitddb/gitddb/internal/types"
)

// DefaultBranch is the branch the Database Facade creates on Init and
// the Sync Engine tracks by default (spec §6).
const DefaultBranch = "main"

// Gateway wraps a single Git working tree. All Git object-database
// mutation in the module goes through it.
type Gateway struct {
	repo *git.Repository
	wt   *git.Worktree
	root string
}

// Init creates a new Git repository at root with the given initial
// branch (spec §4.10's "init with initial branch main"). root must not
// already contain a repository.
func Init(root, branch string) (*Gateway, error) {
	if branch == "" {
		branch = DefaultBranch
	}
	repo, err := git.PlainInitWithOptions(root, &git.PlainInitOptions{
		InitOptions: config.InitOptions{DefaultBranch: plumbing.ReferenceName(plumbing.NewBranchReferenceName(branch))},
		Bare:        false,
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.CannotCreateRepository, "init", root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, dberr.Wrap(dberr.CannotCreateRepository, "init", root, err)
	}
	return &Gateway{repo: repo, wt: wt, root: root}, nil
}

// Open opens an existing Git repository at root.
func Open(root string) (*Gateway, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, dberr.Wrap(dberr.CannotOpenRepository, "open", root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, dberr.Wrap(dberr.CannotOpenRepository, "open", root, err)
	}
	return &Gateway{repo: repo, wt: wt, root: root}, nil
}

// Root returns the absolute path of the working directory this
// Gateway was opened or created on.
func (g *Gateway) Root() string { return g.root }

// TreeEntry is one file observed by WalkTree.
type TreeEntry struct {
	Path string
	OID  string
	Mode string // always "blob": WalkTree reports file entries only
}

// WriteBlob writes data as a loose Git blob directly to the object
// database, without touching the worktree or index, and returns its
// OID. The merge resolver uses it to obtain the blob OID of serialized
// content without staging it.
func (g *Gateway) WriteBlob(data []byte) (string, error) {
	obj := g.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return "", dberr.Wrap(dberr.CannotWriteData, "writeBlob", "", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", dberr.Wrap(dberr.CannotWriteData, "writeBlob", "", err)
	}
	if err := w.Close(); err != nil {
		return "", dberr.Wrap(dberr.CannotWriteData, "writeBlob", "", err)
	}
	hash, err := g.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", dberr.Wrap(dberr.CannotWriteData, "writeBlob", "", err)
	}
	return hash.String(), nil
}

// ReadBlob returns the bytes of the blob at oid.
func (g *Gateway) ReadBlob(oid string) ([]byte, error) {
	blob, err := g.repo.BlobObject(plumbing.NewHash(oid))
	if err != nil {
		return nil, dberr.Wrap(dberr.CannotOpenRepository, "readBlob", oid, err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, dberr.Wrap(dberr.CannotOpenRepository, "readBlob", oid, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteFile writes data to relPath inside the worktree and stages it.
// Parent directories are created as needed.
func (g *Gateway) WriteFile(relPath string, data []byte) error {
	fs := g.wt.Filesystem
	dir := path.Dir(relPath)
	if dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0o750); err != nil {
			return dberr.Wrap(dberr.CannotCreateDirectory, "writeFile", relPath, err)
		}
	}
	f, err := fs.Create(relPath)
	if err != nil {
		return dberr.Wrap(dberr.CannotWriteData, "writeFile", relPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return dberr.Wrap(dberr.CannotWriteData, "writeFile", relPath, err)
	}
	if err := f.Close(); err != nil {
		return dberr.Wrap(dberr.CannotWriteData, "writeFile", relPath, err)
	}
	if _, err := g.wt.Add(relPath); err != nil {
		return dberr.Wrap(dberr.CannotWriteData, "writeFile", relPath, err)
	}
	return nil
}

// RemoveFile removes relPath from the worktree and stages the deletion.
func (g *Gateway) RemoveFile(relPath string) error {
	if _, err := g.wt.Remove(relPath); err != nil {
		return dberr.Wrap(dberr.CannotDeleteData, "removeFile", relPath, err)
	}
	return nil
}

// CommitOptions configures a Gateway commit.
type CommitOptions struct {
	Message   string
	Author    types.Signature
	Committer types.Signature
	// ExtraParents are additional parent commits beyond the branch's
	// current HEAD, used for merge/combine commits (spec §4.8, §4.9).
	ExtraParents []string
	AllowEmpty   bool
}

// Commit commits the currently staged worktree changes and returns the
// new commit's OID. The branch's current HEAD (if any) is always the
// first parent; opts.ExtraParents are appended.
func (g *Gateway) Commit(opts CommitOptions) (string, error) {
	parents := make([]plumbing.Hash, 0, len(opts.ExtraParents)+1)
	if len(opts.ExtraParents) > 0 {
		// go-git only defaults to HEAD when Parents is empty.
		head, err := g.HeadOID()
		if err != nil {
			return "", err
		}
		if head != "" {
			parents = append(parents, plumbing.NewHash(head))
		}
	}
	for _, p := range opts.ExtraParents {
		parents = append(parents, plumbing.NewHash(p))
	}
	hash, err := g.wt.Commit(opts.Message, &git.CommitOptions{
		Author:            toSignature(opts.Author),
		Committer:         toSignature(opts.Committer),
		Parents:           parents,
		AllowEmptyCommits: opts.AllowEmpty,
	})
	if err != nil {
		return "", dberr.Wrap(dberr.CannotWriteData, "commit", "", err)
	}
	return hash.String(), nil
}

func toSignature(s types.Signature) *object.Signature {
	when := s.Timestamp
	if when.IsZero() {
		when = time.Now()
	}
	return &object.Signature{Name: s.Name, Email: s.Email, When: when}
}

// HeadOID returns the OID the default branch's HEAD currently points
// to, or "" if the branch has no commits yet.
func (g *Gateway) HeadOID() (string, error) {
	ref, err := g.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return "", nil
		}
		return "", dberr.Wrap(dberr.RepositoryNotOpen, "headOid", "", err)
	}
	return ref.Hash().String(), nil
}

// ReadRefOID resolves a ref name (e.g. "refs/remotes/origin/main") to
// its current OID.
func (g *Gateway) ReadRefOID(ref string) (string, error) {
	r, err := g.repo.Reference(plumbing.ReferenceName(ref), true)
	if err != nil {
		return "", dberr.Wrap(dberr.RepositoryNotFound, "readRefOid", ref, err)
	}
	return r.Hash().String(), nil
}

// SetRefOID points ref at oid, creating or overwriting it.
func (g *Gateway) SetRefOID(ref, oid string) error {
	r := plumbing.NewHashReference(plumbing.ReferenceName(ref), plumbing.NewHash(oid))
	if err := g.repo.Storer.SetReference(r); err != nil {
		return dberr.Wrap(dberr.CannotWriteData, "setRefOid", ref, err)
	}
	return nil
}

// FastForward moves the current branch's HEAD and worktree state to
// targetOID (spec §4.9's fast-forward merge action).
func (g *Gateway) FastForward(targetOID string) error {
	hash := plumbing.NewHash(targetOID)
	if err := g.wt.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return dberr.Wrap(dberr.CannotWriteData, "fastForward", targetOID, err)
	}
	return nil
}

// ReadFileAtCommit returns the bytes of relPath as it exists in
// commitOID's tree, and false if the path does not exist there.
func (g *Gateway) ReadFileAtCommit(commitOID, relPath string) ([]byte, bool, error) {
	c, err := g.repo.CommitObject(plumbing.NewHash(commitOID))
	if err != nil {
		return nil, false, dberr.Wrap(dberr.RepositoryNotFound, "readFileAtCommit", commitOID, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, false, dberr.Wrap(dberr.CannotOpenRepository, "readFileAtCommit", commitOID, err)
	}
	f, err := tree.File(relPath)
	if err != nil {
		if err == object.ErrFileNotFound {
			return nil, false, nil
		}
		return nil, false, dberr.Wrap(dberr.CannotOpenRepository, "readFileAtCommit", relPath, err)
	}
	r, err := f.Reader()
	if err != nil {
		return nil, false, dberr.Wrap(dberr.CannotOpenRepository, "readFileAtCommit", relPath, err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// BlobOIDAtCommit returns the blob OID of relPath in commitOID's tree,
// and false if absent.
func (g *Gateway) BlobOIDAtCommit(commitOID, relPath string) (string, bool, error) {
	c, err := g.repo.CommitObject(plumbing.NewHash(commitOID))
	if err != nil {
		return "", false, dberr.Wrap(dberr.RepositoryNotFound, "blobOidAtCommit", commitOID, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return "", false, dberr.Wrap(dberr.CannotOpenRepository, "blobOidAtCommit", commitOID, err)
	}
	entry, err := tree.FindEntry(relPath)
	if err != nil {
		if err == object.ErrEntryNotFound || err == object.ErrDirectoryNotFound {
			return "", false, nil
		}
		return "", false, dberr.Wrap(dberr.CannotOpenRepository, "blobOidAtCommit", relPath, err)
	}
	return entry.Hash.String(), true, nil
}

// WalkTree lists every blob entry in commitOID's tree whose path
// starts with prefix (prefix "" lists everything), sorted by path.
func (g *Gateway) WalkTree(commitOID, prefix string) ([]TreeEntry, error) {
	c, err := g.repo.CommitObject(plumbing.NewHash(commitOID))
	if err != nil {
		return nil, dberr.Wrap(dberr.RepositoryNotFound, "walkTree", commitOID, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, dberr.Wrap(dberr.CannotOpenRepository, "walkTree", commitOID, err)
	}
	var entries []TreeEntry
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dberr.Wrap(dberr.CannotOpenRepository, "walkTree", commitOID, err)
		}
		if entry.Mode.IsFile() && strings.HasPrefix(name, prefix) {
			entries = append(entries, TreeEntry{Path: name, OID: entry.Hash.String(), Mode: "blob"})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// NormalizedCommitAt converts the Git commit at oid to the module's
// stable NormalizedCommit representation.
func (g *Gateway) NormalizedCommitAt(oid string) (types.NormalizedCommit, error) {
	c, err := g.repo.CommitObject(plumbing.NewHash(oid))
	if err != nil {
		return types.NormalizedCommit{}, dberr.Wrap(dberr.RepositoryNotFound, "normalizedCommitAt", oid, err)
	}
	return fromCommitObject(c), nil
}

func fromCommitObject(c *object.Commit) types.NormalizedCommit {
	parents := make([]string, 0, c.NumParents())
	for _, h := range c.ParentHashes {
		parents = append(parents, h.String())
	}
	return types.NormalizedCommit{
		OID:     c.Hash.String(),
		Message: c.Message,
		Parent:  parents,
		Author: types.Signature{
			Name: c.Author.Name, Email: c.Author.Email, Timestamp: c.Author.When,
		},
		Committer: types.Signature{
			Name: c.Committer.Name, Email: c.Committer.Email, Timestamp: c.Committer.When,
		},
	}
}

// IsMergeCommit reports whether the commit at oid has more than one
// parent. Per spec §9 open question #2, this structural test -- not a
// commit-message prefix match -- is readOldBlob's merge-commit filter:
// the commit-message template varies across strategies, but parent
// count does not.
func (g *Gateway) IsMergeCommit(oid string) (bool, error) {
	c, err := g.repo.CommitObject(plumbing.NewHash(oid))
	if err != nil {
		return false, dberr.Wrap(dberr.RepositoryNotFound, "isMergeCommit", oid, err)
	}
	return c.NumParents() > 1, nil
}

// FirstParentChain walks headOID's first-parent ancestry (oldest
// last), used by the CRUD Worker's getHistory/getBackNumber to avoid
// ordering by commit wall-clock time (spec §9 open question #1).
func (g *Gateway) FirstParentChain(headOID string) ([]*object.Commit, error) {
	var chain []*object.Commit
	oid := headOID
	for oid != "" {
		c, err := g.repo.CommitObject(plumbing.NewHash(oid))
		if err != nil {
			return nil, dberr.Wrap(dberr.RepositoryNotFound, "firstParentChain", oid, err)
		}
		chain = append(chain, c)
		if c.NumParents() == 0 {
			break
		}
		oid = c.ParentHashes[0].String()
	}
	return chain, nil
}

// MergeBase returns the best common ancestor OID of a and b, or "" if
// the histories are disjoint (spec §9.4 "combine database" path).
func (g *Gateway) MergeBase(a, b string) (string, error) {
	ca, err := g.repo.CommitObject(plumbing.NewHash(a))
	if err != nil {
		return "", dberr.Wrap(dberr.RepositoryNotFound, "mergeBase", a, err)
	}
	cb, err := g.repo.CommitObject(plumbing.NewHash(b))
	if err != nil {
		return "", dberr.Wrap(dberr.RepositoryNotFound, "mergeBase", b, err)
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", dberr.Wrap(dberr.NoMergeBaseFound, "mergeBase", "", err)
	}
	if len(bases) == 0 {
		return "", nil
	}
	return bases[0].Hash.String(), nil
}

// SaveAuthor mirrors name/email to .git/config's user.name/user.email
// (spec §6 saveAuthor/loadAuthor).
func (g *Gateway) SaveAuthor(name, email string) error {
	cfg, err := g.repo.Config()
	if err != nil {
		return dberr.Wrap(dberr.CannotWriteData, "saveAuthor", "", err)
	}
	cfg.User.Name = name
	cfg.User.Email = email
	return g.repo.SetConfig(cfg)
}

// LoadAuthor reads user.name/user.email from .git/config.
func (g *Gateway) LoadAuthor() (name, email string, err error) {
	cfg, err := g.repo.Config()
	if err != nil {
		return "", "", dberr.Wrap(dberr.CannotOpenRepository, "loadAuthor", "", err)
	}
	return cfg.User.Name, cfg.User.Email, nil
}

// Repository exposes the underlying go-git repository for callers
// that need lower-level access (the Remote Engine implementation).
func (g *Gateway) Repository() *git.Repository { return g.repo }

// Worktree exposes the underlying go-git worktree.
func (g *Gateway) Worktree() *git.Worktree { return g.wt }
