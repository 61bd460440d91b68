// Package crud implements C4: the per-operation logic the Task Queue
// dispatches against the Blob/Tree Gateway -- put, insert, update,
// delete, get, getFatDoc, getBackNumber, getHistory, and find (spec
// §4.4). It generalizes internal/storage/metadata.go's JSON-value
// validation helper from "metadata value" to "document value" and adds
// the _id <-> file path mapping and ULID auto-generation the teacher
// never needed.
package crud

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/gitddb/gitddb/internal/dberr"
	"github.com/gitddb/gitddb/internal/gitgw"
	"github.com/gitddb/gitddb/internal/idgen"
	"github.com/gitddb/gitddb/internal/serialize"
	"github.com/gitddb/gitddb/internal/types"
	"github.com/gitddb/gitddb/internal/validation"
)

// Worker executes CRUD operations against a single Gateway. It has no
// concept of collection namespacing; the "name" it receives is already
// the full repository-relative path (minus extension) the caller
// wants, exactly as spec §4.4 describes the worker receiving
// collection-prefixed paths.
type Worker struct {
	gw        *gitgw.Gateway
	formats   *serialize.Registry
	defaultFmt serialize.Format
	author    types.Signature
	committer types.Signature
}

// NewWorker returns a Worker writing documents through gw, using
// formats to resolve/marshal serialization formats and author/
// committer as the commit identity (spec §6 defaults or overrides).
func NewWorker(gw *gitgw.Gateway, formats *serialize.Registry, author, committer types.Signature) *Worker {
	return &Worker{gw: gw, formats: formats, defaultFmt: serialize.JSON, author: author, committer: committer}
}

// FindOptions configures Find's scan (spec §4.4). Only a path prefix
// is supported; there is no pattern matching.
type FindOptions struct {
	Prefix string
}

func (w *Worker) signatures(when time.Time) (types.Signature, types.Signature) {
	a, c := w.author, w.committer
	if when.IsZero() {
		when = time.Now()
	}
	a.Timestamp, c.Timestamp = when, when
	return a, c
}

// resolveExisting looks for name stored under any registered
// extension at headOID's tree, returning the path used and its
// extension. found is false if no extension matches.
func (w *Worker) resolveExisting(headOID, name string) (path, ext string, found bool, err error) {
	if headOID == "" {
		return "", "", false, nil
	}
	for _, e := range sortedExtensions(w.formats) {
		candidate := name + e
		_, ok, err := w.gw.BlobOIDAtCommit(headOID, candidate)
		if err != nil {
			return "", "", false, err
		}
		if ok {
			return candidate, e, true, nil
		}
	}
	return "", "", false, nil
}

func sortedExtensions(r *serialize.Registry) []string {
	exts := r.Extensions()
	sort.Strings(exts)
	return exts
}

func (w *Worker) head() (string, error) { return w.gw.HeadOID() }

// put is the shared implementation backing Put, Insert, and Update;
// mode distinguishes their existence preconditions.
type putMode int

const (
	modePut putMode = iota
	modeInsert
	modeUpdate
)

func (w *Worker) put(mode putMode, name string, doc types.JsonDoc) (types.PutResult, error) {
	head, err := w.head()
	if err != nil {
		return types.PutResult{}, err
	}

	if name == "" {
		name = doc.ID()
	}
	if name == "" {
		name = idgen.NewDocID()
	}
	if err := validation.ValidateID(name); err != nil {
		return types.PutResult{}, err
	}

	existingPath, _, found, err := w.resolveExisting(head, name)
	if err != nil {
		return types.PutResult{}, err
	}

	switch mode {
	case modeInsert:
		if found {
			return types.PutResult{}, dberr.Wrap(dberr.SameIDExists, "insert", name, nil)
		}
	case modeUpdate:
		if !found {
			return types.PutResult{}, dberr.Wrap(dberr.DocumentNotFound, "update", name, nil)
		}
	}

	format := w.defaultFmt
	path := name + format.Ext()
	if found {
		path = existingPath
		if f, ok := w.formats.Lookup(extOf(existingPath)); ok {
			format = f
		}
	}

	clean := doc.Clone()
	if clean == nil {
		clean = types.JsonDoc{}
	}
	clean["_id"] = name
	data, err := format.Marshal(clean)
	if err != nil {
		return types.PutResult{}, dberr.Wrap(dberr.InvalidJSONObject, string(opName(mode)), name, err)
	}

	if err := w.gw.WriteFile(path, data); err != nil {
		return types.PutResult{}, err
	}

	a, c := w.signatures(time.Time{})
	commitOID, err := w.gw.Commit(gitgw.CommitOptions{
		Message:   string(opName(mode)) + ": " + name,
		Author:    a,
		Committer: c,
	})
	if err != nil {
		return types.PutResult{}, err
	}
	nc, err := w.gw.NormalizedCommitAt(commitOID)
	if err != nil {
		return types.PutResult{}, err
	}
	oid, _, err := w.gw.BlobOIDAtCommit(commitOID, path)
	if err != nil {
		return types.PutResult{}, err
	}

	return types.PutResult{
		ID:      name,
		Name:    path,
		FileOid: oid,
		Type:    docType(format),
		Commit:  nc,
	}, nil
}

func opName(mode putMode) types.TaskKind {
	switch mode {
	case modeInsert:
		return types.TaskInsert
	case modeUpdate:
		return types.TaskUpdate
	default:
		return types.TaskPut
	}
}

func docType(f serialize.Format) types.DocType {
	if f.Ext() == serialize.JSONExt {
		return types.DocTypeJSON
	}
	return types.DocTypeText
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

// Put writes doc at name, auto-generating "_id" if name and doc both
// omit it, overwriting any existing document at that path.
func (w *Worker) Put(name string, doc types.JsonDoc) (types.PutResult, error) {
	return w.put(modePut, name, doc)
}

// Insert is like Put but fails with SameIdExists if the path exists.
func (w *Worker) Insert(name string, doc types.JsonDoc) (types.PutResult, error) {
	return w.put(modeInsert, name, doc)
}

// Update is like Put but fails with DocumentNotFound if the path is absent.
func (w *Worker) Update(name string, doc types.JsonDoc) (types.PutResult, error) {
	return w.put(modeUpdate, name, doc)
}

// Delete removes name's document, failing with DocumentNotFound if absent.
func (w *Worker) Delete(name string) (types.DeleteResult, error) {
	head, err := w.head()
	if err != nil {
		return types.DeleteResult{}, err
	}
	path, ext, found, err := w.resolveExisting(head, name)
	if err != nil {
		return types.DeleteResult{}, err
	}
	if !found {
		return types.DeleteResult{}, dberr.Wrap(dberr.DocumentNotFound, "delete", name, nil)
	}
	format, ok := w.formats.Lookup(ext)
	if !ok {
		format = w.defaultFmt
	}

	oidBefore, _, err := w.gw.BlobOIDAtCommit(head, path)
	if err != nil {
		return types.DeleteResult{}, err
	}

	if err := w.gw.RemoveFile(path); err != nil {
		return types.DeleteResult{}, err
	}
	a, c := w.signatures(time.Time{})
	commitOID, err := w.gw.Commit(gitgw.CommitOptions{
		Message:   "delete: " + name,
		Author:    a,
		Committer: c,
	})
	if err != nil {
		return types.DeleteResult{}, err
	}
	nc, err := w.gw.NormalizedCommitAt(commitOID)
	if err != nil {
		return types.DeleteResult{}, err
	}
	return types.DeleteResult{
		ID:      name,
		Name:    path,
		FileOid: oidBefore,
		Type:    docType(format),
		Commit:  nc,
	}, nil
}

// Get returns the latest document at name on HEAD, parsed, or
// found=false if absent.
func (w *Worker) Get(name string) (doc types.JsonDoc, found bool, err error) {
	fd, found, err := w.GetFatDoc(name)
	if err != nil || !found {
		return nil, found, err
	}
	return fd.Doc, true, nil
}

// GetFatDoc is like Get but also returns storage metadata.
func (w *Worker) GetFatDoc(name string) (types.FatDoc, bool, error) {
	head, err := w.head()
	if err != nil {
		return types.FatDoc{}, false, err
	}
	path, ext, found, err := w.resolveExisting(head, name)
	if err != nil {
		return types.FatDoc{}, false, err
	}
	if !found {
		return types.FatDoc{}, false, nil
	}
	return w.readFatDocAt(head, name, path, ext)
}

func (w *Worker) readFatDocAt(commitOID, name, path, ext string) (types.FatDoc, bool, error) {
	data, ok, err := w.gw.ReadFileAtCommit(commitOID, path)
	if err != nil || !ok {
		return types.FatDoc{}, ok, err
	}
	format, ok := w.formats.Lookup(ext)
	if !ok {
		format = w.defaultFmt
	}
	doc, err := format.Unmarshal(data)
	if err != nil {
		return types.FatDoc{}, false, dberr.Wrap(dberr.InvalidJSONObject, "getFatDoc", name, err)
	}
	doc["_id"] = name
	oid, _, err := w.gw.BlobOIDAtCommit(commitOID, path)
	if err != nil {
		return types.FatDoc{}, false, err
	}
	return types.FatDoc{ID: name, Name: path, FileOid: oid, Type: docType(format), Doc: doc}, true, nil
}

// HistoryFilter lets callers skip commits while reconstructing
// history, e.g. to exclude merge commits (spec §9 open question #2;
// see gitgw.Gateway.IsMergeCommit for the merge-commit predicate this
// is typically composed with).
type HistoryFilter func(types.NormalizedCommit) bool

// GetHistory returns name's first-parent revision chain, newest first,
// with immediately-repeated content collapsed and deletions retained
// as nil entries (spec §4.4's literal history example, §9 open
// question #1: ordered by DAG topology, never by commit timestamp).
func (w *Worker) GetHistory(name string, filter HistoryFilter) ([]*types.FatDoc, error) {
	head, err := w.head()
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, nil
	}
	chain, err := w.gw.FirstParentChain(head)
	if err != nil {
		return nil, err
	}

	var out []*types.FatDoc
	var lastData []byte
	haveLast := false

	for _, c := range chain {
		nc, err := w.gw.NormalizedCommitAt(c.Hash.String())
		if err != nil {
			return nil, err
		}
		if filter != nil && !filter(nc) {
			continue
		}

		var cur []byte
		var curFat *types.FatDoc
		found := false
		for _, ext := range sortedExtensions(w.formats) {
			path := name + ext
			data, ok, err := w.gw.ReadFileAtCommit(c.Hash.String(), path)
			if err != nil {
				return nil, err
			}
			if ok {
				found = true
				cur = data
				fd, _, err := w.readFatDocAt(c.Hash.String(), name, path, ext)
				if err != nil {
					return nil, err
				}
				curFat = &fd
				break
			}
		}
		if !found {
			cur = nil
			curFat = nil
		}

		if haveLast && bytes.Equal(lastData, cur) {
			continue
		}
		haveLast = true
		lastData = cur
		out = append(out, curFat)
	}
	return out, nil
}

// GetBackNumber returns the n-th entry (0 = current) of GetHistory's
// result, or (nil, false, nil) if n is out of range.
func (w *Worker) GetBackNumber(name string, n int, filter HistoryFilter) (*types.FatDoc, bool, error) {
	hist, err := w.GetHistory(name, filter)
	if err != nil {
		return nil, false, err
	}
	if n < 0 || n >= len(hist) {
		return nil, false, nil
	}
	return hist[n], true, nil
}

// Find returns every document whose name starts with opts.Prefix,
// ordered by path.
func (w *Worker) Find(opts FindOptions) ([]types.FatDoc, error) {
	head, err := w.head()
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, nil
	}
	entries, err := w.gw.WalkTree(head, opts.Prefix)
	if err != nil {
		return nil, err
	}
	out := make([]types.FatDoc, 0, len(entries))
	for _, e := range entries {
		ext := extOf(e.Path)
		if _, ok := w.formats.Lookup(ext); !ok {
			continue
		}
		name := strings.TrimSuffix(e.Path, ext)
		fd, ok, err := w.readFatDocAt(head, name, e.Path, ext)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, fd)
		}
	}
	return out, nil
}
