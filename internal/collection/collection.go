// Package collection implements C6: a lightweight path-prefix namespace
// view over C4. Creating a Collection does not create a directory or
// touch the repository -- it is purely a name-joining adapter that
// forwards every operation, through the Task Queue, to the shared
// crud.Worker (spec §4.6).
package collection

import (
	"context"
	"strings"

	"github.com/gitddb/gitddb/internal/crud"
	"github.com/gitddb/gitddb/internal/queue"
	"github.com/gitddb/gitddb/internal/types"
)

// Collection is a read-through namespace: callers pass short names
// relative to collectionPath, and it joins them onto the underlying
// Worker's full repository-relative paths.
type Collection struct {
	path   string // collectionPath, normalized with a single trailing slash (or "" for the root collection)
	worker *crud.Worker
	q      *queue.Queue
}

// New returns a Collection rooted at collectionPath. An empty
// collectionPath addresses the root of the repository.
func New(collectionPath string, worker *crud.Worker, q *queue.Queue) *Collection {
	return &Collection{path: normalizePath(collectionPath), worker: worker, q: q}
}

// Path returns the collection's collectionPath as passed to New,
// normalized (no leading slash, one trailing slash unless root).
func (c *Collection) Path() string { return c.path }

func normalizePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (c *Collection) fullName(shortName string) string {
	return c.path + shortName
}

// shortName strips the collection prefix back off a full path, the
// inverse of fullName, used when translating FatDocs returned by Find
// back into collection-relative IDs.
func (c *Collection) shortName(fullName string) string {
	return strings.TrimPrefix(fullName, c.path)
}

// Put enqueues a put task for name (auto-generates an _id if doc has
// none) and returns a future for the result.
func (c *Collection) Put(ctx context.Context, name string, doc types.JsonDoc) *queue.Future[types.PutResult] {
	full := c.fullName(name)
	return queue.Enqueue(c.q, types.TaskPut, "put", full, func(ctx context.Context) (types.PutResult, error) {
		res, err := c.worker.Put(full, doc)
		res.ID = c.shortName(res.ID)
		return res, err
	})
}

// Insert enqueues an insert task; fails with SameIdExists if the path
// already exists in HEAD.
func (c *Collection) Insert(ctx context.Context, name string, doc types.JsonDoc) *queue.Future[types.PutResult] {
	full := c.fullName(name)
	return queue.Enqueue(c.q, types.TaskInsert, "insert", full, func(ctx context.Context) (types.PutResult, error) {
		res, err := c.worker.Insert(full, doc)
		res.ID = c.shortName(res.ID)
		return res, err
	})
}

// Update enqueues an update task; fails with DocumentNotFound if the
// path is absent from HEAD.
func (c *Collection) Update(ctx context.Context, name string, doc types.JsonDoc) *queue.Future[types.PutResult] {
	full := c.fullName(name)
	return queue.Enqueue(c.q, types.TaskUpdate, "update", full, func(ctx context.Context) (types.PutResult, error) {
		res, err := c.worker.Update(full, doc)
		res.ID = c.shortName(res.ID)
		return res, err
	})
}

// Delete enqueues a delete task.
func (c *Collection) Delete(ctx context.Context, name string) *queue.Future[types.DeleteResult] {
	full := c.fullName(name)
	return queue.Enqueue(c.q, types.TaskDelete, "delete", full, func(ctx context.Context) (types.DeleteResult, error) {
		res, err := c.worker.Delete(full)
		res.ID = c.shortName(res.ID)
		return res, err
	})
}

// Get reads the current document at name directly from HEAD. Reads
// bypass the queue (spec §5): they observe a commit-atomic snapshot by
// reading HEAD once and walking from there, tolerating concurrent
// writes from the queue thread.
func (c *Collection) Get(name string) (types.JsonDoc, bool, error) {
	return c.worker.Get(c.fullName(name))
}

// GetFatDoc reads the current document at name plus its storage
// metadata (fileOid, type, name) from HEAD.
func (c *Collection) GetFatDoc(name string) (types.FatDoc, bool, error) {
	fd, found, err := c.worker.GetFatDoc(c.fullName(name))
	if found {
		fd.ID = name
	}
	return fd, found, err
}

// GetHistory returns the full first-parent chain of distinct revisions
// at name, newest first, with immediately repeated values collapsed
// and deletions retained (spec §4.4's literal history example).
func (c *Collection) GetHistory(name string, filter crud.HistoryFilter) ([]*types.FatDoc, error) {
	return c.worker.GetHistory(c.fullName(name), filter)
}

// GetBackNumber returns the n-th distinct revision (0 = most recent)
// at name, walking the same collapsed history as GetHistory.
func (c *Collection) GetBackNumber(name string, n int, filter crud.HistoryFilter) (*types.FatDoc, bool, error) {
	return c.worker.GetBackNumber(c.fullName(name), n, filter)
}

// Find scans every path under the collection in one pass and returns the
// matching FatDocs with IDs rewritten back to collection-relative
// short names.
func (c *Collection) Find(opts crud.FindOptions) ([]types.FatDoc, error) {
	opts.Prefix = c.path + opts.Prefix
	docs, err := c.worker.Find(opts)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].ID = c.shortName(docs[i].ID)
	}
	return docs, nil
}
