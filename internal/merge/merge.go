// Package merge implements C8: the three-way merge and
// operational-transform conflict resolver (spec §4.8). For every path
// touched in base/local/remote it classifies the change per the
// spec's 18-case decision table (design note "Three-way merge decision
// table": tabulate the {∅,=B,≠B}³ combinations as a pure function) and
// either carries it forward unchanged, accepts one side, or resolves a
// conflict with the requested ConflictStrategy, optionally
// three-way-merging schema-nominated plaintext fields with
// sergi/go-diff's patch machinery.
package merge

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/gitddb/gitddb/internal/dberr"
	"github.com/gitddb/gitddb/internal/gitgw"
	"github.com/gitddb/gitddb/internal/serialize"
	"github.com/gitddb/gitddb/internal/types"
)

// Schema lists, per document type, which string properties are
// plaintext-OT and so get a three-way text merge under ours-diff /
// theirs-diff instead of a wholesale pick (spec §4.8, glossary
// "Plaintext-OT property").
type Schema map[types.DocType][]string

func (s Schema) fieldsFor(t types.DocType) []string { return s[t] }

// Resolver runs a three-way merge across two diverged Git histories
// and commits the result as a merge commit with both heads as parents.
type Resolver struct {
	gw      *gitgw.Gateway
	formats *serialize.Registry
	schema  Schema
}

// NewResolver returns a Resolver writing through gw.
func NewResolver(gw *gitgw.Gateway, formats *serialize.Registry, schema Schema) *Resolver {
	if schema == nil {
		schema = Schema{}
	}
	return &Resolver{gw: gw, formats: formats, schema: schema}
}

// Input describes one merge round (spec §4.8's B, L, R inputs).
type Input struct {
	Base, Local, Remote string // commit OIDs. Base == "" means disjoint histories (handled by the Sync Engine, not here).
	Strategy             types.ConflictStrategy
	Author, Committer    types.Signature
	MessageOverride      string // if set, used verbatim instead of the derived resolve:/merge template
}

// Result is what the resolver produced: the new merge commit plus the
// spec's ChangedFile/Conflict bookkeeping for the SyncResult.
type Result struct {
	MergeCommit string
	Changes     []types.ChangedFile
	Conflicts   []types.Conflict
}

// op is the internal classification of one path's three-way state.
type op int

const (
	opNone op = iota
	opInsertFromRemote
	opUpdateFromRemote
	opDelete
	opInsertMergeConflict
	opUpdateMergeConflict
	opConflictRemoteUpdateLocalDelete // case 11: present in B,R; absent in L; R != B
	opConflictLocalUpdateRemoteDelete // case 12: present in B,L; absent in R; L != B
)

// classify implements the spec's 18-case decision table (the 27 raw
// {∅,=B,≠B}³ combinations collapse to this because a present path can
// only be "=B" when B itself is present). bOk/lOk/rOk report presence;
// the eq flags compare content across the pairs where that comparison
// is meaningful.
func classify(bOk, lOk, rOk, lEqR, lEqB, rEqB bool) op {
	switch {
	case lOk && rOk && lEqR:
		// case 3: present on both sides with identical content,
		// whether or not base exists -- already agree, nothing to do.
		return opNone
	case !lOk && !rOk:
		// case 10 (base present) / trivial (base absent): both sides
		// lack the path.
		return opNone
	case !bOk:
		switch {
		case lOk && !rOk:
			return opNone // case 1: only in L
		case !lOk && rOk:
			return opInsertFromRemote // case 2: only in R
		default:
			return opInsertMergeConflict // case 4: differ, no common ancestor
		}
	default: // bOk
		switch {
		case lOk && !rOk:
			if lEqB {
				return opDelete // case 9: remote deleted, local untouched -> honor delete
			}
			return opConflictLocalUpdateRemoteDelete // case 12
		case !lOk && rOk:
			if rEqB {
				return opDelete // case 8: local deleted, remote untouched -> honor delete
			}
			return opConflictRemoteUpdateLocalDelete // case 11
		default: // both present, already known to differ from each other
			switch {
			case rEqB:
				return opNone // case 5: remote unchanged, local ahead -- local wins
			case lEqB:
				return opUpdateFromRemote // case 6: local unchanged, remote ahead
			default:
				return opUpdateMergeConflict // case 7: all three differ
			}
		}
	}
}

func bytesEq(a, b []byte) bool { return string(a) == string(b) }

func (r *Resolver) readAt(oid, path string) (data []byte, ok bool, err error) {
	if oid == "" {
		return nil, false, nil
	}
	return r.gw.ReadFileAtCommit(oid, path)
}

func (r *Resolver) listPaths(oids ...string) ([]string, error) {
	seen := map[string]struct{}{}
	for _, oid := range oids {
		if oid == "" {
			continue
		}
		entries, err := r.gw.WalkTree(oid, "")
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			seen[e.Path] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

func (r *Resolver) format(path string) serialize.Format {
	if f, ok := r.formats.Lookup(extOf(path)); ok {
		return f
	}
	return serialize.JSON
}

func (r *Resolver) docType(path string) types.DocType {
	if r.format(path).Ext() == serialize.JSONExt {
		return types.DocTypeJSON
	}
	return types.DocTypeText
}

// Merge runs the three-way merge described by in. The working tree
// and index are expected to already reflect in.Local (the Sync
// Engine's HEAD at the start of the round); Merge mutates them in
// place and commits once, with in.Remote as the extra parent.
func (r *Resolver) Merge(in Input) (Result, error) {
	paths, err := r.listPaths(in.Base, in.Local, in.Remote)
	if err != nil {
		return Result{}, err
	}

	var changes []types.ChangedFile
	var conflicts []types.Conflict
	var resolveLines []string

	for _, path := range paths {
		bBytes, bOk, err := r.readAt(in.Base, path)
		if err != nil {
			return Result{}, err
		}
		lBytes, lOk, err := r.readAt(in.Local, path)
		if err != nil {
			return Result{}, err
		}
		rBytes, rOk, err := r.readAt(in.Remote, path)
		if err != nil {
			return Result{}, err
		}

		o := classify(bOk, lOk, rOk, lOk && rOk && bytesEq(lBytes, rBytes), bOk && lOk && bytesEq(bBytes, lBytes), bOk && rOk && bytesEq(bBytes, rBytes))

		switch o {
		case opNone:
			continue

		case opInsertFromRemote:
			if err := r.gw.WriteFile(path, rBytes); err != nil {
				return Result{}, err
			}
			newFD, err := r.fatDocPtr(path, rBytes, r.docType(path))
			if err != nil {
				return Result{}, err
			}
			changes = append(changes, types.ChangedFile{Operation: types.OpInsert, New: newFD})

		case opUpdateFromRemote:
			if err := r.gw.WriteFile(path, rBytes); err != nil {
				return Result{}, err
			}
			oldFD, err := r.fatDocPtr(path, lBytes, r.docType(path))
			if err != nil {
				return Result{}, err
			}
			newFD, err := r.fatDocPtr(path, rBytes, r.docType(path))
			if err != nil {
				return Result{}, err
			}
			changes = append(changes, types.ChangedFile{Operation: types.OpUpdate, Old: oldFD, New: newFD})

		case opDelete:
			if lOk {
				if err := r.gw.RemoveFile(path); err != nil {
					return Result{}, err
				}
			}
			oldFD, err := r.fatDocPtr(path, firstNonNil(lBytes, bBytes), r.docType(path))
			if err != nil {
				return Result{}, err
			}
			changes = append(changes, types.ChangedFile{Operation: types.OpDelete, Old: oldFD})

		case opInsertMergeConflict:
			merged, err := r.resolveFields(nil, lBytes, rBytes, in.Strategy, path)
			if err != nil {
				return Result{}, err
			}
			if err := r.gw.WriteFile(path, merged); err != nil {
				return Result{}, err
			}
			fd, err := r.fatDoc(path, merged, r.docType(path))
			if err != nil {
				return Result{}, err
			}
			conflicts = append(conflicts, types.Conflict{FatDoc: fd, Strategy: in.Strategy, Operation: types.OpInsertMerge})
			changes = append(changes, types.ChangedFile{Operation: types.OpInsertMerge, New: &fd})
			resolveLines = append(resolveLines, resolveLine(path, types.OpInsertMerge, fd.FileOid, in.Strategy))

		case opUpdateMergeConflict:
			merged, err := r.resolveFields(bBytes, lBytes, rBytes, in.Strategy, path)
			if err != nil {
				return Result{}, err
			}
			if err := r.gw.WriteFile(path, merged); err != nil {
				return Result{}, err
			}
			fd, err := r.fatDoc(path, merged, r.docType(path))
			if err != nil {
				return Result{}, err
			}
			oldFD, err := r.fatDocPtr(path, lBytes, r.docType(path))
			if err != nil {
				return Result{}, err
			}
			conflicts = append(conflicts, types.Conflict{FatDoc: fd, Strategy: in.Strategy, Operation: types.OpUpdateMerge})
			changes = append(changes, types.ChangedFile{Operation: types.OpUpdateMerge, Old: oldFD, New: &fd})
			resolveLines = append(resolveLines, resolveLine(path, types.OpUpdateMerge, fd.FileOid, in.Strategy))

		case opConflictRemoteUpdateLocalDelete:
			// Local deleted it, remote kept editing it. No common text
			// to three-way merge against an absence, so the diff
			// strategies degrade to their non-diff counterpart here.
			if pickesRemote(in.Strategy) {
				if err := r.gw.WriteFile(path, rBytes); err != nil {
					return Result{}, err
				}
				fd, err := r.fatDoc(path, rBytes, r.docType(path))
				if err != nil {
					return Result{}, err
				}
				conflicts = append(conflicts, types.Conflict{FatDoc: fd, Strategy: in.Strategy, Operation: types.OpUpdate})
				changes = append(changes, types.ChangedFile{Operation: types.OpUpdate, New: &fd})
				resolveLines = append(resolveLines, resolveLine(path, types.OpUpdate, fd.FileOid, in.Strategy))
			} else {
				fd, err := r.fatDoc(path, bBytes, r.docType(path))
				if err != nil {
					return Result{}, err
				}
				conflicts = append(conflicts, types.Conflict{FatDoc: fd, Strategy: in.Strategy, Operation: types.OpDelete})
				changes = append(changes, types.ChangedFile{Operation: types.OpDelete, Old: &fd})
				resolveLines = append(resolveLines, resolveLine(path, types.OpDelete, fd.FileOid, in.Strategy))
			}

		case opConflictLocalUpdateRemoteDelete:
			// Remote deleted it, local kept editing it.
			if pickesRemote(in.Strategy) {
				if err := r.gw.RemoveFile(path); err != nil {
					return Result{}, err
				}
				fd, err := r.fatDoc(path, lBytes, r.docType(path))
				if err != nil {
					return Result{}, err
				}
				conflicts = append(conflicts, types.Conflict{FatDoc: fd, Strategy: in.Strategy, Operation: types.OpDelete})
				changes = append(changes, types.ChangedFile{Operation: types.OpDelete, Old: &fd})
				resolveLines = append(resolveLines, resolveLine(path, types.OpDelete, fd.FileOid, in.Strategy))
			} else {
				fd, err := r.fatDoc(path, lBytes, r.docType(path))
				if err != nil {
					return Result{}, err
				}
				conflicts = append(conflicts, types.Conflict{FatDoc: fd, Strategy: in.Strategy, Operation: types.OpUpdate})
				changes = append(changes, types.ChangedFile{Operation: types.OpUpdate, New: &fd})
				resolveLines = append(resolveLines, resolveLine(path, types.OpUpdate, fd.FileOid, in.Strategy))
			}
		}
	}

	message := in.MessageOverride
	if message == "" {
		if len(resolveLines) > 0 {
			message = strings.Join(resolveLines, "\n")
		} else {
			message = "merge"
		}
	}

	commitOID, err := r.gw.Commit(gitgw.CommitOptions{
		Message:      message,
		Author:       in.Author,
		Committer:    in.Committer,
		ExtraParents: []string{in.Remote},
	})
	if err != nil {
		return Result{}, err
	}

	return Result{MergeCommit: commitOID, Changes: changes, Conflicts: conflicts}, nil
}

func firstNonNil(a, b []byte) []byte {
	if a != nil {
		return a
	}
	return b
}

func pickesRemote(s types.ConflictStrategy) bool {
	return s == types.StrategyTheirs || s == types.StrategyTheirsDiff
}

// resolveFields implements the ours/theirs/ours-diff/theirs-diff
// strategies (spec §4.8 "Strategies"). base may be nil for
// insert-merge, where absence is treated as the empty string per
// spec. Non-schema or non-string fields present on only one side are
// carried through unchanged (a plain union); fields present on both
// sides that are not plaintext-OT are taken wholesale from the chosen
// side.
func (r *Resolver) resolveFields(base, local, remote []byte, strategy types.ConflictStrategy, path string) ([]byte, error) {
	format := r.format(path)

	localDoc, err := format.Unmarshal(local)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidJSONObject, "resolve", path, err)
	}
	remoteDoc, err := format.Unmarshal(remote)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidJSONObject, "resolve", path, err)
	}

	var chosen, other types.JsonDoc
	if strategy == types.StrategyTheirs || strategy == types.StrategyTheirsDiff {
		chosen, other = remoteDoc, localDoc
	} else {
		chosen, other = localDoc, remoteDoc
	}

	if strategy == types.StrategyOurs || strategy == types.StrategyTheirs {
		return format.Marshal(chosen)
	}

	var baseDoc types.JsonDoc
	if base != nil {
		baseDoc, err = format.Unmarshal(base)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidJSONObject, "resolve", path, err)
		}
	}

	plaintext := map[string]bool{}
	for _, f := range r.schema.fieldsFor(r.docType(path)) {
		plaintext[f] = true
	}

	result := types.JsonDoc{}
	keys := map[string]struct{}{}
	for k := range chosen {
		keys[k] = struct{}{}
	}
	for k := range other {
		keys[k] = struct{}{}
	}

	for k := range keys {
		cv, cHas := chosen[k]
		ov, oHas := other[k]
		switch {
		case cHas && oHas:
			if reflect.DeepEqual(cv, ov) {
				result[k] = cv
				continue
			}
			if plaintext[k] {
				cs, cok := cv.(string)
				os, ook := ov.(string)
				if cok && ook {
					bs, _ := stringField(baseDoc, k)
					result[k] = diff3Merge(bs, cs, os)
					continue
				}
			}
			result[k] = cv // wholesale from the chosen side on conflict
		case cHas:
			result[k] = cv
		default:
			result[k] = ov
		}
	}
	return format.Marshal(result)
}

func stringField(d types.JsonDoc, key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// diff3Merge computes the edits from base to other and replays them
// onto chosen (sergi/go-diff's Myers-diff patch machinery), so
// non-overlapping edits compose and overlapping ones favor chosen's
// own text near the conflicting context (spec §4.8: "operational-
// transform of character edits ... overlapping ranges use the chosen
// side's edits"). Known limitation: overlapping delete+reinsert on
// both sides can yield a nonsensical merge (spec §9, open question 3)
// -- intentionally unhandled.
func diff3Merge(base, chosen, other string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(base, other, false)
	patches := dmp.PatchMake(base, diffs)
	merged, _ := dmp.PatchApply(patches, chosen)
	return merged
}

func (r *Resolver) fatDoc(path string, data []byte, t types.DocType) (types.FatDoc, error) {
	oid, err := r.gw.WriteBlob(data)
	if err != nil {
		return types.FatDoc{}, err
	}
	name := strings.TrimSuffix(path, extOf(path))
	return types.FatDoc{ID: name, Name: path, FileOid: oid, Type: t}, nil
}

func (r *Resolver) fatDocPtr(path string, data []byte, t types.DocType) (*types.FatDoc, error) {
	fd, err := r.fatDoc(path, data, t)
	if err != nil {
		return nil, err
	}
	return &fd, nil
}

// resolveLine renders spec §4.8's commit-message template:
// "resolve: <name>(<operation>,<short-oid>,<strategy>)".
func resolveLine(path string, operation types.ChangedOp, oid string, strategy types.ConflictStrategy) string {
	name := strings.TrimSuffix(path, extOf(path))
	short := oid
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("resolve: %s(%s,%s,%s)", name, operation, short, strategy)
}
