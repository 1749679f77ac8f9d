// Package graph implements GraphWalker: fetching and traversing the
// single-parent / single-descendant linked GraphEntry chain that
// backs a History, with fork tolerance (spec.md §4.B).
//
// Grounded on original_source/dweb-lib/src/helpers/graph_entry.rs's
// graph_entry_get, which resolves a storage-layer Fork by picking the
// entry whose descendant derivation index sorts smallest, and
// structurally on upspin.io/dir/server/tree.Log's "ordered entries
// plus forward/backward traversal" shape.
package graph

import (
	"bytes"
	"context"

	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
)

// Walker fetches and traverses GraphEntry chains on top of a
// storage.Client, applying the fork-resolution policy every caller
// needs so History doesn't have to know about it.
type Walker struct {
	client storage.Client
}

// New returns a Walker backed by client.
func New(client storage.Client) *Walker {
	return &Walker{client: client}
}

// GetEntry fetches the entry at addr, deterministically resolving any
// fork by selecting the candidate whose descendant derivation index
// sorts lexicographically smallest (spec.md §4.B fork policy).
func (w *Walker) GetEntry(ctx context.Context, addr ids.GraphEntryAddress) (storage.GraphEntry, error) {
	const op = "graph.GetEntry"
	entries, err := w.client.GetGraphEntry(ctx, addr)
	if err != nil {
		return storage.GraphEntry{}, errors.E(op, err)
	}
	if len(entries) == 0 {
		return storage.GraphEntry{}, errors.E(op, errors.NotExist, errors.Str("empty result for "+addr.Hex()))
	}
	return resolveFork(entries), nil
}

// resolveFork picks the entry with the smallest first-descendant
// derivation index. An entry with no descendants (a terminal head that
// has not yet been extended) sorts last, since it cannot be a race
// participant for "which entry comes next".
func resolveFork(entries []storage.GraphEntry) storage.GraphEntry {
	best := entries[0]
	bestIdx, bestHas := derivationIndexOf(best)
	for _, e := range entries[1:] {
		idx, has := derivationIndexOf(e)
		switch {
		case !has:
			continue
		case !bestHas:
			best, bestIdx, bestHas = e, idx, true
		case bytes.Compare(idx[:], bestIdx[:]) < 0:
			best, bestIdx = e, idx
		}
	}
	return best
}

func derivationIndexOf(e storage.GraphEntry) (idx [32]byte, ok bool) {
	if len(e.Descendants) == 0 {
		return idx, false
	}
	return e.Descendants[0].DerivationIndex, true
}

// WalkForward returns the first descendant of e, or ok=false if e is
// terminal (its descendant address has nothing stored at it).
// Absence is the normal, expected termination signal: callers must not
// treat it as an error.
func (w *Walker) WalkForward(ctx context.Context, e storage.GraphEntry) (next storage.GraphEntry, ok bool, err error) {
	if len(e.Descendants) == 0 {
		return storage.GraphEntry{}, false, nil
	}
	next, err = w.GetEntry(ctx, e.Descendants[0].PublicKey)
	if errors.KindOf(err) == errors.NotExist {
		return storage.GraphEntry{}, false, nil
	}
	if err != nil {
		return storage.GraphEntry{}, false, errors.E("graph.WalkForward", err)
	}
	return next, true, nil
}

// WalkBackward returns the unique parent of e, or ok=false if e is the
// root (no parent).
func (w *Walker) WalkBackward(ctx context.Context, e storage.GraphEntry) (parent storage.GraphEntry, ok bool, err error) {
	if len(e.Parents) == 0 {
		return storage.GraphEntry{}, false, nil
	}
	parent, err = w.GetEntry(ctx, e.Parents[0])
	if err != nil {
		return storage.GraphEntry{}, false, errors.E("graph.WalkBackward", err)
	}
	return parent, true, nil
}
