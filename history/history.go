// Package history implements the HistoryEngine: a persistent,
// append-only sequence of directory-snapshot addresses identified by
// an owner-derived key, with one tamper-evident linked GraphEntry per
// version plus a mutable Pointer hint to the most recent entry.
//
// Grounded structurally on upspin.io/dir/server/tree's "mutable root
// over an append-only log" split: a History here plays the role of
// tree.Tree, history/graph.Walker plays serverlog's append-only log.
package history

import (
	"context"
	"crypto/rand"

	"github.com/dweb-gateway/dwebgateway/history/graph"
	"github.com/dweb-gateway/dwebgateway/internal/blskey"
	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
)

// TypeTag is the content of a root entry (e₀), fixing the schema this
// gateway's histories carry. Changing it would invalidate every
// previously-created history of this type, so it is a constant, not a
// parameter.
var TypeTag = [32]byte{'d', 'w', 'e', 'b', '-', 'd', 'i', 'r', 'e', 'c', 't', 'o', 'r', 'y', '-', 'v', '1'}

// History is an opened handle on one owner's version sequence: the
// public address, the cached head/count from the last refresh, and
// (for writers) the derived secret needed to append.
type History struct {
	client storage.Client
	walker *graph.Walker

	address ids.HistoryAddress
	secret  *blskey.SecretKey // nil for read-only handles opened by address

	headEntry  storage.GraphEntry
	numEntries uint32
}

// Address returns the history's public address.
func (h *History) Address() ids.HistoryAddress { return h.address }

// NumVersions returns the number of published versions, per §4.C.3's
// num_entries = num_versions + 1.
func (h *History) NumVersions() uint32 { return h.numEntries - 1 }

// Create writes a new history's root entry and initial pointer. name
// must be non-empty: it is folded into the derivation so the same
// owner can hold many independently-addressed histories.
func Create(ctx context.Context, client storage.Client, owner blskey.SecretKey, name string) (*History, error) {
	const op = "history.Create"
	if name == "" {
		return nil, errors.E(op, errors.Invalid, errors.Str("name must not be empty"))
	}

	historySecret := blskey.HistorySecret(owner, name)
	historyAddr := ids.NewGraphEntryAddress(historySecret.PublicKey())

	nextDerivation, err := randomDerivationIndex()
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	nextSecret := blskey.Derive(historySecret, nextDerivation[:])

	root := storage.GraphEntry{
		Owner:   historyAddr,
		Content: TypeTag,
		Descendants: []storage.Descendant{
			{PublicKey: ids.NewGraphEntryAddress(nextSecret.PublicKey()), DerivationIndex: nextDerivation},
		},
	}
	root.Signature = blskey.Sign(historySecret, root.SignedBytes())

	if err := client.PutGraphEntry(ctx, root); err != nil {
		return nil, errors.E(op, err)
	}

	pointerSecret := blskey.PointerSecret(historySecret)
	pointer := storage.Pointer{
		Owner:   ids.NewPointerAddress(pointerSecret.PublicKey()),
		Counter: 0,
		Target:  historyAddr,
	}
	pointer.Signature = blskey.Sign(pointerSecret, pointer.SignedBytes())

	if err := client.PutPointer(ctx, pointer); err != nil {
		return nil, errors.E(op, err)
	}

	sk := historySecret
	return &History{
		client:     client,
		walker:     graph.New(client),
		address:    ids.NewHistoryAddress(historyAddr.PublicKey()),
		secret:     &sk,
		headEntry:  root,
		numEntries: 1,
	}, nil
}

// FromName opens a history for writing, deriving its address from
// owner and name rather than being handed the address directly.
func FromName(ctx context.Context, client storage.Client, owner blskey.SecretKey, name string, ignorePointer bool, minEntry uint32) (*History, error) {
	const op = "history.FromName"
	if name == "" {
		return nil, errors.E(op, errors.Invalid, errors.Str("name must not be empty"))
	}
	historySecret := blskey.HistorySecret(owner, name)
	h, err := open(ctx, client, ids.NewHistoryAddress(historySecret.PublicKey()), ignorePointer, minEntry)
	if err != nil {
		return nil, errors.E(op, err)
	}
	sk := historySecret
	h.secret = &sk
	return h, nil
}

// FromAddress opens a history for read-only access given its public
// address.
func FromAddress(ctx context.Context, client storage.Client, addr ids.HistoryAddress, ignorePointer bool, minEntry uint32) (*History, error) {
	h, err := open(ctx, client, addr, ignorePointer, minEntry)
	if err != nil {
		return nil, errors.E("history.FromAddress", err)
	}
	return h, nil
}

// open implements the shared refresh algorithm of spec §4.C.1: trust
// the pointer hint unless asked to ignore it or the hint looks stale
// relative to minEntry, in which case fall back to an honest forward
// walk from the pointer's last-known target.
func open(ctx context.Context, client storage.Client, addr ids.HistoryAddress, ignorePointer bool, minEntry uint32) (*History, error) {
	w := graph.New(client)

	rootAddr := ids.NewGraphEntryAddress(addr.PublicKey())
	pointerAddr := ids.NewPointerAddress(blskey.PointerAddressFromHistoryAddress(addr.PublicKey()))

	pointer, err := client.GetPointer(ctx, pointerAddr)
	if errors.KindOf(err) == errors.NotExist {
		// No pointer ever written (or lost): fall back to the root and
		// walk the whole chain.
		root, gerr := w.GetEntry(ctx, rootAddr)
		if gerr != nil {
			return nil, gerr
		}
		return walkToHead(ctx, client, w, addr, root, 0)
	}
	if err != nil {
		return nil, err
	}

	if ignorePointer || minEntry > pointer.Counter {
		target, gerr := w.GetEntry(ctx, pointer.Target)
		if gerr != nil {
			return nil, gerr
		}
		return walkToHead(ctx, client, w, addr, target, pointer.Counter)
	}

	head, err := w.GetEntry(ctx, pointer.Target)
	if err != nil {
		return nil, err
	}
	return &History{
		client:     client,
		walker:     w,
		address:    addr,
		headEntry:  head,
		numEntries: pointer.Counter + 1,
	}, nil
}

// walkToHead follows descendants from start (reached at baseCounter)
// to the end of the chain, the honest-but-slow path of §4.C.1 step 2.
func walkToHead(ctx context.Context, client storage.Client, w *graph.Walker, addr ids.HistoryAddress, start storage.GraphEntry, baseCounter uint32) (*History, error) {
	entry := start
	steps := uint32(0)
	for {
		next, ok, err := w.WalkForward(ctx, entry)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entry = next
		steps++
	}
	return &History{
		client:     client,
		walker:     w,
		address:    addr,
		headEntry:  entry,
		numEntries: baseCounter + steps + 1,
	}, nil
}

// GetEntry returns the entry at index i (0 is the root), walking from
// whichever end of the chain is closer.
func (h *History) GetEntry(ctx context.Context, i uint32) (storage.GraphEntry, error) {
	const op = "history.GetEntry"
	if i >= h.numEntries {
		return storage.GraphEntry{}, errors.E(op, errors.NotExist, errors.Str("index out of range"))
	}

	if i <= h.numEntries/2 {
		entry, err := h.walker.GetEntry(ctx, ids.NewGraphEntryAddress(h.address.PublicKey()))
		if err != nil {
			return storage.GraphEntry{}, errors.E(op, err)
		}
		for step := uint32(0); step < i; step++ {
			next, ok, err := h.walker.WalkForward(ctx, entry)
			if err != nil {
				return storage.GraphEntry{}, errors.E(op, err)
			}
			if !ok {
				return storage.GraphEntry{}, errors.E(op, errors.NotExist, errors.Str("chain ended early"))
			}
			entry = next
		}
		return entry, nil
	}

	entry := h.headEntry
	for step := h.numEntries - 1; step > i; step-- {
		prev, ok, err := h.walker.WalkBackward(ctx, entry)
		if err != nil {
			return storage.GraphEntry{}, errors.E(op, err)
		}
		if !ok {
			return storage.GraphEntry{}, errors.E(op, errors.NotExist, errors.Str("chain ended early"))
		}
		entry = prev
	}
	return entry, nil
}

// GetVersionValue resolves version v to an ArchiveAddress. v==0 means
// "most recent" (§4.C.3): if ignorePointer is set, the history is
// refreshed by a forward walk first; otherwise the cached head is used
// as it is.
func (h *History) GetVersionValue(ctx context.Context, v ids.Version, ignorePointer bool) (ids.ContentAddress, error) {
	const op = "history.GetVersionValue"

	if v.IsLatest() {
		if ignorePointer {
			refreshed, err := open(ctx, h.client, h.address, true, 0)
			if err != nil {
				return ids.ContentAddress{}, errors.E(op, err)
			}
			secret := h.secret
			*h = *refreshed
			h.secret = secret
		}
		return ids.ContentAddress(h.headEntry.Content), nil
	}

	numVersions := h.NumVersions()
	if uint32(v) > numVersions {
		return ids.ContentAddress{}, errors.E(op, errors.NotExist, errors.Str("version out of range"))
	}
	entry, err := h.GetEntry(ctx, uint32(v))
	if err != nil {
		return ids.ContentAddress{}, errors.E(op, err)
	}
	return ids.ContentAddress(entry.Content), nil
}

// PublishNewVersion appends a new entry pointing at archiveAddress,
// implementing the race-tolerant append algorithm of spec §4.C.2.
//
// The address a new entry will occupy is not chosen by its writer: it
// was already committed into the current head's sole descendant slot
// when that head was written. Two writers racing to extend the same
// head therefore compute the exact same next address and genuinely
// collide on PutGraphEntry, rather than each landing on an
// independent random address; the loser discovers the winner's entry
// at that address and chases the chain from there.
func (h *History) PublishNewVersion(ctx context.Context, archiveAddress ids.ContentAddress) (uint32, error) {
	const op = "history.PublishNewVersion"
	if h.secret == nil {
		return 0, errors.E(op, errors.Invalid, errors.Str("history was opened read-only"))
	}
	historySecret := *h.secret

	current := h.headEntry
	counter := h.numEntries - 1

	for {
		if len(current.Descendants) == 0 {
			return 0, errors.E(op, errors.IO, errors.Str("head entry has no committed descendant slot"))
		}
		committed := current.Descendants[0]
		childSecret := blskey.Derive(historySecret, committed.DerivationIndex[:])
		childAddr := ids.NewGraphEntryAddress(childSecret.PublicKey())
		if !childAddr.Equal(committed.PublicKey) {
			return 0, errors.E(op, errors.IO, errors.Str("derived address does not match committed descendant"))
		}

		nextDerivation, err := randomDerivationIndex()
		if err != nil {
			return 0, errors.E(op, errors.IO, err)
		}
		grandchildSecret := blskey.Derive(historySecret, nextDerivation[:])
		grandchildAddr := ids.NewGraphEntryAddress(grandchildSecret.PublicKey())

		newEntry := storage.GraphEntry{
			Owner:   childAddr,
			Parents: []ids.GraphEntryAddress{current.Address()},
			Content: [32]byte(archiveAddress),
			Descendants: []storage.Descendant{
				{PublicKey: grandchildAddr, DerivationIndex: nextDerivation},
			},
		}
		newEntry.Signature = blskey.Sign(childSecret, newEntry.SignedBytes())

		err = h.client.PutGraphEntry(ctx, newEntry)
		if err == nil {
			h.headEntry = newEntry
			h.numEntries = counter + 2
			counter++

			pointerSecret := blskey.PointerSecret(historySecret)
			pointer := storage.Pointer{
				Owner:   ids.NewPointerAddress(pointerSecret.PublicKey()),
				Counter: counter,
				Target:  newEntry.Address(),
			}
			pointer.Signature = blskey.Sign(pointerSecret, pointer.SignedBytes())
			// Best-effort: readers tolerate a stale pointer via the
			// forward-walk fallback in open(), so a failure here does
			// not unwind the already-durable entry write.
			_ = h.client.PutPointer(ctx, pointer)

			return counter, nil
		}
		if errors.KindOf(err) != errors.Exist {
			return 0, errors.E(op, err)
		}
		// Another writer already filled the committed slot; pick up
		// their entry as the new current head and chase forward in
		// case they themselves have since been overtaken.
		next, walkErr := h.walker.GetEntry(ctx, childAddr)
		if walkErr != nil {
			return 0, errors.E(op, walkErr)
		}
		current = next
		counter++
		for {
			forward, ok, walkErr := h.walker.WalkForward(ctx, current)
			if walkErr != nil {
				return 0, errors.E(op, walkErr)
			}
			if !ok {
				break
			}
			current = forward
			counter++
		}
	}
}

func randomDerivationIndex() (idx [32]byte, err error) {
	_, err = rand.Read(idx[:])
	return idx, err
}

// Report is a read-only diagnostic snapshot of a History, surfaced by
// Inspect for operators debugging a stale pointer or a suspected fork
// without mutating anything.
type Report struct {
	HistoryAddress string
	PointerAddress string
	RootAddress    string
	HeadAddress    string
	NumEntries     uint32
	PointerCounter uint32
	PointerStale   bool
}

// Inspect reports the history's current pointer and head state. It
// never repairs a stale or forked pointer: fixing one requires a
// successful PublishNewVersion, which this intentionally does not
// attempt on the caller's behalf.
func (h *History) Inspect(ctx context.Context) (Report, error) {
	const op = "history.Inspect"
	pointerAddr := ids.NewPointerAddress(blskey.PointerAddressFromHistoryAddress(h.address.PublicKey()))
	pointer, err := h.client.GetPointer(ctx, pointerAddr)
	if err != nil && errors.KindOf(err) != errors.NotExist {
		return Report{}, errors.E(op, err)
	}

	report := Report{
		HistoryAddress: h.address.Hex(),
		PointerAddress: pointerAddr.Hex(),
		RootAddress:    ids.NewGraphEntryAddress(h.address.PublicKey()).Hex(),
		HeadAddress:    h.headEntry.Address().Hex(),
		NumEntries:     h.numEntries,
	}
	if err == nil {
		report.PointerCounter = pointer.Counter
		report.PointerStale = pointer.Counter+1 != h.numEntries
	}
	return report, nil
}
