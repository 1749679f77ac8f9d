// Package storage defines the contract for the peer-to-peer storage
// primitives this gateway builds on: chunk / graph-entry / pointer /
// immutable-data GET and PUT. Per spec.md §1 these are explicitly out
// of scope for this module's core; only their contracts appear here,
// the way upspin.io/upspin declares StoreServer/DirServer as interfaces
// that concrete transports (GCP, remote RPC, in-process) implement
// separately. internal/storage/memstore provides the one concrete,
// in-process implementation this module ships, used by tests and by
// the demo/local-only binary.
package storage

import (
	"context"

	"github.com/dweb-gateway/dwebgateway/internal/blskey"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
)

// Descendant names one child slot of a GraphEntry: the child's address
// and the derivation index used to compute it from the history secret.
type Descendant struct {
	PublicKey       ids.GraphEntryAddress
	DerivationIndex [32]byte
}

// GraphEntry is one immutable node of a history's linked list (spec.md
// §3.2). len(Parents) <= 1; len(Descendants) >= 1 for every non-head
// entry written by this gateway, though a freshly-appended head has
// its single descendant slot populated eagerly (see
// history.PublishNewVersion).
type GraphEntry struct {
	Owner       ids.GraphEntryAddress
	Parents     []ids.GraphEntryAddress
	Content     [32]byte
	Descendants []Descendant
	Signature   blskey.Signature
}

// Address is the network address of e: its owner's public key.
func (e GraphEntry) Address() ids.GraphEntryAddress { return e.Owner }

// SignedBytes returns the canonical encoding of the fields a
// GraphEntry's signature covers. Deterministic field order matters:
// this is what both the signer and any verifier must hash.
func (e GraphEntry) SignedBytes() []byte {
	var buf []byte
	buf = append(buf, e.Owner.PublicKey().Bytes()...)
	for _, p := range e.Parents {
		buf = append(buf, p.PublicKey().Bytes()...)
	}
	buf = append(buf, e.Content[:]...)
	for _, d := range e.Descendants {
		buf = append(buf, d.PublicKey.PublicKey().Bytes()...)
		buf = append(buf, d.DerivationIndex[:]...)
	}
	return buf
}

// Pointer is the mutable hint naming a history's current head entry
// (spec.md §3.2). Counter is monotonically non-decreasing; a write
// with a higher counter always wins over a stale one.
type Pointer struct {
	Owner     ids.PointerAddress
	Counter   uint32
	Target    ids.GraphEntryAddress
	Signature blskey.Signature
}

// SignedBytes returns the canonical encoding of the fields a Pointer's
// signature covers.
func (p Pointer) SignedBytes() []byte {
	var buf []byte
	buf = append(buf, p.Owner.PublicKey().Bytes()...)
	var counter [4]byte
	counter[0] = byte(p.Counter >> 24)
	counter[1] = byte(p.Counter >> 16)
	counter[2] = byte(p.Counter >> 8)
	counter[3] = byte(p.Counter)
	buf = append(buf, counter[:]...)
	buf = append(buf, p.Target.PublicKey().Bytes()...)
	return buf
}

// Client is the contract every storage backend (in-memory, or a real
// peer-to-peer client) must satisfy.
//
// GetGraphEntry returns every GraphEntry found at addr: normally
// exactly one, but more than one when a write race produced a fork
// (spec.md §4.B); the caller (history/graph.Walker) is responsible for
// applying the fork-resolution policy. A *errors.Error of Kind NotExist
// is returned when nothing is stored at addr; Kind IO after the
// backend's own retry budget is exhausted.
type Client interface {
	GetGraphEntry(ctx context.Context, addr ids.GraphEntryAddress) ([]GraphEntry, error)

	// PutGraphEntry stores a new entry. It returns a Kind Exist *errors.Error
	// carrying the already-stored entries when addr is already occupied
	// (spec.md §4.C.2's "AlreadyExists" race outcome); storage layers
	// that cannot natively detect this should emulate it as a
	// compare-and-swap on the owner address.
	PutGraphEntry(ctx context.Context, e GraphEntry) error

	GetPointer(ctx context.Context, addr ids.PointerAddress) (Pointer, error)
	PutPointer(ctx context.Context, p Pointer) error

	// GetPublic fetches the bytes stored at a content address (public
	// archives and public file content).
	GetPublic(ctx context.Context, addr ids.ArchiveAddress) ([]byte, error)
	// PutPublic stores data and returns its content address.
	PutPublic(ctx context.Context, data []byte) (ids.ArchiveAddress, error)

	// GetPrivate reassembles a file directly from an embedded
	// self-encryption datamap chunk, with no further network lookup.
	GetPrivate(ctx context.Context, datamap []byte) ([]byte, error)
	// PutPrivate self-encrypts data and returns its datamap chunk.
	PutPrivate(ctx context.Context, data []byte) ([]byte, error)
}

// AlreadyExistsError carries the entries already present at the
// address a PutGraphEntry call collided on, so the caller can chase
// the chain per spec.md §4.C.2 without a second round trip.
type AlreadyExistsError struct {
	Address ids.GraphEntryAddress
	Entries []GraphEntry
}

func (e *AlreadyExistsError) Error() string {
	return "graph entry already exists at " + e.Address.Hex()
}
