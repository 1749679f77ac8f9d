// Package ids defines the small family of address types the gateway
// resolves between: keys derived via internal/blskey for histories,
// pointers, and graph entries, and content hashes for archives and
// file content. Each is given a distinct Go type, in the same spirit
// as upspin.io/upspin's PathName/UserName/Reference: the type alone
// documents which namespace a string or byte slice belongs to.
package ids

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dweb-gateway/dwebgateway/internal/blskey"
	"github.com/dweb-gateway/dwebgateway/internal/errors"
)

// HistoryAddress is the public key identifying a history.
type HistoryAddress struct{ pub blskey.PublicKey }

// NewHistoryAddress wraps a public key as a HistoryAddress.
func NewHistoryAddress(pub blskey.PublicKey) HistoryAddress { return HistoryAddress{pub} }

// PublicKey returns the underlying public key.
func (h HistoryAddress) PublicKey() blskey.PublicKey { return h.pub }

// Hex returns the hex encoding used on the wire and in URLs.
func (h HistoryAddress) Hex() string { return h.pub.Hex() }

// IsZero reports whether h holds no key.
func (h HistoryAddress) IsZero() bool { return len(h.pub.Bytes()) == 0 }

// ParseHistoryAddressHex parses a hex-encoded history address.
func ParseHistoryAddressHex(s string) (HistoryAddress, error) {
	pub, err := blskey.ParsePublicKeyHex(s)
	if err != nil {
		return HistoryAddress{}, errors.E("ids.ParseHistoryAddressHex", errors.Invalid, err)
	}
	return HistoryAddress{pub}, nil
}

// PointerAddress is the public key owning a history's mutable pointer.
type PointerAddress struct{ pub blskey.PublicKey }

func NewPointerAddress(pub blskey.PublicKey) PointerAddress { return PointerAddress{pub} }
func (p PointerAddress) PublicKey() blskey.PublicKey        { return p.pub }
func (p PointerAddress) Hex() string                        { return p.pub.Hex() }

// GraphEntryAddress is the public key owning one GraphEntry.
type GraphEntryAddress struct{ pub blskey.PublicKey }

func NewGraphEntryAddress(pub blskey.PublicKey) GraphEntryAddress { return GraphEntryAddress{pub} }
func (g GraphEntryAddress) PublicKey() blskey.PublicKey           { return g.pub }
func (g GraphEntryAddress) Hex() string                           { return g.pub.Hex() }
func (g GraphEntryAddress) Equal(o GraphEntryAddress) bool        { return g.pub.Equal(o.pub) }

func ParseGraphEntryAddressHex(s string) (GraphEntryAddress, error) {
	pub, err := blskey.ParsePublicKeyHex(s)
	if err != nil {
		return GraphEntryAddress{}, errors.E("ids.ParseGraphEntryAddressHex", errors.Invalid, err)
	}
	return GraphEntryAddress{pub}, nil
}

// ContentHashSize is the width of an ArchiveAddress/ContentAddress.
const ContentHashSize = sha256.Size

// ArchiveAddress is the network address of an immutable serialized
// directory archive.
type ArchiveAddress [ContentHashSize]byte

// NewArchiveAddress computes the content address of data the way the
// in-memory and future real storage backends both would: a SHA-256 of
// the bytes. Immutable-data addressing in the real network is a
// content hash of this shape; the exact hash function is the
// out-of-scope storage layer's concern. The in-memory reference backend
// under internal/storage/memstore uses this helper, and package tree
// uses it to derive its built-in favicon address.
func NewArchiveAddress(data []byte) ArchiveAddress {
	return ArchiveAddress(sha256.Sum256(data))
}

func (a ArchiveAddress) Hex() string    { return hex.EncodeToString(a[:]) }
func (a ArchiveAddress) IsZero() bool   { return a == ArchiveAddress{} }
func (a ArchiveAddress) String() string { return a.Hex() }

// ParseArchiveAddressHex parses a hex-encoded archive address.
func ParseArchiveAddressHex(s string) (ArchiveAddress, error) {
	var a ArchiveAddress
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != ContentHashSize {
		return a, errors.E("ids.ParseArchiveAddressHex", errors.Invalid, errors.Str("malformed archive address"))
	}
	copy(a[:], raw)
	return a, nil
}

// ContentAddress is the network address of an immutable file-content
// datamap. For private files there is no ContentAddress: the datamap
// chunk itself travels embedded in the archive entry.
type ContentAddress = ArchiveAddress

// Version identifies a user-visible snapshot of a history. Version 0
// is reserved as the sentinel meaning "most recent".
type Version uint32

// IsLatest reports whether v is the "most recent" sentinel.
func (v Version) IsLatest() bool { return v == 0 }
