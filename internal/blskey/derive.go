package blskey

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/herumi/bls-eth-go-binary/bls"
	"golang.org/x/crypto/hkdf"
)

// TroveTypeTag is the fixed 32-byte constant identifying the directory
// archive schema this gateway understands. Changing it invalidates
// every history derived before the change, by design (spec.md §4.A).
var TroveTypeTag = [32]byte{
	'd', 'w', 'e', 'b', '-', 't', 'r', 'o', 'v', 'e', '-', 'v', '1',
}

// HistoryPointerIndex is the fixed derivation tag distinguishing a
// history's pointer key from its entry keys.
var HistoryPointerIndex = [32]byte{
	'd', 'w', 'e', 'b', '-', 'h', 'i', 's', 't', 'o', 'r', 'y', '-', 'p', 'o', 'i', 'n', 't', 'e', 'r',
}

// scalarFromTag deterministically turns arbitrary public tag bytes into
// a scalar in the BLS12-381 group order. It depends only on tag, never
// on any secret, which is what lets DerivePublic work from a public key
// alone: child = parent (+) scalarFromTag(tag), on secrets or on points.
//
// Grounded on upspin's pack/ee.go use of golang.org/x/crypto/hkdf to turn
// a shared value into uniformly-distributed key material.
func scalarFromTag(tag []byte) bls.SecretKey {
	ensureInit()
	r := hkdf.New(sha256.New, tag, nil, []byte("dweb-gateway key derivation"))
	buf := make([]byte, 32)
	if _, err := io.ReadFull(r, buf); err != nil {
		panic("blskey: hkdf read failed: " + err.Error())
	}
	var sk bls.SecretKey
	if err := sk.SetLittleEndianMod(buf); err != nil {
		panic("blskey: SetLittleEndianMod failed: " + err.Error())
	}
	return sk
}

// Derive one-way combines a parent secret key with a public tag to
// produce a child secret key. Same (parent, tag) always yields the
// same child; different tags yield different, uncorrelated-looking
// children with overwhelming probability (spec.md P4).
func Derive(parent SecretKey, tag []byte) SecretKey {
	ensureInit()
	ts := scalarFromTag(tag)
	child := parent.sk
	child.Add(&ts)
	return SecretKey{child}
}

// DerivePublic performs the public-key-only half of Derive: given only
// the parent's public key and the tag, it produces the child public
// key that Derive(parentSecret, tag).PublicKey() would have produced,
// without ever touching parentSecret. This is what lets
// PointerAddressFromHistoryAddress work from a bare HistoryAddress.
func DerivePublic(parent PublicKey, tag []byte) PublicKey {
	ensureInit()
	ts := scalarFromTag(tag)
	tpk := ts.GetPublicKey()
	child := parent.pk
	child.Add(tpk)
	return PublicKey{child}
}

// HistoryMainSecret derives the root secret shared by every history the
// owner creates of this archive schema.
func HistoryMainSecret(owner SecretKey) SecretKey {
	return Derive(owner, TroveTypeTag[:])
}

// HistorySecret derives the secret identifying one named history. name
// must be non-empty; the caller is responsible for enforcing that
// (spec.md §4.A: "name must not be empty").
func HistorySecret(owner SecretKey, name string) SecretKey {
	return Derive(HistoryMainSecret(owner), []byte(name))
}

// PointerSecret derives the secret controlling a history's mutable
// pointer from that history's secret.
func PointerSecret(historySecret SecretKey) SecretKey {
	return Derive(historySecret, HistoryPointerIndex[:])
}

// PointerAddressFromHistoryAddress computes a history's pointer address
// from the history's public address alone.
func PointerAddressFromHistoryAddress(historyAddress PublicKey) PublicKey {
	return DerivePublic(historyAddress, HistoryPointerIndex[:])
}

// ObjectSecret derives the secret for an auxiliary, non-history object
// (e.g. a scratchpad) owned by owner. typeIndex distinguishes object
// kinds; name and appID are optional and, when absent, fold through the
// identity (i.e. contribute nothing to the tag) rather than being
// replaced by a sentinel value, so that omitting them is indistinguishable
// from never having had them.
func ObjectSecret(owner SecretKey, typeIndex uint32, name, appID *string) SecretKey {
	tag := objectTag(typeIndex, name, appID)
	return Derive(owner, tag)
}

func objectTag(typeIndex uint32, name, appID *string) []byte {
	h := sha256.New()
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], typeIndex)
	h.Write(idx[:])
	if name != nil {
		h.Write([]byte{1})
		writeLenPrefixed(h, *name)
	} else {
		h.Write([]byte{0})
	}
	if appID != nil {
		h.Write([]byte{1})
		writeLenPrefixed(h, *appID)
	} else {
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}

func writeLenPrefixed(h io.Writer, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
