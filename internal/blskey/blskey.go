// Package blskey wraps the BLS12-381 scalar and point operations used by
// the rest of the gateway (key derivation, GraphEntry/Pointer signing).
// It is the sole place that imports the herumi binding, following the
// same "one package owns the crypto primitive" shape as upspin's
// factotum package, generalized from ECDSA to BLS12-381 because the
// derivation scheme (see derive.go) needs a curve that supports
// deriving a child public key from a parent public key alone.
package blskey

import (
	"encoding/hex"
	"sync"

	"github.com/herumi/bls-eth-go-binary/bls"

	"github.com/dweb-gateway/dwebgateway/internal/errors"
)

var initOnce sync.Once

// ensureInit initializes the BLS12-381 curve exactly once. bls.Init
// panics if called twice with different curves, so every entry point
// into this package routes through here first.
func ensureInit() {
	initOnce.Do(func() {
		if err := bls.Init(bls.BLS12_381); err != nil {
			panic("blskey: bls.Init failed: " + err.Error())
		}
	})
}

// SecretKey is a scalar private key in the BLS12-381 group.
type SecretKey struct {
	sk bls.SecretKey
}

// PublicKey is the point corresponding to a SecretKey.
type PublicKey struct {
	pk bls.PublicKey
}

// Signature is a BLS12-381 signature, or an aggregation of several.
type Signature struct {
	sig bls.Sign
}

// NewRandomSecretKey generates a fresh secret key using the system CSPRNG.
// Used only to create an OwnerSecret for a new, unrelated owner; every
// derived key in this package is produced deterministically by Derive.
func NewRandomSecretKey() SecretKey {
	ensureInit()
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	return SecretKey{sk}
}

// PublicKey returns the public key corresponding to s.
func (s SecretKey) PublicKey() PublicKey {
	ensureInit()
	return PublicKey{*s.sk.GetPublicKey()}
}

// Bytes returns the compressed serialized form of the secret scalar.
func (s SecretKey) Bytes() []byte {
	return s.sk.Serialize()
}

// Hex returns the hex-encoded serialized secret scalar.
func (s SecretKey) Hex() string {
	return hex.EncodeToString(s.Bytes())
}

// ParseSecretKeyHex parses a hex-encoded secret scalar.
func ParseSecretKeyHex(s string) (SecretKey, error) {
	const op = "blskey.ParseSecretKeyHex"
	ensureInit()
	raw, err := hex.DecodeString(s)
	if err != nil {
		return SecretKey{}, errors.E(op, errors.Invalid, err)
	}
	var sk bls.SecretKey
	if err := sk.Deserialize(raw); err != nil {
		return SecretKey{}, errors.E(op, errors.Invalid, err)
	}
	return SecretKey{sk}, nil
}

// Bytes returns the compressed serialized form of the public key.
func (p PublicKey) Bytes() []byte {
	return p.pk.Serialize()
}

// Hex returns the hex-encoded serialized public key. This is the
// HistoryAddress / PointerAddress / GraphEntryAddress representation
// used throughout the gateway.
func (p PublicKey) Hex() string {
	return hex.EncodeToString(p.Bytes())
}

// Equal reports whether p and q serialize to the same point.
func (p PublicKey) Equal(q PublicKey) bool {
	return p.pk.IsEqual(&q.pk)
}

// ParsePublicKeyHex parses a hex-encoded public key.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	const op = "blskey.ParsePublicKeyHex"
	ensureInit()
	raw, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, errors.E(op, errors.Invalid, err)
	}
	var pk bls.PublicKey
	if err := pk.Deserialize(raw); err != nil {
		return PublicKey{}, errors.E(op, errors.Invalid, err)
	}
	return PublicKey{pk}, nil
}

// Bytes returns the compressed serialized form of the signature.
func (s Signature) Bytes() []byte {
	return s.sig.Serialize()
}

// Hex returns the hex-encoded serialized signature.
func (s Signature) Hex() string {
	return hex.EncodeToString(s.Bytes())
}

// ParseSignatureHex parses a hex-encoded signature.
func ParseSignatureHex(s string) (Signature, error) {
	const op = "blskey.ParseSignatureHex"
	ensureInit()
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Signature{}, errors.E(op, errors.Invalid, err)
	}
	var sig bls.Sign
	if err := sig.Deserialize(raw); err != nil {
		return Signature{}, errors.E(op, errors.Invalid, err)
	}
	return Signature{sig}, nil
}

// Sign produces a signature over msg under s.
func Sign(s SecretKey, msg []byte) Signature {
	ensureInit()
	return Signature{*s.sk.SignByte(msg)}
}

// Verify reports whether sig is a valid signature over msg under pk.
func Verify(pk PublicKey, msg []byte, sig Signature) bool {
	ensureInit()
	return sig.sig.VerifyByte(&pk.pk, msg)
}

// Aggregate combines multiple signatures over (possibly distinct)
// messages into one, using the Add-based aggregation idiom. GraphEntry
// and Pointer each carry a single signature and do not use it.
func Aggregate(sigs []Signature) (Signature, error) {
	const op = "blskey.Aggregate"
	if len(sigs) == 0 {
		return Signature{}, errors.E(op, errors.Invalid, errors.Str("no signatures to aggregate"))
	}
	agg := sigs[0].sig
	for _, s := range sigs[1:] {
		agg.Add(&s.sig)
	}
	return Signature{agg}, nil
}
