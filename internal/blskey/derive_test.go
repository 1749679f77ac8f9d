package blskey

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	owner := NewRandomSecretKey()
	a := HistorySecret(owner, "demo")
	b := HistorySecret(owner, "demo")
	if a.Hex() != b.Hex() {
		t.Fatalf("HistorySecret not deterministic: %s != %s", a.Hex(), b.Hex())
	}
}

func TestDeriveDistinctNames(t *testing.T) {
	owner := NewRandomSecretKey()
	a := HistorySecret(owner, "demo")
	b := HistorySecret(owner, "other")
	if a.Hex() == b.Hex() {
		t.Fatalf("HistorySecret(demo) == HistorySecret(other)")
	}
}

func TestPointerAddressFromHistoryAddressMatchesSecretPath(t *testing.T) {
	owner := NewRandomSecretKey()
	historySecret := HistorySecret(owner, "demo")
	historyAddress := historySecret.PublicKey()

	wantViaSecret := PointerSecret(historySecret).PublicKey()
	gotViaPublicOnly := PointerAddressFromHistoryAddress(historyAddress)

	if !wantViaSecret.Equal(gotViaPublicOnly) {
		t.Fatalf("pointer address derived from public key does not match the one derived from the secret")
	}
}

func TestObjectSecretFoldsOptionalInputs(t *testing.T) {
	owner := NewRandomSecretKey()
	base := ObjectSecret(owner, 1, nil, nil)
	baseAgain := ObjectSecret(owner, 1, nil, nil)
	if base.Hex() != baseAgain.Hex() {
		t.Fatalf("ObjectSecret with identical nil inputs not deterministic")
	}

	name := "scratch-1"
	withName := ObjectSecret(owner, 1, &name, nil)
	if withName.Hex() == base.Hex() {
		t.Fatalf("ObjectSecret should differ once a name is supplied")
	}

	appID := "app-1"
	withAppID := ObjectSecret(owner, 1, nil, &appID)
	if withAppID.Hex() == base.Hex() || withAppID.Hex() == withName.Hex() {
		t.Fatalf("ObjectSecret should differ across distinct optional inputs")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	sk := NewRandomSecretKey()
	msg := []byte("graph entry payload")
	sig := Sign(sk, msg)

	if !Verify(sk.PublicKey(), msg, sig) {
		t.Fatalf("Verify failed for a freshly produced signature")
	}
	if Verify(sk.PublicKey(), []byte("tampered payload"), sig) {
		t.Fatalf("Verify succeeded for a tampered message")
	}
}

func TestPublicKeyHexRoundTrip(t *testing.T) {
	sk := NewRandomSecretKey()
	pk := sk.PublicKey()

	parsed, err := ParsePublicKeyHex(pk.Hex())
	if err != nil {
		t.Fatalf("ParsePublicKeyHex: %v", err)
	}
	if !pk.Equal(parsed) {
		t.Fatalf("round-tripped public key does not match original")
	}
}
