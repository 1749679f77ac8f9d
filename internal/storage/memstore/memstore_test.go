package memstore

import (
	"context"
	"testing"

	"github.com/dweb-gateway/dwebgateway/internal/blskey"
	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
)

func TestPublicRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	addr, err := s.PutPublic(ctx, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetPublic(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestGetPublicMissing(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.GetPublic(ctx, ids.NewArchiveAddress([]byte("never stored")))
	if errors.KindOf(err) != errors.NotExist {
		t.Fatalf("KindOf(err) = %v, want NotExist", errors.KindOf(err))
	}
}

func TestPrivateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	datamap, err := s.PutPrivate(ctx, []byte("secret bytes"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetPrivate(ctx, datamap)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "secret bytes" {
		t.Fatalf("got %q, want %q", got, "secret bytes")
	}
}

func TestPutGraphEntryAlreadyExists(t *testing.T) {
	ctx := context.Background()
	s := New()
	entry := storage.GraphEntry{Owner: testOwner(t)}

	if err := s.PutGraphEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}
	err := s.PutGraphEntry(ctx, entry)
	if errors.KindOf(err) != errors.Exist {
		t.Fatalf("KindOf(err) = %v, want Exist", errors.KindOf(err))
	}
}

func testOwner(t *testing.T) ids.GraphEntryAddress {
	t.Helper()
	return ids.NewGraphEntryAddress(blskey.NewRandomSecretKey().PublicKey())
}
