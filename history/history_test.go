package history

import (
	"context"
	"testing"

	"github.com/dweb-gateway/dwebgateway/internal/blskey"
	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/storage/memstore"
)

func TestCreateRootCarriesTypeTag(t *testing.T) {
	ctx := context.Background()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()

	h, err := Create(ctx, client, owner, "site")
	if err != nil {
		t.Fatal(err)
	}
	root, err := h.GetEntry(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if root.Content != TypeTag {
		t.Fatalf("root.Content = %v, want TypeTag", root.Content)
	}
	if h.NumVersions() != 0 {
		t.Fatalf("NumVersions() = %d, want 0", h.NumVersions())
	}
}

func TestCreateEmptyNameRejected(t *testing.T) {
	ctx := context.Background()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()
	if _, err := Create(ctx, client, owner, ""); errors.KindOf(err) != errors.Invalid {
		t.Fatalf("KindOf(err) = %v, want Invalid", errors.KindOf(err))
	}
}

func TestPublishAndReadBack(t *testing.T) {
	ctx := context.Background()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()

	h, err := Create(ctx, client, owner, "site")
	if err != nil {
		t.Fatal(err)
	}

	addr1 := ids.NewArchiveAddress([]byte("version one"))
	version, err := h.PublishNewVersion(ctx, addr1)
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}

	addr2 := ids.NewArchiveAddress([]byte("version two"))
	version, err = h.PublishNewVersion(ctx, addr2)
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}

	if h.NumVersions() != 2 {
		t.Fatalf("NumVersions() = %d, want 2", h.NumVersions())
	}

	got, err := h.GetVersionValue(ctx, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != addr1 {
		t.Fatalf("version 1 = %x, want %x", got, addr1)
	}

	got, err = h.GetVersionValue(ctx, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != addr2 {
		t.Fatalf("version 2 = %x, want %x", got, addr2)
	}

	latest, err := h.GetVersionValue(ctx, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if latest != addr2 {
		t.Fatalf("latest = %x, want %x", latest, addr2)
	}
}

func TestGetVersionValueOutOfRange(t *testing.T) {
	ctx := context.Background()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()

	h, err := Create(ctx, client, owner, "site")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.PublishNewVersion(ctx, ids.NewArchiveAddress([]byte("v1"))); err != nil {
		t.Fatal(err)
	}

	_, err = h.GetVersionValue(ctx, 2, false)
	if errors.KindOf(err) != errors.NotExist {
		t.Fatalf("KindOf(err) = %v, want NotExist", errors.KindOf(err))
	}
}

func TestFromAddressReadOnlyCannotPublish(t *testing.T) {
	ctx := context.Background()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()

	h, err := Create(ctx, client, owner, "site")
	if err != nil {
		t.Fatal(err)
	}

	reader, err := FromAddress(ctx, client, h.Address(), false, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = reader.PublishNewVersion(ctx, ids.NewArchiveAddress([]byte("nope")))
	if errors.KindOf(err) != errors.Invalid {
		t.Fatalf("KindOf(err) = %v, want Invalid", errors.KindOf(err))
	}
}

func TestFromAddressTrustsPointerByDefault(t *testing.T) {
	ctx := context.Background()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()

	h, err := Create(ctx, client, owner, "site")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.PublishNewVersion(ctx, ids.NewArchiveAddress([]byte("v1"))); err != nil {
		t.Fatal(err)
	}
	if _, err := h.PublishNewVersion(ctx, ids.NewArchiveAddress([]byte("v2"))); err != nil {
		t.Fatal(err)
	}

	reader, err := FromAddress(ctx, client, h.Address(), false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if reader.NumVersions() != 2 {
		t.Fatalf("NumVersions() = %d, want 2", reader.NumVersions())
	}
}

func TestFromNameMatchesFromAddress(t *testing.T) {
	ctx := context.Background()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()

	created, err := Create(ctx, client, owner, "my-site")
	if err != nil {
		t.Fatal(err)
	}

	opened, err := FromName(ctx, client, owner, "my-site", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if opened.Address().Hex() != created.Address().Hex() {
		t.Fatalf("FromName address = %s, want %s", opened.Address().Hex(), created.Address().Hex())
	}
}

func TestInspectReportsPointerFreshness(t *testing.T) {
	ctx := context.Background()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()

	h, err := Create(ctx, client, owner, "site")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.PublishNewVersion(ctx, ids.NewArchiveAddress([]byte("v1"))); err != nil {
		t.Fatal(err)
	}

	report, err := h.Inspect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.PointerStale {
		t.Fatal("expected a freshly-published pointer to not be reported stale")
	}
	if report.NumEntries != 2 {
		t.Fatalf("NumEntries = %d, want 2", report.NumEntries)
	}
}
