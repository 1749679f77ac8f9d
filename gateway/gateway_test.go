package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dweb-gateway/dwebgateway/history"
	"github.com/dweb-gateway/dwebgateway/internal/blskey"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
	"github.com/dweb-gateway/dwebgateway/internal/storage/memstore"
	"github.com/dweb-gateway/dwebgateway/gateway/portregistry"
	"github.com/dweb-gateway/dwebgateway/resolver"
	"github.com/dweb-gateway/dwebgateway/tree"
)

// publishArchive builds a one-file public archive and publishes it as
// a new version of h, returning the archive's content address.
func publishArchive(t *testing.T, ctx context.Context, client storage.Client, h *history.History, body string) ids.ArchiveAddress {
	t.Helper()
	contentAddr, err := client.PutPublic(ctx, []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	a := tree.NewArchive(tree.ArchivePublic)
	a.AddFile("/", tree.FileEntry{Name: "index.html", ContentAddress: contentAddr, HasAddress: true})
	raw, err := a.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	archiveAddr, err := client.PutPublic(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.PublishNewVersion(ctx, archiveAddr); err != nil {
		t.Fatal(err)
	}
	return archiveAddr
}

func newTestGateway(t *testing.T) (*Gateway, storage.Client, *history.History) {
	t.Helper()
	client := memstore.New()
	owner := blskey.NewRandomSecretKey()
	ctx := context.Background()
	h, err := history.Create(ctx, client, owner, "demo")
	if err != nil {
		t.Fatal(err)
	}
	names := resolver.NewNameRegistry()
	res := resolver.New(client, names)
	ports := portregistry.New(portregistry.DefaultCapacity)
	return New(res, names, ports, client), client, h
}

func fetchBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	return resp.StatusCode, string(buf[:n])
}

// fetchETag follows the 303 to the spawned VersionServer and returns
// the ETag header it set on the response.
func fetchETag(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	return resp.Header.Get("ETag")
}

func TestOpenByHistoryAddressRedirectsAndServes(t *testing.T) {
	gw, client, h := newTestGateway(t)
	ctx := context.Background()
	publishArchive(t, ctx, client, h, "<h1>Hi</h1>")

	srv := httptest.NewServer(gw)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/dweb-open/" + h.Address().Hex())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	// httptest's default client follows redirects, landing on the spawned
	// VersionServer's own response.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestVersionPinning(t *testing.T) {
	gw, client, h := newTestGateway(t)
	ctx := context.Background()
	publishArchive(t, ctx, client, h, "<h1>Hi</h1>")
	publishArchive(t, ctx, client, h, "<h1>Bye</h1>")

	srv := httptest.NewServer(gw)
	defer srv.Close()

	_, body := fetchBody(t, srv.URL+"/dweb-open/v1/"+h.Address().Hex())
	if body != "<h1>Hi</h1>" {
		t.Fatalf("v1 body = %q, want <h1>Hi</h1>", body)
	}

	_, body = fetchBody(t, srv.URL+"/dweb-open/"+h.Address().Hex())
	if body != "<h1>Bye</h1>" {
		t.Fatalf("latest body = %q, want <h1>Bye</h1>", body)
	}
}

// TestPinnedVersionETagDiffersFromLatestFormat exercises the exact
// ambiguity a past version of computeETag got wrong: an explicitly
// pinned version resolved through a history must get the hyphenated,
// no-suffix "immutable-{addr}" ETag, the same as a direct
// archive-address fetch, not the "-v{N}" suffixed form "latest"
// resolution gets.
func TestPinnedVersionETagDiffersFromLatestFormat(t *testing.T) {
	gw, client, h := newTestGateway(t)
	ctx := context.Background()
	publishArchive(t, ctx, client, h, "<h1>Hi</h1>")

	srv := httptest.NewServer(gw)
	defer srv.Close()

	pinnedETag := fetchETag(t, srv.URL+"/dweb-open/v1/"+h.Address().Hex())
	latestETag := fetchETag(t, srv.URL+"/dweb-open/"+h.Address().Hex())

	if pinnedETag == "" || latestETag == "" {
		t.Fatalf("expected both requests to carry an ETag, got pinned=%q latest=%q", pinnedETag, latestETag)
	}
	if !strings.HasPrefix(pinnedETag, "immutable-") {
		t.Fatalf("pinned etag = %q, want immutable- prefix (no version suffix)", pinnedETag)
	}
	if strings.HasPrefix(latestETag, "immutable-") {
		t.Fatalf("latest etag = %q, should not use the pinned/address-only form", latestETag)
	}
	if pinnedETag == latestETag {
		t.Fatalf("pinned and latest requests for the same version must still carry distinct ETag formats, both got %q", pinnedETag)
	}
}

func TestOpenAsRegistersNameUnlessAnonymous(t *testing.T) {
	gw, client, h := newTestGateway(t)
	ctx := context.Background()
	publishArchive(t, ctx, client, h, "<h1>Hi</h1>")

	srv := httptest.NewServer(gw)
	defer srv.Close()

	status, _ := fetchBody(t, srv.URL+"/dweb-open-as/alice/"+h.Address().Hex())
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	if _, ok := gw.names.Lookup("alice"); !ok {
		t.Fatal("expected dweb-open-as to register the name \"alice\"")
	}

	status, _ = fetchBody(t, srv.URL+"/dweb-open-as/anonymous/"+h.Address().Hex())
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if _, ok := gw.names.Lookup("anonymous"); ok {
		t.Fatal("the anonymous sentinel must not be registered as a name")
	}
}

func TestNameRegisterConflict(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	owner1 := blskey.NewRandomSecretKey()
	owner2 := blskey.NewRandomSecretKey()
	h1 := ids.NewHistoryAddress(blskey.HistorySecret(owner1, "x").PublicKey())
	h2 := ids.NewHistoryAddress(blskey.HistorySecret(owner2, "y").PublicKey())

	srv := httptest.NewServer(gw)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/name-register/alice/" + h1.Hex())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first register status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/name-register/alice/" + h1.Hex())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("idempotent re-register status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/name-register/alice/" + h2.Hex())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("conflicting register status = %d, want 400", resp.StatusCode)
	}
}

func TestNameList(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	owner := blskey.NewRandomSecretKey()
	addr := ids.NewHistoryAddress(blskey.HistorySecret(owner, "z").PublicKey())
	if err := gw.names.Register("bob", addr); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(gw)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/name-list")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var bindings []resolver.NameBinding
	if err := json.NewDecoder(resp.Body).Decode(&bindings); err != nil {
		t.Fatal(err)
	}
	if len(bindings) != 1 || bindings[0].Name != "bob" {
		t.Fatalf("bindings = %+v, want one entry for bob", bindings)
	}
}

func TestAntProxyID(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	status, body := fetchBody(t, srv.URL+"/ant-proxy-id")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body != antProxyID {
		t.Fatalf("body = %q, want %q", body, antProxyID)
	}
}

func TestOpenUnknownNameIs404(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/dweb-open/no-such-name")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
