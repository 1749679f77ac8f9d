package portregistry

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/storage/memstore"
	"github.com/dweb-gateway/dwebgateway/resolver"
	"github.com/dweb-gateway/dwebgateway/tree"
)

func testDV(t *testing.T) (resolver.DirectoryVersion, *memstore.Store) {
	t.Helper()
	client := memstore.New()
	a := tree.NewArchive(tree.ArchivePublic)
	addr, err := client.PutPublic(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	a.AddFile("/", tree.FileEntry{Name: "index.html", ContentAddress: addr, HasAddress: true})
	archiveAddr := ids.NewArchiveAddress([]byte("archive-for-portregistry"))
	return resolver.DirectoryVersion{ArchiveAddress: archiveAddr, Tree: a}, client
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/index.html")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server on port %d never came up", port)
}

func TestOpenSpawnsAndCaches(t *testing.T) {
	dv, client := testDV(t)
	r := New(DefaultCapacity)

	e1, err := r.Open(context.Background(), dv, client)
	if err != nil {
		t.Fatal(err)
	}
	if e1.Port == 0 {
		t.Fatal("expected a nonzero allocated port")
	}
	waitForServer(t, e1.Port)

	e2, err := r.Open(context.Background(), dv, client)
	if err != nil {
		t.Fatal(err)
	}
	if e2.Port != e1.Port {
		t.Fatalf("second Open() spawned a new server on port %d, want reuse of %d", e2.Port, e1.Port)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestOpenDistinctArchivesGetDistinctPorts(t *testing.T) {
	dv1, client := testDV(t)
	dv2 := dv1
	dv2.ArchiveAddress = ids.NewArchiveAddress([]byte("a different archive"))

	r := New(DefaultCapacity)
	e1, err := r.Open(context.Background(), dv1, client)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := r.Open(context.Background(), dv2, client)
	if err != nil {
		t.Fatal(err)
	}
	if e1.Port == e2.Port {
		t.Fatalf("expected distinct ports, both got %d", e1.Port)
	}
}

func TestLookupMissReturnsFalse(t *testing.T) {
	r := New(DefaultCapacity)
	_, ok := r.Lookup(ids.NewArchiveAddress([]byte("never opened")))
	if ok {
		t.Fatal("expected Lookup miss for an archive address never Open()-ed")
	}
}

func TestEvictionDoesNotStopServer(t *testing.T) {
	dv, client := testDV(t)
	r := New(1)

	e, err := r.Open(context.Background(), dv, client)
	if err != nil {
		t.Fatal(err)
	}
	waitForServer(t, e.Port)

	dv2, _ := testDV(t)
	dv2.ArchiveAddress = ids.NewArchiveAddress([]byte("second, evicting archive"))
	if _, err := r.Open(context.Background(), dv2, client); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Lookup(dv.ArchiveAddress); ok {
		t.Fatal("expected the first entry to have been evicted from the cache")
	}

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(e.Port) + "/index.html")
	if err != nil {
		t.Fatalf("evicted entry's server should still be serving: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
