// Package portregistry implements PortRegistry: the bounded cache of
// live VersionServer instances keyed by archive address, and the free
// local port allocation that spawning a new one requires (spec.md
// §4.F).
package portregistry

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/dweb-gateway/dwebgateway/internal/cache"
	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/log"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
	"github.com/dweb-gateway/dwebgateway/gateway/versionserver"
	"github.com/dweb-gateway/dwebgateway/resolver"
)

// DefaultCapacity is spec.md §4.F's fixed LRU capacity.
const DefaultCapacity = 1 << 16

// Entry is a live, registered DirectoryVersion: a running
// VersionServer bound to Port.
type Entry struct {
	DirectoryVersion resolver.DirectoryVersion
	Port             int

	listener net.Listener
}

// OnEviction implements cache.EvictionNotifier. Per spec.md §4.F,
// eviction from the registry only forgets the entry; the listener
// keeps running until its own shutdown policy triggers, so this
// deliberately does not close e.listener.
func (e *Entry) OnEviction(key interface{}) {
	log.Printf("portregistry: evicted archive %v from cache; its VersionServer on port %d keeps running", key, e.Port)
}

// Registry is the PortRegistry: a mutex-guarded get-or-spawn around a
// bounded LRU. The mutex serializes the check-then-spawn sequence so
// two concurrent resolutions of the same archive address can't race
// into spawning two VersionServers for it; the LRU itself is also
// independently safe for concurrent access.
type Registry struct {
	mu  sync.Mutex
	lru *cache.LRU
}

// New returns an empty Registry with the given capacity.
func New(capacity int) *Registry {
	return &Registry{lru: cache.NewLRU(capacity)}
}

// ErrNoPortsAvailable is returned when the OS refuses to hand back a
// free ephemeral port.
var ErrNoPortsAvailable = errors.Str("no free local ports available")

// Open implements spec.md §4.E step 4 / §4.F: if dv's archive address
// is cached with a live listener, return it; otherwise allocate a
// free port, spawn a VersionServer on it, register, and return the
// new entry.
func (r *Registry) Open(ctx context.Context, dv resolver.DirectoryVersion, client storage.Client) (*Entry, error) {
	const op = "portregistry.Open"
	key := dv.ArchiveAddress

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.lru.Get(key); ok {
		return v.(*Entry), nil
	}

	port, listener, err := allocatePort()
	if err != nil {
		return nil, errors.E(op, err)
	}

	srv := versionserver.New(dv, client)
	httpServer := &http.Server{Handler: srv}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error.Printf("portregistry: VersionServer on port %d stopped: %v", port, err)
		}
	}()

	entry := &Entry{DirectoryVersion: dv, Port: port, listener: listener}
	r.lru.Add(key, entry)
	return entry, nil
}

// allocatePort is the standard Go idiom for an OS-assigned free
// ephemeral port: bind to port 0 and read back what the kernel chose.
func allocatePort() (int, net.Listener, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, nil, errors.E(errors.IO, ErrNoPortsAvailable, err)
	}
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		l.Close()
		return 0, nil, errors.E(errors.IO, ErrNoPortsAvailable)
	}
	return addr.Port, l, nil
}

// Lookup returns the cached entry for an archive address, without
// spawning anything.
func (r *Registry) Lookup(addr ids.ArchiveAddress) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.lru.Get(addr)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Len reports the number of cached entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}
