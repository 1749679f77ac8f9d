// Package memstore is an in-process implementation of storage.Client,
// used by the gateway's own tests and by the local/demo binary instead
// of a real peer-to-peer network connection. It follows the same
// "trivial in-memory backend behind the same interface as the real
// thing" shape as upspin.io/dir/inprocess and upspin.io/store/inprocess.
package memstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
)

// privateMagic distinguishes an embedded datamap chunk from a bare
// 32-byte public ArchiveAddress, matching spec.md §4.D's observation
// that private-archive datamap bytes are much longer than a public
// address and so can be told apart by a length check.
var privateMagic = []byte("dweb-datamap-v1:")

// Store is a mutex-protected, process-local storage.Client.
type Store struct {
	mu sync.Mutex

	graphEntries map[string][]storage.GraphEntry // keyed by owner hex
	pointers     map[string]storage.Pointer      // keyed by owner hex
	public       map[string][]byte               // keyed by content-address hex
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		graphEntries: make(map[string][]storage.GraphEntry),
		pointers:     make(map[string]storage.Pointer),
		public:       make(map[string][]byte),
	}
}

var _ storage.Client = (*Store)(nil)

func (s *Store) GetGraphEntry(_ context.Context, addr ids.GraphEntryAddress) ([]storage.GraphEntry, error) {
	const op = "memstore.GetGraphEntry"
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.graphEntries[addr.Hex()]
	if !ok || len(entries) == 0 {
		return nil, errors.E(op, errors.NotExist, errors.Str("no graph entry at "+addr.Hex()))
	}
	out := make([]storage.GraphEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *Store) PutGraphEntry(_ context.Context, e storage.GraphEntry) error {
	const op = "memstore.PutGraphEntry"
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.Address().Hex()
	if existing, ok := s.graphEntries[key]; ok && len(existing) > 0 {
		cp := make([]storage.GraphEntry, len(existing))
		copy(cp, existing)
		return errors.E(op, errors.Exist, &storage.AlreadyExistsError{Address: e.Address(), Entries: cp})
	}
	s.graphEntries[key] = []storage.GraphEntry{e}
	return nil
}

// ForceFork injects a second entry at the same address as an existing
// one, simulating the write race spec.md §4.B's fork policy exists to
// resolve. Test-only; not part of storage.Client.
func (s *Store) ForceFork(e storage.GraphEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.Address().Hex()
	s.graphEntries[key] = append(s.graphEntries[key], e)
}

func (s *Store) GetPointer(_ context.Context, addr ids.PointerAddress) (storage.Pointer, error) {
	const op = "memstore.GetPointer"
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pointers[addr.Hex()]
	if !ok {
		return storage.Pointer{}, errors.E(op, errors.NotExist, errors.Str("no pointer at "+addr.Hex()))
	}
	return p, nil
}

func (s *Store) PutPointer(_ context.Context, p storage.Pointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.Owner.Hex()
	if existing, ok := s.pointers[key]; ok && existing.Counter > p.Counter {
		// Lower counters never overwrite a higher one; mirrors the
		// real pointer service's last-writer-by-counter-wins rule.
		return nil
	}
	s.pointers[key] = p
	return nil
}

func (s *Store) GetPublic(_ context.Context, addr ids.ArchiveAddress) ([]byte, error) {
	const op = "memstore.GetPublic"
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.public[addr.Hex()]
	if !ok {
		return nil, errors.E(op, errors.NotExist, errors.Str("no object at "+addr.Hex()))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *Store) PutPublic(_ context.Context, data []byte) (ids.ArchiveAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := ids.NewArchiveAddress(data)
	cp := make([]byte, len(data))
	copy(cp, data)
	s.public[addr.Hex()] = cp
	return addr, nil
}

func (s *Store) GetPrivate(_ context.Context, datamap []byte) ([]byte, error) {
	const op = "memstore.GetPrivate"
	if len(datamap) < len(privateMagic) || !bytes.Equal(datamap[:len(privateMagic)], privateMagic) {
		return nil, errors.E(op, errors.Invalid, errors.Str("malformed datamap chunk"))
	}
	out := make([]byte, len(datamap)-len(privateMagic))
	copy(out, datamap[len(privateMagic):])
	return out, nil
}

func (s *Store) PutPrivate(_ context.Context, data []byte) ([]byte, error) {
	datamap := make([]byte, 0, len(privateMagic)+len(data))
	datamap = append(datamap, privateMagic...)
	datamap = append(datamap, data...)
	return datamap, nil
}
