// Package resolver implements the Resolver: parsing the gateway's
// `[v{N}/]{address-or-name}[/inner/path]` URL grammar, consulting the
// in-process name registry, and producing a fully-qualified
// DirectoryVersion ready to be served (spec.md §4.E).
package resolver

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/dweb-gateway/dwebgateway/history"
	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
	"github.com/dweb-gateway/dwebgateway/tree"
)

// AddressKind classifies what ParseInput's address-or-name segment
// turned out to name.
type AddressKind uint8

const (
	AddressHistory AddressKind = iota
	AddressArchive
	AddressName
)

// historyAddressHexLen/archiveAddressHexLen distinguish a history
// address (a compressed BLS12-381 G1 public key, 48 bytes) from a
// content-hash archive address (32 bytes) by length before attempting
// a full parse.
const (
	historyAddressHexLen = 2 * 48
	archiveAddressHexLen = 2 * ids.ContentHashSize
)

// ClassifyAddressOrName decides whether s is a history address, an
// archive address, or a name, validating it in the process.
func ClassifyAddressOrName(s string) (AddressKind, error) {
	const op = "resolver.ClassifyAddressOrName"
	switch len(s) {
	case historyAddressHexLen:
		if _, err := ids.ParseHistoryAddressHex(s); err == nil {
			return AddressHistory, nil
		}
	case archiveAddressHexLen:
		if _, err := ids.ParseArchiveAddressHex(s); err == nil {
			return AddressArchive, nil
		}
	}
	if IsValidName(s) {
		return AddressName, nil
	}
	return 0, errors.E(op, errors.Invalid, errors.Str("not a history address, archive address, or valid name: "+s))
}

// IsValidName reports whether s is a short DNS-label-style name: starts
// with a letter, contains only [a-z0-9-], and has no consecutive
// hyphens (spec.md §4.E).
func IsValidName(s string) bool {
	if s == "" {
		return false
	}
	if s[0] < 'a' || s[0] > 'z' {
		return false
	}
	prevHyphen := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevHyphen = false
		case c == '-':
			if prevHyphen {
				return false
			}
			prevHyphen = true
		default:
			return false
		}
	}
	return !prevHyphen
}

// ParsedInput is the decomposition of one resolver input string.
type ParsedInput struct {
	HasVersion    bool
	Version       ids.Version
	AsName        string // set only when isOpenAs and a name prefix was present
	AddressOrName string
	Kind          AddressKind
	InnerPath     string
}

// ParseInput parses input per spec.md §4.E's grammar. isOpenAs selects
// the dweb-open-as variant, which additionally allows a leading name
// segment naming the registration target.
func ParseInput(input string, isOpenAs bool) (ParsedInput, error) {
	const op = "resolver.ParseInput"
	trimmed := strings.Trim(input, "/")
	if trimmed == "" {
		return ParsedInput{}, errors.E(op, errors.Invalid, errors.Str("empty input"))
	}
	segs := strings.Split(trimmed, "/")
	idx := 0

	var out ParsedInput
	if v, ok, err := parseVersionSegment(segs[idx]); err != nil {
		return ParsedInput{}, errors.E(op, err)
	} else if ok {
		out.HasVersion = true
		out.Version = v
		idx++
	} else if isOpenAs && IsValidName(segs[idx]) {
		out.AsName = segs[idx]
		idx++
	}

	if idx >= len(segs) {
		return ParsedInput{}, errors.E(op, errors.Invalid, errors.Str("missing address-or-name"))
	}
	out.AddressOrName = segs[idx]
	kind, err := ClassifyAddressOrName(out.AddressOrName)
	if err != nil {
		return ParsedInput{}, errors.E(op, err)
	}
	out.Kind = kind
	idx++

	if idx < len(segs) {
		out.InnerPath = "/" + strings.Join(segs[idx:], "/")
	} else {
		out.InnerPath = "/"
	}
	return out, nil
}

func parseVersionSegment(seg string) (ids.Version, bool, error) {
	if len(seg) < 2 || seg[0] != 'v' {
		return 0, false, nil
	}
	for i := 1; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false, nil
		}
	}
	n, err := strconv.ParseUint(seg[1:], 10, 32)
	if err != nil {
		return 0, false, errors.E(errors.Invalid, err)
	}
	return ids.Version(n), true, nil
}

// NameBinding is one entry of the name registry, as returned by List.
// JSON tags match spec.md §4.G/§6's wire shape for /name-list.
type NameBinding struct {
	Name           string `json:"name"`
	HistoryAddress string `json:"history_address"`
}

// NameRegistry is the in-process HISTORY_NAMES map of spec.md §4.E:
// idempotent binds (same name + same address is a no-op; same name +
// different address is a conflict), mutex-protected like Gateway's
// other shared maps.
type NameRegistry struct {
	mu    sync.Mutex
	names map[string]ids.HistoryAddress
}

// NewNameRegistry returns an empty registry.
func NewNameRegistry() *NameRegistry {
	return &NameRegistry{names: make(map[string]ids.HistoryAddress)}
}

// Register binds name to addr. It succeeds as a no-op if the same
// binding already exists, and fails with a Kind Exist error if name is
// already bound to a different address.
func (r *NameRegistry) Register(name string, addr ids.HistoryAddress) error {
	const op = "resolver.NameRegistry.Register"
	if !IsValidName(name) {
		return errors.E(op, errors.Invalid, errors.Str("invalid name: "+name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.names[name]; ok {
		if existing.Hex() != addr.Hex() {
			return errors.E(op, errors.Exist, errors.Str("name already bound to a different history: "+name))
		}
		return nil
	}
	r.names[name] = addr
	return nil
}

// Lookup returns the history address bound to name, if any.
func (r *NameRegistry) Lookup(name string) (ids.HistoryAddress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.names[name]
	return addr, ok
}

// List returns every binding, for the /name-list route.
func (r *NameRegistry) List() []NameBinding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NameBinding, 0, len(r.names))
	for name, addr := range r.names {
		out = append(out, NameBinding{Name: name, HistoryAddress: addr.Hex()})
	}
	return out
}

// DirectoryVersion is a fully resolved, servable snapshot (spec.md
// §3.1): the address the caller asked for, the concrete archive
// content, and a parsed DirectoryTree ready for Lookup calls. It
// carries no port: PortRegistry records the port on its own Entry once
// a VersionServer is spawned.
//
// Pinned distinguishes the two cases spec.md §4.H's ETag format
// branches on: true when the caller named an explicit version (or
// fetched an archive directly by address, where HistoryAddress/Version
// are both nil anyway), false when Version was resolved from "latest"
// by walking a history. Two requests that land on the same version
// number are not necessarily the same case — `/dweb-open/v3/{addr}`
// pins v3 even if v3 also happens to be the current head.
type DirectoryVersion struct {
	HistoryAddress *ids.HistoryAddress
	Version        *ids.Version
	Pinned         bool
	ArchiveAddress ids.ContentAddress
	Tree           *tree.Archive
}

// Resolver ties the name registry and storage client together to turn
// a URL's address-or-name segment into a DirectoryVersion.
type Resolver struct {
	client storage.Client
	names  *NameRegistry
}

// New returns a Resolver over client and names.
func New(client storage.Client, names *NameRegistry) *Resolver {
	return &Resolver{client: client, names: names}
}

// Resolve implements spec.md §4.E's resolve(input): parse, classify,
// open the history if needed, and fetch+parse the resulting archive.
// isOpenAs selects the dweb-open-as grammar variant; the caller is
// responsible for acting on ParsedInput.AsName (registering it) before
// or after calling Resolve, per the route's semantics.
func (r *Resolver) Resolve(ctx context.Context, input string, isOpenAs bool) (DirectoryVersion, ParsedInput, error) {
	const op = "resolver.Resolve"
	parsed, err := ParseInput(input, isOpenAs)
	if err != nil {
		return DirectoryVersion{}, ParsedInput{}, errors.E(op, err)
	}

	var historyAddr ids.HistoryAddress
	switch parsed.Kind {
	case AddressArchive:
		addr, err := ids.ParseArchiveAddressHex(parsed.AddressOrName)
		if err != nil {
			return DirectoryVersion{}, ParsedInput{}, errors.E(op, err)
		}
		archive, err := r.fetchArchive(ctx, addr)
		if err != nil {
			return DirectoryVersion{}, ParsedInput{}, errors.E(op, err)
		}
		return DirectoryVersion{ArchiveAddress: addr, Tree: archive, Pinned: true}, parsed, nil

	case AddressHistory:
		historyAddr, err = ids.ParseHistoryAddressHex(parsed.AddressOrName)
		if err != nil {
			return DirectoryVersion{}, ParsedInput{}, errors.E(op, err)
		}

	case AddressName:
		addr, ok := r.names.Lookup(parsed.AddressOrName)
		if !ok {
			return DirectoryVersion{}, ParsedInput{}, errors.E(op, errors.NotExist, errors.Str("no history registered for name: "+parsed.AddressOrName))
		}
		historyAddr = addr
	}

	minEntry := uint32(1)
	if parsed.HasVersion {
		minEntry = uint32(parsed.Version)
	}
	h, err := history.FromAddress(ctx, r.client, historyAddr, false, minEntry)
	if err != nil {
		return DirectoryVersion{}, ParsedInput{}, errors.E(op, err)
	}

	requested := ids.Version(0)
	if parsed.HasVersion {
		requested = parsed.Version
	}
	archiveAddr, err := h.GetVersionValue(ctx, requested, false)
	if err != nil {
		return DirectoryVersion{}, ParsedInput{}, errors.E(op, err)
	}

	archive, err := r.fetchArchive(ctx, archiveAddr)
	if err != nil {
		return DirectoryVersion{}, ParsedInput{}, errors.E(op, err)
	}

	version := requested
	if version == 0 {
		version = ids.Version(h.NumVersions())
	}

	ha := historyAddr
	return DirectoryVersion{
		HistoryAddress: &ha,
		Version:        &version,
		Pinned:         parsed.HasVersion,
		ArchiveAddress: archiveAddr,
		Tree:           archive,
	}, parsed, nil
}

func (r *Resolver) fetchArchive(ctx context.Context, addr ids.ContentAddress) (*tree.Archive, error) {
	data, err := r.client.GetPublic(ctx, addr)
	if err != nil {
		return nil, errors.E("resolver.fetchArchive", err)
	}
	archive, err := tree.ParseArchive(data)
	if err != nil {
		return nil, errors.E("resolver.fetchArchive", err)
	}
	return archive, nil
}
