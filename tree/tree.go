// Package tree implements DirectoryTree: an in-memory index over one
// archive snapshot mapping web paths to file content, with the
// public/private duality and website-lookup algorithm of spec.md §4.D.
//
// Grounded on original_source/dweb-lib/src/trove/directory_tree.rs's
// DirectoryTree/DirectoryTreePathMap and files/archive.rs's
// DualArchive public/private duality, modelled here as a single tagged
// struct rather than two parallel types plus a dispatch enum, per the
// "avoid virtual-method hierarchies" guidance this gateway follows
// throughout.
package tree

import (
	"encoding/json"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
)

// Kind distinguishes the two archive flavours an Archive may wrap.
type Kind uint8

const (
	// ArchivePublic entries carry a ContentAddress; fetching content
	// requires a further storage GET at that address.
	ArchivePublic Kind = iota
	// ArchivePrivate entries carry an embedded self-encryption datamap
	// chunk; fetching uses the chunk directly, with no network-visible
	// address for the file.
	ArchivePrivate
)

// Metadata is the per-file bookkeeping carried alongside each entry.
type Metadata struct {
	Size     uint64    `json:"size"`
	Modified time.Time `json:"modified"`
	Extra    string    `json:"extra,omitempty"`
}

// FileEntry names one file within a directory listing. Exactly one of
// DatamapChunk / ContentAddress is populated, matching the archive's
// Kind.
type FileEntry struct {
	Name           string
	DatamapChunk   []byte
	ContentAddress ids.ContentAddress
	HasAddress     bool // true when ContentAddress is meaningful (public archives)
	Metadata       Metadata
}

// DwebSettings is the optional, silently-defaulted configuration blob
// an archive carries in its wire envelope. A file listed at
// /.dweb/dweb-settings.json is not read or parsed (see SettingsFilePath).
type DwebSettings struct {
	IndexFilenames []string        `json:"index_filenames,omitempty"`
	AppSettings    json.RawMessage `json:"app_settings,omitempty"`
}

func defaultSettings() DwebSettings {
	return DwebSettings{IndexFilenames: []string{"index.html", "index.htm"}}
}

const settingsPath = "/.dweb/dweb-settings.json"

// FaviconAddress is the built-in fallback returned for /favicon.ico
// when no archive entry matches one, per spec.md §4.D step 4. It has
// no real backing content, and VersionServer does not special-case it:
// it fetches this address from storage like any other, so the request
// fails unless something has been stored at it.
var FaviconAddress = ids.NewArchiveAddress([]byte("dweb-gateway default favicon"))

// wireArchive is the on-the-wire encoding of an Archive. Archive
// serialization here uses encoding/json rather than protobuf: an
// archive's wire format must also be human-inspectable content
// addressed by its own hash, and no retrieved repo hand-writes a
// proto.Message without code generation we have no way to run.
type wireArchive struct {
	Kind     Kind                   `json:"kind"`
	Files    map[string][]wireEntry `json:"files"`
	Settings DwebSettings           `json:"settings"`
}

type wireEntry struct {
	Name           string   `json:"name"`
	DatamapChunk   []byte   `json:"datamap_chunk,omitempty"`
	ContentAddress [32]byte `json:"content_address,omitempty"`
	HasAddress     bool     `json:"has_address"`
	Metadata       Metadata `json:"metadata"`
}

// Archive is a parsed directory-snapshot index: a map from directory
// path to the files it contains, plus parsed settings.
type Archive struct {
	Kind         Kind
	PathsToFiles map[string][]FileEntry
	Settings     DwebSettings
}

// NewArchive returns an empty archive of the given kind.
func NewArchive(kind Kind) *Archive {
	return &Archive{
		Kind:         kind,
		PathsToFiles: make(map[string][]FileEntry),
		Settings:     defaultSettings(),
	}
}

// AddFile records one file under dir (which must start with "/").
func (a *Archive) AddFile(dir string, entry FileEntry) {
	dir = normalizeDir(dir)
	a.PathsToFiles[dir] = append(a.PathsToFiles[dir], entry)
}

func normalizeDir(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p = p + "/"
	}
	return p
}

// ParseArchive deserializes archive bytes. Unlike the original
// length-heuristic priority of trying a private decode before a
// public one, this wire format carries its Kind explicitly in the
// envelope, so there is no ambiguity to resolve by trial decoding —
// the archive declares which flavour it is.
func ParseArchive(data []byte) (*Archive, error) {
	const op = "tree.ParseArchive"

	var w wireArchive
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}

	a := &Archive{
		Kind:         w.Kind,
		PathsToFiles: make(map[string][]FileEntry),
		Settings:     w.Settings,
	}
	if len(a.Settings.IndexFilenames) == 0 {
		a.Settings.IndexFilenames = defaultSettings().IndexFilenames
	}
	for dir, entries := range w.Files {
		for _, e := range entries {
			a.PathsToFiles[dir] = append(a.PathsToFiles[dir], FileEntry{
				Name:           e.Name,
				DatamapChunk:   e.DatamapChunk,
				ContentAddress: ids.ContentAddress(e.ContentAddress),
				HasAddress:     e.HasAddress,
				Metadata:       e.Metadata,
			})
		}
	}
	return a, nil
}

// SettingsFilePath is the fixed in-archive path spec.md §4.D names for
// dweb-settings.json. This implementation stores settings directly in
// the archive's wire envelope rather than as a separately-addressed
// file, so no further storage fetch is needed to apply them — but the
// path is exported so a directory listing can still surface the
// settings file by name if a caller adds one explicitly.
const SettingsFilePath = settingsPath

// Bytes serializes the archive back to its wire form.
func (a *Archive) Bytes() ([]byte, error) {
	w := wireArchive{Kind: a.Kind, Files: make(map[string][]wireEntry), Settings: a.Settings}
	for dir, entries := range a.PathsToFiles {
		for _, e := range entries {
			w.Files[dir] = append(w.Files[dir], wireEntry{
				Name:           e.Name,
				DatamapChunk:   e.DatamapChunk,
				ContentAddress: [32]byte(e.ContentAddress),
				HasAddress:     e.HasAddress,
				Metadata:       e.Metadata,
			})
		}
	}
	return json.Marshal(w)
}

// LookupResult is what Lookup returns: enough to fetch and serve the
// matched file.
type LookupResult struct {
	DatamapChunk   []byte
	ContentAddress ids.ContentAddress
	HasAddress     bool
	MimeType       string
}

// Lookup implements spec.md §4.D's algorithm: split at the last '/',
// try an exact file match, then (if asWebsite) fall back to treating
// the whole path as a directory and searching for an index filename,
// then (if still unmatched and the path is exactly /favicon.ico) the
// built-in favicon sentinel.
func (a *Archive) Lookup(reqPath string, asWebsite bool) (LookupResult, error) {
	const op = "tree.Lookup"
	reqPath = normalizePath(reqPath)

	dir, leaf := splitPath(reqPath)
	if leaf != "" {
		if entry, ok := findInDir(a, dir, leaf); ok {
			return resultFor(entry), nil
		}
	}

	if asWebsite {
		asDir := reqPath
		if !strings.HasSuffix(asDir, "/") {
			asDir += "/"
		}
		for _, indexName := range a.Settings.IndexFilenames {
			if entry, ok := findInDir(a, asDir, indexName); ok {
				return resultFor(entry), nil
			}
		}
		if reqPath == "/favicon.ico" {
			return LookupResult{ContentAddress: FaviconAddress, HasAddress: true, MimeType: "image/x-icon"}, nil
		}
	}

	return LookupResult{}, errors.E(op, errors.NotExist, errors.Str("no entry for "+reqPath))
}

func findInDir(a *Archive, dir, name string) (FileEntry, bool) {
	for _, e := range a.PathsToFiles[normalizeDir(dir)] {
		if e.Name == name {
			return e, true
		}
	}
	return FileEntry{}, false
}

func resultFor(e FileEntry) LookupResult {
	return LookupResult{
		DatamapChunk:   e.DatamapChunk,
		ContentAddress: e.ContentAddress,
		HasAddress:     e.HasAddress,
		MimeType:       mimeFor(e.Name),
	}
}

// normalizePath ensures a path starts with "/" and uses "/" as its
// only separator, per spec.md §4.D's "every archive path starts with
// / regardless of host OS" rule.
func normalizePath(p string) string {
	p = filepathToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// splitPath divides p at its last '/' into (dir, leaf). A trailing
// slash yields an empty leaf.
func splitPath(p string) (dir, leaf string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "/", p
	}
	return p[:i+1], p[i+1:]
}

var extraMimeTypes = map[string]string{
	".wasm": "application/wasm",
	".map":  "application/json",
}

// mimeFor infers a MIME type from name's extension, consulting the
// standard library's table first and a small supplementary table for
// types it does not carry.
func mimeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extraMimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return ""
}
