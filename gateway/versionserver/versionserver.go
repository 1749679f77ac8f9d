// Package versionserver implements VersionServer: the per-DirectoryVersion
// HTTP listener spawned by PortRegistry, serving one archive snapshot's
// files with conditional-request (ETag) support (spec.md §4.H).
package versionserver

import (
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/log"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
	"github.com/dweb-gateway/dwebgateway/resolver"
)

// etagAddressLen is the number of hex characters of an archive
// address carried in an ETag, matching the abridged-address scheme of
// original_source/dweb-cli/src/web/etag.rs.
const etagAddressLen = 10

// Server serves one DirectoryVersion's files over HTTP. Its
// DirectoryVersion is immutable for the server's lifetime; a new
// version is always a new Server on a new port (spec.md §4.H's state
// machine: Unbound → Serving → Draining → Stopped, never re-bound).
type Server struct {
	dv     resolver.DirectoryVersion
	client storage.Client
	etag   string
	router *mux.Router
}

// New builds a Server for dv. etag is computed once at construction,
// since a DirectoryVersion's resolved content never changes after
// PortRegistry creates it.
func New(dv resolver.DirectoryVersion, client storage.Client) *Server {
	s := &Server{dv: dv, client: client, etag: computeETag(dv)}
	r := mux.NewRouter()
	r.HandleFunc("/dweb-info", s.handleInfo).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.handleResource).Methods(http.MethodGet, http.MethodHead)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// computeETag implements spec.md §4.H step 2: a strong validator
// derived from the archive address and, when the version was resolved
// from "latest" rather than pinned, the concretized version number.
// Pinned (an explicit version, or a direct archive-address fetch) gets
// the hyphenated address-only form; only a "latest" resolution through
// a history carries the -v{N} suffix, since that's the one case where
// the same URL can later resolve to different content.
func computeETag(dv resolver.DirectoryVersion) string {
	addr := hex.EncodeToString(dv.ArchiveAddress[:])
	if len(addr) > etagAddressLen {
		addr = addr[:etagAddressLen]
	}
	if !dv.Pinned && dv.HistoryAddress != nil && dv.Version != nil {
		return fmt.Sprintf("immutable%s-v%d", addr, *dv.Version)
	}
	return fmt.Sprintf("immutable-%s", addr)
}

// ifNoneMatchSatisfied implements spec.md §4.H step 3: a bare "*" or
// an exact match against etag both short-circuit to 304.
func ifNoneMatchSatisfied(r *http.Request, etag string) bool {
	inm := r.Header.Get("If-None-Match")
	if inm == "" {
		return false
	}
	return inm == "*" || inm == etag
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	if ifNoneMatchSatisfied(r, s.etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	result, err := s.dv.Tree.Lookup(r.URL.Path, true)
	if err != nil {
		if errors.KindOf(err) == errors.NotExist {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var data []byte
	if result.HasAddress {
		data, err = s.client.GetPublic(ctx, result.ContentAddress)
	} else {
		data, err = s.client.GetPrivate(ctx, result.DatamapChunk)
	}
	if err != nil {
		log.Error.Printf("versionserver: fetching %s: %v", r.URL.Path, err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	contentType := result.MimeType
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", s.etag)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(data)
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	infoTemplate.Execute(w, s.infoData())
}

type infoPageData struct {
	HistoryAddress string
	Version        string
	ArchiveAddress string
	ETag           string
}

func (s *Server) infoData() infoPageData {
	d := infoPageData{
		ArchiveAddress: s.dv.ArchiveAddress.Hex(),
		ETag:           s.etag,
		Version:        "latest",
	}
	if s.dv.HistoryAddress != nil {
		d.HistoryAddress = s.dv.HistoryAddress.Hex()
	}
	if s.dv.Version != nil {
		d.Version = fmt.Sprintf("%d", *s.dv.Version)
	}
	return d
}

var infoTemplate = template.Must(template.New("dweb-info").Parse(`<!DOCTYPE html>
<html><head><title>dweb-info</title></head><body>
<h1>dweb-info</h1>
<table>
<tr><td>History address</td><td>{{.HistoryAddress}}</td></tr>
<tr><td>Version</td><td>{{.Version}}</td></tr>
<tr><td>Archive address</td><td>{{.ArchiveAddress}}</td></tr>
<tr><td>ETag</td><td>{{.ETag}}</td></tr>
</table>
</body></html>
`))
