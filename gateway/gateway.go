// Package gateway implements the Gateway: the main HTTP listener that
// answers resolution requests, spawns child VersionServers via
// PortRegistry, and redirects the browser to the correct child
// (spec.md §4.G).
package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"

	"github.com/dweb-gateway/dwebgateway/internal/errors"
	"github.com/dweb-gateway/dwebgateway/internal/ids"
	"github.com/dweb-gateway/dwebgateway/internal/log"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
	"github.com/dweb-gateway/dwebgateway/gateway/portregistry"
	"github.com/dweb-gateway/dwebgateway/resolver"
)

// anonymousName is the sentinel spec.md §4.G's dweb-open-as route
// recognizes as "resolve, but don't register a name binding".
const anonymousName = "anonymous"

// antProxyID is the fixed API-route identifier /ant-proxy-id proves
// the gateway is listening.
const antProxyID = "/dweb-0"

// Gateway is the top-level handler. It owns nothing storage-related
// directly; it composes a Resolver, a NameRegistry, and a
// PortRegistry, matching spec.md §2's statement that the Gateway owns
// the PortRegistry, HISTORY_NAMES registry, and the set of live
// VersionServers.
type Gateway struct {
	resolver *resolver.Resolver
	names    *resolver.NameRegistry
	ports    *portregistry.Registry
	client   storage.Client

	handler http.Handler
}

// New builds a Gateway wiring res/names/ports/client into the five
// gateway-port routes spec.md §4.G and §6 name; /dweb-info is served
// by each VersionServer instead.
func New(res *resolver.Resolver, names *resolver.NameRegistry, ports *portregistry.Registry, client storage.Client) *Gateway {
	gw := &Gateway{resolver: res, names: names, ports: ports, client: client}

	r := mux.NewRouter()
	r.HandleFunc("/dweb-open/{params:.*}", gw.handleOpen(false)).Methods(http.MethodGet)
	r.HandleFunc("/dweb-open-as/{params:.*}", gw.handleOpen(true)).Methods(http.MethodGet)
	r.HandleFunc("/name-register/{name}/{history_hex}", gw.handleNameRegister).Methods(http.MethodGet)
	r.HandleFunc("/name-list", gw.handleNameList).Methods(http.MethodGet)
	r.HandleFunc("/ant-proxy-id", gw.handleAntProxyID).Methods(http.MethodGet)

	// gziphandler wraps the whole router the same way
	// upspin.io/serverutil/frontend wraps its content-serving mux: the
	// responses redirected here are small, but name-list's JSON body
	// and any error pages still benefit from the same treatment the
	// teacher applies uniformly rather than selectively.
	gw.handler = gziphandler.GzipHandler(r)
	return gw
}

// ServeHTTP implements http.Handler.
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gw.handler.ServeHTTP(w, r)
}

func (gw *Gateway) handleOpen(isOpenAs bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		params := mux.Vars(r)["params"]

		dv, parsed, err := gw.resolver.Resolve(ctx, params, isOpenAs)
		if err != nil {
			log.Error.Printf("gateway: resolving %q: %v", params, err)
			writeError(w, err)
			return
		}

		if isOpenAs && parsed.AsName != "" && parsed.AsName != anonymousName {
			if dv.HistoryAddress == nil {
				writeError(w, errors.E("gateway.handleOpen", errors.Invalid,
					errors.Str("cannot bind a name to a directly-addressed archive; open it by history address or name instead")))
				return
			}
			if err := gw.names.Register(parsed.AsName, *dv.HistoryAddress); err != nil {
				log.Error.Printf("gateway: registering name %q: %v", parsed.AsName, err)
				writeError(w, err)
				return
			}
		}

		entry, err := gw.ports.Open(ctx, dv, gw.client)
		if err != nil {
			log.Error.Printf("gateway: spawning version server for %x: %v", dv.ArchiveAddress, err)
			writeError(w, err)
			return
		}

		target := "http://" + hostOnly(r.Host) + ":" + strconv.Itoa(entry.Port) + parsed.InnerPath
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// hostOnly strips any port from host, defaulting to localhost when
// host is empty (e.g. in tests driving the handler directly).
func hostOnly(host string) string {
	if host == "" {
		return "localhost"
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (gw *Gateway) handleNameRegister(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, err := ids.ParseHistoryAddressHex(vars["history_hex"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := gw.names.Register(vars["name"], addr); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (gw *Gateway) handleNameList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(gw.names.List()); err != nil {
		log.Error.Printf("gateway: encoding name-list: %v", err)
	}
}

func (gw *Gateway) handleAntProxyID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(antProxyID))
}
