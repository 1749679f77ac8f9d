// Command dwebgatewayd runs the gateway's main HTTP listener: Resolver,
// PortRegistry, and Gateway wired over a storage backend.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dweb-gateway/dwebgateway/gateway"
	"github.com/dweb-gateway/dwebgateway/gateway/portregistry"
	"github.com/dweb-gateway/dwebgateway/internal/config"
	"github.com/dweb-gateway/dwebgateway/internal/flags"
	"github.com/dweb-gateway/dwebgateway/internal/log"
	"github.com/dweb-gateway/dwebgateway/internal/storage"
	"github.com/dweb-gateway/dwebgateway/internal/storage/memstore"
	"github.com/dweb-gateway/dwebgateway/internal/version"
	"github.com/dweb-gateway/dwebgateway/resolver"
)

var configPath = flag.String("config", "", "path to a dwebgateway.yaml config file; flags override its values")

func main() {
	cfg := loadConfig()

	flags.HTTPAddr = cfg.HTTPAddr
	flags.StorageBackend = cfg.StorageBackend
	flags.PortCacheCapacity = cfg.PortCacheCapacity
	flags.Parse(&flags.HTTPAddr, &flags.StorageBackend, &flags.PortCacheCapacity, &flags.LogLevel)

	if version.GitSHA != "" {
		log.Info.Printf("dwebgatewayd %s", version.String())
	}

	client, err := newStorageClient(flags.StorageBackend)
	if err != nil {
		log.Fatal(err)
	}

	names := resolver.NewNameRegistry()
	res := resolver.New(client, names)
	ports := portregistry.New(flags.PortCacheCapacity)
	gw := gateway.New(res, names, ports, client)

	log.Info.Printf("dwebgatewayd listening on %s (storage=%s, port_cache_capacity=%d)",
		flags.HTTPAddr, flags.StorageBackend, flags.PortCacheCapacity)
	log.Fatal(http.ListenAndServe(flags.HTTPAddr, gw))
}

// loadConfig reads -config if given, falling back to defaults. It picks
// -config out of the raw arguments itself, since the other flags are not
// registered yet; flags.Parse then parses every flag (-config included),
// the same "config file sets the baseline, flags override it" precedence
// upspin.io/flags documents for its own -config handling.
func loadConfig() config.Config {
	path := ""
	args := os.Args[1:]
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if name == "config" && i+1 < len(args) {
			path = args[i+1]
		} else if v, ok := strings.CutPrefix(name, "config="); ok {
			path = v
		}
	}
	if path == "" {
		return config.Default()
	}
	cfg, err := config.FromFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dwebgatewayd: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newStorageClient(backend string) (storage.Client, error) {
	switch backend {
	case "inprocess", "":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("dwebgatewayd: unknown storage backend %q", backend)
	}
}
