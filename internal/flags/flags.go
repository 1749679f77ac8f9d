// Package flags defines the command-line flags shared by the
// gateway's binaries, following the "define once, enable selectively"
// idiom so that a future second binary (e.g. a healing/inspection
// tool) can opt into only the flags it needs.
package flags

import (
	"flag"
	"fmt"
	"reflect"

	"github.com/dweb-gateway/dwebgateway/internal/log"
)

var (
	// HTTPAddr is the address the Gateway's top-level HTTP server
	// listens on.
	HTTPAddr = "localhost:8080"

	// StorageBackend selects the internal/storage.Client
	// implementation to construct; "inprocess" is the only backend
	// this module ships (internal/storage/memstore).
	StorageBackend = "inprocess"

	// PortCacheCapacity bounds gateway/portregistry's LRU, per
	// spec.md §4.F.
	PortCacheCapacity = 1 << 16

	// LogLevel sets the level of logging: debug, info, error, disabled.
	LogLevel logFlag
)

type logFlag string

// String implements flag.Value.
func (l *logFlag) String() string { return string(*l) }

// Set implements flag.Value.
func (l *logFlag) Set(level string) error {
	if err := log.SetLevel(level); err != nil {
		return err
	}
	*l = logFlag(log.Level())
	return nil
}

// Get implements flag.Getter.
func (l *logFlag) Get() interface{} { return log.Level() }

// Parse registers the flag.Flag for each variable in vars and calls
// flag.Parse. Passing a pointer not declared in this package panics,
// the same "fail loud on an unknown flag" behavior the teacher's own
// flags package uses.
func Parse(vars ...interface{}) {
	for i, v := range vars {
		unknown := false
		switch v := v.(type) {
		case *string:
			switch v {
			case &HTTPAddr:
				flag.StringVar(v, "http_addr", HTTPAddr, "address for incoming HTTP connections")
			case &StorageBackend:
				flag.StringVar(v, "storage", StorageBackend, "storage backend to use")
			default:
				unknown = true
			}
		case *int:
			switch v {
			case &PortCacheCapacity:
				flag.IntVar(v, "port_cache_capacity", PortCacheCapacity, "maximum number of live VersionServer instances kept cached")
			default:
				unknown = true
			}
		case *logFlag:
			switch v {
			case &LogLevel:
				v.Set("info")
				flag.Var(v, "log", "`level` of logging: debug, info, error, disabled")
			default:
				unknown = true
			}
		default:
			unknown = true
		}
		if unknown {
			msg := fmt.Sprintf("flags: unknown flag (%#v, arg %d)", v, i)
			if reflect.TypeOf(v).Kind() != reflect.Ptr {
				msg += ", expected pointer type"
			}
			panic(msg)
		}
	}
	flag.Parse()
}
