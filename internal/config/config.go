// Package config loads the gateway's optional YAML configuration
// file, the same "known keys, reject the rest" shape
// upspin.io/config uses for its own config file, scaled down to this
// module's much smaller surface.
package config

import (
	"io"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/dweb-gateway/dwebgateway/internal/errors"
)

// Config holds the gateway's tunables. Every field has a usable
// default; a config file only needs to set what it wants to override.
type Config struct {
	HTTPAddr          string `yaml:"http_addr"`
	StorageBackend    string `yaml:"storage"`
	PortCacheCapacity int    `yaml:"port_cache_capacity"`
	LogLevel          string `yaml:"log_level"`
}

// Default returns a Config with every field set to its default value.
func Default() Config {
	return Config{
		HTTPAddr:          "localhost:8080",
		StorageBackend:    "inprocess",
		PortCacheCapacity: 1 << 16,
		LogLevel:          "info",
	}
}

// known keys, mirroring upspin.io/config's validation-by-map-lookup
// approach for rejecting typos in a config file early.
var knownKeys = map[string]bool{
	"http_addr":           true,
	"storage":             true,
	"port_cache_capacity": true,
	"log_level":           true,
}

// FromFile reads and parses the YAML config file at path. A missing
// file is not an error: Default() is returned unchanged.
func FromFile(path string) (Config, error) {
	const op = "config.FromFile"
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, errors.E(op, errors.IO, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads YAML from r and overlays it onto Default().
func Parse(r io.Reader) (Config, error) {
	const op = "config.Parse"
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.E(op, errors.IO, err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return Config{}, errors.E(op, errors.Invalid, err)
	}
	for k := range raw {
		if !knownKeys[k] {
			return Config{}, errors.E(op, errors.Invalid, errors.Errorf("unrecognized config key %q", k))
		}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.E(op, errors.Invalid, err)
	}
	return cfg, nil
}
