package cli

import (
	"errors"
	"io/fs"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/spf13/cobra"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

// Config is the content of precache.toml. Every key mirrors a flag of the
// same name; a flag given on the command line wins over the file.
//
//	features = ["serde", "tls"]
//	no-default-features = true
//	filter-platform = "x86_64-unknown-linux-gnu"
//	keep = ["openssl-sys"]
type Config struct {
	Features          []string `toml:"features"`
	AllFeatures       bool     `toml:"all-features"`
	NoDefaultFeatures bool     `toml:"no-default-features"`
	FilterPlatform    string   `toml:"filter-platform"`
	Packages          []string `toml:"packages"`
	Temp              string   `toml:"temp"`
	CargoHome         string   `toml:"cargo-home"`
	PruneMembers      bool     `toml:"prune-members"`
	Keep              []string `toml:"keep"`
}

// loadConfig reads path from fsys. With required unset a missing file
// yields an empty config.
func loadConfig(fsys billy.Filesystem, path string, required bool) (*Config, error) {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, perrors.Wrap(perrors.ErrCodeInvalidConfig, err, "read %s", path)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, perrors.New(perrors.ErrCodeInvalidConfig, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// merge copies config values into the flag targets of f and p for every
// flag not set on the command line.
func (cfg *Config) merge(cmd *cobra.Command, f *buildFlags, p *cacheFlags) {
	unset := func(name string) bool { return !cmd.Flags().Changed(name) }

	if unset("features") && len(cfg.Features) > 0 {
		f.features = cfg.Features
	}
	if unset("all-features") && cfg.AllFeatures {
		f.allFeatures = true
	}
	if unset("no-default-features") && cfg.NoDefaultFeatures {
		f.noDefaultFeatures = true
	}
	if unset("filter-platform") && cfg.FilterPlatform != "" {
		f.platform = cfg.FilterPlatform
	}
	if unset("package") && len(cfg.Packages) > 0 {
		f.packages = cfg.Packages
	}

	if p == nil {
		return
	}
	if unset("temp") && cfg.Temp != "" {
		p.temp = cfg.Temp
	}
	if unset("cargo-home") && cfg.CargoHome != "" {
		p.cargoHome = cfg.CargoHome
	}
	if unset("prune-members") && cfg.PruneMembers {
		p.pruneMembers = true
	}
	if unset("keep") && len(cfg.Keep) > 0 {
		p.keep = cfg.Keep
	}
}
