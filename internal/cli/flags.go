package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/precache/pkg/pipeline"
	"github.com/matzehuels/precache/pkg/scan"
)

// buildFlags selects the metadata and the build configuration. Every
// command shares them.
type buildFlags struct {
	config            string
	metadata          string
	manifestPath      string
	features          []string
	allFeatures       bool
	noDefaultFeatures bool
	platform          string
	packages          []string
	locked            bool
	offline           bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "config file (default: ./"+configFile+" if present)")
	fl.StringVar(&f.metadata, "metadata", "", "read cargo metadata output from a file (\"-\" for stdin) instead of running cargo")
	fl.StringVar(&f.manifestPath, "manifest-path", "", "path to Cargo.toml")
	fl.StringSliceVar(&f.features, "features", nil, "comma separated list of features to activate")
	fl.BoolVar(&f.allFeatures, "all-features", false, "activate all available features")
	fl.BoolVar(&f.noDefaultFeatures, "no-default-features", false, "do not activate the default feature")
	fl.StringVar(&f.platform, "filter-platform", "", "only include dependencies matching the given target triple")
	fl.StringSliceVarP(&f.packages, "package", "p", nil, "workspace members to build (default: all)")
	fl.BoolVar(&f.locked, "locked", false, "pass --locked to cargo metadata")
	fl.BoolVar(&f.offline, "offline", false, "pass --offline to cargo metadata")
}

// cacheFlags control the scan and the relocation.
type cacheFlags struct {
	cargoHome    string
	targetDir    string
	temp         string
	dryRun       bool
	pruneMembers bool
	keep         []string
	format       string
	kept         bool
}

func (p *cacheFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&p.cargoHome, "cargo-home", "", "cargo home to prune (default: $CARGO_HOME or ~/.cargo)")
	fl.StringVar(&p.targetDir, "target-dir", "", "target directory to prune (default: from cargo metadata)")
	fl.StringVar(&p.temp, "temp", "", "holding area for evicted entries (default: $TEMP or the system temp dir)")
	fl.BoolVar(&p.dryRun, "dry-run", false, "do not move anything, list every planned action")
	fl.BoolVar(&p.pruneMembers, "prune-members", false, "also evict build artifacts of workspace members (target mode)")
	fl.StringSliceVar(&p.keep, "keep", nil, "package names that are never evicted")
	fl.StringVarP(&p.format, "format", "f", "text", "output format: text, json, yaml")
	fl.BoolVar(&p.kept, "kept", false, "list kept entries too (always on with --dry-run)")
}

// options merges flags, the config file and the environment into pipeline
// options. p is nil for commands that do not touch a cache.
func (c *CLI) options(cmd *cobra.Command, f *buildFlags, p *cacheFlags, mode scan.Mode) (pipeline.Options, error) {
	path, required := f.config, true
	if path == "" {
		path, required = configFile, false
	}
	cfg, err := loadConfig(c.FS, absPath(path), required)
	if err != nil {
		return pipeline.Options{}, err
	}
	cfg.merge(cmd, f, p)

	opts := pipeline.Options{
		Cargo:             c.cargoBin(),
		ManifestPath:      f.manifestPath,
		Features:          f.features,
		AllFeatures:       f.allFeatures,
		NoDefaultFeatures: f.noDefaultFeatures,
		Platform:          f.platform,
		Packages:          f.packages,
		Mode:              mode,
		Logger:            c.Logger,
	}
	switch f.metadata {
	case "":
	case pipeline.StdinPath:
		opts.MetadataPath = pipeline.StdinPath
		opts.Stdin = cmd.InOrStdin()
	default:
		opts.MetadataPath = absPath(f.metadata)
	}
	if f.locked {
		opts.CargoArgs = append(opts.CargoArgs, "--locked")
	}
	if f.offline {
		opts.CargoArgs = append(opts.CargoArgs, "--offline")
	}

	if p == nil {
		return opts, nil
	}

	switch mode {
	case scan.ModeCargoCache:
		root := p.cargoHome
		if root == "" {
			if root, err = c.cargoHome(); err != nil {
				return pipeline.Options{}, err
			}
		}
		opts.Root = absPath(root)
	case scan.ModeTarget:
		if p.targetDir != "" {
			opts.Root = absPath(p.targetDir)
		}
	}

	opts.TempRoot = p.temp
	if opts.TempRoot == "" {
		opts.TempRoot = c.tempRoot()
	}
	opts.TempRoot = absPath(opts.TempRoot)
	opts.DryRun = p.dryRun
	opts.PruneMembers = p.pruneMembers
	opts.Keep = p.keep
	return opts, nil
}

// absPath resolves path against the working directory. The local
// filesystem is rooted at "/", so relative paths must not reach it.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
