package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/precache/pkg/pipeline"
	"github.com/matzehuels/precache/pkg/report"
	"github.com/matzehuels/precache/pkg/scan"
)

// pruneCommand creates the prune command, the main entry point for CI jobs.
func (c *CLI) pruneCommand() *cobra.Command {
	var (
		build buildFlags
		cache cacheFlags
	)

	cmd := &cobra.Command{
		Use:   "prune <cargo-cache|target>",
		Short: "Move cache entries the build does not need into a holding area",
		Long: `Move cache entries the build does not need into a holding area.

In cargo-cache mode the registry sources, .crate archives, git checkouts and
git databases under $CARGO_HOME are reconciled against the packages the
build downloads. In target mode the fingerprint, build, deps and incremental
entries of every profile in the target directory are reconciled against the
packages the build compiles.

Nothing is deleted: evicted entries are moved to <temp>/precache-<id>/.
Entries whose package cannot be identified are always kept.

Examples:
  precache prune cargo-cache --dry-run
  precache prune target --filter-platform x86_64-unknown-linux-gnu
  cargo metadata --format-version 1 --all-features | precache prune cargo-cache --metadata -`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"cargo-cache", "target"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := scan.ParseMode(args[0])
			if err != nil {
				return err
			}
			if err := report.ValidateFormat(cache.format); err != nil {
				return err
			}
			opts, err := c.options(cmd, &build, &cache, mode)
			if err != nil {
				return err
			}
			return c.runPrune(cmd, opts, &cache)
		},
	}

	build.register(cmd)
	cache.register(cmd)

	return cmd
}

// runPrune executes the full pipeline and prints the report. A partial
// relocation failure is returned after the report is written.
func (c *CLI) runPrune(cmd *cobra.Command, opts pipeline.Options, cache *cacheFlags) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	result, err := c.withSpinner(ctx, spinnerMessage(opts), func(ctx context.Context) (*pipeline.Result, error) {
		return c.newRunner().Prune(ctx, opts)
	})
	if err != nil {
		if result != nil && result.Summary != nil {
			_ = c.writeReport(cmd, result, opts, cache)
		}
		return err
	}

	if err := c.writeReport(cmd, result, opts, cache); err != nil {
		return err
	}
	if result.Summary == nil {
		prog.done(fmt.Sprintf("Planned %d evictions", result.Stats.Evicted))
		return nil
	}
	prog.done(result.Summary.String())
	return result.Summary.Err()
}

func (c *CLI) writeReport(cmd *cobra.Command, result *pipeline.Result, opts pipeline.Options, cache *cacheFlags) error {
	rep := report.FromResult(result, report.Options{
		Kept: cache.kept || opts.DryRun,
		Mode: opts.Mode.String(),
		Root: result.Root,
	})
	return report.Write(cmd.OutOrStdout(), rep, cache.format)
}

func spinnerMessage(opts pipeline.Options) string {
	if opts.MetadataPath == "" {
		return "Running cargo metadata..."
	}
	return "Reconciling " + opts.Mode.String() + "..."
}
