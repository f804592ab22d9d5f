package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/precache/pkg/pipeline"
	"github.com/matzehuels/precache/pkg/report"
	"github.com/matzehuels/precache/pkg/scan"
)

// retainCommand creates the retain command, which prints the retention set
// without looking at any cache.
func (c *CLI) retainCommand() *cobra.Command {
	var (
		build  buildFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "retain",
		Short: "Print the packages a build configuration downloads and compiles",
		Long: `Print the packages a build configuration downloads and compiles.

Each package is listed with the unit kinds it is compiled as (lib,
build-script, test) and its enabled features. Packages without units are
downloaded only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := report.ValidateFormat(format); err != nil {
				return err
			}
			opts, err := c.options(cmd, &build, nil, scan.ModeCargoCache)
			if err != nil {
				return err
			}
			return c.runRetain(cmd, opts, format)
		},
	}

	build.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json, yaml")

	return cmd
}

func (c *CLI) runRetain(cmd *cobra.Command, opts pipeline.Options, format string) error {
	prog := newProgress(loggerFromContext(cmd.Context()))

	result, err := c.withSpinner(cmd.Context(), spinnerMessage(opts), func(ctx context.Context) (*pipeline.Result, error) {
		return c.newRunner().Retain(ctx, opts)
	})
	if err != nil {
		return err
	}

	rep := report.FromSet(result.Set, result.Resolution)
	rep.Stats.Packages = result.Stats.PackageCount
	if err := report.Write(cmd.OutOrStdout(), rep, format); err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Retained %d of %d packages", result.Stats.Retained, result.Stats.PackageCount))
	return nil
}
