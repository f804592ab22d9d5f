package cli

import (
	"context"

	"github.com/go-git/go-billy/v5/util"
	"github.com/spf13/cobra"

	"github.com/matzehuels/precache/pkg/pipeline"
	"github.com/matzehuels/precache/pkg/render/nodelink"
	"github.com/matzehuels/precache/pkg/scan"
)

// graphCommand creates the graph command for drawing the retention set.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		build  buildFlags
		format string
		output string
		render nodelink.Options
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Draw the retained dependency graph as DOT or SVG",
		Long: `Draw the retained dependency graph as DOT or SVG.

Workspace members are filled blue. Build dependency edges are dashed and dev
dependency edges dotted. With --all, packages outside the retention set and
inactive edges are drawn in grey.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pipeline.ValidateFormat(format); err != nil {
				return err
			}
			opts, err := c.options(cmd, &build, nil, scan.ModeCargoCache)
			if err != nil {
				return err
			}
			return c.runGraph(cmd, opts, format, output, render)
		},
	}

	build.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", pipeline.FormatDOT, "output format: dot, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&render.Detailed, "detailed", false, "show unit kinds and features in node labels")
	cmd.Flags().BoolVar(&render.All, "all", false, "include packages outside the retention set")

	return cmd
}

func (c *CLI) runGraph(cmd *cobra.Command, opts pipeline.Options, format, output string, render nodelink.Options) error {
	runner := c.newRunner()
	result, err := c.withSpinner(cmd.Context(), spinnerMessage(opts), func(ctx context.Context) (*pipeline.Result, error) {
		return runner.Retain(ctx, opts)
	})
	if err != nil {
		return err
	}

	data, err := runner.Render(cmd.Context(), result, format, render)
	if err != nil {
		return err
	}

	if output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	path := absPath(output)
	if err := util.WriteFile(c.FS, path, data, 0o644); err != nil {
		return err
	}
	printSuccess(cmd.ErrOrStderr(), "Rendered %d packages", result.Stats.Retained)
	printFile(cmd.ErrOrStderr(), path)
	return nil
}
