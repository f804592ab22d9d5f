// Package cli implements the precache command-line interface.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5"
	jbilly "github.com/jmgilman/go/fs/billy"
	"github.com/spf13/cobra"

	"github.com/matzehuels/precache/pkg/buildinfo"
	"github.com/matzehuels/precache/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display and the holding area.
	appName = "precache"

	// configFile is looked up in the working directory when --config is unset.
	configFile = appName + ".toml"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// FS is the filesystem every command reads and moves entries on.
	FS billy.Filesystem
	// Getenv looks up CARGO, CARGO_HOME and TEMP.
	Getenv func(string) string
	// Home returns the user's home directory for the default CARGO_HOME.
	Home func() (string, error)
}

// New creates a new CLI instance on the local filesystem.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		FS:     jbilly.NewLocal().Unwrap(),
		Getenv: os.Getenv,
		Home:   os.UserHomeDir,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "precache trims Cargo caches down to what a build needs",
		Long: `precache trims the Cargo download cache or a target directory down to the
packages one build configuration needs, so CI caches stay small.

Evicted entries are moved into a holding area under the temp directory,
never deleted.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.pruneCommand())
	root.AddCommand(c.retainCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner() *pipeline.Runner {
	return pipeline.NewRunner(c.FS, c.Logger)
}

// =============================================================================
// Paths
// =============================================================================

// cargoHome returns $CARGO_HOME, defaulting to ~/.cargo.
func (c *CLI) cargoHome() (string, error) {
	if dir := c.Getenv("CARGO_HOME"); dir != "" {
		return dir, nil
	}
	home, err := c.Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cargo"), nil
}

// tempRoot returns $TEMP, falling back to the system temp directory.
func (c *CLI) tempRoot() string {
	if dir := c.Getenv("TEMP"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// cargoBin returns the cargo binary to run; $CARGO wins when set.
func (c *CLI) cargoBin() string {
	if bin := c.Getenv("CARGO"); bin != "" {
		return bin
	}
	return "cargo"
}
