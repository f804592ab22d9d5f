package metadata

import (
	"context"
	"errors"
	"strings"

	"github.com/jmgilman/go/exec"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

// Command runs `cargo metadata`.
//
// Metadata is always requested with --all-features so that every optional
// dependency appears in the resolve section; feature selection happens
// afterwards in package features.
type Command struct {
	// Cargo is the cargo binary. Defaults to "cargo".
	Cargo string
	// ManifestPath selects the workspace. Empty uses the working directory.
	ManifestPath string
	// Extra arguments appended verbatim (e.g. --locked, --offline).
	Extra []string
	// Executor runs the process. Defaults to an executor inheriting the
	// environment with colors disabled.
	Executor exec.Executor
}

// Args returns the arguments passed to cargo.
func (c *Command) Args() []string {
	args := []string{"metadata", "--format-version", "1", "--all-features"}
	if c.ManifestPath != "" {
		args = append(args, "--manifest-path", c.ManifestPath)
	}
	return append(args, c.Extra...)
}

// Run executes cargo and decodes its output.
func (c *Command) Run(ctx context.Context) (*Document, error) {
	executor := c.Executor
	if executor == nil {
		executor = exec.New(exec.WithInheritEnv(), exec.WithDisableColors())
	}
	cargo := c.Cargo
	if cargo == "" {
		cargo = "cargo"
	}

	res, err := exec.NewWrapper(executor, cargo).WithContext(ctx).Run(c.Args()...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var execErr *exec.ExecError
		if errors.As(err, &execErr) && execErr.Stderr != "" {
			return nil, perrors.Wrap(perrors.ErrCodeMetadataCommand, err,
				"%s metadata exited with status %d: %s", cargo, execErr.ExitCode, lastLine(execErr.Stderr))
		}
		return nil, perrors.Wrap(perrors.ErrCodeMetadataCommand, err, "run %s metadata", cargo)
	}

	doc, err := Decode(strings.NewReader(res.Stdout))
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeMalformedGraph, err, "%s metadata output", cargo)
	}
	return doc, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
