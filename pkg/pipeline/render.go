package pipeline

import (
	"context"
	"fmt"

	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/render/nodelink"
)

// Format constants for graph output.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
)

// ValidFormats is the set of supported graph output formats.
var ValidFormats = map[string]bool{
	FormatDOT: true,
	FormatSVG: true,
}

// ValidateFormat checks that a graph format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return perrors.New(perrors.ErrCodeInvalidInput, "invalid format: %q (must be one of: dot, svg)", format)
	}
	return nil
}

// Render draws the retention graph of a Retain result.
func (r *Runner) Render(ctx context.Context, result *Result, format string, opts nodelink.Options) ([]byte, error) {
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}
	if result == nil || result.Graph == nil || result.Set == nil {
		return nil, perrors.New(perrors.ErrCodeInternal, "render needs a retention result")
	}

	dot := nodelink.ToDOT(result.Graph, result.Set, result.Resolution, opts)
	if format == FormatDOT {
		return []byte(dot), nil
	}

	svg, err := nodelink.RenderSVG(ctx, dot)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	r.Logger.Debug("rendered graph", "format", format, "bytes", len(svg))
	return svg, nil
}
