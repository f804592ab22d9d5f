package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

// Format constants for report output.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidateFormat checks that a report format is valid.
func ValidateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return nil
	default:
		return perrors.New(perrors.ErrCodeInvalidInput, "invalid output format: %q (must be one of: text, json, yaml)", format)
	}
}

// Write encodes rep to w in the given format.
func Write(w io.Writer, rep *Report, format string) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, rep)
	case FormatYAML:
		return WriteYAML(w, rep)
	case FormatText, "":
		return WriteText(w, rep)
	default:
		return ValidateFormat(format)
	}
}

// WriteJSON encodes rep as indented JSON.
func WriteJSON(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteYAML encodes rep as YAML.
func WriteYAML(w io.Writer, rep *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return enc.Close()
}

type textStyles struct {
	title, dim, keep, evict, failed lipgloss.Style
}

func newTextStyles(w io.Writer) textStyles {
	r := lipgloss.NewRenderer(w)
	return textStyles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("36")),
		dim:    r.NewStyle().Foreground(lipgloss.Color("240")),
		keep:   r.NewStyle().Foreground(lipgloss.Color("35")),
		evict:  r.NewStyle().Foreground(lipgloss.Color("220")),
		failed: r.NewStyle().Foreground(lipgloss.Color("167")),
	}
}

// WriteText prints rep as aligned lines. Colors are only emitted when w is
// a terminal.
func WriteText(w io.Writer, rep *Report) error {
	st := newTextStyles(w)
	var b strings.Builder

	if len(rep.Retained) > 0 {
		b.WriteString(st.title.Render(fmt.Sprintf("retained packages (%d)", len(rep.Retained))) + "\n")
		for _, p := range rep.Retained {
			line := fmt.Sprintf("  %-28s %-12s", p.Name, p.Version)
			if p.Units != "" {
				line += " " + p.Units
			}
			if len(p.Features) > 0 {
				line += " " + st.dim.Render("["+strings.Join(p.Features, ",")+"]")
			}
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}
	}

	if len(rep.Actions) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(st.title.Render(actionTitle(rep)) + "\n")
		for _, a := range rep.Actions {
			b.WriteString(actionLine(st, a) + "\n")
		}
	}

	for _, warn := range rep.Warnings {
		b.WriteString(st.evict.Render("warning: "+warn) + "\n")
	}

	if rep.Stats.Entries > 0 || rep.Summarized() {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(st.dim.Render(summaryLine(rep)) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Summarized reports whether a relocation ran (or was simulated).
func (r *Report) Summarized() bool { return r.RunDir != "" }

func actionTitle(rep *Report) string {
	switch {
	case rep.DryRun:
		return "planned actions (dry run)"
	case rep.Summarized():
		return "actions"
	default:
		return "planned actions"
	}
}

func actionLine(st textStyles, a Action) string {
	var decision string
	switch {
	case a.Error != "":
		decision = st.failed.Render(fmt.Sprintf("%-6s", "failed"))
	case a.Decision == "evict":
		decision = st.evict.Render(fmt.Sprintf("%-6s", a.Decision))
	default:
		decision = st.keep.Render(fmt.Sprintf("%-6s", a.Decision))
	}

	line := "  " + decision + " " + a.Path + " " + st.dim.Render("("+a.Reason+")")
	if a.Match != "" {
		line += " " + st.dim.Render("= "+a.Match)
	}
	if a.Error != "" {
		line += "\n         " + st.failed.Render(a.Error)
	}
	return line
}

func summaryLine(rep *Report) string {
	s := rep.Stats
	line := fmt.Sprintf("%d entries scanned, %d kept, %d evicted", s.Entries, s.Kept, s.Evicted)
	switch {
	case rep.DryRun:
		line += fmt.Sprintf("; dry run, nothing moved (would move to %s)", rep.RunDir)
	case rep.Summarized():
		line += fmt.Sprintf("; %d moved to %s", s.Moved, rep.RunDir)
		if s.Failed > 0 {
			line += fmt.Sprintf(", %d failed", s.Failed)
		}
	}
	return line
}
