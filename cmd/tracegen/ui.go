package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"

	tgctx "github.com/cgast/tracegen/pkg/context"
	"github.com/cgast/tracegen/pkg/export"
	"github.com/cgast/tracegen/pkg/trace"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	coveredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	keyStyle     = lipgloss.NewStyle().Bold(true)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
}

func renderMatrix(w io.Writer, m trace.Matrix) {
	t := newTable("Requirement", "Text", "Tests", "Coverage")
	for _, entry := range m.TraceabilityMapping {
		ids := ""
		for i, rt := range entry.RelatedTestCases {
			if i > 0 {
				ids += ", "
			}
			ids += rt.TestID
		}
		status := coveredStyle.Render(string(entry.CoverageStatus))
		if entry.CoverageStatus != trace.Covered {
			status = missingStyle.Render(string(entry.CoverageStatus))
		}
		t.Row(entry.RequirementID, shorten(entry.RequirementText, 60), ids, status)
	}
	fmt.Fprintln(w, t.Render())

	s := m.Summary()
	fmt.Fprintf(w, "%s %d/%d requirements covered (%.0f%%), %d test cases\n",
		keyStyle.Render("Coverage:"), s.Covered, s.Requirements, s.CoveragePercent, m.TotalTestCases)
}

func renderSummaries(w io.Writer, summaries []tgctx.Summary) {
	t := newTable("Context", "Domain", "Created", "Version")
	for _, s := range summaries {
		t.Row(s.ContextID, s.Domain, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), strconv.Itoa(s.Version))
	}
	fmt.Fprintln(w, t.Render())
}

func renderFormats(w io.Writer, formats []export.FormatInfo) {
	t := newTable("Format", "Extension", "Implemented", "Description")
	for _, f := range formats {
		impl := coveredStyle.Render("yes")
		if !f.Implemented {
			impl = missingStyle.Render("no")
		}
		t.Row(string(f.Name), f.Extension, impl, f.Description)
	}
	fmt.Fprintln(w, t.Render())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shorten truncates s to n terminal columns.
func shorten(s string, n int) string {
	return runewidth.Truncate(s, n, "…")
}
