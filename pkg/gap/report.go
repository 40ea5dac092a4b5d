package gap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Report formats accepted by Render.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ErrUnsupportedFormat is returned by Render for an unknown format.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Formats lists the report formats in display order.
func Formats() []string { return []string{FormatJSON, FormatMarkdown} }

// Render writes a as a report in the given format. "md" is accepted for
// markdown.
func Render(w io.Writer, a Analysis, format string) error {
	var data []byte
	switch strings.ToLower(format) {
	case FormatJSON, "":
		var err error
		if data, err = renderJSON(a); err != nil {
			return fmt.Errorf("render gap report: %w", err)
		}
	case FormatMarkdown, "md":
		data = []byte(renderMarkdown(a))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	_, err := w.Write(data)
	return err
}

func renderJSON(a Analysis) ([]byte, error) {
	if a.MissingFeatures == nil {
		a.MissingFeatures = []MissingFeature{}
	}
	if a.ComplianceGaps == nil {
		a.ComplianceGaps = []ComplianceGap{}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	if a.PriorityActions == nil {
		a.PriorityActions = []PriorityAction{}
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func renderMarkdown(a Analysis) string {
	generated := "N/A"
	if !a.Timestamp.IsZero() {
		generated = a.Timestamp.Format(time.RFC3339)
	}

	var b strings.Builder
	b.WriteString("# Feature Gap Analysis Report\n\n")
	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "- **Coverage Score**: %d/100\n", a.CoverageScore)
	fmt.Fprintf(&b, "- **Total Tests**: %d\n", a.TotalTests)
	fmt.Fprintf(&b, "- **Generated**: %s\n", generated)

	fmt.Fprintf(&b, "\n## Missing Features (%d)\n", len(a.MissingFeatures))
	for _, f := range a.MissingFeatures {
		fmt.Fprintf(&b, "\n### %s (%s)\n", f.Feature, f.Severity)
		fmt.Fprintf(&b, "- **Issue**: %s\n", f.Reason)
		fmt.Fprintf(&b, "- **Recommended Test**: %s\n", f.RecommendedTestType)
	}

	b.WriteString("\n## Compliance Gaps\n")
	for _, g := range a.ComplianceGaps {
		fmt.Fprintf(&b, "\n### %s\n", g.Standard)
		fmt.Fprintf(&b, "- **Gap**: %s\n", g.Gap)
		fmt.Fprintf(&b, "- **Risk**: %s\n", g.Risk)
	}

	b.WriteString("\n## Recommendations\n")
	for _, r := range a.Recommendations {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	b.WriteString("\n## Priority Actions\n")
	for _, p := range a.PriorityActions {
		fmt.Fprintf(&b, "- **%s**: %s\n", p.Priority, p.Action)
	}
	return b.String()
}
