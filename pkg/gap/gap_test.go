package gap

import (
	"bytes"
	gocontext "context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/tracegen/pkg/testcase"
)

const analysisJSON = `{
  "overall_coverage_score": 72,
  "missing_features": [
    {"feature": "Session timeout", "severity": "high", "reason": "No test for idle logout", "recommended_test_type": "security"}
  ],
  "compliance_gaps": [
    {"standard": "HIPAA", "gap": "Audit trail on read access", "risk": "Untracked PHI disclosure"}
  ],
  "recommendations": ["Add negative login tests"],
  "priority_actions": [{"action": "Cover idle logout", "priority": "P0"}]
}`

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func sample() Analysis {
	a, err := Decode(strings.NewReader(analysisJSON), "json")
	if err != nil {
		panic(err)
	}
	return a.Stamp(make([]testcase.TestCase, 3), fixedNow)
}

func TestDecodeJSONAndYAML(t *testing.T) {
	a, err := Decode(strings.NewReader(analysisJSON), "json")
	require.NoError(t, err)
	assert.Equal(t, 72, a.CoverageScore)
	require.Len(t, a.MissingFeatures, 1)
	assert.Equal(t, "security", a.MissingFeatures[0].RecommendedTestType)
	assert.Equal(t, "HIPAA", a.ComplianceGaps[0].Standard)
	assert.Equal(t, "P0", a.PriorityActions[0].Priority)

	y, err := Decode(strings.NewReader(`
overall_coverage_score: 40
missing_features:
  - feature: Export audit
    severity: medium
    reason: untested
    recommended_test_type: integration
recommendations: [one, two]
`), "yaml")
	require.NoError(t, err)
	assert.Equal(t, 40, y.CoverageScore)
	assert.Equal(t, "Export audit", y.MissingFeatures[0].Feature)
	assert.Equal(t, []string{"one", "two"}, y.Recommendations)

	_, err = Decode(strings.NewReader("{}"), "toml")
	assert.Error(t, err)
	_, err = Decode(strings.NewReader("{not json"), "json")
	assert.Error(t, err)
}

func TestErr(t *testing.T) {
	assert.NoError(t, sample().Err())

	err := Analysis{Error: "model timeout"}.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAnalysisFailed))
	assert.Contains(t, err.Error(), "model timeout")

	assert.ErrorIs(t, Analysis{CoverageScore: 101}.Err(), ErrAnalysisFailed)
	assert.ErrorIs(t, Analysis{CoverageScore: -1}.Err(), ErrAnalysisFailed)
}

func TestFileAnalyzerStampsMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gaps.json")
	require.NoError(t, os.WriteFile(path, []byte(analysisJSON), 0o644))

	an := FileAnalyzer{Path: path, Now: func() time.Time { return fixedNow }}
	a, err := an.Analyze(gocontext.Background(), "req", "healthcare", make([]testcase.TestCase, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, a.TotalTests)
	assert.Equal(t, fixedNow, a.Timestamp)
	assert.Equal(t, 72, a.CoverageScore)

	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	cancel()
	_, err = an.Analyze(ctx, "req", "", nil)
	assert.ErrorIs(t, err, gocontext.Canceled)

	_, err = FileAnalyzer{Path: filepath.Join(dir, "missing.yaml")}.Analyze(gocontext.Background(), "", "", nil)
	assert.Error(t, err)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sample(), FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 72.0, got["overall_coverage_score"])
	assert.Equal(t, 3.0, got["total_tests"])
	assert.Equal(t, "2026-03-01T09:30:00Z", got["timestamp"])
	assert.NotContains(t, got, "error")

	buf.Reset()
	require.NoError(t, Render(&buf, Analysis{}, FormatJSON))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []any{}, got["missing_features"])
	assert.Equal(t, []any{}, got["priority_actions"])
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sample(), "md"))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Feature Gap Analysis Report\n"))
	for _, want := range []string{
		"- **Coverage Score**: 72/100",
		"- **Total Tests**: 3",
		"- **Generated**: 2026-03-01T09:30:00Z",
		"## Missing Features (1)",
		"### Session timeout (high)",
		"- **Issue**: No test for idle logout",
		"- **Recommended Test**: security",
		"### HIPAA",
		"- **Risk**: Untracked PHI disclosure",
		"- Add negative login tests",
		"- **P0**: Cover idle logout",
	} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	require.NoError(t, Render(&buf, Analysis{}, FormatMarkdown))
	assert.Contains(t, buf.String(), "- **Generated**: N/A")
	assert.Contains(t, buf.String(), "## Missing Features (0)")
}

func TestRenderUnsupported(t *testing.T) {
	err := Render(&bytes.Buffer{}, Analysis{}, "csv")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
