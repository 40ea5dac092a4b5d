// Package gap holds the feature gap analysis produced by the analysis
// collaborator: what a batch of generated test cases fails to cover.
package gap

import (
	gocontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cgast/tracegen/pkg/testcase"
)

// ErrAnalysisFailed is returned by Analysis.Err when the collaborator
// reported an error instead of an analysis.
var ErrAnalysisFailed = errors.New("gap analysis failed")

// Analysis is a feature gap report for one requirement and its test cases.
type Analysis struct {
	CoverageScore   int              `json:"overall_coverage_score" yaml:"overall_coverage_score"`
	MissingFeatures []MissingFeature `json:"missing_features" yaml:"missing_features"`
	ComplianceGaps  []ComplianceGap  `json:"compliance_gaps" yaml:"compliance_gaps"`
	Recommendations []string         `json:"recommendations" yaml:"recommendations"`
	PriorityActions []PriorityAction `json:"priority_actions" yaml:"priority_actions"`

	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	TotalTests int       `json:"total_tests" yaml:"total_tests"`

	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// MissingFeature is functionality with no adequate test coverage.
type MissingFeature struct {
	Feature             string `json:"feature" yaml:"feature"`
	Severity            string `json:"severity" yaml:"severity"` // high, medium or low
	Reason              string `json:"reason" yaml:"reason"`
	RecommendedTestType string `json:"recommended_test_type" yaml:"recommended_test_type"`
}

// ComplianceGap names a regulatory standard the test cases leave exposed.
type ComplianceGap struct {
	Standard string `json:"standard" yaml:"standard"`
	Gap      string `json:"gap" yaml:"gap"`
	Risk     string `json:"risk" yaml:"risk"`
}

// PriorityAction is a follow-up ranked P0 (most urgent) to P3.
type PriorityAction struct {
	Action   string `json:"action" yaml:"action"`
	Priority string `json:"priority" yaml:"priority"`
}

// Err reports a collaborator error indicator or an out-of-range score.
func (a Analysis) Err() error {
	if a.Error != "" {
		return fmt.Errorf("%w: %s", ErrAnalysisFailed, a.Error)
	}
	if a.CoverageScore < 0 || a.CoverageScore > 100 {
		return fmt.Errorf("%w: coverage score %d outside 0-100", ErrAnalysisFailed, a.CoverageScore)
	}
	return nil
}

// Stamp sets the analysis metadata for a run over testCases.
func (a Analysis) Stamp(testCases []testcase.TestCase, now time.Time) Analysis {
	a.Timestamp = now
	a.TotalTests = len(testCases)
	return a
}

// AsInfo converts a into a schema-less bag suitable for context.Store.Build.
func (a Analysis) AsInfo() map[string]any {
	return map[string]any{"gap_analysis": a}
}

// Analyzer reviews generated test cases against their requirement. The
// production implementation is an LLM call that lives outside this module.
type Analyzer interface {
	Analyze(ctx gocontext.Context, requirementText, domain string, testCases []testcase.TestCase) (Analysis, error)
}

// FileAnalyzer replays collaborator output previously saved to disk.
type FileAnalyzer struct {
	Path string
	Now  func() time.Time
}

// Analyze ignores the requirement and returns the analysis stored at Path,
// stamped for testCases.
func (f FileAnalyzer) Analyze(ctx gocontext.Context, _, _ string, testCases []testcase.TestCase) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	a, err := DecodeFile(f.Path)
	if err != nil {
		return Analysis{}, err
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return a.Stamp(testCases, now()), nil
}

// Decode reads an Analysis from r as json or yaml.
func Decode(r io.Reader, encoding string) (Analysis, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Analysis{}, fmt.Errorf("read gap analysis: %w", err)
	}

	unmarshal := json.Unmarshal
	switch strings.ToLower(encoding) {
	case testcase.EncodingJSON, "":
	case testcase.EncodingYAML, "yml":
		unmarshal = yaml.Unmarshal
	default:
		return Analysis{}, fmt.Errorf("unknown gap analysis encoding %q", encoding)
	}

	var a Analysis
	if err := unmarshal(data, &a); err != nil {
		return Analysis{}, fmt.Errorf("parse gap analysis: %w", err)
	}
	return a, nil
}

// DecodeFile reads an Analysis from a .json, .yaml or .yml file.
func DecodeFile(path string) (Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return Analysis{}, fmt.Errorf("open gap analysis %s: %w", path, err)
	}
	defer f.Close()

	encoding := testcase.EncodingJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		encoding = testcase.EncodingYAML
	}
	return Decode(f, encoding)
}
