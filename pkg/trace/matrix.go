// Package trace builds requirement-to-test traceability matrices.
//
// Matching is purely textual: a test case is linked to REQ-007 only when the
// literal string "REQ-007" appears near the start of its requirement_source.
// This relies on the generation collaborator echoing requirement ids; without
// that every requirement reports "Not Covered".
package trace

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cgast/tracegen/pkg/testcase"
)

const (
	// minFragmentLen filters out headers and other non-statement fragments.
	minFragmentLen = 50
	// maxRequirements caps the number of extracted requirement units.
	maxRequirements = 20
	// sourcePrefixLen bounds where in requirement_source an id may appear.
	sourcePrefixLen = 100
	// displayLen is the display length of requirement_text in a mapping.
	displayLen = 200
)

// CoverageStatus reports whether a requirement has any linked test case.
type CoverageStatus string

const (
	Covered    CoverageStatus = "Covered"
	NotCovered CoverageStatus = "Not Covered"
)

// NoMappingID is the test_id of the sentinel entry used for uncovered
// requirements.
const NoMappingID = "No direct mapping"

// Matrix is a requirement-to-test coverage mapping.
type Matrix struct {
	RequirementText     string    `json:"requirement_text"`
	GenerationTimestamp time.Time `json:"generation_timestamp"`
	TotalTestCases      int       `json:"total_test_cases"`
	TraceabilityMapping []Mapping `json:"traceability_mapping"`
}

// Mapping links one requirement unit to its related test cases.
type Mapping struct {
	RequirementID    string         `json:"requirement_id"`
	RequirementText  string         `json:"requirement_text"`
	RelatedTestCases []RelatedTest  `json:"related_test_cases"`
	CoverageStatus   CoverageStatus `json:"coverage_status"`
}

// RelatedTest is the projection of a test case inside a Mapping.
type RelatedTest struct {
	TestID           string `json:"test_id"`
	ComplianceStatus string `json:"compliance_status"`
	RiskScore        int    `json:"risk_score"`
}

// Summary counts covered requirement units.
type Summary struct {
	Requirements    int     `json:"requirements"`
	Covered         int     `json:"covered"`
	CoveragePercent float64 `json:"coverage_percent"`
}

// Build creates the matrix for requirementText and testCases stamped with the
// current time.
func Build(requirementText string, testCases []testcase.TestCase) Matrix {
	return BuildAt(requirementText, testCases, time.Now())
}

// BuildAt is Build with an explicit generation timestamp. For fixed inputs it
// always returns the same matrix.
func BuildAt(requirementText string, testCases []testcase.TestCase, at time.Time) Matrix {
	fragments := Fragments(requirementText)

	mapping := make([]Mapping, 0, len(fragments))
	for i, fragment := range fragments {
		id := RequirementID(i + 1)

		var related []RelatedTest
		for _, tc := range testCases {
			if matches(id, tc.RequirementSource) {
				related = append(related, RelatedTest{
					TestID:           tc.TestID,
					ComplianceStatus: string(tc.ComplianceStatus()),
					RiskScore:        tc.RiskScore(),
				})
			}
		}

		status := Covered
		if len(related) == 0 {
			related = []RelatedTest{{TestID: NoMappingID, ComplianceStatus: "N/A", RiskScore: 0}}
			status = NotCovered
		}

		mapping = append(mapping, Mapping{
			RequirementID:    id,
			RequirementText:  truncate(fragment, displayLen),
			RelatedTestCases: related,
			CoverageStatus:   status,
		})
	}

	return Matrix{
		RequirementText:     requirementText,
		GenerationTimestamp: at,
		TotalTestCases:      len(testCases),
		TraceabilityMapping: mapping,
	}
}

// Fragments splits text on periods and returns, in order, at most 20 trimmed
// fragments longer than 50 characters.
func Fragments(text string) []string {
	var result []string
	for _, part := range strings.Split(text, ".") {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) <= minFragmentLen {
			continue
		}
		result = append(result, part)
		if len(result) == maxRequirements {
			break
		}
	}
	return result
}

// RequirementID formats the n-th (1-based) requirement id, e.g. REQ-001.
func RequirementID(n int) string {
	return fmt.Sprintf("REQ-%03d", n)
}

// matches reports whether id occurs within the first 100 characters of
// source. The comparison is case-sensitive.
func matches(id, source string) bool {
	return strings.Contains(prefix(source, sourcePrefixLen), id)
}

func truncate(s string, n int) string {
	p := prefix(s, n)
	if len(p) == len(s) {
		return s
	}
	return p + "..."
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Summary returns coverage counts for m.
func (m Matrix) Summary() Summary {
	s := Summary{Requirements: len(m.TraceabilityMapping)}
	for _, entry := range m.TraceabilityMapping {
		if entry.CoverageStatus == Covered {
			s.Covered++
		}
	}
	if s.Requirements > 0 {
		s.CoveragePercent = float64(s.Covered) * 100 / float64(s.Requirements)
	}
	return s
}

// AsInfo converts m into a schema-less bag suitable for context.Store.Build.
func (m Matrix) AsInfo() map[string]any {
	return map[string]any{
		"traceability_matrix": m,
		"coverage":            m.Summary(),
	}
}
