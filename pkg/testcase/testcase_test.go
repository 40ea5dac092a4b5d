package testcase

import (
	gocontext "context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsForMissingFields(t *testing.T) {
	tc := TestCase{TestID: "TC-001"}

	assert.Equal(t, StatusUnknown, tc.ComplianceStatus())
	assert.Equal(t, "", tc.ComplianceReasoning())
	assert.Equal(t, 0, tc.RiskScore())
	assert.Equal(t, "", tc.RiskReasoning())
}

func TestAccessorsWithValues(t *testing.T) {
	tc := TestCase{
		ComplianceAssessment: &ComplianceAssessment{Status: StatusNonCompliant, Reasoning: "missing audit log"},
		RiskAndPriority:      &RiskAndPriority{Score: 8, Reasoning: "patient data"},
	}

	assert.Equal(t, StatusNonCompliant, tc.ComplianceStatus())
	assert.Equal(t, "missing audit log", tc.ComplianceReasoning())
	assert.Equal(t, 8, tc.RiskScore())
	assert.Equal(t, "patient data", tc.RiskReasoning())
}

func TestScenarioTitle(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		want     string
	}{
		{"scenario", "Feature: Search\n  Scenario: Search by ID\n    Given a patient", "Scenario: Search by ID"},
		{"outline", "Feature: Search\nScenario Outline: Search by <field>", "Scenario Outline: Search by <field>"},
		{"none", "Feature: Search", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TestCase{ScenarioText: tt.scenario}.ScenarioTitle())
		})
	}
}

func TestBatchErr(t *testing.T) {
	assert.NoError(t, Batch{}.Err())

	err := Batch{Error: "Failed to decode AI response", RawResponse: "oops"}.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationFailed))

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "oops", genErr.RawResponse)
}

func TestDecodeJSONEnvelope(t *testing.T) {
	input := `{
  "test_cases": [
    {
      "test_id": "TC-001",
      "requirement_source": "REQ-001 Patients must search by ID",
      "gherkin_feature": "Feature: Search",
      "compliance_tags": ["HIPAA"],
      "compliance_assessment": {"status": "Compliant", "reasoning": "ok"},
      "risk_and_priority": {"score": 7, "reasoning": "phi"}
    }
  ]
}`
	batch, err := Decode(strings.NewReader(input), EncodingJSON)
	require.NoError(t, err)
	require.Len(t, batch.TestCases, 1)

	tc := batch.TestCases[0]
	assert.Equal(t, "TC-001", tc.TestID)
	assert.Equal(t, "Feature: Search", tc.ScenarioText)
	assert.Equal(t, []string{"HIPAA"}, tc.ComplianceTags)
	assert.Equal(t, StatusCompliant, tc.ComplianceStatus())
	assert.Equal(t, 7, tc.RiskScore())
}

func TestDecodeJSONList(t *testing.T) {
	batch, err := Decode(strings.NewReader(`[{"test_id": "TC-1"}, {"test_id": "TC-2"}]`), EncodingJSON)
	require.NoError(t, err)
	require.Len(t, batch.TestCases, 2)
	assert.Equal(t, "TC-2", batch.TestCases[1].TestID)
}

func TestDecodeYAML(t *testing.T) {
	input := `
test_cases:
  - test_id: TC-010
    requirement_source: REQ-002 audit trail
    gherkin_feature: |
      Feature: Audit
        Scenario: Log access
    compliance_tags: [ISO 13485, GDPR]
    risk_and_priority:
      score: 3
      reasoning: low
`
	batch, err := Decode(strings.NewReader(input), EncodingYAML)
	require.NoError(t, err)
	require.Len(t, batch.TestCases, 1)
	assert.Equal(t, []string{"ISO 13485", "GDPR"}, batch.TestCases[0].ComplianceTags)
	assert.Equal(t, "Scenario: Log access", batch.TestCases[0].ScenarioTitle())
	assert.Nil(t, batch.TestCases[0].ComplianceAssessment)
}

func TestDecodeErrorIndicator(t *testing.T) {
	batch, err := Decode(strings.NewReader(`{"error": "Failed to decode AI response", "raw_response": "x"}`), EncodingJSON)
	require.NoError(t, err)
	assert.ErrorIs(t, batch.Err(), ErrGenerationFailed)
	assert.Empty(t, batch.TestCases)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(strings.NewReader(`{not json`), EncodingJSON)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(`{}`), "toml")
	assert.Error(t, err)
}

func TestFileGenerator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- test_id: TC-1\n- test_id: TC-2\n"), 0644))

	gen := FileGenerator{Path: path}
	batch, err := gen.Generate(gocontext.Background(), "ignored", "healthcare")
	require.NoError(t, err)
	assert.Len(t, batch.TestCases, 2)

	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	cancel()
	_, err = gen.Generate(ctx, "", "")
	assert.ErrorIs(t, err, gocontext.Canceled)
}

func TestFileGeneratorMissing(t *testing.T) {
	_, err := FileGenerator{Path: filepath.Join(t.TempDir(), "nope.json")}.Generate(gocontext.Background(), "", "")
	assert.Error(t, err)
}
