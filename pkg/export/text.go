package export

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"time"

	"github.com/cgast/tracegen/pkg/testcase"
)

// scenarioSeparator joins scenarios in the gherkin format.
const scenarioSeparator = "\n\n"

// Envelope is the structured-data export document.
type Envelope struct {
	TestCases       []testcase.TestCase `json:"test_cases"`
	ExportTimestamp time.Time           `json:"export_timestamp"`
	TotalTests      int                 `json:"total_tests"`
}

func renderJSON(testCases []testcase.TestCase, now time.Time) ([]byte, error) {
	if testCases == nil {
		testCases = []testcase.TestCase{}
	}
	return json.MarshalIndent(Envelope{
		TestCases:       testCases,
		ExportTimestamp: now,
		TotalTests:      len(testCases),
	}, "", "  ")
}

// renderGherkin keeps only the scenario text of each test case.
func renderGherkin(testCases []testcase.TestCase) []byte {
	parts := make([]string, len(testCases))
	for i, tc := range testCases {
		parts[i] = tc.ScenarioText
	}
	return []byte(strings.Join(parts, scenarioSeparator))
}

// SplitGherkin reverses the gherkin export into per-test-case scenarios.
func SplitGherkin(content string) []string {
	return strings.Split(content, scenarioSeparator)
}

// XMLDocument is the root element of the xml export.
type XMLDocument struct {
	XMLName   xml.Name      `xml:"testcases"`
	Version   string        `xml:"version,attr"`
	Timestamp string        `xml:"timestamp,attr"`
	TestCases []XMLTestCase `xml:"testcase"`
}

// XMLTestCase is one <testcase> element.
type XMLTestCase struct {
	ID          string        `xml:"id,attr"`
	Requirement string        `xml:"requirement"`
	Gherkin     string        `xml:"gherkin"`
	Compliance  XMLCompliance `xml:"compliance"`
	Risk        XMLRisk       `xml:"risk"`
}

// XMLCompliance carries the compliance status and tag list.
type XMLCompliance struct {
	Status string  `xml:"status,attr"`
	Tags   XMLTags `xml:"tags"`
}

// XMLTags wraps the <tag> list so that <tags/> is emitted even when empty.
type XMLTags struct {
	Tag []string `xml:"tag"`
}

// XMLRisk carries the risk score.
type XMLRisk struct {
	Score int `xml:"score,attr"`
}

func renderXML(testCases []testcase.TestCase, now time.Time, withHeader bool) ([]byte, error) {
	doc := XMLDocument{
		Version:   "1.0",
		Timestamp: now.Format(time.RFC3339),
		TestCases: make([]XMLTestCase, 0, len(testCases)),
	}
	for _, tc := range testCases {
		doc.TestCases = append(doc.TestCases, XMLTestCase{
			ID:          tc.TestID,
			Requirement: tc.RequirementSource,
			Gherkin:     tc.ScenarioText,
			Compliance: XMLCompliance{
				Status: string(tc.ComplianceStatus()),
				Tags:   XMLTags{Tag: tc.ComplianceTags},
			},
			Risk: XMLRisk{Score: tc.RiskScore()},
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	if withHeader {
		out = append([]byte(xml.Header), out...)
	}
	return out, nil
}
