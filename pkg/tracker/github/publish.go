package github

import (
	gocontext "context"
	"errors"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v60/github"

	"github.com/cgast/tracegen/pkg/testcase"
)

// Issue is a created tracker issue.
type Issue struct {
	TestID  string `json:"test_id"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
}

// PublishError records the test case an issue could not be created for.
type PublishError struct {
	TestID string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.TestID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher creates one issue per test case.
type Publisher struct {
	client *Client
}

// NewPublisher creates a Publisher over client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish creates an issue for every test case in repo ("owner/name").
// A failure for one test case does not stop the others; the issues that
// were created are returned together with the joined errors.
func (p *Publisher) Publish(ctx gocontext.Context, repo string, testCases []testcase.TestCase) ([]Issue, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(testCases))
	var errs []error
	for _, tc := range testCases {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		req := IssueRequest(tc)
		created, _, err := p.client.inner.Issues.Create(ctx, owner, name, req)
		if err != nil {
			errs = append(errs, &PublishError{TestID: tc.TestID, Err: err})
			continue
		}
		issues = append(issues, Issue{
			TestID:  tc.TestID,
			Number:  created.GetNumber(),
			Title:   created.GetTitle(),
			HTMLURL: created.GetHTMLURL(),
		})
	}
	return issues, errors.Join(errs...)
}

// IssueRequest builds the issue payload for tc.
func IssueRequest(tc testcase.TestCase) *gh.IssueRequest {
	title := IssueTitle(tc)
	body := IssueBody(tc)
	req := &gh.IssueRequest{Title: &title, Body: &body}
	if len(tc.ComplianceTags) > 0 {
		labels := append([]string(nil), tc.ComplianceTags...)
		req.Labels = &labels
	}
	return req
}

// IssueTitle is "<test id>: <scenario title>", falling back to the
// requirement source when the scenario has no Scenario line.
func IssueTitle(tc testcase.TestCase) string {
	summary := tc.ScenarioTitle()
	if summary == "" {
		summary = strings.TrimSpace(tc.RequirementSource)
	}
	if summary == "" {
		return tc.TestID
	}
	return tc.TestID + ": " + summary
}

// IssueBody renders tc as a markdown issue description.
func IssueBody(tc testcase.TestCase) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Requirement source:** %s\n\n", tc.RequirementSource)
	b.WriteString("### Scenario\n\n```gherkin\n")
	b.WriteString(strings.TrimRight(tc.ScenarioText, "\n"))
	b.WriteString("\n```\n\n")
	b.WriteString("### Compliance\n\n")
	fmt.Fprintf(&b, "- Status: %s\n", tc.ComplianceStatus())
	if r := tc.ComplianceReasoning(); r != "" {
		fmt.Fprintf(&b, "- Reasoning: %s\n", r)
	}
	if len(tc.ComplianceTags) > 0 {
		fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(tc.ComplianceTags, ", "))
	}
	b.WriteString("\n### Risk\n\n")
	fmt.Fprintf(&b, "- Score: %d/10\n", tc.RiskScore())
	if r := tc.RiskReasoning(); r != "" {
		fmt.Fprintf(&b, "- Reasoning: %s\n", r)
	}
	return b.String()
}
