// Package testcase defines the test-case records produced by the generation
// collaborator and consumed by the store, matrix builder and exporters.
package testcase

import (
	"errors"
	"strings"
)

// ComplianceStatus is the collaborator's audit verdict for a test case.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "Compliant"
	StatusNonCompliant ComplianceStatus = "Non-Compliant"

	// StatusUnknown is substituted when a test case carries no assessment.
	StatusUnknown ComplianceStatus = "Unknown"
)

// ErrGenerationFailed is returned by Batch.Err when the collaborator reported
// an error instead of test cases.
var ErrGenerationFailed = errors.New("test case generation failed")

// TestCase is a single generated test case. It is treated as immutable:
// nothing in this module mutates a TestCase after it has been decoded.
type TestCase struct {
	TestID               string                `json:"test_id" yaml:"test_id"`
	RequirementSource    string                `json:"requirement_source" yaml:"requirement_source"`
	ScenarioText         string                `json:"gherkin_feature" yaml:"gherkin_feature"`
	ComplianceTags       []string              `json:"compliance_tags" yaml:"compliance_tags"`
	ComplianceAssessment *ComplianceAssessment `json:"compliance_assessment,omitempty" yaml:"compliance_assessment,omitempty"`
	RiskAndPriority      *RiskAndPriority      `json:"risk_and_priority,omitempty" yaml:"risk_and_priority,omitempty"`
}

// ComplianceAssessment holds the compliance verdict and its reasoning.
type ComplianceAssessment struct {
	Status    ComplianceStatus `json:"status" yaml:"status"`
	Reasoning string           `json:"reasoning" yaml:"reasoning"`
}

// RiskAndPriority holds a 0-10 risk score and its reasoning.
type RiskAndPriority struct {
	Score     int    `json:"score" yaml:"score"`
	Reasoning string `json:"reasoning" yaml:"reasoning"`
}

// ComplianceStatus returns the assessment status, or StatusUnknown when the
// test case has no assessment or an empty status.
func (tc TestCase) ComplianceStatus() ComplianceStatus {
	if tc.ComplianceAssessment == nil || tc.ComplianceAssessment.Status == "" {
		return StatusUnknown
	}
	return tc.ComplianceAssessment.Status
}

// ComplianceReasoning returns the assessment reasoning or "".
func (tc TestCase) ComplianceReasoning() string {
	if tc.ComplianceAssessment == nil {
		return ""
	}
	return tc.ComplianceAssessment.Reasoning
}

// RiskScore returns the risk score, or 0 when absent.
func (tc TestCase) RiskScore() int {
	if tc.RiskAndPriority == nil {
		return 0
	}
	return tc.RiskAndPriority.Score
}

// RiskReasoning returns the risk reasoning or "".
func (tc TestCase) RiskReasoning() string {
	if tc.RiskAndPriority == nil {
		return ""
	}
	return tc.RiskAndPriority.Reasoning
}

// ScenarioTitle returns the first "Scenario:" or "Scenario Outline:" line of
// the scenario text, or "" when there is none.
func (tc TestCase) ScenarioTitle() string {
	for _, line := range strings.Split(tc.ScenarioText, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Scenario:") || strings.HasPrefix(trimmed, "Scenario Outline:") {
			return trimmed
		}
	}
	return ""
}

// Batch is the envelope returned by the generation collaborator. When the
// collaborator fails it sets Error (and usually RawResponse) instead of
// TestCases.
type Batch struct {
	TestCases   []TestCase `json:"test_cases" yaml:"test_cases"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	RawResponse string     `json:"raw_response,omitempty" yaml:"raw_response,omitempty"`
}

// Err reports whether the batch carries a collaborator error indicator.
// Callers must not build contexts, matrices or exports from a failed batch.
func (b Batch) Err() error {
	if b.Error == "" {
		return nil
	}
	return &GenerationError{Message: b.Error, RawResponse: b.RawResponse}
}

// GenerationError describes a failed generation call. It matches
// ErrGenerationFailed under errors.Is.
type GenerationError struct {
	Message     string
	RawResponse string
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Message
}

func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailed
}
