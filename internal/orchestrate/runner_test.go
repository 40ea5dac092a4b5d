package orchestrate

import (
	gocontext "context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tgctx "github.com/cgast/tracegen/pkg/context"
	"github.com/cgast/tracegen/pkg/events"
	"github.com/cgast/tracegen/pkg/export"
	"github.com/cgast/tracegen/pkg/gap"
	"github.com/cgast/tracegen/pkg/testcase"
	"github.com/cgast/tracegen/pkg/tracker/github"
)

type stubGenerator struct {
	batch     testcase.Batch
	err       error
	gotText   string
	gotDomain string
	calls     int
}

func (g *stubGenerator) Generate(_ gocontext.Context, text, domain string) (testcase.Batch, error) {
	g.calls++
	g.gotText, g.gotDomain = text, domain
	return g.batch, g.err
}

type stubAnalyzer struct {
	analysis gap.Analysis
	err      error
	gotCases int
}

func (a *stubAnalyzer) Analyze(_ gocontext.Context, _, _ string, cases []testcase.TestCase) (gap.Analysis, error) {
	a.gotCases = len(cases)
	return a.analysis.Stamp(cases, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), a.err
}

type stubPublisher struct {
	repo  string
	cases int
	err   error
}

func (p *stubPublisher) Publish(_ gocontext.Context, repo string, cases []testcase.TestCase) ([]github.Issue, error) {
	p.repo, p.cases = repo, len(cases)
	issues := make([]github.Issue, 0, len(cases))
	for i, tc := range cases {
		issues = append(issues, github.Issue{TestID: tc.TestID, Number: i + 1})
	}
	return issues, p.err
}

var requirement = "Users must be able to search patient records by their unique identifier. " +
	"All access to patient data must be recorded in an immutable audit log for review."

func goodBatch() testcase.Batch {
	return testcase.Batch{TestCases: []testcase.TestCase{
		{TestID: "TC-001", RequirementSource: "REQ-001 search", ScenarioText: "Feature: Search"},
		{TestID: "TC-002", RequirementSource: "REQ-002 audit", ScenarioText: "Feature: Audit"},
	}}
}

type fixture struct {
	runner *Runner
	gen    *stubGenerator
	pub    *stubPublisher
	store  *tgctx.Store
	bus    *events.MemoryBus
	dir    string
}

func newFixture(t *testing.T, batch testcase.Batch) fixture {
	t.Helper()
	dir := t.TempDir()
	backend, err := tgctx.NewFileBackend(filepath.Join(dir, "contexts"))
	require.NoError(t, err)
	bus := events.NewMemoryBus(0)
	store := tgctx.NewStore(backend, tgctx.WithEvents(bus))
	t.Cleanup(func() { store.Close() })

	gen := &stubGenerator{batch: batch}
	pub := &stubPublisher{}
	return fixture{
		runner: &Runner{
			Generator: gen,
			Store:     store,
			Exporter:  export.New(export.WithEvents(bus), export.WithTempDir(dir)),
			Publisher: pub,
			Bus:       bus,
		},
		gen: gen, pub: pub, store: store, bus: bus, dir: dir,
	}
}

func TestRunFullPipeline(t *testing.T) {
	f := newFixture(t, goodBatch())
	dest := filepath.Join(f.dir, "out", "cases.feature")

	res, err := f.runner.Run(gocontext.Background(), Request{
		RequirementText: requirement,
		Domain:          "healthcare",
		Metadata:        map[string]any{"source": "test"},
		BuildMatrix:     true,
		StoreContext:    true,
		ExportFormat:    export.FormatGherkin,
		ExportDest:      dest,
		PublishRepo:     "acme/app",
	})
	require.NoError(t, err)

	assert.Len(t, res.TestCases, 2)
	require.NotNil(t, res.Matrix)
	assert.Equal(t, 2, res.Matrix.Summary().Covered)

	rec, ok, err := f.store.Get(res.ContextID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, rec.Version)
	require.Len(t, rec.Updates, 1)
	assert.Contains(t, rec.Updates[0].Info, "traceability_matrix")
	assert.Equal(t, "healthcare", rec.Domain)

	require.NotNil(t, res.Export)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "Feature: Search\n\nFeature: Audit", string(data))

	assert.Equal(t, "acme/app", f.pub.repo)
	assert.Len(t, res.Issues, 2)

	var types []events.EventType
	for _, e := range f.bus.History(time.Time{}) {
		types = append(types, e.Type)
	}
	assert.Equal(t, events.EventPipelineStart, types[0])
	assert.Equal(t, events.EventPipelineEnd, types[len(types)-1])
	assert.Contains(t, types, events.EventMatrixBuilt)
	assert.Contains(t, types, events.EventContextCreated)
	assert.Contains(t, types, events.EventExportWritten)
}

func TestRunGenerationErrorStopsEarly(t *testing.T) {
	f := newFixture(t, testcase.Batch{Error: "quota exceeded", RawResponse: "429"})

	res, err := f.runner.Run(gocontext.Background(), Request{
		RequirementText: requirement,
		BuildMatrix:     true,
		StoreContext:    true,
		ExportFormat:    export.FormatJSON,
		ExportDest:      filepath.Join(f.dir, "never.json"),
		PublishRepo:     "acme/app",
	})
	require.ErrorIs(t, err, testcase.ErrGenerationFailed)
	assert.Nil(t, res.Matrix)
	assert.Empty(t, res.ContextID)
	assert.Nil(t, res.Export)

	summaries, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, summaries)
	assert.NoFileExists(t, filepath.Join(f.dir, "never.json"))
	assert.Empty(t, f.pub.repo)

	history := f.bus.History(time.Time{})
	last := history[len(history)-1]
	assert.Equal(t, events.EventPipelineEnd, last.Type)
	assert.Equal(t, "error", last.Data.(events.PipelineData).Status)
}

func TestRunGeneratorFailure(t *testing.T) {
	f := newFixture(t, testcase.Batch{})
	f.gen.err = errors.New("connection refused")

	_, err := f.runner.Run(gocontext.Background(), Request{RequirementText: requirement})
	assert.ErrorContains(t, err, "generate: connection refused")
}

func TestRunReadsSourceAndDefaultsDomain(t *testing.T) {
	f := newFixture(t, goodBatch())
	path := filepath.Join(f.dir, "req.md")
	require.NoError(t, os.WriteFile(path, []byte(requirement), 0644))

	res, err := f.runner.Run(gocontext.Background(), Request{SourcePath: path})
	require.NoError(t, err)
	assert.Equal(t, requirement, f.gen.gotText)
	assert.Equal(t, DefaultDomain, f.gen.gotDomain)
	assert.Nil(t, res.Matrix)
	assert.Empty(t, res.ContextID)
}

func TestRunRequiresRequirement(t *testing.T) {
	f := newFixture(t, goodBatch())
	_, err := f.runner.Run(gocontext.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoRequirement)
	assert.Zero(t, f.gen.calls)
}

func TestRunUnsupportedSource(t *testing.T) {
	f := newFixture(t, goodBatch())
	_, err := f.runner.Run(gocontext.Background(), Request{SourcePath: filepath.Join(f.dir, "req.pdf")})
	assert.Error(t, err)
	assert.Zero(t, f.gen.calls)
}

func TestRunExportFailureKeepsEarlierResults(t *testing.T) {
	f := newFixture(t, goodBatch())
	res, err := f.runner.Run(gocontext.Background(), Request{
		RequirementText: requirement,
		StoreContext:    true,
		ExportFormat:    export.FormatPDF,
	})
	require.ErrorIs(t, err, export.ErrNotImplemented)
	assert.True(t, strings.HasPrefix(res.ContextID, "ctx_"))
}

func TestRunPublishErrorReturnsIssues(t *testing.T) {
	f := newFixture(t, goodBatch())
	f.pub.err = errors.New("one issue failed")

	res, err := f.runner.Run(gocontext.Background(), Request{RequirementText: requirement, PublishRepo: "acme/app"})
	assert.ErrorContains(t, err, "publish: one issue failed")
	assert.Len(t, res.Issues, 2)
}

func TestRunMissingComponents(t *testing.T) {
	r := &Runner{Generator: &stubGenerator{batch: goodBatch()}}
	_, err := r.Run(gocontext.Background(), Request{RequirementText: requirement, StoreContext: true})
	assert.ErrorContains(t, err, "no store configured")

	_, err = (&Runner{}).Run(gocontext.Background(), Request{RequirementText: requirement})
	assert.ErrorContains(t, err, "no generator configured")
}

func TestRunAnalyzeGapsRecordsContext(t *testing.T) {
	f := newFixture(t, goodBatch())
	an := &stubAnalyzer{analysis: gap.Analysis{
		CoverageScore:   55,
		MissingFeatures: []gap.MissingFeature{{Feature: "Session timeout", Severity: "high"}},
		PriorityActions: []gap.PriorityAction{{Action: "Cover logout", Priority: "P1"}},
	}}
	f.runner.Analyzer = an

	res, err := f.runner.Run(gocontext.Background(), Request{
		RequirementText: requirement,
		BuildMatrix:     true,
		AnalyzeGaps:     true,
		StoreContext:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, an.gotCases)
	require.NotNil(t, res.Gaps)
	assert.Equal(t, 55, res.Gaps.CoverageScore)
	assert.Equal(t, 2, res.Gaps.TotalTests)

	rec, ok, err := f.store.Get(res.ContextID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, rec.Version)
	require.Len(t, rec.Updates, 2)
	assert.Contains(t, rec.Updates[0].Info, "traceability_matrix")
	stored, ok := rec.Updates[1].Info["gap_analysis"].(map[string]any)
	require.True(t, ok, "gap analysis stored as a bag: %#v", rec.Updates[1].Info)
	assert.Equal(t, 55.0, stored["overall_coverage_score"])
	assert.Equal(t, 2.0, stored["total_tests"])

	var steps []string
	for _, e := range f.bus.History(time.Time{}) {
		if e.Type == events.EventPipelineStep {
			steps = append(steps, e.Data.(events.PipelineData).Step)
		}
	}
	assert.Equal(t, []string{"generate", "analyze", "context"}, steps)
}

func TestRunAnalyzeGapsFailureStopsBeforeContext(t *testing.T) {
	f := newFixture(t, goodBatch())
	f.runner.Analyzer = &stubAnalyzer{analysis: gap.Analysis{Error: "model timeout"}}

	res, err := f.runner.Run(gocontext.Background(), Request{
		RequirementText: requirement,
		AnalyzeGaps:     true,
		StoreContext:    true,
	})
	require.ErrorIs(t, err, gap.ErrAnalysisFailed)
	assert.ErrorContains(t, err, "analyze:")
	assert.Nil(t, res.Gaps)
	assert.Empty(t, res.ContextID)

	f.runner.Analyzer = nil
	_, err = f.runner.Run(gocontext.Background(), Request{RequirementText: requirement, AnalyzeGaps: true})
	assert.ErrorContains(t, err, "no gap analyzer configured")
}
