// Package orchestrate wires requirement intake, generation, matrix building,
// context recording, export and issue publishing into one run.
package orchestrate

import (
	gocontext "context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgctx "github.com/cgast/tracegen/pkg/context"
	"github.com/cgast/tracegen/pkg/events"
	"github.com/cgast/tracegen/pkg/export"
	"github.com/cgast/tracegen/pkg/gap"
	"github.com/cgast/tracegen/pkg/source"
	"github.com/cgast/tracegen/pkg/testcase"
	"github.com/cgast/tracegen/pkg/trace"
	"github.com/cgast/tracegen/pkg/tracker/github"
)

// DefaultDomain is used when a request names no domain.
const DefaultDomain = "healthcare software"

// ErrNoRequirement is returned when a request has neither text nor a source path.
var ErrNoRequirement = errors.New("requirement text or source path is required")

// Publisher creates tracker issues for test cases.
type Publisher interface {
	Publish(ctx gocontext.Context, repo string, testCases []testcase.TestCase) ([]github.Issue, error)
}

// Request describes one run. SourcePath is read only when RequirementText
// is empty.
type Request struct {
	RequirementText string
	SourcePath      string
	Domain          string
	Metadata        map[string]any

	BuildMatrix  bool
	StoreContext bool

	// AnalyzeGaps runs the gap analyzer over the generated test cases.
	AnalyzeGaps bool

	ExportFormat export.Format
	ExportDest   string

	// PublishRepo, when set, publishes one issue per test case to owner/name.
	PublishRepo string
}

// Result collects everything a run produced.
type Result struct {
	TestCases []testcase.TestCase `json:"test_cases"`
	Matrix    *trace.Matrix       `json:"matrix,omitempty"`
	Gaps      *gap.Analysis       `json:"gap_analysis,omitempty"`
	ContextID string              `json:"context_id,omitempty"`
	Export    *export.Result      `json:"export,omitempty"`
	Issues    []github.Issue      `json:"issues,omitempty"`
}

// Runner executes requests. Analyzer, Store, Exporter, Publisher and Bus
// are only required by the steps that use them.
type Runner struct {
	Generator testcase.Generator
	Analyzer  gap.Analyzer
	Store     *tgctx.Store
	Exporter  *export.Exporter
	Publisher Publisher
	Bus       events.EventBus
	Logger    *slog.Logger
}

// Run executes req. A generation error stops the run before any context,
// matrix or export is produced.
func (r *Runner) Run(ctx gocontext.Context, req Request) (Result, error) {
	log := r.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	start := time.Now()
	r.publish(events.EventPipelineStart, events.PipelineData{Step: "run"}, 0)

	res, err := r.run(ctx, req, log)

	end := events.PipelineData{Step: "run", Status: "ok"}
	if err != nil {
		end.Status = "error"
		end.Error = err.Error()
	}
	r.publish(events.EventPipelineEnd, end, time.Since(start))
	return res, err
}

func (r *Runner) run(ctx gocontext.Context, req Request, log *slog.Logger) (Result, error) {
	var res Result

	text := req.RequirementText
	if text == "" {
		if req.SourcePath == "" {
			return res, ErrNoRequirement
		}
		err := r.step("read", func() error {
			var err error
			text, err = source.Read(req.SourcePath)
			return err
		})
		if err != nil {
			return res, err
		}
		log.Info("requirement read", "path", req.SourcePath, "chars", len(text))
	}

	domain := req.Domain
	if domain == "" {
		domain = DefaultDomain
	}

	if r.Generator == nil {
		return res, fmt.Errorf("generate: no generator configured")
	}
	err := r.step("generate", func() error {
		batch, err := r.Generator.Generate(ctx, text, domain)
		if err != nil {
			return err
		}
		if err := batch.Err(); err != nil {
			return err
		}
		res.TestCases = batch.TestCases
		return nil
	})
	if err != nil {
		return res, err
	}
	log.Info("test cases generated", "count", len(res.TestCases), "domain", domain)

	if req.BuildMatrix {
		m := trace.Build(text, res.TestCases)
		res.Matrix = &m
		sum := m.Summary()
		r.publish(events.EventMatrixBuilt, events.MatrixData{Requirements: sum.Requirements, Covered: sum.Covered}, 0)
		log.Info("traceability matrix built", "requirements", sum.Requirements, "covered", sum.Covered)
	}

	if req.AnalyzeGaps {
		if r.Analyzer == nil {
			return res, fmt.Errorf("analyze: no gap analyzer configured")
		}
		err := r.step("analyze", func() error {
			a, err := r.Analyzer.Analyze(ctx, text, domain, res.TestCases)
			if err != nil {
				return err
			}
			if err := a.Err(); err != nil {
				return err
			}
			res.Gaps = &a
			return nil
		})
		if err != nil {
			return res, err
		}
		log.Info("gap analysis done", "coverage_score", res.Gaps.CoverageScore, "missing_features", len(res.Gaps.MissingFeatures))
	}

	if req.StoreContext {
		if r.Store == nil {
			return res, fmt.Errorf("store context: no store configured")
		}
		err := r.step("context", func() error {
			id, err := r.Store.Create(text, domain, req.Metadata)
			if err != nil {
				return err
			}
			res.ContextID = id
			if res.Matrix != nil {
				if _, err := r.Store.Build(id, res.Matrix.AsInfo()); err != nil {
					return err
				}
			}
			if res.Gaps != nil {
				if _, err := r.Store.Build(id, res.Gaps.AsInfo()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return res, err
		}
		log.Info("context stored", "context_id", res.ContextID)
	}

	if req.ExportFormat != "" {
		if r.Exporter == nil {
			return res, fmt.Errorf("export: no exporter configured")
		}
		err := r.step("export", func() error {
			out, err := r.Exporter.Export(res.TestCases, req.ExportFormat, req.ExportDest)
			if err != nil {
				return err
			}
			res.Export = &out
			return nil
		})
		if err != nil {
			return res, err
		}
		log.Info("exported", "format", req.ExportFormat, "path", res.Export.Path, "bytes", res.Export.Bytes)
	}

	if req.PublishRepo != "" {
		if r.Publisher == nil {
			return res, fmt.Errorf("publish: no tracker configured")
		}
		err := r.step("publish", func() error {
			issues, err := r.Publisher.Publish(ctx, req.PublishRepo, res.TestCases)
			res.Issues = issues
			return err
		})
		log.Info("issues published", "repo", req.PublishRepo, "count", len(res.Issues))
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// step runs fn and publishes its outcome.
func (r *Runner) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	data := events.PipelineData{Step: name, Status: "ok"}
	if err != nil {
		data.Status = "error"
		data.Error = err.Error()
		err = fmt.Errorf("%s: %w", name, err)
	}
	r.publish(events.EventPipelineStep, data, time.Since(start))
	return err
}

func (r *Runner) publish(typ events.EventType, data any, d time.Duration) {
	if r.Bus == nil {
		return
	}
	e := events.NewEvent(typ, data)
	e.Duration = d
	r.Bus.Publish(e)
}
