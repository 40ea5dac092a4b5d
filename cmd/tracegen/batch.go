package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/internal/orchestrate"
	"github.com/cgast/tracegen/pkg/export"
	"github.com/cgast/tracegen/pkg/plan"
	"github.com/cgast/tracegen/pkg/testcase"
)

const batchLongDesc = `Run every job in a YAML run plan through the pipeline.

Relative input and cases paths resolve against the plan's directory;
relative outputs go under export.dir, like export --out.
An input may be a glob such as docs/**/*.md; each matching file becomes its
own job, and the job's output must then be a directory ending in /.
{{name}} variables take their values from --param, then from the plan's
declared defaults. Built-ins {{date}}, {{datetime}} and {{year}} are always set.

Example plan:
  apiVersion: tracegen/v1
  kind: RunPlan
  meta:
    name: release-{{release}}
  params:
    - name: release
      default: "1.0"
  defaults:
    cases: batches/all.json
    format: xml
  jobs:
    - name: search
      input: docs/search.md
      output: exports/search-{{release}}.xml`

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var (
		params   []string
		dryRun   bool
		failFast bool
	)
	cmd := &cobra.Command{
		Use:   "batch <plan.yaml>",
		Short: "Run every job in a run plan",
		Long:  batchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseParams(params)
			if err != nil {
				return err
			}
			p, err := plan.Load(args[0], overrides)
			if err != nil {
				return err
			}
			if result := plan.Validate(p); !result.Valid() {
				return errors.New(result.Error())
			}

			base := filepath.Dir(args[0])
			jobs, err := p.Expand(base)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if dryRun {
				t := newTable("Job", "Source", "Cases", "Format", "Output")
				for _, job := range jobs {
					src := job.Input
					if src == "" {
						src = shorten(job.Text, 40)
					}
					t.Row(job.Name, src, job.Cases, job.Format, job.Output)
				}
				fmt.Fprintln(w, t.Render())
				return nil
			}

			return withApp(cmd, opts, func(a *app) error {
				var errs []error
				for _, job := range jobs {
					req, err := jobRequest(job, base)
					if err != nil {
						return fmt.Errorf("job %s: %w", job.Name, err)
					}
					runner := &orchestrate.Runner{
						Generator: testcase.FileGenerator{Path: resolvePath(base, job.Cases)},
						Store:     a.store,
						Exporter:  a.exporter,
						Bus:       a.bus,
						Logger:    a.log.With("job", job.Name),
					}

					res, err := runner.Run(cmd.Context(), req)
					if err != nil {
						if failFast {
							return fmt.Errorf("job %s: %w", job.Name, err)
						}
						fmt.Fprintf(w, "%s %s: %v\n", missingStyle.Render("FAIL"), job.Name, err)
						errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
						continue
					}

					line := fmt.Sprintf("%s %s: %d test cases", coveredStyle.Render("OK"), job.Name, len(res.TestCases))
					if res.Matrix != nil {
						sum := res.Matrix.Summary()
						line += fmt.Sprintf(", %d/%d covered", sum.Covered, sum.Requirements)
					}
					if res.ContextID != "" {
						line += ", context " + res.ContextID
					}
					if res.Export != nil && res.Export.Path != "" {
						line += ", " + res.Export.Path
					}
					fmt.Fprintln(w, line)
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Plan variable as name=value (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the plan and list its jobs without running them")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failing job")
	return cmd
}

func jobRequest(job plan.Job, base string) (orchestrate.Request, error) {
	req := orchestrate.Request{
		RequirementText: job.Text,
		Domain:          job.Domain,
		Metadata:        job.Metadata,
		BuildMatrix:     job.BuildMatrix(),
		StoreContext:    job.StoreContext(),
	}
	if req.Domain == "" {
		req.Domain = orchestrate.DefaultDomain
	}
	if job.Input != "" {
		req.SourcePath = resolvePath(base, job.Input)
	}
	if job.Format != "" {
		f, err := export.ParseFormat(job.Format)
		if err != nil {
			return req, err
		}
		req.ExportFormat = f
		req.ExportDest = job.Output
	}
	return req, nil
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q (expected name=value)", pair)
		}
		params[name] = value
	}
	return params, nil
}
