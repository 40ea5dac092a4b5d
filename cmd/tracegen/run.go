package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/internal/orchestrate"
	"github.com/cgast/tracegen/pkg/export"
	"github.com/cgast/tracegen/pkg/gap"
	"github.com/cgast/tracegen/pkg/testcase"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		req         orchestrate.Request
		cases       string
		gaps        string
		format      string
		publish     bool
		publishRepo string
		skipMatrix  bool
		skipContext bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline for one requirement document",
		Long: `Read a requirement document, load the generated test cases, build the
traceability matrix, record everything on a new context and optionally
export and publish the result.

Test cases come from --cases, or from generator.path in the config. With
--gaps a saved feature gap analysis is attached and recorded as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "" {
				f, err := export.ParseFormat(format)
				if err != nil {
					return err
				}
				req.ExportFormat = f
			}
			req.BuildMatrix = !skipMatrix
			req.StoreContext = !skipContext
			req.AnalyzeGaps = gaps != ""

			return withApp(cmd, opts, func(a *app) error {
				genPath := cases
				if genPath == "" {
					genPath = a.cfg.Generator.Path
				}
				if genPath == "" {
					return fmt.Errorf("no test case source: pass --cases or set generator.path")
				}

				runner := &orchestrate.Runner{
					Generator: testcase.FileGenerator{Path: genPath},
					Store:     a.store,
					Exporter:  a.exporter,
					Bus:       a.bus,
					Logger:    a.log,
				}
				if gaps != "" {
					runner.Analyzer = gap.FileAnalyzer{Path: gaps}
				}
				if publish {
					pub, repo, err := newPublisher(a.platform, publishRepo)
					if err != nil {
						return err
					}
					runner.Publisher = pub
					req.PublishRepo = repo
				}

				res, err := runner.Run(cmd.Context(), req)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s %d\n", keyStyle.Render("Test cases:"), len(res.TestCases))
				if res.ContextID != "" {
					fmt.Fprintf(w, "%s %s\n", keyStyle.Render("Context:"), res.ContextID)
				}
				if res.Export != nil && res.Export.Path != "" {
					fmt.Fprintf(w, "%s %s\n", keyStyle.Render("Export:"), res.Export.Path)
				}
				if res.Gaps != nil {
					fmt.Fprintf(w, "%s %d/100 (%d missing features)\n", keyStyle.Render("Gap coverage:"),
						res.Gaps.CoverageScore, len(res.Gaps.MissingFeatures))
				}
				if len(res.Issues) > 0 {
					fmt.Fprintf(w, "%s %d\n", keyStyle.Render("Issues:"), len(res.Issues))
				}
				if res.Matrix != nil {
					renderMatrix(w, *res.Matrix)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&req.SourcePath, "input", "i", "", "Requirement document")
	cmd.Flags().StringVar(&req.RequirementText, "text", "", "Requirement text (instead of --input)")
	cmd.Flags().StringVar(&req.Domain, "domain", orchestrate.DefaultDomain, "Industry domain")
	cmd.Flags().StringVar(&cases, "cases", "", "Saved test case batch (.json or .yaml)")
	cmd.Flags().StringVar(&gaps, "gaps", "", "Saved feature gap analysis (.json or .yaml)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format")
	cmd.Flags().StringVarP(&req.ExportDest, "out", "o", "", "Export destination")
	cmd.Flags().BoolVar(&skipMatrix, "no-matrix", false, "Skip the traceability matrix")
	cmd.Flags().BoolVar(&skipContext, "no-context", false, "Do not record a context")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish one GitHub issue per test case")
	cmd.Flags().StringVar(&publishRepo, "repo", "", "Repository for --publish (defaults to github.repo)")
	return cmd
}
