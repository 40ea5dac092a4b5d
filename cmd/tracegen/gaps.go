package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/pkg/gap"
)

func newGapsCmd(opts *rootOptions) *cobra.Command {
	var analysis, cases, format, contextID string
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Render a feature gap analysis report",
		Long: `Render a saved feature gap analysis as a JSON or Markdown report.
The analysis is stamped with the number of test cases in --cases.

With --context the analysis is also appended to that context as an update.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if analysis == "" {
				return fmt.Errorf("--analysis is required")
			}
			tcs, err := loadCases(cases)
			if err != nil {
				return err
			}
			report, err := gap.FileAnalyzer{Path: analysis}.Analyze(cmd.Context(), "", "", tcs)
			if err != nil {
				return err
			}
			if err := report.Err(); err != nil {
				return err
			}

			if contextID != "" {
				err := withApp(cmd, opts, func(a *app) error {
					rec, err := a.store.Build(contextID, report.AsInfo())
					if err != nil {
						return err
					}
					a.log.Info("gap analysis recorded", "context_id", rec.ContextID, "version", rec.Version)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return gap.Render(cmd.OutOrStdout(), report, format)
		},
	}
	cmd.Flags().StringVar(&analysis, "analysis", "", "Saved gap analysis (.json or .yaml)")
	cmd.Flags().StringVar(&cases, "cases", "", "Saved test case batch (.json or .yaml)")
	cmd.Flags().StringVarP(&format, "format", "f", gap.FormatMarkdown,
		"Report format ("+strings.Join(gap.Formats(), ", ")+")")
	cmd.Flags().StringVar(&contextID, "context", "", "Record the analysis on this context")
	return cmd
}
