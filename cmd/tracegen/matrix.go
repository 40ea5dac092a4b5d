package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/pkg/events"
	"github.com/cgast/tracegen/pkg/source"
	"github.com/cgast/tracegen/pkg/trace"
)

func newMatrixCmd(opts *rootOptions) *cobra.Command {
	var requirement, cases, contextID string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Build a requirement-to-test traceability matrix",
		Long: `Build a traceability matrix from a requirement document and a saved
batch of test cases. A test case covers REQ-NNN only when its
requirement_source mentions that id near the start.

With --context the matrix is also appended to that context as an update.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if requirement == "" {
				return fmt.Errorf("--requirement is required")
			}
			text, err := source.Read(requirement)
			if err != nil {
				return err
			}
			tcs, err := loadCases(cases)
			if err != nil {
				return err
			}
			m := trace.Build(text, tcs)

			if contextID != "" {
				err := withApp(cmd, opts, func(a *app) error {
					sum := m.Summary()
					a.bus.Publish(events.NewEvent(events.EventMatrixBuilt, events.MatrixData{Requirements: sum.Requirements, Covered: sum.Covered}))
					rec, err := a.store.Build(contextID, m.AsInfo())
					if err != nil {
						return err
					}
					a.log.Info("matrix recorded", "context_id", rec.ContextID, "version", rec.Version)
					return nil
				})
				if err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			renderMatrix(cmd.OutOrStdout(), m)
			return nil
		},
	}
	cmd.Flags().StringVarP(&requirement, "requirement", "r", "", "Requirement document")
	cmd.Flags().StringVar(&cases, "cases", "", "Saved test case batch (.json or .yaml)")
	cmd.Flags().StringVar(&contextID, "context", "", "Record the matrix on this context")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
