package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/pkg/export"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var cases, format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export test cases as json, gherkin, xml or docx",
		Long: `Export a saved batch of test cases. Without --out the rendering is
printed; docx always writes a file and prints its path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			tcs, err := loadCases(cases)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				res, err := a.exporter.Export(tcs, f, out)
				if err != nil {
					return err
				}
				if res.Path != "" {
					a.log.Info("exported", "format", f, "path", res.Path, "test_cases", res.TestCases)
					fmt.Fprintln(cmd.OutOrStdout(), res.Path)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Content)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cases, "cases", "", "Saved test case batch (.json or .yaml)")
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON), "Export format")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination file (relative paths go under export.dir)")
	return cmd
}

func newFormatsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List export formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), export.Formats())
			}
			renderFormats(cmd.OutOrStdout(), export.Formats())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
