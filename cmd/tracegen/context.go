package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/internal/orchestrate"
	"github.com/cgast/tracegen/pkg/source"
)

func newContextCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Create, inspect and extend requirement contexts",
	}
	cmd.AddCommand(
		newContextCreateCmd(opts),
		newContextGetCmd(opts),
		newContextBuildCmd(opts),
		newContextFeedbackCmd(opts),
		newContextListCmd(opts),
	)
	return cmd
}

func newContextCreateCmd(opts *rootOptions) *cobra.Command {
	var text, input, domain, metadata string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a new requirement context and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if text == "" && input == "" {
				return fmt.Errorf("one of --text or --input is required")
			}
			if text == "" {
				var err error
				if text, err = source.Read(input); err != nil {
					return err
				}
			}
			meta, err := parseObject(metadata)
			if err != nil {
				return fmt.Errorf("--metadata: %w", err)
			}
			return withApp(cmd, opts, func(a *app) error {
				id, err := a.store.Create(text, domain, meta)
				if err != nil {
					return err
				}
				a.log.Info("context created", "context_id", id)
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Requirement text")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Read the requirement from a .txt, .md, .xml, .docx or .html file")
	cmd.Flags().StringVar(&domain, "domain", orchestrate.DefaultDomain, "Industry domain")
	cmd.Flags().StringVar(&metadata, "metadata", "", "Metadata as a JSON object")
	return cmd
}

func newContextGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <context-id>",
		Short: "Print a stored context as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				rec, ok, err := a.store.Get(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("context not found: %s", args[0])
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newContextBuildCmd(opts *rootOptions) *cobra.Command {
	var info string
	cmd := &cobra.Command{
		Use:   "build <context-id>",
		Short: "Append an update to a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := parseObject(info)
			if err != nil {
				return fmt.Errorf("--info: %w", err)
			}
			return withApp(cmd, opts, func(a *app) error {
				rec, err := a.store.Build(args[0], obj)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %d\n", rec.ContextID, rec.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&info, "info", "{}", "Update payload as a JSON object, or @file")
	return cmd
}

func newContextFeedbackCmd(opts *rootOptions) *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "feedback <context-id>",
		Short: "Record feedback on a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := parseObject(feedback)
			if err != nil {
				return fmt.Errorf("--feedback: %w", err)
			}
			return withApp(cmd, opts, func(a *app) error {
				rec, err := a.store.AddFeedback(args[0], obj)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %d\n", rec.ContextID, rec.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "Feedback as a JSON object, or @file")
	_ = cmd.MarkFlagRequired("feedback")
	return cmd
}

func newContextListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				summaries, err := a.store.List()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), summaries)
				}
				renderSummaries(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// parseObject decodes a JSON object given inline or as @path.
func parseObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	data := []byte(s)
	if s[0] == '@' {
		var err error
		if data, err = os.ReadFile(s[1:]); err != nil {
			return nil, err
		}
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
