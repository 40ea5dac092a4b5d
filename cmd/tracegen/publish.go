package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/internal/config"
	"github.com/cgast/tracegen/pkg/tracker/github"
)

func newPublishCmd(opts *rootOptions) *cobra.Command {
	var cases, repo string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Create one GitHub issue per test case",
		Long: `Create one GitHub issue per test case in a saved batch. The token
comes from .tracegen/platforms.yaml (github.token) or GITHUB_TOKEN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tcs, err := loadCases(cases)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				pub, target, err := newPublisher(a.platform, repo)
				if err != nil {
					return err
				}
				issues, err := pub.Publish(cmd.Context(), target, tcs)
				for _, is := range issues {
					fmt.Fprintf(cmd.OutOrStdout(), "%s #%d %s\n", is.TestID, is.Number, is.HTMLURL)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&cases, "cases", "", "Saved test case batch (.json or .yaml)")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository as owner/name (defaults to github.repo)")
	return cmd
}

// newPublisher builds a GitHub publisher and resolves the target repository.
func newPublisher(pc config.PlatformConfig, repo string) (*github.Publisher, string, error) {
	if repo == "" {
		repo = pc.GitHub.Repo
	}
	if repo == "" {
		return nil, "", fmt.Errorf("no repository: pass --repo or set github.repo")
	}
	var clientOpts []github.ClientOption
	if pc.GitHub.BaseURL != "" {
		clientOpts = append(clientOpts, github.WithBaseURL(pc.GitHub.BaseURL))
	}
	client, err := github.NewClient(pc.GitHub.Token, clientOpts...)
	if err != nil {
		return nil, "", err
	}
	return github.NewPublisher(client), repo, nil
}
