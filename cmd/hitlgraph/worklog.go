package main

import (
	"fmt"
	"time"

	"github.com/dshills/hitlgraph/jira"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newWorklogCmd(c *cli) *cobra.Command {
	var (
		started string
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "worklog <issue> <time-spent> [comment-line...]",
		Short: "Add a worklog entry to a JIRA issue",
		Long: `Adds a worklog entry to a JIRA issue. Each comment argument becomes one
paragraph of the worklog comment. Credentials come from JIRA_USER and
JIRA_API_TOKEN (or the jira section of the config file).

Example:
  hitlgraph worklog SWD-3114 8h "Wrote the encryption docs" "Adjusted the flow" \
    --started 2025-03-07T08:00:00.000+0800`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireConfig(); err != nil {
				return err
			}
			cfg := c.cfg.JIRA
			if baseURL != "" {
				cfg.BaseURL = baseURL
			}
			if started == "" {
				started = jira.FormatStarted(time.Now())
			} else if _, err := time.Parse(jira.StartedLayout, started); err != nil {
				return fmt.Errorf("--started must look like 2025-03-07T08:00:00.000+0800: %w", err)
			}

			client, err := jira.NewClient(cfg.BaseURL, cfg.User, cfg.APIToken,
				jira.WithRateLimit(rate.Limit(cfg.RateLimit), 1),
				jira.WithLogger(c.logger.Named("jira")))
			if err != nil {
				return err
			}

			issue, timeSpent := args[0], args[1]
			entry := jira.BuildWorklogPayload(started, timeSpent, args[2:])
			if err := client.AddWorklog(cmd.Context(), issue, entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Worklog added to %s\n", issue)
			return nil
		},
	}
	cmd.Flags().StringVar(&started, "started", "", "start time, e.g. 2025-03-07T08:00:00.000+0800 (default now)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "JIRA site URL (default from config)")
	return cmd
}
