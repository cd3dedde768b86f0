package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/basket/astrobot/internal/cron"
)

func newSummaryCmd(root *rootOptions) *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "summary <session-id>",
		Short: "Print the stored summary of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), root, appOptions{quiet: root.quietLogs()})
			if err != nil {
				reportStartup(os.Stderr, err)
				return err
			}
			defer a.Close()

			text := a.svc.SessionSummary(cmd.Context(), sessionID)
			if rebuild {
				if text, err = a.facts.Rebuilder().Rebuild(cmd.Context(), sessionID); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild the summary from the current facts first")
	return cmd
}

func newRetentionCmd(root *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Purge generation audit rows older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{quiet: root.quietLogs()})
			if err != nil {
				reportStartup(os.Stderr, err)
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("days") {
				days = a.cfg.Maintenance.AuditRetentionDays
			}
			sched, err := cron.NewScheduler(cron.Config{
				Store:         a.store,
				Logger:        a.logger,
				Expr:          a.cfg.Maintenance.AuditRetentionCron,
				RetentionDays: days,
			})
			if err != nil {
				return err
			}
			res, err := sched.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d llm messages older than %d days\n", res.PurgedLLMMessages, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (defaults to config)")
	return cmd
}
