package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/basket/astrobot/internal/readings"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run <session-id> <scenario>",
		Short: "Generate one scenario for a session and print the result",
		Long: `Run a scenario through the validated generation loop.

Without --dry-run the result is stored as the new active version and the
session summary is rebuilt. With --dry-run nothing is persisted except the
generation audit trail.`,
		Args: cobra.ExactArgs(2),
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

			code := args[1]
			out := cmd.OutOrStdout()
			if dryRun {
				res, err := a.gen.Run(cmd.Context(), sessionID, code)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "outcome=%s attempts=%d accepted=%t mock=%t\n",
					res.Outcome, res.Attempts, res.Accepted, res.Mock)
				return printResult(out, res.Data, code)
			}
			data, err := a.svc.RunScenario(cmd.Context(), sessionID, code)
			if err != nil {
				return err
			}
			return printResult(out, data, code)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "generate without storing a version")
	return cmd
}

func printResult(w io.Writer, data map[string]any, code string) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n\n%s\n", b, readings.Preview(data, code))
	return nil
}

func parseSessionID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q", raw)
	}
	return id, nil
}
