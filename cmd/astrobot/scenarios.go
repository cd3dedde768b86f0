package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/basket/astrobot/internal/scenario"
)

func newScenariosCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "Inspect and seed the scenario registry",
	}
}

func newScenariosListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{quiet: root.quietLogs()})
			if err != nil {
				reportStartup(os.Stderr, err)
				return err
			}
			defer a.Close()

			list, err := a.registry.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tTITLE\tENABLED\tSCHEMA\tSLOT")
			for _, s := range list {
				schema := "-"
				if s.OutputSchema != "" {
					schema = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", s.Code, s.Title, s.Enabled, schema, scenario.SlotFor(s.Code).Kind)
			}
			return w.Flush()
		},
	}
}

func newScenariosSyncCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [file]",
		Short: "Upsert scenarios from a YAML seed file",
		Long: `Upsert every scenario in the seed file into the registry. Scenarios
missing from the file are left untouched. Defaults to the configured
scenarios file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{quiet: root.quietLogs()})
			if err != nil {
				reportStartup(os.Stderr, err)
				return err
			}
			defer a.Close()

			path := a.cfg.ScenariosPath()
			if len(args) == 1 {
				path = args[0]
			}
			n, err := scenario.Sync(cmd.Context(), a.registry, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d scenarios from %s\n", n, path)
			return nil
		},
	}
}
