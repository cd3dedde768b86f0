package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/basket/astrobot/internal/config"
	"github.com/basket/astrobot/internal/doctor"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var jsonOutput, offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and external services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error loading config: %v\n", err)
			}
			diag := doctor.Run(cmd.Context(), &cfg, offline)
			out := cmd.OutOrStdout()

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(diag); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "astrobot doctor (%s)\n", diag.Timestamp.Format(time.RFC3339))
				fmt.Fprintf(out, "System: %s/%s (%s)\n", diag.System.OS, diag.System.Arch, diag.System.Go)
				fmt.Fprintln(out, "---")
				for _, res := range diag.Results {
					icon := "✅"
					switch res.Status {
					case doctor.StatusFail:
						icon = "❌"
					case doctor.StatusWarn:
						icon = "⚠️ "
					case doctor.StatusSkip:
						icon = "⏩"
					}
					fmt.Fprintf(out, "%s %-12s: %s\n", icon, res.Name, res.Message)
					if res.Detail != "" {
						fmt.Fprintf(out, "    %s\n", res.Detail)
					}
				}
			}
			if diag.Failed() {
				return errors.New("doctor found failing checks")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the diagnosis as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip network and Redis probes")
	return cmd
}

func loadConfig(root *rootOptions) (config.Config, error) {
	if root.home != "" {
		return config.LoadFrom(root.home)
	}
	return config.Load()
}
