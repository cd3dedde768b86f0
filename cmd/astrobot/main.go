// Command astrobot runs the astrology reading bot and its maintenance tools.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	home   string
	daemon bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "astrobot",
		Short: "Personal astrology readings over Telegram",
		Long: `astrobot generates schema-validated astrology readings with an LLM,
stores every version, and serves them through a Telegram bot.

State lives in $ASTROBOT_HOME (default ~/.astrobot).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.home, "home", "", "state directory (overrides $ASTROBOT_HOME)")
	root.PersistentFlags().BoolVar(&opts.daemon, "daemon", false, "log to stdout even when attached to a terminal")

	scenarios := newScenariosCmd(opts)
	scenarios.AddCommand(newScenariosListCmd(opts), newScenariosSyncCmd(opts))

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newSummaryCmd(opts),
		newRetentionCmd(opts),
		newDoctorCmd(opts),
		scenarios,
	)
	return root
}

// quietLogs keeps one-shot commands readable on a terminal: logs then go to
// the log file only.
func (o *rootOptions) quietLogs() bool {
	return !o.daemon && isatty.IsTerminal(os.Stdout.Fd())
}

func main() {
	loadDotEnv(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
