package main

import (
	"context"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/basket/astrobot/internal/channels"
	"github.com/basket/astrobot/internal/config"
	"github.com/basket/astrobot/internal/cron"
	"github.com/basket/astrobot/internal/scenario"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot with scenario hot reload and audit retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runServe(cmd.Context(), root)
			reportStartup(os.Stderr, err)
			return err
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	a, err := newApp(ctx, root, appOptions{telegram: true})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	watcher := config.NewWatcher(a.cfg.HomeDir, logger, a.cfg.ScenariosPath())
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher disabled", "error", err)
	} else {
		syncer := scenario.NewSyncer(a.registry, a.cfg.ScenariosPath(), logger)
		events := fanOut(ctx, &wg, watcher.Events(), func(ev config.ReloadEvent) {
			a.reloadConfig(ev)
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			syncer.Run(ctx, events)
		}()
	}

	sched, err := cron.NewScheduler(cron.Config{
		Store:         a.store,
		Logger:        logger,
		Expr:          a.cfg.Maintenance.AuditRetentionCron,
		RetentionDays: a.cfg.Maintenance.AuditRetentionDays,
	})
	if err != nil {
		return fail("E_CRON_INIT", err)
	}
	sched.Start(ctx)
	defer sched.Stop()
	logger.Info("startup phase", "phase", "retention_scheduled", "next", sched.Next())

	if a.bot == nil {
		logger.Warn("telegram disabled; set TELEGRAM_TOKEN to serve users")
		<-ctx.Done()
	} else {
		var ch channels.Channel = channels.NewTelegramChannel(a.bot, a.svc, logger)
		logger.Info("startup phase", "phase", "channel_started", "channel", ch.Name(), "bot", a.bot.Self.UserName)
		if err := channels.Run(ctx, ch, logger); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	cancel()
	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

// fanOut calls observe for every event and forwards it on the returned channel.
func fanOut(ctx context.Context, wg *sync.WaitGroup, in <-chan config.ReloadEvent, observe func(config.ReloadEvent)) <-chan config.ReloadEvent {
	out := make(chan config.ReloadEvent, 16)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				observe(ev)
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// reloadConfig reports config.yaml edits. Connections are not rebuilt in
// place, so a restart is required for the new values to apply.
func (a *app) reloadConfig(ev config.ReloadEvent) {
	if ev.Path == a.cfg.ScenariosPath() {
		return
	}
	next, err := config.LoadFrom(a.cfg.HomeDir)
	if err != nil {
		a.logger.Warn("config reload failed", "path", ev.Path, "error", err)
		return
	}
	if next.Fingerprint() == a.cfg.Fingerprint() {
		return
	}
	a.logger.Warn("config changed on disk; restart to apply", "path", ev.Path,
		"old_fingerprint", a.cfg.Fingerprint(), "new_fingerprint", next.Fingerprint())
}
