package channels

import (
	"context"
	"errors"
	"log/slog"
)

// Channel is a chat front-end that delivers readings to users.
type Channel interface {
	// Name identifies the front-end in logs, e.g. "telegram".
	Name() string

	// Start serves users until ctx is canceled or the front-end fails.
	Start(ctx context.Context) error
}

// Run serves ch and reports its lifecycle. Stopping because ctx was
// canceled is not an error.
func Run(ctx context.Context, ch Channel, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "channel", "channel", ch.Name())
	logger.Info("channel started")

	err := ch.Start(ctx)
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		logger.Info("channel stopped")
		return nil
	}
	if err == nil {
		err = errors.New("channel " + ch.Name() + " stopped unexpectedly")
	}
	logger.Error("channel failed", "error", err)
	return err
}
