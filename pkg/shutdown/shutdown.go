// Package shutdown ties the server lifetime to termination signals.
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// WithSignals returns a context cancelled by the first SIGINT or SIGTERM,
// with the signal recorded as its cause. After that the signals go back to
// their default handling, so a second Ctrl-C kills a stuck drain.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctx.Done():
		case sig := <-ch:
			slog.Info("shutdown requested", "signal", sig.String())
			cancel(fmt.Errorf("received %s", sig))
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}
