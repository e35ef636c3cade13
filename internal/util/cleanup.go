package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// SetupInterruptHandler returns a context cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func SetupInterruptHandler(parent context.Context, log logrus.FieldLogger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sig)

		select {
		case <-sig:
		case <-ctx.Done():
			return
		}

		log.Warn("interrupt received, rolling back the current chapter")
		cancel()

		<-sig
		log.Error("second interrupt, exiting")
		os.Exit(1)
	}()

	return ctx, cancel
}
