package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

type operation func(ctx context.Context) error

// gracefulShutdown waits for a termination signal or ctx cancellation, then
// runs every cleanup operation concurrently. The returned channel is closed
// once all of them returned.
func gracefulShutdown(ctx context.Context, timeout time.Duration, ops map[string]operation) <-chan struct{} {
	wait := make(chan struct{})
	go func() {
		s := make(chan os.Signal, 1)
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(s)

		select {
		case sig := <-s:
			logrus.WithField("signal", sig.String()).Info("shutting down")
		case <-ctx.Done():
			logrus.Info("shutting down")
		}

		// force exit when cleanup hangs
		timeoutFunc := time.AfterFunc(timeout, func() {
			logrus.WithField("timeout_ms", timeout.Milliseconds()).Error("graceful shutdown timed out, force exit")
			os.Exit(0)
		})
		defer timeoutFunc.Stop()

		opCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var wg sync.WaitGroup
		for key, op := range ops {
			wg.Add(1)
			go func() {
				defer wg.Done()

				logger := logrus.WithField("component", key)
				logger.Info("cleaning up")
				if err := op(opCtx); err != nil {
					logger.WithError(err).Error("clean up failed")
					return
				}

				logger.Info("shutdown gracefully")
			}()
		}

		wg.Wait()

		close(wait)
	}()

	return wait
}
