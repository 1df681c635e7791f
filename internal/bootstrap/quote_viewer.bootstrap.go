package bootstrap

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/krobus00/quote-service/internal/config"
	"github.com/krobus00/quote-service/internal/service/viewerclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartQuoteViewer(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	viewerCfg := config.Env.QuoteViewer
	if url, _ := cmd.Flags().GetString("url"); strings.TrimSpace(url) != "" {
		viewerCfg.URL = url
	}

	controller := viewerclient.NewController(viewerclient.Config{
		URL:                  viewerCfg.URL,
		MaxReconnectAttempts: viewerCfg.MaxReconnectAttempts,
		BaseDelay:            viewerCfg.BaseDelay,
		MaxDelay:             viewerCfg.MaxDelay,
		BackoffFactor:        viewerCfg.BackoffFactor,
		ManualReconnectDelay: viewerCfg.ManualReconnectDelay,
		HandshakeTimeout:     viewerCfg.HandshakeTimeout,
		PingInterval:         viewerCfg.PingInterval,
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		controller.Run(ctx)
	}()

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for evt := range controller.Events() {
			logViewerEvent(evt)
		}
	}()

	go readViewerCommands(os.Stdin, controller, cancel)

	logrus.WithField("url", viewerCfg.URL).Info("quote viewer started, r = reconnect, d = disconnect, c = connect, q = quit")
	controller.Connect()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"viewer connection": func(ctx context.Context) error {
			cancel()
			<-stopped
			<-rendered
			return nil
		},
	})

	select {
	case <-wait:
	case <-rendered:
	}
}

type viewerCommands interface {
	Connect()
	Disconnect()
	ManualReconnect()
}

// readViewerCommands maps stdin lines to controller commands until quit or EOF.
func readViewerCommands(r io.Reader, ctl viewerCommands, quit func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "r":
			ctl.ManualReconnect()
		case "d":
			ctl.Disconnect()
		case "c":
			ctl.Connect()
		case "q":
			quit()
			return
		case "":
		default:
			logrus.Warn("unknown command, use r, d, c or q")
		}
	}
}

func logViewerEvent(evt viewerclient.Event) {
	switch evt.Kind {
	case viewerclient.EventStateChanged:
		logrus.WithField("state", evt.State.String()).Info("connection state changed")
	case viewerclient.EventPrices:
		for _, q := range evt.Quotes {
			fields := logrus.Fields{
				"ticker": q.Ticker,
				"price":  q.Price.String(),
			}
			if q.Change != nil {
				fields["change"] = q.Change.String()
			}
			if q.ChangePercent != nil {
				fields["change_percent"] = q.ChangePercent.String()
			}
			if q.OpenPrice != nil {
				fields["open"] = q.OpenPrice.String()
				fields["open_approximate"] = q.OpenPriceApproximate
			}
			logrus.WithFields(fields).Info("quote")
		}
	case viewerclient.EventActiveTickers:
		logrus.WithField("tickers", evt.Tickers).Info("active tickers")
	case viewerclient.EventError:
		logrus.WithField("message", evt.Message).Warn("gateway error")
	case viewerclient.EventPong:
		logrus.Debug("pong")
	case viewerclient.EventReconnectScheduled:
		logrus.WithFields(logrus.Fields{
			"attempt": evt.Attempt,
			"delay":   evt.Delay.String(),
		}).WithError(evt.Err).Warn("connection lost, reconnect scheduled")
	case viewerclient.EventMaxAttemptsReached:
		logrus.WithError(evt.Err).Error("gave up reconnecting, press r to retry")
	}
}
