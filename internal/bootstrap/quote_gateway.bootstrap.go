package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/krobus00/quote-service/internal/config"
	"github.com/krobus00/quote-service/internal/entity"
	quotegatewayhttp "github.com/krobus00/quote-service/internal/handler/quotegateway/http"
	"github.com/krobus00/quote-service/internal/infrastructure"
	"github.com/krobus00/quote-service/internal/repository"
	"github.com/krobus00/quote-service/internal/service/broadcast"
	"github.com/krobus00/quote-service/internal/service/poller"
	"github.com/krobus00/quote-service/internal/service/quotecache"
	"github.com/krobus00/quote-service/internal/service/quotehistory"
	"github.com/krobus00/quote-service/internal/service/quotepublisher"
	"github.com/krobus00/quote-service/internal/service/quotesource"
	"github.com/krobus00/quote-service/internal/service/session"
	"github.com/krobus00/quote-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	quoteGatewayDatabase = "quote_gateway"
	quoteGatewayRedis    = "quote_gateway"
	quoteGatewayHTTPPort = "quote_gateway_http"
	quotePublishTimeout  = "quote_publish"
)

func StartQuoteGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// background loops; stores are closed only after they stopped
	var workers sync.WaitGroup
	stopWorkers := func() {
		cancel()
		workers.Wait()
	}

	gatewayCfg := config.Env.QuoteGateway

	source, err := quotesource.New(gatewayCfg.Source)
	util.ContinueOrFatal(err)

	cache := quotecache.NewQuoteCache(gatewayCfg.CacheTTL)
	history := quotehistory.NewStore(gatewayCfg.HistorySize)

	observers := []poller.QuoteObserver{history}
	forgetters := []session.Forgetter{history}
	registryOpts := make([]session.Option, 0, 3)
	shutdownOps := map[string]operation{}

	if gatewayCfg.PersistTracked {
		dbCfg := config.Env.Database[quoteGatewayDatabase]
		db, err := infrastructure.NewPostgresConnection(ctx, dbCfg)
		util.ContinueOrFatal(err)
		infrastructure.StartPostgresHealthCheck(ctx, db, dbCfg.PingInterval)

		registryOpts = append(registryOpts, session.WithStore(repository.NewTrackedInstrumentRepository(db)))
		shutdownOps["database"] = func(ctx context.Context) error {
			stopWorkers()
			return db.Close()
		}
	}

	var snapshots *repository.QuoteSnapshotRepository
	if redisCfg, ok := config.Env.Redis[quoteGatewayRedis]; ok && strings.TrimSpace(redisCfg.CacheDSN) != "" {
		client, err := infrastructure.NewRedisConnection(ctx, redisCfg)
		util.ContinueOrFatal(err)

		snapshots = repository.NewQuoteSnapshotRepository(client)
		observers = append(observers, snapshots)
		forgetters = append(forgetters, snapshots)
		shutdownOps["redis"] = func(ctx context.Context) error {
			stopWorkers()
			return snapshots.Close()
		}
	}

	var nc *nats.Conn
	publishers := make([]entity.Publisher, 0)
	if strings.TrimSpace(config.Env.NatsJetstream.URL) != "" {
		var js nats.JetStreamContext
		nc, js, err = infrastructure.NewJetstream()
		util.ContinueOrFatal(err)

		publisher := quotepublisher.NewJetstreamQuotePublisher(js, config.Env.NatsJetstream.TimeoutHandler[quotePublishTimeout])
		publishers = append(publishers, publisher)
		observers = append(observers, publisher)
	}

	for _, publisher := range publishers {
		util.ContinueOrFatal(publisher.JetstreamEventInit(ctx))
	}

	// the hub lists tickers from the registry, the registry announces changes
	// through the hub; hub is assigned before any mutation can happen
	var hub *broadcast.Hub
	registryOpts = append(registryOpts,
		session.WithForgetters(forgetters...),
		session.WithOnChange(func(tickers []string) {
			hub.BroadcastTickers(tickers)
		}),
	)
	registry := session.NewSessionRegistry(source, cache, registryOpts...)
	hub = broadcast.NewHub(registry, broadcast.Config{
		HeartbeatInterval: gatewayCfg.HeartbeatInterval,
		ClientTimeout:     gatewayCfg.ClientTimeout,
	})

	if err := registry.Restore(ctx); err != nil {
		logrus.WithError(err).Warn("failed to restore tracked instruments")
	}
	for _, ticker := range gatewayCfg.InitialTickers {
		if err := registry.Add(ctx, ticker); err != nil {
			logrus.WithField("ticker", ticker).WithError(err).Warn("failed to track initial instrument")
		}
	}

	scheduler := poller.NewPollingScheduler(registry, cache, hub, poller.Config{
		TickInterval:     gatewayCfg.TickInterval,
		RetrievalTimeout: gatewayCfg.RetrievalTimeout,
		MaxConcurrency:   gatewayCfg.MaxConcurrentRetrievals,
	}, observers...)

	wsHandler := broadcast.NewWSHandler(hub, broadcast.WSConfig{
		WriteWait:  gatewayCfg.WriteWait,
		SendBuffer: gatewayCfg.SendBuffer,
		ReadLimit:  gatewayCfg.ReadLimit,
	})

	var snapshotReader quotegatewayhttp.SnapshotReader
	if snapshots != nil {
		snapshotReader = snapshots
	}

	mux := http.NewServeMux()
	quotegatewayhttp.NewQuoteGatewayHTTPHandler(registry, hub, history, snapshotReader, wsHandler, config.Env.APIKeys).Register(mux)
	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.DefaultHTTPServerConfig(quoteGatewayHTTPPort), mux)

	workers.Add(2)
	go func() {
		defer workers.Done()
		scheduler.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		hub.Run(ctx)
	}()

	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("quote gateway http server stopped")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"source":             source.Name(),
		"tracked":            registry.Count(),
		"persist_tracked":    gatewayCfg.PersistTracked,
		"snapshot_enabled":   snapshots != nil,
		"jetstream_enabled":  nc != nil,
		"quote_observer_cnt": len(observers),
	}).Info("quote gateway started")

	shutdownOps["http server"] = func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	}
	shutdownOps["quote pipeline"] = func(ctx context.Context) error {
		stopWorkers()
		hub.Close()
		return registry.Close(ctx)
	}
	if nc != nil {
		shutdownOps["nats connection"] = func(ctx context.Context) error {
			stopWorkers()
			return infrastructure.CloseJetstream(nc)
		}
	}

	wait := gracefulShutdown(context.Background(), config.Env.GracefulShutdownTimeout, shutdownOps)

	<-wait
}
