package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coursepay/server/internal/audit"
	"github.com/coursepay/server/internal/catalog"
	"github.com/coursepay/server/internal/circuitbreaker"
	"github.com/coursepay/server/internal/config"
	"github.com/coursepay/server/internal/gate"
	"github.com/coursepay/server/internal/gateway"
	"github.com/coursepay/server/internal/httpserver"
	"github.com/coursepay/server/internal/ledger"
	"github.com/coursepay/server/internal/lifecycle"
	"github.com/coursepay/server/internal/logger"
	"github.com/coursepay/server/internal/metrics"
	"github.com/coursepay/server/internal/orders"
	"github.com/coursepay/server/internal/token"
	"github.com/coursepay/server/internal/verify"
)

const serviceVersion = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional; environment overrides still apply without it
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := logger.New(logger.Config{Service: "coursepay"})
		bootLogger.Fatal().Err(err).Msg("config.load_failed")
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "coursepay",
		Version:     serviceVersion,
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	defer func() {
		if err := resources.Close(); err != nil {
			appLogger.Error().Err(err).Msg("shutdown.resource_close_failed")
		}
	}()

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	ledgerStore, err := ledger.NewStore(ledger.StoreConfig{
		Backend:           cfg.Storage.Backend,
		PostgresURL:       cfg.Storage.PostgresURL,
		MongoDBURL:        cfg.Storage.MongoDBURL,
		MongoDBDatabase:   cfg.Storage.MongoDBDatabase,
		PostgresPool:      cfg.Storage.PostgresPool,
		TransactionsTable: cfg.Storage.TransactionsTable,
	}, metricsCollector)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("ledger.init_failed")
	}
	resources.Register("ledger", ledgerStore)
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == "memory" {
		appLogger.Warn().Msg("ledger: using in-memory backend, transactions do not survive restarts")
	}

	auditSink, err := audit.NewSink(cfg.Audit)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("audit.init_failed")
	}
	recorder := audit.NewRecorder(auditSink, breakers, metricsCollector)
	resources.Register("audit-sink", recorder)

	tokenStore := token.NewStore(cfg.Verification.TokenTTL.Duration)
	resources.RegisterFunc("token-store", func() error {
		tokenStore.Stop()
		return nil
	})

	catalogRepo, err := catalog.NewRepository(cfg.Catalog)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("catalog.init_failed")
	}

	gatewayClient := gateway.NewClient(cfg.Gateway, breakers, metricsCollector)

	verifier := verify.NewService(
		cfg.Gateway.KeySecret,
		gatewayClient,
		ledgerStore,
		gate.New(),
		tokenStore,
		recorder,
		metricsCollector,
		cfg.Verification.MintTokens,
	)
	orderSvc := orders.NewService(catalogRepo, gatewayClient, cfg.Gateway.KeyID, metricsCollector)

	server := httpserver.New(cfg, orderSvc, catalogRepo, verifier, breakers, metricsCollector, appLogger)

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info().
			Str("address", cfg.Server.Address).
			Str("storage_backend", cfg.Storage.Backend).
			Str("audit_sink", cfg.Audit.Sink).
			Msg("server.starting")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal().Err(err).Msg("server.failed")
		}
	case sig := <-stop:
		appLogger.Info().Str("signal", sig.String()).Msg("server.shutdown_requested")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error().Err(err).Msg("server.shutdown_failed")
		}
	}

	appLogger.Info().Msg("server.stopped")
}
