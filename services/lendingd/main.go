package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	genesis "frendlend/config"
	"frendlend/core"
	"frendlend/core/events"
	"frendlend/core/state"
	"frendlend/gateway/auth"
	"frendlend/gateway/middleware"
	"frendlend/observability"
	"frendlend/observability/logging"
	telemetry "frendlend/observability/otel"
	"frendlend/services/lendingd/config"
	"frendlend/services/lendingd/indexer"
	"frendlend/services/lendingd/server"
	"frendlend/services/lendingd/stream"
	"frendlend/storage"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var cfgPath, envFile string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfgPath, envFile); err != nil {
		log.Fatalf("lendingd: %v", err)
	}
}

func run(ctx context.Context, cfgPath, envFile string) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup("lendingd", cfg.Environment, logging.Options{
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.Info("starting lendingd",
		logging.MaskField("listen", cfg.ListenAddress),
		logging.MaskField("driver", cfg.Indexer.Driver),
		logging.MaskField("indexer_dsn", cfg.Indexer.DSN),
		logging.MaskField("jwt_secret", cfg.Auth.HMACSecret))

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "lendingd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, gen, err := openState(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	exec, err := core.NewExecutor(db)
	if err != nil {
		return err
	}
	exec.SetLogger(logger.With(slog.String("component", "executor")))
	exec.SetMetrics(observability.Executor())
	exec.SetPauses(core.PauseSet(gen.Pauses))
	if err := registerCallbacks(exec, gen, logger); err != nil {
		return err
	}

	emitters := events.Fanout{observability.Events()}
	var idx *indexer.Indexer
	if cfg.Indexer.Enabled {
		sqlDB, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		idx, err = indexer.New(sqlDB, 1024, logger.With(slog.String("component", "indexer")))
		if err != nil {
			return err
		}
		emitters = append(emitters, idx)
	}
	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(cfg.Stream.Buffer, logger.With(slog.String("component", "stream")))
		emitters = append(emitters, hub)
	}
	exec.SetEmitter(emitters)

	sigs, closeNonces, err := newSignatureAuth(ctx, cfg.Signatures)
	if err != nil {
		return err
	}
	defer closeNonces()

	srvCfg := server.Config{
		Executor:    exec,
		Signatures:  sigs,
		AdminScope:  cfg.Auth.AdminScope,
		RateLimiter: middleware.NewRateLimiter(rateLimits(cfg.RateLimits), logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "lendingd",
			Enabled:     true,
			LogRequests: cfg.Environment == "dev",
		}, prometheus.DefaultRegisterer, logger),
		CORS: &middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		Indexer:   idx,
		ExportDir: cfg.Indexer.ExportDir,
		Metrics:   promhttp.Handler(),
		Logger:    logger,
	}
	if cfg.Auth.Enabled {
		srvCfg.JWT = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        true,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			ScopeClaim:     cfg.Auth.ScopeClaim,
			OptionalPaths:  cfg.Auth.OptionalPaths,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
			ClockSkew:      cfg.Auth.ClockSkew,
		}, logger)
	}
	if hub != nil {
		srvCfg.Stream = hub
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	if !cfg.TLS.Enabled() {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if cfg.Environment != "dev" && !loopback {
			listener.Close()
			return errors.New("plaintext lendingd is restricted to loopback listeners or the dev environment")
		}
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("lendingd listening", slog.String("listen", listener.Addr().String()), slog.Bool("tls", cfg.TLS.Enabled()))
		var err error
		if cfg.TLS.Enabled() {
			err = httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			err = httpServer.Serve(listener)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if idx != nil {
		group.Go(func() error { return idx.Run(gctx) })
	}
	return group.Wait()
}

// openState opens the LevelDB state under the data directory and seeds it
// from genesis on first start.
func openState(cfg config.Config, logger *slog.Logger) (*storage.LevelDB, *genesis.Genesis, error) {
	if cfg.GenesisPath == "" {
		return nil, nil, errors.New("genesis path required")
	}
	gen, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, nil, fmt.Errorf("open state: %w", err)
	}
	seeded, err := core.InitGenesis(db, gen)
	if errors.Is(err, state.ErrStateVersionMismatch) && cfg.AllowMigrate {
		logger.Warn("state version mismatch, stamping current version", slog.Any("error", err))
		if err = core.StampStateVersion(db); err == nil {
			seeded, err = core.InitGenesis(db, gen)
		}
	}
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init genesis: %w", err)
	}
	if seeded {
		logger.Info("state seeded from genesis", slog.String("genesis", cfg.GenesisPath))
	}
	return db, gen, nil
}

// registerCallbacks installs a logging handler for every callback the
// genesis whitelists, so accepted offers naming them complete.
func registerCallbacks(exec *core.Executor, gen *genesis.Genesis, logger *slog.Logger) error {
	parsed, err := gen.Parse()
	if err != nil {
		return err
	}
	cbLogger := logger.With(slog.String("component", "callbacks"))
	for _, cb := range parsed.Callbacks {
		exec.Callbacks().Register(cb.Contract, cb.Selector, func(call core.CallbackCall) error {
			cbLogger.Info("loan accepted",
				slog.String("contract", call.Contract.Hex()),
				slog.String("selector", call.Selector.String()),
				slog.Uint64("offer_id", call.OfferID),
				slog.Uint64("claim_id", call.ClaimID))
			return nil
		})
	}
	return nil
}

func newSignatureAuth(ctx context.Context, cfg config.SignatureConfig) (*auth.Authenticator, func(), error) {
	noop := func() {}
	var persistence auth.NoncePersistence
	closeFn := noop
	if path := strings.TrimSpace(cfg.NonceStore); path != "" {
		store, err := auth.OpenNonceStore(path)
		if err != nil {
			return nil, noop, err
		}
		persistence = store
		closeFn = func() { _ = store.Close() }
	}
	authenticator, err := auth.NewAuthenticator(cfg.TimestampSkew, cfg.NonceTTL, cfg.NonceCapacity, nil, persistence)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	ttl := cfg.NonceTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := authenticator.HydrateNonces(ctx, time.Now().Add(-ttl)); err != nil {
		closeFn()
		return nil, noop, err
	}
	return authenticator, closeFn, nil
}

func rateLimits(in map[string]config.RateLimitConfig) map[string]middleware.RateLimit {
	out := make(map[string]middleware.RateLimit, len(in))
	for route, limit := range in {
		out[route] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	return out
}
