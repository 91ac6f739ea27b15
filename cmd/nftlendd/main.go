package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nftlend/config"
	"nftlend/core"
	"nftlend/gateway/auth"
	"nftlend/gateway/middleware"
	"nftlend/gateway/routes"
	"nftlend/indexer"
	"nftlend/observability"
	"nftlend/observability/logging"
	telemetry "nftlend/observability/otel"
	"nftlend/storage"
)

func main() {
	var cfgPath string
	var bootstrapPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to node configuration")
	flag.StringVar(&bootstrapPath, "bootstrap", "", "override the bootstrap file applied on first start")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if bootstrapPath != "" {
		cfg.BootstrapFile = bootstrapPath
	}

	logger, logCloser := logging.SetupWithOptions("nftlendd", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("node stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "nftlendd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	nodeCfg, err := cfg.NodeConfig()
	if err != nil {
		return err
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	node, err := core.NewNode(db, nodeCfg, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("start node: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("close node", "error", err)
		}
	}()
	if err := applyBootstrap(node, cfg.BootstrapFile, logger); err != nil {
		return err
	}
	node.Subscribe(observability.Events())

	var index routes.EventIndex
	if cfg.Indexer.Enabled {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open event index: %w", err)
		}
		idx, err := indexer.New(gdb, logger)
		if err != nil {
			return fmt.Errorf("prepare event index: %w", err)
		}
		node.Subscribe(idx)
		index = idx
		logger.Info("event index enabled", "driver", cfg.Indexer.Driver, logging.MaskField("dsn", cfg.Indexer.DSN))
	}

	authn, err := newAuthenticator(cfg.Gateway, logger)
	if err != nil {
		return err
	}
	handler, err := routes.New(routes.Config{
		Node:          node,
		Index:         index,
		Logger:        logger,
		Authenticator: authn,
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.LimitRead:  {RequestsPerMinute: cfg.Gateway.RequestsPerMinute, Burst: cfg.Gateway.Burst},
			routes.LimitWrite: {RequestsPerMinute: cfg.Gateway.RequestsPerMinute / 2, Burst: cfg.Gateway.Burst / 2},
			routes.LimitAdmin: {RequestsPerMinute: 60, Burst: 10},
		}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "nftlendd",
			LogRequests: cfg.Log.Level == "debug",
		}, logger),
		CORS: middleware.CORSConfig{AllowedOrigins: cfg.Gateway.AllowedOrigins},
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	read, write, idle := cfg.Gateway.Timeouts()
	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", listener.Addr().String(), "chainId", cfg.ChainID)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

func applyBootstrap(node *core.Node, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	bootstrap, err := config.LoadBootstrap(path)
	if err != nil {
		return err
	}
	genesis, err := bootstrap.Genesis()
	if err != nil {
		return err
	}
	applied, err := node.ApplyGenesis(genesis)
	if err != nil {
		return fmt.Errorf("apply bootstrap %s: %w", path, err)
	}
	if applied {
		logger.Info("bootstrap applied", "file", path,
			"currencies", len(genesis.Currencies),
			"collaterals", len(genesis.Collaterals))
	}
	return nil
}

func newAuthenticator(cfg config.GatewayConfig, logger *slog.Logger) (*middleware.Authenticator, error) {
	secret := cfg.AuthSecret()
	if cfg.AuthEnabled {
		if secret == "" {
			return nil, fmt.Errorf("%s is empty; set it or disable gateway.AuthEnabled", cfg.AuthSecretEnv)
		}
		logger.Info("bearer authentication enabled", "secret", logging.Fingerprint(secret))
	} else {
		logger.Warn("authentication disabled; trusting the " + middleware.HeaderActor + " header")
	}
	return middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled: cfg.AuthEnabled,
		Token: auth.Config{
			Secret:    []byte(secret),
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
			ClockSkew: 30 * time.Second,
		},
	}, logger), nil
}
