// Command sitecfg-server serves the site configuration store over gRPC and HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/sitecfg/internal/cache"
	"github.com/and161185/sitecfg/internal/config"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/metrics"
	"github.com/and161185/sitecfg/internal/migrate"
	"github.com/and161185/sitecfg/internal/repository"
	"github.com/and161185/sitecfg/internal/repository/localfile"
	"github.com/and161185/sitecfg/internal/repository/postgres"
	"github.com/and161185/sitecfg/internal/repository/sqlite"
	grpcserver "github.com/and161185/sitecfg/internal/server/grpc"
	httpserver "github.com/and161185/sitecfg/internal/server/http"
	"github.com/and161185/sitecfg/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// openStore connects the configured versioned store. It returns a nil store
// for the "none" driver.
func openStore(ctx context.Context, cfg *config.Config) (repository.VersionedStore, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := migrate.UpPostgres(ctx, cfg.DSN); err != nil {
			return nil, nil, fmt.Errorf("migrate up: %w", err)
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(db), db.Close, nil
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	}
	return nil, func() {}, nil
}

// canStartDegraded reports whether a store that failed to open may be
// skipped in favour of the local file.
func canStartDegraded(cfg *config.Config, err error) bool {
	return cfg.Fallback && cfg.LocalFile != "" && errors.Is(err, errs.ErrUnavailable)
}

// main loads configuration, opens storage and serves until a signal arrives.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("driver", cfg.Driver),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Storage
	store, closeStore, err := openStore(ctx, cfg)
	switch {
	case err == nil:
	case canStartDegraded(cfg, err):
		logger.Warn("versioned store unavailable, serving the local file without history",
			zap.String("driver", cfg.Driver), zap.Error(err))
		store, closeStore = nil, func() {}
	default:
		logger.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	deps := service.DocumentDeps{
		Metrics:               m,
		Logger:                logger,
		FallbackOnUnavailable: cfg.Fallback,
	}
	var revs repository.RevisionReader
	var ready httpserver.Pinger
	if store != nil {
		deps.Store = store
		revs = store
		ready = store
	}
	if cfg.LocalFile != "" {
		local, err := localfile.New(cfg.LocalFile)
		if err != nil {
			logger.Fatal("local file", zap.Error(err))
		}
		deps.Local = local
	}
	if cfg.RedisURL != "" {
		dc, err := cache.NewDocumentCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer func() { _ = dc.Close() }()
		deps.Cache = dc
	}

	// Services
	docSvc, err := service.NewDocumentService(deps)
	if err != nil {
		logger.Fatal("document service", zap.Error(err))
	}
	historySvc := service.NewHistoryService(revs, docSvc, m, logger)
	authSvc := service.NewAuthService([]byte(cfg.JWTKey), cfg.AccessTTL)

	// gRPC server with interceptors
	var opts []grpc.ServerOption
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("serving gRPC without TLS (dev mode)")
	}
	app := grpcserver.New(docSvc, historySvc, &cfg.Describe, logger)
	s := grpcserver.NewGRPCServer(app, authSvc, logger, opts...)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening (gRPC)", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

	var hsrv *http.Server
	if cfg.HTTPAddr != "" {
		if !cfg.Dev {
			gin.SetMode(gin.ReleaseMode)
		}
		hsrv = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: httpserver.NewRouter(httpserver.Deps{
				Docs:     docSvc,
				History:  historySvc,
				Describe:      &cfg.Describe,
				DefaultLocale: cfg.DefaultLocale,
				Ready:         ready,
				Gatherer:      reg,
				Logger:        logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("listening (HTTP)", zap.String("addr", cfg.HTTPAddr))
			if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if hsrv != nil {
			_ = hsrv.Shutdown(shutdownCtx)
		}
		// graceful shutdown
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
