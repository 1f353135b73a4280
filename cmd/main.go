package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/caches/dynamodb"
	"github.com/PKTonmoy/cochin-sub004/caches/local"
	"github.com/PKTonmoy/cochin-sub004/caches/postgres"
	"github.com/PKTonmoy/cochin-sub004/caches/sqlite"
	"github.com/PKTonmoy/cochin-sub004/clients"
	"github.com/PKTonmoy/cochin-sub004/internal/config"
	"github.com/PKTonmoy/cochin-sub004/internal/obs"
	"github.com/PKTonmoy/cochin-sub004/internal/server"
)

const (
	shutdownTimeout  = 10 * time.Second
	tableWaitTimeout = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: env.Level()}))

	upstream, err := url.Parse(env.UpstreamURL)
	if err != nil {
		return fmt.Errorf("parse upstream url: %w", err)
	}

	cacheStore, queueStore, closeStores, err := openStores(ctx, env)
	if err != nil {
		return err
	}
	defer closeStores()

	hub := clients.NewHub(logger)

	deps := offline.Deps{
		Cache:   cacheStore,
		Queue:   queueStore,
		Clients: hub,
		Display: hub,
	}
	var metrics *obs.Metrics
	if env.MetricsEnabled {
		metrics = obs.NewMetrics()
		deps.Observer = metrics
	}

	opts := env.Offline()
	worker := offline.New(deps, &opts, time.Now, logger)(http.DefaultTransport)

	if err := worker.OnInstall(ctx); err != nil {
		logger.ErrorContext(ctx, "initial install failed, serving without precache", "error", err)
	}

	cfg := server.Config{
		Worker:   worker,
		Hub:      hub,
		Upstream: upstream,
		Logger:   logger,
	}
	if metrics != nil {
		cfg.Metrics = metrics.Handler()
	}

	srv := &http.Server{
		Addr:              env.ListenAddr,
		Handler:           server.New(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(gctx, "listening", "addr", env.ListenAddr, "upstream", env.UpstreamURL, "store", env.Store, "version", env.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStores opens the configured backend. DynamoDB holds cache namespaces
// only, so the sync queue is kept in sqlite alongside it.
func openStores(ctx context.Context, env config.Env) (offline.CacheStore, offline.QueueStore, func(), error) {
	switch env.Store {
	case config.StoreMemory:
		return local.NewBasicCache(), local.NewBasicQueue(), func() {}, nil

	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, env.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", env.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		c, err := postgres.New(ctx, db, &postgres.Config{})
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return c, c, func() { _ = db.Close() }, nil

	case config.StoreDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := awsdynamodb.NewFromConfig(awsCfg)
		if env.DynamoDBCreateTable {
			if err := dynamodb.EnsureTable(ctx, client, env.DynamoDBTable, tableWaitTimeout); err != nil {
				return nil, nil, nil, err
			}
		}
		c, err := dynamodb.New(ctx, client, &dynamodb.Config{Table: env.DynamoDBTable})
		if err != nil {
			return nil, nil, nil, err
		}
		q, err := sqlite.Open(ctx, env.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return c, q, func() { _ = q.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q", env.Store)
	}
}
