package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/avolkov/orderhub/internal/config"
	"github.com/avolkov/orderhub/internal/index"
	"github.com/avolkov/orderhub/internal/order/store"
	"github.com/avolkov/orderhub/internal/projector"
	"github.com/avolkov/orderhub/pkg/bootstrap"
	"github.com/avolkov/orderhub/pkg/config/configloader"
	"github.com/avolkov/orderhub/pkg/nats"
	"github.com/avolkov/orderhub/pkg/server"
	"golang.org/x/sync/errgroup"
)

const serviceName = "indexer"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run starts the projector workers that keep the search index in sync with
// the order store.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer dbPool.Close()

	rdb, err := bootstrap.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("Failed to close redis client", "error", err)
		}
	}()
	writer := index.NewWriter(rdb)
	if err := writer.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to ensure search index: %w", err)
	}

	natsConn, err := nats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create NATS connection: %w", err)
	}
	defer natsConn.Close()
	js, err := nats.NewJetStreamContext(natsConn)
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}
	if err := nats.EnsureOrdersStream(ctx, js); err != nil {
		return fmt.Errorf("failed to ensure orders stream: %w", err)
	}

	proj := projector.NewProjector(store.NewPgStore(dbPool), writer, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Projector started", "workers", cfg.Subscriber.Workers)
		err := proj.Start(gCtx, js, cfg.Subscriber)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("projector failed", "error", err)
			return err
		}
		logger.Info("Projector stopped gracefully")
		return nil
	})

	if cfg.PProf.Enabled {
		opsServer := server.NewOpsServer(cfg.PProf.Addr)
		g.Go(func() error {
			logger.Info("Ops server listening", slog.String("addr", opsServer.Addr))
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown ops server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down ops server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return opsServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}
