// Command reindex rebuilds the search index from the order store. It is a
// one-shot batch tool for bootstrapping a fresh index or recovering from an
// index loss.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avolkov/orderhub/internal/config"
	"github.com/avolkov/orderhub/internal/index"
	"github.com/avolkov/orderhub/internal/order/store"
	"github.com/avolkov/orderhub/pkg/bootstrap"
	"github.com/avolkov/orderhub/pkg/config/configloader"
)

const serviceName = "reindex"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("reindex failed: %v", err)
		os.Exit(1)
	}
	log.Println("reindex finished")
}

func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}

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

	orders, err := store.NewPgStore(dbPool).FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}

	indexed := 0
	for _, order := range orders {
		doc := index.Doc{ID: order.ID, Date: order.Date, Version: order.Version}
		if order.Name != nil {
			doc.Name = *order.Name
		}
		if order.Description != nil {
			doc.Description = *order.Description
		}
		if err := writer.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("failed to index order %d: %w", order.ID, err)
		}
		indexed++
	}
	logger.Info("Reindex complete", "orders", indexed)
	return nil
}
