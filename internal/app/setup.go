// Package app contains the application setup for the order service.
package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/avolkov/orderhub/internal/config"
	"github.com/avolkov/orderhub/internal/index"
	"github.com/avolkov/orderhub/internal/order/service"
	"github.com/avolkov/orderhub/internal/order/store"
	"github.com/avolkov/orderhub/internal/search"
	"github.com/avolkov/orderhub/internal/transport/rest"
	"github.com/avolkov/orderhub/pkg/messaging"
	"github.com/avolkov/orderhub/pkg/server"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	OrderService service.OrderService
	Searcher     rest.Searcher
	DB           rest.Pinger
	Index        rest.Pinger
	Logger       *slog.Logger
}

func SetupDependencies(dbPool *pgxpool.Pool, rdb *redis.Client, publisher messaging.Publisher, logger *slog.Logger) *Dependencies {
	orderStore := store.NewPgStore(dbPool)

	return &Dependencies{
		OrderService: service.NewService(orderStore, publisher, logger),
		Searcher:     search.NewService(rdb),
		DB:           dbPinger{pool: dbPool},
		Index:        index.NewWriter(rdb),
		Logger:       logger,
	}
}

// SetupHttpHandler initializes the HTTP routes for the order service.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the order service.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	orderHandler := rest.NewHandler(deps.OrderService, deps.Searcher, deps.DB, deps.Index, deps.Logger)
	orderHandler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures an HTTP server for the order service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}

// dbPinger adapts the pgx pool to the health check interface.
type dbPinger struct {
	pool *pgxpool.Pool
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
