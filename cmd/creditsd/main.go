// Command creditsd serves the credits ledger over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/xraph/credits"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/checkout"
	"github.com/xraph/credits/generate"
	"github.com/xraph/credits/httpapi"
	"github.com/xraph/credits/internal/config"
	"github.com/xraph/credits/observability"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	redisstore "github.com/xraph/credits/store/redis"
	"github.com/xraph/credits/store/sqlkv"
	"github.com/xraph/credits/validate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "creditsd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []credits.Option{
		credits.WithLogger(logger),
		credits.WithProfile(cfg.Profile),
		credits.WithLoginLimit(cfg.LoginLimit),
		credits.WithLoginWindow(cfg.LoginWindowDays),
		credits.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		credits.WithPlugin(audithook.New(audithook.LogRecorder(logger))),
	}
	if cfg.Catalog == config.CatalogSingle {
		opts = append(opts,
			credits.WithCatalog(plan.SinglePoolCatalog()),
			credits.WithCostTable(pricing.SinglePoolTable()),
		)
	}

	l, err := credits.New(s, opts...)
	if err != nil {
		_ = s.Close()
		return err
	}
	if err := l.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}

	v := validate.New(validate.WithAllowedDomains(cfg.AllowedDomains...))
	api := httpapi.New(l,
		httpapi.WithLogger(logger),
		httpapi.WithValidator(v),
		httpapi.WithMetrics(reg),
		httpapi.WithGenerator(generate.NewService(l,
			generate.WithLogger(logger),
			generate.WithValidator(v),
			generate.WithGateways(gateways(cfg)...),
		)),
		httpapi.WithCheckout(checkout.NewHandler(l, checkout.WithLogger(logger), checkout.WithValidator(v))),
	)

	srv := &http.Server{Addr: cfg.Addr, Handler: api}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("creditsd listening", "addr", cfg.Addr, "store", cfg.Store, "catalog", cfg.Catalog)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("creditsd shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), l.Stop(shutdownCtx))
	})
	return g.Wait()
}

func gateways(cfg *config.Config) []generate.Gateway {
	out := make([]generate.Gateway, 0, len(cfg.Gateways))
	for _, g := range cfg.Gateways {
		out = append(out, generate.Gateway{Provider: pricing.Provider(g.Provider), Endpoint: g.URL, Token: g.Token})
	}
	return out
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return redisstore.New(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})), nil
	case config.StoreSQLite:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer; a single connection keeps CAS writes serial.
		db.SetMaxOpenConns(1)
		return sqlkv.New(db, sqlkv.SQLite), nil
	case config.StorePostgres:
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return sqlkv.New(db, sqlkv.Postgres), nil
	default:
		return memory.New(), nil
	}
}
