package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logx"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/ariefcatur/go-storefront-checkout/internal/search"
	"github.com/ariefcatur/go-storefront-checkout/internal/stock"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logx.New(cfg.ServiceName+"-stock", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.StoreTimeout)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("db migrate", "err", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &stock.Service{
		Ledger: &stock.PGLedger{DB: db},
		Redis:  rdb,
		Log:    log,
	}
	if sink, err := search.NewAlgoliaSink(cfg.Search.AppID, cfg.Search.APIKey, cfg.Search.IndexName); err != nil {
		log.Warn("search index not configured, stock changes will not be reindexed", "err", err)
	} else {
		svc.Index = &catalog.Indexer{Catalog: &catalog.Repo{DB: db}, Sink: sink, Log: log}
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockGroup, orders.TopicPaymentCompleted, cfg.StockWorkers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("stock consumer started", "group", cfg.StockGroup, "topic", orders.TopicPaymentCompleted, "workers", cfg.StockWorkers)
		if err := cons.Start(ctx, svc.HandlePaymentCompleted); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
