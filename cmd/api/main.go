package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/config"
	"github.com/ariefcatur/go-storefront-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logx"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/ariefcatur/go-storefront-checkout/internal/search"
	"github.com/ariefcatur/go-storefront-checkout/internal/webhook"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName, cfg.LogLevel)
	metrics.Register()

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

	// Kafka producers, one per topic
	var initiated, completed kafkax.Publisher
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		pi := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentInitiated, 1024, log)
		pc := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentCompleted, 1024, log)
		pi.Start(ctx)
		pc.Start(ctx)
		initiated, completed = pi, pc
		producers = append(producers, pi, pc)
	} else {
		log.Warn("no kafka brokers configured, order events disabled")
	}

	store := &orders.Repo{DB: db}
	gatewayHTTP := &http.Client{Timeout: cfg.Gateway.Timeout}

	// Checkout
	initiator := &payment.Initiator{
		Store: store,
		Tokens: &payment.TokenProvider{
			BaseURL: cfg.Gateway.BaseURL,
			Creds:   payment.Credentials{AppID: cfg.Gateway.AppID, AppKey: cfg.Gateway.AppKey},
			HTTP:    gatewayHTTP,
			Cache:   rdb,
			Log:     log,
		},
		Gateway:   &payment.Gateway{BaseURL: cfg.Gateway.BaseURL, AppID: cfg.Gateway.AppID, HTTP: gatewayHTTP},
		Publisher: initiated,
		Opts: payment.Options{
			StoreName:           cfg.Site.StoreName,
			ReceivingEntityName: cfg.Gateway.ReceivingEntityName,
			ReturnURL:           cfg.Site.PublicURL + "/payment-success",
			CancelURL:           cfg.Site.PublicURL + "/cart",
			CallbackURL:         cfg.Site.MerchantURL + "/api/payments/webhook",
			LogoURL:             cfg.Site.PublicURL + "/assets/logo.jpg",
			Producer:            cfg.ServiceName,
		},
		Log: log,
	}

	// Reconciliation
	reconciler := &webhook.Reconciler{
		Store:     store,
		Dedup:     rdb,
		Publisher: completed,
		Producer:  cfg.ServiceName,
		Log:       log,
	}
	auth := webhook.AnyAuth{
		webhook.SignatureAuth{Secret: cfg.Webhook.SignatureSecret},
		webhook.BearerAuth{Secret: cfg.Webhook.BearerSecret},
	}

	router := httpx.NewRouter(log)
	(&httpx.CheckoutHandler{Initiator: initiator, DefaultCurrency: cfg.Gateway.DefaultCurrency, Log: log}).Register(router)
	(&httpx.PaymentWebhookHandler{Auth: auth, Reconciler: reconciler, Events: &webhook.PGEventLog{DB: db}, Log: log}).Register(router)
	(&httpx.OrdersHandler{Store: store, Redis: rdb, Timeout: cfg.StoreTimeout, Log: log}).Register(router)

	// Catalog mirroring
	if sink, err := search.NewAlgoliaSink(cfg.Search.AppID, cfg.Search.APIKey, cfg.Search.IndexName); err != nil {
		log.Warn("search index not configured, catalog routes disabled", "err", err)
	} else {
		indexer := &catalog.Indexer{Catalog: &catalog.Repo{DB: db}, Sink: sink, Log: log}
		(&httpx.CatalogHandler{Indexer: indexer, Secret: cfg.Webhook.CatalogSecret, AdminToken: cfg.AdminKey, Log: log}).Register(router)
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // close inbox -> flush & close writer
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
