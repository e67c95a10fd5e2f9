package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agrimart/fulfillment/internal/clients"
	"github.com/agrimart/fulfillment/internal/config"
	"github.com/agrimart/fulfillment/internal/events"
	"github.com/agrimart/fulfillment/internal/httpx"
	kafkax "github.com/agrimart/fulfillment/internal/kafka"
	"github.com/agrimart/fulfillment/internal/logging"
	"github.com/agrimart/fulfillment/internal/orders"
	"github.com/agrimart/fulfillment/internal/postgres"
	"github.com/agrimart/fulfillment/internal/redisx"
	"github.com/agrimart/fulfillment/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatal("migrations", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per lifecycle topic
	pPending := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderPending, 1024, log)
	pConfirmed := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderConfirmed, 1024, log)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderCancelled, 1024, log)
	pProducerPaid := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicProducerOrderPaid, 1024, log)
	producers := []*kafkax.Producer{pPending, pConfirmed, pCancelled, pProducerPaid}
	for _, p := range producers {
		p.Start(ctx)
	}

	// Collaborators
	catalog := clients.NewCatalog(cfg.CatalogBaseURL, cfg.CollabTimeout)
	identity := clients.NewIdentity(cfg.IdentityBaseURL, cfg.CollabTimeout)
	stock := clients.NewStock(cfg.InventoryBaseURL, cfg.CollabTimeout)

	// Service & handler
	svc := orders.NewService(
		&orders.Repo{DB: db},
		catalog,
		identity,
		stock,
		orders.Publishers{
			Pending:      pPending,
			Confirmed:    pConfirmed,
			Cancelled:    pCancelled,
			ProducerPaid: pProducerPaid,
		},
		cfg.ServiceName,
		log,
	)
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Svc: svc, Cache: rdb, Log: log}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // flush & close writers
	}
	for _, p := range producers {
		p.WaitClosed() // drain
	}
}
