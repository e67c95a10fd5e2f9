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
	"github.com/agrimart/fulfillment/internal/inventory"
	kafkax "github.com/agrimart/fulfillment/internal/kafka"
	"github.com/agrimart/fulfillment/internal/logging"
	"github.com/agrimart/fulfillment/internal/postgres"
	"github.com/agrimart/fulfillment/internal/redisx"
	"github.com/agrimart/fulfillment/internal/unitconv"
	"github.com/agrimart/fulfillment/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName + "-inventory")
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

	// Producers for the derived events
	pLowStock := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicInventoryLowStock, 1024, log)
	pAvailability := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOfferAvailability, 1024, log)
	pLowStock.Start(ctx)
	pAvailability.Start(ctx)

	// Collaborators
	catalog := clients.NewCatalog(cfg.CatalogBaseURL, cfg.CollabTimeout)
	identity := clients.NewIdentity(cfg.IdentityBaseURL, cfg.CollabTimeout)
	orderStatus := clients.NewOrders(cfg.OrdersBaseURL, cfg.CollabTimeout)

	conv, err := unitconv.New(unitconv.DefaultTable())
	if err != nil {
		log.Fatal("unit table", zap.Error(err))
	}

	svc := inventory.NewService(
		&inventory.Repo{DB: db},
		catalog,
		identity,
		orderStatus,
		conv,
		pLowStock,
		pAvailability,
		cfg.ServiceName+"-inventory",
		log,
	)

	dedup := redisx.NewDedup(rdb, "inventory", redisx.TTLDedup)
	handlers := inventory.NewHandlers(svc, dedup, log)

	// One consumer group member per order topic
	consume := func(topic string, h kafkax.Handler) {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, topic, cfg.ConsumerWorkers, log)
		go func() {
			log.Info("consumer started",
				zap.String("group", cfg.ConsumerGroup),
				zap.String("topic", topic),
				zap.Int("workers", cfg.ConsumerWorkers))
			if err := cons.Start(ctx, h); err != nil {
				log.Error("consumer exit", zap.String("topic", topic), zap.Error(err))
				cancel()
			}
		}()
	}
	consume(events.TopicOrderPending, handlers.OrderPending)
	consume(events.TopicOrderConfirmed, handlers.OrderConfirmed)
	consume(events.TopicOrderCancelled, handlers.OrderCancelled)

	// HTTP API: inventory CRUD + the validateStock hint
	router := httpx.NewRouter()
	ih := &httpx.InventoryHandler{Svc: svc, Log: log}
	ih.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	time.Sleep(500 * time.Millisecond)
	pLowStock.Close()
	pAvailability.Close()
	pLowStock.WaitClosed()
	pAvailability.WaitClosed()
}
