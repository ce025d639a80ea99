package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/checkout"
	"github.com/shopease/ledger/internal/config"
	"github.com/shopease/ledger/internal/events"
	"github.com/shopease/ledger/internal/httpx"
	"github.com/shopease/ledger/internal/inventory"
	kafkax "github.com/shopease/ledger/internal/kafka"
	"github.com/shopease/ledger/internal/ledger"
	"github.com/shopease/ledger/internal/redisx"
	"github.com/shopease/ledger/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := storage.Open(ctx, cfg.StoreDriver, cfg.BoltPath, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderStatusChanged, 1024)
	pStatus.Start(ctx)
	pRejected := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockRejected, 1024)
	pRejected.Start(ctx)

	cat := catalog.New(store, cfg.LockWait)
	reserver := inventory.NewReserver(cat, store, cfg.LockWait)
	orders := ledger.New(store, cat, ledger.Pricing{
		TaxBasisPoints:    cfg.TaxBasisPoints,
		ShippingFeeCents:  cfg.ShippingFeeCents,
		FreeShippingCents: cfg.FreeShippingCents,
	}, cfg.LockWait)
	coord := checkout.New(reserver, orders, cfg.LockWait)

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Checkout:         coord,
		Orders:           orders,
		Catalog:          cat,
		Redis:            rdb,
		ProducerCreated:  pCreated,
		ProducerStatus:   pStatus,
		ProducerRejected: pRejected,
		Service:          cfg.ServiceName,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s (store=%s)", cfg.HTTPAddr, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	for _, p := range []*kafkax.Producer{pCreated, pStatus, pRejected} {
		p.Close()
	}
	for _, p := range []*kafkax.Producer{pCreated, pStatus, pRejected} {
		p.WaitClosed()
	}
}
