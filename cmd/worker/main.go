package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/config"
	"github.com/shopease/ledger/internal/events"
	"github.com/shopease/ledger/internal/inventory"
	kafkax "github.com/shopease/ledger/internal/kafka"
	"github.com/shopease/ledger/internal/redisx"
	"github.com/shopease/ledger/internal/storage"
	"github.com/shopease/ledger/internal/worker"
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

	svc := &worker.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-worker",
	}

	group := getenv("WORKER_GROUP", "ledger-worker")
	workers := mustAtoi(os.Getenv("WORKER_CONCURRENCY"), "4")

	for _, topic := range []string{events.TopicOrderCreated, events.TopicOrderStatusChanged} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		go func(topic string) {
			log.Printf("consumer started: group=%s topic=%s workers=%d", group, topic, workers)
			if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
				log.Printf("consumer %s exit: %v", topic, err)
				cancel()
			}
		}(topic)
	}

	// Reconciliation: stock held by checkouts that never confirmed is
	// returned once the reservation outlives its TTL.
	cat := catalog.New(store, cfg.LockWait)
	reserver := inventory.NewReserver(cat, store, cfg.LockWait)
	go worker.RunSweeper(ctx, reserver, cfg.ReservationTTL, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Println("shutting down worker...")
	case <-ctx.Done():
	}
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
