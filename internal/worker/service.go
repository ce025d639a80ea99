// Package worker holds the background side of the service: keeping the redis
// order-status cache fresh from the event stream and releasing stock held by
// abandoned checkout attempts.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shopease/ledger/internal/events"
	"github.com/shopease/ledger/internal/inventory"
	kafkax "github.com/shopease/ledger/internal/kafka"
	"github.com/shopease/ledger/internal/redisx"
)

type Service struct {
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler for the order topics.
// Events are deduplicated by event id so a redelivered message cannot flap
// the cache backwards.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	switch env.EventType {
	case events.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.cacheStatus(ctx, p.OrderID, "Processing")
	case events.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[events.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.cacheStatus(ctx, p.OrderID, p.To)
	default:
		return nil
	}
}

func (s *Service) cacheStatus(ctx context.Context, orderID, status string) error {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	return s.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, status), redisx.TTLStatusCache).Err()
}

// RunSweeper releases pending reservations older than ttl on every tick until
// the context is cancelled. This is the reconciliation task for checkouts
// that never reached Confirmed.
func RunSweeper(ctx context.Context, rs *inventory.Reserver, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := rs.SweepExpired(ctx, ttl)
			if err != nil {
				log.Printf("reservation sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("reservation sweep: released %d expired reservations", n)
			}
		}
	}
}
