package outbox

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/shopforge/go-shop-orders/internal/kafka"
)

const fetchBatch = 100

// Dispatcher polls the outbox table and publishes pending records. A record is
// marked sent only after the broker acknowledged it; redelivery after a crash
// between publish and mark is possible and consumers must tolerate duplicates.
type Dispatcher struct {
	DB       *pgxpool.Pool
	Writer   kafkax.Publisher
	Interval time.Duration
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.dispatchPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) dispatchPending(ctx context.Context) {
	records, err := FetchPending(ctx, d.DB, fetchBatch)
	if err != nil {
		log.Printf("outbox: fetch pending: %v", err)
		return
	}
	for _, rec := range records {
		msg := kafkago.Message{
			Topic: rec.Topic,
			Key:   []byte(rec.Key),
			Value: rec.Payload,
			Headers: []kafkago.Header{
				{Key: "x-event-id", Value: []byte(rec.EventID)},
			},
		}
		if err := d.Writer.WriteMessages(ctx, msg); err != nil {
			log.Printf("outbox: publish id=%d topic=%s: %v", rec.ID, rec.Topic, err)
			continue
		}
		if err := MarkSent(ctx, d.DB, rec.ID); err != nil {
			log.Printf("outbox: mark sent id=%d: %v", rec.ID, err)
		}
	}
}
