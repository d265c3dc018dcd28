// Package sweeper runs the periodic expiry pass over reservations and stale
// anonymous carts.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/shopforge/go-shop-orders/internal/carts"
	"github.com/shopforge/go-shop-orders/internal/metrics"
	"github.com/shopforge/go-shop-orders/internal/orders"
)

type Sweeper struct {
	Engine     *orders.ReservationEngine
	Carts      *carts.Repo
	Interval   time.Duration
	CartMaxAge time.Duration
	Metrics    *metrics.SweeperMetrics
}

// Run sweeps on a fixed interval until ctx is cancelled. One pass runs
// immediately on start.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	now := start.UTC()

	expired, err := s.Engine.ExpireOverdueReservations(ctx, now)
	if err != nil {
		s.Metrics.ErrorsTotal.Inc()
		log.Printf("sweeper: expire reservations: %v", err)
	} else if expired > 0 {
		s.Metrics.ExpiredTotal.Add(float64(expired))
		log.Printf("sweeper: expired %d reservations", expired)
	}

	if overdue, err := s.Engine.CountOverdueReservations(ctx, now); err == nil {
		s.Metrics.OverdueGauge.Set(float64(overdue))
	}

	if s.Carts != nil && s.CartMaxAge > 0 {
		deleted, err := s.Carts.CleanupAnonymousCarts(ctx, now.Add(-s.CartMaxAge))
		if err != nil {
			s.Metrics.ErrorsTotal.Inc()
			log.Printf("sweeper: cleanup anonymous carts: %v", err)
		} else if deleted > 0 {
			s.Metrics.CartsDeleted.Add(float64(deleted))
			log.Printf("sweeper: deleted %d stale anonymous carts", deleted)
		}
	}

	s.Metrics.SweepDuration.Observe(time.Since(start).Seconds())
}
