package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shopforge/go-shop-orders/internal/audit"
	"github.com/shopforge/go-shop-orders/internal/carts"
	"github.com/shopforge/go-shop-orders/internal/config"
	"github.com/shopforge/go-shop-orders/internal/metrics"
	"github.com/shopforge/go-shop-orders/internal/orders"
	"github.com/shopforge/go-shop-orders/internal/postgres"
	"github.com/shopforge/go-shop-orders/internal/sweeper"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres connect: %v", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(reg)}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()

	sink := &audit.Sink{DB: pool}
	s := &sweeper.Sweeper{
		Engine: &orders.ReservationEngine{
			DB:       pool,
			GuestTTL: cfg.ReservationTTLGuest,
			AuthTTL:  cfg.ReservationTTLAuth,
			Audit:    sink,
		},
		Carts:      &carts.Repo{DB: pool},
		Interval:   cfg.SweepInterval,
		CartMaxAge: cfg.AnonymousCartMaxAge,
		Metrics:    metrics.NewSweeperMetrics(reg),
	}

	log.Printf("sweeper running every %s", cfg.SweepInterval)
	s.Run(ctx)

	if err := metricsSrv.Close(); err != nil {
		log.Printf("metrics close: %v", err)
	}
}
