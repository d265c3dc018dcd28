package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shopforge/go-shop-orders/internal/audit"
	"github.com/shopforge/go-shop-orders/internal/carts"
	"github.com/shopforge/go-shop-orders/internal/checkout"
	"github.com/shopforge/go-shop-orders/internal/config"
	"github.com/shopforge/go-shop-orders/internal/httpx"
	kafkax "github.com/shopforge/go-shop-orders/internal/kafka"
	"github.com/shopforge/go-shop-orders/internal/metrics"
	"github.com/shopforge/go-shop-orders/internal/orders"
	"github.com/shopforge/go-shop-orders/internal/outbox"
	"github.com/shopforge/go-shop-orders/internal/postgres"
	"github.com/shopforge/go-shop-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres connect: %v", err)
	}
	defer pool.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	writer := kafkax.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	sink := &audit.Sink{DB: pool}
	engine := &orders.ReservationEngine{
		DB:       pool,
		GuestTTL: cfg.ReservationTTLGuest,
		AuthTTL:  cfg.ReservationTTLAuth,
		Audit:    sink,
	}
	orderRepo := &orders.Repo{DB: pool}
	orderSvc := &orders.Service{DB: pool, Repo: orderRepo, Engine: engine, Audit: sink}
	cartRepo := &carts.Repo{DB: pool}
	cartSvc := &carts.Service{DB: pool, Repo: cartRepo, Audit: sink}
	checkoutSvc := &checkout.Service{
		DB:     pool,
		Carts:  cartRepo,
		Orders: orderRepo,
		Engine: engine,
		Audit:  sink,
	}

	dispatcher := &outbox.Dispatcher{DB: pool, Writer: writer, Interval: cfg.OutboxInterval}
	go dispatcher.Run(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	httpMetrics := metrics.NewHTTPMetrics(reg)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(reg)}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()

	server := &httpx.Server{
		Carts:    cartRepo,
		CartSvc:  cartSvc,
		Checkout: checkoutSvc,
		Orders:   orderRepo,
		OrderSvc: orderSvc,
		Engine:   engine,
		Cache:    &redisx.StatusCache{RDB: rdb},
		Metrics:  httpMetrics,
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s", cfg.ServiceName, cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics shutdown: %v", err)
	}
}
