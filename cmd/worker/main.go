package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/config"
	"github.com/ariefcatur/go-qris-store.git/internal/expiry"
	"github.com/ariefcatur/go-qris-store.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-qris-store.git/internal/kafka"
	"github.com/ariefcatur/go-qris-store.git/internal/logger"
	"github.com/ariefcatur/go-qris-store.git/internal/metrics"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
	"github.com/ariefcatur/go-qris-store.git/internal/payment"
	"github.com/ariefcatur/go-qris-store.git/internal/postgres"
	"github.com/ariefcatur/go-qris-store.git/internal/redisx"
)

// worker: sweep periodik PENDING yang lewat deadline. Tidak memanggil gateway.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.ServiceName+"-worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, lg)
	prod.Start(ctx)
	events := &kafkax.Emitter{P: prod, Producer: cfg.ServiceName + "-worker"}

	repo := &orders.Repo{DB: db}
	expirer := &payment.Expirer{Store: repo, Lookup: repo, Events: events, Metrics: metrics.Default(), Log: lg.Named("expiry")}

	// dengan session redis worker bisa langsung melepas lock; backend memory dilepas oleh relay di api
	if cfg.SessionBackend == "redis" {
		rdb := redisx.New(cfg.RedisAddr, cfg.RedisDB)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			lg.Warn("redis unavailable; locks released by api relay", zap.Error(err))
		} else {
			expirer.Sessions = &redisx.SessionStore{RDB: rdb}
		}
	}

	sweeper := expiry.NewSweeper(repo, expirer, cfg.SweepInterval, cfg.SweepBatch, lg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		lg.Info("expiry sweeper started", zap.Duration("interval", cfg.SweepInterval), zap.Int("batch", cfg.SweepBatch))
		sweeper.RunForever(ctx)
	}()

	// /metrics supaya counter sweep bisa di-scrape
	srv := &http.Server{Addr: cfg.WorkerAddr, Handler: httpx.NewRouter(lg), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		lg.Info("worker http listening", zap.String("addr", cfg.WorkerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down worker")
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	<-done
	prod.Close()
	prod.WaitClosed()
}
