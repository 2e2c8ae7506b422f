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
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/config"
	"github.com/ariefcatur/go-qris-store.git/internal/delivery"
	"github.com/ariefcatur/go-qris-store.git/internal/expiry"
	"github.com/ariefcatur/go-qris-store.git/internal/gateway"
	"github.com/ariefcatur/go-qris-store.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-qris-store.git/internal/kafka"
	"github.com/ariefcatur/go-qris-store.git/internal/logger"
	"github.com/ariefcatur/go-qris-store.git/internal/metrics"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
	"github.com/ariefcatur/go-qris-store.git/internal/payment"
	"github.com/ariefcatur/go-qris-store.git/internal/postgres"
	"github.com/ariefcatur/go-qris-store.git/internal/redisx"
	"github.com/ariefcatur/go-qris-store.git/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequireGateway(); err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.ServiceName+"-api", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Session: redis (shared) atau memory (single instance)
	sessions, closeSessions := openSessions(ctx, cfg, lg)
	defer closeSessions()

	// Kafka producer (satu writer, topic per message)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, lg)
	prod.Start(ctx)
	events := &kafkax.Emitter{P: prod, Producer: cfg.ServiceName + "-api"}

	m := metrics.Default()
	repo := &orders.Repo{DB: db}
	stock := &orders.StockRepo{DB: db}
	gw := gateway.New(gateway.Options{
		BaseURL: cfg.PakasirBaseURL,
		Project: cfg.PakasirProject,
		APIKey:  cfg.PakasirAPIKey,
		Metrics: m,
		Log:     lg,
	})

	// Expirer <-> Scheduler saling butuh: Timers diisi setelah scheduler dibuat
	expirer := &payment.Expirer{Store: repo, Lookup: repo, Sessions: sessions, Events: events, Metrics: m, Log: lg.Named("expiry")}
	sched := expiry.NewScheduler(expirer, cfg.WarnBefore, lg)
	expirer.Timers = sched

	svc := payment.NewService(payment.Deps{
		Store:      repo,
		Stock:      stock,
		Gateway:    gw,
		Events:     events,
		Sessions:   sessions,
		Timers:     sched,
		Dispatcher: delivery.NewDispatcher(repo, stock, cfg.AdminContact, m, lg),
		Expirer:    expirer,
		Metrics:    m,
		Log:        lg,
	}, payment.Options{
		ExpireAfter:   cfg.ExpireAfter,
		CheckCooldown: cfg.CheckCooldown,
		InvoiceDelay:  cfg.InvoiceDelay,
		MinTopup:      cfg.MinTopup,
		MaxTopup:      cfg.MaxTopup,
		AdminContact:  cfg.AdminContact,
	})

	// timer hilang saat restart: pasang ulang dari baris PENDING
	if err := rearm(ctx, repo, sched); err != nil {
		lg.Warn("re-arm expiry timers failed; worker sweep will catch up", zap.Error(err))
	}

	router := httpx.NewRouter(lg)
	(&httpx.WebhookHandler{Payments: svc, Log: lg.Named("webhook")}).Register(router)
	(&httpx.OrdersHandler{Payments: svc, Catalog: repo, Stock: stock, Log: lg.Named("storefront")}).Register(router)
	(&httpx.AdminHandler{Stock: stock, Ledger: repo, Token: cfg.AdminToken, Log: lg.Named("admin")}).Register(router)

	// relay expiry: baris yang di-expire worker -> batalkan timer & lepas session di instance ini
	group := cfg.ConsumerGroup + "-" + instanceName()
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicPaymentExpired, cfg.ConsumerWorker, lg)
	go func() {
		lg.Info("expiry relay started", zap.String("group", group), zap.String("topic", orders.TopicPaymentExpired))
		err := cons.Start(ctx, func(ctx context.Context, m kafkago.Message) error {
			return expirer.OnExpiredEvent(ctx, m.Value)
		})
		if err != nil {
			lg.Error("expiry relay exit", zap.Error(err))
		}
	}()

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	svc.Wait() // invoice yang sedang dibuat masih publish event
	sched.Stop()
	prod.Close() // tutup inbox -> flush & close writer
	cancel()     // stop producer loop & relay
	prod.WaitClosed()
}

func openSessions(ctx context.Context, cfg config.Config, lg *zap.Logger) (session.Store, func()) {
	if cfg.SessionBackend == "memory" {
		lg.Warn("memory session backend: locks are not shared between processes")
		return session.NewMemory(), func() {}
	}
	rdb := redisx.New(cfg.RedisAddr, cfg.RedisDB)
	if err := redisx.Ping(ctx, rdb); err != nil {
		lg.Fatal("redis ping", zap.Error(err))
	}
	return &redisx.SessionStore{RDB: rdb}, func() { _ = rdb.Close() }
}

func rearm(ctx context.Context, repo *orders.Repo, sched *expiry.Scheduler) error {
	ds, err := repo.PendingDeadlines(ctx)
	if err != nil {
		return err
	}
	for _, d := range ds {
		sched.Arm(d.Code, d.At)
	}
	return nil
}

// instanceName: group consumer per instance supaya setiap api menerima semua event expired.
func instanceName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "local"
}
