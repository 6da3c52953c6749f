package main

import (
	"context"
	"errors"
	stlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"go-hotspot/account"
	"go-hotspot/catalog"
	"go-hotspot/config"
	"go-hotspot/loyalty"
	"go-hotspot/metrics"
	"go-hotspot/notify"
	"go-hotspot/payment"
	"go-hotspot/scheduler"
	"go-hotspot/service"
	"go-hotspot/subscription"
	"go-hotspot/utils"
	"go-hotspot/voucher"
	"go-hotspot/web/controllers"
	"go-hotspot/web/db"
	"go-hotspot/web/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stlog.Fatalln("Invalid configuration:", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		stlog.Fatalln("Error creating logger:", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("webservice failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	conn, err := db.Connect(cfg.DBDriver, cfg.DSN)
	if err != nil {
		return err
	}
	if err := db.Sync(conn); err != nil {
		return err
	}

	cat := catalog.Default()
	if cfg.PlansFile != "" {
		if cat, err = catalog.LoadFile(cfg.PlansFile); err != nil {
			return err
		}
	}
	tiers, err := loyalty.ParseTiers(cfg.LoyaltyTiers)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	clock := clockwork.NewRealClock()

	var sender notify.Sender = notify.NewLogSender(logger.Named("sms"))
	if cfg.NotificationsEnabled && cfg.SMSURL != "" {
		sender = notify.NewSMSSender(cfg.SMSURL, cfg.SMSKey, cfg.SMSTimeout)
	}
	dispatcher := notify.NewDispatcher(conn, sender, clock, logger, m, cfg.SMSQueueSize, cfg.SMSTimeout)
	defer dispatcher.Close()

	subs := subscription.NewManager(conn, clock, logger,
		subscription.WithNetwork(cfg.NetworkID),
		subscription.WithNotifier(dispatcher),
		subscription.WithMetrics(m),
		subscription.WithAlertLead(cfg.ExpiryAlertLead),
		subscription.WithTimeout(cfg.BackendTimeout))
	generator := voucher.NewGenerator(conn, cat, clock, logger,
		voucher.WithPrefix(cfg.VoucherPrefix),
		voucher.WithWindowDays(cfg.VoucherWindowDays),
		voucher.WithGeneratorMetrics(m),
		voucher.WithGeneratorTimeout(cfg.BackendTimeout))
	ledger := voucher.NewLedger(conn, subs, clock, logger,
		voucher.WithDeviceBinding(cfg.DeviceBinding),
		voucher.WithLedgerNotifier(dispatcher),
		voucher.WithLedgerMetrics(m),
		voucher.WithLedgerTimeout(cfg.BackendTimeout))
	engine := loyalty.NewEngine(conn, subs, clock, logger,
		loyalty.WithTiers(tiers),
		loyalty.WithNotifier(dispatcher),
		loyalty.WithMetrics(m),
		loyalty.WithTimeout(cfg.BackendTimeout))
	payments := payment.NewService(conn, cat, subs, engine, clock, logger,
		payment.WithNotifier(dispatcher),
		payment.WithMetrics(m),
		payment.WithPendingTTL(cfg.PaymentTTL),
		payment.WithTimeout(cfg.BackendTimeout))
	accounts := account.NewService(conn, logger, cfg.MaxDeviceChanges, cfg.BackendTimeout)

	jobs := scheduler.New(clock, logger, m, cfg.BackendTimeout)
	jobs.Register("vouchers", func(ctx context.Context, now time.Time) (any, error) {
		return ledger.ExpireStale(ctx, now)
	})
	jobs.Register("subscriptions", func(ctx context.Context, now time.Time) (any, error) {
		return subs.Sweep(ctx, now)
	})
	jobs.Register("payments", func(ctx context.Context, now time.Time) (any, error) {
		return payments.ExpirePending(ctx, now)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := jobs.Start(cfg.SweepSchedule); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		jobs.Stop(stopCtx)
	}()

	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		limiter = middleware.NewRedisRateLimiter(client, cfg.RateLimit, cfg.RateWindow)
	} else {
		memory := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
		memory.StartCleanup(ctx, 10*time.Minute)
		limiter = memory
	}

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(middleware.Metrics(m))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	h := &controllers.Handler{
		Catalog:   cat,
		Generator: generator,
		Ledger:    ledger,
		Subs:      subs,
		Loyalty:   engine,
		Payments:  payments,
		Accounts:  accounts,
		Jobs:      jobs,
		Clock:     clock,
		Logger:    logger.Named("http"),
	}
	h.Register(r, middleware.RequireAuth([]byte(cfg.Secret)), middleware.RateLimit(limiter, logger), m.Handler())

	done := service.Start(ctx, "", cfg.GinPort, r, logger)
	<-done.Done()
	if err := context.Cause(done); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
