package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/config"
	"github.com/iliyamo/hotel-reservation/internal/database"
	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/queue"
	"github.com/iliyamo/hotel-reservation/internal/repository"
	"github.com/iliyamo/hotel-reservation/internal/repository/memory"
	"github.com/iliyamo/hotel-reservation/internal/router"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	log, logCloser := logger.New(cfg)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := newTracerProvider("hotel-reservation", cfg.Env, cfg.JaegerURL)
	if err != nil {
		log.WithError(err).Fatal("tracing: provider init failed")
	}

	store, ping, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	provider := newProvider(cfg, log)
	rdb := config.NewRedisClient(log)
	publisher := queue.NewPublisher(cfg.AMQPURL, log)

	deps := service.Deps{Store: store, Provider: provider, Notifier: publisher, Log: log}
	rules := service.Config{
		TaxRate:         cfg.Booking.TaxRate,
		Currency:        cfg.Booking.Currency,
		CancelCutoff:    cfg.Booking.CancelCutoff,
		SimulateEnabled: cfg.Payment.SimulateEnabled,
	}
	bookings := service.NewBookings(deps, rules)
	payments := service.NewPayments(deps, rules, service.NewRedisEventDeduper(rdb, 24*time.Hour))

	authz, err := middleware.NewAuthorizer(middleware.DefaultPolicies)
	if err != nil {
		log.WithError(err).Fatal("authorize: policy load failed")
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))

	rh := handler.NewReservationHandler(bookings, log)
	router.Register(e, router.Handlers{
		Reservations: rh,
		Admin:        handler.NewAdminHandler(rh),
		Availability: handler.NewAvailabilityHandler(service.NewAvailability(store), log),
		Payments:     handler.NewPaymentHandler(payments, log),
		Ready:        handler.Ready(ping),
	}, router.Options{
		JWTSecret:  cfg.JWTSecret,
		Authorizer: authz,
		RateLimit:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:      middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	})

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		service.NewSweeper(deps, cfg.Booking.PendingTTL, cfg.Booking.SweepInterval).Run(ctx)
	}()
	go func() {
		defer workers.Done()
		mailer := queue.NewSMTPMailer(queue.SMTPConfig{
			Host: cfg.SMTP.Host, Port: cfg.SMTP.Port, User: cfg.SMTP.User, Password: cfg.SMTP.Pass, From: cfg.SMTP.From,
		})
		if err := queue.NewConsumer(cfg.AMQPURL, "", mailer, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("booking-consumer: stopped")
		}
	}()

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.Store}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http: server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http: shutdown")
	}
	workers.Wait()
	publisher.Wait()
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing: shutdown")
	}
}

// openStore returns the reservation store selected by STORE, a readiness
// ping and a close function.
func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (repository.Store, func(context.Context) error, func()) {
	if cfg.Store == "memory" {
		if cfg.IsProd() {
			log.Fatal("store: STORE=memory is not allowed in production")
		}
		mem := memory.New()
		seedDemo(mem)
		log.Warn("store: using in-memory store with demo data, nothing is persisted")
		return mem, nil, func() {}
	}
	db, err := database.Open(ctx, database.Params{User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName})
	if err != nil {
		log.WithError(err).Fatal("store: database connection failed")
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("store: migration failed")
	}
	return repository.NewSQLStore(db), db.PingContext, func() { _ = db.Close() }
}

// newProvider picks Stripe when a key is configured and the sandbox
// otherwise, behind the timeout and circuit breaker guard.
func newProvider(cfg config.Config, log logrus.FieldLogger) payment.Provider {
	var p payment.Provider
	if cfg.Payment.StripeKey != "" {
		p = payment.NewStripe(cfg.Payment.StripeKey, cfg.Payment.WebhookSecret)
		log.Info("payment: using Stripe")
	} else {
		if cfg.IsProd() {
			log.Fatal("payment: STRIPE_SECRET_KEY is required in production")
		}
		p = payment.NewSandbox(cfg.Payment.WebhookSecret)
		log.Warn("payment: using the in-process sandbox provider")
	}
	return payment.NewGuard(p, payment.GuardConfig{
		Timeout:     cfg.Payment.Timeout,
		MaxFailures: uint32(cfg.Payment.BreakerMaxFailures),
		OpenTimeout: cfg.Payment.BreakerOpenTimeout,
	}, log)
}

func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"remote_ip":  v.RemoteIP,
			})
			switch {
			case v.Error != nil:
				entry.WithError(v.Error).Error("request")
			case v.Status >= 500:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
			return nil
		},
	})
}
