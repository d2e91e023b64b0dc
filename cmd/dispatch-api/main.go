package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	billingmq "bulk-sms-dispatch/internal/adapters/billing/rabbitmq"
	"bulk-sms-dispatch/internal/adapters/gateway"
	"bulk-sms-dispatch/internal/adapters/jobstore/memory"
	"bulk-sms-dispatch/internal/adapters/jobstore/postgres"
	"bulk-sms-dispatch/internal/app"
	"bulk-sms-dispatch/internal/config"
	"bulk-sms-dispatch/internal/middleware"
	"bulk-sms-dispatch/internal/ports"
	"bulk-sms-dispatch/internal/transport"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	if err := run(log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf := config.FromEnv()

	// ── Adapters ─────────────────────────────────────────────────────────────

	var store ports.JobStore
	if conf.DatabaseURL != "" {
		pg, err := postgres.New(conf.DatabaseURL)
		if err != nil {
			return errors.New("failed to connect to postgres: " + err.Error())
		}
		defer pg.Close()
		store = pg
		log.Info("job store: postgres")
	} else {
		store = memory.New()
		log.Info("job store: in-memory")
	}

	var billing ports.OutcomePublisher
	if conf.AMQPURL != "" {
		publisher, err := billingmq.NewPublisher(conf.AMQPURL)
		if err != nil {
			return errors.New("failed to connect to rabbitmq: " + err.Error())
		}
		defer publisher.Close()
		billing = publisher
		log.Info("billing outcome relay enabled")
	}

	gw := gateway.New(gateway.Config{
		SendURL:    conf.GatewaySendURL,
		BulkURL:    conf.GatewayBulkURL,
		ReportURLs: conf.GatewayReportURLs,
		User:       conf.GatewayUser,
		Pass:       conf.GatewayPass,
		Insecure:   conf.GatewayInsecure,
		Timeout:    conf.GatewayTimeout,
	}, log)

	// ── Application service ──────────────────────────────────────────────────

	svc := app.NewDispatchService(gw, store, billing, log, app.Options{
		AsyncThreshold: conf.AsyncThreshold,
		MaxMessageLen:  conf.MaxMessageLen,
		Window:         conf.FallbackWindow,
		WindowPause:    conf.WindowPause,
	})

	fiberApp := fiber.New(fiber.Config{
		AppName:               "dispatch-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "",
		// Recipient lists are large but bounded; 4MB covers ~100k numbers.
		BodyLimit: 4 * 1024 * 1024,
	})

	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORSConfig())

	// 10 submissions/second sustained per caller, bursts of 30.
	rateLimiter := middleware.NewRateLimiter(10, 30)
	fiberApp.Use(rateLimiter.Middleware())

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	handler := transport.NewHandler(svc, log)
	api := fiberApp.Group("/api")
	handler.Register(api)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("dispatch-api started", "addr", conf.HTTPAddr)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}

	log.Info("dispatch-api stopped gracefully")
	return nil
}
