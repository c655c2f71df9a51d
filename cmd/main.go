package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/api"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/config"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/db"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/events"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/intake"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/kafka"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/lifecycle"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/notification"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/providers"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/reminder"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/store"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/unread"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the alert store
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to open store: %v", err)
		log.Fatalf("Store initialization failed: %v", err)
	}
	defer st.Close()

	bus := events.NewBus(logger)

	// Reminder output: WebSocket clients plus optional Telegram, email and SMS
	ws := notification.NewWebSocketManager(logger)
	var sinks []notification.Sink
	if cfg.TelegramEnabled() {
		tg, err := providers.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.RateLimit, logger)
		if err != nil {
			log.Fatalf("Telegram sink failed: %v", err)
		}
		sinks = append(sinks, tg)
		logger.Infof("Telegram reminders enabled for chat %d", cfg.Telegram.ChatID)
	}
	if cfg.EmailEnabled() {
		mail, err := providers.NewEmailNotifier(providers.EmailConfig{
			SMTPServer: cfg.Email.SMTPServer,
			SMTPPort:   cfg.Email.SMTPPort,
			Username:   cfg.Email.Username,
			Password:   cfg.Email.Password,
			To:         cfg.Email.To,
		}, logger)
		if err != nil {
			log.Fatalf("Email sink failed: %v", err)
		}
		sinks = append(sinks, mail)
		logger.Infof("Email reminders enabled for %s", cfg.Email.To)
	}
	if cfg.SMSEnabled() {
		sms, err := providers.NewSMSNotifier(providers.SMSConfig{
			AccountSID: cfg.SMS.AccountSID,
			AuthToken:  cfg.SMS.AuthToken,
			FromNumber: cfg.SMS.FromNumber,
			ToNumber:   cfg.SMS.ToNumber,
		}, logger)
		if err != nil {
			log.Fatalf("SMS sink failed: %v", err)
		}
		sinks = append(sinks, sms)
		logger.Infof("SMS reminders enabled for %s", cfg.SMS.ToNumber)
	}
	dispatcher := notification.NewDispatcher(ctx, ws, logger, sinks...)

	agg := unread.NewAggregator(st)
	engine := reminder.NewEngine(st, agg, dispatcher, logger, reminder.Options{
		QueryTimeout: cfg.Reminder.QueryTimeout,
	})
	glue := lifecycle.New(st, agg, engine, bus, dispatcher, logger)
	if err := glue.Run(ctx); err != nil {
		log.Fatalf("Failed to subscribe lifecycle events: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws.Run(ctx)
	}()

	// Initialize intake service
	svc := notification.New(st, intake.NewNormalizer(nil, nil), bus, logger, cfg)
	svc.Start(&wg)

	// Initialize Kafka consumer
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer, err = kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, svc, logger)
		if err != nil {
			log.Fatalf("Kafka consumer failed: %v", err)
		}
		consumer.Start(ctx, &wg)
	} else {
		logger.Info("KAFKA_BROKER not set, push intake is HTTP only")
	}

	if err := glue.OnProcessStart(ctx); err != nil {
		logger.Errorf("Failed to resume reminder engine: %v", err)
	}

	// Start API server
	handler := api.NewHandler(api.Deps{
		Store:          st,
		Unread:         agg,
		Intake:         svc,
		Session:        glue,
		Engine:         engine,
		Bus:            bus,
		WebSocket:      ws,
		Logger:         logger,
		AllowedOrigins: cfg.API.AllowedOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(handler, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}

	engine.Close()
	svc.Stop()
	wg.Wait()
	if consumer != nil {
		consumer.Close()
	}
	dispatcher.Wait()
	if err := bus.Close(); err != nil {
		logger.Errorf("Failed to close event bus: %v", err)
	}
	logger.Info("Shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (store.Store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("Using in-memory store, alerts are lost on restart")
		return store.NewMemory(nil), nil
	}

	d, err := db.New(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	if err := utils.Retry(ctx, logger, 5, 2*time.Second, func() error { return d.Ping(ctx) }); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	logger.Info("Connected to database, schema up to date")
	return d, nil
}
