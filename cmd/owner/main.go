package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"staybook/internal/app/commands"
	"staybook/internal/app/consume"
	bookingapp "staybook/internal/app/handlers/booking"
	"staybook/internal/app/middleware"
	"staybook/internal/app/notify"
	appoutbox "staybook/internal/app/outbox"
	"staybook/internal/app/queries"
	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
	"staybook/internal/infra/broker/kafka"
	"staybook/internal/infra/config"
	mongodb "staybook/internal/infra/db/mongo"
	ginserver "staybook/internal/infra/http/gin"
	"staybook/internal/infra/inbox"
	infraoutbox "staybook/internal/infra/outbox"
	"staybook/internal/infra/obs"
	"staybook/internal/infra/storage/memory"
)

const serviceName = "owner"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env).With("service", serviceName)

	cfg, err := config.Load(serviceName)
	durable := err == nil
	if !durable {
		logger.Warn("using in-memory fallback configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8081")
	}

	deps, err := buildDependencies(cfg, durable, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.close()

	app := buildApplication(cfg, deps, logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: deps.ready,
	}, app.handlers)

	if deps.producer != nil {
		worker := &infraoutbox.Worker{
			Store:    deps.outboxStore,
			Producer: deps.producer,
			Topics: map[string]string{
				domainbooking.EventNameRequested:     topicName(cfg, cfg.RequestsTopic),
				domainbooking.EventNameStatusUpdated: topicName(cfg, cfg.UpdatesTopic),
			},
			Interval: cfg.OutboxPollInterval,
			ID:       serviceName,
			Backoff:  cfg.RetryBackoff,
		}
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	if deps.consumer != nil {
		go func() {
			topics := []string{
				topicName(cfg, cfg.RequestsTopic),
				topicName(cfg, cfg.UpdatesTopic),
			}
			if err := deps.consumer.Run(ctx, topics); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "durable", durable)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type outboxStorage interface {
	appoutbox.Outbox
	infraoutbox.Store
}

type dependencies struct {
	uowFactory  uow.UoWFactory
	outboxStore outboxStorage
	idempotency middleware.IdempotencyStore
	inbox       consume.Inbox
	producer    *kafka.Producer
	consumer    *kafka.Consumer
	ready       func() error
	logger      *slog.Logger
}

func buildDependencies(cfg config.Config, durable bool, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}
	if durable {
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		bookingRepo := mongodb.NewBookingRepository(client.DB)
		propertyRepo := mongodb.NewPropertyRepository(client.DB)
		deps.uowFactory = mongodb.Factory{
			DB:           client.DB,
			BookingRepo:  bookingRepo,
			PropertyRepo: propertyRepo,
		}
		deps.outboxStore = infraoutbox.NewMongoStore(client.DB)
		deps.idempotency = mongodb.NewIdempotencyStore(client.DB, cfg.IdempotencyTTL)
		deps.inbox = inbox.NewStore(client.DB, serviceName)
		deps.ready = func() error { return client.Ping(context.Background()) }

		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.PublishTimeout, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		deps.producer = producer

		// Requests materialize the local projection; updates fold in the
		// transitions the traveler side performed.
		mux := consume.NewMux(logger).
			Register(domainbooking.EventNameRequested, &consume.RequestedProjector{
				UoWFactory: deps.uowFactory,
				Inbox:      deps.inbox,
				Logger:     logger,
			}).
			Register(domainbooking.EventNameStatusUpdated, &consume.StatusNotifier{
				UoWFactory: deps.uowFactory,
				Inbox:      deps.inbox,
				Notifier:   notify.SlogNotifier{Logger: logger},
				Logger:     logger,
			})
		backoff := time.Second
		if len(cfg.RetryBackoff) > 0 {
			backoff = cfg.RetryBackoff[0]
		}
		consumer, err := kafka.NewConsumer(kafka.ConsumerOptions{
			Brokers:    cfg.KafkaBrokers,
			GroupID:    cfg.ConsumerGroup,
			Handler:    mux,
			DeadLetter: producer,
			MaxRetries: cfg.ConsumerMaxRetries,
			Backoff:    backoff,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		deps.consumer = consumer
		return deps, nil
	}

	factory := memory.NewUoWFactory()
	deps.uowFactory = factory
	deps.outboxStore = memory.NewOutboxStore()
	deps.idempotency = memory.NewIdempotencyStore()
	deps.inbox = memory.NewInbox()
	deps.ready = func() error { return nil }
	return deps, nil
}

func (d *dependencies) close() {
	if d.consumer != nil {
		if err := d.consumer.Close(); err != nil {
			d.logger.Warn("consumer close failed", "error", err)
		}
	}
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			d.logger.Warn("producer close failed", "error", err)
		}
	}
}

type application struct {
	handlers ginserver.Handlers
}

func buildApplication(cfg config.Config, deps *dependencies, logger *slog.Logger) application {
	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler(commandBus, bookingapp.ApproveBookingCommand{}.Key(),
		bookingapp.NewApproveBookingHandler(deps.outboxStore, logger))
	commands.RegisterHandler(commandBus, bookingapp.RejectBookingCommand{}.Key(),
		bookingapp.NewRejectBookingHandler(deps.outboxStore, logger))
	commands.RegisterHandler(commandBus, bookingapp.CancelBookingCommand{}.Key(),
		bookingapp.NewCancelBookingHandler(deps.outboxStore, logger))

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, bookingapp.ListBookingsQuery{}.Key(), &bookingapp.ListBookingsHandler{
		UoWFactory: deps.uowFactory,
		Logger:     logger,
	})

	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Idempotency(deps.idempotency, nil),
		middleware.Transaction(deps.uowFactory, nil),
		middleware.OutboxFlush(deps.outboxStore),
	)
	queryBusWithMiddleware := middleware.ChainQueries(queryBus)

	return application{
		handlers: ginserver.Handlers{
			Owner: ginserver.OwnerBookingHandler{
				Commands: commandBusWithMiddleware,
				Queries:  queryBusWithMiddleware,
				Logger:   logger,
			},
		},
	}
}

func topicName(cfg config.Config, name string) string {
	return cfg.KafkaTopicPrefix + name
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
