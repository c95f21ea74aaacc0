package main

import (
	"context"
	"encoding/json"
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
	"staybook/internal/app/schedule"
	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
	"staybook/internal/domain/shared/money"
	"staybook/internal/infra/broker/kafka"
	"staybook/internal/infra/config"
	mongodb "staybook/internal/infra/db/mongo"
	ginserver "staybook/internal/infra/http/gin"
	"staybook/internal/infra/inbox"
	infraoutbox "staybook/internal/infra/outbox"
	"staybook/internal/infra/obs"
	"staybook/internal/infra/storage/memory"
)

const serviceName = "traveler"

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
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
	}

	deps, err := buildDependencies(cfg, durable, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.close()

	app := buildApplication(cfg, deps, logger)

	if err := loadPropertyFixtures(ctx, cfg.PropertyFixtures, deps.properties, logger); err != nil {
		logger.Warn("property fixtures load failed", "error", err)
	}

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
			topics := []string{topicName(cfg, cfg.UpdatesTopic)}
			if err := deps.consumer.Run(ctx, topics); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	sweeper := &schedule.CompletionSweeper{
		Bus:      app.commandBus,
		Interval: cfg.SweepInterval,
		Logger:   logger,
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("completion sweeper stopped", "error", err)
		}
	}()

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

// outboxStorage is both the sink command handlers record into and the queue
// the dispatcher worker drains.
type outboxStorage interface {
	appoutbox.Outbox
	infraoutbox.Store
}

type dependencies struct {
	uowFactory  uow.UoWFactory
	outboxStore outboxStorage
	idempotency middleware.IdempotencyStore
	inbox       consume.Inbox
	properties  domainproperty.Repository
	producer    *kafka.Producer
	consumer    *kafka.Consumer
	ready       func() error
	client      *mongodb.Client
	logger      *slog.Logger
}

func buildDependencies(cfg config.Config, durable bool, logger *slog.Logger) (*dependencies, error) {
	if !durable {
		factory := memory.NewUoWFactory()
		return &dependencies{
			uowFactory:  factory,
			outboxStore: memory.NewOutboxStore(),
			idempotency: memory.NewIdempotencyStore(),
			inbox:       memory.NewInbox(),
			properties:  factory.Properties,
			ready:       func() error { return nil },
			logger:      logger,
		}, nil
	}

	client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	bookingRepo := mongodb.NewBookingRepository(client.DB)
	propertyRepo := mongodb.NewPropertyRepository(client.DB)

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.PublishTimeout, nil)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	deps := &dependencies{
		uowFactory: mongodb.Factory{
			DB:           client.DB,
			BookingRepo:  bookingRepo,
			PropertyRepo: propertyRepo,
		},
		outboxStore: infraoutbox.NewMongoStore(client.DB),
		idempotency: mongodb.NewIdempotencyStore(client.DB, cfg.IdempotencyTTL),
		inbox:       inbox.NewStore(client.DB, serviceName),
		properties:  propertyRepo,
		producer:    producer,
		ready:       func() error { return client.Ping(context.Background()) },
		client:      client,
		logger:      logger,
	}

	statusNotifier := &consume.StatusNotifier{
		UoWFactory: deps.uowFactory,
		Inbox:      deps.inbox,
		Notifier:   notify.SlogNotifier{Logger: logger},
		Logger:     logger,
	}
	backoff := time.Second
	if len(cfg.RetryBackoff) > 0 {
		backoff = cfg.RetryBackoff[0]
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerOptions{
		Brokers:    cfg.KafkaBrokers,
		GroupID:    cfg.ConsumerGroup,
		Handler:    statusNotifier,
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
	handlers   ginserver.Handlers
	commandBus commands.Bus
}

func buildApplication(cfg config.Config, deps *dependencies, logger *slog.Logger) application {
	commandBus := commands.NewInMemoryBus()
	requestHandler := &bookingapp.RequestBookingHandler{
		UoWFactory: deps.uowFactory,
		Outbox:     deps.outboxStore,
		Encoder:    appoutbox.JSONEventEncoder{},
	}
	commands.RegisterHandler(commandBus, bookingapp.RequestBookingCommand{}.Key(), requestHandler)
	commands.RegisterHandler(commandBus, bookingapp.CancelBookingCommand{}.Key(),
		bookingapp.NewCancelBookingHandler(deps.outboxStore, logger))
	commands.RegisterHandler(commandBus, bookingapp.CompleteDueBookingsCommand{}.Key(),
		bookingapp.NewCompleteDueBookingsHandler(deps.outboxStore, logger))

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
			Traveler: ginserver.TravelerBookingHandler{
				Commands: commandBusWithMiddleware,
				Queries:  queryBusWithMiddleware,
				Logger:   logger,
			},
		},
		commandBus: commandBusWithMiddleware,
	}
}

type propertyFixture struct {
	ID               string `json:"id"`
	OwnerID          string `json:"owner_id"`
	Title            string `json:"title"`
	MaxGuests        int    `json:"max_guests"`
	NightlyRateCents int64  `json:"nightly_rate_cents"`
	Currency         string `json:"currency"`
	Available        bool   `json:"available"`
}

// loadPropertyFixtures seeds the property projection the admission gate
// reads. In production the projection is fed by the catalog service.
func loadPropertyFixtures(ctx context.Context, path string, repo domainproperty.Repository, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("property fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []propertyFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	for _, fx := range fixtures {
		currency := fx.Currency
		if currency == "" {
			currency = "USD"
		}
		rate, err := money.New(fx.NightlyRateCents, currency)
		if err != nil {
			logger.Error("fixture invalid", "property_id", fx.ID, "error", err)
			continue
		}
		prop := &domainproperty.Property{
			ID:          domainproperty.PropertyID(fx.ID),
			OwnerID:     fx.OwnerID,
			Title:       fx.Title,
			MaxGuests:   fx.MaxGuests,
			NightlyRate: rate,
			Available:   fx.Available,
		}
		if err := repo.Save(ctx, prop); err != nil {
			logger.Error("cannot store fixture property", "property_id", fx.ID, "error", err)
			continue
		}
		logger.Info("property fixture imported", "property_id", fx.ID)
	}
	return nil
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
