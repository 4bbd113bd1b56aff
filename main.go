// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"shophub/controllers"
	"shophub/gateway"
	"shophub/notify"
	"shophub/routes"
	"shophub/services"
	"shophub/store"
	"shophub/store/memstore"
	"shophub/utils"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// backend is the set of store ports the services run on.
type backend struct {
	carts      store.CartRepository
	catalog    store.Catalog
	orders     store.OrderRepository
	promotions store.PromotionRepository
	events     store.EventLedger
	outbox     store.Outbox
	recipients store.Recipients
	ping       func(ctx context.Context) error
	close      func(ctx context.Context) error
}

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := utils.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *utils.Config, logger *slog.Logger) error {
	db, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.close(closeCtx); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	var cache store.CartCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// the cache is optional; reads fall through to the store
			logger.Warn("redis ping failed, cart cache degraded", "error", err)
		}
		cache = store.NewRedisCartCache(redisClient)
	}

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	dispatcher, closeDispatch, err := newDispatcher(cfg, db.recipients, logger)
	if err != nil {
		return err
	}
	defer closeDispatch()

	// Initialize services
	carts := services.NewCartService(db.carts, cache, db.catalog, logger)
	promos := services.NewPromotionEngine(db.promotions, logger)
	notifier := services.NewNotifier(db.outbox, logger)
	ledger := services.NewOrderLedger(db.orders, carts, db.catalog, promos, notifier, services.LedgerConfig{
		Currency:    cfg.Currency,
		TaxRate:     cfg.TaxRate,
		ShippingFee: cfg.ShippingFee,
	}, logger)
	payments := services.NewPaymentService(gw, ledger, cfg.GatewayTimeout, logger)
	webhooks := services.NewWebhookProcessor(gw, cfg.StripeWebhookSecret, ledger, db.events, logger)
	worker := services.NewOutboxWorker(db.outbox, dispatcher, services.OutboxConfig{
		PollInterval: cfg.OutboxPoll,
		MaxAttempts:  cfg.OutboxMaxAttempt,
	}, logger)

	// Set up the router
	router := mux.NewRouter()
	routes.RegisterRoutes(router, routes.Controllers{
		Health:    controllers.NewHealthController(db.ping, logger),
		Cart:      controllers.NewCartController(carts, logger),
		Order:     controllers.NewOrderController(ledger, logger),
		Payment:   controllers.NewPaymentController(payments, webhooks, logger),
		Promotion: controllers.NewPromotionController(promos, logger),
	}, []byte(cfg.JWTSecret), cfg.RequestTimeout, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(workerCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server is running", "port", cfg.Port, "gateway", cfg.PaymentGateway)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	stopWorker()
	wg.Wait()
	logger.Info("server stopped")
	return serveErr
}

// openBackend connects to MongoDB, or falls back to in-memory storage when no
// URI is configured.
func openBackend(ctx context.Context, cfg *utils.Config, logger *slog.Logger) (*backend, error) {
	if cfg.MongoURI == "" {
		logger.Warn("MONGO_URI not set, using in-memory storage")
		mem := memstore.New()
		return &backend{
			carts: mem, catalog: mem, orders: mem, promotions: mem,
			events: mem, outbox: mem, recipients: mem,
			close: func(context.Context) error { return nil },
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := store.ConnectDB(connectCtx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.MongoDatabase)
	if err := store.EnsureIndexes(connectCtx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info("connected to mongodb", "database", cfg.MongoDatabase)

	return &backend{
		carts:      store.NewMongoCartRepository(db),
		catalog:    store.NewMongoCatalog(db),
		orders:     store.NewMongoOrderRepository(db),
		promotions: store.NewMongoPromotionRepository(db),
		events:     store.NewMongoEventLedger(db),
		outbox:     store.NewMongoOutbox(db),
		recipients: store.NewMongoRecipients(db),
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		close: client.Disconnect,
	}, nil
}

func newGateway(cfg *utils.Config, logger *slog.Logger) (gateway.Gateway, error) {
	switch cfg.PaymentGateway {
	case "stripe":
		return gateway.NewStripe(gateway.StripeConfig{SecretKey: cfg.StripeSecretKey, Logger: logger}), nil
	case "mock":
		logger.Warn("using the in-process mock payment gateway")
		return gateway.NewMock(), nil
	}
	return nil, fmt.Errorf("unknown payment gateway %q", cfg.PaymentGateway)
}

// newDispatcher fans notifications out to the log and every configured channel.
func newDispatcher(cfg *utils.Config, recipients store.Recipients, logger *slog.Logger) (notify.Dispatcher, func(), error) {
	channels := notify.FanOut{notify.NewLogChannel(logger)}
	closers := []func(){}

	var sender utils.EmailSender
	switch cfg.EmailProvider {
	case "postmark":
		sender = utils.NewPostmarkSender(cfg.PostmarkToken, cfg.EmailSender)
	case "sendgrid":
		sender = utils.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailSender)
	}
	if sender != nil {
		channels = append(channels, notify.NewEmailChannel(sender, recipients, logger))
	}

	if cfg.AMQPURL != "" {
		broker, err := notify.DialBroker(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("dial broker: %w", err)
		}
		channels = append(channels, broker)
		closers = append(closers, func() {
			if err := broker.Close(); err != nil {
				logger.Warn("failed to close broker", "error", err)
			}
		})
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return channels, closeAll, nil
}
