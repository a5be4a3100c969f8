package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/api"
	"github.com/zlnvch/collabdocs/api/ws"
	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/cache/redis"
	"github.com/zlnvch/collabdocs/collab"
	"github.com/zlnvch/collabdocs/config"
	"github.com/zlnvch/collabdocs/logger"
	"github.com/zlnvch/collabdocs/mailer"
	"github.com/zlnvch/collabdocs/mq/sqsmq"
	"github.com/zlnvch/collabdocs/service"
	"github.com/zlnvch/collabdocs/store"
	"github.com/zlnvch/collabdocs/store/dynamo"
	"github.com/zlnvch/collabdocs/store/postgres"
	"github.com/zlnvch/collabdocs/worker"
)

type documentStore interface {
	store.IdentityStore
	store.DocumentStore
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config) (documentStore, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
	defer cancel()

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pgStore, err := postgres.NewPostgresStore(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return pgStore, pgStore.Close, nil
	default:
		dynamoStore, err := dynamo.NewDynamoStore(ctx, cfg.DevMode, cfg.Store.DynamoEndpoint, cfg.Store.DynamoTable)
		if err != nil {
			return nil, nil, err
		}
		return dynamoStore, func() {}, nil
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	docStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return apperr.Startup(err, "connect to "+cfg.Store.Driver+" store")
	}
	defer closeStore()

	redisCache, err := redis.NewRedisCache(ctx, cfg.DevMode, cfg.Redis.Address, log)
	if err != nil {
		return apperr.Startup(err, "connect to redis")
	}
	defer redisCache.Close()

	mailQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.Queue.Endpoint, cfg.Queue.MailQueue)
	if err != nil {
		return apperr.Startup(err, "create mail queue")
	}

	smtpMailer := mailer.NewSMTPMailer(mailer.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
	}, log)
	if !smtpMailer.IsConfigured() {
		log.Warn("smtp is not configured, password mails will fail")
	}

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		return apperr.Startup(err, "decode jwt secret")
	}

	svc := service.NewService(
		docStore,
		docStore,
		redisCache,
		redisCache,
		mailQueue,
		smtpMailer,
		jwtSecret,
		service.Options{
			TokenTTL:      cfg.Auth.TokenTTL,
			ResetTokenTTL: cfg.Mail.ResetTokenTTL,
			FrontendURL:   cfg.Mail.FrontendURL,
		},
		log,
	)

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	hub := collab.NewHub(docStore, cfg.Realtime.DisplacementGrace, log.Named("hub"))
	go hub.Run(shutdownCtx)

	gate := collab.NewGate(svc, hub)
	coordinator := collab.NewCoordinator(svc, hub, log.Named("collab"))
	if err := coordinator.Subscribe(shutdownCtx, redisCache); err != nil {
		return apperr.Startup(err, "subscribe to pub/sub channels")
	}

	mailConsumer := worker.NewMailConsumer(mailQueue, smtpMailer, log.Named("mail"))
	go mailConsumer.Run(shutdownCtx)

	collabAPI := api.NewCollabDocsAPI(svc, hub, gate, coordinator, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AdminKey:       cfg.Admin.APIKey,
		Client: ws.ClientOptions{
			MessagesPerSecond: cfg.Realtime.MessagesPerSecond,
			Burst:             cfg.Realtime.Burst,
		},
		HealthChecks: map[string]func(context.Context) error{
			"redis": redisCache.Ping,
		},
	}, shutdownCtx, log)

	mux := http.NewServeMux()
	collabAPI.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      collabAPI.Handler(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("address", cfg.Server.Address), zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-shutdownCtx.Done():
	}

	log.Info("server shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
