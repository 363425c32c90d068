package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/api"
	"github.com/khushnawaj/scriptSelf-sub001/internal/auth"
	"github.com/khushnawaj/scriptSelf-sub001/internal/broadcast"
	"github.com/khushnawaj/scriptSelf-sub001/internal/cache"
	"github.com/khushnawaj/scriptSelf-sub001/internal/config"
	"github.com/khushnawaj/scriptSelf-sub001/internal/events"
	"github.com/khushnawaj/scriptSelf-sub001/internal/logger"
	"github.com/khushnawaj/scriptSelf-sub001/internal/metrics"
	"github.com/khushnawaj/scriptSelf-sub001/internal/repository"
	"github.com/khushnawaj/scriptSelf-sub001/internal/service"
	"github.com/khushnawaj/scriptSelf-sub001/internal/storage"
	"github.com/khushnawaj/scriptSelf-sub001/internal/ws"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	lg, err := logger.New(logger.Config{Development: cfg.Development(), Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatalw("realtime service stopped", "error", err)
	}
}

func run(cfg *config.Config, lg *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	msgRepo, notifRepo, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	var feed service.FeedCache
	if cfg.Redis.Enabled {
		rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warnw("redis unreachable at startup, feed reads use the store until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		feed = cache.NewFeedCache(rdb, cache.Config{Prefix: cfg.Redis.Prefix})
	}

	jv, err := auth.New(cfg.JWT.Alg, cfg.JWT.PublicKeyPath, cfg.JWT.HSSecret)
	if err != nil {
		return err
	}

	messages := service.NewMessageService(msgRepo, lg, service.WithMetrics(m))
	notifications := service.NewNotificationService(notifRepo, feed, lg, service.WithMetrics(m))

	reg := ws.NewRegistry(lg)
	opts := []broadcast.Option{broadcast.WithMetrics(m)}
	if cfg.Kafka.Enabled() {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, lg)
		defer producer.Close()
		opts = append(opts, broadcast.WithPublisher(producer))
	}
	disp := broadcast.New(reg, messages, lg, opts...)

	var uploader api.Uploader
	if cfg.S3.Enabled {
		store, err := storage.NewS3Store(ctx, storage.Config{
			Region:     cfg.S3.Region,
			Bucket:     cfg.S3.Bucket,
			Endpoint:   cfg.S3.Endpoint,
			PublicRead: cfg.S3.PublicRead,
			PresignTTL: cfg.PresignTTL,
			KeyPrefix:  cfg.S3.KeyPrefix,
		})
		if err != nil {
			return err
		}
		uploader = store
	}

	wsSrv := ws.NewServer(reg, jv, messages, disp, ws.Config{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		RatePerSecond:  cfg.WS.RatePerSecond,
		RateBurst:      cfg.WS.RateBurst,
	}, m, lg)

	app := api.NewServer(api.Deps{
		Auth:           jv,
		Messages:       messages,
		Notifications:  notifications,
		Announcer:      disp,
		Uploader:       uploader,
		Socket:         wsSrv,
		Metrics:        m,
		Log:            lg,
		BodyLimit:      cfg.App.BodyLimitBytes,
		MaxUploadBytes: int64(cfg.S3.MaxUploadBytes),
	})

	errs := make(chan error, 2)
	if cfg.Kafka.Enabled() {
		dlq := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetters, lg)
		defer dlq.Close()
		consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.GroupID, lg)
		defer consumer.Close()
		triggers := events.NewTriggerHandler(notifications, disp, dlq, cfg.Kafka.TriggerMaxRetries, cfg.TriggerBackoff, lg)
		go func() {
			if err := consumer.Run(ctx, triggers.Handle); err != nil && !errors.Is(err, context.Canceled) {
				errs <- err
			}
		}()
	}

	go func() {
		addr := ":" + cfg.App.PortString()
		lg.Infow("starting realtime service", "addr", addr, "store", cfg.Store.Driver, "redis", cfg.Redis.Enabled, "kafka", cfg.Kafka.Enabled(), "s3", cfg.S3.Enabled)
		errs <- app.Listen(addr)
	}()

	var runErr error
	select {
	case runErr = <-errs:
	case <-ctx.Done():
		lg.Infow("signal received, shutting down")
	}
	return shutdown(app, wsSrv, cfg.ShutdownTimeout, lg, runErr)
}

func shutdown(app *fiber.App, wsSrv *ws.Server, timeout time.Duration, lg *zap.SugaredLogger, runErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := wsSrv.Shutdown(ctx); err != nil {
		lg.Warnw("socket shutdown incomplete", "error", err)
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		lg.Warnw("http shutdown", "error", err)
	}
	return runErr
}

func openStore(ctx context.Context, cfg *config.Config, lg *zap.SugaredLogger) (service.MessageRepository, service.NotificationRepository, func(), error) {
	if cfg.Store.Driver == "memory" {
		lg.Warnw("using in-memory store, data is lost on restart")
		return repository.NewMemoryMessages(), repository.NewMemoryNotifications(), func() {}, nil
	}
	client, err := repository.NewMongoClient(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(c)
	}
	db := client.Database(cfg.Mongo.DB)
	msgs, err := repository.NewMessageRepository(ctx, db)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	notifs, err := repository.NewNotificationRepository(ctx, db)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return msgs, notifs, closeFn, nil
}

