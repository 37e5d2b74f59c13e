package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/chatmimic/internal/bot"
	"github.com/suPer8Hu/chatmimic/internal/brain"
	"github.com/suPer8Hu/chatmimic/internal/config"
	"github.com/suPer8Hu/chatmimic/internal/db"
	"github.com/suPer8Hu/chatmimic/internal/history"
	"github.com/suPer8Hu/chatmimic/internal/httpapi"
	"github.com/suPer8Hu/chatmimic/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatmimic/internal/imports"
	"github.com/suPer8Hu/chatmimic/internal/logger"
	"github.com/suPer8Hu/chatmimic/internal/store/rabbitmq"
	"github.com/suPer8Hu/chatmimic/internal/store/redisstore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Debug)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	jobs := imports.NewRepo(gdb)
	if err := jobs.Migrate(ctx); err != nil {
		log.Fatal("migrate import jobs", zap.Error(err))
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rds.Ping(pingCtx); err != nil {
		// chats fail to load until redis comes back; the bot keeps running
		log.Error("redis ping", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancel()

	b := brain.New(brain.Options{
		MinOrder:       cfg.MinOrder,
		MaxOrder:       cfg.MaxOrder,
		MaxReplyTokens: cfg.MaxReplyTokens,
		MaxGenRetries:  cfg.MaxGenRetries,
		PersistEvery:   cfg.WriteToRedisFreq,
	}, rds, log.Named("brain"))

	svc := bot.NewService(b, history.NewFetcher(cfg.HistoryFetchTimeout), jobs, bot.Policy{
		ReplyTimeout:       cfg.ReplyTimeout,
		ReplyProb:          cfg.ReplyProb,
		KnownWordReplyProb: cfg.KnownWordReplyProb,
	}, log.Named("bot"))

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitReplyQueue)
	if err != nil {
		log.Fatal("rabbit publisher", zap.Error(err))
	}
	defer pub.Close()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, svc, pub, log.Named("consumer"))
	if err != nil {
		log.Fatal("rabbit consumer", zap.Error(err))
	}
	defer consumer.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handlers.NewHandler(svc, jobs, log.Named("http")), cfg.JWTSecret, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("bot started",
		zap.String("queue", cfg.RabbitQueue),
		zap.String("reply_queue", cfg.RabbitReplyQueue),
		zap.Int("min_order", cfg.MinOrder),
		zap.Int("max_order", cfg.MaxOrder),
	)

	if err := g.Wait(); err != nil {
		log.Error("bot stopped", zap.Error(err))
		return
	}
	log.Info("bot stopped")
}
