package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	app "github.com/robertjkeck2/KEX/internal/app/engine"
	ordercache "github.com/robertjkeck2/KEX/internal/usecase/order-cache"
	orderbook "github.com/robertjkeck2/KEX/internal/usecase/orderbook"
	quotereader "github.com/robertjkeck2/KEX/internal/usecase/quote-reader"
	snapshot "github.com/robertjkeck2/KEX/internal/usecase/snapshot"
	tradepublisher "github.com/robertjkeck2/KEX/internal/usecase/trade-publisher"
	"github.com/robertjkeck2/KEX/pkg/config"
	"github.com/robertjkeck2/KEX/pkg/logger"
	"github.com/robertjkeck2/KEX/pkg/redis"
)

var cfg *config.Config
var log *logger.Logger

func init() {
	cfg = &config.Config{}
	if err := config.Load(cfg); err != nil {
		panic(err)
	}

	l, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}

	log = l
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	redisConfig := redis.DefaultConfig()
	redisConfig.Addrs = strings.Split(cfg.Redis.Addrs, ",")
	redisConfig.Password = cfg.Redis.Password
	redisConfig.Username = cfg.Redis.Username
	redisConfig.DB = cfg.Redis.DB

	rclient := redis.NewClient(log, redisConfig)
	if err := rclient.Connect(ctx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "connect_redis",
		})
		return
	}

	// Initialize components
	book := orderbook.NewOrderbook(cfg.Symbol)
	qReader := quotereader.NewReader(cfg.QuoteReader, log)
	snapshotStore := snapshot.NewSnapshotStore(rclient, cfg.Symbol, log)
	tPublisher := tradepublisher.NewPublisher(cfg.TradePublisher, log)
	orderCache := ordercache.NewCache(rclient, cfg.Symbol, log)

	engine, err := app.NewEngine(
		book,
		qReader,
		snapshotStore,
		tPublisher,
		orderCache,
		log,
		cfg,
	)
	if err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "init_engine",
		})
		return
	}

	if err := engine.Start(ctx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "start_engine",
		})
		return
	}

	log.Info("Exchange started successfully", logger.Field{
		Key:   "symbol",
		Value: cfg.Symbol,
	})

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("Received shutdown signal", logger.Field{
		Key:   "signal",
		Value: sig.String(),
	})

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := engine.Stop(shutdownCtx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "stop_engine",
		})
	}

	if err := tPublisher.Close(); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "close_trade_publisher",
		})
	}

	if err := rclient.Disconnect(shutdownCtx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "disconnect_redis",
		})
	}

	log.Info("Exchange shutdown complete")
}
