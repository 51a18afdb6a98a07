package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TaXueWWL/matchEngine-x/config"
	"github.com/TaXueWWL/matchEngine-x/pkg/archive/repo"
	"github.com/TaXueWWL/matchEngine-x/pkg/archive/worker"
	postgres_wrapper "github.com/TaXueWWL/matchEngine-x/pkg/infra/postgres"
	"github.com/TaXueWWL/matchEngine-x/pkg/kafkawrapper"
	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "./config/config.yml", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	log, ctx := logging.GetLogger(ctx)

	db := postgres_wrapper.InitPostgresWithBackoff(cfg.ArchiveDB)
	w := worker.NewWorker(repo.NewRepo(db), log)

	tradeCG, err := kafkawrapper.NewConsumerGroup(kafkawrapper.ConsumerConfig{
		Brokers:      cfg.Kafka.Brokers,
		GroupID:      cfg.Kafka.ArchiveGroupID,
		Topic:        cfg.Kafka.TradeTopic,
		BatchSize:    100,
		BatchTimeout: time.Second,
	})
	if err != nil {
		log.Fatal(ctx, "init trade consumer", zap.Error(err))
	}
	updateCG, err := kafkawrapper.NewConsumerGroup(kafkawrapper.ConsumerConfig{
		Brokers:      cfg.Kafka.Brokers,
		GroupID:      cfg.Kafka.ArchiveGroupID,
		Topic:        cfg.Kafka.OrderUpdateTopic,
		BatchSize:    100,
		BatchTimeout: time.Second,
	})
	if err != nil {
		log.Fatal(ctx, "init order update consumer", zap.Error(err))
	}

	go func() {
		if err := w.RunTradeConsumer(ctx, tradeCG); err != nil && ctx.Err() == nil {
			log.Error(ctx, "trade consumer stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := w.RunOrderUpdateConsumer(ctx, updateCG); err != nil && ctx.Err() == nil {
			log.Error(ctx, "order update consumer stopped", zap.Error(err))
		}
	}()

	fmt.Println("Archiver started. Press Ctrl+C to exit.")

	<-sigs
	fmt.Println("Shutting down...")

	cancel()
	_ = tradeCG.Close()
	_ = updateCG.Close()

	fmt.Println("Exited cleanly.")
}
