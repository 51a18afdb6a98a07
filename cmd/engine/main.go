package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/TaXueWWL/matchEngine-x/config"
	"github.com/TaXueWWL/matchEngine-x/pkg/account"
	"github.com/TaXueWWL/matchEngine-x/pkg/engine"
	redis_wrapper "github.com/TaXueWWL/matchEngine-x/pkg/infra/redis"
	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"github.com/TaXueWWL/matchEngine-x/pkg/marketdata"
	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	"github.com/TaXueWWL/matchEngine-x/pkg/pipeline"
	"github.com/TaXueWWL/matchEngine-x/pkg/trading"
	"go.uber.org/zap"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "./config/config.yml", "Specify config file path")
	flag.Parse()

	go func() {
		_ = http.ListenAndServe("localhost:6060", nil)
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	log, ctx := logging.GetLogger(ctx)

	books := orderbook.NewManager()
	ledger := account.NewLedger(log)

	pipe, err := pipeline.New(cfg.Pipeline.Size, log)
	if err != nil {
		log.Fatal(ctx, "init pipeline", zap.Error(err))
	}

	sinks := marketdata.Fanout{}
	var publisher *marketdata.Publisher
	if cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
		publisher = marketdata.NewPublisher(cfg.Kafka, log)
		sinks = append(sinks, publisher)
	}
	if cfg.MarketCache != nil {
		rdb, err := redis_wrapper.InitRedis(cfg.MarketCache)
		if err != nil {
			log.Fatal(ctx, "init redis", zap.Error(err))
		}
		sinks = append(sinks, marketdata.NewCache(rdb, books, log))
	}

	eng := engine.NewEngine(books, ledger, cfg.Trading, sinks, log)
	svc := trading.NewService(pipe, books, ledger, cfg.Trading, log)

	go pipe.Run(ctx, eng.Handle)

	log.Info(ctx, "engine started",
		zap.String("service", cfg.ServiceName),
		zap.Strings("symbols", svc.SupportedSymbols()),
		zap.Int("pipeline_size", cfg.Pipeline.Size))
	fmt.Println("Engine started. Press Ctrl+C to exit.")

	<-sigs
	fmt.Println("Shutting down...")

	pipe.Close()
	if publisher != nil {
		_ = publisher.Close(ctx)
	}
	cancel()

	fmt.Println("Exited cleanly.")
}
