package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stratify/internal/candles"
	"stratify/internal/config"
	"stratify/internal/execution"
	"stratify/internal/gateway"
	"stratify/internal/interfaces"
	"stratify/internal/logger"
	"stratify/internal/metrics"
	storeredis "stratify/internal/store/redis"
	"stratify/internal/store/sqlite"
	"stratify/internal/trace"

	"github.com/joho/godotenv"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	must(err)
	must(logger.Init())
	must(trace.Init())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := sqlite.Open(cfg.DBPath)
	must(err)
	defer store.Close()

	// Redis carries the running flags and market-info cache when
	// configured; otherwise sqlite serves both roles.
	var flags interfaces.RunFlagStore = store
	var markets interfaces.MarketInfoCache
	if cfg.RedisAddr != "" {
		rds, err := storeredis.New(storeredis.Config{
			Addr:     cfg.RedisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       cfg.RedisDB,
		})
		must(err)
		defer rds.Close()
		flags = rds
		markets = rds
	}

	var gw interfaces.ExchangeGateway
	var fetcher interfaces.CandleFetcher = candles.NopFetcher{}
	switch cfg.Exchange {
	case "kite":
		kite := gateway.NewKite(gateway.KiteParams{
			APIKey:      os.Getenv("KITE_API_KEY"),
			AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:    envOrDefault("KITE_EXCHANGE", "NSE"),
		})
		fetcher = kite
		if cfg.Mode == "LIVE" {
			gw = kite
		}
	}
	if gw == nil {
		gw = gateway.NewPaper(1_000_000)
		logger.Info(ctx, "dry-run mode, orders go to the paper gateway")
	}

	source := candles.NewSource(store, fetcher, cfg.Engine.MaxCandlesPerFetch)

	met := metrics.New()
	msrv := metrics.NewServer(orDefault(cfg.MetricsAddr, ":9100"), nil)
	msrv.Start()

	mgr := execution.NewManager(store, flags, source, gw, markets, met, execution.Options{
		FlagPollInterval:     time.Duration(cfg.Engine.FlagPollSeconds) * time.Second,
		Retention:            cfg.Engine.LiveRetentionCandles,
		EmitLiquidationTrade: cfg.Liquidation.EmitTrade,
	})

	api := newAPI(mgr, store)
	api.start(envOrDefault("API_ADDR", ":8080"))

	logger.Info(ctx, "engine started",
		"mode", cfg.Mode, "exchange", cfg.Exchange, "db", cfg.DBPath)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info(ctx, "shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	api.stop(shutCtx)
	if err := mgr.Shutdown(shutCtx); err != nil {
		logger.ErrorWithErr(shutCtx, "workers did not drain", err)
	}
	msrv.Stop(shutCtx)
	trace.Shutdown(shutCtx)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
