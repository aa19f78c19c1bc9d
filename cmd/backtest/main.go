package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"stratify/internal/candles"
	"stratify/internal/config"
	"stratify/internal/gateway"
	"stratify/internal/interfaces"
	"stratify/internal/logger"
	"stratify/internal/sim"
	"stratify/internal/store/sqlite"
	"stratify/internal/trace"
	"stratify/internal/types"

	"github.com/joho/godotenv"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// Runs one backtest synchronously and prints the trade list and
// summary as JSON.
func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "instrument, e.g. RELIANCE or BTC/USDT:USDT")
	timeframe := flag.String("timeframe", "1h", "candle timeframe")
	start := flag.String("start", "", "range start, RFC3339")
	end := flag.String("end", "", "range end, RFC3339")
	leverage := flag.Int("leverage", 1, "leverage")
	initial := flag.Float64("initial", 10000, "initial tradable value")
	makerFee := flag.Float64("maker-fee", 0.0002, "maker fee rate")
	takerFee := flag.Float64("taker-fee", 0.0005, "taker fee rate")
	rulesPath := flag.String("rules", "", "path to order conditions JSON")
	indicatorsPath := flag.String("indicators", "", "path to indicator definitions JSON")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	must(err)
	must(logger.Init())
	must(trace.Init())

	if *symbol == "" || *start == "" || *end == "" || *rulesPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	startAt, err := time.Parse(time.RFC3339, *start)
	must(err)
	endAt, err := time.Parse(time.RFC3339, *end)
	must(err)
	rules, err := os.ReadFile(*rulesPath)
	must(err)
	indicators := []byte("[]")
	if *indicatorsPath != "" {
		indicators, err = os.ReadFile(*indicatorsPath)
		must(err)
	}

	store, err := sqlite.Open(cfg.DBPath)
	must(err)
	defer store.Close()

	var fetcher interfaces.CandleFetcher = candles.NopFetcher{}
	if cfg.Exchange == "kite" && os.Getenv("KITE_API_KEY") != "" {
		fetcher = gateway.NewKite(gateway.KiteParams{
			APIKey:      os.Getenv("KITE_API_KEY"),
			AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:    envOrDefault("KITE_EXCHANGE", "NSE"),
		})
	}
	source := candles.NewSource(store, fetcher, cfg.Engine.MaxCandlesPerFetch)

	ctx := context.Background()
	exec := &types.Execution{
		Kind:                 types.KindBacktest,
		Exchange:             cfg.Exchange,
		Symbol:               *symbol,
		Timeframe:            *timeframe,
		Leverage:             *leverage,
		MakerFee:             *makerFee,
		TakerFee:             *takerFee,
		InitialTradableValue: *initial,
		OrderConditions:      string(rules),
		Indicators:           string(indicators),
		Running:              true,
		StartTs:              startAt.UnixMilli(),
		EndTs:                endAt.UnixMilli(),
	}
	must(store.CreateExecution(ctx, exec))

	driver, err := sim.New(sim.Params{
		Execution:            exec,
		Source:               source,
		Flags:                store,
		FlagPollInterval:     time.Duration(cfg.Engine.FlagPollSeconds) * time.Second,
		Retention:            cfg.Engine.LiveRetentionCandles,
		EmitLiquidationTrade: cfg.Liquidation.EmitTrade,
		OnTrades: func(ctx context.Context, trades []types.Trade) error {
			return store.AppendTrades(ctx, exec.ID, trades)
		},
		OnIndicatorsChanged: func(ctx context.Context, s string) error {
			return store.UpdateIndicators(ctx, exec.ID, s)
		},
	})
	if err != nil {
		store.FinishExecution(ctx, exec.ID, err.Error(), types.Summary{})
		log.Fatal(err)
	}

	runCtx, span := trace.StartRun(ctx, exec.ID, string(exec.Kind), exec.Symbol)
	runErr := driver.Run(runCtx)
	span.End()
	if errors.Is(runErr, sim.ErrCancelled) {
		runErr = nil
	}
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	must(store.FinishExecution(ctx, exec.ID, errText, driver.Summary()))
	if runErr != nil {
		log.Fatal(runErr)
	}

	out := struct {
		ExecutionID int64         `json:"execution_id"`
		Trades      []types.Trade `json:"trades"`
		Summary     types.Summary `json:"summary"`
	}{exec.ID, driver.Trades(), driver.Summary()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(out))
	fmt.Fprintf(os.Stderr, "backtest %d finished: %d trades\n", exec.ID, len(driver.Trades()))
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
