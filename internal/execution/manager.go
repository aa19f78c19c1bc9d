package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stratify/internal/interfaces"
	"stratify/internal/logger"
	"stratify/internal/metrics"
	"stratify/internal/sim"
	"stratify/internal/store/sqlite"
	"stratify/internal/trace"
	"stratify/internal/types"
)

// Options tunes every worker the manager starts.
type Options struct {
	FlagPollInterval     time.Duration
	Retention            int
	EmitLiquidationTrade bool
}

// Manager owns the execution workers. Starting an execution journals
// it, flips its running flag, and hands off to a background worker;
// the call returns as soon as the worker is spawned. Workers share
// only the candle source and gateway, both concurrency-safe.
type Manager struct {
	store   *sqlite.Store
	flags   interfaces.RunFlagStore
	source  interfaces.CandleSource
	gateway interfaces.ExchangeGateway
	markets interfaces.MarketInfoCache
	met     *metrics.Metrics
	opts    Options

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(store *sqlite.Store, flags interfaces.RunFlagStore, source interfaces.CandleSource,
	gateway interfaces.ExchangeGateway, markets interfaces.MarketInfoCache,
	met *metrics.Metrics, opts Options) *Manager {
	return &Manager{
		store:   store,
		flags:   flags,
		source:  source,
		gateway: gateway,
		markets: markets,
		met:     met,
		opts:    opts,
		cancels: make(map[int64]context.CancelFunc),
	}
}

// Start validates and journals the execution, compiles its rules, and
// hands off to a worker. On return e.ID is assigned and the worker is
// running; a validation or compilation failure means the execution
// never stepped.
func (m *Manager) Start(ctx context.Context, e *types.Execution) error {
	if err := m.validate(ctx, e); err != nil {
		return err
	}

	e.Running = true
	if err := m.store.CreateExecution(ctx, e); err != nil {
		return err
	}

	driver, err := sim.New(sim.Params{
		Execution:            e,
		Source:               m.source,
		Flags:                m.flags,
		Gateway:              m.executionGateway(e),
		Metrics:              m.met,
		FlagPollInterval:     m.opts.FlagPollInterval,
		Retention:            m.opts.Retention,
		EmitLiquidationTrade: m.opts.EmitLiquidationTrade,
		OnTrades: func(ctx context.Context, trades []types.Trade) error {
			return m.store.AppendTrades(ctx, e.ID, trades)
		},
		OnIndicatorsChanged: func(ctx context.Context, indicators string) error {
			return m.store.UpdateIndicators(ctx, e.ID, indicators)
		},
	})
	if err != nil {
		m.store.FinishExecution(ctx, e.ID, err.Error(), types.Summary{})
		return err
	}

	if err := m.flags.SetRunning(ctx, e.ID, true); err != nil {
		m.store.FinishExecution(ctx, e.ID, err.Error(), types.Summary{})
		return err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[e.ID] = cancel
	m.mu.Unlock()

	if m.met != nil {
		m.met.ExecutionsStarted.WithLabelValues(string(e.Kind)).Inc()
		m.met.RunningExecutions.Inc()
	}
	logger.Lifecycle(ctx, e.ID, "created",
		"kind", string(e.Kind), "symbol", e.Symbol, "timeframe", e.Timeframe)

	m.wg.Add(1)
	go m.run(workerCtx, e, driver)
	return nil
}

func (m *Manager) executionGateway(e *types.Execution) interfaces.ExchangeGateway {
	if e.Kind == types.KindReal {
		return m.gateway
	}
	return nil
}

// validate enforces parameter sanity and, for live executions, the
// balance and market-info gates.
func (m *Manager) validate(ctx context.Context, e *types.Execution) error {
	if _, err := types.TimeframeDuration(e.Timeframe); err != nil {
		return err
	}
	if e.Leverage < 1 {
		return fmt.Errorf("leverage must be a positive integer, got %d", e.Leverage)
	}
	if e.Spot() && e.Leverage != 1 {
		return fmt.Errorf("spot symbol %s cannot use leverage %d", e.Symbol, e.Leverage)
	}
	if e.InitialTradableValue <= 0 {
		return fmt.Errorf("initial tradable value must be positive, got %v", e.InitialTradableValue)
	}
	if e.Kind == types.KindBacktest && e.EndTs <= e.StartTs {
		return fmt.Errorf("backtest range is empty: start %d, end %d", e.StartTs, e.EndTs)
	}
	if e.Kind != types.KindReal {
		return nil
	}

	if m.gateway == nil {
		return fmt.Errorf("no exchange gateway configured for live execution")
	}
	balance, err := m.gateway.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("live start rejected, balance check failed: %w", err)
	}
	logger.Info(ctx, "balance check passed",
		"total", balance.Total, "available", balance.Available)

	info, err := m.marketInfo(ctx, e)
	if err != nil {
		return err
	}
	if info.MaxLeverage > 0 && float64(e.Leverage) > info.MaxLeverage {
		return fmt.Errorf("leverage %d exceeds venue cap %v for %s",
			e.Leverage, info.MaxLeverage, e.Symbol)
	}
	// Venue fees win over unset execution fees.
	if e.MakerFee == 0 && info.MakerFee > 0 {
		e.MakerFee = info.MakerFee
	}
	if e.TakerFee == 0 && info.TakerFee > 0 {
		e.TakerFee = info.TakerFee
	}
	return nil
}

func (m *Manager) marketInfo(ctx context.Context, e *types.Execution) (*types.MarketInfo, error) {
	if m.markets != nil {
		if info, err := m.markets.GetMarketInfo(ctx, e.Exchange, e.Symbol); err != nil {
			logger.Warn(ctx, "market info cache read failed", "error", err)
		} else if info != nil {
			return info, nil
		}
	}
	info, err := m.gateway.FetchMarketInfo(ctx, e.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch market info: %w", err)
	}
	if m.markets != nil {
		if err := m.markets.CacheMarketInfo(ctx, e.Exchange, info); err != nil {
			logger.Warn(ctx, "market info cache write failed", "error", err)
		}
	}
	return &info, nil
}

// run is the worker body. Whatever happens, the execution is never
// left flagged as running.
func (m *Manager) run(ctx context.Context, e *types.Execution, driver *sim.Driver) {
	defer m.wg.Done()

	ctx, span := trace.StartRun(ctx, e.ID, string(e.Kind), e.Symbol)
	defer span.End()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("execution panicked: %v", r)
			}
		}()
		runErr = driver.Run(ctx)
	}()

	// The worker context may already be cancelled; finalization gets
	// its own deadline.
	finCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome := "completed"
	errText := ""
	switch {
	case errors.Is(runErr, sim.ErrCancelled):
		outcome = "cancelled"
	case runErr != nil:
		outcome = "failed"
		errText = runErr.Error()
		logger.ErrorWithErr(finCtx, "execution failed", runErr, "execution_id", e.ID)
	}

	if err := m.store.FinishExecution(finCtx, e.ID, errText, driver.Summary()); err != nil {
		logger.ErrorWithErr(finCtx, "journal finish failed", err, "execution_id", e.ID)
	}
	if err := m.flags.SetRunning(finCtx, e.ID, false); err != nil {
		logger.ErrorWithErr(finCtx, "clear running flag failed", err, "execution_id", e.ID)
	}

	m.mu.Lock()
	delete(m.cancels, e.ID)
	m.mu.Unlock()

	if m.met != nil {
		m.met.RunningExecutions.Dec()
		m.met.ExecutionsFinished.WithLabelValues(string(e.Kind), outcome).Inc()
	}
	logger.Lifecycle(finCtx, e.ID, outcome,
		"trades", len(driver.Trades()), "net_profit", driver.Summary().AbsNetProfit)
}

// Stop requests cooperative cancellation: the worker observes the
// cleared flag within one poll increment and finishes on its own.
func (m *Manager) Stop(ctx context.Context, executionID int64) error {
	if err := m.flags.SetRunning(ctx, executionID, false); err != nil {
		return err
	}
	return m.store.SetRunning(ctx, executionID, false)
}

// Shutdown cancels every worker context and waits for them to drain,
// or gives up when ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
