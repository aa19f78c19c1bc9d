package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Candle is one OHLCV sample. Ts is the bucket open time in unix
// milliseconds; candles are unique per (symbol, timeframe, Ts).
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Time returns the candle open time.
func (c Candle) Time() time.Time { return time.UnixMilli(c.Ts) }

type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderCancelAll OrderType = "cancel_all_open_orders"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderIntent is a fully evaluated order request: expressions from the
// strategy rules resolved to numbers against the current row. Price is
// meaningful for limit orders only.
type OrderIntent struct {
	Type   OrderType
	Side   Side
	Amount float64
	Price  float64
}

// Trade is the immutable record appended on every fill. JSON field
// names match the persisted execution results.
type Trade struct {
	ID               int64     `json:"id"`
	Type             OrderType `json:"type"`
	Side             Side      `json:"side"`
	Timestamp        int64     `json:"timestamp"`
	Price            float64   `json:"price"`
	Amount           float64   `json:"amount"`
	Cost             float64   `json:"cost"`
	AvgEntryPrice    float64   `json:"avg_entry_price"`
	AbsProfit        float64   `json:"abs_profit"`
	RelProfit        float64   `json:"rel_profit"`
	AbsCumProfit     float64   `json:"abs_cum_profit"`
	RelCumProfit     float64   `json:"rel_cum_profit"`
	AbsHodlingProfit float64   `json:"abs_hodling_profit"`
	RelHodlingProfit float64   `json:"rel_hodling_profit"`
	AbsRunup         float64   `json:"abs_runup"`
	RelRunup         float64   `json:"rel_runup"`
	AbsDrawdown      float64   `json:"abs_drawdown"`
	RelDrawdown      float64   `json:"rel_drawdown"`
}

// Summary holds the aggregate metrics persisted when an execution
// completes, is cancelled, or fails.
type Summary struct {
	AbsNetProfit      float64 `json:"abs_net_profit"`
	RelNetProfit      float64 `json:"rel_net_profit"`
	TotalTrades       int     `json:"total_trades"`
	WinningTradeRate  float64 `json:"winning_trade_rate"`
	ProfitFactor      float64 `json:"profit_factor"`
	AbsAvgTradeProfit float64 `json:"abs_avg_trade_profit"`
	RelAvgTradeProfit float64 `json:"rel_avg_trade_profit"`
	AbsMaxRunUp       float64 `json:"abs_max_run_up"`
	RelMaxRunUp       float64 `json:"rel_max_run_up"`
	AbsMaxDrawdown    float64 `json:"abs_max_drawdown"`
	RelMaxDrawdown    float64 `json:"rel_max_drawdown"`
}

// ExecutionKind distinguishes a historical replay from a live run.
type ExecutionKind string

const (
	KindBacktest ExecutionKind = "backtest"
	KindReal     ExecutionKind = "real"
)

// Execution is the persisted identity and parameters of one run.
// Exactly one instrument per execution.
type Execution struct {
	ID                   int64         `json:"id"`
	StrategyID           int64         `json:"strategy_id"`
	Kind                 ExecutionKind `json:"type"`
	Exchange             string        `json:"exchange"`
	Symbol               string        `json:"symbol"`
	Timeframe            string        `json:"timeframe"`
	Leverage             int           `json:"leverage"`
	MakerFee             float64       `json:"maker_fee"`
	TakerFee             float64       `json:"taker_fee"`
	InitialTradableValue float64       `json:"initial_tradable_value"`
	OrderConditions      string        `json:"order_conditions"`
	Indicators           string        `json:"indicators"`
	Running              bool          `json:"running"`
	StartTs              int64         `json:"start_ts"`
	EndTs                int64         `json:"end_ts"`
	Error                string        `json:"error,omitempty"`
}

// Spot reports whether the symbol is a spot market. Derivative symbols
// carry a settle-currency suffix after a colon (BTC/USDT:USDT).
func (e Execution) Spot() bool { return !strings.Contains(e.Symbol, ":") }

// MarketInfo is what the gateway reports for a symbol before an
// execution starts: fee schedule and the leverage cap.
type MarketInfo struct {
	Symbol      string  `json:"symbol"`
	MakerFee    float64 `json:"maker_fee"`
	TakerFee    float64 `json:"taker_fee"`
	MaxLeverage float64 `json:"max_leverage"`
}

// TimeframeDuration parses timeframes of the form 1m, 15m, 1h, 4h, 1d, 1w.
func TimeframeDuration(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid timeframe %q", tf)
}
