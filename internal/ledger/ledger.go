package ledger

import (
	"math"

	"stratify/internal/types"
)

// Pseudo-column names the ledger contributes to the rule vocabulary.
const (
	ColPositionAmount        = "position_amount"
	ColPositionValue         = "position_value"
	ColAvgEntryPrice         = "avg_entry_price"
	ColRemainingTradableValue = "remaining_tradable_value"
	ColRealizedTotalValue    = "realized_total_value"
	ColUnrealizedTotalValue  = "unrealized_total_value"
)

// Columns lists the ledger pseudo-columns, in a stable order.
func Columns() []string {
	return []string{
		ColPositionAmount,
		ColPositionValue,
		ColAvgEntryPrice,
		ColRemainingTradableValue,
		ColRealizedTotalValue,
		ColUnrealizedTotalValue,
	}
}

// Config fixes the financial parameters of one execution.
type Config struct {
	Spot     bool
	Leverage int
	MakerFee float64
	TakerFee float64
	Initial  float64
	// EmitLiquidationTrade records a closing Trade when a forced
	// liquidation resets the position instead of resetting silently.
	EmitLiquidationTrade bool
	// ExternalFills suppresses candle-range settlement of resting
	// orders; the venue reports fills and the driver applies them.
	ExternalFills bool
}

// OpenOrder is a resting limit order. Reserved is the capital set aside
// at placement; zero for orders that reduced the position when placed.
type OpenOrder struct {
	ID        int64
	Timestamp int64
	Side      types.Side
	Price     float64
	Amount    float64
	Reserved  float64
}

// Ledger owns all position and capital state for one execution. It is
// driven step-by-step by a single worker and is not safe for concurrent
// use.
type Ledger struct {
	cfg Config

	pos       float64 // signed, positive = long
	avgEntry  float64
	remaining float64
	reserved  float64
	mark      float64

	open    []OpenOrder
	nextID  int64
	trades  []types.Trade

	cumProfit  float64
	firstClose float64

	// all-time extrema of unrealized_total_value; runup grows, drawdown
	// shrinks, never the reverse.
	maxSeen  float64
	minSeen  float64
	runup    float64
	drawdown float64

	closedCount  int
	winCount     int
	grossProfit  float64
	grossLoss    float64
	liquidations int

	prev map[string]float64
}

// New builds a ledger with all capital free and no position.
func New(cfg Config) *Ledger {
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	l := &Ledger{
		cfg:       cfg,
		remaining: cfg.Initial,
		maxSeen:   cfg.Initial,
		minSeen:   cfg.Initial,
		nextID:    1,
	}
	l.prev = l.snapshot()
	return l
}

func (l *Ledger) leverage() float64 { return float64(l.cfg.Leverage) }

// positionValue is the equity held in the position: committed margin
// plus mark-to-market profit. Negative means the margin is exhausted.
func (l *Ledger) positionValue() float64 {
	if l.pos == 0 {
		return 0
	}
	margin := math.Abs(l.pos) * l.avgEntry / l.leverage()
	return margin + l.pos*(l.mark-l.avgEntry)
}

func (l *Ledger) realizedTotal() float64 {
	return math.Abs(l.pos)*l.avgEntry + l.remaining + l.reserved
}

func (l *Ledger) unrealizedTotal() float64 {
	return l.realizedTotal() + l.pos*(l.mark-l.avgEntry)
}

// Value resolves a ledger pseudo-column at the current mark price.
// Unknown names resolve to NaN.
func (l *Ledger) Value(name string) float64 {
	switch name {
	case ColPositionAmount:
		return l.pos
	case ColPositionValue:
		return math.Max(0, l.positionValue())
	case ColAvgEntryPrice:
		return l.avgEntry
	case ColRemainingTradableValue:
		return l.remaining
	case ColRealizedTotalValue:
		return l.realizedTotal()
	case ColUnrealizedTotalValue:
		return l.unrealizedTotal()
	}
	return math.NaN()
}

// PrevValue resolves a pseudo-column as of the previous step.
func (l *Ledger) PrevValue(name string) float64 {
	if v, ok := l.prev[name]; ok {
		return v
	}
	return math.NaN()
}

func (l *Ledger) snapshot() map[string]float64 {
	s := make(map[string]float64, 6)
	for _, c := range Columns() {
		s[c] = l.Value(c)
	}
	return s
}

// Step advances the ledger to a new candle: snapshots the previous
// state, marks the carried position to the candle close, applies the
// forced-liquidation clamp, and settles any resting limit orders the
// candle's range crossed. Returned trades are in fill order.
func (l *Ledger) Step(c types.Candle) []types.Trade {
	l.prev = l.snapshot()
	if l.firstClose == 0 {
		l.firstClose = c.Close
	}
	l.mark = c.Close

	var fills []types.Trade
	if t := l.liquidate(c.Ts); t != nil {
		fills = append(fills, *t)
	}
	if !l.cfg.ExternalFills {
		fills = append(fills, l.settle(c)...)
	}
	l.observe()
	return fills
}

// liquidate clamps a position whose equity went negative: the position
// and its committed margin are wiped, resting orders are released.
func (l *Ledger) liquidate(ts int64) *types.Trade {
	if l.pos == 0 || l.positionValue() >= 0 {
		return nil
	}
	pos, avg := l.pos, l.avgEntry
	l.pos, l.avgEntry = 0, 0
	l.releaseAll()
	l.liquidations++

	if !l.cfg.EmitLiquidationTrade {
		return nil
	}
	side := types.SideSell
	if pos < 0 {
		side = types.SideBuy
	}
	profit := pos * (l.mark - avg)
	t := l.emit(types.OrderMarket, side, ts, l.mark, math.Abs(pos), math.Abs(pos)*l.mark, profit, true)
	return &t
}

// observe folds the current unrealized total into the all-time extrema
// and the run-up/drawdown trackers.
func (l *Ledger) observe() {
	u := l.unrealizedTotal()
	if u-l.minSeen > l.runup {
		l.runup = u - l.minSeen
	}
	if u-l.maxSeen < l.drawdown {
		l.drawdown = u - l.maxSeen
	}
	if u > l.maxSeen {
		l.maxSeen = u
	}
	if u < l.minSeen {
		l.minSeen = u
	}
}

// Trades returns the append-only fill history.
func (l *Ledger) Trades() []types.Trade { return l.trades }

// OpenOrders returns a copy of the resting order set.
func (l *Ledger) OpenOrders() []OpenOrder {
	out := make([]OpenOrder, len(l.open))
	copy(out, l.open)
	return out
}

// PositionAmount returns the signed position size.
func (l *Ledger) PositionAmount() float64 { return l.pos }

// Liquidations counts forced position resets so far.
func (l *Ledger) Liquidations() int { return l.liquidations }

// Summary aggregates the execution's final metrics. Relative figures
// are percentages of the initial tradable value.
func (l *Ledger) Summary() types.Summary {
	s := types.Summary{
		AbsNetProfit:   l.cumProfit,
		TotalTrades:    len(l.trades),
		AbsMaxRunUp:    l.runup,
		AbsMaxDrawdown: l.drawdown,
	}
	if l.cfg.Initial > 0 {
		s.RelNetProfit = l.cumProfit / l.cfg.Initial * 100
		s.RelMaxRunUp = l.runup / l.cfg.Initial * 100
		s.RelMaxDrawdown = l.drawdown / l.cfg.Initial * 100
	}
	if l.closedCount > 0 {
		s.WinningTradeRate = float64(l.winCount) / float64(l.closedCount) * 100
		s.AbsAvgTradeProfit = l.cumProfit / float64(l.closedCount)
		if l.cfg.Initial > 0 {
			s.RelAvgTradeProfit = s.AbsAvgTradeProfit / l.cfg.Initial * 100
		}
	}
	switch {
	case l.grossLoss > 0:
		s.ProfitFactor = l.grossProfit / l.grossLoss
	case l.grossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	}
	return s
}
