package ledger

import "stratify/internal/types"

// emit appends one Trade with its cumulative and hypothetical metrics
// stamped, and returns it. Liquidation fills count as closing legs.
func (l *Ledger) emit(typ types.OrderType, side types.Side, ts int64, price, amount, cost, profit float64, liquidation bool) types.Trade {
	l.cumProfit += profit
	if liquidation {
		l.recordClose(profit)
	}

	t := types.Trade{
		ID:            l.nextID,
		Type:          typ,
		Side:          side,
		Timestamp:     ts,
		Price:         price,
		Amount:        amount,
		Cost:          cost,
		AvgEntryPrice: l.avgEntry,
		AbsProfit:     profit,
		AbsCumProfit:  l.cumProfit,
		AbsRunup:      l.runup,
		AbsDrawdown:   l.drawdown,
	}
	l.nextID++

	if l.firstClose > 0 {
		t.AbsHodlingProfit = l.cfg.Initial / l.firstClose * (price - l.firstClose)
	}
	if l.cfg.Initial > 0 {
		base := l.cfg.Initial / 100
		t.RelProfit = profit / base
		t.RelCumProfit = l.cumProfit / base
		t.RelHodlingProfit = t.AbsHodlingProfit / base
		t.RelRunup = l.runup / base
		t.RelDrawdown = l.drawdown / base
	}

	l.trades = append(l.trades, t)
	return t
}
