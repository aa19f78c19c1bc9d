package ledger

import (
	"math"

	"stratify/internal/types"
)

// epsilon below which an amount or capital residue is treated as zero.
const eps = 1e-12

// Submit applies one evaluated order intent at the current step.
// Market orders fill immediately at markPrice with the taker fee.
// Limit orders rest until a later Step settles them. Guard-clause
// no-ops return (nil, false); a resting limit also returns false for
// filled.
func (l *Ledger) Submit(in types.OrderIntent, markPrice float64, ts int64) (trade *types.Trade, filled bool) {
	switch in.Type {
	case types.OrderCancelAll:
		l.CancelAll()
		return nil, false
	case types.OrderMarket:
		if noOpAmount(in.Amount) {
			return nil, false
		}
		if l.cfg.Spot && in.Side == types.SideSell && l.pos <= 0 {
			return nil, false
		}
		t := l.fill(types.OrderMarket, in.Side, markPrice, in.Amount, l.cfg.TakerFee, ts)
		if t == nil {
			return nil, false
		}
		return t, true
	case types.OrderLimit:
		if noOpAmount(in.Amount) || in.Price <= 0 || math.IsNaN(in.Price) {
			return nil, false
		}
		if l.cfg.Spot && in.Side == types.SideSell && l.pos <= 0 {
			return nil, false
		}
		l.rest(in.Side, in.Price, in.Amount, ts)
		return nil, false
	}
	return nil, false
}

func noOpAmount(a float64) bool { return a <= eps || math.IsNaN(a) }

// PreviewAmount reports the amount a fill at the given price would
// actually settle for, after the reduce cap and capital resize, without
// mutating any state. Zero means the order would be a no-op.
func (l *Ledger) PreviewAmount(side types.Side, amount, price, fee float64) float64 {
	if price <= 0 || math.IsNaN(price) || noOpAmount(amount) {
		return 0
	}
	if l.cfg.Spot && side == types.SideSell && l.pos <= 0 {
		return 0
	}
	reduce := 0.0
	opening := amount
	if l.pos != 0 && (l.pos > 0) != (side == types.SideBuy) {
		reduce = math.Min(amount, math.Abs(l.pos))
		opening = 0
	}
	if l.cfg.Spot && side == types.SideSell {
		opening = 0
	}
	unit := price * (1/l.leverage() + fee)
	if opening*unit > l.remaining {
		opening = l.remaining / unit
	}
	total := reduce + opening
	if total <= eps {
		return 0
	}
	return total
}

// Cancel removes one resting order by id, returning its reservation.
func (l *Ledger) Cancel(id int64) bool {
	for i, o := range l.open {
		if o.ID != id {
			continue
		}
		l.remaining += o.Reserved
		l.reserved -= o.Reserved
		l.open = append(l.open[:i], l.open[i+1:]...)
		return true
	}
	return false
}

// rest queues a limit order. Orders that would increase exposure
// reserve their full cost up front, resized to the free capital;
// orders on the reducing side reserve nothing and are capped against
// the position when they fill.
func (l *Ledger) rest(side types.Side, price, amount float64, ts int64) {
	var reserved float64
	if l.increases(side) {
		unit := price * (1/l.leverage() + l.cfg.MakerFee)
		cost := amount * unit
		if cost > l.remaining {
			amount = l.remaining / unit
			cost = l.remaining
		}
		if amount <= eps {
			return
		}
		l.remaining -= cost
		l.reserved += cost
		reserved = cost
	}
	l.open = append(l.open, OpenOrder{
		ID:        l.nextID,
		Timestamp: ts,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Reserved:  reserved,
	})
	l.nextID++
}

func (l *Ledger) increases(side types.Side) bool {
	if l.pos == 0 {
		return true
	}
	return (l.pos > 0) == (side == types.SideBuy)
}

// settle fills every resting order whose limit the candle's range
// crossed: buys when the low reached the price, sells when the high
// did. Fills happen at the limit price with the maker fee.
func (l *Ledger) settle(c types.Candle) []types.Trade {
	var fills []types.Trade
	kept := l.open[:0]
	for _, o := range l.open {
		crossed := (o.Side == types.SideBuy && c.Low <= o.Price) ||
			(o.Side == types.SideSell && c.High >= o.Price)
		if !crossed {
			kept = append(kept, o)
			continue
		}
		if t := l.fillOpen(o, o.Price, c.Ts); t != nil {
			fills = append(fills, *t)
		}
	}
	l.open = kept
	return fills
}

// FillOpen settles one resting order by id at the given price, for use
// when the venue reports the fill instead of the candle range. Reports
// false if no such order rests.
func (l *Ledger) FillOpen(id int64, price float64, ts int64) (*types.Trade, bool) {
	for i, o := range l.open {
		if o.ID != id {
			continue
		}
		l.open = append(l.open[:i], l.open[i+1:]...)
		return l.fillOpen(o, price, ts), true
	}
	return nil, false
}

func (l *Ledger) fillOpen(o OpenOrder, price float64, ts int64) *types.Trade {
	// Refund the reservation first; the fill routine re-deducts the
	// cost, so a still-opening order consumes exactly what it reserved.
	l.remaining += o.Reserved
	l.reserved -= o.Reserved
	return l.fill(types.OrderLimit, o.Side, price, o.Amount, l.cfg.MakerFee, ts)
}

// CancelAll clears the resting order set and returns every reservation
// to the free capital.
func (l *Ledger) CancelAll() {
	l.releaseAll()
}

func (l *Ledger) releaseAll() {
	for _, o := range l.open {
		l.remaining += o.Reserved
	}
	l.open = l.open[:0]
	l.reserved = 0
}

// fill is the single mutation path for both market and settled limit
// orders. The reducing leg is capped at the position size; any excess
// runs as a fresh opening leg funded from the free capital, so a
// position never flips sign within one fill.
func (l *Ledger) fill(typ types.OrderType, side types.Side, price, amount, fee float64, ts int64) *types.Trade {
	if price <= 0 || math.IsNaN(price) || noOpAmount(amount) {
		return nil
	}

	dir := 1.0
	if side == types.SideSell {
		dir = -1
	}

	// A reducing fill is capped at the position size; the excess is
	// dropped, never flipped into an opposite position. Flipping takes
	// a second fill.
	reduce := 0.0
	opening := amount
	if l.pos != 0 && (l.pos > 0) != (dir > 0) {
		reduce = math.Min(amount, math.Abs(l.pos))
		opening = 0
	}
	if l.cfg.Spot && side == types.SideSell {
		opening = 0 // no short exposure on spot
	}

	var profit, cost float64
	filledAmount := 0.0

	if reduce > 0 {
		margin := reduce * l.avgEntry / l.leverage()
		sign := 1.0
		if l.pos < 0 {
			sign = -1
		}
		pnl := sign * reduce * (price - l.avgEntry)
		feeCost := reduce * price * fee
		l.remaining += margin + pnl - feeCost
		if l.remaining < 0 {
			l.remaining = 0
		}
		l.pos += dir * reduce
		if math.Abs(l.pos) <= eps {
			l.pos, l.avgEntry = 0, 0
		}
		profit += pnl - feeCost
		cost += reduce * price
		filledAmount += reduce
		l.recordClose(pnl - feeCost)
	}

	if opening > 0 {
		unit := price * (1/l.leverage() + fee)
		openCost := opening * unit
		if openCost > l.remaining {
			opening = l.remaining / unit
			openCost = l.remaining
		}
		if opening > eps {
			l.remaining -= openCost
			abs := math.Abs(l.pos)
			l.avgEntry = (abs*l.avgEntry + opening*price) / (abs + opening)
			l.pos += dir * opening
			profit -= opening * price * fee
			cost += opening * price
			filledAmount += opening
		}
	}

	if filledAmount <= eps {
		return nil
	}
	t := l.emit(typ, side, ts, price, filledAmount, cost, profit, false)
	l.observe()
	return &t
}

func (l *Ledger) recordClose(profit float64) {
	l.closedCount++
	if profit > 0 {
		l.winCount++
		l.grossProfit += profit
	} else {
		l.grossLoss += -profit
	}
}
