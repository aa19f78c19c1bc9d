package gateway

import (
	"context"
	"fmt"
	"sync"

	"stratify/internal/interfaces"
	"stratify/internal/types"
)

// Paper is the dry-run gateway: orders are acknowledged and tracked in
// memory, never sent anywhere. Market orders fill at the last price the
// driver pushed; limit orders rest until a pushed candle crosses them.
type Paper struct {
	mu      sync.Mutex
	balance types.Balance
	last    map[string]float64
	orders  map[string]*types.GatewayOrder
	sides   map[string]types.Side
	symbols map[string]string
	nextID  int
}

var _ interfaces.ExchangeGateway = (*Paper)(nil)

func NewPaper(balance float64) *Paper {
	return &Paper{
		balance: types.Balance{Total: balance, Available: balance},
		last:    make(map[string]float64),
		orders:  make(map[string]*types.GatewayOrder),
		sides:   make(map[string]types.Side),
		symbols: make(map[string]string),
		nextID:  1,
	}
}

// Push feeds the latest candle for a symbol, settling any resting
// limit orders its range crossed.
func (p *Paper) Push(symbol string, c types.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[symbol] = c.Close

	for id, o := range p.orders {
		if o.Status != "open" || p.symbols[id] != symbol {
			continue
		}
		side := p.sides[id]
		crossed := (side == types.SideBuy && c.Low <= o.Price) ||
			(side == types.SideSell && c.High >= o.Price)
		if crossed {
			o.Status = "closed"
			o.FilledAmount = o.Amount
			o.AvgFillPrice = o.Price
			o.Timestamp = c.Ts
		}
	}
}

func (p *Paper) CreateOrder(ctx context.Context, req types.GatewayOrderRequest) (types.GatewayOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := fmt.Sprintf("SIM-%d", p.nextID)
	p.nextID++

	o := &types.GatewayOrder{ID: id, Status: "open", Price: req.Price, Amount: req.Amount}
	if req.Type == types.OrderMarket {
		last, ok := p.last[req.Symbol]
		if !ok {
			return types.GatewayOrder{}, fmt.Errorf("paper gateway: no price seen for %s", req.Symbol)
		}
		o.Status = "closed"
		o.Price = last
		o.FilledAmount = req.Amount
		o.AvgFillPrice = last
	}
	p.orders[id] = o
	p.sides[id] = req.Side
	p.symbols[id] = req.Symbol
	return *o, nil
}

func (p *Paper) CancelAllOrders(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.orders {
		if o.Status == "open" && p.symbols[id] == symbol {
			o.Status = "canceled"
		}
	}
	return nil
}

func (p *Paper) FetchOrder(ctx context.Context, symbol, orderID string) (types.GatewayOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return types.GatewayOrder{}, fmt.Errorf("paper gateway: unknown order %s", orderID)
	}
	return *o, nil
}

func (p *Paper) FetchBalance(ctx context.Context) (types.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) FetchL2OrderBook(ctx context.Context, symbol string) (types.L2OrderBook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.last[symbol]
	if !ok {
		return types.L2OrderBook{}, fmt.Errorf("paper gateway: no price seen for %s", symbol)
	}
	// Synthetic one-level book around the last price.
	return types.L2OrderBook{
		Bids: []types.OrderBookLevel{{Price: last * 0.9995, Amount: 1}},
		Asks: []types.OrderBookLevel{{Price: last * 1.0005, Amount: 1}},
	}, nil
}

func (p *Paper) FetchMarketInfo(ctx context.Context, symbol string) (types.MarketInfo, error) {
	return types.MarketInfo{Symbol: symbol, MaxLeverage: 100}, nil
}

func (p *Paper) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }

func (p *Paper) SetMarginMode(ctx context.Context, symbol, mode string) error { return nil }
