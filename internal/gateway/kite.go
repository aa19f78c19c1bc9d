package gateway

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"stratify/internal/interfaces"
	"stratify/internal/logger"
	"stratify/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// Kite adapts the Zerodha Kite Connect REST client to the engine's
// gateway and candle-fetcher surfaces. One client is shared by all
// executions; the underlying HTTP client is safe for concurrent use.
type Kite struct {
	kc       *kiteconnect.Client
	exchange string

	tokensMu sync.Mutex
	tokens   map[string]int // tradingsymbol -> instrument token
}

var (
	_ interfaces.ExchangeGateway = (*Kite)(nil)
	_ interfaces.CandleFetcher   = (*Kite)(nil)
)

type KiteParams struct {
	APIKey      string
	AccessToken string
	Exchange    string // e.g. "NSE"
}

func NewKite(p KiteParams) *Kite {
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	return &Kite{kc: kc, exchange: p.Exchange, tokens: make(map[string]int)}
}

// tradingSymbol strips the engine's pair/settlement decoration: the
// venue wants the bare instrument name.
func tradingSymbol(symbol string) string {
	if i := strings.IndexAny(symbol, "/:"); i >= 0 {
		return symbol[:i]
	}
	return symbol
}

func (k *Kite) CreateOrder(ctx context.Context, req types.GatewayOrderRequest) (types.GatewayOrder, error) {
	params := kiteconnect.OrderParams{
		Exchange:        k.exchange,
		Tradingsymbol:   tradingSymbol(req.Symbol),
		Product:         kiteconnect.ProductMIS,
		Validity:        kiteconnect.ValidityDay,
		Quantity:        int(math.Round(req.Amount)),
		TransactionType: kiteconnect.TransactionTypeBuy,
		OrderType:       kiteconnect.OrderTypeMarket,
	}
	if req.Side == types.SideSell {
		params.TransactionType = kiteconnect.TransactionTypeSell
	}
	if req.Type == types.OrderLimit {
		params.OrderType = kiteconnect.OrderTypeLimit
		params.Price = req.Price
	}

	resp, err := k.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return types.GatewayOrder{}, fmt.Errorf("kite place order: %w", err)
	}
	return k.FetchOrder(ctx, req.Symbol, resp.OrderID)
}

func (k *Kite) CancelAllOrders(ctx context.Context, symbol string) error {
	orders, err := k.kc.GetOrders()
	if err != nil {
		return fmt.Errorf("kite list orders: %w", err)
	}
	ts := tradingSymbol(symbol)
	for _, o := range orders {
		if o.TradingSymbol != ts || o.Status != "OPEN" {
			continue
		}
		if _, err := k.kc.CancelOrder(kiteconnect.VarietyRegular, o.OrderID, nil); err != nil {
			return fmt.Errorf("kite cancel order %s: %w", o.OrderID, err)
		}
	}
	return nil
}

func (k *Kite) FetchOrder(ctx context.Context, symbol, orderID string) (types.GatewayOrder, error) {
	history, err := k.kc.GetOrderHistory(orderID)
	if err != nil {
		return types.GatewayOrder{}, fmt.Errorf("kite order history %s: %w", orderID, err)
	}
	if len(history) == 0 {
		return types.GatewayOrder{}, fmt.Errorf("kite order %s: no history", orderID)
	}
	latest := history[len(history)-1]
	out := types.GatewayOrder{
		ID:           latest.OrderID,
		Status:       mapStatus(latest.Status),
		Price:        latest.Price,
		Amount:       latest.Quantity,
		FilledAmount: latest.FilledQuantity,
		AvgFillPrice: latest.AveragePrice,
	}
	if !latest.OrderTimestamp.IsZero() {
		out.Timestamp = latest.OrderTimestamp.UnixMilli()
	}
	return out, nil
}

func mapStatus(s string) string {
	switch s {
	case "COMPLETE":
		return "closed"
	case "CANCELLED":
		return "canceled"
	case "REJECTED":
		return "rejected"
	default:
		return "open"
	}
}

func (k *Kite) FetchBalance(ctx context.Context) (types.Balance, error) {
	margins, err := k.kc.GetUserMargins()
	if err != nil {
		return types.Balance{}, fmt.Errorf("kite user margins: %w", err)
	}
	return types.Balance{
		Total:     margins.Equity.Net,
		Available: margins.Equity.Available.LiveBalance,
	}, nil
}

func (k *Kite) FetchL2OrderBook(ctx context.Context, symbol string) (types.L2OrderBook, error) {
	instrument := k.exchange + ":" + tradingSymbol(symbol)
	quotes, err := k.kc.GetQuote(instrument)
	if err != nil {
		return types.L2OrderBook{}, fmt.Errorf("kite quote %s: %w", instrument, err)
	}
	q, ok := quotes[instrument]
	if !ok {
		return types.L2OrderBook{}, fmt.Errorf("kite quote %s: not found", instrument)
	}
	var book types.L2OrderBook
	for _, lvl := range q.Depth.Buy {
		book.Bids = append(book.Bids, types.OrderBookLevel{Price: lvl.Price, Amount: float64(lvl.Quantity)})
	}
	for _, lvl := range q.Depth.Sell {
		book.Asks = append(book.Asks, types.OrderBookLevel{Price: lvl.Price, Amount: float64(lvl.Quantity)})
	}
	return book, nil
}

func (k *Kite) FetchMarketInfo(ctx context.Context, symbol string) (types.MarketInfo, error) {
	// Kite has no per-symbol fee endpoint; intraday equity brokerage is
	// flat, so fees come from execution parameters. MIS leverage cap.
	return types.MarketInfo{Symbol: symbol, MaxLeverage: 5}, nil
}

func (k *Kite) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	logger.Debug(ctx, "leverage is implied by product type on this venue", "symbol", symbol, "leverage", leverage)
	return nil
}

func (k *Kite) SetMarginMode(ctx context.Context, symbol, mode string) error {
	logger.Debug(ctx, "margin mode not configurable on this venue", "symbol", symbol, "mode", mode)
	return nil
}

// Fetch pulls historical OHLCV rows, satisfying interfaces.CandleFetcher.
func (k *Kite) Fetch(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) ([]types.Candle, error) {
	interval, err := kiteInterval(timeframe)
	if err != nil {
		return nil, err
	}
	token, err := k.instrumentToken(symbol)
	if err != nil {
		return nil, err
	}

	rows, err := k.kc.GetHistoricalData(token, interval, start, end, false, false)
	if err != nil {
		return nil, fmt.Errorf("kite historical data %s: %w", symbol, err)
	}
	out := make([]types.Candle, 0, len(rows))
	for _, r := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, types.Candle{
			Ts:    r.Date.UnixMilli(),
			Open:  r.Open,
			High:  r.High,
			Low:   r.Low,
			Close: r.Close,
			Vol:   float64(r.Volume),
		})
	}
	return out, nil
}

func kiteInterval(timeframe string) (string, error) {
	switch timeframe {
	case "1m":
		return "minute", nil
	case "3m":
		return "3minute", nil
	case "5m":
		return "5minute", nil
	case "10m":
		return "10minute", nil
	case "15m":
		return "15minute", nil
	case "30m":
		return "30minute", nil
	case "1h":
		return "60minute", nil
	case "1d":
		return "day", nil
	}
	return "", fmt.Errorf("timeframe %q not supported by venue", timeframe)
}

func (k *Kite) instrumentToken(symbol string) (int, error) {
	ts := tradingSymbol(symbol)

	k.tokensMu.Lock()
	defer k.tokensMu.Unlock()
	if token, ok := k.tokens[ts]; ok {
		return token, nil
	}

	instruments, err := k.kc.GetInstrumentsByExchange(k.exchange)
	if err != nil {
		return 0, fmt.Errorf("kite instruments: %w", err)
	}
	for _, in := range instruments {
		k.tokens[in.Tradingsymbol] = in.InstrumentToken
	}
	token, ok := k.tokens[ts]
	if !ok {
		return 0, fmt.Errorf("instrument %q not listed on %s", ts, k.exchange)
	}
	return token, nil
}
