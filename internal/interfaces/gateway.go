package interfaces

import (
	"context"

	"stratify/internal/types"
)

// ExchangeGateway is the narrow surface a live execution needs from a
// real exchange connection. It must be safe for concurrent use by
// independent executions.
type ExchangeGateway interface {
	CreateOrder(ctx context.Context, req types.GatewayOrderRequest) (types.GatewayOrder, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	FetchOrder(ctx context.Context, symbol, orderID string) (types.GatewayOrder, error)
	FetchBalance(ctx context.Context) (types.Balance, error)
	FetchL2OrderBook(ctx context.Context, symbol string) (types.L2OrderBook, error)
	FetchMarketInfo(ctx context.Context, symbol string) (types.MarketInfo, error)

	// Best-effort margin configuration. Callers ignore failures.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol, mode string) error
}
