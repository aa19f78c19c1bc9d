package gateway

import (
	"context"
	"testing"

	"stratify/internal/types"
)

func TestPaperMarketOrderFillsAtLastPrice(t *testing.T) {
	p := NewPaper(1000)
	ctx := context.Background()

	if _, err := p.CreateOrder(ctx, types.GatewayOrderRequest{
		Symbol: "X", Type: types.OrderMarket, Side: types.SideBuy, Amount: 2,
	}); err == nil {
		t.Fatal("market order before any price must fail")
	}

	p.Push("X", types.Candle{Ts: 1, Close: 100, High: 101, Low: 99})
	o, err := p.CreateOrder(ctx, types.GatewayOrderRequest{
		Symbol: "X", Type: types.OrderMarket, Side: types.SideBuy, Amount: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !o.Closed() || o.AvgFillPrice != 100 || o.FilledAmount != 2 {
		t.Errorf("order: got %+v", o)
	}
}

func TestPaperLimitOrderRestsUntilCrossed(t *testing.T) {
	p := NewPaper(1000)
	ctx := context.Background()
	p.Push("X", types.Candle{Ts: 1, Close: 100, High: 101, Low: 99})

	o, err := p.CreateOrder(ctx, types.GatewayOrderRequest{
		Symbol: "X", Type: types.OrderLimit, Side: types.SideBuy, Amount: 1, Price: 95,
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.Closed() {
		t.Fatal("limit above the market must rest")
	}

	// Range stays above the limit: still resting.
	p.Push("X", types.Candle{Ts: 2, Close: 98, High: 100, Low: 96})
	got, _ := p.FetchOrder(ctx, "X", o.ID)
	if got.Closed() {
		t.Fatal("uncrossed limit must stay open")
	}

	// Low pierces the limit: filled at the limit price.
	p.Push("X", types.Candle{Ts: 3, Close: 96, High: 99, Low: 94})
	got, _ = p.FetchOrder(ctx, "X", o.ID)
	if !got.Closed() || got.AvgFillPrice != 95 || got.Timestamp != 3 {
		t.Errorf("order: got %+v", got)
	}
}

func TestPaperCancelAllScopedToSymbol(t *testing.T) {
	p := NewPaper(1000)
	ctx := context.Background()
	p.Push("X", types.Candle{Ts: 1, Close: 100})
	p.Push("Y", types.Candle{Ts: 1, Close: 50})

	ox, _ := p.CreateOrder(ctx, types.GatewayOrderRequest{
		Symbol: "X", Type: types.OrderLimit, Side: types.SideBuy, Amount: 1, Price: 90,
	})
	oy, _ := p.CreateOrder(ctx, types.GatewayOrderRequest{
		Symbol: "Y", Type: types.OrderLimit, Side: types.SideBuy, Amount: 1, Price: 40,
	})

	if err := p.CancelAllOrders(ctx, "X"); err != nil {
		t.Fatal(err)
	}
	gx, _ := p.FetchOrder(ctx, "X", ox.ID)
	gy, _ := p.FetchOrder(ctx, "Y", oy.ID)
	if gx.Status != "canceled" {
		t.Errorf("X order: got status %q", gx.Status)
	}
	if gy.Status != "open" {
		t.Errorf("Y order: got status %q", gy.Status)
	}
}
