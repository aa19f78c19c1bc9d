package types

// GatewayOrderRequest is what the engine hands to the exchange gateway
// when a live execution places a real order.
type GatewayOrderRequest struct {
	Symbol string
	Type   OrderType
	Side   Side
	Amount float64
	Price  float64 // limit orders only
}

// GatewayOrder is the exchange-reported state of an order. For live
// fills its ID, price and timestamp replace the synthetic ones.
type GatewayOrder struct {
	ID           string
	Status       string // open, closed, canceled, rejected
	Price        float64
	Amount       float64
	FilledAmount float64
	AvgFillPrice float64
	Timestamp    int64
}

// Closed reports whether the exchange considers the order fully settled.
func (o GatewayOrder) Closed() bool { return o.Status == "closed" }

// Balance is the account balance snapshot checked before a live
// execution is allowed to start.
type Balance struct {
	Total     float64
	Available float64
}

// OrderBookLevel is one price level of an L2 order book.
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// L2OrderBook is a depth snapshot, best levels first.
type L2OrderBook struct {
	Bids []OrderBookLevel
	Asks []OrderBookLevel
}
