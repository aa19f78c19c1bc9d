package interfaces

import (
	"context"

	"stratify/internal/types"
)

// MarketInfoCache is a short-lived cache of venue fee/leverage data so
// repeated start requests do not hammer the venue. A miss is (nil, nil).
type MarketInfoCache interface {
	CacheMarketInfo(ctx context.Context, exchange string, info types.MarketInfo) error
	GetMarketInfo(ctx context.Context, exchange, symbol string) (*types.MarketInfo, error)
}
