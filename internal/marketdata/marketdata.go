// Package marketdata defines the contract for remote daily price providers.
package marketdata

import (
	"context"
	"time"
)

// Bar is one provider-reported trading day. Nil fields were null upstream.
type Bar struct {
	Date     time.Time
	Open     *float64
	High     *float64
	Low      *float64
	Close    *float64
	AdjClose *float64
	Volume   *int64
}

// Quote is the last known reference price of a security.
type Quote struct {
	Price  float64
	Volume int64
	Time   time.Time
}

// Fetcher reads daily bars from a market-data provider.
//
// Fetch returns an empty slice, not an error, when the provider has no data
// for the window. Errors are reserved for transport and auth failures.
// Quote returns nil, nil when no reference price is available.
type Fetcher interface {
	Fetch(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
	Quote(ctx context.Context, ticker string) (*Quote, error)
}
