package fetcher

import (
	"context"
	"time"
)

// BlockchainSnapshot is one decoded response of the chain metadata API.
type BlockchainSnapshot struct {
	Name             string
	Height           uint64
	Hash             string
	Time             time.Time
	LatestURL        string
	PreviousHash     string
	PreviousURL      string
	PeerCount        int64
	UnconfirmedCount int64
	HighFeePerKB     int64
	MediumFeePerKB   int64
	LowFeePerKB      int64
	LastForkHeight   int64
	LastForkHash     string
}

// PriceSnapshot is one decoded response of the price API.
type PriceSnapshot struct {
	Asset     string
	Currency  string
	Price     float64
	Volume24h float64
}

// BlockchainFetcher retrieves the latest chain snapshot.
type BlockchainFetcher interface {
	FetchBlockchain(ctx context.Context) (BlockchainSnapshot, error)
}

// PriceFetcher retrieves the latest price snapshot.
type PriceFetcher interface {
	FetchPrice(ctx context.Context) (PriceSnapshot, error)
}
