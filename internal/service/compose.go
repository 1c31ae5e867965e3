package service

import (
	"math"

	"bitcoin-collector/internal/fetcher"
	"bitcoin-collector/internal/storage"
)

// Compose flattens a chain snapshot and a price snapshot into one row.
// Heights above math.MaxInt64 saturate, since the column is a signed BIGINT.
func Compose(chain fetcher.BlockchainSnapshot, quote fetcher.PriceSnapshot) storage.Observation {
	price, volume := quote.Price, quote.Volume24h
	return storage.Observation{
		Name:             chain.Name,
		Height:           heightToInt64(chain.Height),
		Hash:             chain.Hash,
		Time:             chain.Time.UTC(),
		LatestURL:        chain.LatestURL,
		PreviousHash:     chain.PreviousHash,
		PreviousURL:      chain.PreviousURL,
		PeerCount:        chain.PeerCount,
		UnconfirmedCount: chain.UnconfirmedCount,
		HighFeePerKB:     chain.HighFeePerKB,
		MediumFeePerKB:   chain.MediumFeePerKB,
		LowFeePerKB:      chain.LowFeePerKB,
		LastForkHeight:   chain.LastForkHeight,
		LastForkHash:     chain.LastForkHash,
		Price:            &price,
		Volume24h:        &volume,
	}
}

func heightToInt64(h uint64) int64 {
	if h > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(h)
}
