package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	// SourceBlockchain labels errors and metrics of the chain metadata fetcher.
	SourceBlockchain = "blockchain"

	defaultBlockchainEndpoint = "https://api.blockcypher.com/v1/btc/main"
)

var errMissingField = errors.New("required field missing")

// BlockchainOptions parameterise the chain metadata fetcher.
type BlockchainOptions struct {
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
}

// Blockchain fetches chain summaries from a BlockCypher-compatible endpoint.
type Blockchain struct {
	opts     BlockchainOptions
	logger   zerolog.Logger
	client   *http.Client
	endpoint string
}

// NewBlockchain constructs a chain metadata fetcher.
func NewBlockchain(opts BlockchainOptions, logger zerolog.Logger) *Blockchain {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultBlockchainEndpoint
	}
	return &Blockchain{
		opts:     opts,
		logger:   logger.With().Str("component", "blockchain_fetcher").Logger(),
		client:   newHTTPClient(opts.Timeout),
		endpoint: endpoint,
	}
}

// FetchBlockchain retrieves and decodes the current chain summary.
func (b *Blockchain) FetchBlockchain(ctx context.Context) (BlockchainSnapshot, error) {
	b.logger.Debug().Str("endpoint", b.endpoint).Msg("fetching chain summary")

	payload, err := getBody(ctx, b.client, SourceBlockchain, b.endpoint, b.opts.UserAgent)
	if err != nil {
		return BlockchainSnapshot{}, err
	}

	snapshot, err := decodeBlockchain(payload)
	if err != nil {
		return BlockchainSnapshot{}, err
	}

	b.logger.Debug().Uint64("height", snapshot.Height).Str("hash", snapshot.Hash).Msg("chain summary fetched")
	return snapshot, nil
}

type chainResponse struct {
	Name             *string    `json:"name"`
	Height           *uint64    `json:"height"`
	Hash             *string    `json:"hash"`
	Time             *time.Time `json:"time"`
	LatestURL        *string    `json:"latest_url"`
	PreviousHash     *string    `json:"previous_hash"`
	PreviousURL      *string    `json:"previous_url"`
	PeerCount        *int64     `json:"peer_count"`
	UnconfirmedCount *int64     `json:"unconfirmed_count"`
	HighFeePerKB     *int64     `json:"high_fee_per_kb"`
	MediumFeePerKB   *int64     `json:"medium_fee_per_kb"`
	LowFeePerKB      *int64     `json:"low_fee_per_kb"`
	LastForkHeight   *int64     `json:"last_fork_height"`
	LastForkHash     *string    `json:"last_fork_hash"`
}

func decodeBlockchain(payload []byte) (BlockchainSnapshot, error) {
	var res chainResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return BlockchainSnapshot{}, &DecodeError{Source: SourceBlockchain, Err: err}
	}

	missing := func(field string) error {
		return &DecodeError{Source: SourceBlockchain, Field: field, Err: errMissingField}
	}

	switch {
	case res.Name == nil:
		return BlockchainSnapshot{}, missing("name")
	case res.Height == nil:
		return BlockchainSnapshot{}, missing("height")
	case res.Hash == nil:
		return BlockchainSnapshot{}, missing("hash")
	case res.Time == nil:
		return BlockchainSnapshot{}, missing("time")
	case res.LatestURL == nil:
		return BlockchainSnapshot{}, missing("latest_url")
	case res.PreviousHash == nil:
		return BlockchainSnapshot{}, missing("previous_hash")
	case res.PreviousURL == nil:
		return BlockchainSnapshot{}, missing("previous_url")
	case res.PeerCount == nil:
		return BlockchainSnapshot{}, missing("peer_count")
	case res.UnconfirmedCount == nil:
		return BlockchainSnapshot{}, missing("unconfirmed_count")
	case res.HighFeePerKB == nil:
		return BlockchainSnapshot{}, missing("high_fee_per_kb")
	case res.MediumFeePerKB == nil:
		return BlockchainSnapshot{}, missing("medium_fee_per_kb")
	case res.LowFeePerKB == nil:
		return BlockchainSnapshot{}, missing("low_fee_per_kb")
	case res.LastForkHeight == nil:
		return BlockchainSnapshot{}, missing("last_fork_height")
	case res.LastForkHash == nil:
		return BlockchainSnapshot{}, missing("last_fork_hash")
	}

	return BlockchainSnapshot{
		Name:             *res.Name,
		Height:           *res.Height,
		Hash:             *res.Hash,
		Time:             res.Time.UTC(),
		LatestURL:        *res.LatestURL,
		PreviousHash:     *res.PreviousHash,
		PreviousURL:      *res.PreviousURL,
		PeerCount:        *res.PeerCount,
		UnconfirmedCount: *res.UnconfirmedCount,
		HighFeePerKB:     *res.HighFeePerKB,
		MediumFeePerKB:   *res.MediumFeePerKB,
		LowFeePerKB:      *res.LowFeePerKB,
		LastForkHeight:   *res.LastForkHeight,
		LastForkHash:     *res.LastForkHash,
	}, nil
}

var _ BlockchainFetcher = (*Blockchain)(nil)
