package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// SourcePrice labels errors and metrics of the price fetcher.
	SourcePrice = "price"

	defaultPriceEndpoint = "https://api.coingecko.com/api/v3/simple/price"
	defaultAsset         = "bitcoin"
	defaultCurrency      = "usd"
)

// PriceOptions parameterise the price fetcher.
type PriceOptions struct {
	Endpoint  string
	Asset     string
	Currency  string
	Timeout   time.Duration
	UserAgent string
}

// Price fetches spot price and 24h volume from a CoinGecko-compatible simple/price endpoint.
type Price struct {
	opts     PriceOptions
	logger   zerolog.Logger
	client   *http.Client
	endpoint string
	asset    string
	currency string
}

// NewPrice constructs a price fetcher.
func NewPrice(opts PriceOptions, logger zerolog.Logger) *Price {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultPriceEndpoint
	}
	asset := strings.ToLower(strings.TrimSpace(opts.Asset))
	if asset == "" {
		asset = defaultAsset
	}
	currency := strings.ToLower(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	return &Price{
		opts:     opts,
		logger:   logger.With().Str("component", "price_fetcher").Logger(),
		client:   newHTTPClient(opts.Timeout),
		endpoint: buildPriceURL(endpoint, asset, currency),
		asset:    asset,
		currency: currency,
	}
}

// buildPriceURL fills in the simple/price query unless the endpoint already carries one.
func buildPriceURL(endpoint, asset, currency string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.RawQuery != "" {
		return endpoint
	}
	q := url.Values{}
	q.Set("ids", asset)
	q.Set("vs_currencies", currency)
	q.Set("include_24hr_vol", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPrice retrieves and decodes the current price and 24h volume.
func (p *Price) FetchPrice(ctx context.Context) (PriceSnapshot, error) {
	p.logger.Debug().Str("endpoint", p.endpoint).Msg("fetching price")

	payload, err := getBody(ctx, p.client, SourcePrice, p.endpoint, p.opts.UserAgent)
	if err != nil {
		return PriceSnapshot{}, err
	}

	snapshot, err := decodePrice(payload, p.asset, p.currency)
	if err != nil {
		return PriceSnapshot{}, err
	}

	p.logger.Debug().Float64("price", snapshot.Price).Float64("volume_24h", snapshot.Volume24h).Msg("price fetched")
	return snapshot, nil
}

func decodePrice(payload []byte, asset, currency string) (PriceSnapshot, error) {
	var res map[string]map[string]*float64
	if err := json.Unmarshal(payload, &res); err != nil {
		return PriceSnapshot{}, &DecodeError{Source: SourcePrice, Err: err}
	}

	quote, ok := res[asset]
	if !ok || quote == nil {
		return PriceSnapshot{}, &DecodeError{Source: SourcePrice, Field: asset, Err: errMissingField}
	}

	volumeKey := fmt.Sprintf("%s_24h_vol", currency)
	price := quote[currency]
	if price == nil {
		return PriceSnapshot{}, &DecodeError{Source: SourcePrice, Field: asset + "." + currency, Err: errMissingField}
	}
	volume := quote[volumeKey]
	if volume == nil {
		return PriceSnapshot{}, &DecodeError{Source: SourcePrice, Field: asset + "." + volumeKey, Err: errMissingField}
	}

	return PriceSnapshot{
		Asset:     asset,
		Currency:  currency,
		Price:     *price,
		Volume24h: *volume,
	}, nil
}

var _ PriceFetcher = (*Price)(nil)
