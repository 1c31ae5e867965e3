package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceFetchSuccess(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{
			"ids":              r.URL.Query().Get("ids"),
			"vs_currencies":    r.URL.Query().Get("vs_currencies"),
			"include_24hr_vol": r.URL.Query().Get("include_24hr_vol"),
		}
		_, _ = w.Write([]byte(`{"bitcoin": {"usd": 65000.5, "usd_24h_vol": 3.2e10}}`))
	}))
	defer srv.Close()

	p := NewPrice(PriceOptions{Endpoint: srv.URL}, testLogger())
	snap, err := p.FetchPrice(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 65000.5, snap.Price)
	assert.Equal(t, 3.2e10, snap.Volume24h)
	assert.Equal(t, "bitcoin", snap.Asset)
	assert.Equal(t, "usd", snap.Currency)
	assert.Equal(t, map[string]string{"ids": "bitcoin", "vs_currencies": "usd", "include_24hr_vol": "true"}, query)
}

func TestPriceFetchOtherCurrency(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{"bitcoin": {"eur": 59000, "eur_24h_vol": 1.5e10}}`)

	p := NewPrice(PriceOptions{Endpoint: srv.URL, Currency: "EUR"}, testLogger())
	snap, err := p.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 59000.0, snap.Price)
	assert.Equal(t, 1.5e10, snap.Volume24h)
}

func TestPriceFetchKeepsExplicitQuery(t *testing.T) {
	assert.Equal(t, "http://x/simple/price?ids=ethereum", buildPriceURL("http://x/simple/price?ids=ethereum", "bitcoin", "usd"))
	assert.Equal(t,
		"http://x/simple/price?ids=bitcoin&include_24hr_vol=true&vs_currencies=usd",
		buildPriceURL("http://x/simple/price", "bitcoin", "usd"))
}

func TestPriceFetchDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "asset missing", body: `{}`, field: "bitcoin"},
		{name: "price missing", body: `{"bitcoin": {"usd_24h_vol": 1}}`, field: "bitcoin.usd"},
		{name: "volume missing", body: `{"bitcoin": {"usd": 1}}`, field: "bitcoin.usd_24h_vol"},
		{name: "price null", body: `{"bitcoin": {"usd": null, "usd_24h_vol": 1}}`, field: "bitcoin.usd"},
		{name: "not json", body: `<html>maintenance</html>`},
		{name: "wrong shape", body: `{"bitcoin": 65000}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := serveJSON(t, http.StatusOK, tc.body)
			p := NewPrice(PriceOptions{Endpoint: srv.URL}, testLogger())

			_, err := p.FetchPrice(context.Background())
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, SourcePrice, decodeErr.Source)
			assert.Equal(t, tc.field, decodeErr.Field)
		})
	}
}

func TestPriceFetchHTTPError(t *testing.T) {
	srv := serveJSON(t, http.StatusTooManyRequests, `{"status": {"error_code": 429, "error_message": "You've exceeded the Rate Limit."}}`)

	p := NewPrice(PriceOptions{Endpoint: srv.URL}, testLogger())
	_, err := p.FetchPrice(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, SourcePrice, netErr.Source)
	assert.Contains(t, err.Error(), "Rate Limit")
}
