package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bitcoin-collector/internal/version"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorPayload = 512
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func userAgent(ua string) string {
	if ua = strings.TrimSpace(ua); ua != "" {
		return ua
	}
	return "bitcoin-collector/" + version.Version
}

// getBody issues a GET and returns the body of a 2xx response.
func getBody(ctx context.Context, client *http.Client, source, endpoint, ua string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &NetworkError{Source: source, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent(ua))

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Source: source, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{Source: source, StatusCode: resp.StatusCode, Err: parseHTTPError(payload)}
	}
	return payload, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

// parseHTTPError understands BlockCypher's {"error":…} and CoinGecko's {"status":{…}} bodies.
func parseHTTPError(payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		if apiErr.Status.ErrorMessage != "" {
			return errors.New(apiErr.Status.ErrorMessage)
		}
	}
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return errors.New("empty response body")
	}
	if len(text) > maxErrorPayload {
		text = text[:maxErrorPayload] + "…"
	}
	return errors.New(text)
}
