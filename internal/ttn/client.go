// Package ttn fetches stored uplinks from the TTN Storage Integration API.
package ttn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Lookback window bounds accepted by the storage API fetch. Windows are
// whole hours between one hour and two days.
const (
	MinWindow = 1 * time.Hour
	MaxWindow = 48 * time.Hour
)

// maxResponseBytes caps how much NDJSON a single fetch will buffer.
const maxResponseBytes = 64 << 20

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New builds a storage API client. baseURL is the cluster address, e.g.
// https://eu1.cloud.thethings.network; apiKey is an application API key
// with storage read rights.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ValidateWindow checks that a lookback duration is a whole number of
// hours inside [MinWindow, MaxWindow].
func ValidateWindow(last time.Duration) error {
	if last < MinWindow || last > MaxWindow {
		return fmt.Errorf("lookback window %s out of range [%s, %s]", last, MinWindow, MaxWindow)
	}
	if last%time.Hour != 0 {
		return fmt.Errorf("lookback window %s must be whole hours", last)
	}
	return nil
}

// FetchUplinks retrieves stored uplink messages for an application over
// the given lookback window and returns the raw JSON-lines body, one
// result envelope per line. The window is validated before any network
// call is made.
func (c *Client) FetchUplinks(ctx context.Context, appID string, last time.Duration) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("ttn client not configured")
	}
	if appID == "" {
		return nil, fmt.Errorf("application id is required")
	}
	if err := ValidateWindow(last); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v3/as/applications/%s/packages/storage/uplink_message?last=%dh",
		c.baseURL, appID, int(last.Hours()))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("storage api status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
