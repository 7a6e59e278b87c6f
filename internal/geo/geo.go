// Package geo estimates the station position from its public IP address.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultURL is the ip-api.com JSON endpoint.
const DefaultURL = "http://ip-api.com/json/"

// Locator queries an ip-api.com compatible service.
type Locator struct {
	URL    string
	Client *http.Client
}

// NewLocator returns a Locator for DefaultURL with a short timeout.
func NewLocator() *Locator {
	return &Locator{
		URL:    DefaultURL,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type response struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Lookup returns the latitude and longitude reported for the caller's address.
func (l *Locator) Lookup(ctx context.Context) (float64, float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("querying %s: %w", l.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("querying %s: status %s", l.URL, resp.Status)
	}

	var r response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&r); err != nil {
		return 0, 0, fmt.Errorf("decoding response: %w", err)
	}
	// ip-api omits status on some mirrors; only an explicit failure is an error.
	if r.Status != "" && r.Status != "success" {
		return 0, 0, fmt.Errorf("lookup failed: %s", r.Message)
	}
	return r.Lat, r.Lon, nil
}
