package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPLookup queries a tracking API at GET {BaseURL}/containers/{id}
type HTTPLookup struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

var _ Lookup = &HTTPLookup{}

func NewHTTPLookup(baseURL, apiKey string, timeout time.Duration) *HTTPLookup {
	return &HTTPLookup{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type snapshotResponse struct {
	Data Snapshot `json:"data"`
}

func (h *HTTPLookup) Snapshot(ctx context.Context, identifier string) (Snapshot, error) {
	endpoint := fmt.Sprintf("%s/containers/%s", h.BaseURL, url.PathEscape(identifier))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("tracking request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Snapshot{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Snapshot{}, fmt.Errorf("tracking api error (status %d): %s", resp.StatusCode, string(body))
	}

	var out snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode tracking response: %w", err)
	}
	if out.Data.Identifier == "" {
		out.Data.Identifier = strings.ToUpper(identifier)
	}
	return out.Data, nil
}
