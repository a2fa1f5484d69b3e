package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CookieRefresher renews the access token by calling the refresh endpoint.
// The refresh token travels as a cookie, so HTTPClient must carry a cookie
// jar that holds it.
type CookieRefresher struct {
	BaseURL    string
	Path       string
	HTTPClient *http.Client
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

func (r *CookieRefresher) Refresh(ctx context.Context) (string, error) {
	path := r.Path
	if path == "" {
		path = DefaultRefreshPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(r.BaseURL, "/")+path, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	hc := r.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("refresh: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("refresh: decode response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("refresh: empty access token")
	}
	return out.AccessToken, nil
}
