package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"edugen/internal/client"
)

// connection holds the flags every server-facing command shares.
type connection struct {
	server       string
	accessToken  string
	refreshToken string
	verbose      bool
}

func (c *connection) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.server, "server", envOr("EDUGEN_SERVER", "http://localhost:8080"), "API base URL")
	flags.StringVar(&c.accessToken, "token", os.Getenv("EDUGEN_TOKEN"), "access token sent as a bearer credential")
	flags.StringVar(&c.refreshToken, "refresh-token", os.Getenv("EDUGEN_REFRESH_TOKEN"), "refresh token used when the access token is rejected")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log client activity to stderr")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// apiClient wraps client.Client with the base URL and error decoding.
type apiClient struct {
	base string
	c    *client.Client
}

func (c *connection) client(stderr io.Writer) (*apiClient, error) {
	base, err := url.Parse(strings.TrimRight(c.server, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid --server %q", c.server)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Jar: jar}

	logger := zerolog.New(io.Discard)
	if c.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr}).With().Timestamp().Logger()
	}
	opts := client.Options{
		HTTPClient: httpClient,
		Session:    client.NewSession(c.accessToken),
		Logger:     &logger,
		OnSessionExpired: func() {
			fmt.Fprintln(stderr, "session expired, sign in again")
		},
	}
	if c.refreshToken != "" {
		authURL := *base
		authURL.Path = "/v1/auth"
		jar.SetCookies(&authURL, []*http.Cookie{{Name: "refresh_token", Value: c.refreshToken, Path: "/v1/auth"}})
		opts.Refresher = &client.CookieRefresher{BaseURL: base.String(), HTTPClient: httpClient}
	}
	return &apiClient{base: base.String(), c: client.New(opts)}, nil
}

func (a *apiClient) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return a.c.Do(req)
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.Status)
}

// checkStatus turns a non-2xx response into an *apiError and closes it.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &apiError{Status: resp.StatusCode, Code: body.Error.Code, Message: body.Error.Message}
}

func decodeBody(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
