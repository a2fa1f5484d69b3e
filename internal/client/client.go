// Package client sends authenticated API requests and renews the access
// token transparently when the server rejects it.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"edugen/internal/infra"
)

// ErrSessionExpired is returned when the access token could not be renewed.
// The caller has to sign in again.
var ErrSessionExpired = errors.New("session expired")

// DefaultRefreshPath is the endpoint that renews access tokens.
const DefaultRefreshPath = "/v1/auth/refresh"

// Refresher obtains a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Session    *Session
	Refresher  Refresher
	// OnSessionExpired runs once each time a session generation is
	// invalidated.
	OnSessionExpired func()
	// RefreshPath requests are never intercepted.
	RefreshPath string
	Logger      *infra.Logger
}

// Client wraps an http.Client with bearer authentication and a single
// shared refresh per credential generation.
type Client struct {
	http        *http.Client
	session     *Session
	refresher   Refresher
	onExpired   func()
	refreshPath string
	logger      *infra.Logger
	group       singleflight.Group
}

// New returns a Client. A nil Refresher turns every 401 into
// ErrSessionExpired.
func New(opts Options) *Client {
	c := &Client{
		http:        opts.HTTPClient,
		session:     opts.Session,
		refresher:   opts.Refresher,
		onExpired:   opts.OnSessionExpired,
		refreshPath: opts.RefreshPath,
		logger:      opts.Logger,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.session == nil {
		c.session = NewSession("")
	}
	if c.refreshPath == "" {
		c.refreshPath = DefaultRefreshPath
	}
	if c.logger == nil {
		l := zerolog.New(io.Discard)
		c.logger = &l
	}
	return c
}

// Session returns the session shared by the client's requests.
func (c *Client) Session() *Session { return c.session }

// Do sends req with the current access token. On 401 it waits for the one
// shared refresh and retries once. Other failures pass through untouched.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}
	token, gen, expired := c.session.snapshot()
	resp, err := c.send(req, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || c.isRefresh(req) {
		return resp, err
	}
	drain(resp)

	if expired {
		return nil, ErrSessionExpired
	}
	fresh, err := c.refresh(req.Context(), gen)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(req, fresh.token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		// Only the credential that was just rejected may be cleared; a
		// sign-in that landed during the retry stays.
		c.expire(fresh.gen)
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// credential is an access token and the session generation it belongs to.
type credential struct {
	token string
	gen   uint64
}

// refresh returns a credential newer than generation gen, starting at most
// one Refresher call per generation.
func (c *Client) refresh(ctx context.Context, gen uint64) (credential, error) {
	if c.refresher == nil {
		c.expire(gen)
		return credential{}, ErrSessionExpired
	}
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		if token, next, ok := c.session.current(gen); ok {
			return credential{token: token, gen: next}, nil
		}
		if c.session.Expired() {
			return nil, ErrSessionExpired
		}
		// One caller giving up must not fail the others waiting on this
		// refresh.
		token, err := c.refresher.Refresh(context.WithoutCancel(ctx))
		if err != nil {
			c.logger.Warn().Err(err).Uint64("generation", gen).Msg("client: token refresh failed")
			c.expire(gen)
			return nil, err
		}
		token, next, ok := c.session.rotate(gen, token)
		if !ok {
			return nil, ErrSessionExpired
		}
		c.logger.Debug().Uint64("generation", next).Msg("client: token refreshed")
		return credential{token: token, gen: next}, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrSessionExpired) {
				return credential{}, res.Err
			}
			return credential{}, fmt.Errorf("%w: %w", ErrSessionExpired, res.Err)
		}
		return res.Val.(credential), nil
	case <-ctx.Done():
		return credential{}, ctx.Err()
	}
}

func (c *Client) expire(gen uint64) {
	if !c.session.clear(gen) {
		return
	}
	c.logger.Info().Uint64("generation", gen).Msg("client: session expired")
	if c.onExpired != nil {
		c.onExpired()
	}
}

func (c *Client) isRefresh(req *http.Request) bool {
	return strings.HasSuffix(req.URL.Path, c.refreshPath)
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("client: rewind body: %w", err)
		}
		out.Body = body
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(out)
}

// bufferBody makes req's body replayable.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("client: buffer body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
