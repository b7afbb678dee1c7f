// Package github is the issue tracker adapter: list open issues, comment, close
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"binvote/internal/platform/backoff"
	"binvote/internal/platform/config"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"
)

const (
	baseURLDefault = "https://api.github.com"
	defaultTimeout = 15 * time.Second
	defaultUA      = "binvote/1.0"
	defaultRetries = 3
	perPage        = 100
	maxRateWait    = 60 * time.Second
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Owner     string
	Repo      string
	Token     string

	// Attempts bounds retries of transient failures (transport errors, 5xx, 429)
	Attempts  int
	RetryBase time.Duration
}

// Client is a small GitHub REST v3 client scoped to one repository
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// NewClient applies defaults and builds the client
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = defaultRetries
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("github"),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Owner returns the configured repository owner
func (c *Client) Owner() string { return c.opts.Owner }

// Repo returns the configured repository name
func (c *Client) Repo() string { return c.opts.Repo }

// Do sends one request, retrying transient failures, and returns the response for 2xx.
// Non-retryable statuses come back as classified project errors with a short body tail.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "github encode body")
		}
		payload = b
	}

	var out *http.Response
	attempt := 0
	err := backoff.Do(ctx, c.policy(), &c.log, method+" "+path, func(ctx context.Context) error {
		attempt++
		resp, err := c.once(ctx, method, path, payload, attempt)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) policy() backoff.Policy {
	return backoff.Policy{Attempts: c.opts.Attempts, Delay: c.opts.RetryBase, MaxDelay: 10 * time.Second}
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, attempt int) (*http.Response, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, rdr)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "github new request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		if perr.IsTransientNet(err) {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "github %s %s", method, path)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "github %s %s", method, path)
	}

	rem, reset, retryAfter := parseRateHeaders(resp.Header)
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("attempt", attempt).
		Dur("latency", c.now().Sub(start)).
		Int("rate_remaining", rem).
		Msg("github http response")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && (rem == 0 || retryAfter > 0):
		_ = drainAndClose(resp.Body)
		if wait := computeWait(rem, reset, retryAfter, c.now()); wait > 0 && wait <= maxRateWait {
			c.log.Warn().Dur("sleep", wait).Msg("github rate limited, backing off")
			c.sleep(ctx, wait)
		}
		return nil, perr.Newf(perr.ErrorCodeTooManyRequests, "github rate limited on %s", path)
	case resp.StatusCode >= 500:
		_ = drainAndClose(resp.Body)
		return nil, perr.Newf(perr.ErrorCodeUnavailable, "github server error %d on %s", resp.StatusCode, path)
	default:
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, perr.Newf(statusCode(resp.StatusCode), "github status %d on %s: %s", resp.StatusCode, path, strings.TrimSpace(string(tail)))
	}
}

func statusCode(status int) perr.ErrorCode {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return perr.ErrorCodeUnauthorized
	case http.StatusNotFound, http.StatusGone:
		return perr.ErrorCodeNotFound
	case http.StatusUnprocessableEntity:
		return perr.ErrorCodeInvalidArgument
	default:
		return perr.ErrorCodeUnknown
	}
}

func (c *Client) decode(resp *http.Response, path string, dst any) error {
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Error().Err(cerr).Str("path", path).Msg("github close body failed")
		}
	}()
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(dst); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "github decode %s", path)
	}
	return nil
}

func (c *Client) repoPath(format string, a ...any) string {
	return fmt.Sprintf("/repos/%s/%s", c.opts.Owner, c.opts.Repo) + fmt.Sprintf(format, a...)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// OptionsFromConfig reads OWNER, REPO, TOKEN, API and TIMEOUT under cfg's prefix (BINVOTE_GITHUB_)
func OptionsFromConfig(cfg config.Conf, attempts int) Options {
	return Options{
		BaseURL:  cfg.MayString("API", baseURLDefault),
		Owner:    cfg.MustString("OWNER"),
		Repo:     cfg.MustString("REPO"),
		Token:    cfg.MayString("TOKEN", ""),
		Timeout:  cfg.MayDuration("TIMEOUT", defaultTimeout),
		Attempts: attempts,
	}
}
