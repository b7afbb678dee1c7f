// Package binlist looks up card metadata for a BIN
package binlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"binvote/internal/platform/backoff"
	"binvote/internal/platform/config"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"
	pstrings "binvote/internal/platform/strings"
)

const (
	defaultURL     = "https://lingchenxi.top/Bincheck/banklist.php"
	defaultTimeout = 15 * time.Second
)

// Meta is the card metadata the lookup service returns
type Meta struct {
	BIN         string `json:"bin"`
	Brand       string `json:"brand"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Issuer      string `json:"issuer"`
	Country     string `json:"country"`
	IssuerPhone string `json:"issuerPhone"`
	IssuerURL   string `json:"issuerUrl"`
}

// Lines renders the labelled metadata block; blank fields show as ---
func (m Meta) Lines() []string {
	return []string{
		"BIN：" + pstrings.OrDash(m.BIN),
		"品牌：" + pstrings.OrDash(m.Brand),
		"類型：" + pstrings.OrDash(m.Type),
		"卡片等級：" + pstrings.OrDash(m.Category),
		"發卡行：" + pstrings.OrDash(m.Issuer),
		"國家：" + pstrings.OrDash(m.Country),
		"發卡行電話：" + pstrings.OrDash(m.IssuerPhone),
		"發卡行網址：" + pstrings.OrDash(m.IssuerURL),
	}
}

// Text is Lines joined by newlines
func (m Meta) Text() string { return strings.Join(m.Lines(), "\n") }

// Options configures the Client
type Options struct {
	BaseURL string
	Timeout time.Duration
	Retry   backoff.Policy
}

// OptionsFromConfig reads BINLIST_URL under cfg's prefix (BINVOTE_). A trailing "?bin=" is tolerated.
func OptionsFromConfig(cfg config.Conf, retry backoff.Policy) Options {
	return Options{BaseURL: cfg.MayString("BINLIST_URL", defaultURL), Timeout: defaultTimeout, Retry: retry}
}

// Client queries the metadata service
type Client struct {
	base  string
	http  *http.Client
	retry backoff.Policy
	log   logger.Logger
}

// New builds a Client
func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = defaultURL
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	base := o.BaseURL
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	return &Client{base: base, http: &http.Client{Timeout: o.Timeout}, retry: o.Retry, log: *logger.Named("binlist")}
}

// RequestURL is the lookup URL for bin
func (c *Client) RequestURL(bin string) string {
	return c.base + "?" + url.Values{"bin": {bin}}.Encode()
}

// Lookup fetches metadata. Fields the service leaves out stay empty and BIN falls back to the query.
func (c *Client) Lookup(ctx context.Context, bin string) (Meta, error) {
	var m Meta
	err := backoff.Do(ctx, c.retry, &c.log, "binlist "+bin, func(ctx context.Context) error {
		got, err := c.once(ctx, bin)
		if err != nil {
			return err
		}
		m = got
		return nil
	})
	if err != nil {
		return Meta{BIN: bin}, err
	}
	if strings.TrimSpace(m.BIN) == "" {
		m.BIN = bin
	}
	return m, nil
}

func (c *Client) once(ctx context.Context, bin string) (Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(bin), nil)
	if err != nil {
		return Meta{}, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "binlist request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if perr.IsTransientNet(err) {
			return Meta{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "binlist %s", bin)
		}
		return Meta{}, perr.Wrapf(err, perr.ErrorCodeUnknown, "binlist %s", bin)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Meta{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "binlist %s: read body", bin)
	}
	if resp.StatusCode >= 500 {
		return Meta{}, perr.Unavailablef("binlist %s: HTTP %d", bin, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Meta{}, perr.Newf(perr.ErrorCodeUnknown, "binlist %s: HTTP %d: %s", bin, resp.StatusCode, pstrings.Clip(string(body), 200))
	}
	return decode(body)
}

// decode tolerates numbers and nulls where strings are expected
func decode(body []byte) (Meta, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Meta{}, perr.Wrapf(err, perr.ErrorCodeUnknown, "binlist: response is not a json object")
	}
	s := func(k string) string {
		switch v := raw[k].(type) {
		case nil:
			return ""
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strings.TrimSuffix(fmt.Sprintf("%f", v), ".000000")
		default:
			return fmt.Sprint(v)
		}
	}
	return Meta{
		BIN:         s("bin"),
		Brand:       s("brand"),
		Type:        s("type"),
		Category:    s("category"),
		Issuer:      s("issuer"),
		Country:     s("country"),
		IssuerPhone: s("issuerPhone"),
		IssuerURL:   s("issuerUrl"),
	}, nil
}
