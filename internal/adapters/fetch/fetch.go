// Package fetch downloads candidate images
package fetch

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"binvote/internal/platform/backoff"
	"binvote/internal/platform/config"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"
)

const (
	userAgent       = "bin-to-photos/1.0"
	defaultTimeout  = 20 * time.Second
	defaultRedirect = 5
	defaultParallel = 4
	maxImageBytes   = 15 << 20
)

// Options configures the Fetcher
type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	// Parallel caps concurrent downloads in All
	Parallel int
	Retry    backoff.Policy
}

// OptionsFromConfig reads FETCH_TIMEOUT, FETCH_MAX_REDIRECTS and FETCH_PARALLEL under cfg's prefix (BINVOTE_)
func OptionsFromConfig(cfg config.Conf, retry backoff.Policy) Options {
	return Options{
		Timeout:      cfg.MayDuration("FETCH_TIMEOUT", defaultTimeout),
		MaxRedirects: cfg.MayInt("FETCH_MAX_REDIRECTS", defaultRedirect),
		Parallel:     cfg.MayInt("FETCH_PARALLEL", defaultParallel),
		Retry:        retry,
	}
}

// Fetcher is an image downloader with a redirect cap; proxies come from the environment
type Fetcher struct {
	http     *http.Client
	retry    backoff.Policy
	parallel int
	log      logger.Logger
}

// New builds a Fetcher
func New(o Options) *Fetcher {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRedirects < 0 {
		o.MaxRedirects = defaultRedirect
	}
	if o.Parallel <= 0 {
		o.Parallel = defaultParallel
	}
	limit := o.MaxRedirects
	return &Fetcher{
		http: &http.Client{
			Timeout: o.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > limit {
					return perr.InvalidArgf("stopped after %d redirects", limit)
				}
				return nil
			},
		},
		retry:    o.Retry,
		parallel: o.Parallel,
		log:      *logger.Named("fetch"),
	}
}

// Get downloads url. Transport failures and 5xx are retried; other statuses are not.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := backoff.Do(ctx, f.retry, &f.log, "fetch "+url, func(ctx context.Context) error {
		b, err := f.once(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) once(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "fetch %s", url)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.http.Do(req)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
			return nil, err
		}
		if perr.IsTransientNet(err) {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "fetch %s", url)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "fetch %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, perr.Unavailablef("fetch %s: HTTP %d", url, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, perr.NotFoundf("fetch %s: HTTP %d", url, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, perr.InvalidArgf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "fetch %s: read body", url)
	}
	if len(b) > maxImageBytes {
		return nil, perr.InvalidArgf("fetch %s: larger than %d bytes", url, maxImageBytes)
	}
	if len(b) == 0 {
		return nil, perr.InvalidArgf("fetch %s: empty body", url)
	}
	return b, nil
}

// All downloads urls with at most Parallel requests in flight and keeps index alignment;
// failed slots are nil
func (f *Fetcher) All(ctx context.Context, urls []string) [][]byte {
	out := make([][]byte, len(urls))
	sem := make(chan struct{}, f.parallel)
	var wg sync.WaitGroup
	for i, u := range urls {
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			b, err := f.Get(ctx, u)
			if err != nil {
				logger.C(ctx).Warn().Err(err).Str("url", u).Msg("image download failed")
				return
			}
			out[i] = b
		})
	}
	wg.Wait()
	return out
}
