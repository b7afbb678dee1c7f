// Package telegram is the poll bot adapter over the Telegram Bot API
package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	"binvote/internal/platform/backoff"
	"binvote/internal/platform/config"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	defaultUpdateTimeout = 25
	maxFloodWait         = 30 * time.Second
)

// Options configures the Bot
type Options struct {
	Token string
	// ChatIDs receive polls and inline approvals
	ChatIDs []int64
	// AdminChatIDs receive notifications; defaults to ChatIDs
	AdminChatIDs []int64
	// UpdateTimeout is the long poll wait in seconds
	UpdateTimeout int
	Debug         bool
	// APIEndpoint is a format string with the token and method, tgbotapi.APIEndpoint by default
	APIEndpoint string
	Retry       backoff.Policy
}

// OptionsFromConfig reads TOKEN, CHAT_IDS, ADMIN_CHAT_IDS, UPDATE_TIMEOUT and DEBUG under cfg's prefix (BINVOTE_TELEGRAM_)
func OptionsFromConfig(cfg config.Conf, retry backoff.Policy) Options {
	chats := cfg.MayInt64CSV("CHAT_IDS", nil)
	return Options{
		Token:         cfg.MayString("TOKEN", ""),
		ChatIDs:       chats,
		AdminChatIDs:  cfg.MayInt64CSV("ADMIN_CHAT_IDS", chats),
		UpdateTimeout: cfg.MayInt("UPDATE_TIMEOUT", defaultUpdateTimeout),
		Debug:         cfg.MayBool("DEBUG", false),
		APIEndpoint:   cfg.MayString("API", tgbotapi.APIEndpoint),
		Retry:         retry,
	}
}

// Enabled reports whether a token and at least one chat are configured
func (o Options) Enabled() bool { return o.Token != "" && len(o.ChatIDs) > 0 }

// Bot wraps tgbotapi with context checks, retries and error classification
type Bot struct {
	api     *tgbotapi.BotAPI
	opts    Options
	log     logger.Logger
	offset  int
	waitFor func(context.Context, time.Duration)
}

// New connects to the Bot API and verifies the token with getMe
func New(o Options) (*Bot, error) {
	if o.Token == "" {
		return nil, perr.InvalidArgf("telegram token is empty")
	}
	if o.UpdateTimeout <= 0 {
		o.UpdateTimeout = defaultUpdateTimeout
	}
	if o.APIEndpoint == "" {
		o.APIEndpoint = tgbotapi.APIEndpoint
	}
	if len(o.AdminChatIDs) == 0 {
		o.AdminChatIDs = o.ChatIDs
	}
	// long polls hold the connection for UpdateTimeout seconds
	client := &http.Client{Timeout: time.Duration(o.UpdateTimeout)*time.Second + 10*time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(o.Token, o.APIEndpoint, client)
	if err != nil {
		return nil, classify("getMe", err)
	}
	api.Debug = o.Debug

	b := &Bot{api: api, opts: o, log: *logger.Named("telegram"), waitFor: sleepCtx}
	b.log.Info().Str("username", api.Self.UserName).Ints64("chats", o.ChatIDs).Msg("telegram bot ready")
	return b, nil
}

// ChatIDs are the chats polls go to
func (b *Bot) ChatIDs() []int64 { return b.opts.ChatIDs }

// call runs one Bot API request under the retry policy
func (b *Bot) call(ctx context.Context, op string, fn func() error) error {
	return backoff.Do(ctx, b.opts.Retry, &b.log, "telegram "+op, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		cerr := classify(op, err)
		if wait := floodWait(err); wait > 0 {
			b.log.Warn().Dur("sleep", wait).Str("op", op).Msg("telegram flood control, backing off")
			b.waitFor(ctx, wait)
		}
		return cerr
	})
}

// classify maps Bot API and transport failures onto project codes
func classify(op string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		code := perr.ErrorCodeUnknown
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0:
			code = perr.ErrorCodeTooManyRequests
		case apiErr.Code >= 500:
			code = perr.ErrorCodeUnavailable
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			code = perr.ErrorCodeUnauthorized
		case apiErr.Code == http.StatusBadRequest:
			code = perr.ErrorCodeInvalidArgument
		}
		return perr.Wrapf(err, code, "telegram %s: %d", op, apiErr.Code)
	}
	if perr.IsTransientNet(err) {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "telegram %s", op)
	}
	return perr.Wrapf(err, perr.ErrorCodeUnknown, "telegram %s", op)
}

func floodWait(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
		return 0
	}
	d := time.Duration(apiErr.RetryAfter) * time.Second
	if d > maxFloodWait {
		return 0
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
