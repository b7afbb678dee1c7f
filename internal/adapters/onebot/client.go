// Package onebot is the group chat adapter: a OneBot v11 forward websocket client
package onebot

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"binvote/internal/platform/backoff"
	"binvote/internal/platform/config"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultCallTimeout = 15 * time.Second
	defaultReconnect   = 2 * time.Second
	eventBacklog       = 64
)

// Options configures the Client
type Options struct {
	URL         string
	AccessToken string
	// GroupIDs receive vote prompts
	GroupIDs []int64
	// AdminGroupIDs receive notifications; defaults to GroupIDs
	AdminGroupIDs []int64
	CallTimeout   time.Duration
	Reconnect     time.Duration
	// Retry applies to notification sends only
	Retry backoff.Policy
}

// OptionsFromConfig reads WS_URL, ACCESS_TOKEN, GROUP_IDS, ADMIN_GROUP_IDS and CALL_TIMEOUT under cfg's prefix (BINVOTE_ONEBOT_)
func OptionsFromConfig(cfg config.Conf, retry backoff.Policy) Options {
	groups := cfg.MayInt64CSV("GROUP_IDS", nil)
	return Options{
		URL:           cfg.MayString("WS_URL", ""),
		AccessToken:   cfg.MayString("ACCESS_TOKEN", ""),
		GroupIDs:      groups,
		AdminGroupIDs: cfg.MayInt64CSV("ADMIN_GROUP_IDS", groups),
		CallTimeout:   cfg.MayDuration("CALL_TIMEOUT", defaultCallTimeout),
		Reconnect:     cfg.MayDuration("RECONNECT", defaultReconnect),
		Retry:         retry,
	}
}

// Enabled reports whether a websocket URL is configured
func (o Options) Enabled() bool { return o.URL != "" }

// Handler consumes inbound chat messages
type Handler func(ctx context.Context, in Inbound)

type request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

type response struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Echo    string          `json:"echo"`
}

// Client keeps one websocket open, correlates API calls by echo and feeds events to a Handler
type Client struct {
	opts   Options
	log    logger.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan response

	writeMu sync.Mutex
}

// New builds a Client; Run connects it
func New(o Options) *Client {
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaultCallTimeout
	}
	if o.Reconnect <= 0 {
		o.Reconnect = defaultReconnect
	}
	if len(o.AdminGroupIDs) == 0 {
		o.AdminGroupIDs = o.GroupIDs
	}
	return &Client{
		opts:    o,
		log:     *logger.Named("onebot"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending: map[string]chan response{},
	}
}

// GroupIDs are the groups vote prompts go to
func (c *Client) GroupIDs() []int64 { return c.opts.GroupIDs }

// Connected reports whether the socket is currently up
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run dials, reads until the socket drops and redials after the reconnect delay, until ctx ends
func (c *Client) Run(ctx context.Context, h Handler) error {
	for {
		if err := c.session(ctx, h); err != nil && ctx.Err() == nil {
			c.log.Warn().Err(err).Dur("retry_in", c.opts.Reconnect).Msg("onebot connection lost")
		}
		select {
		case <-ctx.Done():
			c.log.Info().Msg("onebot client stopped")
			return nil
		case <-time.After(c.opts.Reconnect):
		}
	}
}

func (c *Client) session(ctx context.Context, h Handler) error {
	hdr := http.Header{}
	if tok := strings.TrimSpace(c.opts.AccessToken); tok != "" {
		hdr.Set("Authorization", "Bearer "+tok)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, hdr)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "onebot dial %s", c.opts.URL)
	}
	c.setConn(conn)
	c.log.Info().Str("url", c.opts.URL).Msg("onebot connected")
	defer c.dropConn(conn)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// one consumer keeps events in arrival order; the reader never blocks on it
	// because it must stay free to deliver the replies of calls the handler makes
	events := make(chan Inbound, eventBacklog)
	defer close(events)
	go func() {
		for in := range events {
			h(ctx, in)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnavailable, "onebot read")
		}
		if in, ok := c.route(raw); ok && h != nil {
			c.enqueue(events, in)
		}
	}
}

// enqueue hands an event to the consumer, dropping it when the backlog is full
func (c *Client) enqueue(events chan<- Inbound, in Inbound) bool {
	select {
	case events <- in:
		return true
	default:
		c.log.Warn().Int64("group_id", in.GroupID).Str("message_id", in.MessageID).
			Msg("onebot event dropped, handler backlog full")
		return false
	}
}

// route resolves API responses and decodes the message events a handler acts on:
// replies in a group and BIN queries
func (c *Client) route(raw []byte) (Inbound, bool) {
	var head struct {
		Echo     string `json:"echo"`
		PostType string `json:"post_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		c.log.Debug().Err(err).Msg("onebot frame is not json")
		return Inbound{}, false
	}
	if head.Echo != "" {
		var resp response
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.log.Debug().Err(err).Msg("onebot response undecodable")
			return Inbound{}, false
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.Echo]
		delete(c.pending, resp.Echo)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
		return Inbound{}, false
	}
	if head.PostType != "message" {
		return Inbound{}, false
	}
	in, err := Decode(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("onebot message discarded")
		return Inbound{}, false
	}
	if !in.relevant() {
		return Inbound{}, false
	}
	return in, true
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// dropConn fails every call still waiting on conn
func (c *Client) dropConn(conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for echo, ch := range c.pending {
		close(ch)
		delete(c.pending, echo)
	}
	c.mu.Unlock()
}

// Call sends one action and waits for its echo, up to CallTimeout
func (c *Client) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, perr.Unavailablef("onebot %s: websocket not connected", action)
	}
	echo := uuid.NewString()
	ch := make(chan response, 1)
	c.pending[echo] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.CallTimeout))
	err := conn.WriteJSON(request{Action: action, Params: params, Echo: echo})
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "onebot %s write", action)
	}

	timer := time.NewTimer(c.opts.CallTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, perr.Unavailablef("onebot %s: connection closed before reply", action)
		}
		if st := strings.ToLower(resp.Status); st != "ok" && st != "async" {
			msg := resp.Wording
			if msg == "" {
				msg = resp.Message
			}
			return nil, perr.Newf(retcodeToCode(resp.Retcode), "onebot %s failed: retcode=%d %s", action, resp.Retcode, msg)
		}
		return resp.Data, nil
	case <-timer.C:
		forget()
		return nil, perr.Unavailablef("onebot %s: no reply within %s", action, c.opts.CallTimeout)
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

// retcodes follow go-cqhttp: 1400 bad request, 1404 unknown action, others internal
func retcodeToCode(rc int) perr.ErrorCode {
	switch rc {
	case 1400, 1404:
		return perr.ErrorCodeInvalidArgument
	case 1401, 1403:
		return perr.ErrorCodeUnauthorized
	default:
		return perr.ErrorCodeUnavailable
	}
}
