// Package service runs the three voting strategies and turns human input into decisions
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/keylock"
	"binvote/internal/platform/logger"
	dom "binvote/internal/services/voting/domain"

	"github.com/google/uuid"
)

// Config tunes the engine
type Config struct {
	Deadline       time.Duration
	Extension      time.Duration
	Sweep          time.Duration
	MaxImages      int
	PollMaxOptions int
	RejectOption   bool
	GroupChannels  []int64
	PollChats      []int64
}

func (c Config) withDefaults() Config {
	if c.Deadline <= 0 {
		c.Deadline = 15 * time.Minute
	}
	if c.Extension <= 0 {
		c.Extension = 5 * time.Minute
	}
	if c.Sweep <= 0 {
		c.Sweep = 5 * time.Second
	}
	if c.MaxImages <= 0 {
		c.MaxImages = 15
	}
	if c.PollMaxOptions < 2 {
		c.PollMaxOptions = 10
	}
	return c
}

// Deps are the engine's collaborators. Chat and Bot may be nil when that channel is not configured.
type Deps struct {
	Store     dom.Store
	Chat      dom.ChatPort
	Bot       dom.PollBotPort
	Publisher dom.Publisher
	Images    dom.ImageFetcher
}

// Engine owns the live group sessions and routes events to the strategy they belong to.
// Every mutation for one submission happens under that submission's key lock.
type Engine struct {
	deps  Deps
	cfg   Config
	locks *keylock.Map
	log   *logger.Logger

	now      func() time.Time
	newToken func() string

	mu       sync.Mutex
	sessions map[string]*dom.VoteSession
	prompts  map[string]string // "channel:message" -> submission key
}

// New builds an Engine
func New(deps Deps, cfg Config) *Engine {
	return &Engine{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		locks:    keylock.New(),
		log:      logger.Named("voting"),
		now:      time.Now,
		newToken: uuid.NewString,
		sessions: make(map[string]*dom.VoteSession),
		prompts:  make(map[string]string),
	}
}

// Handle routes one decoded event. UnknownKey errors mean the event refers to nothing live.
func (e *Engine) Handle(ctx context.Context, ev dom.Event) error {
	switch ev := ev.(type) {
	case dom.ChatReplyEvent:
		return e.onChatReply(ctx, ev)
	case dom.PollAnswerEvent:
		return e.onPollAnswer(ctx, ev)
	case dom.PollClosedEvent:
		return e.onPollClosed(ctx, ev)
	case dom.CallbackEvent:
		return e.onCallback(ctx, ev)
	default:
		return perr.Malformedf("unhandled event %T", ev)
	}
}

// Sessions snapshots the live group sessions, soonest deadline first
func (e *Engine) Sessions() []dom.SessionView {
	e.mu.Lock()
	out := make([]dom.SessionView, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.View())
	}
	e.mu.Unlock()
	slices.SortFunc(out, func(a, b dom.SessionView) int { return a.DeadlineAt.Compare(b.DeadlineAt) })
	return out
}

// GroupEnabled reports whether group sessions can be started
func (e *Engine) GroupEnabled() bool { return e.deps.Chat != nil && len(e.cfg.GroupChannels) > 0 }

// PollEnabled reports whether polls and approval tokens can be sent
func (e *Engine) PollEnabled() bool { return e.deps.Bot != nil && len(e.cfg.PollChats) > 0 }

func promptKey(channel int64, messageID string) string {
	return fmt.Sprintf("%d:%s", channel, messageID)
}

func orNone(bin string) string {
	if bin == "" {
		return "无"
	}
	return bin
}
