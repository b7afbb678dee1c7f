package votingtest

import (
	"context"
	"strconv"
	"sync"

	perr "binvote/internal/platform/errors"
	dom "binvote/internal/services/voting/domain"
)

// Broadcast is one message a Chat delivered
type Broadcast struct {
	Channel int64
	ID      string
	Msg     dom.Message
}

// Chat records broadcasts; channels in Down fail
type Chat struct {
	mu   sync.Mutex
	next int
	Sent []Broadcast
	Down map[int64]bool
}

func (c *Chat) Broadcast(_ context.Context, ch int64, msg dom.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Down[ch] {
		return "", perr.Unavailablef("channel %d down", ch)
	}
	c.next++
	id := strconv.Itoa(1000 + c.next)
	c.Sent = append(c.Sent, Broadcast{Channel: ch, ID: id, Msg: msg})
	return id, nil
}

// Messages snapshots what was sent
func (c *Chat) Messages() []Broadcast {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Broadcast(nil), c.Sent...)
}

// PollSent is one SendPoll call
type PollSent struct {
	Chat     int64
	Question string
	Options  []string
	Poll     dom.SentPoll
}

// Bot records poll bot calls; chats in Down fail
type Bot struct {
	mu        sync.Mutex
	next      int
	Polls     []PollSent
	Stopped   []int64
	Approvals []string
	Answers   []string
	Down      map[int64]bool
}

func (b *Bot) SendPoll(_ context.Context, chat int64, q string, opts []string) (dom.SentPoll, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Down[chat] {
		return dom.SentPoll{}, perr.Unavailablef("chat %d down", chat)
	}
	b.next++
	p := dom.SentPoll{PollID: "p" + strconv.Itoa(b.next), MessageID: int64(b.next)}
	b.Polls = append(b.Polls, PollSent{Chat: chat, Question: q, Options: opts, Poll: p})
	return p, nil
}

func (b *Bot) StopPoll(_ context.Context, _ int64, messageID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Stopped = append(b.Stopped, messageID)
	return nil
}

func (b *Bot) SendInlineApproval(_ context.Context, chat int64, _ string, token string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Down[chat] {
		return 0, perr.Unavailablef("chat %d down", chat)
	}
	b.next++
	b.Approvals = append(b.Approvals, token)
	return int64(b.next), nil
}

func (b *Bot) AnswerCallback(_ context.Context, _ string, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Answers = append(b.Answers, text)
	return nil
}

// StoppedIDs snapshots stopped message ids
func (b *Bot) StoppedIDs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int64(nil), b.Stopped...)
}

// Publisher records decisions and claims each submission once
type Publisher struct {
	mu        sync.Mutex
	Decisions []dom.Decision
	claimed   map[string]bool
}

func (p *Publisher) Publish(_ context.Context, d dom.Decision) dom.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Decisions = append(p.Decisions, d)
	if p.claimed == nil {
		p.claimed = map[string]bool{}
	}
	if p.claimed[d.Ref.Key()] {
		return dom.Report{}
	}
	p.claimed[d.Ref.Key()] = true
	return dom.Report{Claimed: true, Stored: d.Outcome == dom.Approved}
}

// Published snapshots the decisions seen
func (p *Publisher) Published() []dom.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dom.Decision(nil), p.Decisions...)
}

// Images serves a fixed body for every url except those listed in Missing
type Images struct {
	Missing map[string]bool
}

func (i Images) Get(_ context.Context, url string) ([]byte, error) {
	if i.Missing[url] {
		return nil, perr.NotFoundf("%s", url)
	}
	return []byte("img:" + url), nil
}

func (i Images) All(ctx context.Context, urls []string) [][]byte {
	out := make([][]byte, len(urls))
	for n, u := range urls {
		out[n], _ = i.Get(ctx, u)
	}
	return out
}

// Notifier records notifications
type Notifier struct {
	mu    sync.Mutex
	Calls []Notification
	Err   error
}

// Notification is one Notify call
type Notification struct {
	Text   string
	Images [][]byte
}

func (n *Notifier) Notify(_ context.Context, text string, images [][]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, Notification{Text: text, Images: images})
	return n.Err
}

// Sent snapshots the notifications
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.Calls...)
}
