package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"binvote/internal/core/tally"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"
	dom "binvote/internal/services/voting/domain"
)

// StartGroupSession broadcasts the vote prompt to every group channel and opens a session with
// the prompt ids that were reached. No channel reached means no session.
func (e *Engine) StartGroupSession(ctx context.Context, sub dom.Submission) error {
	if !e.GroupEnabled() {
		return perr.Unavailablef("group chat not configured")
	}
	key := sub.Ref.Key()
	ctx = logger.WithSubmission(ctx, key)

	if e.live(key) {
		return nil
	}

	msg := e.prompt(ctx, sub)

	unlock := e.locks.Lock(key)
	defer unlock()
	if e.live(key) {
		return nil
	}

	s := &dom.VoteSession{
		Ref:        sub.Ref,
		BIN:        sub.BIN,
		Candidates: sub.Candidates,
		Ballot:     tally.Ballot{},
		CreatedAt:  e.now(),
	}
	for _, ch := range e.cfg.GroupChannels {
		id, err := e.deps.Chat.Broadcast(ctx, ch, msg)
		if err != nil {
			logger.C(ctx).Warn().Err(err).Int64("channel", ch).Msg("vote prompt not delivered")
			continue
		}
		s.Channels = append(s.Channels, ch)
		s.PromptIDs = append(s.PromptIDs, id)
	}
	if len(s.PromptIDs) == 0 {
		return perr.Unavailablef("vote prompt for %s reached no channel", key)
	}
	s.DeadlineAt = e.now().Add(e.cfg.Deadline)

	e.mu.Lock()
	e.sessions[key] = s
	for i, id := range s.PromptIDs {
		e.prompts[promptKey(s.Channels[i], id)] = key
	}
	e.mu.Unlock()

	logger.C(ctx).Info().Int("channels", len(s.Channels)).Time("deadline", s.DeadlineAt).Msg("group vote opened")
	return nil
}

// prompt renders the vote message: header, links with their images, and the reply instructions
func (e *Engine) prompt(ctx context.Context, sub dom.Submission) dom.Message {
	urls := sub.Candidates
	if len(urls) > e.cfg.MaxImages {
		urls = urls[:e.cfg.MaxImages]
	}
	images := e.fetchAll(ctx, urls)

	var b strings.Builder
	fmt.Fprintf(&b, "您有新的审了吗订单 Issue #%d，请及时处理\n", sub.Ref.Number)
	b.WriteString(sub.Ref.IssueURL() + "\n\n")
	if sub.BIN != "" {
		b.WriteString("BIN: " + sub.BIN + "\n")
	}

	var msg dom.Message
	for i, u := range urls {
		b.WriteString("[" + u + " ]\n")
		if len(images[i]) == 0 {
			b.WriteString("(图片下载失败)\n")
			continue
		}
		msg = msg.Text(b.String()).Image(images[i])
		b.Reset()
	}
	fmt.Fprintf(&b, "\n%d分钟内回复本消息：通过 或 不通过（仅统计回复本消息的投票）", int(e.cfg.Deadline/time.Minute))
	return msg.Text(b.String())
}

// fetchAll downloads urls; failed slots stay nil
func (e *Engine) fetchAll(ctx context.Context, urls []string) [][]byte {
	if e.deps.Images == nil {
		return make([][]byte, len(urls))
	}
	return e.deps.Images.All(ctx, urls)
}

func (e *Engine) onChatReply(ctx context.Context, ev dom.ChatReplyEvent) error {
	choice, ok := tally.ParseChoice(ev.Text)
	if !ok {
		return nil
	}
	e.mu.Lock()
	key, ok := e.prompts[promptKey(ev.ChannelID, ev.ReplyTo)]
	e.mu.Unlock()
	if !ok {
		return perr.UnknownKeyf("no vote prompt %d:%s", ev.ChannelID, ev.ReplyTo)
	}

	unlock := e.locks.Lock(key)
	defer unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[key]
	if !ok {
		return perr.UnknownKeyf("vote %s already closed", key)
	}
	s.Ballot.Cast(strconv.FormatInt(ev.VoterID, 10), choice)
	logger.C(logger.WithSubmission(ctx, key)).Debug().
		Int64("voter", ev.VoterID).Str("choice", string(choice)).Msg("vote recorded")
	return nil
}

// Sweep handles every session whose deadline passed: a tie or an empty ballot gets one extension,
// anything else is finalized and published.
func (e *Engine) Sweep(ctx context.Context, now time.Time) {
	e.mu.Lock()
	var due []string
	for k, s := range e.sessions {
		if !now.Before(s.DeadlineAt) {
			due = append(due, k)
		}
	}
	e.mu.Unlock()

	for _, key := range due {
		e.sweepOne(logger.WithSubmission(ctx, key), key, now)
	}
}

func (e *Engine) sweepOne(ctx context.Context, key string, now time.Time) {
	unlock := e.locks.Lock(key)
	defer unlock()

	e.mu.Lock()
	s, ok := e.sessions[key]
	if !ok || now.Before(s.DeadlineAt) {
		e.mu.Unlock()
		return
	}
	totals := s.Ballot.Count()
	if totals.Tied() && !s.Extended {
		s.Extended = true
		s.DeadlineAt = now.Add(e.cfg.Extension)
		channel := s.Channels[0]
		e.mu.Unlock()

		logger.C(ctx).Info().Int("approve", totals.Approve).Int("reject", totals.Reject).Msg("group vote extended")
		notice := fmt.Sprintf("投票持平或无人投票，进入%d分钟加时赛。", int(e.cfg.Extension/time.Minute))
		if _, err := e.deps.Chat.Broadcast(ctx, channel, dom.Message{}.Text(notice)); err != nil {
			logger.C(ctx).Warn().Err(err).Int64("channel", channel).Msg("extension notice not delivered")
		}
		return
	}
	e.dropLocked(key, s)
	e.mu.Unlock()

	d := dom.Decision{
		Ref:       s.Ref,
		BIN:       s.BIN,
		Strategy:  dom.StrategyGroup,
		Outcome:   dom.Rejected,
		Totals:    totals,
		Trigger:   dom.TriggerDeadline,
		DecidedAt: now,
	}
	if totals.Approved() {
		d.Outcome = dom.Approved
		d.SelectedURLs = s.Candidates
	}
	logger.C(ctx).Info().Str("outcome", string(d.Outcome)).
		Int("approve", totals.Approve).Int("reject", totals.Reject).Msg("group vote finalized")

	rep := e.deps.Publisher.Publish(ctx, d)
	text := d.Summary(rep.Stored)
	if !rep.Claimed {
		text = "该订单已通过其他渠道处理，本次投票结果不生效。\n" + text
	}
	for _, ch := range s.Channels {
		if _, err := e.deps.Chat.Broadcast(ctx, ch, dom.Message{}.Text(text)); err != nil {
			logger.C(ctx).Warn().Err(err).Int64("channel", ch).Msg("result not delivered")
		}
	}
}

// abandonSession closes a group session for a submission that another strategy already decided.
// Callers hold the submission's key lock.
func (e *Engine) abandonSession(ctx context.Context, key string) {
	e.mu.Lock()
	s, ok := e.sessions[key]
	if ok {
		e.dropLocked(key, s)
	}
	e.mu.Unlock()
	if !ok || e.deps.Chat == nil {
		return
	}
	for _, ch := range s.Channels {
		if _, err := e.deps.Chat.Broadcast(ctx, ch, dom.Message{}.Text("该订单已通过其他渠道处理，投票关闭。")); err != nil {
			logger.C(ctx).Warn().Err(err).Int64("channel", ch).Msg("close notice not delivered")
		}
	}
}

func (e *Engine) live(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[key]
	return ok
}

// dropLocked removes a session and its prompt routes; e.mu is held
func (e *Engine) dropLocked(key string, s *dom.VoteSession) {
	delete(e.sessions, key)
	for i, id := range s.PromptIDs {
		delete(e.prompts, promptKey(s.Channels[i], id))
	}
}

// RunSweeper ticks Sweep until ctx ends
func (e *Engine) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Sweep(ctx, e.now())
		}
	}
}
