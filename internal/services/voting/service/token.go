package service

import (
	"context"
	"fmt"

	"binvote/internal/core/tally"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"
	dom "binvote/internal/services/voting/domain"
)

// StartToken persists a one shot token for the single candidate and sends yes/no buttons to every poll chat
func (e *Engine) StartToken(ctx context.Context, sub dom.Submission) error {
	if !e.PollEnabled() {
		return perr.Unavailablef("poll bot not configured")
	}
	if len(sub.Candidates) == 0 {
		return perr.InvalidArgf("%s has no candidate urls", sub.Ref.Key())
	}
	ctx = logger.WithSubmission(ctx, sub.Ref.Key())
	tok := dom.ApprovalToken{
		Token:     e.newToken(),
		Ref:       sub.Ref,
		BIN:       sub.BIN,
		URL:       sub.Candidates[0],
		CreatedAt: e.now(),
	}
	if err := e.deps.Store.PutApprovalToken(ctx, tok); err != nil {
		return err
	}

	text := fmt.Sprintf("单图审核 Issue #%d\n%s\nBIN: %s\n%s",
		sub.Ref.Number, sub.Ref.IssueURL(), orNone(sub.BIN), tok.URL)
	sent := 0
	for _, chat := range e.cfg.PollChats {
		if _, err := e.deps.Bot.SendInlineApproval(ctx, chat, text, tok.Token); err != nil {
			logger.C(ctx).Warn().Err(err).Int64("chat", chat).Msg("approval buttons not sent")
			continue
		}
		sent++
	}
	if sent == 0 {
		if err := e.deps.Store.DeleteApprovalToken(ctx, tok.Token); err != nil {
			logger.C(ctx).Warn().Err(err).Msg("orphan token not deleted")
		}
		return perr.Unavailablef("approval for %s reached no chat", sub.Ref.Key())
	}
	logger.C(ctx).Info().Int("chats", sent).Msg("approval token issued")
	return nil
}

// onCallback consumes the token; only the first press for a token decides
func (e *Engine) onCallback(ctx context.Context, ev dom.CallbackEvent) error {
	tok, ok, err := e.deps.Store.ConsumeApprovalToken(ctx, ev.Token)
	if err != nil {
		e.answer(ctx, ev.CallbackID, "处理失败，请稍后重试")
		return err
	}
	if !ok {
		e.answer(ctx, ev.CallbackID, "已处理或已失效")
		return perr.UnknownKeyf("approval token %s", ev.Token)
	}

	key := tok.Ref.Key()
	ctx = logger.WithSubmission(ctx, key)
	unlock := e.locks.Lock(key)
	defer unlock()

	d := dom.Decision{
		Ref:       tok.Ref,
		BIN:       tok.BIN,
		Strategy:  dom.StrategyToken,
		Outcome:   dom.Rejected,
		Totals:    tally.Totals{Reject: 1},
		Trigger:   dom.TriggerCallback,
		DecidedAt: e.now(),
	}
	if ev.Choice == tally.Approve {
		d.Outcome = dom.Approved
		d.SelectedURLs = []string{tok.URL}
		d.Totals = tally.Totals{Approve: 1}
	}
	logger.C(ctx).Info().Int64("voter", ev.VoterID).Str("outcome", string(d.Outcome)).Msg("approval token consumed")

	if rep := e.deps.Publisher.Publish(ctx, d); rep.Claimed {
		e.abandonSession(ctx, key)
	}
	e.answer(ctx, ev.CallbackID, "已记录："+d.Verdict())
	return nil
}

func (e *Engine) answer(ctx context.Context, callbackID, text string) {
	if e.deps.Bot == nil || callbackID == "" {
		return
	}
	if err := e.deps.Bot.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.C(ctx).Warn().Err(err).Msg("callback answer failed")
	}
}
