package service

import (
	"context"
	"fmt"

	"binvote/internal/core/submission"
	"binvote/internal/core/tally"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"
	dom "binvote/internal/services/voting/domain"
)

const rejectLabel = "✗ 不通过"

// pollOptions caps candidates so the options, sentinel included, fit the poll limit
func (e *Engine) pollOptions(candidates []string) []string {
	limit := e.cfg.PollMaxOptions
	if e.cfg.RejectOption {
		limit--
	}
	opts := append([]string(nil), candidates[:min(len(candidates), limit)]...)
	if e.cfg.RejectOption {
		opts = append(opts, dom.RejectOption)
	}
	return opts
}

func pollLabels(options []string) []string {
	labels := make([]string, len(options))
	for i, o := range options {
		if o == dom.RejectOption {
			labels[i] = rejectLabel
			continue
		}
		labels[i] = fmt.Sprintf("%d. %s", i+1, submission.Host(o))
	}
	return labels
}

// StartPoll sends one multi answer poll per poll chat and records each so answers can be resolved
// after a restart
func (e *Engine) StartPoll(ctx context.Context, sub dom.Submission) error {
	if !e.PollEnabled() {
		return perr.Unavailablef("poll bot not configured")
	}
	if len(sub.Candidates) == 0 {
		return perr.InvalidArgf("%s has no candidate urls", sub.Ref.Key())
	}
	ctx = logger.WithSubmission(ctx, sub.Ref.Key())
	options := e.pollOptions(sub.Candidates)
	question := fmt.Sprintf("Issue #%d BIN %s：请选择可入库的图片", sub.Ref.Number, orNone(sub.BIN))
	labels := pollLabels(options)

	sent := 0
	for _, chat := range e.cfg.PollChats {
		p, err := e.deps.Bot.SendPoll(ctx, chat, question, labels)
		if err != nil {
			logger.C(ctx).Warn().Err(err).Int64("chat", chat).Msg("poll not sent")
			continue
		}
		rec := dom.PollRecord{
			PollID:    p.PollID,
			Ref:       sub.Ref,
			BIN:       sub.BIN,
			ChatID:    chat,
			MessageID: p.MessageID,
			Options:   options,
			CreatedAt: e.now(),
		}
		if err := e.deps.Store.PutPollRecord(ctx, rec); err != nil {
			logger.C(ctx).Warn().Err(err).Str("poll", p.PollID).Msg("poll record not stored")
			e.stopPoll(ctx, rec)
			continue
		}
		sent++
	}
	if sent == 0 {
		return perr.Unavailablef("poll for %s reached no chat", sub.Ref.Key())
	}
	logger.C(ctx).Info().Int("chats", sent).Int("options", len(options)).Msg("poll opened")
	return nil
}

// onPollAnswer finalizes on the first answer; a retraction (no options) is ignored
func (e *Engine) onPollAnswer(ctx context.Context, ev dom.PollAnswerEvent) error {
	if len(ev.Chosen) == 0 {
		return nil
	}
	rec, err := e.deps.Store.GetPollRecord(ctx, ev.PollID)
	if err != nil {
		return err
	}
	var t tally.Totals
	if _, rejected := tally.Select(rec.Options, ev.Chosen, dom.RejectOption); rejected {
		t.Reject = 1
	} else {
		t.Approve = 1
	}
	return e.finalizePoll(ctx, rec, ev.Chosen, t, dom.TriggerFirstAnswer)
}

func (e *Engine) onPollClosed(ctx context.Context, ev dom.PollClosedEvent) error {
	rec, err := e.deps.Store.GetPollRecord(ctx, ev.PollID)
	if err != nil {
		return err
	}
	var t tally.Totals
	for i, n := range ev.VoterCounts {
		if i < len(rec.Options) && rec.Options[i] == dom.RejectOption {
			t.Reject += n
		} else {
			t.Approve += n
		}
	}
	return e.finalizePoll(ctx, rec, tally.ChosenByCount(ev.VoterCounts), t, dom.TriggerPollClosed)
}

// finalizePoll is the only way a poll turns into a decision. The stored finalized flag is flipped
// under the submission lock before any side effect, so a second signal for the same poll does nothing.
func (e *Engine) finalizePoll(ctx context.Context, rec dom.PollRecord, chosen []int, totals tally.Totals, trigger string) error {
	key := rec.Ref.Key()
	ctx = logger.WithSubmission(ctx, key)
	unlock := e.locks.Lock(key)
	defer unlock()

	if rec.Finalized {
		logger.C(ctx).Debug().Str("poll", rec.PollID).Str("trigger", trigger).Msg("poll already finalized")
		return nil
	}
	won, err := e.deps.Store.FinalizePollRecord(ctx, rec.PollID)
	if err != nil {
		return err
	}
	if !won {
		logger.C(ctx).Debug().Str("poll", rec.PollID).Str("trigger", trigger).Msg("poll finalize lost")
		return nil
	}

	urls, rejected := tally.Select(rec.Options, chosen, dom.RejectOption)
	d := dom.Decision{
		Ref:       rec.Ref,
		BIN:       rec.BIN,
		Strategy:  dom.StrategyPoll,
		Outcome:   dom.Rejected,
		Totals:    totals,
		Trigger:   trigger,
		DecidedAt: e.now(),
	}
	if !rejected && len(urls) > 0 {
		d.Outcome = dom.Approved
		d.SelectedURLs = urls
	}
	logger.C(ctx).Info().Str("poll", rec.PollID).Str("trigger", trigger).
		Str("outcome", string(d.Outcome)).Int("urls", len(urls)).Msg("poll finalized")

	if trigger != dom.TriggerPollClosed {
		e.stopPoll(ctx, rec)
	}
	e.closeSiblings(ctx, rec)

	if rep := e.deps.Publisher.Publish(ctx, d); rep.Claimed {
		e.abandonSession(ctx, key)
	}
	return nil
}

// closeSiblings finalizes and stops the same submission's polls in other chats
func (e *Engine) closeSiblings(ctx context.Context, rec dom.PollRecord) {
	sibs, err := e.deps.Store.OpenSiblingPolls(ctx, rec.Ref, rec.PollID)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("sibling polls not loaded")
		return
	}
	for _, s := range sibs {
		won, err := e.deps.Store.FinalizePollRecord(ctx, s.PollID)
		if err != nil {
			logger.C(ctx).Warn().Err(err).Str("poll", s.PollID).Msg("sibling poll not finalized")
			continue
		}
		if won {
			e.stopPoll(ctx, s)
		}
	}
}

func (e *Engine) stopPoll(ctx context.Context, rec dom.PollRecord) {
	if err := e.deps.Bot.StopPoll(ctx, rec.ChatID, rec.MessageID); err != nil {
		logger.C(ctx).Warn().Err(err).Str("poll", rec.PollID).Msg("stop poll failed")
	}
}
