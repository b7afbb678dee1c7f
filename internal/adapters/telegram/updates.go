package telegram

import (
	"context"
	"strings"
	"time"

	"binvote/internal/core/tally"
	perr "binvote/internal/platform/errors"
	"binvote/internal/services/voting/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const callbackPrefix = "bv"

// Handler consumes decoded events
type Handler func(ctx context.Context, ev domain.Event) error

// CallbackData encodes an inline button payload as bv:<choice>:<token>
func CallbackData(choice, token string) string {
	return callbackPrefix + ":" + choice + ":" + token
}

// ParseCallbackData is the inverse of CallbackData
func ParseCallbackData(data string) (tally.Choice, string, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[2] == "" {
		return "", "", perr.Malformedf("callback data %q", data)
	}
	c := tally.Choice(parts[1])
	if !c.Valid() {
		return "", "", perr.Malformedf("callback choice %q", parts[1])
	}
	return c, parts[2], nil
}

// Decode turns one update into an engine event. Updates that carry nothing decisive
// (an open poll, a retracted answer, a plain message) decode to nil.
func Decode(u tgbotapi.Update) (domain.Event, error) {
	switch {
	case u.PollAnswer != nil:
		pa := u.PollAnswer
		if pa.PollID == "" {
			return nil, perr.Malformedf("poll_answer without poll_id (update %d)", u.UpdateID)
		}
		if len(pa.OptionIDs) == 0 {
			return nil, nil
		}
		return domain.PollAnswerEvent{PollID: pa.PollID, VoterID: pa.User.ID, Chosen: append([]int(nil), pa.OptionIDs...)}, nil

	case u.Poll != nil:
		p := u.Poll
		if p.ID == "" {
			return nil, perr.Malformedf("poll without id (update %d)", u.UpdateID)
		}
		if !p.IsClosed {
			return nil, nil
		}
		counts := make([]int, len(p.Options))
		for i, o := range p.Options {
			counts[i] = o.VoterCount
		}
		return domain.PollClosedEvent{PollID: p.ID, VoterCounts: counts}, nil

	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.ID == "" {
			return nil, perr.Malformedf("callback_query without id (update %d)", u.UpdateID)
		}
		choice, token, err := ParseCallbackData(cq.Data)
		if err != nil {
			return nil, err
		}
		ev := domain.CallbackEvent{CallbackID: cq.ID, Token: token, Choice: choice}
		if cq.From != nil {
			ev.VoterID = cq.From.ID
		}
		return ev, nil
	}
	return nil, nil
}

// Run long polls getUpdates until ctx ends and hands decoded events to h.
// Transport failures pause for 3s and retry; handler errors are logged only.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	cfg := tgbotapi.UpdateConfig{
		Timeout:        b.opts.UpdateTimeout,
		AllowedUpdates: []string{"poll", "poll_answer", "callback_query"},
	}
	b.log.Info().Int("timeout", cfg.Timeout).Msg("telegram update loop started")
	for {
		if ctx.Err() != nil {
			b.log.Info().Msg("telegram update loop stopped")
			return nil
		}
		cfg.Offset = b.offset
		updates, err := b.api.GetUpdates(cfg)
		if err != nil {
			b.log.Warn().Err(classify("getUpdates", err)).Msg("telegram getUpdates failed, retrying in 3s")
			b.waitFor(ctx, 3*time.Second)
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			b.dispatch(ctx, u, h)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, u tgbotapi.Update, h Handler) {
	ev, err := Decode(u)
	if err != nil {
		b.log.Warn().Err(err).Int("update", u.UpdateID).Msg("telegram update discarded")
		return
	}
	if ev == nil {
		return
	}
	if err := h(ctx, ev); err != nil {
		if perr.IsUnknownKey(err) {
			b.log.Debug().Err(err).Str("kind", ev.Kind()).Msg("telegram event for unknown key")
			return
		}
		b.log.Warn().Err(err).Str("kind", ev.Kind()).Msg("telegram event handling failed")
	}
}
