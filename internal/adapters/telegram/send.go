package telegram

import (
	"context"
	"fmt"

	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/strings"
	"binvote/internal/services/voting/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot API caps option labels at 100 characters; Clip adds one for the ellipsis
const maxOptionLen = 99

// SendPoll sends a non anonymous multiple answer poll
func (b *Bot) SendPoll(ctx context.Context, chatID int64, question string, options []string) (domain.SentPoll, error) {
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = strings.Clip(o, maxOptionLen)
	}
	cfg := tgbotapi.NewPoll(chatID, strings.Clip(question, 300), labels...)
	cfg.IsAnonymous = false
	cfg.AllowsMultipleAnswers = true

	var msg tgbotapi.Message
	err := b.call(ctx, "sendPoll", func() error {
		var err error
		msg, err = b.api.Send(cfg)
		return err
	})
	if err != nil {
		return domain.SentPoll{}, err
	}
	if msg.Poll == nil || msg.Poll.ID == "" {
		return domain.SentPoll{}, perr.Newf(perr.ErrorCodeUnavailable, "telegram sendPoll: response carries no poll")
	}
	return domain.SentPoll{PollID: msg.Poll.ID, MessageID: int64(msg.MessageID)}, nil
}

// StopPoll closes a poll; Telegram then delivers the final poll update
func (b *Bot) StopPoll(ctx context.Context, chatID, messageID int64) error {
	return b.call(ctx, "stopPoll", func() error {
		_, err := b.api.StopPoll(tgbotapi.NewStopPoll(chatID, int(messageID)))
		return err
	})
}

// SendInlineApproval sends text with approve/reject buttons bound to token
func (b *Bot) SendInlineApproval(ctx context.Context, chatID int64, text, token string) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✓ 通过", CallbackData("approve", token)),
		tgbotapi.NewInlineKeyboardButtonData("✗ 不通过", CallbackData("reject", token)),
	))
	var sent tgbotapi.Message
	err := b.call(ctx, "sendMessage", func() error {
		var err error
		sent, err = b.api.Send(msg)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int64(sent.MessageID), nil
}

// AnswerCallback stops the client spinner and shows text as a toast
func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return b.call(ctx, "answerCallbackQuery", func() error {
		_, err := b.api.Request(tgbotapi.NewCallback(callbackID, text))
		return err
	})
}

// Notify sends text then each image to every admin chat. A failing chat does not stop the others;
// the last error is returned.
func (b *Bot) Notify(ctx context.Context, text string, images [][]byte) error {
	var last error
	for _, chat := range b.opts.AdminChatIDs {
		if err := b.call(ctx, "sendMessage", func() error {
			_, err := b.api.Send(tgbotapi.NewMessage(chat, text))
			return err
		}); err != nil {
			b.log.Warn().Err(err).Int64("chat", chat).Msg("telegram notify text failed")
			last = err
			continue
		}
		for i, img := range images {
			photo := tgbotapi.NewPhoto(chat, tgbotapi.FileBytes{Name: fmt.Sprintf("preview-%d.jpg", i+1), Bytes: img})
			if err := b.call(ctx, "sendPhoto", func() error {
				_, err := b.api.Send(photo)
				return err
			}); err != nil {
				b.log.Warn().Err(err).Int64("chat", chat).Int("image", i+1).Msg("telegram notify image failed")
				last = err
			}
		}
	}
	return last
}
