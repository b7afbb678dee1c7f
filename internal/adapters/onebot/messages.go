package onebot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"binvote/internal/platform/backoff"
	perr "binvote/internal/platform/errors"
	"binvote/internal/services/voting/domain"
)

var (
	binQueryRe = regexp.MustCompile(`(?i)^\s*bin\s+(\d+)\s*$`)
	cqReplyRe  = regexp.MustCompile(`\[CQ:reply,(?:[^\]]*,)?id=(-?\d+)[^\]]*\]`)
	cqCodeRe   = regexp.MustCompile(`\[CQ:[^\]]*\]`)
)

// image sends pause between frames so the client is not flood limited
const imageGap = 200 * time.Millisecond

type segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func encode(msg domain.Message) []segment {
	out := make([]segment, 0, len(msg))
	for _, s := range msg {
		switch {
		case len(s.Image) > 0:
			out = append(out, segment{Type: "image", Data: map[string]any{"file": "base64://" + base64.StdEncoding.EncodeToString(s.Image)}})
		case s.Text != "":
			out = append(out, segment{Type: "text", Data: map[string]any{"text": s.Text}})
		}
	}
	return out
}

// messageID reads message_id, which implementations send as number or string
func messageID(data json.RawMessage) string {
	var body struct {
		MessageID json.RawMessage `json:"message_id"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return rawID(body.MessageID)
}

func rawID(raw json.RawMessage) string {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "null" {
		return ""
	}
	return s
}

// SendGroup posts msg to a group and returns the new message id
func (c *Client) SendGroup(ctx context.Context, groupID int64, msg domain.Message) (string, error) {
	data, err := c.Call(ctx, "send_msg", map[string]any{
		"message_type": "group",
		"group_id":     groupID,
		"message":      encode(msg),
	})
	if err != nil {
		return "", err
	}
	c.log.Debug().Int64("group", groupID).Int("segments", len(msg)).Int("images", msg.Images()).Msg("onebot group message sent")
	return messageID(data), nil
}

// Broadcast implements the vote prompt channel. A reply without a message id is an error,
// since replies could never be routed back to the prompt.
func (c *Client) Broadcast(ctx context.Context, groupID int64, msg domain.Message) (string, error) {
	id, err := c.SendGroup(ctx, groupID, msg)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", perr.Unavailablef("onebot send_msg to %d returned no message_id", groupID)
	}
	return id, nil
}

// Reply answers an inbound message in the chat it came from
func (c *Client) Reply(ctx context.Context, in Inbound, msg domain.Message) error {
	if in.MessageType == "private" {
		_, err := c.Call(ctx, "send_msg", map[string]any{
			"message_type": "private",
			"user_id":      in.UserID,
			"message":      encode(msg),
		})
		return err
	}
	_, err := c.SendGroup(ctx, in.GroupID, msg)
	return err
}

// Notify sends text and then one message per image to every admin group, each send retried
func (c *Client) Notify(ctx context.Context, text string, images [][]byte) error {
	var last error
	for _, gid := range c.opts.AdminGroupIDs {
		if err := c.sendRetry(ctx, gid, domain.Message{}.Text(text)); err != nil {
			c.log.Warn().Err(err).Int64("group", gid).Msg("onebot admin notification failed")
			last = err
			continue
		}
		for i, img := range images {
			if err := c.sendRetry(ctx, gid, domain.Message{}.Image(img)); err != nil {
				c.log.Warn().Err(err).Int64("group", gid).Int("image", i+1).Msg("onebot preview image failed")
				last = err
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(imageGap):
			}
		}
	}
	return last
}

func (c *Client) sendRetry(ctx context.Context, gid int64, msg domain.Message) error {
	return backoff.Do(ctx, c.opts.Retry, &c.log, "onebot notify", func(ctx context.Context) error {
		_, err := c.SendGroup(ctx, gid, msg)
		return err
	})
}

// Inbound is a decoded message event
type Inbound struct {
	MessageType string // group | private
	GroupID     int64
	UserID      int64
	MessageID   string
	ReplyTo     string
	Text        string
}

type inboundWire struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	GroupID     int64           `json:"group_id"`
	UserID      int64           `json:"user_id"`
	MessageID   json.RawMessage `json:"message_id"`
	Message     json.RawMessage `json:"message"`
	RawMessage  string          `json:"raw_message"`
	Reply       *struct {
		MessageID  json.RawMessage `json:"message_id"`
		MessageID2 json.RawMessage `json:"messageId"`
	} `json:"reply"`
}

// Decode parses a message event. The message field may be a CQ string or a segment array;
// the reply target comes from the reply field, a reply segment or a CQ reply code.
func Decode(raw []byte) (Inbound, error) {
	var w inboundWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Inbound{}, perr.Malformedf("onebot event: %v", err)
	}
	if w.PostType != "message" {
		return Inbound{}, perr.Malformedf("onebot event post_type %q", w.PostType)
	}
	in := Inbound{
		MessageType: w.MessageType,
		GroupID:     w.GroupID,
		UserID:      w.UserID,
		MessageID:   rawID(w.MessageID),
	}
	if w.Reply != nil {
		in.ReplyTo = rawID(w.Reply.MessageID)
		if in.ReplyTo == "" {
			in.ReplyTo = rawID(w.Reply.MessageID2)
		}
	}

	var asString string
	var segs []struct {
		Type string                     `json:"type"`
		Data map[string]json.RawMessage `json:"data"`
	}
	switch {
	case len(w.Message) > 0 && json.Unmarshal(w.Message, &asString) == nil:
		in.Text = textFromCQ(asString, &in)
	case len(w.Message) > 0 && json.Unmarshal(w.Message, &segs) == nil:
		var sb strings.Builder
		for _, s := range segs {
			switch s.Type {
			case "text":
				var t string
				_ = json.Unmarshal(s.Data["text"], &t)
				sb.WriteString(t)
			case "reply":
				if in.ReplyTo == "" {
					in.ReplyTo = rawID(s.Data["id"])
				}
				if in.ReplyTo == "" {
					in.ReplyTo = rawID(s.Data["message_id"])
				}
			}
		}
		in.Text = sb.String()
	default:
		in.Text = textFromCQ(w.RawMessage, &in)
	}
	return in, nil
}

func textFromCQ(s string, in *Inbound) string {
	if in.ReplyTo == "" {
		if m := cqReplyRe.FindStringSubmatch(s); m != nil {
			in.ReplyTo = m[1]
		}
	}
	return cqCodeRe.ReplaceAllString(s, "")
}

// ChatReply converts a group reply into an engine event
func (in Inbound) ChatReply() (domain.ChatReplyEvent, bool) {
	if in.MessageType != "group" || in.ReplyTo == "" {
		return domain.ChatReplyEvent{}, false
	}
	return domain.ChatReplyEvent{ChannelID: in.GroupID, ReplyTo: in.ReplyTo, VoterID: in.UserID, Text: in.Text}, true
}

// BINQuery returns the digits of a "bin <digits>" message
func (in Inbound) BINQuery() (string, bool) {
	m := binQueryRe.FindStringSubmatch(in.Text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (in Inbound) relevant() bool {
	if _, ok := in.ChatReply(); ok {
		return true
	}
	_, ok := in.BINQuery()
	return ok
}
