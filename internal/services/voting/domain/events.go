package domain

import "binvote/internal/core/tally"

// Event is an inbound vote signal, decoded at the adapter boundary
type Event interface {
	Kind() string
	isEvent()
}

// PollClosedEvent reports a closed poll with per option voter counts
type PollClosedEvent struct {
	PollID      string
	VoterCounts []int
}

// PollAnswerEvent reports one respondent's chosen option indices
type PollAnswerEvent struct {
	PollID  string
	VoterID int64
	Chosen  []int
}

// CallbackEvent is a press on an inline approve/reject button
type CallbackEvent struct {
	CallbackID string
	Token      string
	Choice     tally.Choice
	VoterID    int64
}

// ChatReplyEvent is a group message that replies to another message
type ChatReplyEvent struct {
	ChannelID int64
	ReplyTo   string
	VoterID   int64
	Text      string
}

func (PollClosedEvent) Kind() string { return "poll_closed" }
func (PollAnswerEvent) Kind() string { return "poll_answer" }
func (CallbackEvent) Kind() string   { return "callback" }
func (ChatReplyEvent) Kind() string  { return "chat_reply" }

func (PollClosedEvent) isEvent() {}
func (PollAnswerEvent) isEvent() {}
func (CallbackEvent) isEvent()   {}
func (ChatReplyEvent) isEvent()  {}
