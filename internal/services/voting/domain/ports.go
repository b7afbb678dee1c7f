package domain

import "context"

// SeenStore records which issues ingest has already dispatched
type SeenStore interface {
	// MarkIssueSeen inserts the issue if new and reports whether it already existed
	MarkIssueSeen(ctx context.Context, s Submission) (alreadyExisted bool, err error)
	// ForgetIssue drops the marker so a later pass dispatches the issue again
	ForgetIssue(ctx context.Context, ref Ref) error
}

// PollStore persists poll mappings so restarts can still resolve open polls
type PollStore interface {
	PutPollRecord(ctx context.Context, r PollRecord) error
	// GetPollRecord returns an UnknownKey error when no poll has that id
	GetPollRecord(ctx context.Context, pollID string) (PollRecord, error)
	// FinalizePollRecord flips finalized and reports whether this call did it
	FinalizePollRecord(ctx context.Context, pollID string) (won bool, err error)
	OpenSiblingPolls(ctx context.Context, ref Ref, exceptPollID string) ([]PollRecord, error)
}

// TokenStore holds single link approval tokens
type TokenStore interface {
	PutApprovalToken(ctx context.Context, t ApprovalToken) error
	GetApprovalToken(ctx context.Context, token string) (ApprovalToken, error)
	DeleteApprovalToken(ctx context.Context, token string) error
	// ConsumeApprovalToken deletes and returns the token; ok is false when it was already gone
	ConsumeApprovalToken(ctx context.Context, token string) (t ApprovalToken, ok bool, err error)
}

// OutcomeStore is what the publisher writes through
type OutcomeStore interface {
	// ClaimDecision records the decision unless the submission already has one
	ClaimDecision(ctx context.Context, d Decision) (won bool, err error)
	// SetApprovedURLs replaces the BIN's URL set and reports whether the BIN had none before
	SetApprovedURLs(ctx context.Context, bin string, urls []string) (firstInsertion bool, err error)
	GetApprovedURLs(ctx context.Context, bin string) ([]string, error)
	// TryMarkNotified sets the notification marker; true only for the call that set it
	TryMarkNotified(ctx context.Context, bin string) (inserted bool, err error)
}

// Store is the full persistence surface
type Store interface {
	SeenStore
	PollStore
	TokenStore
	OutcomeStore
}

// ChatPort is the group chat (OneBot) side
type ChatPort interface {
	Broadcast(ctx context.Context, channelID int64, msg Message) (messageID string, err error)
}

// PollBotPort is the poll bot (Telegram) side
type PollBotPort interface {
	SendPoll(ctx context.Context, chatID int64, question string, options []string) (SentPoll, error)
	StopPoll(ctx context.Context, chatID, messageID int64) error
	SendInlineApproval(ctx context.Context, chatID int64, text, token string) (messageID int64, err error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Publisher performs a decision's side effects; it never returns an error
type Publisher interface {
	Publish(ctx context.Context, d Decision) Report
}

// ImageFetcher downloads images concurrently; out[i] is nil when urls[i] could not be fetched
type ImageFetcher interface {
	All(ctx context.Context, urls []string) [][]byte
}

// Notifier is the admin notification sink
type Notifier interface {
	Notify(ctx context.Context, text string, images [][]byte) error
}

// Dispatcher starts strategies for a new submission; ingest depends on this
type Dispatcher interface {
	StartGroupSession(ctx context.Context, s Submission) error
	StartPoll(ctx context.Context, s Submission) error
	StartToken(ctx context.Context, s Submission) error
	GroupEnabled() bool
	PollEnabled() bool
}

// EventHandler consumes decoded inbound events
type EventHandler interface {
	Handle(ctx context.Context, ev Event) error
}

// SessionLister exposes the live group sessions
type SessionLister interface {
	Sessions() []SessionView
}
