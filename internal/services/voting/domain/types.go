// Package domain holds the voting engine's records, events and ports
package domain

import (
	"fmt"
	"time"

	"binvote/internal/core/tally"
)

// RejectOption is the reserved poll option that forces a rejection when chosen
const RejectOption = "REJECT"

// Ref identifies a submission by its tracker issue
type Ref struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

// Key is owner/repo#number, the lock and map key for everything tied to the submission
func (r Ref) Key() string { return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number) }

// IssueURL is the human link to the issue
func (r Ref) IssueURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", r.Owner, r.Repo, r.Number)
}

// Submission is a parsed tracker issue
type Submission struct {
	Ref            Ref
	Title          string
	Body           string
	State          string
	BIN            string // empty when the issue carries none
	AttachmentURLs []string
	TextURLs       []string
	Candidates     []string // attachment first, deduplicated
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Strategy names the mechanism that produced a decision
type Strategy string

const (
	StrategyGroup Strategy = "group"
	StrategyPoll  Strategy = "poll"
	StrategyToken Strategy = "token"
)

// Outcome is the binary result of a vote
type Outcome string

const (
	Approved Outcome = "approved"
	Rejected Outcome = "rejected"
)

// VoteSession is one group chat vote; it lives in memory until finalized
type VoteSession struct {
	Ref        Ref
	BIN        string
	Candidates []string
	Ballot     tally.Ballot
	Channels   []int64
	PromptIDs  []string
	CreatedAt  time.Time
	DeadlineAt time.Time
	Extended   bool
}

// SessionView is a read only snapshot of a live session
type SessionView struct {
	Key        string       `json:"key"`
	BIN        string       `json:"bin,omitempty"`
	IssueURL   string       `json:"issue_url"`
	Channels   []int64      `json:"channels"`
	Prompts    int          `json:"prompts"`
	DeadlineAt time.Time    `json:"deadline_at"`
	Extended   bool         `json:"extended"`
	Totals     tally.Totals `json:"totals"`
}

// View snapshots s
func (s *VoteSession) View() SessionView {
	return SessionView{
		Key:        s.Ref.Key(),
		BIN:        s.BIN,
		IssueURL:   s.Ref.IssueURL(),
		Channels:   append([]int64(nil), s.Channels...),
		Prompts:    len(s.PromptIDs),
		DeadlineAt: s.DeadlineAt,
		Extended:   s.Extended,
		Totals:     s.Ballot.Count(),
	}
}

// PollRecord maps a sent poll back to its submission. Finalized only ever goes false to true.
type PollRecord struct {
	PollID    string
	Ref       Ref
	BIN       string
	ChatID    int64
	MessageID int64
	Options   []string // candidate URLs, RejectOption last when enabled
	Finalized bool
	CreatedAt time.Time
}

// ApprovalToken backs the single link yes/no buttons; it is deleted on first use
type ApprovalToken struct {
	Token     string
	Ref       Ref
	BIN       string
	URL       string
	CreatedAt time.Time
}

// Decision is the one result a submission ever gets
type Decision struct {
	Ref          Ref
	BIN          string
	Strategy     Strategy
	Outcome      Outcome
	SelectedURLs []string
	Totals       tally.Totals
	// Trigger says which signal decided: deadline, first_answer, poll_closed, callback
	Trigger   string
	DecidedAt time.Time
}

// Report says which publish steps took effect
type Report struct {
	Claimed        bool
	Stored         bool
	FirstInsertion bool
	Commented      bool
	Closed         bool
	Notified       bool
}

// Segment is one part of an outgoing chat message
type Segment struct {
	Text  string
	Image []byte
}

// Message is an ordered list of text and image segments
type Message []Segment

// Text appends a text segment
func (m Message) Text(s string) Message { return append(m, Segment{Text: s}) }

// Image appends an image segment; empty images are dropped
func (m Message) Image(b []byte) Message {
	if len(b) == 0 {
		return m
	}
	return append(m, Segment{Image: b})
}

// Images counts image segments
func (m Message) Images() int {
	n := 0
	for _, s := range m {
		if len(s.Image) > 0 {
			n++
		}
	}
	return n
}

// PlainText joins the text segments
func (m Message) PlainText() string {
	var out []byte
	for _, s := range m {
		out = append(out, s.Text...)
	}
	return string(out)
}

// SentPoll is what the poll bot returns for a sent poll
type SentPoll struct {
	PollID    string
	MessageID int64
}
