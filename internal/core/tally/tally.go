// Package tally holds the vote arithmetic shared by the voting strategies
package tally

import (
	"strings"
	"unicode"

	"binvote/internal/core/submission"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Choice is a single voter's intent
type Choice string

const (
	Approve Choice = "approve"
	Reject  Choice = "reject"
)

// Valid reports whether c is approve or reject
func (c Choice) Valid() bool { return c == Approve || c == Reject }

var words = map[string]Choice{
	"通过":      Approve,
	"通過":      Approve,
	"approve": Approve,
	"不通过":     Reject,
	"不通過":     Reject,
	"reject":  Reject,
}

// ParseChoice maps a chat reply to a Choice. Full width forms and all whitespace are folded first,
// so "通 过" and "ＡＰＰＲＯＶＥ" both count. Anything else is not a vote.
func ParseChoice(text string) (Choice, bool) {
	s := norm.NFKC.String(width.Fold.String(text))
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	c, ok := words[s]
	return c, ok
}

// Totals are the counted votes of one session
type Totals struct {
	Approve int `json:"approve"`
	Reject  int `json:"reject"`
}

// Total is approve + reject
func (t Totals) Total() int { return t.Approve + t.Reject }

// Tied reports no votes at all or an even split
func (t Totals) Tied() bool { return t.Total() == 0 || t.Approve == t.Reject }

// Approved is a strict majority; an even split is not approval
func (t Totals) Approved() bool { return t.Approve > t.Reject }

// Ballot keeps each voter's latest choice
type Ballot map[string]Choice

// Cast records or overwrites voter's choice
func (b Ballot) Cast(voter string, c Choice) {
	if voter == "" || !c.Valid() {
		return
	}
	b[voter] = c
}

// Count tallies the current choices
func (b Ballot) Count() Totals {
	var t Totals
	for _, c := range b {
		switch c {
		case Approve:
			t.Approve++
		case Reject:
			t.Reject++
		}
	}
	return t
}

// Select maps chosen option indices to URLs. When any chosen index holds sentinel the whole selection
// is a rejection and no URLs are returned. Out of range indices are ignored and the result keeps
// the order of options, deduplicated by normalized URL.
func Select(options []string, chosen []int, sentinel string) (urls []string, rejected bool) {
	picked := make([]bool, len(options))
	for _, i := range chosen {
		if i < 0 || i >= len(options) {
			continue
		}
		if options[i] == sentinel {
			return nil, true
		}
		picked[i] = true
	}
	for i, ok := range picked {
		if ok {
			urls = append(urls, options[i])
		}
	}
	return submission.Dedupe(urls), false
}

// ChosenByCount returns the indices of options with at least one voter, as reported by a closed poll
func ChosenByCount(voterCounts []int) []int {
	var out []int
	for i, n := range voterCounts {
		if n > 0 {
			out = append(out, i)
		}
	}
	return out
}
