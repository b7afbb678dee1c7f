// Package votingtest holds in memory stand ins for the voting ports, shared by service tests
package votingtest

import (
	"context"
	"slices"
	"sync"

	"binvote/internal/core/submission"
	perr "binvote/internal/platform/errors"
	dom "binvote/internal/services/voting/domain"
)

// MemStore is a dom.Store kept in maps. Fail, when set, is returned by every call.
type MemStore struct {
	mu        sync.Mutex
	Seen      map[string]dom.Submission
	Polls     map[string]dom.PollRecord
	Tokens    map[string]dom.ApprovalToken
	Photos    map[string][]string
	Notified  map[string]bool
	Decisions map[string]dom.Decision
	Fail      error
}

// NewMemStore returns an empty store
func NewMemStore() *MemStore {
	return &MemStore{
		Seen:      map[string]dom.Submission{},
		Polls:     map[string]dom.PollRecord{},
		Tokens:    map[string]dom.ApprovalToken{},
		Photos:    map[string][]string{},
		Notified:  map[string]bool{},
		Decisions: map[string]dom.Decision{},
	}
}

var _ dom.Store = (*MemStore)(nil)

func (m *MemStore) MarkIssueSeen(_ context.Context, s dom.Submission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	if _, ok := m.Seen[s.Ref.Key()]; ok {
		return true, nil
	}
	m.Seen[s.Ref.Key()] = s
	return false, nil
}

func (m *MemStore) ForgetIssue(_ context.Context, ref dom.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	delete(m.Seen, ref.Key())
	return nil
}

func (m *MemStore) PutPollRecord(_ context.Context, r dom.PollRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.Polls[r.PollID] = r
	return nil
}

func (m *MemStore) GetPollRecord(_ context.Context, id string) (dom.PollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return dom.PollRecord{}, m.Fail
	}
	r, ok := m.Polls[id]
	if !ok {
		return dom.PollRecord{}, perr.UnknownKeyf("poll %s", id)
	}
	return r, nil
}

func (m *MemStore) FinalizePollRecord(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	r, ok := m.Polls[id]
	if !ok {
		return false, perr.UnknownKeyf("poll %s", id)
	}
	if r.Finalized {
		return false, nil
	}
	r.Finalized = true
	m.Polls[id] = r
	return true, nil
}

func (m *MemStore) OpenSiblingPolls(_ context.Context, ref dom.Ref, except string) ([]dom.PollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	var out []dom.PollRecord
	for id, r := range m.Polls {
		if id != except && r.Ref == ref && !r.Finalized {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b dom.PollRecord) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemStore) PutApprovalToken(_ context.Context, t dom.ApprovalToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.Tokens[t.Token] = t
	return nil
}

func (m *MemStore) GetApprovalToken(_ context.Context, token string) (dom.ApprovalToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tokens[token]
	if !ok {
		return dom.ApprovalToken{}, perr.UnknownKeyf("token %s", token)
	}
	return t, nil
}

func (m *MemStore) DeleteApprovalToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Tokens, token)
	return nil
}

func (m *MemStore) ConsumeApprovalToken(_ context.Context, token string) (dom.ApprovalToken, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return dom.ApprovalToken{}, false, m.Fail
	}
	t, ok := m.Tokens[token]
	delete(m.Tokens, token)
	return t, ok, nil
}

func (m *MemStore) ClaimDecision(_ context.Context, d dom.Decision) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	if _, ok := m.Decisions[d.Ref.Key()]; ok {
		return false, nil
	}
	m.Decisions[d.Ref.Key()] = d
	return true, nil
}

func (m *MemStore) SetApprovedURLs(_ context.Context, bin string, urls []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	if bin == "" || len(urls) == 0 {
		return false, perr.InvalidArgf("bin and urls are required")
	}
	_, had := m.Photos[bin]
	m.Photos[bin] = submission.Dedupe(urls)
	return !had, nil
}

func (m *MemStore) GetApprovedURLs(_ context.Context, bin string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	return slices.Clone(m.Photos[bin]), nil
}

func (m *MemStore) TryMarkNotified(_ context.Context, bin string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	if m.Notified[bin] {
		return false, nil
	}
	m.Notified[bin] = true
	return true, nil
}

// Poll returns a copy of a stored poll record
func (m *MemStore) Poll(id string) (dom.PollRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Polls[id]
	return r, ok
}

// TokenCount is the number of unconsumed tokens
func (m *MemStore) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Tokens)
}
