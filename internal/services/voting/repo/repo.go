// Package repo is the postgres storage for the voting engine and its publisher
package repo

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"binvote/internal/modkit/repokit"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/store"
	"binvote/internal/services/voting/domain"
)

//go:embed schema.sql
var schema string

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs the repo binder for Postgres
func NewPG() repokit.Binder[domain.Store] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) domain.Store { return &pg{q: q} }

// Migrate applies the schema; every statement is IF NOT EXISTS so it runs on each start
func Migrate(ctx context.Context, q repokit.Queryer) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := q.Exec(ctx, stmt); err != nil {
			return perr.FromPostgres(err, "migrate voting schema")
		}
	}
	return nil
}

// MarkIssueSeen implements domain.SeenStore
func (s *pg) MarkIssueSeen(ctx context.Context, sub domain.Submission) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO seen_issues
			(owner, repo, number, title, body, state, parsed_bin, candidate_urls, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner, repo, number) DO NOTHING`,
		sub.Ref.Owner, sub.Ref.Repo, sub.Ref.Number, sub.Title, sub.Body, sub.State,
		sub.BIN, nonNil(sub.Candidates), nullTime(sub.CreatedAt), nullTime(sub.UpdatedAt),
	)
	if err != nil {
		return false, perr.FromPostgres(err, "mark issue seen")
	}
	return tag.RowsAffected() == 0, nil
}

// ForgetIssue implements domain.SeenStore
func (s *pg) ForgetIssue(ctx context.Context, ref domain.Ref) error {
	_, err := s.q.Exec(ctx, `
		DELETE FROM seen_issues WHERE owner = $1 AND repo = $2 AND number = $3`,
		ref.Owner, ref.Repo, ref.Number,
	)
	return perr.FromPostgres(err, "forget issue")
}

// PutPollRecord implements domain.PollStore
func (s *pg) PutPollRecord(ctx context.Context, r domain.PollRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO poll_records (poll_id, owner, repo, number, bin, chat_id, message_id, options, finalized)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (poll_id) DO NOTHING`,
		r.PollID, r.Ref.Owner, r.Ref.Repo, r.Ref.Number, r.BIN, r.ChatID, r.MessageID, nonNil(r.Options), r.Finalized,
	)
	return perr.FromPostgres(err, "put poll record")
}

const pollCols = `poll_id, owner, repo, number, bin, chat_id, message_id, options, finalized, created_at`

func scanPoll(row store.Row) (domain.PollRecord, error) {
	var r domain.PollRecord
	err := row.Scan(&r.PollID, &r.Ref.Owner, &r.Ref.Repo, &r.Ref.Number, &r.BIN,
		&r.ChatID, &r.MessageID, &r.Options, &r.Finalized, &r.CreatedAt)
	return r, err
}

// GetPollRecord implements domain.PollStore
func (s *pg) GetPollRecord(ctx context.Context, pollID string) (domain.PollRecord, error) {
	r, err := store.One(ctx, s.q, scanPoll, `SELECT `+pollCols+` FROM poll_records WHERE poll_id = $1`, pollID)
	if errors.Is(err, store.ErrNoRows) {
		return r, perr.UnknownKeyf("poll %s", pollID)
	}
	if err != nil {
		return r, perr.FromPostgres(err, "get poll record")
	}
	return r, nil
}

// FinalizePollRecord implements domain.PollStore. The conditional update is the compare and set;
// zero rows means another path already finalized it, or the poll was never recorded.
func (s *pg) FinalizePollRecord(ctx context.Context, pollID string) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE poll_records SET finalized = true, finalized_at = now()
		WHERE poll_id = $1 AND NOT finalized`, pollID)
	if err != nil {
		return false, perr.FromPostgres(err, "finalize poll record")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	_, found, err := store.Scalar[string](ctx, s.q, `SELECT poll_id FROM poll_records WHERE poll_id = $1`, pollID)
	if err != nil {
		return false, perr.FromPostgres(err, "finalize poll record")
	}
	if !found {
		return false, perr.UnknownKeyf("poll %s", pollID)
	}
	return false, nil
}

// OpenSiblingPolls implements domain.PollStore
func (s *pg) OpenSiblingPolls(ctx context.Context, ref domain.Ref, exceptPollID string) ([]domain.PollRecord, error) {
	rs, err := store.Many(ctx, s.q, scanPoll, `
		SELECT `+pollCols+` FROM poll_records
		WHERE owner = $1 AND repo = $2 AND number = $3 AND poll_id <> $4 AND NOT finalized
		ORDER BY created_at`, ref.Owner, ref.Repo, ref.Number, exceptPollID)
	if err != nil {
		return nil, perr.FromPostgres(err, "open sibling polls")
	}
	return rs, nil
}

// PutApprovalToken implements domain.TokenStore
func (s *pg) PutApprovalToken(ctx context.Context, t domain.ApprovalToken) error {
	err := store.ExecOne(ctx, s.q, `
		INSERT INTO approval_tokens (token, owner, repo, number, bin, url)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.Token, t.Ref.Owner, t.Ref.Repo, t.Ref.Number, t.BIN, t.URL)
	return perr.FromPostgres(err, "put approval token")
}

const tokenCols = `token, owner, repo, number, bin, url, created_at`

func scanToken(row store.Row) (domain.ApprovalToken, error) {
	var t domain.ApprovalToken
	err := row.Scan(&t.Token, &t.Ref.Owner, &t.Ref.Repo, &t.Ref.Number, &t.BIN, &t.URL, &t.CreatedAt)
	return t, err
}

// GetApprovalToken implements domain.TokenStore
func (s *pg) GetApprovalToken(ctx context.Context, token string) (domain.ApprovalToken, error) {
	t, err := store.One(ctx, s.q, scanToken, `SELECT `+tokenCols+` FROM approval_tokens WHERE token = $1`, token)
	if errors.Is(err, store.ErrNoRows) {
		return t, perr.UnknownKeyf("approval token %s", token)
	}
	if err != nil {
		return t, perr.FromPostgres(err, "get approval token")
	}
	return t, nil
}

// DeleteApprovalToken implements domain.TokenStore
func (s *pg) DeleteApprovalToken(ctx context.Context, token string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM approval_tokens WHERE token = $1`, token)
	return perr.FromPostgres(err, "delete approval token")
}

// ConsumeApprovalToken implements domain.TokenStore; DELETE RETURNING makes the first caller the only winner
func (s *pg) ConsumeApprovalToken(ctx context.Context, token string) (domain.ApprovalToken, bool, error) {
	t, err := store.One(ctx, s.q, scanToken, `DELETE FROM approval_tokens WHERE token = $1 RETURNING `+tokenCols, token)
	if errors.Is(err, store.ErrNoRows) {
		return t, false, nil
	}
	if err != nil {
		return t, false, perr.FromPostgres(err, "consume approval token")
	}
	return t, true, nil
}

// ClaimDecision implements domain.OutcomeStore
func (s *pg) ClaimDecision(ctx context.Context, d domain.Decision) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO decisions (owner, repo, number, bin, strategy, outcome, trigger, urls, approve, reject)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner, repo, number) DO NOTHING`,
		d.Ref.Owner, d.Ref.Repo, d.Ref.Number, d.BIN, string(d.Strategy), string(d.Outcome), d.Trigger,
		nonNil(d.SelectedURLs), d.Totals.Approve, d.Totals.Reject,
	)
	if err != nil {
		return false, perr.FromPostgres(err, "claim decision")
	}
	return tag.RowsAffected() == 1, nil
}

// SetApprovedURLs implements domain.OutcomeStore. xmax is zero only on a freshly inserted row,
// which tells a first insertion apart from a replacement in one statement.
func (s *pg) SetApprovedURLs(ctx context.Context, bin string, urls []string) (bool, error) {
	if bin == "" || len(urls) == 0 {
		return false, perr.InvalidArgf("set approved urls: bin %q with %d urls", bin, len(urls))
	}
	first, _, err := store.Scalar[bool](ctx, s.q, `
		INSERT INTO bin_photos (bin, urls) VALUES ($1, $2)
		ON CONFLICT (bin) DO UPDATE SET urls = EXCLUDED.urls, updated_at = now()
		RETURNING (xmax = 0)`, bin, urls)
	if err != nil {
		return false, perr.FromPostgres(err, "set approved urls")
	}
	return first, nil
}

// GetApprovedURLs implements domain.OutcomeStore; an unknown BIN has no URLs
func (s *pg) GetApprovedURLs(ctx context.Context, bin string) ([]string, error) {
	urls, _, err := store.Scalar[[]string](ctx, s.q, `SELECT urls FROM bin_photos WHERE bin = $1`, bin)
	if err != nil {
		return nil, perr.FromPostgres(err, "get approved urls")
	}
	return urls, nil
}

// TryMarkNotified implements domain.OutcomeStore
func (s *pg) TryMarkNotified(ctx context.Context, bin string) (bool, error) {
	tag, err := s.q.Exec(ctx, `INSERT INTO bin_notified (bin) VALUES ($1) ON CONFLICT (bin) DO NOTHING`, bin)
	if err != nil {
		return false, perr.FromPostgres(err, "mark notified")
	}
	return tag.RowsAffected() == 1, nil
}
