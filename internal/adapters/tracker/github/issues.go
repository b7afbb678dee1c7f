package github

import (
	"context"
	"net/http"
	"time"

	perr "binvote/internal/platform/errors"
)

// Issue is the part of a GitHub issue document ingest reads
type Issue struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	HTMLURL     string    `json:"html_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// ListOpenIssues pages through every open issue until an empty page. Pull requests are skipped.
func (c *Client) ListOpenIssues(ctx context.Context) ([]Issue, error) {
	var all []Issue
	for page := 1; ; page++ {
		path := c.repoPath("/issues?state=open&per_page=%d&page=%d", perPage, page)
		resp, err := c.Do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return all, err
		}
		var batch []Issue
		if err := c.decode(resp, path, &batch); err != nil {
			return all, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		for _, is := range batch {
			if is.PullRequest == nil {
				all = append(all, is)
			}
		}
		if len(batch) < perPage {
			return all, nil
		}
	}
}

// CloseIssue sets the issue state to closed
func (c *Client) CloseIssue(ctx context.Context, number int) error {
	if number <= 0 {
		return perr.InvalidArgf("issue number %d", number)
	}
	path := c.repoPath("/issues/%d", number)
	resp, err := c.Do(ctx, http.MethodPatch, path, map[string]string{"state": "closed"})
	if err != nil {
		return err
	}
	return drainAndClose(resp.Body)
}

// Comment posts body as a new issue comment
func (c *Client) Comment(ctx context.Context, number int, body string) error {
	if number <= 0 {
		return perr.InvalidArgf("issue number %d", number)
	}
	path := c.repoPath("/issues/%d/comments", number)
	resp, err := c.Do(ctx, http.MethodPost, path, map[string]string{"body": body})
	if err != nil {
		return err
	}
	return drainAndClose(resp.Body)
}
