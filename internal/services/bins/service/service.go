// Package service answers BIN queries from stored photos and the metadata lookup
package service

import (
	"context"
	"fmt"

	"binvote/internal/core/submission"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/net/http/bind"
	"binvote/internal/services/bins/domain"
	voting "binvote/internal/services/voting/domain"
)

const maxReplyImages = 15

// Config for the query service
type Config struct {
	Owner string
	Repo  string
}

// Svc serves BIN queries
type Svc struct {
	meta   domain.MetaPort
	photos domain.PhotoStore
	images voting.ImageFetcher
	cfg    Config
}

// New builds the query service; images may be nil when chat replies are not needed
func New(meta domain.MetaPort, photos domain.PhotoStore, images voting.ImageFetcher, cfg Config) *Svc {
	return &Svc{meta: meta, photos: photos, images: images, cfg: cfg}
}

// ReportURL is the new issue link for reporting photos of an unknown BIN
func (s *Svc) ReportURL() string {
	if s.cfg.Owner == "" || s.cfg.Repo == "" {
		return ""
	}
	return fmt.Sprintf("https://github.com/%s/%s/issues/new?template=bin-photos.md", s.cfg.Owner, s.cfg.Repo)
}

// Lookup returns metadata and approved photo URLs for q.BIN
func (s *Svc) Lookup(ctx context.Context, q domain.Query) (domain.Result, error) {
	if err := bind.Struct(q); err != nil {
		return domain.Result{}, err
	}
	m, err := s.meta.Lookup(ctx, q.BIN)
	if err != nil {
		return domain.Result{}, perr.Wrapf(err, perr.CodeOf(err), "bin metadata lookup")
	}
	urls, err := s.photos.GetApprovedURLs(ctx, q.BIN)
	if err != nil {
		return domain.Result{}, err
	}
	res := domain.Result{BIN: q.BIN, Meta: m, URLs: submission.Dedupe(urls)}
	if len(res.URLs) == 0 {
		res.ReportURL = s.ReportURL()
	}
	return res, nil
}

// Reply renders a chat answer: metadata text followed by up to 15 photos, or the report link when
// none are stored
func (s *Svc) Reply(ctx context.Context, bin string) voting.Message {
	res, err := s.Lookup(ctx, domain.Query{BIN: bin})
	if err != nil {
		return voting.Message{}.Text("查询失败: " + err.Error())
	}
	text := res.Meta.Text()
	if res.ReportURL != "" {
		text += "\n\n查询不到卡面？通过以下链接进行卡面上报：\n" + res.ReportURL
	}
	msg := voting.Message{}.Text(text)
	if s.images == nil {
		return msg
	}
	for _, b := range s.images.All(ctx, res.URLs[:min(len(res.URLs), maxReplyImages)]) {
		msg = msg.Image(b)
	}
	return msg
}
