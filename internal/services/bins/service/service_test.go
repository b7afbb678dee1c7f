package service

import (
	"context"
	"errors"
	"testing"

	"binvote/internal/adapters/binlist"
	perr "binvote/internal/platform/errors"
	kit "binvote/internal/platform/testkit"
	"binvote/internal/services/bins/domain"
	vt "binvote/internal/services/voting/votingtest"
)

type meta struct{ err error }

func (m meta) Lookup(_ context.Context, bin string) (binlist.Meta, error) {
	if m.err != nil {
		return binlist.Meta{BIN: bin}, m.err
	}
	return binlist.Meta{BIN: bin, Brand: "MASTERCARD", Issuer: "Example Bank"}, nil
}

func newSvc(t *testing.T, m meta) (*Svc, *vt.MemStore) {
	t.Helper()
	store := vt.NewMemStore()
	return New(m, store, vt.Images{Missing: map[string]bool{"https://x/broken.jpg": true}}, Config{Owner: "cards", Repo: "bins"}), store
}

func TestLookupWithPhotos(t *testing.T) {
	s, store := newSvc(t, meta{})
	store.Photos["522222"] = []string{"https://x/1.jpg", "https://X/1.jpg?v=2", "https://x/broken.jpg"}

	res, err := s.Lookup(context.Background(), domain.Query{BIN: "522222"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(res.URLs) != 2 || res.ReportURL != "" || res.Meta.Brand != "MASTERCARD" {
		t.Fatalf("result = %+v", res)
	}

	msg := s.Reply(context.Background(), "522222")
	if msg.Images() != 1 {
		t.Fatalf("images = %d", msg.Images())
	}
	kit.MustContain(t, msg.PlainText(), "BIN：522222\n品牌：MASTERCARD\n類型：---")
}

func TestLookupWithoutPhotosOffersReportLink(t *testing.T) {
	s, _ := newSvc(t, meta{})
	res, err := s.Lookup(context.Background(), domain.Query{BIN: "411111"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	want := "https://github.com/cards/bins/issues/new?template=bin-photos.md"
	if res.ReportURL != want {
		t.Fatalf("report = %q", res.ReportURL)
	}
	kit.MustContain(t, s.Reply(context.Background(), "411111").PlainText(), "\n\n查询不到卡面？通过以下链接进行卡面上报：\n"+want)
}

func TestLookupFailures(t *testing.T) {
	s, _ := newSvc(t, meta{})
	if _, err := s.Lookup(context.Background(), domain.Query{BIN: "12ab"}); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("bad bin err = %v", err)
	}

	s, _ = newSvc(t, meta{err: perr.Unavailablef("lookup down")})
	_, err := s.Lookup(context.Background(), domain.Query{BIN: "411111"})
	if !perr.IsAdapterUnavailable(err) {
		t.Fatalf("err = %v", err)
	}
	kit.MustContain(t, s.Reply(context.Background(), "411111").PlainText(), "查询失败: ")

	s, store := newSvc(t, meta{})
	store.Fail = errors.New("db down")
	if _, err := s.Lookup(context.Background(), domain.Query{BIN: "411111"}); err == nil {
		t.Fatalf("store failure swallowed")
	}
}
