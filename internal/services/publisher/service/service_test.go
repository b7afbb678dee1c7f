package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"binvote/internal/adapters/binlist"
	"binvote/internal/core/tally"
	kit "binvote/internal/platform/testkit"
	voting "binvote/internal/services/voting/domain"
	vt "binvote/internal/services/voting/votingtest"
)

type tracker struct {
	mu       sync.Mutex
	comments map[int]string
	closed   []int
	fail     error
}

func (t *tracker) Comment(_ context.Context, n int, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	if t.comments == nil {
		t.comments = map[int]string{}
	}
	t.comments[n] = body
	return nil
}

func (t *tracker) CloseIssue(_ context.Context, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = append(t.closed, n)
	return nil
}

type meta struct{}

func (meta) Lookup(_ context.Context, bin string) (binlist.Meta, error) {
	return binlist.Meta{BIN: bin, Brand: "VISA", Country: "US"}, nil
}

func decision(n int, outcome voting.Outcome, urls ...string) voting.Decision {
	return voting.Decision{
		Ref:          voting.Ref{Owner: "o", Repo: "r", Number: n},
		BIN:          "411111",
		Strategy:     voting.StrategyGroup,
		Outcome:      outcome,
		SelectedURLs: urls,
		Totals:       tally.Totals{Approve: 3, Reject: 1},
	}
}

type rig struct {
	svc   *Svc
	store *vt.MemStore
	tr    *tracker
	note  *vt.Notifier
}

func newRig() *rig {
	r := &rig{store: vt.NewMemStore(), tr: &tracker{}, note: &vt.Notifier{}}
	r.svc = New(Deps{Store: r.store, Tracker: r.tr, Notifier: r.note, Meta: meta{}, Images: vt.Images{}}, Config{Previews: 2})
	return r
}

func TestApprovedDecisionRunsEveryStep(t *testing.T) {
	r := newRig()
	d := decision(5, voting.Approved, "https://a/1.jpg", "https://b/2.jpg", "https://c/3.jpg")
	rep := r.svc.Publish(context.Background(), d)

	if rep != (voting.Report{Claimed: true, Stored: true, FirstInsertion: true, Commented: true, Closed: true, Notified: true}) {
		t.Fatalf("report = %+v", rep)
	}
	if got := r.store.Photos["411111"]; len(got) != 3 {
		t.Fatalf("stored = %v", got)
	}
	kit.MustContain(t, r.tr.comments[5], "投票结束啦，被入库的BIN：411111\n投票结果：通过\n总人数=4\n不通过=1\n通过=3")
	if len(r.tr.closed) != 1 || r.tr.closed[0] != 5 {
		t.Fatalf("closed = %v", r.tr.closed)
	}
	sent := r.note.Sent()
	if len(sent) != 1 || len(sent[0].Images) != 2 {
		t.Fatalf("notifications = %+v", sent)
	}
	kit.MustContain(t, sent[0].Text, "新BIN入库啦：\nBIN：411111\n品牌：VISA")
	kit.MustContain(t, sent[0].Text, "國家：US")
}

func TestRejectedDecisionOnlyComments(t *testing.T) {
	r := newRig()
	d := decision(6, voting.Rejected)
	d.Strategy = voting.StrategyPoll
	d.Trigger = voting.TriggerFirstAnswer
	rep := r.svc.Publish(context.Background(), d)
	if rep.Stored || rep.Notified || !rep.Commented || !rep.Closed {
		t.Fatalf("report = %+v", rep)
	}
	kit.MustContain(t, r.tr.comments[6], "Telegram 首票已产生，选中链接数=0\n投票结果：不通过")
	if len(r.store.Photos) != 0 || len(r.note.Sent()) != 0 {
		t.Fatalf("rejection stored or notified")
	}
}

func TestSecondDecisionForSubmissionIsDropped(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	r.svc.Publish(ctx, decision(7, voting.Approved, "https://a/1.jpg"))
	rep := r.svc.Publish(ctx, decision(7, voting.Rejected))
	if rep != (voting.Report{}) {
		t.Fatalf("report = %+v", rep)
	}
	if len(r.tr.closed) != 1 {
		t.Fatalf("closed twice: %v", r.tr.closed)
	}
}

func TestBinAnnouncedOnce(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() { r.svc.Publish(ctx, decision(100+i, voting.Approved, "https://a/1.jpg")) })
	}
	wg.Wait()
	if n := len(r.note.Sent()); n != 1 {
		t.Fatalf("notifications = %d", n)
	}
}

// firstAlways reports every insertion as the first, as two racing finalize paths might see it
type firstAlways struct{ *vt.MemStore }

func (f firstAlways) SetApprovedURLs(ctx context.Context, bin string, urls []string) (bool, error) {
	_, err := f.MemStore.SetApprovedURLs(ctx, bin, urls)
	return true, err
}

func TestMarkerGuardsRepeatedFirstInsertions(t *testing.T) {
	r := newRig()
	r.svc.deps.Store = firstAlways{r.store}
	ctx := context.Background()
	a := r.svc.Publish(ctx, decision(1, voting.Approved, "https://a/1.jpg"))
	b := r.svc.Publish(ctx, decision(2, voting.Approved, "https://a/1.jpg"))
	if !a.Notified || b.Notified || !b.FirstInsertion {
		t.Fatalf("a=%+v b=%+v", a, b)
	}
	if n := len(r.note.Sent()); n != 1 {
		t.Fatalf("notifications = %d", n)
	}
}

func TestFailingStepsDoNotStopOthers(t *testing.T) {
	r := newRig()
	r.tr.fail = errors.New("github 502")
	r.note.Err = errors.New("admin group gone")
	rep := r.svc.Publish(context.Background(), decision(9, voting.Approved, "https://a/1.jpg"))
	if !rep.Stored || rep.Commented || !rep.Closed || rep.Notified {
		t.Fatalf("report = %+v", rep)
	}
	if !r.store.Notified["411111"] {
		t.Fatalf("marker must be set before sending")
	}

	r2 := newRig()
	r2.store.Fail = errors.New("db down")
	rep = r2.svc.Publish(context.Background(), decision(10, voting.Approved, "https://a/1.jpg"))
	if !rep.Claimed || rep.Stored || !rep.Commented || !rep.Closed {
		t.Fatalf("report = %+v", rep)
	}
	kit.MustContain(t, r2.tr.comments[10], "被入库的BIN：无")
}

func TestApprovalWithoutBin(t *testing.T) {
	r := newRig()
	d := decision(11, voting.Approved, "https://a/1.jpg")
	d.BIN = ""
	rep := r.svc.Publish(context.Background(), d)
	if rep.Stored || !rep.Commented {
		t.Fatalf("report = %+v", rep)
	}
}
