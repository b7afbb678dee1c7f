package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	perr "binvote/internal/platform/errors"
	kit "binvote/internal/platform/testkit"
	"binvote/internal/services/ingest/domain"
	voting "binvote/internal/services/voting/domain"
	vt "binvote/internal/services/voting/votingtest"
)

type tracker struct {
	issues []domain.Issue
	err    error
	calls  int
}

func (t *tracker) Owner() string { return "cards" }
func (t *tracker) Repo() string  { return "bins" }
func (t *tracker) ListOpenIssues(context.Context) ([]domain.Issue, error) {
	t.calls++
	return append([]domain.Issue(nil), t.issues...), t.err
}

type dispatcher struct {
	mu          sync.Mutex
	poll, group bool
	failPoll    bool
	groupDown   int // StartGroupSession fails this many times before it works
	started     []string
}

func (d *dispatcher) rec(kind string, s voting.Submission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = append(d.started, kind+":"+s.Ref.Key())
}

func (d *dispatcher) StartGroupSession(_ context.Context, s voting.Submission) error {
	if d.groupDown > 0 {
		d.groupDown--
		return perr.Unavailablef("onebot websocket not connected")
	}
	d.rec("group", s)
	return nil
}
func (d *dispatcher) StartPoll(_ context.Context, s voting.Submission) error {
	if d.failPoll {
		return perr.Unavailablef("bot down")
	}
	d.rec("poll", s)
	return nil
}
func (d *dispatcher) StartToken(_ context.Context, s voting.Submission) error {
	d.rec("token", s)
	return nil
}
func (d *dispatcher) GroupEnabled() bool { return d.group }
func (d *dispatcher) PollEnabled() bool  { return d.poll }

func issues() []domain.Issue {
	return []domain.Issue{
		{Number: 3, Title: "BIN 411111", Body: `<img src="https://img.example/a.jpg"> https://img.example/b.png`},
		{Number: 1, Title: "BIN 522222", Body: "https://img.example/only.jpg"},
		{Number: 2, Title: "no pictures", Body: "just text 400000"},
	}
}

func TestTickRoutesByCandidateCount(t *testing.T) {
	tr := &tracker{issues: issues()}
	store := vt.NewMemStore()
	d := &dispatcher{poll: true, group: true}
	s := New(domain.Deps{Tracker: tr, Seen: store, Dispatcher: d}, Config{}, nil)

	st, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if st != (domain.TickStats{Listed: 3, New: 3, Dispatched: 2}) {
		t.Fatalf("stats = %+v", st)
	}
	want := []string{"token:cards/bins#1", "poll:cards/bins#3", "group:cards/bins#3"}
	if len(d.started) != len(want) {
		t.Fatalf("started = %v", d.started)
	}
	for i := range want {
		if d.started[i] != want[i] {
			t.Fatalf("started = %v", d.started)
		}
	}
	seen := store.Seen["cards/bins#3"]
	if seen.BIN != "411111" || len(seen.Candidates) != 2 || seen.Candidates[0] != "https://img.example/a.jpg" {
		t.Fatalf("seen = %+v", seen)
	}

	st, _ = s.Tick(context.Background())
	if st.New != 0 || len(d.started) != 3 {
		t.Fatalf("second tick redispatched: %+v %v", st, d.started)
	}
}

func TestSingleCandidateFallsBackToGroup(t *testing.T) {
	tr := &tracker{issues: issues()[1:2]}
	d := &dispatcher{group: true}
	s := New(domain.Deps{Tracker: tr, Seen: vt.NewMemStore(), Dispatcher: d}, Config{}, nil)
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(d.started) != 1 || d.started[0] != "group:cards/bins#1" {
		t.Fatalf("started = %v", d.started)
	}
}

func TestOneStrategyFailingStillCounts(t *testing.T) {
	tr := &tracker{issues: issues()[:1]}
	d := &dispatcher{poll: true, group: true, failPoll: true}
	s := New(domain.Deps{Tracker: tr, Seen: vt.NewMemStore(), Dispatcher: d}, Config{}, nil)
	st, _ := s.Tick(context.Background())
	if st.Dispatched != 1 || st.Failed != 0 || d.started[0] != "group:cards/bins#3" {
		t.Fatalf("stats = %+v started = %v", st, d.started)
	}

	d2 := &dispatcher{poll: true, failPoll: true}
	s2 := New(domain.Deps{Tracker: tr, Seen: vt.NewMemStore(), Dispatcher: d2}, Config{}, nil)
	st, _ = s2.Tick(context.Background())
	if st.Failed != 1 || st.Dispatched != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestTickErrors(t *testing.T) {
	tr := &tracker{err: perr.Unavailablef("github down")}
	s := New(domain.Deps{Tracker: tr, Seen: vt.NewMemStore(), Dispatcher: &dispatcher{}}, Config{}, nil)
	if _, err := s.Tick(context.Background()); !perr.IsAdapterUnavailable(err) {
		t.Fatalf("err = %v", err)
	}

	store := vt.NewMemStore()
	store.Fail = errors.New("db gone")
	d := &dispatcher{poll: true}
	s = New(domain.Deps{Tracker: &tracker{issues: issues()}, Seen: store, Dispatcher: d}, Config{}, nil)
	st, err := s.Tick(context.Background())
	if err != nil || st.Failed != 3 || len(d.started) != 0 {
		t.Fatalf("st=%+v err=%v started=%v", st, err, d.started)
	}
}

func TestRunTicksImmediatelyAndStops(t *testing.T) {
	tr := &tracker{}
	s := New(domain.Deps{Tracker: tr, Seen: vt.NewMemStore(), Dispatcher: &dispatcher{}}, Config{Interval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if tr.calls != 1 {
		t.Fatalf("calls = %d", tr.calls)
	}
}

func TestFailedDispatchRetriedNextPass(t *testing.T) {
	store := vt.NewMemStore()
	d := &dispatcher{group: true, groupDown: 1}
	s := New(domain.Deps{Tracker: &tracker{issues: issues()[1:2]}, Seen: store, Dispatcher: d}, Config{}, nil)

	st, err := s.Tick(context.Background())
	if err != nil || st != (domain.TickStats{Listed: 1, New: 1, Failed: 1}) {
		t.Fatalf("first pass = %+v, %v", st, err)
	}
	if _, ok := store.Seen["cards/bins#1"]; ok {
		t.Fatalf("undispatched issue still marked seen")
	}

	st, err = s.Tick(context.Background())
	if err != nil || st != (domain.TickStats{Listed: 1, New: 1, Dispatched: 1}) {
		t.Fatalf("second pass = %+v, %v", st, err)
	}
	if len(d.started) != 1 || d.started[0] != "group:cards/bins#1" {
		t.Fatalf("started = %v", d.started)
	}
	if _, ok := store.Seen["cards/bins#1"]; !ok {
		t.Fatalf("dispatched issue not marked seen")
	}
}

func TestRunWaitsUntilReady(t *testing.T) {
	tr := &tracker{}
	var checks atomic.Int32
	ready := func() bool { return checks.Add(1) > 3 }
	s := New(domain.Deps{Tracker: tr, Seen: vt.NewMemStore(), Dispatcher: &dispatcher{}, Ready: ready},
		Config{Interval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	kit.Eventually(t, 2*time.Second, func() bool { return checks.Load() > 5 }, "ready never consulted")
	cancel()
	<-done

	if want := int(checks.Load()) - 3; tr.calls != want {
		t.Fatalf("listed %d times, want %d (no pass before ready)", tr.calls, want)
	}
}
