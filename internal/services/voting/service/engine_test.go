package service

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"binvote/internal/core/tally"
	perr "binvote/internal/platform/errors"
	kit "binvote/internal/platform/testkit"
	dom "binvote/internal/services/voting/domain"
	vt "binvote/internal/services/voting/votingtest"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type rig struct {
	e     *Engine
	store *vt.MemStore
	chat  *vt.Chat
	bot   *vt.Bot
	pub   *vt.Publisher
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	r := &rig{store: vt.NewMemStore(), chat: &vt.Chat{}, bot: &vt.Bot{}, pub: &vt.Publisher{}}
	if cfg.GroupChannels == nil {
		cfg.GroupChannels = []int64{100, 200}
	}
	if cfg.PollChats == nil {
		cfg.PollChats = []int64{-1}
	}
	r.e = New(Deps{Store: r.store, Chat: r.chat, Bot: r.bot, Publisher: r.pub, Images: vt.Images{}}, cfg)
	r.e.now = func() time.Time { return t0 }
	r.e.newToken = func() string { return "tok-1" }
	return r
}

func sub(n int, urls ...string) dom.Submission {
	return dom.Submission{
		Ref:        dom.Ref{Owner: "o", Repo: "r", Number: n},
		BIN:        "411111",
		Candidates: urls,
	}
}

func (r *rig) reply(t *testing.T, ch int64, voter int64, text string) {
	t.Helper()
	var prompt string
	for _, b := range r.chat.Messages() {
		if b.Channel == ch {
			prompt = b.ID
			break
		}
	}
	if err := r.e.Handle(context.Background(), dom.ChatReplyEvent{ChannelID: ch, ReplyTo: prompt, VoterID: voter, Text: text}); err != nil {
		t.Fatalf("reply: %v", err)
	}
}

func TestGroupPromptCarriesLinksAndImages(t *testing.T) {
	r := newRig(t, Config{})
	r.e.deps.Images = vt.Images{Missing: map[string]bool{"https://b/2.jpg": true}}
	if err := r.e.StartGroupSession(context.Background(), sub(7, "https://a/1.jpg", "https://b/2.jpg")); err != nil {
		t.Fatalf("start: %v", err)
	}
	sent := r.chat.Messages()
	if len(sent) != 2 || sent[0].Channel != 100 || sent[1].Channel != 200 {
		t.Fatalf("broadcasts = %+v", sent)
	}
	msg := sent[0].Msg
	if msg.Images() != 1 {
		t.Fatalf("images = %d", msg.Images())
	}
	text := msg.PlainText()
	kit.MustContain(t, text, "您有新的审了吗订单 Issue #7，请及时处理\nhttps://github.com/o/r/issues/7\n\nBIN: 411111\n")
	kit.MustContain(t, text, "[https://b/2.jpg ]\n(图片下载失败)\n")
	kit.MustContain(t, text, "15分钟内回复本消息：通过 或 不通过")

	views := r.e.Sessions()
	if len(views) != 1 || views[0].Prompts != 2 || !views[0].DeadlineAt.Equal(t0.Add(15*time.Minute)) {
		t.Fatalf("sessions = %+v", views)
	}
}

func TestGroupLastChoiceCountsAndMajorityFinalizes(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	if err := r.e.StartGroupSession(ctx, sub(1, "https://a/1.jpg", "https://b/2.jpg")); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.reply(t, 100, 1, "通过")
	r.reply(t, 200, 2, "不通过")
	r.reply(t, 100, 1, "不 通 过")
	r.reply(t, 100, 3, "随便")

	r.e.Sweep(ctx, t0.Add(14*time.Minute))
	if len(r.pub.Published()) != 0 {
		t.Fatalf("finalized before deadline")
	}
	r.e.Sweep(ctx, t0.Add(15*time.Minute))

	ds := r.pub.Published()
	if len(ds) != 1 {
		t.Fatalf("decisions = %d", len(ds))
	}
	d := ds[0]
	if d.Outcome != dom.Rejected || d.Totals != (tally.Totals{Reject: 2}) || d.Trigger != dom.TriggerDeadline {
		t.Fatalf("decision = %+v", d)
	}
	if len(r.e.Sessions()) != 0 {
		t.Fatalf("session still live")
	}
	sent := r.chat.Messages()
	last := sent[len(sent)-1].Msg.PlainText()
	kit.MustContain(t, last, "投票结束啦，被入库的BIN：无\n投票结果：不通过\n总人数=2\n不通过=2\n通过=0")

	err := r.e.Handle(ctx, dom.ChatReplyEvent{ChannelID: 100, ReplyTo: sent[0].ID, VoterID: 9, Text: "通过"})
	if !perr.IsUnknownKey(err) {
		t.Fatalf("reply after close: %v", err)
	}
}

func TestGroupTieExtendsOnceThenRejects(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	_ = r.e.StartGroupSession(ctx, sub(2, "https://a/1.jpg", "https://b/2.jpg"))
	r.reply(t, 100, 1, "通过")
	r.reply(t, 100, 2, "不通过")

	r.e.Sweep(ctx, t0.Add(15*time.Minute))
	if len(r.pub.Published()) != 0 {
		t.Fatalf("tie must extend")
	}
	v := r.e.Sessions()[0]
	if !v.Extended || !v.DeadlineAt.Equal(t0.Add(20*time.Minute)) {
		t.Fatalf("view = %+v", v)
	}
	sent := r.chat.Messages()
	notice := sent[len(sent)-1]
	if notice.Channel != 100 || notice.Msg.PlainText() != "投票持平或无人投票，进入5分钟加时赛。" {
		t.Fatalf("notice = %+v", notice)
	}

	r.e.Sweep(ctx, t0.Add(19*time.Minute))
	if len(r.pub.Published()) != 0 {
		t.Fatalf("finalized before extended deadline")
	}
	r.e.Sweep(ctx, t0.Add(20*time.Minute))
	ds := r.pub.Published()
	if len(ds) != 1 || ds[0].Outcome != dom.Rejected || ds[0].Totals != (tally.Totals{Approve: 1, Reject: 1}) {
		t.Fatalf("decisions = %+v", ds)
	}
}

func TestGroupEmptyBallotExtendedThenApproved(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	urls := []string{"https://a/1.jpg", "https://b/2.jpg"}
	_ = r.e.StartGroupSession(ctx, sub(3, urls...))
	r.e.Sweep(ctx, t0.Add(15*time.Minute))
	r.reply(t, 200, 5, "approve")
	r.e.Sweep(ctx, t0.Add(20*time.Minute))

	ds := r.pub.Published()
	if len(ds) != 1 || ds[0].Outcome != dom.Approved || !reflect.DeepEqual(ds[0].SelectedURLs, urls) {
		t.Fatalf("decisions = %+v", ds)
	}
	sent := r.chat.Messages()
	kit.MustContain(t, sent[len(sent)-1].Msg.PlainText(), "被入库的BIN：411111")
}

func TestGroupSessionNeedsAChannel(t *testing.T) {
	r := newRig(t, Config{})
	r.chat.Down = map[int64]bool{100: true, 200: true}
	err := r.e.StartGroupSession(context.Background(), sub(4, "https://a/1.jpg"))
	if !perr.IsAdapterUnavailable(err) {
		t.Fatalf("err = %v", err)
	}
	if len(r.e.Sessions()) != 0 {
		t.Fatalf("session opened without prompts")
	}
}

func TestChatReplyToUnknownPrompt(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	if err := r.e.Handle(ctx, dom.ChatReplyEvent{ChannelID: 1, ReplyTo: "x", Text: "hello"}); err != nil {
		t.Fatalf("non vote text must be ignored: %v", err)
	}
	err := r.e.Handle(ctx, dom.ChatReplyEvent{ChannelID: 1, ReplyTo: "x", Text: "通过"})
	if !perr.IsUnknownKey(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestPollOptionsAndLabels(t *testing.T) {
	r := newRig(t, Config{RejectOption: true})
	var urls []string
	for i := range 12 {
		urls = append(urls, "https://h"+string(rune('a'+i))+".example/x.jpg")
	}
	if err := r.e.StartPoll(context.Background(), sub(5, urls...)); err != nil {
		t.Fatalf("start: %v", err)
	}
	p := r.bot.Polls[0]
	if len(p.Options) != 10 || p.Options[0] != "1. ha.example" || p.Options[9] != rejectLabel {
		t.Fatalf("labels = %v", p.Options)
	}
	rec, ok := r.store.Poll(p.Poll.PollID)
	if !ok || len(rec.Options) != 10 || rec.Options[9] != dom.RejectOption || rec.Options[8] != urls[8] {
		t.Fatalf("record = %+v", rec)
	}
	kit.MustContain(t, p.Question, "BIN 411111")
}

func TestPollFirstAnswerWins(t *testing.T) {
	r := newRig(t, Config{RejectOption: true, PollChats: []int64{-1, -2}})
	ctx := context.Background()
	urls := []string{"https://a/1.jpg", "https://b/2.jpg"}
	if err := r.e.StartPoll(ctx, sub(6, urls...)); err != nil {
		t.Fatalf("start: %v", err)
	}
	first, second := r.bot.Polls[0].Poll, r.bot.Polls[1].Poll

	if err := r.e.Handle(ctx, dom.PollAnswerEvent{PollID: first.PollID, VoterID: 1, Chosen: []int{1}}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	_ = r.e.Handle(ctx, dom.PollAnswerEvent{PollID: first.PollID, VoterID: 2, Chosen: []int{0}})
	_ = r.e.Handle(ctx, dom.PollClosedEvent{PollID: first.PollID, VoterCounts: []int{1, 1, 0}})
	_ = r.e.Handle(ctx, dom.PollAnswerEvent{PollID: second.PollID, VoterID: 3, Chosen: []int{2}})

	ds := r.pub.Published()
	if len(ds) != 1 {
		t.Fatalf("decisions = %d", len(ds))
	}
	if ds[0].Outcome != dom.Approved || !reflect.DeepEqual(ds[0].SelectedURLs, []string{urls[1]}) || ds[0].Trigger != dom.TriggerFirstAnswer {
		t.Fatalf("decision = %+v", ds[0])
	}
	if got := r.bot.StoppedIDs(); !reflect.DeepEqual(got, []int64{first.MessageID, second.MessageID}) {
		t.Fatalf("stopped = %v", got)
	}
	for _, id := range []string{first.PollID, second.PollID} {
		if rec, _ := r.store.Poll(id); !rec.Finalized {
			t.Fatalf("poll %s not finalized", id)
		}
	}
}

func TestPollSentinelForcesRejection(t *testing.T) {
	r := newRig(t, Config{RejectOption: true})
	ctx := context.Background()
	_ = r.e.StartPoll(ctx, sub(8, "https://a/1.jpg", "https://b/2.jpg"))
	id := r.bot.Polls[0].Poll.PollID

	if err := r.e.Handle(ctx, dom.PollAnswerEvent{PollID: id, VoterID: 1, Chosen: []int{0, 2}}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	ds := r.pub.Published()
	if len(ds) != 1 || ds[0].Outcome != dom.Rejected || len(ds[0].SelectedURLs) != 0 || ds[0].Totals.Reject != 1 {
		t.Fatalf("decisions = %+v", ds)
	}
}

func TestPollClosedUsesCounts(t *testing.T) {
	r := newRig(t, Config{RejectOption: true})
	ctx := context.Background()
	_ = r.e.StartPoll(ctx, sub(9, "https://a/1.jpg", "https://b/2.jpg"))
	id := r.bot.Polls[0].Poll.PollID

	if err := r.e.Handle(ctx, dom.PollAnswerEvent{PollID: id, Chosen: nil}); err != nil {
		t.Fatalf("retraction: %v", err)
	}
	if err := r.e.Handle(ctx, dom.PollClosedEvent{PollID: id, VoterCounts: []int{0, 2, 0}}); err != nil {
		t.Fatalf("closed: %v", err)
	}
	ds := r.pub.Published()
	if len(ds) != 1 || ds[0].Trigger != dom.TriggerPollClosed || !reflect.DeepEqual(ds[0].SelectedURLs, []string{"https://b/2.jpg"}) {
		t.Fatalf("decisions = %+v", ds)
	}
	if ds[0].Totals != (tally.Totals{Approve: 2}) {
		t.Fatalf("totals = %+v", ds[0].Totals)
	}
	if len(r.bot.StoppedIDs()) != 0 {
		t.Fatalf("a closed poll needs no stop")
	}
}

func TestPollUnknownID(t *testing.T) {
	r := newRig(t, Config{})
	err := r.e.Handle(context.Background(), dom.PollAnswerEvent{PollID: "nope", Chosen: []int{0}})
	if !perr.IsUnknownKey(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestPollRacingSignalsDecideOnce(t *testing.T) {
	r := newRig(t, Config{RejectOption: true})
	ctx := context.Background()
	_ = r.e.StartPoll(ctx, sub(10, "https://a/1.jpg", "https://b/2.jpg"))
	id := r.bot.Polls[0].Poll.PollID

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			if i%2 == 0 {
				_ = r.e.Handle(ctx, dom.PollAnswerEvent{PollID: id, VoterID: int64(i), Chosen: []int{0}})
			} else {
				_ = r.e.Handle(ctx, dom.PollClosedEvent{PollID: id, VoterCounts: []int{1, 0, 0}})
			}
		})
	}
	wg.Wait()
	if n := len(r.pub.Published()); n != 1 {
		t.Fatalf("decisions = %d", n)
	}
}

func TestTokenConsumedOnce(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	if err := r.e.StartToken(ctx, sub(11, "https://x/only.jpg")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(r.bot.Approvals) != 1 || r.bot.Approvals[0] != "tok-1" {
		t.Fatalf("approvals = %v", r.bot.Approvals)
	}

	if err := r.e.Handle(ctx, dom.CallbackEvent{CallbackID: "c1", Token: "tok-1", Choice: tally.Approve, VoterID: 4}); err != nil {
		t.Fatalf("callback: %v", err)
	}
	err := r.e.Handle(ctx, dom.CallbackEvent{CallbackID: "c2", Token: "tok-1", Choice: tally.Reject, VoterID: 5})
	if !perr.IsUnknownKey(err) {
		t.Fatalf("second press: %v", err)
	}

	ds := r.pub.Published()
	if len(ds) != 1 || ds[0].Outcome != dom.Approved || !reflect.DeepEqual(ds[0].SelectedURLs, []string{"https://x/only.jpg"}) {
		t.Fatalf("decisions = %+v", ds)
	}
	if !reflect.DeepEqual(r.bot.Answers, []string{"已记录：通过", "已处理或已失效"}) {
		t.Fatalf("answers = %v", r.bot.Answers)
	}
	if r.store.TokenCount() != 0 {
		t.Fatalf("token not deleted")
	}
}

func TestTokenRejectSelectsNothing(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	_ = r.e.StartToken(ctx, sub(12, "https://x/only.jpg"))
	_ = r.e.Handle(ctx, dom.CallbackEvent{CallbackID: "c1", Token: "tok-1", Choice: tally.Reject})
	ds := r.pub.Published()
	if len(ds) != 1 || ds[0].Outcome != dom.Rejected || ds[0].SelectedURLs != nil {
		t.Fatalf("decisions = %+v", ds)
	}
}

func TestTokenUndeliveredIsDeleted(t *testing.T) {
	r := newRig(t, Config{})
	r.bot.Down = map[int64]bool{-1: true}
	err := r.e.StartToken(context.Background(), sub(13, "https://x/only.jpg"))
	if !perr.IsAdapterUnavailable(err) {
		t.Fatalf("err = %v", err)
	}
	if r.store.TokenCount() != 0 {
		t.Fatalf("orphan token kept")
	}
}

func TestOtherStrategyClosesGroupSession(t *testing.T) {
	r := newRig(t, Config{RejectOption: true})
	ctx := context.Background()
	s := sub(14, "https://a/1.jpg", "https://b/2.jpg")
	_ = r.e.StartGroupSession(ctx, s)
	_ = r.e.StartPoll(ctx, s)
	_ = r.e.Handle(ctx, dom.PollAnswerEvent{PollID: r.bot.Polls[0].Poll.PollID, Chosen: []int{0}})

	if len(r.e.Sessions()) != 0 {
		t.Fatalf("group session survived a poll decision")
	}
	sent := r.chat.Messages()
	kit.MustContain(t, sent[len(sent)-1].Msg.PlainText(), "该订单已通过其他渠道处理")
	r.e.Sweep(ctx, t0.Add(time.Hour))
	if n := len(r.pub.Published()); n != 1 {
		t.Fatalf("decisions = %d", n)
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	r := newRig(t, Config{Sweep: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.e.RunSweeper(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
