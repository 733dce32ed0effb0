package wizard

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/feedback"
	"github.com/MrWong99/wisdomtrail/internal/insight"
	"github.com/MrWong99/wisdomtrail/internal/journal"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type feedbackCall struct {
	LessonID int
	Label    string
	Text     string
}

type fakeFeedback struct {
	mu     sync.Mutex
	reply  string
	calls  []feedbackCall
	gate   chan struct{}
	called chan struct{}
}

func (f *fakeFeedback) Request(_ context.Context, lesson catalog.Lesson, label, text string) string {
	f.mu.Lock()
	f.calls = append(f.calls, feedbackCall{lesson.ID, label, text})
	gate, called := f.gate, f.called
	f.called = nil
	f.mu.Unlock()
	if called != nil {
		close(called)
	}
	if gate != nil {
		<-gate
	}
	return f.reply
}

func (f *fakeFeedback) Calls() []feedbackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feedbackCall(nil), f.calls...)
}

type fakeSource struct {
	mu       sync.Mutex
	peers    catalog.Peers
	err      error
	recorded [][]string
	choice   string
}

func (s *fakeSource) Peers(_ context.Context, _ catalog.Lesson) (catalog.Peers, error) {
	return s.peers, s.err
}

func (s *fakeSource) Record(_ context.Context, _ int, answers []string, choice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, answers)
	s.choice = choice
	return nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (j *fakeJournal) Append(e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return j.err
}

func testLesson() catalog.Lesson {
	return catalog.Lesson{
		ID:       2,
		CycleID:  1,
		Title:    "第 2 課｜因果報應是真的嗎？",
		Subtitle: "當善惡與報償不再掛鉤",
		LifeQuestions: []catalog.LifeQuestion{
			{Prompt: "你相信「好人有好報」嗎？"},
			{Prompt: "看到壞人飛黃騰達，你的第一反應是什麼？"},
		},
		Perspectives: map[catalog.Perspective]catalog.Scripture{
			catalog.Order:    {Book: "箴言", Theme: "善惡有別", Description: "義人的路如晨光。"},
			catalog.Vanity:   {Book: "傳道書", Theme: "義人受苦", Description: "因果鏈條經常斷裂。"},
			catalog.Collapse: {Book: "約伯記", Theme: "義人崩潰", Description: "約伯失去一切。"},
		},
		TensionGuide:      "秩序、無常與崩潰並存。",
		DiscussionPrompts: []string{"你經歷過哪一種？", "你如何回應？"},
		Summary:           "誠實面對因果的斷裂。",
		Peers:             catalog.Peers{Responses: []string{"好人不一定有好報"}},
	}
}

func introLesson(t *testing.T) catalog.Lesson {
	t.Helper()
	l, ok := catalog.MustLoad().Lesson(1)
	if !ok {
		t.Fatal("lesson 1 missing from catalog")
	}
	return l
}

func seek(t *testing.T, s *Session) Insight {
	t.Helper()
	ins, err := s.SeekInsight(context.Background())
	if err != nil {
		t.Fatalf("SeekInsight: %v", err)
	}
	return ins
}

// ── Inputs ───────────────────────────────────────────────────────────────────

func TestSetInput_ValidatesKeys(t *testing.T) {
	s := New(testLesson())

	if err := s.SetInput(LifeQuestionKey(1), "憤怒"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if got := s.Input(LifeQuestionKey(1)); got != "憤怒" {
		t.Errorf("Input = %q", got)
	}
	for _, key := range []InputKey{LifeQuestionKey(2), LifeQuestionKey(-1), DiscussionKey(2), {Step: Summary, Index: 1}, {Step: Tension}} {
		if err := s.SetInput(key, "x"); !errors.Is(err, ErrUnknownInput) {
			t.Errorf("SetInput(%v) = %v, want ErrUnknownInput", key, err)
		}
	}
	if err := s.SetInput(LifeQuestionKey(1), ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(s.Inputs()) != 0 {
		t.Errorf("Inputs() = %v, want empty after clear", s.Inputs())
	}
}

func TestSetInput_ChoiceQuestion(t *testing.T) {
	s := New(introLesson(t))
	key := LifeQuestionKey(1)

	if err := s.SetInput(key, "也許"); !errors.Is(err, ErrInvalidChoice) {
		t.Errorf("SetInput(也許) = %v, want ErrInvalidChoice", err)
	}
	if err := s.SetInput(key, "不知道"); err != nil {
		t.Errorf("SetInput(不知道) = %v", err)
	}
	if got := s.Input(key); got != "不知道" {
		t.Errorf("Input = %q", got)
	}
}

func TestAppendDictation_AppendsWithSpace(t *testing.T) {
	s := New(testLesson())
	key := LifeQuestionKey(0)

	if err := s.SetInput(key, "我相信"); err != nil {
		t.Fatal(err)
	}
	got, err := s.AppendDictation(key, "  但不總是如此 ")
	if err != nil {
		t.Fatalf("AppendDictation: %v", err)
	}
	if got != "我相信 但不總是如此" {
		t.Errorf("answer = %q", got)
	}

	got, _ = s.AppendDictation(DiscussionKey(0), "第一句")
	if got != "第一句" {
		t.Errorf("append to empty = %q, want no leading space", got)
	}
	got, _ = s.AppendDictation(key, "   ")
	if got != "我相信 但不總是如此" {
		t.Errorf("blank transcript changed answer to %q", got)
	}
}

func TestAppendDictation_ChoiceSelects(t *testing.T) {
	s := New(introLesson(t))
	key := LifeQuestionKey(1)

	got, err := s.AppendDictation(key, "不是的")
	if err != nil || got != "不是" {
		t.Errorf("AppendDictation = %q, %v; want 不是", got, err)
	}
	got, err = s.SetChoiceFromSpeech(key, "是。")
	if err != nil || got != "是" {
		t.Errorf("SetChoiceFromSpeech = %q, %v; want 是", got, err)
	}
	if _, err := s.SetChoiceFromSpeech(key, "hello"); !errors.Is(err, ErrInvalidChoice) {
		t.Errorf("unmatched phrase err = %v", err)
	}
	if got := s.Input(key); got != "是" {
		t.Errorf("unmatched phrase replaced answer with %q", got)
	}
	if _, err := s.SetChoiceFromSpeech(LifeQuestionKey(0), "是"); !errors.Is(err, ErrInvalidChoice) {
		t.Errorf("free-text question err = %v", err)
	}
}

// ── Insight ──────────────────────────────────────────────────────────────────

func TestCanSeekInsight(t *testing.T) {
	s := New(introLesson(t))
	if s.CanSeekInsight() {
		t.Error("enabled with no answers")
	}
	s.SetInput(LifeQuestionKey(0), "懂得敬畏")
	if s.CanSeekInsight() {
		t.Error("enabled without the choice answer")
	}
	s.SetInput(LifeQuestionKey(1), "是")
	if !s.CanSeekInsight() {
		t.Error("disabled with both answers")
	}
	s.SetInput(LifeQuestionKey(0), "   ")
	if s.CanSeekInsight() {
		t.Error("enabled with whitespace-only first answer")
	}

	if _, err := s.SeekInsight(context.Background()); !errors.Is(err, ErrInputRequired) {
		t.Errorf("SeekInsight = %v, want ErrInputRequired", err)
	}
}

func TestSeekInsight_RequestsFeedback(t *testing.T) {
	fb := &fakeFeedback{reply: "在斷裂中仍選擇誠實。"}
	src := &fakeSource{peers: catalog.Peers{Responses: []string{"好人不一定有好報"}}}
	s := New(testLesson(), WithFeedback(fb), WithPeers(src), WithCloudOptions(insight.WithRand(rand.New(rand.NewPCG(1, 2)))))

	s.SetInput(LifeQuestionKey(0), "我相信好人有好報")
	s.SetInput(LifeQuestionKey(1), "憤怒")

	ins := seek(t, s)
	if ins.Feedback != "在斷裂中仍選擇誠實。" || ins.Skipped {
		t.Errorf("insight = %+v", ins)
	}

	calls := fb.Calls()
	if len(calls) != 1 {
		t.Fatalf("feedback calls = %d, want 1", len(calls))
	}
	want := "你相信「好人有好報」嗎？\n回應：我相信好人有好報\n\n看到壞人飛黃騰達，你的第一反應是什麼？\n回應：憤怒"
	if calls[0].Text != want {
		t.Errorf("feedback text = %q, want %q", calls[0].Text, want)
	}
	if calls[0].Label != FeedbackLabel || calls[0].LessonID != 2 {
		t.Errorf("call = %+v", calls[0])
	}

	if ins.Classroom.Cloud.Empty() {
		t.Error("cloud is empty")
	}
	if len(src.recorded) != 1 || len(src.recorded[0]) != 2 {
		t.Errorf("recorded = %v", src.recorded)
	}
	if !s.CanContinue() {
		t.Error("Continue still locked after insight")
	}
}

func TestSeekInsight_SkipsUnansweredQuestions(t *testing.T) {
	fb := &fakeFeedback{reply: "ok"}
	s := New(testLesson(), WithFeedback(fb))
	s.SetInput(LifeQuestionKey(0), "會")
	seek(t, s)

	if got := fb.Calls()[0].Text; strings.Contains(got, "飛黃騰達") {
		t.Errorf("unanswered question sent: %q", got)
	}
}

func TestSeekInsight_IntroductorySkipsFeedback(t *testing.T) {
	fb := &fakeFeedback{reply: "unused"}
	s := New(introLesson(t), WithFeedback(fb))
	s.SetInput(LifeQuestionKey(0), "有智慧的人懂得安靜")
	s.SetInput(LifeQuestionKey(1), "是")

	ins := seek(t, s)
	if !ins.Skipped || ins.Feedback != "" {
		t.Errorf("insight = %+v, want skipped", ins)
	}
	if n := len(fb.Calls()); n != 0 {
		t.Errorf("feedback calls = %d, want 0", n)
	}

	dist := ins.Classroom.Distribution
	if len(dist) != 3 {
		t.Fatalf("distribution = %+v", dist)
	}
	wantPct := map[string]int{"是": 52, "不是": 17, "不知道": 30}
	for _, b := range dist {
		if b.Percent != wantPct[b.Label] {
			t.Errorf("%s = %d%%, want %d%%", b.Label, b.Percent, wantPct[b.Label])
		}
		if b.Chosen != (b.Label == "是") {
			t.Errorf("%s chosen = %v", b.Label, b.Chosen)
		}
	}
}

func TestSeekInsight_Pending(t *testing.T) {
	fb := &fakeFeedback{reply: "ok", gate: make(chan struct{}), called: make(chan struct{})}
	s := New(testLesson(), WithFeedback(fb))
	s.SetInput(LifeQuestionKey(0), "會")

	done := make(chan error, 1)
	go func() {
		_, err := s.SeekInsight(context.Background())
		done <- err
	}()
	<-fb.called

	if !s.Loading() {
		t.Error("Loading() = false during request")
	}
	if s.CanSeekInsight() {
		t.Error("CanSeekInsight() = true during request")
	}
	if _, err := s.SeekInsight(context.Background()); !errors.Is(err, ErrInsightPending) {
		t.Errorf("second SeekInsight = %v, want ErrInsightPending", err)
	}
	close(fb.gate)
	if err := <-done; err != nil {
		t.Fatalf("SeekInsight: %v", err)
	}

	again := seek(t, s)
	if again.Feedback != "ok" {
		t.Errorf("repeat = %+v", again)
	}
	if n := len(fb.Calls()); n != 1 {
		t.Errorf("feedback calls = %d, want 1", n)
	}
}

func TestSeekInsight_DiscardedDropsResult(t *testing.T) {
	fb := &fakeFeedback{reply: "late", gate: make(chan struct{}), called: make(chan struct{})}
	s := New(testLesson(), WithFeedback(fb))
	s.SetInput(LifeQuestionKey(0), "會")

	done := make(chan error, 1)
	go func() {
		_, err := s.SeekInsight(context.Background())
		done <- err
	}()
	<-fb.called
	s.Discard()
	close(fb.gate)

	if err := <-done; !errors.Is(err, ErrDiscarded) {
		t.Errorf("SeekInsight = %v, want ErrDiscarded", err)
	}
	if _, ok := s.Insight(); ok {
		t.Error("insight stored after discard")
	}
}

func TestSeekInsight_CancelledRequestCanRetry(t *testing.T) {
	fb := &fakeFeedback{reply: "在斷裂中仍選擇誠實。", gate: make(chan struct{}), called: make(chan struct{})}
	src := &fakeSource{}
	s := New(testLesson(), WithFeedback(fb), WithPeers(src))
	s.SetInput(LifeQuestionKey(0), "會")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.SeekInsight(ctx)
		done <- err
	}()
	<-fb.called
	cancel()
	close(fb.gate)

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("SeekInsight = %v, want context.Canceled", err)
	}
	if _, ok := s.Insight(); ok {
		t.Error("insight stored for a cancelled request")
	}
	if s.Loading() || !s.CanSeekInsight() || s.CanContinue() {
		t.Errorf("after cancel: loading=%v canSeek=%v canContinue=%v", s.Loading(), s.CanSeekInsight(), s.CanContinue())
	}
	if len(src.recorded) != 0 {
		t.Errorf("answers recorded for a cancelled request: %v", src.recorded)
	}

	ins := seek(t, s)
	if ins.Feedback != "在斷裂中仍選擇誠實。" {
		t.Errorf("retry feedback = %q", ins.Feedback)
	}
	if n := len(fb.Calls()); n != 2 {
		t.Errorf("feedback calls = %d, want 2", n)
	}
}

func TestSeekInsight_PeerErrorUsesSeed(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	s := New(testLesson(), WithFeedback(&fakeFeedback{reply: "ok"}), WithPeers(src))
	s.SetInput(LifeQuestionKey(0), "會")

	ins := seek(t, s)
	found := false
	for _, w := range ins.Classroom.Cloud.Words {
		if w.Text == "好人不一定有好報" {
			found = true
		}
	}
	if !found {
		t.Errorf("seed response missing from cloud: %+v", ins.Classroom.Cloud.Words)
	}
}

func TestSeekInsight_DefaultFeedbackFallback(t *testing.T) {
	s := New(testLesson())
	s.SetInput(LifeQuestionKey(0), "會")
	if ins := seek(t, s); ins.Feedback != feedback.Fallback {
		t.Errorf("feedback = %q, want fallback", ins.Feedback)
	}
}

// ── Navigation ───────────────────────────────────────────────────────────────

func TestContinue_GatedOnInsight(t *testing.T) {
	s := New(testLesson(), WithFeedback(&fakeFeedback{reply: "ok"}))
	ctx := context.Background()

	if _, err := s.Continue(ctx); !errors.Is(err, ErrInsightRequired) {
		t.Errorf("Continue = %v, want ErrInsightRequired", err)
	}
	if _, err := s.Back(ctx); !errors.Is(err, ErrFirstStep) {
		t.Errorf("Back = %v, want ErrFirstStep", err)
	}

	s.SetInput(LifeQuestionKey(0), "會")
	seek(t, s)
	for _, want := range []Step{Perspectives, Tension, Discussion, Summary} {
		got, err := s.Continue(ctx)
		if err != nil || got != want {
			t.Fatalf("Continue = %v, %v; want %v", got, err, want)
		}
	}
	if _, err := s.Continue(ctx); !errors.Is(err, ErrLastStep) {
		t.Errorf("Continue from summary = %v", err)
	}
	if _, err := s.SeekInsight(ctx); !errors.Is(err, ErrWrongStep) {
		t.Errorf("SeekInsight from summary = %v", err)
	}
}

func TestBack_KeepsInsight(t *testing.T) {
	s := New(testLesson(), WithFeedback(&fakeFeedback{reply: "ok"}))
	ctx := context.Background()
	s.SetInput(LifeQuestionKey(0), "會")
	seek(t, s)
	s.Continue(ctx)

	got, err := s.Back(ctx)
	if err != nil || got != LifeQuestion {
		t.Fatalf("Back = %v, %v", got, err)
	}
	if !s.CanContinue() {
		t.Error("Continue locked again after returning to the first step")
	}
}

func TestStepHook(t *testing.T) {
	type move struct{ from, to Step }
	var moves []move
	s := New(testLesson(),
		WithFeedback(&fakeFeedback{reply: "ok"}),
		OnStepChange(func(from, to Step) { moves = append(moves, move{from, to}) }),
	)
	ctx := context.Background()
	s.SetInput(LifeQuestionKey(0), "會")
	seek(t, s)
	s.Continue(ctx)
	s.Continue(ctx)
	s.Back(ctx)
	s.Continue(ctx)
	s.Back(ctx)

	want := []move{{LifeQuestion, Perspectives}, {Perspectives, Tension}, {Tension, Perspectives}, {Perspectives, Tension}, {Tension, Perspectives}}
	if len(moves) != len(want) {
		t.Fatalf("moves = %v, want %v", moves, want)
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Errorf("move %d = %v, want %v", i, moves[i], want[i])
		}
	}
}

func toSummary(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	seek(t, s)
	for s.Step() != Summary {
		if _, err := s.Continue(ctx); err != nil {
			t.Fatalf("Continue: %v", err)
		}
	}
}

func TestComplete(t *testing.T) {
	j := &fakeJournal{}
	var completed []int
	s := New(testLesson(),
		WithFeedback(&fakeFeedback{reply: "ok"}),
		WithJournal(j, "小明"),
		OnComplete(func(id int) { completed = append(completed, id) }),
	)
	ctx := context.Background()
	s.SetInput(LifeQuestionKey(0), "會")

	if _, err := s.Complete(ctx); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Complete before summary = %v", err)
	}
	toSummary(t, s)
	s.SetInput(SummaryKey, "先誠實，再選擇。")

	id, err := s.Complete(ctx)
	if err != nil || id != 2 {
		t.Fatalf("Complete = %d, %v", id, err)
	}
	if _, err := s.Complete(ctx); !errors.Is(err, ErrAlreadyComplete) {
		t.Errorf("second Complete = %v", err)
	}
	if len(completed) != 1 || completed[0] != 2 {
		t.Errorf("hook calls = %v, want [2]", completed)
	}
	if len(j.entries) != 1 {
		t.Fatalf("journal entries = %d", len(j.entries))
	}
	if e := j.entries[0]; e.Learner != "小明" || e.LessonID != 2 || e.Reflection != "先誠實，再選擇。" {
		t.Errorf("entry = %+v", e)
	}
}

func TestComplete_JournalFailureDoesNotBlock(t *testing.T) {
	j := &fakeJournal{err: errors.New("disk full")}
	s := New(testLesson(), WithFeedback(&fakeFeedback{reply: "ok"}), WithJournal(j, ""))
	s.SetInput(LifeQuestionKey(0), "會")
	toSummary(t, s)
	s.SetInput(SummaryKey, "安靜")

	if _, err := s.Complete(context.Background()); err != nil {
		t.Errorf("Complete = %v", err)
	}
	if !s.Completed() {
		t.Error("Completed() = false")
	}
}

func TestComplete_NoReflectionSkipsJournal(t *testing.T) {
	j := &fakeJournal{}
	s := New(testLesson(), WithFeedback(&fakeFeedback{reply: "ok"}), WithJournal(j, ""))
	s.SetInput(LifeQuestionKey(0), "會")
	toSummary(t, s)
	s.Complete(context.Background())

	if len(j.entries) != 0 {
		t.Errorf("journal entries = %d, want 0", len(j.entries))
	}
}

func TestDiscard(t *testing.T) {
	s := New(testLesson())
	s.Discard()
	ctx := context.Background()

	if err := s.SetInput(LifeQuestionKey(0), "x"); !errors.Is(err, ErrDiscarded) {
		t.Errorf("SetInput = %v", err)
	}
	if _, err := s.SeekInsight(ctx); !errors.Is(err, ErrDiscarded) {
		t.Errorf("SeekInsight = %v", err)
	}
	if _, err := s.Continue(ctx); !errors.Is(err, ErrDiscarded) {
		t.Errorf("Continue = %v", err)
	}
	if _, err := s.Complete(ctx); !errors.Is(err, ErrDiscarded) {
		t.Errorf("Complete = %v", err)
	}
}

// ── Narration ────────────────────────────────────────────────────────────────

func TestNarrationText(t *testing.T) {
	s := New(testLesson(), WithFeedback(&fakeFeedback{reply: "誠實是智慧。"}))

	want := "生活提問：你相信「好人有好報」嗎？。看到壞人飛黃騰達，你的第一反應是什麼？"
	if got := s.NarrationText(); got != want {
		t.Errorf("before insight = %q", got)
	}
	s.SetInput(LifeQuestionKey(0), "會")
	seek(t, s)
	if got := s.NarrationText(); got != want+"。導師的回饋是：誠實是智慧。" {
		t.Errorf("after insight = %q", got)
	}

	tests := []struct {
		step Step
		want string
	}{
		{Perspectives, "箴言的觀點：善惡有別。義人的路如晨光。。傳道書的觀點：義人受苦。因果鏈條經常斷裂。。約伯記的觀點：義人崩潰。約伯失去一切。"},
		{Tension, "價值張力引導：秩序、無常與崩潰並存。"},
		{Discussion, "互動討論提問：你經歷過哪一種？。你如何回應？"},
		{Summary, "今天的安靜整合：誠實面對因果的斷裂。"},
	}
	for _, tt := range tests {
		if got := s.NarrationFor(tt.step); got != tt.want {
			t.Errorf("%v = %q, want %q", tt.step, got, tt.want)
		}
	}
	if got := s.PerspectiveNarration(catalog.Vanity); got != "傳道書的觀點：義人受苦。因果鏈條經常斷裂。" {
		t.Errorf("PerspectiveNarration = %q", got)
	}
}

// ── End to end ───────────────────────────────────────────────────────────────

func TestSession_IntroductoryLesson(t *testing.T) {
	j := &fakeJournal{}
	fb := &fakeFeedback{reply: "unused"}
	s := New(introLesson(t), WithFeedback(fb), WithJournal(j, "學員"))
	ctx := context.Background()

	s.SetInput(LifeQuestionKey(0), "懂得敬畏也承認限制")
	if _, err := s.AppendDictation(LifeQuestionKey(1), "不是的"); err != nil {
		t.Fatalf("dictate choice: %v", err)
	}
	if !s.CanSeekInsight() {
		t.Fatal("cannot seek insight")
	}
	ins := seek(t, s)
	if !ins.Skipped || len(fb.Calls()) != 0 {
		t.Errorf("introductory lesson called feedback")
	}
	for _, b := range ins.Classroom.Distribution {
		if b.Chosen != (b.Label == "不是") {
			t.Errorf("%s chosen = %v", b.Label, b.Chosen)
		}
	}

	toSummary(t, s)
	snap := s.Snapshot()
	if snap.Step != Summary || snap.CanContinue || !snap.CanBack {
		t.Errorf("snapshot = %+v", snap)
	}
	s.SetInput(SummaryKey, "選擇誠實")
	id, err := s.Complete(ctx)
	if err != nil || id != 1 {
		t.Fatalf("Complete = %d, %v", id, err)
	}
	if len(j.entries) != 1 || j.entries[0].Lesson != s.Lesson().Title {
		t.Errorf("journal = %+v", j.entries)
	}
}
