// Package wizard walks a learner through one lesson:
// LIFE_QUESTION → PERSPECTIVES → TENSION → DISCUSSION → SUMMARY.
//
// A [Session] owns the learner's answers for one attempt. Moving forward
// out of LIFE_QUESTION requires "seeking insight" first, which asks the
// tutor for feedback (unless the lesson is introductory) and builds the
// classroom word cloud. Back is always allowed except from the first step.
// Complete is the only exit and reports the lesson once.
package wizard

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/feedback"
	"github.com/MrWong99/wisdomtrail/internal/insight"
	"github.com/MrWong99/wisdomtrail/internal/journal"
	"github.com/MrWong99/wisdomtrail/internal/observe"
)

// FeedbackLabel is the question label sent with the learner's combined
// life-question answers.
const FeedbackLabel = "生活提問"

// SummaryPrompt introduces the closing reflection.
const SummaryPrompt = "寫下一句話給今天的自己："

var (
	ErrInputRequired   = errors.New("wizard: the first life question must be answered")
	ErrInsightRequired = errors.New("wizard: seek insight before continuing")
	ErrInsightPending  = errors.New("wizard: insight is already being prepared")
	ErrWrongStep       = errors.New("wizard: action not available on this step")
	ErrLastStep        = errors.New("wizard: summary is the last step")
	ErrFirstStep       = errors.New("wizard: already at the first step")
	ErrAlreadyComplete = errors.New("wizard: lesson already completed")
	ErrDiscarded       = errors.New("wizard: session discarded")
	ErrUnknownInput    = errors.New("wizard: no such question")
	ErrInvalidChoice   = errors.New("wizard: answer is not one of the choices")
)

// Feedback produces the tutor's reflection. It never fails; failures
// surface as a fallback text.
type Feedback interface {
	Request(ctx context.Context, lesson catalog.Lesson, questionLabel, learnerText string) string
}

// Insight is the outcome of seeking insight.
type Insight struct {
	// Feedback is the tutor's reflection. Empty when Skipped.
	Feedback string `json:"feedback,omitempty"`

	// Skipped is set for introductory lessons, which show peers only.
	Skipped bool `json:"skipped"`

	// Classroom is the word cloud and peer distribution.
	Classroom insight.Report `json:"classroom"`
}

// Session is one attempt at one lesson. It is safe for concurrent use.
type Session struct {
	lesson    catalog.Lesson
	feedback  Feedback
	peers     insight.Source
	journal   journal.Journal
	learner   string
	metrics   *observe.Metrics
	log       *slog.Logger
	cloudOpts []insight.CloudOption

	onStep     func(from, to Step)
	onComplete func(lessonID int)

	mu        sync.Mutex
	step      Step
	inputs    map[InputKey]string
	insight   *Insight
	loading   bool
	completed bool
	discarded bool
}

// Option configures a [Session].
type Option func(*Session)

// WithFeedback sets the tutor. Defaults to a requester without a backend,
// which always answers [feedback.Fallback].
func WithFeedback(f Feedback) Option {
	return func(s *Session) { s.feedback = f }
}

// WithPeers sets where classmates' answers come from. Defaults to the
// lesson's bundled seed.
func WithPeers(src insight.Source) Option {
	return func(s *Session) { s.peers = src }
}

// WithJournal records the closing reflection on completion, attributed to
// learner.
func WithJournal(j journal.Journal, learner string) Option {
	return func(s *Session) {
		s.journal = j
		s.learner = learner
	}
}

// WithMetrics records transitions and completions on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithCloudOptions passes options through to the word cloud builder.
func WithCloudOptions(opts ...insight.CloudOption) Option {
	return func(s *Session) { s.cloudOpts = append(s.cloudOpts, opts...) }
}

// OnStepChange is called after every transition. Front ends use it to
// scroll back to the top.
func OnStepChange(fn func(from, to Step)) Option {
	return func(s *Session) { s.onStep = fn }
}

// OnComplete is called once when the lesson is completed.
func OnComplete(fn func(lessonID int)) Option {
	return func(s *Session) { s.onComplete = fn }
}

// New starts a session at [LifeQuestion].
func New(lesson catalog.Lesson, opts ...Option) *Session {
	s := &Session{
		lesson:  lesson,
		peers:   insight.SeedSource{},
		journal: journal.Nop{},
		log:     slog.Default(),
		inputs:  make(map[InputKey]string),
	}
	for _, o := range opts {
		o(s)
	}
	if s.feedback == nil {
		s.feedback = feedback.New(nil)
	}
	return s
}

// Lesson returns the lesson being walked.
func (s *Session) Lesson() catalog.Lesson { return s.lesson }

// Step returns the current step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// ─── Inputs ──────────────────────────────────────────────────────────────────

// Input returns the answer stored under key, or "".
func (s *Session) Input(key InputKey) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[key]
}

// Inputs returns a copy of every non-empty answer.
func (s *Session) Inputs() map[InputKey]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[InputKey]string, len(s.inputs))
	for k, v := range s.inputs {
		out[k] = v
	}
	return out
}

// SetInput replaces the answer under key. Forced-choice questions accept
// only one of their options, or "" to clear.
func (s *Session) SetInput(key InputKey, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discarded {
		return ErrDiscarded
	}
	q, err := s.questionLocked(key)
	if err != nil {
		return err
	}
	if q != nil && q.IsChoice() && text != "" && !q.HasChoice(text) {
		return ErrInvalidChoice
	}
	s.setLocked(key, text)
	return nil
}

// AppendDictation adds a transcript after the existing answer, separated
// by one space. On a forced-choice question the transcript selects the
// closest option instead. It returns the resulting answer.
func (s *Session) AppendDictation(key InputKey, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discarded {
		return "", ErrDiscarded
	}
	q, err := s.questionLocked(key)
	if err != nil {
		return "", err
	}
	if q != nil && q.IsChoice() {
		choice, ok := MatchChoice(transcript, q.Choices)
		if !ok {
			return s.inputs[key], ErrInvalidChoice
		}
		s.setLocked(key, choice)
		return choice, nil
	}
	if transcript == "" {
		return s.inputs[key], nil
	}
	cur := s.inputs[key]
	if cur != "" {
		cur += " "
	}
	cur += transcript
	s.setLocked(key, cur)
	return cur, nil
}

// SetChoiceFromSpeech selects the forced-choice option closest to phrase.
func (s *Session) SetChoiceFromSpeech(key InputKey, phrase string) (string, error) {
	s.mu.Lock()
	q, err := s.questionLocked(key)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if q == nil || !q.IsChoice() {
		return "", ErrInvalidChoice
	}
	return s.AppendDictation(key, phrase)
}

// questionLocked validates key against the lesson. It returns the life
// question for LifeQuestion keys and nil for the others.
func (s *Session) questionLocked(key InputKey) (*catalog.LifeQuestion, error) {
	switch key.Step {
	case LifeQuestion:
		if key.Index < 0 || key.Index >= len(s.lesson.LifeQuestions) {
			return nil, ErrUnknownInput
		}
		return &s.lesson.LifeQuestions[key.Index], nil
	case Discussion:
		if key.Index < 0 || key.Index >= len(s.lesson.DiscussionPrompts) {
			return nil, ErrUnknownInput
		}
	case Summary:
		if key.Index != 0 {
			return nil, ErrUnknownInput
		}
	default:
		return nil, ErrUnknownInput
	}
	return nil, nil
}

func (s *Session) setLocked(key InputKey, text string) {
	if text == "" {
		delete(s.inputs, key)
		return
	}
	s.inputs[key] = text
}

// ─── Insight ─────────────────────────────────────────────────────────────────

// CanSeekInsight reports whether the seek-insight action is enabled: the
// first life question and any forced-choice question are answered, and no
// request is running.
func (s *Session) CanSeekInsight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSeekLocked() && !s.loading && s.insight == nil
}

func (s *Session) canSeekLocked() bool {
	if s.step != LifeQuestion {
		return false
	}
	if strings.TrimSpace(s.inputs[LifeQuestionKey(0)]) == "" {
		return false
	}
	if i := s.lesson.ChoiceQuestion(); i >= 0 && s.inputs[LifeQuestionKey(i)] == "" {
		return false
	}
	return true
}

// Loading reports whether insight is being prepared.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Insight returns the insight once sought.
func (s *Session) Insight() (Insight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insight == nil {
		return Insight{}, false
	}
	return *s.insight, true
}

// SeekInsight asks for tutor feedback on the life-question answers, skipping
// the tutor on introductory lessons, and builds the classroom report. It
// unlocks Continue. Calling it again after success returns the same
// insight; calling it while a request runs returns [ErrInsightPending]. If
// the session is discarded or ctx is cancelled meanwhile the result is
// dropped and a later call asks again.
func (s *Session) SeekInsight(ctx context.Context) (Insight, error) {
	s.mu.Lock()
	switch {
	case s.discarded:
		s.mu.Unlock()
		return Insight{}, ErrDiscarded
	case s.step != LifeQuestion:
		s.mu.Unlock()
		return Insight{}, ErrWrongStep
	case s.loading:
		s.mu.Unlock()
		return Insight{}, ErrInsightPending
	case s.insight != nil:
		ins := *s.insight
		s.mu.Unlock()
		return ins, nil
	case !s.canSeekLocked():
		s.mu.Unlock()
		return Insight{}, ErrInputRequired
	}
	s.loading = true
	answers, combined, choice := s.answersLocked()
	s.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "wizard.seek_insight")
	defer span.End()

	var ins Insight
	if s.lesson.Introductory {
		ins.Skipped = true
	} else {
		ins.Feedback = s.feedback.Request(ctx, s.lesson, FeedbackLabel, combined)
	}
	// A cancelled request only produced the fallback; leave the insight
	// unset so it can be sought again.
	if err := ctx.Err(); err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return Insight{}, err
	}

	peers, err := s.peers.Peers(ctx, s.lesson)
	if err != nil {
		observe.Logger(ctx).Warn("wizard: peer data unavailable, using seed", "lesson", s.lesson.ID, "err", err)
		peers = s.lesson.Peers
	}
	ins.Classroom = insight.Build(peers, answers, choice, s.cloudOpts...)
	if err := s.peers.Record(ctx, s.lesson.ID, answers, choice); err != nil {
		observe.Logger(ctx).Warn("wizard: record answers", "lesson", s.lesson.ID, "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.discarded {
		return Insight{}, ErrDiscarded
	}
	s.insight = &ins
	return ins, nil
}

// answersLocked returns every answer in question order, the life-question
// answers framed for the tutor, and the forced-choice answer.
func (s *Session) answersLocked() (answers []string, combined, choice string) {
	keys := make([]InputKey, 0, len(s.inputs))
	for k := range s.inputs {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b InputKey) int {
		if a.Step != b.Step {
			return int(a.Step - b.Step)
		}
		return a.Index - b.Index
	})

	var parts []string
	for _, k := range keys {
		v := s.inputs[k]
		answers = append(answers, v)
		if k.Step != LifeQuestion {
			continue
		}
		q := s.lesson.LifeQuestions[k.Index]
		if q.IsChoice() && choice == "" {
			choice = v
		}
		parts = append(parts, q.Prompt+"\n回應："+v)
	}
	return answers, strings.Join(parts, "\n\n"), choice
}

// ─── Navigation ──────────────────────────────────────────────────────────────

// CanContinue reports whether Continue would succeed.
func (s *Session) CanContinue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continueErrLocked() == nil
}

func (s *Session) continueErrLocked() error {
	switch {
	case s.discarded:
		return ErrDiscarded
	case s.step == Summary:
		return ErrLastStep
	case s.step == LifeQuestion && s.insight == nil:
		return ErrInsightRequired
	}
	return nil
}

// Continue moves to the next step.
func (s *Session) Continue(ctx context.Context) (Step, error) {
	s.mu.Lock()
	if err := s.continueErrLocked(); err != nil {
		step := s.step
		s.mu.Unlock()
		return step, err
	}
	from := s.step
	s.step, _ = from.Next()
	to := s.step
	s.mu.Unlock()

	s.transitioned(ctx, from, to)
	return to, nil
}

// Back moves to the previous step.
func (s *Session) Back(ctx context.Context) (Step, error) {
	s.mu.Lock()
	if s.discarded {
		s.mu.Unlock()
		return s.step, ErrDiscarded
	}
	prev, ok := s.step.Prev()
	if !ok {
		step := s.step
		s.mu.Unlock()
		return step, ErrFirstStep
	}
	from := s.step
	s.step = prev
	s.mu.Unlock()

	s.transitioned(ctx, from, prev)
	return prev, nil
}

func (s *Session) transitioned(ctx context.Context, from, to Step) {
	if s.metrics != nil {
		s.metrics.RecordStepTransition(ctx, s.lesson.ID, from.String(), to.String())
	}
	s.log.Debug("wizard: step", "lesson", s.lesson.ID, "from", from, "to", to)
	if s.onStep != nil {
		s.onStep(from, to)
	}
}

// Complete finishes the lesson from [Summary]. The closing reflection goes
// to the journal; a journal failure is logged and does not block
// completion. It returns the lesson id.
func (s *Session) Complete(ctx context.Context) (int, error) {
	s.mu.Lock()
	switch {
	case s.discarded:
		s.mu.Unlock()
		return 0, ErrDiscarded
	case s.completed:
		s.mu.Unlock()
		return 0, ErrAlreadyComplete
	case s.step != Summary:
		s.mu.Unlock()
		return 0, ErrWrongStep
	}
	s.completed = true
	reflection := s.inputs[SummaryKey]
	s.mu.Unlock()

	if reflection != "" {
		err := s.journal.Append(journal.Entry{
			Learner:    s.learner,
			LessonID:   s.lesson.ID,
			Lesson:     s.lesson.Title,
			Reflection: reflection,
		})
		if err != nil {
			observe.Logger(ctx).Warn("wizard: journal append", "lesson", s.lesson.ID, "err", err)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordLessonCompleted(ctx, s.lesson.ID)
	}
	if s.onComplete != nil {
		s.onComplete(s.lesson.ID)
	}
	return s.lesson.ID, nil
}

// Completed reports whether Complete has succeeded.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Discard abandons the session. Results of requests still running are
// dropped and every further action fails with [ErrDiscarded].
func (s *Session) Discard() {
	s.mu.Lock()
	s.discarded = true
	s.mu.Unlock()
}

// Discarded reports whether Discard was called.
func (s *Session) Discarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

// ─── Snapshot ────────────────────────────────────────────────────────────────

// Snapshot is a read-only view of the session for front ends.
type Snapshot struct {
	LessonID       int                 `json:"lesson_id"`
	Step           Step                `json:"step"`
	Inputs         map[InputKey]string `json:"inputs"`
	Insight        *Insight            `json:"insight,omitempty"`
	Loading        bool                `json:"loading"`
	CanSeekInsight bool                `json:"can_seek_insight"`
	CanContinue    bool                `json:"can_continue"`
	CanBack        bool                `json:"can_back"`
	Completed      bool                `json:"completed"`
	Narration      string              `json:"narration"`
}

// Snapshot captures the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		LessonID:       s.lesson.ID,
		Step:           s.step,
		Inputs:         make(map[InputKey]string, len(s.inputs)),
		Loading:        s.loading,
		CanSeekInsight: s.canSeekLocked() && !s.loading && s.insight == nil,
		CanContinue:    s.continueErrLocked() == nil,
		CanBack:        s.step != LifeQuestion && !s.discarded,
		Completed:      s.completed,
		Narration:      s.narrationLocked(s.step),
	}
	for k, v := range s.inputs {
		snap.Inputs[k] = v
	}
	if s.insight != nil {
		ins := *s.insight
		snap.Insight = &ins
	}
	return snap
}
