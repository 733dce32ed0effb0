// Package feedback asks a text-generation backend for a short reflective
// response to a learner's answers.
//
// The requester never fails from the caller's point of view: a missing
// provider, a backend error, an empty reply or a timeout all yield
// [Fallback].
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/observe"
	"github.com/MrWong99/wisdomtrail/pkg/provider/llm"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// Fallback is shown whenever no generated reflection is available.
const Fallback = "智慧的言語如同金蘋果落在銀網子裡。讓我們在安靜中繼續思考。"

// Defaults applied when the corresponding [Settings] field is zero.
const (
	DefaultTemperature = 0.7
	DefaultTimeout     = 20 * time.Second
)

// Settings tunes each request. It can be swapped at runtime with
// [Requester.Configure].
type Settings struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Temperature == 0 {
		s.Temperature = DefaultTemperature
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}

// Requester produces reflective feedback for one lesson question at a time.
// It is safe for concurrent use.
type Requester struct {
	provider llm.Provider
	name     string
	metrics  *observe.Metrics
	log      *slog.Logger

	mu       sync.RWMutex
	settings Settings
}

// Option configures a [Requester].
type Option func(*Requester)

// WithSettings sets the initial request tuning.
func WithSettings(s Settings) Option {
	return func(r *Requester) { r.settings = s.withDefaults() }
}

// WithMetrics records request latency and outcome on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Requester) { r.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Requester) { r.log = l }
}

// WithProviderName labels provider metrics. Defaults to "llm".
func WithProviderName(name string) Option {
	return func(r *Requester) { r.name = name }
}

// New returns a requester backed by p. A nil p is allowed: every request
// then answers [Fallback] without a remote call.
func New(p llm.Provider, opts ...Option) *Requester {
	r := &Requester{
		provider: p,
		name:     "llm",
		log:      slog.Default(),
		settings: Settings{}.withDefaults(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Configure replaces the request tuning for subsequent calls.
func (r *Requester) Configure(s Settings) {
	r.mu.Lock()
	r.settings = s.withDefaults()
	r.mu.Unlock()
}

// Settings returns the current request tuning.
func (r *Requester) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// Available reports whether requests reach a backend at all.
func (r *Requester) Available() bool { return r.provider != nil }

// Request returns reflective feedback on learnerText, answered in the
// context of lesson and the prompt it responds to.
func (r *Requester) Request(ctx context.Context, lesson catalog.Lesson, questionLabel, learnerText string) string {
	if r.provider == nil {
		return Fallback
	}
	s := r.Settings()

	ctx, span := observe.StartSpan(ctx, "feedback.request")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	text, err := r.complete(ctx, lesson, questionLabel, learnerText, s)
	status := observe.StatusOK
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = observe.StatusTimeout
	case err != nil:
		status = observe.StatusError
	}
	r.record(ctx, lesson.ID, time.Since(start), status)

	if err != nil {
		observe.Logger(ctx).Warn("feedback: request failed, using fallback",
			"lesson", lesson.ID,
			"provider", r.name,
			"err", err,
		)
		return Fallback
	}
	return text
}

func (r *Requester) complete(ctx context.Context, lesson catalog.Lesson, question, answer string, s Settings) (string, error) {
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt(lesson),
		Messages:     []types.Message{{Role: "user", Content: UserContent(question, answer)}},
		Temperature:  s.Temperature,
		MaxTokens:    s.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("feedback: complete: %w", err)
	}
	if resp == nil {
		return "", llm.ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func (r *Requester) record(ctx context.Context, lessonID int, d time.Duration, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordFeedback(ctx, lessonID, d, status)
	r.metrics.RecordProviderRequest(ctx, r.name, observe.KindLLM, status)
}

// SystemPrompt is the tutor persona for lesson.
func SystemPrompt(lesson catalog.Lesson) string {
	var b strings.Builder
	b.WriteString("你是一位資深的聖經智慧文學導師。這是一門關於《箴言》、《傳道書》與《約伯記》的互動課程。\n")
	fmt.Fprintf(&b, "目前的課程主題是：%s (%s)。\n", lesson.Title, lesson.Subtitle)
	b.WriteString("你的任務是針對使用者的生活提問回饋或進一步的聖經疑問，提供具備「交錯互補」視角的洞察。\n")
	b.WriteString("請記住：\n")
	b.WriteString("- 《箴言》強調秩序與邏輯。\n")
	b.WriteString("- 《傳道書》強調無常與限制。\n")
	b.WriteString("- 《約伯記》強調苦難與上帝的沈默。\n")
	b.WriteString("請用溫暖、睿智、不過度教條化的傳統中文回答，長度約 150-200 字。")
	return b.String()
}

// UserContent frames one question and the learner's answer.
func UserContent(question, answer string) string {
	return "課程提問：" + question + "\n學習者的回應：" + answer + "\n請給予啟發性的反思回饋。"
}
