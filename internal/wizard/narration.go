package wizard

import (
	"strings"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
)

// NarrationText is what the step's read-aloud control speaks right now.
// On [LifeQuestion] it includes the tutor's feedback once it arrived.
func (s *Session) NarrationText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.narrationLocked(s.step)
}

// NarrationFor is the read-aloud text for step, which need not be current.
func (s *Session) NarrationFor(step Step) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.narrationLocked(step)
}

// PerspectiveNarration is the read-aloud text of one panel on
// [Perspectives].
func (s *Session) PerspectiveNarration(p catalog.Perspective) string {
	return s.lesson.Perspective(p).Narration()
}

func (s *Session) narrationLocked(step Step) string {
	l := s.lesson
	switch step {
	case LifeQuestion:
		prompts := make([]string, len(l.LifeQuestions))
		for i, q := range l.LifeQuestions {
			prompts[i] = q.Prompt
		}
		text := "生活提問：" + strings.Join(prompts, "。")
		if s.insight != nil && s.insight.Feedback != "" {
			text += "。導師的回饋是：" + s.insight.Feedback
		}
		return text
	case Perspectives:
		parts := make([]string, 0, len(catalog.Perspectives))
		for _, p := range catalog.Perspectives {
			parts = append(parts, l.Perspective(p).Narration())
		}
		return strings.Join(parts, "。")
	case Tension:
		return "價值張力引導：" + l.TensionGuide
	case Discussion:
		return "互動討論提問：" + strings.Join(l.DiscussionPrompts, "。")
	case Summary:
		return "今天的安靜整合：" + l.Summary
	}
	return ""
}
