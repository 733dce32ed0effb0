package wizard

import "fmt"

// Step is one stage of a lesson. Steps are strictly linear.
type Step int

const (
	LifeQuestion Step = iota
	Perspectives
	Tension
	Discussion
	Summary
)

// Steps lists every step in order.
var Steps = []Step{LifeQuestion, Perspectives, Tension, Discussion, Summary}

var stepInfo = [...]struct {
	name    string
	heading string
	label   string
	minutes int
	quote   string
}{
	LifeQuestion: {"LIFE_QUESTION", "生活提問", "生活提問", 8, "「智慧的起點在於誠實地面對生活中的選擇。」"},
	Perspectives: {"PERSPECTIVES", "三卷書對照", "經文對照", 20, "「智慧不是選邊站，而是學會在三種視角中活得成熟。」"},
	Tension:      {"TENSION", "價值張力引導", "張力引導", 15, ""},
	Discussion:   {"DISCUSSION", "互動討論", "互動討論", 12, ""},
	Summary:      {"SUMMARY", "安靜整合", "安靜整合", 5, ""},
}

// IsValid reports whether s is a known step.
func (s Step) IsValid() bool { return s >= LifeQuestion && s <= Summary }

// String returns the wire name, e.g. "LIFE_QUESTION".
func (s Step) String() string {
	if !s.IsValid() {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepInfo[s].name
}

// Heading is the full stage title.
func (s Step) Heading() string {
	if !s.IsValid() {
		return ""
	}
	return stepInfo[s].heading
}

// Label is the short name used in the progress stepper.
func (s Step) Label() string {
	if !s.IsValid() {
		return ""
	}
	return stepInfo[s].label
}

// Minutes is the suggested time for the stage.
func (s Step) Minutes() int {
	if !s.IsValid() {
		return 0
	}
	return stepInfo[s].minutes
}

// Quote is the framing sentence shown with the stage, if any.
func (s Step) Quote() string {
	if !s.IsValid() {
		return ""
	}
	return stepInfo[s].quote
}

// Ordinal is the 1-based position of s.
func (s Step) Ordinal() int { return int(s) + 1 }

// Title renders e.g. "第一階段：生活提問 (8分鐘)".
func (s Step) Title() string {
	ordinals := [...]string{"一", "二", "三", "四", "五"}
	if !s.IsValid() {
		return ""
	}
	return fmt.Sprintf("第%s階段：%s (%d分鐘)", ordinals[s], s.Heading(), s.Minutes())
}

// Next returns the following step; ok is false for [Summary].
func (s Step) Next() (next Step, ok bool) {
	if !s.IsValid() || s == Summary {
		return s, false
	}
	return s + 1, true
}

// Prev returns the preceding step; ok is false for [LifeQuestion].
func (s Step) Prev() (prev Step, ok bool) {
	if !s.IsValid() || s == LifeQuestion {
		return s, false
	}
	return s - 1, true
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("wizard: invalid step %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(b []byte) error {
	v, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStep accepts a wire name such as "TENSION".
func ParseStep(name string) (Step, error) {
	for _, s := range Steps {
		if stepInfo[s].name == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("wizard: unknown step %q", name)
}
