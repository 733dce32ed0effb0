package catalog

// Perspective identifies one of the three wisdom-book lenses shown side by
// side in every lesson. Values are the wire names used in lessons.yaml.
type Perspective string

const (
	// Order is the Proverbs lens: how life ought to work.
	Order Perspective = "PROVERBS"
	// Vanity is the Ecclesiastes lens: how life usually works.
	Vanity Perspective = "ECCLESIASTES"
	// Collapse is the Job lens: when it stops working at all.
	Collapse Perspective = "JOB"
)

// Perspectives lists every lens in display order.
var Perspectives = []Perspective{Order, Vanity, Collapse}

// IsValid reports whether p is a recognised perspective.
func (p Perspective) IsValid() bool {
	switch p {
	case Order, Vanity, Collapse:
		return true
	}
	return false
}

// Label returns the short Chinese label for the lens.
func (p Perspective) Label() string {
	switch p {
	case Order:
		return "秩序"
	case Vanity:
		return "無常"
	case Collapse:
		return "反常"
	}
	return string(p)
}

// Scripture is the passage summary shown for one perspective.
type Scripture struct {
	Book        string `yaml:"book"`
	Theme       string `yaml:"theme"`
	Description string `yaml:"description"`
}

// Narration returns the spoken form of the panel: "{book}的觀點：{theme}。{description}".
func (s Scripture) Narration() string {
	return s.Book + "的觀點：" + s.Theme + "。" + s.Description
}

// LifeQuestion is a prompt in the first step. A question with Choices only
// accepts one of them as its answer.
type LifeQuestion struct {
	Prompt  string   `yaml:"prompt"`
	Choices []string `yaml:"choices,omitempty"`
}

// IsChoice reports whether the question is a forced single choice.
func (q LifeQuestion) IsChoice() bool { return len(q.Choices) > 0 }

// HasChoice reports whether answer is one of the question's options.
func (q LifeQuestion) HasChoice(answer string) bool {
	for _, c := range q.Choices {
		if c == answer {
			return true
		}
	}
	return false
}

// Stat is one bucket of the peer choice distribution.
type Stat struct {
	Label string `yaml:"label"`
	Count int    `yaml:"count"`
}

// Peers is the seeded classroom data shown next to the learner's own answers.
type Peers struct {
	Responses []string `yaml:"responses,omitempty"`
	Stats     []Stat   `yaml:"stats,omitempty"`
}

// Cycle groups six lessons under a shared theme.
type Cycle struct {
	ID          int    `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Lesson is one curriculum unit walked through by the wizard.
type Lesson struct {
	ID       int    `yaml:"id"`
	CycleID  int    `yaml:"cycle_id"`
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle"`

	// Introductory lessons collect the peer baseline and skip remote feedback.
	Introductory bool `yaml:"introductory,omitempty"`

	LifeQuestions     []LifeQuestion            `yaml:"life_questions"`
	Perspectives      map[Perspective]Scripture `yaml:"perspectives"`
	TensionGuide      string                    `yaml:"tension_guide"`
	DiscussionPrompts []string                  `yaml:"discussion_prompts"`
	Summary           string                    `yaml:"summary"`
	Peers             Peers                     `yaml:"peers,omitempty"`
}

// Perspective returns the passage for p.
func (l Lesson) Perspective(p Perspective) Scripture {
	return l.Perspectives[p]
}

// ChoiceQuestion returns the index of the first forced-choice life question,
// or -1 when the lesson has none.
func (l Lesson) ChoiceQuestion() int {
	for i, q := range l.LifeQuestions {
		if q.IsChoice() {
			return i
		}
	}
	return -1
}
