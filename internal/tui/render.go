package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/insight"
	"github.com/MrWong99/wisdomtrail/internal/prose"
	"github.com/MrWong99/wisdomtrail/internal/wizard"
)

// barWidth is the length of a full distribution bar in cells.
const barWidth = 24

// Renderer turns controller and session state into styled text. The zero
// value is not usable; call [NewRenderer].
type Renderer struct {
	Styles Styles
	Width  int
}

// NewRenderer returns a renderer for a terminal width columns wide.
func NewRenderer(width int) Renderer {
	if width < 40 {
		width = 80
	}
	return Renderer{Styles: NewStyles(DefaultTheme), Width: width}
}

// Login renders the sign-in screen.
func (r Renderer) Login() string {
	var b strings.Builder
	b.WriteString(r.Styles.Title.Render("智慧文學：交錯互補的生命課程"))
	b.WriteString("\n")
	b.WriteString(r.Styles.Subtitle.Render("箴言・傳道書・約伯記"))
	b.WriteString("\n\n")
	b.WriteString(r.Styles.Body.Render("請輸入你的名字開始今天的課程。"))
	return b.String()
}

// Catalog renders every cycle with its lessons, marking completed ones.
func (r Renderer) Catalog(cat *catalog.Catalog, learner string, completed func(int) bool) string {
	var b strings.Builder
	b.WriteString(r.Styles.Title.Render(learner + "，歡迎回來"))
	b.WriteString("\n")
	for _, cy := range cat.Cycles() {
		b.WriteString(r.Cycle(cy, cat.ByCycle(cy.ID), completed))
	}
	return b.String()
}

// Cycle renders one cycle heading followed by its lessons. completed may be
// nil.
func (r Renderer) Cycle(cy catalog.Cycle, lessons []catalog.Lesson, completed func(int) bool) string {
	var b strings.Builder
	b.WriteString(r.Styles.Heading.Render(cy.Title))
	b.WriteString("\n")
	b.WriteString(r.Styles.Subtitle.Render(cy.Description))
	b.WriteString("\n")
	for _, l := range lessons {
		mark := "  "
		title := r.Styles.Body.Render(l.Title)
		if completed != nil && completed(l.ID) {
			mark = r.Styles.Done.Render("✓ ")
			title = r.Styles.Done.Render(l.Title)
		}
		fmt.Fprintf(&b, "%s%s %s\n", mark, r.Styles.Help.Render(fmt.Sprintf("%2d", l.ID)), title)
	}
	return b.String()
}

// Step renders the current step of s: the lesson header, the step title and
// quote, and the step's content.
func (r Renderer) Step(s *wizard.Session) string {
	l := s.Lesson()
	step := s.Step()

	var b strings.Builder
	b.WriteString(r.Styles.Title.Render(l.Title))
	b.WriteString("\n")
	b.WriteString(r.Styles.Subtitle.Render(l.Subtitle))
	b.WriteString("\n\n")
	b.WriteString(r.progress(step))
	b.WriteString("\n")
	b.WriteString(r.Styles.Step.Render(step.Title()))
	b.WriteString("\n")
	if q := step.Quote(); q != "" {
		b.WriteString(r.Styles.Quote.Render(q))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch step {
	case wizard.LifeQuestion:
		b.WriteString(r.lifeQuestions(s))
	case wizard.Perspectives:
		b.WriteString(r.Perspectives(l))
	case wizard.Tension:
		b.WriteString(r.Prose(l.TensionGuide))
	case wizard.Discussion:
		for i, p := range l.DiscussionPrompts {
			b.WriteString(r.question(i, p, nil, s.Input(wizard.DiscussionKey(i))))
		}
	case wizard.Summary:
		b.WriteString(r.Prose(l.Summary))
		b.WriteString("\n\n")
		b.WriteString(r.Styles.Heading.Render(wizard.SummaryPrompt))
		b.WriteString("\n")
		b.WriteString(r.answer(s.Input(wizard.SummaryKey)))
		b.WriteString("\n")
	}
	return b.String()
}

// progress renders the five steps with the current one highlighted.
func (r Renderer) progress(cur wizard.Step) string {
	parts := make([]string, 0, len(wizard.Steps))
	for _, st := range wizard.Steps {
		label := strconv.Itoa(st.Ordinal()) + " " + st.Label()
		switch {
		case st == cur:
			parts = append(parts, r.Styles.Chosen.Render(label))
		case st < cur:
			parts = append(parts, r.Styles.Done.Render(label))
		default:
			parts = append(parts, r.Styles.Help.Render(label))
		}
	}
	return strings.Join(parts, r.Styles.Help.Render(" › "))
}

func (r Renderer) lifeQuestions(s *wizard.Session) string {
	var b strings.Builder
	l := s.Lesson()
	for i, q := range l.LifeQuestions {
		b.WriteString(r.question(i, q.Prompt, q.Choices, s.Input(wizard.LifeQuestionKey(i))))
	}

	ins, ok := s.Insight()
	switch {
	case s.Loading():
		b.WriteString("\n")
		b.WriteString(r.Styles.Help.Render("導師正在思考你的回應..."))
		b.WriteString("\n")
	case ok:
		if !ins.Skipped {
			b.WriteString("\n")
			b.WriteString(r.Styles.Feedback.Width(r.Width - 4).Render(
				r.Styles.Chosen.Render("導師的回饋") + "\n" + r.Styles.Body.Render(ins.Feedback)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(r.Classroom(ins.Classroom))
	}
	return b.String()
}

// question renders one numbered prompt, its options and the current answer.
func (r Renderer) question(i int, prompt string, choices []string, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.Styles.Chosen.Render(strconv.Itoa(i+1)+"."), r.Styles.Body.Render(prompt))
	if len(choices) > 0 {
		opts := make([]string, len(choices))
		for j, c := range choices {
			if c == answer {
				opts[j] = r.Styles.Chosen.Render("● " + c)
			} else {
				opts[j] = r.Styles.Help.Render("○ " + c)
			}
		}
		b.WriteString("   " + strings.Join(opts, "  ") + "\n")
		return b.String()
	}
	b.WriteString(r.answer(answer))
	b.WriteString("\n")
	return b.String()
}

func (r Renderer) answer(text string) string {
	if text == "" {
		return "   " + r.Styles.Help.Render("（尚未回答）")
	}
	return "   " + r.Styles.Answer.Render("› "+text)
}

// Perspectives renders the three panels side by side when the terminal is
// wide enough, stacked otherwise.
func (r Renderer) Perspectives(l catalog.Lesson) string {
	cols := len(catalog.Perspectives)
	width := r.Width
	horizontal := r.Width >= 90
	if horizontal {
		width = r.Width/cols - 1
	}
	panels := make([]string, 0, cols)
	for _, p := range catalog.Perspectives {
		sc := l.Perspective(p)
		body := r.Styles.Book(p).Render(sc.Book+"｜"+p.Label()) + "\n" +
			r.Styles.Chosen.Render(sc.Theme) + "\n\n" +
			r.Styles.Body.Render(sc.Description)
		panels = append(panels, r.Styles.Panel(p).Width(width-2).Render(body))
	}
	if horizontal {
		return lipgloss.JoinHorizontal(lipgloss.Top, panels...) + "\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left, panels...) + "\n"
}

// Prose renders long-form text block by block.
func (r Renderer) Prose(text string) string {
	var lines []string
	for _, blk := range prose.Format(text) {
		switch blk.Kind {
		case prose.Spacer:
			lines = append(lines, "")
		case prose.Divider:
			lines = append(lines, r.Styles.Divider.Render(strings.Repeat("─", min(r.Width, 40))))
		case prose.Heading:
			lines = append(lines, r.Styles.Heading.Render(blk.Text))
		case prose.Emphasis:
			lines = append(lines, r.Styles.Emphasis.Render(blk.Text))
		case prose.Quote:
			lines = append(lines, r.Styles.Quote.Render(blk.Text))
		default:
			lines = append(lines, r.Styles.Body.Width(r.Width).Render(blk.Text))
		}
	}
	return strings.Join(lines, "\n")
}

// Classroom renders the word cloud, the choice distribution when present,
// and the closing quote.
func (r Renderer) Classroom(rep insight.Report) string {
	var b strings.Builder
	b.WriteString(r.Styles.Title.Render("課堂觀察：大家的觀點"))
	b.WriteString("\n")
	b.WriteString(r.Styles.Heading.Render("生活關鍵字雲"))
	b.WriteString("\n")
	b.WriteString(r.Cloud(rep.Cloud))
	b.WriteString("\n")

	if len(rep.Distribution) > 0 {
		b.WriteString(r.Styles.Heading.Render("信念分佈"))
		b.WriteString("\n")
		b.WriteString(r.Distribution(rep.Distribution))
	}
	b.WriteString("\n")
	b.WriteString(r.Styles.Quote.Render(insight.Quote))
	b.WriteString("\n")
	return b.String()
}

// Cloud renders the weighted words wrapped to the terminal width, or the
// placeholder when there are none.
func (r Renderer) Cloud(c insight.Cloud) string {
	if c.Empty() {
		return r.Styles.Help.Italic(true).Render(insight.Placeholder)
	}
	words := make([]string, len(c.Words))
	for i, w := range c.Words {
		words[i] = r.Styles.Word(w).Render(w.Text)
	}
	return r.Styles.Box.Width(r.Width - 4).Render(strings.Join(words, "  "))
}

// Distribution renders one bar per bucket, highlighting the learner's
// choice.
func (r Renderer) Distribution(buckets []insight.Bucket) string {
	labelWidth := 0
	for _, bk := range buckets {
		labelWidth = max(labelWidth, lipgloss.Width(bk.Label))
	}
	var b strings.Builder
	for _, bk := range buckets {
		filled := barWidth * bk.Percent / 100
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		label := bk.Label + strings.Repeat(" ", labelWidth-lipgloss.Width(bk.Label))
		line := fmt.Sprintf("%s %s %3d%%", label, bar, bk.Percent)
		if bk.Chosen {
			b.WriteString(r.Styles.Chosen.Render(line) + " " + r.Styles.Answer.Render("您的選擇"))
		} else {
			b.WriteString(r.Styles.Help.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Help renders the commands available on step.
func (r Renderer) Help(step wizard.Step) string {
	cmds := []string{"play", "stop", "replay", "vol <0-1>"}
	switch step {
	case wizard.LifeQuestion:
		cmds = append([]string{"say <n> <回應>", "listen <n>", "insight", "next"}, cmds...)
	case wizard.Perspectives:
		cmds = append([]string{"play proverbs|ecclesiastes|job", "back", "next"}, cmds...)
	case wizard.Discussion:
		cmds = append([]string{"say <n> <回應>", "listen <n>", "back", "next"}, cmds...)
	case wizard.Summary:
		cmds = append([]string{"say <回應>", "listen", "back", "done"}, cmds...)
	default:
		cmds = append([]string{"back", "next"}, cmds...)
	}
	cmds = append(cmds, "home", "logout", "quit")
	return r.Styles.Help.Width(r.Width).Render(strings.Join(cmds, " · "))
}

// Err renders an error line.
func (r Renderer) Err(err error) string {
	return r.Styles.Error.Render("✗ " + err.Error())
}
