package server

import (
	"time"

	"github.com/MrWong99/wisdomtrail/internal/app"
	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/prose"
	"github.com/MrWong99/wisdomtrail/internal/shell"
	"github.com/MrWong99/wisdomtrail/internal/wizard"
)

type userView struct {
	Name      string    `json:"name"`
	LoginTime time.Time `json:"login_time"`
}

type lessonSummary struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	Completed bool   `json:"completed"`
}

type cycleView struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Lessons     []lessonSummary `json:"lessons"`
}

type stepView struct {
	Name    wizard.Step `json:"name"`
	Ordinal int         `json:"ordinal"`
	Title   string      `json:"title"`
	Heading string      `json:"heading"`
	Minutes int         `json:"minutes"`
	Quote   string      `json:"quote,omitempty"`
}

type questionView struct {
	Key     wizard.InputKey `json:"key"`
	Prompt  string          `json:"prompt"`
	Choices []string        `json:"choices,omitempty"`
}

type panelView struct {
	Perspective catalog.Perspective `json:"perspective"`
	Label       string              `json:"label"`
	Book        string              `json:"book"`
	Theme       string              `json:"theme"`
	Description string              `json:"description"`
}

// lessonView is the open lesson: its content plus the wizard snapshot.
type lessonView struct {
	ID            int             `json:"id"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle"`
	Step          stepView        `json:"step"`
	LifeQuestions []questionView  `json:"life_questions"`
	Perspectives  []panelView     `json:"perspectives"`
	TensionGuide  []prose.Block   `json:"tension_guide"`
	Discussion    []questionView  `json:"discussion"`
	Summary       []prose.Block   `json:"summary"`
	SummaryPrompt string          `json:"summary_prompt"`
	State         wizard.Snapshot `json:"state"`
}

// stateView is returned by every session endpoint.
type stateView struct {
	SessionID string       `json:"session_id"`
	Screen    shell.Screen `json:"screen"`
	User      *userView    `json:"user,omitempty"`
	Completed []int        `json:"completed"`
	Lesson    *lessonView  `json:"lesson,omitempty"`
}

func stateOf(ls *app.LearnerSession) stateView {
	c := ls.Controller
	v := stateView{
		SessionID: ls.Info().SessionID,
		Screen:    c.Screen(),
		Completed: c.Completed(),
	}
	if u, ok := c.User(); ok {
		v.User = &userView{Name: u.Name, LoginTime: u.LoginTime}
	}
	if ws, ok := c.Session(); ok {
		lv := lessonOf(ws)
		v.Lesson = &lv
	}
	return v
}

func lessonOf(ws *wizard.Session) lessonView {
	l := ws.Lesson()
	step := ws.Step()
	v := lessonView{
		ID:       l.ID,
		Title:    l.Title,
		Subtitle: l.Subtitle,
		Step: stepView{
			Name:    step,
			Ordinal: step.Ordinal(),
			Title:   step.Title(),
			Heading: step.Heading(),
			Minutes: step.Minutes(),
			Quote:   step.Quote(),
		},
		TensionGuide:  prose.Format(l.TensionGuide),
		Summary:       prose.Format(l.Summary),
		SummaryPrompt: wizard.SummaryPrompt,
		State:         ws.Snapshot(),
	}
	for i, q := range l.LifeQuestions {
		v.LifeQuestions = append(v.LifeQuestions, questionView{Key: wizard.LifeQuestionKey(i), Prompt: q.Prompt, Choices: q.Choices})
	}
	for i, p := range l.DiscussionPrompts {
		v.Discussion = append(v.Discussion, questionView{Key: wizard.DiscussionKey(i), Prompt: p})
	}
	for _, p := range catalog.Perspectives {
		sc := l.Perspective(p)
		v.Perspectives = append(v.Perspectives, panelView{
			Perspective: p,
			Label:       p.Label(),
			Book:        sc.Book,
			Theme:       sc.Theme,
			Description: sc.Description,
		})
	}
	return v
}

// catalogView groups lessons under cycles. completed may be nil.
func catalogView(cat *catalog.Catalog, cycles []catalog.Cycle, completed func(int) bool) []cycleView {
	out := make([]cycleView, 0, len(cycles))
	for _, cy := range cycles {
		cv := cycleView{ID: cy.ID, Title: cy.Title, Description: cy.Description}
		for _, l := range cat.ByCycle(cy.ID) {
			cv.Lessons = append(cv.Lessons, lessonSummary{
				ID:        l.ID,
				Title:     l.Title,
				Subtitle:  l.Subtitle,
				Completed: completed != nil && completed(l.ID),
			})
		}
		out = append(out, cv)
	}
	return out
}
