package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/wisdomtrail/internal/capture"
	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/narration"
	"github.com/MrWong99/wisdomtrail/internal/shell"
	"github.com/MrWong99/wisdomtrail/internal/wizard"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

var (
	errUnknownCommand = errors.New("不認識的指令，輸入 help 查看可用指令")
	errNeedIndex      = errors.New("請指定題號，例如 say 1 我的回應")
	errNoNarration    = errors.New("語音朗讀無法使用")
	errNoCapture      = errors.New("語音輸入無法使用")
)

// Player runs the interactive terminal session. Commands are read one per
// line; every state change re-renders the current screen.
type Player struct {
	ctrl     *shell.Controller
	narrator *narration.Engine
	capture  *capture.Adapter
	render   Renderer
	in       io.Reader
	log      *slog.Logger
	clear    bool

	mu  sync.Mutex
	out io.Writer
}

// Option configures a [Player].
type Option func(*Player)

// WithRenderer overrides the default 80-column renderer.
func WithRenderer(r Renderer) Option {
	return func(p *Player) { p.render = r }
}

// WithCapture enables the listen command.
func WithCapture(a *capture.Adapter) Option {
	return func(p *Player) { p.capture = a }
}

// WithoutClear keeps earlier output on screen instead of clearing it on
// every screen change.
func WithoutClear() Option {
	return func(p *Player) { p.clear = false }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.log = l }
}

// New returns a player driving ctrl. narrator reads the current step aloud.
func New(ctrl *shell.Controller, narrator *narration.Engine, in io.Reader, out io.Writer, opts ...Option) *Player {
	p := &Player{
		ctrl:     ctrl,
		narrator: narrator,
		render:   NewRenderer(80),
		in:       in,
		out:      out,
		log:      slog.Default(),
		clear:    true,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run shows the current screen and processes commands until quit, end of
// input, or ctx is cancelled. Narration and capture are stopped on return.
func (p *Player) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		scanErr <- sc.Err()
	}()
	defer p.stopAudio()

	p.show()
	for {
		p.prompt()
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := p.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle executes one input line and reports whether the player should
// exit.
func (p *Player) Handle(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "quit" || line == "exit" {
		return true
	}
	var err error
	switch p.ctrl.Screen() {
	case shell.Login:
		if line == "" {
			return false
		}
		_, err = p.ctrl.Login(ctx, line)
		if err == nil {
			p.show()
		}
	case shell.Catalog:
		err = p.handleCatalog(line)
	case shell.Wizard:
		err = p.handleWizard(ctx, line)
	}
	if err != nil {
		p.log.Debug("tui: command failed", "line", line, "err", err)
		p.println(p.render.Err(err))
	}
	return false
}

func (p *Player) handleCatalog(line string) error {
	switch line {
	case "":
		return nil
	case "logout":
		return p.logout()
	case "help":
		p.println(p.render.Styles.Help.Render("輸入課程編號開始學習 · logout · quit"))
		return nil
	}
	id, err := strconv.Atoi(line)
	if err != nil {
		return errUnknownCommand
	}
	if _, err := p.ctrl.Select(id); err != nil {
		return err
	}
	p.show()
	return nil
}

func (p *Player) handleWizard(ctx context.Context, line string) error {
	ws, ok := p.ctrl.Session()
	if !ok {
		return shell.ErrNoLesson
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
		return nil
	case "help", "?":
		p.println(p.render.Help(ws.Step()))
		return nil

	case "next":
		if _, err := ws.Continue(ctx); err != nil {
			return err
		}
		p.show()
	case "back":
		if _, err := ws.Back(ctx); err != nil {
			return err
		}
		p.show()
	case "insight":
		if ws.Loading() {
			return wizard.ErrInsightPending
		}
		p.println(p.render.Styles.Help.Render("導師正在思考你的回應..."))
		if _, err := ws.SeekInsight(ctx); err != nil {
			return err
		}
		p.show()

	case "say":
		key, text, err := p.target(ws.Step(), rest, true)
		if err != nil {
			return err
		}
		if err := ws.SetInput(key, text); err != nil {
			return err
		}
		p.show()
	case "listen":
		key, _, err := p.target(ws.Step(), rest, false)
		if err != nil {
			return err
		}
		return p.listen(ctx, ws, key)

	case "play":
		return p.play(ctx, ws, rest)
	case "stop":
		p.narrator.Stop()
	case "replay":
		return p.replay(ctx)
	case "vol", "volume":
		v, err := strconv.ParseFloat(rest, 32)
		if err != nil || v < 0 || v > 1 {
			return errors.New("音量需介於 0 與 1 之間")
		}
		p.narrator.SetVolume(float32(v))
		p.println(p.render.Styles.Help.Render(fmt.Sprintf("音量 %.0f%%", v*100)))

	case "done":
		id, err := p.ctrl.Complete(ctx)
		if err != nil {
			return err
		}
		p.stopAudio()
		p.show()
		p.println(p.render.Styles.Done.Render(fmt.Sprintf("✓ 第 %d 課已完成", id)))
	case "home":
		p.stopAudio()
		p.ctrl.Home()
		p.show()
	case "logout":
		return p.logout()

	default:
		return errUnknownCommand
	}
	return nil
}

// target resolves the input addressed by args on step. With withText the
// remainder after the index is returned as the answer.
func (p *Player) target(step wizard.Step, args string, withText bool) (wizard.InputKey, string, error) {
	if step == wizard.Summary {
		return wizard.SummaryKey, args, nil
	}
	if step != wizard.LifeQuestion && step != wizard.Discussion {
		return wizard.InputKey{}, "", wizard.ErrWrongStep
	}
	first, text, _ := strings.Cut(args, " ")
	n, err := strconv.Atoi(first)
	if err != nil || n < 1 {
		return wizard.InputKey{}, "", errNeedIndex
	}
	if !withText {
		text = ""
	}
	if step == wizard.LifeQuestion {
		return wizard.LifeQuestionKey(n - 1), strings.TrimSpace(text), nil
	}
	return wizard.DiscussionKey(n - 1), strings.TrimSpace(text), nil
}

// listen starts a capture whose transcript is appended to key.
func (p *Player) listen(ctx context.Context, ws *wizard.Session, key wizard.InputKey) error {
	if p.capture == nil || !p.capture.Available() {
		return errNoCapture
	}
	if p.capture.Listening() {
		p.capture.Stop()
		p.println(p.render.Styles.Help.Render("已停止錄音"))
		return nil
	}
	err := p.capture.Start(ctx, func(transcript string) {
		answer, err := ws.AppendDictation(key, transcript)
		switch {
		case errors.Is(err, wizard.ErrDiscarded):
			return
		case err != nil:
			p.println(p.render.Err(err))
		default:
			p.println(p.render.Styles.Answer.Render("🎤 " + answer))
		}
	}, dictationHints(ws, key)...)
	if err != nil {
		return err
	}
	p.println(p.render.Styles.Help.Render("正在聆聽...（再輸入一次 listen 停止）"))
	return nil
}

// dictationHints returns the options of a choice question.
func dictationHints(ws *wizard.Session, key wizard.InputKey) []string {
	qs := ws.Lesson().LifeQuestions
	if key.Step != wizard.LifeQuestion || key.Index < 0 || key.Index >= len(qs) {
		return nil
	}
	return qs[key.Index].Choices
}

// play toggles narration of the current step, or of one perspective panel
// when arg names one.
func (p *Player) play(ctx context.Context, ws *wizard.Session, arg string) error {
	if !p.narrator.Available() {
		return errNoNarration
	}
	text := ws.NarrationText()
	if arg != "" {
		persp, ok := parsePerspective(ws.Lesson(), arg)
		if !ok {
			return fmt.Errorf("不認識的觀點 %q", arg)
		}
		text = ws.PerspectiveNarration(persp)
	}
	p.narrator.SetText(text)
	return p.narrator.Play(ctx)
}

func (p *Player) replay(ctx context.Context) error {
	if !p.narrator.Available() {
		return errNoNarration
	}
	return p.narrator.Replay(ctx)
}

func (p *Player) logout() error {
	p.stopAudio()
	if err := p.ctrl.Logout(context.Background()); err != nil {
		return err
	}
	p.show()
	return nil
}

func (p *Player) stopAudio() {
	p.narrator.Stop()
	if p.capture != nil {
		p.capture.Stop()
	}
}

// show renders the current screen. In the wizard the narration control is
// rebound to the step text, which stops audio left from a previous step.
func (p *Player) show() {
	var view string
	switch p.ctrl.Screen() {
	case shell.Login:
		view = p.render.Login()
	case shell.Catalog:
		u, _ := p.ctrl.User()
		view = p.render.Catalog(p.ctrl.Catalog(), u.Name, p.ctrl.IsCompleted)
	case shell.Wizard:
		ws, ok := p.ctrl.Session()
		if !ok {
			return
		}
		p.narrator.SetText(ws.NarrationText())
		view = p.render.Step(ws) + "\n" + p.render.Help(ws.Step())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clear {
		io.WriteString(p.out, clearScreen)
	}
	io.WriteString(p.out, view+"\n")
}

func (p *Player) prompt() {
	var s string
	switch p.ctrl.Screen() {
	case shell.Login:
		s = "名字 > "
	case shell.Catalog:
		s = "課程編號 > "
	default:
		s = "> "
	}
	p.mu.Lock()
	io.WriteString(p.out, s)
	p.mu.Unlock()
}

func (p *Player) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.out, s+"\n")
}

// parsePerspective accepts the wire name, the English book name or the
// lesson's Chinese book name.
func parsePerspective(l catalog.Lesson, arg string) (catalog.Perspective, bool) {
	if p := catalog.Perspective(strings.ToUpper(arg)); p.IsValid() {
		return p, true
	}
	for _, p := range catalog.Perspectives {
		if l.Perspective(p).Book == arg || p.Label() == arg {
			return p, true
		}
	}
	switch strings.ToLower(arg) {
	case "order":
		return catalog.Order, true
	case "vanity":
		return catalog.Vanity, true
	case "collapse":
		return catalog.Collapse, true
	}
	return "", false
}
