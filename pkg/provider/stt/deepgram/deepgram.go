// Package deepgram transcribes learner answers with the Deepgram live
// WebSocket API.
//
// Only final results are delivered: the capture adapter shows one line per
// utterance and has no use for interim hypotheses. Vocabulary hints from
// [stt.StreamConfig] are sent as keyterms on nova-3 models and as keywords
// on older ones.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/wisdomtrail/pkg/provider/stt"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

const (
	liveEndpoint      = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "zh-TW"
	defaultSampleRate = 16000

	// Deepgram hangs up after ten seconds without audio or a KeepAlive.
	keepAliveInterval = 8 * time.Second
	drainTimeout      = 3 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Provider opens Deepgram live sessions.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// Option configures [New].
type Option func(*Provider)

// WithModel selects the Deepgram model, e.g. "nova-3" or "nova-2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language used when a session names none.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint replaces the live endpoint, for self-hosted deployments and
// tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// New returns a provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: liveEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials a live session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	target, err := p.listenURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: listen url: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &session{
		conn:     conn,
		audio:    make(chan []byte, 256),
		finals:   make(chan types.Transcript, 16),
		done:     make(chan struct{}),
		hangup:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	s.wg.Add(2)
	go s.send(ctx)
	go s.receive(ctx)
	return s, nil
}

func (p *Provider) listenURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "false")

	hintParam := "keywords"
	if strings.HasPrefix(p.model, "nova-3") {
		hintParam = "keyterm"
	}
	for _, h := range cfg.Hints {
		if h = strings.TrimSpace(h); h != "" {
			q.Add(hintParam, h)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ── session ──────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	audio  chan []byte
	finals chan types.Transcript

	// done stops audio; hangup stops delivery once the drain is over.
	done     chan struct{}
	hangup   chan struct{}
	readDone chan struct{}

	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Close asks Deepgram to finish the pending utterance and waits briefly
// for its result before hanging up.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := s.control(ctx, "CloseStream"); err == nil {
			select {
			case <-s.readDone:
			case <-ctx.Done():
			}
		}
		close(s.hangup)
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

func (s *session) control(ctx context.Context, kind string) error {
	return s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"`+kind+`"}`))
}

func (s *session) send(ctx context.Context) {
	defer s.wg.Done()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
			keepAlive.Reset(keepAliveInterval)
		case <-keepAlive.C:
			if err := s.control(ctx, "KeepAlive"); err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) receive(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.finals)
	defer close(s.readDone)
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := decodeResult(msg)
		if !ok || !t.IsFinal || t.Text == "" {
			continue
		}
		select {
		case s.finals <- t:
		case <-s.hangup:
			return
		case <-ctx.Done():
			return
		}
	}
}

type result struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// decodeResult reports false for metadata, utterance-end and malformed
// messages.
func decodeResult(data []byte) (types.Transcript, bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return types.Transcript{}, false
	}
	if r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	return types.Transcript{
		Text:       strings.TrimSpace(alt.Transcript),
		IsFinal:    r.IsFinal,
		Confidence: alt.Confidence,
		Duration:   time.Duration(r.Duration * float64(time.Second)),
	}, true
}
