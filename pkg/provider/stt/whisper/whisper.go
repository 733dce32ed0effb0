// Package whisper provides an STT provider backed by a whisper.cpp server.
//
// whisper-server exposes a batch REST API at POST /inference. The provider
// turns it into a session by buffering incoming PCM, detecting the end of an
// utterance with an energy-based silence detector, and submitting each
// utterance as one WAV upload. Every non-empty result is a final transcript.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("zh"))
//	h, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
//	h.SendAudio(pcmChunk)
//	transcript := <-h.Finals()
//	h.Close()
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/wisdomtrail/pkg/audio"
	"github.com/MrWong99/wisdomtrail/pkg/provider/stt"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

const (
	// defaultRMSThreshold is the RMS level (in 16-bit PCM units) below which
	// a chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "zh"
	defaultSilenceThresholdMs  = 700
	defaultMaxBufferDurationMs = 15_000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. Empty means
// whatever model the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default language code sent to the server. whisper.cpp
// takes ISO 639-1 codes, so region suffixes like "-TW" are stripped.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs caps how much speech may accumulate before a flush
// is forced regardless of silence.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// WithHTTPClient overrides the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL           string
	model               string
	language            string
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// New creates a Provider for the server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		language:            defaultLanguage,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a new transcription session. No network connection is
// made until the first utterance is flushed.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	f := audio.CaptureFormat
	if cfg.SampleRate > 0 {
		f.SampleRate = cfg.SampleRate
	}
	if cfg.Channels > 0 {
		f.Channels = cfg.Channels
	}

	s := &session{
		p:        p,
		language: baseLanguage(lang),
		prompt:   hintPrompt(cfg.Hints),
		format:   f,
		audioCh:  make(chan []byte, 256),
		finals:   make(chan types.Transcript, 16),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s, nil
}

// baseLanguage reduces a BCP-47 tag to its primary subtag.
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

// hintPrompt turns vocabulary hints into an initial decoding prompt, which
// whisper.cpp uses to bias spelling towards the listed words.
func hintPrompt(hints []string) string {
	kept := make([]string, 0, len(hints))
	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			kept = append(kept, h)
		}
	}
	return strings.Join(kept, "、")
}

// ---- session ----------------------------------------------------------------

// session confines all buffering state to processLoop.
type session struct {
	p        *Provider
	language string
	prompt   string
	format   audio.Format

	audioCh chan []byte
	finals  chan types.Transcript

	done chan struct{}
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
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Close flushes any pending speech for a last transcription and closes
// Finals.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silence   time.Duration
	)
	silenceLimit := time.Duration(s.p.silenceThresholdMs) * time.Millisecond
	maxBytes := s.format.BytesPerSecond() * s.p.maxBufferDurationMs / 1000

	flush := func(flushCtx context.Context) {
		pcm, speech := buffer, hadSpeech
		buffer, hadSpeech, silence = nil, false, 0
		if len(pcm) == 0 || !speech {
			return
		}
		text, err := s.infer(flushCtx, pcm)
		if err != nil || text == "" {
			return
		}
		select {
		case s.finals <- types.Transcript{
			Text:     text,
			IsFinal:  true,
			Duration: s.format.Duration(len(pcm)),
		}:
		default:
		}
	}

	// The caller's ctx may already be cancelled when the session ends.
	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			if computeRMS(chunk) < defaultRMSThreshold {
				// Leading silence is dropped.
				if !hadSpeech {
					continue
				}
				silence += s.format.Duration(len(chunk))
				buffer = append(buffer, chunk...)
				if silence >= silenceLimit {
					flush(ctx)
				}
				continue
			}
			hadSpeech = true
			silence = 0
			buffer = append(buffer, chunk...)
			if maxBytes > 0 && len(buffer) >= maxBytes {
				flush(ctx)
			}
		}
	}
}

// infer uploads pcm as WAV to /inference and returns the trimmed text.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, s.format)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        s.language,
		"model":           s.p.model,
		"prompt":          s.prompt,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// computeRMS returns the root-mean-square level of 16-bit LE PCM, in sample
// units (0 to 32767).
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
