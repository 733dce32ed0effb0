// Package insight builds the classroom view shown after a learner seeks
// insight: a word-frequency cloud over peer and learner answers, and the
// peer choice distribution for lessons that carry one.
package insight

import (
	"math/rand/v2"
	"regexp"
	"slices"
	"unicode/utf8"
)

// Placeholder is shown instead of an empty cloud.
const Placeholder = "正在收集同學的回應中..."

// MaxWords caps how many distinct tokens a cloud keeps.
const MaxWords = 20

// Size and opacity ranges. A token at the minimum surviving count renders at
// the base value, one at the maximum at base+span.
const (
	SizeBase    = 0.8
	SizeSpan    = 1.5
	OpacityBase = 0.5
	OpacitySpan = 0.5
)

// Color is one of six fixed display classes. Assignment is cosmetic.
type Color int

const (
	Amber Color = iota
	Slate
	Blue
	DeepAmber
	LightSlate
	Emerald
)

// Colors lists every class in declaration order.
var Colors = []Color{Amber, Slate, Blue, DeepAmber, LightSlate, Emerald}

// String returns the class name.
func (c Color) String() string {
	switch c {
	case Amber:
		return "amber"
	case Slate:
		return "slate"
	case Blue:
		return "blue"
	case DeepAmber:
		return "deep-amber"
	case LightSlate:
		return "light-slate"
	case Emerald:
		return "emerald"
	}
	return "slate"
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Word is a single weighted token in the cloud.
type Word struct {
	Text    string  `json:"text"`
	Count   int     `json:"count"`
	Size    float64 `json:"size"`
	Opacity float64 `json:"opacity"`
	Color   Color   `json:"color"`
}

// Cloud is the weighted top-N token list, most frequent first.
type Cloud struct {
	Words []Word `json:"words"`
}

// Empty reports whether the cloud has nothing to show.
func (c Cloud) Empty() bool { return len(c.Words) == 0 }

// delimiters splits on the punctuation and whitespace that separate phrases in
// free-form answers. ASCII punctuation is included for mixed-script input.
var delimiters = regexp.MustCompile(`[，。？！\s、；,.?!;]`)

// Tokenize splits s into tokens longer than one rune.
func Tokenize(s string) []string {
	parts := delimiters.Split(s, -1)
	out := parts[:0]
	for _, p := range parts {
		if utf8.RuneCountInString(p) > 1 {
			out = append(out, p)
		}
	}
	return out
}

// CloudOption configures [BuildCloud].
type CloudOption func(*cloudConfig)

type cloudConfig struct {
	rng *rand.Rand
}

// WithRand sets the source used to pick color classes. Tests pass a seeded
// source for stable output.
func WithRand(r *rand.Rand) CloudOption {
	return func(c *cloudConfig) { c.rng = r }
}

// BuildCloud counts tokens across inputs and returns the weighted cloud.
// Ties in count keep the order in which tokens first appeared.
func BuildCloud(inputs []string, opts ...CloudOption) Cloud {
	cfg := cloudConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	counts := make(map[string]int)
	var order []string
	for _, in := range inputs {
		for _, tok := range Tokenize(in) {
			if _, ok := counts[tok]; !ok {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}
	if len(order) == 0 {
		return Cloud{}
	}

	slices.SortStableFunc(order, func(a, b string) int { return counts[b] - counts[a] })
	if len(order) > MaxWords {
		order = order[:MaxWords]
	}

	maxCount := counts[order[0]]
	minCount := counts[order[len(order)-1]]
	span := float64(maxCount - minCount)
	if span == 0 {
		span = 1
	}

	words := make([]Word, len(order))
	for i, tok := range order {
		norm := float64(counts[tok]-minCount) / span
		words[i] = Word{
			Text:    tok,
			Count:   counts[tok],
			Size:    SizeBase + norm*SizeSpan,
			Opacity: OpacityBase + norm*OpacitySpan,
			Color:   pickColor(cfg.rng),
		}
	}
	return Cloud{Words: words}
}

func pickColor(r *rand.Rand) Color {
	if r == nil {
		return Colors[rand.IntN(len(Colors))]
	}
	return Colors[r.IntN(len(Colors))]
}
