// Package prose classifies long-form lesson text into display blocks.
//
// The formatter is pure: it performs no I/O and is safe for concurrent use.
// Front ends decide how each [Kind] looks; this package only decides what
// each line is.
package prose

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind is the display role of a single line.
type Kind int

const (
	// Body is ordinary paragraph text.
	Body Kind = iota
	// Spacer is an empty line rendered as vertical space.
	Spacer
	// Divider is a section break glyph rendered as a horizontal rule.
	Divider
	// Heading is a short labelled line or a bracketed title.
	Heading
	// Emphasis is a bulleted or numbered line.
	Emphasis
	// Quote is a line fully wrapped in quotation marks.
	Quote
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Spacer:
		return "spacer"
	case Divider:
		return "divider"
	case Heading:
		return "heading"
	case Emphasis:
		return "emphasis"
	case Quote:
		return "quote"
	default:
		return "body"
	}
}

// MarshalText implements encoding.TextMarshaler so blocks serialise by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Block is one classified line. Text is trimmed of surrounding whitespace.
type Block struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// maxHeadingRunes bounds how long a labelled line may be and still count as a
// heading rather than a sentence that happens to contain a colon.
const maxHeadingRunes = 24

var dividers = []string{"***", "---", "＊＊＊", "⁂", "※"}

var quotePairs = [][2]string{
	{"「", "」"},
	{"『", "』"},
	{"“", "”"},
	{`"`, `"`},
}

var bracketPairs = [][2]string{
	{"【", "】"},
	{"[", "]"},
}

var bullets = []string{"•", "・", "- ", "* ", "-", "*"}

// Format splits text on line breaks and classifies every line.
func Format(text string) []Block {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]Block, 0, len(lines))
	for _, line := range lines {
		out = append(out, Classify(line))
	}
	return out
}

// Classify returns the block for a single line.
func Classify(line string) Block {
	s := strings.TrimSpace(line)
	switch {
	case s == "":
		return Block{Kind: Spacer}
	case isDivider(s):
		return Block{Kind: Divider, Text: s}
	case isQuote(s):
		return Block{Kind: Quote, Text: s}
	case isHeading(s):
		return Block{Kind: Heading, Text: s}
	case isEmphasis(s):
		return Block{Kind: Emphasis, Text: s}
	default:
		return Block{Kind: Body, Text: s}
	}
}

func isDivider(s string) bool {
	for _, d := range dividers {
		if s == d {
			return true
		}
	}
	return false
}

func isQuote(s string) bool {
	return wrappedIn(s, quotePairs)
}

func isHeading(s string) bool {
	if wrappedIn(s, bracketPairs) {
		return true
	}
	if utf8.RuneCountInString(s) > maxHeadingRunes {
		return false
	}
	return strings.ContainsAny(s, "：:")
}

func isEmphasis(s string) bool {
	for _, b := range bullets {
		if strings.HasPrefix(s, b) && len(s) > len(b) {
			return true
		}
	}
	return hasNumberMarker(s)
}

// hasNumberMarker matches "1." "1、" "1)" and "(1)" style prefixes.
func hasNumberMarker(s string) bool {
	if rest, ok := strings.CutPrefix(s, "("); ok {
		digits := leadingDigits(rest)
		return digits > 0 && strings.HasPrefix(rest[digits:], ")")
	}
	if rest, ok := strings.CutPrefix(s, "（"); ok {
		digits := leadingDigits(rest)
		return digits > 0 && strings.HasPrefix(rest[digits:], "）")
	}
	digits := leadingDigits(s)
	if digits == 0 {
		return false
	}
	rest := s[digits:]
	for _, sep := range []string{".", "、", ")", "）"} {
		if strings.HasPrefix(rest, sep) {
			return true
		}
	}
	return false
}

func leadingDigits(s string) int {
	n := 0
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			break
		}
		n++
	}
	return n
}

func wrappedIn(s string, pairs [][2]string) bool {
	for _, p := range pairs {
		if len(s) > len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return true
		}
	}
	return false
}
