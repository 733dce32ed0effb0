package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// InputKey addresses one learner answer: a step and the question index
// within it. Summary has a single answer at index 0.
type InputKey struct {
	Step  Step
	Index int
}

// LifeQuestionKey addresses the answer to life question i.
func LifeQuestionKey(i int) InputKey { return InputKey{Step: LifeQuestion, Index: i} }

// DiscussionKey addresses the answer to discussion prompt i.
func DiscussionKey(i int) InputKey { return InputKey{Step: Discussion, Index: i} }

// SummaryKey addresses the closing reflection.
var SummaryKey = InputKey{Step: Summary}

// String returns the form name used by front ends, e.g.
// "life_question_input_0", "discussion_1" or "summary_input".
func (k InputKey) String() string {
	switch k.Step {
	case LifeQuestion:
		return "life_question_input_" + strconv.Itoa(k.Index)
	case Discussion:
		return "discussion_" + strconv.Itoa(k.Index)
	case Summary:
		return "summary_input"
	}
	return fmt.Sprintf("%s_%d", k.Step, k.Index)
}

// MarshalText implements encoding.TextMarshaler so keys can index JSON
// objects.
func (k InputKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *InputKey) UnmarshalText(b []byte) error {
	v, err := ParseInputKey(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseInputKey is the inverse of [InputKey.String].
func ParseInputKey(s string) (InputKey, error) {
	if s == "summary_input" {
		return SummaryKey, nil
	}
	for prefix, step := range map[string]Step{"life_question_input_": LifeQuestion, "discussion_": Discussion} {
		rest, ok := strings.CutPrefix(s, prefix)
		if !ok {
			continue
		}
		i, err := strconv.Atoi(rest)
		if err != nil || i < 0 {
			break
		}
		return InputKey{Step: step, Index: i}, nil
	}
	return InputKey{}, fmt.Errorf("wizard: unknown input key %q", s)
}

// minChoiceSimilarity is the lowest Jaro-Winkler score accepted when a
// dictated phrase matches no option literally.
const minChoiceSimilarity = 0.7

// MatchChoice maps a dictated phrase onto one of choices. An exact match
// wins, then the longest option contained in the phrase ("不是的" picks
// 不是 over 是), then the most similar option by Jaro-Winkler.
func MatchChoice(phrase string, choices []string) (string, bool) {
	phrase = strings.TrimFunc(phrase, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if phrase == "" || len(choices) == 0 {
		return "", false
	}
	for _, c := range choices {
		if c == phrase {
			return c, true
		}
	}

	var best string
	for _, c := range choices {
		if strings.Contains(phrase, c) && len([]rune(c)) > len([]rune(best)) {
			best = c
		}
	}
	if best != "" {
		return best, true
	}

	score := 0.0
	for _, c := range choices {
		if s := matchr.JaroWinkler(phrase, c, false); s > score {
			best, score = c, s
		}
	}
	if score < minChoiceSimilarity {
		return "", false
	}
	return best, true
}
