package llm

import (
	"strings"
)

// markup removes the markdown emphasis models like to add. Replies are shown
// as plain prose and read aloud, where the markers would be spoken.
var markup = strings.NewReplacer("**", "", "__", "", "`", "")

// PlainText normalises a raw model reply: emphasis markers and heading
// hashes are dropped and blank lines at either end trimmed. It returns
// [ErrEmptyResponse] when nothing is left.
func PlainText(raw string) (string, error) {
	lines := strings.Split(markup.Replace(raw), "\n")
	for i, l := range lines {
		if h := strings.TrimLeft(l, "#"); len(h) < len(l) && strings.HasPrefix(h, " ") {
			lines[i] = strings.TrimSpace(h)
		}
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
