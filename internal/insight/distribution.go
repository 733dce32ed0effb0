package insight

import (
	"math"
	"unicode/utf8"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
)

// MinAnswerRunes is the length a learner answer must exceed before it joins
// the word cloud. Shorter answers are usually a forced choice or a shrug.
const MinAnswerRunes = 5

// Quote closes the classroom panel.
const Quote = "「鐵磨鐵，磨出刃來；朋友相感也是如此。」—— 箴言 27:17"

// Combine returns peer responses followed by every learner answer longer
// than [MinAnswerRunes].
func Combine(peers []string, answers []string) []string {
	out := make([]string, 0, len(peers)+len(answers))
	out = append(out, peers...)
	for _, a := range answers {
		if utf8.RuneCountInString(a) > MinAnswerRunes {
			out = append(out, a)
		}
	}
	return out
}

// Bucket is one row of the choice distribution.
type Bucket struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
	Chosen  bool   `json:"chosen"`
}

// Distribution converts stats into percentage buckets in their declared
// order and marks the bucket matching choice. Percentages are rounded half
// up independently, so they need not sum to exactly 100.
func Distribution(stats []catalog.Stat, choice string) []Bucket {
	if len(stats) == 0 {
		return nil
	}
	total := 0
	for _, s := range stats {
		total += s.Count
	}
	out := make([]Bucket, len(stats))
	for i, s := range stats {
		pct := 0
		if total > 0 {
			pct = int(math.Floor(float64(s.Count)/float64(total)*100 + 0.5))
		}
		out[i] = Bucket{
			Label:   s.Label,
			Count:   s.Count,
			Percent: pct,
			Chosen:  choice != "" && s.Label == choice,
		}
	}
	return out
}

// Report is everything the classroom panel renders.
type Report struct {
	Cloud        Cloud    `json:"cloud"`
	Distribution []Bucket `json:"distribution,omitempty"`
}

// Build assembles a report from peer data and the learner's answers. choice
// is the learner's forced-choice answer, or empty.
func Build(peers catalog.Peers, answers []string, choice string, opts ...CloudOption) Report {
	return Report{
		Cloud:        BuildCloud(Combine(peers.Responses, answers), opts...),
		Distribution: Distribution(peers.Stats, choice),
	}
}
