package insight

import (
	"context"
	"slices"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
)

// Source supplies peer data for a lesson and optionally records the current
// learner's answers for future classmates.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Peers returns the peer data to show next to the learner's answers.
	Peers(ctx context.Context, lesson catalog.Lesson) (catalog.Peers, error)

	// Record stores one learner's contribution. choice may be empty.
	Record(ctx context.Context, lessonID int, answers []string, choice string) error
}

// SeedSource serves the static peer data bundled with each lesson and
// discards recordings.
type SeedSource struct{}

var _ Source = SeedSource{}

// Peers implements [Source].
func (SeedSource) Peers(_ context.Context, lesson catalog.Lesson) (catalog.Peers, error) {
	return clonePeers(lesson.Peers), nil
}

// Record implements [Source]. It is a no-op.
func (SeedSource) Record(context.Context, int, []string, string) error { return nil }

func clonePeers(p catalog.Peers) catalog.Peers {
	return catalog.Peers{
		Responses: slices.Clone(p.Responses),
		Stats:     slices.Clone(p.Stats),
	}
}
