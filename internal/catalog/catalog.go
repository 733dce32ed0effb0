// Package catalog holds the immutable curriculum: four cycles and their
// lessons, decoded from an embedded YAML document and validated once at
// start-up.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lessons.yaml
var lessonsYAML []byte

// ErrNotFound is returned when a lesson or cycle id does not exist.
var ErrNotFound = errors.New("catalog: not found")

type document struct {
	Cycles  []Cycle  `yaml:"cycles"`
	Lessons []Lesson `yaml:"lessons"`
}

// Catalog is a read-only view over the curriculum. It is safe for
// concurrent use because nothing mutates it after construction.
type Catalog struct {
	cycles  []Cycle
	lessons []Lesson
	byID    map[int]int
}

// Load decodes the embedded curriculum.
func Load() (*Catalog, error) {
	return LoadFromReader(bytes.NewReader(lessonsYAML))
}

// MustLoad is like [Load] but panics on error. The embedded document is part
// of the binary, so a failure here is a build defect.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFromReader decodes and validates curriculum YAML from r.
func LoadFromReader(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	if err := validate(doc); err != nil {
		return nil, fmt.Errorf("catalog: invalid curriculum: %w", err)
	}

	c := &Catalog{
		cycles:  doc.Cycles,
		lessons: doc.Lessons,
		byID:    make(map[int]int, len(doc.Lessons)),
	}
	slices.SortStableFunc(c.lessons, func(a, b Lesson) int { return a.ID - b.ID })
	for i, l := range c.lessons {
		c.byID[l.ID] = i
	}
	return c, nil
}

// Cycles returns all cycles in id order.
func (c *Catalog) Cycles() []Cycle {
	return slices.Clone(c.cycles)
}

// Lessons returns all lessons in id order.
func (c *Catalog) Lessons() []Lesson {
	return slices.Clone(c.lessons)
}

// Lesson returns the lesson with the given id.
func (c *Catalog) Lesson(id int) (Lesson, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Lesson{}, false
	}
	return c.lessons[i], true
}

// Cycle returns the cycle with the given id.
func (c *Catalog) Cycle(id int) (Cycle, bool) {
	for _, cy := range c.cycles {
		if cy.ID == id {
			return cy, true
		}
	}
	return Cycle{}, false
}

// ByCycle returns the lessons belonging to cycleID in id order.
func (c *Catalog) ByCycle(cycleID int) []Lesson {
	var out []Lesson
	for _, l := range c.lessons {
		if l.CycleID == cycleID {
			out = append(out, l)
		}
	}
	return out
}

// validate checks structural rules over the whole document.
//
// Rules:
//   - lesson ids are unique and contiguous from 1.
//   - every lesson references an existing cycle.
//   - every lesson carries all three perspectives, each fully populated.
//   - title, tension guide, summary and at least one life question are present.
func validate(doc document) error {
	var errs []error

	if len(doc.Cycles) == 0 {
		errs = append(errs, errors.New("no cycles defined"))
	}
	cycles := make(map[int]bool, len(doc.Cycles))
	for _, cy := range doc.Cycles {
		if cycles[cy.ID] {
			errs = append(errs, fmt.Errorf("cycle %d: duplicate id", cy.ID))
		}
		cycles[cy.ID] = true
		if strings.TrimSpace(cy.Title) == "" {
			errs = append(errs, fmt.Errorf("cycle %d: title must not be empty", cy.ID))
		}
	}

	if len(doc.Lessons) == 0 {
		errs = append(errs, errors.New("no lessons defined"))
	}
	seen := make(map[int]bool, len(doc.Lessons))
	for _, l := range doc.Lessons {
		if seen[l.ID] {
			errs = append(errs, fmt.Errorf("lesson %d: duplicate id", l.ID))
		}
		seen[l.ID] = true
		errs = append(errs, validateLesson(l, cycles)...)
	}
	for id := 1; id <= len(doc.Lessons); id++ {
		if !seen[id] {
			errs = append(errs, fmt.Errorf("lesson ids must run 1..%d: %d missing", len(doc.Lessons), id))
		}
	}

	return errors.Join(errs...)
}

func validateLesson(l Lesson, cycles map[int]bool) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("lesson %d: "+format, append([]any{l.ID}, args...)...))
	}

	if !cycles[l.CycleID] {
		fail("cycle_id %d does not exist", l.CycleID)
	}
	if strings.TrimSpace(l.Title) == "" {
		fail("title must not be empty")
	}
	if strings.TrimSpace(l.TensionGuide) == "" {
		fail("tension_guide must not be empty")
	}
	if strings.TrimSpace(l.Summary) == "" {
		fail("summary must not be empty")
	}
	if len(l.LifeQuestions) == 0 {
		fail("at least one life question is required")
	}
	for i, q := range l.LifeQuestions {
		if strings.TrimSpace(q.Prompt) == "" {
			fail("life_questions[%d]: prompt must not be empty", i)
		}
		if i == 0 && q.IsChoice() {
			fail("life_questions[0]: the first question must accept free text")
		}
	}

	if len(l.Perspectives) != len(Perspectives) {
		fail("perspectives: want exactly %d entries, got %d", len(Perspectives), len(l.Perspectives))
	}
	for p, s := range l.Perspectives {
		if !p.IsValid() {
			fail("perspectives: unknown key %q", p)
			continue
		}
		if s.Book == "" || s.Theme == "" || s.Description == "" {
			fail("perspectives[%s]: book, theme and description are required", p)
		}
	}

	for i, st := range l.Peers.Stats {
		if st.Label == "" {
			fail("peers.stats[%d]: label must not be empty", i)
		}
		if st.Count < 0 {
			fail("peers.stats[%d]: count must not be negative", i)
		}
	}
	return errs
}
