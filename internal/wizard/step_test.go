package wizard

import (
	"encoding/json"
	"testing"
)

// ── Step ─────────────────────────────────────────────────────────────────────

func TestStep_Order(t *testing.T) {
	s := LifeQuestion
	var visited []Step
	for {
		visited = append(visited, s)
		next, ok := s.Next()
		if !ok {
			break
		}
		s = next
	}
	if len(visited) != len(Steps) {
		t.Fatalf("visited %v, want %v", visited, Steps)
	}
	for i := range Steps {
		if visited[i] != Steps[i] {
			t.Errorf("step %d = %v, want %v", i, visited[i], Steps[i])
		}
	}
	if _, ok := LifeQuestion.Prev(); ok {
		t.Error("LifeQuestion.Prev() ok = true")
	}
	if p, _ := Tension.Prev(); p != Perspectives {
		t.Errorf("Tension.Prev() = %v", p)
	}
}

func TestStep_Metadata(t *testing.T) {
	tests := []struct {
		step    Step
		name    string
		heading string
		minutes int
	}{
		{LifeQuestion, "LIFE_QUESTION", "生活提問", 8},
		{Perspectives, "PERSPECTIVES", "三卷書對照", 20},
		{Tension, "TENSION", "價值張力引導", 15},
		{Discussion, "DISCUSSION", "互動討論", 12},
		{Summary, "SUMMARY", "安靜整合", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step.String(); got != tt.name {
				t.Errorf("String() = %q", got)
			}
			if got := tt.step.Heading(); got != tt.heading {
				t.Errorf("Heading() = %q", got)
			}
			if got := tt.step.Minutes(); got != tt.minutes {
				t.Errorf("Minutes() = %d", got)
			}
			parsed, err := ParseStep(tt.name)
			if err != nil || parsed != tt.step {
				t.Errorf("ParseStep(%q) = %v, %v", tt.name, parsed, err)
			}
		})
	}
	if got := LifeQuestion.Title(); got != "第一階段：生活提問 (8分鐘)" {
		t.Errorf("Title() = %q", got)
	}
}

func TestStep_Invalid(t *testing.T) {
	bad := Step(9)
	if bad.IsValid() {
		t.Error("Step(9).IsValid() = true")
	}
	if bad.Heading() != "" || bad.Title() != "" {
		t.Error("invalid step has metadata")
	}
	if _, err := bad.MarshalText(); err == nil {
		t.Error("MarshalText accepted invalid step")
	}
	if _, err := ParseStep("INTRO"); err == nil {
		t.Error("ParseStep accepted unknown name")
	}
}

func TestStep_JSON(t *testing.T) {
	b, err := json.Marshal(struct{ Step Step }{Tension})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"Step":"TENSION"}` {
		t.Errorf("json = %s", b)
	}
	var out struct{ Step Step }
	if err := json.Unmarshal(b, &out); err != nil || out.Step != Tension {
		t.Errorf("Unmarshal = %v, %v", out.Step, err)
	}
}
