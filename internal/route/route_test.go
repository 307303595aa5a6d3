package route

import (
	"testing"

	"github.com/lorekeep/lore/internal/entry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Destination
	}{
		{name: "github url", text: "see https://github.com/acme/svc/issues/42", want: DestGitHub},
		{name: "github shorthand", text: "tracked in acme/svc#42", want: DestGitHub},
		{name: "bug keyword", text: "flaky CI failure in the auth suite", want: DestGitHub},
		{name: "pull request keyword", text: "waiting on the pull request review", want: DestGitHub},
		{name: "notion url", text: "notes at notion.so/team/runbook-123", want: DestNotion},
		{name: "docs keyword", text: "update the onboarding runbook", want: DestNotion},
		{name: "plain observation", text: "the cache warms slowly on mondays", want: DestLocal},
		{name: "empty", text: "", want: DestLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			if got.Destination != tt.want {
				t.Errorf("Classify(%q) = %s (rule %s), want %s",
					tt.text, got.Destination, got.Rule, tt.want)
			}
		})
	}
}

func TestGitHubCheckedBeforeNotion(t *testing.T) {
	// Text matching both rule sets routes to GitHub: evaluation order is
	// fixed.
	got := Classify("document the bug in the team wiki")
	if got.Destination != DestGitHub {
		t.Errorf("mixed-signal text routed to %s, want github", got.Destination)
	}
}

func TestLocalDefaultShape(t *testing.T) {
	got := Classify("an unremarkable note")
	if got.Destination != DestLocal {
		t.Fatalf("Destination = %s, want local", got.Destination)
	}
	if got.Category != entry.CategoryObservation {
		t.Errorf("Category = %s, want observation", got.Category)
	}
	if got.Confidence != entry.ConfidenceLow {
		t.Errorf("Confidence = %s, want low", got.Confidence)
	}
	if got.Rule != "" {
		t.Errorf("default decision should carry no rule, got %s", got.Rule)
	}
}

func TestClassifySplit(t *testing.T) {
	text := "Fix the login bug. Then update the onboarding docs. Everything else is fine."
	decisions := ClassifySplit(text)
	if len(decisions) != 3 {
		t.Fatalf("ClassifySplit returned %d decisions, want 3", len(decisions))
	}

	want := []Destination{DestGitHub, DestNotion, DestLocal}
	for i, d := range decisions {
		if d.Destination != want[i] {
			t.Errorf("sentence %d (%q) routed to %s, want %s",
				i, d.Text.Body, d.Destination, want[i])
		}
		if d.Text.Index != i {
			t.Errorf("sentence %d carries index %d", i, d.Text.Index)
		}
	}
}

func TestClassifyNeverFails(t *testing.T) {
	// Arbitrary garbage always yields a decision.
	for _, text := range []string{"\x00\xff", "((((", "#######", "   "} {
		d := Classify(text)
		if d.Destination == "" {
			t.Errorf("Classify(%q) produced no destination", text)
		}
	}
}
