package entry

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := Entry{
		ID:         NewID(),
		Category:   CategoryDecisions,
		Title:      "Use JSONL for the op log",
		Confidence: ConfidenceHigh,
		Origin:     OriginManual,
	}

	tests := []struct {
		name    string
		mutate  func(*Entry)
		wantErr bool
	}{
		{name: "valid", mutate: func(e *Entry) {}},
		{name: "missing id", mutate: func(e *Entry) { e.ID = "" }, wantErr: true},
		{name: "missing title", mutate: func(e *Entry) { e.Title = "" }, wantErr: true},
		{name: "bad category", mutate: func(e *Entry) { e.Category = "nonsense" }, wantErr: true},
		{name: "bad confidence", mutate: func(e *Entry) { e.Confidence = "certain" }, wantErr: true},
		{name: "bad origin", mutate: func(e *Entry) { e.Origin = "robot" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	e := &Entry{
		ID:       NewID(),
		Category: CategoryAPI,
		Title:    "original",
		Tags:     []string{"a", "b"},
	}
	c := e.Clone()
	c.Tags[0] = "mutated"
	c.Title = "changed"

	if e.Tags[0] != "a" {
		t.Error("Clone shares tag slice with original")
	}
	if e.Title != "original" {
		t.Error("Clone shares title with original")
	}
}

func TestNormalizeTags(t *testing.T) {
	e := &Entry{Tags: []string{"b", "a", "b", "", "a"}}
	e.NormalizeTags()
	want := []string{"a", "b"}
	if len(e.Tags) != len(want) {
		t.Fatalf("NormalizeTags() = %v, want %v", e.Tags, want)
	}
	for i := range want {
		if e.Tags[i] != want[i] {
			t.Errorf("NormalizeTags() = %v, want %v", e.Tags, want)
		}
	}
}

func TestUnionTags(t *testing.T) {
	got := UnionTags([]string{"db", "http"}, []string{"http", "cache"})
	want := []string{"cache", "db", "http"}
	if len(got) != len(want) {
		t.Fatalf("UnionTags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UnionTags() = %v, want %v", got, want)
		}
	}
}

func TestMaxConfidence(t *testing.T) {
	if MaxConfidence(ConfidenceLow, ConfidenceHigh) != ConfidenceHigh {
		t.Error("MaxConfidence(low, high) should be high")
	}
	if MaxConfidence(ConfidenceMedium, ConfidenceLow) != ConfidenceMedium {
		t.Error("MaxConfidence(medium, low) should be medium")
	}
}

func TestClockOrdering(t *testing.T) {
	a := Clock{Workstation: "ws-a", Counter: 5}
	b := Clock{Workstation: "ws-b", Counter: 5}
	c := Clock{Workstation: "ws-a", Counter: 7}

	if !a.Less(b) {
		t.Error("ties break by workstation id: ws-a < ws-b")
	}
	if !a.Less(c) {
		t.Error("lower counter orders first")
	}
	if c.Less(a) {
		t.Error("ordering should be antisymmetric")
	}
	if !a.Equal(Clock{Workstation: "ws-a", Counter: 5}) {
		t.Error("equal clocks should compare equal")
	}
}

func TestEqualIgnoresClockAndTimestamps(t *testing.T) {
	now := time.Now()
	a := &Entry{ID: "x", Category: CategoryDomain, Title: "t", Tags: []string{"a"}, UpdatedAt: now}
	b := a.Clone()
	b.UpdatedAt = now.Add(time.Hour)
	b.Clock = Clock{Workstation: "ws", Counter: 3}

	if !a.Equal(b) {
		t.Error("Equal should compare content, not clocks or timestamps")
	}
	b.Title = "other"
	if a.Equal(b) {
		t.Error("Equal should detect differing titles")
	}
}
