package clipboard

import (
	"testing"
)

func TestIsAvailable(t *testing.T) {
	// Availability depends on the host; just verify it answers.
	_ = IsAvailable()
}

func TestCopyPasteRoundTrip(t *testing.T) {
	if !IsAvailable() {
		t.Skip("clipboard not available on this system")
	}

	text := "lore clipboard round trip"
	if err := Copy(text); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := Paste()
	if err != nil {
		t.Fatalf("Paste: %v", err)
	}
	if got != text {
		t.Errorf("Paste = %q, want %q", got, text)
	}
}

func TestCopyEmptyString(t *testing.T) {
	if !IsAvailable() {
		t.Skip("clipboard not available on this system")
	}

	if err := Copy(""); err != nil {
		t.Fatalf("Copy of empty string failed: %v", err)
	}
}
